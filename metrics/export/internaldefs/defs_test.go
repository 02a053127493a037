package internaldefs

import (
	"strings"
	"testing"
)

func TestDefinitionsAreUnique(t *testing.T) {
	seenID := map[int]string{}
	seenName := map[string]bool{}

	for _, def := range CounterDefs {
		if prev, ok := seenID[int(def.ID)]; ok {
			t.Fatalf("metric id %d used by %s and %s", def.ID, prev, def.Name)
		}
		seenID[int(def.ID)] = def.Name
		if seenName[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		seenName[def.Name] = true
		if !strings.HasPrefix(def.Name, "magiclink_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %s does not follow naming convention", def.Name)
		}
	}
	for _, def := range HistogramDefs {
		if _, ok := seenID[int(def.ID)]; ok {
			t.Fatalf("histogram %s reuses a counter id", def.Name)
		}
		seenID[int(def.ID)] = def.Name
		if !strings.HasSuffix(def.Name, "_seconds") {
			t.Fatalf("histogram %s does not follow naming convention", def.Name)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 {
		t.Fatal("expected eight bucket bounds")
	}
}
