package main

import (
	"bytes"
	"strings"
	"testing"
)

const baselineOut = `goos: linux
BenchmarkIssue-8            	   50000	     20000 ns/op	    4000 B/op	      50 allocs/op
BenchmarkIssue-8            	   50000	     22000 ns/op	    4000 B/op	      50 allocs/op
BenchmarkConsume-8          	   30000	     40000 ns/op	    9000 B/op	     120 allocs/op
BenchmarkMetricsInc-8       	 1000000	        10 ns/op
PASS
`

func TestParseTracked(t *testing.T) {
	track, err := parseTracked("BenchmarkIssue=ns/op,allocs/op; BenchmarkConsume=ns/op")
	if err != nil {
		t.Fatalf("parseTracked failed: %v", err)
	}
	if len(track["BenchmarkIssue"]) != 2 || len(track["BenchmarkConsume"]) != 1 {
		t.Fatalf("unexpected tracked set: %v", track)
	}
	if _, err := parseTracked("nonsense"); err == nil {
		t.Fatal("expected error for malformed entry")
	}
	if _, err := parseTracked(""); err == nil {
		t.Fatal("expected error for empty spec")
	}
}

func TestParseBenchmarksKeepsTrackedOnly(t *testing.T) {
	track := tracked{"BenchmarkIssue": {"ns/op"}, "BenchmarkConsume": {"ns/op"}}
	got, err := parseBenchmarks(strings.NewReader(baselineOut), track)
	if err != nil {
		t.Fatalf("parseBenchmarks failed: %v", err)
	}
	if n := len(got["BenchmarkIssue"]["ns/op"]); n != 2 {
		t.Fatalf("expected 2 issue samples, got %d", n)
	}
	if _, ok := got["BenchmarkMetricsInc"]; ok {
		t.Fatal("untracked benchmark must be ignored")
	}
	if allocs := got["BenchmarkConsume"]["allocs/op"]; len(allocs) != 1 || allocs[0] != 120 {
		t.Fatalf("unexpected allocs samples: %v", allocs)
	}
}

func TestCompareFlagsRegression(t *testing.T) {
	track := tracked{"BenchmarkIssue": {"ns/op"}, "BenchmarkConsume": {"ns/op"}}
	base := samples{
		"BenchmarkIssue":   {"ns/op": {20000, 22000}},
		"BenchmarkConsume": {"ns/op": {40000}},
	}
	cand := samples{
		"BenchmarkIssue":   {"ns/op": {21000}},
		"BenchmarkConsume": {"ns/op": {80000}},
	}

	var out bytes.Buffer
	failures := compare(&out, track, base, cand, 0.30)
	if len(failures) != 1 || !strings.Contains(failures[0], "BenchmarkConsume") {
		t.Fatalf("expected one consume regression, got %v", failures)
	}
	if !strings.Contains(out.String(), "BenchmarkIssue") {
		t.Fatalf("table missing issue row:\n%s", out.String())
	}
}

func TestCompareReportsMissingSamples(t *testing.T) {
	track := tracked{"BenchmarkIssue": {"ns/op"}}
	failures := compare(&bytes.Buffer{}, track, samples{}, samples{}, 0.30)
	if len(failures) != 1 || !strings.Contains(failures[0], "missing samples") {
		t.Fatalf("expected missing samples failure, got %v", failures)
	}
}

func TestTrimProcsAndMedian(t *testing.T) {
	if got := trimProcs("BenchmarkConsume-16"); got != "BenchmarkConsume" {
		t.Fatalf("trimProcs = %q", got)
	}
	if got := trimProcs("BenchmarkDecodeHS256"); got != "BenchmarkDecodeHS256" {
		t.Fatalf("trimProcs = %q", got)
	}
	if got := median([]float64{3, 1, 2, 4}); got != 2.5 {
		t.Fatalf("median = %v", got)
	}
}
