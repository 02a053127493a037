// Command perf-regression compares two `go test -bench` outputs and fails
// when a tracked issue or consume benchmark got slower than the threshold.
//
//	go test -run '^$' -bench 'Issue|Consume|Decode' -count 6 ./ ./token > new.txt
//	perf-regression -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

const defaultThreshold = 0.30

const defaultTracked = "BenchmarkIssue=ns/op,allocs/op;" +
	"BenchmarkConsume=ns/op,allocs/op;" +
	"BenchmarkConsumeReplay=ns/op;" +
	"BenchmarkDecodeHS256=ns/op,allocs/op"

// tracked maps a benchmark name to the units compared for it.
type tracked map[string][]string

// samples maps benchmark name and unit to every observed value.
type samples map[string]map[string][]float64

func main() {
	var (
		baselinePath  string
		candidatePath string
		trackSpec     string
		threshold     float64
	)

	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.StringVar(&trackSpec, "track", defaultTracked, "tracked benchmarks as Name=unit,unit;Name=unit")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}
	track, err := parseTracked(trackSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "-track: %v\n", err)
		os.Exit(2)
	}

	baseline, err := readFile(baselinePath, track)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := readFile(candidatePath, track)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	failures := compare(os.Stdout, track, baseline, candidate, threshold)
	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, failure := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", failure)
		}
		os.Exit(1)
	}
}

func parseTracked(spec string) (tracked, error) {
	out := tracked{}
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, units, ok := strings.Cut(entry, "=")
		if !ok || name == "" || units == "" {
			return nil, fmt.Errorf("entry %q is not Name=unit[,unit]", entry)
		}
		for _, unit := range strings.Split(units, ",") {
			if unit = strings.TrimSpace(unit); unit != "" {
				out[strings.TrimSpace(name)] = append(out[strings.TrimSpace(name)], unit)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no benchmarks tracked")
	}
	return out, nil
}

func readFile(path string, track tracked) (samples, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseBenchmarks(file, track)
}

// parseBenchmarks collects value/unit pairs of tracked benchmark lines.
func parseBenchmarks(r io.Reader, track tracked) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}

		name := trimProcs(fields[0])
		if _, ok := track[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], value)
		}
	}
	return out, scanner.Err()
}

// compare prints a delta table and returns one message per violation.
func compare(w io.Writer, track tracked, baseline, candidate samples, threshold float64) []string {
	names := make([]string, 0, len(track))
	for name := range track {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "benchmark\tunit\tbaseline\tcandidate\tdelta")

	var failures []string
	for _, name := range names {
		for _, unit := range track[name] {
			base, cand := baseline[name][unit], candidate[name][unit]
			if len(base) == 0 || len(cand) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}
			baseMedian, candMedian := median(base), median(cand)
			if baseMedian <= 0 {
				if candMedian > 0 {
					failures = append(failures, fmt.Sprintf("%s %s grew from zero to %.0f", name, unit, candMedian))
				}
				fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t-\n", name, unit, baseMedian, candMedian)
				continue
			}
			delta := (candMedian - baseMedian) / baseMedian
			fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%+0.2f%%\n", name, unit, baseMedian, candMedian, delta*100)
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, delta*100, threshold*100))
			}
		}
	}
	_ = tw.Flush()
	return failures
}

// trimProcs strips the -GOMAXPROCS suffix go test appends to names.
func trimProcs(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
