// Command perf-regression compares two `go test -bench` outputs and fails when a tracked
// benchmark's median regresses past the threshold.
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

	"github.com/hashicorp/go-multierror"
)

const defaultThreshold = 0.30

// defaultTracked covers dispatch with a live ticket, dispatch that recovers from one
// rejection, and local admission.
var defaultTracked = map[string][]string{
	"BenchmarkDispatch":                      {"ns/op", "allocs/op"},
	"BenchmarkDispatchParallel":              {"ns/op"},
	"BenchmarkDispatchReauth":                {"ns/op", "allocs/op"},
	"BenchmarkTokenBucketTryAcquire":         {"ns/op", "allocs/op"},
	"BenchmarkMetricsIncMixedParallelPadded": {"ns/op"},
}

type sampleSet map[string]map[string][]float64

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
		track         string
	)

	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.StringVar(&track, "track", "", "override tracked benchmarks, e.g. BenchmarkDispatch=ns/op,allocs/op;BenchmarkDispatchReauth=ns/op")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	tracked := defaultTracked
	if track != "" {
		var err error
		if tracked, err = parseTrack(track); err != nil {
			fmt.Fprintf(os.Stderr, "parse -track: %v\n", err)
			os.Exit(2)
		}
	}

	baseline, err := parseBenchmarkFile(baselinePath, tracked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseBenchmarkFile(candidatePath, tracked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	if err := compare(os.Stdout, tracked, baseline, candidate, threshold); err != nil {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func compare(out io.Writer, tracked map[string][]string, baseline, candidate sampleSet, threshold float64) error {
	var failures *multierror.Error

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BENCHMARK\tMETRIC\tBASELINE\tCANDIDATE\tDELTA")
	for _, benchmark := range sortedKeys(tracked) {
		for _, metric := range tracked[benchmark] {
			baseSamples := baseline[benchmark][metric]
			candidateSamples := candidate[benchmark][metric]
			if len(baseSamples) == 0 || len(candidateSamples) == 0 {
				failures = multierror.Append(failures, fmt.Errorf("missing samples for %s %s", benchmark, metric))
				continue
			}

			baseMedian := median(baseSamples)
			candidateMedian := median(candidateSamples)
			if baseMedian <= 0 {
				if candidateMedian > 0 {
					failures = multierror.Append(failures, fmt.Errorf("%s %s went from 0 to %.3f", benchmark, metric, candidateMedian))
				}
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t-\n", benchmark, metric, baseMedian, candidateMedian)
				continue
			}

			delta := (candidateMedian - baseMedian) / baseMedian
			fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%+0.2f%%\n", benchmark, metric, baseMedian, candidateMedian, delta*100)
			if delta > threshold {
				failures = multierror.Append(failures,
					fmt.Errorf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", benchmark, metric, delta*100, threshold*100))
			}
		}
	}
	_ = w.Flush()
	return failures.ErrorOrNil()
}

func parseTrack(spec string) (map[string][]string, error) {
	tracked := map[string][]string{}
	for _, entry := range strings.Split(spec, ";") {
		name, units, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || name == "" || units == "" {
			return nil, fmt.Errorf("entry %q: want Name=unit[,unit]", entry)
		}
		tracked[name] = strings.Split(units, ",")
	}
	return tracked, nil
}

func parseBenchmarkFile(path string, tracked map[string][]string) (sampleSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	samples := sampleSet{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := normalizeBenchmarkName(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}

		if _, ok := samples[name]; !ok {
			samples[name] = map[string][]float64{}
		}

		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			unit := fields[i+1]
			samples[name][unit] = append(samples[name][unit], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// normalizeBenchmarkName strips the -GOMAXPROCS suffix.
func normalizeBenchmarkName(raw string) string {
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

	copied := make([]float64, len(values))
	copy(copied, values)
	sort.Float64s(copied)

	mid := len(copied) / 2
	if len(copied)%2 == 1 {
		return copied[mid]
	}
	return (copied[mid-1] + copied[mid]) / 2
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
