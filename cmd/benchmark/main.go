// Command benchmark runs the lc5sim timing benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags] [machine-code files...]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results as a JSON report
//	-no-icache  Disable instruction fetch profiling
//	-no-dcache  Disable load/store profiling
//
// Without file arguments the built-in microbenchmarks are run. Every run is
// checked against the reference interpreter; the command exits 1 if any run
// fails.
//
// Example:
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/lc5sim/benchmarks"
)

func main() {
	// Parse flags
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	noICache := flag.Bool("no-icache", false, "Disable instruction fetch profiling")
	noDCache := flag.Bool("no-dcache", false, "Disable load/store profiling")
	maxCycles := flag.Uint64("max-cycles", 1_000_000, "Cycle limit per run (0 = unlimited)")
	parallel := flag.Int("parallel", 0, "Benchmarks run at once (0 = all)")
	verbosity := flag.Int("v", 0, "Log verbosity")
	flag.Parse()

	// Configure harness
	config := benchmarks.DefaultConfig()
	config.EnableICache = !*noICache
	config.EnableDCache = !*noDCache
	config.MaxCycles = *maxCycles
	config.Parallelism = *parallel
	config.Output = os.Stdout
	config.Logger = funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, prefix, args)
	}, funcr.Options{Verbosity: *verbosity})

	harness := benchmarks.NewHarness(config)
	if flag.NArg() == 0 {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}
	for _, path := range flag.Args() {
		if err := harness.AddProgramFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
			os.Exit(1)
		}
	}

	// Print configuration
	if !*csvOutput && !*jsonOutput {
		fmt.Println("lc5sim Timing Benchmark Harness")
		fmt.Println("===============================")
		fmt.Printf("I-Cache: %v\n", config.EnableICache)
		fmt.Printf("D-Cache: %v\n", config.EnableDCache)
		fmt.Println("")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Run benchmarks
	results, err := harness.RunAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark run aborted: %v\n", err)
		os.Exit(1)
	}

	// Output results
	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)

		summary := benchmarks.Summarize(results)
		fmt.Println("=== Summary ===")
		fmt.Printf("Benchmarks: %d (%d failed)\n", summary.TotalBenchmarks, summary.Failed)
		fmt.Printf("Total cycles: %d\n", summary.TotalCycles)
		fmt.Printf("Average CPI: %.3f\n", summary.AverageCPI)
	}

	if benchmarks.Summarize(results).Failed > 0 {
		os.Exit(1)
	}
}
