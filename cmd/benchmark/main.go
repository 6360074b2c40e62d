// Command benchmark runs the Aeon x86 timing microbenchmarks.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv       Output results in CSV format (default: human-readable)
//	-json      Output a JSON report
//	-no-cache  Disable the cache model
//	-timing    Path to a timing configuration (JSON or YAML)
//	-core      Run only the core benchmarks
//
// Example:
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gregdivis/Aeon-sub003/benchmarks"
	"github.com/gregdivis/Aeon-sub003/timing/latency"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output a JSON report")
	noCache := flag.Bool("no-cache", false, "Disable the cache model")
	timingPath := flag.String("timing", "", "Path to timing configuration (JSON or YAML)")
	coreOnly := flag.Bool("core", false, "Run only the core benchmarks")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.EnableCache = !*noCache
	config.Output = os.Stdout
	if *timingPath != "" {
		t, err := latency.LoadConfig(*timingPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timing config: %v\n", err)
			os.Exit(1)
		}
		config.Timing = t
	}

	harness := benchmarks.NewHarness(config)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("Aeon Timing Benchmark Harness")
		fmt.Println("=============================")
		fmt.Printf("Cache: %v\n", config.EnableCache)
		fmt.Println("")
	}

	results := harness.RunAll()

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}

	for _, r := range results {
		if r.Err != "" {
			os.Exit(1)
		}
	}
}
