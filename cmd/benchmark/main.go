// Command benchmark runs the x86len decode benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv     Output results in CSV format (default: human-readable)
//	-json    Output results in JSON format
//	-cache   Serve lengths through the predecode cache
//	-passes  Timed passes per benchmark
//	-core    Run only the core benchmarks
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/x86len/benchmarks"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results in JSON format")
	useCache := flag.Bool("cache", false, "Serve lengths through the predecode cache")
	passes := flag.Int("passes", 10000, "Timed passes per benchmark")
	core := flag.Bool("core", false, "Run only the core benchmarks")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.EnableCache = *useCache
	config.Passes = *passes
	config.Verbose = *verbose
	config.Output = os.Stdout

	harness := benchmarks.NewHarness(config)
	if *core {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("x86len Decode Benchmark Harness")
		fmt.Println("===============================")
		fmt.Printf("Predecode cache: %v\n", config.EnableCache)
		fmt.Printf("Passes: %d\n", config.Passes)
		fmt.Println("")
	}

	results := harness.RunAll()

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
	}

	for _, r := range results {
		if !r.Valid {
			fmt.Fprintf(os.Stderr, "benchmark %s: unexpected instruction count %d\n", r.Name, r.Instructions)
			os.Exit(1)
		}
	}
}
