// Package main provides a profiling wrapper for x86len to identify decoder
// bottlenecks.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/x86len/insts"
	"github.com/sarchlab/x86len/loader"
	"github.com/sarchlab/x86len/predecode"
	"github.com/sarchlab/x86len/scan"
)

var (
	raw        = flag.Bool("raw", false, "Treat the input as a flat binary (64-bit, base 0)")
	useCache   = flag.Bool("cache", false, "Serve lengths through the predecode cache")
	prefixRuns = flag.Bool("prefix-runs", false, "Consume runs of legacy prefixes")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	duration   = flag.Duration("duration", 10*time.Second, "max duration to run (for profiling)")
	passes     = flag.Int("passes", 100, "number of passes over the executable segments")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <program>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	programPath := flag.Arg(0)

	prog, err := loadProgram(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s\n", programPath)
	fmt.Printf("Mode: %v\n", prog.Mode)
	fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)

	var opts []insts.DecoderOption
	if *prefixRuns {
		opts = append(opts, insts.WithPrefixRuns())
	}
	decoder := insts.NewDecoder(prog.Mode, opts...)

	var cache *predecode.Cache
	if *useCache {
		cache = predecode.New(predecode.DefaultConfig(), decoder, prog)
	}

	start := time.Now()
	deadline := start.Add(*duration)

	var instCount, byteCount uint64
	count := func(b scan.Boundary) error {
		instCount++
		byteCount += uint64(b.Len)
		return nil
	}

	completed := 0
	for completed < *passes && time.Now().Before(deadline) {
		if cache != nil {
			err = scan.WalkCached(prog, cache, count)
		} else {
			err = scan.WalkProgram(prog, decoder, count)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning program: %v\n", err)
			os.Exit(1)
		}
		completed++
	}

	elapsed := time.Since(start)

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Passes completed: %d\n", completed)
	fmt.Printf("Instructions decoded: %d\n", instCount)
	fmt.Printf("Bytes covered: %d\n", byteCount)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if instCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instCount)/elapsed.Seconds())
		fmt.Printf("MB/second: %.1f\n", float64(byteCount)/elapsed.Seconds()/(1<<20))
	}
	if cache != nil {
		stats := cache.Stats()
		fmt.Printf("Predecode hit rate: %.1f%% (%d evictions)\n", 100*stats.HitRate(), stats.Evictions)
	}
}

// loadProgram loads an ELF file, or a flat 64-bit image with -raw.
func loadProgram(path string) (*loader.Program, error) {
	if !*raw {
		return loader.Load(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw image: %w", err)
	}
	return loader.LoadRaw(data, 0, insts.Mode64)
}
