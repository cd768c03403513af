// Package benchmarks provides decode throughput benchmarks for x86len.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/x86len/insts"
	"github.com/sarchlab/x86len/loader"
	"github.com/sarchlab/x86len/predecode"
	"github.com/sarchlab/x86len/scan"
)

// programAddr is where every benchmark program is loaded.
const programAddr = 0x1000

// BenchmarkResult holds the results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark exercises
	Description string `json:"description"`

	// Mode is the processor mode the program was decoded in
	Mode string `json:"mode"`

	// Instructions is the number of boundaries found in one pass
	Instructions int `json:"instructions"`

	// Bytes is the number of code bytes covered in one pass
	Bytes int `json:"bytes"`

	// Clamped is the number of instructions reported as clamped
	Clamped int `json:"clamped"`

	// Valid is set when Instructions matches the expected count
	Valid bool `json:"valid"`

	// Error holds the scan error, if any
	Error string `json:"error,omitempty"`

	// Passes is the number of timed passes over the program
	Passes int `json:"passes"`

	// NsPerInstruction is the average wall time per decoded instruction
	NsPerInstruction float64 `json:"ns_per_instruction"`

	// CacheHits/Misses (if the predecode cache is enabled)
	CacheHits   uint64 `json:"cache_hits,omitempty"`
	CacheMisses uint64 `json:"cache_misses,omitempty"`

	// WallTime is the time taken by the timed passes
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark exercises
	Description string

	// Mode is the processor mode to decode in
	Mode insts.Mode

	// Program is the x86 machine code to scan
	Program []byte

	// ExpectedInstructions is the instruction count under the default
	// decoder (for validation)
	ExpectedInstructions int
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableCache serves lengths through the predecode cache
	EnableCache bool

	// Cache is the predecode cache geometry
	Cache predecode.Config

	// Passes is the number of timed passes per benchmark
	Passes int

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableCache: false,
		Cache:       predecode.DefaultConfig(),
		Passes:      10000,
		Output:      os.Stdout,
		Verbose:     false,
	}
}

// Harness runs decode benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Passes <= 0 {
		config.Passes = 1
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result := h.runBenchmark(bench)
		results = append(results, result)
	}

	return results
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
		Mode:        bench.Mode.String(),
	}

	prog, err := loader.LoadRaw(bench.Program, programAddr, bench.Mode)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	decoder := insts.NewDecoder(bench.Mode)

	// One untimed pass for validation
	bounds, err := scan.Boundaries(bench.Program, programAddr, decoder)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	for _, b := range bounds {
		result.Bytes += b.Len
		if b.Clamped {
			result.Clamped++
		}
	}
	result.Instructions = len(bounds)
	result.Valid = result.Instructions == bench.ExpectedInstructions

	var cache *predecode.Cache
	if h.config.EnableCache {
		cache = predecode.New(h.config.Cache, decoder, prog)
	}

	visited := 0
	count := func(scan.Boundary) error {
		visited++
		return nil
	}

	start := time.Now()
	for pass := 0; pass < h.config.Passes; pass++ {
		if cache != nil {
			err = scan.WalkCached(prog, cache, count)
		} else {
			err = scan.WalkProgram(prog, decoder, count)
		}
		if err != nil {
			result.Error = err.Error()
			break
		}
	}
	result.WallTime = time.Since(start)
	result.Passes = h.config.Passes

	if visited > 0 {
		result.NsPerInstruction = float64(result.WallTime.Nanoseconds()) / float64(visited)
	}

	if cache != nil {
		stats := cache.Stats()
		result.CacheHits = stats.Hits
		result.CacheMisses = stats.Misses
	}

	if h.config.Verbose {
		_, _ = fmt.Fprintf(h.config.Output, "%s: %d instructions, %.1f ns/inst\n",
			result.Name, result.Instructions, result.NsPerInstruction)
	}

	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== x86len Decode Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Mode: %s\n", r.Mode)
		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions:     %d (valid: %v)\n", r.Instructions, r.Valid)
		_, _ = fmt.Fprintf(h.config.Output, "  Bytes:            %d\n", r.Bytes)
		_, _ = fmt.Fprintf(h.config.Output, "  Clamped:          %d\n", r.Clamped)
		_, _ = fmt.Fprintf(h.config.Output, "  Passes:           %d\n", r.Passes)
		_, _ = fmt.Fprintf(h.config.Output, "  ns/instruction:   %.2f\n", r.NsPerInstruction)

		if h.config.EnableCache {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Predecode Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.CacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.CacheMisses)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,mode,instructions,bytes,clamped,valid,passes,ns_per_instruction,cache_hits,cache_misses")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%d,%d,%d,%v,%d,%.3f,%d,%d\n",
			r.Name,
			r.Mode,
			r.Instructions,
			r.Bytes,
			r.Clamped,
			r.Valid,
			r.Passes,
			r.NsPerInstruction,
			r.CacheHits,
			r.CacheMisses,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Config describes the benchmark configuration
	Config BenchmarkConfig `json:"config"`
}

// BenchmarkConfig describes the harness configuration used.
type BenchmarkConfig struct {
	CacheEnabled bool `json:"cache_enabled"`
	Passes       int  `json:"passes"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// InvalidBenchmarks is the number of benchmarks whose instruction count
	// did not match
	InvalidBenchmarks int `json:"invalid_benchmarks"`

	// TotalInstructions is the sum of instructions found in one pass
	TotalInstructions int `json:"total_instructions"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	summary := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		summary.TotalInstructions += r.Instructions
		summary.TotalWallTime += r.WallTime
		if !r.Valid {
			summary.InvalidBenchmarks++
		}
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config: BenchmarkConfig{
				CacheEnabled: h.config.EnableCache,
				Passes:       h.config.Passes,
			},
		},
		Results: results,
		Summary: summary,
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
