// Package benchmarks provides x86 microbenchmarks for calibrating the
// instruction latency and cache models.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"

	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/insts"
	"github.com/gregdivis/Aeon-sub003/timing/cache"
	"github.com/gregdivis/Aeon-sub003/timing/latency"
)

// Real-mode layout every benchmark runs in.
const (
	CodeSegment  uint16 = 0x0100
	DataSegment  uint16 = 0x0200
	StackSegment uint16 = 0x0300
	stackTop     uint16 = 0xFFFE
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is instruction cycles plus memory cycles
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// Instructions is the number of executed instructions
	Instructions uint64 `json:"instructions"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// MemoryCycles is the latency charged by the cache model
	MemoryCycles uint64 `json:"memory_cycles"`

	// Cache statistics (if the cache is enabled)
	CacheHits      uint64 `json:"cache_hits,omitempty"`
	CacheMisses    uint64 `json:"cache_misses,omitempty"`
	CacheEvictions uint64 `json:"cache_evictions,omitempty"`

	// ExitCode is the program's exit code
	ExitCode int64 `json:"exit_code"`

	// Err is set when the program did not exit cleanly
	Err string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares the emulator state (e.g., initialize registers, memory)
	Setup func(e *emu.Emulator)

	// Program is the 16-bit machine code, loaded at CodeSegment:0000
	Program []byte

	// ExpectedExit is the expected exit code (for validation)
	ExpectedExit int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Timing gives the per-class instruction costs
	Timing *latency.TimingConfig

	// EnableCache charges memory accesses through the cache model
	EnableCache bool

	// Cache is the cache geometry used when EnableCache is set
	Cache cache.Config

	// MaxInstructions bounds every run
	MaxInstructions uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Timing:          latency.DefaultTimingConfig(),
		EnableCache:     true,
		Cache:           cache.DefaultConfig(),
		MaxInstructions: 1_000_000,
		Output:          os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Timing == nil {
		config.Timing = latency.DefaultTimingConfig()
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
		results = append(results, h.runBenchmark(bench))
	}

	return results
}

// runBenchmark executes a single benchmark on a fresh machine.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	var memory emu.Memory = emu.NewPhysicalMemory(emu.DefaultMemorySize)
	var timed *cache.TimedMemory
	if h.config.EnableCache {
		timed = cache.NewTimedMemory(memory, cache.New(h.config.Cache))
		memory = timed
	}

	dos := emu.NewDOSServices(nil, io.Discard, io.Discard, logr.Discard())
	e := emu.NewEmulator(
		emu.WithMemory(memory),
		emu.WithLatencyTable(latency.NewTableWithConfig(h.config.Timing)),
		emu.WithInterruptHandler(emu.VectorDOS, dos),
		emu.WithMaxInstructions(h.config.MaxInstructions),
	)

	p := e.Processor()
	p.SetSegment(insts.CS, CodeSegment)
	p.SetSegment(insts.DS, DataSegment)
	p.SetSegment(insts.ES, DataSegment)
	p.SetSegment(insts.SS, StackSegment)
	p.SetReg16(insts.ESP, stackTop)
	e.Load(uint32(CodeSegment)<<4, bench.Program)

	if bench.Setup != nil {
		bench.Setup(e)
	}
	if timed != nil {
		timed.Reset()
	}

	start := time.Now()
	run := e.Run()
	wallTime := time.Since(start)

	result := BenchmarkResult{
		Name:            bench.Name,
		Description:     bench.Description,
		SimulatedCycles: e.Cycles(),
		Instructions:    e.InstructionCount(),
		ExitCode:        run.ExitCode,
		WallTime:        wallTime,
	}
	switch {
	case run.Err != nil:
		result.Err = run.Err.Error()
	case !run.Exited:
		result.Err = "program halted without exiting"
	}

	if timed != nil {
		stats := timed.Cache().Stats()
		result.MemoryCycles = timed.Cycles()
		result.SimulatedCycles += result.MemoryCycles
		result.CacheHits = stats.Hits
		result.CacheMisses = stats.Misses
		result.CacheEvictions = stats.Evictions
	}
	if result.Instructions > 0 {
		result.CPI = float64(result.SimulatedCycles) / float64(result.Instructions)
	}

	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== Aeon Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Exit Code: %d\n", r.ExitCode)
		if r.Err != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Err)
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles: %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions:     %d\n", r.Instructions)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:              %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(h.config.Output, "  Memory Cycles:    %d\n", r.MemoryCycles)

		if r.CacheHits > 0 || r.CacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:      %d\n", r.CacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses:    %d\n", r.CacheMisses)
			_, _ = fmt.Fprintf(h.config.Output, "  Evictions: %d\n", r.CacheEvictions)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,memory_cycles,cache_hits,cache_misses,cache_evictions,exit_code")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.Instructions,
			r.CPI,
			r.MemoryCycles,
			r.CacheHits,
			r.CacheMisses,
			r.CacheEvictions,
			r.ExitCode,
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

	// Timing is the latency table used
	Timing *latency.TimingConfig `json:"timing"`

	// Cache is the cache geometry, if the cache was enabled
	Cache *cache.Config `json:"cache,omitempty"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// TotalInstructions is the sum of all executed instructions
	TotalInstructions uint64 `json:"total_instructions"`

	// AverageCPI is the average cycles per instruction
	AverageCPI float64 `json:"average_cpi"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	var totalCycles, totalInstructions uint64
	var totalWallTime time.Duration
	for _, r := range results {
		totalCycles += r.SimulatedCycles
		totalInstructions += r.Instructions
		totalWallTime += r.WallTime
	}

	avgCPI := float64(0)
	if totalInstructions > 0 {
		avgCPI = float64(totalCycles) / float64(totalInstructions)
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Timing:    h.config.Timing,
		},
		Results: results,
		Summary: ReportSummary{
			TotalBenchmarks:   len(results),
			TotalCycles:       totalCycles,
			TotalInstructions: totalInstructions,
			AverageCPI:        avgCPI,
			TotalWallTime:     totalWallTime,
		},
	}
	if h.config.EnableCache {
		c := h.config.Cache
		report.Metadata.Cache = &c
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
