// Package benchmarks provides timing benchmark infrastructure for the
// pipelined LC-2K simulator.
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/lc5sim/loader"
	"github.com/sarchlab/lc5sim/timing/config"
	"github.com/sarchlab/lc5sim/timing/core"
	"github.com/sarchlab/lc5sim/timing/pipeline"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count from the timing simulator
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of completed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// StallCycles is the number of load-use stall cycles
	StallCycles uint64 `json:"stall_cycles"`

	// Squashes is the number of taken branches
	Squashes uint64 `json:"squashes"`

	// SquashedSlots is the number of wrong-path instructions discarded
	SquashedSlots uint64 `json:"squashed_slots"`

	// ForwardedOperands is the number of operands bypassed from a pipeline register
	ForwardedOperands uint64 `json:"forwarded_operands"`

	// UnsupportedOps is the number of retired JALR and data words
	UnsupportedOps uint64 `json:"unsupported_ops,omitempty"`

	// ICacheHits/Misses (if cache enabled)
	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`

	// DCacheHits/Misses (if cache enabled)
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	// Branch predictor stats
	BranchPredictions     uint64  `json:"branch_predictions,omitempty"`
	BranchCorrect         uint64  `json:"branch_correct,omitempty"`
	BranchMispredictions  uint64  `json:"branch_mispredictions,omitempty"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent,omitempty"`

	// Verified is true when the final state matched the reference
	// interpreter and the expected registers.
	Verified bool `json:"verified"`

	// Error describes why the run or its verification failed.
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Program is the machine-code image to execute
	Program *loader.Program

	// ExpectedRegs lists register values the final state must hold.
	ExpectedRegs map[uint8]int32
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableICache enables instruction fetch profiling
	EnableICache bool

	// EnableDCache enables load/store profiling
	EnableDCache bool

	// MaxCycles bounds every run. 0 means no limit.
	MaxCycles uint64

	// Parallelism is the number of benchmarks run at once. Values <= 0
	// run all of them at once.
	Parallelism int

	// Verify compares every final state with the reference interpreter.
	Verify bool

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives per-run diagnostics.
	Logger logr.Logger
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableICache: true,
		EnableDCache: true,
		MaxCycles:    1_000_000,
		Verify:       true,
		Output:       os.Stdout,
		Logger:       logr.Discard(),
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
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
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

// AddProgramFile loads a machine-code file and adds it as a benchmark named
// after the file.
func (h *Harness) AddProgramFile(path string) error {
	prog, err := loader.Load(path, 0)
	if err != nil {
		return err
	}

	h.AddBenchmark(Benchmark{
		Name:        path,
		Description: "machine-code file",
		Program:     prog,
	})

	return nil
}

// RunAll executes all benchmarks concurrently and returns their results in
// the order the benchmarks were added. A benchmark that fails records the
// failure in its result; RunAll itself only fails when ctx is cancelled.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, len(h.benchmarks))

	g, ctx := errgroup.WithContext(ctx)
	if h.config.Parallelism > 0 {
		g.SetLimit(h.config.Parallelism)
	}

	for i, bench := range h.benchmarks {
		i, bench := i, bench
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = h.runBenchmark(bench)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (h *Harness) coreConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxCycles = h.config.MaxCycles
	cfg.Trace = false
	cfg.ICache.Enabled = h.config.EnableICache
	cfg.DCache.Enabled = h.config.EnableDCache
	return cfg
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		RunID:       xid.New().String(),
		Name:        bench.Name,
		Description: bench.Description,
	}
	logger := h.config.Logger.WithValues("benchmark", bench.Name, "run", result.RunID)

	c, err := core.NewCore(bench.Program, h.coreConfig(), core.WithLogger(logger))
	if err != nil {
		result.Error = err.Error()
		return result
	}

	// Run simulation and measure time
	start := time.Now()
	run, err := c.Run()
	result.WallTime = time.Since(start)

	collectStats(&result, run.Stats)

	if err != nil {
		result.Error = err.Error()
		logger.Error(err, "benchmark failed")
		return result
	}

	if err := checkRegisters(bench, run.State); err != nil {
		result.Error = err.Error()
		return result
	}

	if h.config.Verify {
		if err := c.Verify(run); err != nil {
			result.Error = err.Error()
			return result
		}
	}

	result.Verified = true
	logger.V(1).Info("benchmark complete", "cycles", result.SimulatedCycles, "cpi", result.CPI)

	return result
}

func collectStats(result *BenchmarkResult, stats pipeline.Statistics) {
	result.SimulatedCycles = stats.Cycles
	result.InstructionsRetired = stats.Instructions
	result.CPI = stats.CPI()
	result.StallCycles = stats.Stalls
	result.Squashes = stats.Squashes
	result.SquashedSlots = stats.SquashedSlots
	result.ForwardedOperands = stats.ForwardedOperands
	result.UnsupportedOps = stats.UnsupportedOps

	result.ICacheHits = stats.ICache.Hits
	result.ICacheMisses = stats.ICache.Misses
	result.DCacheHits = stats.DCache.Hits
	result.DCacheMisses = stats.DCache.Misses

	result.BranchPredictions = stats.Branch.Predictions
	result.BranchCorrect = stats.Branch.Correct
	result.BranchMispredictions = stats.Branch.Mispredictions
	result.BranchAccuracyPercent = stats.Branch.Accuracy()
}

func checkRegisters(bench Benchmark, state *pipeline.State) error {
	for reg, want := range bench.ExpectedRegs {
		if got := state.Reg.ReadReg(reg); got != want {
			return fmt.Errorf("reg[%d] = %d, want %d", reg, got, want)
		}
	}
	return nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== LC-2K Pipeline Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Run ID: %s\n", r.RunID)
		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(h.config.Output, "  Stall Cycles:         %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Squashes:             %d\n", r.Squashes)
		_, _ = fmt.Fprintf(h.config.Output, "  Squashed Slots:       %d\n", r.SquashedSlots)
		_, _ = fmt.Fprintf(h.config.Output, "  Forwarded Operands:   %d\n", r.ForwardedOperands)
		if r.UnsupportedOps > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Unsupported Ops:      %d\n", r.UnsupportedOps)
		}

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.ICacheMisses)
		}

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.DCacheMisses)
		}

		if r.BranchPredictions > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- Branch Predictor ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Predictions:     %d\n", r.BranchPredictions)
			_, _ = fmt.Fprintf(h.config.Output, "  Correct:         %d\n", r.BranchCorrect)
			_, _ = fmt.Fprintf(h.config.Output, "  Mispredictions:  %d\n", r.BranchMispredictions)
			_, _ = fmt.Fprintf(h.config.Output, "  Accuracy:        %.1f%%\n", r.BranchAccuracyPercent)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Verified: %t\n", r.Verified)
		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,run_id,cycles,instructions,cpi,stalls,squashes,squashed_slots,forwarded,icache_hits,icache_misses,dcache_hits,dcache_misses,verified")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%t\n",
			r.Name,
			r.RunID,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.Squashes,
			r.SquashedSlots,
			r.ForwardedOperands,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.Verified,
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

	// Version of the simulator
	Version string `json:"version"`

	// Config describes the benchmark configuration
	Config BenchmarkConfig `json:"config"`
}

// BenchmarkConfig describes the harness configuration used.
type BenchmarkConfig struct {
	ICacheEnabled bool   `json:"icache_enabled"`
	DCacheEnabled bool   `json:"dcache_enabled"`
	MaxCycles     uint64 `json:"max_cycles"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// Failed is the number of benchmarks that did not verify
	Failed int `json:"failed"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// TotalInstructions is the sum of all instructions retired
	TotalInstructions uint64 `json:"total_instructions"`

	// AverageCPI is the average cycles per instruction
	AverageCPI float64 `json:"average_cpi"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Version is reported in JSON benchmark reports.
const Version = "0.1.0"

// Summarize computes aggregate statistics over results.
func Summarize(results []BenchmarkResult) ReportSummary {
	summary := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		summary.TotalCycles += r.SimulatedCycles
		summary.TotalInstructions += r.InstructionsRetired
		summary.TotalWallTime += r.WallTime
		if !r.Verified {
			summary.Failed++
		}
	}

	if summary.TotalInstructions > 0 {
		summary.AverageCPI = float64(summary.TotalCycles) / float64(summary.TotalInstructions)
	}

	return summary
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config: BenchmarkConfig{
				ICacheEnabled: h.config.EnableICache,
				DCacheEnabled: h.config.EnableDCache,
				MaxCycles:     h.config.MaxCycles,
			},
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
