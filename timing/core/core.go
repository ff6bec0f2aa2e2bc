// Package core provides the cycle-accurate LC-2K core model.
// It wraps the pipeline implementation to provide a high-level interface:
// a loaded program and a run configuration in, a run result out.
package core

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"

	"github.com/sarchlab/lc5sim/emu"
	"github.com/sarchlab/lc5sim/loader"
	"github.com/sarchlab/lc5sim/timing/config"
	"github.com/sarchlab/lc5sim/timing/pipeline"
)

// ErrReferenceMismatch is returned by Verify when the pipelined run and the
// reference interpreter disagree on the final architectural state.
var ErrReferenceMismatch = errors.New("pipeline diverged from reference")

// Result is the outcome of a pipelined run.
type Result struct {
	// Cycles is the number of committed cycles.
	Cycles uint64
	// Stats holds the pipeline statistics.
	Stats pipeline.Statistics
	// State is the final committed state.
	State *pipeline.State
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger passed to the pipeline and the reference
// interpreter.
func WithLogger(logger logr.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithObserver registers a pipeline observer, such as a tracer.
func WithObserver(o pipeline.Observer) Option {
	return func(c *Core) {
		c.observers = append(c.observers, o)
	}
}

// Core represents a cycle-accurate LC-2K core model.
// It wraps a 5-stage pipeline and provides a simple interface for simulation.
type Core struct {
	// Pipeline is the underlying 5-stage pipeline.
	Pipeline *pipeline.Pipeline

	program   *loader.Program
	config    *config.Config
	image     *emu.Memory
	logger    logr.Logger
	observers []pipeline.Observer
}

// NewCore builds memory from the program image, padded to cfg.MemoryWords,
// and a pipeline configured by cfg. A nil cfg means config.DefaultConfig().
func NewCore(prog *loader.Program, cfg *config.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	image, err := emu.NewMemoryFromImage(prog.Words, cfg.MemoryWords)
	if err != nil {
		return nil, err
	}

	c := &Core{
		program: prog,
		config:  cfg.Clone(),
		image:   image,
		logger:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Pipeline = pipeline.NewPipeline(image, c.pipelineOptions()...)

	return c, nil
}

func (c *Core) pipelineOptions() []pipeline.PipelineOption {
	opts := []pipeline.PipelineOption{
		pipeline.WithLogger(c.logger.WithName("pipeline")),
		pipeline.WithMaxCycles(c.config.MaxCycles),
	}

	if c.config.StrictOpcodes {
		opts = append(opts, pipeline.WithStrictOpcodes())
	}
	if c.config.ICache.Enabled {
		opts = append(opts, pipeline.WithICacheProbe(c.config.ICache.Config))
	}
	if c.config.DCache.Enabled {
		opts = append(opts, pipeline.WithDCacheProbe(c.config.DCache.Config))
	}
	for _, o := range c.observers {
		opts = append(opts, pipeline.WithObserver(o))
	}

	return opts
}

// Program returns the loaded program.
func (c *Core) Program() *loader.Program {
	return c.program
}

// Memory returns the initial memory image. Runs never modify it.
func (c *Core) Memory() *emu.Memory {
	return c.image
}

// Tick executes one pipeline cycle.
func (c *Core) Tick() error {
	return c.Pipeline.Tick()
}

// Halted returns true if the core has stopped.
func (c *Core) Halted() bool {
	return c.Pipeline.Halted()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() pipeline.Statistics {
	return c.Pipeline.Stats()
}

// Run executes the core until HALT retires. On error the result still
// describes the last committed state.
func (c *Core) Run() (Result, error) {
	err := c.Pipeline.Run()

	result := Result{
		Cycles: c.Pipeline.Cycles(),
		Stats:  c.Pipeline.Stats(),
		State:  c.Pipeline.State(),
	}

	if err != nil {
		return result, err
	}

	c.logger.V(1).Info("run complete",
		"program", c.program.Source,
		"cycles", result.Cycles,
		"instructions", result.Stats.Instructions,
		"cpi", result.Stats.CPI())

	return result, nil
}

// RunReference executes the same image on the non-pipelined reference
// interpreter. MaxCycles, when set, bounds the instruction count.
func (c *Core) RunReference() (*emu.Emulator, error) {
	e := emu.NewEmulator(c.image.Clone(),
		emu.WithLogger(c.logger.WithName("reference")),
		emu.WithMaxInstructions(c.config.MaxCycles),
	)

	if err := e.Run(); err != nil {
		return e, err
	}

	return e, nil
}

// Verify runs the reference interpreter and compares its registers and
// memory with the final state of result.
func (c *Core) Verify(result Result) error {
	ref, err := c.RunReference()
	if err != nil {
		return fmt.Errorf("reference run: %w", err)
	}

	if diff := cmp.Diff(ref.RegFile().R, result.State.Reg.R); diff != "" {
		return fmt.Errorf("%w: registers (-reference +pipeline):\n%s", ErrReferenceMismatch, diff)
	}

	if diff := cmp.Diff(ref.Memory().Words(), result.State.Mem.Words()); diff != "" {
		return fmt.Errorf("%w: memory (-reference +pipeline):\n%s", ErrReferenceMismatch, diff)
	}

	return nil
}
