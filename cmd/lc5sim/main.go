// Package main provides the entry point for lc5sim.
// lc5sim is a cycle-accurate simulator of a 5-stage pipelined LC-2K machine.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/lc5sim/loader"
	"github.com/sarchlab/lc5sim/timing/config"
	"github.com/sarchlab/lc5sim/timing/core"
	"github.com/sarchlab/lc5sim/timing/pipeline"
	"github.com/sarchlab/lc5sim/trace"
)

// Exit codes.
const (
	exitOK    = 0
	exitUsage = 1
	exitFault = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	maxCycles  uint64
	emulate    bool
	icache     bool
	dcache     bool
	strict     bool
	trace      bool
	stats      bool
	verbosity  int
}

func parseFlags(args []string, stderr io.Writer) (*flag.FlagSet, *options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("lc5sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to run configuration (JSON or YAML)")
	fs.Uint64Var(&opts.maxCycles, "max-cycles", 0, "Stop after this many cycles (0 = unlimited)")
	fs.BoolVar(&opts.emulate, "emulate", false, "Run the non-pipelined reference interpreter instead")
	fs.BoolVar(&opts.icache, "icache", false, "Profile instruction fetches with an I-cache model")
	fs.BoolVar(&opts.dcache, "dcache", false, "Profile loads and stores with a D-cache model")
	fs.BoolVar(&opts.strict, "strict", false, "Fail when a JALR or data word retires")
	fs.BoolVar(&opts.trace, "trace", true, "Print the machine state before every cycle")
	fs.BoolVar(&opts.stats, "stats", false, "Print pipeline statistics after the run")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: lc5sim [options] <machine-code file>\n")
		_, _ = fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, nil, errors.New("expected exactly one machine-code file")
	}

	return fs, opts, nil
}

// loadConfig reads the config file, if any, and applies the flags that were
// set explicitly on the command line.
func loadConfig(fs *flag.FlagSet, opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-cycles":
			cfg.MaxCycles = opts.maxCycles
		case "icache":
			cfg.ICache.Enabled = opts.icache
		case "dcache":
			cfg.DCache.Enabled = opts.dcache
		case "strict":
			cfg.StrictOpcodes = opts.strict
		case "trace":
			cfg.Trace = opts.trace
		}
	})

	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		_, _ = fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: verbosity})
}

func run(args []string, stdout, stderr io.Writer) int {
	fs, opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger := newLogger(stderr, opts.verbosity)

	cfg, err := loadConfig(fs, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return exitUsage
	}

	programPath := fs.Arg(0)
	prog, err := loader.Load(programPath, cfg.MemoryWords)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return exitUsage
	}
	logger.V(1).Info("loaded program", "path", programPath, "words", prog.Len())

	printer := trace.NewPrinter(stdout)
	printer.PrintProgram(prog)

	if opts.emulate {
		return runEmulation(prog, cfg, logger, stdout, stderr)
	}
	return runTiming(prog, cfg, printer, logger, opts.stats, stdout, stderr)
}

// runEmulation runs the program on the reference interpreter.
func runEmulation(
	prog *loader.Program,
	cfg *config.Config,
	logger logr.Logger,
	stdout, stderr io.Writer,
) int {
	c, err := core.NewCore(prog, cfg, core.WithLogger(logger))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	emulator, err := c.RunReference()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Simulation error: %v\n", err)
		return exitFault
	}

	_, _ = fmt.Fprintf(stdout, "machine halted\n")
	_, _ = fmt.Fprintf(stdout, "total of %d instructions executed\n", emulator.InstructionCount())
	for i, v := range emulator.RegFile().R {
		_, _ = fmt.Fprintf(stdout, "\treg[ %d ] %d\n", i, v)
	}

	return exitOK
}

// runTiming runs the program on the pipeline.
func runTiming(
	prog *loader.Program,
	cfg *config.Config,
	printer *trace.Printer,
	logger logr.Logger,
	showStats bool,
	stdout, stderr io.Writer,
) int {
	coreOpts := []core.Option{core.WithLogger(logger)}
	if cfg.Trace {
		coreOpts = append(coreOpts, core.WithObserver(printer))
	}

	c, err := core.NewCore(prog, cfg, coreOpts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	result, err := c.Run()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Simulation error: %v\n", err)
		return exitFault
	}

	printer.PrintHalt(result.Cycles)
	if err := printer.Err(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error writing trace: %v\n", err)
		return exitUsage
	}

	if showStats {
		printStats(stdout, prog.Source, result.Stats)
	}

	return exitOK
}

func printStats(w io.Writer, programPath string, stats pipeline.Statistics) {
	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Program: %s\n", programPath)
	_, _ = fmt.Fprintf(w, "Total Instructions: %d\n", stats.Instructions)
	_, _ = fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(w, "CPI: %.2f\n", stats.CPI())
	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Pipeline Events:\n")
	_, _ = fmt.Fprintf(w, "  Stalls:             %d\n", stats.Stalls)
	_, _ = fmt.Fprintf(w, "  Squashes:           %d\n", stats.Squashes)
	_, _ = fmt.Fprintf(w, "  Squashed slots:     %d\n", stats.SquashedSlots)
	_, _ = fmt.Fprintf(w, "  Forwarded operands: %d\n", stats.ForwardedOperands)
	_, _ = fmt.Fprintf(w, "  Unsupported ops:    %d\n", stats.UnsupportedOps)

	if stats.ICache.Reads > 0 {
		_, _ = fmt.Fprintf(w, "\nI-Cache: %d hits, %d misses (%.1f%% hit rate)\n",
			stats.ICache.Hits, stats.ICache.Misses, stats.ICache.HitRate())
	}
	if stats.DCache.Reads+stats.DCache.Writes > 0 {
		_, _ = fmt.Fprintf(w, "D-Cache: %d hits, %d misses (%.1f%% hit rate)\n",
			stats.DCache.Hits, stats.DCache.Misses, stats.DCache.HitRate())
	}
}
