// Package main provides a profiling wrapper for lc5sim to identify performance bottlenecks.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/lc5sim/loader"
	"github.com/sarchlab/lc5sim/timing/config"
	"github.com/sarchlab/lc5sim/timing/core"
)

var (
	emulate    = flag.Bool("emulate", false, "Profile the reference interpreter instead of the pipeline")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	duration   = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	maxCycles  = flag.Uint64("max-cycles", 10_000_000, "max cycles to simulate (0 = unlimited)")
	repeat     = flag.Int("repeat", 1, "number of times to run the program")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <machine-code file>\n")
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

	prog, err := loader.Load(programPath, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s\n", programPath)
	fmt.Printf("Words: %d\n", prog.Len())

	cfg := config.DefaultConfig()
	cfg.Trace = false
	cfg.MaxCycles = *maxCycles

	start := time.Now()

	// Set timeout
	go func() {
		time.Sleep(*duration)
		fmt.Printf("\nTimeout reached after %v - stopping execution\n", *duration)
		os.Exit(2)
	}()

	var cycles, instrCount uint64
	for i := 0; i < *repeat; i++ {
		c, err := core.NewCore(prog, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if *emulate {
			n, err := runEmulationProfile(c)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Simulation error: %v\n", err)
				os.Exit(2)
			}
			instrCount += n
			continue
		}

		result, err := c.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Simulation error: %v\n", err)
			os.Exit(2)
		}
		cycles += result.Cycles
		instrCount += result.Stats.Instructions
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
	fmt.Printf("Runs: %d\n", *repeat)
	if !*emulate {
		fmt.Printf("Cycles simulated: %d\n", cycles)
	}
	fmt.Printf("Instructions executed: %d\n", instrCount)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if cycles > 0 {
		fmt.Printf("Cycles/second: %.0f\n", float64(cycles)/elapsed.Seconds())
	}
	if instrCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}
}

// runEmulationProfile runs the program on the reference interpreter.
func runEmulationProfile(c *core.Core) (uint64, error) {
	emulator, err := c.RunReference()
	if err != nil {
		return 0, err
	}
	return emulator.InstructionCount(), nil
}
