// Package main provides the entry point for lc5sim.
// lc5sim is a cycle-accurate simulator of a 5-stage pipelined LC-2K machine.
//
// For the full CLI, use: go run ./cmd/lc5sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("lc5sim - pipelined LC-2K simulator")
	fmt.Println("")
	fmt.Println("Usage: lc5sim [options] <machine-code file>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to run configuration (JSON or YAML)")
	fmt.Println("  -max-cycles  Stop after this many cycles")
	fmt.Println("  -emulate     Run the reference interpreter")
	fmt.Println("  -icache      Profile instruction fetches")
	fmt.Println("  -dcache      Profile loads and stores")
	fmt.Println("  -strict      Fail when a JALR or data word retires")
	fmt.Println("  -trace       Print the machine state before every cycle")
	fmt.Println("  -v           Log verbosity")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/lc5sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/lc5sim' instead.")
	}
}
