package benchmarks

import (
	"github.com/sarchlab/lc5sim/insts"
	"github.com/sarchlab/lc5sim/loader"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// targets a specific pipeline behavior.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		independentALU(),
		dependencyChain(),
		loadUseChain(),
		storeLoadRoundTrip(),
		branchLoop(),
	}
}

// BuildProgram wraps machine words into a program image.
func BuildProgram(name string, words ...int32) *loader.Program {
	return &loader.Program{
		Words:  words,
		Source: "builtin:" + name,
	}
}

func add(regA, regB, dest uint8) int32 {
	return insts.EncodeRType(insts.OpADD, regA, regB, dest)
}

func nand(regA, regB, dest uint8) int32 {
	return insts.EncodeRType(insts.OpNAND, regA, regB, dest)
}

func lw(regA, regB uint8, offset int32) int32 {
	return insts.EncodeIType(insts.OpLW, regA, regB, offset)
}

func sw(regA, regB uint8, offset int32) int32 {
	return insts.EncodeIType(insts.OpSW, regA, regB, offset)
}

func beq(regA, regB uint8, offset int32) int32 {
	return insts.EncodeIType(insts.OpBEQ, regA, regB, offset)
}

var (
	halt = insts.EncodeOType(insts.OpHALT)
	noop = insts.EncodeOType(insts.OpNOOP)
)

// 1. Independent ALU - no operand waits on the previous instruction
func independentALU() Benchmark {
	return Benchmark{
		Name:        "independent_alu",
		Description: "ALU operations with no back-to-back dependences - measures peak throughput",
		Program: BuildProgram("independent_alu",
			lw(0, 1, 8),
			lw(0, 2, 9),
			add(1, 1, 3),
			nand(2, 2, 4),
			add(1, 1, 5),
			nand(2, 2, 6),
			add(1, 2, 7),
			halt,
			5,
			7,
		),
		ExpectedRegs: map[uint8]int32{1: 5, 2: 7, 3: 10, 4: -8, 5: 10, 6: -8, 7: 12},
	}
}

// 2. Dependency Chain - every ADD consumes the previous result
func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "6 dependent ADDs (r1 = r1 + r1) - exercises EX/MEM forwarding",
		Program:      buildDependencyChain(6),
		ExpectedRegs: map[uint8]int32{1: 64},
	}
}

func buildDependencyChain(n int) *loader.Program {
	words := make([]int32, 0, n+4)
	dataAddr := int32(n + 3)
	words = append(words, lw(0, 1, dataAddr), noop)
	for i := 0; i < n; i++ {
		words = append(words, add(1, 1, 1))
	}
	words = append(words, halt, 1)
	return BuildProgram("dependency_chain", words...)
}

// 3. Load-Use Chain - each load is consumed by the next instruction
func loadUseChain() Benchmark {
	return Benchmark{
		Name:        "load_use_chain",
		Description: "3 load-use pairs - each costs one stall cycle",
		Program: BuildProgram("load_use_chain",
			lw(0, 1, 7),
			add(1, 1, 2),
			lw(0, 3, 7),
			add(3, 3, 4),
			lw(0, 5, 7),
			add(5, 5, 6),
			halt,
			3,
		),
		ExpectedRegs: map[uint8]int32{1: 3, 2: 6, 3: 3, 4: 6, 5: 3, 6: 6},
	}
}

// 4. Store/Load Round Trip - a load reads a word stored the cycle before
func storeLoadRoundTrip() Benchmark {
	return Benchmark{
		Name:        "store_load",
		Description: "store then reload the same word - exercises forwarding into SW and memory ordering",
		Program: BuildProgram("store_load",
			lw(0, 1, 7),
			add(1, 1, 2),
			sw(0, 2, 8),
			lw(0, 3, 8),
			add(3, 3, 4),
			sw(0, 4, 8),
			halt,
			9,
			0,
		),
		ExpectedRegs: map[uint8]int32{1: 9, 2: 18, 3: 18, 4: 36},
	}
}

// 5. Branch Loop - a countdown loop with a taken back edge
func branchLoop() Benchmark {
	return Benchmark{
		Name:        "branch_loop",
		Description: "countdown loop of 5 iterations - measures taken-branch squash cost",
		Program: BuildProgram("branch_loop",
			lw(0, 1, 7),
			lw(0, 2, 8),
			beq(0, 1, 3),
			add(1, 2, 1),
			beq(0, 0, -3),
			noop,
			halt,
			5,
			-1,
		),
		ExpectedRegs: map[uint8]int32{1: 0, 2: -1},
	}
}
