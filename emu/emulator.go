package emu

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/lc5sim/insts"
)

var (
	// ErrPCOutOfRange is returned when the program counter leaves memory.
	ErrPCOutOfRange = errors.New("pc outside memory")

	// ErrInstructionLimit is returned when the instruction budget is spent
	// before a HALT executes.
	ErrInstructionLimit = errors.New("max instructions reached")
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Halted is true if the instruction was HALT.
	Halted bool

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes LC-2K instructions one at a time, without a pipeline.
// It is the reference model the pipelined engine is checked against.
type Emulator struct {
	regFile RegFile
	memory  *Memory
	pc      int32
	logger  logr.Logger

	// Execution state
	instructionCount uint64
	unsupported      uint64
	maxInstructions  uint64 // 0 means no limit
	halted           bool
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger logr.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.logger = logger
	}
}

// WithPC sets the initial program counter.
func WithPC(pc int32) EmulatorOption {
	return func(e *Emulator) {
		e.pc = pc
	}
}

// NewEmulator creates an emulator that executes the program in memory,
// starting at address 0. The emulator takes ownership of memory.
func NewEmulator(memory *Memory, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		memory: memory,
		logger: logr.Discard(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return &e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// PC returns the address of the next instruction.
func (e *Emulator) PC() int32 {
	return e.pc
}

// InstructionCount returns the number of instructions executed, HALT included.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// UnsupportedCount returns how many JALR or data words were executed as
// no-ops.
func (e *Emulator) UnsupportedCount() uint64 {
	return e.unsupported
}

// Halted returns true once a HALT has executed.
func (e *Emulator) Halted() bool {
	return e.halted
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.halted {
		return StepResult{Halted: true}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrInstructionLimit}
	}

	if !e.memory.inRange(e.pc) {
		return StepResult{Err: fmt.Errorf("%w: pc=%d", ErrPCOutOfRange, e.pc)}
	}

	inst := insts.Decode(e.memory.words[e.pc])
	result := e.execute(inst)
	if result.Err != nil {
		return result
	}

	e.instructionCount++
	return result
}

// Run executes instructions until HALT or an error.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Err != nil {
			return result.Err
		}
		if result.Halted {
			return nil
		}
	}
}

// execute dispatches a decoded instruction.
func (e *Emulator) execute(inst insts.Instruction) StepResult {
	a := e.regFile.ReadReg(inst.RegA)
	b := e.regFile.ReadReg(inst.RegB)
	aluResult := ALU(inst, a, b)
	nextPC := e.pc + 1

	switch inst.Op {
	case insts.OpADD, insts.OpNAND:
		dest, _ := inst.Dest()
		e.regFile.WriteReg(dest, aluResult)
	case insts.OpLW:
		value, err := e.memory.Read(aluResult)
		if err != nil {
			return StepResult{Err: fmt.Errorf("pc=%d: %w", e.pc, err)}
		}
		e.regFile.WriteReg(inst.RegB, value)
	case insts.OpSW:
		if err := e.memory.Write(aluResult, b); err != nil {
			return StepResult{Err: fmt.Errorf("pc=%d: %w", e.pc, err)}
		}
	case insts.OpBEQ:
		if aluResult == 1 {
			nextPC = BranchTarget(nextPC, inst.Offset())
		}
	case insts.OpHALT:
		e.halted = true
	case insts.OpNOOP:
	case insts.OpJALR, insts.OpData:
		e.unsupported++
		e.logger.V(1).Info("unsupported instruction executed as noop",
			"pc", e.pc, "inst", inst.String())
	}

	e.pc = nextPC
	return StepResult{Halted: e.halted}
}
