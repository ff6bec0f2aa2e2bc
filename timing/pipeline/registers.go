// Package pipeline provides the 5-stage pipeline model for cycle-accurate
// simulation of LC-2K programs.
package pipeline

import (
	"github.com/sarchlab/lc5sim/emu"
	"github.com/sarchlab/lc5sim/insts"
)

// bubble is the decoded NOOP every latch holds before cycle 0 and after a
// stall or squash.
var bubble = insts.Decode(insts.NoopWord)

// IFIDRegister holds state between Fetch and Decode stages.
type IFIDRegister struct {
	// Inst is the fetched instruction.
	Inst insts.Instruction

	// PCPlus1 is the address after the fetched instruction.
	PCPlus1 int32
}

// Clear replaces the contents with a bubble.
func (r *IFIDRegister) Clear() {
	*r = IFIDRegister{Inst: bubble}
}

// IDEXRegister holds state between Decode and Execute stages.
type IDEXRegister struct {
	Inst    insts.Instruction
	PCPlus1 int32

	// Register values read in Decode, before forwarding.
	ReadRegA int32
	ReadRegB int32

	// Offset is the sign-extended offset field.
	Offset int32
}

// Clear replaces the contents with a bubble.
func (r *IDEXRegister) Clear() {
	*r = IDEXRegister{Inst: bubble}
}

// EXMEMRegister holds state between Execute and Memory stages.
type EXMEMRegister struct {
	Inst insts.Instruction

	// BranchTarget is pcPlus1 + offset, computed for every instruction.
	BranchTarget int32

	// ALUResult is the sum, nand, effective address or BEQ outcome.
	ALUResult int32

	// ReadRegB is the forwarded regB operand; SW stores it.
	ReadRegB int32
}

// Clear replaces the contents with a bubble.
func (r *EXMEMRegister) Clear() {
	*r = EXMEMRegister{Inst: bubble}
}

// MEMWBRegister holds state between Memory and Writeback stages.
type MEMWBRegister struct {
	Inst insts.Instruction

	// WriteData is the loaded word for LW and the ALU result for ADD/NAND.
	WriteData int32
}

// Clear replaces the contents with a bubble.
func (r *MEMWBRegister) Clear() {
	*r = MEMWBRegister{Inst: bubble}
}

// WBENDRegister holds the instruction that retired in the previous cycle.
// Its write data is still visible to forwarding.
type WBENDRegister struct {
	Inst      insts.Instruction
	WriteData int32
}

// Clear replaces the contents with a bubble.
func (r *WBENDRegister) Clear() {
	*r = WBENDRegister{Inst: bubble}
}

// State is the complete machine state at a cycle boundary.
type State struct {
	// PC is the address of the next instruction to fetch.
	PC int32

	// Mem is the unified instruction and data memory.
	Mem *emu.Memory

	// Reg is the architectural register file.
	Reg emu.RegFile

	IFID  IFIDRegister
	IDEX  IDEXRegister
	EXMEM EXMEMRegister
	MEMWB MEMWBRegister
	WBEND WBENDRegister

	// Cycles is the number of cycles completed before this state.
	Cycles uint64
}

// NewState returns the state before cycle 0: pc 0, cleared registers and
// every latch holding a bubble.
func NewState(mem *emu.Memory) State {
	s := State{Mem: mem}
	s.IFID.Clear()
	s.IDEX.Clear()
	s.EXMEM.Clear()
	s.MEMWB.Clear()
	s.WBEND.Clear()
	return s
}

// Clone returns a deep copy of the state, memory included.
func (s *State) Clone() *State {
	c := *s
	if s.Mem != nil {
		c.Mem = s.Mem.Clone()
	}
	return &c
}
