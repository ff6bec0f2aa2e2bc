package pipeline

import (
	"github.com/sarchlab/lc5sim/emu"
	"github.com/sarchlab/lc5sim/insts"
	"github.com/sarchlab/lc5sim/timing/cache"
)

// FetchStage handles instruction fetch from memory.
type FetchStage struct {
	probe *cache.Cache
}

// NewFetchStage creates a new fetch stage. probe may be nil.
func NewFetchStage(probe *cache.Cache) *FetchStage {
	return &FetchStage{probe: probe}
}

// Fetch reads the instruction at pc. Addresses outside memory fetch a NOOP,
// which happens routinely when fetch runs ahead of a HALT at the end of a
// program.
func (s *FetchStage) Fetch(mem *emu.Memory, pc int32) IFIDRegister {
	if s.probe != nil && pc >= 0 && int(pc) < mem.Size() {
		s.probe.Access(uint64(pc), false)
	}

	return IFIDRegister{
		Inst:    insts.Decode(mem.Fetch(pc)),
		PCPlus1: pc + 1,
	}
}

// DecodeStage handles register read.
type DecodeStage struct{}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage() *DecodeStage {
	return &DecodeStage{}
}

// Decode reads regA and regB of the instruction in IF/ID and sign-extends
// its offset field. Both fields are read whatever the opcode.
func (s *DecodeStage) Decode(ifid *IFIDRegister, regs *emu.RegFile) IDEXRegister {
	return IDEXRegister{
		Inst:     ifid.Inst,
		PCPlus1:  ifid.PCPlus1,
		ReadRegA: regs.ReadReg(ifid.Inst.RegA),
		ReadRegB: regs.ReadReg(ifid.Inst.RegB),
		Offset:   ifid.Inst.Offset(),
	}
}

// ExecuteStage handles ALU operations and branch target computation.
type ExecuteStage struct{}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage() *ExecuteStage {
	return &ExecuteStage{}
}

// Execute runs the instruction in ID/EX on its forwarded operands.
func (s *ExecuteStage) Execute(idex *IDEXRegister, operands ForwardingResult) EXMEMRegister {
	return EXMEMRegister{
		Inst:         idex.Inst,
		BranchTarget: emu.BranchTarget(idex.PCPlus1, idex.Offset),
		ALUResult:    emu.ALU(idex.Inst, operands.A.Value, operands.B.Value),
		ReadRegB:     operands.B.Value,
	}
}

// MemoryStage handles loads and stores.
type MemoryStage struct {
	probe *cache.Cache
}

// NewMemoryStage creates a new memory stage. probe may be nil.
func NewMemoryStage(probe *cache.Cache) *MemoryStage {
	return &MemoryStage{probe: probe}
}

// Access performs the memory operation of the instruction in EX/MEM. A store
// writes EX/MEM's regB value exactly once. Out-of-range addresses return
// *emu.MemoryFaultError.
func (s *MemoryStage) Access(exmem *EXMEMRegister, mem *emu.Memory) (MEMWBRegister, error) {
	result := MEMWBRegister{Inst: exmem.Inst}

	switch exmem.Inst.Op {
	case insts.OpLW:
		value, err := mem.Read(exmem.ALUResult)
		if err != nil {
			return result, err
		}
		s.probeAccess(exmem.ALUResult, false)
		result.WriteData = value
	case insts.OpSW:
		if err := mem.Write(exmem.ALUResult, exmem.ReadRegB); err != nil {
			return result, err
		}
		s.probeAccess(exmem.ALUResult, true)
	case insts.OpADD, insts.OpNAND:
		result.WriteData = exmem.ALUResult
	case insts.OpBEQ, insts.OpJALR, insts.OpHALT, insts.OpNOOP, insts.OpData:
	}

	return result, nil
}

func (s *MemoryStage) probeAccess(addr int32, write bool) {
	if s.probe != nil {
		s.probe.Access(uint64(addr), write)
	}
}

// WritebackStage handles register writeback.
type WritebackStage struct{}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage() *WritebackStage {
	return &WritebackStage{}
}

// Writeback commits the instruction in MEM/WB to the register file and
// moves it into WBEND.
func (s *WritebackStage) Writeback(memwb *MEMWBRegister, regs *emu.RegFile) WBENDRegister {
	if dest, ok := memwb.Inst.Dest(); ok {
		regs.WriteReg(dest, memwb.WriteData)
	}

	return WBENDRegister{
		Inst:      memwb.Inst,
		WriteData: memwb.WriteData,
	}
}
