package emu

import "github.com/sarchlab/lc5sim/insts"

// ALU computes the execute-stage result of an instruction from its two
// operand values. The mapping is total over insts.Op:
//   - ADD: a + b (wrapping)
//   - NAND: ^(a & b)
//   - LW, SW: offset + a (effective address)
//   - BEQ: 1 if a == b, else 0
//   - JALR, HALT, NOOP, data: 0
func ALU(inst insts.Instruction, a, b int32) int32 {
	switch inst.Op {
	case insts.OpADD:
		return a + b
	case insts.OpNAND:
		return ^(a & b)
	case insts.OpLW, insts.OpSW:
		return EffectiveAddress(a, inst.Offset())
	case insts.OpBEQ:
		if a == b {
			return 1
		}
		return 0
	case insts.OpJALR, insts.OpHALT, insts.OpNOOP, insts.OpData:
		return 0
	}
	return 0
}

// EffectiveAddress computes the word address of a load or store.
func EffectiveAddress(base, offset int32) int32 {
	return base + offset
}

// BranchTarget computes the destination of a taken branch.
func BranchTarget(pcPlus1, offset int32) int32 {
	return pcPlus1 + offset
}
