package insts

import "fmt"

// Op represents an LC-2K opcode.
type Op uint8

// LC-2K opcodes. The values match the 10-bit opcode field.
const (
	OpADD Op = iota
	OpNAND
	OpLW
	OpSW
	OpBEQ
	OpJALR
	OpHALT
	OpNOOP
	// OpData marks a word whose opcode field is not a valid opcode.
	OpData
)

// NumRegs is the number of general-purpose registers.
const NumRegs = 8

// NoopWord is the encoding of NOOP with all operand fields zero. Pipeline
// bubbles use this word.
const NoopWord int32 = int32(OpNOOP) << opcodeShift

const (
	opcodeShift = 22
	regAShift   = 19
	regBShift   = 16
	regMask     = 0x7
	offsetMask  = 0xFFFF
	opcodeMask  = 0x3FF
)

var opNames = [...]string{
	OpADD:  "add",
	OpNAND: "nand",
	OpLW:   "lw",
	OpSW:   "sw",
	OpBEQ:  "beq",
	OpJALR: "jalr",
	OpHALT: "halt",
	OpNOOP: "noop",
	OpData: "data",
}

// String returns the assembler mnemonic of the opcode.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "data"
}

// Supported reports whether the simulator gives the opcode any semantics.
// JALR and data words are inert.
func (o Op) Supported() bool {
	switch o {
	case OpADD, OpNAND, OpLW, OpSW, OpBEQ, OpHALT, OpNOOP:
		return true
	case OpJALR, OpData:
		return false
	}
	return false
}

// Instruction represents a decoded LC-2K instruction.
type Instruction struct {
	Word      int32  // Raw machine word
	Op        Op     // Operation
	RegA      uint8  // Bits 21-19
	RegB      uint8  // Bits 18-16
	RawOffset uint16 // Bits 15-0, unsigned
}

// Decode decodes a machine word. It never fails: words with an unknown
// opcode decode as OpData.
func Decode(word int32) Instruction {
	u := uint32(word)
	op := Op((u >> opcodeShift) & opcodeMask)
	if op > OpNOOP {
		op = OpData
	}
	return Instruction{
		Word:      word,
		Op:        op,
		RegA:      uint8((u >> regAShift) & regMask),
		RegB:      uint8((u >> regBShift) & regMask),
		RawOffset: uint16(u & offsetMask),
	}
}

// SignExtend16 converts a 16-bit two's-complement field into a signed value.
func SignExtend16(raw uint16) int32 {
	v := int32(raw)
	if v&(1<<15) != 0 {
		v -= 1 << 16
	}
	return v
}

// Offset returns the sign-extended offset field.
func (i Instruction) Offset() int32 {
	return SignExtend16(i.RawOffset)
}

// Dest returns the register written at writeback, if any.
// LW writes regB; ADD and NAND write the low 3 bits of the offset field.
func (i Instruction) Dest() (uint8, bool) {
	switch i.Op {
	case OpLW:
		return i.RegB, true
	case OpADD, OpNAND:
		return uint8(i.RawOffset & regMask), true
	case OpSW, OpBEQ, OpJALR, OpHALT, OpNOOP, OpData:
		return 0, false
	}
	return 0, false
}

// Reads reports which of regA and regB the instruction consumes as source
// operands. LW uses regB as its destination, so only regA is a source.
func (i Instruction) Reads() (regA, regB bool) {
	switch i.Op {
	case OpADD, OpNAND, OpSW, OpBEQ:
		return true, true
	case OpLW:
		return true, false
	case OpJALR, OpHALT, OpNOOP, OpData:
		return false, false
	}
	return false, false
}

// IsBubble reports whether the instruction has no architectural effect.
func (i Instruction) IsBubble() bool {
	return i.Op == OpNOOP
}

// String renders the instruction as "mnemonic regA regB rawOffset".
func (i Instruction) String() string {
	return fmt.Sprintf("%s %d %d %d", i.Op, i.RegA, i.RegB, i.RawOffset)
}

// EncodeRType encodes ADD or NAND.
func EncodeRType(op Op, regA, regB, dest uint8) int32 {
	return encode(op, regA, regB, uint32(dest&regMask))
}

// EncodeIType encodes LW, SW or BEQ with a signed 16-bit offset.
func EncodeIType(op Op, regA, regB uint8, offset int32) int32 {
	return encode(op, regA, regB, uint32(offset)&offsetMask)
}

// EncodeOType encodes HALT or NOOP.
func EncodeOType(op Op) int32 {
	return encode(op, 0, 0, 0)
}

func encode(op Op, regA, regB uint8, low uint32) int32 {
	u := uint32(op)<<opcodeShift |
		uint32(regA&regMask)<<regAShift |
		uint32(regB&regMask)<<regBShift |
		low
	return int32(u)
}
