// Package insts provides LC-2K instruction definitions and decoding.
//
// Every machine word is a 32-bit signed integer. Instructions use three
// encodings that share one field layout:
//   - R-type: ADD, NAND (regA, regB, destination register in bits 2-0)
//   - I-type: LW, SW, BEQ (regA, regB, 16-bit two's-complement offset)
//   - O-type: HALT, NOOP (no operands)
//
// JALR keeps its opcode value but is never executed by this simulator.
// Words whose opcode field is above 7 decode as data.
//
// Usage:
//
//	inst := insts.Decode(insts.EncodeRType(insts.OpADD, 1, 2, 3)) // add 1 2 3
//	fmt.Printf("Op: %v, A: %d, B: %d, Off: %d\n", inst.Op, inst.RegA, inst.RegB, inst.Offset())
package insts
