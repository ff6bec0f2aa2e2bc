// Package emu provides functional LC-2K emulation.
package emu

import "github.com/sarchlab/lc5sim/insts"

// RegFile represents the LC-2K register file.
// All eight registers are ordinary read/write registers; register 0 is not
// hard-wired to zero.
type RegFile struct {
	// R holds the general-purpose registers.
	R [insts.NumRegs]int32
}

// ReadReg reads a register value. Only the low 3 bits of reg are used.
func (r *RegFile) ReadReg(reg uint8) int32 {
	return r.R[reg&(insts.NumRegs-1)]
}

// WriteReg writes a value to a register. Only the low 3 bits of reg are used.
func (r *RegFile) WriteReg(reg uint8, value int32) {
	r.R[reg&(insts.NumRegs-1)] = value
}
