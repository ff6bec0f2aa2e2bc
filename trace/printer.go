// Package trace prints per-cycle machine state dumps of a pipelined run.
//
// The output is line compatible with the classic LC-2K pipeline simulator
// dump, so traces can be diffed against golden files:
//
//	@@@
//	state before cycle 0 starts
//		pc 0
//		data memory:
//			dataMem[ 0 ] 8454151
//		...
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/sarchlab/lc5sim/insts"
	"github.com/sarchlab/lc5sim/loader"
	"github.com/sarchlab/lc5sim/timing/pipeline"
)

const (
	highlightOn  = "\033[1;33m"
	highlightOff = "\033[0m"
)

// Option configures a Printer.
type Option func(*Printer)

// WithMemoryWords limits the data memory dump to the first n words. A
// value of 0 dumps all of memory.
func WithMemoryWords(n int) Option {
	return func(p *Printer) {
		p.memoryWords = n
	}
}

// WithHighlight forces highlighting of values that changed since the
// previous cycle on or off, overriding terminal detection.
func WithHighlight(on bool) Option {
	return func(p *Printer) {
		p.highlight = on
	}
}

// Printer writes a state dump for every cycle it observes. It implements
// pipeline.Observer.
type Printer struct {
	w           *bufio.Writer
	memoryWords int
	highlight   bool
	err         error

	// Values printed for the previous cycle, used for highlighting.
	prevReg [insts.NumRegs]int32
	prevMem []int32
	started bool
}

// NewPrinter creates a printer writing to w. Highlighting is enabled by
// default when w is a terminal.
func NewPrinter(w io.Writer, opts ...Option) *Printer {
	p := &Printer{
		w:         bufio.NewWriter(w),
		highlight: isTerminal(w),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Err returns the first write error, if any.
func (p *Printer) Err() error {
	return p.err
}

// Observe prints the state.
func (p *Printer) Observe(s *pipeline.State) {
	words := s.Mem.Words()
	if p.memoryWords > 0 && p.memoryWords < len(words) {
		words = words[:p.memoryWords]
	}

	p.printf("\n@@@\nstate before cycle %d starts\n", s.Cycles)
	p.printf("\tpc %d\n", s.PC)

	p.printf("\tdata memory:\n")
	for i, v := range words {
		changed := p.started && i < len(p.prevMem) && p.prevMem[i] != v
		p.printf("\t\tdataMem[ %d ] %s\n", i, p.value(v, changed))
	}

	p.printf("\tregisters:\n")
	for i, v := range s.Reg.R {
		changed := p.started && p.prevReg[i] != v
		p.printf("\t\treg[ %d ] %s\n", i, p.value(v, changed))
	}

	p.printf("\tIFID:\n")
	p.printf("\t\tinstruction %s\n", s.IFID.Inst)
	p.printf("\t\tpcPlus1 %d\n", s.IFID.PCPlus1)

	p.printf("\tIDEX:\n")
	p.printf("\t\tinstruction %s\n", s.IDEX.Inst)
	p.printf("\t\tpcPlus1 %d\n", s.IDEX.PCPlus1)
	p.printf("\t\treadRegA %d\n", s.IDEX.ReadRegA)
	p.printf("\t\treadRegB %d\n", s.IDEX.ReadRegB)
	p.printf("\t\toffset %d\n", s.IDEX.Offset)

	p.printf("\tEXMEM:\n")
	p.printf("\t\tinstruction %s\n", s.EXMEM.Inst)
	p.printf("\t\tbranchTarget %d\n", s.EXMEM.BranchTarget)
	p.printf("\t\taluResult %d\n", s.EXMEM.ALUResult)
	p.printf("\t\treadRegB %d\n", s.EXMEM.ReadRegB)

	p.printf("\tMEMWB:\n")
	p.printf("\t\tinstruction %s\n", s.MEMWB.Inst)
	p.printf("\t\twriteData %d\n", s.MEMWB.WriteData)

	p.printf("\tWBEND:\n")
	p.printf("\t\tinstruction %s\n", s.WBEND.Inst)
	p.printf("\t\twriteData %d\n", s.WBEND.WriteData)

	p.flush()

	p.prevReg = s.Reg.R
	p.prevMem = words
	p.started = true
}

// PrintProgram prints the loaded memory image followed by its disassembly.
func (p *Printer) PrintProgram(prog *loader.Program) {
	for i, w := range prog.Words {
		p.printf("memory[%d]=%d\n", i, w)
	}

	p.printf("\t\tinstruction memory:\n")
	for i, w := range prog.Words {
		p.printf("\t\t\tinstrMem[%d]%s\n", i, insts.Decode(w))
	}

	p.flush()
}

// PrintHalt prints the end-of-run summary.
func (p *Printer) PrintHalt(cycles uint64) {
	p.printf("machine halted\n")
	p.printf("total of %d cycles executed\n", cycles)
	p.flush()
}

func (p *Printer) value(v int32, changed bool) string {
	if p.highlight && changed {
		return fmt.Sprintf("%s%d%s", highlightOn, v, highlightOff)
	}
	return fmt.Sprintf("%d", v)
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	if _, err := fmt.Fprintf(p.w, format, args...); err != nil {
		p.err = err
	}
}

func (p *Printer) flush() {
	if p.err != nil {
		return
	}
	if err := p.w.Flush(); err != nil {
		p.err = err
	}
}
