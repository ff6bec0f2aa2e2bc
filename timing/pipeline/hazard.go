package pipeline

import "github.com/sarchlab/lc5sim/insts"

// ForwardSource indicates where an execute-stage operand came from.
type ForwardSource int

const (
	// ForwardNone means the value read in Decode is used.
	ForwardNone ForwardSource = iota
	// ForwardFromWBEND means forward from the instruction that retired last cycle.
	ForwardFromWBEND
	// ForwardFromMEMWB means forward from the MEM/WB pipeline register.
	ForwardFromMEMWB
	// ForwardFromEXMEM means forward from the EX/MEM pipeline register.
	ForwardFromEXMEM
)

func (s ForwardSource) String() string {
	switch s {
	case ForwardNone:
		return "none"
	case ForwardFromWBEND:
		return "WBEND"
	case ForwardFromMEMWB:
		return "MEMWB"
	case ForwardFromEXMEM:
		return "EXMEM"
	}
	return "unknown"
}

// Producer is a later-stage instruction whose result can be forwarded.
type Producer struct {
	Source ForwardSource
	Dest   uint8
	Value  int32
}

// Operand is an execute-stage input after forwarding.
type Operand struct {
	Value  int32
	Source ForwardSource
}

// Forwarded reports whether the value came from a pipeline register.
func (o Operand) Forwarded() bool {
	return o.Source != ForwardNone
}

// ForwardingResult contains the forwarded values of both source operands.
type ForwardingResult struct {
	A Operand
	B Operand
}

// HazardUnit detects data and control hazards.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// Producers lists the forwarding producers of a state ordered oldest to
// newest. WBEND and MEMWB forward write data for LW, ADD and NAND; EXMEM
// forwards the ALU result for ADD and NAND only, since a load there has not
// read memory yet.
func (h *HazardUnit) Producers(s *State) []Producer {
	producers := make([]Producer, 0, 3)

	if p, ok := writeDataProducer(s.WBEND.Inst, s.WBEND.WriteData, ForwardFromWBEND); ok {
		producers = append(producers, p)
	}

	if p, ok := writeDataProducer(s.MEMWB.Inst, s.MEMWB.WriteData, ForwardFromMEMWB); ok {
		producers = append(producers, p)
	}

	switch s.EXMEM.Inst.Op {
	case insts.OpADD, insts.OpNAND:
		dest, _ := s.EXMEM.Inst.Dest()
		producers = append(producers, Producer{
			Source: ForwardFromEXMEM,
			Dest:   dest,
			Value:  s.EXMEM.ALUResult,
		})
	case insts.OpLW, insts.OpSW, insts.OpBEQ, insts.OpJALR,
		insts.OpHALT, insts.OpNOOP, insts.OpData:
	}

	return producers
}

func writeDataProducer(inst insts.Instruction, value int32, src ForwardSource) (Producer, bool) {
	switch inst.Op {
	case insts.OpLW, insts.OpADD, insts.OpNAND:
		dest, _ := inst.Dest()
		return Producer{Source: src, Dest: dest, Value: value}, true
	case insts.OpSW, insts.OpBEQ, insts.OpJALR, insts.OpHALT, insts.OpNOOP, insts.OpData:
	}
	return Producer{}, false
}

// DetectForwarding folds the producers of s over the operands latched in
// s.IDEX. A later producer overrides an earlier one, so the newest value of
// a register wins.
func (h *HazardUnit) DetectForwarding(s *State) ForwardingResult {
	idex := &s.IDEX
	result := ForwardingResult{
		A: Operand{Value: idex.ReadRegA},
		B: Operand{Value: idex.ReadRegB},
	}

	for _, p := range h.Producers(s) {
		if p.Dest == idex.Inst.RegA {
			result.A = Operand{Value: p.Value, Source: p.Source}
		}
		if p.Dest == idex.Inst.RegB {
			result.B = Operand{Value: p.Value, Source: p.Source}
		}
	}

	return result
}

// DetectLoadUseHazard reports whether the instruction in IF/ID reads the
// register a load in ID/EX is about to write. The load's data is only
// available after its Memory stage, so Decode must hold for one cycle.
func (h *HazardUnit) DetectLoadUseHazard(idex *IDEXRegister, ifid *IFIDRegister) bool {
	if idex.Inst.Op != insts.OpLW {
		return false
	}

	loadRd := idex.Inst.RegB
	usesA, usesB := ifid.Inst.Reads()

	if usesA && ifid.Inst.RegA == loadRd {
		return true
	}
	if usesB && ifid.Inst.RegB == loadRd {
		return true
	}

	return false
}

// DetectBranchTaken reports whether EX/MEM holds a BEQ that resolved taken.
// The three younger instructions were fetched down the not-taken path and
// must be squashed.
func (h *HazardUnit) DetectBranchTaken(exmem *EXMEMRegister) bool {
	return exmem.Inst.Op == insts.OpBEQ && exmem.ALUResult == 1
}
