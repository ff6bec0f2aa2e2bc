package pipeline

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/lc5sim/emu"
	"github.com/sarchlab/lc5sim/insts"
	"github.com/sarchlab/lc5sim/timing/cache"
)

var (
	// ErrUnsupportedOpcode is returned in strict mode when a JALR or a data
	// word retires.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")

	// ErrCycleLimit is returned when the cycle budget is spent before a HALT
	// retires.
	ErrCycleLimit = errors.New("max cycles reached")
)

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of non-NOOP instructions retired into WBEND.
	Instructions uint64
	// Stalls is the number of load-use stall cycles.
	Stalls uint64
	// Squashes is the number of taken branches that squashed the pipeline.
	Squashes uint64
	// SquashedSlots is the number of non-bubble instructions discarded by
	// squashes.
	SquashedSlots uint64
	// ForwardedOperands is the number of source operands taken from a
	// pipeline register instead of the register file.
	ForwardedOperands uint64
	// UnsupportedOps is the number of retired JALR and data words.
	UnsupportedOps uint64
	// Branch holds the branch predictor statistics.
	Branch BranchPredictorStats
	// ICache and DCache hold the access profiler statistics. They stay zero
	// when the probe is disabled.
	ICache cache.Statistics
	DCache cache.Statistics
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Observer receives a copy of the committed state before each cycle
// executes, including the final state in which HALT sits in WBEND. The copy
// shares memory with the pipeline; committed memory is never written again,
// and observers must not write it either.
type Observer interface {
	Observe(s *State)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(s *State)

// Observe calls f(s).
func (f ObserverFunc) Observe(s *State) {
	f(s)
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithObserver registers an observer. Observers are called in the order
// they were added.
func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observers = append(p.observers, o)
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger logr.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMaxCycles stops the run with ErrCycleLimit after max cycles.
// A value of 0 means no limit.
func WithMaxCycles(max uint64) PipelineOption {
	return func(p *Pipeline) {
		p.maxCycles = max
	}
}

// WithStrictOpcodes makes a retiring JALR or data word fail the run with
// ErrUnsupportedOpcode instead of being counted as a no-op.
func WithStrictOpcodes() PipelineOption {
	return func(p *Pipeline) {
		p.strict = true
	}
}

// WithICacheProbe profiles instruction fetch addresses with a cache of the
// given geometry. The probe never changes timing.
func WithICacheProbe(config cache.Config) PipelineOption {
	return func(p *Pipeline) {
		p.icache = cache.New(config)
	}
}

// WithDCacheProbe profiles load and store addresses with a cache of the
// given geometry. The probe never changes timing.
func WithDCacheProbe(config cache.Config) PipelineOption {
	return func(p *Pipeline) {
		p.dcache = cache.New(config)
	}
}

// Pipeline implements a 5-stage pipelined LC-2K machine.
// Stages: Fetch (IF) -> Decode (ID) -> Execute (EX) -> Memory (MEM) -> Writeback (WB)
type Pipeline struct {
	state State

	// Pipeline stages
	fetchStage     *FetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage

	hazardUnit      *HazardUnit
	branchPredictor *BranchPredictor

	// Access profilers (optional)
	icache *cache.Cache
	dcache *cache.Cache

	observers []Observer
	logger    logr.Logger
	maxCycles uint64
	strict    bool

	stats Statistics

	// Execution state
	halted bool
	err    error
}

// NewPipeline creates a pipeline that runs the program in mem from pc 0.
// Stores never modify mem itself; the memory seen by State reflects them.
func NewPipeline(mem *emu.Memory, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		state:           NewState(mem),
		hazardUnit:      NewHazardUnit(),
		branchPredictor: NewBranchPredictor(),
		logger:          logr.Discard(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.fetchStage = NewFetchStage(p.icache)
	p.decodeStage = NewDecodeStage()
	p.executeStage = NewExecuteStage()
	p.memoryStage = NewMemoryStage(p.dcache)
	p.writebackStage = NewWritebackStage()

	return p
}

// PC returns the current program counter.
func (p *Pipeline) PC() int32 {
	return p.state.PC
}

// SetPC sets the program counter.
func (p *Pipeline) SetPC(pc int32) {
	p.state.PC = pc
}

// Cycles returns the number of committed cycles.
func (p *Pipeline) Cycles() uint64 {
	return p.state.Cycles
}

// State returns a deep copy of the committed state.
func (p *Pipeline) State() *State {
	return p.state.Clone()
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	stats := p.stats
	stats.Cycles = p.state.Cycles
	stats.Branch = p.branchPredictor.Stats()
	if p.icache != nil {
		stats.ICache = p.icache.Stats()
	}
	if p.dcache != nil {
		stats.DCache = p.dcache.Stats()
	}
	return stats
}

// Halted returns true once the pipeline has stopped, either because HALT
// retired or because of an error.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// Err returns the error that stopped the pipeline, if any.
func (p *Pipeline) Err() error {
	return p.err
}

// Run executes the pipeline until it halts.
func (p *Pipeline) Run() error {
	for !p.halted {
		if err := p.Tick(); err != nil {
			return err
		}
	}
	return p.err
}

// RunCycles executes the pipeline for at most the specified number of
// cycles. It returns true if the pipeline is still running.
func (p *Pipeline) RunCycles(cycles uint64) (bool, error) {
	for i := uint64(0); i < cycles && !p.halted; i++ {
		if err := p.Tick(); err != nil {
			return false, err
		}
	}
	return !p.halted, nil
}

// Tick executes one pipeline cycle.
//
// The committed state is reported to observers first. If HALT sits in
// WBEND the pipeline stops without doing any work, so the cycle count is
// the number of cycles completed. Otherwise every stage reads the previous
// state and writes its latch of the next state:
//   - Load-use: a load in ID/EX whose destination the IF/ID instruction
//     reads holds IF/ID and the pc and sends a bubble to ID/EX.
//   - Forwarding: WBEND, MEM/WB and EX/MEM results replace stale operands;
//     the newest producer of a register wins.
//   - Squash: a BEQ resolved taken in EX/MEM redirects the pc to its target
//     and turns IF/ID, ID/EX and EX/MEM into bubbles.
//
// A cycle that fails is discarded; the previous state stays committed.
func (p *Pipeline) Tick() error {
	if p.halted {
		return p.err
	}

	// prev is a copy so it outlives the commit below.
	prevState := p.state
	prev := &prevState
	for _, o := range p.observers {
		snapshot := prevState
		o.Observe(&snapshot)
	}

	if prev.WBEND.Inst.Op == insts.OpHALT {
		p.halted = true
		p.logger.V(1).Info("machine halted", "cycles", prev.Cycles)
		return nil
	}

	if p.maxCycles > 0 && prev.Cycles >= p.maxCycles {
		return p.fail(fmt.Errorf("%w: %d", ErrCycleLimit, p.maxCycles))
	}

	retiring := prev.MEMWB.Inst
	if p.strict && !retiring.Op.Supported() {
		return p.fail(fmt.Errorf("cycle %d: %w: %s", prev.Cycles, ErrUnsupportedOpcode, retiring))
	}

	next := *prev

	// Stage 1: Fetch
	pred := p.branchPredictor.Predict(prev.PC)
	next.IFID = p.fetchStage.Fetch(prev.Mem, prev.PC)
	next.PC = pred.Target

	// Stage 2: Decode
	next.IDEX = p.decodeStage.Decode(&prev.IFID, &prev.Reg)

	stall := p.hazardUnit.DetectLoadUseHazard(&prev.IDEX, &prev.IFID)
	if stall {
		next.IFID = prev.IFID
		next.PC = prev.PC
		next.IDEX.Clear()
	}

	// Stage 3: Execute
	operands := p.hazardUnit.DetectForwarding(prev)
	next.EXMEM = p.executeStage.Execute(&prev.IDEX, operands)

	// Stage 4: Memory. A store writes a private copy so prev stays intact.
	if prev.EXMEM.Inst.Op == insts.OpSW {
		next.Mem = prev.Mem.Clone()
	}
	memwb, err := p.memoryStage.Access(&prev.EXMEM, next.Mem)
	if err != nil {
		return p.fail(fmt.Errorf("cycle %d: %w", prev.Cycles, err))
	}
	next.MEMWB = memwb

	// Stage 5: Writeback
	next.WBEND = p.writebackStage.Writeback(&prev.MEMWB, &next.Reg)

	branchTaken := p.hazardUnit.DetectBranchTaken(&prev.EXMEM)
	if prev.EXMEM.Inst.Op == insts.OpBEQ {
		p.branchPredictor.Update(branchTaken)
	}
	if branchTaken {
		p.stats.Squashes++
		p.stats.SquashedSlots += countLive(next.IFID.Inst, next.IDEX.Inst, next.EXMEM.Inst)
		next.PC = prev.EXMEM.BranchTarget
		next.IFID.Clear()
		next.IDEX.Clear()
		next.EXMEM.Clear()
	}

	p.updateStats(prev, stall, operands)
	if !retiring.Op.Supported() {
		p.logger.V(1).Info("unsupported instruction retired as noop",
			"cycle", prev.Cycles, "inst", retiring.String())
	}

	next.Cycles++
	p.state = next

	return nil
}

func (p *Pipeline) updateStats(prev *State, stall bool, operands ForwardingResult) {
	retiring := prev.MEMWB.Inst
	if !retiring.IsBubble() {
		p.stats.Instructions++
	}
	if !retiring.Op.Supported() {
		p.stats.UnsupportedOps++
	}

	if stall {
		p.stats.Stalls++
		p.logger.V(2).Info("load-use stall", "cycle", prev.Cycles, "inst", prev.IFID.Inst.String())
	}

	usesA, usesB := prev.IDEX.Inst.Reads()
	if usesA && operands.A.Forwarded() {
		p.stats.ForwardedOperands++
	}
	if usesB && operands.B.Forwarded() {
		p.stats.ForwardedOperands++
	}
}

func (p *Pipeline) fail(err error) error {
	p.halted = true
	p.err = err
	p.logger.Error(err, "simulation stopped", "cycle", p.state.Cycles, "pc", p.state.PC)
	return err
}

func countLive(squashed ...insts.Instruction) uint64 {
	var n uint64
	for _, inst := range squashed {
		if !inst.IsBubble() {
			n++
		}
	}
	return n
}
