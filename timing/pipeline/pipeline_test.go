package pipeline_test

import (
	"errors"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lc5sim/emu"
	"github.com/sarchlab/lc5sim/insts"
	"github.com/sarchlab/lc5sim/timing/cache"
	"github.com/sarchlab/lc5sim/timing/pipeline"
)

var (
	halt = insts.EncodeOType(insts.OpHALT)
	noop = insts.NoopWord
)

func add(a, b, dest uint8) int32  { return insts.EncodeRType(insts.OpADD, a, b, dest) }
func nand(a, b, dest uint8) int32 { return insts.EncodeRType(insts.OpNAND, a, b, dest) }
func lw(a, b uint8, off int32) int32 {
	return insts.EncodeIType(insts.OpLW, a, b, off)
}
func sw(a, b uint8, off int32) int32 {
	return insts.EncodeIType(insts.OpSW, a, b, off)
}
func beq(a, b uint8, off int32) int32 {
	return insts.EncodeIType(insts.OpBEQ, a, b, off)
}

func newPipeline(program []int32, opts ...pipeline.PipelineOption) *pipeline.Pipeline {
	memory, err := emu.NewMemoryFromImage(program, 0)
	Expect(err).NotTo(HaveOccurred())
	return pipeline.NewPipeline(memory, append(opts, pipeline.WithLogger(GinkgoLogr))...)
}

func runReference(program []int32) *emu.Emulator {
	memory, err := emu.NewMemoryFromImage(program, 0)
	Expect(err).NotTo(HaveOccurred())
	e := emu.NewEmulator(memory, emu.WithLogger(GinkgoLogr))
	Expect(e.Run()).To(Succeed())
	return e
}

// aluChain: every instruction depends on one or both of its predecessors.
var aluChain = []int32{
	nand(0, 0, 1), // r1 = -1
	add(1, 1, 2),  // r2 = -2
	nand(1, 2, 3), // r3 = 1
	add(3, 3, 4),  // r4 = 2
	add(4, 3, 5),  // r5 = 3
	add(5, 4, 6),  // r6 = 5
	add(6, 1, 7),  // r7 = 4
	halt,
}

// loadUse: the add needs r1 the cycle after the load.
var loadUse = []int32{
	lw(0, 1, 3),
	add(1, 1, 2),
	halt,
	7,
}

// storeLoad: a stored value read back, with a load-use stall on each load.
var storeLoad = []int32{
	lw(0, 1, 6),  // r1 = 21
	sw(0, 1, 7),  // mem[7] = 21, stalls on r1
	lw(0, 3, 7),  // r3 = 21
	add(3, 3, 4), // r4 = 42, stalls on r3
	halt,
	0,
	21,
	0,
}

// branchTaken: the two nands are squashed.
var branchTaken = []int32{
	beq(0, 0, 2),
	nand(0, 0, 1),
	nand(0, 0, 2),
	halt,
}

// branchNotTaken: r1 is forwarded into the comparison.
var branchNotTaken = []int32{
	nand(0, 0, 1),
	beq(0, 1, 5),
	halt,
}

// countdown loops five times, then stores r2.
var countdown = []int32{
	lw(0, 1, 7),   // r1 = 5
	lw(0, 2, 8),   // r2 = -1
	add(1, 2, 1),  // r1--
	beq(0, 1, 1),  // exit when r1 == 0
	beq(0, 0, -3), // back to 2
	sw(0, 2, 9),
	halt,
	5,
	-1,
	0,
}

var _ = Describe("Pipeline", func() {
	Describe("NewPipeline", func() {
		It("should start with bubbles in every latch", func() {
			pipe := newPipeline([]int32{halt})
			s := pipe.State()

			Expect(s.PC).To(Equal(int32(0)))
			Expect(s.Cycles).To(Equal(uint64(0)))
			Expect(s.IFID.Inst.Word).To(Equal(noop))
			Expect(s.IDEX.Inst.Word).To(Equal(noop))
			Expect(s.EXMEM.Inst.Word).To(Equal(noop))
			Expect(s.MEMWB.Inst.Word).To(Equal(noop))
			Expect(s.WBEND.Inst.Word).To(Equal(noop))
			Expect(pipe.Halted()).To(BeFalse())
		})
	})

	Describe("HALT", func() {
		It("should stop five cycles after HALT is fetched", func() {
			pipe := newPipeline([]int32{halt})

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.Halted()).To(BeTrue())
			Expect(pipe.Err()).NotTo(HaveOccurred())
			Expect(pipe.Cycles()).To(Equal(uint64(5)))
			Expect(pipe.Stats().Instructions).To(Equal(uint64(1)))
			Expect(pipe.State().WBEND.Inst.Op).To(Equal(insts.OpHALT))
		})

		It("should not tick after halting", func() {
			pipe := newPipeline([]int32{halt})
			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.Tick()).To(Succeed())
			Expect(pipe.Cycles()).To(Equal(uint64(5)))
		})
	})

	Describe("RunCycles", func() {
		It("should report whether the pipeline is still running", func() {
			pipe := newPipeline([]int32{halt})

			running, err := pipe.RunCycles(3)
			Expect(err).NotTo(HaveOccurred())
			Expect(running).To(BeTrue())
			Expect(pipe.Cycles()).To(Equal(uint64(3)))

			running, err = pipe.RunCycles(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(running).To(BeFalse())
			Expect(pipe.Cycles()).To(Equal(uint64(5)))
		})
	})

	Describe("SetPC", func() {
		It("should start fetching at the given address", func() {
			pipe := newPipeline([]int32{halt, nand(0, 0, 1), halt})
			pipe.SetPC(1)
			Expect(pipe.PC()).To(Equal(int32(1)))

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.Cycles()).To(Equal(uint64(6)))
			Expect(pipe.State().Reg.ReadReg(1)).To(Equal(int32(-1)))
		})
	})

	Describe("ADD and NAND", func() {
		It("should forward along a dependency chain without stalling", func() {
			pipe := newPipeline(aluChain)

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.State().Reg.R).To(Equal([insts.NumRegs]int32{0, -1, -2, 1, 2, 3, 5, 4}))
			stats := pipe.Stats()
			Expect(stats.Cycles).To(Equal(uint64(12)))
			Expect(stats.Instructions).To(Equal(uint64(8)))
			Expect(stats.Stalls).To(BeZero())
			Expect(stats.ForwardedOperands).To(Equal(uint64(11)))
			Expect(stats.CPI()).To(BeNumerically("~", 1.5))
		})
	})

	Describe("LW", func() {
		It("should insert exactly one bubble for a load-use hazard", func() {
			pipe := newPipeline(loadUse)

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.State().Reg.ReadReg(1)).To(Equal(int32(7)))
			Expect(pipe.State().Reg.ReadReg(2)).To(Equal(int32(14)))
			Expect(pipe.Stats().Stalls).To(Equal(uint64(1)))
			Expect(pipe.Cycles()).To(Equal(uint64(8)))
		})

		It("should not stall when an independent instruction separates load and use", func() {
			pipe := newPipeline([]int32{
				lw(0, 1, 4),
				nand(0, 0, 3),
				add(1, 1, 2),
				halt,
				7,
			})

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.State().Reg.ReadReg(2)).To(Equal(int32(14)))
			Expect(pipe.State().Reg.ReadReg(3)).To(Equal(int32(-1)))
			Expect(pipe.Stats().Stalls).To(BeZero())
			Expect(pipe.Cycles()).To(Equal(uint64(8)))
		})

		It("should hold IF/ID and the pc during the stall", func() {
			var states []*pipeline.State
			pipe := newPipeline(loadUse, pipeline.WithObserver(pipeline.ObserverFunc(
				func(s *pipeline.State) { states = append(states, s.Clone()) })))

			Expect(pipe.Run()).To(Succeed())

			// Cycle 2 stalls: the add stays in IF/ID and a bubble enters ID/EX.
			Expect(states[2].IDEX.Inst.Op).To(Equal(insts.OpLW))
			Expect(states[2].IFID.Inst.Op).To(Equal(insts.OpADD))
			Expect(states[3].IFID).To(Equal(states[2].IFID))
			Expect(states[3].PC).To(Equal(states[2].PC))
			Expect(states[3].IDEX.Inst.Op).To(Equal(insts.OpNOOP))
			Expect(states[3].EXMEM.Inst.Op).To(Equal(insts.OpLW))
		})
	})

	Describe("SW", func() {
		It("should store a forwarded value and load it back", func() {
			program := storeLoad
			memory, err := emu.NewMemoryFromImage(program, 0)
			Expect(err).NotTo(HaveOccurred())
			pipe := pipeline.NewPipeline(memory, pipeline.WithLogger(GinkgoLogr))

			Expect(pipe.Run()).To(Succeed())

			s := pipe.State()
			Expect(s.Reg.ReadReg(1)).To(Equal(int32(21)))
			Expect(s.Reg.ReadReg(3)).To(Equal(int32(21)))
			Expect(s.Reg.ReadReg(4)).To(Equal(int32(42)))
			Expect(s.Mem.Read(7)).To(Equal(int32(21)))
			Expect(pipe.Stats().Stalls).To(Equal(uint64(2)))
			Expect(pipe.Cycles()).To(Equal(uint64(11)))

			// The image handed to the pipeline is never written.
			Expect(memory.Read(7)).To(Equal(int32(0)))
		})
	})

	Describe("BEQ", func() {
		It("should squash three slots when taken", func() {
			pipe := newPipeline(branchTaken)

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.State().Reg.R).To(Equal([insts.NumRegs]int32{}))
			stats := pipe.Stats()
			Expect(stats.Cycles).To(Equal(uint64(9)))
			Expect(stats.Squashes).To(Equal(uint64(1)))
			Expect(stats.SquashedSlots).To(Equal(uint64(3)))
			Expect(stats.Instructions).To(Equal(uint64(2)))
			Expect(stats.Branch.Predictions).To(Equal(uint64(1)))
			Expect(stats.Branch.Mispredictions).To(Equal(uint64(1)))
		})

		It("should redirect fetch to the branch target", func() {
			var states []*pipeline.State
			pipe := newPipeline(branchTaken, pipeline.WithObserver(pipeline.ObserverFunc(
				func(s *pipeline.State) { states = append(states, s.Clone()) })))

			Expect(pipe.Run()).To(Succeed())

			Expect(states[3].EXMEM.Inst.Op).To(Equal(insts.OpBEQ))
			Expect(states[3].EXMEM.BranchTarget).To(Equal(int32(3)))
			Expect(states[4].PC).To(Equal(int32(3)))
			Expect(states[4].IFID.Inst.Op).To(Equal(insts.OpNOOP))
			Expect(states[4].IDEX.Inst.Op).To(Equal(insts.OpNOOP))
			Expect(states[4].EXMEM.Inst.Op).To(Equal(insts.OpNOOP))
			Expect(states[5].IFID.Inst.Op).To(Equal(insts.OpHALT))
		})

		It("should fall through when not taken", func() {
			pipe := newPipeline(branchNotTaken)

			Expect(pipe.Run()).To(Succeed())

			stats := pipe.Stats()
			Expect(stats.Cycles).To(Equal(uint64(7)))
			Expect(stats.Squashes).To(BeZero())
			Expect(stats.Branch.Correct).To(Equal(uint64(1)))
			Expect(stats.Branch.Accuracy()).To(BeNumerically("~", 100.0))
		})

		It("should run a countdown loop", func() {
			pipe := newPipeline(countdown)

			Expect(pipe.Run()).To(Succeed())

			s := pipe.State()
			Expect(s.Reg.ReadReg(1)).To(Equal(int32(0)))
			Expect(s.Reg.ReadReg(2)).To(Equal(int32(-1)))
			Expect(s.Mem.Read(9)).To(Equal(int32(-1)))

			stats := pipe.Stats()
			Expect(stats.Cycles).To(Equal(uint64(38)))
			Expect(stats.Instructions).To(Equal(uint64(18)))
			Expect(stats.Stalls).To(Equal(uint64(1)))
			Expect(stats.Squashes).To(Equal(uint64(5)))
			Expect(stats.Branch.Predictions).To(Equal(uint64(9)))
			Expect(stats.Branch.Mispredictions).To(Equal(uint64(5)))
		})
	})

	Describe("Forwarding precedence", func() {
		DescribeTable("the consumer sees the newest producer",
			func(program []int32, wantR1, wantR2 int32) {
				pipe := newPipeline(program)

				Expect(pipe.Run()).To(Succeed())

				Expect(pipe.State().Reg.ReadReg(1)).To(Equal(wantR1))
				Expect(pipe.State().Reg.ReadReg(2)).To(Equal(wantR2))
				Expect(pipe.Cycles()).To(Equal(uint64(9)))
			},
			Entry("EX/MEM over MEM/WB over WBEND",
				[]int32{lw(0, 1, 8), nand(0, 0, 1), add(1, 1, 1), add(1, 0, 2), halt, 0, 0, 0, 10},
				int32(-2), int32(-2)),
			Entry("MEM/WB over WBEND",
				[]int32{lw(0, 1, 8), nand(0, 0, 1), noop, add(1, 0, 2), halt, 0, 0, 0, 10},
				int32(-1), int32(-1)),
			Entry("WBEND alone",
				[]int32{lw(0, 1, 8), noop, noop, add(1, 0, 2), halt, 0, 0, 0, 10},
				int32(10), int32(10)),
		)
	})

	Describe("Reference equivalence", func() {
		DescribeTable("final architectural state matches the reference interpreter",
			func(program []int32) {
				pipe := newPipeline(program)
				Expect(pipe.Run()).To(Succeed())
				ref := runReference(program)

				s := pipe.State()
				Expect(cmp.Diff(ref.RegFile().R, s.Reg.R)).To(BeEmpty())
				Expect(cmp.Diff(ref.Memory().Words(), s.Mem.Words())).To(BeEmpty())
				Expect(pipe.Stats().Instructions).To(Equal(ref.InstructionCount()))
			},
			Entry("alu chain", aluChain),
			Entry("load-use", loadUse),
			Entry("store/load", storeLoad),
			Entry("branch taken", branchTaken),
			Entry("branch not taken", branchNotTaken),
			Entry("countdown", countdown),
		)
	})

	Describe("JALR", func() {
		program := []int32{insts.EncodeIType(insts.OpJALR, 1, 2, 0), halt}

		It("should retire as a counted no-op", func() {
			pipe := newPipeline(program)

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.Cycles()).To(Equal(uint64(6)))
			Expect(pipe.Stats().UnsupportedOps).To(Equal(uint64(1)))
			Expect(pipe.State().Reg.R).To(Equal([insts.NumRegs]int32{}))
		})

		It("should fail in strict mode", func() {
			pipe := newPipeline(program, pipeline.WithStrictOpcodes())

			err := pipe.Run()

			Expect(errors.Is(err, pipeline.ErrUnsupportedOpcode)).To(BeTrue())
			Expect(pipe.Err()).To(Equal(err))
			Expect(pipe.Halted()).To(BeTrue())
			Expect(pipe.Cycles()).To(Equal(uint64(4)))
		})
	})

	Describe("Statistics", func() {
		It("should count only instructions that retire", func() {
			pipe := newPipeline([]int32{halt, insts.EncodeIType(insts.OpJALR, 1, 2, 0)})

			Expect(pipe.Run()).To(Succeed())

			stats := pipe.Stats()
			Expect(stats.Instructions).To(Equal(uint64(1)))
			Expect(stats.UnsupportedOps).To(BeZero())
		})

		It("should ignore the data word fetched behind HALT", func() {
			pipe := newPipeline(loadUse)

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.State().MEMWB.Inst.Op).To(Equal(insts.OpADD))
			stats := pipe.Stats()
			Expect(stats.Instructions).To(Equal(runReference(loadUse).InstructionCount()))
			Expect(stats.Instructions).To(Equal(uint64(3)))
			Expect(stats.UnsupportedOps).To(BeZero())
		})

		It("should count both operands forwarded from MEM/WB after a stall", func() {
			pipe := newPipeline(loadUse)

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.Stats().ForwardedOperands).To(Equal(uint64(2)))
		})
	})

	Describe("Errors", func() {
		It("should stop on a memory fault and discard the faulting cycle", func() {
			pipe := newPipeline([]int32{lw(0, 1, 100), halt})

			err := pipe.Run()

			Expect(errors.Is(err, emu.ErrMemoryFault)).To(BeTrue())
			var fault *emu.MemoryFaultError
			Expect(errors.As(err, &fault)).To(BeTrue())
			Expect(fault.Addr).To(Equal(int32(100)))
			Expect(err.Error()).To(HavePrefix("cycle 3:"))
			Expect(pipe.Cycles()).To(Equal(uint64(3)))
			Expect(pipe.State().EXMEM.Inst.Op).To(Equal(insts.OpLW))
		})

		It("should stop at the cycle limit", func() {
			pipe := newPipeline(countdown, pipeline.WithMaxCycles(10))

			err := pipe.Run()

			Expect(errors.Is(err, pipeline.ErrCycleLimit)).To(BeTrue())
			Expect(pipe.Cycles()).To(Equal(uint64(10)))
		})
	})

	Describe("Observers", func() {
		It("should see every state, including the halted one", func() {
			var cycles []uint64
			var last pipeline.State
			pipe := newPipeline([]int32{halt}, pipeline.WithObserver(pipeline.ObserverFunc(
				func(s *pipeline.State) {
					cycles = append(cycles, s.Cycles)
					last = *s
				})))

			Expect(pipe.Run()).To(Succeed())

			Expect(cycles).To(Equal([]uint64{0, 1, 2, 3, 4, 5}))
			Expect(last.WBEND.Inst.Op).To(Equal(insts.OpHALT))
		})

		It("should not let an observer change the machine state", func() {
			pipe := newPipeline([]int32{halt}, pipeline.WithObserver(pipeline.ObserverFunc(
				func(s *pipeline.State) {
					s.PC = 100
					s.Reg.R[3] = 42
					s.WBEND.Clear()
				})))

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.Cycles()).To(Equal(uint64(5)))
			Expect(pipe.State().Reg.R).To(Equal([insts.NumRegs]int32{}))
		})

		It("should never see a cycle that faulted", func() {
			var seen []uint64
			pipe := newPipeline([]int32{lw(0, 1, 100), halt}, pipeline.WithObserver(pipeline.ObserverFunc(
				func(s *pipeline.State) { seen = append(seen, s.Cycles) })))

			Expect(pipe.Run()).NotTo(Succeed())
			Expect(seen).To(Equal([]uint64{0, 1, 2, 3}))
		})
	})

	Describe("Access probes", func() {
		It("should profile fetch addresses inside memory", func() {
			pipe := newPipeline([]int32{halt}, pipeline.WithICacheProbe(cache.DefaultL1IConfig()))

			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.Stats().ICache.Reads).To(Equal(uint64(1)))
			Expect(pipe.Stats().ICache.Misses).To(Equal(uint64(1)))
			Expect(pipe.Stats().DCache).To(Equal(cache.Statistics{}))
		})

		It("should profile load and store addresses without changing timing", func() {
			pipe := newPipeline(storeLoad, pipeline.WithDCacheProbe(cache.Config{
				SizeWords:     8,
				Associativity: 1,
				BlockWords:    2,
			}))

			Expect(pipe.Run()).To(Succeed())

			stats := pipe.Stats()
			Expect(stats.Cycles).To(Equal(uint64(11)))
			Expect(stats.DCache.Reads).To(Equal(uint64(2)))
			Expect(stats.DCache.Writes).To(Equal(uint64(1)))
		})
	})
})
