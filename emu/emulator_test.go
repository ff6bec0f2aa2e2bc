package emu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lc5sim/emu"
	"github.com/sarchlab/lc5sim/insts"
)

func newEmulator(program []int32, opts ...emu.EmulatorOption) *emu.Emulator {
	memory, err := emu.NewMemoryFromImage(program, 0)
	Expect(err).NotTo(HaveOccurred())
	return emu.NewEmulator(memory, append(opts, emu.WithLogger(GinkgoLogr))...)
}

var _ = Describe("Emulator", func() {
	Describe("NewEmulator", func() {
		It("should start at pc 0 with cleared registers", func() {
			e := newEmulator([]int32{insts.EncodeOType(insts.OpHALT)})

			Expect(e.PC()).To(Equal(int32(0)))
			Expect(e.RegFile().R).To(Equal([insts.NumRegs]int32{}))
			Expect(e.Halted()).To(BeFalse())
		})
	})

	Describe("Step", func() {
		It("should execute add and write the destination register", func() {
			e := newEmulator([]int32{
				insts.EncodeRType(insts.OpADD, 1, 2, 3),
				insts.EncodeOType(insts.OpHALT),
			})
			e.RegFile().WriteReg(1, 4)
			e.RegFile().WriteReg(2, 5)

			result := e.Step()

			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Halted).To(BeFalse())
			Expect(e.RegFile().ReadReg(3)).To(Equal(int32(9)))
			Expect(e.PC()).To(Equal(int32(1)))
		})

		It("should stop on halt", func() {
			e := newEmulator([]int32{insts.EncodeOType(insts.OpHALT)})

			result := e.Step()

			Expect(result.Halted).To(BeTrue())
			Expect(e.Halted()).To(BeTrue())
			Expect(e.InstructionCount()).To(Equal(uint64(1)))
		})

		It("should treat jalr as an unsupported no-op", func() {
			e := newEmulator([]int32{
				insts.EncodeIType(insts.OpJALR, 1, 2, 0),
				insts.EncodeOType(insts.OpHALT),
			})
			e.RegFile().WriteReg(1, 7)

			Expect(e.Run()).To(Succeed())
			Expect(e.UnsupportedCount()).To(Equal(uint64(1)))
			Expect(e.RegFile().ReadReg(2)).To(Equal(int32(0)))
			Expect(e.PC()).To(Equal(int32(2)))
		})
	})

	Describe("Run", func() {
		// 0: lw 0 1 7     r1 = 5
		// 1: lw 0 2 8     r2 = -1
		// 2: add 1 2 1    r1 = r1 - 1
		// 3: beq 0 1 1    exit loop when r1 == 0
		// 4: beq 0 0 -3   back to 2
		// 5: sw 0 2 9     mem[9] = -1
		// 6: halt
		// 7: 5
		// 8: -1
		// 9: 0
		countdown := []int32{
			insts.EncodeIType(insts.OpLW, 0, 1, 7),
			insts.EncodeIType(insts.OpLW, 0, 2, 8),
			insts.EncodeRType(insts.OpADD, 1, 2, 1),
			insts.EncodeIType(insts.OpBEQ, 0, 1, 1),
			insts.EncodeIType(insts.OpBEQ, 0, 0, -3),
			insts.EncodeIType(insts.OpSW, 0, 2, 9),
			insts.EncodeOType(insts.OpHALT),
			5,
			-1,
			0,
		}

		It("should run a countdown loop to completion", func() {
			e := newEmulator(countdown)

			Expect(e.Run()).To(Succeed())

			Expect(e.RegFile().ReadReg(1)).To(Equal(int32(0)))
			Expect(e.RegFile().ReadReg(2)).To(Equal(int32(-1)))
			v, err := e.Memory().Read(9)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(int32(-1)))
			Expect(e.InstructionCount()).To(Equal(uint64(18)))
			Expect(e.PC()).To(Equal(int32(7)))
		})

		It("should stop at the instruction limit", func() {
			e := newEmulator(countdown, emu.WithMaxInstructions(10))

			err := e.Run()

			Expect(errors.Is(err, emu.ErrInstructionLimit)).To(BeTrue())
			Expect(e.InstructionCount()).To(Equal(uint64(10)))
		})

		It("should report a memory fault", func() {
			e := newEmulator([]int32{
				insts.EncodeIType(insts.OpLW, 0, 1, 100),
				insts.EncodeOType(insts.OpHALT),
			})

			err := e.Run()

			Expect(errors.Is(err, emu.ErrMemoryFault)).To(BeTrue())
			var fault *emu.MemoryFaultError
			Expect(errors.As(err, &fault)).To(BeTrue())
			Expect(fault.Addr).To(Equal(int32(100)))
		})

		It("should report running off the end of memory", func() {
			e := newEmulator([]int32{insts.NoopWord})

			err := e.Run()

			Expect(errors.Is(err, emu.ErrPCOutOfRange)).To(BeTrue())
		})

		It("should start at a custom pc", func() {
			e := newEmulator([]int32{
				insts.EncodeRType(insts.OpNAND, 0, 0, 1),
				insts.EncodeOType(insts.OpHALT),
			}, emu.WithPC(1))

			Expect(e.Run()).To(Succeed())
			Expect(e.RegFile().ReadReg(1)).To(Equal(int32(0)))
			Expect(e.InstructionCount()).To(Equal(uint64(1)))
		})
	})
})
