package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/lc5sim/insts"
)

// MaxMemoryWords is the largest memory image the machine can address.
const MaxMemoryWords = 65536

// ErrMemoryFault is wrapped by every out-of-range load or store.
var ErrMemoryFault = errors.New("memory fault")

// MemoryFaultError describes a load or store outside the memory image.
type MemoryFaultError struct {
	Addr  int32
	Size  int
	Write bool
}

func (e *MemoryFaultError) Error() string {
	access := "load from"
	if e.Write {
		access = "store to"
	}
	return fmt.Sprintf("memory fault: %s address %d outside [0, %d)", access, e.Addr, e.Size)
}

// Unwrap lets errors.Is match ErrMemoryFault.
func (e *MemoryFaultError) Unwrap() error {
	return ErrMemoryFault
}

// Memory is a flat word-addressed memory shared by instruction fetch and
// data access. Its size is fixed at construction.
type Memory struct {
	words []int32
}

// NewMemory creates a zero-filled memory of the given size, clamped to
// [0, MaxMemoryWords].
func NewMemory(size int) *Memory {
	if size < 0 {
		size = 0
	}
	if size > MaxMemoryWords {
		size = MaxMemoryWords
	}
	return &Memory{words: make([]int32, size)}
}

// NewMemoryFromImage creates a memory holding image at addresses starting
// from 0. The memory is padded with zeros up to size words; if size is
// smaller than the image the image length is used.
func NewMemoryFromImage(image []int32, size int) (*Memory, error) {
	if len(image) > MaxMemoryWords {
		return nil, fmt.Errorf("image of %d words exceeds %d-word memory", len(image), MaxMemoryWords)
	}
	if size < len(image) {
		size = len(image)
	}
	m := NewMemory(size)
	copy(m.words, image)
	return m, nil
}

// Size returns the number of words in memory.
func (m *Memory) Size() int {
	return len(m.words)
}

func (m *Memory) inRange(addr int32) bool {
	return addr >= 0 && int(addr) < len(m.words)
}

// Read loads a data word.
func (m *Memory) Read(addr int32) (int32, error) {
	if !m.inRange(addr) {
		return 0, &MemoryFaultError{Addr: addr, Size: len(m.words)}
	}
	return m.words[addr], nil
}

// Write stores a data word.
func (m *Memory) Write(addr int32, value int32) error {
	if !m.inRange(addr) {
		return &MemoryFaultError{Addr: addr, Size: len(m.words), Write: true}
	}
	m.words[addr] = value
	return nil
}

// Fetch reads an instruction word. Addresses outside the image read as a
// NOOP so that fetching past the end of a program is harmless.
func (m *Memory) Fetch(addr int32) int32 {
	if !m.inRange(addr) {
		return insts.NoopWord
	}
	return m.words[addr]
}

// Words returns a copy of the memory contents.
func (m *Memory) Words() []int32 {
	out := make([]int32, len(m.words))
	copy(out, m.words)
	return out
}

// Clone returns a deep copy of the memory.
func (m *Memory) Clone() *Memory {
	return &Memory{words: m.Words()}
}
