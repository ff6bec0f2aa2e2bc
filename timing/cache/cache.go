// Package cache provides set-associative cache models built on Akita cache
// components.
//
// The simulated machine has single-cycle memory, so these caches never add
// latency or hold data. They profile the access stream: every fetch or
// load/store address is looked up in an Akita directory with LRU
// replacement, and hits, misses, evictions and dirty writebacks are counted.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache geometry. Sizes are in machine words.
type Config struct {
	// SizeWords is the capacity in words.
	SizeWords int `json:"size_words" yaml:"size_words"`
	// Associativity is the number of ways per set.
	Associativity int `json:"associativity" yaml:"associativity"`
	// BlockWords is the line size in words.
	BlockWords int `json:"block_words" yaml:"block_words"`
}

// DefaultL1IConfig returns the default instruction-side geometry:
// 256 words, 2-way, 4-word lines.
func DefaultL1IConfig() Config {
	return Config{
		SizeWords:     256,
		Associativity: 2,
		BlockWords:    4,
	}
}

// DefaultL1DConfig returns the default data-side geometry:
// 128 words, 4-way, 4-word lines.
func DefaultL1DConfig() Config {
	return Config{
		SizeWords:     128,
		Associativity: 4,
		BlockWords:    4,
	}
}

// NumSets returns the number of sets implied by the geometry.
func (c Config) NumSets() int {
	if c.Associativity <= 0 || c.BlockWords <= 0 {
		return 0
	}
	return c.SizeWords / (c.Associativity * c.BlockWords)
}

// Validate checks that the geometry describes at least one full set.
func (c Config) Validate() error {
	if c.SizeWords <= 0 {
		return fmt.Errorf("size_words must be > 0")
	}
	if c.Associativity <= 0 {
		return fmt.Errorf("associativity must be > 0")
	}
	if c.BlockWords <= 0 {
		return fmt.Errorf("block_words must be > 0")
	}
	if c.SizeWords%(c.Associativity*c.BlockWords) != 0 {
		return fmt.Errorf("size_words must be a multiple of associativity*block_words")
	}
	return nil
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the block address of the evicted block.
	EvictedAddr uint64
	// Writeback is true if the evicted block was dirty.
	Writeback bool
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64 `json:"reads"`
	Writes     uint64 `json:"writes"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
	Writebacks uint64 `json:"writebacks"`
}

// HitRate returns hits as a percentage of all accesses.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Cache is a write-allocate, write-back tag store.
type Cache struct {
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	stats Statistics
}

// New creates a cache with the given geometry. The geometry must pass
// Config.Validate.
func New(config Config) *Cache {
	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			config.NumSets(),
			config.Associativity,
			config.BlockWords,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	size := uint64(c.config.BlockWords)
	return (addr / size) * size
}

// Contains reports whether the block holding addr is resident. It does not
// touch LRU state or statistics.
func (c *Cache) Contains(addr uint64) bool {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	return block != nil && block.IsValid
}

// Access looks up a word address, allocating the block on a miss.
func (c *Cache) Access(addr uint64, write bool) AccessResult {
	if write {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr) // PID=0, single address space

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		if write {
			block.IsDirty = true
		}
		return AccessResult{Hit: true}
	}

	c.stats.Misses++
	return c.allocate(blockAddr, write)
}

// allocate installs blockAddr in the LRU victim of its set.
func (c *Cache) allocate(blockAddr uint64, write bool) AccessResult {
	result := AccessResult{}

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag // Tag stores the block-aligned address
		if victim.IsDirty {
			c.stats.Writebacks++
			result.Writeback = true
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = write
	c.directory.Visit(victim)

	return result
}

// Invalidate marks the block holding addr as invalid.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush counts a writeback for every dirty block and invalidates all blocks.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all blocks and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}
