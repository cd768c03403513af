// Package predecode caches instruction-length marks per code line using Akita
// cache components.
//
// A line holds one mark per byte offset. A mark is the length of the
// instruction starting at that offset, with the high bit set when that length
// was clamped, or zero when that offset has not been decoded yet. Instructions may cross line boundaries; the bytes are always
// read through the backing store.
package predecode

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/x86len/insts"
)

// Config holds predecode cache configuration parameters.
type Config struct {
	// Size in bytes of code covered by the cache.
	Size int `json:"size"`
	// Associativity (number of ways)
	Associativity int `json:"associativity"`
	// BlockSize in bytes (code line size)
	BlockSize int `json:"block_size"`
}

// DefaultConfig returns the configuration of a typical x86 L1I:
// 32KB, 8-way, 64B line.
func DefaultConfig() Config {
	return Config{
		Size:          32 * 1024, // 32KB
		Associativity: 8,         // 8-way
		BlockSize:     64,        // 64B line
	}
}

// Validate checks that the geometry describes at least one full set.
func (c Config) Validate() error {
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a power of two, got %d", c.BlockSize)
	}
	if c.Associativity <= 0 {
		return fmt.Errorf("associativity must be > 0")
	}
	if c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("size must be a positive multiple of associativity*block_size (%d)",
			c.Associativity*c.BlockSize)
	}
	return nil
}

// NumSets returns the number of sets the geometry implies.
func (c Config) NumSets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// Statistics holds predecode cache statistics.
type Statistics struct {
	Lookups   uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns the fraction of lookups served from recorded marks.
func (s Statistics) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// BackingStore supplies the code bytes the cache decodes from.
type BackingStore interface {
	// Read returns size bytes starting at addr. Unmapped bytes read as zero.
	Read(addr uint64, size int) []byte
}

// markClamped flags a mark whose length was clamped by the decoder.
const markClamped = 0x80

// Entry is the recorded decode result for one address.
type Entry struct {
	Len     int
	Clamped bool
}

func entryOf(mark uint8) Entry {
	return Entry{Len: int(mark &^ markClamped), Clamped: mark&markClamped != 0}
}

// Cache memoises instruction lengths per code line. It is not safe for
// concurrent use.
type Cache struct {
	config Config

	decoder *insts.Decoder

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Length marks - indexed by (setID * associativity + wayID)
	marks [][]uint8

	stats Statistics

	backing BackingStore
}

// New creates a predecode cache decoding through d from backing. The config
// must be valid.
func New(config Config, d *insts.Decoder, backing BackingStore) *Cache {
	numSets := config.NumSets()
	totalBlocks := numSets * config.Associativity

	marks := make([][]uint8, totalBlocks)
	for i := range marks {
		marks[i] = make([]uint8, config.BlockSize)
	}

	return &Cache{
		config:  config,
		decoder: d,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		marks:   marks,
		backing: backing,
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

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return addr &^ uint64(c.config.BlockSize-1)
}

// Length returns the length of the instruction starting at addr. On a miss it
// decodes from the backing store and records the mark.
func (c *Cache) Length(addr uint64) (int, error) {
	e, err := c.Lookup(addr)
	return e.Len, err
}

// Lookup is like Length but also reports whether the length was clamped.
func (c *Cache) Lookup(addr uint64) (Entry, error) {
	c.stats.Lookups++

	blockAddr := c.blockAddr(addr)
	offset := addr - blockAddr

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.directory.Visit(block)

		lineMarks := c.marks[c.blockIndex(block)]
		if m := lineMarks[offset]; m != 0 {
			c.stats.Hits++
			return entryOf(m), nil
		}

		c.stats.Misses++
		return c.fill(addr, lineMarks[offset:offset+1])
	}

	c.stats.Misses++

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return c.fill(addr, nil)
	}

	if victim.IsValid {
		c.stats.Evictions++
	}

	lineMarks := c.marks[c.blockIndex(victim)]
	clear(lineMarks)

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	return c.fill(addr, lineMarks[offset:offset+1])
}

// fill decodes the instruction at addr and stores its mark.
func (c *Cache) fill(addr uint64, mark []uint8) (Entry, error) {
	code := c.backing.Read(addr, insts.MaxInstLen)

	inst, err := c.decoder.Inspect(code)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to predecode at 0x%x: %w", addr, err)
	}

	m := uint8(inst.Len)
	if inst.Clamped {
		m |= markClamped
	}
	if len(mark) > 0 {
		mark[0] = m
	}
	return entryOf(m), nil
}

// Contains reports whether the mark for addr is recorded. It does not touch
// LRU state or statistics.
func (c *Cache) Contains(addr uint64) bool {
	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)
	if block == nil || !block.IsValid {
		return false
	}
	return c.marks[c.blockIndex(block)][addr-blockAddr] != 0
}

// Invalidate drops the line holding addr, as needed after code is modified.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		clear(c.marks[c.blockIndex(block)])
	}
}

// Reset invalidates all lines and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	for _, lineMarks := range c.marks {
		clear(lineMarks)
	}
	c.stats = Statistics{}
}

// ResidentLines returns the number of valid lines.
func (c *Cache) ResidentLines() int {
	n := 0
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				n++
			}
		}
	}
	return n
}
