// Package cache provides access-latency modeling using Akita cache components.
//
// The model is tag-only: it tracks which blocks would be resident and what
// each access would cost, while the data itself stays in the memory the
// processor addresses.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int `json:"size" yaml:"size"`
	// Associativity (number of ways)
	Associativity int `json:"associativity" yaml:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `json:"block_size" yaml:"block_size"`
	// HitLatency in cycles
	HitLatency uint64 `json:"hit_latency" yaml:"hit_latency"`
	// MissLatency in cycles (includes memory access time)
	MissLatency uint64 `json:"miss_latency" yaml:"miss_latency"`
}

// DefaultConfig returns a small unified cache in the style of an external
// 486-era board cache: 8KB, 4-way, 16B lines.
func DefaultConfig() Config {
	return Config{
		Size:          8 * 1024,
		Associativity: 4,
		BlockSize:     16,
		HitLatency:    1,
		MissLatency:   8,
	}
}

// Validate checks that the geometry divides into whole sets.
func (c Config) Validate() error {
	if c.Size <= 0 || c.Associativity <= 0 || c.BlockSize <= 0 {
		return fmt.Errorf("cache size, associativity and block size must be > 0")
	}
	if c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("cache block size %d is not a power of two", c.BlockSize)
	}
	if c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("cache size %d is not a multiple of associativity*block size", c.Size)
	}
	if c.MissLatency < c.HitLatency {
		return fmt.Errorf("miss latency must be >= hit latency")
	}
	return nil
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint64
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// HitRate returns hits over all accesses, or 0 before the first access.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a write-back, write-allocate tag directory.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	stats     Statistics
}

// New creates a new cache with the given configuration.
func New(config Config) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
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
	return addr &^ uint64(c.config.BlockSize-1)
}

// Read models a load touching addr.
func (c *Cache) Read(addr uint64) AccessResult {
	c.stats.Reads++
	return c.access(addr, false)
}

// Write models a store touching addr.
func (c *Cache) Write(addr uint64) AccessResult {
	c.stats.Writes++
	return c.access(addr, true)
}

func (c *Cache) access(addr uint64, isWrite bool) AccessResult {
	blockAddr := c.blockAddr(addr)

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		if isWrite {
			block.IsDirty = true
		}
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}

	c.stats.Misses++
	return c.handleMiss(blockAddr, isWrite)
}

// handleMiss allocates a block for blockAddr, evicting the LRU way.
func (c *Cache) handleMiss(blockAddr uint64, isWrite bool) AccessResult {
	result := AccessResult{Latency: c.config.MissLatency}

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag
		if victim.IsDirty {
			c.stats.Writebacks++
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = isWrite
	c.directory.Visit(victim)

	return result
}

// Invalidate marks a cache line as invalid.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush counts writebacks for all dirty blocks and invalidates every line.
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

// Reset invalidates all cache lines and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}
