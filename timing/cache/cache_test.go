package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/timing/cache"
)

var _ = Describe("Cache", func() {
	var c *cache.Cache

	BeforeEach(func() {
		// Small cache for testing: 4KB, 4-way, 64B lines
		config := cache.Config{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
			MissLatency:   10,
		}
		c = cache.New(config)
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			result := c.Read(0x1000)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on cached data", func() {
			c.Read(0x1000)

			result := c.Read(0x1000)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))
			Expect(c.Stats().HitRate()).To(Equal(0.5))
		})

		It("should hit on different addresses in same cache line", func() {
			c.Read(0x1000)
			Expect(c.Read(0x103F).Hit).To(BeTrue())
			Expect(c.Read(0x1040).Hit).To(BeFalse())
		})
	})

	Describe("Write operations", func() {
		It("should allocate on a write miss", func() {
			result := c.Write(0x2000)
			Expect(result.Hit).To(BeFalse())
			Expect(c.Read(0x2000).Hit).To(BeTrue())
		})
	})

	Describe("Eviction", func() {
		// 4KB / (4 * 64) = 16 sets; addresses 1KB apart share a set.
		const setStride = 16 * 64

		It("should evict the least recently used way", func() {
			for i := uint64(0); i < 4; i++ {
				c.Read(i * setStride)
			}
			c.Read(0) // make way 0 most recent

			result := c.Read(4 * setStride)
			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(setStride)))
			Expect(c.Read(0).Hit).To(BeTrue())
		})

		It("should count writebacks for dirty victims", func() {
			c.Write(0)
			for i := uint64(1); i <= 4; i++ {
				c.Read(i * setStride)
			}

			stats := c.Stats()
			Expect(stats.Evictions).To(Equal(uint64(1)))
			Expect(stats.Writebacks).To(Equal(uint64(1)))
		})
	})

	Describe("Invalidate and Flush", func() {
		It("should miss after invalidation", func() {
			c.Read(0x3000)
			c.Invalidate(0x3000)
			Expect(c.Read(0x3000).Hit).To(BeFalse())
		})

		It("should write back dirty lines on flush", func() {
			c.Write(0x100)
			c.Read(0x200)
			c.Flush()

			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
			Expect(c.Read(0x200).Hit).To(BeFalse())
		})

		It("should clear everything on reset", func() {
			c.Read(0x100)
			c.Reset()
			Expect(c.Stats()).To(Equal(cache.Statistics{}))
			Expect(c.Read(0x100).Hit).To(BeFalse())
		})
	})

	Describe("Config", func() {
		It("should accept the default geometry", func() {
			Expect(cache.DefaultConfig().Validate()).To(Succeed())
		})

		It("should reject a block size that is not a power of two", func() {
			config := cache.DefaultConfig()
			config.BlockSize = 24
			Expect(config.Validate()).To(HaveOccurred())
		})

		It("should reject sizes that do not divide into sets", func() {
			config := cache.DefaultConfig()
			config.Size = 1000
			Expect(config.Validate()).To(HaveOccurred())
		})
	})
})

var _ = Describe("TimedMemory", func() {
	var (
		backing *emu.PhysicalMemory
		timed   *cache.TimedMemory
	)

	BeforeEach(func() {
		backing = emu.NewPhysicalMemory(0x10000)
		timed = cache.NewTimedMemory(backing, cache.New(cache.Config{
			Size:          1024,
			Associativity: 2,
			BlockSize:     16,
			HitLatency:    1,
			MissLatency:   5,
		}))
	})

	It("should pass data through to the wrapped memory", func() {
		timed.Write32(0x40, 0xDEADBEEF)
		Expect(backing.Read32(0x40)).To(Equal(uint32(0xDEADBEEF)))
		Expect(timed.Read16(0x42)).To(Equal(uint16(0xDEAD)))
	})

	It("should charge a miss then a hit", func() {
		timed.Read8(0x10)
		Expect(timed.Cycles()).To(Equal(uint64(5)))
		timed.Read8(0x11)
		Expect(timed.Cycles()).To(Equal(uint64(6)))
	})

	It("should charge both lines of a straddling access", func() {
		timed.Read32(0x1E)
		Expect(timed.Cycles()).To(Equal(uint64(10)))
		Expect(timed.Cache().Stats().Misses).To(Equal(uint64(2)))
	})

	It("should start cold after Reset", func() {
		timed.Read8(0x10)
		timed.Reset()
		Expect(timed.Cycles()).To(BeZero())
		Expect(timed.Cache().Stats()).To(Equal(cache.Statistics{}))

		timed.Read8(0x10)
		Expect(timed.Cycles()).To(Equal(uint64(5)))
	})

	It("should serve as the emulator's memory", func() {
		e := emu.NewEmulator(emu.WithMemory(timed))
		e.Load(0x100, []byte{0xB8, 0x34, 0x12}) // mov ax,0x1234
		e.Processor().EIP = 0x100
		timed.Cache().ResetStats()

		Expect(e.Step().Err).NotTo(HaveOccurred())

		Expect(e.Processor().Reg16(0)).To(Equal(uint16(0x1234)))
		Expect(timed.Cache().Stats().Reads).To(BeNumerically(">=", 3))
	})
})
