package cache

import "github.com/gregdivis/Aeon-sub003/emu"

// TimedMemory decorates an emu.Memory with the cache model. Data goes to
// the wrapped memory unchanged; every access is charged its modeled
// latency.
type TimedMemory struct {
	emu.Memory
	cache  *Cache
	cycles uint64
}

// NewTimedMemory wraps mem with c.
func NewTimedMemory(mem emu.Memory, c *Cache) *TimedMemory {
	return &TimedMemory{Memory: mem, cache: c}
}

// Cache returns the cache model.
func (m *TimedMemory) Cache() *Cache {
	return m.cache
}

// Cycles returns the accumulated memory access latency.
func (m *TimedMemory) Cycles() uint64 {
	return m.cycles
}

// Reset clears the cache model and the accumulated latency.
func (m *TimedMemory) Reset() {
	m.cache.Reset()
	m.cycles = 0
}

// charge models an access of size bytes, touching a second block when the
// access straddles a line boundary.
func (m *TimedMemory) charge(addr uint32, size uint32, write bool) {
	access := m.cache.Read
	if write {
		access = m.cache.Write
	}

	first := uint64(addr)
	last := uint64(addr + size - 1)
	m.cycles += access(first).Latency
	if m.cache.blockAddr(first) != m.cache.blockAddr(last) {
		m.cycles += access(last).Latency
	}
}

func (m *TimedMemory) Read8(addr uint32) uint8 {
	m.charge(addr, 1, false)
	return m.Memory.Read8(addr)
}

func (m *TimedMemory) Read16(addr uint32) uint16 {
	m.charge(addr, 2, false)
	return m.Memory.Read16(addr)
}

func (m *TimedMemory) Read32(addr uint32) uint32 {
	m.charge(addr, 4, false)
	return m.Memory.Read32(addr)
}

func (m *TimedMemory) Write8(addr uint32, v uint8) {
	m.charge(addr, 1, true)
	m.Memory.Write8(addr, v)
}

func (m *TimedMemory) Write16(addr uint32, v uint16) {
	m.charge(addr, 2, true)
	m.Memory.Write16(addr, v)
}

func (m *TimedMemory) Write32(addr uint32, v uint32) {
	m.charge(addr, 4, true)
	m.Memory.Write32(addr, v)
}
