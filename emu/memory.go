package emu

// Memory is the linear address space seen by the processor.
type Memory interface {
	Read8(addr uint32) uint8
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write8(addr uint32, v uint8)
	Write16(addr uint32, v uint16)
	Write32(addr uint32, v uint32)
}

// DefaultMemorySize is 1 MiB of conventional memory plus the high memory
// area.
const DefaultMemorySize = 0x110000

// PhysicalMemory is a flat byte array. Addresses past the end read 0xFF
// and ignore writes. With A20 disabled, addresses wrap at 1 MiB.
type PhysicalMemory struct {
	data    []byte
	a20Mask uint32
}

// NewPhysicalMemory allocates size bytes of memory with A20 enabled.
func NewPhysicalMemory(size uint32) *PhysicalMemory {
	return &PhysicalMemory{
		data:    make([]byte, size),
		a20Mask: 0xFFFFFFFF,
	}
}

// SetA20 enables or disables the A20 address line.
func (m *PhysicalMemory) SetA20(enabled bool) {
	if enabled {
		m.a20Mask = 0xFFFFFFFF
	} else {
		m.a20Mask = 0xFFEFFFFF
	}
}

// A20 reports whether the A20 line is enabled.
func (m *PhysicalMemory) A20() bool {
	return m.a20Mask == 0xFFFFFFFF
}

// Size returns the memory size in bytes.
func (m *PhysicalMemory) Size() uint32 {
	return uint32(len(m.data))
}

// Read8 reads a byte.
func (m *PhysicalMemory) Read8(addr uint32) uint8 {
	addr &= m.a20Mask
	if addr >= uint32(len(m.data)) {
		return 0xFF
	}
	return m.data[addr]
}

// Read16 reads a little-endian word.
func (m *PhysicalMemory) Read16(addr uint32) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Read32 reads a little-endian dword.
func (m *PhysicalMemory) Read32(addr uint32) uint32 {
	return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
}

// Write8 writes a byte.
func (m *PhysicalMemory) Write8(addr uint32, v uint8) {
	addr &= m.a20Mask
	if addr >= uint32(len(m.data)) {
		return
	}
	m.data[addr] = v
}

// Write16 writes a little-endian word.
func (m *PhysicalMemory) Write16(addr uint32, v uint16) {
	m.Write8(addr, uint8(v))
	m.Write8(addr+1, uint8(v>>8))
}

// Write32 writes a little-endian dword.
func (m *PhysicalMemory) Write32(addr uint32, v uint32) {
	m.Write16(addr, uint16(v))
	m.Write16(addr+2, uint16(v>>16))
}

// Load copies data into memory starting at addr.
func (m *PhysicalMemory) Load(addr uint32, data []byte) {
	for i, b := range data {
		m.Write8(addr+uint32(i), b)
	}
}

// ReadBytes copies n bytes starting at addr.
func (m *PhysicalMemory) ReadBytes(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.Read8(addr + uint32(i))
	}
	return out
}

func readSized(m Memory, size uint8, addr uint32) uint32 {
	switch size {
	case 1:
		return uint32(m.Read8(addr))
	case 2:
		return uint32(m.Read16(addr))
	default:
		return m.Read32(addr)
	}
}

func writeSized(m Memory, size uint8, addr uint32, v uint32) {
	switch size {
	case 1:
		m.Write8(addr, uint8(v))
	case 2:
		m.Write16(addr, uint16(v))
	default:
		m.Write32(addr, v)
	}
}
