package emu

// PortIO is the processor's I/O port space.
type PortIO interface {
	In8(port uint16) uint8
	In16(port uint16) uint16
	Out8(port uint16, v uint8)
	Out16(port uint16, v uint16)
}

// Device handles byte-wide port accesses.
type Device interface {
	In8(port uint16) uint8
	Out8(port uint16, v uint8)
}

// WordDevice is a Device that also handles 16-bit accesses directly.
type WordDevice interface {
	Device
	In16(port uint16) uint16
	Out16(port uint16, v uint16)
}

// PortBinding maps a list of ports to a device.
type PortBinding struct {
	Ports  []uint16
	Device Device
}

// PortMap routes port accesses to devices. Unmapped reads return all ones
// and unmapped writes are dropped.
type PortMap struct {
	devices map[uint16]Device
}

// NewPortMap builds a port map from a static binding list. Later bindings
// replace earlier ones for the same port.
func NewPortMap(bindings ...PortBinding) *PortMap {
	m := &PortMap{devices: make(map[uint16]Device)}
	for _, b := range bindings {
		for _, port := range b.Ports {
			m.devices[port] = b.Device
		}
	}
	return m
}

// In8 reads a byte from a port.
func (m *PortMap) In8(port uint16) uint8 {
	if d, ok := m.devices[port]; ok {
		return d.In8(port)
	}
	return 0xFF
}

// In16 reads a word from a port.
func (m *PortMap) In16(port uint16) uint16 {
	if d, ok := m.devices[port].(WordDevice); ok {
		return d.In16(port)
	}
	return uint16(m.In8(port)) | uint16(m.In8(port+1))<<8
}

// Out8 writes a byte to a port.
func (m *PortMap) Out8(port uint16, v uint8) {
	if d, ok := m.devices[port]; ok {
		d.Out8(port, v)
	}
}

// Out16 writes a word to a port.
func (m *PortMap) Out16(port uint16, v uint16) {
	if d, ok := m.devices[port].(WordDevice); ok {
		d.Out16(port, v)
		return
	}
	m.Out8(port, uint8(v))
	m.Out8(port+1, uint8(v>>8))
}

// Mapped reports whether a device is bound to port.
func (m *PortMap) Mapped(port uint16) bool {
	_, ok := m.devices[port]
	return ok
}
