// Package pic provides an 8259-style programmable interrupt controller.
//
// Devices raise IRQ lines from any goroutine; the emulator polls Pending
// between instructions. The guest acknowledges with an EOI on the command
// port.
package pic

import (
	"math/bits"
	"sync"
)

// Default I/O ports and vector base of the master controller.
const (
	CommandPort uint16 = 0x20
	DataPort    uint16 = 0x21

	DefaultBase uint8 = 0x08
)

// Command bytes written to the command port.
const (
	icw1Init        = 0x10
	icw1NeedICW4    = 0x01
	icw1Single      = 0x02
	ocw2EOI         = 0x20
	ocw2Specific    = 0x40
	ocw3Marker      = 0x08
	ocw3ReadRegMask = 0x03
	ocw3ReadIRR     = 0x02
	ocw3ReadISR     = 0x03
)

type initStep uint8

const (
	initDone initStep = iota
	initICW2
	initICW3
	initICW4
)

// Controller is a single 8-line interrupt controller. The request,
// in-service and mask registers are guarded by a RWMutex so timers and
// devices can raise lines while the CPU runs.
type Controller struct {
	mu sync.RWMutex

	irr  uint8 // requested
	isr  uint8 // in service
	imr  uint8 // masked
	base uint8

	step     initStep
	icw1     uint8
	readISR  bool
	spurious uint64
}

// New creates a controller with the default vector base and all lines
// unmasked.
func New() *Controller {
	return &Controller{base: DefaultBase}
}

// Ports returns the I/O ports the controller answers on.
func (c *Controller) Ports() []uint16 {
	return []uint16{CommandPort, DataPort}
}

// Base returns the vector of IRQ 0.
func (c *Controller) Base() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base
}

// Raise requests an interrupt on line irq. Lines above 7 are ignored.
func (c *Controller) Raise(irq uint8) {
	if irq > 7 {
		return
	}
	c.mu.Lock()
	c.irr |= 1 << irq
	c.mu.Unlock()
}

// Requested returns the request register.
func (c *Controller) Requested() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.irr
}

// InService returns the in-service register.
func (c *Controller) InService() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isr
}

// Mask returns the interrupt mask register.
func (c *Controller) Mask() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.imr
}

// Pending returns the vector of the highest-priority unmasked request
// that is not blocked by an equal or higher priority in-service line, and
// moves it to in service.
func (c *Controller) Pending() (uint8, bool) {
	c.mu.RLock()
	ready := c.irr &^ c.imr
	c.mu.RUnlock()
	if ready == 0 {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ready = c.irr &^ c.imr
	if ready == 0 {
		return 0, false
	}
	irq := uint8(bits.TrailingZeros8(ready))
	if c.isr != 0 && uint8(bits.TrailingZeros8(c.isr)) <= irq {
		return 0, false
	}

	c.irr &^= 1 << irq
	c.isr |= 1 << irq
	return c.base + irq, true
}

// EOI ends the highest-priority in-service interrupt.
func (c *Controller) EOI() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eoi()
}

func (c *Controller) eoi() {
	if c.isr == 0 {
		c.spurious++
		return
	}
	c.isr &= c.isr - 1
}

// SpuriousEOIs returns how many EOIs arrived with nothing in service.
func (c *Controller) SpuriousEOIs() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spurious
}

// In8 reads the IRR or ISR from the command port, as selected by the last
// OCW3, or the mask from the data port.
func (c *Controller) In8(port uint16) uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if port == DataPort {
		return c.imr
	}
	if c.readISR {
		return c.isr
	}
	return c.irr
}

// Out8 handles the initialization sequence and operation commands.
func (c *Controller) Out8(port uint16, v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if port == CommandPort {
		c.command(v)
		return
	}

	switch c.step {
	case initICW2:
		c.base = v &^ 7
		switch {
		case c.icw1&icw1Single == 0:
			c.step = initICW3
		case c.icw1&icw1NeedICW4 != 0:
			c.step = initICW4
		default:
			c.step = initDone
		}
	case initICW3:
		if c.icw1&icw1NeedICW4 != 0 {
			c.step = initICW4
		} else {
			c.step = initDone
		}
	case initICW4:
		c.step = initDone
	default:
		c.imr = v
	}
}

func (c *Controller) command(v uint8) {
	switch {
	case v&icw1Init != 0:
		c.icw1 = v
		c.step = initICW2
		c.irr, c.isr, c.imr = 0, 0, 0
		c.readISR = false
	case v&ocw3Marker != 0:
		switch v & ocw3ReadRegMask {
		case ocw3ReadIRR:
			c.readISR = false
		case ocw3ReadISR:
			c.readISR = true
		}
	case v&ocw2EOI != 0:
		if v&ocw2Specific != 0 {
			c.isr &^= 1 << (v & 7)
			return
		}
		c.eoi()
	}
}
