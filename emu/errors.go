package emu

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnsupportedShape is returned when no accessor can be built for an
	// operand shape.
	ErrUnsupportedShape = errors.New("unsupported operand shape")

	// ErrNotWritable is returned when storing through a read-only operand.
	ErrNotWritable = errors.New("operand is not writable")

	// ErrMaxInstructions is returned once the instruction limit is reached.
	ErrMaxInstructions = errors.New("max instructions reached")
)

// Interrupt vectors raised by the processor itself.
const (
	VectorDivide         uint8 = 0
	VectorBreakpoint     uint8 = 3
	VectorOverflow       uint8 = 4
	VectorInvalidOpcode  uint8 = 6
	VectorDeviceNotAvail uint8 = 7
)

// Fault is a guest-visible processor exception. Step restores EIP to the
// start of the faulting instruction and delivers the vector.
type Fault struct {
	Vector uint8
}

func (f *Fault) Error() string {
	switch f.Vector {
	case VectorDivide:
		return "divide error"
	case VectorInvalidOpcode:
		return "invalid opcode"
	default:
		return fmt.Sprintf("fault %d", f.Vector)
	}
}

// DecodeError reports an internal decoder inconsistency. It is fatal for
// the virtual machine.
type DecodeError struct {
	EIP    uint32
	Opcode uint16
	Err    error
}

func (d *DecodeError) Error() string {
	return fmt.Sprintf("decode error at EIP=0x%X opcode=0x%X: %v", d.EIP, d.Opcode, d.Err)
}

func (d *DecodeError) Unwrap() error {
	return d.Err
}

// HostError wraps a failure returned by a host InterruptHandler.
type HostError struct {
	Vector uint8
	Err    error
}

func (h *HostError) Error() string {
	return fmt.Sprintf("interrupt 0x%02X handler: %v", h.Vector, h.Err)
}

func (h *HostError) Unwrap() error {
	return h.Err
}

func invalidOpcode() error {
	return &Fault{Vector: VectorInvalidOpcode}
}

func divideError() error {
	return &Fault{Vector: VectorDivide}
}
