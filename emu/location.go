package emu

import (
	"fmt"

	"github.com/gregdivis/Aeon-sub003/insts"
)

type locKind uint8

const (
	locNone locKind = iota
	locReg
	locSeg
	locMem
	locST
	locDebug
)

// Location is a resolved, writable operand position: a register, segment
// register, memory address, debug register or x87 stack slot.
type Location struct {
	kind    locKind
	index   uint8
	addr    uint32
	offset  uint32
	segment insts.Segment

	// stackBased is set for memory operands addressed off ESP.
	stackBased bool
}

func regLocation(index uint8) Location {
	return Location{kind: locReg, index: index}
}

func memLocation(ref insts.MemoryRef, r insts.Registers) Location {
	return Location{
		kind:    locMem,
		addr:    ref.Linear(r),
		offset:  ref.Offset(r),
		segment: ref.Segment,

		stackBased: ref.Width == insts.Addr32 && ref.Base == insts.ESP,
	}
}

// IsMemory reports whether the location is a memory address.
func (l Location) IsMemory() bool { return l.kind == locMem }

// IsRegister reports whether the location is a general register.
func (l Location) IsRegister() bool { return l.kind == locReg }

// Address returns the linear address of a memory location.
func (l Location) Address() uint32 { return l.addr }

// Offset returns the effective offset of a memory location within its
// segment.
func (l Location) Offset() uint32 { return l.offset }

// Segment returns the segment a memory location was resolved against.
func (l Location) Segment() insts.Segment { return l.segment }

// Index returns the register, segment or stack slot number.
func (l Location) Index() uint8 { return l.index }

// displaced returns a memory location moved by delta bytes.
func (l Location) displaced(delta int32) Location {
	l.addr += uint32(delta)
	l.offset += uint32(delta)
	return l
}

func (l Location) String() string {
	switch l.kind {
	case locReg:
		return fmt.Sprintf("reg%d", l.index)
	case locSeg:
		return insts.Segment(l.index).String()
	case locMem:
		return fmt.Sprintf("[0x%X]", l.addr)
	case locST:
		return fmt.Sprintf("st%d", l.index)
	case locDebug:
		return fmt.Sprintf("dr%d", l.index)
	default:
		return "none"
	}
}

// Operand is the result of loading one operand.
type Operand struct {
	Value    uint32
	Selector uint16 // far pointers
	Float    float64
	Loc      Location
}
