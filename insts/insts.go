// Package insts provides x86 instruction definitions and addressing-mode
// decoding.
//
// This package turns raw x86 machine code into structured operand forms.
// It supports:
//   - ModRM decoding for 16-bit addressing (BX+SI ... BX, disp16)
//   - ModRM/SIB decoding for 32-bit addressing (base + index<<scale + disp)
//   - Segment selection with override prefixes
//   - A declarative opcode table describing each opcode's operands
//
// Usage:
//
//	rm, err := insts.DecodeModRM(stream, insts.Addr16, insts.NoSegment, false)
//	if err != nil {
//		return err
//	}
//	if !rm.IsRegister {
//		addr := rm.Mem.Linear(regs)
//	}
package insts

// Register identifies a general-purpose register by its encoding.
type Register uint8

// General-purpose registers in encoding order.
const (
	EAX Register = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI

	// NoRegister marks an absent base or index.
	NoRegister Register = 0xFF
)

var registerNames32 = [8]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}
var registerNames16 = [8]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"}

// String returns the 32-bit register name.
func (r Register) String() string {
	if r < 8 {
		return registerNames32[r]
	}
	return "none"
}

// Name16 returns the 16-bit register name.
func (r Register) Name16() string {
	if r < 8 {
		return registerNames16[r]
	}
	return "none"
}

// Segment identifies a segment register.
type Segment uint8

// Segment registers in encoding order.
const (
	ES Segment = iota
	CS
	SS
	DS
	FS
	GS

	// NoSegment means no override prefix is active.
	NoSegment Segment = 0xFF
)

var segmentNames = [6]string{"es", "cs", "ss", "ds", "fs", "gs"}

func (s Segment) String() string {
	if s < 6 {
		return segmentNames[s]
	}
	return "none"
}

// AddressWidth is the addressing mode width in bits.
type AddressWidth uint8

// Addressing widths.
const (
	Addr16 AddressWidth = 16
	Addr32 AddressWidth = 32
)

// Stream is the instruction byte source. Each fetch advances the
// instruction pointer.
type Stream interface {
	Fetch8() uint8
	Fetch16() uint16
	Fetch32() uint32
}

// Registers gives the decoder access to live register values and the
// cached segment bases.
type Registers interface {
	Reg32(r Register) uint32
	SegmentBase(s Segment) uint32
}
