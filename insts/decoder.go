package insts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMod3Violation is returned when a memory-only operand decodes to a
// register (mod == 3). It indicates a table-construction bug.
var ErrMod3Violation = errors.New("mod 3 in memory-only operand")

// ModRM is the x86 ModRM byte.
type ModRM uint8

// Mod returns bits [7:6].
func (m ModRM) Mod() uint8 { return uint8(m) >> 6 }

// Reg returns bits [5:3].
func (m ModRM) Reg() uint8 { return (uint8(m) >> 3) & 7 }

// RM returns bits [2:0].
func (m ModRM) RM() uint8 { return uint8(m) & 7 }

// IsRegister reports whether the r/m field names a register.
func (m ModRM) IsRegister() bool { return m.Mod() == 3 }

// SIB is the x86 scale-index-base byte.
type SIB uint8

// Scale returns the shift count (0-3) for the index register.
func (s SIB) Scale() uint8 { return uint8(s) >> 6 }

// Index returns bits [5:3]. Index 4 means no index.
func (s SIB) Index() uint8 { return (uint8(s) >> 3) & 7 }

// Base returns bits [2:0].
func (s SIB) Base() uint8 { return uint8(s) & 7 }

// MemoryRef is a decoded effective-address expression.
type MemoryRef struct {
	Base    Register
	Index   Register
	Scale   uint8 // shift count applied to Index
	Disp    int32
	Segment Segment
	Width   AddressWidth
}

// Offset computes the effective offset within the segment. 16-bit
// offsets wrap at 64 KiB.
func (m MemoryRef) Offset(r Registers) uint32 {
	mask := uint32(0xFFFFFFFF)
	if m.Width == Addr16 {
		mask = 0xFFFF
	}
	offset := uint32(m.Disp)
	if m.Base != NoRegister {
		offset += r.Reg32(m.Base) & mask
	}
	if m.Index != NoRegister {
		offset += (r.Reg32(m.Index) & mask) << m.Scale
	}
	return offset & mask
}

// Linear computes segment base + effective offset.
func (m MemoryRef) Linear(r Registers) uint32 {
	return r.SegmentBase(m.Segment) + m.Offset(r)
}

// String formats the reference in Intel syntax, e.g. "ss:[bp+si+0x10]".
func (m MemoryRef) String() string {
	var parts []string
	name := func(reg Register) string {
		if m.Width == Addr16 {
			return reg.Name16()
		}
		return reg.String()
	}
	if m.Base != NoRegister {
		parts = append(parts, name(m.Base))
	}
	if m.Index != NoRegister {
		if m.Scale > 0 {
			parts = append(parts, fmt.Sprintf("%s*%d", name(m.Index), 1<<m.Scale))
		} else {
			parts = append(parts, name(m.Index))
		}
	}
	expr := strings.Join(parts, "+")
	switch {
	case expr == "":
		expr = fmt.Sprintf("0x%X", uint32(m.Disp))
	case m.Disp > 0:
		expr += fmt.Sprintf("+0x%X", m.Disp)
	case m.Disp < 0:
		expr += fmt.Sprintf("-0x%X", -int64(m.Disp))
	}
	return fmt.Sprintf("%s:[%s]", m.Segment, expr)
}

// RM is a decoded r/m operand: either a register or a memory reference.
type RM struct {
	IsRegister bool
	Register   uint8 // r/m field when IsRegister; width is chosen by the caller
	Mem        MemoryRef
	Length     int // bytes consumed from the stream
}

// base/index/default segment for each 16-bit r/m value.
var modRM16Table = [8]struct {
	base, index Register
	segment     Segment
}{
	{EBX, ESI, DS}, // [bx+si]
	{EBX, EDI, DS}, // [bx+di]
	{EBP, ESI, SS}, // [bp+si]
	{EBP, EDI, SS}, // [bp+di]
	{ESI, NoRegister, DS},
	{EDI, NoRegister, DS},
	{EBP, NoRegister, SS},
	{EBX, NoRegister, DS},
}

// DecodeModRM fetches a ModRM byte and decodes the r/m operand.
// Length includes the ModRM byte itself.
func DecodeModRM(s Stream, width AddressWidth, override Segment, memoryOnly bool) (RM, error) {
	modrm := ModRM(s.Fetch8())
	rm, err := DecodeRM(s, modrm, width, override, memoryOnly)
	rm.Length++
	return rm, err
}

// DecodeRM decodes the r/m operand for an already fetched ModRM byte,
// consuming any SIB and displacement bytes.
func DecodeRM(s Stream, modrm ModRM, width AddressWidth, override Segment, memoryOnly bool) (RM, error) {
	if modrm.IsRegister() {
		if memoryOnly {
			return RM{}, ErrMod3Violation
		}
		return RM{IsRegister: true, Register: modrm.RM()}, nil
	}

	var rm RM
	if width == Addr16 {
		rm = decodeRM16(s, modrm)
	} else {
		rm = decodeRM32(s, modrm)
	}
	if override != NoSegment {
		rm.Mem.Segment = override
	}
	return rm, nil
}

func decodeRM16(s Stream, modrm ModRM) RM {
	mod, r := modrm.Mod(), modrm.RM()
	ref := MemoryRef{Width: Addr16, Index: NoRegister}
	length := 0

	if mod == 0 && r == 6 {
		ref.Base = NoRegister
		ref.Segment = DS
		ref.Disp = int32(s.Fetch16())
		return RM{Mem: ref, Length: 2}
	}

	entry := modRM16Table[r]
	ref.Base, ref.Index, ref.Segment = entry.base, entry.index, entry.segment

	switch mod {
	case 1:
		ref.Disp = int32(int8(s.Fetch8()))
		length = 1
	case 2:
		ref.Disp = int32(s.Fetch16())
		length = 2
	}
	return RM{Mem: ref, Length: length}
}

func decodeRM32(s Stream, modrm ModRM) RM {
	mod, r := modrm.Mod(), modrm.RM()
	ref := MemoryRef{Width: Addr32, Base: NoRegister, Index: NoRegister, Segment: DS}
	length := 0

	switch {
	case r == 4:
		sib := SIB(s.Fetch8())
		length++
		if sib.Index() != 4 {
			ref.Index = Register(sib.Index())
			ref.Scale = sib.Scale()
		}
		if sib.Base() == 5 && mod == 0 {
			ref.Disp = int32(s.Fetch32())
			length += 4
		} else {
			ref.Base = Register(sib.Base())
			if ref.Base == ESP || ref.Base == EBP {
				ref.Segment = SS
			}
		}
	case r == 5 && mod == 0:
		ref.Disp = int32(s.Fetch32())
		return RM{Mem: ref, Length: 4}
	default:
		ref.Base = Register(r)
		if ref.Base == EBP {
			ref.Segment = SS
		}
	}

	switch mod {
	case 1:
		ref.Disp += int32(int8(s.Fetch8()))
		length++
	case 2:
		ref.Disp += int32(s.Fetch32())
		length += 4
	}
	return RM{Mem: ref, Length: length}
}

// ByteStream is a Stream over a byte slice, used by tools and tests.
type ByteStream struct {
	Data []byte
	Pos  int
}

// NewByteStream creates a stream positioned at the start of data.
func NewByteStream(data []byte) *ByteStream {
	return &ByteStream{Data: data}
}

// Fetch8 returns the next byte, or 0 past the end.
func (b *ByteStream) Fetch8() uint8 {
	if b.Pos >= len(b.Data) {
		b.Pos++
		return 0
	}
	v := b.Data[b.Pos]
	b.Pos++
	return v
}

// Fetch16 returns the next little-endian word.
func (b *ByteStream) Fetch16() uint16 {
	lo := b.Fetch8()
	hi := b.Fetch8()
	return uint16(lo) | uint16(hi)<<8
}

// Fetch32 returns the next little-endian dword.
func (b *ByteStream) Fetch32() uint32 {
	lo := b.Fetch16()
	hi := b.Fetch16()
	return uint32(lo) | uint32(hi)<<16
}
