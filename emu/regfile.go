package emu

import "github.com/gregdivis/Aeon-sub003/insts"

// FLAGS bits outside the arithmetic flag groups.
const (
	FlagTrap      uint32 = 1 << 8
	FlagInterrupt uint32 = 1 << 9
	FlagDirection uint32 = 1 << 10
)

// Processor is the x86 register file.
// It holds the eight general-purpose registers, the segment registers and
// their cached bases, EIP, the debug registers, the x87 stack and FLAGS.
type Processor struct {
	gpr      [8]uint32
	segments [6]uint16
	bases    [6]uint32

	// EIP is the instruction pointer.
	EIP uint32

	// DR holds the debug registers DR0-DR7.
	DR [8]uint32

	// Flags holds the lazily evaluated arithmetic flags.
	Flags Flags

	// Trap, Interrupt and Direction are the TF, IF and DF bits.
	Trap      bool
	Interrupt bool
	Direction bool

	// FPU is the x87 register stack.
	FPU FPU

	code32 bool
}

// NewProcessor creates a processor in its reset state with the given
// default code width.
func NewProcessor(width insts.AddressWidth) *Processor {
	p := &Processor{code32: width == insts.Addr32}
	p.FPU.Reset()
	return p
}

// CodeWidth returns the default operand and address width.
func (p *Processor) CodeWidth() insts.AddressWidth {
	if p.code32 {
		return insts.Addr32
	}
	return insts.Addr16
}

// Reg32 reads a full 32-bit register.
func (p *Processor) Reg32(r insts.Register) uint32 {
	return p.gpr[r&7]
}

// SetReg32 writes a full 32-bit register.
func (p *Processor) SetReg32(r insts.Register, v uint32) {
	p.gpr[r&7] = v
}

// Reg16 reads the low word of a register.
func (p *Processor) Reg16(r insts.Register) uint16 {
	return uint16(p.gpr[r&7])
}

// SetReg16 writes the low word of a register, preserving the upper half.
func (p *Processor) SetReg16(r insts.Register, v uint16) {
	p.gpr[r&7] = p.gpr[r&7]&0xFFFF0000 | uint32(v)
}

// Reg8 reads a byte register in encoding order: AL, CL, DL, BL, AH, CH,
// DH, BH.
func (p *Processor) Reg8(index uint8) uint8 {
	index &= 7
	if index < 4 {
		return uint8(p.gpr[index])
	}
	return uint8(p.gpr[index-4] >> 8)
}

// SetReg8 writes a byte register in encoding order.
func (p *Processor) SetReg8(index uint8, v uint8) {
	index &= 7
	if index < 4 {
		p.gpr[index] = p.gpr[index]&0xFFFFFF00 | uint32(v)
		return
	}
	p.gpr[index-4] = p.gpr[index-4]&0xFFFF00FF | uint32(v)<<8
}

// Reg reads a register at the given size in bytes.
func (p *Processor) Reg(size uint8, index uint8) uint32 {
	switch size {
	case 1:
		return uint32(p.Reg8(index))
	case 2:
		return uint32(p.Reg16(insts.Register(index)))
	default:
		return p.Reg32(insts.Register(index))
	}
}

// SetReg writes a register at the given size in bytes.
func (p *Processor) SetReg(size uint8, index uint8, v uint32) {
	switch size {
	case 1:
		p.SetReg8(index, uint8(v))
	case 2:
		p.SetReg16(insts.Register(index), uint16(v))
	default:
		p.SetReg32(insts.Register(index), v)
	}
}

// Segment returns a segment selector.
func (p *Processor) Segment(s insts.Segment) uint16 {
	return p.segments[s]
}

// SetSegment loads a segment register and refreshes its cached base.
func (p *Processor) SetSegment(s insts.Segment, selector uint16) {
	p.segments[s] = selector
	p.bases[s] = uint32(selector) << 4
}

// SegmentBase returns the cached linear base of a segment.
func (p *Processor) SegmentBase(s insts.Segment) uint32 {
	return p.bases[s]
}

// EFlags packs the full FLAGS register.
func (p *Processor) EFlags() uint32 {
	v := uint32(p.Flags.Value())
	if p.Trap {
		v |= FlagTrap
	}
	if p.Interrupt {
		v |= FlagInterrupt
	}
	if p.Direction {
		v |= FlagDirection
	}
	return v
}

// SetEFlags unpacks a FLAGS value into the flag engine and control bits.
func (p *Processor) SetEFlags(v uint32) {
	p.Flags.SetValue(uint16(v))
	p.Trap = v&FlagTrap != 0
	p.Interrupt = v&FlagInterrupt != 0
	p.Direction = v&FlagDirection != 0
}
