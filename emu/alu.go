// Package emu provides functional x86 emulation.
package emu

// ALU implements x86 arithmetic and logic operations. Results are masked
// to the operand size in bytes (1, 2 or 4); flags are recorded lazily.
type ALU struct {
	flags *Flags
}

// NewALU creates a new ALU connected to the given flag engine.
func NewALU(flags *Flags) *ALU {
	return &ALU{flags: flags}
}

func sizeMask(size uint8) uint32 {
	switch size {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

func signBit(size uint8) uint32 {
	return 1 << (uint(size)*8 - 1)
}

// signExtend widens a value of the given byte size to 32 bits.
func signExtend(v uint32, size uint8) uint32 {
	switch size {
	case 1:
		return uint32(int32(int8(v)))
	case 2:
		return uint32(int32(int16(v)))
	default:
		return v
	}
}

// Add computes a + b.
func (a *ALU) Add(size uint8, x, y uint32) uint32 {
	r := (x + y) & sizeMask(size)
	a.flags.SetLazy(makeFlagOp(kindAdd, size), x, y, 0)
	a.flags.SetResult(size, r)
	return r
}

// Adc computes a + b + CF.
func (a *ALU) Adc(size uint8, x, y uint32) uint32 {
	c := uint32(0)
	if a.flags.Carry() {
		c = 1
	}
	r := (x + y + c) & sizeMask(size)
	a.flags.SetLazy(makeFlagOp(kindAdc, size), x, y, c)
	a.flags.SetResult(size, r)
	return r
}

// Sub computes a - b. Cmp uses the same flags and discards the result.
func (a *ALU) Sub(size uint8, x, y uint32) uint32 {
	r := (x - y) & sizeMask(size)
	a.flags.SetLazy(makeFlagOp(kindSub, size), x, y, 0)
	a.flags.SetResult(size, r)
	return r
}

// Sbb computes a - b - CF.
func (a *ALU) Sbb(size uint8, x, y uint32) uint32 {
	c := uint32(0)
	if a.flags.Carry() {
		c = 1
	}
	r := (x - y - c) & sizeMask(size)
	a.flags.SetLazy(makeFlagOp(kindSbb, size), x, y, c)
	a.flags.SetResult(size, r)
	return r
}

// Inc computes a + 1, leaving CF unchanged.
func (a *ALU) Inc(size uint8, x uint32) uint32 {
	r := (x + 1) & sizeMask(size)
	a.flags.SetLazy(makeFlagOp(kindInc, size), x, 0, 0)
	a.flags.SetResult(size, r)
	return r
}

// Dec computes a - 1, leaving CF unchanged.
func (a *ALU) Dec(size uint8, x uint32) uint32 {
	r := (x - 1) & sizeMask(size)
	a.flags.SetLazy(makeFlagOp(kindDec, size), x, 0, 0)
	a.flags.SetResult(size, r)
	return r
}

// Neg computes 0 - a.
func (a *ALU) Neg(size uint8, x uint32) uint32 {
	r := (0 - x) & sizeMask(size)
	a.flags.SetLazy(makeFlagOp(kindNeg, size), x, 0, 0)
	a.flags.SetResult(size, r)
	return r
}

// Not computes ^a. No flags are affected.
func (a *ALU) Not(size uint8, x uint32) uint32 {
	return ^x & sizeMask(size)
}

// And computes a & b.
func (a *ALU) And(size uint8, x, y uint32) uint32 {
	return a.logic(size, x&y)
}

// Or computes a | b.
func (a *ALU) Or(size uint8, x, y uint32) uint32 {
	return a.logic(size, x|y)
}

// Xor computes a ^ b.
func (a *ALU) Xor(size uint8, x, y uint32) uint32 {
	return a.logic(size, x^y)
}

// logic clears CF, OF and AF and records SF, ZF and PF from the result.
func (a *ALU) logic(size uint8, r uint32) uint32 {
	r &= sizeMask(size)
	a.flags.SetCarry(false)
	a.flags.SetOverflow(false)
	a.flags.SetAuxiliary(false)
	a.flags.SetResult(size, r)
	return r
}
