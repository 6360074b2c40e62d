package emu

import (
	"math/bits"

	"github.com/gregdivis/Aeon-sub003/insts"
)

// Instruction handlers for the integer ALU. Each handler reads its
// operands through the binding's accessors and writes results back
// through the destination location.

type (
	binaryOp func(a *ALU, size uint8, x, y uint32) uint32
	unaryOp  func(a *ALU, size uint8, x uint32) uint32
	shiftOp  func(a *ALU, size uint8, v uint32, count uint8) uint32
	doubleOp func(a *ALU, size uint8, dst, src uint32, count uint8) uint32
	divideOp func(a *ALU, size uint8, hi, lo, divisor uint32) (uint32, uint32, error)
)

func binary(f binaryOp, write bool) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		r := f(e.alu, in.size(0), in.value(e, 0), in.value(e, 1))
		if !write {
			return nil
		}
		return in.store(e, 0, r)
	}
}

func unary(f unaryOp) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		return in.store(e, 0, f(e.alu, in.size(0), in.value(e, 0)))
	}
}

func shift(f shiftOp) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		r := f(e.alu, in.size(0), in.value(e, 0), uint8(in.value(e, 1)))
		return in.store(e, 0, r)
	}
}

func doubleShift(f doubleOp) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		r := f(e.alu, in.size(0), in.value(e, 0), in.value(e, 1), uint8(in.value(e, 2)))
		return in.store(e, 0, r)
	}
}

// accumulator pair for the widening forms: AH:AL, DX:AX or EDX:EAX.
func (e *Emulator) wideAccumulator(size uint8) (hi, lo uint32) {
	if size == 1 {
		ax := e.proc.Reg16(insts.EAX)
		return uint32(ax >> 8), uint32(ax & 0xFF)
	}
	return e.proc.Reg(size, uint8(insts.EDX)), e.proc.Reg(size, uint8(insts.EAX))
}

func (e *Emulator) setWideAccumulator(size uint8, hi, lo uint32) {
	if size == 1 {
		e.proc.SetReg16(insts.EAX, uint16(hi)<<8|uint16(lo&0xFF))
		return
	}
	e.proc.SetReg(size, uint8(insts.EDX), hi)
	e.proc.SetReg(size, uint8(insts.EAX), lo)
}

func execMul(e *Emulator, in *instruction) error {
	size := in.size(0)
	_, acc := e.wideAccumulator(size)
	lo, hi := e.alu.Mul(size, acc, in.value(e, 0))
	e.setWideAccumulator(size, hi, lo)
	return nil
}

func execIMul(e *Emulator, in *instruction) error {
	size := in.size(0)
	switch len(in.accessors) {
	case 1:
		_, acc := e.wideAccumulator(size)
		lo, hi := e.alu.IMul(size, acc, in.value(e, 0))
		e.setWideAccumulator(size, hi, lo)
		return nil
	case 2:
		return in.store(e, 0, e.alu.IMulTruncated(size, in.value(e, 0), in.value(e, 1)))
	default:
		return in.store(e, 0, e.alu.IMulTruncated(size, in.value(e, 1), in.value(e, 2)))
	}
}

func divide(f divideOp) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		size := in.size(0)
		hi, lo := e.wideAccumulator(size)
		q, r, err := f(e.alu, size, hi, lo, in.value(e, 0))
		if err != nil {
			return err
		}
		e.setWideAccumulator(size, r, q)
		return nil
	}
}

func execDaa(e *Emulator, _ *instruction) error {
	e.proc.SetReg8(0, e.alu.Daa(e.proc.Reg8(0)))
	return nil
}

func execDas(e *Emulator, _ *instruction) error {
	e.proc.SetReg8(0, e.alu.Das(e.proc.Reg8(0)))
	return nil
}

func execAaa(e *Emulator, _ *instruction) error {
	e.proc.SetReg16(insts.EAX, e.alu.Aaa(e.proc.Reg16(insts.EAX)))
	return nil
}

func execAas(e *Emulator, _ *instruction) error {
	e.proc.SetReg16(insts.EAX, e.alu.Aas(e.proc.Reg16(insts.EAX)))
	return nil
}

func execAam(e *Emulator, in *instruction) error {
	ax, err := e.alu.Aam(e.proc.Reg8(0), uint8(in.value(e, 0)))
	if err != nil {
		return err
	}
	e.proc.SetReg16(insts.EAX, ax)
	return nil
}

func execAad(e *Emulator, in *instruction) error {
	e.proc.SetReg16(insts.EAX, e.alu.Aad(e.proc.Reg16(insts.EAX), uint8(in.value(e, 0))))
	return nil
}

type bitMode uint8

const (
	bitKeep bitMode = iota
	bitSet
	bitReset
	bitComplement
)

// bitTest implements bt, bts, btr and btc. A register bit offset into a
// memory operand addresses beyond the operand itself.
func bitTest(mode bitMode) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		size := in.size(0)
		width := uint32(size) * 8
		offset := in.value(e, 1)

		a := in.accessors[0]
		loc := in.ops[0].Loc
		if loc.IsMemory() && in.accessors[1].shape.Kind != ShapeImmediate {
			shift := uint(bits.TrailingZeros32(width))
			delta := int32(signExtend(offset, size)) >> shift
			loc = loc.displaced(delta * int32(size))
		}

		bit := offset & (width - 1)
		v := a.Read(e, loc)
		e.proc.Flags.SetCarry(v>>bit&1 != 0)

		switch mode {
		case bitSet:
			v |= 1 << bit
		case bitReset:
			v &^= 1 << bit
		case bitComplement:
			v ^= 1 << bit
		default:
			return nil
		}
		return a.Store(e, loc, v)
	}
}

func execBsf(e *Emulator, in *instruction) error {
	src := in.value(e, 1) & sizeMask(in.size(1))
	if src == 0 {
		e.proc.Flags.SetZero(true)
		return nil
	}
	e.proc.Flags.SetZero(false)
	return in.store(e, 0, uint32(bits.TrailingZeros32(src)))
}

func execBsr(e *Emulator, in *instruction) error {
	src := in.value(e, 1) & sizeMask(in.size(1))
	if src == 0 {
		e.proc.Flags.SetZero(true)
		return nil
	}
	e.proc.Flags.SetZero(false)
	return in.store(e, 0, uint32(31-bits.LeadingZeros32(src)))
}

func execSetcc(e *Emulator, in *instruction) error {
	var v uint32
	if e.condition(in.op.Cond) {
		v = 1
	}
	return in.store(e, 0, v)
}
