package emu

import "github.com/gregdivis/Aeon-sub003/insts"

// Control transfer handlers: jumps, calls, returns, loops and software
// interrupts.

// jumpTo sets EIP, truncated to 16 bits for 16-bit operand size.
func (e *Emulator) jumpTo(in *instruction, target uint32) {
	if !in.st.OpSize32 {
		target &= 0xFFFF
	}
	e.proc.EIP = target
}

// target resolves the destination of a near jump or call. Immediate
// operands are displacements from the next instruction.
func (e *Emulator) target(in *instruction) uint32 {
	v := in.value(e, 0)
	if in.accessors[0].shape.Kind == ShapeImmediate {
		return e.proc.EIP + v
	}
	return v
}

func (e *Emulator) farJump(in *instruction, selector uint16, offset uint32) {
	e.proc.SetSegment(insts.CS, selector)
	e.jumpTo(in, offset)
}

func execJcc(e *Emulator, in *instruction) error {
	if e.condition(in.op.Cond) {
		e.jumpTo(in, e.target(in))
	}
	return nil
}

func execJmp(e *Emulator, in *instruction) error {
	e.jumpTo(in, e.target(in))
	return nil
}

func execJmpFar(e *Emulator, in *instruction) error {
	e.farJump(in, in.ops[0].Selector, in.ops[0].Value)
	return nil
}

func execCall(e *Emulator, in *instruction) error {
	target := e.target(in)
	e.push(in.st.OperandSize(), e.proc.EIP)
	e.jumpTo(in, target)
	return nil
}

func execCallFar(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	e.push(size, uint32(e.proc.Segment(insts.CS)))
	e.push(size, e.proc.EIP)
	e.farJump(in, in.ops[0].Selector, in.ops[0].Value)
	return nil
}

// releaseStack drops the immediate byte count of ret n and retf n.
func (e *Emulator) releaseStack(in *instruction) {
	if len(in.accessors) > 0 {
		e.setStackPointer(e.stackPointer() + in.value(e, 0))
	}
}

func execRet(e *Emulator, in *instruction) error {
	e.jumpTo(in, e.pop(in.st.OperandSize()))
	e.releaseStack(in)
	return nil
}

func execRetFar(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	offset := e.pop(size)
	selector := uint16(e.pop(size))
	e.farJump(in, selector, offset)
	e.releaseStack(in)
	return nil
}

// counter is CX or ECX by address size.
func (e *Emulator) counter(in *instruction) uint32 {
	if in.st.AddrSize32 {
		return e.proc.Reg32(insts.ECX)
	}
	return uint32(e.proc.Reg16(insts.ECX))
}

func (e *Emulator) setCounter(in *instruction, v uint32) {
	if in.st.AddrSize32 {
		e.proc.SetReg32(insts.ECX, v)
		return
	}
	e.proc.SetReg16(insts.ECX, uint16(v))
}

// execLoop implements loopne (Cond 0), loope (Cond 1) and loop (Cond 2).
func execLoop(e *Emulator, in *instruction) error {
	n := e.counter(in) - 1
	e.setCounter(in, n)
	if !in.st.AddrSize32 {
		n &= 0xFFFF
	}

	taken := n != 0
	switch in.op.Cond {
	case 0:
		taken = taken && !e.proc.Flags.Zero()
	case 1:
		taken = taken && e.proc.Flags.Zero()
	}
	if taken {
		e.jumpTo(in, e.target(in))
	}
	return nil
}

func execJcxz(e *Emulator, in *instruction) error {
	if e.counter(in) == 0 {
		e.jumpTo(in, e.target(in))
	}
	return nil
}

func execInt3(e *Emulator, _ *instruction) error {
	return e.RaiseInterrupt(VectorBreakpoint)
}

func execInt(e *Emulator, in *instruction) error {
	return e.RaiseInterrupt(uint8(in.value(e, 0)))
}

func execInto(e *Emulator, _ *instruction) error {
	if e.proc.Flags.Overflow() {
		return e.RaiseInterrupt(VectorOverflow)
	}
	return nil
}

func execIret(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	offset := e.pop(size)
	selector := uint16(e.pop(size))
	flags := e.pop(size)
	if size == 2 {
		flags = e.proc.EFlags()&0xFFFF0000 | flags&0xFFFF
	}
	e.farJump(in, selector, offset)
	e.proc.SetEFlags(flags)
	return nil
}
