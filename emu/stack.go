package emu

import "github.com/gregdivis/Aeon-sub003/insts"

// The stack pointer width follows the code width: SP in 16-bit code, ESP
// in 32-bit code.

func (e *Emulator) stackPointer() uint32 {
	if e.proc.code32 {
		return e.proc.Reg32(insts.ESP)
	}
	return uint32(e.proc.Reg16(insts.ESP))
}

func (e *Emulator) setStackPointer(sp uint32) {
	if e.proc.code32 {
		e.proc.SetReg32(insts.ESP, sp)
		return
	}
	e.proc.SetReg16(insts.ESP, uint16(sp))
}

func (e *Emulator) stackAddress(sp uint32) uint32 {
	return e.proc.SegmentBase(insts.SS) + sp
}

func (e *Emulator) push(size uint8, v uint32) {
	sp := e.stackPointer() - uint32(size)
	if !e.proc.code32 {
		sp &= 0xFFFF
	}
	e.setStackPointer(sp)
	writeSized(e.memory, size, e.stackAddress(sp), v)
}

func (e *Emulator) pop(size uint8) uint32 {
	sp := e.stackPointer()
	v := readSized(e.memory, size, e.stackAddress(sp))
	e.setStackPointer(sp + uint32(size))
	return v
}

// Push pushes a value of the given size onto the guest stack.
func (e *Emulator) Push(size uint8, v uint32) {
	e.push(size, v)
}

// Pop pops a value of the given size from the guest stack.
func (e *Emulator) Pop(size uint8) uint32 {
	return e.pop(size)
}

func execPush(e *Emulator, in *instruction) error {
	e.push(in.st.OperandSize(), in.value(e, 0))
	return nil
}

func execPop(e *Emulator, in *instruction) error {
	loc := in.ops[0].Loc
	if loc.kind == locSeg && insts.Segment(loc.index) == insts.SS {
		e.shadow = true
	}
	size := in.st.OperandSize()
	v := e.pop(size)
	// An ESP-based destination is addressed with the incremented ESP.
	if loc.stackBased {
		loc = loc.displaced(int32(size))
	}
	return in.accessors[0].Store(e, loc, v)
}

func execPusha(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	sp := e.proc.Reg(size, uint8(insts.ESP))
	for r := insts.EAX; r <= insts.EDI; r++ {
		v := e.proc.Reg(size, uint8(r))
		if r == insts.ESP {
			v = sp
		}
		e.push(size, v)
	}
	return nil
}

func execPopa(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	for r := insts.EDI; ; r-- {
		v := e.pop(size)
		if r != insts.ESP {
			e.proc.SetReg(size, uint8(r), v)
		}
		if r == insts.EAX {
			break
		}
	}
	return nil
}

func execPushf(e *Emulator, in *instruction) error {
	e.push(in.st.OperandSize(), e.proc.EFlags())
	return nil
}

func execPopf(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	v := e.pop(size)
	if size == 2 {
		v = e.proc.EFlags()&0xFFFF0000 | v&0xFFFF
	}
	e.proc.SetEFlags(v)
	return nil
}

// execEnter builds a stack frame of the given size and nesting level.
func execEnter(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	frameSize := in.value(e, 0)
	level := in.value(e, 1) & 0x1F

	bp := uint8(insts.EBP)
	e.push(size, e.proc.Reg(size, bp))
	frame := e.stackPointer()
	if level > 0 {
		for i := uint32(1); i < level; i++ {
			ptr := e.proc.Reg(size, bp) - uint32(size)*i
			if !e.proc.code32 {
				ptr &= 0xFFFF
			}
			e.push(size, readSized(e.memory, size, e.stackAddress(ptr)))
		}
		e.push(size, frame)
	}
	e.proc.SetReg(size, bp, frame)
	e.setStackPointer(e.stackPointer() - frameSize)
	return nil
}

func execLeave(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	e.setStackPointer(e.proc.Reg(size, uint8(insts.EBP)))
	e.proc.SetReg(size, uint8(insts.EBP), e.pop(size))
	return nil
}
