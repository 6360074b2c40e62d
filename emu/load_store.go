package emu

import "github.com/gregdivis/Aeon-sub003/insts"

// Data movement handlers.

func execMov(e *Emulator, in *instruction) error {
	if loc := in.ops[0].Loc; loc.kind == locSeg {
		switch insts.Segment(loc.index) {
		case insts.CS:
			return invalidOpcode()
		case insts.SS:
			e.shadow = true
		}
	}
	return in.store(e, 0, in.value(e, 1))
}

func execXchg(e *Emulator, in *instruction) error {
	a, b := in.value(e, 0), in.value(e, 1)
	if err := in.store(e, 0, b); err != nil {
		return err
	}
	return in.store(e, 1, a)
}

func execLea(e *Emulator, in *instruction) error {
	return in.store(e, 0, in.ops[1].Loc.Offset())
}

// loadFar implements les, lds, lss, lfs and lgs.
func loadFar(seg insts.Segment) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		ptr := in.ops[1]
		if err := in.store(e, 0, ptr.Value); err != nil {
			return err
		}
		e.proc.SetSegment(seg, ptr.Selector)
		if seg == insts.SS {
			e.shadow = true
		}
		return nil
	}
}

func execCbw(e *Emulator, in *instruction) error {
	if in.st.OpSize32 {
		e.proc.SetReg32(insts.EAX, signExtend(e.proc.Reg32(insts.EAX), 2))
		return nil
	}
	e.proc.SetReg16(insts.EAX, uint16(signExtend(uint32(e.proc.Reg8(0)), 1)))
	return nil
}

func execCwd(e *Emulator, in *instruction) error {
	size := in.st.OperandSize()
	var hi uint32
	if e.proc.Reg(size, uint8(insts.EAX))&signBit(size) != 0 {
		hi = 0xFFFFFFFF
	}
	e.proc.SetReg(size, uint8(insts.EDX), hi)
	return nil
}

func execXlat(e *Emulator, in *instruction) error {
	offset := e.proc.Reg32(insts.EBX) + uint32(e.proc.Reg8(0))
	if !in.st.AddrSize32 {
		offset &= 0xFFFF
	}
	addr := e.proc.SegmentBase(in.st.DataSegment()) + offset
	e.proc.SetReg8(0, e.memory.Read8(addr))
	return nil
}

func execLahf(e *Emulator, _ *instruction) error {
	e.proc.SetReg8(4, uint8(e.proc.Flags.Value()))
	return nil
}

func execSahf(e *Emulator, _ *instruction) error {
	v := e.proc.Flags.Value()&0xFF00 | uint16(e.proc.Reg8(4))
	e.proc.Flags.SetValue(v)
	return nil
}
