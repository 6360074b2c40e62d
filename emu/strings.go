package emu

import "github.com/gregdivis/Aeon-sub003/insts"

// String instructions read from DS:SI, where DS may be overridden, and
// write to ES:DI. SI and DI step by the operation size, backwards when DF
// is set. Index and count registers are SI, DI and CX, or ESI, EDI and ECX
// under a 32-bit address size.

func (e *Emulator) index(in *instruction, r insts.Register) uint32 {
	if in.st.AddrSize32 {
		return e.proc.Reg32(r)
	}
	return uint32(e.proc.Reg16(r))
}

func (e *Emulator) stepIndex(in *instruction, r insts.Register, size uint8) {
	delta := uint32(size)
	if e.proc.Direction {
		delta = -delta
	}
	v := e.index(in, r) + delta
	if in.st.AddrSize32 {
		e.proc.SetReg32(r, v)
		return
	}
	e.proc.SetReg16(r, uint16(v))
}

func (e *Emulator) sourceAddress(in *instruction) uint32 {
	return e.proc.SegmentBase(in.st.DataSegment()) + e.index(in, insts.ESI)
}

func (e *Emulator) destinationAddress(in *instruction) uint32 {
	return e.proc.SegmentBase(insts.ES) + e.index(in, insts.EDI)
}

// repeat runs body once, or under a REP prefix while the count register is
// nonzero. Comparing forms also stop when ZF disagrees with the prefix:
// REPE stops on ZF=0 and REPNE on ZF=1.
func (e *Emulator) repeat(in *instruction, compare bool, body func()) {
	if in.st.Rep == 0 {
		body()
		return
	}
	for e.counter(in) != 0 {
		body()
		e.setCounter(in, e.counter(in)-1)
		if compare {
			zero := e.proc.Flags.Zero()
			if in.st.Rep == 0xF3 && !zero || in.st.Rep == 0xF2 && zero {
				break
			}
		}
	}
}

func execMovs(e *Emulator, in *instruction) error {
	size := in.operationSize()
	e.repeat(in, false, func() {
		v := readSized(e.memory, size, e.sourceAddress(in))
		writeSized(e.memory, size, e.destinationAddress(in), v)
		e.stepIndex(in, insts.ESI, size)
		e.stepIndex(in, insts.EDI, size)
	})
	return nil
}

func execCmps(e *Emulator, in *instruction) error {
	size := in.operationSize()
	e.repeat(in, true, func() {
		a := readSized(e.memory, size, e.sourceAddress(in))
		b := readSized(e.memory, size, e.destinationAddress(in))
		e.alu.Sub(size, a, b)
		e.stepIndex(in, insts.ESI, size)
		e.stepIndex(in, insts.EDI, size)
	})
	return nil
}

func execStos(e *Emulator, in *instruction) error {
	size := in.operationSize()
	e.repeat(in, false, func() {
		writeSized(e.memory, size, e.destinationAddress(in), e.proc.Reg(size, 0))
		e.stepIndex(in, insts.EDI, size)
	})
	return nil
}

func execLods(e *Emulator, in *instruction) error {
	size := in.operationSize()
	e.repeat(in, false, func() {
		e.proc.SetReg(size, 0, readSized(e.memory, size, e.sourceAddress(in)))
		e.stepIndex(in, insts.ESI, size)
	})
	return nil
}

func execScas(e *Emulator, in *instruction) error {
	size := in.operationSize()
	e.repeat(in, true, func() {
		e.alu.Sub(size, e.proc.Reg(size, 0), readSized(e.memory, size, e.destinationAddress(in)))
		e.stepIndex(in, insts.EDI, size)
	})
	return nil
}

func execIns(e *Emulator, in *instruction) error {
	size := in.operationSize()
	port := e.proc.Reg16(insts.EDX)
	e.repeat(in, false, func() {
		writeSized(e.memory, size, e.destinationAddress(in), e.portIn(size, port))
		e.stepIndex(in, insts.EDI, size)
	})
	return nil
}

func execOuts(e *Emulator, in *instruction) error {
	size := in.operationSize()
	port := e.proc.Reg16(insts.EDX)
	e.repeat(in, false, func() {
		e.portOut(size, port, readSized(e.memory, size, e.sourceAddress(in)))
		e.stepIndex(in, insts.ESI, size)
	})
	return nil
}
