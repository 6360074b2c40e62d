package emu

import "github.com/gregdivis/Aeon-sub003/insts"

// Snapshot is a copy of the architectural register state.
type Snapshot struct {
	EAX, ECX, EDX, EBX uint32
	ESP, EBP, ESI, EDI uint32

	ES, CS, SS, DS, FS, GS uint16

	EIP    uint32
	EFlags uint32
}

// Snapshot captures the register state. Pending flags are evaluated.
func (e *Emulator) Snapshot() Snapshot {
	p := e.proc
	return Snapshot{
		EAX: p.Reg32(insts.EAX),
		ECX: p.Reg32(insts.ECX),
		EDX: p.Reg32(insts.EDX),
		EBX: p.Reg32(insts.EBX),
		ESP: p.Reg32(insts.ESP),
		EBP: p.Reg32(insts.EBP),
		ESI: p.Reg32(insts.ESI),
		EDI: p.Reg32(insts.EDI),

		ES: p.Segment(insts.ES),
		CS: p.Segment(insts.CS),
		SS: p.Segment(insts.SS),
		DS: p.Segment(insts.DS),
		FS: p.Segment(insts.FS),
		GS: p.Segment(insts.GS),

		EIP:    p.EIP,
		EFlags: p.EFlags(),
	}
}

// Restore loads register state from a snapshot.
func (e *Emulator) Restore(s Snapshot) {
	p := e.proc
	p.SetReg32(insts.EAX, s.EAX)
	p.SetReg32(insts.ECX, s.ECX)
	p.SetReg32(insts.EDX, s.EDX)
	p.SetReg32(insts.EBX, s.EBX)
	p.SetReg32(insts.ESP, s.ESP)
	p.SetReg32(insts.EBP, s.EBP)
	p.SetReg32(insts.ESI, s.ESI)
	p.SetReg32(insts.EDI, s.EDI)

	p.SetSegment(insts.ES, s.ES)
	p.SetSegment(insts.CS, s.CS)
	p.SetSegment(insts.SS, s.SS)
	p.SetSegment(insts.DS, s.DS)
	p.SetSegment(insts.FS, s.FS)
	p.SetSegment(insts.GS, s.GS)

	p.EIP = s.EIP
	p.SetEFlags(s.EFlags)
}
