package emu

func (e *Emulator) portIn(size uint8, port uint16) uint32 {
	switch size {
	case 1:
		return uint32(e.ports.In8(port))
	case 2:
		return uint32(e.ports.In16(port))
	default:
		return uint32(e.ports.In16(port)) | uint32(e.ports.In16(port+2))<<16
	}
}

func (e *Emulator) portOut(size uint8, port uint16, v uint32) {
	switch size {
	case 1:
		e.ports.Out8(port, uint8(v))
	case 2:
		e.ports.Out16(port, uint16(v))
	default:
		e.ports.Out16(port, uint16(v))
		e.ports.Out16(port+2, uint16(v>>16))
	}
}

func execIn(e *Emulator, in *instruction) error {
	port := uint16(in.value(e, 1))
	return in.store(e, 0, e.portIn(in.size(0), port))
}

func execOut(e *Emulator, in *instruction) error {
	port := uint16(in.value(e, 0))
	e.portOut(in.size(1), port, in.value(e, 1))
	return nil
}

func execNop(*Emulator, *instruction) error {
	return nil
}

func execHlt(e *Emulator, _ *instruction) error {
	e.halted = true
	return nil
}

func execCmc(e *Emulator, _ *instruction) error {
	e.proc.Flags.SetCarry(!e.proc.Flags.Carry())
	return nil
}

// execSti sets IF. Interrupts stay masked until after the next
// instruction.
func execSti(e *Emulator, _ *instruction) error {
	if !e.proc.Interrupt {
		e.shadow = true
	}
	e.proc.Interrupt = true
	return nil
}

func flagSetter(f func(p *Processor)) func(*Emulator, *instruction) error {
	return func(e *Emulator, _ *instruction) error {
		f(e.proc)
		return nil
	}
}
