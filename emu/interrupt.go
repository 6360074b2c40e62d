package emu

import (
	"errors"

	"github.com/gregdivis/Aeon-sub003/insts"
)

// InterruptController supplies hardware interrupt vectors. Pending returns
// the highest-priority requested vector and marks it in service.
type InterruptController interface {
	Pending() (vector uint8, ok bool)
}

// InterruptHandler services an interrupt vector in Go.
type InterruptHandler interface {
	HandleInterrupt(e *Emulator, vector uint8) error
}

// InterruptHandlerFunc adapts a function to InterruptHandler.
type InterruptHandlerFunc func(e *Emulator, vector uint8) error

// HandleInterrupt calls f.
func (f InterruptHandlerFunc) HandleInterrupt(e *Emulator, vector uint8) error {
	return f(e, vector)
}

// RaiseInterrupt delivers an interrupt. A registered host handler runs
// directly; otherwise FLAGS, CS and IP are pushed and control transfers
// through the real-mode interrupt vector table.
func (e *Emulator) RaiseInterrupt(vector uint8) error {
	if h, ok := e.handlers[vector]; ok {
		if err := h.HandleInterrupt(e, vector); err != nil {
			var fault *Fault
			if errors.As(err, &fault) {
				return err
			}
			return &HostError{Vector: vector, Err: err}
		}
		return nil
	}

	e.push(2, e.proc.EFlags())
	e.push(2, uint32(e.proc.Segment(insts.CS)))
	e.push(2, e.proc.EIP)
	e.proc.Interrupt = false
	e.proc.Trap = false

	entry := uint32(vector) * 4
	offset := e.memory.Read16(entry)
	segment := e.memory.Read16(entry + 2)
	e.proc.SetSegment(insts.CS, segment)
	e.proc.EIP = uint32(offset)
	return nil
}

// pollInterrupts delivers a pending hardware interrupt when IF is set and
// the previous instruction did not open an interrupt shadow.
func (e *Emulator) pollInterrupts() error {
	if e.shadow {
		e.shadow = false
		return nil
	}
	if e.pic == nil || !e.proc.Interrupt {
		return nil
	}
	vector, ok := e.pic.Pending()
	if !ok {
		return nil
	}
	e.halted = false
	e.log.V(2).Info("hardware interrupt", "vector", vector)
	return e.RaiseInterrupt(vector)
}
