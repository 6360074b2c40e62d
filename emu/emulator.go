// Package emu provides functional x86 emulation.
//
// The emulator decodes real-mode and 32-bit flat x86 code through the
// insts opcode table, binds each opcode to cached operand accessors and
// executes it against a Processor with lazily evaluated flags.
package emu

import (
	"context"
	"errors"
	"runtime"

	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"github.com/gregdivis/Aeon-sub003/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated through a host service.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Halted is true while the processor waits in HLT.
	Halted bool

	// Err is set if an emulation error occurred. It is fatal for the VM.
	Err error
}

// LatencyTable gives the cycle cost of an instruction class.
type LatencyTable interface {
	Cycles(class insts.Class) uint64
}

// Emulator executes x86 instructions functionally.
type Emulator struct {
	id  xid.ID
	log logr.Logger

	proc      *Processor
	alu       *ALU
	memory    Memory
	ports     PortIO
	pic       InterruptController
	handlers  map[uint8]InterruptHandler
	latency   LatencyTable
	codeWidth insts.AddressWidth

	accessors *AccessorCache
	bindings  map[bindingKey]*binding
	state     InstructionState

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	cycles           uint64
	halted           bool
	shadow           bool // interrupts inhibited for one instruction
	exited           bool
	exitCode         int64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMemory sets the memory the processor addresses.
func WithMemory(m Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithPorts sets the I/O port space.
func WithPorts(p PortIO) EmulatorOption {
	return func(e *Emulator) {
		e.ports = p
	}
}

// WithInterruptController sets the controller polled for hardware
// interrupts between instructions.
func WithInterruptController(c InterruptController) EmulatorOption {
	return func(e *Emulator) {
		e.pic = c
	}
}

// WithInterruptHandler services a vector in Go instead of through the
// interrupt vector table.
func WithInterruptHandler(vector uint8, h InterruptHandler) EmulatorOption {
	return func(e *Emulator) {
		e.handlers[vector] = h
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.log = log
	}
}

// WithLatencyTable charges each instruction the cycles of its class.
func WithLatencyTable(t LatencyTable) EmulatorOption {
	return func(e *Emulator) {
		e.latency = t
	}
}

// WithCodeWidth sets the default operand and address width.
func WithCodeWidth(w insts.AddressWidth) EmulatorOption {
	return func(e *Emulator) {
		e.codeWidth = w
	}
}

// NewEmulator creates a new x86 emulator in real mode.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		id:        xid.New(),
		log:       logr.Discard(),
		handlers:  make(map[uint8]InterruptHandler),
		codeWidth: insts.Addr16,
		accessors: NewAccessorCache(),
		bindings:  make(map[bindingKey]*binding),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		e.memory = NewPhysicalMemory(DefaultMemorySize)
	}
	if e.ports == nil {
		e.ports = NewPortMap()
	}
	e.log = e.log.WithValues("vm", e.id.String())
	e.proc = NewProcessor(e.codeWidth)
	e.alu = NewALU(&e.proc.Flags)

	return e
}

// ID returns the emulator's instance ID.
func (e *Emulator) ID() xid.ID {
	return e.id
}

// Processor returns the register file.
func (e *Emulator) Processor() *Processor {
	return e.proc
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() Memory {
	return e.memory
}

// Accessors returns the accessor cache.
func (e *Emulator) Accessors() *AccessorCache {
	return e.accessors
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Cycles returns the cycles charged by the latency table.
func (e *Emulator) Cycles() uint64 {
	return e.cycles
}

// Halted reports whether the processor is waiting in HLT.
func (e *Emulator) Halted() bool {
	return e.halted
}

// Load copies data into memory at a linear address.
func (e *Emulator) Load(addr uint32, data []byte) {
	for i, b := range data {
		e.memory.Write8(addr+uint32(i), b)
	}
}

// Exit stops the run loop with an exit code. Host services call it.
func (e *Emulator) Exit(code int64) {
	e.exited = true
	e.exitCode = code
}

// Reset returns the processor to its reset state. Memory, devices and the
// accessor cache are kept.
func (e *Emulator) Reset() {
	e.proc = NewProcessor(e.codeWidth)
	e.alu = NewALU(&e.proc.Flags)
	e.instructionCount = 0
	e.cycles = 0
	e.halted = false
	e.shadow = false
	e.exited = false
	e.exitCode = 0
}

// Step executes a single instruction, after delivering a pending hardware
// interrupt if one is allowed.
func (e *Emulator) Step() StepResult {
	if e.exited {
		return StepResult{Exited: true, ExitCode: e.exitCode}
	}

	// Check instruction limit before executing
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	if err := e.pollInterrupts(); err != nil {
		return StepResult{Err: err}
	}
	if e.halted {
		return StepResult{Halted: true}
	}

	start := e.proc.EIP
	err := e.execute()
	e.instructionCount++

	var fault *Fault
	switch {
	case err == nil:
	case errors.As(err, &fault):
		e.proc.EIP = start
		e.log.V(1).Info("fault", "vector", fault.Vector, "eip", start, "opcode", e.state.Opcode)
		if err := e.RaiseInterrupt(fault.Vector); err != nil {
			return StepResult{Err: err}
		}
	default:
		e.proc.EIP = start
		var (
			decodeErr *DecodeError
			hostErr   *HostError
		)
		if !errors.As(err, &decodeErr) && !errors.As(err, &hostErr) {
			err = &DecodeError{EIP: start, Opcode: e.state.Opcode, Err: err}
		}
		e.log.Error(err, "emulation stopped")
		return StepResult{Err: err}
	}

	return StepResult{
		Exited:   e.exited,
		ExitCode: e.exitCode,
		Halted:   e.halted,
	}
}

// Run executes instructions until the program exits or an error occurs.
func (e *Emulator) Run() StepResult {
	return e.RunContext(context.Background())
}

// RunContext executes instructions until the program exits, an error
// occurs or ctx is done. Cancellation is checked between instructions.
// A halted processor with interrupts disabled and no controller returns.
func (e *Emulator) RunContext(ctx context.Context) StepResult {
	for {
		if err := ctx.Err(); err != nil {
			return StepResult{Err: err}
		}
		result := e.Step()
		if result.Exited || result.Err != nil {
			return result
		}
		if result.Halted {
			if e.pic == nil || !e.proc.Interrupt {
				return result
			}
			runtime.Gosched()
		}
	}
}

// Fetch8 reads the next instruction byte at CS:EIP and advances EIP.
func (e *Emulator) Fetch8() uint8 {
	v := e.memory.Read8(e.proc.SegmentBase(insts.CS) + e.proc.EIP)
	e.advance(1)
	return v
}

// Fetch16 reads the next instruction word.
func (e *Emulator) Fetch16() uint16 {
	lo := e.Fetch8()
	hi := e.Fetch8()
	return uint16(lo) | uint16(hi)<<8
}

// Fetch32 reads the next instruction dword.
func (e *Emulator) Fetch32() uint32 {
	lo := e.Fetch16()
	hi := e.Fetch16()
	return uint32(lo) | uint32(hi)<<16
}

func (e *Emulator) fetch(size uint8) uint32 {
	switch size {
	case 1:
		return uint32(e.Fetch8())
	case 2:
		return uint32(e.Fetch16())
	default:
		return e.Fetch32()
	}
}

func (e *Emulator) advance(n uint32) {
	e.proc.EIP += n
	if !e.proc.code32 {
		e.proc.EIP &= 0xFFFF
	}
}
