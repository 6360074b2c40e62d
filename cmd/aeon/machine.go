package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/gregdivis/Aeon-sub003/config"
	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/insts"
	"github.com/gregdivis/Aeon-sub003/loader"
	"github.com/gregdivis/Aeon-sub003/pic"
	"github.com/gregdivis/Aeon-sub003/timing/cache"
	"github.com/gregdivis/Aeon-sub003/timing/latency"
)

// BIOS stubs live in the top page of the F000 segment.
const (
	biosSegment  = 0xF000
	timerStubOff = 0xFF00
	irqStubOff   = 0xFF20
	faultStubOff = 0xFF30
	iretStubOff  = 0xFF40
)

var (
	// push ds; push ax; xor ax,ax; mov ds,ax; inc word [046C];
	// mov al,20h; out 20h,al; pop ax; pop ds; iret
	timerStub = []byte{
		0x1E, 0x50, 0x31, 0xC0, 0x8E, 0xD8, 0xFF, 0x06, 0x6C, 0x04,
		0xB0, 0x20, 0xE6, 0x20, 0x58, 0x1F, 0xCF,
	}
	// push ax; mov al,20h; out 20h,al; pop ax; iret
	irqStub = []byte{0x50, 0xB0, 0x20, 0xE6, 0x20, 0x58, 0xCF}
	// mov ax,4CFFh; int 21h
	faultStub = []byte{0xB8, 0xFF, 0x4C, 0xCD, 0x21}
	iretStub  = []byte{0xCF}
)

type machine struct {
	emu     *emu.Emulator
	pic     *pic.Controller
	dos     *emu.DOSServices
	timed   *cache.TimedMemory
	timerHz int
	ticks   atomic.Uint64
	log     logr.Logger
}

type runStats struct {
	Instructions uint64
	Cycles       uint64
	MemoryCycles uint64
	Ticks        uint64
}

// CPI returns cycles per instruction.
func (s runStats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// newMachine builds the emulator described by m and installs prog with
// the given command tail.
func newMachine(
	m *config.Machine,
	prog *loader.Program,
	args string,
	stdin io.Reader,
	stdout, stderr io.Writer,
	log logr.Logger,
) (*machine, error) {
	phys := emu.NewPhysicalMemory(m.MemorySize)
	phys.SetA20(m.A20)

	mach := &machine{
		pic:     pic.New(),
		dos:     emu.NewDOSServices(stdin, stdout, stderr, log),
		timerHz: m.TimerHz,
		log:     log,
	}

	var memory emu.Memory = phys
	if m.Cache != nil {
		mach.timed = cache.NewTimedMemory(phys, cache.New(*m.Cache))
		memory = mach.timed
	}

	opts := []emu.EmulatorOption{
		emu.WithMemory(memory),
		emu.WithPorts(emu.NewPortMap(emu.PortBinding{
			Ports:  mach.pic.Ports(),
			Device: mach.pic,
		})),
		emu.WithInterruptController(mach.pic),
		emu.WithInterruptHandler(emu.VectorTerminate, mach.dos),
		emu.WithInterruptHandler(emu.VectorDOS, mach.dos),
		emu.WithMaxInstructions(m.MaxInstructions),
		emu.WithCodeWidth(insts.AddressWidth(m.CodeWidth)),
		emu.WithLogger(log),
	}
	if m.Timing != nil {
		opts = append(opts, emu.WithLatencyTable(latency.NewTableWithConfig(m.Timing)))
	}
	mach.emu = emu.NewEmulator(opts...)

	mach.installVectors()
	if err := prog.Install(mach.emu, args); err != nil {
		return nil, fmt.Errorf("failed to install program: %w", err)
	}
	if mach.timed != nil {
		mach.timed.Reset()
	}
	return mach, nil
}

// installVectors points every IVT entry at a BIOS stub. CPU exceptions
// terminate the program, hardware IRQs acknowledge the PIC and the
// remaining vectors return immediately.
func (m *machine) installVectors() {
	base := uint32(biosSegment) << 4
	m.emu.Load(base+timerStubOff, timerStub)
	m.emu.Load(base+irqStubOff, irqStub)
	m.emu.Load(base+faultStubOff, faultStub)
	m.emu.Load(base+iretStubOff, iretStub)

	irqBase := m.pic.Base()
	mem := m.emu.Memory()
	for v := 0; v < 256; v++ {
		off := uint16(iretStubOff)
		switch {
		case isFault(uint8(v)):
			off = faultStubOff
		case v == int(irqBase):
			off = timerStubOff
		case v > int(irqBase) && v < int(irqBase)+8:
			off = irqStubOff
		}
		mem.Write16(uint32(v)*4, off)
		mem.Write16(uint32(v)*4+2, biosSegment)
	}
}

func isFault(v uint8) bool {
	switch v {
	case emu.VectorDivide, emu.VectorInvalidOpcode, emu.VectorDeviceNotAvail:
		return true
	}
	return false
}

// run executes the program while a timer goroutine raises IRQ 0. It
// returns the guest exit code.
func (m *machine) run(ctx context.Context) (int64, error) {
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)

	if m.timerHz > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(time.Second / time.Duration(m.timerHz))
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					m.pic.Raise(0)
					m.ticks.Add(1)
				}
			}
		})
	}

	var result emu.StepResult
	g.Go(func() error {
		defer cancel()
		result = m.emu.RunContext(ctx)
		return result.Err
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}
	m.log.V(1).Info("run finished", "vm", m.emu.ID(), "exited", result.Exited,
		"halted", result.Halted, "instructions", m.emu.InstructionCount())
	if !result.Exited {
		return 0, fmt.Errorf("processor halted with interrupts disabled at %04X:%04X",
			m.emu.Processor().Segment(insts.CS), m.emu.Processor().EIP)
	}
	return result.ExitCode, nil
}

func (m *machine) stats() runStats {
	s := runStats{
		Instructions: m.emu.InstructionCount(),
		Cycles:       m.emu.Cycles(),
		Ticks:        m.ticks.Load(),
	}
	if m.timed != nil {
		s.MemoryCycles = m.timed.Cycles()
		s.Cycles += s.MemoryCycles
	}
	return s
}
