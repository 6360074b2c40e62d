package emu_test

import (
	"bytes"
	"context"
	"errors"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/insts"
)

const (
	codeBase  = 0x100
	stackSeg  = 0x1000
	stackTop  = 0xFFFE
	stackBase = stackSeg << 4
)

// newMachine loads code at 0000:0100 with a stack at 1000:FFFE.
func newMachine(code []byte, opts ...emu.EmulatorOption) *emu.Emulator {
	opts = append([]emu.EmulatorOption{emu.WithLogger(GinkgoLogr)}, opts...)
	e := emu.NewEmulator(opts...)
	e.Load(codeBase, code)
	p := e.Processor()
	p.EIP = codeBase
	p.SetSegment(insts.SS, stackSeg)
	p.SetReg16(insts.ESP, stackTop)
	return e
}

func stepN(e *emu.Emulator, n int) {
	for i := 0; i < n; i++ {
		result := e.Step()
		ExpectWithOffset(1, result.Err).NotTo(HaveOccurred())
	}
}

// setVector points an IVT entry at 0000:offset.
func setVector(e *emu.Emulator, vector uint8, offset uint16) {
	e.Memory().Write16(uint32(vector)*4, offset)
	e.Memory().Write16(uint32(vector)*4+2, 0)
}

type fakePIC struct {
	vectors []uint8
	polls   int
}

func (p *fakePIC) Pending() (uint8, bool) {
	p.polls++
	if len(p.vectors) == 0 {
		return 0, false
	}
	v := p.vectors[0]
	p.vectors = p.vectors[1:]
	return v, true
}

var _ = Describe("Emulator", func() {
	Describe("NewEmulator", func() {
		It("should start in 16-bit real mode with default memory", func() {
			e := emu.NewEmulator()
			Expect(e.Processor().CodeWidth()).To(Equal(insts.Addr16))
			Expect(e.Memory()).NotTo(BeNil())
			Expect(e.ID().IsNil()).To(BeFalse())
		})

		It("should give each emulator its own ID", func() {
			Expect(emu.NewEmulator().ID()).NotTo(Equal(emu.NewEmulator().ID()))
		})
	})

	Describe("Step", func() {
		It("should execute register arithmetic", func() {
			// mov ax,0x1234; mov bx,1; add ax,bx
			e := newMachine([]byte{0xB8, 0x34, 0x12, 0xBB, 0x01, 0x00, 0x01, 0xD8})
			stepN(e, 3)

			p := e.Processor()
			Expect(p.Reg16(insts.EAX)).To(Equal(uint16(0x1235)))
			Expect(p.EIP).To(Equal(uint32(codeBase + 8)))
			Expect(e.InstructionCount()).To(Equal(uint64(3)))
		})

		It("should add an immediate to AL with the expected flags", func() {
			// mov al,0xF5; add al,0x10
			e := newMachine([]byte{0xB0, 0xF5, 0x04, 0x10})
			stepN(e, 2)

			p := e.Processor()
			Expect(p.Reg8(0)).To(Equal(uint8(0x05)))
			Expect(readFlags(&p.Flags)).To(Equal(flagSet{CF: true, PF: true}))
		})

		It("should keep flags on a shift by zero", func() {
			// mov al,0xFF; add al,1; mov cl,0; shr al,cl
			e := newMachine([]byte{0xB0, 0xFF, 0x04, 0x01, 0xB1, 0x00, 0xD2, 0xE8})
			stepN(e, 4)

			p := e.Processor()
			Expect(p.Reg8(0)).To(Equal(uint8(0)))
			Expect(p.Flags.Carry()).To(BeTrue())
			Expect(p.Flags.Zero()).To(BeTrue())
		})

		It("should decode SIB with disp8 and a segment override in 32-bit code", func() {
			// mov eax,fs:[ebx+ecx*4-8]
			e := newMachine([]byte{0x64, 0x8B, 0x44, 0x8B, 0xF8}, emu.WithCodeWidth(insts.Addr32))
			p := e.Processor()
			p.SetReg32(insts.EBX, 0x100)
			p.SetReg32(insts.ECX, 2)
			p.SetSegment(insts.FS, 0x4000)
			e.Memory().Write32(0x40100, 0xCAFEBABE)

			stepN(e, 1)

			Expect(p.Reg32(insts.EAX)).To(Equal(uint32(0xCAFEBABE)))
			Expect(p.EIP).To(Equal(uint32(codeBase + 5)))
		})

		It("should honor the operand size prefix", func() {
			// mov eax,0x12345678
			e := newMachine([]byte{0x66, 0xB8, 0x78, 0x56, 0x34, 0x12})
			stepN(e, 1)
			Expect(e.Processor().Reg32(insts.EAX)).To(Equal(uint32(0x12345678)))
			Expect(e.Processor().EIP).To(Equal(uint32(codeBase + 6)))
		})

		It("should write to memory through a 16-bit addressing form", func() {
			// mov word [bx+si+2],0xBEEF
			e := newMachine([]byte{0xC7, 0x40, 0x02, 0xEF, 0xBE})
			p := e.Processor()
			p.SetReg16(insts.EBX, 0x200)
			p.SetReg16(insts.ESI, 0x10)

			stepN(e, 1)

			Expect(e.Memory().Read16(0x212)).To(Equal(uint16(0xBEEF)))
		})

		It("should run the three-operand IMUL and MOVSX", func() {
			// mov bx,7; imul ax,bx,3; mov bl,0x80; movsx cx,bl
			e := newMachine([]byte{
				0xBB, 0x07, 0x00,
				0x6B, 0xC3, 0x03,
				0xB3, 0x80,
				0x0F, 0xBE, 0xCB,
			})
			stepN(e, 4)

			p := e.Processor()
			Expect(p.Reg16(insts.EAX)).To(Equal(uint16(21)))
			Expect(p.Reg16(insts.ECX)).To(Equal(uint16(0xFF80)))
		})

		It("should test bits", func() {
			// mov ax,5; bt ax,2
			e := newMachine([]byte{0xB8, 0x05, 0x00, 0x0F, 0xBA, 0xE0, 0x02})
			stepN(e, 2)
			Expect(e.Processor().Flags.Carry()).To(BeTrue())
		})

		It("should push and pop", func() {
			// mov ax,0x55AA; push ax; pop bx
			e := newMachine([]byte{0xB8, 0xAA, 0x55, 0x50, 0x5B})
			stepN(e, 2)

			p := e.Processor()
			Expect(p.Reg16(insts.ESP)).To(Equal(uint16(stackTop - 2)))
			Expect(e.Memory().Read16(stackBase + stackTop - 2)).To(Equal(uint16(0x55AA)))

			stepN(e, 1)
			Expect(p.Reg16(insts.EBX)).To(Equal(uint16(0x55AA)))
			Expect(p.Reg16(insts.ESP)).To(Equal(uint16(stackTop)))
		})

		It("should address an ESP-based pop destination after the increment", func() {
			// pop dword [esp]
			e := newMachine([]byte{0x8F, 0x04, 0x24}, emu.WithCodeWidth(insts.Addr32))
			p := e.Processor()
			p.SetSegment(insts.SS, 0)
			p.SetReg32(insts.ESP, 0x2000)
			e.Memory().Write32(0x2000, 0x11111111)
			e.Memory().Write32(0x2004, 0x22222222)

			stepN(e, 1)

			Expect(p.Reg32(insts.ESP)).To(Equal(uint32(0x2004)))
			Expect(e.Memory().Read32(0x2004)).To(Equal(uint32(0x11111111)))
			Expect(e.Memory().Read32(0x2000)).To(Equal(uint32(0x11111111)))
		})

		It("should pop into an EBX-based destination unchanged", func() {
			// pop dword [ebx]
			e := newMachine([]byte{0x8F, 0x03}, emu.WithCodeWidth(insts.Addr32))
			p := e.Processor()
			p.SetSegment(insts.SS, 0)
			p.SetReg32(insts.ESP, 0x2000)
			p.SetReg32(insts.EBX, 0x3000)
			e.Memory().Write32(0x2000, 0xA5A5A5A5)

			stepN(e, 1)

			Expect(p.Reg32(insts.ESP)).To(Equal(uint32(0x2004)))
			Expect(e.Memory().Read32(0x3000)).To(Equal(uint32(0xA5A5A5A5)))
		})
	})

	Describe("control flow", func() {
		It("should loop until CX reaches zero", func() {
			// mov cx,3; inc ax; loop -3; hlt
			e := newMachine([]byte{0xB9, 0x03, 0x00, 0x40, 0xE2, 0xFD, 0xF4})
			result := e.Run()

			Expect(result.Halted).To(BeTrue())
			Expect(e.Processor().Reg16(insts.EAX)).To(Equal(uint16(3)))
			Expect(e.Processor().Reg16(insts.ECX)).To(Equal(uint16(0)))
		})

		It("should call and return", func() {
			// call +3; hlt; nop; nop; mov ax,7; ret
			e := newMachine([]byte{0xE8, 0x03, 0x00, 0xF4, 0x90, 0x90, 0xB8, 0x07, 0x00, 0xC3})
			result := e.Run()

			p := e.Processor()
			Expect(result.Halted).To(BeTrue())
			Expect(p.Reg16(insts.EAX)).To(Equal(uint16(7)))
			Expect(p.EIP).To(Equal(uint32(codeBase + 4)))
			Expect(p.Reg16(insts.ESP)).To(Equal(uint16(stackTop)))
		})

		It("should take conditional jumps on the flags", func() {
			// cmp ax,ax; je +3; mov bx,1; hlt
			e := newMachine([]byte{0x39, 0xC0, 0x74, 0x03, 0xBB, 0x01, 0x00, 0xF4})
			e.Run()
			Expect(e.Processor().Reg16(insts.EBX)).To(Equal(uint16(0)))
		})

		It("should vector INT n through the interrupt table and IRET back", func() {
			// int 0x80; hlt. Handler at 0x600: mov dx,9; iret
			e := newMachine([]byte{0xCD, 0x80, 0xF4})
			e.Load(0x600, []byte{0xBA, 0x09, 0x00, 0xCF})
			setVector(e, 0x80, 0x600)
			e.Processor().Interrupt = true

			result := e.Run()

			p := e.Processor()
			Expect(result.Halted).To(BeTrue())
			Expect(p.Reg16(insts.EDX)).To(Equal(uint16(9)))
			Expect(p.EIP).To(Equal(uint32(codeBase + 3)))
			Expect(p.Interrupt).To(BeTrue())
			Expect(p.Reg16(insts.ESP)).To(Equal(uint16(stackTop)))
		})
	})

	Describe("faults", func() {
		It("should raise an undefined opcode exactly once with EIP at the instruction start", func() {
			var calls int
			var eip uint32
			handler := emu.InterruptHandlerFunc(func(e *emu.Emulator, vector uint8) error {
				calls++
				eip = e.Processor().EIP
				return nil
			})
			e := newMachine([]byte{0x0F, 0xFF}, emu.WithInterruptHandler(emu.VectorInvalidOpcode, handler))

			result := e.Step()

			Expect(result.Err).NotTo(HaveOccurred())
			Expect(calls).To(Equal(1))
			Expect(eip).To(Equal(uint32(codeBase)))
			Expect(e.Processor().EIP).To(Equal(uint32(codeBase)))
		})

		It("should reject a register operand where memory is required", func() {
			var vectors []uint8
			handler := emu.InterruptHandlerFunc(func(_ *emu.Emulator, vector uint8) error {
				vectors = append(vectors, vector)
				return nil
			})
			// lea ax,ax
			e := newMachine([]byte{0x8D, 0xC0}, emu.WithInterruptHandler(emu.VectorInvalidOpcode, handler))

			Expect(e.Step().Err).NotTo(HaveOccurred())
			Expect(vectors).To(Equal([]uint8{emu.VectorInvalidOpcode}))
		})

		It("should deliver a divide error through the interrupt table", func() {
			// mov ax,10; mov bl,0; div bl
			e := newMachine([]byte{0xB8, 0x0A, 0x00, 0xB3, 0x00, 0xF6, 0xF3})
			e.Load(0x500, []byte{0xF4})
			setVector(e, emu.VectorDivide, 0x500)

			stepN(e, 3)

			p := e.Processor()
			Expect(p.EIP).To(Equal(uint32(0x500)))
			Expect(p.Segment(insts.CS)).To(Equal(uint16(0)))
			sp := uint32(p.Reg16(insts.ESP))
			Expect(sp).To(Equal(uint32(stackTop - 6)))
			Expect(e.Memory().Read16(stackBase + sp)).To(Equal(uint16(codeBase + 5)))
			Expect(p.Reg16(insts.EAX)).To(Equal(uint16(10)))
		})

		It("should stop at the instruction limit", func() {
			e := newMachine([]byte{0x90, 0x90, 0x90, 0x90}, emu.WithMaxInstructions(2))
			result := e.Run()
			Expect(result.Err).To(MatchError(emu.ErrMaxInstructions))
			Expect(e.InstructionCount()).To(Equal(uint64(2)))
		})
	})

	Describe("string instructions", func() {
		It("should copy with REP MOVSB", func() {
			e := newMachine([]byte{0xF3, 0xA4})
			e.Load(0x300, []byte("abcd"))
			p := e.Processor()
			p.SetReg16(insts.ESI, 0x300)
			p.SetReg16(insts.EDI, 0x400)
			p.SetReg16(insts.ECX, 4)

			stepN(e, 1)

			Expect(e.Memory().Read32(0x400)).To(Equal(e.Memory().Read32(0x300)))
			Expect(p.Reg16(insts.ECX)).To(Equal(uint16(0)))
			Expect(p.Reg16(insts.ESI)).To(Equal(uint16(0x304)))
			Expect(p.Reg16(insts.EDI)).To(Equal(uint16(0x404)))
		})

		It("should scan until a match with REPNE SCASB", func() {
			e := newMachine([]byte{0xF2, 0xAE})
			e.Load(0x300, []byte{'a', 'b', 'c', 0, 'd'})
			p := e.Processor()
			p.SetReg16(insts.EDI, 0x300)
			p.SetReg16(insts.ECX, 10)

			stepN(e, 1)

			Expect(p.Reg16(insts.EDI)).To(Equal(uint16(0x304)))
			Expect(p.Reg16(insts.ECX)).To(Equal(uint16(6)))
			Expect(p.Flags.Zero()).To(BeTrue())
		})

		It("should store backwards when DF is set", func() {
			// std; stosw
			e := newMachine([]byte{0xFD, 0xAB})
			p := e.Processor()
			p.SetReg16(insts.EAX, 0x1234)
			p.SetReg16(insts.EDI, 0x400)

			stepN(e, 2)

			Expect(e.Memory().Read16(0x400)).To(Equal(uint16(0x1234)))
			Expect(p.Reg16(insts.EDI)).To(Equal(uint16(0x3FE)))
		})
	})

	Describe("hardware interrupts", func() {
		It("should hold interrupts for one instruction after STI", func() {
			pic := &fakePIC{vectors: []uint8{0x08}}
			// sti; nop; nop
			e := newMachine([]byte{0xFB, 0x90, 0x90}, emu.WithInterruptController(pic))
			e.Load(0x700, []byte{0xBB, 0x42, 0x42, 0xCF})
			setVector(e, 0x08, 0x700)

			stepN(e, 2)
			Expect(pic.polls).To(Equal(0))
			Expect(e.Processor().Reg16(insts.EBX)).To(Equal(uint16(0)))

			stepN(e, 1)
			Expect(pic.polls).To(Equal(1))
			Expect(e.Processor().Reg16(insts.EBX)).To(Equal(uint16(0x4242)))
		})

		It("should wake from HLT on an interrupt", func() {
			pic := &fakePIC{}
			// sti; hlt; mov ax,1
			e := newMachine([]byte{0xFB, 0xF4, 0xB8, 0x01, 0x00}, emu.WithInterruptController(pic))
			e.Load(0x700, []byte{0xCF})
			setVector(e, 0x08, 0x700)

			stepN(e, 2)
			Expect(e.Halted()).To(BeTrue())
			Expect(e.Step().Halted).To(BeTrue())

			pic.vectors = []uint8{0x08}
			stepN(e, 2)
			Expect(e.Halted()).To(BeFalse())
			Expect(e.Processor().Reg16(insts.EAX)).To(Equal(uint16(1)))
		})
	})

	Describe("host services", func() {
		It("should print and exit through INT 21h", func() {
			var out bytes.Buffer
			dos := emu.NewDOSServices(nil, &out, &out, GinkgoLogr)
			// mov ah,9; mov dx,0x110; int 21h; mov ax,0x4C03; int 21h
			e := newMachine([]byte{
				0xB4, 0x09,
				0xBA, 0x10, 0x01,
				0xCD, 0x21,
				0xB8, 0x03, 0x4C,
				0xCD, 0x21,
			},
				emu.WithInterruptHandler(emu.VectorDOS, dos),
				emu.WithInterruptHandler(emu.VectorTerminate, dos),
			)
			e.Load(0x110, []byte("hi$"))

			result := e.Run()

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(3)))
			Expect(out.String()).To(Equal("hi"))
		})

		It("should write to a handle and report the count", func() {
			var out bytes.Buffer
			dos := emu.NewDOSServices(nil, &out, &out, GinkgoLogr)
			// mov ah,0x40; mov bx,1; mov cx,3; mov dx,0x120; int 21h; int 20h
			e := newMachine([]byte{
				0xB4, 0x40,
				0xBB, 0x01, 0x00,
				0xB9, 0x03, 0x00,
				0xBA, 0x20, 0x01,
				0xCD, 0x21,
				0xCD, 0x20,
			},
				emu.WithInterruptHandler(emu.VectorDOS, dos),
				emu.WithInterruptHandler(emu.VectorTerminate, dos),
			)
			e.Load(0x120, []byte("abc"))

			result := e.Run()

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(0)))
			Expect(out.String()).To(Equal("abc"))
			Expect(e.Processor().Reg16(insts.EAX)).To(Equal(uint16(3)))
			Expect(e.Processor().Flags.Carry()).To(BeFalse())
		})

		It("should report host handler failures as host errors", func() {
			boom := errors.New("device offline")
			// int 60h
			e := newMachine([]byte{0xCD, 0x60},
				emu.WithInterruptHandler(0x60, emu.InterruptHandlerFunc(
					func(*emu.Emulator, uint8) error { return boom })))

			result := e.Step()

			var hostErr *emu.HostError
			Expect(errors.As(result.Err, &hostErr)).To(BeTrue())
			Expect(hostErr.Vector).To(Equal(uint8(0x60)))
			Expect(result.Err).To(MatchError(boom))
			var decodeErr *emu.DecodeError
			Expect(errors.As(result.Err, &decodeErr)).To(BeFalse())
			Expect(e.Processor().EIP).To(Equal(uint32(codeBase)))
		})

		It("should fail on a closed handle", func() {
			dos := emu.NewDOSServices(nil, &bytes.Buffer{}, &bytes.Buffer{}, GinkgoLogr)
			Expect(dos.Handles().Close(emu.HandleStdout)).To(Succeed())
			// mov ah,0x40; mov bx,1; int 21h
			e := newMachine([]byte{0xB4, 0x40, 0xBB, 0x01, 0x00, 0xCD, 0x21},
				emu.WithInterruptHandler(emu.VectorDOS, dos))

			stepN(e, 3)

			Expect(e.Processor().Flags.Carry()).To(BeTrue())
			Expect(e.Processor().Reg16(insts.EAX)).To(Equal(emu.DOSErrInvalidHandle))
		})
	})

	Describe("x87", func() {
		It("should load constants, add and store an integer", func() {
			// fld1; fadd st0,st0; fistp word [0x200]
			e := newMachine([]byte{0xD9, 0xE8, 0xD8, 0xC0, 0xDF, 0x1E, 0x00, 0x02})
			stepN(e, 3)

			Expect(e.Memory().Read16(0x200)).To(Equal(uint16(2)))
			Expect(e.Processor().FPU.Empty(0)).To(BeTrue())
		})

		It("should round-trip a double through memory", func() {
			// fld qword [0x300]; fchs; fstp qword [0x308]
			e := newMachine([]byte{0xDD, 0x06, 0x00, 0x03, 0xD9, 0xE0, 0xDD, 0x1E, 0x08, 0x03})
			e.Memory().Write32(0x300, 0)
			e.Memory().Write32(0x304, 0x40091EB8) // 3.14

			stepN(e, 3)

			Expect(e.Memory().Read32(0x30C)).To(Equal(uint32(0xC0091EB8)))
		})

		It("should compare and store the status word", func() {
			// fldz; fld1; fcompp; fnstsw ax
			e := newMachine([]byte{0xD9, 0xEE, 0xD9, 0xE8, 0xDE, 0xD9, 0xDF, 0xE0})
			stepN(e, 4)

			ax := e.Processor().Reg16(insts.EAX)
			Expect(ax & emu.FPUC0).To(BeZero())
			Expect(ax & emu.FPUC3).To(BeZero())
		})
	})

	Describe("caches", func() {
		It("should reuse accessors and bindings on re-execution", func() {
			// add ax,bx; jmp -4
			e := newMachine([]byte{0x01, 0xD8, 0xEB, 0xFC})
			stepN(e, 2)
			accessors, bindings := e.Accessors().Len(), e.BindingCount()

			stepN(e, 10)

			Expect(e.Accessors().Len()).To(Equal(accessors))
			Expect(e.BindingCount()).To(Equal(bindings))
		})
	})

	Describe("Snapshot", func() {
		It("should capture registers, selectors and FLAGS", func() {
			e := newMachine([]byte{0xB8, 0x34, 0x12})
			stepN(e, 1)

			want := emu.Snapshot{
				EAX:    0x1234,
				ESP:    stackTop,
				SS:     stackSeg,
				EIP:    codeBase + 3,
				EFlags: 0x0002,
			}
			Expect(cmp.Diff(want, e.Snapshot())).To(BeEmpty())
		})

		It("should restore a snapshot", func() {
			e := newMachine([]byte{0x04, 0x01})
			s := emu.Snapshot{EAX: 0xFF, ECX: 7, DS: 0x40, EIP: codeBase, SS: stackSeg, ESP: stackTop, EFlags: 0x0203}
			e.Restore(s)

			Expect(cmp.Diff(s, e.Snapshot())).To(BeEmpty())
			Expect(e.Processor().SegmentBase(insts.DS)).To(Equal(uint32(0x400)))

			stepN(e, 1)
			Expect(e.Snapshot().EAX).To(Equal(uint32(0)))
			Expect(e.Processor().Flags.Zero()).To(BeTrue())
		})
	})

	Describe("RunContext", func() {
		It("should stop when the context is cancelled", func() {
			e := newMachine([]byte{0xEB, 0xFE})
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			result := e.RunContext(ctx)

			Expect(result.Err).To(MatchError(context.Canceled))
		})
	})
})
