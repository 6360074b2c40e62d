package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/insts"
)

var _ = Describe("AccessorCache", func() {
	var (
		cache *emu.AccessorCache
		e     *emu.Emulator
	)

	BeforeEach(func() {
		cache = emu.NewAccessorCache()
		e = emu.NewEmulator()
		e.Processor().EIP = codeBase
	})

	It("should return the same accessor for equal shapes", func() {
		s := emu.Shape{Kind: emu.ShapeRM, Size: 2, Width: insts.Addr16}

		a, err := cache.GetOrCreate(s)
		Expect(err).NotTo(HaveOccurred())
		b, err := cache.GetOrCreate(s)
		Expect(err).NotTo(HaveOccurred())

		Expect(b).To(BeIdenticalTo(a))
		Expect(cache.Len()).To(Equal(1))
	})

	It("should load the same operand twice through a cached accessor", func() {
		// [bx+si+0x10]
		e.Load(codeBase, []byte{0x40, 0x10})
		p := e.Processor()
		p.SetReg16(insts.EBX, 0x200)
		p.SetReg16(insts.ESI, 0x20)
		e.Memory().Write16(0x230, 0xBEEF)
		s := emu.Shape{Kind: emu.ShapeRM, Size: 2, Width: insts.Addr16}

		load := func() (emu.Operand, uint32) {
			a, err := cache.GetOrCreate(s)
			Expect(err).NotTo(HaveOccurred())
			p.EIP = codeBase
			op, err := a.Load(e, emu.NewInstructionState(e))
			Expect(err).NotTo(HaveOccurred())
			return op, p.EIP - codeBase
		}

		first, firstLen := load()
		second, secondLen := load()

		Expect(first.Value).To(Equal(uint32(0xBEEF)))
		Expect(firstLen).To(Equal(uint32(2)))
		Expect(second).To(Equal(first))
		Expect(secondLen).To(Equal(firstLen))
		Expect(cache.Len()).To(Equal(1))
	})

	It("should build distinct accessors for distinct modes", func() {
		s := emu.Shape{Kind: emu.ShapeRM, Size: 2, Width: insts.Addr16}
		a, _ := cache.GetOrCreate(s)
		s.Mode = emu.ReadAddress
		b, _ := cache.GetOrCreate(s)

		Expect(b).NotTo(BeIdenticalTo(a))
		Expect(cache.Len()).To(Equal(2))
	})

	DescribeTable("rejecting unsupported shapes",
		func(s emu.Shape) {
			_, err := cache.GetOrCreate(s)
			Expect(err).To(MatchError(emu.ErrUnsupportedShape))
			Expect(cache.Len()).To(BeZero())
		},
		Entry("six-byte immediate", emu.Shape{Kind: emu.ShapeImmediate, Size: 6}),
		Entry("writable immediate", emu.Shape{Kind: emu.ShapeImmediate, Size: 2, Mode: emu.ReadAddress}),
		Entry("three-byte register", emu.Shape{Kind: emu.ShapeRegister, Size: 3}),
		Entry("byte segment", emu.Shape{Kind: emu.ShapeSegment, Size: 1}),
		Entry("memory without a width", emu.Shape{Kind: emu.ShapeMemory, Size: 2}),
		Entry("narrowing extension", emu.Shape{Kind: emu.ShapeRM, Size: 4, Extend: 2, Width: insts.Addr16}),
		Entry("x87 slot out of range", emu.Shape{Kind: emu.ShapeFPUStack, Size: 10, Float: true, Slot: 8}),
	)

	It("should load an immediate and advance EIP", func() {
		e.Load(codeBase, []byte{0x34, 0x12})
		a, err := cache.GetOrCreate(emu.Shape{Kind: emu.ShapeImmediate, Size: 2})
		Expect(err).NotTo(HaveOccurred())

		op, err := a.Load(e, emu.NewInstructionState(e))

		Expect(err).NotTo(HaveOccurred())
		Expect(op.Value).To(Equal(uint32(0x1234)))
		Expect(e.Processor().EIP).To(Equal(uint32(codeBase + 2)))
	})

	It("should sign-extend a byte immediate", func() {
		e.Load(codeBase, []byte{0xFE})
		a, err := cache.GetOrCreate(emu.Shape{Kind: emu.ShapeImmediate, Size: 1, Extend: 4, Signed: true})
		Expect(err).NotTo(HaveOccurred())

		op, err := a.Load(e, emu.NewInstructionState(e))

		Expect(err).NotTo(HaveOccurred())
		Expect(op.Value).To(Equal(uint32(0xFFFFFFFE)))
	})

	It("should refuse to store through a value shape", func() {
		a, err := cache.GetOrCreate(emu.Shape{Kind: emu.ShapeFixedRegister, Size: 2, Slot: uint8(insts.EBX)})
		Expect(err).NotTo(HaveOccurred())

		op, err := a.Load(e, emu.NewInstructionState(e))
		Expect(err).NotTo(HaveOccurred())

		Expect(a.Store(e, op.Loc, 1)).To(MatchError(emu.ErrNotWritable))
	})

	It("should store through an address shape", func() {
		a, err := cache.GetOrCreate(emu.Shape{
			Kind:  emu.ShapeFixedRegister,
			Size:  2,
			Mode:  emu.ReadAddress,
			Slot:  uint8(insts.EBX),
			Width: insts.Addr16,
		})
		Expect(err).NotTo(HaveOccurred())

		op, err := a.Load(e, emu.NewInstructionState(e))
		Expect(err).NotTo(HaveOccurred())
		Expect(op.Loc.IsRegister()).To(BeTrue())

		Expect(a.Store(e, op.Loc, 0xBEEF)).To(Succeed())
		Expect(e.Processor().Reg16(insts.EBX)).To(Equal(uint16(0xBEEF)))
	})

	It("should resolve a memory operand without reading it", func() {
		// modrm: mod 0, rm 7 ([bx])
		e.Load(codeBase, []byte{0x07})
		p := e.Processor()
		p.SetReg16(insts.EBX, 0x300)
		p.SetSegment(insts.DS, 0x20)

		a, err := cache.GetOrCreate(emu.Shape{Kind: emu.ShapeRM, Size: 2, Width: insts.Addr16, Mode: emu.ReadAddress})
		Expect(err).NotTo(HaveOccurred())

		op, err := a.Load(e, emu.NewInstructionState(e))
		Expect(err).NotTo(HaveOccurred())
		Expect(op.Loc.IsMemory()).To(BeTrue())
		Expect(op.Loc.Offset()).To(Equal(uint32(0x300)))
		Expect(op.Loc.Address()).To(Equal(uint32(0x500)))
		Expect(op.Loc.Segment()).To(Equal(insts.DS))

		Expect(a.Store(e, op.Loc, 0x1122)).To(Succeed())
		Expect(e.Memory().Read16(0x500)).To(Equal(uint16(0x1122)))
		Expect(a.Read(e, op.Loc)).To(Equal(uint32(0x1122)))
	})
})

var _ = Describe("ShapeFor", func() {
	It("should size v operands by the operand size", func() {
		spec := insts.OperandSpec{Kind: insts.OperandRM, Size: insts.SizeV}

		s16, err := emu.ShapeFor(spec, false, insts.Addr16, emu.ReadValue)
		Expect(err).NotTo(HaveOccurred())
		s32, err := emu.ShapeFor(spec, true, insts.Addr16, emu.ReadValue)
		Expect(err).NotTo(HaveOccurred())

		Expect(s16.Size).To(Equal(uint8(2)))
		Expect(s32.Size).To(Equal(uint8(4)))
	})

	It("should drop an extension that does not widen", func() {
		spec := insts.OperandSpec{Kind: insts.OperandImm, Size: insts.SizeByte, Extend: insts.SizeV, Signed: true}

		s, err := emu.ShapeFor(spec, false, insts.Addr16, emu.ReadValue)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Extend).To(Equal(uint8(2)))

		spec.Size = insts.SizeWord
		s, err = emu.ShapeFor(spec, false, insts.Addr16, emu.ReadValue)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Extend).To(BeZero())
	})

	It("should mark M operands as memory only", func() {
		s, err := emu.ShapeFor(insts.OperandSpec{Kind: insts.OperandMem, Size: insts.SizeV}, false, insts.Addr16, emu.ReadAddress)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.MemoryOnly).To(BeTrue())
		Expect(s.Kind).To(Equal(emu.ShapeMemory))
	})

	It("should reject an operand kind with no shape", func() {
		_, err := emu.ShapeFor(insts.OperandSpec{Kind: insts.OperandNone}, false, insts.Addr16, emu.ReadValue)
		Expect(err).To(MatchError(emu.ErrUnsupportedShape))
	})
})
