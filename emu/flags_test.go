package emu_test

import (
	"math/bits"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gregdivis/Aeon-sub003/emu"
)

type flagSet struct {
	CF, AF, OF, SF, ZF, PF bool
}

func readFlags(f *emu.Flags) flagSet {
	return flagSet{
		CF: f.Carry(),
		AF: f.Auxiliary(),
		OF: f.Overflow(),
		SF: f.Sign(),
		ZF: f.Zero(),
		PF: f.Parity(),
	}
}

func mask(size uint8) uint64 {
	return uint64(1)<<(uint(size)*8) - 1
}

func sign(size uint8) uint64 {
	return uint64(1) << (uint(size)*8 - 1)
}

func resultFlags(size uint8, r uint64) (sf, zf, pf bool) {
	r &= mask(size)
	return r&sign(size) != 0, r == 0, bits.OnesCount8(uint8(r))%2 == 0
}

// addReference computes a + b + carry the slow way.
func addReference(size uint8, a, b, carry uint64) (uint64, flagSet) {
	full := a + b + carry
	r := full & mask(size)
	f := flagSet{
		CF: full > mask(size),
		AF: (a^b^r)&0x10 != 0,
		OF: (a^r)&(b^r)&sign(size) != 0,
	}
	f.SF, f.ZF, f.PF = resultFlags(size, r)
	return r, f
}

// subReference computes a - b - borrow the slow way.
func subReference(size uint8, a, b, borrow uint64) (uint64, flagSet) {
	r := (a - b - borrow) & mask(size)
	f := flagSet{
		CF: a < b+borrow,
		AF: (a^b^r)&0x10 != 0,
		OF: (a^b)&(a^r)&sign(size) != 0,
	}
	f.SF, f.ZF, f.PF = resultFlags(size, r)
	return r, f
}

func samples(size uint8, n int) [][2]uint64 {
	rng := rand.New(rand.NewSource(int64(size) * 7919))
	edges := []uint64{0, 1, 0x7F, 0x80, 0xFF, 0x7FFF, 0x8000, 0xFFFF, 0x7FFFFFFF, 0x80000000, 0xFFFFFFFF}
	var out [][2]uint64
	for _, a := range edges {
		for _, b := range edges {
			out = append(out, [2]uint64{a & mask(size), b & mask(size)})
		}
	}
	for i := 0; i < n; i++ {
		out = append(out, [2]uint64{uint64(rng.Uint32()) & mask(size), uint64(rng.Uint32()) & mask(size)})
	}
	return out
}

var _ = Describe("Flags", func() {
	var (
		flags *emu.Flags
		alu   *emu.ALU
	)

	BeforeEach(func() {
		flags = &emu.Flags{}
		alu = emu.NewALU(flags)
	})

	Describe("byte truth tables", func() {
		It("should match ADD for every operand pair", func() {
			for a := uint64(0); a < 256; a++ {
				for b := uint64(0); b < 256; b++ {
					want, wantFlags := addReference(1, a, b, 0)
					got := alu.Add(1, uint32(a), uint32(b))
					Expect(uint64(got)).To(Equal(want))
					Expect(readFlags(flags)).To(Equal(wantFlags), "add %#x %#x", a, b)
				}
			}
		})

		It("should match SUB for every operand pair", func() {
			for a := uint64(0); a < 256; a++ {
				for b := uint64(0); b < 256; b++ {
					want, wantFlags := subReference(1, a, b, 0)
					got := alu.Sub(1, uint32(a), uint32(b))
					Expect(uint64(got)).To(Equal(want))
					Expect(readFlags(flags)).To(Equal(wantFlags), "sub %#x %#x", a, b)
				}
			}
		})

		It("should match ADC and SBB with the carry in set", func() {
			for a := uint64(0); a < 256; a++ {
				for b := uint64(0); b < 256; b++ {
					flags.SetCarry(true)
					want, wantFlags := addReference(1, a, b, 1)
					Expect(uint64(alu.Adc(1, uint32(a), uint32(b)))).To(Equal(want))
					Expect(readFlags(flags)).To(Equal(wantFlags), "adc %#x %#x", a, b)

					flags.SetCarry(true)
					want, wantFlags = subReference(1, a, b, 1)
					Expect(uint64(alu.Sbb(1, uint32(a), uint32(b)))).To(Equal(want))
					Expect(readFlags(flags)).To(Equal(wantFlags), "sbb %#x %#x", a, b)
				}
			}
		})

		It("should leave CF alone on INC and DEC", func() {
			for a := uint64(0); a < 256; a++ {
				for _, carry := range []bool{false, true} {
					flags.SetCarry(carry)
					_, want := addReference(1, a, 1, 0)
					want.CF = carry
					Expect(uint64(alu.Inc(1, uint32(a)))).To(Equal((a + 1) & 0xFF))
					Expect(readFlags(flags)).To(Equal(want), "inc %#x", a)

					flags.SetCarry(carry)
					_, want = subReference(1, a, 1, 0)
					want.CF = carry
					Expect(uint64(alu.Dec(1, uint32(a)))).To(Equal((a - 1) & 0xFF))
					Expect(readFlags(flags)).To(Equal(want), "dec %#x", a)
				}
			}
		})

		It("should match NEG as a subtraction from zero", func() {
			for a := uint64(0); a < 256; a++ {
				want, wantFlags := subReference(1, 0, a, 0)
				Expect(uint64(alu.Neg(1, uint32(a)))).To(Equal(want))
				Expect(readFlags(flags)).To(Equal(wantFlags), "neg %#x", a)
			}
		})
	})

	DescribeTable("sampled word and dword truth tables",
		func(size uint8) {
			for _, pair := range samples(size, 2000) {
				a, b := pair[0], pair[1]

				want, wantFlags := addReference(size, a, b, 0)
				Expect(uint64(alu.Add(size, uint32(a), uint32(b)))).To(Equal(want))
				Expect(readFlags(flags)).To(Equal(wantFlags), "add %#x %#x", a, b)

				want, wantFlags = subReference(size, a, b, 0)
				Expect(uint64(alu.Sub(size, uint32(a), uint32(b)))).To(Equal(want))
				Expect(readFlags(flags)).To(Equal(wantFlags), "sub %#x %#x", a, b)
			}
		},
		Entry("word", uint8(2)),
		Entry("dword", uint8(4)),
	)

	Describe("logic operations", func() {
		It("should clear CF, OF and AF and derive SF, ZF and PF from the result", func() {
			flags.SetCarry(true)
			flags.SetOverflow(true)
			flags.SetAuxiliary(true)

			r := alu.And(1, 0xF0, 0x0F)

			Expect(r).To(Equal(uint32(0)))
			Expect(readFlags(flags)).To(Equal(flagSet{ZF: true, PF: true}))
		})

		It("should set SF from the top bit of the operand size", func() {
			alu.Or(2, 0x8000, 0x0001)
			Expect(flags.Sign()).To(BeTrue())
			alu.Xor(4, 0x80000000, 0)
			Expect(flags.Sign()).To(BeTrue())
		})
	})

	Describe("shifts", func() {
		It("should define OF for single-bit shifts", func() {
			alu.Shl(1, 0x40, 1)
			Expect(flags.Overflow()).To(BeTrue())
			Expect(flags.Carry()).To(BeFalse())

			alu.Shr(1, 0x81, 1)
			Expect(flags.Overflow()).To(BeTrue())
			Expect(flags.Carry()).To(BeTrue())

			alu.Sar(1, 0x81, 1)
			Expect(flags.Overflow()).To(BeFalse())
		})

		It("should clear OF for multi-bit shifts", func() {
			r := alu.Shl(1, 0x41, 2)
			Expect(r).To(Equal(uint32(0x04)))
			Expect(flags.Carry()).To(BeTrue())
			Expect(flags.Overflow()).To(BeFalse())
		})

		It("should mask the count to five bits", func() {
			Expect(alu.Shl(2, 1, 33)).To(Equal(uint32(2)))
		})

		It("should keep every flag on a zero count", func() {
			alu.Add(1, 0xFF, 1)
			before := readFlags(flags)

			Expect(alu.Shr(1, 0x80, 0)).To(Equal(uint32(0x80)))
			Expect(alu.Rol(1, 0x80, 32)).To(Equal(uint32(0x80)))
			Expect(readFlags(flags)).To(Equal(before))
		})

		It("should rotate through carry", func() {
			flags.SetCarry(true)
			r := alu.Rcl(1, 0x80, 1)
			Expect(r).To(Equal(uint32(0x01)))
			Expect(flags.Carry()).To(BeTrue())

			flags.SetCarry(false)
			r = alu.Rcr(1, 0x01, 1)
			Expect(r).To(Equal(uint32(0x00)))
			Expect(flags.Carry()).To(BeTrue())
		})

		It("should rotate left and right", func() {
			Expect(alu.Rol(1, 0x81, 1)).To(Equal(uint32(0x03)))
			Expect(flags.Carry()).To(BeTrue())
			Expect(alu.Ror(2, 0x0001, 4)).To(Equal(uint32(0x1000)))
			Expect(flags.Carry()).To(BeFalse())
		})

		It("should shift double precision", func() {
			Expect(alu.Shld(2, 0x1234, 0xABCD, 4)).To(Equal(uint32(0x234A)))
			Expect(flags.Carry()).To(BeTrue())
			Expect(alu.Shrd(4, 0x12345678, 0x9ABCDEF0, 8)).To(Equal(uint32(0xF0123456)))
			Expect(flags.Carry()).To(BeFalse())
		})
	})

	Describe("multiplication", func() {
		It("should set CF and OF when the high half is significant", func() {
			lo, hi := alu.Mul(1, 0x10, 0x10)
			Expect(lo).To(Equal(uint32(0x00)))
			Expect(hi).To(Equal(uint32(0x01)))
			Expect(flags.Carry()).To(BeTrue())
			Expect(flags.Overflow()).To(BeTrue())

			alu.Mul(2, 3, 4)
			Expect(flags.Carry()).To(BeFalse())
			Expect(flags.Overflow()).To(BeFalse())
		})

		It("should treat a sign-extended high half as insignificant for IMUL", func() {
			lo, hi := alu.IMul(1, 0xFF, 0x02)
			Expect(lo).To(Equal(uint32(0xFE)))
			Expect(hi).To(Equal(uint32(0xFF)))
			Expect(flags.Carry()).To(BeFalse())

			Expect(alu.IMulTruncated(2, 0x4000, 2)).To(Equal(uint32(0x8000)))
			Expect(flags.Overflow()).To(BeTrue())
		})

		It("should fault on division by zero and quotient overflow", func() {
			_, _, err := alu.Div(1, 0, 10, 0)
			Expect(err).To(MatchError(&emu.Fault{Vector: emu.VectorDivide}))

			_, _, err = alu.Div(1, 0x02, 0x00, 0x02)
			Expect(err).To(HaveOccurred())

			q, r, err := alu.IDiv(2, 0xFFFF, 0xFFF9, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(q).To(Equal(uint32(0xFFFD)))
			Expect(r).To(Equal(uint32(0xFFFF)))
		})
	})

	Describe("decimal adjust", func() {
		It("should adjust packed BCD after addition", func() {
			r := alu.Add(1, 0x19, 0x28)
			Expect(alu.Daa(uint8(r))).To(Equal(uint8(0x47)))
		})

		It("should split and fold unpacked digits", func() {
			ax, err := alu.Aam(63, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ax).To(Equal(uint16(0x0603)))
			Expect(alu.Aad(0x0603, 10)).To(Equal(uint16(63)))
		})
	})

	Describe("lazy evaluation", func() {
		It("should compute a pending flag once", func() {
			alu.Add(1, 0xF5, 0x10)
			start := flags.Evaluations()

			Expect(flags.Carry()).To(BeTrue())
			Expect(flags.Evaluations()).To(Equal(start + 1))
			Expect(flags.Carry()).To(BeTrue())
			Expect(flags.Carry()).To(BeTrue())
			Expect(flags.Evaluations()).To(Equal(start + 1))
		})

		It("should not compute flags nobody reads", func() {
			start := flags.Evaluations()
			for i := uint32(0); i < 100; i++ {
				alu.Add(4, i, i)
			}
			Expect(flags.Evaluations()).To(Equal(start))
		})

		It("should resolve undefined group members before replacing the group", func() {
			alu.Add(1, 0xFF, 0x01)
			// INC defines AF but not CF; CF must survive from the ADD.
			alu.Inc(1, 0x0F)
			Expect(flags.Carry()).To(BeTrue())
			Expect(flags.Auxiliary()).To(BeTrue())
		})

		It("should round-trip the packed FLAGS word", func() {
			alu.Sub(1, 0, 1)
			v := flags.Value()
			Expect(v & 0x0002).To(Equal(uint16(0x0002)))
			Expect(v & 0x0001).To(Equal(uint16(0x0001)))

			other := &emu.Flags{}
			other.SetValue(v)
			Expect(readFlags(other)).To(Equal(readFlags(flags)))
		})

		It("should record tags directly", func() {
			flags.SetLazy(emu.AddByte, 0x80, 0x80, 0)
			flags.SetResult(1, 0)
			Expect(flags.Carry()).To(BeTrue())
			Expect(flags.Overflow()).To(BeTrue())
			Expect(flags.Zero()).To(BeTrue())
			Expect(emu.AddByte.String()).To(Equal("AddByte"))
			Expect(emu.IMul23DWord.Bits()).To(Equal(uint(32)))
		})
	})

	Describe("conditions", func() {
		DescribeTable("should evaluate against FLAGS",
			func(a, b uint32, cond emu.Cond, want bool) {
				alu.Sub(2, a, b)
				Expect(flags.Check(cond)).To(Equal(want))
			},
			Entry("equal", uint32(5), uint32(5), emu.CondZ, true),
			Entry("not equal", uint32(5), uint32(4), emu.CondNZ, true),
			Entry("below", uint32(3), uint32(4), emu.CondB, true),
			Entry("above", uint32(5), uint32(4), emu.CondA, true),
			Entry("not above when equal", uint32(4), uint32(4), emu.CondA, false),
			Entry("less signed", uint32(0xFFFF), uint32(1), emu.CondL, true),
			Entry("greater signed", uint32(1), uint32(0xFFFF), emu.CondG, true),
			Entry("less or equal", uint32(7), uint32(7), emu.CondLE, true),
			Entry("greater or equal", uint32(0x8000), uint32(0x7FFF), emu.CondGE, false),
		)
	})
})
