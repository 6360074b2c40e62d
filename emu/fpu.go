package emu

import "math"

// x87 status word bits.
const (
	FPUInvalid     uint16 = 1 << 0
	FPUZeroDivide  uint16 = 1 << 2
	FPUStackFault  uint16 = 1 << 6
	FPUErrorStatus uint16 = 1 << 7
	FPUC0          uint16 = 1 << 8
	FPUC1          uint16 = 1 << 9
	FPUC2          uint16 = 1 << 10
	FPUC3          uint16 = 1 << 14

	fpuTopShift = 11
	fpuTopMask  = uint16(7 << fpuTopShift)

	fpuExceptions = uint16(0x3F) | FPUStackFault | FPUErrorStatus
)

const (
	tagValid   = 0
	tagZero    = 1
	tagSpecial = 2
	tagEmpty   = 3
)

// FPU is the x87 register stack. Values are held as float64.
type FPU struct {
	regs    [8]float64
	Control uint16
	Status  uint16
	Tags    uint16
}

// Reset puts the FPU in its FNINIT state.
func (f *FPU) Reset() {
	f.regs = [8]float64{}
	f.Control = 0x037F
	f.Status = 0
	f.Tags = 0xFFFF
}

// Top returns the physical index of ST(0).
func (f *FPU) Top() int {
	return int(f.Status&fpuTopMask) >> fpuTopShift
}

func (f *FPU) setTop(top int) {
	f.Status = f.Status&^fpuTopMask | uint16(top&7)<<fpuTopShift
}

func (f *FPU) phys(i int) int {
	return (f.Top() + i) & 7
}

func (f *FPU) tag(phys int) uint16 {
	return f.Tags >> (uint(phys) * 2) & 3
}

func (f *FPU) setTag(phys int, v float64) {
	t := uint16(tagValid)
	switch {
	case v == 0:
		t = tagZero
	case math.IsNaN(v) || math.IsInf(v, 0):
		t = tagSpecial
	}
	shift := uint(phys) * 2
	f.Tags = f.Tags&^(3<<shift) | t<<shift
}

// Empty reports whether ST(i) is empty.
func (f *FPU) Empty(i int) bool {
	return f.tag(f.phys(i)) == tagEmpty
}

// ST returns ST(i). An empty slot reads as NaN and sets the stack fault.
func (f *FPU) ST(i int) float64 {
	if f.Empty(i) {
		f.Status |= FPUInvalid | FPUStackFault
		return math.NaN()
	}
	return f.regs[f.phys(i)]
}

// SetST writes ST(i).
func (f *FPU) SetST(i int, v float64) {
	p := f.phys(i)
	f.regs[p] = v
	f.setTag(p, v)
}

// Push decrements TOP and stores v in the new ST(0).
func (f *FPU) Push(v float64) {
	top := (f.Top() - 1) & 7
	if f.tag(top) != tagEmpty {
		f.Status |= FPUInvalid | FPUStackFault | FPUC1
	}
	f.setTop(top)
	f.regs[top] = v
	f.setTag(top, v)
}

// Pop returns ST(0), marks it empty and increments TOP.
func (f *FPU) Pop() float64 {
	v := f.ST(0)
	top := f.Top()
	f.Tags |= 3 << (uint(top) * 2)
	f.setTop(top + 1)
	return v
}

// Exchange swaps ST(0) and ST(i).
func (f *FPU) Exchange(i int) {
	a, b := f.ST(0), f.ST(i)
	f.SetST(0, b)
	f.SetST(i, a)
}

// Compare sets C3, C2 and C0 from a compared with b.
func (f *FPU) Compare(a, b float64) {
	f.Status &^= FPUC0 | FPUC1 | FPUC2 | FPUC3
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		f.Status |= FPUC0 | FPUC2 | FPUC3 | FPUInvalid
	case a < b:
		f.Status |= FPUC0
	case a == b:
		f.Status |= FPUC3
	}
}

// ClearExceptions clears the exception and busy bits.
func (f *FPU) ClearExceptions() {
	f.Status &^= fpuExceptions | 1<<15
}

// Round rounds v to an integer using the control word's rounding mode.
func (f *FPU) Round(v float64) float64 {
	switch (f.Control >> 10) & 3 {
	case 1:
		return math.Floor(v)
	case 2:
		return math.Ceil(v)
	case 3:
		return math.Trunc(v)
	default:
		return math.RoundToEven(v)
	}
}

// Integer converts v to a signed integer of the given byte size. Values
// that do not fit produce the integer indefinite and set the invalid flag.
func (f *FPU) Integer(v float64, size uint8) int64 {
	r := f.Round(v)
	bits := uint(size) * 8
	limit := math.Ldexp(1, int(bits)-1)
	if math.IsNaN(r) || r < -limit || r >= limit {
		f.Status |= FPUInvalid
		return -1 << (bits - 1)
	}
	return int64(r)
}

// Float80 is an x87 extended-precision value as stored in memory.
type Float80 struct {
	Mantissa uint64 // explicit integer bit in bit 63
	SignExp  uint16 // sign in bit 15, biased exponent in bits 0-14
}

const f80Bias = 16383

// Float80FromFloat64 converts a float64 to extended precision. The
// conversion is exact.
func Float80FromFloat64(v float64) Float80 {
	bits := math.Float64bits(v)
	sign := uint16(bits>>63) << 15
	exp := int(bits>>52) & 0x7FF
	frac := bits & (1<<52 - 1)

	switch {
	case exp == 0 && frac == 0:
		return Float80{SignExp: sign}
	case exp == 0x7FF && frac == 0:
		return Float80{Mantissa: 1 << 63, SignExp: sign | 0x7FFF}
	case exp == 0x7FF:
		return Float80{Mantissa: 0xC000000000000000 | frac<<11, SignExp: sign | 0x7FFF}
	case exp == 0:
		mant := frac << 11
		e := -1022
		for mant&(1<<63) == 0 {
			mant <<= 1
			e--
		}
		return Float80{Mantissa: mant, SignExp: sign | uint16(e+f80Bias)}
	default:
		return Float80{Mantissa: 1<<63 | frac<<11, SignExp: sign | uint16(exp-1023+f80Bias)}
	}
}

// Float64 converts to the nearest float64.
func (x Float80) Float64() float64 {
	neg := x.SignExp&0x8000 != 0
	exp := int(x.SignExp & 0x7FFF)

	var v float64
	switch {
	case exp == 0 && x.Mantissa == 0:
		v = 0
	case exp == 0x7FFF && x.Mantissa<<1 == 0:
		v = math.Inf(1)
	case exp == 0x7FFF:
		return math.NaN()
	default:
		v = math.Ldexp(float64(x.Mantissa), exp-f80Bias-63)
	}
	if neg {
		return math.Copysign(v, -1)
	}
	return v
}
