package emu

import "fmt"

// FlagOp tags the operation whose flags are pending evaluation. It packs
// the operation kind and operand width: kind<<2 | size class.
type FlagOp uint8

type flagKind uint8

const (
	kindNone flagKind = iota
	kindAdd
	kindAdc
	kindSub
	kindSbb
	kindInc
	kindDec
	kindNeg
	kindShl
	kindShl1
	kindShr
	kindShr1
	kindSar
	kindSar1
	kindRol
	kindRol1
	kindRor
	kindRor1
	kindMul
	kindIMul
	kindIMul23
	kindShld
	kindShrd
	kindResult
)

var flagKindNames = [...]string{
	"None", "Add", "Adc", "Sub", "Sbb", "Inc", "Dec", "Neg",
	"Shl", "Shl1", "Shr", "Shr1", "Sar", "Sar1", "Rol", "Rol1", "Ror", "Ror1",
	"Mul", "IMul", "IMul23", "Shld", "Shrd", "Result",
}

const (
	classByte  = 0
	classWord  = 1
	classDWord = 2
)

func makeFlagOp(k flagKind, size uint8) FlagOp {
	switch size {
	case 1:
		return FlagOp(k)<<2 | classByte
	case 2:
		return FlagOp(k)<<2 | classWord
	default:
		return FlagOp(k)<<2 | classDWord
	}
}

// Flag operation tags.
const (
	AddByte  = FlagOp(kindAdd)<<2 | classByte
	AddWord  = FlagOp(kindAdd)<<2 | classWord
	AddDWord = FlagOp(kindAdd)<<2 | classDWord

	AdcByte  = FlagOp(kindAdc)<<2 | classByte
	AdcWord  = FlagOp(kindAdc)<<2 | classWord
	AdcDWord = FlagOp(kindAdc)<<2 | classDWord

	SubByte  = FlagOp(kindSub)<<2 | classByte
	SubWord  = FlagOp(kindSub)<<2 | classWord
	SubDWord = FlagOp(kindSub)<<2 | classDWord

	SbbByte  = FlagOp(kindSbb)<<2 | classByte
	SbbWord  = FlagOp(kindSbb)<<2 | classWord
	SbbDWord = FlagOp(kindSbb)<<2 | classDWord

	IncByte  = FlagOp(kindInc)<<2 | classByte
	IncWord  = FlagOp(kindInc)<<2 | classWord
	IncDWord = FlagOp(kindInc)<<2 | classDWord

	DecByte  = FlagOp(kindDec)<<2 | classByte
	DecWord  = FlagOp(kindDec)<<2 | classWord
	DecDWord = FlagOp(kindDec)<<2 | classDWord

	NegByte  = FlagOp(kindNeg)<<2 | classByte
	NegWord  = FlagOp(kindNeg)<<2 | classWord
	NegDWord = FlagOp(kindNeg)<<2 | classDWord

	ShlByte   = FlagOp(kindShl)<<2 | classByte
	ShlWord   = FlagOp(kindShl)<<2 | classWord
	ShlDWord  = FlagOp(kindShl)<<2 | classDWord
	Shl1Byte  = FlagOp(kindShl1)<<2 | classByte
	Shl1Word  = FlagOp(kindShl1)<<2 | classWord
	Shl1DWord = FlagOp(kindShl1)<<2 | classDWord

	ShrByte   = FlagOp(kindShr)<<2 | classByte
	ShrWord   = FlagOp(kindShr)<<2 | classWord
	ShrDWord  = FlagOp(kindShr)<<2 | classDWord
	Shr1Byte  = FlagOp(kindShr1)<<2 | classByte
	Shr1Word  = FlagOp(kindShr1)<<2 | classWord
	Shr1DWord = FlagOp(kindShr1)<<2 | classDWord

	SarByte   = FlagOp(kindSar)<<2 | classByte
	SarWord   = FlagOp(kindSar)<<2 | classWord
	SarDWord  = FlagOp(kindSar)<<2 | classDWord
	Sar1Byte  = FlagOp(kindSar1)<<2 | classByte
	Sar1Word  = FlagOp(kindSar1)<<2 | classWord
	Sar1DWord = FlagOp(kindSar1)<<2 | classDWord

	RolByte   = FlagOp(kindRol)<<2 | classByte
	RolWord   = FlagOp(kindRol)<<2 | classWord
	RolDWord  = FlagOp(kindRol)<<2 | classDWord
	Rol1Byte  = FlagOp(kindRol1)<<2 | classByte
	Rol1Word  = FlagOp(kindRol1)<<2 | classWord
	Rol1DWord = FlagOp(kindRol1)<<2 | classDWord

	RorByte   = FlagOp(kindRor)<<2 | classByte
	RorWord   = FlagOp(kindRor)<<2 | classWord
	RorDWord  = FlagOp(kindRor)<<2 | classDWord
	Ror1Byte  = FlagOp(kindRor1)<<2 | classByte
	Ror1Word  = FlagOp(kindRor1)<<2 | classWord
	Ror1DWord = FlagOp(kindRor1)<<2 | classDWord

	MulByte  = FlagOp(kindMul)<<2 | classByte
	MulWord  = FlagOp(kindMul)<<2 | classWord
	MulDWord = FlagOp(kindMul)<<2 | classDWord

	IMulByte  = FlagOp(kindIMul)<<2 | classByte
	IMulWord  = FlagOp(kindIMul)<<2 | classWord
	IMulDWord = FlagOp(kindIMul)<<2 | classDWord

	IMul23Word  = FlagOp(kindIMul23)<<2 | classWord
	IMul23DWord = FlagOp(kindIMul23)<<2 | classDWord

	ShldWord  = FlagOp(kindShld)<<2 | classWord
	ShldDWord = FlagOp(kindShld)<<2 | classDWord
	ShrdWord  = FlagOp(kindShrd)<<2 | classWord
	ShrdDWord = FlagOp(kindShrd)<<2 | classDWord

	ResultByte  = FlagOp(kindResult)<<2 | classByte
	ResultWord  = FlagOp(kindResult)<<2 | classWord
	ResultDWord = FlagOp(kindResult)<<2 | classDWord
)

func (op FlagOp) kind() flagKind { return flagKind(op >> 2) }

// Bits returns the operand width in bits.
func (op FlagOp) Bits() uint {
	switch op & 3 {
	case classByte:
		return 8
	case classWord:
		return 16
	default:
		return 32
	}
}

func (op FlagOp) mask() uint32 {
	return uint32(uint64(1)<<op.Bits() - 1)
}

func (op FlagOp) sign() uint32 {
	return 1 << (op.Bits() - 1)
}

func (op FlagOp) String() string {
	k := op.kind()
	if int(k) >= len(flagKindNames) {
		return fmt.Sprintf("FlagOp(%d)", uint8(op))
	}
	suffix := [...]string{"Byte", "Word", "DWord", "?"}[op&3]
	return flagKindNames[k] + suffix
}

// defines returns the FLAGS bits an operation kind computes.
func (op FlagOp) defines() uint16 {
	switch op.kind() {
	case kindAdd, kindAdc, kindSub, kindSbb, kindNeg:
		return flagCF | flagAF | flagOF
	case kindInc, kindDec:
		return flagAF | flagOF
	case kindShl, kindShl1, kindShr, kindShr1, kindSar, kindSar1,
		kindRol, kindRol1, kindRor, kindRor1,
		kindMul, kindIMul, kindIMul23, kindShld, kindShrd:
		return flagCF | flagOF
	case kindResult:
		return flagSF | flagZF | flagPF
	default:
		return 0
	}
}

func carryOf(p *pending) bool {
	op := p.op
	mask := op.mask()
	a, b, c := p.a&mask, p.b&mask, p.c
	bits := op.Bits()

	switch op.kind() {
	case kindAdd:
		return uint64(a)+uint64(b) > uint64(mask)
	case kindAdc:
		return uint64(a)+uint64(b)+uint64(c&1) > uint64(mask)
	case kindSub:
		return a < b
	case kindSbb:
		return uint64(a) < uint64(b)+uint64(c&1)
	case kindNeg:
		return a != 0
	case kindShl:
		return (uint64(a)<<b)>>bits&1 != 0
	case kindShl1:
		return a&op.sign() != 0
	case kindShr:
		return (uint64(a)>>(b-1))&1 != 0
	case kindShr1, kindSar1:
		return a&1 != 0
	case kindSar:
		return (signExtend64(a, bits)>>(b-1))&1 != 0
	case kindRol, kindRol1:
		return a&1 != 0
	case kindRor, kindRor1:
		return a&op.sign() != 0
	case kindMul:
		return a != 0
	case kindIMul, kindIMul23:
		return imulOverflow(op, a, b)
	case kindShld:
		if c <= uint32(bits) {
			return (a>>(uint32(bits)-c))&1 != 0
		}
		return (b>>(2*uint32(bits)-c))&1 != 0
	case kindShrd:
		return (shrdWide(op, a, b)>>(c-1))&1 != 0
	}
	return false
}

func auxOf(p *pending) bool {
	a, b, c := p.a, p.b, p.c
	switch p.op.kind() {
	case kindAdd:
		return (a^b^(a+b))&0x10 != 0
	case kindAdc:
		return (a^b^(a+b+c&1))&0x10 != 0
	case kindSub:
		return (a^b^(a-b))&0x10 != 0
	case kindSbb:
		return (a^b^(a-b-c&1))&0x10 != 0
	case kindInc:
		return (a+1)&0xF == 0
	case kindDec:
		return a&0xF == 0
	case kindNeg:
		return a&0xF != 0
	}
	return false
}

func overflowOf(p *pending) bool {
	op := p.op
	mask, sign := op.mask(), op.sign()
	a, b, c := p.a&mask, p.b&mask, p.c

	switch op.kind() {
	case kindAdd:
		r := a + b
		return (a^r)&(b^r)&sign != 0
	case kindAdc:
		r := a + b + c&1
		return (a^r)&(b^r)&sign != 0
	case kindSub:
		r := a - b
		return (a^b)&(a^r)&sign != 0
	case kindSbb:
		r := a - b - c&1
		return (a^b)&(a^r)&sign != 0
	case kindInc:
		return a == sign-1
	case kindDec, kindNeg:
		return a == sign
	case kindShl1:
		return (a^(a<<1))&sign != 0
	case kindShr1:
		return a&sign != 0
	case kindRol1:
		return (a&sign != 0) != (a&1 != 0)
	case kindRor1:
		return (a^(a<<1))&sign != 0
	case kindMul:
		return a != 0
	case kindIMul, kindIMul23:
		return imulOverflow(op, a, b)
	case kindShld:
		if c != 1 {
			return false
		}
		r := uint32(shldWide(op, a, b)<<1>>op.Bits()) & mask
		return (r^a)&sign != 0
	case kindShrd:
		if c != 1 {
			return false
		}
		r := uint32(shrdWide(op, a, b)>>1) & mask
		return (r^a)&sign != 0
	}
	return false
}

func signOf(p *pending) bool {
	return p.a&p.op.sign() != 0
}

func zeroOf(p *pending) bool {
	return p.a&p.op.mask() == 0
}

func parityOf(p *pending) bool {
	return parity(uint8(p.a))
}

// parity reports whether v has an even number of set bits.
func parity(v uint8) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}

// imulOverflow reports whether the high half is not the sign extension of
// the low half.
func imulOverflow(op FlagOp, lo, hi uint32) bool {
	if lo&op.sign() != 0 {
		return hi != op.mask()
	}
	return hi != 0
}

// shldWide places dst above src so that a left shift feeds src bits in.
func shldWide(op FlagOp, dst, src uint32) uint64 {
	return uint64(dst)<<op.Bits() | uint64(src)
}

// shrdWide places src above dst so that a right shift feeds src bits in.
func shrdWide(op FlagOp, dst, src uint32) uint64 {
	return uint64(src)<<op.Bits() | uint64(dst)
}

func signExtend64(v uint32, bits uint) uint64 {
	shift := 64 - bits
	return uint64(int64(uint64(v)<<shift) >> shift)
}
