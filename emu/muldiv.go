package emu

// Mul computes the unsigned double-width product of x and y.
func (a *ALU) Mul(size uint8, x, y uint32) (lo, hi uint32) {
	mask := sizeMask(size)
	p := uint64(x&mask) * uint64(y&mask)
	bits := uint(size) * 8
	lo = uint32(p) & mask
	hi = uint32(p>>bits) & mask
	a.flags.SetLazy(makeFlagOp(kindMul, size), hi, 0, 0)
	return lo, hi
}

// IMul computes the signed double-width product of x and y.
func (a *ALU) IMul(size uint8, x, y uint32) (lo, hi uint32) {
	lo, hi = imul(size, x, y)
	a.flags.SetLazy(makeFlagOp(kindIMul, size), lo, hi, 0)
	return lo, hi
}

// IMulTruncated computes the signed product of x and y truncated to size,
// as the two and three operand forms do.
func (a *ALU) IMulTruncated(size uint8, x, y uint32) uint32 {
	lo, hi := imul(size, x, y)
	a.flags.SetLazy(makeFlagOp(kindIMul23, size), lo, hi, 0)
	return lo
}

func imul(size uint8, x, y uint32) (lo, hi uint32) {
	mask := sizeMask(size)
	p := int64(int32(signExtend(x, size))) * int64(int32(signExtend(y, size)))
	bits := uint(size) * 8
	return uint32(p) & mask, uint32(p>>bits) & mask
}

// Div divides the double-width value hi:lo by divisor. A zero divisor or a
// quotient that does not fit raises a divide fault.
func (a *ALU) Div(size uint8, hi, lo, divisor uint32) (quotient, remainder uint32, err error) {
	mask := sizeMask(size)
	divisor &= mask
	if divisor == 0 {
		return 0, 0, divideError()
	}
	bits := uint(size) * 8
	dividend := uint64(hi&mask)<<bits | uint64(lo&mask)
	q := dividend / uint64(divisor)
	if q > uint64(mask) {
		return 0, 0, divideError()
	}
	return uint32(q), uint32(dividend % uint64(divisor)), nil
}

// IDiv is the signed form of Div. The quotient truncates toward zero.
func (a *ALU) IDiv(size uint8, hi, lo, divisor uint32) (quotient, remainder uint32, err error) {
	mask := sizeMask(size)
	d := int64(int32(signExtend(divisor&mask, size)))
	if d == 0 {
		return 0, 0, divideError()
	}
	bits := uint(size) * 8
	wide := uint64(hi&mask)<<bits | uint64(lo&mask)
	dividend := int64(wide)
	if bits < 32 {
		shift := 64 - 2*bits
		dividend = int64(wide<<shift) >> shift
	}

	q := dividend / d
	limit := int64(1) << (bits - 1)
	if q < -limit || q >= limit {
		return 0, 0, divideError()
	}
	return uint32(q) & mask, uint32(dividend%d) & mask, nil
}
