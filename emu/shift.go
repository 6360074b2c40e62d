package emu

// Shift and rotate counts are masked to five bits. A masked count of zero
// leaves the operand and every flag untouched.

// Shl shifts left.
func (a *ALU) Shl(size uint8, v uint32, count uint8) uint32 {
	count &= 0x1F
	if count == 0 {
		return v
	}
	v &= sizeMask(size)
	r := uint32(uint64(v)<<count) & sizeMask(size)
	if count == 1 {
		a.flags.SetLazy(makeFlagOp(kindShl1, size), v, 0, 0)
	} else {
		a.flags.SetLazy(makeFlagOp(kindShl, size), v, uint32(count), 0)
	}
	a.flags.SetResult(size, r)
	return r
}

// Shr shifts right, filling with zero.
func (a *ALU) Shr(size uint8, v uint32, count uint8) uint32 {
	count &= 0x1F
	if count == 0 {
		return v
	}
	v &= sizeMask(size)
	r := v >> count
	if count == 1 {
		a.flags.SetLazy(makeFlagOp(kindShr1, size), v, 0, 0)
	} else {
		a.flags.SetLazy(makeFlagOp(kindShr, size), v, uint32(count), 0)
	}
	a.flags.SetResult(size, r)
	return r
}

// Sar shifts right, filling with the sign bit.
func (a *ALU) Sar(size uint8, v uint32, count uint8) uint32 {
	count &= 0x1F
	if count == 0 {
		return v
	}
	v &= sizeMask(size)
	r := uint32(int32(signExtend(v, size))>>count) & sizeMask(size)
	if count == 1 {
		a.flags.SetLazy(makeFlagOp(kindSar1, size), v, 0, 0)
	} else {
		a.flags.SetLazy(makeFlagOp(kindSar, size), v, uint32(count), 0)
	}
	a.flags.SetResult(size, r)
	return r
}

// Rol rotates left. SF, ZF, PF and AF are not affected.
func (a *ALU) Rol(size uint8, v uint32, count uint8) uint32 {
	count &= 0x1F
	if count == 0 {
		return v
	}
	bits := uint(size) * 8
	v &= sizeMask(size)
	n := uint(count) % bits
	r := (v<<n | v>>(bits-n)) & sizeMask(size)
	if count == 1 {
		a.flags.SetLazy(makeFlagOp(kindRol1, size), r, 0, 0)
	} else {
		a.flags.SetLazy(makeFlagOp(kindRol, size), r, uint32(count), 0)
	}
	return r
}

// Ror rotates right. SF, ZF, PF and AF are not affected.
func (a *ALU) Ror(size uint8, v uint32, count uint8) uint32 {
	count &= 0x1F
	if count == 0 {
		return v
	}
	bits := uint(size) * 8
	v &= sizeMask(size)
	n := uint(count) % bits
	r := (v>>n | v<<(bits-n)) & sizeMask(size)
	if count == 1 {
		a.flags.SetLazy(makeFlagOp(kindRor1, size), r, 0, 0)
	} else {
		a.flags.SetLazy(makeFlagOp(kindRor, size), r, uint32(count), 0)
	}
	return r
}

// Rcl rotates left through CF. Flags are set eagerly.
func (a *ALU) Rcl(size uint8, v uint32, count uint8) uint32 {
	bits := uint(size) * 8
	n := uint(count&0x1F) % (bits + 1)
	if n == 0 {
		return v
	}
	v &= sizeMask(size)
	cf := a.flags.Carry()
	for i := uint(0); i < n; i++ {
		out := v&signBit(size) != 0
		v = (v << 1) & sizeMask(size)
		if cf {
			v |= 1
		}
		cf = out
	}
	a.flags.SetCarry(cf)
	a.flags.SetOverflow(n == 1 && (v&signBit(size) != 0) != cf)
	return v
}

// Rcr rotates right through CF. Flags are set eagerly.
func (a *ALU) Rcr(size uint8, v uint32, count uint8) uint32 {
	bits := uint(size) * 8
	n := uint(count&0x1F) % (bits + 1)
	if n == 0 {
		return v
	}
	v &= sizeMask(size)
	cf := a.flags.Carry()
	overflow := (v&signBit(size) != 0) != cf
	for i := uint(0); i < n; i++ {
		out := v&1 != 0
		v >>= 1
		if cf {
			v |= signBit(size)
		}
		cf = out
	}
	a.flags.SetCarry(cf)
	a.flags.SetOverflow(n == 1 && overflow)
	return v
}

// Shld shifts dst left, filling from the high bits of src.
func (a *ALU) Shld(size uint8, dst, src uint32, count uint8) uint32 {
	count &= 0x1F
	if count == 0 {
		return dst
	}
	op := makeFlagOp(kindShld, size)
	dst &= op.mask()
	src &= op.mask()
	r := uint32(shldWide(op, dst, src)<<count>>op.Bits()) & op.mask()
	a.flags.SetLazy(op, dst, src, uint32(count))
	a.flags.SetResult(size, r)
	return r
}

// Shrd shifts dst right, filling from the low bits of src.
func (a *ALU) Shrd(size uint8, dst, src uint32, count uint8) uint32 {
	count &= 0x1F
	if count == 0 {
		return dst
	}
	op := makeFlagOp(kindShrd, size)
	dst &= op.mask()
	src &= op.mask()
	r := uint32(shrdWide(op, dst, src)>>count) & op.mask()
	a.flags.SetLazy(op, dst, src, uint32(count))
	a.flags.SetResult(size, r)
	return r
}
