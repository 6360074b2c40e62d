package emu

// Daa adjusts AL after a packed BCD addition.
func (a *ALU) Daa(al uint8) uint8 {
	oldAL, oldCF := al, a.flags.Carry()
	cf := false
	if al&0x0F > 9 || a.flags.Auxiliary() {
		cf = oldCF || al > 0xF9
		al += 6
		a.flags.SetAuxiliary(true)
	} else {
		a.flags.SetAuxiliary(false)
	}
	if oldAL > 0x99 || oldCF {
		al += 0x60
		cf = true
	}
	a.flags.SetCarry(cf)
	a.flags.SetOverflow(false)
	a.flags.SetResult(1, uint32(al))
	return al
}

// Das adjusts AL after a packed BCD subtraction.
func (a *ALU) Das(al uint8) uint8 {
	oldAL, oldCF := al, a.flags.Carry()
	cf := false
	if al&0x0F > 9 || a.flags.Auxiliary() {
		cf = oldCF || al < 6
		al -= 6
		a.flags.SetAuxiliary(true)
	} else {
		a.flags.SetAuxiliary(false)
	}
	if oldAL > 0x99 || oldCF {
		al -= 0x60
		cf = true
	}
	a.flags.SetCarry(cf)
	a.flags.SetOverflow(false)
	a.flags.SetResult(1, uint32(al))
	return al
}

// Aaa adjusts AX after an unpacked BCD addition.
func (a *ALU) Aaa(ax uint16) uint16 {
	if ax&0x0F > 9 || a.flags.Auxiliary() {
		ax += 0x106
		a.flags.SetAuxiliary(true)
		a.flags.SetCarry(true)
	} else {
		a.flags.SetAuxiliary(false)
		a.flags.SetCarry(false)
	}
	ax &= 0xFF0F
	a.flags.SetResult(1, uint32(ax&0xFF))
	return ax
}

// Aas adjusts AX after an unpacked BCD subtraction.
func (a *ALU) Aas(ax uint16) uint16 {
	if ax&0x0F > 9 || a.flags.Auxiliary() {
		al := uint8(ax) - 6
		ah := uint8(ax>>8) - 1
		ax = uint16(ah)<<8 | uint16(al)
		a.flags.SetAuxiliary(true)
		a.flags.SetCarry(true)
	} else {
		a.flags.SetAuxiliary(false)
		a.flags.SetCarry(false)
	}
	ax &= 0xFF0F
	a.flags.SetResult(1, uint32(ax&0xFF))
	return ax
}

// Aam splits AL into base-n digits in AH:AL.
func (a *ALU) Aam(al, base uint8) (uint16, error) {
	if base == 0 {
		return 0, divideError()
	}
	ah, lo := al/base, al%base
	a.flags.SetResult(1, uint32(lo))
	a.flags.SetCarry(false)
	a.flags.SetOverflow(false)
	a.flags.SetAuxiliary(false)
	return uint16(ah)<<8 | uint16(lo), nil
}

// Aad folds the base-n digits in AH:AL into AL and clears AH.
func (a *ALU) Aad(ax uint16, base uint8) uint16 {
	al := uint8(ax) + uint8(ax>>8)*base
	a.flags.SetResult(1, uint32(al))
	a.flags.SetCarry(false)
	a.flags.SetOverflow(false)
	a.flags.SetAuxiliary(false)
	return uint16(al)
}
