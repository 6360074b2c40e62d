package emu

// Cond is an x86 condition code as encoded in the low nibble of the jcc
// and setcc opcodes.
type Cond uint8

// Condition codes.
const (
	CondO  Cond = 0x0 // Overflow (OF == 1)
	CondNO Cond = 0x1 // No overflow (OF == 0)
	CondB  Cond = 0x2 // Below / carry (CF == 1)
	CondNB Cond = 0x3 // Not below (CF == 0)
	CondZ  Cond = 0x4 // Zero / equal (ZF == 1)
	CondNZ Cond = 0x5 // Not zero (ZF == 0)
	CondBE Cond = 0x6 // Below or equal (CF == 1 || ZF == 1)
	CondA  Cond = 0x7 // Above (CF == 0 && ZF == 0)
	CondS  Cond = 0x8 // Sign (SF == 1)
	CondNS Cond = 0x9 // No sign (SF == 0)
	CondP  Cond = 0xA // Parity even (PF == 1)
	CondNP Cond = 0xB // Parity odd (PF == 0)
	CondL  Cond = 0xC // Less (SF != OF)
	CondGE Cond = 0xD // Greater or equal (SF == OF)
	CondLE Cond = 0xE // Less or equal (ZF == 1 || SF != OF)
	CondG  Cond = 0xF // Greater (ZF == 0 && SF == OF)
)

// Check evaluates the condition against the flags. Only the flags the
// condition reads are computed.
func (f *Flags) Check(c Cond) bool {
	var r bool
	switch c &^ 1 {
	case CondO:
		r = f.Overflow()
	case CondB:
		r = f.Carry()
	case CondZ:
		r = f.Zero()
	case CondBE:
		r = f.Carry() || f.Zero()
	case CondS:
		r = f.Sign()
	case CondP:
		r = f.Parity()
	case CondL:
		r = f.Sign() != f.Overflow()
	case CondLE:
		r = f.Zero() || f.Sign() != f.Overflow()
	}
	// Odd codes are the negation of the even code before them.
	if c&1 != 0 {
		return !r
	}
	return r
}

func (e *Emulator) condition(cc uint8) bool {
	return e.proc.Flags.Check(Cond(cc & 0xF))
}
