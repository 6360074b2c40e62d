package emu

// Arithmetic FLAGS bits.
const (
	flagCF uint16 = 1 << 0
	flagPF uint16 = 1 << 2
	flagAF uint16 = 1 << 4
	flagZF uint16 = 1 << 6
	flagSF uint16 = 1 << 7
	flagOF uint16 = 1 << 11

	flagReserved uint16 = 1 << 1

	arithmeticFlags = flagCF | flagPF | flagAF | flagZF | flagSF | flagOF
)

type flagGroup uint8

const (
	groupCarryAux flagGroup = iota
	groupOverflow
	groupSZP
	numGroups
)

var groupMembers = [numGroups]uint16{
	groupCarryAux: flagCF | flagAF,
	groupOverflow: flagOF,
	groupSZP:      flagSF | flagZF | flagPF,
}

var flagOrder = [...]struct {
	bit     uint16
	group   flagGroup
	compute func(*pending) bool
}{
	{flagCF, groupCarryAux, carryOf},
	{flagAF, groupCarryAux, auxOf},
	{flagOF, groupOverflow, overflowOf},
	{flagSF, groupSZP, signOf},
	{flagZF, groupSZP, zeroOf},
	{flagPF, groupSZP, parityOf},
}

type pending struct {
	op      FlagOp
	a, b, c uint32
	valid   bool
}

// Flags is the lazy arithmetic flag engine. Each of CF, AF, OF, SF, ZF and
// PF is either explicit or pending on its group's recorded operation. A
// pending flag is computed on first read and then held as explicit until
// the next write.
type Flags struct {
	values   uint16 // explicit values
	explicit uint16 // which flags hold an explicit value
	groups   [numGroups]pending

	evaluations uint64
}

// SetLazy records op and its operand snapshots for the flag groups op
// defines. Flags of those groups that op does not define are resolved
// first so they keep their current value.
func (f *Flags) SetLazy(op FlagOp, a, b, c uint32) {
	defined := op.defines()
	for g := flagGroup(0); g < numGroups; g++ {
		members := groupMembers[g]
		if defined&members == 0 {
			continue
		}
		for _, fl := range flagOrder {
			if fl.group == g && defined&fl.bit == 0 {
				f.get(fl.bit)
			}
		}
		f.groups[g] = pending{op: op, a: a, b: b, c: c, valid: true}
		f.explicit &^= defined & members
	}
}

// SetResult records the result of an operation of the given byte size for
// SF, ZF and PF.
func (f *Flags) SetResult(size uint8, result uint32) {
	f.SetLazy(makeFlagOp(kindResult, size), result, 0, 0)
}

func (f *Flags) get(bit uint16) bool {
	if f.explicit&bit != 0 {
		return f.values&bit != 0
	}

	v := false
	for _, fl := range flagOrder {
		if fl.bit != bit {
			continue
		}
		p := &f.groups[fl.group]
		if p.valid {
			v = fl.compute(p)
			f.evaluations++
		}
		break
	}
	f.set(bit, v)
	return v
}

func (f *Flags) set(bit uint16, v bool) {
	f.explicit |= bit
	if v {
		f.values |= bit
	} else {
		f.values &^= bit
	}
}

// Carry returns CF.
func (f *Flags) Carry() bool { return f.get(flagCF) }

// Auxiliary returns AF.
func (f *Flags) Auxiliary() bool { return f.get(flagAF) }

// Overflow returns OF.
func (f *Flags) Overflow() bool { return f.get(flagOF) }

// Sign returns SF.
func (f *Flags) Sign() bool { return f.get(flagSF) }

// Zero returns ZF.
func (f *Flags) Zero() bool { return f.get(flagZF) }

// Parity returns PF.
func (f *Flags) Parity() bool { return f.get(flagPF) }

// SetCarry sets CF explicitly.
func (f *Flags) SetCarry(v bool) { f.set(flagCF, v) }

// SetAuxiliary sets AF explicitly.
func (f *Flags) SetAuxiliary(v bool) { f.set(flagAF, v) }

// SetOverflow sets OF explicitly.
func (f *Flags) SetOverflow(v bool) { f.set(flagOF, v) }

// SetSign sets SF explicitly.
func (f *Flags) SetSign(v bool) { f.set(flagSF, v) }

// SetZero sets ZF explicitly.
func (f *Flags) SetZero(v bool) { f.set(flagZF, v) }

// SetParity sets PF explicitly.
func (f *Flags) SetParity(v bool) { f.set(flagPF, v) }

// Value packs the arithmetic flags into their FLAGS positions, resolving
// any pending flag. Bit 1 is always set.
func (f *Flags) Value() uint16 {
	for _, fl := range flagOrder {
		f.get(fl.bit)
	}
	return f.values&arithmeticFlags | flagReserved
}

// SetValue makes every arithmetic flag explicit from a FLAGS value.
func (f *Flags) SetValue(v uint16) {
	f.values = v & arithmeticFlags
	f.explicit = arithmeticFlags
}

// lazy reports whether a flag is still waiting on a recorded operation.
func (f *Flags) lazy(bit uint16) bool {
	return f.explicit&bit == 0 && f.groups[groupOf(bit)].valid
}

func groupOf(bit uint16) flagGroup {
	for g, members := range groupMembers {
		if members&bit != 0 {
			return flagGroup(g)
		}
	}
	return groupSZP
}
