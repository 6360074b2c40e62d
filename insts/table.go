package insts

import (
	"fmt"
)

// def is one line of the declarative opcode list.
type def struct {
	code     uint16
	reg      int // group member (ModRM.reg), -1 if not a group
	mnemonic string
	operands string
	class    Class
	op       string   // handler key, defaults to mnemonic
	size     SizeCode // for operand-less ops
}

func op(code uint16, mnemonic, operands string, class Class) def {
	return def{code: code, reg: -1, mnemonic: mnemonic, operands: operands, class: class}
}

func grp(code uint16, reg int, mnemonic, operands string, class Class) def {
	return def{code: code, reg: reg, mnemonic: mnemonic, operands: operands, class: class}
}

func sized(code uint16, mnemonic, key string, size SizeCode, class Class) def {
	return def{code: code, reg: -1, mnemonic: mnemonic, op: key, size: size, class: class}
}

// ConditionNames lists the x86 condition code suffixes in encoding order.
var ConditionNames = [16]string{
	"o", "no", "b", "nb", "z", "nz", "be", "a",
	"s", "ns", "p", "np", "l", "ge", "le", "g",
}

var aluNames = [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}
var shiftNames = [8]string{"rol", "ror", "rcl", "rcr", "shl", "shr", "sal", "sar"}

func baseDefs() []def {
	var defs []def

	// 0x00-0x3F: the eight ALU operations in their six encodings.
	for i, name := range aluNames {
		base := uint16(i) << 3
		defs = append(defs,
			op(base+0, name, "Eb,Gb", ClassALU),
			op(base+1, name, "Ev,Gv", ClassALU),
			op(base+2, name, "Gb,Eb", ClassALU),
			op(base+3, name, "Gv,Ev", ClassALU),
			op(base+4, name, "AL,Ib", ClassALU),
			op(base+5, name, "eAX,Iv", ClassALU),
		)
	}

	defs = append(defs,
		op(0x06, "push", "ES", ClassStack),
		op(0x07, "pop", "ES", ClassStack),
		op(0x0E, "push", "CS", ClassStack),
		op(0x16, "push", "SS", ClassStack),
		op(0x17, "pop", "SS", ClassStack),
		op(0x1E, "push", "DS", ClassStack),
		op(0x1F, "pop", "DS", ClassStack),
		op(0x27, "daa", "", ClassALU),
		op(0x2F, "das", "", ClassALU),
		op(0x37, "aaa", "", ClassALU),
		op(0x3F, "aas", "", ClassALU),
	)

	for r := uint16(0); r < 8; r++ {
		defs = append(defs,
			op(0x40+r, "inc", "Zv", ClassALU),
			op(0x48+r, "dec", "Zv", ClassALU),
			op(0x50+r, "push", "Zv", ClassStack),
			op(0x58+r, "pop", "Zv", ClassStack),
			op(0xB0+r, "mov", "Zb,Ib", ClassMove),
			op(0xB8+r, "mov", "Zv,Iv", ClassMove),
		)
		if r > 0 {
			defs = append(defs, op(0x90+r, "xchg", "Zv,eAX", ClassMove))
		}
	}

	defs = append(defs,
		op(0x60, "pusha", "", ClassStack),
		op(0x61, "popa", "", ClassStack),
		op(0x68, "push", "Iv", ClassStack),
		op(0x69, "imul", "Gv,Ev,Iv", ClassMul),
		op(0x6A, "push", "Ib+", ClassStack),
		op(0x6B, "imul", "Gv,Ev,Ib+", ClassMul),
		sized(0x6C, "insb", "ins", SizeByte, ClassIO),
		sized(0x6D, "insw", "ins", SizeV, ClassIO),
		sized(0x6E, "outsb", "outs", SizeByte, ClassIO),
		sized(0x6F, "outsw", "outs", SizeV, ClassIO),
	)

	for cc := uint16(0); cc < 16; cc++ {
		defs = append(defs,
			def{code: 0x70 + cc, reg: -1, mnemonic: "j" + ConditionNames[cc], op: "jcc", operands: "Jb", class: ClassBranch},
		)
	}

	for i, name := range aluNames {
		defs = append(defs,
			grp(0x80, i, name, "Eb,Ib", ClassALU),
			grp(0x81, i, name, "Ev,Iv", ClassALU),
			grp(0x82, i, name, "Eb,Ib", ClassALU),
			grp(0x83, i, name, "Ev,Ib+", ClassALU),
		)
	}

	defs = append(defs,
		op(0x84, "test", "Eb,Gb", ClassALU),
		op(0x85, "test", "Ev,Gv", ClassALU),
		op(0x86, "xchg", "Eb,Gb", ClassMove),
		op(0x87, "xchg", "Ev,Gv", ClassMove),
		op(0x88, "mov", "Eb,Gb", ClassMove),
		op(0x89, "mov", "Ev,Gv", ClassMove),
		op(0x8A, "mov", "Gb,Eb", ClassMove),
		op(0x8B, "mov", "Gv,Ev", ClassMove),
		op(0x8C, "mov", "Ew,Sw", ClassMove),
		op(0x8D, "lea", "Gv,Mv", ClassMove),
		op(0x8E, "mov", "Sw,Ew", ClassMove),
		grp(0x8F, 0, "pop", "Ev", ClassStack),
		op(0x90, "nop", "", ClassMisc),
		sized(0x98, "cbw", "cbw", SizeV, ClassMove),
		sized(0x99, "cwd", "cwd", SizeV, ClassMove),
		op(0x9A, "callf", "Ap", ClassCall),
		op(0x9B, "wait", "", ClassMisc),
		op(0x9C, "pushf", "", ClassStack),
		op(0x9D, "popf", "", ClassStack),
		op(0x9E, "sahf", "", ClassMisc),
		op(0x9F, "lahf", "", ClassMisc),
		op(0xA0, "mov", "AL,Ob", ClassMove),
		op(0xA1, "mov", "eAX,Ov", ClassMove),
		op(0xA2, "mov", "Ob,AL", ClassMove),
		op(0xA3, "mov", "Ov,eAX", ClassMove),
		sized(0xA4, "movsb", "movs", SizeByte, ClassString),
		sized(0xA5, "movsw", "movs", SizeV, ClassString),
		sized(0xA6, "cmpsb", "cmps", SizeByte, ClassString),
		sized(0xA7, "cmpsw", "cmps", SizeV, ClassString),
		op(0xA8, "test", "AL,Ib", ClassALU),
		op(0xA9, "test", "eAX,Iv", ClassALU),
		sized(0xAA, "stosb", "stos", SizeByte, ClassString),
		sized(0xAB, "stosw", "stos", SizeV, ClassString),
		sized(0xAC, "lodsb", "lods", SizeByte, ClassString),
		sized(0xAD, "lodsw", "lods", SizeV, ClassString),
		sized(0xAE, "scasb", "scas", SizeByte, ClassString),
		sized(0xAF, "scasw", "scas", SizeV, ClassString),
	)

	for i, name := range shiftNames {
		defs = append(defs,
			grp(0xC0, i, name, "Eb,Ib", ClassShift),
			grp(0xC1, i, name, "Ev,Ib", ClassShift),
			grp(0xD0, i, name, "Eb,1", ClassShift),
			grp(0xD1, i, name, "Ev,1", ClassShift),
			grp(0xD2, i, name, "Eb,CL", ClassShift),
			grp(0xD3, i, name, "Ev,CL", ClassShift),
		)
	}

	defs = append(defs,
		op(0xC2, "ret", "Iw", ClassCall),
		op(0xC3, "ret", "", ClassCall),
		op(0xC4, "les", "Gv,Mp", ClassMove),
		op(0xC5, "lds", "Gv,Mp", ClassMove),
		grp(0xC6, 0, "mov", "Eb,Ib", ClassMove),
		grp(0xC7, 0, "mov", "Ev,Iv", ClassMove),
		op(0xC8, "enter", "Iw,Ib", ClassStack),
		op(0xC9, "leave", "", ClassStack),
		op(0xCA, "retf", "Iw", ClassCall),
		op(0xCB, "retf", "", ClassCall),
		op(0xCC, "int3", "", ClassInterrupt),
		op(0xCD, "int", "Ib", ClassInterrupt),
		op(0xCE, "into", "", ClassInterrupt),
		op(0xCF, "iret", "", ClassInterrupt),
		op(0xD4, "aam", "Ib", ClassMul),
		op(0xD5, "aad", "Ib", ClassMul),
		op(0xD7, "xlat", "", ClassMove),
		def{code: 0xE0, reg: -1, mnemonic: "loopne", op: "loop", operands: "Jb", class: ClassBranch},
		def{code: 0xE1, reg: -1, mnemonic: "loope", op: "loop", operands: "Jb", class: ClassBranch},
		def{code: 0xE2, reg: -1, mnemonic: "loop", operands: "Jb", class: ClassBranch},
		op(0xE3, "jcxz", "Jb", ClassBranch),
		op(0xE4, "in", "AL,Ib", ClassIO),
		op(0xE5, "in", "eAX,Ib", ClassIO),
		op(0xE6, "out", "Ib,AL", ClassIO),
		op(0xE7, "out", "Ib,eAX", ClassIO),
		op(0xE8, "call", "Jv", ClassCall),
		op(0xE9, "jmp", "Jv", ClassBranch),
		op(0xEA, "jmpf", "Ap", ClassBranch),
		op(0xEB, "jmp", "Jb", ClassBranch),
		op(0xEC, "in", "AL,DX", ClassIO),
		op(0xED, "in", "eAX,DX", ClassIO),
		op(0xEE, "out", "DX,AL", ClassIO),
		op(0xEF, "out", "DX,eAX", ClassIO),
		op(0xF4, "hlt", "", ClassMisc),
		op(0xF5, "cmc", "", ClassMisc),
		grp(0xF6, 0, "test", "Eb,Ib", ClassALU),
		grp(0xF6, 1, "test", "Eb,Ib", ClassALU),
		grp(0xF6, 2, "not", "Eb", ClassALU),
		grp(0xF6, 3, "neg", "Eb", ClassALU),
		grp(0xF6, 4, "mul", "Eb", ClassMul),
		grp(0xF6, 5, "imul", "Eb", ClassMul),
		grp(0xF6, 6, "div", "Eb", ClassDiv),
		grp(0xF6, 7, "idiv", "Eb", ClassDiv),
		grp(0xF7, 0, "test", "Ev,Iv", ClassALU),
		grp(0xF7, 1, "test", "Ev,Iv", ClassALU),
		grp(0xF7, 2, "not", "Ev", ClassALU),
		grp(0xF7, 3, "neg", "Ev", ClassALU),
		grp(0xF7, 4, "mul", "Ev", ClassMul),
		grp(0xF7, 5, "imul", "Ev", ClassMul),
		grp(0xF7, 6, "div", "Ev", ClassDiv),
		grp(0xF7, 7, "idiv", "Ev", ClassDiv),
		op(0xF8, "clc", "", ClassMisc),
		op(0xF9, "stc", "", ClassMisc),
		op(0xFA, "cli", "", ClassMisc),
		op(0xFB, "sti", "", ClassMisc),
		op(0xFC, "cld", "", ClassMisc),
		op(0xFD, "std", "", ClassMisc),
		grp(0xFE, 0, "inc", "Eb", ClassALU),
		grp(0xFE, 1, "dec", "Eb", ClassALU),
		grp(0xFF, 0, "inc", "Ev", ClassALU),
		grp(0xFF, 1, "dec", "Ev", ClassALU),
		grp(0xFF, 2, "call", "Ev", ClassCall),
		grp(0xFF, 3, "callf", "Mp", ClassCall),
		grp(0xFF, 4, "jmp", "Ev", ClassBranch),
		grp(0xFF, 5, "jmpf", "Mp", ClassBranch),
		grp(0xFF, 6, "push", "Ev", ClassStack),
	)

	return defs
}

func extendedDefs() []def {
	defs := []def{
		op(0x121, "mov", "Ed,Dd", ClassMove),
		op(0x123, "mov", "Dd,Ed", ClassMove),
		op(0x1A0, "push", "FS", ClassStack),
		op(0x1A1, "pop", "FS", ClassStack),
		op(0x1A3, "bt", "Ev,Gv", ClassBit),
		op(0x1A4, "shld", "Ev,Gv,Ib", ClassShift),
		op(0x1A5, "shld", "Ev,Gv,CL", ClassShift),
		op(0x1A8, "push", "GS", ClassStack),
		op(0x1A9, "pop", "GS", ClassStack),
		op(0x1AB, "bts", "Ev,Gv", ClassBit),
		op(0x1AC, "shrd", "Ev,Gv,Ib", ClassShift),
		op(0x1AD, "shrd", "Ev,Gv,CL", ClassShift),
		op(0x1AF, "imul", "Gv,Ev", ClassMul),
		op(0x1B2, "lss", "Gv,Mp", ClassMove),
		op(0x1B3, "btr", "Ev,Gv", ClassBit),
		op(0x1B4, "lfs", "Gv,Mp", ClassMove),
		op(0x1B5, "lgs", "Gv,Mp", ClassMove),
		op(0x1B6, "movzx", "Gv,Eb^", ClassMove),
		op(0x1B7, "movzx", "Gv,Ew^", ClassMove),
		grp(0x1BA, 4, "bt", "Ev,Ib", ClassBit),
		grp(0x1BA, 5, "bts", "Ev,Ib", ClassBit),
		grp(0x1BA, 6, "btr", "Ev,Ib", ClassBit),
		grp(0x1BA, 7, "btc", "Ev,Ib", ClassBit),
		op(0x1BB, "btc", "Ev,Gv", ClassBit),
		op(0x1BC, "bsf", "Gv,Ev", ClassBit),
		op(0x1BD, "bsr", "Gv,Ev", ClassBit),
		op(0x1BE, "movsx", "Gv,Eb+", ClassMove),
		op(0x1BF, "movsx", "Gv,Ew+", ClassMove),
	}

	for cc := uint16(0); cc < 16; cc++ {
		defs = append(defs,
			def{code: 0x180 + cc, reg: -1, mnemonic: "j" + ConditionNames[cc], op: "jcc", operands: "Jv", class: ClassBranch},
			def{code: 0x190 + cc, reg: -1, mnemonic: "set" + ConditionNames[cc], op: "setcc", operands: "Eb", class: ClassBit},
		)
	}

	return defs
}

// x87 memory forms, grouped by ModRM.reg.
func fpuMemoryDefs() []def {
	return []def{
		grp(0xD8, 0, "fadd", "ST0,Ms", ClassFPU),
		grp(0xD8, 1, "fmul", "ST0,Ms", ClassFPU),
		grp(0xD8, 2, "fcom", "ST0,Ms", ClassFPU),
		grp(0xD8, 3, "fcomp", "ST0,Ms", ClassFPU),
		grp(0xD8, 4, "fsub", "ST0,Ms", ClassFPU),
		grp(0xD8, 5, "fsubr", "ST0,Ms", ClassFPU),
		grp(0xD8, 6, "fdiv", "ST0,Ms", ClassFPU),
		grp(0xD8, 7, "fdivr", "ST0,Ms", ClassFPU),
		grp(0xD9, 0, "fld", "Ms", ClassFPU),
		grp(0xD9, 2, "fst", "Ms", ClassFPU),
		grp(0xD9, 3, "fstp", "Ms", ClassFPU),
		grp(0xD9, 5, "fldcw", "Mw", ClassFPU),
		grp(0xD9, 7, "fnstcw", "Mw", ClassFPU),
		grp(0xDB, 0, "fild", "Md#", ClassFPU),
		grp(0xDB, 2, "fist", "Md#", ClassFPU),
		grp(0xDB, 3, "fistp", "Md#", ClassFPU),
		grp(0xDB, 5, "fld", "Mt", ClassFPU),
		grp(0xDB, 7, "fstp", "Mt", ClassFPU),
		grp(0xDC, 0, "fadd", "ST0,Ml", ClassFPU),
		grp(0xDC, 1, "fmul", "ST0,Ml", ClassFPU),
		grp(0xDC, 2, "fcom", "ST0,Ml", ClassFPU),
		grp(0xDC, 3, "fcomp", "ST0,Ml", ClassFPU),
		grp(0xDC, 4, "fsub", "ST0,Ml", ClassFPU),
		grp(0xDC, 5, "fsubr", "ST0,Ml", ClassFPU),
		grp(0xDC, 6, "fdiv", "ST0,Ml", ClassFPU),
		grp(0xDC, 7, "fdivr", "ST0,Ml", ClassFPU),
		grp(0xDD, 0, "fld", "Ml", ClassFPU),
		grp(0xDD, 2, "fst", "Ml", ClassFPU),
		grp(0xDD, 3, "fstp", "Ml", ClassFPU),
		grp(0xDD, 7, "fnstsw", "Mw", ClassFPU),
		grp(0xDF, 0, "fild", "Mw#", ClassFPU),
		grp(0xDF, 2, "fist", "Mw#", ClassFPU),
		grp(0xDF, 3, "fistp", "Mw#", ClassFPU),
		grp(0xDF, 5, "fild", "Mq#", ClassFPU),
		grp(0xDF, 7, "fistp", "Mq#", ClassFPU),
	}
}

// x87 register forms, keyed by the full ModRM byte. ST(i) is baked into
// each entry.
func fpuRegisterDefs() []def {
	var defs []def
	reg := func(code uint16, modrm int, mnemonic, operands string) def {
		return def{code: code, reg: modrm, mnemonic: mnemonic, operands: operands, class: ClassFPU}
	}

	for i := 0; i < 8; i++ {
		st := fmt.Sprintf("ST%d", i)
		defs = append(defs,
			reg(0xD8, 0xC0+i, "fadd", "ST0,"+st),
			reg(0xD8, 0xC8+i, "fmul", "ST0,"+st),
			reg(0xD8, 0xD0+i, "fcom", "ST0,"+st),
			reg(0xD8, 0xD8+i, "fcomp", "ST0,"+st),
			reg(0xD8, 0xE0+i, "fsub", "ST0,"+st),
			reg(0xD8, 0xE8+i, "fsubr", "ST0,"+st),
			reg(0xD8, 0xF0+i, "fdiv", "ST0,"+st),
			reg(0xD8, 0xF8+i, "fdivr", "ST0,"+st),
			reg(0xD9, 0xC0+i, "fld", st),
			reg(0xD9, 0xC8+i, "fxch", st),
			reg(0xDC, 0xC0+i, "fadd", st+",ST0"),
			reg(0xDC, 0xC8+i, "fmul", st+",ST0"),
			reg(0xDC, 0xE0+i, "fsubr", st+",ST0"),
			reg(0xDC, 0xE8+i, "fsub", st+",ST0"),
			reg(0xDC, 0xF0+i, "fdivr", st+",ST0"),
			reg(0xDC, 0xF8+i, "fdiv", st+",ST0"),
			reg(0xDD, 0xD0+i, "fst", st),
			reg(0xDD, 0xD8+i, "fstp", st),
			reg(0xDE, 0xC0+i, "faddp", st+",ST0"),
			reg(0xDE, 0xC8+i, "fmulp", st+",ST0"),
			reg(0xDE, 0xE0+i, "fsubrp", st+",ST0"),
			reg(0xDE, 0xE8+i, "fsubp", st+",ST0"),
			reg(0xDE, 0xF0+i, "fdivrp", st+",ST0"),
			reg(0xDE, 0xF8+i, "fdivp", st+",ST0"),
		)
	}

	defs = append(defs,
		reg(0xD9, 0xE0, "fchs", ""),
		reg(0xD9, 0xE1, "fabs", ""),
		reg(0xD9, 0xE8, "fld1", ""),
		reg(0xD9, 0xEE, "fldz", ""),
		reg(0xDB, 0xE2, "fnclex", ""),
		reg(0xDB, 0xE3, "fninit", ""),
		reg(0xDE, 0xD9, "fcompp", ""),
		reg(0xDF, 0xE0, "fnstsw", "AX"),
	)
	return defs
}

// Table is the parsed opcode table.
type Table struct {
	single [512]*Opcode
	groups [512]*[8]*Opcode
	fpu    map[uint16]*Opcode // opcode<<8 | modrm
}

// Opcodes is the table built at init from the declarative lists.
var Opcodes = mustBuildTable()

func mustBuildTable() *Table {
	t, err := BuildTable()
	if err != nil {
		panic(err)
	}
	return t
}

// BuildTable parses the declarative opcode lists.
func BuildTable() (*Table, error) {
	t := &Table{fpu: make(map[uint16]*Opcode)}

	defs := baseDefs()
	defs = append(defs, extendedDefs()...)
	defs = append(defs, fpuMemoryDefs()...)

	for _, d := range defs {
		o, err := d.build()
		if err != nil {
			return nil, err
		}
		if d.reg < 0 {
			if t.single[d.code] != nil {
				return nil, fmt.Errorf("opcode %#x defined twice", d.code)
			}
			t.single[d.code] = o
			continue
		}
		o.ModRM = true
		if t.groups[d.code] == nil {
			t.groups[d.code] = new([8]*Opcode)
		}
		if t.groups[d.code][d.reg] != nil {
			return nil, fmt.Errorf("opcode %#x /%d defined twice", d.code, d.reg)
		}
		t.groups[d.code][d.reg] = o
	}

	for _, d := range fpuRegisterDefs() {
		o, err := d.build()
		if err != nil {
			return nil, err
		}
		o.ModRM = true
		key := d.code<<8 | uint16(d.reg)
		if t.fpu[key] != nil {
			return nil, fmt.Errorf("x87 form %#x %#x defined twice", d.code, d.reg)
		}
		t.fpu[key] = o
	}

	return t, nil
}

func (d def) build() (*Opcode, error) {
	operands, err := ParseOperands(d.operands)
	if err != nil {
		return nil, fmt.Errorf("opcode %#x %s: %w", d.code, d.mnemonic, err)
	}
	o := &Opcode{
		Code:     d.code,
		Mnemonic: d.mnemonic,
		Op:       d.op,
		Operands: operands,
		Size:     d.size,
		Class:    d.class,
		ModRM:    needsModRM(operands),
	}
	if o.Op == "" {
		o.Op = d.mnemonic
	}
	if d.reg >= 0 {
		o.Reg = uint8(d.reg)
	}
	if o.Op == "jcc" || o.Op == "setcc" {
		o.Cond = uint8(d.code & 0xF)
	}
	if o.Op == "loop" {
		o.Cond = uint8(d.code & 0x3)
	}
	return o, nil
}

// IsGroup reports whether the opcode is selected by ModRM.reg, or by the
// full ModRM byte for x87 escapes.
func (t *Table) IsGroup(code uint16) bool {
	return code < 512 && (t.groups[code] != nil || isFPUEscape(code))
}

// NeedsModRM reports whether an opcode byte is followed by a ModRM byte.
func (t *Table) NeedsModRM(code uint16) bool {
	if code >= 512 {
		return false
	}
	if t.IsGroup(code) {
		return true
	}
	return t.single[code] != nil && t.single[code].ModRM
}

// Lookup returns the table entry for code. For group opcodes modrm selects
// the member; it is ignored otherwise.
func (t *Table) Lookup(code uint16, modrm ModRM) (*Opcode, bool) {
	if code >= 512 {
		return nil, false
	}
	if isFPUEscape(code) && modrm.IsRegister() {
		o, ok := t.fpu[code<<8|uint16(modrm)]
		return o, ok
	}
	if g := t.groups[code]; g != nil {
		o := g[modrm.Reg()]
		return o, o != nil
	}
	o := t.single[code]
	return o, o != nil
}

// Len returns the number of distinct table entries.
func (t *Table) Len() int {
	n := len(t.fpu)
	for code := range t.single {
		if t.single[code] != nil {
			n++
		}
		if g := t.groups[code]; g != nil {
			for _, o := range g {
				if o != nil {
					n++
				}
			}
		}
	}
	return n
}

func isFPUEscape(code uint16) bool {
	return code >= 0xD8 && code <= 0xDF
}
