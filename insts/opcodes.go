package insts

import (
	"fmt"
	"strconv"
	"strings"
)

// OperandKind describes where an operand lives in the encoding.
type OperandKind uint8

// Operand kinds.
const (
	OperandNone      OperandKind = iota
	OperandRM                    // E: ModRM r/m, register or memory
	OperandReg                   // G: ModRM reg field
	OperandMem                   // M: ModRM r/m, memory only
	OperandImm                   // I: immediate
	OperandRel                   // J: relative displacement
	OperandMemOffset             // O: moffs, address-size immediate
	OperandOpReg                 // Z: register in the opcode's low bits
	OperandFixedReg              // AL, CL, DX, eAX
	OperandSeg                   // S: ModRM reg as segment register
	OperandFixedSeg              // ES, CS, SS, DS, FS, GS
	OperandDebug                 // D: ModRM reg as debug register
	OperandOne                   // constant 1 (shift count)
	OperandST                    // x87 ST(i), fixed slot
)

// SizeCode is an operand size as written in the opcode table.
type SizeCode uint8

// Size codes.
const (
	SizeNone   SizeCode = iota
	SizeByte            // b
	SizeWord            // w
	SizeDWord           // d
	SizeV               // v: word or dword by operand size
	SizeFarPtr          // p: offset v + selector w
	SizeQWord           // q: 8 bytes
	SizeTByte           // t: 10 bytes
	SizeSingle          // s: 32-bit real
	SizeDouble          // l: 64-bit real
)

// Bytes returns the size in bytes for the given operand width.
func (s SizeCode) Bytes(opSize32 bool) uint8 {
	switch s {
	case SizeByte:
		return 1
	case SizeWord:
		return 2
	case SizeDWord, SizeSingle:
		return 4
	case SizeV:
		if opSize32 {
			return 4
		}
		return 2
	case SizeFarPtr:
		if opSize32 {
			return 6
		}
		return 4
	case SizeQWord, SizeDouble:
		return 8
	case SizeTByte:
		return 10
	default:
		return 0
	}
}

// OperandSpec is one operand of an opcode table entry.
type OperandSpec struct {
	Kind   OperandKind
	Size   SizeCode
	Extend SizeCode // sign or zero extension target, SizeNone if none
	Signed bool
	Float  bool
	Slot   uint8 // fixed register, segment or ST(i) index
}

// Class groups opcodes for timing purposes.
type Class uint8

// Instruction classes.
const (
	ClassMisc Class = iota
	ClassALU
	ClassMove
	ClassShift
	ClassBit
	ClassMul
	ClassDiv
	ClassStack
	ClassBranch
	ClassCall
	ClassString
	ClassIO
	ClassInterrupt
	ClassFPU
)

var classNames = [...]string{
	"misc", "alu", "move", "shift", "bit", "mul", "div", "stack",
	"branch", "call", "string", "io", "interrupt", "fpu",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "class(" + strconv.Itoa(int(c)) + ")"
}

// Opcode is a decoded opcode table entry.
type Opcode struct {
	Code     uint16 // one-byte opcode, or 0x100|second byte for 0x0F xx
	Reg      uint8  // ModRM.reg for group members, full ModRM for x87 register forms
	Mnemonic string
	Op       string // handler key; equal to Mnemonic unless shared
	Operands []OperandSpec
	Size     SizeCode // operation size for operand-less ops (string ops, cbw, ...)
	Cond     uint8    // condition code for jcc/setcc/loop forms
	Class    Class
	ModRM    bool // encoding carries a ModRM byte
}

// HasMemoryOnlyOperand reports whether any operand must be a memory
// reference.
func (o *Opcode) HasMemoryOnlyOperand() bool {
	for _, spec := range o.Operands {
		if spec.Kind == OperandMem {
			return true
		}
	}
	return false
}

func (o *Opcode) String() string {
	return o.Mnemonic
}

var fixedRegisters = map[string]OperandSpec{
	"AL":  {Kind: OperandFixedReg, Size: SizeByte, Slot: uint8(EAX)},
	"CL":  {Kind: OperandFixedReg, Size: SizeByte, Slot: uint8(ECX)},
	"AX":  {Kind: OperandFixedReg, Size: SizeWord, Slot: uint8(EAX)},
	"DX":  {Kind: OperandFixedReg, Size: SizeWord, Slot: uint8(EDX)},
	"eAX": {Kind: OperandFixedReg, Size: SizeV, Slot: uint8(EAX)},
	"ES":  {Kind: OperandFixedSeg, Size: SizeWord, Slot: uint8(ES)},
	"CS":  {Kind: OperandFixedSeg, Size: SizeWord, Slot: uint8(CS)},
	"SS":  {Kind: OperandFixedSeg, Size: SizeWord, Slot: uint8(SS)},
	"DS":  {Kind: OperandFixedSeg, Size: SizeWord, Slot: uint8(DS)},
	"FS":  {Kind: OperandFixedSeg, Size: SizeWord, Slot: uint8(FS)},
	"GS":  {Kind: OperandFixedSeg, Size: SizeWord, Slot: uint8(GS)},
	"1":   {Kind: OperandOne, Size: SizeByte},
}

var kindLetters = map[byte]OperandKind{
	'E': OperandRM,
	'G': OperandReg,
	'M': OperandMem,
	'I': OperandImm,
	'A': OperandImm, // far pointer immediate
	'J': OperandRel,
	'O': OperandMemOffset,
	'Z': OperandOpReg,
	'S': OperandSeg,
	'D': OperandDebug,
}

var sizeLetters = map[byte]SizeCode{
	'b': SizeByte,
	'w': SizeWord,
	'd': SizeDWord,
	'v': SizeV,
	'p': SizeFarPtr,
	'q': SizeQWord,
	't': SizeTByte,
	's': SizeSingle,
	'l': SizeDouble,
}

// ParseOperand parses one operand token. Tokens are a kind letter and a
// size letter ("Eb", "Gv", "Ib"), optionally followed by '+' (sign-extend
// to v), '^' (zero-extend to v) or '#' (x87 integer); fixed registers ("AL", "eAX", "DX",
// "ES"); the constant "1"; or an x87 stack slot "ST0".."ST7".
func ParseOperand(token string) (OperandSpec, error) {
	if spec, ok := fixedRegisters[token]; ok {
		return spec, nil
	}

	if strings.HasPrefix(token, "ST") {
		slot, err := strconv.Atoi(token[2:])
		if err != nil || slot < 0 || slot > 7 {
			return OperandSpec{}, fmt.Errorf("invalid x87 slot %q", token)
		}
		return OperandSpec{Kind: OperandST, Size: SizeTByte, Float: true, Slot: uint8(slot)}, nil
	}

	if len(token) < 2 {
		return OperandSpec{}, fmt.Errorf("invalid operand %q", token)
	}

	kind, ok := kindLetters[token[0]]
	if !ok {
		return OperandSpec{}, fmt.Errorf("unknown operand kind in %q", token)
	}
	size, ok := sizeLetters[token[1]]
	if !ok {
		return OperandSpec{}, fmt.Errorf("unknown operand size in %q", token)
	}

	spec := OperandSpec{Kind: kind, Size: size}
	if token[0] == 'A' {
		spec.Size = SizeFarPtr
	}
	if size == SizeSingle || size == SizeDouble || size == SizeTByte {
		spec.Float = true
	}
	if kind == OperandRel {
		spec.Signed = true
		spec.Extend = SizeDWord
	}

	switch suffix := token[2:]; suffix {
	case "":
	case "+":
		spec.Signed = true
		spec.Extend = SizeV
		spec.Float = false
	case "^":
		spec.Extend = SizeV
	case "#":
		spec.Float = true
		spec.Signed = true
	default:
		return OperandSpec{}, fmt.Errorf("unknown operand suffix in %q", token)
	}

	return spec, nil
}

// ParseOperands parses a comma-separated operand list.
func ParseOperands(list string) ([]OperandSpec, error) {
	if list == "" {
		return nil, nil
	}
	tokens := strings.Split(list, ",")
	specs := make([]OperandSpec, 0, len(tokens))
	for _, token := range tokens {
		spec, err := ParseOperand(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func needsModRM(specs []OperandSpec) bool {
	for _, spec := range specs {
		switch spec.Kind {
		case OperandRM, OperandReg, OperandMem, OperandSeg, OperandDebug:
			return true
		}
	}
	return false
}
