package emu

import (
	"fmt"

	"github.com/gregdivis/Aeon-sub003/insts"
)

// ShapeKind says where an operand lives.
type ShapeKind uint8

// Operand shape kinds.
const (
	ShapeRM ShapeKind = iota
	ShapeRegister
	ShapeMemory
	ShapeImmediate
	ShapeMemoryOffset
	ShapeOpcodeRegister
	ShapeFixedRegister
	ShapeSegment
	ShapeFixedSegment
	ShapeDebugRegister
	ShapeFPUStack
	ShapeConstant
)

var shapeKindNames = [...]string{
	"rm", "reg", "mem", "imm", "moffs", "opreg", "fixedreg",
	"sreg", "fixedsreg", "dreg", "st", "const",
}

func (k ShapeKind) String() string {
	if int(k) < len(shapeKindNames) {
		return shapeKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// AccessMode selects what Load returns.
type AccessMode uint8

const (
	// ReadValue loads the operand's value.
	ReadValue AccessMode = iota
	// ReadAddress resolves a writable location without reading it.
	ReadAddress
)

// Shape describes how to access one operand. Shapes are comparable and
// key the accessor cache.
type Shape struct {
	Kind       ShapeKind
	Size       uint8 // bytes
	Extend     uint8 // target size for sign or zero extension, 0 for none
	Width      insts.AddressWidth
	Mode       AccessMode
	Signed     bool
	Float      bool // x87 real, or x87 integer when Signed
	Far        bool // offset followed by a 16-bit selector
	MemoryOnly bool
	Slot       uint8 // fixed register, segment or ST(i)
}

func (s Shape) String() string {
	mode := "value"
	if s.Mode == ReadAddress {
		mode = "addr"
	}
	return fmt.Sprintf("%s/%d/a%d/%s", s.Kind, s.Size, s.Width, mode)
}

var shapeKinds = map[insts.OperandKind]ShapeKind{
	insts.OperandRM:        ShapeRM,
	insts.OperandReg:       ShapeRegister,
	insts.OperandMem:       ShapeMemory,
	insts.OperandImm:       ShapeImmediate,
	insts.OperandRel:       ShapeImmediate,
	insts.OperandMemOffset: ShapeMemoryOffset,
	insts.OperandOpReg:     ShapeOpcodeRegister,
	insts.OperandFixedReg:  ShapeFixedRegister,
	insts.OperandSeg:       ShapeSegment,
	insts.OperandFixedSeg:  ShapeFixedSegment,
	insts.OperandDebug:     ShapeDebugRegister,
	insts.OperandOne:       ShapeConstant,
	insts.OperandST:        ShapeFPUStack,
}

// ShapeFor derives the shape of a table operand under the current operand
// and address widths.
func ShapeFor(spec insts.OperandSpec, opSize32 bool, width insts.AddressWidth, mode AccessMode) (Shape, error) {
	kind, ok := shapeKinds[spec.Kind]
	if !ok {
		return Shape{}, fmt.Errorf("operand kind %d: %w", spec.Kind, ErrUnsupportedShape)
	}

	s := Shape{
		Kind:       kind,
		Size:       spec.Size.Bytes(opSize32),
		Width:      width,
		Mode:       mode,
		Signed:     spec.Signed,
		Float:      spec.Float,
		Far:        spec.Size == insts.SizeFarPtr,
		MemoryOnly: spec.Kind == insts.OperandMem,
		Slot:       spec.Slot,
	}
	if spec.Extend != insts.SizeNone {
		s.Extend = spec.Extend.Bytes(opSize32)
		if s.Extend <= s.Size {
			s.Extend = 0
		}
	}
	if kind == ShapeFPUStack {
		s.Size = 10
	}
	return s, nil
}

func validSize(size uint8, allowed ...uint8) bool {
	for _, a := range allowed {
		if size == a {
			return true
		}
	}
	return false
}

// validate reports whether an accessor can be built for s.
func (s Shape) validate() error {
	ok := true
	switch s.Kind {
	case ShapeImmediate:
		if s.Far {
			ok = validSize(s.Size, 4, 6)
		} else {
			ok = validSize(s.Size, 1, 2, 4) && !s.Float
		}
		ok = ok && s.Mode == ReadValue
	case ShapeConstant:
		ok = s.Mode == ReadValue
	case ShapeRM, ShapeRegister, ShapeOpcodeRegister, ShapeFixedRegister:
		ok = validSize(s.Size, 1, 2, 4) && !s.Float && !s.Far
	case ShapeMemory:
		switch {
		case s.Far:
			ok = validSize(s.Size, 4, 6)
		case s.Float && s.Signed:
			ok = validSize(s.Size, 2, 4, 8)
		case s.Float:
			ok = validSize(s.Size, 4, 8, 10)
		default:
			ok = validSize(s.Size, 1, 2, 4)
		}
	case ShapeMemoryOffset:
		ok = validSize(s.Size, 1, 2, 4)
	case ShapeSegment, ShapeFixedSegment:
		ok = s.Size == 2 && (s.Kind == ShapeSegment || s.Slot < 6)
	case ShapeDebugRegister:
		ok = s.Size == 4
	case ShapeFPUStack:
		ok = s.Float && s.Slot < 8
	default:
		ok = false
	}

	if s.Extend != 0 && (!validSize(s.Extend, 2, 4) || s.Extend <= s.Size) {
		ok = false
	}
	switch s.Kind {
	case ShapeRM, ShapeMemory, ShapeMemoryOffset:
		if s.Width != insts.Addr16 && s.Width != insts.Addr32 {
			ok = false
		}
	}

	if !ok {
		return fmt.Errorf("%v: %w", s, ErrUnsupportedShape)
	}
	return nil
}
