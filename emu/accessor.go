package emu

import (
	"math"

	"github.com/gregdivis/Aeon-sub003/insts"
)

type (
	loadFunc       func(e *Emulator, st *InstructionState) (Operand, error)
	locateFunc     func(e *Emulator, st *InstructionState) (Location, error)
	readFunc       func(e *Emulator, loc Location) uint32
	writeFunc      func(e *Emulator, loc Location, v uint32)
	floatReadFunc  func(e *Emulator, loc Location) float64
	floatWriteFunc func(e *Emulator, loc Location, v float64)
)

// Accessor reads and writes one operand shape. Its closures are built
// once per shape and know nothing about opcodes.
type Accessor struct {
	shape Shape

	load       loadFunc
	read       readFunc
	write      writeFunc
	readFloat  floatReadFunc
	writeFloat floatWriteFunc
}

// Shape returns the shape the accessor was built for.
func (a *Accessor) Shape() Shape {
	return a.shape
}

// Load advances EIP past the operand's encoding and returns its value,
// or its location for ReadAddress shapes.
func (a *Accessor) Load(e *Emulator, st *InstructionState) (Operand, error) {
	return a.load(e, st)
}

// Read returns the current integer value at loc.
func (a *Accessor) Read(e *Emulator, loc Location) uint32 {
	if a.read == nil {
		return 0
	}
	return a.read(e, loc)
}

// Store writes v to loc. Only ReadAddress shapes are writable.
func (a *Accessor) Store(e *Emulator, loc Location, v uint32) error {
	if a.shape.Mode != ReadAddress || a.write == nil {
		return ErrNotWritable
	}
	a.write(e, loc, v)
	return nil
}

// ReadFloat returns the current x87 value at loc.
func (a *Accessor) ReadFloat(e *Emulator, loc Location) float64 {
	if a.readFloat == nil {
		return float64(a.Read(e, loc))
	}
	return a.readFloat(e, loc)
}

// StoreFloat writes an x87 value to loc, converting to the shape's memory
// format.
func (a *Accessor) StoreFloat(e *Emulator, loc Location, v float64) error {
	if a.shape.Mode != ReadAddress || a.writeFloat == nil {
		return ErrNotWritable
	}
	a.writeFloat(e, loc, v)
	return nil
}

// AccessorCache memoizes one accessor per shape. It is owned by the
// executing goroutine.
type AccessorCache struct {
	accessors map[Shape]*Accessor
}

// NewAccessorCache creates an empty cache.
func NewAccessorCache() *AccessorCache {
	return &AccessorCache{accessors: make(map[Shape]*Accessor)}
}

// GetOrCreate returns the accessor for s, building it on first request.
func (c *AccessorCache) GetOrCreate(s Shape) (*Accessor, error) {
	if a, ok := c.accessors[s]; ok {
		return a, nil
	}
	a, err := buildAccessor(s)
	if err != nil {
		return nil, err
	}
	c.accessors[s] = a
	return a, nil
}

// Len returns the number of cached accessors.
func (c *AccessorCache) Len() int {
	return len(c.accessors)
}

func buildAccessor(s Shape) (*Accessor, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	a := &Accessor{shape: s}
	switch s.Kind {
	case ShapeImmediate:
		a.load = immediateLoader(s)
	case ShapeConstant:
		a.load = func(*Emulator, *InstructionState) (Operand, error) {
			return Operand{Value: 1}, nil
		}
	default:
		a.read, a.write = locationIO(s)
		if s.Float {
			a.readFloat, a.writeFloat = floatIO(s)
		}
		a.load = locationLoader(s, locator(s), a)
	}
	return a, nil
}

func extender(s Shape) func(uint32) uint32 {
	switch {
	case s.Extend == 0:
		return func(v uint32) uint32 { return v }
	case s.Signed:
		mask := sizeMask(s.Extend)
		return func(v uint32) uint32 { return signExtend(v, s.Size) & mask }
	default:
		return func(v uint32) uint32 { return v }
	}
}

func immediateLoader(s Shape) loadFunc {
	if s.Far {
		offsetSize := s.Size - 2
		return func(e *Emulator, _ *InstructionState) (Operand, error) {
			off := e.fetch(offsetSize)
			sel := e.Fetch16()
			return Operand{Value: off, Selector: sel}, nil
		}
	}
	extend := extender(s)
	return func(e *Emulator, _ *InstructionState) (Operand, error) {
		return Operand{Value: extend(e.fetch(s.Size))}, nil
	}
}

func locator(s Shape) locateFunc {
	switch s.Kind {
	case ShapeRM, ShapeMemory:
		return func(e *Emulator, st *InstructionState) (Location, error) {
			rm, err := insts.DecodeRM(e, st.ModRM(e), s.Width, st.Segment, s.MemoryOnly)
			if err != nil {
				return Location{}, err
			}
			if rm.IsRegister {
				return regLocation(rm.Register), nil
			}
			return memLocation(rm.Mem, e.proc), nil
		}
	case ShapeRegister:
		return func(e *Emulator, st *InstructionState) (Location, error) {
			return regLocation(st.ModRM(e).Reg()), nil
		}
	case ShapeOpcodeRegister:
		return func(_ *Emulator, st *InstructionState) (Location, error) {
			return regLocation(uint8(st.Opcode & 7)), nil
		}
	case ShapeFixedRegister:
		return func(*Emulator, *InstructionState) (Location, error) {
			return regLocation(s.Slot), nil
		}
	case ShapeSegment:
		return func(e *Emulator, st *InstructionState) (Location, error) {
			index := st.ModRM(e).Reg()
			if index > uint8(insts.GS) {
				return Location{}, invalidOpcode()
			}
			return Location{kind: locSeg, index: index}, nil
		}
	case ShapeFixedSegment:
		return func(*Emulator, *InstructionState) (Location, error) {
			return Location{kind: locSeg, index: s.Slot}, nil
		}
	case ShapeDebugRegister:
		return func(e *Emulator, st *InstructionState) (Location, error) {
			return Location{kind: locDebug, index: st.ModRM(e).Reg()}, nil
		}
	case ShapeMemoryOffset:
		offsetSize := uint8(2)
		if s.Width == insts.Addr32 {
			offsetSize = 4
		}
		return func(e *Emulator, st *InstructionState) (Location, error) {
			off := e.fetch(offsetSize)
			seg := st.DataSegment()
			return Location{
				kind:    locMem,
				addr:    e.proc.SegmentBase(seg) + off,
				offset:  off,
				segment: seg,
			}, nil
		}
	default:
		return func(*Emulator, *InstructionState) (Location, error) {
			return Location{kind: locST, index: s.Slot}, nil
		}
	}
}

func locationLoader(s Shape, locate locateFunc, a *Accessor) loadFunc {
	if s.Mode == ReadAddress {
		return func(e *Emulator, st *InstructionState) (Operand, error) {
			loc, err := locate(e, st)
			return Operand{Loc: loc}, err
		}
	}

	switch {
	case s.Float:
		return func(e *Emulator, st *InstructionState) (Operand, error) {
			loc, err := locate(e, st)
			if err != nil {
				return Operand{}, err
			}
			return Operand{Float: a.readFloat(e, loc), Loc: loc}, nil
		}
	case s.Far:
		offsetSize := s.Size - 2
		return func(e *Emulator, st *InstructionState) (Operand, error) {
			loc, err := locate(e, st)
			if err != nil {
				return Operand{}, err
			}
			off := readSized(e.memory, offsetSize, loc.addr)
			sel := e.memory.Read16(loc.addr + uint32(offsetSize))
			return Operand{Value: off, Selector: sel, Loc: loc}, nil
		}
	default:
		extend := extender(s)
		return func(e *Emulator, st *InstructionState) (Operand, error) {
			loc, err := locate(e, st)
			if err != nil {
				return Operand{}, err
			}
			return Operand{Value: extend(a.read(e, loc)), Loc: loc}, nil
		}
	}
}

func locationIO(s Shape) (readFunc, writeFunc) {
	size := s.Size
	regRead := func(e *Emulator, loc Location) uint32 {
		return e.proc.Reg(size, loc.index)
	}
	regWrite := func(e *Emulator, loc Location, v uint32) {
		e.proc.SetReg(size, loc.index, v)
	}
	memRead := func(e *Emulator, loc Location) uint32 {
		return readSized(e.memory, size, loc.addr)
	}
	memWrite := func(e *Emulator, loc Location, v uint32) {
		writeSized(e.memory, size, loc.addr, v)
	}

	switch s.Kind {
	case ShapeRegister, ShapeOpcodeRegister, ShapeFixedRegister:
		return regRead, regWrite
	case ShapeRM:
		return func(e *Emulator, loc Location) uint32 {
				if loc.kind == locMem {
					return memRead(e, loc)
				}
				return regRead(e, loc)
			}, func(e *Emulator, loc Location, v uint32) {
				if loc.kind == locMem {
					memWrite(e, loc, v)
					return
				}
				regWrite(e, loc, v)
			}
	case ShapeMemory, ShapeMemoryOffset:
		if s.Far {
			return func(e *Emulator, loc Location) uint32 {
				return readSized(e.memory, size-2, loc.addr)
			}, nil
		}
		if s.Float {
			return nil, nil
		}
		return memRead, memWrite
	case ShapeSegment, ShapeFixedSegment:
		return func(e *Emulator, loc Location) uint32 {
				return uint32(e.proc.Segment(insts.Segment(loc.index)))
			}, func(e *Emulator, loc Location, v uint32) {
				e.proc.SetSegment(insts.Segment(loc.index), uint16(v))
			}
	case ShapeDebugRegister:
		return func(e *Emulator, loc Location) uint32 {
				return e.proc.DR[loc.index&7]
			}, func(e *Emulator, loc Location, v uint32) {
				e.proc.DR[loc.index&7] = v
			}
	}
	return nil, nil
}

func floatIO(s Shape) (floatReadFunc, floatWriteFunc) {
	if s.Kind == ShapeFPUStack {
		return func(e *Emulator, loc Location) float64 {
				return e.proc.FPU.ST(int(loc.index))
			}, func(e *Emulator, loc Location, v float64) {
				e.proc.FPU.SetST(int(loc.index), v)
			}
	}

	size := s.Size
	if s.Signed {
		return func(e *Emulator, loc Location) float64 {
				switch size {
				case 2:
					return float64(int16(e.memory.Read16(loc.addr)))
				case 4:
					return float64(int32(e.memory.Read32(loc.addr)))
				default:
					return float64(int64(read64(e.memory, loc.addr)))
				}
			}, func(e *Emulator, loc Location, v float64) {
				n := uint64(e.proc.FPU.Integer(v, size))
				switch size {
				case 2:
					e.memory.Write16(loc.addr, uint16(n))
				case 4:
					e.memory.Write32(loc.addr, uint32(n))
				default:
					write64(e.memory, loc.addr, n)
				}
			}
	}

	return func(e *Emulator, loc Location) float64 {
			switch size {
			case 4:
				return float64(math.Float32frombits(e.memory.Read32(loc.addr)))
			case 8:
				return math.Float64frombits(read64(e.memory, loc.addr))
			default:
				x := Float80{Mantissa: read64(e.memory, loc.addr), SignExp: e.memory.Read16(loc.addr + 8)}
				return x.Float64()
			}
		}, func(e *Emulator, loc Location, v float64) {
			switch size {
			case 4:
				e.memory.Write32(loc.addr, math.Float32bits(float32(v)))
			case 8:
				write64(e.memory, loc.addr, math.Float64bits(v))
			default:
				x := Float80FromFloat64(v)
				write64(e.memory, loc.addr, x.Mantissa)
				e.memory.Write16(loc.addr+8, x.SignExp)
			}
		}
}

func read64(m Memory, addr uint32) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

func write64(m Memory, addr uint32, v uint64) {
	m.Write32(addr, uint32(v))
	m.Write32(addr+4, uint32(v>>32))
}
