package emu

import "github.com/gregdivis/Aeon-sub003/insts"

// InstructionState is the per-instruction decode context: prefixes, the
// opcode and the latched ModRM byte shared by the reg and r/m operands.
type InstructionState struct {
	Start      uint32
	Opcode     uint16
	Segment    insts.Segment // override, or NoSegment
	OpSize32   bool
	AddrSize32 bool
	Rep        uint8 // 0xF3, 0xF2 or 0

	modrm     insts.ModRM
	haveModRM bool
}

// NewInstructionState starts decoding at the emulator's current EIP.
func NewInstructionState(e *Emulator) *InstructionState {
	st := &InstructionState{}
	st.reset(e)
	return st
}

func (st *InstructionState) reset(e *Emulator) {
	code32 := e.proc.code32
	*st = InstructionState{
		Start:      e.proc.EIP,
		Segment:    insts.NoSegment,
		OpSize32:   code32,
		AddrSize32: code32,
	}
}

// ModRM returns the instruction's ModRM byte, fetching it from the
// instruction stream on first use.
func (st *InstructionState) ModRM(e *Emulator) insts.ModRM {
	if !st.haveModRM {
		st.modrm = insts.ModRM(e.Fetch8())
		st.haveModRM = true
	}
	return st.modrm
}

// HasModRM reports whether the ModRM byte has been latched.
func (st *InstructionState) HasModRM() bool {
	return st.haveModRM
}

// AddressWidth returns the effective address width.
func (st *InstructionState) AddressWidth() insts.AddressWidth {
	if st.AddrSize32 {
		return insts.Addr32
	}
	return insts.Addr16
}

// OperandSize returns the effective operand size in bytes.
func (st *InstructionState) OperandSize() uint8 {
	if st.OpSize32 {
		return 4
	}
	return 2
}

// DataSegment returns the override segment, or DS.
func (st *InstructionState) DataSegment() insts.Segment {
	if st.Segment != insts.NoSegment {
		return st.Segment
	}
	return insts.DS
}
