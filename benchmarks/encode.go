package benchmarks

import "github.com/gregdivis/Aeon-sub003/insts"

// Helper functions for building 16-bit x86 programs

// BuildProgram concatenates encoded instructions.
func BuildProgram(instrs ...[]byte) []byte {
	var program []byte
	for _, inst := range instrs {
		program = append(program, inst...)
	}
	return program
}

// Repeat returns n copies of the given instruction sequence.
func Repeat(n int, instrs ...[]byte) []byte {
	body := BuildProgram(instrs...)
	program := make([]byte, 0, n*len(body))
	for i := 0; i < n; i++ {
		program = append(program, body...)
	}
	return program
}

func modrmReg(reg, rm insts.Register) byte {
	return 0xC0 | byte(reg&7)<<3 | byte(rm&7)
}

// EncodeMOVImm encodes MOV r16, imm16.
func EncodeMOVImm(r insts.Register, imm uint16) []byte {
	return []byte{0xB8 + byte(r&7), byte(imm), byte(imm >> 8)}
}

// EncodeADDImm encodes ADD r16, imm8 (sign-extended).
func EncodeADDImm(r insts.Register, imm int8) []byte {
	return []byte{0x83, modrmReg(0, r), byte(imm)}
}

// EncodeADDReg encodes ADD dst, src.
func EncodeADDReg(dst, src insts.Register) []byte {
	return []byte{0x01, modrmReg(src, dst)}
}

// EncodeINC encodes INC r16.
func EncodeINC(r insts.Register) []byte {
	return []byte{0x40 + byte(r&7)}
}

// EncodeDEC encodes DEC r16.
func EncodeDEC(r insts.Register) []byte {
	return []byte{0x48 + byte(r&7)}
}

// EncodeMUL encodes MUL r16: DX:AX = AX * r.
func EncodeMUL(r insts.Register) []byte {
	return []byte{0xF7, modrmReg(4, r)}
}

// EncodeDIV encodes DIV r16: AX, DX = DX:AX / r, DX:AX % r.
func EncodeDIV(r insts.Register) []byte {
	return []byte{0xF7, modrmReg(6, r)}
}

// EncodeStoreBX encodes MOV [BX], src.
func EncodeStoreBX(src insts.Register) []byte {
	return []byte{0x89, byte(src&7)<<3 | 0x07}
}

// EncodeLoadByteBX encodes MOV AL, [BX].
func EncodeLoadByteBX() []byte {
	return []byte{0x8A, 0x07}
}

// EncodeLoadByte encodes MOV AL, [addr].
func EncodeLoadByte(addr uint16) []byte {
	return []byte{0xA0, byte(addr), byte(addr >> 8)}
}

// EncodeJNZ encodes JNZ rel8. rel is relative to the next instruction.
func EncodeJNZ(rel int8) []byte {
	return []byte{0x75, byte(rel)}
}

// EncodeLOOP encodes LOOP rel8.
func EncodeLOOP(rel int8) []byte {
	return []byte{0xE2, byte(rel)}
}

// EncodeCALL encodes a near CALL rel16.
func EncodeCALL(rel int16) []byte {
	return []byte{0xE8, byte(rel), byte(uint16(rel) >> 8)}
}

// EncodeRET encodes a near RET.
func EncodeRET() []byte {
	return []byte{0xC3}
}

// EncodeREPMOVSB encodes REP MOVSB.
func EncodeREPMOVSB() []byte {
	return []byte{0xF3, 0xA4}
}

// EncodeFLD1 encodes FLD1.
func EncodeFLD1() []byte {
	return []byte{0xD9, 0xE8}
}

// EncodeFADDP encodes FADDP ST(1), ST(0).
func EncodeFADDP() []byte {
	return []byte{0xDE, 0xC1}
}

// EncodeFISTP encodes FISTP word [addr].
func EncodeFISTP(addr uint16) []byte {
	return []byte{0xDF, 0x1E, byte(addr), byte(addr >> 8)}
}

// EncodeExit encodes the DOS exit call; AL holds the exit code.
func EncodeExit() []byte {
	return []byte{0xB4, 0x4C, 0xCD, 0x21}
}
