package benchmarks

import (
	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/insts"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks.
// Each benchmark targets one instruction class or memory pattern and
// leaves a known value in AL as its exit code.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		loopCounter(),
		branchTaken(),
		functionCalls(),
		multiplyDivide(),
		stringCopy(),
		memoryStride(),
		fpuAccumulate(),
	}
}

// GetCoreBenchmarks returns a minimal set of benchmarks for quick
// validation: a counted loop, a block copy and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopCounter(),
		stringCopy(),
		branchTaken(),
	}
}

func arithmeticSequential() Benchmark {
	return Benchmark{
		Name:        "arithmetic_sequential",
		Description: "20 independent ADDs across five registers - measures ALU cost",
		Program: BuildProgram(
			Repeat(4,
				EncodeADDImm(insts.EAX, 1),
				EncodeADDImm(insts.EBX, 1),
				EncodeADDImm(insts.ECX, 1),
				EncodeADDImm(insts.EDX, 1),
				EncodeADDImm(insts.ESI, 1),
			),
			EncodeExit(),
		),
		ExpectedExit: 4,
	}
}

func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "20 dependent ADDs (AX = AX + BX)",
		Program: BuildProgram(
			EncodeMOVImm(insts.EBX, 1),
			Repeat(20, EncodeADDReg(insts.EAX, insts.EBX)),
			EncodeExit(),
		),
		ExpectedExit: 20,
	}
}

func loopCounter() Benchmark {
	return Benchmark{
		Name:        "loop_counter",
		Description: "100 iterations of INC/LOOP - measures LOOP cost",
		Program: BuildProgram(
			EncodeMOVImm(insts.ECX, 100),
			EncodeINC(insts.EAX), // loop:
			EncodeLOOP(-3),
			EncodeExit(),
		),
		ExpectedExit: 100,
	}
}

func branchTaken() Benchmark {
	return Benchmark{
		Name:        "branch_taken",
		Description: "50 iterations of ADD/DEC/JNZ - measures conditional branch cost",
		Program: BuildProgram(
			EncodeMOVImm(insts.ECX, 50),
			EncodeADDImm(insts.EAX, 2), // loop:
			EncodeDEC(insts.ECX),
			EncodeJNZ(-6),
			EncodeExit(),
		),
		ExpectedExit: 100,
	}
}

func functionCalls() Benchmark {
	const calls = 5
	// The calls are followed by the exit sequence and then the callee.
	callee := int16(calls*3 + len(EncodeExit()))

	var program []byte
	for i := int16(0); i < calls; i++ {
		program = append(program, EncodeCALL(callee-(i+1)*3)...)
	}
	program = BuildProgram(program,
		EncodeExit(),
		EncodeINC(insts.EAX),
		EncodeRET(),
	)

	return Benchmark{
		Name:         "function_calls",
		Description:  "5 near CALL/RET pairs - measures call overhead and stack traffic",
		Program:      program,
		ExpectedExit: calls,
	}
}

func multiplyDivide() Benchmark {
	return Benchmark{
		Name:        "multiply_divide",
		Description: "5 MUL/DIV pairs - measures multiplier and divider latency",
		Program: BuildProgram(
			EncodeMOVImm(insts.EAX, 7),
			EncodeMOVImm(insts.EBX, 6),
			Repeat(5, EncodeMUL(insts.EBX), EncodeDIV(insts.EBX)),
			EncodeExit(),
		),
		ExpectedExit: 7,
	}
}

func stringCopy() Benchmark {
	return Benchmark{
		Name:        "string_copy",
		Description: "REP MOVSB of 256 bytes - measures string iteration and sequential memory",
		Setup: func(e *emu.Emulator) {
			base := uint32(DataSegment) << 4
			for i := uint32(0); i < 256; i++ {
				e.Memory().Write8(base+i, uint8(i))
			}
		},
		Program: BuildProgram(
			EncodeMOVImm(insts.ESI, 0),
			EncodeMOVImm(insts.EDI, 0x800),
			EncodeMOVImm(insts.ECX, 256),
			EncodeREPMOVSB(),
			EncodeMOVImm(insts.EBX, 0x8FF),
			EncodeLoadByteBX(),
			EncodeExit(),
		),
		ExpectedExit: 255,
	}
}

func memoryStride() Benchmark {
	return Benchmark{
		Name:        "memory_stride",
		Description: "256 word stores 64 bytes apart - 16KB footprint to force cache evictions",
		Program: BuildProgram(
			EncodeMOVImm(insts.EAX, 9),
			EncodeMOVImm(insts.ECX, 256),
			EncodeStoreBX(insts.EAX), // loop:
			EncodeADDImm(insts.EBX, 64),
			EncodeLOOP(-7),
			EncodeExit(),
		),
		ExpectedExit: 9,
	}
}

func fpuAccumulate() Benchmark {
	return Benchmark{
		Name:        "fpu_accumulate",
		Description: "5 x87 FLD1/FADDP steps stored with FISTP - measures FPU latency",
		Program: BuildProgram(
			EncodeFLD1(),
			Repeat(4, EncodeFLD1(), EncodeFADDP()),
			EncodeFISTP(0x10),
			EncodeLoadByte(0x10),
			EncodeExit(),
		),
		ExpectedExit: 5,
	}
}
