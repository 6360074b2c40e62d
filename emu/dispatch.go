package emu

import (
	"errors"
	"math"

	"github.com/gregdivis/Aeon-sub003/insts"
)

// maxPrefixes bounds the prefix bytes of one instruction; x86 limits an
// instruction to 15 bytes.
const maxPrefixes = 14

type handler struct {
	exec func(e *Emulator, in *instruction) error

	// locate is a bitmask of operands loaded as ReadAddress.
	locate uint8
}

const (
	locateDst  uint8 = 1 << 0
	locateBoth uint8 = 1<<0 | 1<<1
	locateAll  uint8 = 0xFF
)

// binding is an opcode specialized to one operand and address width.
type binding struct {
	op        *insts.Opcode
	accessors []*Accessor
	handler   handler
	cycles    uint64
}

type bindingKey struct {
	code       uint16
	reg        uint8
	opSize32   bool
	addrSize32 bool
}

// instruction is one execution of a binding.
type instruction struct {
	*binding
	st  *InstructionState
	ops [3]Operand
}

func (in *instruction) size(i int) uint8 {
	return in.accessors[i].shape.Size
}

func (in *instruction) value(e *Emulator, i int) uint32 {
	a := in.accessors[i]
	if a.shape.Mode == ReadAddress {
		return a.Read(e, in.ops[i].Loc)
	}
	return in.ops[i].Value
}

func (in *instruction) store(e *Emulator, i int, v uint32) error {
	return in.accessors[i].Store(e, in.ops[i].Loc, v)
}

func (in *instruction) float(e *Emulator, i int) float64 {
	a := in.accessors[i]
	if a.shape.Mode == ReadAddress {
		return a.ReadFloat(e, in.ops[i].Loc)
	}
	return in.ops[i].Float
}

func (in *instruction) storeFloat(e *Emulator, i int, v float64) error {
	return in.accessors[i].StoreFloat(e, in.ops[i].Loc, v)
}

// operationSize is the size of operand-less operations such as string
// instructions.
func (in *instruction) operationSize() uint8 {
	return in.op.Size.Bytes(in.st.OpSize32)
}

// execute decodes and runs one instruction at CS:EIP.
func (e *Emulator) execute() error {
	st := &e.state
	st.reset(e)

	code, err := e.decodePrefixes(st)
	if err != nil {
		return err
	}
	st.Opcode = code

	var modrm insts.ModRM
	if insts.Opcodes.NeedsModRM(code) {
		modrm = st.ModRM(e)
	}
	op, ok := insts.Opcodes.Lookup(code, modrm)
	if !ok {
		return invalidOpcode()
	}
	if op.ModRM && modrm.IsRegister() && op.HasMemoryOnlyOperand() {
		return invalidOpcode()
	}

	b, err := e.bind(op, st)
	if err != nil {
		return err
	}

	in := instruction{binding: b, st: st}
	for i, a := range b.accessors {
		in.ops[i], err = a.Load(e, st)
		if errors.Is(err, insts.ErrMod3Violation) {
			return invalidOpcode()
		}
		if err != nil {
			return err
		}
	}

	e.cycles += b.cycles
	return b.handler.exec(e, &in)
}

func (e *Emulator) decodePrefixes(st *InstructionState) (uint16, error) {
	code32 := e.proc.code32
	for n := 0; n <= maxPrefixes; n++ {
		b := e.Fetch8()
		switch b {
		case 0x26, 0x2E, 0x36, 0x3E:
			st.Segment = insts.Segment((b >> 3) & 3)
		case 0x64:
			st.Segment = insts.FS
		case 0x65:
			st.Segment = insts.GS
		case 0x66:
			st.OpSize32 = !code32
		case 0x67:
			st.AddrSize32 = !code32
		case 0xF0:
			// LOCK has no effect on a single processor.
		case 0xF2, 0xF3:
			st.Rep = b
		case 0x0F:
			return 0x100 | uint16(e.Fetch8()), nil
		default:
			return uint16(b), nil
		}
	}
	return 0, invalidOpcode()
}

// bind returns the cached binding for op at the current widths, building
// it on first use.
func (e *Emulator) bind(op *insts.Opcode, st *InstructionState) (*binding, error) {
	key := bindingKey{
		code:       op.Code,
		reg:        op.Reg,
		opSize32:   st.OpSize32,
		addrSize32: st.AddrSize32,
	}
	if b, ok := e.bindings[key]; ok {
		return b, nil
	}

	h, ok := handlers[op.Op]
	if !ok {
		return nil, invalidOpcode()
	}

	b := &binding{op: op, handler: h}
	for i, spec := range op.Operands {
		mode := ReadValue
		if h.locate&(1<<i) != 0 {
			mode = ReadAddress
		}
		shape, err := ShapeFor(spec, st.OpSize32, st.AddressWidth(), mode)
		if err != nil {
			return nil, err
		}
		a, err := e.accessors.GetOrCreate(shape)
		if err != nil {
			return nil, err
		}
		b.accessors = append(b.accessors, a)
	}
	if e.latency != nil {
		b.cycles = e.latency.Cycles(op.Class)
	}

	e.bindings[key] = b
	e.log.V(3).Info("bound opcode", "mnemonic", op.Mnemonic, "operands", len(b.accessors))
	return b, nil
}

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"add":  {exec: binary((*ALU).Add, true), locate: locateDst},
		"or":   {exec: binary((*ALU).Or, true), locate: locateDst},
		"adc":  {exec: binary((*ALU).Adc, true), locate: locateDst},
		"sbb":  {exec: binary((*ALU).Sbb, true), locate: locateDst},
		"and":  {exec: binary((*ALU).And, true), locate: locateDst},
		"sub":  {exec: binary((*ALU).Sub, true), locate: locateDst},
		"xor":  {exec: binary((*ALU).Xor, true), locate: locateDst},
		"cmp":  {exec: binary((*ALU).Sub, false)},
		"test": {exec: binary((*ALU).And, false)},
		"inc":  {exec: unary((*ALU).Inc), locate: locateDst},
		"dec":  {exec: unary((*ALU).Dec), locate: locateDst},
		"not":  {exec: unary((*ALU).Not), locate: locateDst},
		"neg":  {exec: unary((*ALU).Neg), locate: locateDst},
		"mul":  {exec: execMul},
		"imul": {exec: execIMul, locate: locateDst},
		"div":  {exec: divide((*ALU).Div)},
		"idiv": {exec: divide((*ALU).IDiv)},
		"daa":  {exec: execDaa},
		"das":  {exec: execDas},
		"aaa":  {exec: execAaa},
		"aas":  {exec: execAas},
		"aam":  {exec: execAam},
		"aad":  {exec: execAad},

		"rol":  {exec: shift((*ALU).Rol), locate: locateDst},
		"ror":  {exec: shift((*ALU).Ror), locate: locateDst},
		"rcl":  {exec: shift((*ALU).Rcl), locate: locateDst},
		"rcr":  {exec: shift((*ALU).Rcr), locate: locateDst},
		"shl":  {exec: shift((*ALU).Shl), locate: locateDst},
		"sal":  {exec: shift((*ALU).Shl), locate: locateDst},
		"shr":  {exec: shift((*ALU).Shr), locate: locateDst},
		"sar":  {exec: shift((*ALU).Sar), locate: locateDst},
		"shld": {exec: doubleShift((*ALU).Shld), locate: locateDst},
		"shrd": {exec: doubleShift((*ALU).Shrd), locate: locateDst},

		"bt":    {exec: bitTest(bitKeep), locate: locateDst},
		"bts":   {exec: bitTest(bitSet), locate: locateDst},
		"btr":   {exec: bitTest(bitReset), locate: locateDst},
		"btc":   {exec: bitTest(bitComplement), locate: locateDst},
		"bsf":   {exec: execBsf, locate: locateDst},
		"bsr":   {exec: execBsr, locate: locateDst},
		"setcc": {exec: execSetcc, locate: locateDst},

		"mov":   {exec: execMov, locate: locateDst},
		"xchg":  {exec: execXchg, locate: locateBoth},
		"lea":   {exec: execLea, locate: locateBoth},
		"les":   {exec: loadFar(insts.ES), locate: locateDst},
		"lds":   {exec: loadFar(insts.DS), locate: locateDst},
		"lss":   {exec: loadFar(insts.SS), locate: locateDst},
		"lfs":   {exec: loadFar(insts.FS), locate: locateDst},
		"lgs":   {exec: loadFar(insts.GS), locate: locateDst},
		"movzx": {exec: execMov, locate: locateDst},
		"movsx": {exec: execMov, locate: locateDst},
		"cbw":   {exec: execCbw},
		"cwd":   {exec: execCwd},
		"xlat":  {exec: execXlat},
		"lahf":  {exec: execLahf},
		"sahf":  {exec: execSahf},

		"push":  {exec: execPush},
		"pop":   {exec: execPop, locate: locateDst},
		"pusha": {exec: execPusha},
		"popa":  {exec: execPopa},
		"pushf": {exec: execPushf},
		"popf":  {exec: execPopf},
		"enter": {exec: execEnter},
		"leave": {exec: execLeave},

		"jcc":   {exec: execJcc},
		"jmp":   {exec: execJmp},
		"jmpf":  {exec: execJmpFar},
		"loop":  {exec: execLoop},
		"jcxz":  {exec: execJcxz},
		"call":  {exec: execCall},
		"callf": {exec: execCallFar},
		"ret":   {exec: execRet},
		"retf":  {exec: execRetFar},
		"int3":  {exec: execInt3},
		"int":   {exec: execInt},
		"into":  {exec: execInto},
		"iret":  {exec: execIret},

		"movs": {exec: execMovs},
		"cmps": {exec: execCmps},
		"stos": {exec: execStos},
		"lods": {exec: execLods},
		"scas": {exec: execScas},
		"ins":  {exec: execIns},
		"outs": {exec: execOuts},
		"in":   {exec: execIn, locate: locateDst},
		"out":  {exec: execOut},

		"nop":  {exec: execNop},
		"wait": {exec: execNop},
		"hlt":  {exec: execHlt},
		"cmc":  {exec: execCmc},
		"clc":  {exec: flagSetter(func(p *Processor) { p.Flags.SetCarry(false) })},
		"stc":  {exec: flagSetter(func(p *Processor) { p.Flags.SetCarry(true) })},
		"cli":  {exec: flagSetter(func(p *Processor) { p.Interrupt = false })},
		"sti":  {exec: execSti},
		"cld":  {exec: flagSetter(func(p *Processor) { p.Direction = false })},
		"std":  {exec: flagSetter(func(p *Processor) { p.Direction = true })},

		"fld":    {exec: execFld, locate: locateAll},
		"fild":   {exec: execFld, locate: locateAll},
		"fst":    {exec: fstore(false), locate: locateAll},
		"fstp":   {exec: fstore(true), locate: locateAll},
		"fist":   {exec: fstore(false), locate: locateAll},
		"fistp":  {exec: fstore(true), locate: locateAll},
		"fldcw":  {exec: execFldcw, locate: locateAll},
		"fnstcw": {exec: execFnstcw, locate: locateAll},
		"fnstsw": {exec: execFnstsw, locate: locateAll},
		"fxch":   {exec: execFxch, locate: locateAll},
		"fadd":   {exec: farith(fadd, false), locate: locateAll},
		"fmul":   {exec: farith(fmul, false), locate: locateAll},
		"fsub":   {exec: farith(fsub, false), locate: locateAll},
		"fsubr":  {exec: farith(fsubr, false), locate: locateAll},
		"fdiv":   {exec: farith(fdiv, false), locate: locateAll},
		"fdivr":  {exec: farith(fdivr, false), locate: locateAll},
		"faddp":  {exec: farith(fadd, true), locate: locateAll},
		"fmulp":  {exec: farith(fmul, true), locate: locateAll},
		"fsubp":  {exec: farith(fsub, true), locate: locateAll},
		"fsubrp": {exec: farith(fsubr, true), locate: locateAll},
		"fdivp":  {exec: farith(fdiv, true), locate: locateAll},
		"fdivrp": {exec: farith(fdivr, true), locate: locateAll},
		"fcom":   {exec: fcompare(0), locate: locateAll},
		"fcomp":  {exec: fcompare(1), locate: locateAll},
		"fcompp": {exec: fcompare(2), locate: locateAll},
		"fchs":   {exec: funary(func(v float64) float64 { return -v }), locate: locateAll},
		"fabs":   {exec: funary(math.Abs), locate: locateAll},
		"fld1":   {exec: fconst(1), locate: locateAll},
		"fldz":   {exec: fconst(0), locate: locateAll},
		"fnclex": {exec: execFnclex, locate: locateAll},
		"fninit": {exec: execFninit, locate: locateAll},
	}
}
