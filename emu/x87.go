package emu

// x87 handlers. Every x87 operand is bound as a location so results can be
// written back to the stack slot or memory operand in its own format.

type fop func(f *FPU, dst, src float64) float64

func fadd(_ *FPU, dst, src float64) float64  { return dst + src }
func fmul(_ *FPU, dst, src float64) float64  { return dst * src }
func fsub(_ *FPU, dst, src float64) float64  { return dst - src }
func fsubr(_ *FPU, dst, src float64) float64 { return src - dst }

func fdiv(f *FPU, dst, src float64) float64 {
	if src == 0 {
		f.Status |= FPUZeroDivide
	}
	return dst / src
}

func fdivr(f *FPU, dst, src float64) float64 {
	return fdiv(f, src, dst)
}

// farith applies op to the destination and source and writes the
// destination, popping the stack for the p forms.
func farith(op fop, pop bool) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		f := &e.proc.FPU
		r := op(f, in.float(e, 0), in.float(e, 1))
		if err := in.storeFloat(e, 0, r); err != nil {
			return err
		}
		if pop {
			f.Pop()
		}
		return nil
	}
}

func execFld(e *Emulator, in *instruction) error {
	e.proc.FPU.Push(in.float(e, 0))
	return nil
}

// fstore implements fst, fstp, fist and fistp. The destination accessor
// converts to its memory format.
func fstore(pop bool) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		f := &e.proc.FPU
		if err := in.storeFloat(e, 0, f.ST(0)); err != nil {
			return err
		}
		if pop {
			f.Pop()
		}
		return nil
	}
}

func execFldcw(e *Emulator, in *instruction) error {
	e.proc.FPU.Control = uint16(in.value(e, 0))
	return nil
}

func execFnstcw(e *Emulator, in *instruction) error {
	return in.store(e, 0, uint32(e.proc.FPU.Control))
}

func execFnstsw(e *Emulator, in *instruction) error {
	return in.store(e, 0, uint32(e.proc.FPU.Status))
}

func execFxch(e *Emulator, in *instruction) error {
	e.proc.FPU.Exchange(int(in.ops[0].Loc.index))
	return nil
}

// fcompare compares ST(0) with the source operand, or with ST(1) when there
// is none, then pops the given number of times.
func fcompare(pops int) func(*Emulator, *instruction) error {
	return func(e *Emulator, in *instruction) error {
		f := &e.proc.FPU
		a := f.ST(0)
		var b float64
		if len(in.accessors) > 1 {
			b = in.float(e, 1)
		} else {
			b = f.ST(1)
		}
		f.Compare(a, b)
		for i := 0; i < pops; i++ {
			f.Pop()
		}
		return nil
	}
}

func funary(op func(float64) float64) func(*Emulator, *instruction) error {
	return func(e *Emulator, _ *instruction) error {
		f := &e.proc.FPU
		f.SetST(0, op(f.ST(0)))
		return nil
	}
}

func fconst(v float64) func(*Emulator, *instruction) error {
	return func(e *Emulator, _ *instruction) error {
		e.proc.FPU.Push(v)
		return nil
	}
}

func execFnclex(e *Emulator, _ *instruction) error {
	e.proc.FPU.ClearExceptions()
	return nil
}

func execFninit(e *Emulator, _ *instruction) error {
	e.proc.FPU.Reset()
	return nil
}
