package emu

import (
	"io"

	"github.com/go-logr/logr"

	"github.com/gregdivis/Aeon-sub003/insts"
)

// Host service vectors.
const (
	VectorTerminate uint8 = 0x20
	VectorDOS       uint8 = 0x21
)

// INT 21h function numbers, selected by AH.
const (
	DOSReadCharEcho uint8 = 0x01
	DOSWriteChar    uint8 = 0x02
	DOSWriteString  uint8 = 0x09
	DOSSetVector    uint8 = 0x25
	DOSGetVersion   uint8 = 0x30
	DOSGetVector    uint8 = 0x35
	DOSCloseHandle  uint8 = 0x3E
	DOSReadHandle   uint8 = 0x3F
	DOSWriteHandle  uint8 = 0x40
	DOSExit         uint8 = 0x4C
)

// DOSReportedMajor is the DOS version reported by function 30h.
const DOSReportedMajor uint8 = 5

const (
	dosStringEnd      = '$'
	dosMaxStringBytes = 0x10000
)

// DOS error codes returned in AX with CF set.
const (
	DOSErrInvalidFunction uint16 = 0x01
	DOSErrInvalidHandle   uint16 = 0x06
	DOSErrAccessDenied    uint16 = 0x05
)

// DOSServices implements the minimal INT 20h and INT 21h services needed
// to run console programs. Register it for VectorTerminate and VectorDOS.
type DOSServices struct {
	handles *HandleTable
	log     logr.Logger
}

// NewDOSServices creates the services over the given host streams.
func NewDOSServices(stdin io.Reader, stdout, stderr io.Writer, log logr.Logger) *DOSServices {
	return &DOSServices{
		handles: NewHandleTable(stdin, stdout, stderr),
		log:     log,
	}
}

// Handles returns the DOS handle table.
func (s *DOSServices) Handles() *HandleTable {
	return s.handles
}

// HandleInterrupt executes the service selected by the vector and AH.
func (s *DOSServices) HandleInterrupt(e *Emulator, vector uint8) error {
	if vector == VectorTerminate {
		e.Exit(0)
		return nil
	}

	p := e.proc
	fn := p.Reg8(4)
	switch fn {
	case DOSReadCharEcho:
		s.readCharEcho(e)
	case DOSWriteChar:
		_, _ = s.handles.Write(HandleStdout, []byte{p.Reg8(2)})
	case DOSWriteString:
		s.writeString(e)
	case DOSSetVector:
		entry := uint32(p.Reg8(0)) * 4
		e.memory.Write16(entry, p.Reg16(insts.EDX))
		e.memory.Write16(entry+2, p.Segment(insts.DS))
	case DOSGetVersion:
		p.SetReg16(insts.EAX, uint16(DOSReportedMajor))
		p.SetReg16(insts.EBX, 0)
		p.SetReg16(insts.ECX, 0)
	case DOSGetVector:
		entry := uint32(p.Reg8(0)) * 4
		p.SetReg16(insts.EBX, e.memory.Read16(entry))
		p.SetSegment(insts.ES, e.memory.Read16(entry+2))
	case DOSCloseHandle:
		if err := s.handles.Close(p.Reg16(insts.EBX)); err != nil {
			s.fail(e, DOSErrInvalidHandle)
			return nil
		}
		s.succeed(e)
	case DOSReadHandle:
		s.transfer(e, true)
	case DOSWriteHandle:
		s.transfer(e, false)
	case DOSExit:
		e.Exit(int64(p.Reg8(0)))
	default:
		s.log.V(1).Info("unsupported DOS function", "ah", fn)
		s.fail(e, DOSErrInvalidFunction)
	}
	return nil
}

func (s *DOSServices) succeed(e *Emulator) {
	e.proc.Flags.SetCarry(false)
}

func (s *DOSServices) fail(e *Emulator, code uint16) {
	e.proc.SetReg16(insts.EAX, code)
	e.proc.Flags.SetCarry(true)
}

func (s *DOSServices) readCharEcho(e *Emulator) {
	buf := make([]byte, 1)
	n, err := s.handles.Read(HandleStdin, buf)
	if err != nil || n == 0 {
		e.proc.SetReg8(0, 0)
		return
	}
	_, _ = s.handles.Write(HandleStdout, buf)
	e.proc.SetReg8(0, buf[0])
}

// writeString writes the '$'-terminated string at DS:DX.
func (s *DOSServices) writeString(e *Emulator) {
	base := e.proc.SegmentBase(insts.DS)
	offset := uint32(e.proc.Reg16(insts.EDX))

	var buf []byte
	for i := uint32(0); i < dosMaxStringBytes; i++ {
		b := e.memory.Read8(base + (offset+i)&0xFFFF)
		if b == dosStringEnd {
			break
		}
		buf = append(buf, b)
	}
	_, _ = s.handles.Write(HandleStdout, buf)
}

// transfer implements handle reads and writes: BX handle, CX count, DS:DX
// buffer. AX receives the byte count.
func (s *DOSServices) transfer(e *Emulator, read bool) {
	p := e.proc
	h := p.Reg16(insts.EBX)
	count := int(p.Reg16(insts.ECX))
	base := p.SegmentBase(insts.DS)
	offset := uint32(p.Reg16(insts.EDX))

	if !s.handles.IsOpen(h) {
		s.fail(e, DOSErrInvalidHandle)
		return
	}

	buf := make([]byte, count)
	var (
		n   int
		err error
	)
	if read {
		n, err = s.handles.Read(h, buf)
		for i := 0; i < n; i++ {
			e.memory.Write8(base+(offset+uint32(i))&0xFFFF, buf[i])
		}
	} else {
		for i := range buf {
			buf[i] = e.memory.Read8(base + (offset+uint32(i))&0xFFFF)
		}
		n, err = s.handles.Write(h, buf)
	}
	if err != nil {
		s.log.V(1).Info("handle transfer failed", "handle", h, "read", read, "err", err.Error())
		s.fail(e, DOSErrAccessDenied)
		return
	}

	p.SetReg16(insts.EAX, uint16(n))
	s.succeed(e)
}
