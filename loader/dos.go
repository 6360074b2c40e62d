// Package loader provides DOS program loading: flat .COM images and MZ
// .EXE images with segment relocations.
package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gregdivis/Aeon-sub003/emu"
	"github.com/gregdivis/Aeon-sub003/insts"
)

// Format identifies the executable format.
type Format uint8

const (
	// FormatCOM is a flat image loaded at PSP:0100.
	FormatCOM Format = iota
	// FormatEXE is an MZ executable.
	FormatEXE
)

func (f Format) String() string {
	if f == FormatEXE {
		return "exe"
	}
	return "com"
}

// DefaultPSPSegment is where the program segment prefix is placed.
const DefaultPSPSegment uint16 = 0x0800

// Layout constants.
const (
	pspSize        = 0x100
	comEntry       = 0x100
	comStackTop    = 0xFFFE
	maxCOMSize     = 0x10000 - pspSize - 2
	memoryTopPara  = 0xA000
	commandTailOff = 0x80
	maxCommandTail = 126
	mzSignature    = 0x5A4D
	pageSize       = 512
	paragraphSize  = 16
)

// ErrNotExecutable is returned for images that are neither a valid COM
// nor a valid MZ file.
var ErrNotExecutable = errors.New("not a DOS executable")

// mzHeader is the fixed part of an MZ header.
type mzHeader struct {
	Signature     uint16
	LastPageBytes uint16
	Pages         uint16
	Relocations   uint16
	HeaderParas   uint16
	MinAlloc      uint16
	MaxAlloc      uint16
	SS            uint16
	SP            uint16
	Checksum      uint16
	IP            uint16
	CS            uint16
	RelocTable    uint16
	OverlayNumber uint16
}

// Relocation is a segment fixup inside the load image.
type Relocation struct {
	Offset  uint16
	Segment uint16
}

// Program represents a parsed DOS program ready for installation.
type Program struct {
	// Format is the executable format.
	Format Format
	// Image is the load module, excluding any MZ header.
	Image []byte
	// PSPSegment is the segment of the program segment prefix.
	PSPSegment uint16
	// CS:IP is the entry point.
	CS, IP uint16
	// SS:SP is the initial stack.
	SS, SP uint16
	// Relocations lists the segment fixups that were applied.
	Relocations []Relocation
}

// LoadSegment returns the segment the image is loaded at.
func (p *Program) LoadSegment() uint16 {
	if p.Format == FormatCOM {
		return p.PSPSegment
	}
	return p.PSPSegment + pspSize/paragraphSize
}

// Load reads and parses a DOS program from path.
func Load(path string, psp uint16) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program file: %w", err)
	}

	forceCOM := strings.EqualFold(filepath.Ext(path), ".com")
	return Parse(data, psp, forceCOM)
}

// Parse parses a DOS program image. Images starting with the MZ signature
// are EXE files unless forceCOM is set.
func Parse(data []byte, psp uint16, forceCOM bool) (*Program, error) {
	if !forceCOM && len(data) >= 2 && binary.LittleEndian.Uint16(data) == mzSignature {
		return parseEXE(data, psp)
	}
	return parseCOM(data, psp)
}

func parseCOM(data []byte, psp uint16) (*Program, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image: %w", ErrNotExecutable)
	}
	if len(data) > maxCOMSize {
		return nil, fmt.Errorf("COM image is %d bytes, limit %d: %w", len(data), maxCOMSize, ErrNotExecutable)
	}

	return &Program{
		Format:     FormatCOM,
		Image:      data,
		PSPSegment: psp,
		CS:         psp,
		IP:         comEntry,
		SS:         psp,
		SP:         comStackTop,
	}, nil
}

func parseEXE(data []byte, psp uint16) (*Program, error) {
	var hdr mzHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to read MZ header: %w", err)
	}

	headerSize := int(hdr.HeaderParas) * paragraphSize
	fileSize := int(hdr.Pages) * pageSize
	if hdr.LastPageBytes != 0 {
		fileSize -= pageSize - int(hdr.LastPageBytes)
	}
	if hdr.Pages == 0 || fileSize > len(data) || headerSize > fileSize {
		return nil, fmt.Errorf("MZ sizes out of range (header %d, file %d, have %d): %w",
			headerSize, fileSize, len(data), ErrNotExecutable)
	}

	image := make([]byte, fileSize-headerSize)
	copy(image, data[headerSize:fileSize])

	prog := &Program{
		Format:     FormatEXE,
		Image:      image,
		PSPSegment: psp,
	}
	load := prog.LoadSegment()

	relocEnd := int(hdr.RelocTable) + int(hdr.Relocations)*4
	if relocEnd > len(data) {
		return nil, fmt.Errorf("relocation table past end of file: %w", ErrNotExecutable)
	}
	for i := 0; i < int(hdr.Relocations); i++ {
		entry := int(hdr.RelocTable) + i*4
		r := Relocation{
			Offset:  binary.LittleEndian.Uint16(data[entry:]),
			Segment: binary.LittleEndian.Uint16(data[entry+2:]),
		}
		at := int(r.Segment)*paragraphSize + int(r.Offset)
		if at+2 > len(image) {
			return nil, fmt.Errorf("relocation %04X:%04X outside image: %w", r.Segment, r.Offset, ErrNotExecutable)
		}
		v := binary.LittleEndian.Uint16(image[at:])
		binary.LittleEndian.PutUint16(image[at:], v+load)
		prog.Relocations = append(prog.Relocations, r)
	}

	prog.CS = hdr.CS + load
	prog.IP = hdr.IP
	prog.SS = hdr.SS + load
	prog.SP = hdr.SP
	return prog, nil
}

// Install writes the PSP and image into the emulator's memory and sets up
// the entry registers. args becomes the PSP command tail.
func (p *Program) Install(e *emu.Emulator, args string) error {
	if len(args) > maxCommandTail {
		return fmt.Errorf("command tail is %d bytes, limit %d", len(args), maxCommandTail)
	}

	pspBase := uint32(p.PSPSegment) << 4
	psp := make([]byte, pspSize)
	psp[0], psp[1] = 0xCD, 0x20 // INT 20h
	binary.LittleEndian.PutUint16(psp[2:], memoryTopPara)
	psp[commandTailOff] = byte(len(args))
	copy(psp[commandTailOff+1:], args)
	psp[commandTailOff+1+len(args)] = '\r'
	e.Load(pspBase, psp)

	e.Load(uint32(p.LoadSegment())<<4+p.imageOffset(), p.Image)

	proc := e.Processor()
	proc.SetSegment(insts.DS, p.PSPSegment)
	proc.SetSegment(insts.ES, p.PSPSegment)
	proc.SetSegment(insts.CS, p.CS)
	proc.SetSegment(insts.SS, p.SS)
	proc.SetReg16(insts.ESP, p.SP)
	proc.EIP = uint32(p.IP)
	proc.Interrupt = true

	if p.Format == FormatCOM {
		// A near RET from the entry point lands on the PSP's INT 20h.
		e.Push(2, 0)
	}
	return nil
}

func (p *Program) imageOffset() uint32 {
	if p.Format == FormatCOM {
		return comEntry
	}
	return 0
}
