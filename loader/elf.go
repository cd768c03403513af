// Package loader provides ELF loading for x86 and x86-64 executables.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/sarchlab/x86len/insts"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment is loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Contains reports whether addr falls inside the segment's memory image.
func (s *Segment) Contains(addr uint64) bool {
	return addr >= s.VirtAddr && addr-s.VirtAddr < s.MemSize
}

// Executable reports whether the segment holds code.
func (s *Segment) Executable() bool {
	return s.Flags&SegmentFlagExecute != 0
}

// Program represents a loaded x86 program ready for length decoding.
type Program struct {
	// Mode is the processor mode the code was built for.
	Mode insts.Mode
	// EntryPoint is the virtual address where execution begins.
	EntryPoint uint64
	// Segments contains all loadable segments of the program.
	Segments []Segment
}

// Load parses an x86 or x86-64 ELF binary.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return fromFile(f)
}

// LoadReader parses an x86 or x86-64 ELF image from r.
func LoadReader(r io.ReaderAt) (*Program, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF image: %w", err)
	}
	return fromFile(f)
}

// LoadRaw wraps a flat binary as a single executable segment at base.
func LoadRaw(data []byte, base uint64, mode insts.Mode) (*Program, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", insts.ErrInvalidMode, uint8(mode))
	}
	return &Program{
		Mode:       mode,
		EntryPoint: base,
		Segments: []Segment{{
			VirtAddr: base,
			Data:     data,
			MemSize:  uint64(len(data)),
			Flags:    SegmentFlagRead | SegmentFlagExecute,
		}},
	}, nil
}

func fromFile(f *elf.File) (*Program, error) {
	// The machine decides the mode: x32 binaries are ELFCLASS32 EM_X86_64.
	var mode insts.Mode
	switch f.Machine {
	case elf.EM_386:
		mode = insts.Mode32
	case elf.EM_X86_64:
		mode = insts.Mode64
	default:
		return nil, fmt.Errorf("not an x86 ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{
		Mode:       mode,
		EntryPoint: f.Entry,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    flags,
		})
	}

	return prog, nil
}

// Text returns the executable segments of the program.
func (p *Program) Text() []Segment {
	var text []Segment
	for _, seg := range p.Segments {
		if seg.Executable() {
			text = append(text, seg)
		}
	}
	return text
}

// SegmentAt returns the segment containing addr.
func (p *Program) SegmentAt(addr uint64) (*Segment, bool) {
	for i := range p.Segments {
		if p.Segments[i].Contains(addr) {
			return &p.Segments[i], true
		}
	}
	return nil, false
}

// Read returns size bytes of the memory image starting at addr. Bytes outside
// any segment, and BSS bytes beyond the file data, read as zero.
func (p *Program) Read(addr uint64, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		a := addr + uint64(i)
		seg, ok := p.SegmentAt(a)
		if !ok {
			continue
		}
		if off := a - seg.VirtAddr; off < uint64(len(seg.Data)) {
			data[i] = seg.Data[off]
		}
	}
	return data
}
