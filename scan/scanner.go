// Package scan walks x86 code one instruction at a time, reporting the
// instruction boundaries the length decoder finds.
package scan

import (
	"errors"
	"fmt"

	"github.com/sarchlab/x86len/insts"
	"github.com/sarchlab/x86len/loader"
)

// ErrStop can be returned by a WalkFunc to end the walk early. Walk then
// returns nil.
var ErrStop = errors.New("scan: stop")

// Boundary describes one instruction found by a walk.
type Boundary struct {
	// Addr is the virtual address of the first byte.
	Addr uint64
	// Offset is the position of the first byte in the walked buffer.
	Offset int
	// Len is the decoded length in bytes.
	Len int
	// Clamped is set when the decoded length exceeded the architectural
	// limit and was reported as 1.
	Clamped bool
}

// End returns the address just past the instruction.
func (b Boundary) End() uint64 {
	return b.Addr + uint64(b.Len)
}

// WalkFunc is called for every boundary in address order.
type WalkFunc func(Boundary) error

// Walk decodes code from its start, treating code[0] as address base, and
// calls fn for every instruction. An instruction that runs past the end of
// code stops the walk with an error wrapping insts.ErrTruncated.
func Walk(code []byte, base uint64, d *insts.Decoder, fn WalkFunc) error {
	for off := 0; off < len(code); {
		addr := base + uint64(off)

		inst, err := d.Inspect(code[off:])
		if err != nil {
			return fmt.Errorf("instruction at 0x%x: %w", addr, err)
		}

		err = fn(Boundary{
			Addr:    addr,
			Offset:  off,
			Len:     inst.Len,
			Clamped: inst.Clamped,
		})
		if errors.Is(err, ErrStop) {
			return nil
		}
		if err != nil {
			return err
		}

		off += inst.Len
	}
	return nil
}

// Boundaries collects every boundary of code.
func Boundaries(code []byte, base uint64, d *insts.Decoder) ([]Boundary, error) {
	var out []Boundary
	err := Walk(code, base, d, func(b Boundary) error {
		out = append(out, b)
		return nil
	})
	return out, err
}

// WalkProgram walks every executable segment of prog in load order. Only the
// file-backed part of a segment is walked.
func WalkProgram(prog *loader.Program, d *insts.Decoder, fn WalkFunc) error {
	stopped := false
	guard := func(b Boundary) error {
		err := fn(b)
		if errors.Is(err, ErrStop) {
			stopped = true
		}
		return err
	}

	for _, seg := range prog.Text() {
		if err := Walk(seg.Data, seg.VirtAddr, d, guard); err != nil {
			return fmt.Errorf("segment at 0x%x: %w", seg.VirtAddr, err)
		}
		if stopped {
			return nil
		}
	}
	return nil
}
