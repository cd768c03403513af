package scan

import (
	"errors"
	"fmt"

	"github.com/sarchlab/x86len/insts"
	"github.com/sarchlab/x86len/loader"
	"github.com/sarchlab/x86len/predecode"
)

// WalkCached walks the executable segments of prog like WalkProgram, taking
// lengths from the predecode cache c instead of decoding every instruction.
// The cache must be backed by prog.
func WalkCached(prog *loader.Program, c *predecode.Cache, fn WalkFunc) error {
	for _, seg := range prog.Text() {
		end := uint64(len(seg.Data))

		for off := uint64(0); off < end; {
			addr := seg.VirtAddr + off

			e, err := c.Lookup(addr)
			if err != nil {
				return fmt.Errorf("segment at 0x%x: %w", seg.VirtAddr, err)
			}
			if off+uint64(e.Len) > end {
				return fmt.Errorf("segment at 0x%x: instruction at 0x%x: %w: need %d bytes, have %d",
					seg.VirtAddr, addr, insts.ErrTruncated, e.Len, end-off)
			}
			// The cache decodes past the segment end, so a clamp there was
			// decided on bytes the segment does not hold.
			if e.Clamped && end-off < insts.MaxInstLen {
				return fmt.Errorf("segment at 0x%x: instruction at 0x%x: %w: need more than %d bytes, have %d",
					seg.VirtAddr, addr, insts.ErrTruncated, insts.MaxInstLen, end-off)
			}

			err = fn(Boundary{Addr: addr, Offset: int(off), Len: e.Len, Clamped: e.Clamped})
			if errors.Is(err, ErrStop) {
				return nil
			}
			if err != nil {
				return err
			}

			off += uint64(e.Len)
		}
	}
	return nil
}
