package insts

import "errors"

var (
	// ErrEmpty is returned when there are no bytes to decode.
	ErrEmpty = errors.New("empty instruction stream")

	// ErrTruncated is returned when the buffer holds fewer than MaxInstLen
	// bytes and the decoded instruction runs past its end.
	ErrTruncated = errors.New("instruction truncated")

	// ErrInvalidMode is returned for a mode other than 16, 32 or 64 bits.
	ErrInvalidMode = errors.New("invalid processor mode")

	// ErrUnsupportedArch is returned by NativeMode on non-x86 hosts.
	ErrUnsupportedArch = errors.New("unsupported host architecture")
)
