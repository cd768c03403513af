package insts

import (
	"fmt"
	"runtime"
	"strings"
)

// Mode represents the processor operating mode used for a decode.
// Its value is the natural width in bits.
type Mode uint8

// Processor modes.
const (
	Mode16 Mode = 16 // Real mode / 16-bit protected mode
	Mode32 Mode = 32 // 32-bit protected mode
	Mode64 Mode = 64 // Long mode
)

// Valid reports whether m is one of Mode16, Mode32 or Mode64.
func (m Mode) Valid() bool {
	return m == Mode16 || m == Mode32 || m == Mode64
}

// Bits returns the mode width in bits.
func (m Mode) Bits() int {
	return int(m)
}

func (m Mode) String() string {
	switch m {
	case Mode16:
		return "16-bit"
	case Mode32:
		return "32-bit"
	case Mode64:
		return "64-bit"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode converts a textual mode ("16", "32", "64", "i386", "amd64", ...)
// into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "16", "16-bit", "real", "i8086":
		return Mode16, nil
	case "32", "32-bit", "386", "i386", "x86", "ia32":
		return Mode32, nil
	case "64", "64-bit", "amd64", "x86-64", "x86_64", "x64":
		return Mode64, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// NativeMode returns the mode matching the architecture the program runs on.
func NativeMode() (Mode, error) {
	return modeForArch(runtime.GOARCH)
}

func modeForArch(arch string) (Mode, error) {
	switch arch {
	case "amd64":
		return Mode64, nil
	case "386":
		return Mode32, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedArch, arch)
}

// Size represents an effective operand or address size.
type Size uint8

// Effective sizes.
const (
	Size16 Size = 16
	Size32 Size = 32
	Size64 Size = 64
)

// Bytes returns the size in bytes.
func (s Size) Bytes() int {
	return int(s) / 8
}

// OpcodeClass represents the opcode map selected by the escape bytes.
type OpcodeClass uint8

// Opcode classes.
const (
	OneByte     OpcodeClass = iota // Primary opcode map
	TwoByte                        // 0F xx
	ThreeByte38                    // 0F 38 xx
	ThreeByte3A                    // 0F 3A xx
	ThreeDNow                      // 0F 0F modrm ... suffix
)

func (c OpcodeClass) String() string {
	switch c {
	case OneByte:
		return "one-byte"
	case TwoByte:
		return "two-byte"
	case ThreeByte38:
		return "three-byte-38"
	case ThreeByte3A:
		return "three-byte-3a"
	case ThreeDNow:
		return "3dnow"
	}
	return fmt.Sprintf("OpcodeClass(%d)", uint8(c))
}
