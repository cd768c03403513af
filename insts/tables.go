package insts

// Field masks.
const (
	modMask   = 0xC0 // ModRM bits [7:6]
	regMask   = 0x38 // ModRM bits [5:3]
	rmMask    = 0x07 // ModRM bits [2:0]
	baseMask  = 0x07 // SIB bits [2:0]
	rexMask   = 0xF0
	rexPrefix = 0x40
	rexW      = 0x08
)

// isLegacyPrefix reports whether b is a group 1-4 prefix.
//
//	0xf0, 0xf2, 0xf3, 0x2e, 0x36
//	0x3e, 0x26, 0x64, 0x65, 0x66, 0x67
func isLegacyPrefix(b byte) bool {
	switch b {
	case 0xF0, 0xF2, 0xF3, 0x2E, 0x36,
		0x3E, 0x26, 0x64, 0x65, 0x66, 0x67:
		return true
	}
	return false
}

// isFusedWait reports whether a 0x9B prefix belongs to the x87 instruction
// that follows it. 0x9B is only used as a prefix by the following opcodes:
//
//	0xd9 Mod != 11 Reg/Op = 110 or 111
//	0xdb ModR/M = 0xe2 or 0xe3
//	0xdd Reg/Op = 110 or 111
//	0xdf ModR/M = 0xe0
func isFusedWait(op, modrm byte) bool {
	switch op {
	case 0xD9:
		return modrm&modMask != modMask && modrm&0x30 == 0x30
	case 0xDB:
		return modrm == 0xE2 || modrm == 0xE3
	case 0xDD:
		return modrm&0x30 == 0x30
	case 0xDF:
		return modrm == 0xE0
	}
	return false
}

// oneByteHasModRM reports whether a one-byte opcode uses a ModR/M byte.
//
//	0x00 - 0x03, 0x08 - 0x0b,
//	0x10 - 0x13, 0x18 - 0x1b,
//	0x20 - 0x23, 0x28 - 0x2b,
//	0x30 - 0x33, 0x38 - 0x3b,
//	0x62, 0x63, 0x69, 0x6b,
//	0x80 - 0x8f, 0xc0, 0xc1,
//	0xc4 - 0xc7,
//	0xd0 - 0xd3, 0xd8 - 0xdf
//	0xf6, 0xf7, 0xfe, 0xff
func oneByteHasModRM(op byte) bool {
	return op&0xF4 == 0x00 || op&0xF4 == 0x10 ||
		op&0xF4 == 0x20 || op&0xF4 == 0x30 ||
		op == 0x62 || op == 0x63 || op == 0x69 || op == 0x6B ||
		op&0xF0 == 0x80 || op == 0xC0 || op == 0xC1 ||
		op&0xFC == 0xC4 || op&0xFC == 0xD0 ||
		op&0xF8 == 0xD8 || op == 0xF6 || op == 0xF7 ||
		op == 0xFE || op == 0xFF
}

// twoByteHasModRM reports whether a 0F-map opcode uses a ModR/M byte.
// The opcodes that do *not* use one are:
//
//	0x05 - 0x09, 0x0b, 0x0e,
//	0x30 - 0x37, 0x77, 0x80 - 0x8f,
//	0xa0 - 0xa2, 0xa8 - 0xaa, 0xb9
//	0xc8 - 0xcf
func twoByteHasModRM(op byte) bool {
	return !((op >= 0x05 && op <= 0x09) || op == 0x0B ||
		op == 0x0E || op&0xF8 == 0x30 || op == 0x77 ||
		op&0xF0 == 0x80 || (op >= 0xA0 && op <= 0xA2) ||
		(op >= 0xA8 && op <= 0xAA) || op&0xF8 == 0xC8 ||
		op == 0xB9)
}

// Immediate operands, one-byte opcode map:
//
//	imm8 (1 byte)
//	  0x04, 0x0c, 0x14, 0x1c, 0x24, 0x2c, 0x34, 0x3c, 0x6a, 0x6b, 0x70 - 0x7f,
//	  0x80, 0x82, 0x83, 0xa8, 0xb0 - 0xb7, 0xc0, 0xc1, 0xc6, 0xcd, 0xd4,
//	  0xd5, 0xe0 - 0xe7, 0xeb, 0xf6 (Reg/Op = 000 or Reg/Op = 001)
//
//	imm16 (2 bytes)
//	  0xc2, 0xca
//
//	imm16/32 (2 bytes if operand size is 16 else 4 bytes)
//	  0x05, 0x0d, 0x15, 0x1d, 0x25, 0x2d, 0x35, 0x3d, 0x68, 0x69, 0x81, 0xa9
//	  0xc7, 0xe8, 0xe9
//
//	imm16/32/64 (2, 4 or 8 bytes by operand size)
//	  0xb8 - 0xbf, 0xf7 (Reg/Op = 000 or Reg/Op = 001)
//
//	moffs (2, 4 or 8 bytes by address size)
//	  0xa0, 0xa1, 0xa2, 0xa3
//
//	others
//	  0xea, 0x9a: imm16 + imm16/32
//	  0xc8: imm16 + imm8
//
// Two-byte opcode map:
//
//	imm8 (1 byte)
//	  0x70 - 0x73, 0xa4, 0xac, 0xba, 0xc2, 0xc4 - 0xc6
//
//	imm16/32 (2 bytes if operand size is 16 else 4 bytes)
//	  0x80 - 0x8f
//
// All three-byte opcodes in the 0F 3A map have an imm8.

func oneByteImm8(op, modrm byte) bool {
	return (op&7 == 4 && op&0xF0 <= 0x30) ||
		op == 0x6A || op == 0x6B || op&0xF0 == 0x70 ||
		op == 0x80 || op == 0x82 || op == 0x83 ||
		op == 0xA8 || op&0xF8 == 0xB0 || op == 0xC0 ||
		op == 0xC1 || op == 0xC6 || op == 0xCD ||
		op == 0xD4 || op == 0xD5 || op&0xF8 == 0xE0 ||
		op == 0xEB || (op == 0xF6 && modrm&0x30 == 0)
}

func oneByteImm16(op byte) bool {
	return op == 0xC2 || op == 0xCA
}

func oneByteImm16or32(op byte) bool {
	return (op&7 == 5 && op&0xF0 <= 0x30) ||
		op == 0x68 || op == 0x69 || op == 0x81 ||
		op == 0xA9 || op == 0xC7 || op == 0xE8 ||
		op == 0xE9
}

// testImm reports whether op is TEST r/m, imm (F7 /0 or F7 /1).
func testImm(op, modrm byte) bool {
	return op == 0xF7 && modrm&0x30 == 0
}

func isMovImmReg(op byte) bool {
	return op&0xF8 == 0xB8
}

func isMoffs(op byte) bool {
	return op&0xFC == 0xA0
}

func isFarPointer(op byte) bool {
	return op == 0xEA || op == 0x9A
}

func twoByteImm8(op byte) bool {
	return op&0xFC == 0x70 || op == 0xA4 ||
		op == 0xAC || op == 0xBA || op == 0xC2 ||
		(op >= 0xC4 && op <= 0xC6)
}

func twoByteImm16or32(op byte) bool {
	return op&0xF0 == 0x80
}
