// Package insts provides length-only decoding of x86 and x86-64 instructions.
//
// The decoder walks the prefix, opcode, ModRM, SIB, displacement and
// immediate bytes of a single instruction and reports how many bytes it
// occupies. It does not produce mnemonics or operands, and it does not reject
// undefined opcodes:
//   - Legacy prefixes: F0, F2, F3, 2E, 36, 3E, 26, 64, 65, 66, 67
//   - REX prefixes (64-bit mode only), REX.W widens the operand size
//   - One-byte, two-byte (0F) and three-byte (0F 38, 0F 3A) opcode maps
//   - 3DNow! (0F 0F) and WAIT-fused x87 control instructions
//
// Usage:
//
//	decoder := insts.NewDecoder(insts.Mode64)
//	n, err := decoder.Decode([]byte{0x48, 0x83, 0xEC, 0x28}) // SUB RSP, 0x28
//	fmt.Printf("Len: %d\n", n)
package insts
