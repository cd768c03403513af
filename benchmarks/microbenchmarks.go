package benchmarks

import (
	"bytes"

	"github.com/sarchlab/x86len/insts"
)

// GetMicrobenchmarks returns the standard set of decode microbenchmarks.
// Each benchmark targets one part of the length grammar.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		prologueEpilogue(),
		prefixHeavy(),
		sseThreeByte(),
		irregularImmediates(),
		realMode(),
		nopSled(),
	}
}

// GetCoreBenchmarks returns a minimal set of benchmarks for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		prologueEpilogue(),
		irregularImmediates(),
	}
}

// 1. Prologue/Epilogue - ModRM, SIB and displacement sizing in 64-bit code
func prologueEpilogue() Benchmark {
	return Benchmark{
		Name:        "prologue_epilogue",
		Description: "Compiler-style frame setup and teardown with REX and SIB forms",
		Mode:        insts.Mode64,
		Program: []byte{
			0x55,                                     // push rbp
			0x48, 0x89, 0xE5,                         // mov rbp, rsp
			0x48, 0x83, 0xEC, 0x28,                   // sub rsp, 0x28
			0x8B, 0x84, 0x24, 0x10, 0x01, 0x00, 0x00, // mov eax, [rsp+0x110]
			0xE8, 0x0B, 0x00, 0x00, 0x00,             // call rel32
			0x48, 0x83, 0xC4, 0x28,                   // add rsp, 0x28
			0x5D,                                     // pop rbp
			0xC3,                                     // ret
		},
		ExpectedInstructions: 8,
	}
}

// 2. Prefix Heavy - single legacy prefixes in front of common opcodes
func prefixHeavy() Benchmark {
	return Benchmark{
		Name:        "prefix_heavy",
		Description: "Operand-size, segment, lock and rep prefixes",
		Mode:        insts.Mode64,
		Program: []byte{
			0x66, 0x0F, 0x1F, 0x44, 0x00, 0x00, // nop word [rax+rax]
			0x66, 0x90,                         // xchg ax, ax
			0xF3, 0xC3,                         // rep ret
			0x2E, 0x74, 0x10,                   // cs je rel8
			0x66, 0xB8, 0x34, 0x12,             // mov ax, imm16
			0xF0, 0x0F, 0xB1, 0x0A,             // lock cmpxchg [rdx], ecx
		},
		ExpectedInstructions: 6,
	}
}

// 3. SSE Three-Byte - 0F 38, 0F 3A and 3DNow! maps
func sseThreeByte() Benchmark {
	return Benchmark{
		Name:        "sse_three_byte",
		Description: "Two- and three-byte opcode maps with trailing immediates",
		Mode:        insts.Mode64,
		Program: []byte{
			0x66, 0x0F, 0x38, 0x00, 0xC1,       // pshufb xmm0, xmm1
			0x66, 0x0F, 0x3A, 0x0F, 0xC1, 0x08, // palignr xmm0, xmm1, 8
			0x0F, 0x28, 0xC1,                   // movaps xmm0, xmm1
			0x66, 0x0F, 0xEF, 0xC0,             // pxor xmm0, xmm0
			0x0F, 0x0F, 0xC1, 0xB4,             // pfmul mm0, mm1
		},
		ExpectedInstructions: 5,
	}
}

// 4. Irregular Immediates - moffs, far pointers, ENTER and imul forms
func irregularImmediates() Benchmark {
	return Benchmark{
		Name:        "irregular_immediates",
		Description: "Immediate sizes that depend on operand and address size",
		Mode:        insts.Mode32,
		Program: []byte{
			0xB8, 0x78, 0x56, 0x34, 0x12,             // mov eax, imm32
			0x66, 0xB8, 0x34, 0x12,                   // mov ax, imm16
			0xA1, 0x01, 0x02, 0x03, 0x04,             // mov eax, [moffs32]
			0xEA, 0x78, 0x56, 0x34, 0x12, 0x08, 0x00, // jmp far ptr16:32
			0xC8, 0x10, 0x00, 0x00,                   // enter 0x10, 0
			0x69, 0xC1, 0x01, 0x02, 0x03, 0x04,       // imul eax, ecx, imm32
			0x6B, 0xC1, 0x05,                         // imul eax, ecx, 5
		},
		ExpectedInstructions: 7,
	}
}

// 5. Real Mode - 16-bit addressing forms
func realMode() Benchmark {
	return Benchmark{
		Name:        "real_mode",
		Description: "16-bit ModRM addressing and 16-bit immediates",
		Mode:        insts.Mode16,
		Program: []byte{
			0xB8, 0x34, 0x12,             // mov ax, imm16
			0x8B, 0x46, 0xFE,             // mov ax, [bp-2]
			0x8B, 0x06, 0x34, 0x12,       // mov ax, [0x1234]
			0x9A, 0x34, 0x12, 0x00, 0x10, // call far ptr16:16
			0xCD, 0x10,                   // int 0x10
			0xC3,                         // ret
		},
		ExpectedInstructions: 6,
	}
}

// 6. NOP Sled - the shortest path through the decoder
func nopSled() Benchmark {
	return Benchmark{
		Name:                 "nop_sled",
		Description:          "256 single-byte NOPs - measures per-instruction overhead",
		Mode:                 insts.Mode64,
		Program:              bytes.Repeat([]byte{0x90}, 256),
		ExpectedInstructions: 256,
	}
}
