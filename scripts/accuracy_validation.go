// Package main provides accuracy validation for the length decoder.
// Ensures that every decode path and the predecode cache agree, and that
// lengths match x86asm on common code.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"golang.org/x/arch/x86/x86asm"

	"github.com/sarchlab/x86len/insts"
	"github.com/sarchlab/x86len/loader"
	"github.com/sarchlab/x86len/predecode"
)

// testDecodePaths validates that Decode, Inspect and DecodeWindow report
// the same length for random byte sequences.
func testDecodePaths() bool {
	fmt.Println("Testing decode path consistency...")

	rng := rand.New(rand.NewSource(1))
	code := make([]byte, 64)

	for _, mode := range []insts.Mode{insts.Mode16, insts.Mode32, insts.Mode64} {
		decoder := insts.NewDecoder(mode)

		for i := 0; i < 10000; i++ {
			rng.Read(code)

			n, err := decoder.Decode(code)
			if err != nil {
				fmt.Printf("❌ %v: Decode failed: %v\n", mode, err)
				return false
			}

			inst, err := decoder.Inspect(code)
			if err != nil {
				fmt.Printf("❌ %v: Inspect failed: %v\n", mode, err)
				return false
			}

			w, _ := insts.NewWindow(code)
			if inst.Len != n || decoder.DecodeWindow(&w) != n {
				fmt.Printf("❌ %v: length mismatch for % x\n", mode, code[:insts.MaxInstLen])
				fmt.Printf("  Decode():       %d\n", n)
				fmt.Printf("  Inspect():      %d\n", inst.Len)
				fmt.Printf("  DecodeWindow(): %d\n", decoder.DecodeWindow(&w))
				return false
			}

			if n < 1 || n > insts.MaxInstLen {
				fmt.Printf("❌ %v: length %d out of range for % x\n", mode, n, code[:insts.MaxInstLen])
				return false
			}
		}

		fmt.Printf("✅ %v: 10000 random sequences decoded consistently\n", mode)
	}

	return true
}

// testPredecodeCache validates that lengths served by the predecode cache
// match direct decoding, on the first pass and once memoised.
func testPredecodeCache() bool {
	fmt.Println("\nTesting predecode cache accuracy...")

	rng := rand.New(rand.NewSource(2))
	image := make([]byte, 16*1024)
	rng.Read(image)

	prog, err := loader.LoadRaw(image, 0x400000, insts.Mode64)
	if err != nil {
		fmt.Printf("❌ LoadRaw failed: %v\n", err)
		return false
	}

	decoder := insts.NewDecoder(insts.Mode64)
	cache := predecode.New(predecode.DefaultConfig(), decoder, prog)

	for pass := 1; pass <= 2; pass++ {
		for off := 0; off < len(image)-insts.MaxInstLen; off++ {
			want, _ := decoder.Decode(image[off:])

			got, err := cache.Length(0x400000 + uint64(off))
			if err != nil || got != want {
				fmt.Printf("❌ Pass %d: offset %d: cache=%d decoder=%d err=%v\n", pass, off, got, want, err)
				return false
			}
		}

		stats := cache.Stats()
		fmt.Printf("✅ Pass %d: lookups=%d hits=%d misses=%d evictions=%d\n",
			pass, stats.Lookups, stats.Hits, stats.Misses, stats.Evictions)
	}

	return true
}

// testX86asmAgreement validates lengths against x86asm for instructions
// compilers commonly emit.
func testX86asmAgreement() bool {
	fmt.Println("\nTesting agreement with x86asm...")

	decoder := insts.NewDecoder(insts.Mode64,
		insts.WithPrefixRuns(),
		insts.WithSignExtendedImm32(),
	)

	testCases := [][]byte{
		{0x48, 0x83, 0xEC, 0x28},                                     // sub rsp, 0x28
		{0xE8, 0x0B, 0x00, 0x00, 0x00},                               // call rel32
		{0x8B, 0x05, 0x10, 0x00, 0x00, 0x00},                         // mov eax, [rip+0x10]
		{0x64, 0x48, 0x8B, 0x04, 0x25, 0x28, 0x00, 0x00, 0x00},       // mov rax, fs:[0x28]
		{0x48, 0xB8, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, // mov rax, imm64
		{0x0F, 0xB6, 0x45, 0xF8},                                     // movzx eax, byte [rbp-8]
		{0x66, 0x0F, 0x3A, 0x0F, 0xC1, 0x08},                         // palignr xmm0, xmm1, 8
		{0x48, 0xF7, 0xC0, 0x01, 0x02, 0x03, 0x04},                   // test rax, imm32
		{0xC8, 0x10, 0x00, 0x00},                                     // enter 0x10, 0
	}

	for i, code := range testCases {
		want, err := x86asm.Decode(code, 64)
		if err != nil {
			fmt.Printf("❌ Test case %d: x86asm rejects % x: %v\n", i, code, err)
			return false
		}

		got, err := decoder.Decode(code)
		if err != nil || got != want.Len {
			fmt.Printf("❌ Test case %d failed: % x\n", i, code)
			fmt.Printf("  x86asm:  %d (%v)\n", want.Len, want)
			fmt.Printf("  decoder: %d (err %v)\n", got, err)
			return false
		}

		fmt.Printf("✅ Test case %d: %v is %d bytes\n", i, want, got)
	}

	return true
}

func main() {
	fmt.Println("x86len Accuracy Validation")
	fmt.Println("==========================")

	allPassed := true

	if !testDecodePaths() {
		allPassed = false
	}

	if !testPredecodeCache() {
		allPassed = false
	}

	if !testX86asmAgreement() {
		allPassed = false
	}

	fmt.Println("\n==========================")
	if allPassed {
		fmt.Println("🎉 ALL ACCURACY TESTS PASSED")
		os.Exit(0)
	} else {
		fmt.Println("❌ ACCURACY TESTS FAILED")
		os.Exit(1)
	}
}
