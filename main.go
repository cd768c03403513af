// Package main provides the entry point for x86len.
// x86len finds x86 and x86-64 instruction boundaries without disassembling.
//
// For the full CLI, use: go run ./cmd/x86len
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("x86len - x86/x86-64 instruction length decoder")
	fmt.Println("")
	fmt.Println("Usage: x86len [options] <program>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -mode         Processor mode: 16, 32 or 64")
	fmt.Println("  -raw          Treat the input as a flat binary")
	fmt.Println("  -base         Load address of a raw image")
	fmt.Println("  -config       Path to scan configuration JSON file")
	fmt.Println("  -prefix-runs  Consume runs of legacy prefixes")
	fmt.Println("  -imm32        Size F7 /0 immediates as at most 4 bytes")
	fmt.Println("  -max          Stop after this many instructions")
	fmt.Println("  -verify       Cross-check every length against x86asm")
	fmt.Println("  -dump         Dump the decoded breakdown of every instruction")
	fmt.Println("  -cache        Serve lengths through the predecode cache")
	fmt.Println("  -stats        Print predecode cache statistics")
	fmt.Println("  -v            Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/x86len' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/x86len' instead.")
	}
}
