// Validate decoder allocations - measures decode throughput and heap use
package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/sarchlab/x86len/insts"
)

func main() {
	decoder := insts.NewDecoder(insts.Mode64)

	// Function prologue, body and epilogue in 64-bit code
	stream := []byte{
		0x55,                                     // push rbp
		0x48, 0x89, 0xE5,                         // mov rbp, rsp
		0x48, 0x83, 0xEC, 0x28,                   // sub rsp, 0x28
		0x8B, 0x84, 0x24, 0x10, 0x01, 0x00, 0x00, // mov eax, [rsp+0x110]
		0x66, 0x0F, 0x1F, 0x44, 0x00, 0x00,       // nop word [rax+rax]
		0xE8, 0x0B, 0x00, 0x00, 0x00,             // call rel32
		0x48, 0x83, 0xC4, 0x28,                   // add rsp, 0x28
		0x5D,                                     // pop rbp
		0xC3,                                     // ret
	}

	// Warm up
	for i := 0; i < 1000; i++ {
		_, _ = decoder.Decode(stream)
	}

	runtime.GC()
	var m1, m2 runtime.MemStats
	runtime.ReadMemStats(&m1)

	start := time.Now()
	iterations := 100000
	totalDecodes := 0

	for i := 0; i < iterations; i++ {
		for off := 0; off < len(stream); {
			n, err := decoder.Decode(stream[off:])
			if err != nil {
				fmt.Printf("decode failed at offset %d: %v\n", off, err)
				return
			}
			off += n
			totalDecodes++
		}
	}

	elapsed := time.Since(start)
	runtime.ReadMemStats(&m2)

	allocations := m2.Mallocs - m1.Mallocs
	allocatedBytes := m2.TotalAlloc - m1.TotalAlloc

	fmt.Printf("Length Decoder Validation Results:\n")
	fmt.Printf("==================================\n")
	fmt.Printf("Total decode operations: %d\n", totalDecodes)
	fmt.Printf("Time elapsed: %v\n", elapsed)
	fmt.Printf("Decodes per second: %.0f\n", float64(totalDecodes)/elapsed.Seconds())
	fmt.Printf("Allocations: %d\n", allocations)
	fmt.Printf("Allocated bytes: %d\n", allocatedBytes)
	fmt.Printf("Allocations per decode: %.3f\n", float64(allocations)/float64(totalDecodes))
	fmt.Printf("Bytes per decode: %.1f\n", float64(allocatedBytes)/float64(totalDecodes))

	if allocations == 0 {
		fmt.Printf("\n✅ SUCCESS: Zero allocations detected.\n")
	} else if float64(allocations)/float64(totalDecodes) < 0.1 {
		fmt.Printf("\n✅ GOOD: Low allocation rate (< 0.1 per decode)\n")
	} else {
		fmt.Printf("\n⚠️  WARNING: High allocation rate detected\n")
	}
}
