package loader_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/x86len/insts"
	"github.com/sarchlab/x86len/loader"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with a valid x86-64 ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				writeELF64(elfPath, elf.EM_X86_64, 0x401000, testSegment{
					vaddr: 0x401000,
					flags: elf.PF_R | elf.PF_X,
					data: []byte{
						0xB8, 0x2A, 0x00, 0x00, 0x00, // mov eax, 42
						0xC3,                         // ret
					},
				})
			})

			It("should load without error", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog).NotTo(BeNil())
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint64(0x401000)))
			})

			It("should select 64-bit mode", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Mode).To(Equal(insts.Mode64))
			})

			It("should load the code segment", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments).To(HaveLen(1))
				Expect(prog.Segments[0].Data).To(Equal([]byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}))
			})
		})

		Context("with a valid i386 ELF binary", func() {
			It("should select 32-bit mode", func() {
				elfPath := filepath.Join(tempDir, "i386.elf")
				writeELF32(elfPath, elf.EM_386, 0x8048000, testSegment{
					vaddr: 0x8048000,
					flags: elf.PF_R | elf.PF_X,
					data: []byte{
						0x55,       // push ebp
						0x89, 0xE5, // mov ebp, esp
						0xC3,       // ret
					},
				})

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Mode).To(Equal(insts.Mode32))
				Expect(prog.EntryPoint).To(Equal(uint64(0x8048000)))
				Expect(prog.Segments).To(HaveLen(1))
				Expect(prog.Segments[0].VirtAddr).To(Equal(uint64(0x8048000)))
				Expect(prog.Segments[0].Data).To(HaveLen(4))
			})
		})

		Context("with an x32 ELF binary", func() {
			It("should select 64-bit mode from the machine type", func() {
				elfPath := filepath.Join(tempDir, "x32.elf")
				writeELF32(elfPath, elf.EM_X86_64, 0x400000, testSegment{
					vaddr: 0x400000,
					flags: elf.PF_R | elf.PF_X,
					data:  []byte{0xC3},
				})

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Mode).To(Equal(insts.Mode64))
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				notElfPath := filepath.Join(tempDir, "not-elf.bin")
				err := os.WriteFile(notElfPath, []byte("not an elf file"), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(notElfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ELF"))
			})

			It("should return error for empty file", func() {
				emptyPath := filepath.Join(tempDir, "empty.elf")
				err := os.WriteFile(emptyPath, []byte{}, 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(emptyPath)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with non-x86 ELF", func() {
			It("should return error for AArch64 ELF", func() {
				elfPath := filepath.Join(tempDir, "arm64.elf")
				writeELF64(elfPath, elf.EM_AARCH64, 0)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not an x86"))
			})
		})
	})

	Describe("LoadReader", func() {
		It("should parse an in-memory image", func() {
			image := buildELF64(elf.EM_X86_64, 0x1000, testSegment{
				vaddr: 0x1000,
				flags: elf.PF_R | elf.PF_X,
				data:  []byte{0x90, 0xC3},
			})

			prog, err := loader.LoadReader(bytes.NewReader(image))
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Mode).To(Equal(insts.Mode64))
			Expect(prog.Read(0x1000, 2)).To(Equal([]byte{0x90, 0xC3}))
		})

		It("should wrap parse failures", func() {
			_, err := loader.LoadReader(bytes.NewReader([]byte("garbage")))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to parse ELF image"))
		})
	})

	Describe("LoadRaw", func() {
		It("should wrap a flat image as one executable segment", func() {
			prog, err := loader.LoadRaw([]byte{0x66, 0x90}, 0x7C00, insts.Mode16)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Mode).To(Equal(insts.Mode16))
			Expect(prog.EntryPoint).To(Equal(uint64(0x7C00)))
			Expect(prog.Text()).To(HaveLen(1))
			Expect(prog.Text()[0].MemSize).To(Equal(uint64(2)))
		})

		It("should reject an invalid mode", func() {
			_, err := loader.LoadRaw([]byte{0x90}, 0, insts.Mode(8))
			Expect(errors.Is(err, insts.ErrInvalidMode)).To(BeTrue())
		})
	})

	Describe("Segment", func() {
		It("should correctly report permissions", func() {
			elfPath := filepath.Join(tempDir, "perms.elf")
			writeELF64(elfPath, elf.EM_X86_64, 0x400000, testSegment{
				vaddr: 0x400000,
				flags: elf.PF_R | elf.PF_X,
				data:  []byte{0xC3},
			})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			seg := prog.Segments[0]
			Expect(seg.Flags & loader.SegmentFlagRead).NotTo(BeZero())
			Expect(seg.Flags & loader.SegmentFlagExecute).NotTo(BeZero())
			Expect(seg.Flags & loader.SegmentFlagWrite).To(BeZero())
			Expect(seg.Executable()).To(BeTrue())
		})

		It("should report the addresses it contains", func() {
			seg := loader.Segment{VirtAddr: 0x1000, MemSize: 0x10}
			Expect(seg.Contains(0x1000)).To(BeTrue())
			Expect(seg.Contains(0x100F)).To(BeTrue())
			Expect(seg.Contains(0x1010)).To(BeFalse())
			Expect(seg.Contains(0x0FFF)).To(BeFalse())
		})
	})

	Describe("Multi-segment ELFs", func() {
		var prog *loader.Program

		BeforeEach(func() {
			elfPath := filepath.Join(tempDir, "multi.elf")
			writeELF64(elfPath, elf.EM_X86_64, 0x400000,
				testSegment{
					vaddr: 0x400000,
					flags: elf.PF_R | elf.PF_X,
					data:  []byte{0x31, 0xC0, 0xC3}, // xor eax, eax; ret
				},
				testSegment{
					vaddr: 0x600000,
					flags: elf.PF_R | elf.PF_W,
					data:  []byte{0xDE, 0xAD, 0xBE, 0xEF},
				},
			)

			var err error
			prog, err = loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should load multiple PT_LOAD segments", func() {
			Expect(prog.Segments).To(HaveLen(2))
			Expect(prog.Segments[1].VirtAddr).To(Equal(uint64(0x600000)))
			Expect(prog.Segments[1].Data).To(Equal([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
		})

		It("should return only executable segments as text", func() {
			text := prog.Text()
			Expect(text).To(HaveLen(1))
			Expect(text[0].VirtAddr).To(Equal(uint64(0x400000)))
		})

		It("should find the segment holding an address", func() {
			seg, ok := prog.SegmentAt(0x600002)
			Expect(ok).To(BeTrue())
			Expect(seg.VirtAddr).To(Equal(uint64(0x600000)))

			_, ok = prog.SegmentAt(0x500000)
			Expect(ok).To(BeFalse())
		})

		It("should zero-fill reads past the end of a segment", func() {
			Expect(prog.Read(0x400001, 4)).To(Equal([]byte{0xC0, 0xC3, 0x00, 0x00}))
		})
	})

	Describe("BSS segments", func() {
		It("should read BSS bytes as zero", func() {
			elfPath := filepath.Join(tempDir, "bss.elf")
			writeELF64(elfPath, elf.EM_X86_64, 0x400000, testSegment{
				vaddr: 0x600000,
				flags: elf.PF_R | elf.PF_W,
				data:  []byte{0x01, 0x02},
				memsz: 0x100,
			})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments[0].Data).To(HaveLen(2))
			Expect(prog.Segments[0].MemSize).To(Equal(uint64(0x100)))
			Expect(prog.Read(0x600000, 4)).To(Equal([]byte{0x01, 0x02, 0x00, 0x00}))
		})
	})

	Describe("Zero Filesz segments", func() {
		It("should handle segments with zero file size", func() {
			elfPath := filepath.Join(tempDir, "zero.elf")
			writeELF64(elfPath, elf.EM_X86_64, 0x400000, testSegment{
				vaddr: 0x600000,
				flags: elf.PF_R | elf.PF_W,
				memsz: 0x1000,
			})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(1))
			Expect(prog.Segments[0].Data).To(BeEmpty())
			Expect(prog.Segments[0].MemSize).To(Equal(uint64(0x1000)))
		})
	})

	Describe("ELFs with no loadable segments", func() {
		It("should return empty segments list for ELF with no PT_LOAD", func() {
			elfPath := filepath.Join(tempDir, "noload.elf")
			writeELF64(elfPath, elf.EM_X86_64, 0x400000, testSegment{
				ptype: elf.PT_NOTE,
				flags: elf.PF_R,
			})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(BeEmpty())
			Expect(prog.Text()).To(BeEmpty())
		})
	})
})

// testSegment describes one program header of a generated ELF file.
type testSegment struct {
	ptype elf.ProgType
	flags elf.ProgFlag
	vaddr uint64
	data  []byte
	memsz uint64
}

func (s testSegment) progType() uint32 {
	if s.ptype == 0 {
		return uint32(elf.PT_LOAD)
	}
	return uint32(s.ptype)
}

func (s testSegment) memSize() uint64 {
	if s.memsz == 0 {
		return uint64(len(s.data))
	}
	return s.memsz
}

// buildELF64 creates a minimal little-endian ELF64 executable image.
func buildELF64(machine elf.Machine, entryPoint uint64, segs ...testSegment) []byte {
	const ehsize, phentsize = 64, 56

	elfHeader := make([]byte, ehsize)
	copy(elfHeader[0:4], []byte{0x7f, 'E', 'L', 'F'})
	elfHeader[4] = 2                                                 // 64-bit
	elfHeader[5] = 1                                                 // little endian
	elfHeader[6] = 1                                                 // version
	binary.LittleEndian.PutUint16(elfHeader[16:18], 2)               // executable
	binary.LittleEndian.PutUint16(elfHeader[18:20], uint16(machine)) // machine
	binary.LittleEndian.PutUint32(elfHeader[20:24], 1)               // version
	binary.LittleEndian.PutUint64(elfHeader[24:32], entryPoint)
	binary.LittleEndian.PutUint64(elfHeader[32:40], ehsize) // phoff
	binary.LittleEndian.PutUint16(elfHeader[52:54], ehsize) // ehsize
	binary.LittleEndian.PutUint16(elfHeader[54:56], phentsize)
	binary.LittleEndian.PutUint16(elfHeader[56:58], uint16(len(segs))) // phnum

	var buf bytes.Buffer
	buf.Write(elfHeader)

	offset := uint64(ehsize + phentsize*len(segs))
	for _, seg := range segs {
		progHeader := make([]byte, phentsize)
		binary.LittleEndian.PutUint32(progHeader[0:4], seg.progType())
		binary.LittleEndian.PutUint32(progHeader[4:8], uint32(seg.flags))
		binary.LittleEndian.PutUint64(progHeader[8:16], offset)
		binary.LittleEndian.PutUint64(progHeader[16:24], seg.vaddr)             // vaddr
		binary.LittleEndian.PutUint64(progHeader[24:32], seg.vaddr)             // paddr
		binary.LittleEndian.PutUint64(progHeader[32:40], uint64(len(seg.data))) // filesz
		binary.LittleEndian.PutUint64(progHeader[40:48], seg.memSize())         // memsz
		binary.LittleEndian.PutUint64(progHeader[48:56], 0x1000)                // align
		buf.Write(progHeader)
		offset += uint64(len(seg.data))
	}

	for _, seg := range segs {
		buf.Write(seg.data)
	}

	return buf.Bytes()
}

// buildELF32 creates a minimal little-endian ELF32 executable image.
func buildELF32(machine elf.Machine, entryPoint uint32, segs ...testSegment) []byte {
	const ehsize, phentsize = 52, 32

	elfHeader := make([]byte, ehsize)
	copy(elfHeader[0:4], []byte{0x7f, 'E', 'L', 'F'})
	elfHeader[4] = 1                                                 // 32-bit
	elfHeader[5] = 1                                                 // little endian
	elfHeader[6] = 1                                                 // version
	binary.LittleEndian.PutUint16(elfHeader[16:18], 2)               // executable
	binary.LittleEndian.PutUint16(elfHeader[18:20], uint16(machine)) // machine
	binary.LittleEndian.PutUint32(elfHeader[20:24], 1)               // version
	binary.LittleEndian.PutUint32(elfHeader[24:28], entryPoint)
	binary.LittleEndian.PutUint32(elfHeader[28:32], ehsize) // phoff
	binary.LittleEndian.PutUint16(elfHeader[40:42], ehsize) // ehsize
	binary.LittleEndian.PutUint16(elfHeader[42:44], phentsize)
	binary.LittleEndian.PutUint16(elfHeader[44:46], uint16(len(segs))) // phnum

	var buf bytes.Buffer
	buf.Write(elfHeader)

	offset := uint32(ehsize + phentsize*len(segs))
	for _, seg := range segs {
		progHeader := make([]byte, phentsize)
		binary.LittleEndian.PutUint32(progHeader[0:4], seg.progType())
		binary.LittleEndian.PutUint32(progHeader[4:8], offset)
		binary.LittleEndian.PutUint32(progHeader[8:12], uint32(seg.vaddr))      // vaddr
		binary.LittleEndian.PutUint32(progHeader[12:16], uint32(seg.vaddr))     // paddr
		binary.LittleEndian.PutUint32(progHeader[16:20], uint32(len(seg.data))) // filesz
		binary.LittleEndian.PutUint32(progHeader[20:24], uint32(seg.memSize())) // memsz
		binary.LittleEndian.PutUint32(progHeader[24:28], uint32(seg.flags))     // flags
		binary.LittleEndian.PutUint32(progHeader[28:32], 0x1000)                // align
		buf.Write(progHeader)
		offset += uint32(len(seg.data))
	}

	for _, seg := range segs {
		buf.Write(seg.data)
	}

	return buf.Bytes()
}

func writeELF64(path string, machine elf.Machine, entryPoint uint64, segs ...testSegment) {
	Expect(os.WriteFile(path, buildELF64(machine, entryPoint, segs...), 0644)).To(Succeed())
}

func writeELF32(path string, machine elf.Machine, entryPoint uint32, segs ...testSegment) {
	Expect(os.WriteFile(path, buildELF32(machine, entryPoint, segs...), 0644)).To(Succeed())
}
