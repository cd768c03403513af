package insts

import "fmt"

// MaxInstLen is the architectural maximum length of an x86 instruction.
const MaxInstLen = 15

// Window is a fixed lookahead over the instruction stream. Decoding from a
// Window never reads outside of it.
type Window [MaxInstLen]byte

// NewWindow copies up to MaxInstLen bytes of code into a Window, zero-padding
// the rest. It returns the number of bytes copied.
func NewWindow(code []byte) (Window, int) {
	var w Window
	n := copy(w[:], code)
	return w, n
}

// Instruction describes how the bytes of a single instruction were classified.
type Instruction struct {
	Mode  Mode
	Class OpcodeClass

	// Prefix bytes
	Prefixes    int   // Number of legacy prefix bytes consumed
	LastPrefix  uint8 // Last legacy prefix consumed, 0 if none
	HasREX      bool
	REX         uint8
	FusedWait   bool // 0x9B consumed as part of an x87 instruction
	OperandSize Size
	AddressSize Size

	// Opcode holds the primary opcode (the byte after 0F for escaped opcodes).
	// ThirdByte holds the opcode byte of the 0F 38 and 0F 3A maps.
	Opcode    uint8
	ThirdByte uint8

	// Addressing form
	HasModRM bool
	ModRM    uint8
	HasSIB   bool
	SIB      uint8
	DispSize int // Displacement bytes (0, 1, 2 or 4)

	ImmSize int // Trailing immediate bytes, compound immediates summed

	Len     int  // Decoded length, always in [1, MaxInstLen]
	RawLen  int  // Computed length before clamping
	Clamped bool // true if the computed length exceeded MaxInstLen
}

// Decoder computes x86 instruction lengths for one processor mode.
// A Decoder is immutable and safe for concurrent use.
type Decoder struct {
	mode            Mode
	prefixRuns      bool
	signExtendImm32 bool
}

// DecoderOption is a functional option for configuring the Decoder.
type DecoderOption func(*Decoder)

// WithPrefixRuns makes the decoder consume every consecutive legacy prefix
// instead of only the first one.
func WithPrefixRuns() DecoderOption {
	return func(d *Decoder) {
		d.prefixRuns = true
	}
}

// WithSignExtendedImm32 sizes the immediate of TEST r/m64, imm (REX.W F7 /0)
// as 4 bytes, the way the hardware encodes it, instead of 8.
func WithSignExtendedImm32() DecoderOption {
	return func(d *Decoder) {
		d.signExtendImm32 = true
	}
}

// NewDecoder creates a new x86 length decoder for the given mode.
func NewDecoder(mode Mode, opts ...DecoderOption) *Decoder {
	d := &Decoder{mode: mode}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the processor mode the decoder was built for.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Length decodes the instruction at the start of code in the given mode.
func Length(code []byte, mode Mode) (int, error) {
	return NewDecoder(mode).Decode(code)
}

// Decode returns the length of the instruction at the start of code.
//
// When code holds at least MaxInstLen bytes the call cannot fail for a valid
// mode. Shorter buffers are zero-padded and ErrTruncated is returned if the
// instruction does not fit in them.
func (d *Decoder) Decode(code []byte) (int, error) {
	inst, err := d.Inspect(code)
	if err != nil {
		return 0, err
	}
	return inst.Len, nil
}

// Inspect decodes the instruction at the start of code and returns the full
// classification of its bytes.
func (d *Decoder) Inspect(code []byte) (Instruction, error) {
	if !d.mode.Valid() {
		return Instruction{}, fmt.Errorf("%w: %d", ErrInvalidMode, uint8(d.mode))
	}
	if len(code) == 0 {
		return Instruction{}, ErrEmpty
	}

	w, n := NewWindow(code)
	var inst Instruction
	d.decode(&w, &inst)

	// A clamp decided on zero padding is a truncation too.
	if n < MaxInstLen && inst.RawLen > n {
		return inst, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, inst.RawLen, n)
	}
	return inst, nil
}

// DecodeWindow returns the length of the instruction at the start of w.
// The decoder's mode must be valid.
func (d *Decoder) DecodeWindow(w *Window) int {
	var inst Instruction
	d.decode(w, &inst)
	return inst.Len
}

// InspectWindow is like Inspect on a full lookahead window.
func (d *Decoder) InspectWindow(w *Window) Instruction {
	var inst Instruction
	d.decode(w, &inst)
	return inst
}

// cursor walks a Window. Reads past the end of the window yield zero.
type cursor struct {
	w   *Window
	off int
}

func (c *cursor) peek(n int) byte {
	if c.off+n >= len(c.w) {
		return 0
	}
	return c.w[c.off+n]
}

func (c *cursor) next() byte {
	b := c.peek(0)
	c.off++
	return b
}

func (d *Decoder) decode(w *Window, inst *Instruction) {
	c := cursor{w: w}
	inst.Mode = d.mode

	opOverride, addrOverride := d.scanPrefixes(&c, inst)
	inst.OperandSize = operandSize(d.mode, opOverride)
	inst.AddressSize = addressSize(d.mode, addrOverride)

	if d.mode == Mode64 && c.peek(0)&rexMask == rexPrefix {
		inst.HasREX = true
		inst.REX = c.next()
		if inst.REX&rexW != 0 {
			inst.OperandSize = Size64
		}
	}

	d.scanOpcode(&c, inst)

	if inst.HasModRM {
		d.scanModRM(&c, inst)
	}

	d.sizeImmediate(inst)

	inst.RawLen = c.off + inst.DispSize + inst.ImmSize
	inst.Len = inst.RawLen
	if inst.Len > MaxInstLen {
		inst.Len = 1
		inst.Clamped = true
	}
}

// scanPrefixes consumes legacy prefixes and reports which size overrides
// were seen.
func (d *Decoder) scanPrefixes(c *cursor, inst *Instruction) (opOverride, addrOverride bool) {
	for isLegacyPrefix(c.peek(0)) {
		p := c.next()
		inst.Prefixes++
		inst.LastPrefix = p

		switch p {
		case 0x66:
			opOverride = true
		case 0x67:
			addrOverride = true
		}

		if !d.prefixRuns {
			break
		}
	}
	return opOverride, addrOverride
}

func operandSize(mode Mode, override bool) Size {
	if mode == Mode16 {
		if override {
			return Size32
		}
		return Size16
	}
	if override {
		return Size16
	}
	return Size32
}

func addressSize(mode Mode, override bool) Size {
	switch mode {
	case Mode16:
		if override {
			return Size32
		}
		return Size16
	case Mode64:
		if override {
			return Size32
		}
		return Size64
	}
	if override {
		return Size16
	}
	return Size32
}

// scanOpcode consumes escape and opcode bytes and decides whether a ModRM
// byte follows.
func (d *Decoder) scanOpcode(c *cursor, inst *Instruction) {
	switch b := c.peek(0); {
	case b == 0x0F:
		c.next()
		inst.Class = TwoByte
	case b == 0x9B && isFusedWait(c.peek(1), c.peek(2)):
		c.next()
		inst.FusedWait = true
	}

	inst.Opcode = c.next()

	if inst.Class == OneByte {
		inst.HasModRM = oneByteHasModRM(inst.Opcode)
		return
	}

	inst.HasModRM = twoByteHasModRM(inst.Opcode)
	switch inst.Opcode {
	case 0x38:
		inst.Class = ThreeByte38
		inst.ThirdByte = c.next()
	case 0x3A:
		inst.Class = ThreeByte3A
		inst.ThirdByte = c.next()
	case 0x0F:
		inst.Class = ThreeDNow
	}
}

// scanModRM consumes the ModRM and SIB bytes and sizes the displacement.
func (d *Decoder) scanModRM(c *cursor, inst *Instruction) {
	modrm := c.next()
	inst.ModRM = modrm

	mod := modrm & modMask // bits [7:6]
	rm := modrm & rmMask   // bits [2:0]
	addr16 := inst.AddressSize == Size16

	switch {
	case mod == 0x00 && rm == 5 && !addr16:
		inst.DispSize = 4 // disp32 (RIP-relative in 64-bit mode)
	case mod == 0x00 && rm == 6 && addr16:
		inst.DispSize = 2
	case mod == 0x40:
		inst.DispSize = 1
	case mod == 0x80 && addr16:
		inst.DispSize = 2
	case mod == 0x80:
		inst.DispSize = 4
	}

	if !addr16 && mod != modMask && rm == 4 {
		inst.HasSIB = true
		inst.SIB = c.next()
		if mod == 0x00 && inst.SIB&baseMask == 5 {
			inst.DispSize += 4
		}
	}
}

func (d *Decoder) sizeImmediate(inst *Instruction) {
	op := inst.Opcode
	opBytes := inst.OperandSize.Bytes()

	switch inst.Class {
	case OneByte:
		imm := 0
		if oneByteImm8(op, inst.ModRM) {
			imm++
		}
		if oneByteImm16(op) {
			imm += 2
		}
		if oneByteImm16or32(op) {
			imm += min(opBytes, 4)
		}
		if isMovImmReg(op) {
			imm += opBytes
		}
		if testImm(op, inst.ModRM) {
			if d.signExtendImm32 {
				imm += min(opBytes, 4)
			} else {
				imm += opBytes
			}
		}
		if isMoffs(op) {
			imm += inst.AddressSize.Bytes()
		}
		if isFarPointer(op) {
			imm += 2 + min(opBytes, 4)
		}
		if op == 0xC8 {
			imm += 3
		}
		inst.ImmSize = imm

	case TwoByte:
		if twoByteImm8(op) {
			inst.ImmSize = 1
		}
		if twoByteImm16or32(op) {
			inst.ImmSize = min(opBytes, 4)
		}

	case ThreeByte3A:
		inst.ImmSize = 1

	case ThreeDNow:
		// The opcode suffix byte trails the operands like an imm8.
		inst.ImmSize = 1
	}
}
