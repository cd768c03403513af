package scan

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/x86len/insts"
	"github.com/sarchlab/x86len/predecode"
)

// Config holds the settings of a scan run.
type Config struct {
	// Mode is the processor mode to decode in. Zero means the mode of the
	// input: the ELF machine type, or 64-bit for raw images.
	Mode insts.Mode `json:"mode"`

	// PrefixRuns lets the decoder consume runs of legacy prefixes instead
	// of a single one. Default: false.
	PrefixRuns bool `json:"prefix_runs"`

	// SignExtendedImm32 sizes F7 /0 TEST immediates as at most 4 bytes.
	// Default: false (REX.W selects an 8-byte immediate).
	SignExtendedImm32 bool `json:"sign_extended_imm32"`

	// MaxInstructions stops the scan after this many instructions.
	// Default: 0 (unlimited).
	MaxInstructions int `json:"max_instructions"`

	// Predecode is the geometry of the instruction-length cache.
	Predecode predecode.Config `json:"predecode"`
}

// DefaultConfig returns a Config matching the decoder defaults.
func DefaultConfig() *Config {
	return &Config{
		Predecode: predecode.DefaultConfig(),
	}
}

// LoadConfig loads a Config from a JSON file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse scan config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize scan config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write scan config file: %w", err)
	}

	return nil
}

// Validate checks the config for values the decoder cannot use.
func (c *Config) Validate() error {
	if c.Mode != 0 && !c.Mode.Valid() {
		return fmt.Errorf("mode must be 0, 16, 32 or 64, got %d", uint8(c.Mode))
	}
	if c.MaxInstructions < 0 {
		return fmt.Errorf("max_instructions must be >= 0")
	}
	if err := c.Predecode.Validate(); err != nil {
		return fmt.Errorf("predecode: %w", err)
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	return &Config{
		Mode:              c.Mode,
		PrefixRuns:        c.PrefixRuns,
		SignExtendedImm32: c.SignExtendedImm32,
		MaxInstructions:   c.MaxInstructions,
		Predecode:         c.Predecode,
	}
}

// DecodeMode resolves the mode to decode in when the input suggests
// inputMode.
func (c *Config) DecodeMode(inputMode insts.Mode) insts.Mode {
	if c.Mode != 0 {
		return c.Mode
	}
	if inputMode != 0 {
		return inputMode
	}
	return insts.Mode64
}

// NewDecoder builds the decoder the config describes for input in
// inputMode. Pass zero when the input carries no mode.
func (c *Config) NewDecoder(inputMode insts.Mode) *insts.Decoder {
	var opts []insts.DecoderOption
	if c.PrefixRuns {
		opts = append(opts, insts.WithPrefixRuns())
	}
	if c.SignExtendedImm32 {
		opts = append(opts, insts.WithSignExtendedImm32())
	}
	return insts.NewDecoder(c.DecodeMode(inputMode), opts...)
}

// Limit wraps fn so the walk stops after MaxInstructions boundaries.
func (c *Config) Limit(fn WalkFunc) WalkFunc {
	if c.MaxInstructions == 0 {
		return fn
	}

	seen := 0
	return func(b Boundary) error {
		if seen == c.MaxInstructions {
			return ErrStop
		}
		seen++
		return fn(b)
	}
}
