// Package main provides the entry point for x86len.
// x86len prints the instruction boundaries of x86 and x86-64 code.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"golang.org/x/arch/x86/x86asm"

	"github.com/sarchlab/x86len/insts"
	"github.com/sarchlab/x86len/loader"
	"github.com/sarchlab/x86len/predecode"
	"github.com/sarchlab/x86len/scan"
)

var (
	modeFlag   = flag.String("mode", "", "Processor mode: 16, 32 or 64 (default: from the ELF header, 64 for raw images)")
	raw        = flag.Bool("raw", false, "Treat the input as a flat binary instead of an ELF file")
	baseFlag   = flag.String("base", "0", "Load address of a raw image")
	configPath = flag.String("config", "", "Path to scan configuration JSON file")
	prefixRuns = flag.Bool("prefix-runs", false, "Consume runs of legacy prefixes")
	imm32      = flag.Bool("imm32", false, "Size F7 /0 immediates as at most 4 bytes")
	maxInsts   = flag.Int("max", 0, "Stop after this many instructions (0: no limit)")
	verify     = flag.Bool("verify", false, "Cross-check every length against x86asm")
	dump       = flag.Bool("dump", false, "Dump the decoded breakdown of every instruction")
	useCache   = flag.Bool("cache", false, "Serve lengths through the predecode cache")
	showStats  = flag.Bool("stats", false, "Print predecode cache statistics (with -cache)")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: x86len [options] <program>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	config, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading scan config: %v\n", err)
		os.Exit(1)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := newLogger(os.Stderr, level)

	prog, err := loadProgram(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	logger.Debug().
		Str("mode", prog.Mode.String()).
		Str("entry", fmt.Sprintf("0x%X", prog.EntryPoint)).
		Int("segments", len(prog.Segments)).
		Int("executable", len(prog.Text())).
		Msgf("loaded %s", flag.Arg(0))

	r := &runner{
		config:  config,
		prog:    prog,
		decoder: config.NewDecoder(prog.Mode),
		verify:  *verify,
		dump:    *dump,
		out:     os.Stdout,
		logger:  logger,
	}
	if *useCache {
		r.cache = predecode.New(config.Predecode, r.decoder, prog)
	}

	report, err := r.run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error scanning program: %v\n", err)
		os.Exit(1)
	}

	logger.Debug().
		Int("instructions", report.Instructions).
		Int("bytes", report.Bytes).
		Int("clamped", report.Clamped).
		Msg("scan complete")

	if *showStats && r.cache != nil {
		printStats(os.Stdout, r.cache.Stats())
	}

	if report.Mismatches > 0 {
		logger.Error().Int("mismatches", report.Mismatches).Msg("length mismatches against x86asm")
		os.Exit(1)
	}
}

// newLogger returns a console logger writing to w at the given level.
func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}

	cw.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s |", i)
	}

	return zerolog.New(cw).Level(level).
		With().Timestamp().Str("component", "x86len").Logger()
}

// buildConfig loads the config file, if any, and applies flag overrides.
func buildConfig() (*scan.Config, error) {
	config := scan.DefaultConfig()
	if *configPath != "" {
		var err error
		config, err = scan.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
	}

	if *modeFlag != "" {
		mode, err := insts.ParseMode(*modeFlag)
		if err != nil {
			return nil, err
		}
		config.Mode = mode
	}
	if *prefixRuns {
		config.PrefixRuns = true
	}
	if *imm32 {
		config.SignExtendedImm32 = true
	}
	if *maxInsts != 0 {
		config.MaxInstructions = *maxInsts
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan config: %w", err)
	}
	return config, nil
}

func loadProgram(path string) (*loader.Program, error) {
	if !*raw {
		return loader.Load(path)
	}

	base, err := strconv.ParseUint(*baseFlag, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid base address %q: %w", *baseFlag, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw image: %w", err)
	}

	// Raw images carry no mode; -mode or the config decides, else 64-bit.
	return loader.LoadRaw(data, base, insts.Mode64)
}

// report summarises a scan.
type report struct {
	Instructions int
	Bytes        int
	Clamped      int
	Mismatches   int
}

// runner prints the boundaries of a program.
type runner struct {
	config  *scan.Config
	prog    *loader.Program
	decoder *insts.Decoder
	cache   *predecode.Cache

	verify bool
	dump   bool

	out    io.Writer
	logger zerolog.Logger
}

func (r *runner) run() (report, error) {
	var rep report

	visit := r.config.Limit(func(b scan.Boundary) error {
		rep.Instructions++
		rep.Bytes += b.Len
		if b.Clamped {
			rep.Clamped++
		}
		return r.print(b, &rep)
	})

	var err error
	if r.cache != nil {
		err = scan.WalkCached(r.prog, r.cache, visit)
	} else {
		err = scan.WalkProgram(r.prog, r.decoder, visit)
	}
	return rep, err
}

func (r *runner) print(b scan.Boundary, rep *report) error {
	code := r.prog.Read(b.Addr, b.Len)

	line := fmt.Sprintf("0x%08x  %2d  %s", b.Addr, b.Len, hex.EncodeToString(code))
	if b.Clamped {
		line += "  (clamped)"
	}

	if r.verify {
		window := r.prog.Read(b.Addr, insts.MaxInstLen)
		inst, err := x86asm.Decode(window, r.decoder.Mode().Bits())
		switch {
		case err != nil:
			r.logger.Debug().Err(err).Msgf("x86asm rejects 0x%x", b.Addr)
			line += "  [x86asm: " + err.Error() + "]"
		case inst.Len != b.Len:
			rep.Mismatches++
			line += fmt.Sprintf("  [MISMATCH x86asm=%d %v]", inst.Len, inst)
		}
	}

	if _, err := fmt.Fprintln(r.out, line); err != nil {
		return err
	}

	if r.dump {
		window := r.prog.Read(b.Addr, insts.MaxInstLen)
		inst, err := r.decoder.Inspect(window)
		if err != nil {
			return err
		}
		spew.Fdump(r.out, inst)
	}
	return nil
}

func printStats(w io.Writer, stats predecode.Statistics) {
	fmt.Fprintf(w, "\nPredecode cache:\n")
	fmt.Fprintf(w, "  Lookups:   %d\n", stats.Lookups)
	fmt.Fprintf(w, "  Hits:      %d (%.1f%%)\n", stats.Hits, 100*stats.HitRate())
	fmt.Fprintf(w, "  Misses:    %d\n", stats.Misses)
	fmt.Fprintf(w, "  Evictions: %d\n", stats.Evictions)
}
