// Entry point: parse the command line, wire up the console drivers and
// the CP/M emulation object, load the program, and run it.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/hjkit/avwohl-cpmemu/config"
	"github.com/hjkit/avwohl-cpmemu/consolein"
	"github.com/hjkit/avwohl-cpmemu/consoleout"
	"github.com/hjkit/avwohl-cpmemu/cpm"
	"github.com/hjkit/avwohl-cpmemu/cpu"
	"github.com/hjkit/avwohl-cpmemu/host"
	"github.com/hjkit/avwohl-cpmemu/version"
)

// options holds the parsed command-line switches.
type options struct {
	mode8080  bool
	progress  int64
	saveFile  string
	saveStart uint16
	saveEnd   uint16
	intCycles uint64
	intRST    uint8
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <program.com|config.cfg> [args...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	fmt.Fprintf(os.Stderr, "  --8080              Run in 8080 mode\n")
	fmt.Fprintf(os.Stderr, "  --z80               Run in Z80 mode (default)\n")
	fmt.Fprintf(os.Stderr, "  --progress[=N]      Report progress every N million instructions\n")
	fmt.Fprintf(os.Stderr, "  --save-memory=FILE  Save memory to FILE on exit\n")
	fmt.Fprintf(os.Stderr, "  --save-range=S-E    Save only range S to E (hex, e.g., DC00-FFFF)\n")
	fmt.Fprintf(os.Stderr, "  --int-cycles=N      Trigger a timer interrupt every N cycles\n")
	fmt.Fprintf(os.Stderr, "  --int-rst=N         RST number for the timer interrupt (0-7)\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "Environment variables:\n")
	fmt.Fprintf(os.Stderr, "  CPM_PROGRESS, CPM_PRINTER, CPM_AUX_IN, CPM_AUX_OUT,\n")
	fmt.Fprintf(os.Stderr, "  CPM_BIOS_DISK (ok|fail|error), CPM_DEBUG_BDOS, CPM_DEBUG_BIOS\n")
}

// parseOptions consumes leading switches and returns them along with
// the remaining arguments.
func parseOptions(args []string) (options, []string, error) {
	opts := options{intRST: 7}

	i := 0
	for i < len(args) && strings.HasPrefix(args[i], "-") {
		arg := args[i]
		switch {
		case arg == "--8080":
			opts.mode8080 = true
		case arg == "--z80":
			opts.mode8080 = false
		case arg == "--progress":
			opts.progress = 100 * 1000000
		case strings.HasPrefix(arg, "--progress="):
			n, err := strconv.ParseInt(arg[len("--progress="):], 10, 64)
			if err != nil {
				return opts, nil, fmt.Errorf("invalid --progress value: %s", arg)
			}
			opts.progress = n * 1000000
		case strings.HasPrefix(arg, "--save-memory="):
			opts.saveFile = arg[len("--save-memory="):]
		case strings.HasPrefix(arg, "--save-range="):
			var start, end uint32
			_, err := fmt.Sscanf(arg[len("--save-range="):], "%x-%x", &start, &end)
			if err != nil {
				return opts, nil, fmt.Errorf("invalid --save-range value: %s", arg)
			}
			opts.saveStart = uint16(start)
			opts.saveEnd = uint16(end)
		case strings.HasPrefix(arg, "--int-cycles="):
			n, err := strconv.ParseUint(arg[len("--int-cycles="):], 10, 64)
			if err != nil {
				return opts, nil, fmt.Errorf("invalid --int-cycles value: %s", arg)
			}
			opts.intCycles = n
		case strings.HasPrefix(arg, "--int-rst="):
			n, err := strconv.Atoi(arg[len("--int-rst="):])
			if err != nil {
				return opts, nil, fmt.Errorf("invalid --int-rst value: %s", arg)
			}
			opts.intRST = uint8(n) & 7
		default:
			// Unknown option: assume the program starts here.
			return opts, args[i:], nil
		}
		i++
	}

	return opts, args[i:], nil
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 1
	}

	if os.Args[1] == "--version" {
		fmt.Print(version.GetVersionBanner())
		return 0
	}

	opts, rest, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	if len(rest) < 1 {
		fmt.Fprintf(os.Stderr, "Error: No program specified\n")
		usage()
		return 1
	}

	// Logging: warnings and higher by default, everything when
	// $DEBUG is set.
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	if os.Getenv("DEBUG") != "" {
		lvl.Set(slog.LevelDebug)
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))

	// Console devices.
	input, err := consolein.New("stty")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating console input: %s\n", err)
		return 1
	}
	output, err := consoleout.New("ansi")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating console output: %s\n", err)
		return 1
	}

	machine := cpm.New(log, input, output)

	if opts.mode8080 {
		machine.SetMode(cpu.Mode8080)
		fmt.Fprintf(os.Stderr, "CPU mode: 8080\n")
	} else {
		fmt.Fprintf(os.Stderr, "CPU mode: Z80\n")
	}

	machine.ProgressEvery = opts.progress
	machine.IntCycles = opts.intCycles
	machine.IntRST = opts.intRST
	if opts.saveFile != "" {
		machine.SetSaveMemory(opts.saveFile, opts.saveStart, opts.saveEnd)
	}

	// The first argument is either the program or a config file
	// which names the program.
	program := rest[0]
	args := rest[1:]

	if strings.HasSuffix(program, ".cfg") {
		cfg, err := config.Load(program, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			return 1
		}

		if cfg.Chdir != "" {
			if err := host.ChangeDirectory(cfg.Chdir); err != nil {
				fmt.Fprintf(os.Stderr, "Cannot change directory to '%s': %s\n", cfg.Chdir, err)
			}
		}
		if cfg.Debug {
			lvl.Set(slog.LevelDebug)
		}

		machine.SetDefaultMode(cfg.DefaultMode, cfg.EOLConvert)
		for _, m := range cfg.Mappings {
			machine.AddMapping(m.Pattern, m.Path, cpmMode(m.Mode), m.EOLConvert)
		}
		if cfg.Printer != "" {
			machine.SetPrinterFile(cfg.Printer)
		}
		if cfg.AuxInput != "" {
			machine.SetAuxInputFile(cfg.AuxInput)
		}
		if cfg.AuxOutput != "" {
			machine.SetAuxOutputFile(cfg.AuxOutput)
		}

		if cfg.Program == "" {
			fmt.Fprintf(os.Stderr, "No 'program' directive in config file\n")
			return 1
		}
		program = cfg.Program
	}

	applyEnvironment(machine)

	machine.SetupMemory()

	if err := machine.LoadBinary(program); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}

	machine.SetupCommandLine(args)

	// Raw terminal mode is entered once here and restored on every
	// exit path below.
	if err := input.Setup(); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up console: %s\n", err)
		return 1
	}

	err = machine.Execute()

	// Orderly teardown happens whatever the outcome: memory save,
	// terminal restore, device flush.
	machine.SaveMemory()
	machine.CloseDevices()
	_ = input.TearDown()

	switch {
	case err == nil || errors.Is(err, cpm.ErrExit):
		return 0
	case errors.Is(err, cpm.ErrHalt):
		return 0
	case errors.Is(err, cpm.ErrInstructionLimit):
		return 0
	case errors.Is(err, cpm.ErrBiosDisk):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "Error running %s: %s\n", program, err)
		return 1
	}
}

// cpmMode converts a config mode string into the emulator's mode type.
func cpmMode(s string) cpm.FileMode {
	switch s {
	case "text":
		return cpm.ModeText
	case "binary":
		return cpm.ModeBinary
	}
	return cpm.ModeAuto
}

// applyEnvironment applies the CPM_* environment variables.
func applyEnvironment(machine *cpm.CPM) {
	if v := os.Getenv("CPM_PROGRESS"); v != "" && machine.ProgressEvery == 0 {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			machine.ProgressEvery = n * 1000000
		}
	}

	if v := os.Getenv("CPM_PRINTER"); v != "" {
		machine.SetPrinterFile(v)
	}
	if v := os.Getenv("CPM_AUX_IN"); v != "" {
		machine.SetAuxInputFile(v)
	}
	if v := os.Getenv("CPM_AUX_OUT"); v != "" {
		machine.SetAuxOutputFile(v)
	}

	switch strings.ToLower(os.Getenv("CPM_BIOS_DISK")) {
	case "":
	case "ok":
		machine.BIOSDiskMode = cpm.DiskOK
	case "fail":
		machine.BIOSDiskMode = cpm.DiskFail
	case "error":
		machine.BIOSDiskMode = cpm.DiskError
	default:
		fmt.Fprintf(os.Stderr, "Warning: Invalid CPM_BIOS_DISK value (use ok, fail, or error)\n")
	}

	for _, item := range strings.Split(os.Getenv("CPM_DEBUG_BDOS"), ",") {
		if item == "" {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(item)); err == nil {
			machine.DebugBDOS[n] = true
		}
	}
	for _, item := range strings.Split(os.Getenv("CPM_DEBUG_BIOS"), ",") {
		if item == "" {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(item)); err == nil {
			machine.DebugBIOS[n] = true
		}
	}
}
