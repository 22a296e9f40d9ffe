// Package cpm is the main package of the emulator: it owns the memory
// layout CP/M programs expect, traps execution reaching the BDOS and
// BIOS entry points, and dispatches those calls to handlers which
// translate them into host operations.
package cpm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hjkit/avwohl-cpmemu/consolein"
	"github.com/hjkit/avwohl-cpmemu/consoleout"
	"github.com/hjkit/avwohl-cpmemu/cpu"
	"github.com/hjkit/avwohl-cpmemu/fcb"
	"github.com/hjkit/avwohl-cpmemu/host"
	"github.com/hjkit/avwohl-cpmemu/memory"
)

var (
	// ErrExit is returned for every orderly termination: BDOS
	// function 0, BIOS WBOOT, a jump to address zero, or five
	// consecutive Ctrl-C presses on the console.
	ErrExit = errors.New("EXIT")

	// ErrHalt notes that the CPU executed a HALT instruction, which
	// terminates execution with a register dump.
	ErrHalt = errors.New("HALT")

	// ErrBiosDisk is returned when a BIOS disk primitive is invoked
	// while the disk mode is DiskError; the emulator cannot satisfy
	// real sector I/O.
	ErrBiosDisk = errors.New("BIOS DISK")

	// ErrInstructionLimit is returned when the run-away safety
	// ceiling on executed instructions is reached.
	ErrInstructionLimit = errors.New("INSTRUCTION LIMIT")
)

// CP/M memory layout constants.
const (
	// TPAStart is where .COM binaries load and start.
	TPAStart = 0x0100

	// IOByteAddr holds the IOBYTE.
	IOByteAddr = 0x0003

	// DrvUserAddr holds the packed user number and current drive.
	DrvUserAddr = 0x0004

	// BDOSEntry is the JP to the BDOS, the CP/M system-call gate.
	BDOSEntry = 0x0005

	// DefaultFCB and DefaultFCB2 are the two FCBs the CCP would
	// prepare from the command line.
	DefaultFCB  = 0x005C
	DefaultFCB2 = 0x006C

	// DefaultDMA is the default 128-byte record buffer, shared with
	// the command tail at startup.
	DefaultDMA = 0x0080

	// BDOSBase is the trap address the JP at 0x0005 lands on.
	BDOSBase = 0xFD00

	// BIOSBase is the base of the 17-entry BIOS jump table.
	BIOSBase = 0xFE00

	// biosMagic is the base of the sentinel addresses the BIOS
	// jump table points into; executing one identifies the entry.
	biosMagic = 0xFF00

	// System tables kept in high memory.
	dphAddr    = 0xFAE0
	dpbAddr    = 0xFAF0
	dirBufAddr = 0xFB00
	alvAddr    = 0xFB80
	csvAddr    = 0xFBC0

	// blkSize is the size of a CP/M record.
	blkSize = 128

	// cpmEOF is the ^Z end-of-file marker used in text files.
	cpmEOF = 0x1A

	// ctrlCExitCount is how many consecutive Ctrl-C presses
	// terminate the emulator.
	ctrlCExitCount = 5

	// maxInstructions is the run-away safety ceiling.
	maxInstructions = 9_000_000_000
)

// DiskMode selects how the stubbed BIOS disk primitives respond.
type DiskMode int

const (
	// DiskOK makes HOME/SETTRK/READ/... report success.
	DiskOK DiskMode = iota

	// DiskFail makes them report failure to the guest.
	DiskFail

	// DiskError terminates the emulator with a diagnostic.
	DiskError
)

// HandlerFunc is the signature of a BDOS or BIOS handler.
type HandlerFunc func(cpm *CPM) error

// Handler pairs a handler with a human-readable name for the logs.
type Handler struct {
	// Desc is the canonical name of the call.
	Desc string

	// Handler is invoked to emulate the call.
	Handler HandlerFunc
}

// CPM holds the emulator state: CPU, memory, the syscall tables, and
// everything the BDOS owns (open files, search state, devices).
type CPM struct {
	// Syscalls maps BDOS function numbers to handlers.
	Syscalls map[uint8]Handler

	// BIOSSyscalls maps BIOS jump-table entry numbers to handlers.
	BIOSSyscalls map[uint8]Handler

	// Memory is the 64K the system runs in.
	Memory *memory.Memory

	// CPU executes code from Memory.
	CPU *cpu.CPU

	// Logger receives diagnostics and debug traces.
	Logger *slog.Logger

	// input and output are the console devices.
	input  consolein.ConsoleInput
	output *consoleout.ConsoleOut

	// files tracks open files, keyed by FCB address.
	files map[uint16]*OpenFile

	// dma is the current record-buffer address.
	dma uint16

	// currentDrive and userNumber mirror the byte at 0x0004.
	currentDrive uint8
	userNumber   uint8

	// File name resolution state.
	mappings    []FileMapping
	legacyMap   map[string]string
	defaultMode FileMode
	defaultEOL  bool

	// Directory-search cursor for Search First / Search Next.
	searchResults []searchResult
	searchIndex   int

	// Device redirection.
	printerFile *os.File
	auxInFile   *os.File
	auxOutFile  *os.File

	// ctrlCCount counts consecutive ^C bytes seen by console input.
	ctrlCCount int

	// Memory-save configuration, applied on exit.
	saveFile  string
	saveStart uint16
	saveEnd   uint16

	// BIOSDiskMode selects the disk-stub behaviour.
	BIOSDiskMode DiskMode

	// Periodic interrupt configuration.
	IntCycles uint64
	IntRST    uint8

	// ProgressEvery reports progress each time this many
	// instructions have executed; zero disables reporting.
	ProgressEvery int64

	// Selective debug: BDOS function numbers and BIOS entries that
	// always log.
	DebugBDOS map[int]bool
	DebugBIOS map[int]bool
}

// searchResult is one entry of the directory-search cursor.
type searchResult struct {
	hostPath string
	name     [8]uint8
	ext      [3]uint8
}

// New returns a new emulation object wired to the given console
// drivers.
func New(logger *slog.Logger, input consolein.ConsoleInput, output *consoleout.ConsoleOut) *CPM {
	c := &CPM{
		Logger:      logger,
		Memory:      new(memory.Memory),
		input:       input,
		output:      output,
		files:       make(map[uint16]*OpenFile),
		legacyMap:   make(map[string]string),
		dma:         DefaultDMA,
		defaultMode: ModeAuto,
		defaultEOL:  true,
		IntRST:      7,
		DebugBDOS:   make(map[int]bool),
		DebugBIOS:   make(map[int]bool),
	}
	c.CPU = cpu.New(c.Memory)
	c.CPU.Ports = c

	c.Syscalls = bdosTable()
	c.BIOSSyscalls = biosTable()

	return c
}

// SetMode switches the CPU between 8080 and Z80 semantics.
func (c *CPM) SetMode(mode cpu.Mode) {
	c.CPU.SetMode(mode)
}

// SetDefaultMode sets the file mode used when nothing more specific
// applies: "auto", "text" or "binary".
func (c *CPM) SetDefaultMode(mode string, eolConvert bool) {
	c.defaultMode = modeFromString(mode)
	c.defaultEOL = eolConvert
}

// SetSaveMemory arranges for the given memory range to be dumped to
// path on exit.  An end of zero means the top of memory.
func (c *CPM) SetSaveMemory(path string, start, end uint16) {
	c.saveFile = path
	c.saveStart = start
	c.saveEnd = end
}

// Output returns the console output device, which tests use to capture
// what the guest printed.
func (c *CPM) Output() *consoleout.ConsoleOut {
	return c.output
}

// Input returns the console input device.
func (c *CPM) Input() consolein.ConsoleInput {
	return c.input
}

// SetupMemory builds the reserved low and high memory regions: the
// warm-boot and BDOS jumps, the BIOS jump table with its sentinel
// targets, RET opcodes on the RST vectors, and the DPH/DPB tables
// describing a simulated 8MB drive.
func (c *CPM) SetupMemory() {
	mem := c.Memory

	// JP WBOOT at address zero.
	wboot := uint16(BIOSBase + 3)
	mem.Set(0x0000, 0xC3)
	mem.Set(0x0001, uint8(wboot&0xFF))
	mem.Set(0x0002, uint8(wboot>>8))

	mem.Set(IOByteAddr, 0x00)
	mem.Set(DrvUserAddr, 0x00)

	// JP BDOS at 0x0005.
	mem.Set(BDOSEntry, 0xC3)
	mem.Set(BDOSEntry+1, uint8(BDOSBase&0xFF))
	mem.Set(BDOSEntry+2, uint8(BDOSBase>>8))

	// RST vectors each hold a RET, so stray restarts return.
	for i := uint16(1); i < 8; i++ {
		mem.Set(i*8, 0xC9)
	}

	// The BIOS jump table is real executable code: entry i jumps to
	// sentinel biosMagic+i, which the driver loop recognizes.
	for i := uint16(0); i < 17; i++ {
		addr := uint16(BIOSBase) + i*3
		target := uint16(biosMagic) + i
		mem.Set(addr, 0xC3)
		mem.Set(addr+1, uint8(target&0xFF))
		mem.Set(addr+2, uint8(target>>8))
	}

	// Clear the default FCBs.
	mem.FillRange(DefaultFCB, fcb.SIZE, 0x00)
	mem.FillRange(DefaultFCB2, 20, 0x00)

	// Disk Parameter Header: XLT=0, scratch, DIRBUF, DPB, CSV, ALV.
	mem.FillRange(dphAddr, 8, 0x00)
	mem.SetU16(dphAddr+8, dirBufAddr)
	mem.SetU16(dphAddr+10, dpbAddr)
	mem.SetU16(dphAddr+12, csvAddr)
	mem.SetU16(dphAddr+14, alvAddr)

	// Disk Parameter Block for a simulated 8MB drive with 128-byte
	// sectors and 2KB allocation blocks.
	dpb := []uint8{
		128, 0, // SPT
		4,          // BSH
		15,         // BLM
		0,          // EXM
		0xFF, 0x0F, // DSM
		0xFF, 0x03, // DRM
		0xFF, 0x00, // AL0/AL1
		0x00, 0x00, // CKS
		0x00, 0x00, // OFF
	}
	mem.SetRange(dpbAddr, dpb...)

	// Directory buffer reads as empty, allocation vector as free.
	mem.FillRange(dirBufAddr, 128, 0xE5)
	mem.FillRange(alvAddr, 64, 0x00)

	c.CPU.Regs.SP.SetU16(0xFFF0)
	c.dma = DefaultDMA
}

// LoadBinary loads the given .COM file at 0x0100 and points PC at it.
// The image may reach up to, but not into, the system tables at the
// top of the TPA.
func (c *CPM) LoadBinary(path string) error {
	if size := host.GetFileSize(path); size > dphAddr-TPAStart {
		return fmt.Errorf("failed to load %s: %d bytes does not fit in the TPA", path, size)
	}

	err := c.Memory.LoadFile(TPAStart, path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %s", path, err)
	}

	c.CPU.Regs.PC.SetU16(TPAStart)
	return nil
}

// SetupCommandLine places the uppercased argument string at the
// default DMA address as a length-prefixed command tail, with a space
// before each argument, and parses the first two file arguments into
// the default FCBs.  Extra file arguments also become exact-name
// mappings so long host names stay reachable after 8.3 truncation.
func (c *CPM) SetupCommandLine(args []string) {
	mem := c.Memory

	tail := ""
	for _, arg := range args {
		base := strings.ToUpper(host.Basename(arg))

		// Truncate a long name to 8.3 for the command tail.
		if dot := strings.IndexByte(base, '.'); dot > 8 {
			base = base[:8] + base[dot:]
		}
		tail += " " + base
	}

	if len(tail) > 127 {
		tail = tail[:127]
	}

	mem.Set(DefaultDMA, uint8(len(tail)))
	for i := 0; i < len(tail); i++ {
		mem.Set(DefaultDMA+1+uint16(i), tail[i])
	}

	if len(args) > 0 {
		x := fcb.FromString(strings.ToUpper(host.Basename(args[0])))
		mem.SetRange(DefaultFCB, x.AsBytes()...)
	}
	if len(args) > 1 {
		x := fcb.FromString(strings.ToUpper(host.Basename(args[1])))
		// Only the 16-byte drive/name/extent part fits: the rest of
		// a full FCB would run into the command tail at 0x0080.
		mem.SetRange(DefaultFCB2, x.AsBytes()[:16]...)
	}

	// Map any argument that names a real file, under both its full
	// name and its truncated 8.3 alias.
	for _, arg := range args {
		if host.GetFileType(arg) != host.Regular {
			continue
		}

		name := strings.ToUpper(host.Basename(arg))
		c.AddLegacyMapping(name, arg)

		short := name
		if dot := strings.IndexByte(name, '.'); dot >= 0 {
			stem := name[:dot]
			if len(stem) > 8 {
				stem = stem[:8]
			}
			ext := name[dot:]
			if len(ext) > 4 {
				ext = ext[:4]
			}
			short = stem + ext
		} else if len(name) > 8 {
			short = name[:8]
		}
		if short != name {
			c.AddLegacyMapping(short, arg)
		}
	}
}

// SaveMemory writes the configured memory range to disk.  It is a
// no-op when no save file has been requested.
func (c *CPM) SaveMemory() {
	if c.saveFile == "" {
		return
	}

	start := c.saveStart
	end := c.saveEnd
	if end == 0 {
		end = 0xFFFF
	}
	size := int(end) - int(start) + 1
	if size <= 0 {
		size = 0x10000 - int(start)
	}

	data := c.Memory.GetRange(start, size)
	err := os.WriteFile(c.saveFile, data, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save memory to %s: %s\n", c.saveFile, err)
		return
	}
	fmt.Fprintf(os.Stderr, "Saved %d bytes (0x%04X-0x%04X) to %s\n", size, start, end, c.saveFile)
}

// CloseDevices closes any printer and auxiliary device files.
func (c *CPM) CloseDevices() {
	if c.printerFile != nil {
		c.printerFile.Close()
		c.printerFile = nil
	}
	if c.auxInFile != nil {
		c.auxInFile.Close()
		c.auxInFile = nil
	}
	if c.auxOutFile != nil {
		c.auxOutFile.Close()
		c.auxOutFile = nil
	}
}

// In is the IN-instruction hook; nothing is connected to the ports so
// reads see a floating bus.
func (c *CPM) In(port uint8) uint8 {
	c.Logger.Debug("I/O IN", slog.Int("port", int(port)))
	return 0xFF
}

// Out is the OUT-instruction hook; writes are discarded.
func (c *CPM) Out(port uint8, value uint8) {
	c.Logger.Debug("I/O OUT",
		slog.Int("port", int(port)),
		slog.Int("value", int(value)))
}

// countCtrlC tracks consecutive ^C bytes arriving through any console
// input path.  It returns ErrExit once the limit is reached.
func (c *CPM) countCtrlC(ch uint8) error {
	if ch != 0x03 {
		c.ctrlCCount = 0
		return nil
	}

	c.ctrlCCount++
	if c.ctrlCCount >= ctrlCExitCount {
		fmt.Fprintf(os.Stderr, "\n[Exiting: %d consecutive ^C received]\n", ctrlCExitCount)
		return ErrExit
	}
	return nil
}

// readConsoleByte blocks for one byte of console input, applying the
// LF-to-CR conversion CP/M expects and the ^C exit counting.
func (c *CPM) readConsoleByte() (uint8, error) {
	ch, err := c.input.BlockForCharacter()
	if err != nil {
		return 0, fmt.Errorf("error reading console: %s", err)
	}

	if err := c.countCtrlC(ch); err != nil {
		return 0, err
	}

	if ch == '\n' {
		ch = '\r'
	}
	return ch & 0x7F, nil
}

// Execute runs the fetch-execute loop until the program terminates.
//
// Before each instruction the PC is tested against the trap addresses:
// address zero terminates, the BDOS base dispatches by the C register,
// and the BIOS sentinel range dispatches by entry number.  A trapped
// call ends by popping the return address into PC, simulating the RET
// the real BDOS would have executed.
func (c *CPM) Execute() error {
	var instructions int64
	var lastReport int64
	var nextTick uint64

	if c.IntCycles > 0 {
		nextTick = c.IntCycles
		c.CPU.Regs.IFF1 = true
		c.CPU.Regs.IFF2 = true
		c.CPU.Regs.IM = 1
	}

	for {
		pc := c.CPU.Regs.PC.U16()

		if pc == 0x0000 {
			c.Logger.Info("program exit via JP 0")
			return ErrExit
		}

		if pc == BDOSBase {
			err := c.bdosCall(c.CPU.Regs.BC.Lo)
			if err != nil {
				return err
			}
			c.CPU.Regs.PC.SetU16(c.CPU.PopWord())
			continue
		}

		if pc >= biosMagic && pc < biosMagic+17 {
			err := c.biosCall(uint8(pc - biosMagic))
			if err != nil {
				return err
			}
			c.CPU.Regs.PC.SetU16(c.CPU.PopWord())
			continue
		}

		// Cycle-driven timer interrupt.
		if c.IntCycles > 0 && c.CPU.Cycles >= nextTick {
			nextTick = c.CPU.Cycles + c.IntCycles
			c.CPU.RequestRst(c.IntRST)
		}

		c.CPU.CheckInterrupts()

		err := c.CPU.Step()
		if err != nil {
			if errors.Is(err, cpu.ErrHalt) {
				c.CPU.DumpRegisters(os.Stderr, "HALT")
				return ErrHalt
			}
			return err
		}

		instructions++

		if c.ProgressEvery > 0 && instructions-lastReport >= c.ProgressEvery {
			fmt.Fprintf(os.Stderr, "Progress: %dM instructions\n", instructions/1000000)
			lastReport = instructions
		}

		if instructions >= maxInstructions {
			fmt.Fprintf(os.Stderr, "Reached instruction limit, PC = 0x%04X\n", c.CPU.Regs.PC.U16())
			return ErrInstructionLimit
		}
	}
}

// bdosCall dispatches one BDOS function by number.
func (c *CPM) bdosCall(function uint8) error {
	handler, exists := c.Syscalls[function]
	if !exists {
		fmt.Fprintf(os.Stderr, "Unimplemented BDOS function %d\n", function)
		c.CPU.Regs.AF.Hi = 0xFF
		return nil
	}

	if c.DebugBDOS[int(function)] {
		c.Logger.Info("BDOS call",
			slog.String("name", handler.Desc),
			slog.Int("function", int(function)))
	} else {
		c.Logger.Debug("BDOS call",
			slog.String("name", handler.Desc),
			slog.Int("function", int(function)))
	}

	return handler.Handler(c)
}

// biosCall dispatches one BIOS entry by number.
func (c *CPM) biosCall(entry uint8) error {
	handler, exists := c.BIOSSyscalls[entry]
	if !exists {
		c.Logger.Debug("unimplemented BIOS entry",
			slog.Int("entry", int(entry)))
		return nil
	}

	if c.DebugBIOS[int(entry)*3] {
		c.Logger.Info("BIOS call",
			slog.String("name", handler.Desc),
			slog.Int("entry", int(entry)),
			slog.Int("offset", int(entry)*3))
	} else {
		c.Logger.Debug("BIOS call",
			slog.String("name", handler.Desc),
			slog.Int("entry", int(entry)))
	}

	return handler.Handler(c)
}

// SetPrinterFile redirects LST: output to the named file.
func (c *CPM) SetPrinterFile(path string) {
	if c.printerFile != nil {
		c.printerFile.Close()
		c.printerFile = nil
	}
	fh, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Cannot open printer file '%s': %s\n", path, err)
		return
	}
	c.printerFile = fh
}

// SetAuxInputFile redirects RDR: input from the named file.
func (c *CPM) SetAuxInputFile(path string) {
	if c.auxInFile != nil {
		c.auxInFile.Close()
		c.auxInFile = nil
	}
	fh, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Cannot open aux input file '%s': %s\n", path, err)
		return
	}
	c.auxInFile = fh
}

// SetAuxOutputFile redirects PUN: output to the named file.
func (c *CPM) SetAuxOutputFile(path string) {
	if c.auxOutFile != nil {
		c.auxOutFile.Close()
		c.auxOutFile = nil
	}
	fh, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Cannot open aux output file '%s': %s\n", path, err)
		return
	}
	c.auxOutFile = fh
}

// fcbAt reads the FCB at the given address out of guest memory.
func (c *CPM) fcbAt(addr uint16) fcb.FCB {
	return fcb.FromBytes(c.Memory.GetRange(addr, fcb.SIZE))
}

// storeFCB writes the FCB back into guest memory.
func (c *CPM) storeFCB(addr uint16, f fcb.FCB) {
	c.Memory.SetRange(addr, f.AsBytes()...)
}

// qualify joins a directory and name, leaving bare names alone so the
// emitted paths stay as short as the user wrote them.
func qualify(dir, name string) string {
	if dir == "." || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
