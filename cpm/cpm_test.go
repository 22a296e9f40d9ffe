package cpm

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/hjkit/avwohl-cpmemu/consolein"
	"github.com/hjkit/avwohl-cpmemu/consoleout"
	"github.com/hjkit/avwohl-cpmemu/fcb"
)

// testMachine builds an emulator with scripted console input and
// recorded console output.
func testMachine(t *testing.T) *CPM {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	input, err := consolein.New("file")
	if err != nil {
		t.Fatalf("input driver missing: %s", err)
	}
	output, err := consoleout.New("null")
	if err != nil {
		t.Fatalf("output driver missing: %s", err)
	}

	c := New(log, input, output)
	c.SetupMemory()
	return c
}

// consoleOutput returns everything the guest printed.
func consoleOutput(t *testing.T, c *CPM) string {
	t.Helper()
	rec, ok := c.Output().GetDriver().(consoleout.ConsoleRecorder)
	if !ok {
		t.Fatalf("output driver is not a recorder")
	}
	return rec.GetOutput()
}

// inTempDir switches into a scratch directory for the duration of the
// test.
func inTempDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %s", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir failed: %s", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(old)
	})
	return dir
}

// TestSetupMemoryLayout checks the reserved regions: vectors, jump
// tables, RST returns, and the DPB.
func TestSetupMemoryLayout(t *testing.T) {
	c := testMachine(t)
	mem := c.Memory

	// JP at zero, targeting the WBOOT entry of the BIOS table.
	if mem.Get(0x0000) != 0xC3 {
		t.Fatalf("no JP at 0x0000")
	}
	if mem.GetU16(0x0001) != BIOSBase+3 {
		t.Fatalf("warm boot vector %04X", mem.GetU16(0x0001))
	}

	// JP at 5 into the BDOS trap.
	if mem.Get(BDOSEntry) != 0xC3 || mem.GetU16(BDOSEntry+1) != BDOSBase {
		t.Fatalf("BDOS vector wrong")
	}

	// RST vectors hold RET.
	for i := uint16(1); i < 8; i++ {
		if mem.Get(i*8) != 0xC9 {
			t.Fatalf("RST %d vector not RET", i)
		}
	}

	// Each BIOS entry jumps to its sentinel.
	for i := uint16(0); i < 17; i++ {
		addr := uint16(BIOSBase) + i*3
		if mem.Get(addr) != 0xC3 || mem.GetU16(addr+1) != biosMagic+i {
			t.Fatalf("BIOS entry %d not a JP to its sentinel", i)
		}
	}

	// The DPH points at the DPB.
	if mem.GetU16(dphAddr+10) != dpbAddr {
		t.Fatalf("DPH does not reference the DPB")
	}

	// Directory buffer reads as empty.
	if mem.Get(dirBufAddr) != 0xE5 {
		t.Fatalf("directory buffer not initialized")
	}

	if c.CPU.Regs.SP.U16() != 0xFFF0 {
		t.Fatalf("SP=%04X want FFF0", c.CPU.Regs.SP.U16())
	}
}

// TestCommandTail verifies the length-prefixed, uppercased tail and
// the parsed default FCBs.
func TestCommandTail(t *testing.T) {
	c := testMachine(t)
	c.SetupCommandLine([]string{"bar", "baz"})

	mem := c.Memory
	if mem.Get(DefaultDMA) != 8 {
		t.Fatalf("tail length %d want 8", mem.Get(DefaultDMA))
	}
	got := string(mem.GetRange(DefaultDMA+1, 8))
	if got != " BAR BAZ" {
		t.Fatalf("tail '%s'", got)
	}

	f := fcb.FromBytes(mem.GetRange(DefaultFCB, fcb.SIZE))
	if f.GetName() != "BAR" {
		t.Fatalf("FCB1 name '%s'", f.GetName())
	}
	f = fcb.FromBytes(mem.GetRange(DefaultFCB2, fcb.SIZE))
	if f.GetName() != "BAZ" {
		t.Fatalf("FCB2 name '%s'", f.GetName())
	}
}

// TestExecuteHello runs a real program through the trap loop: print a
// string via BDOS 9 then terminate via BDOS 0.
func TestExecuteHello(t *testing.T) {
	c := testMachine(t)

	code := []uint8{
		0x11, 0x0D, 0x01, // LD DE,0x010D
		0x0E, 0x09, // LD C,9
		0xCD, 0x05, 0x00, // CALL 5
		0x0E, 0x00, // LD C,0
		0xCD, 0x05, 0x00, // CALL 5
		'H', 'I', '\r', '\n', '$',
	}
	c.Memory.SetRange(TPAStart, code...)
	c.CPU.Regs.PC.SetU16(TPAStart)

	err := c.Execute()
	if !errors.Is(err, ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}

	if consoleOutput(t, c) != "HI\r\n" {
		t.Fatalf("output '%s'", consoleOutput(t, c))
	}
}

// TestExecuteJPZeroExits confirms that jumping to address zero
// terminates cleanly.
func TestExecuteJPZeroExits(t *testing.T) {
	c := testMachine(t)

	c.Memory.SetRange(TPAStart, 0xC3, 0x00, 0x00) // JP 0
	c.CPU.Regs.PC.SetU16(TPAStart)

	err := c.Execute()
	if !errors.Is(err, ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
}

// TestExecuteHalt confirms a HALT surfaces as ErrHalt.
func TestExecuteHalt(t *testing.T) {
	c := testMachine(t)

	c.Memory.Set(TPAStart, 0x76)
	c.CPU.Regs.PC.SetU16(TPAStart)

	err := c.Execute()
	if !errors.Is(err, ErrHalt) {
		t.Fatalf("expected ErrHalt, got %v", err)
	}
}

// TestCtrlCExit delivers five consecutive ^C bytes through console
// input and expects an orderly exit on the fifth.
func TestCtrlCExit(t *testing.T) {
	c := testMachine(t)
	c.Input().StuffInput("\x03\x03\x03\x03\x03")

	for i := 0; i < 4; i++ {
		if err := BdosSysCallReadChar(c); err != nil {
			t.Fatalf("call %d should not exit: %v", i+1, err)
		}
	}

	err := BdosSysCallReadChar(c)
	if !errors.Is(err, ErrExit) {
		t.Fatalf("fifth ^C should exit, got %v", err)
	}
}

// TestCtrlCCounterResets confirms that any other byte resets the
// consecutive count.
func TestCtrlCCounterResets(t *testing.T) {
	c := testMachine(t)
	c.Input().StuffInput("\x03\x03\x03\x03x\x03")

	for i := 0; i < 6; i++ {
		if err := BdosSysCallReadChar(c); err != nil {
			t.Fatalf("no exit expected, got %v on call %d", err, i+1)
		}
	}
}

// TestSaveMemory dumps a configured range on request.
func TestSaveMemory(t *testing.T) {
	inTempDir(t)

	c := testMachine(t)
	c.Memory.SetRange(0x0100, 1, 2, 3, 4)
	c.SetSaveMemory("dump.bin", 0x0100, 0x0103)

	c.SaveMemory()

	data, err := os.ReadFile("dump.bin")
	if err != nil {
		t.Fatalf("dump missing: %s", err)
	}
	if len(data) != 4 || data[0] != 1 || data[3] != 4 {
		t.Fatalf("dump content %v", data)
	}
}
