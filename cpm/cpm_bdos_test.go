package cpm

import (
	"os"
	"strings"
	"testing"

	"github.com/hjkit/avwohl-cpmemu/fcb"
)

// setFCB writes an FCB for the given name into guest memory and points
// DE at it.
func setFCB(c *CPM, addr uint16, name string) {
	f := fcb.FromString(name)
	c.Memory.SetRange(addr, f.AsBytes()...)
	c.CPU.Regs.DE.SetU16(addr)
}

// resultA returns the A register after a syscall.
func resultA(c *CPM) uint8 {
	return c.CPU.Regs.AF.Hi
}

func TestBDOSVersion(t *testing.T) {
	c := testMachine(t)

	if err := BdosSysCallBDOSVersion(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 0x22 || c.CPU.Regs.HL.Lo != 0x22 {
		t.Fatalf("version A=%02X L=%02X", resultA(c), c.CPU.Regs.HL.Lo)
	}
	if c.CPU.Regs.BC.Hi != 0 || c.CPU.Regs.HL.Hi != 0 {
		t.Fatalf("B/H should be zero")
	}
}

func TestWriteString(t *testing.T) {
	c := testMachine(t)

	c.Memory.SetRange(0x0200, []uint8("HELLO\r\n$")...)
	c.CPU.Regs.DE.SetU16(0x0200)

	if err := BdosSysCallWriteString(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if consoleOutput(t, c) != "HELLO\r\n" {
		t.Fatalf("output '%s'", consoleOutput(t, c))
	}
}

func TestIOByte(t *testing.T) {
	c := testMachine(t)

	c.CPU.Regs.DE.Lo = 0x42
	if err := BdosSysCallSetIOByte(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if err := BdosSysCallGetIOByte(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 0x42 {
		t.Fatalf("IOBYTE %02X", resultA(c))
	}
}

func TestUserNumber(t *testing.T) {
	c := testMachine(t)

	c.CPU.Regs.DE.Lo = 5
	if err := BdosSysCallUserNumber(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 5 {
		t.Fatalf("set should report the new user, got %d", resultA(c))
	}

	c.CPU.Regs.DE.Lo = 0xFF
	if err := BdosSysCallUserNumber(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 5 {
		t.Fatalf("get reported %d", resultA(c))
	}

	// User and drive share the byte at 0x0004.
	if c.Memory.Get(DrvUserAddr) != 5<<4 {
		t.Fatalf("0x0004 = %02X", c.Memory.Get(DrvUserAddr))
	}
}

func TestDriveSetGet(t *testing.T) {
	c := testMachine(t)

	c.CPU.Regs.DE.Lo = 2
	if err := BdosSysCallDriveSet(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if err := BdosSysCallDriveGet(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 2 {
		t.Fatalf("drive %d", resultA(c))
	}
}

func TestSetDMA(t *testing.T) {
	c := testMachine(t)

	c.CPU.Regs.DE.SetU16(0x0400)
	if err := BdosSysCallSetDMA(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if c.dma != 0x0400 {
		t.Fatalf("dma %04X", c.dma)
	}
}

func TestOpenMissingFile(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	setFCB(c, 0x0200, "NOPE.TXT")
	if err := BdosSysCallFileOpen(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 0xFF {
		t.Fatalf("missing file should report 0xFF, got %02X", resultA(c))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := testMachine(t)

	setFCB(c, 0x0200, "NEVER.OPD")
	if err := BdosSysCallFileClose(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 0x00 {
		t.Fatalf("closing an unopened file should succeed, got %02X", resultA(c))
	}
}

func TestMakeWriteCloseReadBack(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)
	c.SetDefaultMode("text", true)

	// Make the file.
	setFCB(c, 0x0200, "OUT.TXT")
	if err := BdosSysCallMakeFile(c); err != nil {
		t.Fatalf("make: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("make failed: %02X", resultA(c))
	}

	// One record: ten data bytes then ^Z padding.
	record := make([]uint8, blkSize)
	copy(record, "abc\ndef\nxy")
	for i := 10; i < blkSize; i++ {
		record[i] = cpmEOF
	}
	c.Memory.SetRange(c.dma, record...)

	if err := BdosSysCallWrite(c); err != nil {
		t.Fatalf("write: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("write failed: %02X", resultA(c))
	}

	if err := BdosSysCallFileClose(c); err != nil {
		t.Fatalf("close: %s", err)
	}

	// The host file holds exactly the ten bytes, no padding.
	data, err := os.ReadFile("out.txt")
	if err != nil {
		t.Fatalf("host file missing: %s", err)
	}
	if string(data) != "abc\ndef\nxy" {
		t.Fatalf("host content %q", data)
	}

	// Reading back through the BDOS restores the CP/M view with
	// CR/LF pairs and ^Z padding.
	setFCB(c, 0x0300, "OUT.TXT")
	if err := BdosSysCallFileOpen(c); err != nil {
		t.Fatalf("open: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("open failed: %02X", resultA(c))
	}

	if err := BdosSysCallRead(c); err != nil {
		t.Fatalf("read: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("read failed: %02X", resultA(c))
	}

	got := c.Memory.GetRange(c.dma, blkSize)
	want := "abc\r\ndef\r\nxy"
	if string(got[:len(want)]) != want {
		t.Fatalf("read back %q", got[:len(want)])
	}
	for i := len(want); i < blkSize; i++ {
		if got[i] != cpmEOF {
			t.Fatalf("padding byte %d is %02X", i, got[i])
		}
	}

	// A second read reports end-of-file.
	if err := BdosSysCallRead(c); err != nil {
		t.Fatalf("read: %s", err)
	}
	if resultA(c) != 1 {
		t.Fatalf("expected EOF, got %02X", resultA(c))
	}

	// The FCB current record advanced twice.
	f := fcb.FromBytes(c.Memory.GetRange(0x0300, fcb.SIZE))
	if f.Cr != 2 {
		t.Fatalf("CR=%d want 2", f.Cr)
	}
}

func TestCRLFCollapsesAcrossRecords(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)
	c.SetDefaultMode("text", true)

	setFCB(c, 0x0200, "SPLIT.TXT")
	if err := BdosSysCallMakeFile(c); err != nil {
		t.Fatalf("make: %s", err)
	}

	// First record ends in CR, second starts with LF: the pair must
	// still collapse to a single newline.
	rec1 := make([]uint8, blkSize)
	for i := range rec1 {
		rec1[i] = 'a'
	}
	rec1[blkSize-1] = '\r'
	c.Memory.SetRange(c.dma, rec1...)
	if err := BdosSysCallWrite(c); err != nil {
		t.Fatalf("write: %s", err)
	}

	rec2 := make([]uint8, blkSize)
	rec2[0] = '\n'
	rec2[1] = 'b'
	for i := 2; i < blkSize; i++ {
		rec2[i] = cpmEOF
	}
	c.Memory.SetRange(c.dma, rec2...)
	if err := BdosSysCallWrite(c); err != nil {
		t.Fatalf("write: %s", err)
	}

	if err := BdosSysCallFileClose(c); err != nil {
		t.Fatalf("close: %s", err)
	}

	data, err := os.ReadFile("split.txt")
	if err != nil {
		t.Fatalf("host file missing: %s", err)
	}
	want := strings.Repeat("a", blkSize-1) + "\nb"
	if string(data) != want {
		t.Fatalf("host content %q", data)
	}
}

func TestDeleteFile(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	if err := os.WriteFile("gone.txt", []byte("x"), 0644); err != nil {
		t.Fatalf("setup: %s", err)
	}

	setFCB(c, 0x0200, "GONE.TXT")
	if err := BdosSysCallDeleteFile(c); err != nil {
		t.Fatalf("delete: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("delete failed: %02X", resultA(c))
	}
	if _, err := os.Stat("gone.txt"); !os.IsNotExist(err) {
		t.Fatalf("file still present")
	}

	// Deleting again fails.
	if err := BdosSysCallDeleteFile(c); err != nil {
		t.Fatalf("delete: %s", err)
	}
	if resultA(c) != 0xFF {
		t.Fatalf("deleting a missing file should report 0xFF")
	}
}

func TestRenameFile(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	if err := os.WriteFile("old.txt", []byte("content"), 0644); err != nil {
		t.Fatalf("setup: %s", err)
	}

	// Old name in bytes 0-15, new name from byte 16.
	oldF := fcb.FromString("OLD.TXT")
	newF := fcb.FromString("NEW.TXT")
	c.Memory.SetRange(0x0200, oldF.AsBytes()...)
	c.Memory.SetRange(0x0210, newF.AsBytes()...)
	c.CPU.Regs.DE.SetU16(0x0200)

	if err := BdosSysCallRenameFile(c); err != nil {
		t.Fatalf("rename: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("rename failed: %02X", resultA(c))
	}

	data, err := os.ReadFile("new.txt")
	if err != nil || string(data) != "content" {
		t.Fatalf("renamed file wrong: %v %q", err, data)
	}
}

func TestRandomReadWrite(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	setFCB(c, 0x0200, "RAND.BIN")
	if err := BdosSysCallMakeFile(c); err != nil {
		t.Fatalf("make: %s", err)
	}

	// Write record 2: the gap is zero-filled.
	f := fcb.FromBytes(c.Memory.GetRange(0x0200, fcb.SIZE))
	f.SetRandomRecord(2)
	c.Memory.SetRange(0x0200, f.AsBytes()...)

	record := make([]uint8, blkSize)
	for i := range record {
		record[i] = 0xAA
	}
	c.Memory.SetRange(c.dma, record...)

	if err := BdosSysCallWriteRand(c); err != nil {
		t.Fatalf("write rand: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("write rand failed: %02X", resultA(c))
	}

	fi, err := os.Stat("rand.bin")
	if err != nil || fi.Size() != 3*blkSize {
		t.Fatalf("file size %v %v", fi, err)
	}

	// Clear the DMA and read the record back.
	c.Memory.FillRange(c.dma, blkSize, 0x00)
	if err := BdosSysCallReadRand(c); err != nil {
		t.Fatalf("read rand: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("read rand failed: %02X", resultA(c))
	}
	got := c.Memory.GetRange(c.dma, blkSize)
	for i, b := range got {
		if b != 0xAA {
			t.Fatalf("byte %d is %02X", i, b)
		}
	}

	// A record far past the end is out of range.
	f = fcb.FromBytes(c.Memory.GetRange(0x0200, fcb.SIZE))
	f.SetRandomRecord(100)
	c.Memory.SetRange(0x0200, f.AsBytes()...)
	if err := BdosSysCallReadRand(c); err != nil {
		t.Fatalf("read rand: %s", err)
	}
	if resultA(c) != 0x06 {
		t.Fatalf("expected out-of-range code 6, got %02X", resultA(c))
	}
}

func TestFileSize(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	if err := os.WriteFile("size.bin", make([]byte, 300), 0644); err != nil {
		t.Fatalf("setup: %s", err)
	}

	setFCB(c, 0x0200, "SIZE.BIN")
	if err := BdosSysCallFileSize(c); err != nil {
		t.Fatalf("file size: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("file size failed: %02X", resultA(c))
	}

	f := fcb.FromBytes(c.Memory.GetRange(0x0200, fcb.SIZE))
	if f.RandomRecord() != 3 {
		t.Fatalf("records %d want 3", f.RandomRecord())
	}
}

func TestRandRecordFromSequential(t *testing.T) {
	c := testMachine(t)

	f := fcb.FromString("ANY.BIN")
	f.Ex = 2
	f.Cr = 5
	c.Memory.SetRange(0x0200, f.AsBytes()...)
	c.CPU.Regs.DE.SetU16(0x0200)

	if err := BdosSysCallRandRecord(c); err != nil {
		t.Fatalf("error: %s", err)
	}

	f = fcb.FromBytes(c.Memory.GetRange(0x0200, fcb.SIZE))
	if f.RandomRecord() != 2*128+5 {
		t.Fatalf("random record %d", f.RandomRecord())
	}
}

func TestSearchWildcard(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	for _, name := range []string{"a.txt", "b.txt", "c.bin"} {
		if err := os.WriteFile(name, []byte("data"), 0644); err != nil {
			t.Fatalf("setup: %s", err)
		}
	}

	setFCB(c, 0x0200, "*.TXT")
	if err := BdosSysCallFindFirst(c); err != nil {
		t.Fatalf("find first: %s", err)
	}

	seen := make(map[string]int)
	for resultA(c) == 0 {
		// Directory record: name in bytes 1-11 of the DMA area.
		rec := c.Memory.GetRange(c.dma, 32)
		name := strings.TrimRight(string(rec[1:9]), " ")
		ext := strings.TrimRight(string(rec[9:12]), " ")
		seen[name+"."+ext]++

		if rec[15] != 1 {
			t.Fatalf("record count %d want 1", rec[15])
		}
		if rec[16] == 0 {
			t.Fatalf("allocation map should be marked for a non-empty file")
		}

		if err := BdosSysCallFindNext(c); err != nil {
			t.Fatalf("find next: %s", err)
		}
	}

	if len(seen) != 2 || seen["A.TXT"] != 1 || seen["B.TXT"] != 1 {
		t.Fatalf("enumerated %v", seen)
	}
}

func TestSearchFirstNoMatches(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	setFCB(c, 0x0200, "*.ZZZ")
	if err := BdosSysCallFindFirst(c); err != nil {
		t.Fatalf("find first: %s", err)
	}
	if resultA(c) != 0xFF {
		t.Fatalf("expected 0xFF, got %02X", resultA(c))
	}
}

func TestSearchFirstResetsCursor(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	if err := os.WriteFile("a.txt", []byte("x"), 0644); err != nil {
		t.Fatalf("setup: %s", err)
	}

	setFCB(c, 0x0200, "*.TXT")
	if err := BdosSysCallFindFirst(c); err != nil {
		t.Fatalf("find first: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("no match found")
	}

	// A second FindFirst starts over rather than continuing.
	if err := BdosSysCallFindFirst(c); err != nil {
		t.Fatalf("find first: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("restarted search should match again")
	}
}

func TestResolverMappingOrder(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	if err := os.WriteFile("mapped.dat", []byte("m"), 0644); err != nil {
		t.Fatalf("setup: %s", err)
	}
	if err := os.WriteFile("wild.dat", []byte("w"), 0644); err != nil {
		t.Fatalf("setup: %s", err)
	}
	if err := os.WriteFile("plain.txt", []byte("p"), 0644); err != nil {
		t.Fatalf("setup: %s", err)
	}

	// An exact mapping declared before a wildcard wins.
	c.AddMapping("FILE.DAT", "mapped.dat", ModeBinary, false)
	c.AddMapping("*.DAT", "wild.dat", ModeBinary, false)

	path, _, _, found := c.findHostFile("FILE.DAT")
	if !found || path != "mapped.dat" {
		t.Fatalf("resolved '%s'", path)
	}

	// Another .DAT name falls through to the wildcard.
	path, _, _, found = c.findHostFile("OTHER.DAT")
	if !found || path != "wild.dat" {
		t.Fatalf("resolved '%s'", path)
	}

	// Unmapped names fall back to the lower-cased directory entry.
	path, mode, _, found := c.findHostFile("PLAIN.TXT")
	if !found || path != "plain.txt" {
		t.Fatalf("resolved '%s'", path)
	}
	if mode != ModeText {
		t.Fatalf(".TXT should classify as text")
	}

	// Missing names resolve to nothing.
	if _, _, _, found := c.findHostFile("MISSING.XYZ"); found {
		t.Fatalf("missing file should not resolve")
	}
}

func TestAutoModeClassification(t *testing.T) {
	for _, name := range []string{"A.BAS", "A.MAC", "A.ASM", "A.TXT", "A.DOC", "A.LST", "A.PRN"} {
		if detectFileMode(name) != ModeText {
			t.Fatalf("%s should be text", name)
		}
	}
	for _, name := range []string{"A.COM", "A.BIN", "A.DAT", "A.XYZ", "NOEXT"} {
		if detectFileMode(name) != ModeBinary {
			t.Fatalf("%s should be binary", name)
		}
	}
}

func TestReadString(t *testing.T) {
	c := testMachine(t)

	// Type "ab", rub one out, type "c", return.
	c.Input().StuffInput("ab\x08c\r")

	c.Memory.Set(0x0200, 10) // max length
	c.CPU.Regs.DE.SetU16(0x0200)

	if err := BdosSysCallReadString(c); err != nil {
		t.Fatalf("error: %s", err)
	}

	if c.Memory.Get(0x0201) != 2 {
		t.Fatalf("length %d want 2", c.Memory.Get(0x0201))
	}
	got := string(c.Memory.GetRange(0x0202, 2))
	if got != "ac" {
		t.Fatalf("buffer '%s'", got)
	}

	// The echo includes the rubout sequence and final CRLF.
	out := consoleOutput(t, c)
	if !strings.HasSuffix(out, "\r\n") {
		t.Fatalf("echo should end with CRLF: %q", out)
	}
	if !strings.Contains(out, "\b \b") {
		t.Fatalf("echo should contain a rubout: %q", out)
	}
}

func TestReadStringCtrlU(t *testing.T) {
	c := testMachine(t)
	c.Input().StuffInput("abc\x15xy\r")

	c.Memory.Set(0x0200, 10)
	c.CPU.Regs.DE.SetU16(0x0200)

	if err := BdosSysCallReadString(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if c.Memory.Get(0x0201) != 2 {
		t.Fatalf("length %d want 2", c.Memory.Get(0x0201))
	}
	if string(c.Memory.GetRange(0x0202, 2)) != "xy" {
		t.Fatalf("buffer '%s'", c.Memory.GetRange(0x0202, 2))
	}
}

func TestReadStringCtrlZEndsInput(t *testing.T) {
	c := testMachine(t)
	c.Input().StuffInput("ab\x1Acd\r")

	c.Memory.Set(0x0200, 10)
	c.CPU.Regs.DE.SetU16(0x0200)

	if err := BdosSysCallReadString(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if c.Memory.Get(0x0201) != 2 {
		t.Fatalf("^Z should end input, length %d", c.Memory.Get(0x0201))
	}
}

func TestRawIO(t *testing.T) {
	c := testMachine(t)

	// Status with nothing pending.
	c.CPU.Regs.DE.Lo = 0xFE
	if err := BdosSysCallRawIO(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("status should be 0 with no input")
	}

	// Status with input pending.
	c.Input().StuffInput("q")
	c.CPU.Regs.DE.Lo = 0xFE
	if err := BdosSysCallRawIO(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 0xFF {
		t.Fatalf("status should be 0xFF with input")
	}

	// Input mode returns the byte.
	c.CPU.Regs.DE.Lo = 0xFF
	if err := BdosSysCallRawIO(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 'q' {
		t.Fatalf("got %02X", resultA(c))
	}

	// Anything else is output.
	c.CPU.Regs.DE.Lo = 'Z'
	if err := BdosSysCallRawIO(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if !strings.Contains(consoleOutput(t, c), "Z") {
		t.Fatalf("output '%s'", consoleOutput(t, c))
	}
}

func TestConsoleStatus(t *testing.T) {
	c := testMachine(t)

	if err := BdosSysCallConsoleStatus(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 0 {
		t.Fatalf("no input should report 0")
	}

	c.Input().StuffInput("x")
	if err := BdosSysCallConsoleStatus(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if resultA(c) != 0xFF {
		t.Fatalf("pending input should report 0xFF")
	}
}

func TestResetDiskClosesFiles(t *testing.T) {
	inTempDir(t)
	c := testMachine(t)

	setFCB(c, 0x0200, "TEMP.BIN")
	if err := BdosSysCallMakeFile(c); err != nil {
		t.Fatalf("make: %s", err)
	}
	if len(c.files) != 1 {
		t.Fatalf("open-file table should have one entry")
	}

	c.currentDrive = 3
	if err := BdosSysCallDriveAllReset(c); err != nil {
		t.Fatalf("reset: %s", err)
	}

	if len(c.files) != 0 {
		t.Fatalf("reset should close all files")
	}
	if c.currentDrive != 0 {
		t.Fatalf("reset should select drive A")
	}
	if c.dma != DefaultDMA {
		t.Fatalf("reset should restore the default DMA")
	}
}

func TestStubbedCalls(t *testing.T) {
	c := testMachine(t)

	if err := BdosSysCallLoginVec(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if c.CPU.Regs.HL.U16() != 0x0001 {
		t.Fatalf("login vector %04X", c.CPU.Regs.HL.U16())
	}

	if err := BdosSysCallDriveAlloc(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if c.CPU.Regs.HL.U16() != alvAddr {
		t.Fatalf("allocation vector %04X", c.CPU.Regs.HL.U16())
	}

	if err := BdosSysCallGetDriveDPB(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if c.CPU.Regs.HL.U16() != dpbAddr {
		t.Fatalf("DPB pointer %04X", c.CPU.Regs.HL.U16())
	}

	if err := BdosSysCallDriveROVec(c); err != nil {
		t.Fatalf("error: %s", err)
	}
	if c.CPU.Regs.HL.U16() != 0 {
		t.Fatalf("RO vector should be 0")
	}

	if err := BdosSysCallDriveSetRO(c); err != nil || resultA(c) != 0 {
		t.Fatalf("write protect should succeed")
	}
	if err := BdosSysCallSetFileAttributes(c); err != nil || resultA(c) != 0 {
		t.Fatalf("set attributes should succeed")
	}
}
