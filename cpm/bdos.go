// This file implements the BDOS function-calls.
//
// These are documented online:
//
// * https://www.seasip.info/Cpm/bdos.html

package cpm

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hjkit/avwohl-cpmemu/fcb"
	"github.com/hjkit/avwohl-cpmemu/host"
)

// bdosTable builds the function-number-indexed BDOS dispatch table.
func bdosTable() map[uint8]Handler {
	sys := make(map[uint8]Handler)

	sys[0] = Handler{Desc: "P_TERMCPM", Handler: BdosSysCallExit}
	sys[1] = Handler{Desc: "C_READ", Handler: BdosSysCallReadChar}
	sys[2] = Handler{Desc: "C_WRITE", Handler: BdosSysCallWriteChar}
	sys[3] = Handler{Desc: "A_READ", Handler: BdosSysCallAuxRead}
	sys[4] = Handler{Desc: "A_WRITE", Handler: BdosSysCallAuxWrite}
	sys[5] = Handler{Desc: "L_WRITE", Handler: BdosSysCallPrinterWrite}
	sys[6] = Handler{Desc: "C_RAWIO", Handler: BdosSysCallRawIO}
	sys[7] = Handler{Desc: "GET_IOBYTE", Handler: BdosSysCallGetIOByte}
	sys[8] = Handler{Desc: "SET_IOBYTE", Handler: BdosSysCallSetIOByte}
	sys[9] = Handler{Desc: "C_WRITESTRING", Handler: BdosSysCallWriteString}
	sys[10] = Handler{Desc: "C_READSTRING", Handler: BdosSysCallReadString}
	sys[11] = Handler{Desc: "C_STAT", Handler: BdosSysCallConsoleStatus}
	sys[12] = Handler{Desc: "S_BDOSVER", Handler: BdosSysCallBDOSVersion}
	sys[13] = Handler{Desc: "DRV_ALLRESET", Handler: BdosSysCallDriveAllReset}
	sys[14] = Handler{Desc: "DRV_SET", Handler: BdosSysCallDriveSet}
	sys[15] = Handler{Desc: "F_OPEN", Handler: BdosSysCallFileOpen}
	sys[16] = Handler{Desc: "F_CLOSE", Handler: BdosSysCallFileClose}
	sys[17] = Handler{Desc: "F_SFIRST", Handler: BdosSysCallFindFirst}
	sys[18] = Handler{Desc: "F_SNEXT", Handler: BdosSysCallFindNext}
	sys[19] = Handler{Desc: "F_DELETE", Handler: BdosSysCallDeleteFile}
	sys[20] = Handler{Desc: "F_READ", Handler: BdosSysCallRead}
	sys[21] = Handler{Desc: "F_WRITE", Handler: BdosSysCallWrite}
	sys[22] = Handler{Desc: "F_MAKE", Handler: BdosSysCallMakeFile}
	sys[23] = Handler{Desc: "F_RENAME", Handler: BdosSysCallRenameFile}
	sys[24] = Handler{Desc: "DRV_LOGINVEC", Handler: BdosSysCallLoginVec}
	sys[25] = Handler{Desc: "DRV_GET", Handler: BdosSysCallDriveGet}
	sys[26] = Handler{Desc: "F_DMAOFF", Handler: BdosSysCallSetDMA}
	sys[27] = Handler{Desc: "DRV_ALLOCVEC", Handler: BdosSysCallDriveAlloc}
	sys[28] = Handler{Desc: "DRV_SETRO", Handler: BdosSysCallDriveSetRO}
	sys[29] = Handler{Desc: "DRV_ROVEC", Handler: BdosSysCallDriveROVec}
	sys[30] = Handler{Desc: "F_ATTRIB", Handler: BdosSysCallSetFileAttributes}
	sys[31] = Handler{Desc: "DRV_DPB", Handler: BdosSysCallGetDriveDPB}
	sys[32] = Handler{Desc: "F_USERNUM", Handler: BdosSysCallUserNumber}
	sys[33] = Handler{Desc: "F_READRAND", Handler: BdosSysCallReadRand}
	sys[34] = Handler{Desc: "F_WRITERAND", Handler: BdosSysCallWriteRand}
	sys[35] = Handler{Desc: "F_SIZE", Handler: BdosSysCallFileSize}
	sys[36] = Handler{Desc: "F_RANDREC", Handler: BdosSysCallRandRecord}
	sys[37] = Handler{Desc: "DRV_RESET", Handler: BdosSysCallDriveReset}
	sys[38] = Handler{Desc: "ACCESS_DRIVE", Handler: BdosSysCallAccessDrive}
	sys[39] = Handler{Desc: "FREE_DRIVE", Handler: BdosSysCallFreeDrive}
	sys[40] = Handler{Desc: "F_WRITEZF", Handler: BdosSysCallWriteRandZeroFill}

	return sys
}

// setResultByte applies the byte-return convention: the value goes to
// A, mirrored into L, with B and H cleared.
func (c *CPM) setResultByte(v uint8) {
	c.CPU.Regs.AF.Hi = v
	c.CPU.Regs.HL.Hi = 0x00
	c.CPU.Regs.HL.Lo = v
	c.CPU.Regs.BC.Hi = 0x00
}

// setResultWord applies the 16-bit return convention: the value goes
// to HL, with A mirroring L and B mirroring H.
func (c *CPM) setResultWord(v uint16) {
	c.CPU.Regs.HL.SetU16(v)
	c.CPU.Regs.AF.Hi = c.CPU.Regs.HL.Lo
	c.CPU.Regs.BC.Hi = c.CPU.Regs.HL.Hi
}

// BdosSysCallExit implements the System Reset syscall, which
// terminates the emulator.
func BdosSysCallExit(cpm *CPM) error {
	return ErrExit
}

// BdosSysCallReadChar blocks for a single character of console input.
func BdosSysCallReadChar(cpm *CPM) error {
	ch, err := cpm.readConsoleByte()
	if err != nil {
		return err
	}
	cpm.setResultByte(ch)
	return nil
}

// BdosSysCallWriteChar writes the low seven bits of E to the console.
func BdosSysCallWriteChar(cpm *CPM) error {
	cpm.output.PutCharacter(cpm.CPU.Regs.DE.Lo & 0x7F)
	return nil
}

// BdosSysCallAuxRead reads one byte from the auxiliary (reader)
// device.  Without a configured reader file it returns ^Z, endless
// end-of-file.
func BdosSysCallAuxRead(cpm *CPM) error {
	cpm.setResultByte(cpm.auxInC())
	return nil
}

// BdosSysCallAuxWrite sends the byte in E to the auxiliary (punch)
// device.
func BdosSysCallAuxWrite(cpm *CPM) error {
	cpm.auxOutC(cpm.CPU.Regs.DE.Lo)
	return nil
}

// BdosSysCallPrinterWrite sends the byte in E to the printer, which is
// faked by writing to a file.
func BdosSysCallPrinterWrite(cpm *CPM) error {
	cpm.prnC(cpm.CPU.Regs.DE.Lo)
	return nil
}

// BdosSysCallRawIO handles direct console I/O: E=0xFF polls for one
// byte, E=0xFE reports status, anything else is output.
func BdosSysCallRawIO(cpm *CPM) error {
	switch cpm.CPU.Regs.DE.Lo {
	case 0xFF:
		if !cpm.input.PendingInput() {
			cpm.setResultByte(0x00)
			return nil
		}
		ch, err := cpm.readConsoleByte()
		if err != nil {
			return err
		}
		cpm.setResultByte(ch)
		return nil

	case 0xFE:
		if cpm.input.PendingInput() {
			cpm.setResultByte(0xFF)
		} else {
			cpm.setResultByte(0x00)
		}
		return nil

	default:
		cpm.output.PutCharacter(cpm.CPU.Regs.DE.Lo & 0x7F)
		cpm.setResultByte(0x00)
		return nil
	}
}

// BdosSysCallGetIOByte gets the IOBYTE, which lives at 0x0003.
func BdosSysCallGetIOByte(cpm *CPM) error {
	cpm.setResultByte(cpm.Memory.Get(IOByteAddr))
	return nil
}

// BdosSysCallSetIOByte sets the IOBYTE from E.
func BdosSysCallSetIOByte(cpm *CPM) error {
	cpm.Memory.Set(IOByteAddr, cpm.CPU.Regs.DE.Lo)
	return nil
}

// BdosSysCallWriteString writes the $-terminated string pointed to by
// DE to the console.
func BdosSysCallWriteString(cpm *CPM) error {
	addr := cpm.CPU.Regs.DE.U16()

	ch := cpm.Memory.Get(addr)
	for ch != '$' {
		cpm.output.PutCharacter(ch & 0x7F)
		addr++
		ch = cpm.Memory.Get(addr)
	}

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallConsoleStatus returns 0xFF if console input is pending.
func BdosSysCallConsoleStatus(cpm *CPM) error {
	if cpm.input.PendingInput() {
		cpm.setResultByte(0xFF)
	} else {
		cpm.setResultByte(0x00)
	}
	return nil
}

// BdosSysCallBDOSVersion reports CP/M 2.2.
func BdosSysCallBDOSVersion(cpm *CPM) error {
	cpm.setResultWord(0x0022)
	return nil
}

// BdosSysCallDriveAllReset resets the disk system: all open files are
// closed, the drive returns to A:, the user to 0, and the DMA address
// to its default.
func BdosSysCallDriveAllReset(cpm *CPM) error {
	cpm.closeAllFiles()

	cpm.currentDrive = 0
	cpm.userNumber = 0
	cpm.Memory.Set(DrvUserAddr, 0x00)
	cpm.dma = DefaultDMA

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallDriveSet selects the current drive, 0 for A: up to 15
// for P:.
func BdosSysCallDriveSet(cpm *CPM) error {
	cpm.currentDrive = cpm.CPU.Regs.DE.Lo & 0x0F
	cpm.Memory.Set(DrvUserAddr, cpm.userNumber<<4|cpm.currentDrive)
	cpm.setResultByte(0x00)
	return nil
}

// closeAllFiles drops every entry of the open-file table.
func (c *CPM) closeAllFiles() {
	for addr, of := range c.files {
		err := of.Close()
		if err != nil {
			c.Logger.Debug("error closing file during reset",
				slog.String("path", of.HostPath),
				slog.String("error", err.Error()))
		}
		delete(c.files, addr)
	}
}

// BdosSysCallFileOpen opens the file named by the FCB pointed to by
// DE: the name is resolved through the mapping table and the result
// recorded in the open-file table, keyed by the FCB address.
func BdosSysCallFileOpen(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	f := cpm.fcbAt(ptr)

	fileName := f.GetFileName()
	if fileName == "" {
		cpm.setResultByte(0xFF)
		return nil
	}

	l := cpm.Logger.With(
		slog.String("function", "FileOpen"),
		slog.String("name", fileName))

	hostPath, mode, eol, found := cpm.findHostFile(fileName)
	if !found {
		l.Debug("file does not exist")
		cpm.setResultByte(0xFF)
		return nil
	}

	// Open read-write, falling back to read-only.
	fh, err := os.OpenFile(hostPath, os.O_RDWR, 0644)
	if err != nil {
		fh, err = os.Open(hostPath)
		if err != nil {
			l.Debug("failed to open",
				slog.String("path", hostPath),
				slog.String("error", err.Error()))
			cpm.setResultByte(0xFF)
			return nil
		}
	}

	cpm.files[ptr] = &OpenFile{
		File:       fh,
		HostPath:   hostPath,
		CPMName:    fileName,
		Mode:       mode,
		EOLConvert: eol,
	}

	// Fresh extent, full record count.
	f.Ex = 0
	f.RC = 0x80
	cpm.storeFCB(ptr, f)

	l.Debug("opened",
		slog.String("path", hostPath),
		slog.Int("fcb", int(ptr)))

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallFileClose closes the file tied to the FCB in DE, flushing
// any buffered write.  Closing a file that is not open succeeds:
// close is idempotent.
func BdosSysCallFileClose(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()

	of, ok := cpm.files[ptr]
	if ok {
		err := of.Close()
		if err != nil {
			return fmt.Errorf("failed to close file %04X: %s", ptr, err)
		}
		delete(cpm.files, ptr)
	}

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallFindFirst starts a directory enumeration for the pattern
// in the FCB at DE and emits the first match as a 32-byte directory
// record at the DMA address.
func BdosSysCallFindFirst(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	pattern := cpm.fcbAt(ptr)

	cpm.searchResults = nil
	cpm.searchIndex = 0

	seen := make(map[string]bool)

	add := func(hostPath string, name [8]uint8, ext [3]uint8) {
		key := fcb.Join83(name, ext)
		if seen[key] {
			return
		}
		if !pattern.Matches83(name, ext) {
			return
		}
		seen[key] = true
		cpm.searchResults = append(cpm.searchResults, searchResult{
			hostPath: hostPath,
			name:     name,
			ext:      ext,
		})
	}

	// Declared mappings carry explicit CP/M names; they come first.
	for _, mapping := range cpm.mappings {
		if host.GetFileType(mapping.HostPath) != host.Regular {
			continue
		}
		name, ext, ok := fcb.HostTo83(mapping.CPMPattern)
		if !ok {
			continue
		}
		add(mapping.HostPath, name, ext)
	}

	for cpmName, hostPath := range cpm.legacyMap {
		if host.GetFileType(hostPath) != host.Regular {
			continue
		}
		name, ext, ok := fcb.HostTo83(cpmName)
		if !ok {
			continue
		}
		add(hostPath, name, ext)
	}

	// Then everything in the current directory whose name converts
	// cleanly to 8.3.
	for _, entry := range host.ListDirectory(".") {
		if entry.IsDirectory || strings.HasPrefix(entry.Name, ".") {
			continue
		}
		name, ext, ok := fcb.HostTo83(entry.Name)
		if !ok {
			continue
		}
		add(entry.Name, name, ext)
	}

	cpm.Logger.Debug("FindFirst",
		slog.String("pattern", pattern.GetFileName()),
		slog.Int("matches", len(cpm.searchResults)))

	return cpm.emitSearchResult()
}

// BdosSysCallFindNext emits the next directory record, or 0xFF when
// the enumeration is exhausted.
func BdosSysCallFindNext(cpm *CPM) error {
	return cpm.emitSearchResult()
}

// emitSearchResult writes the next queued search result to the DMA
// area as a CP/M directory record.
func (c *CPM) emitSearchResult() error {
	if c.searchIndex >= len(c.searchResults) {
		c.setResultByte(0xFF)
		return nil
	}

	res := c.searchResults[c.searchIndex]
	c.searchIndex++

	size := host.GetFileSize(res.hostPath)
	if size < 0 {
		size = 0
	}
	records := int((size + blkSize - 1) / blkSize)
	rc := records
	if rc > 128 {
		rc = 128
	}

	// 32-byte directory record: user, name, extension, extent
	// bytes, record count, then the allocation map.
	rec := make([]uint8, 32)
	rec[0] = c.userNumber
	copy(rec[1:9], res.name[:])
	copy(rec[9:12], res.ext[:])
	rec[15] = uint8(rc)

	used := (records + 7) / 8
	for i := 0; i < 16; i++ {
		if i < used {
			rec[16+i] = 0x01
		}
	}

	c.Memory.SetRange(c.dma, rec...)
	c.setResultByte(0x00)
	return nil
}

// BdosSysCallDeleteFile deletes the file named by the FCB in DE.
func BdosSysCallDeleteFile(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	f := cpm.fcbAt(ptr)

	fileName := f.GetFileName()
	hostPath, _, _, found := cpm.findHostFile(fileName)

	cpm.Logger.Debug("DeleteFile",
		slog.String("name", fileName),
		slog.String("path", hostPath))

	if !found || os.Remove(hostPath) != nil {
		cpm.setResultByte(0xFF)
		return nil
	}

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallRead reads the next sequential record from the file tied
// to the FCB in DE into the DMA area, padding short reads with ^Z.
func BdosSysCallRead(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	f := cpm.fcbAt(ptr)

	of, ok := cpm.files[ptr]
	if !ok {
		cpm.Logger.Error("Read: file is not open",
			slog.Int("fcb", int(ptr)))
		cpm.setResultByte(0xFF)
		return nil
	}

	buf := make([]byte, blkSize)
	n, err := of.readRecord(buf)
	if err != nil {
		return fmt.Errorf("error reading %s: %s", of.HostPath, err)
	}

	// The current record advances whether or not data arrived.
	f.Cr++
	cpm.storeFCB(ptr, f)

	if n == 0 {
		cpm.setResultByte(0x01)
		return nil
	}

	padRecord(buf, n)
	cpm.Memory.SetRange(cpm.dma, buf...)
	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallWrite writes the record at the DMA area to the file tied
// to the FCB in DE.  A write against an FCB that was never opened
// first attempts the open, which keeps badly-behaved programs going.
func BdosSysCallWrite(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()

	of, ok := cpm.files[ptr]
	if !ok {
		err := BdosSysCallFileOpen(cpm)
		if err != nil {
			return err
		}
		of, ok = cpm.files[ptr]
		if !ok {
			cpm.setResultByte(0xFF)
			return nil
		}
	}

	f := cpm.fcbAt(ptr)
	of.WriteMode = true

	data := cpm.Memory.GetRange(cpm.dma, blkSize)
	_, err := of.writeRecord(data)
	if err != nil {
		cpm.Logger.Error("Write failed",
			slog.String("path", of.HostPath),
			slog.String("error", err.Error()))
		cpm.setResultByte(0xFF)
		return nil
	}

	f.Cr++
	cpm.storeFCB(ptr, f)

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallMakeFile creates the file named by the FCB in DE, using
// the lower-cased name on the host side, and registers it as open.
func BdosSysCallMakeFile(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	f := cpm.fcbAt(ptr)

	fileName := f.GetFileName()
	if fileName == "" {
		cpm.setResultByte(0xFF)
		return nil
	}

	hostName := strings.ToLower(fileName)

	fh, err := os.OpenFile(hostName, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		cpm.Logger.Debug("MakeFile failed",
			slog.String("path", hostName),
			slog.String("error", err.Error()))
		cpm.setResultByte(0xFF)
		return nil
	}

	cpm.files[ptr] = &OpenFile{
		File:       fh,
		HostPath:   hostName,
		CPMName:    fileName,
		Mode:       cpm.applyDefaultMode(fileName),
		EOLConvert: cpm.defaultEOL,
		WriteMode:  true,
	}

	f.Ex = 0
	f.RC = 0
	cpm.storeFCB(ptr, f)

	cpm.Logger.Debug("MakeFile",
		slog.String("name", fileName),
		slog.String("path", hostName))

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallRenameFile renames a file; the FCB carries the old name
// in bytes 0-15 and the new name in bytes 16-31.
func BdosSysCallRenameFile(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()

	oldFCB := cpm.fcbAt(ptr)
	newFCB := cpm.fcbAt(ptr + 16)
	oldName := oldFCB.GetFileName()
	newName := newFCB.GetFileName()

	oldPath, _, _, found := cpm.findHostFile(oldName)
	if !found {
		cpm.setResultByte(0xFF)
		return nil
	}

	// The new file lands in the same directory as the old one,
	// lower-cased the way Make would create it.
	newPath := qualify(filepath.Dir(oldPath), strings.ToLower(newName))

	cpm.Logger.Debug("RenameFile",
		slog.String("old", oldPath),
		slog.String("new", newPath))

	err := os.Rename(oldPath, newPath)
	if err != nil {
		cpm.Logger.Debug("rename failed",
			slog.String("error", err.Error()))
		cpm.setResultByte(0xFF)
		return nil
	}

	// The new name must resolve from now on.
	cpm.AddLegacyMapping(newName, newPath)

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallLoginVec reports drive A: as the only logged-in drive.
func BdosSysCallLoginVec(cpm *CPM) error {
	cpm.setResultWord(0x0001)
	return nil
}

// BdosSysCallDriveGet returns the currently selected drive.
func BdosSysCallDriveGet(cpm *CPM) error {
	cpm.setResultByte(cpm.currentDrive)
	return nil
}

// BdosSysCallSetDMA updates the DMA address from DE.
func BdosSysCallSetDMA(cpm *CPM) error {
	cpm.dma = cpm.CPU.Regs.DE.U16()
	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallDriveAlloc returns the address of the in-memory
// allocation vector.
func BdosSysCallDriveAlloc(cpm *CPM) error {
	cpm.setResultWord(alvAddr)
	return nil
}

// BdosSysCallDriveSetRO pretends to write-protect the current drive.
func BdosSysCallDriveSetRO(cpm *CPM) error {
	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallDriveROVec reports that no drives are read-only.
func BdosSysCallDriveROVec(cpm *CPM) error {
	cpm.setResultWord(0x0000)
	return nil
}

// BdosSysCallSetFileAttributes pretends to update file attributes.
func BdosSysCallSetFileAttributes(cpm *CPM) error {
	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallGetDriveDPB returns the address of the in-memory DPB.
func BdosSysCallGetDriveDPB(cpm *CPM) error {
	cpm.setResultWord(dpbAddr)
	return nil
}

// BdosSysCallUserNumber gets (E=0xFF) or sets the user number.
func BdosSysCallUserNumber(cpm *CPM) error {
	e := cpm.CPU.Regs.DE.Lo

	if e != 0xFF {
		cpm.userNumber = e & 0x0F
		cpm.Memory.Set(DrvUserAddr, cpm.userNumber<<4|cpm.currentDrive)
	}

	cpm.setResultByte(cpm.userNumber)
	return nil
}

// BdosSysCallReadRand reads the 128-byte record numbered by R0..R2
// into the DMA area.  Random I/O never converts line endings.
func BdosSysCallReadRand(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	f := cpm.fcbAt(ptr)

	of, ok := cpm.files[ptr]
	if !ok {
		cpm.Logger.Error("ReadRand: file is not open",
			slog.Int("fcb", int(ptr)))
		cpm.setResultByte(0xFF)
		return nil
	}

	record := f.RandomRecord()
	offset := int64(record) * blkSize

	size := host.GetFileSize(of.HostPath)
	if size >= 0 && offset > size {
		// Seeking past the end of what exists: record out of
		// range.
		cpm.setResultByte(0x06)
		return nil
	}

	if _, err := of.File.Seek(offset, io.SeekStart); err != nil {
		cpm.setResultByte(0xFF)
		return nil
	}

	buf := make([]byte, blkSize)
	n, err := of.File.Read(buf)
	if err != nil && err != io.EOF {
		cpm.setResultByte(0xFF)
		return nil
	}

	if n == 0 {
		cpm.setResultByte(0x01)
		return nil
	}

	padRecord(buf, n)
	cpm.Memory.SetRange(cpm.dma, buf...)

	cpm.Logger.Debug("ReadRand",
		slog.Int("fcb", int(ptr)),
		slog.Int("record", record))

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallWriteRand writes the DMA record at the position numbered
// by R0..R2, zero-padding any gap beyond the current end of file.
func BdosSysCallWriteRand(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	f := cpm.fcbAt(ptr)

	of, ok := cpm.files[ptr]
	if !ok {
		cpm.Logger.Error("WriteRand: file is not open",
			slog.Int("fcb", int(ptr)))
		cpm.setResultByte(0xFF)
		return nil
	}

	record := f.RandomRecord()
	offset := int64(record) * blkSize

	size, err := of.File.Seek(0, io.SeekEnd)
	if err != nil {
		cpm.setResultByte(0xFF)
		return nil
	}

	for pad := offset - size; pad > 0; pad-- {
		if _, err := of.File.Write([]byte{0x00}); err != nil {
			return fmt.Errorf("error adding padding: %s", err)
		}
	}

	if _, err := of.File.Seek(offset, io.SeekStart); err != nil {
		cpm.setResultByte(0xFF)
		return nil
	}

	data := cpm.Memory.GetRange(cpm.dma, blkSize)
	n, err := of.File.Write(data)
	if err != nil || n != blkSize {
		cpm.setResultByte(0xFF)
		return nil
	}

	of.WriteMode = true

	cpm.Logger.Debug("WriteRand",
		slog.Int("fcb", int(ptr)),
		slog.Int("record", record))

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallFileSize computes the record count of the named file,
// rounded up, and stores it in R0..R2.  The file need not be open.
func BdosSysCallFileSize(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	f := cpm.fcbAt(ptr)

	hostPath, _, _, found := cpm.findHostFile(f.GetFileName())
	if !found {
		cpm.setResultByte(0xFF)
		return nil
	}

	size := host.GetFileSize(hostPath)
	if size < 0 {
		cpm.setResultByte(0xFF)
		return nil
	}

	records := int((size + blkSize - 1) / blkSize)
	f.SetRandomRecord(records)
	cpm.storeFCB(ptr, f)

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallRandRecord sets the random-record bytes of the FCB from
// the current sequential position, EX*128 + CR.
func BdosSysCallRandRecord(cpm *CPM) error {
	ptr := cpm.CPU.Regs.DE.U16()
	f := cpm.fcbAt(ptr)

	f.SetRandomRecord(int(f.Ex)*128 + int(f.Cr))
	cpm.storeFCB(ptr, f)

	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallDriveReset resets the drives named by the bitmap in DE,
// which for this emulator means closing all open files.
func BdosSysCallDriveReset(cpm *CPM) error {
	cpm.closeAllFiles()
	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallAccessDrive is a free-space stub reporting success.
func BdosSysCallAccessDrive(cpm *CPM) error {
	cpm.setResultByte(0x00)
	return nil
}

// BdosSysCallFreeDrive is a free-space stub.
func BdosSysCallFreeDrive(cpm *CPM) error {
	return nil
}

// BdosSysCallWriteRandZeroFill behaves as a plain random write; the
// zero fill of a fresh block already happens through padding.
func BdosSysCallWriteRandZeroFill(cpm *CPM) error {
	return BdosSysCallWriteRand(cpm)
}

// prnC writes one character to the printer device, falling back to a
// prefixed line on stdout when no printer file is configured.
func (c *CPM) prnC(ch uint8) {
	ch &= 0x7F
	if c.printerFile != nil {
		fmt.Fprintf(c.printerFile, "%c", ch)
		return
	}
	fmt.Printf("[PRINTER] %c", ch)
}

// auxOutC writes one character to the punch device, falling back to a
// prefixed line on stdout.
func (c *CPM) auxOutC(ch uint8) {
	ch &= 0x7F
	if c.auxOutFile != nil {
		fmt.Fprintf(c.auxOutFile, "%c", ch)
		return
	}
	fmt.Printf("[PUNCH] %c", ch)
}

// auxInC reads one character from the reader device; without one the
// reader reports endless ^Z.
func (c *CPM) auxInC() uint8 {
	if c.auxInFile == nil {
		return cpmEOF
	}

	b := make([]byte, 1)
	n, err := c.auxInFile.Read(b)
	if err != nil || n == 0 {
		return cpmEOF
	}
	return b[0] & 0x7F
}
