// This file implements the BIOS function-calls.
//
// These are documented online:
//
// * https://www.seasip.info/Cpm/bios.html

package cpm

import (
	"fmt"
	"os"
)

// BIOS jump-table entries, in table order.
const (
	biosBoot = iota
	biosWBoot
	biosConst
	biosConin
	biosConout
	biosList
	biosPunch
	biosReader
	biosHome
	biosSeldsk
	biosSettrk
	biosSetsec
	biosSetdma
	biosRead
	biosWrite
	biosListst
	biosSectran
)

// biosTable builds the entry-number-indexed BIOS dispatch table.
func biosTable() map[uint8]Handler {
	sys := make(map[uint8]Handler)

	sys[biosBoot] = Handler{Desc: "BOOT", Handler: BiosSysCallColdBoot}
	sys[biosWBoot] = Handler{Desc: "WBOOT", Handler: BiosSysCallWarmBoot}
	sys[biosConst] = Handler{Desc: "CONST", Handler: BiosSysCallConsoleStatus}
	sys[biosConin] = Handler{Desc: "CONIN", Handler: BiosSysCallConsoleInput}
	sys[biosConout] = Handler{Desc: "CONOUT", Handler: BiosSysCallConsoleOutput}
	sys[biosList] = Handler{Desc: "LIST", Handler: BiosSysCallPrintChar}
	sys[biosPunch] = Handler{Desc: "PUNCH", Handler: BiosSysCallPunch}
	sys[biosReader] = Handler{Desc: "READER", Handler: BiosSysCallReader}
	sys[biosHome] = Handler{Desc: "HOME", Handler: BiosSysCallDiskStub}
	sys[biosSeldsk] = Handler{Desc: "SELDSK", Handler: BiosSysCallSelDisk}
	sys[biosSettrk] = Handler{Desc: "SETTRK", Handler: BiosSysCallDiskStub}
	sys[biosSetsec] = Handler{Desc: "SETSEC", Handler: BiosSysCallDiskStub}
	sys[biosSetdma] = Handler{Desc: "SETDMA", Handler: BiosSysCallDiskStub}
	sys[biosRead] = Handler{Desc: "READ", Handler: BiosSysCallDiskStub}
	sys[biosWrite] = Handler{Desc: "WRITE", Handler: BiosSysCallDiskStub}
	sys[biosListst] = Handler{Desc: "LISTST", Handler: BiosSysCallPrinterStatus}
	sys[biosSectran] = Handler{Desc: "SECTRAN", Handler: BiosSysCallDiskStub}

	return sys
}

// BiosSysCallColdBoot terminates the emulator; nothing restarts.
func BiosSysCallColdBoot(cpm *CPM) error {
	return ErrExit
}

// BiosSysCallWarmBoot terminates the emulator; with no CCP there is
// nothing to warm-boot back into.
func BiosSysCallWarmBoot(cpm *CPM) error {
	return ErrExit
}

// BiosSysCallConsoleStatus returns 0xFF in A if console input is
// pending, 0x00 otherwise.
func BiosSysCallConsoleStatus(cpm *CPM) error {
	if cpm.input.PendingInput() {
		cpm.CPU.Regs.AF.Hi = 0xFF
	} else {
		cpm.CPU.Regs.AF.Hi = 0x00
	}
	return nil
}

// BiosSysCallConsoleInput blocks for a single byte of console input,
// returned in A with the usual LF-to-CR conversion and ^C counting.
func BiosSysCallConsoleInput(cpm *CPM) error {
	ch, err := cpm.readConsoleByte()
	if err != nil {
		return err
	}
	cpm.CPU.Regs.AF.Hi = ch
	return nil
}

// BiosSysCallConsoleOutput writes the low seven bits of C to the
// console.
func BiosSysCallConsoleOutput(cpm *CPM) error {
	cpm.output.PutCharacter(cpm.CPU.Regs.BC.Lo & 0x7F)
	return nil
}

// BiosSysCallPrintChar sends the byte in C to the printer device.
func BiosSysCallPrintChar(cpm *CPM) error {
	cpm.prnC(cpm.CPU.Regs.BC.Lo)
	return nil
}

// BiosSysCallPunch sends the byte in C to the punch device.
func BiosSysCallPunch(cpm *CPM) error {
	cpm.auxOutC(cpm.CPU.Regs.BC.Lo)
	return nil
}

// BiosSysCallReader reads one byte from the reader device into A.
func BiosSysCallReader(cpm *CPM) error {
	cpm.CPU.Regs.AF.Hi = cpm.auxInC()
	return nil
}

// BiosSysCallPrinterStatus reports the printer as always ready.
func BiosSysCallPrinterStatus(cpm *CPM) error {
	cpm.CPU.Regs.AF.Hi = 0xFF
	return nil
}

// BiosSysCallSelDisk selects a disk: drive A: returns the DPH address
// in HL, anything else returns zero for "no such drive".
func BiosSysCallSelDisk(cpm *CPM) error {
	if cpm.CPU.Regs.BC.Lo == 0 {
		cpm.CPU.Regs.HL.SetU16(dphAddr)
	} else {
		cpm.CPU.Regs.HL.SetU16(0x0000)
	}
	return nil
}

// BiosSysCallDiskStub covers HOME, SETTRK, SETSEC, SETDMA, READ,
// WRITE and SECTRAN.  File I/O happens at the BDOS level, so these
// respond per the configured disk mode: success, failure, or a fatal
// diagnostic.
func BiosSysCallDiskStub(cpm *CPM) error {
	switch cpm.BIOSDiskMode {
	case DiskError:
		fmt.Fprintf(os.Stderr, "FATAL: Unimplemented BIOS disk function\n")
		fmt.Fprintf(os.Stderr, "This emulator handles file I/O at the BDOS level.\n")
		fmt.Fprintf(os.Stderr, "Set CPM_BIOS_DISK=ok or CPM_BIOS_DISK=fail to change this behavior.\n")
		return ErrBiosDisk
	case DiskFail:
		cpm.CPU.Regs.AF.Hi = 0x01
	default:
		cpm.CPU.Regs.AF.Hi = 0x00
	}
	return nil
}
