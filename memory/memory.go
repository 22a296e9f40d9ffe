// Package memory provides the flat 64k of RAM within which the
// emulator executes its programs.
//
// There is no paging and no protection: all addresses wrap modulo
// 65536, and a read or write can never fail.
package memory

import (
	"fmt"
	"os"
)

// Memory provides the 64K byte array the emulated system runs in.
type Memory struct {
	buf [65536]uint8
}

// Set sets a byte at addr of memory.
func (m *Memory) Set(addr uint16, value uint8) {
	m.buf[addr] = value
}

// Get returns a byte at addr of memory.
func (m *Memory) Get(addr uint16) uint8 {
	return m.buf[addr]
}

// Fetch returns a byte at addr of memory, marking the access as an
// instruction fetch.  The distinction only matters to instrumentation,
// the returned value is identical to Get.
func (m *Memory) Fetch(addr uint16) uint8 {
	return m.buf[addr]
}

// GetU16 returns a little-endian word from the given address of memory.
func (m *Memory) GetU16(addr uint16) uint16 {
	l := m.Get(addr)
	h := m.Get(addr + 1)
	return (uint16(h) << 8) | uint16(l)
}

// SetU16 stores a little-endian word at the given address of memory.
func (m *Memory) SetU16(addr uint16, value uint16) {
	m.Set(addr, uint8(value&0xFF))
	m.Set(addr+1, uint8(value>>8))
}

// SetRange copies bytes from the given data to the specified
// starting address in RAM.
func (m *Memory) SetRange(addr uint16, data ...uint8) {
	for _, b := range data {
		m.buf[addr] = b
		addr++
	}
}

// FillRange fills an area of memory with the given byte.
func (m *Memory) FillRange(addr uint16, size int, char uint8) {
	for size > 0 {
		m.buf[addr] = char
		addr++
		size--
	}
}

// GetRange returns the contents of a given range.
func (m *Memory) GetRange(addr uint16, size int) []uint8 {
	ret := make([]uint8, 0, size)
	for size > 0 {
		ret = append(ret, m.buf[addr])
		addr++
		size--
	}
	return ret
}

// LoadFile loads the given binary into RAM at the specified offset,
// typically 0x0100 for a CP/M .COM file.
func (m *Memory) LoadFile(offset uint16, name string) error {

	prog, err := os.ReadFile(name)
	if err != nil {
		return err
	}

	// The file must fit between offset and the top of memory.
	if len(prog) > 0x10000-int(offset) {
		return fmt.Errorf("%s is too large to load at 0x%04X (%d bytes)", name, offset, len(prog))
	}

	m.SetRange(offset, prog...)
	return nil
}
