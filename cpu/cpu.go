package cpu

import (
	"errors"
	"fmt"
	"io"

	"github.com/hjkit/avwohl-cpmemu/memory"
)

var (
	// ErrHalt is returned by Step when the CPU executes a HALT
	// instruction.  Callers decide what to do with it; the driver
	// treats it as program termination.
	ErrHalt = errors.New("HALT")
)

// Ports is the I/O callback record the embedder supplies: IN and OUT
// instructions are routed through it.  A nil Ports behaves like a
// floating bus - reads return 0xFF and writes are discarded.
type Ports interface {

	// In handles the IN instruction for the given port.
	In(port uint8) uint8

	// Out handles the OUT instruction for the given port.
	Out(port uint8, value uint8)
}

// 8-bit register selectors as encoded in opcodes.
const (
	regB     = 0
	regC     = 1
	regD     = 2
	regE     = 3
	regH     = 4
	regL     = 5
	regM     = 6 // (HL) memory operand
	regA     = 7
	regFlags = 8
)

// Register-pair selectors.
const (
	regpBC = 0
	regpDE = 1
	regpHL = 2
	regpSP = 3
	regpAF = 4
	regpPC = 5
	regpIX = 6
	regpIY = 7
)

// CPU executes 8080/Z80 instructions against a 64K memory image.
//
// The embedder supplies behaviour through the Ports and Tracer hooks
// rather than through subclassing; the core itself holds no global
// state.
type CPU struct {
	// Regs is the register file.
	Regs Registers

	// Mem is the memory the CPU executes from.
	Mem *memory.Memory

	// Ports receives IN/OUT traffic.  May be nil.
	Ports Ports

	// Tracer observes fetches and decoded operations.  May be nil.
	Tracer Tracer

	// Cycles counts executed cycles, approximately: each
	// instruction adds a flat 5.  It exists only for pacing timer
	// interrupts, not for cycle-exact timing.
	Cycles uint64

	// Pending interrupt state, set by RequestInt/RequestNmi and
	// consumed by CheckInterrupts at instruction boundaries.
	intPending bool
	nmiPending bool
	intVector  uint8
}

// New returns a CPU bound to the given memory, in Z80 mode.
func New(mem *memory.Memory) *CPU {
	c := &CPU{
		Mem: mem,
	}
	c.Regs.Mode = ModeZ80
	return c
}

// SetMode switches between 8080 and Z80 semantics.
func (c *CPU) SetMode(mode Mode) {
	c.Regs.Mode = mode
}

func (c *CPU) trace() Tracer {
	if c.Tracer == nil {
		return nopTracer{}
	}
	return c.Tracer
}

// fetchByte reads the next byte from the opcode stream and advances PC.
func (c *CPU) fetchByte() uint8 {
	pc := c.Regs.PC.U16()
	b := c.Mem.Fetch(pc)
	c.trace().Fetch(b, pc)
	c.Regs.PC.SetU16(pc + 1)
	return b
}

// fetchWord reads a little-endian word from the opcode stream.
func (c *CPU) fetchWord() uint16 {
	low := c.fetchByte()
	high := c.fetchByte()
	return (uint16(high) << 8) | uint16(low)
}

// readWord reads a little-endian word from memory.
func (c *CPU) readWord(addr uint16) uint16 {
	return c.Mem.GetU16(addr)
}

// writeWord stores a little-endian word to memory.
func (c *CPU) writeWord(addr uint16, value uint16) {
	c.Mem.SetU16(addr, value)
}

// PushWord pushes a word onto the stack.
func (c *CPU) PushWord(w uint16) {
	sp := c.Regs.SP.U16() - 2
	c.Regs.SP.SetU16(sp)
	c.writeWord(sp, w)
}

// PopWord pops a word from the stack.
func (c *CPU) PopWord() uint16 {
	sp := c.Regs.SP.U16()
	w := c.readWord(sp)
	c.Regs.SP.SetU16(sp + 2)
	return w
}

// getReg8 reads an 8-bit register by selector; selector regM reads the
// byte at (HL).
func (c *CPU) getReg8(sel uint8) uint8 {
	switch sel {
	case regB:
		return c.Regs.BC.Hi
	case regC:
		return c.Regs.BC.Lo
	case regD:
		return c.Regs.DE.Hi
	case regE:
		return c.Regs.DE.Lo
	case regH:
		return c.Regs.HL.Hi
	case regL:
		return c.Regs.HL.Lo
	case regM:
		return c.Mem.Get(c.Regs.HL.U16())
	case regA:
		return c.Regs.AF.Hi
	}
	panic(fmt.Sprintf("cpu: invalid 8-bit register selector %d at PC 0x%04X", sel, c.Regs.PC.U16()))
}

// setReg8 writes an 8-bit register by selector; selector regM writes
// the byte at (HL).
func (c *CPU) setReg8(sel uint8, value uint8) {
	c.trace().Reg8(sel)
	switch sel {
	case regB:
		c.Regs.BC.Hi = value
	case regC:
		c.Regs.BC.Lo = value
	case regD:
		c.Regs.DE.Hi = value
	case regE:
		c.Regs.DE.Lo = value
	case regH:
		c.Regs.HL.Hi = value
	case regL:
		c.Regs.HL.Lo = value
	case regM:
		c.Mem.Set(c.Regs.HL.U16(), value)
	case regA:
		c.Regs.AF.Hi = value
	default:
		panic(fmt.Sprintf("cpu: invalid 8-bit register selector %d at PC 0x%04X", sel, c.Regs.PC.U16()))
	}
}

// getReg16 reads a register pair by selector.  AF reads the flags
// through the mode fix-up.
func (c *CPU) getReg16(sel uint8) uint16 {
	switch sel {
	case regpBC:
		return c.Regs.BC.U16()
	case regpDE:
		return c.Regs.DE.U16()
	case regpHL:
		return c.Regs.HL.U16()
	case regpSP:
		return c.Regs.SP.U16()
	case regpAF:
		return (uint16(c.Regs.AF.Hi) << 8) | uint16(c.Regs.GetFlags())
	case regpPC:
		return c.Regs.PC.U16()
	case regpIX:
		return c.Regs.IX.U16()
	case regpIY:
		return c.Regs.IY.U16()
	}
	panic(fmt.Sprintf("cpu: invalid 16-bit register selector %d at PC 0x%04X", sel, c.Regs.PC.U16()))
}

// setReg16 writes a register pair by selector.  Stores to AF route the
// flag byte through SetFlags so the mode invariants hold.
func (c *CPU) setReg16(sel uint8, value uint16) {
	c.trace().Reg16(sel)
	switch sel {
	case regpBC:
		c.Regs.BC.SetU16(value)
	case regpDE:
		c.Regs.DE.SetU16(value)
	case regpHL:
		c.Regs.HL.SetU16(value)
	case regpSP:
		c.Regs.SP.SetU16(value)
	case regpAF:
		c.Regs.AF.Hi = uint8(value >> 8)
		c.Regs.SetFlags(uint8(value & 0xFF))
	case regpPC:
		c.Regs.PC.SetU16(value)
	case regpIX:
		c.Regs.IX.SetU16(value)
	case regpIY:
		c.Regs.IY.SetU16(value)
	default:
		panic(fmt.Sprintf("cpu: invalid 16-bit register selector %d at PC 0x%04X", sel, c.Regs.PC.U16()))
	}
}

// indexPair returns the pair addressed by an index-register selector.
func (c *CPU) indexPair(sel uint8) *RegPair {
	if sel == regpIX {
		return &c.Regs.IX
	}
	return &c.Regs.IY
}

// portIn routes an IN through the Ports hook, defaulting to a
// floating bus.
func (c *CPU) portIn(port uint8) uint8 {
	if c.Ports == nil {
		return 0xFF
	}
	return c.Ports.In(port)
}

// portOut routes an OUT through the Ports hook; writes are discarded
// without one.
func (c *CPU) portOut(port uint8, value uint8) {
	if c.Ports != nil {
		c.Ports.Out(port, value)
	}
}

// RequestInt requests a maskable interrupt.  The vector is the
// instruction byte for IM 0 (typically an RST), the low vector byte
// for IM 2, and ignored for IM 1.
func (c *CPU) RequestInt(vector uint8) {
	c.intPending = true
	c.intVector = vector
}

// RequestNmi requests a non-maskable interrupt.
func (c *CPU) RequestNmi() {
	c.nmiPending = true
}

// RequestRst requests a maskable interrupt whose IM 0 vector is the
// RST n instruction, n in 0-7.
func (c *CPU) RequestRst(rst uint8) {
	c.RequestInt(0xC7 | ((rst & 7) << 3))
}

// CheckInterrupts delivers the highest-priority pending interrupt, NMI
// before INT.  It must only be called at instruction boundaries.  It
// returns true if an interrupt was delivered.
func (c *CPU) CheckInterrupts() bool {

	if c.nmiPending {
		c.nmiPending = false
		c.PushWord(c.Regs.PC.U16())
		c.Regs.PC.SetU16(0x0066)
		c.Regs.IFF2 = c.Regs.IFF1
		c.Regs.IFF1 = false
		c.Cycles += 11
		return true
	}

	if c.intPending && c.Regs.IFF1 {
		c.intPending = false
		c.Regs.IFF1 = false
		c.Regs.IFF2 = false
		c.Cycles += 13

		switch c.Regs.IM {
		case 0:
			// Execute the vector as a one-byte instruction.
			// In practice the device supplies an RST.
			if c.intVector&0xC7 == 0xC7 {
				c.PushWord(c.Regs.PC.U16())
				c.Regs.PC.SetU16(uint16(c.intVector&0x38))
			} else {
				c.trace().Op("im0 vector %02x ignored (not RST)", c.intVector)
			}
		case 1:
			c.PushWord(c.Regs.PC.U16())
			c.Regs.PC.SetU16(0x0038)
		case 2:
			addr := (uint16(c.Regs.I) << 8) | uint16(c.intVector)
			c.PushWord(c.Regs.PC.U16())
			c.Regs.PC.SetU16(c.readWord(addr))
		}
		return true
	}

	return false
}

// DumpRegisters writes a one-line register dump, used on HALT and for
// debugging.
func (c *CPU) DumpRegisters(w io.Writer, label string) {
	flags := c.Regs.GetFlags()

	fmt.Fprintf(w, "%s PC=%04X AF=%02X%02X BC=%02X%02X DE=%02X%02X HL=%02X%02X SP=%04X IX=%04X IY=%04X [",
		label,
		c.Regs.PC.U16(),
		c.Regs.AF.Hi, flags,
		c.Regs.BC.Hi, c.Regs.BC.Lo,
		c.Regs.DE.Hi, c.Regs.DE.Lo,
		c.Regs.HL.Hi, c.Regs.HL.Lo,
		c.Regs.SP.U16(),
		c.Regs.IX.U16(),
		c.Regs.IY.U16())

	names := "SZYHXPNC"
	for i := 0; i < 8; i++ {
		if flags&(0x80>>i) != 0 {
			fmt.Fprintf(w, "%c", names[i])
		} else {
			fmt.Fprintf(w, "-")
		}
	}
	fmt.Fprintf(w, "]\n")
}
