package cpu

// executeED dispatches the ED-prefixed Z80 extension table.  Most ED
// opcodes are duplicates or NOPs on real silicon; everything outside
// the documented set falls through to a traced NOP.
func (c *CPU) executeED(opcode uint8) {
	switch opcode {

	// ADC HL,rr
	case 0x4A, 0x5A, 0x6A, 0x7A:
		rp := (opcode >> 4) & 0x03
		hl := c.Regs.HL.U16()
		rhs := c.getReg16(rp)
		result := c.Regs.setFlagsFromAdc16(hl, rhs, c.Regs.CarryAsInt())
		c.Regs.HL.SetU16(result)
		c.trace().Op("adc hl,rp=%d", rp)

	// SBC HL,rr
	case 0x42, 0x52, 0x62, 0x72:
		rp := (opcode >> 4) & 0x03
		hl := c.Regs.HL.U16()
		rhs := c.getReg16(rp)
		result := c.Regs.setFlagsFromSbc16(hl, rhs, c.Regs.CarryAsInt())
		c.Regs.HL.SetU16(result)
		c.trace().Op("sbc hl,rp=%d", rp)

	// LD (nn),rr
	case 0x43, 0x53, 0x63, 0x73:
		rp := (opcode >> 4) & 0x03
		addr := c.fetchWord()
		c.writeWord(addr, c.getReg16(rp))
		c.trace().Op("ld (0x%04x),rp=%d", addr, rp)

	// LD rr,(nn)
	case 0x4B, 0x5B, 0x6B, 0x7B:
		rp := (opcode >> 4) & 0x03
		addr := c.fetchWord()
		c.setReg16(rp, c.readWord(addr))
		c.trace().Op("ld rp=%d,(0x%04x)", rp, addr)

	// NEG, with its seven undocumented duplicates.
	case 0x44, 0x4C, 0x54, 0x5C, 0x64, 0x6C, 0x74, 0x7C:
		a := c.Regs.AF.Hi
		c.Regs.AF.Hi = c.Regs.setFlagsFromDiff8(0, a, 0)
		c.trace().Op("neg")

	// IM 0 (with duplicates)
	case 0x46, 0x4E, 0x66, 0x6E:
		c.Regs.IM = 0
		c.trace().Op("im 0")

	// IM 1
	case 0x56, 0x76:
		c.Regs.IM = 1
		c.trace().Op("im 1")

	// IM 2
	case 0x5E, 0x7E:
		c.Regs.IM = 2
		c.trace().Op("im 2")

	case 0x47: // LD I,A
		c.Regs.I = c.Regs.AF.Hi
		c.trace().Op("ld i,a")

	case 0x4F: // LD R,A
		c.Regs.R = c.Regs.AF.Hi
		c.trace().Op("ld r,a")

	case 0x57: // LD A,I
		c.Regs.AF.Hi = c.Regs.I
		c.Regs.setFlagsFromLdAIR(c.Regs.I)
		c.trace().Op("ld a,i")

	case 0x5F: // LD A,R
		c.Regs.AF.Hi = c.Regs.R
		c.Regs.setFlagsFromLdAIR(c.Regs.R)
		c.trace().Op("ld a,r")

	case 0x4D: // RETI
		c.Regs.PC.SetU16(c.PopWord())
		c.trace().Op("reti")

	// RETN (with duplicates); restores IFF1 from IFF2.
	case 0x45, 0x55, 0x5D, 0x65, 0x6D, 0x75, 0x7D:
		c.Regs.PC.SetU16(c.PopWord())
		c.Regs.IFF1 = c.Regs.IFF2
		c.trace().Op("retn")

	case 0x67: // RRD
		addr := c.Regs.HL.U16()
		a := c.Regs.AF.Hi
		m := c.Mem.Get(addr)
		newA := (a & 0xF0) | (m & 0x0F)
		newM := (m >> 4) | ((a & 0x0F) << 4)
		c.Regs.AF.Hi = newA
		c.Mem.Set(addr, newM)
		c.Regs.setFlagsFromLogic8(newA, c.Regs.CarryAsInt(), 0)
		c.trace().Op("rrd")

	case 0x6F: // RLD
		addr := c.Regs.HL.U16()
		a := c.Regs.AF.Hi
		m := c.Mem.Get(addr)
		newA := (a & 0xF0) | ((m >> 4) & 0x0F)
		newM := (m << 4) | (a & 0x0F)
		c.Regs.AF.Hi = newA
		c.Mem.Set(addr, newM)
		c.Regs.setFlagsFromLogic8(newA, c.Regs.CarryAsInt(), 0)
		c.trace().Op("rld")

	case 0xA0: // LDI
		c.blockLoad(1, false)
		c.trace().Op("ldi")

	case 0xB0: // LDIR
		c.blockLoad(1, true)
		c.trace().Op("ldir")

	case 0xA8: // LDD
		c.blockLoad(-1, false)
		c.trace().Op("ldd")

	case 0xB8: // LDDR
		c.blockLoad(-1, true)
		c.trace().Op("lddr")

	case 0xA1: // CPI
		c.blockCompare(1, false)
		c.trace().Op("cpi")

	case 0xB1: // CPIR
		c.blockCompare(1, true)
		c.trace().Op("cpir")

	case 0xA9: // CPD
		c.blockCompare(-1, false)
		c.trace().Op("cpd")

	case 0xB9: // CPDR
		c.blockCompare(-1, true)
		c.trace().Op("cpdr")

	// Block I/O is recognized but not implemented: no real I/O
	// devices exist behind the port hooks.
	case 0xA2, 0xB2, 0xAA, 0xBA, 0xA3, 0xB3, 0xAB, 0xBB:
		c.trace().Op("ED %02x (block I/O - not implemented)", opcode)

	default:
		c.trace().Op("ED %02x (nop or duplicate)", opcode)
	}
}

// blockLoad implements LDI/LDD and their repeating forms.  Repetition
// works by stepping PC back over the two opcode bytes while BC has not
// reached zero, so the driver loop re-enters the same instruction.
func (c *CPU) blockLoad(dir int16, repeat bool) {
	hl := c.Regs.HL.U16()
	de := c.Regs.DE.U16()
	bc := c.Regs.BC.U16()

	b := c.Mem.Get(hl)
	c.Mem.Set(de, b)

	c.Regs.HL.SetU16(hl + uint16(dir))
	c.Regs.DE.SetU16(de + uint16(dir))
	c.Regs.BC.SetU16(bc - 1)

	c.Regs.setFlagsFromBlockLd(c.Regs.AF.Hi, b, bc-1)

	if repeat && bc != 1 {
		c.Regs.PC.SetU16(c.Regs.PC.U16() - 2)
	}
}

// blockCompare implements CPI/CPD and their repeating forms; the
// repeat additionally stops when the comparison hits.
func (c *CPU) blockCompare(dir int16, repeat bool) {
	hl := c.Regs.HL.U16()
	bc := c.Regs.BC.U16()
	a := c.Regs.AF.Hi
	m := c.Mem.Get(hl)

	c.Regs.setFlagsFromBlockCp(a, m, bc-1)
	c.Regs.HL.SetU16(hl + uint16(dir))
	c.Regs.BC.SetU16(bc - 1)

	if repeat && bc != 1 && a != m {
		c.Regs.PC.SetU16(c.Regs.PC.U16() - 2)
	}
}
