package cpu

// executeCB dispatches the CB bit-operation table, including the
// DDCB/FDCB indexed forms.  For the indexed forms the operand always
// comes from (IX+d)/(IY+d); the undocumented "copy" encodings also
// write the result back to the register named in the low three bits.
func (c *CPU) executeCB(opcode uint8, pfx prefixState) {
	sel := opcode & 0x07

	var addr uint16
	var val uint8
	memOperand := false

	if pfx.indexed {
		addr = c.indexPair(pfx.index).U16() + uint16(int16(pfx.disp))
		val = c.Mem.Get(addr)
		memOperand = true
	} else if sel == regM {
		addr = c.Regs.HL.U16()
		val = c.Mem.Get(addr)
		memOperand = true
	} else {
		val = c.getReg8(sel)
	}

	bitNum := (opcode >> 3) & 0x07

	// writeBack stores a rotate/RES/SET result to the operand, plus
	// the register copy for the undocumented DDCB/FDCB forms.
	writeBack := func(result uint8) {
		if pfx.indexed {
			c.Mem.Set(addr, result)
			if sel != regM {
				c.setReg8(sel, result)
			}
		} else if memOperand {
			c.Mem.Set(addr, result)
		} else {
			c.setReg8(sel, result)
		}
	}

	switch {

	// Rotates and shifts.
	case opcode < 0x40:
		var result uint8
		switch bitNum {
		case 0:
			result = c.rotRLC(val)
			c.trace().Op("rlc r=%d", sel)
		case 1:
			result = c.rotRRC(val)
			c.trace().Op("rrc r=%d", sel)
		case 2:
			result = c.rotRL(val)
			c.trace().Op("rl r=%d", sel)
		case 3:
			result = c.rotRR(val)
			c.trace().Op("rr r=%d", sel)
		case 4:
			result = c.rotSLA(val)
			c.trace().Op("sla r=%d", sel)
		case 5:
			result = c.rotSRA(val)
			c.trace().Op("sra r=%d", sel)
		case 6:
			// SLL is undocumented: shift left, bit 0 set.
			result = c.rotSLL(val)
			c.trace().Op("sll r=%d", sel)
		case 7:
			result = c.rotSRL(val)
			c.trace().Op("srl r=%d", sel)
		}
		writeBack(result)

	// BIT n,r - test a bit.  The undocumented X/Y source depends on
	// the addressing mode: the high byte of the effective address
	// for indexed forms, the H register for (HL), the register
	// value otherwise.
	case opcode < 0x80:
		mask := uint8(1) << bitNum
		zero := val&mask == 0

		f := c.Regs.GetFlags() & FlagC
		f |= FlagH
		if zero {
			f |= FlagZ | FlagP
		}
		if bitNum == 7 && val&0x80 != 0 {
			f |= FlagS
		}

		if c.Regs.Mode == ModeZ80 {
			var xySource uint8
			if pfx.indexed {
				xySource = uint8(addr >> 8)
			} else if sel == regM {
				xySource = c.Regs.HL.Hi
			} else {
				xySource = val
			}
			if xySource&0x08 != 0 {
				f |= FlagX
			}
			if xySource&0x20 != 0 {
				f |= FlagY
			}
		}

		c.Regs.SetFlags(f)
		c.trace().Op("bit %d,r=%d", bitNum, sel)

	// RES n,r - no flags change.
	case opcode < 0xC0:
		writeBack(val &^ (uint8(1) << bitNum))
		c.trace().Op("res %d,r=%d", bitNum, sel)

	// SET n,r - no flags change.
	default:
		writeBack(val | uint8(1)<<bitNum)
		c.trace().Op("set %d,r=%d", bitNum, sel)
	}
}

// Rotate and shift helpers shared by the CB table.  Each computes the
// shifted value and sets the full CB flag set (S, Z, H=0, P=parity,
// N=0, C from the shifted-out bit, X/Y from the result).

func (c *CPU) rotRLC(val uint8) uint8 {
	carry := val >> 7
	result := (val << 1) | carry
	c.Regs.setFlagsFromRotate8(result, carry)
	return result
}

func (c *CPU) rotRRC(val uint8) uint8 {
	carry := val & 0x01
	result := (val >> 1) | (carry << 7)
	c.Regs.setFlagsFromRotate8(result, carry)
	return result
}

func (c *CPU) rotRL(val uint8) uint8 {
	oldCarry := c.Regs.CarryAsInt()
	carry := val >> 7
	result := (val << 1) | oldCarry
	c.Regs.setFlagsFromRotate8(result, carry)
	return result
}

func (c *CPU) rotRR(val uint8) uint8 {
	oldCarry := c.Regs.CarryAsInt()
	carry := val & 0x01
	result := (val >> 1) | (oldCarry << 7)
	c.Regs.setFlagsFromRotate8(result, carry)
	return result
}

func (c *CPU) rotSLA(val uint8) uint8 {
	carry := val >> 7
	result := val << 1
	c.Regs.setFlagsFromRotate8(result, carry)
	return result
}

func (c *CPU) rotSRA(val uint8) uint8 {
	carry := val & 0x01
	result := (val >> 1) | (val & 0x80)
	c.Regs.setFlagsFromRotate8(result, carry)
	return result
}

func (c *CPU) rotSLL(val uint8) uint8 {
	carry := val >> 7
	result := (val << 1) | 0x01
	c.Regs.setFlagsFromRotate8(result, carry)
	return result
}

func (c *CPU) rotSRL(val uint8) uint8 {
	carry := val & 0x01
	result := val >> 1
	c.Regs.setFlagsFromRotate8(result, carry)
	return result
}
