package cpu

import (
	"fmt"
)

// prefixState is the decode record the prefix state machine fills in
// before the opcode proper is dispatched.  index names the pair that
// stands in for HL (regpHL when no DD/FD prefix is active).
type prefixState struct {
	index   uint8 // regpHL, regpIX or regpIY
	indexed bool  // a DD or FD prefix is active
	cb      bool  // a DDCB/FDCB sequence was decoded
	disp    int8  // displacement consumed by the DDCB/FDCB path
}

// maxPrefixChain bounds runs of DD/FD bytes so corrupted code cannot
// wedge the decoder; the last prefix in the chain wins.
const maxPrefixChain = 4

// Step fetches, decodes and executes approximately one instruction,
// advancing the cycle counter by a flat 5.
//
// It returns ErrHalt when a HALT is executed, and an error naming the
// opcode and PC for an unimplemented main-table opcode.  Unknown ED
// and CB opcodes are treated as NOPs, which is what the hardware does.
func (c *CPU) Step() error {
	c.Cycles += 5

	pfx := prefixState{index: regpHL}
	opcode := c.fetchByte()

	// Prefix state machine.  DD and FD chain with last-wins
	// semantics; a CB after DD/FD reads the displacement before the
	// operation byte and terminates the chain.
	chain := 0
	for (opcode == 0xDD || opcode == 0xFD) && chain < maxPrefixChain {
		if c.Regs.Mode == Mode8080 {
			// DD/FD degrade to one-byte NOPs on the 8080.
			return nil
		}
		chain++
		pfx.indexed = true
		if opcode == 0xDD {
			pfx.index = regpIX
		} else {
			pfx.index = regpIY
		}
		opcode = c.fetchByte()
		if opcode == 0xCB {
			pfx.cb = true
			pfx.disp = int8(c.fetchByte())
			opcode = c.fetchByte()
			break
		}
	}

	if opcode == 0xED && !pfx.cb {
		if c.Regs.Mode == Mode8080 {
			// ED xx is a two-byte NOP on the 8080.
			c.fetchByte()
			return nil
		}
		c.executeED(c.fetchByte())
		return nil
	}

	if opcode == 0xCB && !pfx.cb && !pfx.indexed {
		if c.Regs.Mode == Mode8080 {
			// CB xx is a two-byte NOP on the 8080.
			c.fetchByte()
			return nil
		}
		pfx.cb = true
		opcode = c.fetchByte()
	}

	if pfx.cb {
		c.executeCB(opcode, pfx)
		return nil
	}

	// ALU operations against IXH/IXL/IYH/IYL or (IX+d)/(IY+d) need
	// special routing before the main dispatch: the H, L and (HL)
	// selectors change meaning under an index prefix.
	if pfx.indexed && opcode >= 0x80 && opcode <= 0xBF {
		sel := opcode & 0x07
		if sel == regH || sel == regL || sel == regM {
			c.executeIndexedALU(opcode, pfx)
			return nil
		}
	}

	return c.executeMain(opcode, pfx)
}

// executeIndexedALU handles the ALU block under an active DD/FD
// prefix, where the operand is an index half-register or the byte at
// (IX+d)/(IY+d).
func (c *CPU) executeIndexedALU(opcode uint8, pfx prefixState) {
	sel := opcode & 0x07

	var operand uint8
	if sel == regM {
		disp := int8(c.fetchByte())
		addr := c.indexPair(pfx.index).U16() + uint16(int16(disp))
		operand = c.Mem.Get(addr)
	} else if sel == regH {
		operand = c.indexPair(pfx.index).Hi
	} else {
		operand = c.indexPair(pfx.index).Lo
	}

	a := c.Regs.AF.Hi

	switch (opcode >> 3) & 0x07 {
	case 0: // ADD
		c.Regs.AF.Hi = c.Regs.setFlagsFromSum8(a, operand, 0)
	case 1: // ADC
		c.Regs.AF.Hi = c.Regs.setFlagsFromSum8(a, operand, c.Regs.CarryAsInt())
	case 2: // SUB
		c.Regs.AF.Hi = c.Regs.setFlagsFromDiff8(a, operand, 0)
	case 3: // SBC
		c.Regs.AF.Hi = c.Regs.setFlagsFromDiff8(a, operand, c.Regs.CarryAsInt())
	case 4: // AND
		result := a & operand
		c.Regs.setFlagsFromLogic8(result, 0, c.andHalfCarry(a, operand))
		c.Regs.AF.Hi = result
	case 5: // XOR
		result := a ^ operand
		c.Regs.setFlagsFromLogic8(result, 0, 0)
		c.Regs.AF.Hi = result
	case 6: // OR
		result := a | operand
		c.Regs.setFlagsFromLogic8(result, 0, 0)
		c.Regs.AF.Hi = result
	case 7: // CP
		c.Regs.setFlagsFromDiff8(a, operand, 0)
		c.Regs.setXYFromOperand(operand)
	}
}

// andHalfCarry is the half-carry input for AND: always set on the Z80,
// bit 3 of the OR of the operands on the 8080.
func (c *CPU) andHalfCarry(a, b uint8) uint8 {
	if c.Regs.Mode == ModeZ80 {
		return 1
	}
	if (a|b)&0x08 != 0 {
		return 1
	}
	return 0
}

// decHalfCarry is the half-carry after DEC: the Z80 sets it when the
// low nibble borrowed (now 0xF), the 8080 sets it in every other case.
func (c *CPU) decHalfCarry(result uint8) uint8 {
	if c.Regs.Mode == Mode8080 {
		if result&0x0F != 0x0F {
			return 1
		}
		return 0
	}
	if result&0x0F == 0x0F {
		return 1
	}
	return 0
}

// executeMain dispatches one main-table opcode.
func (c *CPU) executeMain(opcode uint8, pfx prefixState) error {
	activeHL := pfx.index

	switch opcode {

	case 0x00: // NOP
		c.trace().Op("nop")
		return nil

	// LD rr,nn
	case 0x01, 0x11, 0x21, 0x31:
		val := c.fetchWord()
		rp := (opcode >> 4) & 0x03
		if pfx.indexed && rp == regpHL {
			rp = activeHL
		}
		c.setReg16(rp, val)
		c.trace().Op("lxi rp=%d,0x%04x", rp, val)
		return nil

	// LD (BC)/(DE),A
	case 0x02, 0x12:
		rp := (opcode >> 4) & 0x03
		c.Mem.Set(c.getReg16(rp), c.Regs.AF.Hi)
		c.trace().Op("stax rp=%d", rp)
		return nil

	// INC rr
	case 0x03, 0x13, 0x23, 0x33:
		rp := (opcode >> 4) & 0x03
		if pfx.indexed && rp == regpHL {
			rp = activeHL
		}
		c.setReg16(rp, c.getReg16(rp)+1)
		c.trace().Op("inx rp=%d", rp)
		return nil

	// INC r
	case 0x04, 0x0C, 0x14, 0x1C, 0x24, 0x2C, 0x34, 0x3C:
		sel := (opcode >> 3) & 0x07

		if pfx.indexed && sel == regM {
			disp := int8(c.fetchByte())
			addr := c.indexPair(activeHL).U16() + uint16(int16(disp))
			num := c.Mem.Get(addr) + 1
			c.Mem.Set(addr, num)
			c.Regs.setFlagsFromIncDec(num, incHalfCarry(num), true)
			c.trace().Op("inc (idx%+d)", disp)
			return nil
		}

		if pfx.indexed && (sel == regH || sel == regL) {
			pair := c.indexPair(activeHL)
			var num uint8
			if sel == regH {
				pair.Hi++
				num = pair.Hi
			} else {
				pair.Lo++
				num = pair.Lo
			}
			c.Regs.setFlagsFromIncDec(num, incHalfCarry(num), true)
			c.trace().Op("inc idx half")
			return nil
		}

		num := c.getReg8(sel) + 1
		c.setReg8(sel, num)
		c.Regs.setFlagsFromIncDec(num, incHalfCarry(num), true)
		c.trace().Op("inr r=%d", sel)
		return nil

	// DEC r
	case 0x05, 0x0D, 0x15, 0x1D, 0x25, 0x2D, 0x35, 0x3D:
		sel := (opcode >> 3) & 0x07

		if pfx.indexed && sel == regM {
			disp := int8(c.fetchByte())
			addr := c.indexPair(activeHL).U16() + uint16(int16(disp))
			num := c.Mem.Get(addr) - 1
			c.Mem.Set(addr, num)
			c.Regs.setFlagsFromIncDec(num, c.decHalfCarry(num), false)
			c.trace().Op("dec (idx%+d)", disp)
			return nil
		}

		if pfx.indexed && (sel == regH || sel == regL) {
			pair := c.indexPair(activeHL)
			var num uint8
			if sel == regH {
				pair.Hi--
				num = pair.Hi
			} else {
				pair.Lo--
				num = pair.Lo
			}
			c.Regs.setFlagsFromIncDec(num, c.decHalfCarry(num), false)
			c.trace().Op("dec idx half")
			return nil
		}

		num := c.getReg8(sel) - 1
		c.setReg8(sel, num)
		c.Regs.setFlagsFromIncDec(num, c.decHalfCarry(num), false)
		c.trace().Op("dcr r=%d", sel)
		return nil

	// LD r,n
	case 0x06, 0x0E, 0x16, 0x1E, 0x26, 0x2E, 0x36, 0x3E:
		dst := (opcode >> 3) & 0x07

		if pfx.indexed && dst == regM {
			disp := int8(c.fetchByte())
			dat := c.fetchByte()
			addr := c.indexPair(activeHL).U16() + uint16(int16(disp))
			c.Mem.Set(addr, dat)
			c.trace().Op("ld (idx%+d),0x%02x", disp, dat)
			return nil
		}

		if pfx.indexed && (dst == regH || dst == regL) {
			dat := c.fetchByte()
			pair := c.indexPair(activeHL)
			if dst == regH {
				pair.Hi = dat
			} else {
				pair.Lo = dat
			}
			c.trace().Op("ld idx half,0x%02x", dat)
			return nil
		}

		dat := c.fetchByte()
		c.setReg8(dst, dat)
		c.trace().Op("mvi r=%d,0x%02x", dst, dat)
		return nil

	case 0x07: // RLCA
		a := c.Regs.AF.Hi
		var cy uint8
		if a&0x80 != 0 {
			cy = 1
		}
		a = (a << 1) | cy
		c.Regs.AF.Hi = a
		c.Regs.setFlagsFromRotateAcc(a, cy)
		c.trace().Op("rlca")
		return nil

	case 0x08: // EX AF,AF'
		if c.Regs.Mode == Mode8080 {
			return nil
		}
		c.Regs.AF, c.Regs.AltAF = c.Regs.AltAF, c.Regs.AF
		c.trace().Op("ex af,af'")
		return nil

	// ADD HL/IX/IY,rr
	case 0x09, 0x19, 0x29, 0x39:
		rp := (opcode >> 4) & 0x03
		if pfx.indexed && rp == regpHL {
			rp = activeHL
		}
		lhs := c.getReg16(activeHL)
		rhs := c.getReg16(rp)
		if c.Regs.Mode == ModeZ80 {
			sum := c.Regs.setFlagsFromAdd16(lhs, rhs)
			c.setReg16(activeHL, sum)
		} else {
			sum := uint32(lhs) + uint32(rhs)
			c.setReg16(activeHL, uint16(sum))
			c.Regs.setCarry(sum > 0xFFFF)
		}
		c.trace().Op("dad rp=%d", rp)
		return nil

	// LD A,(BC)/(DE)
	case 0x0A, 0x1A:
		rp := (opcode >> 4) & 0x03
		c.Regs.AF.Hi = c.Mem.Get(c.getReg16(rp))
		c.trace().Op("ldax rp=%d", rp)
		return nil

	// DEC rr
	case 0x0B, 0x1B, 0x2B, 0x3B:
		rp := (opcode >> 4) & 0x03
		if pfx.indexed && rp == regpHL {
			rp = activeHL
		}
		c.setReg16(rp, c.getReg16(rp)-1)
		c.trace().Op("dcx rp=%d", rp)
		return nil

	case 0x0F: // RRCA
		a := c.Regs.AF.Hi
		low := a & 0x01
		a >>= 1
		if low != 0 {
			a |= 0x80
		}
		c.Regs.AF.Hi = a
		c.Regs.setFlagsFromRotateAcc(a, low)
		c.trace().Op("rrca")
		return nil

	case 0x10: // DJNZ
		if c.Regs.Mode == Mode8080 {
			return nil
		}
		disp := int8(c.fetchByte())
		c.Regs.BC.Hi--
		if c.Regs.BC.Hi != 0 {
			c.Regs.PC.SetU16(c.Regs.PC.U16() + uint16(int16(disp)))
		}
		c.trace().Op("djnz $%+d", disp)
		return nil

	case 0x17: // RLA
		a := c.Regs.AF.Hi
		var newCarry uint8
		if a&0x80 != 0 {
			newCarry = 1
		}
		a = (a << 1) | c.Regs.CarryAsInt()
		c.Regs.AF.Hi = a
		c.Regs.setFlagsFromRotateAcc(a, newCarry)
		c.trace().Op("rla")
		return nil

	case 0x18: // JR
		if c.Regs.Mode == Mode8080 {
			return nil
		}
		disp := int8(c.fetchByte())
		c.Regs.PC.SetU16(c.Regs.PC.U16() + uint16(int16(disp)))
		c.trace().Op("jr $%+d", disp)
		return nil

	case 0x1F: // RRA
		a := c.Regs.AF.Hi
		newCarry := a & 0x01
		a >>= 1
		if c.Regs.CarryAsInt() != 0 {
			a |= 0x80
		}
		c.Regs.AF.Hi = a
		c.Regs.setFlagsFromRotateAcc(a, newCarry)
		c.trace().Op("rra")
		return nil

	// JR cc
	case 0x20, 0x28, 0x30, 0x38:
		if c.Regs.Mode == Mode8080 {
			return nil
		}
		disp := int8(c.fetchByte())
		cond := uint8(condZ)
		if opcode >= 0x30 {
			cond = condC
		}
		taken := conditionCode(cond, c.Regs.GetFlags())
		if opcode == 0x20 || opcode == 0x30 {
			taken = !taken
		}
		if taken {
			c.Regs.PC.SetU16(c.Regs.PC.U16() + uint16(int16(disp)))
		}
		c.trace().Op("jr cc,$%+d", disp)
		return nil

	case 0x22: // LD (nn),HL/IX/IY
		addr := c.fetchWord()
		c.writeWord(addr, c.getReg16(activeHL))
		c.trace().Op("shld 0x%04x", addr)
		return nil

	case 0x27: // DAA
		c.executeDAA()
		return nil

	case 0x2A: // LD HL/IX/IY,(nn)
		addr := c.fetchWord()
		c.setReg16(activeHL, c.readWord(addr))
		c.trace().Op("lhld 0x%04x", addr)
		return nil

	case 0x2F: // CPL
		a := ^c.Regs.AF.Hi
		c.Regs.AF.Hi = a
		c.Regs.setFlagsFromCPL(a)
		c.trace().Op("cpl")
		return nil

	case 0x32: // LD (nn),A
		addr := c.fetchWord()
		c.Mem.Set(addr, c.Regs.AF.Hi)
		c.trace().Op("sta 0x%04x", addr)
		return nil

	case 0x37: // SCF
		c.Regs.setFlagsFromSCF(c.Regs.AF.Hi)
		c.trace().Op("scf")
		return nil

	case 0x3A: // LD A,(nn)
		addr := c.fetchWord()
		c.Regs.AF.Hi = c.Mem.Get(addr)
		c.trace().Op("lda 0x%04x", addr)
		return nil

	case 0x3F: // CCF
		c.Regs.setFlagsFromCCF(c.Regs.AF.Hi)
		c.trace().Op("ccf")
		return nil

	case 0x76: // HALT
		c.trace().Op("hlt")
		return ErrHalt

	case 0xC3: // JP nn
		addr := c.fetchWord()
		c.Regs.PC.SetU16(addr)
		c.trace().Op("jmp 0x%04x", addr)
		return nil

	case 0xC6: // ADD A,n
		dat := c.fetchByte()
		c.Regs.AF.Hi = c.Regs.setFlagsFromSum8(c.Regs.AF.Hi, dat, 0)
		c.trace().Op("adi 0x%02x", dat)
		return nil

	case 0xC9: // RET
		c.Regs.PC.SetU16(c.PopWord())
		c.trace().Op("ret")
		return nil

	case 0xCD: // CALL nn
		addr := c.fetchWord()
		c.PushWord(c.Regs.PC.U16())
		c.Regs.PC.SetU16(addr)
		c.trace().Op("call 0x%04x", addr)
		return nil

	case 0xCE: // ADC A,n
		dat := c.fetchByte()
		c.Regs.AF.Hi = c.Regs.setFlagsFromSum8(c.Regs.AF.Hi, dat, c.Regs.CarryAsInt())
		c.trace().Op("aci 0x%02x", dat)
		return nil

	case 0xD3: // OUT (n),A
		port := c.fetchByte()
		c.portOut(port, c.Regs.AF.Hi)
		c.trace().Op("out 0x%02x", port)
		return nil

	case 0xD6: // SUB n
		dat := c.fetchByte()
		c.Regs.AF.Hi = c.Regs.setFlagsFromDiff8(c.Regs.AF.Hi, dat, 0)
		c.trace().Op("sui 0x%02x", dat)
		return nil

	case 0xD9: // EXX
		if c.Regs.Mode == Mode8080 {
			return nil
		}
		c.Regs.BC, c.Regs.AltBC = c.Regs.AltBC, c.Regs.BC
		c.Regs.DE, c.Regs.AltDE = c.Regs.AltDE, c.Regs.DE
		c.Regs.HL, c.Regs.AltHL = c.Regs.AltHL, c.Regs.HL
		c.trace().Op("exx")
		return nil

	case 0xDB: // IN A,(n)
		port := c.fetchByte()
		c.Regs.AF.Hi = c.portIn(port)
		c.trace().Op("in 0x%02x", port)
		return nil

	case 0xDE: // SBC A,n
		dat := c.fetchByte()
		c.Regs.AF.Hi = c.Regs.setFlagsFromDiff8(c.Regs.AF.Hi, dat, c.Regs.CarryAsInt())
		c.trace().Op("sbi 0x%02x", dat)
		return nil

	case 0xE3: // EX (SP),HL/IX/IY
		addr := c.Regs.SP.U16()
		dat := c.readWord(addr)
		hl := c.getReg16(activeHL)
		c.setReg16(activeHL, dat)
		c.writeWord(addr, hl)
		c.trace().Op("xthl")
		return nil

	case 0xE6: // AND n
		dat := c.fetchByte()
		a := c.Regs.AF.Hi
		result := a & dat
		c.Regs.setFlagsFromLogic8(result, 0, c.andHalfCarry(a, dat))
		c.Regs.AF.Hi = result
		c.trace().Op("ani 0x%02x", dat)
		return nil

	case 0xE9: // JP (HL/IX/IY)
		c.Regs.PC.SetU16(c.getReg16(activeHL))
		c.trace().Op("pchl")
		return nil

	case 0xEB: // EX DE,HL/IX/IY
		de := c.Regs.DE.U16()
		hl := c.getReg16(activeHL)
		c.setReg16(activeHL, de)
		c.Regs.DE.SetU16(hl)
		c.trace().Op("xchg")
		return nil

	case 0xEE: // XOR n
		dat := c.fetchByte()
		result := c.Regs.AF.Hi ^ dat
		c.Regs.setFlagsFromLogic8(result, 0, 0)
		c.Regs.AF.Hi = result
		c.trace().Op("xri 0x%02x", dat)
		return nil

	case 0xF3: // DI
		c.Regs.IFF1 = false
		c.Regs.IFF2 = false
		c.trace().Op("di")
		return nil

	case 0xF6: // OR n
		dat := c.fetchByte()
		result := c.Regs.AF.Hi | dat
		c.Regs.setFlagsFromLogic8(result, 0, 0)
		c.Regs.AF.Hi = result
		c.trace().Op("ori 0x%02x", dat)
		return nil

	case 0xF9: // LD SP,HL/IX/IY
		c.Regs.SP.SetU16(c.getReg16(activeHL))
		c.trace().Op("sphl")
		return nil

	case 0xFB: // EI
		c.Regs.IFF1 = true
		c.Regs.IFF2 = true
		c.trace().Op("ei")
		return nil

	case 0xFE: // CP n
		dat := c.fetchByte()
		c.Regs.setFlagsFromDiff8(c.Regs.AF.Hi, dat, 0)
		c.Regs.setXYFromOperand(dat)
		c.trace().Op("cpi 0x%02x", dat)
		return nil
	}

	switch {

	// LD r,r' (0x76 is HALT, handled above)
	case opcode >= 0x40 && opcode <= 0x7F:
		return c.executeMove(opcode, pfx)

	// ADD A,r
	case opcode >= 0x80 && opcode <= 0x87:
		sel := opcode & 0x07
		c.Regs.AF.Hi = c.Regs.setFlagsFromSum8(c.Regs.AF.Hi, c.getReg8(sel), 0)
		c.trace().Op("add r=%d", sel)
		return nil

	// ADC A,r
	case opcode >= 0x88 && opcode <= 0x8F:
		sel := opcode & 0x07
		c.Regs.AF.Hi = c.Regs.setFlagsFromSum8(c.Regs.AF.Hi, c.getReg8(sel), c.Regs.CarryAsInt())
		c.trace().Op("adc r=%d", sel)
		return nil

	// SUB r
	case opcode >= 0x90 && opcode <= 0x97:
		sel := opcode & 0x07
		c.Regs.AF.Hi = c.Regs.setFlagsFromDiff8(c.Regs.AF.Hi, c.getReg8(sel), 0)
		c.trace().Op("sub r=%d", sel)
		return nil

	// SBC A,r
	case opcode >= 0x98 && opcode <= 0x9F:
		sel := opcode & 0x07
		c.Regs.AF.Hi = c.Regs.setFlagsFromDiff8(c.Regs.AF.Hi, c.getReg8(sel), c.Regs.CarryAsInt())
		c.trace().Op("sbb r=%d", sel)
		return nil

	// AND r
	case opcode >= 0xA0 && opcode <= 0xA7:
		sel := opcode & 0x07
		a := c.Regs.AF.Hi
		operand := c.getReg8(sel)
		result := a & operand
		c.Regs.setFlagsFromLogic8(result, 0, c.andHalfCarry(a, operand))
		c.Regs.AF.Hi = result
		c.trace().Op("ana r=%d", sel)
		return nil

	// XOR r
	case opcode >= 0xA8 && opcode <= 0xAF:
		sel := opcode & 0x07
		result := c.Regs.AF.Hi ^ c.getReg8(sel)
		c.Regs.setFlagsFromLogic8(result, 0, 0)
		c.Regs.AF.Hi = result
		c.trace().Op("xra r=%d", sel)
		return nil

	// OR r
	case opcode >= 0xB0 && opcode <= 0xB7:
		sel := opcode & 0x07
		result := c.Regs.AF.Hi | c.getReg8(sel)
		c.Regs.setFlagsFromLogic8(result, 0, 0)
		c.Regs.AF.Hi = result
		c.trace().Op("ora r=%d", sel)
		return nil

	// CP r
	case opcode >= 0xB8 && opcode <= 0xBF:
		sel := opcode & 0x07
		operand := c.getReg8(sel)
		c.Regs.setFlagsFromDiff8(c.Regs.AF.Hi, operand, 0)
		c.Regs.setXYFromOperand(operand)
		c.trace().Op("cmp r=%d", sel)
		return nil

	// RET cc
	case opcode&0xC7 == 0xC0:
		cond := (opcode >> 3) & 0x07
		c.trace().Op("r%s", nameConditionCode(cond))
		if conditionCode(cond, c.Regs.GetFlags()) {
			c.Regs.PC.SetU16(c.PopWord())
		}
		return nil

	// POP rr
	case opcode&0xCF == 0xC1:
		rp := (opcode >> 4) & 0x03
		if rp == regpSP {
			rp = regpAF
		}
		if pfx.indexed && rp == regpHL {
			rp = activeHL
		}
		c.setReg16(rp, c.PopWord())
		c.trace().Op("pop rp=%d", rp)
		return nil

	// JP cc,nn
	case opcode&0xC7 == 0xC2:
		addr := c.fetchWord()
		cond := (opcode >> 3) & 0x07
		c.trace().Op("j%s 0x%04x", nameConditionCode(cond), addr)
		if conditionCode(cond, c.Regs.GetFlags()) {
			c.Regs.PC.SetU16(addr)
		}
		return nil

	// CALL cc,nn
	case opcode&0xC7 == 0xC4:
		addr := c.fetchWord()
		cond := (opcode >> 3) & 0x07
		c.trace().Op("c%s 0x%04x", nameConditionCode(cond), addr)
		if conditionCode(cond, c.Regs.GetFlags()) {
			c.PushWord(c.Regs.PC.U16())
			c.Regs.PC.SetU16(addr)
		}
		return nil

	// PUSH rr
	case opcode&0xCF == 0xC5:
		rp := (opcode >> 4) & 0x03
		if rp == regpSP {
			rp = regpAF
		}
		if pfx.indexed && rp == regpHL {
			rp = activeHL
		}
		c.PushWord(c.getReg16(rp))
		c.trace().Op("push rp=%d", rp)
		return nil

	// RST n
	case opcode&0xC7 == 0xC7:
		n := (opcode >> 3) & 0x07
		c.PushWord(c.Regs.PC.U16())
		c.Regs.PC.SetU16(uint16(n) * 8)
		c.trace().Op("rst %d", n)
		return nil
	}

	return fmt.Errorf("unimplemented opcode 0x%02X at PC 0x%04X", opcode, c.Regs.PC.U16())
}

// executeMove handles the LD r,r' block, including the indexed and
// half-index-register forms under a DD/FD prefix.
func (c *CPU) executeMove(opcode uint8, pfx prefixState) error {
	src := opcode & 0x07
	dst := (opcode >> 3) & 0x07

	if pfx.indexed && (src == regM || dst == regM) {
		disp := int8(c.fetchByte())
		addr := c.indexPair(pfx.index).U16() + uint16(int16(disp))

		if src == regM {
			// LD r,(IX+d).  Note that H and L here name the
			// plain registers, not the index halves.
			c.setReg8(dst, c.Mem.Get(addr))
			c.trace().Op("ld r=%d,(idx%+d)", dst, disp)
		} else {
			c.Mem.Set(addr, c.getReg8(src))
			c.trace().Op("ld (idx%+d),r=%d", disp, src)
		}
		return nil
	}

	if pfx.indexed && (src == regH || src == regL || dst == regH || dst == regL) {
		pair := c.indexPair(pfx.index)

		var dat uint8
		switch src {
		case regH:
			dat = pair.Hi
		case regL:
			dat = pair.Lo
		default:
			dat = c.getReg8(src)
		}

		switch dst {
		case regH:
			pair.Hi = dat
		case regL:
			pair.Lo = dat
		default:
			c.setReg8(dst, dat)
		}
		c.trace().Op("ld idx half move")
		return nil
	}

	c.setReg8(dst, c.getReg8(src))
	c.trace().Op("mov r=%d,r=%d", dst, src)
	return nil
}

// incHalfCarry is the half carry after INC: set when the low nibble
// wrapped to zero.  Both CPUs agree here.
func incHalfCarry(result uint8) uint8 {
	if result&0x0F == 0 {
		return 1
	}
	return 0
}

// executeDAA performs the decimal adjust, table-driven from carry,
// half carry and the accumulator nibbles.  The adjustment is added
// after additions and subtracted after subtractions (N flag).
func (c *CPU) executeDAA() {
	a := c.Regs.AF.Hi
	flags := c.Regs.GetFlags()
	low := a & 0x0F
	high := (a >> 4) & 0x0F
	flagC := flags&FlagC != 0
	flagH := flags&FlagH != 0
	flagN := flags&FlagN != 0 && c.Regs.Mode == ModeZ80

	var diff uint8
	if flagC {
		if low < 0x0A && !flagH {
			diff = 0x60
		} else {
			diff = 0x66
		}
	} else {
		if low < 0x0A {
			if high < 0x0A {
				if flagH {
					diff = 0x06
				}
			} else {
				if flagH {
					diff = 0x66
				} else {
					diff = 0x60
				}
			}
		} else {
			if high < 0x09 {
				diff = 0x06
			} else {
				diff = 0x66
			}
		}
	}

	var newC uint8
	if flagC {
		newC = 1
	} else {
		if low < 0x0A {
			if high >= 0x0A {
				newC = 1
			}
		} else {
			if high >= 0x09 {
				newC = 1
			}
		}
	}

	var newH uint8
	if flagN {
		if flagH && low < 0x06 {
			newH = 1
		}
	} else {
		if low >= 0x0A {
			newH = 1
		}
	}

	var result uint8
	if flagN {
		result = a - diff
	} else {
		result = a + diff
	}

	c.Regs.AF.Hi = result
	var n uint8
	if flagN {
		n = 1
	}
	c.Regs.setFlagsFromDAA(result, n, newH, newC)
	c.trace().Op("daa")
}
