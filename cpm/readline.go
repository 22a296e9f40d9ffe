// Read Console Buffer - BDOS function 10.
//
// This is the line editor every CP/M program leans on for input, so
// the editing keys behave the way the real BDOS behaved.

package cpm

// BdosSysCallReadString reads an edited line of input into the buffer
// pointed to by DE: byte 0 holds the maximum length, byte 1 receives
// the actual length, and the text follows from byte 2.
//
// Editing: CR or LF ends the line, ^H/DEL rubs out one character, ^U
// cancels the line, ^C is stored literally (and counted towards the
// five-in-a-row exit), ^Z ends input as if the console hit EOF, and
// anything else outside 0x20..0x7E is ignored.
func BdosSysCallReadString(cpm *CPM) error {
	addr := cpm.CPU.Regs.DE.U16()

	// DE of zero means "use the DMA area".
	if addr == 0 {
		addr = cpm.dma
	}

	maxLen := cpm.Memory.Get(addr)
	if maxLen == 0 {
		cpm.Memory.Set(addr+1, 0)
		cpm.setResultByte(0x00)
		return nil
	}

	// rubout erases the last character from the screen.
	rubout := func() {
		cpm.output.PutCharacter('\b')
		cpm.output.PutCharacter(' ')
		cpm.output.PutCharacter('\b')
	}

	count := 0

	for count < int(maxLen) {
		ch, err := cpm.input.BlockForCharacter()
		if err != nil {
			return err
		}

		if err := cpm.countCtrlC(ch); err != nil {
			return err
		}

		switch {
		case ch == '\r' || ch == '\n':
			cpm.output.PutCharacter('\r')
			cpm.output.PutCharacter('\n')
			cpm.Memory.Set(addr+1, uint8(count))
			cpm.setResultByte(0x00)
			return nil

		case ch == 0x08 || ch == 0x7F: // ^H / DEL
			if count > 0 {
				count--
				rubout()
			}

		case ch == 0x15: // ^U - cancel the line
			for count > 0 {
				count--
				rubout()
			}

		case ch == 0x03: // ^C - stored literally
			cpm.Memory.Set(addr+2+uint16(count), ch)
			count++
			cpm.output.PutCharacter('^')
			cpm.output.PutCharacter('C')

		case ch == cpmEOF: // ^Z ends input
			cpm.Memory.Set(addr+1, uint8(count))
			cpm.setResultByte(0x00)
			return nil

		case ch >= 0x20 && ch <= 0x7E:
			cpm.Memory.Set(addr+2+uint16(count), ch)
			count++
			cpm.output.PutCharacter(ch)
		}
		// Other control bytes are ignored.
	}

	cpm.Memory.Set(addr+1, uint8(count))
	cpm.setResultByte(0x00)
	return nil
}
