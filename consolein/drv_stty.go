// drv_stty.go is the default console input driver: it switches STDIN
// into raw mode once at Setup time and reads single bytes from it.
//
// Raw mode is only entered when STDIN actually is a terminal, so
// redirected and piped input behaves normally.

package consolein

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// STTYInput reads raw bytes directly from STDIN.
type STTYInput struct {

	// oldState remembers the terminal state from before Setup so
	// TearDown can restore it.
	oldState *term.State

	// stuffed holds fake input to return before real input.
	stuffed []byte
}

// Setup switches STDIN into raw mode, when it is a terminal.
func (si *STTYInput) Setup() error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("error making raw terminal: %s", err)
	}
	si.oldState = state
	return nil
}

// TearDown restores the terminal state.  Restoring is unconditional on
// every exit path, so it tolerates being called twice.
func (si *STTYInput) TearDown() error {
	if si.oldState == nil {
		return nil
	}
	state := si.oldState
	si.oldState = nil
	return term.Restore(int(os.Stdin.Fd()), state)
}

// PendingInput returns true if there is pending input from STDIN.
func (si *STTYInput) PendingInput() bool {
	if len(si.stuffed) > 0 {
		return true
	}
	return stdinReady()
}

// BlockForCharacter returns the next byte from the console, blocking
// until one is available.
func (si *STTYInput) BlockForCharacter() (byte, error) {
	if len(si.stuffed) > 0 {
		c := si.stuffed[0]
		si.stuffed = si.stuffed[1:]
		return c, nil
	}

	b := make([]byte, 1)
	n, err := os.Stdin.Read(b)
	if err == io.EOF || n == 0 {
		// EOF on a redirected STDIN reads as ^Z.
		return 0x1A, nil
	}
	if err != nil {
		return 0x00, fmt.Errorf("error reading a byte from stdin: %s", err)
	}
	return b[0], nil
}

// StuffInput inserts fake input ahead of the real input stream.
func (si *STTYInput) StuffInput(input string) {
	si.stuffed = append(si.stuffed, input...)
}

// GetName is part of the driver API.
func (si *STTYInput) GetName() string {
	return "stty"
}

// init registers our driver, by name.
func init() {
	Register("stty", func() ConsoleInput {
		return new(STTYInput)
	})
}
