package consoleout

import "io"

// NullOutputDriver discards everything but records what it saw, which
// makes it the natural driver for the test-suite.
type NullOutputDriver struct {
	history string
}

// GetName returns the name of this driver.
func (nd *NullOutputDriver) GetName() string {
	return "null"
}

// PutCharacter records, but does not display, the character.
func (nd *NullOutputDriver) PutCharacter(c uint8) {
	nd.history += string(rune(c))
}

// SetWriter is a no-op for the null driver.
func (nd *NullOutputDriver) SetWriter(w io.Writer) {
}

// GetOutput returns the characters written, for the recorder API.
func (nd *NullOutputDriver) GetOutput() string {
	return nd.history
}

// Reset removes the stored history.
func (nd *NullOutputDriver) Reset() {
	nd.history = ""
}

// init registers our driver, by name.
func init() {
	Register("null", func() ConsoleOutput {
		return &NullOutputDriver{}
	})
}
