package consoleout

import (
	"io"
	"os"
)

// AnsiOutputDriver writes bytes straight through to its writer, which
// defaults to STDOUT.  Output is unbuffered so interactive programs
// stay responsive.
type AnsiOutputDriver struct {
	writer io.Writer
}

// GetName returns the name of this driver.
func (ad *AnsiOutputDriver) GetName() string {
	return "ansi"
}

// PutCharacter writes the specified character to the console.
func (ad *AnsiOutputDriver) PutCharacter(c uint8) {
	_, _ = ad.writer.Write([]byte{c})
}

// SetWriter will update the writer.
func (ad *AnsiOutputDriver) SetWriter(w io.Writer) {
	ad.writer = w
}

// init registers our driver, by name.
func init() {
	Register("ansi", func() ConsoleOutput {
		return &AnsiOutputDriver{
			writer: os.Stdout,
		}
	})
}
