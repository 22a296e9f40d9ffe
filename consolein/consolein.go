// Package consolein handles the reading of console input for the
// emulator.
//
// Input drivers register themselves by name; the default "stty" driver
// reads raw bytes from STDIN, the "term" driver collects keystrokes
// through termbox, and the "file" driver replays scripted input which
// is what the test-suite uses.
//
// The package supports the minimum required functionality: testing
// whether input is pending, and blocking for a single byte.  Echo and
// line-editing are the concern of the BDOS layer, which knows the CP/M
// rules for them.
package consolein

import (
	"fmt"
	"strings"
)

// ConsoleInput is the interface a console input driver must implement.
type ConsoleInput interface {

	// Setup performs any one-time initialization, such as switching
	// the terminal into raw mode.
	Setup() error

	// TearDown undoes Setup.  It must be safe to call on every exit
	// path, including after a failed Setup.
	TearDown() error

	// PendingInput returns true if input is available.
	PendingInput() bool

	// BlockForCharacter returns the next byte of input, blocking
	// until one is available.  No echo is performed.
	BlockForCharacter() (byte, error)

	// StuffInput inserts fake input, read before any real input.
	StuffInput(input string)

	// GetName returns the name of this driver.
	GetName() string
}

// Constructor is the signature of a driver factory.
type Constructor func() ConsoleInput

// handlers holds the known drivers, by name.
var handlers = struct {
	m map[string]Constructor
}{m: make(map[string]Constructor)}

// Register makes a console input driver available, by name.
func Register(name string, obj Constructor) {
	handlers.m[strings.ToLower(name)] = obj
}

// New returns the console input driver with the given name.
func New(name string) (ConsoleInput, error) {
	ctor, ok := handlers.m[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("failed to lookup console input driver '%s'", name)
	}
	return ctor(), nil
}
