// Package consoleout is an abstraction over console output.
//
// Output drivers register themselves by name; the "ansi" driver passes
// bytes straight through to its writer, and the "null" driver discards
// everything.  The recorder interface lets tests capture what a guest
// program printed.
package consoleout

import (
	"fmt"
	"io"
	"strings"
)

// ConsoleOutput is the interface that must be implemented by anything
// that wishes to be used as a console output driver.
type ConsoleOutput interface {

	// PutCharacter will output the specified character to the
	// defined writer.
	PutCharacter(c uint8)

	// GetName will return the name of the driver.
	GetName() string

	// SetWriter will update the writer.
	SetWriter(w io.Writer)
}

// ConsoleRecorder is an interface that allows returning the contents
// that have been previously sent to the console.
//
// This is used solely for tests.
type ConsoleRecorder interface {

	// GetOutput returns the contents which have been displayed.
	GetOutput() string

	// Reset removes any stored state.
	Reset()
}

// Constructor is the signature of a constructor-function which is used
// to instantiate an instance of a driver.
type Constructor func() ConsoleOutput

// handlers is the map of known drivers.
var handlers = struct {
	m map[string]Constructor
}{m: make(map[string]Constructor)}

// Register makes a console output driver available, by name.
func Register(name string, obj Constructor) {
	handlers.m[strings.ToLower(name)] = obj
}

// ConsoleOut holds our state, a pointer to the object handling output.
type ConsoleOut struct {
	driver ConsoleOutput
}

// New creates an output device which uses the named driver.
func New(name string) (*ConsoleOut, error) {
	ctor, ok := handlers.m[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("failed to lookup console output driver '%s'", name)
	}
	return &ConsoleOut{driver: ctor()}, nil
}

// GetDriver allows getting our driver at runtime.
func (co *ConsoleOut) GetDriver() ConsoleOutput {
	return co.driver
}

// GetName returns the name of our selected driver.
func (co *ConsoleOut) GetName() string {
	return co.driver.GetName()
}

// PutCharacter outputs a character, using our selected driver.
func (co *ConsoleOut) PutCharacter(c byte) {
	co.driver.PutCharacter(c)
}

// WriteString outputs each byte of the given string.
func (co *ConsoleOut) WriteString(s string) {
	for _, c := range []byte(s) {
		co.driver.PutCharacter(c)
	}
}
