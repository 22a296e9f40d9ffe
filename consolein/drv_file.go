// drv_file.go replays scripted input, and exists for the test-suite:
// tests stuff a string of keystrokes into the driver and the BDOS
// reads them back as if they had been typed.

package consolein

// FileInput replays a fixed sequence of bytes.
type FileInput struct {
	pending []byte
}

// Setup is a no-op for scripted input.
func (fi *FileInput) Setup() error {
	return nil
}

// TearDown is a no-op for scripted input.
func (fi *FileInput) TearDown() error {
	return nil
}

// PendingInput returns true while scripted input remains.
func (fi *FileInput) PendingInput() bool {
	return len(fi.pending) > 0
}

// BlockForCharacter returns the next scripted byte; when the script
// runs dry it returns ^Z forever, mimicking EOF.
func (fi *FileInput) BlockForCharacter() (byte, error) {
	if len(fi.pending) == 0 {
		return 0x1A, nil
	}
	c := fi.pending[0]
	fi.pending = fi.pending[1:]
	return c, nil
}

// StuffInput appends scripted input.
func (fi *FileInput) StuffInput(input string) {
	fi.pending = append(fi.pending, input...)
}

// GetName is part of the driver API.
func (fi *FileInput) GetName() string {
	return "file"
}

// init registers our driver, by name.
func init() {
	Register("file", func() ConsoleInput {
		return new(FileInput)
	})
}
