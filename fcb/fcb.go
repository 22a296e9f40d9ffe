// Package fcb contains helpers for reading, writing, and working with
// the CP/M FCB structure, and for moving between host file names and
// the 8.3 names CP/M understands.
package fcb

import (
	"strings"
)

// SIZE is the size of a File Control Block in RAM, in bytes.
const SIZE = 36

// FCB is the 36-byte CP/M File Control Block.
type FCB struct {
	// Drive holds the drive number for this entry: 0 means the
	// current drive, 1 is A:, 2 is B:, and so on.
	Drive uint8

	// Name holds the filename, space-padded.
	Name [8]uint8

	// Type holds the suffix, space-padded.
	Type [3]uint8

	// Ex is the extent number.
	Ex uint8

	S1 uint8
	S2 uint8

	// RC is the record count for this extent.
	RC uint8

	// Al is the allocation map.
	Al [16]uint8

	// Cr is the current record within the extent, advanced by the
	// sequential I/O calls.
	Cr uint8

	// R0, R1, R2 hold the random record number, low byte first.
	R0 uint8
	R1 uint8
	R2 uint8
}

// GetName returns the name component of an FCB entry, with padding
// removed.  The high bit of each byte is stripped because CP/M stores
// file attributes there.
func (f *FCB) GetName() string {
	t := ""
	for _, c := range f.Name {
		t += string(rune(c & 0x7F))
	}
	return strings.TrimRight(t, " ")
}

// GetType returns the type/extension component of an FCB entry, with
// padding removed.
func (f *FCB) GetType() string {
	t := ""
	for _, c := range f.Type {
		t += string(rune(c & 0x7F))
	}
	return strings.TrimRight(t, " ")
}

// GetFileName returns the name of the FCB as "NAME.EXT", or just
// "NAME" when there is no extension.
func (f *FCB) GetFileName() string {
	name := f.GetName()
	ext := f.GetType()
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// RandomRecord returns the 24-bit random record number from R0..R2.
func (f *FCB) RandomRecord() int {
	return int(f.R0) | int(f.R1)<<8 | int(f.R2)<<16
}

// SetRandomRecord stores a record number into R0..R2.
func (f *FCB) SetRandomRecord(n int) {
	f.R0 = uint8(n & 0xFF)
	f.R1 = uint8((n >> 8) & 0xFF)
	f.R2 = uint8((n >> 16) & 0xFF)
}

// AsBytes returns the entry of the FCB in a format suitable for
// copying to RAM.
func (f *FCB) AsBytes() []uint8 {
	var r []uint8

	r = append(r, f.Drive)
	r = append(r, f.Name[:]...)
	r = append(r, f.Type[:]...)
	r = append(r, f.Ex)
	r = append(r, f.S1)
	r = append(r, f.S2)
	r = append(r, f.RC)
	r = append(r, f.Al[:]...)
	r = append(r, f.Cr)
	r = append(r, f.R0)
	r = append(r, f.R1)
	r = append(r, f.R2)

	return r
}

// FromString returns an FCB entry from the given string, which may
// carry an "X:" drive prefix.  "*" wildcards expand to runs of "?".
func FromString(str string) FCB {
	tmp := FCB{}

	// Filenames are always upper-case.
	str = strings.ToUpper(str)

	// Does the string have a drive-prefix?
	if len(str) > 2 && str[1] == ':' {
		tmp.Drive = str[0] - 'A' + 1
		str = str[2:]
	}

	name := str
	ext := ""
	if idx := strings.IndexByte(str, '.'); idx >= 0 {
		name = str[:idx]
		ext = str[idx+1:]
	}

	copy(tmp.Name[:], expandPad(name, 8))
	copy(tmp.Type[:], expandPad(ext, 3))

	return tmp
}

// expandPad widens "*" into question marks and pads with spaces to the
// given width.
func expandPad(s string, width int) string {
	t := ""
	for _, c := range s {
		if c == '*' {
			for len(t) < width {
				t += "?"
			}
			break
		}
		t += string(c)
	}
	for len(t) < width {
		t += " "
	}
	return t[:width]
}

// FromBytes returns an FCB entry from the given bytes.
func FromBytes(bytes []uint8) FCB {
	tmp := FCB{}

	tmp.Drive = bytes[0]
	copy(tmp.Name[:], bytes[1:])
	copy(tmp.Type[:], bytes[9:])
	tmp.Ex = bytes[12]
	tmp.S1 = bytes[13]
	tmp.S2 = bytes[14]
	tmp.RC = bytes[15]
	copy(tmp.Al[:], bytes[16:])
	tmp.Cr = bytes[32]
	tmp.R0 = bytes[33]
	tmp.R1 = bytes[34]
	tmp.R2 = bytes[35]

	return tmp
}

// Matches83 reports whether a space-padded 8+3 name matches the FCB's
// name and type fields, treating '?' in the FCB as a single-character
// wildcard.  The comparison is case-insensitive.
func (f *FCB) Matches83(name [8]uint8, ext [3]uint8) bool {
	for i := 0; i < 8; i++ {
		p := f.Name[i] & 0x7F
		if p != '?' && upper(p) != upper(name[i]) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		p := f.Type[i] & 0x7F
		if p != '?' && upper(p) != upper(ext[i]) {
			return false
		}
	}
	return true
}

func upper(c uint8) uint8 {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// IsValidCPMChar reports whether the character may appear in a CP/M
// filename.
func IsValidCPMChar(c byte) bool {
	c = upper(c)
	if c >= 'A' && c <= 'Z' {
		return true
	}
	if c >= '0' && c <= '9' {
		return true
	}
	switch c {
	case '$', '#', '@', '!', '%', '\'', '(', ')', '-', '{', '}', '~':
		return true
	}
	return false
}

// HostTo83 converts a host file name into a space-padded, uppercased
// 8+3 pair.  It reports false when the name contains characters CP/M
// does not allow or does not fit within 8+3.
func HostTo83(hostName string) (name [8]uint8, ext [3]uint8, ok bool) {
	for i := range name {
		name[i] = ' '
	}
	for i := range ext {
		ext[i] = ' '
	}

	namePart := hostName
	extPart := ""
	if dot := strings.LastIndexByte(hostName, '.'); dot > 0 {
		namePart = hostName[:dot]
		extPart = hostName[dot+1:]
	}

	if len(namePart) > 8 || len(extPart) > 3 {
		return name, ext, false
	}

	for i := 0; i < len(namePart); i++ {
		if !IsValidCPMChar(namePart[i]) {
			return name, ext, false
		}
		name[i] = upper(namePart[i])
	}
	for i := 0; i < len(extPart); i++ {
		if !IsValidCPMChar(extPart[i]) {
			return name, ext, false
		}
		ext[i] = upper(extPart[i])
	}

	return name, ext, true
}

// Join83 renders a space-padded 8+3 pair as a single comparable key.
func Join83(name [8]uint8, ext [3]uint8) string {
	return string(name[:]) + string(ext[:])
}
