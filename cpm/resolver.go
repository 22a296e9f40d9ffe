// File-name resolution: mapping CP/M 8.3 names onto host paths, mode
// classification, and the line-ending conversion applied to text
// files.

package cpm

import (
	"io"
	"os"
	"strings"

	"github.com/hjkit/avwohl-cpmemu/host"
)

// FileMode says how a file's bytes are treated.
type FileMode int

const (
	// ModeBinary passes bytes through untouched.
	ModeBinary FileMode = iota

	// ModeText applies ^Z end-of-file and line-ending conversion.
	ModeText

	// ModeAuto classifies by extension at open time.
	ModeAuto
)

// modeFromString parses "text"/"binary"/"auto".
func modeFromString(s string) FileMode {
	switch strings.ToLower(s) {
	case "text":
		return ModeText
	case "binary":
		return ModeBinary
	}
	return ModeAuto
}

// FileMapping maps a CP/M name pattern onto a host path.  Mappings are
// consulted in declaration order, first match wins.
type FileMapping struct {
	// CPMPattern is an exact normalized name, "*", "*.*", or
	// "*.EXT".
	CPMPattern string

	// HostPath is the host file the pattern resolves to.
	HostPath string

	// Mode says how the file content is treated.
	Mode FileMode

	// EOLConvert enables line-ending conversion for text files.
	EOLConvert bool
}

// AddMapping declares a pattern mapping.
func (c *CPM) AddMapping(cpmPattern, hostPath string, mode FileMode, eolConvert bool) {
	c.mappings = append(c.mappings, FileMapping{
		CPMPattern: normalizeCPMName(cpmPattern),
		HostPath:   hostPath,
		Mode:       mode,
		EOLConvert: eolConvert,
	})
}

// AddLegacyMapping declares an exact-name mapping, consulted after the
// pattern mappings.
func (c *CPM) AddLegacyMapping(cpmName, hostPath string) {
	c.legacyMap[normalizeCPMName(cpmName)] = hostPath
}

// normalizeCPMName upper-cases a CP/M name and strips embedded spaces.
func normalizeCPMName(name string) string {
	out := ""
	for _, ch := range name {
		if ch != ' ' {
			out += strings.ToUpper(string(ch))
		}
	}
	return out
}

// textExtensions are the suffixes classified as text in auto mode.
// Unknown extensions default to binary so unidentified data is never
// corrupted by conversion.
var textExtensions = []string{".BAS", ".MAC", ".ASM", ".TXT", ".DOC", ".LST", ".PRN"}

// detectFileMode classifies a file by its extension.
func detectFileMode(cpmName string) FileMode {
	upper := strings.ToUpper(cpmName)
	for _, ext := range textExtensions {
		if strings.HasSuffix(upper, ext) {
			return ModeText
		}
	}
	return ModeBinary
}

// matchPattern matches a mapping pattern against a normalized name:
// exact match, "*" or "*.*" (anything), or "*.EXT".
func matchPattern(pattern, name string) bool {
	pattern = strings.ToUpper(pattern)
	name = strings.ToUpper(name)

	if pattern == name {
		return true
	}
	if pattern == "*" || pattern == "*.*" {
		return true
	}

	if strings.HasPrefix(pattern, "*") && strings.Contains(pattern, ".") {
		dot := strings.Index(name, ".")
		if dot >= 0 {
			return name[dot:] == pattern[strings.Index(pattern, "."):]
		}
	}

	return false
}

// findHostFile resolves a CP/M name to a host path, first match wins:
// declared mappings in order, then the exact-name map, then the
// lower-cased name in the current directory, then the name as-is.  It
// returns the path, the content mode, the conversion flag, and whether
// anything was found.
func (c *CPM) findHostFile(cpmName string) (string, FileMode, bool, bool) {
	normalized := normalizeCPMName(cpmName)

	for _, mapping := range c.mappings {
		if !matchPattern(mapping.CPMPattern, normalized) {
			continue
		}
		if host.GetFileType(mapping.HostPath) == host.NotFound {
			continue
		}

		mode := mapping.Mode
		if mode == ModeAuto {
			mode = detectFileMode(normalized)
		}
		return mapping.HostPath, mode, mapping.EOLConvert, true
	}

	if path, ok := c.legacyMap[normalized]; ok {
		return path, c.applyDefaultMode(normalized), c.defaultEOL, true
	}

	lower := strings.ToLower(normalized)
	if host.GetFileType(lower) != host.NotFound {
		return lower, c.applyDefaultMode(normalized), c.defaultEOL, true
	}

	if host.GetFileType(normalized) != host.NotFound {
		return normalized, c.applyDefaultMode(normalized), c.defaultEOL, true
	}

	return "", ModeBinary, false, false
}

// applyDefaultMode resolves the configured default mode for a name.
func (c *CPM) applyDefaultMode(cpmName string) FileMode {
	if c.defaultMode == ModeAuto {
		return detectFileMode(cpmName)
	}
	return c.defaultMode
}

// OpenFile is one entry of the open-file table, keyed by FCB address.
type OpenFile struct {
	// File is the host file handle.
	File *os.File

	// HostPath and CPMName record how the file was opened.
	HostPath string
	CPMName  string

	// Mode and EOLConvert control content translation.
	Mode       FileMode
	EOLConvert bool

	// WriteMode is set once the guest has written to the file.
	WriteMode bool

	// EOFSeen latches after a ^Z is read from a text file.
	EOFSeen bool

	// pendingCR holds a trailing carriage return whose fate depends
	// on the first byte of the next record; Close flushes it.
	pendingCR bool
}

// readRecord fills up to blkSize output bytes from the file, applying
// text-mode conversion: host "\n" becomes "\r\n", a ^Z latches
// end-of-file.  Unconsumed raw bytes are pushed back by seeking, so
// the host file position always matches what the guest has consumed.
func (of *OpenFile) readRecord(buf []byte) (int, error) {
	if of.EOFSeen {
		return 0, nil
	}

	if of.Mode == ModeBinary || !of.EOLConvert {
		n, err := of.File.Read(buf)
		if err != nil && err != io.EOF {
			return 0, err
		}

		// Even without conversion a text file ends at ^Z.
		if of.Mode == ModeText {
			for i := 0; i < n; i++ {
				if buf[i] == cpmEOF {
					of.EOFSeen = true
					return i, nil
				}
			}
		}
		return n, nil
	}

	raw := make([]byte, len(buf))
	n, err := of.File.Read(raw)
	if err != nil && err != io.EOF {
		return 0, err
	}

	out := 0
	in := 0
	for in < n && out < len(buf) {
		ch := raw[in]

		if ch == '\n' {
			if out+2 > len(buf) {
				break
			}
			buf[out] = '\r'
			buf[out+1] = '\n'
			out += 2
			in++
			continue
		}

		if ch == cpmEOF {
			of.EOFSeen = true
			in++
			break
		}

		buf[out] = ch
		out++
		in++
	}

	// Push back whatever was read but not consumed.
	if in < n && !of.EOFSeen {
		_, err = of.File.Seek(int64(in-n), io.SeekCurrent)
		if err != nil {
			return out, err
		}
	}

	return out, nil
}

// writeRecord writes a record, applying text-mode conversion: "\r\n"
// collapses to "\n", a lone "\r" passes through, and a ^Z ends the
// write.  A record-final "\r" is held back until the next record or
// close decides whether it was half of a pair.
func (of *OpenFile) writeRecord(data []byte) (int, error) {
	if of.Mode == ModeBinary || !of.EOLConvert {
		return of.File.Write(data)
	}

	written := 0
	emit := func(b byte) error {
		_, err := of.File.Write([]byte{b})
		if err == nil {
			written++
		}
		return err
	}

	for i := 0; i < len(data); i++ {
		ch := data[i]

		if of.pendingCR {
			of.pendingCR = false
			if ch != '\n' {
				if err := emit('\r'); err != nil {
					return written, err
				}
			}
			// A pair collapses to the newline written below.
		}

		if ch == cpmEOF {
			return written, nil
		}

		if ch == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					continue // collapsed with the following newline
				}
				if err := emit('\r'); err != nil {
					return written, err
				}
				continue
			}
			// Record-final: defer until we see what follows.
			of.pendingCR = true
			continue
		}

		if err := emit(ch); err != nil {
			return written, err
		}
	}

	return written, nil
}

// Close flushes any held-back carriage return and closes the handle.
func (of *OpenFile) Close() error {
	if of.pendingCR {
		of.pendingCR = false
		_, err := of.File.Write([]byte{'\r'})
		if err != nil {
			return err
		}
	}
	return of.File.Close()
}

// padRecord fills the tail of a short record with ^Z, the CP/M
// convention for text padding.
func padRecord(buf []byte, n int) {
	for i := n; i < len(buf); i++ {
		buf[i] = cpmEOF
	}
}
