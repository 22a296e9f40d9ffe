// Package host adapts the emulator to the host file system: directory
// listing, file classification, sizes, and working-directory changes.
//
// The CP/M layer consumes this narrow surface instead of calling the
// os package directly, which keeps the host-specific behaviour in one
// place and makes the call sites easy to fake in tests.
package host

import (
	"os"
	"path/filepath"
)

// FileType classifies a path.
type FileType int

const (
	// NotFound means the path does not exist.
	NotFound FileType = iota

	// Regular is an ordinary file.
	Regular

	// Directory is a directory.
	Directory

	// Other covers devices, sockets, and anything else.
	Other
)

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	// Name is the bare entry name, without any directory prefix.
	Name string

	// IsDirectory is true for subdirectories.
	IsDirectory bool
}

// GetFileType classifies the given path.
func GetFileType(path string) FileType {
	fi, err := os.Stat(path)
	if err != nil {
		return NotFound
	}
	switch {
	case fi.Mode().IsRegular():
		return Regular
	case fi.IsDir():
		return Directory
	}
	return Other
}

// GetFileSize returns the size of the file in bytes, or -1 on error.
func GetFileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return fi.Size()
}

// ListDirectory returns the entries of the given directory.  Errors
// collapse to an empty listing; a missing directory and an empty one
// look the same to the guest.
func ListDirectory(path string) []DirEntry {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil
	}

	var ret []DirEntry
	for _, e := range entries {
		ret = append(ret, DirEntry{
			Name:        e.Name(),
			IsDirectory: e.IsDir(),
		})
	}
	return ret
}

// Basename returns the final element of the given path.
func Basename(path string) string {
	return filepath.Base(path)
}

// ChangeDirectory switches the process working directory.
func ChangeDirectory(path string) error {
	return os.Chdir(path)
}
