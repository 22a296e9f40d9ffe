// Package version exists solely so that we can store the version of
// this application in one location.
package version

import "fmt"

var (
	// version is populated with our release tag at build time.
	version = "unreleased"
)

// GetVersionBanner returns a banner suitable for printing, showing our
// name and version.
func GetVersionBanner() string {
	return fmt.Sprintf("avwohl-cpmemu %s\n", version)
}

// GetVersionString returns our version number as a string.
func GetVersionString() string {
	return version
}
