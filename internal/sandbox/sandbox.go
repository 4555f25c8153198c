// Package sandbox reports whether the current process runs inside a
// container or dev container.
package sandbox

import (
	"os"
	"strings"
)

// Markers are the files whose presence indicates a container.
var Markers = []string{
	"/.dockerenv",        // Docker
	"/vscode",            // VS Code dev container volume
	"/run/.containerenv", // Podman
}

// EnvVar is set by dev container tooling.
const EnvVar = "DEV_CONTAINER"

// Detector checks the markers. The zero value uses the real filesystem and
// environment.
type Detector struct {
	Stat   func(string) (os.FileInfo, error)
	Getenv func(string) string
}

// Detect reports whether any marker file exists or EnvVar is set to
// something other than "", "0" or "false".
func (d Detector) Detect() bool {
	stat, getenv := d.Stat, d.Getenv
	if stat == nil {
		stat = os.Stat
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	switch strings.ToLower(strings.TrimSpace(getenv(EnvVar))) {
	case "", "0", "false":
	default:
		return true
	}
	for _, m := range Markers {
		if _, err := stat(m); err == nil {
			return true
		}
	}
	return false
}

// Detect uses the zero Detector.
func Detect() bool { return Detector{}.Detect() }
