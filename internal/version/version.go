// Package version exposes the crew build version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns the version prefixed with the binary name.
func String() string {
	return "crew " + Get()
}
