// Package version carries build and version information for bookrag.
package version

import (
	"fmt"
	"runtime"
)

// Version is the bookrag version, set via ldflags at release time:
//
//	-X github.com/bulldra/bookrag/pkg/version.Version=v1.2.3
var Version = "dev"

// Build metadata, also set via ldflags.
var (
	Commit = "unknown"
	Date   = "unknown"

	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the full human-readable version line.
func String() string {
	return fmt.Sprintf("bookrag %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
