// Package version exposes build metadata stamped into the labconf binaries.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X .../pkg/version.Version=..." at release time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

func shortCommit() string {
	if len(Commit) > 8 {
		return Commit[:8]
	}
	return Commit
}

// Info returns a one-line description suitable for --version output.
func Info() string {
	return fmt.Sprintf("labconf %s (%s) - %s %s/%s",
		Version, shortCommit(), BuildTime, runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies labconf to remote storage and analytics APIs.
func UserAgent() string {
	return fmt.Sprintf("labconf/%s (%s)", Version, shortCommit())
}

// Map returns the build metadata keyed for JSON output.
func Map() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
}
