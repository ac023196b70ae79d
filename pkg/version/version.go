// Package version reports the designmap build. Version and Commit are set at
// link time with -ldflags "-X".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release version, or "dev" for local builds.
var Version = "dev"

// Commit is the Git hash of the build, or "<unknown>".
var Commit = "<unknown>"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build information. A missing commit falls back to the
// VCS revision embedded by the Go toolchain.
func Get() Info {
	commit := Commit

	if build, ok := debug.ReadBuildInfo(); ok && commit == "<unknown>" {
		for _, setting := range build.Settings {
			if setting.Key == "vcs.revision" {
				commit = setting.Value
			}
		}
	}

	return Info{
		Version:   Version,
		Commit:    commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats the build information on one line.
func (info Info) String() string {
	return fmt.Sprintf("designmap %s (%s) %s %s", info.Version, info.Commit, info.GoVersion, info.Platform)
}
