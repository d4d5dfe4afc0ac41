// Package version reports the build version of the bridge.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Set at build time with -ldflags "-X github.com/memohai/facebot/internal/version.Version=...".
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

var readBuildInfo sync.Once

// Info is the structured build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// Get returns the build information, filling commit and time from the VCS stamp when the
// linker did not set them.
func Get() Info {
	readBuildInfo.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	})
	return Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime}
}

// GetInfo returns the version with a short commit hash, e.g. "v1.2.0 (a1b2c3d)".
func GetInfo() string {
	info := Get()
	if info.Commit == "" {
		return info.Version
	}
	short := info.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s (%s)", info.Version, short)
}
