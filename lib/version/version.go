// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/bureau-foundation/edge-desktop/lib/version.Version=2.5.2".
// GitCommit and BuildTime fall back to the VCS stamps the go command
// records when they are not injected.
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	BuildTime = ""
)

type stamps struct {
	commit string
	dirty  bool
	built  string
}

var buildStamps = sync.OnceValue(func() stamps {
	result := stamps{commit: GitCommit, built: BuildTime}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return result.withDefaults()
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if result.commit == "" && len(setting.Value) >= 7 {
				result.commit = setting.Value[:7]
			}
		case "vcs.modified":
			result.dirty = setting.Value == "true"
		case "vcs.time":
			if result.built == "" {
				result.built = setting.Value
			}
		}
	}
	return result.withDefaults()
})

func (s stamps) withDefaults() stamps {
	if s.commit == "" {
		s.commit = "unknown"
	}
	if s.built == "" {
		s.built = "unknown"
	}
	return s
}

// Info is the one-line form: "0.1.0-dev (abc1234-dirty, 2026-03-01T12:00:00Z)".
func Info() string {
	build := buildStamps()
	dirty := ""
	if build.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, build.commit, dirty, build.built)
}

// Full adds the Go version and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short is the release version alone, as compared by the update
// check.
func Short() string {
	return Version
}

// UserAgent identifies the client in outbound HTTP requests.
func UserAgent() string {
	return "edge-desktop/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
