// Package version reports which build of the tools is running.
package version

import (
	"runtime/debug"
	"strings"
)

// Version can be set at build time:
// go build -ldflags "-X github.com/vsariola/audiograph/version.Version=$(git describe --dirty)"
var Version string

// Hash is the short VCS revision the binary was built from, with a -dirty
// suffix for modified trees, or empty when the build has no VCS info.
var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return hashFromSettings(info.Settings)
}()

var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	if Hash != "" {
		return Hash
	}
	return "devel"
}()

func hashFromSettings(settings []debug.BuildSetting) string {
	var revision string
	modified := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		return ""
	}
	revision = revision[:min(7, len(revision))]
	if modified {
		return revision + "-dirty"
	}
	return revision
}

// String is the version line printed by the -v flag of the tools.
func String(tool string) string {
	var b strings.Builder
	b.WriteString(tool)
	b.WriteByte(' ')
	b.WriteString(VersionOrHash)
	if info, ok := debug.ReadBuildInfo(); ok {
		b.WriteString(" (")
		b.WriteString(info.GoVersion)
		b.WriteByte(')')
	}
	return b.String()
}
