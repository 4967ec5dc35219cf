package version

import (
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	CommitID  = "unknown"
)

// ProtocolVersion is bumped when the negotiation or input message keys
// change incompatibly.
const ProtocolVersion = "1"

// vcsInfo fills commit and time from the module build info when ldflags
// did not set them, as with go install.
func vcsInfo() (commit, built string) {
	commit, built = CommitID, BuildTime
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, built
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "unknown" && len(s.Value) >= 7 {
				commit = s.Value[:7]
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		}
	}
	return commit, built
}

func formatBuildTime(built string) string {
	t, err := time.Parse(time.RFC3339, built)
	if err != nil {
		return built
	}
	return t.Format("Mon Jan 2 15:04:05 2006")
}

// ClientInfo returns version information keyed for display.
func ClientInfo() map[string]string {
	commit, built := vcsInfo()
	return map[string]string{
		"Version":         Version,
		"ProtocolVersion": ProtocolVersion,
		"GoVersion":       runtime.Version(),
		"GitCommit":       commit,
		"BuildTime":       built,
		"FormattedTime":   formatBuildTime(built),
		"OS":              runtime.GOOS,
		"Arch":            runtime.GOARCH,
	}
}
