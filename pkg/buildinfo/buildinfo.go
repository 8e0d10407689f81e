// Package buildinfo holds version metadata set at link time via -ldflags, so a built binary can
// report exactly what it is without a separate version file. Adapted from the teacher repo's
// pkg/utils/build.go; concache's test-mode flag moved to clog.IsTestMode instead, since that's the
// package every other package already imports to reach RaiseInvariant.
package buildinfo

import "time"

var (
	// Version, Commit, and BuildTime are set via -ldflags "-X ...=...", e.g.
	// -ldflags "-X github.com/Joe-noh/concache/pkg/buildinfo.Version=1.2.3".
	Version   string
	Commit    string
	BuildTime string

	// StartTime is recorded at process init, for reporting uptime.
	StartTime time.Time
)

func init() {
	StartTime = time.Now()
	if Version == "" {
		Version = "unknown"
	}
	if Commit == "" {
		Commit = "unknown"
	}
	if BuildTime == "" {
		BuildTime = "unknown"
	}
}
