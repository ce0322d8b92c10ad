package version

import "runtime"

// Title is the user-facing application name.
const Title = "SigView"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the one-line banner printed for --version.
func String() string {
	return Title + " " + Version
}

// Detailed adds build metadata for log records.
func Detailed() string {
	return Title + " " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}
