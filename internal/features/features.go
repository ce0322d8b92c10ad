// Package features reports which optional subsystems were compiled in.
package features

import "github.com/rbright/sigview/internal/faults"

// Features is fixed at build time; tests construct it directly.
type Features struct {
	Decode    bool
	CrashDump bool
	Signals   bool
}

// Default returns the feature set selected by build tags.
func Default() Features {
	return Features{
		Decode:    decodeEnabled,
		CrashDump: crashDumpEnabled,
		Signals:   signalsEnabled,
	}
}

// FaultMode picks the fault policy for this build.
func (f Features) FaultMode() faults.Mode {
	if f.CrashDump {
		return faults.ModeCrashDump
	}
	return faults.ModeAbsorb
}
