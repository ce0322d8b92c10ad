// Package faults selects how uncaught panics and fatal runtime faults are handled.
package faults

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
)

// Mode is the process-wide fault policy. It is chosen once at startup.
type Mode int

const (
	// ModeAbsorb recovers panics in the guarded region, logs them, and lets
	// the caller continue to teardown.
	ModeAbsorb Mode = iota
	// ModeCrashDump leaves panics unrecovered so the runtime writes a
	// goroutine dump to DumpPath and aborts the process.
	ModeCrashDump
)

func (m Mode) String() string {
	switch m {
	case ModeAbsorb:
		return "absorb"
	case ModeCrashDump:
		return "crash-dump"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const dumpFileName = "sigview_stacktrace.dmp"

// DumpPath is the fixed crash dump location in the system temp directory.
func DumpPath() string {
	return filepath.Join(os.TempDir(), dumpFileName)
}

// PanicError describes a panic absorbed by Run.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Policy applies a Mode.
type Policy struct {
	mode     Mode
	logger   *slog.Logger
	dumpPath string

	installOnce sync.Once
	installErr  error
}

// New builds a policy. In crash-dump mode the dump path is resolved here so
// nothing needs to be computed once a fault is in flight.
func New(mode Mode, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Policy{mode: mode, logger: logger}
	if mode == ModeCrashDump {
		p.dumpPath = DumpPath()
	}
	return p
}

// Mode reports the configured mode.
func (p *Policy) Mode() Mode {
	return p.mode
}

// DumpPath returns the crash dump file, or "" in absorb mode.
func (p *Policy) DumpPath() string {
	return p.dumpPath
}

// Install registers the crash dump file with the runtime. It is a no-op in
// absorb mode and only acts once.
func (p *Policy) Install() error {
	if p.mode != ModeCrashDump {
		return nil
	}
	p.installOnce.Do(func() {
		p.installErr = p.install()
	})
	return p.installErr
}

func (p *Policy) install() error {
	f, err := os.OpenFile(p.dumpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open crash dump %q: %w", p.dumpPath, err)
	}
	// The runtime keeps its own duplicate of the descriptor.
	defer f.Close()

	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		return fmt.Errorf("set crash output: %w", err)
	}
	debug.SetTraceback("crash")

	p.logger.Info("crash dump installed", "path", p.dumpPath)
	return nil
}

// Run executes fn under the policy. In absorb mode a panic is recovered,
// logged with its stack, and returned as *PanicError. In crash-dump mode
// panics propagate.
func (p *Policy) Run(fn func()) (err error) {
	if p.mode == ModeCrashDump {
		fn()
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			p.logger.Error("exception", "panic", fmt.Sprint(r), "stack", string(stack))
			err = &PanicError{Value: r, Stack: stack}
		}
	}()
	fn()
	return nil
}
