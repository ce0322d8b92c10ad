// Package ui hosts the session window and runs the interactive event loop.
package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rbright/sigview/internal/device"
	"github.com/rbright/sigview/internal/logging"
	"github.com/rbright/sigview/internal/session"
	"github.com/rbright/sigview/internal/settings"
)

// Options configures the window.
type Options struct {
	Logger     *slog.Logger
	Settings   *settings.Store
	StateStore *session.StateStore
	Ring       *logging.Ring
	Decoders   []string

	// Input and Output override the terminal; nil uses stdin/stdout.
	Input  io.Reader
	Output io.Writer

	// AbsorbPanics re-raises panics from command goroutines on the Run
	// goroutine so the caller's recover sees them.
	AbsorbPanics bool
}

// Window owns the open sessions and the bubbletea program that shows them.
type Window struct {
	devices    *device.Manager
	logger     *slog.Logger
	settings   *settings.Store
	stateStore *session.StateStore
	ring       *logging.Ring
	decoders   []string
	absorb     bool

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	sessions  []*session.Session
	nextIndex int

	program *tea.Program
}

// NewWindow builds the window. The event loop does not start until Run.
func NewWindow(devices *device.Manager, opts Options) *Window {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store := opts.Settings
	if store == nil {
		store = settings.NewStore("")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Window{
		devices:    devices,
		logger:     logger,
		settings:   store,
		stateStore: opts.StateStore,
		ring:       opts.Ring,
		decoders:   slices.Clone(opts.Decoders),
		absorb:     opts.AbsorbPanics,
		ctx:        ctx,
		cancel:     cancel,
	}

	programOpts := []tea.ProgramOption{
		tea.WithContext(ctx),
		// The signal bridge owns SIGINT/SIGTERM.
		tea.WithoutSignalHandler(),
		// Panics belong to the process fault policy.
		tea.WithoutCatchPanics(),
	}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	} else if store.Bool(settings.KeyUIAltScreen) {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	w.program = tea.NewProgram(newModel(w), programOpts...)
	return w
}

// Sessions returns the open sessions in tab order.
func (w *Window) Sessions() []*session.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.sessions)
}

func (w *Window) nextName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextIndex++
	return fmt.Sprintf("Session %d", w.nextIndex)
}

func (w *Window) add(s *session.Session) {
	w.mu.Lock()
	w.sessions = append(w.sessions, s)
	w.mu.Unlock()
	w.logger.Info("session added", "session", s.ID.String(), "name", s.Name())
}

func (w *Window) newSession(name string) *session.Session {
	return session.New(name, w.devices.Context(), w.logger)
}

// AddDefaultSession opens a session on the preferred device, if any.
func (w *Window) AddDefaultSession() *session.Session {
	s := w.newSession(w.nextName())
	if d, ok := w.devices.Preferred(); ok {
		s.SetDevice(d)
	}
	w.add(s)
	return s
}

// AddSessionWithFile opens path as a new session. A load failure still adds
// the session in the error state and returns the error.
func (w *Window) AddSessionWithFile(path, format string) (*session.Session, error) {
	s := w.newSession(w.nextName())
	err := s.LoadInput(path, format)
	w.add(s)
	if err != nil {
		return s, fmt.Errorf("open %q: %w", path, err)
	}
	return s, nil
}

// RestoreSessions re-opens the sessions saved by the previous run and returns
// how many were added. Individual file failures are logged and kept as
// errored sessions.
func (w *Window) RestoreSessions() (int, error) {
	if w.stateStore == nil {
		return 0, nil
	}
	snapshots, err := w.stateStore.Load()
	if err != nil {
		return 0, fmt.Errorf("restore sessions: %w", err)
	}

	for _, snap := range snapshots {
		name := snap.Name
		if name == "" {
			name = w.nextName()
		} else {
			w.mu.Lock()
			w.nextIndex++
			w.mu.Unlock()
		}

		s := w.newSession(name)
		switch {
		case snap.InputFile != "":
			if err := s.LoadInput(snap.InputFile, snap.InputFormat); err != nil {
				w.logger.Warn("restore session input failed", "name", name, "error", err.Error())
			}
		case snap.DeviceDriver != "":
			if d, ok := w.devices.Lookup(snap.DeviceDriver, snap.DeviceID); ok {
				s.SetDevice(d)
			} else if d, ok := w.devices.Preferred(); ok {
				w.logger.Warn("restored device missing; using preferred",
					"name", name, "driver", snap.DeviceDriver, "device", snap.DeviceID)
				s.SetDevice(d)
			}
		}
		w.add(s)
	}

	w.logger.Info("sessions restored", "count", len(snapshots))
	return len(snapshots), nil
}

// CloseSession stops and removes s.
func (w *Window) CloseSession(s *session.Session) {
	s.Close()
	w.mu.Lock()
	w.sessions = slices.DeleteFunc(w.sessions, func(existing *session.Session) bool { return existing == s })
	w.mu.Unlock()
	w.logger.Info("session closed", "session", s.ID.String())
}

// RequestClose asks the event loop to quit. It never blocks and is safe from
// any goroutine, before or during Run.
func (w *Window) RequestClose(reason string) {
	w.logger.Info("close requested", "reason", reason)
	go w.program.Send(closeMsg{reason: reason})
}

// Run blocks in the event loop until the window closes, then stops captures
// and persists the session list. It returns the process exit status.
//
// A panic in the event loop restores the terminal, stops captures and is
// re-raised to the caller. The session list is not persisted in that case.
func (w *Window) Run() int {
	defer w.cancel()
	defer func() {
		if r := recover(); r != nil {
			if err := w.program.ReleaseTerminal(); err != nil {
				w.logger.Warn("restore terminal failed", "error", err.Error())
			}
			w.closeSessions()
			panic(r)
		}
	}()

	if w.settings.FileName() != "" {
		err := w.settings.Watch(w.ctx, w.logger, func() {
			w.program.Send(settingsChangedMsg{})
		})
		if err != nil {
			w.logger.Warn("settings watch unavailable", "error", err.Error())
		}
	}

	_, runErr := w.program.Run()

	w.closeSessions()
	w.persist()

	if runErr != nil {
		w.logger.Error("event loop failed", "error", runErr.Error())
		return 1
	}
	return 0
}

func (w *Window) closeSessions() {
	for _, s := range w.Sessions() {
		s.Close()
	}
}

func (w *Window) persist() {
	if w.stateStore == nil || !w.settings.Bool(settings.KeySessionSaveOnExit) {
		return
	}

	sessions := w.Sessions()
	snapshots := make([]session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snapshots = append(snapshots, s.Snapshot())
	}
	if err := w.stateStore.Save(snapshots); err != nil {
		w.logger.Warn("save sessions failed", "error", err.Error())
		return
	}
	w.logger.Info("sessions saved", "count", len(snapshots), "path", w.stateStore.Path())
}
