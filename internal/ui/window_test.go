package ui

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/rbright/sigview/internal/acquisition"
	"github.com/rbright/sigview/internal/device"
	"github.com/rbright/sigview/internal/faults"
	"github.com/rbright/sigview/internal/fsm"
	"github.com/rbright/sigview/internal/logging"
	"github.com/rbright/sigview/internal/session"
	"github.com/rbright/sigview/internal/settings"
)

type testEnv struct {
	devices    *device.Manager
	store      *settings.Store
	stateStore *session.StateStore
	ring       *logging.Ring
	dir        string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()

	acq, err := acquisition.Create(acquisition.Options{Drivers: []acquisition.Driver{acquisition.NewDemoDriver()}})
	require.NoError(t, err)

	store := settings.NewStore(filepath.Join(dir, "settings.toml"))
	store.SetDefaultsWhereNeeded()

	return testEnv{
		devices:    device.New(context.Background(), acq, device.Options{Scan: true}),
		store:      store,
		stateStore: session.NewStateStore(filepath.Join(dir, "sessions.json")),
		ring:       logging.NewRing(16),
		dir:        dir,
	}
}

func (e testEnv) window(input string) (*Window, *bytes.Buffer) {
	var out bytes.Buffer
	w := NewWindow(e.devices, Options{
		Settings:   e.store,
		StateStore: e.stateStore,
		Ring:       e.ring,
		Input:      strings.NewReader(input),
		Output:     &out,
	})
	return w, &out
}

func runWithTimeout(t *testing.T, w *Window) int {
	t.Helper()
	done := make(chan int, 1)
	go func() { done <- w.Run() }()
	select {
	case status := <-done:
		return status
	case <-time.After(5 * time.Second):
		t.Fatal("window did not close")
		return -1
	}
}

func TestAddDefaultSessionUsesPreferredDevice(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.window("")

	s := w.AddDefaultSession()
	require.Equal(t, "Session 1", s.Name())
	d, ok := s.Device()
	require.True(t, ok)
	require.Equal(t, "demo/demo0", d.Key())

	require.Equal(t, "Session 2", w.AddDefaultSession().Name())
	require.Len(t, w.Sessions(), 2)
}

func TestAddSessionWithFile(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.window("")

	path := filepath.Join(env.dir, "trace.csv")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n"), 0o600))

	s, err := w.AddSessionWithFile(path, "")
	require.NoError(t, err)
	require.Equal(t, int64(2), s.Samples())

	bad, err := w.AddSessionWithFile(filepath.Join(env.dir, "missing.raw"), "raw")
	require.Error(t, err)
	require.Equal(t, fsm.StateError, bad.State())
	require.Len(t, w.Sessions(), 2)
}

func TestRequestCloseBeforeRunEndsLoop(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.window("")
	w.AddDefaultSession()

	w.RequestClose("test")
	require.Equal(t, 0, runWithTimeout(t, w))
}

func TestQuitKeyEndsLoopAndSavesSessions(t *testing.T) {
	env := newTestEnv(t)
	w, out := env.window("q")

	path := filepath.Join(env.dir, "trace.raw")
	require.NoError(t, os.WriteFile(path, []byte{1, 0, 2, 0}, 0o600))
	_, err := w.AddSessionWithFile(path, "")
	require.NoError(t, err)
	w.AddDefaultSession()

	require.Equal(t, 0, runWithTimeout(t, w))
	require.NotEmpty(t, out.String())

	saved, err := env.stateStore.Load()
	require.NoError(t, err)
	require.Equal(t, []session.Snapshot{
		{Name: "Session 1", InputFile: path, InputFormat: session.FormatRaw},
		{Name: "Session 2", DeviceDriver: "demo", DeviceID: "demo0"},
	}, saved)
}

func TestRunSkipsSaveWhenDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.store.Set(settings.KeySessionSaveOnExit, false)
	w, _ := env.window("")
	w.AddDefaultSession()
	w.RequestClose("test")

	require.Equal(t, 0, runWithTimeout(t, w))
	_, err := os.Stat(env.stateStore.Path())
	require.True(t, os.IsNotExist(err))
}

func TestEventLoopPanicReachesFaultPolicy(t *testing.T) {
	env := newTestEnv(t)
	var logs, out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	w := NewWindow(env.devices, Options{
		Logger:       logger,
		Settings:     env.store,
		StateStore:   env.stateStore,
		Input:        strings.NewReader(""),
		Output:       &out,
		AbsorbPanics: true,
	})
	s := w.AddDefaultSession()
	require.NoError(t, s.StartCapture(context.Background()))

	// The first render dereferences the device manager.
	w.devices = nil

	status := 0
	err := faults.New(faults.ModeAbsorb, logger).Run(func() {
		status = w.Run()
	})

	var panicErr *faults.PanicError
	require.ErrorAs(t, err, &panicErr)
	require.Zero(t, status)
	require.Contains(t, logs.String(), "msg=exception")
	require.NotContains(t, out.String(), "Caught panic")
	require.Equal(t, fsm.StateIdle, s.State())

	_, statErr := os.Stat(env.stateStore.Path())
	require.True(t, os.IsNotExist(statErr))
}

func TestCommandPanicReturnsToEventLoop(t *testing.T) {
	env := newTestEnv(t)
	w := NewWindow(env.devices, Options{
		Settings:     env.store,
		Input:        strings.NewReader(""),
		Output:       &bytes.Buffer{},
		AbsorbPanics: true,
	})
	m := newModel(w)

	msg := m.guard(func() tea.Msg { panic("capture driver exploded") })()
	cp, ok := msg.(commandPanic)
	require.True(t, ok)
	require.Equal(t, "capture driver exploded", cp.value)
	require.Contains(t, cp.String(), "command goroutine")

	require.PanicsWithValue(t, cp, func() { m.Update(cp) })
}

func TestCommandPanicUnguardedInCrashMode(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.window("")
	m := newModel(w)

	cmd := m.guard(func() tea.Msg { panic("boom") })
	require.PanicsWithValue(t, "boom", func() { cmd() })
}

func TestRestoreSessions(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "trace.csv")
	require.NoError(t, os.WriteFile(path, []byte("5\n"), 0o600))
	require.NoError(t, env.stateStore.Save([]session.Snapshot{
		{Name: "live", DeviceDriver: "demo", DeviceID: "demo0"},
		{Name: "file", InputFile: path, InputFormat: "csv"},
		{Name: "gone", InputFile: filepath.Join(env.dir, "gone.csv")},
		{Name: "moved", DeviceDriver: "pulse", DeviceID: "unplugged"},
	}))

	w, _ := env.window("")
	n, err := w.RestoreSessions()
	require.NoError(t, err)
	require.Equal(t, 4, n)

	sessions := w.Sessions()
	require.Len(t, sessions, 4)
	d, ok := sessions[0].Device()
	require.True(t, ok)
	require.Equal(t, "demo0", d.ID)
	require.Equal(t, int64(1), sessions[1].Samples())
	require.Equal(t, fsm.StateError, sessions[2].State())
	moved, ok := sessions[3].Device()
	require.True(t, ok)
	require.Equal(t, "demo/demo0", moved.Key())

	require.Equal(t, "Session 5", w.AddDefaultSession().Name())
}

func TestRestoreSessionsWithoutStateStore(t *testing.T) {
	env := newTestEnv(t)
	w := NewWindow(env.devices, Options{Input: strings.NewReader(""), Output: &bytes.Buffer{}})
	n, err := w.RestoreSessions()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRestoreSessionsCorruptState(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.stateStore.Path(), []byte("{"), 0o600))
	w, _ := env.window("")
	_, err := w.RestoreSessions()
	require.Error(t, err)
	require.Empty(t, w.Sessions())
}

func TestModelKeys(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.window("")
	w.AddDefaultSession()

	var m tea.Model = newModel(w)
	press := func(k string) tea.Cmd {
		var cmd tea.Cmd
		m, cmd = m.Update(keyMsg(k))
		return cmd
	}

	press("n")
	require.Len(t, w.Sessions(), 2)
	require.Equal(t, 1, m.(model).selected)

	press("tab")
	require.Equal(t, 0, m.(model).selected)
	press("shift+tab")
	require.Equal(t, 1, m.(model).selected)

	press("l")
	require.True(t, m.(model).showLog)

	cmd := press("r")
	require.NotNil(t, cmd)
	msg := cmd()
	done, ok := msg.(captureDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	require.Equal(t, fsm.StateCapturing, w.Sessions()[1].State())

	press("x")
	require.Len(t, w.Sessions(), 1)
	require.Equal(t, 0, m.(model).selected)

	cmd = press("q")
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	require.True(t, isQuit)
}

func TestModelViewAndSettingsReload(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.window("")
	w.AddDefaultSession()

	m := newModel(w)
	require.Equal(t, "dark", m.theme.Name)

	view := m.View()
	require.Contains(t, view, "SigView")
	require.Contains(t, view, "Session 1")
	require.Contains(t, view, "demo/demo0")

	env.store.Set(settings.KeyUITheme, "light")
	updated, _ := m.Update(settingsChangedMsg{})
	require.Equal(t, "light", updated.(model).theme.Name)

	_, cmd := m.Update(closeMsg{reason: "signal"})
	require.NotNil(t, cmd)
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0, clamp(5, 0))
	require.Equal(t, 0, clamp(-1, 3))
	require.Equal(t, 2, clamp(7, 3))
	require.Equal(t, 1, clamp(1, 3))
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}
