package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/sigview/internal/acquisition"
	"github.com/rbright/sigview/internal/fsm"
)

func newDemoContext(t *testing.T) *acquisition.Context {
	t.Helper()
	acq, err := acquisition.Create(acquisition.Options{Drivers: []acquisition.Driver{acquisition.NewDemoDriver()}})
	require.NoError(t, err)
	return acq
}

func demoDevice(t *testing.T) acquisition.Device {
	t.Helper()
	devices, err := acquisition.NewDemoDriver().Scan(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	return devices[0]
}

func TestSessionCaptureLifecycle(t *testing.T) {
	s := New("Session 1", newDemoContext(t), nil)
	require.Equal(t, fsm.StateIdle, s.State())
	require.NotEqual(t, s.ID.String(), New("other", nil, nil).ID.String())

	s.SetDevice(demoDevice(t))
	require.NoError(t, s.StartCapture(context.Background()))
	require.Equal(t, fsm.StateCapturing, s.State())

	require.Eventually(t, func() bool { return s.Samples() > 0 }, 2*time.Second, 10*time.Millisecond)
	require.Positive(t, s.Peak())

	require.NoError(t, s.StopCapture())
	require.Equal(t, fsm.StateIdle, s.State())

	settled := s.Samples()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, s.Samples())
}

func TestSessionStartCaptureWithoutDevice(t *testing.T) {
	s := New("Session 1", newDemoContext(t), nil)
	require.ErrorIs(t, s.StartCapture(context.Background()), ErrNoDevice)
	require.Equal(t, fsm.StateIdle, s.State())
}

func TestSessionStartCaptureFailureEntersError(t *testing.T) {
	s := New("Session 1", newDemoContext(t), nil)
	s.SetDevice(acquisition.Device{Driver: "demo", ID: "missing"})

	err := s.StartCapture(context.Background())
	require.Error(t, err)
	require.Equal(t, fsm.StateError, s.State())
	require.Error(t, s.Err())

	require.NoError(t, s.Reset())
	require.Equal(t, fsm.StateIdle, s.State())
	require.NoError(t, s.Err())
}

func TestSessionStopWhenIdleIsInvalid(t *testing.T) {
	s := New("Session 1", newDemoContext(t), nil)
	err := s.StopCapture()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid transition")
}

func TestSessionCloseStopsCapture(t *testing.T) {
	s := New("Session 1", newDemoContext(t), nil)
	s.SetDevice(demoDevice(t))
	require.NoError(t, s.StartCapture(context.Background()))
	s.Close()
	require.Equal(t, fsm.StateIdle, s.State())

	s.Close()
	require.Equal(t, fsm.StateIdle, s.State())
}

func TestSessionStreamDropEntersError(t *testing.T) {
	s := New("Session 1", newDemoContext(t), nil)
	s.SetDevice(demoDevice(t))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.StartCapture(ctx))
	cancel()

	require.Eventually(t, func() bool { return s.State() == fsm.StateError }, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, s.Err(), ErrStreamDropped)

	err := s.StopCapture()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid transition")

	require.NoError(t, s.Reset())
	require.NoError(t, s.StartCapture(context.Background()))
	require.NoError(t, s.StopCapture())
	require.Equal(t, fsm.StateIdle, s.State())
	require.NoError(t, s.Err())
}

func TestSessionLoadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.csv")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n3\n"), 0o600))

	s := New("trace", nil, nil)
	require.NoError(t, s.LoadInput(path, ""))
	require.Equal(t, int64(3), s.Samples())
	require.Equal(t, fsm.StateIdle, s.State())
	require.Equal(t, Snapshot{Name: "trace", InputFile: path, InputFormat: FormatCSV}, s.Snapshot())
}

func TestSessionLoadInputFailureKeepsErroredSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.raw")

	s := New("missing", nil, nil)
	err := s.LoadInput(path, "")
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.Equal(t, fsm.StateError, s.State())
	require.Equal(t, path, s.Snapshot().InputFile)
	require.Nil(t, s.Input())
}

func TestSessionSnapshotIncludesDevice(t *testing.T) {
	s := New("live", nil, nil)
	s.SetDevice(acquisition.Device{Driver: "pulse", ID: "mic"})
	require.Equal(t, Snapshot{Name: "live", DeviceDriver: "pulse", DeviceID: "mic"}, s.Snapshot())
}

func TestChunkPeak(t *testing.T) {
	require.Equal(t, int16(0), chunkPeak(nil))
	require.Equal(t, int16(5), chunkPeak([]byte{0x05, 0x00, 0xFD, 0xFF}))
	require.Equal(t, int16(32767), chunkPeak([]byte{0x00, 0x80}))
	require.Equal(t, int16(3), chunkPeak([]byte{0xFD, 0xFF, 0x01}))
}
