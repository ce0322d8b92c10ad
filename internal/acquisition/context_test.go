package acquisition

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubDriver struct {
	name    string
	devices []Device
	err     error
}

func (s stubDriver) Name() string     { return s.name }
func (s stubDriver) LongName() string { return "stub " + s.name }
func (s stubDriver) Scan(context.Context, map[string]string) ([]Device, error) {
	return s.devices, s.err
}
func (s stubDriver) StartCapture(context.Context, Device) (Capture, error) {
	return nil, s.err
}

func TestCreateRegistersDefaultDrivers(t *testing.T) {
	c, err := Create(Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"demo", "pulse"}, c.DriverNames())
	require.Equal(t, DefaultLogLevel, c.LogLevel())
	require.Equal(t, "sigview", c.ApplicationName())
}

func TestCreateRejectsDuplicateAndEmptyDrivers(t *testing.T) {
	_, err := Create(Options{Drivers: []Driver{stubDriver{name: "a"}, stubDriver{name: "a"}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")

	_, err = Create(Options{Drivers: []Driver{stubDriver{name: " "}}})
	require.Error(t, err)

	_, err = Create(Options{Drivers: []Driver{}})
	require.Error(t, err)
}

func TestSetLogLevelGatesAcquisitionLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	c, err := Create(Options{Logger: base, Drivers: []Driver{stubDriver{name: "stub"}}})
	require.NoError(t, err)

	buf.Reset()
	c.Logger().Debug("hidden")
	require.Empty(t, buf.String())

	require.NoError(t, c.SetLogLevel(LogDebug))
	require.Equal(t, LogDebug, c.LogLevel())
	c.Logger().Debug("visible")
	require.Contains(t, buf.String(), `"msg":"visible"`)
	require.Contains(t, buf.String(), `"subsystem":"acquisition"`)

	require.NoError(t, c.SetLogLevel(LogNone))
	buf.Reset()
	c.Logger().Error("silenced")
	require.Empty(t, buf.String())

	require.Error(t, c.SetLogLevel(LogLevel(6)))
	require.Equal(t, LogNone, c.LogLevel())
}

func TestStartCaptureUnknownDriver(t *testing.T) {
	c, err := Create(Options{Drivers: []Driver{stubDriver{name: "stub"}}})
	require.NoError(t, err)

	_, err = c.StartCapture(context.Background(), Device{Driver: "missing", ID: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown driver")
}

func TestDemoCaptureProducesChunksUntilStopped(t *testing.T) {
	c, err := Create(Options{Drivers: []Driver{NewDemoDriver()}})
	require.NoError(t, err)

	devices, err := c.Drivers()[0].Scan(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.True(t, devices[0].Available)

	capture, err := c.StartCapture(context.Background(), devices[0])
	require.NoError(t, err)

	select {
	case chunk := <-capture.Chunks():
		require.Len(t, chunk, chunkSizeBytes)
	case <-time.After(2 * time.Second):
		t.Fatal("demo capture produced no data")
	}

	require.NoError(t, capture.Stop())
	require.NoError(t, capture.Stop())
	require.Positive(t, capture.BytesCaptured())
	require.Equal(t, "demo0", capture.Device().ID)
}

func TestDemoStartCaptureRejectsUnknownDevice(t *testing.T) {
	_, err := NewDemoDriver().StartCapture(context.Background(), Device{Driver: "demo", ID: "other"})
	require.Error(t, err)
}
