// Package session holds one capture or file-view session and its persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rbright/sigview/internal/acquisition"
	"github.com/rbright/sigview/internal/fsm"
)

// ErrNoDevice is returned when capture starts on a session without a device.
var ErrNoDevice = errors.New("session has no capture device")

// ErrStreamDropped is recorded when a device stream ends without a stop.
var ErrStreamDropped = errors.New("capture stream dropped")

// Snapshot is the persisted view of a session.
type Snapshot struct {
	Name         string
	DeviceDriver string
	DeviceID     string
	InputFile    string
	InputFormat  string
}

// Session is a single view onto either a live device or a loaded file.
type Session struct {
	ID uuid.UUID

	acq    *acquisition.Context
	logger *slog.Logger

	mu          sync.RWMutex
	name        string
	device      acquisition.Device
	hasDevice   bool
	input       *Input
	inputFile   string
	inputFormat string
	state       fsm.State
	err         error
	captured    int64
	peak        int16

	capture acquisition.Capture
	drained chan struct{}
}

// New creates an idle session bound to acq for capture.
func New(name string, acq *acquisition.Context, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.New()
	return &Session{
		ID:     id,
		acq:    acq,
		logger: logger.With("session", id.String()),
		name:   name,
		state:  fsm.StateIdle,
	}
}

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetDevice selects the capture device.
func (s *Session) SetDevice(device acquisition.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = device
	s.hasDevice = true
}

func (s *Session) Device() (acquisition.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device, s.hasDevice
}

func (s *Session) State() fsm.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err is the failure that moved the session to the error state.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Input is the loaded file, or nil.
func (s *Session) Input() *Input {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.input
}

// Samples counts loaded plus captured samples.
func (s *Session) Samples() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.captured
	if s.input != nil {
		n += int64(len(s.input.Samples))
	}
	return n
}

// Peak is the largest absolute amplitude seen in the last captured chunk.
func (s *Session) Peak() int16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peak
}

// LoadInput reads path into the session. On failure the session is left in
// the error state with the file name recorded so it still shows in the UI.
func (s *Session) LoadInput(path, format string) error {
	s.mu.Lock()
	s.inputFile = path
	s.inputFormat = format
	s.mu.Unlock()

	input, err := LoadFile(path, format)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.input = input
	s.inputFormat = input.Format
	s.mu.Unlock()

	s.logger.Info("input loaded", "path", path, "format", input.Format, "samples", len(input.Samples))
	return nil
}

// StartCapture opens a capture stream on the session device.
func (s *Session) StartCapture(ctx context.Context) error {
	device, ok := s.Device()
	if !ok {
		return ErrNoDevice
	}
	if err := s.transition(fsm.EventStart); err != nil {
		return err
	}

	capture, err := s.acq.StartCapture(ctx, device)
	if err != nil {
		s.fail(err)
		return fmt.Errorf("start capture on %s: %w", device.Key(), err)
	}

	drained := make(chan struct{})
	s.mu.Lock()
	s.capture = capture
	s.drained = drained
	s.mu.Unlock()

	go s.drain(capture, drained)
	s.logger.Info("capture started", "device", device.Key())
	return nil
}

func (s *Session) drain(capture acquisition.Capture, drained chan struct{}) {
	defer close(drained)
	for chunk := range capture.Chunks() {
		peak := chunkPeak(chunk)
		s.mu.Lock()
		s.captured += int64(len(chunk) / 2)
		s.peak = peak
		s.mu.Unlock()
	}

	// A stream closed by StopCapture has already left the capturing state.
	if err := s.transition(fsm.EventDropped); err != nil {
		return
	}
	s.mu.Lock()
	s.err = ErrStreamDropped
	if s.capture == capture {
		s.capture, s.drained = nil, nil
	}
	s.mu.Unlock()
	_ = capture.Stop()
	s.logger.Error("capture stream dropped", "device", capture.Device().Key(), "bytes", capture.BytesCaptured())
}

// StopCapture ends the capture stream and waits for buffered chunks.
func (s *Session) StopCapture() error {
	if err := s.transition(fsm.EventStop); err != nil {
		return err
	}

	s.mu.Lock()
	capture, drained := s.capture, s.drained
	s.capture, s.drained = nil, nil
	s.mu.Unlock()

	if capture != nil {
		if err := capture.Stop(); err != nil {
			s.fail(err)
			return fmt.Errorf("stop capture: %w", err)
		}
		<-drained
		s.logger.Info("capture stopped", "bytes", capture.BytesCaptured())
	}

	return s.transition(fsm.EventStopped)
}

// Reset clears an error state.
func (s *Session) Reset() error {
	if err := s.transition(fsm.EventReset); err != nil {
		return err
	}
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Close stops any running capture. It is safe in every state.
func (s *Session) Close() {
	if s.State() == fsm.StateCapturing {
		if err := s.StopCapture(); err != nil {
			s.logger.Warn("stop capture on close failed", "error", err.Error())
		}
	}
}

// Snapshot captures what is needed to restore the session later.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Name:        s.name,
		InputFile:   s.inputFile,
		InputFormat: s.inputFormat,
	}
	if s.hasDevice {
		snap.DeviceDriver = s.device.Driver
		snap.DeviceID = s.device.ID
	}
	return snap
}

func (s *Session) transition(event fsm.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	_ = s.transition(fsm.EventFail)
	s.logger.Error("session failed", "error", err.Error())
}

func chunkPeak(chunk []byte) int16 {
	var peak int16
	for i := 0; i+1 < len(chunk); i += 2 {
		v := int16(uint16(chunk[i]) | uint16(chunk[i+1])<<8)
		if v < 0 {
			if v == -32768 {
				v = 32767
			} else {
				v = -v
			}
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
