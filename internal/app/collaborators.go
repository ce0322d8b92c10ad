package app

import (
	"context"
	"log/slog"

	"github.com/rbright/sigview/internal/acquisition"
	"github.com/rbright/sigview/internal/decode"
	"github.com/rbright/sigview/internal/device"
	"github.com/rbright/sigview/internal/logging"
	"github.com/rbright/sigview/internal/session"
	"github.com/rbright/sigview/internal/settings"
	"github.com/rbright/sigview/internal/sigbridge"
	"github.com/rbright/sigview/internal/ui"
)

// DecodeEngine is the decoder lifecycle the runner drives.
type DecodeEngine interface {
	Init(ctx context.Context) error
	LoadAll(ctx context.Context) ([]string, error)
	SetLogLevel(level acquisition.LogLevel) error
	Exit() error
}

// Host is the window surface the runner drives.
type Host interface {
	sigbridge.Closer
	RestoreSessions() (int, error)
	AddSessionWithFile(path, format string) (*session.Session, error)
	AddDefaultSession() *session.Session
	Run() int
}

// Stopper releases an installed signal bridge.
type Stopper interface {
	Stop()
}

// Collaborators builds each subsystem. Nil fields use the defaults.
type Collaborators struct {
	LoadSettings   func() (settings.Loaded, error)
	OpenLogging    func(store *settings.Store, opts logging.Options) (logging.Runtime, error)
	NewAcquisition func(opts acquisition.Options) (*acquisition.Context, error)
	NewDecoder     func(opts decode.Options) DecodeEngine
	NewDevices     func(ctx context.Context, acq *acquisition.Context, opts device.Options) *device.Manager
	NewStateStore  func() (*session.StateStore, error)
	NewWindow      func(devices *device.Manager, opts ui.Options) Host
	InstallSignals func(target sigbridge.Closer, logger *slog.Logger) (Stopper, error)
}

// DefaultCollaborators wires the real subsystems.
func DefaultCollaborators() Collaborators {
	return Collaborators{
		LoadSettings:   settings.Load,
		OpenLogging:    logging.New,
		NewAcquisition: acquisition.Create,
		NewDecoder: func(opts decode.Options) DecodeEngine {
			return decode.New(opts)
		},
		NewDevices: device.New,
		NewStateStore: func() (*session.StateStore, error) {
			path, err := session.DefaultStatePath()
			if err != nil {
				return nil, err
			}
			return session.NewStateStore(path), nil
		},
		NewWindow: func(devices *device.Manager, opts ui.Options) Host {
			return ui.NewWindow(devices, opts)
		},
		InstallSignals: func(target sigbridge.Closer, logger *slog.Logger) (Stopper, error) {
			bridge, err := sigbridge.Install(target, logger)
			if err != nil {
				return nil, err
			}
			return bridge, nil
		},
	}
}

func (c Collaborators) withDefaults() Collaborators {
	d := DefaultCollaborators()
	if c.LoadSettings == nil {
		c.LoadSettings = d.LoadSettings
	}
	if c.OpenLogging == nil {
		c.OpenLogging = d.OpenLogging
	}
	if c.NewAcquisition == nil {
		c.NewAcquisition = d.NewAcquisition
	}
	if c.NewDecoder == nil {
		c.NewDecoder = d.NewDecoder
	}
	if c.NewDevices == nil {
		c.NewDevices = d.NewDevices
	}
	if c.NewStateStore == nil {
		c.NewStateStore = d.NewStateStore
	}
	if c.NewWindow == nil {
		c.NewWindow = d.NewWindow
	}
	if c.InstallSignals == nil {
		c.InstallSignals = d.InstallSignals
	}
	return c
}
