// Package acquisition owns the shared acquisition context, its drivers, and capture streams.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Device describes one capture source surfaced by a driver.
type Device struct {
	Driver      string
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Key identifies a device across scans.
func (d Device) Key() string {
	return d.Driver + "/" + d.ID
}

// Capture is one running sample stream.
type Capture interface {
	Device() Device
	Chunks() <-chan []byte
	BytesCaptured() int64
	Stop() error
}

// Driver discovers devices and opens capture streams for one backend.
type Driver interface {
	Name() string
	LongName() string
	Scan(ctx context.Context, opts map[string]string) ([]Device, error)
	StartCapture(ctx context.Context, device Device) (Capture, error)
}

// Options configure context creation.
type Options struct {
	Logger          *slog.Logger
	ApplicationName string
	// Drivers overrides the built-in registry when non-nil.
	Drivers []Driver
}

// Context is the process-wide acquisition handle shared by the device
// manager, sessions and capture actions.
type Context struct {
	appName string
	level   *slog.LevelVar

	mu       sync.RWMutex
	logLevel LogLevel
	drivers  map[string]Driver
	logger   *slog.Logger
}

// Create builds the acquisition context and registers its drivers.
func Create(opts Options) (*Context, error) {
	appName := strings.TrimSpace(opts.ApplicationName)
	if appName == "" {
		appName = "sigview"
	}

	base := opts.Logger
	if base == nil {
		base = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Context{
		appName:  appName,
		level:    new(slog.LevelVar),
		logLevel: DefaultLogLevel,
		drivers:  make(map[string]Driver),
	}
	c.level.Set(DefaultLogLevel.Slog())
	c.logger = slog.New(LevelFilter(base.Handler(), c.level)).With("subsystem", "acquisition")

	drivers := opts.Drivers
	if drivers == nil {
		drivers = []Driver{NewPulseDriver(appName), NewDemoDriver()}
	}
	if len(drivers) == 0 {
		return nil, errors.New("acquisition context has no drivers")
	}
	for _, d := range drivers {
		name := strings.TrimSpace(d.Name())
		if name == "" {
			return nil, errors.New("acquisition driver with empty name")
		}
		if _, exists := c.drivers[name]; exists {
			return nil, fmt.Errorf("duplicate acquisition driver %q", name)
		}
		c.drivers[name] = d
	}

	c.logger.Info("acquisition context created", "drivers", c.DriverNames())
	return c, nil
}

// SetLogLevel changes the acquisition verbosity.
func (c *Context) SetLogLevel(level LogLevel) error {
	if !level.Valid() {
		return fmt.Errorf("set log level: %s is out of range", level)
	}
	c.mu.Lock()
	c.logLevel = level
	c.mu.Unlock()
	c.level.Set(level.Slog())
	return nil
}

// LogLevel returns the current acquisition verbosity.
func (c *Context) LogLevel() LogLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logLevel
}

// Logger returns a logger filtered by the acquisition log level.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// ApplicationName is reported to backends that label their clients.
func (c *Context) ApplicationName() string {
	return c.appName
}

// Driver looks up a registered driver by name.
func (c *Context) Driver(name string) (Driver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.drivers[name]
	return d, ok
}

// Drivers returns registered drivers sorted by name.
func (c *Context) Drivers() []Driver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Driver, 0, len(c.drivers))
	for _, d := range c.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// DriverNames returns registered driver names sorted.
func (c *Context) DriverNames() []string {
	drivers := c.Drivers()
	names := make([]string, 0, len(drivers))
	for _, d := range drivers {
		names = append(names, d.Name())
	}
	return names
}

// StartCapture opens a capture stream on the driver that owns device.
func (c *Context) StartCapture(ctx context.Context, device Device) (Capture, error) {
	d, ok := c.Driver(device.Driver)
	if !ok {
		return nil, fmt.Errorf("start capture: unknown driver %q", device.Driver)
	}
	capture, err := d.StartCapture(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("start capture on %s: %w", device.Key(), err)
	}
	c.logger.Debug("capture started", "device", device.Key())
	return capture, nil
}

// LevelFilter replaces the threshold of inner with level, so subsystem debug
// output is visible even when the base logger is at info.
func LevelFilter(inner slog.Handler, level *slog.LevelVar) slog.Handler {
	return &leveledHandler{inner: inner, level: level}
}

type leveledHandler struct {
	inner slog.Handler
	level *slog.LevelVar
}

func (h *leveledHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *leveledHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *leveledHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &leveledHandler{inner: h.inner.WithAttrs(attrs), level: h.level}
}

func (h *leveledHandler) WithGroup(name string) slog.Handler {
	return &leveledHandler{inner: h.inner.WithGroup(name), level: h.level}
}
