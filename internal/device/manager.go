// Package device discovers capture devices across the registered acquisition
// drivers.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/sigview/internal/acquisition"
)

// Options configure the initial scan.
type Options struct {
	// Driver is an optional "-d" spec naming the user's device.
	Driver string

	// Scan probes every registered driver.
	Scan        bool
	ScanTimeout time.Duration

	// ScanConcurrency bounds how many drivers are probed at once.
	ScanConcurrency int

	Logger *slog.Logger
}

const defaultScanConcurrency = 4

// Manager is the device list shared by every session.
type Manager struct {
	acq    *acquisition.Context
	logger *slog.Logger

	mu       sync.RWMutex
	devices  []acquisition.Device
	user     *acquisition.Device
	warnings []string
}

// New scans for devices. Failures become warnings; it always returns a
// usable manager, possibly with no devices.
func New(ctx context.Context, acq *acquisition.Context, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{acq: acq, logger: logger}

	if opts.Driver != "" {
		m.scanUserDriver(ctx, opts.Driver, opts.ScanTimeout)
	}
	if opts.Scan {
		m.scanAll(ctx, opts.ScanTimeout, opts.ScanConcurrency)
	}

	logger.Info("device scan complete", "devices", len(m.devices), "warnings", len(m.warnings))
	return m
}

func (m *Manager) scanUserDriver(ctx context.Context, raw string, timeout time.Duration) {
	spec, err := ParseDriverSpec(raw)
	if err != nil {
		m.warn("invalid driver spec %q: %v", raw, err)
		return
	}

	driver, ok := m.acq.Driver(spec.Name)
	if !ok {
		m.warn("unknown driver %q", spec.Name)
		return
	}

	found, err := scanDriver(ctx, driver, spec.Options, timeout)
	if err != nil {
		m.warn("scan driver %q: %v", spec.Name, err)
		return
	}
	if len(found) == 0 {
		m.warn("no devices found for driver spec %q", spec.String())
		return
	}

	user := found[0]
	m.user = &user
	m.add(found)
}

func (m *Manager) scanAll(ctx context.Context, timeout time.Duration, limit int) {
	drivers := m.acq.Drivers()
	results := make([][]acquisition.Device, len(drivers))
	errs := make([]error, len(drivers))

	if limit <= 0 {
		limit = defaultScanConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, driver := range drivers {
		g.Go(func() error {
			results[i], errs[i] = scanDriver(ctx, driver, nil, timeout)
			return nil
		})
	}
	_ = g.Wait()

	for i, driver := range drivers {
		if errs[i] != nil {
			m.warn("scan driver %q: %v", driver.Name(), errs[i])
			continue
		}
		m.add(results[i])
	}
}

func scanDriver(ctx context.Context, driver acquisition.Driver, opts map[string]string, timeout time.Duration) ([]acquisition.Device, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if opts == nil {
		opts = map[string]string{}
	}
	return driver.Scan(ctx, opts)
}

func (m *Manager) add(found []acquisition.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range found {
		if slices.ContainsFunc(m.devices, func(existing acquisition.Device) bool {
			return existing.Key() == d.Key()
		}) {
			continue
		}
		m.devices = append(m.devices, d)
	}
}

func (m *Manager) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.logger.Warn("device manager warning", "detail", msg)

	m.mu.Lock()
	m.warnings = append(m.warnings, msg)
	m.mu.Unlock()
}

// Context is the acquisition context the manager was built on.
func (m *Manager) Context() *acquisition.Context {
	return m.acq
}

// Devices lists discovered devices, user device first, without duplicates.
func (m *Manager) Devices() []acquisition.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.devices)
}

// UserDevice is the device selected by the driver spec, if any.
func (m *Manager) UserDevice() (acquisition.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return acquisition.Device{}, false
	}
	return *m.user, true
}

// Preferred picks the device new sessions should use: the user device, else
// the default available unmuted device, else the first available one.
func (m *Manager) Preferred() (acquisition.Device, bool) {
	if d, ok := m.UserDevice(); ok {
		return d, true
	}

	devices := m.Devices()
	for _, d := range devices {
		if d.Default && d.Available && !d.Muted {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Available {
			return d, true
		}
	}
	return acquisition.Device{}, false
}

// Lookup finds a device by driver and ID.
func (m *Manager) Lookup(driver, id string) (acquisition.Device, bool) {
	key := acquisition.Device{Driver: driver, ID: id}.Key()
	for _, d := range m.Devices() {
		if d.Key() == key {
			return d, true
		}
	}
	return acquisition.Device{}, false
}

// Warnings returns non-fatal problems from the scan.
func (m *Manager) Warnings() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.warnings)
}

func sortedKeys(in map[string]string) []string {
	return slices.Sorted(maps.Keys(in))
}
