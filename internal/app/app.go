// Package app sequences startup, the main loop, and teardown of the process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rbright/sigview/internal/acquisition"
	"github.com/rbright/sigview/internal/cli"
	"github.com/rbright/sigview/internal/decode"
	"github.com/rbright/sigview/internal/device"
	"github.com/rbright/sigview/internal/faults"
	"github.com/rbright/sigview/internal/features"
	"github.com/rbright/sigview/internal/logging"
	"github.com/rbright/sigview/internal/session"
	"github.com/rbright/sigview/internal/settings"
	"github.com/rbright/sigview/internal/ui"
	"github.com/rbright/sigview/internal/version"
)

const binaryName = "sigview"

type Runner struct {
	Stdout        io.Writer
	Stderr        io.Writer
	Features      features.Features
	Collaborators Collaborators
}

func Execute(args []string, stdout, stderr io.Writer) int {
	r := Runner{
		Stdout:        stdout,
		Stderr:        stderr,
		Features:      features.Default(),
		Collaborators: DefaultCollaborators(),
	}
	return r.Execute(args)
}

func (r Runner) Execute(args []string) int {
	parsed, err := cli.Parse(args)
	for _, w := range parsed.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w)
	}
	if err != nil {
		if errors.Is(err, cli.ErrTooManyFiles) {
			fmt.Fprintln(r.Stderr, "Only one file can be opened.")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	switch parsed.Action {
	case cli.ActionHelp:
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	case cli.ActionVersion:
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	return r.run(context.Background(), parsed.Options)
}

func (r Runner) run(ctx context.Context, opts cli.Options) int {
	c := r.Collaborators.withDefaults()

	store, settingsWarnings := r.loadSettings(c)

	logRuntime, err := c.OpenLogging(store, logging.Options{Enabled: opts.LoggingEnabled, Stdout: r.Stdout})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()
	logger := logRuntime.Logger

	logger.Info("startup",
		"version", version.String(),
		"settings", store.FileName(),
		"log", logRuntime.Path,
	)
	for _, msg := range settingsWarnings {
		logger.Warn("settings warning", "message", msg)
	}

	acq, err := c.NewAcquisition(acquisition.Options{Logger: logger, ApplicationName: binaryName})
	if err != nil {
		fmt.Fprintf(r.Stderr, "Failed to initialize acquisition context: %v\n", err)
		logger.Error("acquisition context failed", "error", err.Error())
		return 1
	}

	if opts.LogLevelSet {
		if err := acq.SetLogLevel(opts.LogLevel); err != nil {
			logger.Warn("apply log level failed", "error", err.Error())
		}
		if opts.LogLevel == acquisition.LogSpew {
			logger.Info("settings file", "path", store.FileName(), "format", store.Format())
		}
	}

	mode := r.Features.FaultMode()
	policy := faults.New(mode, logger)
	if err := policy.Install(); err != nil {
		logger.Warn("crash dump unavailable", "error", err.Error())
	}

	var decoders []string
	if r.Features.Decode {
		engine := c.NewDecoder(decode.Options{
			Endpoint:    store.String(settings.KeyDecodeEndpoint),
			DialTimeout: store.Duration(settings.KeyDecodeDialTimeout),
			Logger:      logger,
		})
		defer func() {
			if err := engine.Exit(); err != nil {
				logger.Warn("decoder teardown failed", "error", err.Error())
			}
		}()

		if opts.LogLevelSet {
			_ = engine.SetLogLevel(opts.LogLevel)
		}
		if err := engine.Init(ctx); err != nil {
			logger.Error("decoder init failed", "error", err.Error())
			fmt.Fprintf(r.Stderr, "error: decoder init: %v\n", err)
			return 1
		}
		decoders, err = engine.LoadAll(ctx)
		if err != nil {
			logger.Error("decoder load failed", "error", err.Error())
			fmt.Fprintf(r.Stderr, "error: load decoders: %v\n", err)
			return 1
		}
	}

	status := 0
	if err := policy.Run(func() {
		status = r.host(ctx, c, hostConfig{
			opts:     opts,
			acq:      acq,
			store:    store,
			ring:     logRuntime.Ring,
			decoders: decoders,
			absorb:   mode == faults.ModeAbsorb,
			logger:   logger,
		})
	}); err != nil {
		logger.Warn("main loop aborted; continuing to teardown", "error", err.Error())
	}

	logger.Info("shutdown", "status", status)
	return status
}

// loadSettings never fails: unreadable settings fall back to defaults held in
// memory. Warnings are returned for logging once the logger exists.
func (r Runner) loadSettings(c Collaborators) (*settings.Store, []string) {
	var warnings []string

	loaded, err := c.LoadSettings()
	if err != nil {
		warnings = append(warnings, err.Error())
		loaded = settings.Loaded{Store: settings.NewStore("")}
	}
	for _, w := range loaded.Warnings {
		warnings = append(warnings, w.Message)
	}

	store := loaded.Store
	if store == nil {
		store = settings.NewStore(loaded.Path)
	}
	filled := store.SetDefaultsWhereNeeded()
	switch {
	case loaded.Malformed:
		warnings = append(warnings, fmt.Sprintf("settings file %q left untouched until fixed", store.FileName()))
	case len(filled) > 0 && store.FileName() != "":
		if err := store.Save(); err != nil {
			warnings = append(warnings, fmt.Sprintf("save settings defaults: %v", err))
		}
	}
	return store, warnings
}

type hostConfig struct {
	opts     cli.Options
	acq      *acquisition.Context
	store    *settings.Store
	ring     *logging.Ring
	decoders []string
	absorb   bool
	logger   *slog.Logger
}

func (r Runner) host(ctx context.Context, c Collaborators, cfg hostConfig) int {
	logger := cfg.logger

	devices := c.NewDevices(ctx, cfg.acq, device.Options{
		Driver:          cfg.opts.Driver,
		Scan:            cfg.opts.ScanEnabled,
		ScanTimeout:     cfg.store.Duration(settings.KeyScanTimeout),
		ScanConcurrency: cfg.store.Int(settings.KeyScanConcurrency),
		Logger:          logger,
	})

	var stateStore *session.StateStore
	if store, err := c.NewStateStore(); err != nil {
		logger.Warn("session state unavailable", "error", err.Error())
	} else {
		stateStore = store
	}

	win := c.NewWindow(devices, ui.Options{
		Logger:       logger,
		Settings:     cfg.store,
		StateStore:   stateStore,
		Ring:         cfg.ring,
		Decoders:     cfg.decoders,
		AbsorbPanics: cfg.absorb,
	})

	if cfg.opts.RestoreSessions {
		if _, err := win.RestoreSessions(); err != nil {
			logger.Warn("restore sessions failed", "error", err.Error())
		}
	}

	if cfg.opts.OpenFile != "" {
		if _, err := win.AddSessionWithFile(cfg.opts.OpenFile, cfg.opts.OpenFileFormat); err != nil {
			logger.Error("open input failed", "path", cfg.opts.OpenFile, "error", err.Error())
		}
	} else {
		win.AddDefaultSession()
	}

	if r.Features.Signals {
		bridge, err := c.InstallSignals(win, logger)
		if err != nil {
			logger.Warn("signal handling unavailable", "error", err.Error())
		} else {
			defer bridge.Stop()
		}
	}

	return win.Run()
}
