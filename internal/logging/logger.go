// Package logging opens the process log once settings are known.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rbright/sigview/internal/settings"
)

// Options selects the logging mode.
type Options struct {
	// Enabled routes records to the log file; when false a text handler on
	// Stdout is used instead.
	Enabled bool
	Stdout  io.Writer
}

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	Ring   *Ring
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds the process logger from settings. Every record is also kept in
// an in-memory ring for the log pane.
func New(store *settings.Store, opts Options) (Runtime, error) {
	ring := NewRing(store.Int(settings.KeyLogBufferSize))

	if !opts.Enabled {
		stdout := opts.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		h := slog.NewTextHandler(io.MultiWriter(stdout, ring), &slog.HandlerOptions{Level: slog.LevelInfo})
		return Runtime{Logger: slog.New(h), Ring: ring}, nil
	}

	var (
		sink   io.Writer = ring
		path   string
		closer io.Closer
	)
	if store.Bool(settings.KeyLogToFile) {
		resolved, err := resolveLogPath()
		if err != nil {
			return Runtime{}, err
		}
		if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
			return Runtime{}, err
		}

		f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return Runtime{}, err
		}
		sink = io.MultiWriter(f, ring)
		path = resolved
		closer = f
	}

	return Runtime{
		Logger: slog.New(newHandler(store.String(settings.KeyLogFormat), sink)),
		Path:   path,
		Ring:   ring,
		closer: closer,
	}, nil
}

func newHandler(format string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "sigview", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "sigview", "log.jsonl"), nil
}
