package acquisition

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// LogLevel is the acquisition subsystem verbosity, 0 (silent) through 5 (spew).
type LogLevel int

const (
	LogNone LogLevel = iota
	LogError
	LogWarn
	LogInfo
	LogDebug
	LogSpew
)

// DefaultLogLevel matches the level a fresh context starts with.
const DefaultLogLevel = LogWarn

var logLevelNames = [...]string{"none", "error", "warn", "info", "debug", "spew"}

// ParseLogLevel accepts a decimal level and rejects anything outside [0,5].
func ParseLogLevel(raw string) (LogLevel, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: not an integer", raw)
	}
	level := LogLevel(n)
	if !level.Valid() {
		return 0, fmt.Errorf("invalid log level %d: must be between %d and %d", n, LogNone, LogSpew)
	}
	return level, nil
}

// Valid reports whether l is inside [LogNone, LogSpew].
func (l LogLevel) Valid() bool {
	return l >= LogNone && l <= LogSpew
}

func (l LogLevel) String() string {
	if !l.Valid() {
		return fmt.Sprintf("unknown(%d)", int(l))
	}
	return logLevelNames[l]
}

// Slog maps the level to the slog threshold used for acquisition log records.
// LogNone maps above Error so nothing passes.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogNone:
		return slog.LevelError + 4
	case LogError:
		return slog.LevelError
	case LogWarn:
		return slog.LevelWarn
	case LogInfo:
		return slog.LevelInfo
	case LogDebug:
		return slog.LevelDebug
	default:
		return slog.LevelDebug - 4
	}
}
