package settings

// Known keys.
const (
	KeyLogBufferSize     = "log.buffer_size"
	KeyLogToFile         = "log.to_file"
	KeyLogFormat         = "log.format"
	KeyUITheme           = "ui.theme"
	KeyUIAltScreen       = "ui.alt_screen"
	KeySessionSaveOnExit = "session.save_on_exit"
	KeyScanTimeout       = "acquisition.scan_timeout_ms"
	KeyScanConcurrency   = "acquisition.scan_concurrency"
	KeyDecodeEndpoint    = "decode.endpoint"
	KeyDecodeDialTimeout = "decode.dial_timeout_ms"
)

// Defaults returns the canonical value for every known key.
func Defaults() map[string]any {
	return map[string]any{
		KeyLogBufferSize:     int64(1000),
		KeyLogToFile:         true,
		KeyLogFormat:         "json",
		KeyUITheme:           "dark",
		KeyUIAltScreen:       true,
		KeySessionSaveOnExit: true,
		KeyScanTimeout:       int64(3000),
		KeyScanConcurrency:   int64(4),
		KeyDecodeEndpoint:    "",
		KeyDecodeDialTimeout: int64(2000),
	}
}
