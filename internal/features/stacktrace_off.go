//go:build !stacktrace

package features

const crashDumpEnabled = false
