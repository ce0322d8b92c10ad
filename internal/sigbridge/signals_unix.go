//go:build unix

package sigbridge

import (
	"os"

	"golang.org/x/sys/unix"
)

func platformSignals() []os.Signal {
	return []os.Signal{unix.SIGINT, unix.SIGTERM}
}
