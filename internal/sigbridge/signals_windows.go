//go:build windows

package sigbridge

import "os"

func platformSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
