//go:build !unix && !windows

package sigbridge

import "os"

func platformSignals() []os.Signal {
	return nil
}
