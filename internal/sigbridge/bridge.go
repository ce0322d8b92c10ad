// Package sigbridge turns OS termination signals into close requests on the
// application window.
package sigbridge

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
)

// ErrUnsupported is returned on platforms without a signal bridge.
var ErrUnsupported = errors.New("signal handling is not supported on this platform")

// Closer receives close requests. Implementations must be safe to call from
// any goroutine.
type Closer interface {
	RequestClose(reason string)
}

// Bridge forwards signals until Stop is called.
type Bridge struct {
	signals chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Install subscribes to the platform termination signals and forwards each
// one to target.
func Install(target Closer, logger *slog.Logger) (*Bridge, error) {
	watched := platformSignals()
	if len(watched) == 0 {
		return nil, ErrUnsupported
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := &Bridge{
		signals: make(chan os.Signal, len(watched)),
		done:    make(chan struct{}),
	}
	signal.Notify(b.signals, watched...)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.done:
				return
			case sig := <-b.signals:
				logger.Info("signal received", "signal", sig.String())
				target.RequestClose(sig.String())
			}
		}
	}()

	return b, nil
}

// Stop unsubscribes and waits for the forwarding goroutine to exit.
func (b *Bridge) Stop() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		signal.Stop(b.signals)
		close(b.done)
		b.wg.Wait()
	})
}
