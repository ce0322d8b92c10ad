package decode

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

// ErrNotReady is returned by Init when the backend channel does not reach
// Ready before the dial timeout.
var ErrNotReady = errors.New("decoder backend not ready")

// awaitBackend starts connecting conn and blocks until it is Ready. State
// changes are logged at debug level; TransientFailure keeps waiting since the
// backend may still be starting.
func (e *Engine) awaitBackend(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()

	state := conn.GetState()
	for state != connectivity.Ready {
		if state == connectivity.Shutdown {
			return fmt.Errorf("%w: channel shut down", ErrNotReady)
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("%w: still %s: %w", ErrNotReady, state, ctx.Err())
		}

		next := conn.GetState()
		e.logger.Debug("decoder channel state", "endpoint", e.endpoint, "from", state.String(), "to", next.String())
		state = next
	}
	return nil
}
