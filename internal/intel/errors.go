package intel

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure taxonomy for source adapters and the aggregation layer.
// Adapters never retry; callers match these with errors.Is.
var (
	ErrAuth          = errors.New("authentication failed")
	ErrUnreachable   = errors.New("source unreachable")
	ErrAdapter       = errors.New("adapter error")
	ErrNotConfigured = errors.New("source not configured")
	ErrBulkLimit     = errors.New("bulk query limit exceeded")
	ErrInvalidQuery  = errors.New("invalid query")
)

// wrapTransport classifies a transport-level error from an HTTP round
// trip. Timeouts and connection failures map to ErrUnreachable,
// everything else to ErrAdapter.
func wrapTransport(source string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s request timed out", ErrUnreachable, source)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s request timed out: %v", ErrUnreachable, source, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: cannot connect to %s: %v", ErrUnreachable, source, err)
	}

	return fmt.Errorf("%w: %s: %v", ErrAdapter, source, err)
}
