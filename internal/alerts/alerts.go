package alerts

import "context"

// Notifier delivers human-readable failure alerts to an out-of-band channel.
// Delivery is best effort; callers log and move on when it fails.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Noop discards every alert. Used when no channel is configured and in tests.
type Noop struct{}

func (Noop) Send(ctx context.Context, message string) error { return nil }
