package engine

import (
	"context"
	"fmt"
	"time"

	"bn-basis-bot/internal/alerts"
	"bn-basis-bot/internal/metrics"

	"go.uber.org/zap"
)

// Timestamped is implemented by signed gateway requests. The exchange
// rejects stale timestamps, so the caller refreshes the field before
// every attempt.
type Timestamped interface {
	SetTimestamp(ms int64)
}

// TerminalError reports an operation that ran out of retry attempts. It is
// the sole audited give-up path; the embedding application decides whether
// to exit, alert only, or restart.
type TerminalError struct {
	Action  string
	Request string
	Err     error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s failed after all retry attempts: %v", e.Action, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Caller wraps every order placement and transfer with bounded retry,
// fresh timestamp injection and terminal escalation.
type Caller struct {
	log      *zap.Logger
	notifier alerts.Notifier
	metrics  *metrics.Metrics
	attempts int
	backoff  time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewCaller(log *zap.Logger, notifier alerts.Notifier, m *metrics.Metrics, attempts int, backoff time.Duration) *Caller {
	if notifier == nil {
		notifier = alerts.Noop{}
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Caller{
		log:      log,
		notifier: notifier,
		metrics:  m,
		attempts: attempts,
		backoff:  backoff,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Do attempts the call up to the configured limit, sleeping a fixed
// backoff between attempts. On exhaustion it logs at error level, sends
// one alert carrying the action label and the request, and returns a
// TerminalError wrapping the last failure.
func Do[T any](ctx context.Context, c *Caller, action string, req any, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if ts, ok := req.(Timestamped); ok {
			ts.SetTimestamp(c.now().UnixMilli())
		}
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.log.Warn("operation failed, retrying",
			zap.String("action", action),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.attempts),
			zap.Error(err),
		)
		if attempt < c.attempts {
			if err := c.sleep(ctx, c.backoff); err != nil {
				return zero, err
			}
		}
	}
	desc := describeRequest(req)
	c.log.Error("operation failed too many times, giving up",
		zap.String("action", action),
		zap.String("request", desc),
		zap.Error(lastErr),
	)
	c.metrics.RetriesExhausted.Inc()
	message := fmt.Sprintf("%s failed too many times, arbitrage stops\nrequest: %s\nerror: %v", action, desc, lastErr)
	if err := c.notifier.Send(ctx, message); err != nil {
		c.log.Warn("alert send failed", zap.Error(err))
	} else {
		c.metrics.AlertsSent.Inc()
	}
	return zero, &TerminalError{Action: action, Request: desc, Err: lastErr}
}

func describeRequest(req any) string {
	if req == nil {
		return "(none)"
	}
	if s, ok := req.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%+v", req)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
