package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Send(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func testCaller(attempts int, notifier *recordingNotifier) *Caller {
	c := NewCaller(zap.NewNop(), notifier, nil, attempts, time.Second)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

type stampedRequest struct {
	Timestamp int64
	Symbol    string
}

func (r *stampedRequest) SetTimestamp(ms int64) { r.Timestamp = ms }

func TestDoReturnsFirstSuccess(t *testing.T) {
	caller := testCaller(5, &recordingNotifier{})
	calls := 0
	result, err := Do(context.Background(), caller, "test op", nil, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %d", result)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestDoExhaustsRetriesThenAlertsOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	caller := testCaller(4, notifier)
	calls := 0
	_, err := Do(context.Background(), caller, "place order", &stampedRequest{Symbol: "BTCUSD_210625"}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("gateway down")
	})
	if calls != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", calls)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one alert, got %d", notifier.count())
	}
	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		t.Fatalf("expected TerminalError, got %v", err)
	}
	if terminal.Action != "place order" {
		t.Fatalf("expected action in terminal error, got %q", terminal.Action)
	}
}

func TestDoInjectsFreshTimestamps(t *testing.T) {
	caller := testCaller(3, &recordingNotifier{})
	clock := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	caller.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	req := &stampedRequest{Symbol: "BTCUSD_210625"}
	var seen []int64
	_, _ = Do(context.Background(), caller, "test op", req, func(ctx context.Context) (int, error) {
		seen = append(seen, req.Timestamp)
		return 0, errors.New("transient")
	})
	if len(seen) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("expected strictly increasing timestamps, got %v", seen)
		}
	}
	if req.Symbol != "BTCUSD_210625" {
		t.Fatalf("other request fields must not be mutated, got %q", req.Symbol)
	}
}

func TestDoLeavesPlainRequestsAlone(t *testing.T) {
	caller := testCaller(2, &recordingNotifier{})
	type plainRequest struct {
		Asset  string
		Amount float64
	}
	req := &plainRequest{Asset: "BTC", Amount: 0.5}
	_, err := Do(context.Background(), caller, "test op", req, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Asset != "BTC" || req.Amount != 0.5 {
		t.Fatalf("request mutated: %+v", req)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	caller := NewCaller(zap.NewNop(), &recordingNotifier{}, nil, 5, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	caller.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	_, err := Do(ctx, caller, "test op", nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}
