package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"bn-basis-bot/internal/market"

	"go.uber.org/zap"
)

type scriptedSampler struct {
	spreads []float64
	idx     int
	phases  []market.Phase
}

func (s *scriptedSampler) Sample(ctx context.Context, phase market.Phase) (market.Snapshot, error) {
	if s.idx >= len(s.spreads) {
		return market.Snapshot{}, errors.New("sampler script exhausted")
	}
	snap := market.Snapshot{Spread: s.spreads[s.idx]}
	s.idx++
	s.phases = append(s.phases, phase)
	return snap, nil
}

type countingRunner struct {
	opened   []float64
	closed   []float64
	closeErr func(call int) error
}

func (r *countingRunner) OpenCycle(ctx context.Context, snap market.Snapshot) error {
	r.opened = append(r.opened, snap.Spread)
	return nil
}

func (r *countingRunner) CloseCycle(ctx context.Context, snap market.Snapshot) error {
	call := len(r.closed)
	r.closed = append(r.closed, snap.Spread)
	if r.closeErr != nil {
		return r.closeErr(call)
	}
	return nil
}

type fixedBalances struct {
	spot, futures float64
	reads         int
}

func (b *fixedBalances) FreeBalance(ctx context.Context, asset string) (float64, error) {
	b.reads++
	return b.spot, nil
}

func (b *fixedBalances) FuturesFreeBalance(ctx context.Context, asset string) (float64, error) {
	return b.futures, nil
}

func testLoop(sampler Sampler, runner CycleRunner, balances Balances, maxExecutions int) *Loop {
	cfg := testStrategy()
	cfg.MaxExecutions = maxExecutions
	l := NewLoop(cfg, sampler, runner, balances, zap.NewNop())
	l.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return l
}

func TestRunOpenActsOnlyAtThreshold(t *testing.T) {
	sampler := &scriptedSampler{spreads: []float64{0.001, 0.002, 0.01}}
	runner := &countingRunner{}
	loop := testLoop(sampler, runner, nil, 1)

	if err := loop.RunOpen(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.opened) != 1 {
		t.Fatalf("expected exactly one execution, got %d", len(runner.opened))
	}
	if runner.opened[0] != 0.01 {
		t.Fatalf("executed at spread %g, want 0.01", runner.opened[0])
	}
	if sampler.idx != 3 {
		t.Fatalf("expected 3 polls, got %d", sampler.idx)
	}
	for _, phase := range sampler.phases {
		if phase != market.PhaseOpen {
			t.Fatalf("sampled with phase %q", phase)
		}
	}
}

func TestRunOpenCountsToMaxExecutions(t *testing.T) {
	sampler := &scriptedSampler{spreads: []float64{0.001, 0.002, 0.01, 0.002, 0.01}}
	runner := &countingRunner{}
	loop := testLoop(sampler, runner, nil, 2)

	if err := loop.RunOpen(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.opened) != 2 {
		t.Fatalf("expected two executions, got %d", len(runner.opened))
	}
	if sampler.idx != 5 {
		t.Fatalf("expected 5 polls, got %d", sampler.idx)
	}
}

func TestRunCloseActsWhenSpreadNarrows(t *testing.T) {
	sampler := &scriptedSampler{spreads: []float64{0.02, 0.01, 0.004}}
	runner := &countingRunner{}
	balances := &fixedBalances{spot: 100, futures: 0.02}
	cfg := testStrategy()
	cfg.Amount = 0.02
	loop := NewLoop(cfg, sampler, runner, balances, zap.NewNop())
	loop.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	err := loop.RunClose(context.Background())
	if !errors.Is(err, ErrPhaseComplete) {
		t.Fatalf("expected ErrPhaseComplete, got %v", err)
	}
	if len(runner.closed) != 1 {
		t.Fatalf("expected exactly one execution, got %d", len(runner.closed))
	}
	if runner.closed[0] != 0.004 {
		t.Fatalf("executed at spread %g, want 0.004", runner.closed[0])
	}
	if balances.reads != 1 {
		t.Fatalf("expected one balance preamble, got %d reads", balances.reads)
	}
	for _, phase := range sampler.phases {
		if phase != market.PhaseClose {
			t.Fatalf("sampled with phase %q", phase)
		}
	}
}

func TestRunCloseSupervisedRestartsOnFailure(t *testing.T) {
	sampler := &scriptedSampler{spreads: []float64{0.004, 0.004}}
	runner := &countingRunner{
		closeErr: func(call int) error {
			if call == 0 {
				return errors.New("transient exchange hiccup")
			}
			return nil
		},
	}
	balances := &fixedBalances{spot: 100, futures: 1000}
	loop := testLoop(sampler, runner, balances, 1)

	err := loop.RunCloseSupervised(context.Background())
	if !errors.Is(err, ErrPhaseComplete) {
		t.Fatalf("expected ErrPhaseComplete after restart, got %v", err)
	}
	if len(runner.closed) != 2 {
		t.Fatalf("expected a second attempt after restart, got %d", len(runner.closed))
	}
	if balances.reads != 2 {
		t.Fatalf("expected balances re-read on restart, got %d reads", balances.reads)
	}
}

func TestRunCloseSupervisedPassesThroughTerminalError(t *testing.T) {
	sampler := &scriptedSampler{spreads: []float64{0.004, 0.004}}
	terminal := &TerminalError{Action: "short spot order", Err: errors.New("rejected")}
	runner := &countingRunner{
		closeErr: func(call int) error { return terminal },
	}
	loop := testLoop(sampler, runner, &fixedBalances{futures: 1000}, 1)

	err := loop.RunCloseSupervised(context.Background())
	var got *TerminalError
	if !errors.As(err, &got) {
		t.Fatalf("expected TerminalError, got %v", err)
	}
	if len(runner.closed) != 1 {
		t.Fatalf("terminal errors must not restart the loop, got %d attempts", len(runner.closed))
	}
}

func TestRunCloseSupervisedStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sampler := &scriptedSampler{spreads: []float64{0.02}}
	runner := &countingRunner{}
	loop := testLoop(sampler, runner, nil, 1)
	loop.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := loop.RunCloseSupervised(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if len(runner.closed) != 0 {
		t.Fatalf("no executions expected, got %d", len(runner.closed))
	}
}
