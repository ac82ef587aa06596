package engine

import (
	"context"
	"errors"
	"time"

	"bn-basis-bot/internal/config"
	"bn-basis-bot/internal/market"

	"go.uber.org/zap"
)

// ErrPhaseComplete marks the closing phase having reached its configured
// maximum number of executions. The embedding application ends the
// process on it; the opening phase just returns nil.
var ErrPhaseComplete = errors.New("maximum executions reached")

type Sampler interface {
	Sample(ctx context.Context, phase market.Phase) (market.Snapshot, error)
}

type CycleRunner interface {
	OpenCycle(ctx context.Context, snap market.Snapshot) error
	CloseCycle(ctx context.Context, snap market.Snapshot) error
}

// Balances is the read-only balance surface the closing preamble uses.
type Balances interface {
	FreeBalance(ctx context.Context, asset string) (float64, error)
	FuturesFreeBalance(ctx context.Context, asset string) (float64, error)
}

// Loop is the outer polling loop of one phase. It owns the execution
// counter for that phase; nothing else mutates it.
type Loop struct {
	cfg      config.StrategyConfig
	sampler  Sampler
	runner   CycleRunner
	balances Balances
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewLoop(cfg config.StrategyConfig, sampler Sampler, runner CycleRunner, balances Balances, log *zap.Logger) *Loop {
	return &Loop{
		cfg:      cfg,
		sampler:  sampler,
		runner:   runner,
		balances: balances,
		log:      log,
		sleep:    sleepCtx,
	}
}

// RunOpen polls the basis and opens a position slice whenever the spread
// reaches the threshold, until the maximum number of executions.
func (l *Loop) RunOpen(ctx context.Context) error {
	executed := 0
	for {
		snap, err := l.sampler.Sample(ctx, market.PhaseOpen)
		if err != nil {
			return err
		}
		if snap.Spread < l.cfg.Threshold {
			l.log.Info("spread below threshold, waiting",
				zap.Float64("spread", snap.Spread),
				zap.Float64("threshold", l.cfg.Threshold),
			)
		} else {
			l.log.Info("spread above threshold, opening",
				zap.Float64("spread", snap.Spread),
				zap.Float64("threshold", l.cfg.Threshold),
			)
			if err := l.runner.OpenCycle(ctx, snap); err != nil {
				return err
			}
			executed++
			l.log.Info("opening executions", zap.Int("count", executed))
		}
		if err := l.sleep(ctx, l.cfg.PollInterval); err != nil {
			return err
		}
		if executed >= l.cfg.MaxExecutions {
			l.log.Info("maximum executions reached, opening phase complete")
			return nil
		}
	}
}

// RunClose polls the basis and unwinds a position slice whenever the
// spread narrows to the threshold. Returns ErrPhaseComplete once the
// maximum number of executions is reached.
func (l *Loop) RunClose(ctx context.Context) error {
	if l.balances != nil {
		usdt, err := l.balances.FreeBalance(ctx, "USDT")
		if err != nil {
			return err
		}
		l.log.Info("spot USDT balance", zap.Float64("free", usdt))
		coin, err := l.balances.FuturesFreeBalance(ctx, l.cfg.Coin)
		if err != nil {
			return err
		}
		l.log.Info("coin-margin balance",
			zap.String("asset", l.cfg.Coin),
			zap.Float64("free", coin),
		)
		if coin < l.cfg.Amount {
			l.log.Warn("coin-margin balance below target amount",
				zap.Float64("free", coin),
				zap.Float64("amount", l.cfg.Amount),
			)
		}
	}
	executed := 0
	for {
		snap, err := l.sampler.Sample(ctx, market.PhaseClose)
		if err != nil {
			return err
		}
		if snap.Spread > l.cfg.Threshold {
			l.log.Info("spread above threshold, holding",
				zap.Float64("spread", snap.Spread),
				zap.Float64("threshold", l.cfg.Threshold),
			)
		} else {
			l.log.Info("spread narrowed to threshold, closing",
				zap.Float64("spread", snap.Spread),
				zap.Float64("threshold", l.cfg.Threshold),
			)
			if err := l.runner.CloseCycle(ctx, snap); err != nil {
				return err
			}
			executed++
			l.log.Info("closing executions", zap.Int("count", executed))
		}
		if err := l.sleep(ctx, l.cfg.PollInterval); err != nil {
			return err
		}
		if executed >= l.cfg.MaxExecutions {
			l.log.Info("maximum executions reached, closing phase complete")
			return ErrPhaseComplete
		}
	}
}

// RunCloseSupervised restarts the closing loop from scratch on any
// failure except context cancellation, phase completion and terminal
// retry exhaustion. Counters reset with each restart; balances are
// re-read. The opening phase has no equivalent supervisor.
func (l *Loop) RunCloseSupervised(ctx context.Context) error {
	for {
		err := l.RunClose(ctx)
		if err == nil || errors.Is(err, ErrPhaseComplete) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		var terminal *TerminalError
		if errors.As(err, &terminal) {
			return err
		}
		l.log.Error("closing phase failed, restarting", zap.Error(err))
		if err := l.sleep(ctx, l.cfg.RestartDelay); err != nil {
			return err
		}
	}
}
