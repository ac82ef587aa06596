package market

import (
	"context"

	"bn-basis-bot/internal/binance"

	"go.uber.org/zap"
)

// Phase selects which side of the book the spread is computed from.
type Phase string

const (
	PhaseOpen  Phase = "opening"
	PhaseClose Phase = "closing"
)

// Snapshot is one point sample of both books plus the derived relative
// spread. It is discarded after one trading decision.
type Snapshot struct {
	SpotAsk    float64
	SpotBid    float64
	FuturesAsk float64
	FuturesBid float64
	Spread     float64
}

type QuoteSource interface {
	SpotBookTicker(ctx context.Context, symbol string) (binance.BookTicker, error)
	FuturesBookTicker(ctx context.Context, symbol string) (binance.BookTicker, error)
}

// Monitor samples the spot and coin-margined books and computes the basis.
type Monitor struct {
	source        QuoteSource
	spotSymbol    string
	futuresSymbol string
	log           *zap.Logger
	observer      func(Phase, Snapshot)
}

func New(source QuoteSource, spotSymbol, futuresSymbol string, log *zap.Logger) *Monitor {
	return &Monitor{
		source:        source,
		spotSymbol:    spotSymbol,
		futuresSymbol: futuresSymbol,
		log:           log,
	}
}

// SetObserver registers a callback invoked with every sample, acted on or
// not. Used to feed the basis recorder.
func (m *Monitor) SetObserver(fn func(Phase, Snapshot)) {
	m.observer = fn
}

// Sample fetches one best quote from each market and computes the relative
// spread for the phase. Opening compares the futures bid against the spot
// ask; closing compares the futures ask against the spot bid. No smoothing
// is applied; each poll stands alone.
func (m *Monitor) Sample(ctx context.Context, phase Phase) (Snapshot, error) {
	spot, err := m.source.SpotBookTicker(ctx, m.spotSymbol)
	if err != nil {
		return Snapshot{}, err
	}
	futures, err := m.source.FuturesBookTicker(ctx, m.futuresSymbol)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		SpotAsk:    spot.AskPrice,
		SpotBid:    spot.BidPrice,
		FuturesAsk: futures.AskPrice,
		FuturesBid: futures.BidPrice,
	}
	switch phase {
	case PhaseClose:
		snap.Spread = futures.AskPrice/spot.BidPrice - 1
		m.log.Info("basis sample",
			zap.String("phase", string(phase)),
			zap.Float64("spot_bid", spot.BidPrice),
			zap.Float64("futures_ask", futures.AskPrice),
			zap.Float64("spread", snap.Spread),
		)
	default:
		snap.Spread = futures.BidPrice/spot.AskPrice - 1
		m.log.Info("basis sample",
			zap.String("phase", string(phase)),
			zap.Float64("spot_ask", spot.AskPrice),
			zap.Float64("futures_bid", futures.BidPrice),
			zap.Float64("spread", snap.Spread),
		)
	}
	if m.observer != nil {
		m.observer(phase, snap)
	}
	return snap, nil
}
