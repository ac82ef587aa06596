package engine

import (
	"context"
	"fmt"
	"time"

	"bn-basis-bot/internal/binance"
	"bn-basis-bot/internal/config"
	"bn-basis-bot/internal/market"
	"bn-basis-bot/internal/metrics"
	"bn-basis-bot/internal/sizing"
	"bn-basis-bot/internal/state"

	"go.uber.org/zap"
)

// Gateway is the exchange capability set the sequencer consumes.
type Gateway interface {
	PlaceSpotOrder(ctx context.Context, req *binance.SpotOrderRequest) (binance.OrderResult, error)
	PlaceFuturesOrder(ctx context.Context, req *binance.FuturesOrderRequest) (binance.OrderResult, error)
	Transfer(ctx context.Context, req *binance.TransferRequest) (binance.TransferResult, error)
	FreeBalance(ctx context.Context, asset string) (float64, error)
	FuturesFreeBalance(ctx context.Context, asset string) (float64, error)
}

// Sequencer drives one trading cycle: futures leg, spot leg, settlement
// wait, sub-account transfer. Any step that exhausts its retries surfaces
// a TerminalError; there is no compensating logic for partially executed
// cycles — a placed futures order with a failed spot leg leaves a naked
// short that requires manual remediation.
type Sequencer struct {
	cfg     config.StrategyConfig
	gateway Gateway
	caller  *Caller
	store   state.Store
	log     *zap.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	cycleID func() string
}

func NewSequencer(cfg config.StrategyConfig, gateway Gateway, caller *Caller, store state.Store, log *zap.Logger, m *metrics.Metrics) *Sequencer {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Sequencer{
		cfg:     cfg,
		gateway: gateway,
		caller:  caller,
		store:   store,
		log:     log,
		metrics: m,
		sleep:   sleepCtx,
		cycleID: func() string {
			return time.Now().UTC().Format("20060102T150405Z")
		},
	}
}

// OpenCycle enters one long-spot / short-futures position slice.
func (s *Sequencer) OpenCycle(ctx context.Context, snap market.Snapshot) error {
	multiplier, err := s.cfg.Multiplier()
	if err != nil {
		return err
	}
	q := sizing.Open(s.cfg.Amount, multiplier, snap.FuturesBid, s.cfg.SpotFeeRate, s.cfg.FuturesFeeRate)
	if q.Contracts <= 0 {
		return fmt.Errorf("amount %v yields zero contracts at multiplier %v", s.cfg.Amount, multiplier)
	}
	s.logQuantities("opening", q)
	cycle := s.cycleID()

	futReq := &binance.FuturesOrderRequest{
		Symbol:        s.cfg.FuturesSymbol(),
		Direction:     binance.OpenShort,
		Price:         sizing.RoundPrice(snap.FuturesBid*(1-s.cfg.Slippage), s.cfg.PricePrecision),
		Contracts:     q.Contracts,
		ClientOrderID: "open-" + cycle + "-fut",
	}
	futRes, err := s.placeFutures(ctx, "short coin-margined futures order", futReq)
	if err != nil {
		return err
	}

	spotReq := &binance.SpotOrderRequest{
		Symbol:        s.cfg.SpotSymbol(),
		Direction:     binance.SpotLong,
		Price:         snap.SpotAsk * (1 + s.cfg.Slippage),
		Quantity:      q.SpotQuantity,
		ClientOrderID: "open-" + cycle + "-spot",
	}
	spotRes, err := s.placeSpot(ctx, "long spot order", spotReq)
	if err != nil {
		return err
	}

	// The spot account may not have been credited yet.
	if err := s.sleep(ctx, s.cfg.SettleDelay); err != nil {
		return err
	}
	free, err := Do(ctx, s.caller, "fetch spot balance", nil, func(ctx context.Context) (float64, error) {
		return s.gateway.FreeBalance(ctx, s.cfg.Coin)
	})
	if err != nil {
		return err
	}
	s.log.Debug("amount to transfer", zap.Float64("free", free))

	transferReq := &binance.TransferRequest{
		Asset:  s.cfg.Coin,
		Amount: free,
		From:   binance.AccountSpot,
		To:     binance.AccountCoinMargin,
	}
	if _, err := Do(ctx, s.caller, "transfer spot -> coin-margin", transferReq, func(ctx context.Context) (binance.TransferResult, error) {
		return s.gateway.Transfer(ctx, transferReq)
	}); err != nil {
		return err
	}

	s.metrics.CyclesOpened.Inc()
	s.logOrderResults("opening cycle complete", futRes, spotRes)
	return nil
}

// CloseCycle unwinds one position slice: buy back the futures short, sell
// the spot, transfer the freed coin back to the spot sub-account.
func (s *Sequencer) CloseCycle(ctx context.Context, snap market.Snapshot) error {
	multiplier, err := s.cfg.Multiplier()
	if err != nil {
		return err
	}
	q := sizing.Close(s.cfg.Amount, multiplier, snap.FuturesAsk, s.cfg.FuturesFeeRate)
	if q.Contracts <= 0 {
		return fmt.Errorf("amount %v yields zero contracts at multiplier %v", s.cfg.Amount, multiplier)
	}
	s.logQuantities("closing", q)
	cycle := s.cycleID()

	futReq := &binance.FuturesOrderRequest{
		Symbol:        s.cfg.FuturesSymbol(),
		Direction:     binance.CloseShort,
		Price:         sizing.RoundPrice(snap.FuturesAsk*(1+s.cfg.Slippage), s.cfg.PricePrecision),
		Contracts:     q.Contracts,
		ClientOrderID: "close-" + cycle + "-fut",
	}
	futRes, err := s.placeFutures(ctx, "close short coin-margined futures order", futReq)
	if err != nil {
		return err
	}

	spotReq := &binance.SpotOrderRequest{
		Symbol:        s.cfg.SpotSymbol(),
		Direction:     binance.SpotShort,
		Price:         snap.SpotBid * (1 - s.cfg.Slippage),
		Quantity:      q.SpotQuantity,
		ClientOrderID: "close-" + cycle + "-spot",
	}
	spotRes, err := s.placeSpot(ctx, "short spot order", spotReq)
	if err != nil {
		return err
	}

	// The coin-margin account may not have been credited yet.
	if err := s.sleep(ctx, s.cfg.SettleDelay); err != nil {
		return err
	}
	free, err := Do(ctx, s.caller, "fetch coin-margin balance", nil, func(ctx context.Context) (float64, error) {
		return s.gateway.FuturesFreeBalance(ctx, s.cfg.Coin)
	})
	if err != nil {
		return err
	}
	s.log.Debug("amount to transfer", zap.Float64("free", free))

	transferReq := &binance.TransferRequest{
		Asset:  s.cfg.Coin,
		Amount: free,
		From:   binance.AccountCoinMargin,
		To:     binance.AccountSpot,
	}
	if _, err := Do(ctx, s.caller, "transfer coin-margin -> spot", transferReq, func(ctx context.Context) (binance.TransferResult, error) {
		return s.gateway.Transfer(ctx, transferReq)
	}); err != nil {
		return err
	}

	s.metrics.CyclesClosed.Inc()
	s.logOrderResults("closing cycle complete", futRes, spotRes)
	return nil
}

func (s *Sequencer) placeFutures(ctx context.Context, action string, req *binance.FuturesOrderRequest) (binance.OrderResult, error) {
	if cached, ok := s.cachedOrder(ctx, req.ClientOrderID); ok {
		return cached, nil
	}
	res, err := Do(ctx, s.caller, action, req, func(ctx context.Context) (binance.OrderResult, error) {
		return s.gateway.PlaceFuturesOrder(ctx, req)
	})
	if err != nil {
		s.metrics.OrdersFailed.Inc()
		return binance.OrderResult{}, err
	}
	s.metrics.OrdersPlaced.Inc()
	s.saveOrder(ctx, req.ClientOrderID, res.OrderID)
	return res, nil
}

func (s *Sequencer) placeSpot(ctx context.Context, action string, req *binance.SpotOrderRequest) (binance.OrderResult, error) {
	if cached, ok := s.cachedOrder(ctx, req.ClientOrderID); ok {
		return cached, nil
	}
	res, err := Do(ctx, s.caller, action, req, func(ctx context.Context) (binance.OrderResult, error) {
		return s.gateway.PlaceSpotOrder(ctx, req)
	})
	if err != nil {
		s.metrics.OrdersFailed.Inc()
		return binance.OrderResult{}, err
	}
	s.metrics.OrdersPlaced.Inc()
	s.saveOrder(ctx, req.ClientOrderID, res.OrderID)
	return res, nil
}

func (s *Sequencer) cachedOrder(ctx context.Context, clientOrderID string) (binance.OrderResult, bool) {
	if s.store == nil || clientOrderID == "" {
		return binance.OrderResult{}, false
	}
	orderID, ok, err := s.store.LookupOrderID(ctx, clientOrderID)
	if err != nil {
		s.log.Warn("order id lookup failed", zap.Error(err))
		return binance.OrderResult{}, false
	}
	if !ok {
		return binance.OrderResult{}, false
	}
	s.log.Info("leg already placed, skipping",
		zap.String("client_order_id", clientOrderID),
		zap.String("order_id", orderID),
	)
	return binance.OrderResult{OrderID: orderID}, true
}

func (s *Sequencer) saveOrder(ctx context.Context, clientOrderID, orderID string) {
	if s.store == nil || clientOrderID == "" {
		return
	}
	if err := s.store.SaveOrderID(ctx, clientOrderID, orderID); err != nil {
		s.log.Warn("failed to persist order id", zap.Error(err))
	}
}

func (s *Sequencer) logQuantities(phase string, q sizing.Quantities) {
	s.log.Debug("derived quantities",
		zap.String("phase", phase),
		zap.Int64("contracts", q.Contracts),
		zap.Float64("coin_equivalent", q.CoinEquivalent),
		zap.Float64("futures_fee", q.FuturesFee),
		zap.Float64("spot_quantity", q.SpotQuantity),
	)
}

func (s *Sequencer) logOrderResults(msg string, futures, spot binance.OrderResult) {
	s.log.Info(msg,
		zap.String("futures_order_id", futures.OrderID),
		zap.Float64("futures_avg_fill", futures.AvgFillPrice),
		zap.String("spot_order_id", spot.OrderID),
		zap.Float64("spot_avg_fill", spot.AvgFillPrice),
	)
}
