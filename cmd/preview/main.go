package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bn-basis-bot/internal/binance"
	"bn-basis-bot/internal/config"
	"bn-basis-bot/internal/logging"
	"bn-basis-bot/internal/market"
	"bn-basis-bot/internal/sizing"
)

// Samples the books once and prints the orders one cycle would place,
// without placing anything. Unsigned endpoints only, so API keys are
// optional.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	phaseFlag := flag.String("phase", "open", "trading phase: open or close")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	var phase market.Phase
	switch strings.ToLower(strings.TrimSpace(*phaseFlag)) {
	case "open":
		phase = market.PhaseOpen
	case "close":
		phase = market.PhaseClose
	default:
		fatal(fmt.Errorf("unknown phase %q, want open or close", *phaseFlag))
	}

	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	client := binance.New(cfg.REST, os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"), log)
	monitor := market.New(client, cfg.Strategy.SpotSymbol(), cfg.Strategy.FuturesSymbol(), log)

	snap, err := monitor.Sample(context.Background(), phase)
	if err != nil {
		fatal(err)
	}
	multiplier, err := cfg.Strategy.Multiplier()
	if err != nil {
		fatal(err)
	}

	fmt.Printf("phase=%s spot=%s futures=%s\n", phase, cfg.Strategy.SpotSymbol(), cfg.Strategy.FuturesSymbol())
	fmt.Printf("spot ask=%.8f bid=%.8f futures ask=%.8f bid=%.8f\n", snap.SpotAsk, snap.SpotBid, snap.FuturesAsk, snap.FuturesBid)
	fmt.Printf("spread=%.6f threshold=%.6f\n", snap.Spread, cfg.Strategy.Threshold)

	switch phase {
	case market.PhaseOpen:
		q := sizing.Open(cfg.Strategy.Amount, multiplier, snap.FuturesBid, cfg.Strategy.SpotFeeRate, cfg.Strategy.FuturesFeeRate)
		futPrice := sizing.RoundPrice(snap.FuturesBid*(1-cfg.Strategy.Slippage), cfg.Strategy.PricePrecision)
		fmt.Printf("futures short: contracts=%d price=%.*f\n", q.Contracts, cfg.Strategy.PricePrecision, futPrice)
		fmt.Printf("spot long: quantity=%.8f price=%.8f\n", q.SpotQuantity, snap.SpotAsk*(1+cfg.Strategy.Slippage))
	case market.PhaseClose:
		q := sizing.Close(cfg.Strategy.Amount, multiplier, snap.FuturesAsk, cfg.Strategy.FuturesFeeRate)
		futPrice := sizing.RoundPrice(snap.FuturesAsk*(1+cfg.Strategy.Slippage), cfg.Strategy.PricePrecision)
		fmt.Printf("futures buy-back: contracts=%d price=%.*f\n", q.Contracts, cfg.Strategy.PricePrecision, futPrice)
		fmt.Printf("spot sell: quantity=%.8f price=%.8f\n", q.SpotQuantity, snap.SpotBid*(1-cfg.Strategy.Slippage))
	}
	fmt.Printf("max executions per run: %d\n", cfg.Strategy.MaxExecutions)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
