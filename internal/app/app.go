package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bn-basis-bot/internal/alerts"
	"bn-basis-bot/internal/binance"
	"bn-basis-bot/internal/binance/ws"
	"bn-basis-bot/internal/config"
	"bn-basis-bot/internal/engine"
	"bn-basis-bot/internal/market"
	"bn-basis-bot/internal/metrics"
	"bn-basis-bot/internal/recorder"
	"bn-basis-bot/internal/state/sqlite"

	"go.uber.org/zap"
)

// Phase selects which half of the arbitrage cycle the process runs.
type Phase string

const (
	PhaseOpen  Phase = "open"
	PhaseClose Phase = "close"
)

func ParsePhase(s string) (Phase, error) {
	switch Phase(strings.ToLower(strings.TrimSpace(s))) {
	case PhaseOpen:
		return PhaseOpen, nil
	case PhaseClose:
		return PhaseClose, nil
	default:
		return "", fmt.Errorf("unknown phase %q, want open or close", s)
	}
}

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *sqlite.Store
	client   *binance.Client
	spotWS   *ws.Stream
	futWS    *ws.Stream
	monitor  *market.Monitor
	recorder *recorder.Writer
	prom     *metrics.Prometheus
	loop     *engine.Loop
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	apiKey := strings.TrimSpace(os.Getenv("BINANCE_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("BINANCE_API_KEY is required")
	}
	secret := strings.TrimSpace(os.Getenv("BINANCE_API_SECRET"))
	if secret == "" {
		return nil, errors.New("BINANCE_API_SECRET is required")
	}
	if token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	client := binance.New(cfg.REST, apiKey, secret, log)

	spotSymbol := cfg.Strategy.SpotSymbol()
	futuresSymbol := cfg.Strategy.FuturesSymbol()
	var spotWS, futWS *ws.Stream
	var source market.QuoteSource = client
	if cfg.WS.Enabled {
		spotWS = ws.New(cfg.WS.SpotURL, cfg.WS.ReconnectDelay, log)
		spotWS.Subscribe(spotSymbol)
		futWS = ws.New(cfg.WS.FuturesURL, cfg.WS.ReconnectDelay, log)
		futWS.Subscribe(futuresSymbol)
		source = market.NewCachedSource(spotWS, futWS, client, cfg.WS.MaxQuoteAge)
	}
	monitor := market.New(source, spotSymbol, futuresSymbol, log)

	basisRecorder, err := recorder.New(cfg.Recorder, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if basisRecorder != nil {
		monitor.SetObserver(func(phase market.Phase, snap market.Snapshot) {
			basisRecorder.Enqueue(recorder.BasisSample{
				Time:          time.Now().UTC(),
				Phase:         string(phase),
				SpotSymbol:    spotSymbol,
				FuturesSymbol: futuresSymbol,
				SpotAsk:       snap.SpotAsk,
				SpotBid:       snap.SpotBid,
				FuturesAsk:    snap.FuturesAsk,
				FuturesBid:    snap.FuturesBid,
				Spread:        snap.Spread,
			})
		})
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.ListenAddr != "" {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	notifier := alerts.NewTelegram(cfg.Telegram, log)
	caller := engine.NewCaller(log, notifier, m, cfg.Strategy.MaxRetries, cfg.Strategy.RetryBackoff)
	sequencer := engine.NewSequencer(cfg.Strategy, client, caller, store, log, m)
	loop := engine.NewLoop(cfg.Strategy, monitor, sequencer, client, log)

	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		client:   client,
		spotWS:   spotWS,
		futWS:    futWS,
		monitor:  monitor,
		recorder: basisRecorder,
		prom:     prom,
		loop:     loop,
	}, nil
}

// Run executes one phase of the cycle until its execution budget is spent
// or a terminal failure surfaces.
func (a *App) Run(ctx context.Context, phase Phase) error {
	defer a.store.Close()
	defer a.recorder.Close()

	if a.spotWS != nil {
		a.spotWS.Start(ctx)
	}
	if a.futWS != nil {
		a.futWS.Start(ctx)
	}
	a.recorder.Start(ctx)
	if a.prom != nil {
		a.serveMetrics(ctx)
	}

	a.log.Info("starting trading loop",
		zap.String("phase", string(phase)),
		zap.String("spot_symbol", a.cfg.Strategy.SpotSymbol()),
		zap.String("futures_symbol", a.cfg.Strategy.FuturesSymbol()),
		zap.Float64("threshold", a.cfg.Strategy.Threshold),
		zap.Int("max_executions", a.cfg.Strategy.MaxExecutions),
	)

	switch phase {
	case PhaseOpen:
		return a.loop.RunOpen(ctx)
	case PhaseClose:
		return a.loop.RunCloseSupervised(ctx)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
