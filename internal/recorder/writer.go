package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"bn-basis-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// BasisSample is one observed spread sample, acted on or not.
type BasisSample struct {
	Time          time.Time
	Phase         string
	SpotSymbol    string
	FuturesSymbol string
	SpotAsk       float64
	SpotBid       float64
	FuturesAsk    float64
	FuturesBid    float64
	Spread        float64
}

// Writer persists basis samples asynchronously. Inserts never block the
// polling loop; samples are dropped when the queue is full.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	samples chan BasisSample
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.RecorderConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("recorder dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		samples: make(chan BasisSample, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) Enqueue(sample BasisSample) {
	if w == nil {
		return
	}
	select {
	case w.samples <- sample:
		return
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("basis sample queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-w.samples:
			w.writeSample(ctx, sample)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("recorder db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		phase TEXT NOT NULL,
		spot_symbol TEXT NOT NULL,
		futures_symbol TEXT NOT NULL,
		spot_ask DOUBLE PRECISION NOT NULL,
		spot_bid DOUBLE PRECISION NOT NULL,
		futures_ask DOUBLE PRECISION NOT NULL,
		futures_bid DOUBLE PRECISION NOT NULL,
		spread DOUBLE PRECISION NOT NULL
	)`, w.table("basis_samples"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("basis_samples"))); err != nil && w.log != nil {
		w.log.Warn("basis_samples hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeSample(ctx context.Context, sample BasisSample) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, phase, spot_symbol, futures_symbol, spot_ask, spot_bid, futures_ask, futures_bid, spread
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table("basis_samples"))
	if _, err := w.db.ExecContext(ctx, query,
		sample.Time,
		sample.Phase,
		sample.SpotSymbol,
		sample.FuturesSymbol,
		sample.SpotAsk,
		sample.SpotBid,
		sample.FuturesAsk,
		sample.FuturesBid,
		sample.Spread,
	); err != nil && w.log != nil {
		w.log.Warn("basis sample insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
