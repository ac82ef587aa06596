package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS order_legs (
		client_order_id TEXT PRIMARY KEY,
		exchange_order_id TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL
	)`)
	return err
}

func (s *Store) LookupOrderID(ctx context.Context, clientOrderID string) (string, bool, error) {
	var orderID string
	err := s.db.QueryRowContext(ctx,
		`SELECT exchange_order_id FROM order_legs WHERE client_order_id = ?`,
		clientOrderID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return orderID, true, nil
}

func (s *Store) SaveOrderID(ctx context.Context, clientOrderID, exchangeOrderID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_legs (client_order_id, exchange_order_id, created_at_ms) VALUES (?, ?, ?)
		 ON CONFLICT(client_order_id) DO UPDATE SET exchange_order_id = excluded.exchange_order_id`,
		clientOrderID, exchangeOrderID, time.Now().UnixMilli())
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
