package state

import "context"

// Store maps client order ids to exchange order ids so a re-driven
// placement after an ambiguous failure cannot double-fill a leg.
type Store interface {
	LookupOrderID(ctx context.Context, clientOrderID string) (string, bool, error)
	SaveOrderID(ctx context.Context, clientOrderID, exchangeOrderID string) error
	Close() error
}
