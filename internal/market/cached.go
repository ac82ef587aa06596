package market

import (
	"context"
	"time"

	"bn-basis-bot/internal/binance"
	"bn-basis-bot/internal/binance/ws"
)

// StreamQuotes is the read side of a live quote cache.
type StreamQuotes interface {
	Quote(symbol string) (ws.Quote, bool)
}

// CachedSource serves quotes from the websocket cache when they are fresh
// enough and falls back to the REST gateway otherwise.
type CachedSource struct {
	spot    StreamQuotes
	futures StreamQuotes
	rest    QuoteSource
	maxAge  time.Duration
	now     func() time.Time
}

func NewCachedSource(spot, futures StreamQuotes, rest QuoteSource, maxAge time.Duration) *CachedSource {
	return &CachedSource{
		spot:    spot,
		futures: futures,
		rest:    rest,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (c *CachedSource) SpotBookTicker(ctx context.Context, symbol string) (binance.BookTicker, error) {
	if ticker, ok := c.fresh(c.spot, symbol); ok {
		return ticker, nil
	}
	return c.rest.SpotBookTicker(ctx, symbol)
}

func (c *CachedSource) FuturesBookTicker(ctx context.Context, symbol string) (binance.BookTicker, error) {
	if ticker, ok := c.fresh(c.futures, symbol); ok {
		return ticker, nil
	}
	return c.rest.FuturesBookTicker(ctx, symbol)
}

func (c *CachedSource) fresh(stream StreamQuotes, symbol string) (binance.BookTicker, bool) {
	if stream == nil {
		return binance.BookTicker{}, false
	}
	quote, ok := stream.Quote(symbol)
	if !ok {
		return binance.BookTicker{}, false
	}
	if c.maxAge > 0 && c.now().Sub(quote.At) > c.maxAge {
		return binance.BookTicker{}, false
	}
	return binance.BookTicker{AskPrice: quote.AskPrice, BidPrice: quote.BidPrice}, true
}
