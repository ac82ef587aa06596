package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Quote is the latest streamed best quote of one market.
type Quote struct {
	AskPrice float64
	BidPrice float64
	At       time.Time
}

// Stream maintains a best-quote cache fed by Binance bookTicker streams.
// It reconnects on read failure and resubscribes the configured streams.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	log            *zap.Logger
	now            func() time.Time

	mu      sync.RWMutex
	conn    *websocket.Conn
	streams []string
	quotes  map[string]Quote
}

func New(url string, reconnectDelay time.Duration, log *zap.Logger) *Stream {
	return &Stream{
		url:            url,
		reconnectDelay: reconnectDelay,
		log:            log,
		now:            time.Now,
		quotes:         make(map[string]Quote),
	}
}

// Subscribe registers a bookTicker stream for the symbol. Must be called
// before Start; subscriptions are replayed after every reconnect.
func (s *Stream) Subscribe(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, strings.ToLower(symbol)+"@bookTicker")
}

// Quote returns the latest streamed quote for a symbol, if any.
func (s *Stream) Quote(symbol string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[strings.ToUpper(symbol)]
	return q, ok
}

// Start runs the read loop until ctx is cancelled, reconnecting on failure.
func (s *Stream) Start(ctx context.Context) {
	go func() {
		for {
			if err := s.runOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn("quote stream ended", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}
		}
	}()
}

func (s *Stream) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "reset")
	}()
	s.mu.Lock()
	s.conn = conn
	streams := append([]string(nil), s.streams...)
	s.mu.Unlock()
	if len(streams) == 0 {
		return errors.New("no streams subscribed")
	}
	sub := map[string]any{"method": "SUBSCRIBE", "params": streams, "id": 1}
	if err := writeJSON(ctx, conn, sub); err != nil {
		return err
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.handleMessage(data)
	}
}

type bookTickerEvent struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

func (s *Stream) handleMessage(data []byte) {
	var event bookTickerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return
	}
	if event.Symbol == "" {
		// Subscription acks and other control frames carry no symbol.
		return
	}
	ask, err := strconv.ParseFloat(event.AskPrice, 64)
	if err != nil || ask <= 0 {
		return
	}
	bid, err := strconv.ParseFloat(event.BidPrice, 64)
	if err != nil || bid <= 0 {
		return
	}
	s.mu.Lock()
	s.quotes[strings.ToUpper(event.Symbol)] = Quote{AskPrice: ask, BidPrice: bid, At: s.now()}
	s.mu.Unlock()
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
