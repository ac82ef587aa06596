package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// SpotDirection is the requested side of a spot limit order.
type SpotDirection string

const (
	SpotLong  SpotDirection = "long"
	SpotShort SpotDirection = "short"
)

// FuturesDirection is the requested action on the coin-margined short leg.
// Only the short side is traded; long directions are a configuration defect.
type FuturesDirection string

const (
	OpenShort  FuturesDirection = "open_short"
	CloseShort FuturesDirection = "close_short"
)

// AccountKind names a Binance sub-account for universal transfers.
type AccountKind string

const (
	AccountSpot       AccountKind = "spot"
	AccountCoinMargin AccountKind = "coin-margin"
)

// BookTicker is the best quote of one market.
type BookTicker struct {
	AskPrice float64
	BidPrice float64
}

type SpotOrderRequest struct {
	Symbol        string
	Direction     SpotDirection
	Price         float64
	Quantity      float64
	ClientOrderID string
	Timestamp     int64
}

func (r *SpotOrderRequest) SetTimestamp(ms int64) { r.Timestamp = ms }

func (r *SpotOrderRequest) Side() (string, error) {
	switch r.Direction {
	case SpotLong:
		return "BUY", nil
	case SpotShort:
		return "SELL", nil
	}
	return "", fmt.Errorf("spot direction must be long or short, got %q", r.Direction)
}

func (r *SpotOrderRequest) String() string {
	return fmt.Sprintf("spot order %s %s qty=%s price=%s", r.Direction, r.Symbol,
		formatDecimal(r.Quantity), formatDecimal(r.Price))
}

type FuturesOrderRequest struct {
	Symbol        string
	Direction     FuturesDirection
	Price         float64
	Contracts     int64
	ClientOrderID string
	Timestamp     int64
}

func (r *FuturesOrderRequest) SetTimestamp(ms int64) { r.Timestamp = ms }

func (r *FuturesOrderRequest) Side() (string, error) {
	switch r.Direction {
	case OpenShort:
		return "SELL", nil
	case CloseShort:
		return "BUY", nil
	}
	return "", fmt.Errorf("futures direction must be open_short or close_short, got %q", r.Direction)
}

func (r *FuturesOrderRequest) String() string {
	return fmt.Sprintf("futures order %s %s contracts=%d price=%s", r.Direction, r.Symbol,
		r.Contracts, formatDecimal(r.Price))
}

type TransferRequest struct {
	Asset     string
	Amount    float64
	From      AccountKind
	To        AccountKind
	Timestamp int64
}

func (r *TransferRequest) SetTimestamp(ms int64) { r.Timestamp = ms }

// TransferType maps the sub-account pair to Binance's universal transfer type.
func (r *TransferRequest) TransferType() (string, error) {
	switch {
	case r.From == AccountSpot && r.To == AccountCoinMargin:
		return "MAIN_CMFUTURE", nil
	case r.From == AccountCoinMargin && r.To == AccountSpot:
		return "CMFUTURE_MAIN", nil
	}
	return "", fmt.Errorf("unsupported transfer pair %s -> %s", r.From, r.To)
}

func (r *TransferRequest) String() string {
	return fmt.Sprintf("transfer %s amount=%s %s -> %s", r.Asset,
		formatDecimal(r.Amount), r.From, r.To)
}

type OrderResult struct {
	OrderID      string
	AvgFillPrice float64
	Raw          json.RawMessage
}

type TransferResult struct {
	TranID int64
	Raw    json.RawMessage
}

// formatDecimal renders a quantity or price without float artifacts or
// exponent notation, which the exchange rejects.
func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}
