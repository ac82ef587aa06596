package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bn-basis-bot/internal/config"

	"go.uber.org/zap"
)

// Client is the exchange gateway: signed REST access to the spot,
// coin-margined futures and asset-transfer endpoints.
type Client struct {
	spotBaseURL    string
	futuresBaseURL string
	apiKey         string
	secret         string
	http           *http.Client
	log            *zap.Logger
}

func New(cfg config.RESTConfig, apiKey, secret string, log *zap.Logger) *Client {
	return &Client{
		spotBaseURL:    cfg.SpotBaseURL,
		futuresBaseURL: cfg.FuturesBaseURL,
		apiKey:         apiKey,
		secret:         secret,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

func (c *Client) SpotBookTicker(ctx context.Context, symbol string) (BookTicker, error) {
	var payload struct {
		AskPrice string `json:"askPrice"`
		BidPrice string `json:"bidPrice"`
	}
	vals := url.Values{"symbol": {symbol}}
	if _, err := c.do(ctx, http.MethodGet, c.spotBaseURL, "/api/v3/ticker/bookTicker", vals, false, &payload); err != nil {
		return BookTicker{}, err
	}
	return parseBookTicker(payload.AskPrice, payload.BidPrice)
}

func (c *Client) FuturesBookTicker(ctx context.Context, symbol string) (BookTicker, error) {
	var payload []struct {
		AskPrice string `json:"askPrice"`
		BidPrice string `json:"bidPrice"`
	}
	vals := url.Values{"symbol": {symbol}}
	if _, err := c.do(ctx, http.MethodGet, c.futuresBaseURL, "/dapi/v1/ticker/bookTicker", vals, false, &payload); err != nil {
		return BookTicker{}, err
	}
	if len(payload) == 0 {
		return BookTicker{}, fmt.Errorf("no book ticker returned for %s", symbol)
	}
	return parseBookTicker(payload[0].AskPrice, payload[0].BidPrice)
}

func (c *Client) PlaceSpotOrder(ctx context.Context, req *SpotOrderRequest) (OrderResult, error) {
	side, err := req.Side()
	if err != nil {
		return OrderResult{}, err
	}
	vals := url.Values{
		"symbol":           {req.Symbol},
		"side":             {side},
		"type":             {"LIMIT"},
		"timeInForce":      {"GTC"},
		"quantity":         {formatDecimal(req.Quantity)},
		"price":            {formatDecimal(req.Price)},
		"newOrderRespType": {"FULL"},
	}
	if req.ClientOrderID != "" {
		vals.Set("newClientOrderId", req.ClientOrderID)
	}
	setTimestamp(vals, req.Timestamp)
	var payload struct {
		OrderID             int64  `json:"orderId"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}
	raw, err := c.do(ctx, http.MethodPost, c.spotBaseURL, "/api/v3/order", vals, true, &payload)
	if err != nil {
		return OrderResult{}, err
	}
	result := OrderResult{
		OrderID: strconv.FormatInt(payload.OrderID, 10),
		Raw:     raw,
	}
	executed, _ := strconv.ParseFloat(payload.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(payload.CummulativeQuoteQty, 64)
	if executed > 0 {
		result.AvgFillPrice = quote / executed
	}
	c.log.Debug("spot order placed",
		zap.String("symbol", req.Symbol),
		zap.String("direction", string(req.Direction)),
		zap.String("order_id", result.OrderID),
	)
	return result, nil
}

func (c *Client) PlaceFuturesOrder(ctx context.Context, req *FuturesOrderRequest) (OrderResult, error) {
	side, err := req.Side()
	if err != nil {
		return OrderResult{}, err
	}
	vals := url.Values{
		"symbol":       {req.Symbol},
		"side":         {side},
		"positionSide": {"SHORT"},
		"type":         {"LIMIT"},
		"timeInForce":  {"GTC"},
		"quantity":     {strconv.FormatInt(req.Contracts, 10)},
		"price":        {formatDecimal(req.Price)},
	}
	if req.ClientOrderID != "" {
		vals.Set("newClientOrderId", req.ClientOrderID)
	}
	setTimestamp(vals, req.Timestamp)
	var payload struct {
		OrderID  int64  `json:"orderId"`
		AvgPrice string `json:"avgPrice"`
	}
	raw, err := c.do(ctx, http.MethodPost, c.futuresBaseURL, "/dapi/v1/order", vals, true, &payload)
	if err != nil {
		return OrderResult{}, err
	}
	avg, _ := strconv.ParseFloat(payload.AvgPrice, 64)
	result := OrderResult{
		OrderID:      strconv.FormatInt(payload.OrderID, 10),
		AvgFillPrice: avg,
		Raw:          raw,
	}
	c.log.Debug("futures order placed",
		zap.String("symbol", req.Symbol),
		zap.String("direction", string(req.Direction)),
		zap.String("order_id", result.OrderID),
	)
	return result, nil
}

func (c *Client) Transfer(ctx context.Context, req *TransferRequest) (TransferResult, error) {
	transferType, err := req.TransferType()
	if err != nil {
		return TransferResult{}, err
	}
	vals := url.Values{
		"type":   {transferType},
		"asset":  {req.Asset},
		"amount": {formatDecimal(req.Amount)},
	}
	setTimestamp(vals, req.Timestamp)
	var payload struct {
		TranID int64 `json:"tranId"`
	}
	raw, err := c.do(ctx, http.MethodPost, c.spotBaseURL, "/sapi/v1/asset/transfer", vals, true, &payload)
	if err != nil {
		return TransferResult{}, err
	}
	c.log.Debug("transfer submitted",
		zap.String("asset", req.Asset),
		zap.String("from", string(req.From)),
		zap.String("to", string(req.To)),
		zap.Int64("tran_id", payload.TranID),
	)
	return TransferResult{TranID: payload.TranID, Raw: raw}, nil
}

// FreeBalance returns the free balance of an asset in the spot sub-account.
func (c *Client) FreeBalance(ctx context.Context, asset string) (float64, error) {
	var payload struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	vals := url.Values{}
	setTimestamp(vals, 0)
	if _, err := c.do(ctx, http.MethodGet, c.spotBaseURL, "/api/v3/account", vals, true, &payload); err != nil {
		return 0, err
	}
	for _, b := range payload.Balances {
		if b.Asset == asset {
			return strconv.ParseFloat(b.Free, 64)
		}
	}
	return 0, nil
}

// FuturesFreeBalance returns the available balance of an asset in the
// coin-margined futures sub-account.
func (c *Client) FuturesFreeBalance(ctx context.Context, asset string) (float64, error) {
	var payload []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	vals := url.Values{}
	setTimestamp(vals, 0)
	if _, err := c.do(ctx, http.MethodGet, c.futuresBaseURL, "/dapi/v1/balance", vals, true, &payload); err != nil {
		return 0, err
	}
	for _, b := range payload {
		if b.Asset == asset {
			return strconv.ParseFloat(b.AvailableBalance, 64)
		}
	}
	return 0, nil
}

func setTimestamp(vals url.Values, ms int64) {
	if ms <= 0 {
		ms = time.Now().UnixMilli()
	}
	vals.Set("timestamp", strconv.FormatInt(ms, 10))
}

func parseBookTicker(ask, bid string) (BookTicker, error) {
	askPrice, err := strconv.ParseFloat(ask, 64)
	if err != nil {
		return BookTicker{}, fmt.Errorf("invalid ask price %q: %w", ask, err)
	}
	bidPrice, err := strconv.ParseFloat(bid, 64)
	if err != nil {
		return BookTicker{}, fmt.Errorf("invalid bid price %q: %w", bid, err)
	}
	if askPrice <= 0 || bidPrice <= 0 {
		return BookTicker{}, errors.New("book ticker prices must be positive")
	}
	return BookTicker{AskPrice: askPrice, BidPrice: bidPrice}, nil
}

func (c *Client) do(ctx context.Context, method, base, path string, vals url.Values, signed bool, out any) (json.RawMessage, error) {
	query := vals.Encode()
	if signed {
		mac := hmac.New(sha256.New, []byte(c.secret))
		mac.Write([]byte(query))
		query += "&signature=" + hex.EncodeToString(mac.Sum(nil))
	}
	full := base + path
	if query != "" {
		full += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, full, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, err
		}
	}
	return body, nil
}
