// Package binance implements the exchange.Client interface against the
// Binance spot REST API, with request-weight rate limiting and a circuit
// breaker in front of every call.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sileniced/bntradebot/internal/exchange"
	"github.com/sileniced/bntradebot/internal/net/ratelimit"
)

const (
	defaultBaseURL = "https://api.binance.com"

	// Request weights per the Binance spot API documentation.
	weightKlines       = 2
	weightExchangeInfo = 20
	weightAvgPrice     = 2
	weightAccount      = 20
)

// Config holds Binance client settings.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Timeout   time.Duration `yaml:"timeout"`

	// RequestsPerSec and Burst bound the request-weight budget; Binance
	// allows 6000 weight/min on spot, we default well under that.
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`
}

// DefaultConfig returns conservative production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        defaultBaseURL,
		Timeout:        10 * time.Second,
		RequestsPerSec: 20,
		Burst:          60,
	}
}

// Client talks to the Binance spot REST API. It satisfies exchange.Client.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a Client from cfg, filling zero values from DefaultConfig.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = def.RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSec, cfg.Burst),
		breaker: breaker,
	}
}

// GetCandles fetches up to limit klines for symbol at interval, ending at
// endTime when non-zero.
func (c *Client) GetCandles(ctx context.Context, symbol string, interval exchange.Interval, limit int, endTime time.Time) ([]exchange.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	params.Set("limit", strconv.Itoa(limit))
	if !endTime.IsZero() {
		params.Set("endTime", strconv.FormatInt(endTime.UnixMilli(), 10))
	}

	var raw []rawKline
	if err := c.get(ctx, ratelimit.ScopeRequest, weightKlines, "/api/v3/klines", params, false, &raw); err != nil {
		return nil, fmt.Errorf("get candles %s %s: %w", symbol, interval, err)
	}

	candles := make([]exchange.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := k.toCandle()
		if err != nil {
			return nil, fmt.Errorf("get candles %s %s: %w", symbol, interval, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// GetPairMetadata fetches exchange info for every listed symbol with its
// lot-size and notional filters.
func (c *Client) GetPairMetadata(ctx context.Context) ([]exchange.PairMeta, error) {
	var info exchangeInfo
	if err := c.get(ctx, ratelimit.ScopeRequest, weightExchangeInfo, "/api/v3/exchangeInfo", nil, false, &info); err != nil {
		return nil, fmt.Errorf("get pair metadata: %w", err)
	}

	metas := make([]exchange.PairMeta, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		metas = append(metas, s.toPairMeta())
	}
	return metas, nil
}

// GetAveragePrice returns the current rolling average price for symbol.
func (c *Client) GetAveragePrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var avg avgPrice
	if err := c.get(ctx, ratelimit.ScopeRequest, weightAvgPrice, "/api/v3/avgPrice", params, false, &avg); err != nil {
		return 0, fmt.Errorf("get average price %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(avg.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("get average price %s: parse %q: %w", symbol, avg.Price, err)
	}
	return price, nil
}

// GetAccountBalances returns all non-zero spot balances, sorted by asset.
func (c *Client) GetAccountBalances(ctx context.Context) ([]exchange.Balance, error) {
	var info accountInfo
	if err := c.get(ctx, ratelimit.ScopeRequest, weightAccount, "/api/v3/account", nil, true, &info); err != nil {
		return nil, fmt.Errorf("get account balances: %w", err)
	}

	balances := make([]exchange.Balance, 0, len(info.Balances))
	for _, b := range info.Balances {
		free := parseFloat(b.Free)
		locked := parseFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		balances = append(balances, exchange.Balance{
			Asset:  b.Asset,
			Free:   free,
			Locked: locked,
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Asset < balances[j].Asset })
	return balances, nil
}

// SubmitMarketOrder places a MARKET order and reports the executed fill.
func (c *Client) SubmitMarketOrder(ctx context.Context, order exchange.Order) (*exchange.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
	if order.ClientOrderID != "" {
		params.Set("newClientOrderId", order.ClientOrderID)
	}
	params.Set("newOrderRespType", "FULL")

	var ack orderAck
	if err := c.post(ctx, ratelimit.ScopeOrder, 1, "/api/v3/order", params, &ack); err != nil {
		return nil, fmt.Errorf("submit market order %s %s: %w", order.Side, order.Symbol, err)
	}

	result := &exchange.OrderResult{
		OrderID:      ack.OrderID,
		Symbol:       ack.Symbol,
		Side:         exchange.Side(ack.Side),
		Status:       ack.Status,
		ExecutedQty:  parseFloat(ack.ExecutedQty),
		CumQuoteQty:  parseFloat(ack.CummulativeQuoteQty),
		TransactTime: time.UnixMilli(ack.TransactTime),
	}
	log.Info().
		Str("symbol", result.Symbol).
		Str("side", string(result.Side)).
		Str("status", result.Status).
		Float64("executed_qty", result.ExecutedQty).
		Msg("order submitted")
	return result, nil
}

func (c *Client) get(ctx context.Context, scope ratelimit.Scope, weight int, path string, params url.Values, signed bool, out interface{}) error {
	return c.do(ctx, http.MethodGet, scope, weight, path, params, signed, out)
}

func (c *Client) post(ctx context.Context, scope ratelimit.Scope, weight int, path string, params url.Values, out interface{}) error {
	return c.do(ctx, http.MethodPost, scope, weight, path, params, true, out)
}

func (c *Client) do(ctx context.Context, method string, scope ratelimit.Scope, weight int, path string, params url.Values, signed bool, out interface{}) error {
	if err := c.limiter.WaitN(ctx, scope, weight); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path, params, signed)
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body.([]byte), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
			return nil, fmt.Errorf("%s requires API credentials", path)
		}
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("signature", c.sign(params.Encode()))
	}

	reqURL := c.cfg.BaseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}
	return body, nil
}

// sign computes the HMAC-SHA256 of the encoded query string with the API
// secret, as Binance requires for USER_DATA and TRADE endpoints.
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
