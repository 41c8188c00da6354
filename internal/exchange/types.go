package exchange

import (
	"fmt"
	"time"
)

// Interval is an exchange-native candle interval identifier ("5m", "1h", ...).
type Interval string

const (
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Duration returns the wall-clock span of one candle at this interval.
func (i Interval) Duration() (time.Duration, error) {
	switch i {
	case Interval5m:
		return 5 * time.Minute, nil
	case Interval15m:
		return 15 * time.Minute, nil
	case Interval1h:
		return time.Hour, nil
	case Interval4h:
		return 4 * time.Hour, nil
	case Interval1d:
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown interval %q", string(i))
}

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PairMeta describes one tradable pair and its exchange filters.
type PairMeta struct {
	Symbol     string  `json:"symbol"`      // e.g. "BTCUSDT"
	BaseAsset  string  `json:"base_asset"`  // e.g. "BTC"
	QuoteAsset string  `json:"quote_asset"` // e.g. "USDT"
	MinBase    float64 `json:"min_base"`    // LOT_SIZE minQty, base units
	StepSize   float64 `json:"step_size"`   // LOT_SIZE stepSize, base units
	MinQuote   float64 `json:"min_quote"`   // MIN_NOTIONAL, quote units
	Tradable   bool    `json:"tradable"`
}

// Contains reports whether asset is one side of the pair.
func (p PairMeta) Contains(asset string) bool {
	return p.BaseAsset == asset || p.QuoteAsset == asset
}

// Counterpart returns the other side of the pair, or an error if asset is
// not part of it.
func (p PairMeta) Counterpart(asset string) (string, error) {
	switch asset {
	case p.BaseAsset:
		return p.QuoteAsset, nil
	case p.QuoteAsset:
		return p.BaseAsset, nil
	}
	return "", fmt.Errorf("asset %s not in pair %s", asset, p.Symbol)
}

// Balance is a per-asset account balance.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Side is a market order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a market order request produced by the negotiation engine.
type Order struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"`  // base units
	QuoteBtc      float64 `json:"quote_btc"` // BTC value moved, diagnostics only
	ClientOrderID string  `json:"client_order_id"`
}

// OrderResult is the exchange acknowledgement of a submitted order.
type OrderResult struct {
	OrderID      int64     `json:"order_id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	ExecutedQty  float64   `json:"executed_qty"`
	CumQuoteQty  float64   `json:"cum_quote_qty"`
	Status       string    `json:"status"`
	TransactTime time.Time `json:"transact_time"`
}
