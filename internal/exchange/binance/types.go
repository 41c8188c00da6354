package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sileniced/bntradebot/internal/exchange"
)

// apiError is Binance's error envelope.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("binance: code %d: %s", e.Code, e.Message)
}

// rawKline is one /api/v3/klines entry: a mixed-type JSON array of
// [openTime, open, high, low, close, volume, closeTime, ...].
type rawKline []json.RawMessage

func (k rawKline) toCandle() (exchange.Candle, error) {
	if len(k) < 7 {
		return exchange.Candle{}, fmt.Errorf("binance: kline with %d fields", len(k))
	}

	var openMs, closeMs int64
	if err := json.Unmarshal(k[0], &openMs); err != nil {
		return exchange.Candle{}, fmt.Errorf("binance: kline open time: %w", err)
	}
	if err := json.Unmarshal(k[6], &closeMs); err != nil {
		return exchange.Candle{}, fmt.Errorf("binance: kline close time: %w", err)
	}

	floats := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(k[i], &s); err != nil {
			return exchange.Candle{}, fmt.Errorf("binance: kline field %d: %w", i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return exchange.Candle{}, fmt.Errorf("binance: kline field %d: %w", i, err)
		}
		floats[i-1] = v
	}

	return exchange.Candle{
		OpenTime:  time.UnixMilli(openMs),
		CloseTime: time.UnixMilli(closeMs),
		Open:      floats[0],
		High:      floats[1],
		Low:       floats[2],
		Close:     floats[3],
		Volume:    floats[4],
	}, nil
}

// exchangeInfo is the subset of /api/v3/exchangeInfo the bot consumes.
type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	StepSize    string `json:"stepSize"`
	MinNotional string `json:"minNotional"`
}

func (s symbolInfo) toPairMeta() exchange.PairMeta {
	meta := exchange.PairMeta{
		Symbol:     s.Symbol,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
		Tradable:   s.Status == "TRADING",
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			meta.MinBase = parseFloat(f.MinQty)
			meta.StepSize = parseFloat(f.StepSize)
		case "MIN_NOTIONAL", "NOTIONAL":
			meta.MinQuote = parseFloat(f.MinNotional)
		}
	}
	return meta
}

// accountInfo is the subset of /api/v3/account the bot consumes.
type accountInfo struct {
	Balances []accountBalance `json:"balances"`
}

type accountBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// avgPrice is /api/v3/avgPrice.
type avgPrice struct {
	Mins  int    `json:"mins"`
	Price string `json:"price"`
}

// orderAck is the FULL response of POST /api/v3/order.
type orderAck struct {
	OrderID             int64  `json:"orderId"`
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	TransactTime        int64  `json:"transactTime"`
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
