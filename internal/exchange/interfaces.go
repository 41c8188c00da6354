package exchange

import (
	"context"
	"time"
)

// MarketData provides read-only market data access.
type MarketData interface {
	// GetCandles returns up to limit candles for the pair at the given
	// interval, ending at endTime (zero time means "now").
	GetCandles(ctx context.Context, symbol string, interval Interval, limit int, endTime time.Time) ([]Candle, error)

	// GetPairMetadata returns every tradable pair with its exchange filters.
	GetPairMetadata(ctx context.Context) ([]PairMeta, error)

	// GetAveragePrice returns the current average price of the pair.
	GetAveragePrice(ctx context.Context, symbol string) (float64, error)
}

// Account provides account state and order submission.
type Account interface {
	// GetAccountBalances returns every non-zero balance on the account.
	GetAccountBalances(ctx context.Context) ([]Balance, error)

	// SubmitMarketOrder places a market order and returns the exchange fill
	// acknowledgement.
	SubmitMarketOrder(ctx context.Context, order Order) (*OrderResult, error)
}

// Client is the full exchange surface the bot depends on.
type Client interface {
	MarketData
	Account
}
