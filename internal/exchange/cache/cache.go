// Package cache wraps an exchange.MarketData source with a Redis
// read-through layer so repeated candle and price lookups within a cycle
// don't burn request weight.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sileniced/bntradebot/internal/exchange"
)

// Config holds cache settings.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// CandleTTL bounds how stale cached candles may be; a zero value
	// falls back to one minute. PriceTTL works the same for prices.
	CandleTTL time.Duration `yaml:"candle_ttl"`
	PriceTTL  time.Duration `yaml:"price_ttl"`
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:      "localhost:6379",
		CandleTTL: time.Minute,
		PriceTTL:  10 * time.Second,
	}
}

// MarketData is a caching decorator over another exchange.MarketData.
type MarketData struct {
	source    exchange.MarketData
	rdb       *redis.Client
	candleTTL time.Duration
	priceTTL  time.Duration
}

var _ exchange.MarketData = (*MarketData)(nil)

// New wires a cache in front of source using cfg.
func New(source exchange.MarketData, cfg Config) *MarketData {
	def := DefaultConfig()
	if cfg.CandleTTL <= 0 {
		cfg.CandleTTL = def.CandleTTL
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = def.PriceTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(source, rdb, cfg)
}

// NewWithClient uses an existing Redis client, mainly for tests.
func NewWithClient(source exchange.MarketData, rdb *redis.Client, cfg Config) *MarketData {
	return &MarketData{
		source:    source,
		rdb:       rdb,
		candleTTL: cfg.CandleTTL,
		priceTTL:  cfg.PriceTTL,
	}
}

// Ping verifies the Redis connection.
func (m *MarketData) Ping(ctx context.Context) error {
	if err := m.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (m *MarketData) Close() error {
	return m.rdb.Close()
}

// GetCandles serves candles from Redis when present, falling back to the
// source and writing back on miss. Cache failures degrade to the source.
func (m *MarketData) GetCandles(ctx context.Context, symbol string, interval exchange.Interval, limit int, endTime time.Time) ([]exchange.Candle, error) {
	key := candleKey(symbol, interval, limit, endTime)

	raw, err := m.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var candles []exchange.Candle
		if jsonErr := json.Unmarshal(raw, &candles); jsonErr == nil {
			return candles, nil
		}
		// Corrupt entry: drop it and refetch.
		m.rdb.Del(ctx, key)
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("key", key).Msg("candle cache read failed")
	}

	candles, err := m.source.GetCandles(ctx, symbol, interval, limit, endTime)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(candles); err == nil {
		if err := m.rdb.Set(ctx, key, raw, m.candleTTL).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("candle cache write failed")
		}
	}
	return candles, nil
}

// GetAveragePrice serves the price from Redis when present, falling back to
// the source and writing back on miss.
func (m *MarketData) GetAveragePrice(ctx context.Context, symbol string) (float64, error) {
	key := priceKey(symbol)

	if price, err := m.rdb.Get(ctx, key).Float64(); err == nil {
		return price, nil
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("key", key).Msg("price cache read failed")
	}

	price, err := m.source.GetAveragePrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if err := m.rdb.Set(ctx, key, price, m.priceTTL).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("price cache write failed")
	}
	return price, nil
}

// GetPairMetadata is passed through uncached; it is fetched once per cycle
// and its filters must never be stale when sizing orders.
func (m *MarketData) GetPairMetadata(ctx context.Context) ([]exchange.PairMeta, error) {
	return m.source.GetPairMetadata(ctx)
}

func candleKey(symbol string, interval exchange.Interval, limit int, endTime time.Time) string {
	return fmt.Sprintf("bntradebot:candles:%s:%s:%d:%d", symbol, interval, limit, endTime.UnixMilli())
}

func priceKey(symbol string) string {
	return fmt.Sprintf("bntradebot:price:%s", symbol)
}
