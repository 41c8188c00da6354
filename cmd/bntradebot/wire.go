package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sileniced/bntradebot/internal/allocation"
	"github.com/sileniced/bntradebot/internal/app"
	"github.com/sileniced/bntradebot/internal/config"
	"github.com/sileniced/bntradebot/internal/config/blend"
	"github.com/sileniced/bntradebot/internal/exchange"
	"github.com/sileniced/bntradebot/internal/exchange/binance"
	"github.com/sileniced/bntradebot/internal/exchange/cache"
	"github.com/sileniced/bntradebot/internal/httpapi"
	"github.com/sileniced/bntradebot/internal/metrics"
	"github.com/sileniced/bntradebot/internal/negotiation"
	"github.com/sileniced/bntradebot/internal/persistence"
	"github.com/sileniced/bntradebot/internal/persistence/postgres"
)

// Bot bundles the assembled components so commands can reach the piece
// they need.
type Bot struct {
	App      *app.App
	Analyzer *app.Analyzer
	HTTP     *httpapi.Server
	Stream   *binance.PriceStream

	store  *postgres.Store
	cached *cache.MarketData
}

// Close releases held connections.
func (b *Bot) Close() {
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}
	if b.cached != nil {
		if err := b.cached.Close(); err != nil {
			log.Warn().Err(err).Msg("cache close failed")
		}
	}
}

// buildBot wires the whole dependency graph from cfg.
func buildBot(ctx context.Context, cfg config.Config) (*Bot, error) {
	reg := metrics.NewRegistry()

	client := binance.NewClient(binance.Config{
		BaseURL:        cfg.Exchange.BaseURL,
		APIKey:         cfg.Exchange.APIKey,
		APISecret:      cfg.Exchange.APISecret,
		Timeout:        cfg.Exchange.Timeout(),
		RequestsPerSec: cfg.Exchange.RequestsPerSec,
		Burst:          cfg.Exchange.Burst,
	})

	bot := &Bot{}

	var market exchange.MarketData = client
	if cfg.Cache.Enabled {
		cached := cache.New(client, cache.Config{
			Addr:      cfg.Cache.Addr,
			Password:  cfg.Cache.Password,
			DB:        cfg.Cache.DB,
			CandleTTL: time.Duration(cfg.Cache.CandleTTLSeconds) * time.Second,
			PriceTTL:  time.Duration(cfg.Cache.PriceTTLSeconds) * time.Second,
		})
		if err := cached.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		bot.cached = cached
		market = cached
		log.Info().Str("addr", cfg.Cache.Addr).Msg("candle cache enabled")
	}

	var weightStore persistence.WeightStore
	var reportStore persistence.ReportStore
	if cfg.Database.Enabled {
		store, err := postgres.Open(ctx, cfg.Database.DSN,
			time.Duration(cfg.Database.TimeoutSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		bot.store = store
		weightStore = store
		reportStore = store
		log.Info().Msg("postgres persistence enabled")
	}

	weights, err := loadBlendWeights(cfg.Allocation.WeightsFile)
	if err != nil {
		return nil, err
	}
	planner, err := allocation.NewPlanner(weights)
	if err != nil {
		return nil, err
	}

	analyzer := app.NewAnalyzer(app.AnalyzerConfig{
		Pairs:         cfg.Pairs,
		Intervals:     cfg.ParsedIntervals(),
		CandleLimit:   cfg.Cycle.CandleLimit,
		MaxConcurrent: cfg.Cycle.MaxConcurrent,
		FetchTimeout:  cfg.Cycle.FetchTimeout(),
	}, market, weightStore, reg)

	rebalancer := app.NewRebalancer(app.RebalancerConfig{
		Pairs:  cfg.Pairs,
		DryRun: cfg.Trading.DryRun,
		Negotiation: negotiation.Config{
			DustBtc:         cfg.Trading.DustBtc,
			CompatEqualDrop: cfg.Trading.DropEqualFunds,
		},
	}, client, planner, nil, reg)

	bot.Stream = binance.NewPriceStream(cfg.Exchange.StreamURL, cfg.Pairs)
	rebalancer.SetPriceSource(bot.Stream)

	bot.Analyzer = analyzer
	bot.App = app.New(analyzer, rebalancer, reportStore, reg, cfg.Cycle.Interval())
	if cfg.HTTP.Enabled {
		bot.HTTP = httpapi.NewServer(cfg.HTTP.Listen, bot.App, reportStore, reg)
	}
	return bot, nil
}

func loadBlendWeights(path string) (allocation.BlendWeights, error) {
	loader := blend.NewWeightsLoader()
	if path == "" {
		if err := loader.LoadDefault(); err != nil {
			return allocation.BlendWeights{}, err
		}
		return loader.Weights()
	}
	if err := loader.LoadFromFile(path); err != nil {
		return allocation.BlendWeights{}, err
	}
	return loader.Weights()
}
