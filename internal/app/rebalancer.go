package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sileniced/bntradebot/internal/allocation"
	"github.com/sileniced/bntradebot/internal/exchange"
	"github.com/sileniced/bntradebot/internal/metrics"
	"github.com/sileniced/bntradebot/internal/negotiation"
)

// btcAsset is the valuation currency: every configured pair is quoted
// against it.
const btcAsset = "BTC"

// RebalancerConfig tunes one Rebalancer.
type RebalancerConfig struct {
	Pairs       []string
	DryRun      bool
	Negotiation negotiation.Config
}

// PriceSource serves live prices, typically fed by a websocket stream.
// Symbols it cannot serve fall back to the REST average price.
type PriceSource interface {
	Price(symbol string) (float64, bool)
}

// Rebalancer runs the trading half of a cycle: turn pair scores into a
// target allocation, negotiate the balance deltas into orders, and submit
// them.
type Rebalancer struct {
	cfg     RebalancerConfig
	client  exchange.Client
	planner *allocation.Planner
	news    NewsSource
	metrics *metrics.Registry
	live    PriceSource // nil means REST only
}

// RebalanceOutcome is the rebalancer output for one cycle.
type RebalanceOutcome struct {
	Plan      *allocation.Plan
	Orders    []exchange.Order
	Dropped   []negotiation.Dropped
	Submitted int
	Failures  int
	DryRun    bool
}

// DropCounts aggregates the drops by code for reporting.
func (o *RebalanceOutcome) DropCounts() map[string]int {
	out := make(map[string]int)
	for _, d := range o.Dropped {
		out[string(d.Code)]++
	}
	return out
}

// NewRebalancer wires a rebalancer. news may be nil for the neutral source.
func NewRebalancer(cfg RebalancerConfig, client exchange.Client, planner *allocation.Planner, news NewsSource, reg *metrics.Registry) *Rebalancer {
	if news == nil {
		news = NeutralNews{}
	}
	return &Rebalancer{
		cfg:     cfg,
		client:  client,
		planner: planner,
		news:    news,
		metrics: reg,
	}
}

// SetPriceSource installs a live price feed consulted before the REST
// fallback.
func (r *Rebalancer) SetPriceSource(src PriceSource) {
	r.live = src
}

// Run executes one rebalance against the given pair scores.
func (r *Rebalancer) Run(ctx context.Context, pairScores map[string]float64) (*RebalanceOutcome, error) {
	pairs, err := r.tradingUniverse(ctx)
	if err != nil {
		return nil, err
	}

	prices, err := r.fetchPrices(ctx, pairs)
	if err != nil {
		return nil, err
	}

	balances, err := r.client.GetAccountBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}

	assets := assetUniverse(pairs)
	newsScores, err := r.news.Scores(ctx, assets)
	if err != nil {
		log.Warn().Err(err).Msg("news source failed, treating as neutral")
		newsScores = nil
	}

	plan, err := r.planner.Build(pairs, pairScores, newsScores)
	if err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}
	if r.metrics != nil {
		for asset, ratio := range plan.Target {
			r.metrics.AllocationRatio.WithLabelValues(asset).Set(ratio)
		}
	}

	deltas := r.computeDeltas(plan, balances, pairs, prices)
	sides := assignSides(pairs, deltas)

	engine := negotiation.NewEngine(r.cfg.Negotiation)
	if err := engine.Provision(deltas); err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}
	if err := engine.BuildCandidates(pairs, sides, prices, plan.Battle); err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}
	result, err := engine.Match()
	if err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}

	if r.metrics != nil {
		for _, d := range result.Dropped {
			r.metrics.TradeDrops.WithLabelValues(string(d.Code)).Inc()
		}
	}

	outcome := &RebalanceOutcome{
		Plan:    plan,
		Orders:  result.Orders,
		Dropped: result.Dropped,
		DryRun:  r.cfg.DryRun,
	}
	r.submit(ctx, outcome)
	return outcome, nil
}

// tradingUniverse returns the metadata of the configured pairs.
func (r *Rebalancer) tradingUniverse(ctx context.Context) ([]exchange.PairMeta, error) {
	metas, err := r.client.GetPairMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}

	wanted := make(map[string]bool, len(r.cfg.Pairs))
	for _, p := range r.cfg.Pairs {
		wanted[p] = true
	}

	pairs := make([]exchange.PairMeta, 0, len(r.cfg.Pairs))
	for _, meta := range metas {
		if wanted[meta.Symbol] {
			pairs = append(pairs, meta)
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("rebalance: none of the configured pairs exist on the exchange")
	}
	return pairs, nil
}

func (r *Rebalancer) fetchPrices(ctx context.Context, pairs []exchange.PairMeta) (map[string]float64, error) {
	prices := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		if r.live != nil {
			if price, ok := r.live.Price(pair.Symbol); ok && price > 0 {
				prices[pair.Symbol] = price
				continue
			}
		}
		price, err := r.client.GetAveragePrice(ctx, pair.Symbol)
		if err != nil {
			// A missing price surfaces later as a price_unavailable drop
			// rather than aborting the whole rebalance.
			log.Warn().Err(err).Str("pair", pair.Symbol).Msg("price fetch failed")
			continue
		}
		prices[pair.Symbol] = price
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("rebalance: no prices available")
	}
	return prices, nil
}

// computeDeltas converts free balances and the target allocation into
// signed BTC-valued deltas: positive surplus provides, negative deficit
// collects.
func (r *Rebalancer) computeDeltas(plan *allocation.Plan, balances []exchange.Balance, pairs []exchange.PairMeta, prices map[string]float64) []negotiation.AssetDelta {
	valuation := btcValuation(pairs, prices)

	held := make(map[string]float64)
	total := 0.0
	for _, b := range balances {
		rate, ok := valuation[b.Asset]
		if !ok {
			continue // asset outside the trading universe
		}
		btc := b.Free * rate
		held[b.Asset] = btc
		total += btc
	}
	if total <= 0 {
		return nil
	}

	deltas := make([]negotiation.AssetDelta, 0, len(plan.Target))
	for _, asset := range plan.Assets() {
		rate := valuation[asset]
		if rate <= 0 {
			continue
		}
		deltaBtc := held[asset] - plan.Target[asset]*total
		deltas = append(deltas, negotiation.AssetDelta{
			Asset:       asset,
			DeltaBtc:    deltaBtc,
			DeltaNative: deltaBtc / rate,
		})
	}
	return deltas
}

// submit sends the orders, isolating failures per order. Dry-run mode only
// logs what would have been sent.
func (r *Rebalancer) submit(ctx context.Context, outcome *RebalanceOutcome) {
	if r.cfg.DryRun {
		for _, order := range outcome.Orders {
			log.Info().
				Str("symbol", order.Symbol).
				Str("side", string(order.Side)).
				Float64("quantity", order.Quantity).
				Msg("dry run: order not sent")
		}
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, order := range outcome.Orders {
		wg.Add(1)
		go func(order exchange.Order) {
			defer wg.Done()
			result, err := r.client.SubmitMarketOrder(ctx, order)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Failures++
				if r.metrics != nil {
					r.metrics.OrderFailures.Inc()
				}
				log.Error().Err(err).Str("symbol", order.Symbol).Msg("order submission failed")
				return
			}
			outcome.Submitted++
			if r.metrics != nil {
				r.metrics.OrdersSubmitted.WithLabelValues(string(result.Side), result.Status).Inc()
			}
		}(order)
	}
	wg.Wait()
}

// btcValuation maps each universe asset to its BTC price. BTC itself is 1;
// base assets of BTC-quoted pairs take the pair price, quote assets of
// BTC-based pairs (e.g. USDT via BTCUSDT) the inverse. Pairs touching BTC
// on neither side contribute no rate.
func btcValuation(pairs []exchange.PairMeta, prices map[string]float64) map[string]float64 {
	valuation := map[string]float64{btcAsset: 1}
	for _, pair := range pairs {
		price, ok := prices[pair.Symbol]
		if !ok || price <= 0 {
			continue
		}
		switch {
		case pair.QuoteAsset == btcAsset:
			valuation[pair.BaseAsset] = price
		case pair.BaseAsset == btcAsset:
			valuation[pair.QuoteAsset] = 1 / price
		}
	}
	return valuation
}

// assignSides picks the trade direction per pair from the delta signs: the
// side that hands funds to the deficit asset.
func assignSides(pairs []exchange.PairMeta, deltas []negotiation.AssetDelta) map[string]exchange.Side {
	sign := make(map[string]float64, len(deltas))
	for _, d := range deltas {
		sign[d.Asset] = d.DeltaBtc
	}

	sides := make(map[string]exchange.Side, len(pairs))
	for _, pair := range pairs {
		base, quote := sign[pair.BaseAsset], sign[pair.QuoteAsset]
		switch {
		case base < 0 && quote > 0:
			sides[pair.Symbol] = exchange.SideBuy
		case base > 0 && quote < 0:
			sides[pair.Symbol] = exchange.SideSell
		}
		// Same-role pairs get no side; the engine records the mismatch.
	}
	return sides
}

func assetUniverse(pairs []exchange.PairMeta) []string {
	seen := make(map[string]bool)
	assets := make([]string, 0, len(pairs)+1)
	for _, pair := range pairs {
		for _, asset := range []string{pair.BaseAsset, pair.QuoteAsset} {
			if !seen[strings.ToUpper(asset)] {
				seen[strings.ToUpper(asset)] = true
				assets = append(assets, asset)
			}
		}
	}
	return assets
}
