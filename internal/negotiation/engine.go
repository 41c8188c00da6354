// Package negotiation turns target-allocation deltas into executable
// market orders. Assets with surplus (providers) are greedily matched to
// assets with deficit (collectors) through tradable pairs, highest
// collector priority first, respecting exchange minimum-size filters. The
// matching phase is strictly sequential: every acceptance mutates the
// shared remaining-funds ledger that later candidates are judged against.
package negotiation

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sileniced/bntradebot/internal/exchange"
)

// Phase is the engine's lifecycle state for one cycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseProvisioned Phase = "provisioned"
	PhaseMatching    Phase = "matching"
	PhaseTerminal    Phase = "terminal"
)

// Config tunes one engine run.
type Config struct {
	// DustBtc is the BTC-value threshold under which remaining collector
	// demand counts as satisfied.
	DustBtc float64

	// CompatEqualDrop preserves the legacy behavior of dropping a
	// candidate whose provider and collector remaining funds match
	// exactly, instead of accepting the perfectly-clearing trade.
	CompatEqualDrop bool
}

// DefaultConfig returns the production defaults: dust at 1e-6 BTC and the
// clearing-trade acceptance branch enabled.
func DefaultConfig() Config {
	return Config{DustBtc: 1e-6}
}

// Candidate is one (collector, pair) combination eligible for matching,
// annotated with the exchange constraints and the live price.
type Candidate struct {
	Pair      exchange.PairMeta
	Side      exchange.Side
	Provider  string
	Collector string
	Score     float64 // collector priority key, higher first
	Price     float64
}

// Result is the terminal output of one engine run.
type Result struct {
	Orders     []exchange.Order
	Dropped    []Dropped
	Providers  map[string]*Provider
	Collectors map[string]*Collector
}

// Engine executes one negotiation cycle. Not safe for concurrent use; a
// fresh engine is provisioned per cycle.
type Engine struct {
	cfg        Config
	phase      Phase
	ledger     *ledger
	candidates []Candidate
	dropped    []Dropped
}

// NewEngine returns an idle engine.
func NewEngine(cfg Config) *Engine {
	if cfg.DustBtc <= 0 {
		cfg.DustBtc = 1e-6
	}
	return &Engine{cfg: cfg, phase: PhaseIdle}
}

// Phase returns the engine's current lifecycle phase.
func (e *Engine) Phase() Phase { return e.phase }

// Provision registers providers and collectors from the signed deltas.
// Idle → Provisioned.
func (e *Engine) Provision(deltas []AssetDelta) error {
	if e.phase != PhaseIdle {
		return fmt.Errorf("negotiation: Provision in phase %s", e.phase)
	}
	e.ledger = provision(deltas)
	e.phase = PhaseProvisioned
	return nil
}

// BuildCandidates assembles the candidate set from the tradable pairs,
// the pre-assigned trade direction per pair symbol, live prices, and the
// collector priority scores. Pairs that cannot produce a candidate are
// recorded as drops immediately. Must run in the Provisioned phase.
func (e *Engine) BuildCandidates(pairs []exchange.PairMeta, sides map[string]exchange.Side, prices map[string]float64, priority map[string]float64) error {
	if e.phase != PhaseProvisioned {
		return fmt.Errorf("negotiation: BuildCandidates in phase %s", e.phase)
	}

	for _, collectorAsset := range e.ledger.collectorsByPriority(priority) {
		for _, pair := range pairs {
			if !pair.Contains(collectorAsset) {
				continue
			}
			counterpart, err := pair.Counterpart(collectorAsset)
			if err != nil {
				return err
			}

			if !pair.Tradable {
				e.drop(Dropped{Symbol: pair.Symbol, Code: DropPairNotTradable, Collector: collectorAsset})
				continue
			}
			provider, ok := e.ledger.providers[counterpart]
			if !ok {
				e.drop(Dropped{Symbol: pair.Symbol, Code: DropNoProvider, Collector: collectorAsset, Provider: counterpart})
				continue
			}

			side, ok := sides[pair.Symbol]
			if !ok || !directionTargetsCollector(pair, side, collectorAsset) {
				e.drop(Dropped{
					Symbol:    pair.Symbol,
					Code:      DropAssignmentMismatch,
					Collector: collectorAsset,
					Provider:  provider.Asset,
				})
				continue
			}

			price := prices[pair.Symbol]
			if price <= 0 {
				e.drop(Dropped{Symbol: pair.Symbol, Code: DropPriceUnavailable, Collector: collectorAsset, Provider: provider.Asset, Price: price})
				continue
			}

			e.candidates = append(e.candidates, Candidate{
				Pair:      pair,
				Side:      side,
				Provider:  provider.Asset,
				Collector: collectorAsset,
				Score:     priority[collectorAsset],
				Price:     price,
			})
		}
	}

	// Highest-priority collector demand is served first; ties resolve by
	// symbol for determinism. Later exhausted alternatives are not
	// revisited: this is a greedy heuristic, not globally optimal.
	sort.SliceStable(e.candidates, func(i, j int) bool {
		if e.candidates[i].Score != e.candidates[j].Score {
			return e.candidates[i].Score > e.candidates[j].Score
		}
		return e.candidates[i].Pair.Symbol < e.candidates[j].Pair.Symbol
	})
	return nil
}

// directionTargetsCollector reports whether the pre-assigned side makes
// the collector the net receiver: a BUY accumulates the base asset, a
// SELL accumulates the quote asset.
func directionTargetsCollector(pair exchange.PairMeta, side exchange.Side, collector string) bool {
	switch side {
	case exchange.SideBuy:
		return pair.BaseAsset == collector
	case exchange.SideSell:
		return pair.QuoteAsset == collector
	}
	return false
}

// Match processes every candidate in priority order against the shared
// ledger. Provisioned → Matching → Terminal.
func (e *Engine) Match() (*Result, error) {
	if e.phase != PhaseProvisioned {
		return nil, fmt.Errorf("negotiation: Match in phase %s", e.phase)
	}
	e.phase = PhaseMatching

	orders := make([]exchange.Order, 0, len(e.candidates))
	for _, cand := range e.candidates {
		provider := e.ledger.providers[cand.Provider]
		collector := e.ledger.collectors[cand.Collector]

		if provider.RemainingBtc <= 0 {
			e.drop(dropFor(cand, DropProviderExhausted, provider, collector))
			continue
		}
		if collector.RemainingBtc <= e.cfg.DustBtc {
			e.drop(dropFor(cand, DropCollectorSatisfied, provider, collector))
			continue
		}

		switch {
		case provider.RemainingBtc > collector.RemainingBtc:
			if order, dropped := e.sizeByCollector(cand, provider, collector, false); dropped != nil {
				e.drop(*dropped)
			} else {
				orders = append(orders, order)
			}
		case provider.RemainingBtc < collector.RemainingBtc:
			if order, dropped := e.sizeByProvider(cand, provider, collector); dropped != nil {
				e.drop(*dropped)
			} else {
				orders = append(orders, order)
			}
		default:
			if e.cfg.CompatEqualDrop {
				e.drop(dropFor(cand, DropEqualFunds, provider, collector))
				continue
			}
			// Perfectly-clearing trade: size by the collector's demand
			// and exhaust both sides.
			if order, dropped := e.sizeByCollector(cand, provider, collector, true); dropped != nil {
				e.drop(*dropped)
			} else {
				orders = append(orders, order)
			}
		}
	}

	e.phase = PhaseTerminal
	return &Result{
		Orders:     orders,
		Dropped:    e.dropped,
		Providers:  e.ledger.providers,
		Collectors: e.ledger.collectors,
	}, nil
}

// sizeByCollector sizes the trade from the collector's entire remaining
// native demand (the provider can cover it). clearBoth additionally
// exhausts the provider, for the exactly-equal branch.
func (e *Engine) sizeByCollector(cand Candidate, provider *Provider, collector *Collector, clearBoth bool) (exchange.Order, *Dropped) {
	var baseQty float64
	switch cand.Side {
	case exchange.SideBuy:
		// Collector demand is in base units.
		baseQty = floorToStep(collector.RemainingNative, cand.Pair.StepSize)
	default:
		// Collector demand is in quote units; derive the base quantity.
		baseQty = floorToStep(collector.RemainingNative/cand.Price, cand.Pair.StepSize)
	}

	if dropped := e.validateSize(cand, baseQty, provider, collector); dropped != nil {
		return exchange.Order{}, dropped
	}

	moved := collector.RemainingBtc
	provider.RemainingBtc -= moved
	switch cand.Side {
	case exchange.SideBuy:
		provider.RemainingNative -= baseQty * cand.Price
	default:
		provider.RemainingNative -= baseQty
	}
	collector.RemainingBtc = 0
	collector.RemainingNative = 0
	if clearBoth {
		provider.RemainingBtc = 0
		provider.RemainingNative = 0
	}

	return e.order(cand, baseQty, moved), nil
}

// sizeByProvider sizes the trade from the provider's entire remaining
// funds (the collector wants more than the provider has).
func (e *Engine) sizeByProvider(cand Candidate, provider *Provider, collector *Collector) (exchange.Order, *Dropped) {
	var baseQty float64
	switch cand.Side {
	case exchange.SideBuy:
		// Provider funds are in quote units; derive the base quantity.
		baseQty = floorToStep(provider.RemainingNative/cand.Price, cand.Pair.StepSize)
	default:
		// Provider funds are the base units being sold.
		baseQty = floorToStep(provider.RemainingNative, cand.Pair.StepSize)
	}

	if dropped := e.validateSize(cand, baseQty, provider, collector); dropped != nil {
		return exchange.Order{}, dropped
	}

	moved := provider.RemainingBtc
	collector.RemainingBtc -= moved
	switch cand.Side {
	case exchange.SideBuy:
		collector.RemainingNative -= baseQty
	default:
		collector.RemainingNative -= baseQty * cand.Price
	}
	provider.RemainingBtc = 0
	provider.RemainingNative = 0

	return e.order(cand, baseQty, moved), nil
}

// validateSize checks the quantized base quantity against the pair's
// exchange filters.
func (e *Engine) validateSize(cand Candidate, baseQty float64, provider *Provider, collector *Collector) *Dropped {
	notional := baseQty * cand.Price

	code := DropCode("")
	switch {
	case cand.Pair.MinBase > 0 && baseQty < cand.Pair.MinBase:
		if cand.Side == exchange.SideBuy {
			code = DropBuyBelowMinBase
		} else {
			code = DropSellBelowMinBase
		}
	case cand.Pair.MinQuote > 0 && notional < cand.Pair.MinQuote:
		if cand.Side == exchange.SideBuy {
			code = DropBuyBelowMinQuote
		} else {
			code = DropSellBelowMinQuote
		}
	case baseQty <= 0:
		code = DropZeroQuantity
	default:
		return nil
	}

	d := dropFor(cand, code, provider, collector)
	d.Quantity = baseQty
	d.Notional = notional
	return &d
}

func (e *Engine) order(cand Candidate, baseQty, movedBtc float64) exchange.Order {
	return exchange.Order{
		Symbol:        cand.Pair.Symbol,
		Side:          cand.Side,
		Quantity:      baseQty,
		QuoteBtc:      movedBtc,
		ClientOrderID: uuid.NewString(),
	}
}

func (e *Engine) drop(d Dropped) {
	e.dropped = append(e.dropped, d)
}

func dropFor(cand Candidate, code DropCode, provider *Provider, collector *Collector) Dropped {
	return Dropped{
		Symbol:       cand.Pair.Symbol,
		Code:         code,
		Provider:     provider.Asset,
		Collector:    collector.Asset,
		ProviderBtc:  provider.RemainingBtc,
		CollectorBtc: collector.RemainingBtc,
		MinBase:      cand.Pair.MinBase,
		MinQuote:     cand.Pair.MinQuote,
		Price:        cand.Price,
	}
}

// floorToStep quantizes qty down to the pair's lot step. Uses decimal
// arithmetic so binary float error cannot round a boundary quantity up.
func floorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	out, _ := q.Div(s).Floor().Mul(s).Float64()
	return out
}
