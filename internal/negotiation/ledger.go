package negotiation

import "sort"

// Provider tracks the remaining spendable funds of an over-allocated
// asset. Mutated in place as candidates consume it during one engine run.
type Provider struct {
	Asset           string
	RemainingBtc    float64 // BTC-valued surplus left to spend
	RemainingNative float64 // surplus in the asset's own units
}

// Collector tracks the remaining demand of an under-allocated asset.
type Collector struct {
	Asset           string
	RemainingBtc    float64 // BTC-valued deficit left to fill
	RemainingNative float64 // deficit in the asset's own units
}

// AssetDelta is the signed rebalancing delta of one asset: positive BTC
// delta means surplus (provider), negative means deficit (collector).
type AssetDelta struct {
	Asset       string
	DeltaBtc    float64
	DeltaNative float64
}

// ledger holds both role maps for one engine run.
type ledger struct {
	providers  map[string]*Provider
	collectors map[string]*Collector
}

func provision(deltas []AssetDelta) *ledger {
	l := &ledger{
		providers:  map[string]*Provider{},
		collectors: map[string]*Collector{},
	}
	for _, d := range deltas {
		switch {
		case d.DeltaBtc > 0:
			l.providers[d.Asset] = &Provider{
				Asset:           d.Asset,
				RemainingBtc:    d.DeltaBtc,
				RemainingNative: d.DeltaNative,
			}
		case d.DeltaBtc < 0:
			l.collectors[d.Asset] = &Collector{
				Asset:           d.Asset,
				RemainingBtc:    -d.DeltaBtc,
				RemainingNative: -d.DeltaNative,
			}
		}
		// Zero delta participates in neither role.
	}
	return l
}

// collectorsByPriority returns collector assets ordered by the given
// priority score descending, ties alphabetical for determinism.
func (l *ledger) collectorsByPriority(priority map[string]float64) []string {
	assets := make([]string, 0, len(l.collectors))
	for asset := range l.collectors {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool {
		pi, pj := priority[assets[i]], priority[assets[j]]
		if pi != pj {
			return pi > pj
		}
		return assets[i] < assets[j]
	})
	return assets
}
