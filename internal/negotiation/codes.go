package negotiation

// DropCode classifies why a candidate pair could not be turned into an
// order. Every candidate ends as exactly one accepted order or exactly one
// drop record; the code granularity exists so an operator can tell why a
// rebalancing opportunity was skipped.
type DropCode string

const (
	// DropPairNotTradable: the exchange lists the pair but trading is
	// suspended.
	DropPairNotTradable DropCode = "pair_not_tradable"

	// DropNoProvider: the counterpart asset of the pair is not a
	// registered provider this cycle.
	DropNoProvider DropCode = "no_provider"

	// DropPriceUnavailable: no live price for the pair.
	DropPriceUnavailable DropCode = "price_unavailable"

	// DropAssignmentMismatch: the pair's pre-assigned trade direction does
	// not target the collector as the net receiver.
	DropAssignmentMismatch DropCode = "assignment_mismatch"

	// DropProviderExhausted: the provider's remaining funds were consumed
	// by earlier candidates.
	DropProviderExhausted DropCode = "provider_exhausted"

	// DropCollectorSatisfied: the collector's remaining demand was filled
	// by earlier candidates (or is below dust).
	DropCollectorSatisfied DropCode = "collector_satisfied"

	// Below-exchange-minimum cases, split by side and violated filter.
	DropBuyBelowMinBase   DropCode = "buy_below_min_base"
	DropBuyBelowMinQuote  DropCode = "buy_below_min_quote"
	DropSellBelowMinBase  DropCode = "sell_below_min_base"
	DropSellBelowMinQuote DropCode = "sell_below_min_quote"

	// DropZeroQuantity: the trade size quantized to zero at the pair's
	// step size.
	DropZeroQuantity DropCode = "zero_quantity"

	// DropEqualFunds: provider and collector remaining funds matched
	// exactly and the engine runs in compatibility mode that drops the
	// perfectly-clearing trade instead of accepting it.
	DropEqualFunds DropCode = "equal_funds"
)

// Dropped records one skipped candidate with the numbers that caused it.
type Dropped struct {
	Symbol        string   `json:"symbol"`
	Code          DropCode `json:"code"`
	Provider      string   `json:"provider,omitempty"`
	Collector     string   `json:"collector,omitempty"`
	ProviderBtc   float64  `json:"provider_btc,omitempty"`
	CollectorBtc  float64  `json:"collector_btc,omitempty"`
	Quantity      float64  `json:"quantity,omitempty"`
	Notional      float64  `json:"notional,omitempty"`
	MinBase       float64  `json:"min_base,omitempty"`
	MinQuote      float64  `json:"min_quote,omitempty"`
	Price         float64  `json:"price,omitempty"`
}
