package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sileniced/bntradebot/internal/exchange"
)

const btcUsdtPrice = 20000.0

func btcUsdt() exchange.PairMeta {
	return exchange.PairMeta{
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		MinBase:    0.001,
		MinQuote:   10,
		StepSize:   0.0001,
		Tradable:   true,
	}
}

func runEngine(t *testing.T, cfg Config, deltas []AssetDelta, pairs []exchange.PairMeta, sides map[string]exchange.Side, prices, priority map[string]float64) *Result {
	t.Helper()
	e := NewEngine(cfg)
	require.NoError(t, e.Provision(deltas))
	require.NoError(t, e.BuildCandidates(pairs, sides, prices, priority))
	res, err := e.Match()
	require.NoError(t, err)
	require.Equal(t, PhaseTerminal, e.Phase())
	return res
}

func TestProviderCoversCollectorBuy(t *testing.T) {
	// USDT holds a 100 BTC-equivalent surplus, BTC has a 60 BTC deficit:
	// one BUY fully satisfying the collector.
	res := runEngine(t, DefaultConfig(),
		[]AssetDelta{
			{Asset: "USDT", DeltaBtc: 100, DeltaNative: 2_000_000},
			{Asset: "BTC", DeltaBtc: -60, DeltaNative: -60},
		},
		[]exchange.PairMeta{btcUsdt()},
		map[string]exchange.Side{"BTCUSDT": exchange.SideBuy},
		map[string]float64{"BTCUSDT": btcUsdtPrice},
		nil,
	)

	require.Len(t, res.Orders, 1)
	require.Empty(t, res.Dropped)

	order := res.Orders[0]
	assert.Equal(t, "BTCUSDT", order.Symbol)
	assert.Equal(t, exchange.SideBuy, order.Side)
	assert.InDelta(t, 60.0, order.Quantity, 1e-9)
	assert.NotEmpty(t, order.ClientOrderID)

	assert.InDelta(t, 40.0, res.Providers["USDT"].RemainingBtc, 1e-9)
	assert.InDelta(t, 800_000.0, res.Providers["USDT"].RemainingNative, 1e-6)
	assert.Zero(t, res.Collectors["BTC"].RemainingBtc)
	assert.Zero(t, res.Collectors["BTC"].RemainingNative)
}

func TestDustCollectorIsSatisfied(t *testing.T) {
	res := runEngine(t, DefaultConfig(),
		[]AssetDelta{
			{Asset: "USDT", DeltaBtc: 100, DeltaNative: 2_000_000},
			{Asset: "BTC", DeltaBtc: -0.0000001, DeltaNative: -0.0000001},
		},
		[]exchange.PairMeta{btcUsdt()},
		map[string]exchange.Side{"BTCUSDT": exchange.SideBuy},
		map[string]float64{"BTCUSDT": btcUsdtPrice},
		nil,
	)

	require.Empty(t, res.Orders)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, DropCollectorSatisfied, res.Dropped[0].Code)
	assert.InDelta(t, 100.0, res.Providers["USDT"].RemainingBtc, 1e-9, "no state mutated")
}

func TestQuantizedBelowMinBase(t *testing.T) {
	pair := btcUsdt()
	pair.MinBase = 0.01
	pair.StepSize = 0.001

	res := runEngine(t, DefaultConfig(),
		[]AssetDelta{
			{Asset: "USDT", DeltaBtc: 100, DeltaNative: 2_000_000},
			{Asset: "BTC", DeltaBtc: -0.0005, DeltaNative: -0.0005},
		},
		[]exchange.PairMeta{pair},
		map[string]exchange.Side{"BTCUSDT": exchange.SideBuy},
		map[string]float64{"BTCUSDT": btcUsdtPrice},
		nil,
	)

	require.Empty(t, res.Orders)
	require.Len(t, res.Dropped, 1)
	drop := res.Dropped[0]
	assert.Equal(t, DropBuyBelowMinBase, drop.Code)
	assert.Zero(t, drop.Quantity, "0.0005 floors to zero at 0.001 steps")

	assert.InDelta(t, 100.0, res.Providers["USDT"].RemainingBtc, 1e-9, "no state mutated")
	assert.InDelta(t, 0.0005, res.Collectors["BTC"].RemainingBtc, 1e-12)
}

func TestBelowMinQuoteSell(t *testing.T) {
	pair := btcUsdt()
	pair.MinBase = 0 // isolate the notional filter

	res := runEngine(t, DefaultConfig(),
		[]AssetDelta{
			{Asset: "BTC", DeltaBtc: 100, DeltaNative: 100},
			{Asset: "USDT", DeltaBtc: -0.0002, DeltaNative: -4}, // 4 USDT < minQuote 10
		},
		[]exchange.PairMeta{pair},
		map[string]exchange.Side{"BTCUSDT": exchange.SideSell},
		map[string]float64{"BTCUSDT": btcUsdtPrice},
		nil,
	)

	require.Empty(t, res.Orders)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, DropSellBelowMinQuote, res.Dropped[0].Code)
}

func TestSellSizedByCollector(t *testing.T) {
	res := runEngine(t, DefaultConfig(),
		[]AssetDelta{
			{Asset: "BTC", DeltaBtc: 80, DeltaNative: 80},
			{Asset: "USDT", DeltaBtc: -50, DeltaNative: -1_000_000},
		},
		[]exchange.PairMeta{btcUsdt()},
		map[string]exchange.Side{"BTCUSDT": exchange.SideSell},
		map[string]float64{"BTCUSDT": btcUsdtPrice},
		nil,
	)

	require.Len(t, res.Orders, 1)
	order := res.Orders[0]
	assert.Equal(t, exchange.SideSell, order.Side)
	assert.InDelta(t, 50.0, order.Quantity, 1e-9, "1M USDT demand / 20000")

	assert.InDelta(t, 30.0, res.Providers["BTC"].RemainingBtc, 1e-9)
	assert.InDelta(t, 30.0, res.Providers["BTC"].RemainingNative, 1e-9)
	assert.Zero(t, res.Collectors["USDT"].RemainingBtc)
}

func TestProviderSmallerThanCollector(t *testing.T) {
	res := runEngine(t, DefaultConfig(),
		[]AssetDelta{
			{Asset: "USDT", DeltaBtc: 30, DeltaNative: 600_000},
			{Asset: "BTC", DeltaBtc: -60, DeltaNative: -60},
		},
		[]exchange.PairMeta{btcUsdt()},
		map[string]exchange.Side{"BTCUSDT": exchange.SideBuy},
		map[string]float64{"BTCUSDT": btcUsdtPrice},
		nil,
	)

	require.Len(t, res.Orders, 1)
	assert.InDelta(t, 30.0, res.Orders[0].Quantity, 1e-9, "sized by the provider's funds")

	assert.Zero(t, res.Providers["USDT"].RemainingBtc)
	assert.Zero(t, res.Providers["USDT"].RemainingNative)
	assert.InDelta(t, 30.0, res.Collectors["BTC"].RemainingBtc, 1e-9)
	assert.InDelta(t, 30.0, res.Collectors["BTC"].RemainingNative, 1e-9)
}

func TestExactlyEqualFundsClearBothSides(t *testing.T) {
	res := runEngine(t, DefaultConfig(),
		[]AssetDelta{
			{Asset: "USDT", DeltaBtc: 50, DeltaNative: 1_000_000},
			{Asset: "BTC", DeltaBtc: -50, DeltaNative: -50},
		},
		[]exchange.PairMeta{btcUsdt()},
		map[string]exchange.Side{"BTCUSDT": exchange.SideBuy},
		map[string]float64{"BTCUSDT": btcUsdtPrice},
		nil,
	)

	require.Len(t, res.Orders, 1)
	assert.InDelta(t, 50.0, res.Orders[0].Quantity, 1e-9)
	assert.Zero(t, res.Providers["USDT"].RemainingBtc)
	assert.Zero(t, res.Collectors["BTC"].RemainingBtc)
}

func TestExactlyEqualFundsCompatDrop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompatEqualDrop = true

	res := runEngine(t, cfg,
		[]AssetDelta{
			{Asset: "USDT", DeltaBtc: 50, DeltaNative: 1_000_000},
			{Asset: "BTC", DeltaBtc: -50, DeltaNative: -50},
		},
		[]exchange.PairMeta{btcUsdt()},
		map[string]exchange.Side{"BTCUSDT": exchange.SideBuy},
		map[string]float64{"BTCUSDT": btcUsdtPrice},
		nil,
	)

	require.Empty(t, res.Orders)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, DropEqualFunds, res.Dropped[0].Code)
	assert.InDelta(t, 50.0, res.Providers["USDT"].RemainingBtc, 1e-9, "legacy drop leaves state untouched")
}

func TestGreedyPriorityAndExhaustion(t *testing.T) {
	eth := exchange.PairMeta{
		Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT",
		MinBase: 0.001, MinQuote: 10, StepSize: 0.001, Tradable: true,
	}
	ltc := exchange.PairMeta{
		Symbol: "LTCUSDT", BaseAsset: "LTC", QuoteAsset: "USDT",
		MinBase: 0.01, MinQuote: 10, StepSize: 0.01, Tradable: true,
	}
	bnb := exchange.PairMeta{
		Symbol: "BNBUSDT", BaseAsset: "BNB", QuoteAsset: "USDT",
		MinBase: 0.01, MinQuote: 10, StepSize: 0.01, Tradable: true,
	}

	res := runEngine(t, DefaultConfig(),
		[]AssetDelta{
			{Asset: "USDT", DeltaBtc: 50, DeltaNative: 1_000_000},
			{Asset: "ETH", DeltaBtc: -30, DeltaNative: -300},
			{Asset: "LTC", DeltaBtc: -40, DeltaNative: -10000},
			{Asset: "BNB", DeltaBtc: -5, DeltaNative: -200},
		},
		[]exchange.PairMeta{eth, ltc, bnb},
		map[string]exchange.Side{
			"ETHUSDT": exchange.SideBuy,
			"LTCUSDT": exchange.SideBuy,
			"BNBUSDT": exchange.SideBuy,
		},
		map[string]float64{"ETHUSDT": 2000, "LTCUSDT": 80, "BNBUSDT": 500},
		map[string]float64{"ETH": 0.9, "LTC": 0.6, "BNB": 0.3},
	)

	// ETH (highest priority) fully served: 50 > 30. LTC gets the provider
	// remainder: 20 < 40. BNB finds the provider exhausted.
	require.Len(t, res.Orders, 2)
	assert.Equal(t, "ETHUSDT", res.Orders[0].Symbol)
	assert.InDelta(t, 300.0, res.Orders[0].Quantity, 1e-9)
	assert.Equal(t, "LTCUSDT", res.Orders[1].Symbol)

	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "BNBUSDT", res.Dropped[0].Symbol)
	assert.Equal(t, DropProviderExhausted, res.Dropped[0].Code)

	assert.Zero(t, res.Providers["USDT"].RemainingBtc)
}

func TestNegotiationConservation(t *testing.T) {
	deltas := []AssetDelta{
		{Asset: "USDT", DeltaBtc: 50, DeltaNative: 1_000_000},
		{Asset: "ETH", DeltaBtc: -30, DeltaNative: -300},
		{Asset: "LTC", DeltaBtc: -40, DeltaNative: -10000},
	}
	eth := exchange.PairMeta{
		Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT",
		MinBase: 0.001, MinQuote: 10, StepSize: 0.001, Tradable: true,
	}
	ltc := exchange.PairMeta{
		Symbol: "LTCUSDT", BaseAsset: "LTC", QuoteAsset: "USDT",
		MinBase: 0.01, MinQuote: 10, StepSize: 0.01, Tradable: true,
	}

	res := runEngine(t, DefaultConfig(), deltas,
		[]exchange.PairMeta{eth, ltc},
		map[string]exchange.Side{"ETHUSDT": exchange.SideBuy, "LTCUSDT": exchange.SideBuy},
		map[string]float64{"ETHUSDT": 2000, "LTCUSDT": 80},
		map[string]float64{"ETH": 0.9, "LTC": 0.6},
	)

	// Every accepted order moved exactly its BTC amount from provider to
	// collector, and nothing went negative.
	movedTotal := 0.0
	for _, order := range res.Orders {
		movedTotal += order.QuoteBtc
	}
	assert.InDelta(t, 50.0, movedTotal+res.Providers["USDT"].RemainingBtc, 1e-9)

	for _, p := range res.Providers {
		assert.GreaterOrEqual(t, p.RemainingBtc, 0.0)
		assert.GreaterOrEqual(t, p.RemainingNative, -1e-9)
	}
	for _, c := range res.Collectors {
		assert.GreaterOrEqual(t, c.RemainingBtc, 0.0)
	}
}

func TestDropCodeCoverage(t *testing.T) {
	// A mixed run: every candidate must end as exactly one order or one
	// typed drop, never both, never neither.
	halted := btcUsdt()
	halted.Symbol = "XRPUSDT"
	halted.BaseAsset = "XRP"
	halted.Tradable = false

	orphan := btcUsdt()
	orphan.Symbol = "ETHBNB"
	orphan.BaseAsset = "ETH"
	orphan.QuoteAsset = "BNB" // BNB is no provider

	unpriced := btcUsdt()
	unpriced.Symbol = "LTCUSDT"
	unpriced.BaseAsset = "LTC"

	misassigned := btcUsdt()
	misassigned.Symbol = "ETHUSDT"
	misassigned.BaseAsset = "ETH"

	deltas := []AssetDelta{
		{Asset: "USDT", DeltaBtc: 100, DeltaNative: 2_000_000},
		{Asset: "BTC", DeltaBtc: -60, DeltaNative: -60},
		{Asset: "XRP", DeltaBtc: -5, DeltaNative: -200_000},
		{Asset: "ETH", DeltaBtc: -10, DeltaNative: -100},
		{Asset: "LTC", DeltaBtc: -8, DeltaNative: -2000},
	}

	res := runEngine(t, DefaultConfig(), deltas,
		[]exchange.PairMeta{btcUsdt(), halted, orphan, unpriced, misassigned},
		map[string]exchange.Side{
			"BTCUSDT": exchange.SideBuy,
			"XRPUSDT": exchange.SideBuy,
			"LTCUSDT": exchange.SideBuy,
			"ETHUSDT": exchange.SideSell, // targets USDT, not the ETH collector
		},
		map[string]float64{"BTCUSDT": btcUsdtPrice, "ETHUSDT": 2000},
		map[string]float64{"BTC": 0.9, "ETH": 0.8, "LTC": 0.7, "XRP": 0.6},
	)

	assert.Len(t, res.Orders, 1, "only BTCUSDT is viable")

	codes := map[string]DropCode{}
	for _, d := range res.Dropped {
		_, seen := codes[d.Symbol]
		assert.False(t, seen, "symbol %s dropped twice", d.Symbol)
		codes[d.Symbol] = d.Code
	}
	assert.Equal(t, DropPairNotTradable, codes["XRPUSDT"])
	assert.Equal(t, DropNoProvider, codes["ETHBNB"])
	assert.Equal(t, DropPriceUnavailable, codes["LTCUSDT"])
	assert.Equal(t, DropAssignmentMismatch, codes["ETHUSDT"])

	for _, order := range res.Orders {
		_, alsoDropped := codes[order.Symbol]
		assert.False(t, alsoDropped, "symbol %s both accepted and dropped", order.Symbol)
	}
}

func TestPhaseEnforcement(t *testing.T) {
	e := NewEngine(DefaultConfig())
	assert.Equal(t, PhaseIdle, e.Phase())

	_, err := e.Match()
	assert.Error(t, err, "matching before provisioning")

	require.NoError(t, e.Provision(nil))
	assert.Error(t, e.Provision(nil), "double provision")

	require.NoError(t, e.BuildCandidates(nil, nil, nil, nil))
	_, err = e.Match()
	require.NoError(t, err)

	_, err = e.Match()
	assert.Error(t, err, "terminal engines do not rerun")
}

func TestFloorToStep(t *testing.T) {
	assert.InDelta(t, 0.0003, floorToStep(0.00039, 0.0001), 1e-12)
	assert.InDelta(t, 0.0003, floorToStep(0.0003, 0.0001), 1e-12, "exact boundary stays")
	assert.Zero(t, floorToStep(0.00009, 0.0001))
	assert.Equal(t, 1.5, floorToStep(1.5, 0), "zero step passes through")
}
