package signals

import "fmt"

// Key is a stable child identifier inside a signal tree. Every key used by
// the builder is declared here so that lookups can be checked against the
// registry instead of relying on free-form strings.
type Key string

// Top-level sentiment branches.
const (
	KeyBullish Key = "bullish"
	KeyBearish Key = "bearish"
)

// Technique categories per interval.
const (
	KeyOscillators  Key = "oscillators"
	KeyCandlesticks Key = "candlesticks"
	KeyMoveBack     Key = "moveback"
	KeyCross        Key = "cross"
	KeyPriceChange  Key = "pricechange"
)

// Oscillator signals.
const (
	KeyRSI        Key = "rsi"
	KeyStochastic Key = "stochastic"
	KeyMACD       Key = "macd"
)

// Moving-average move-back signals (price distance from the average).
const (
	KeyMoveBackSMA8  Key = "sma8"
	KeyMoveBackSMA21 Key = "sma21"
	KeyMoveBackSMA50 Key = "sma50"
)

// Moving-average cross signals.
const (
	KeyCrossEMA9EMA21   Key = "ema9/ema21"
	KeyCrossSMA50SMA200 Key = "sma50/sma200"
)

// Price-change signals by candle lookback.
const (
	KeyChange1  Key = "change1"
	KeyChange5  Key = "change5"
	KeyChange10 Key = "change10"
)

// CandleDepthKey returns the key of a candlestick lookback depth level.
func CandleDepthKey(depth int) Key {
	return Key(fmt.Sprintf("depth%d", depth))
}

// Ordered key sets. Order matters for the candlestick sets (diminishing
// credit fold) and is kept fixed everywhere else for determinism.
var (
	Categories = []Key{KeyOscillators, KeyCandlesticks, KeyMoveBack, KeyCross, KeyPriceChange}

	OscillatorKeys  = []Key{KeyRSI, KeyStochastic, KeyMACD}
	MoveBackKeys    = []Key{KeyMoveBackSMA8, KeyMoveBackSMA21, KeyMoveBackSMA50}
	CrossKeys       = []Key{KeyCrossEMA9EMA21, KeyCrossSMA50SMA200}
	PriceChangeKeys = []Key{KeyChange1, KeyChange5, KeyChange10}
)

// CandleDepthLevels is the number of lookback depth levels evaluated for
// candlestick patterns (depth 0 = the latest window).
const CandleDepthLevels = 3
