package signals

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedFold(t *testing.T) {
	g := NewGroup(1)
	g.Children["a"] = &Signal{Score: 1.0, Weight: 0.5}
	g.Children["b"] = &Signal{Score: 0.0, Weight: 0.5}

	score, err := g.Score()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-12)
}

func TestWeightedFoldNested(t *testing.T) {
	inner := NewGroup(0.4)
	inner.Children["x"] = &Signal{Score: 1.0, Weight: 1.0}

	g := NewGroup(1)
	g.Children["leaf"] = &Signal{Score: 0.5, Weight: 0.6}
	g.Children["group"] = inner

	score, err := g.Score()
	require.NoError(t, err)
	assert.InDelta(t, 0.6*0.5+0.4*1.0, score, 1e-12)
}

func TestDiminishingFold(t *testing.T) {
	// Four binary detectors, equal weights. First confirmation earns
	// double credit, later ones progressively less.
	g := &Group{
		Weight:   1,
		Fold:     FoldDiminishing,
		Order:    []Key{"p1", "p2", "p3", "p4"},
		Children: map[Key]Node{},
	}
	for _, k := range g.Order {
		g.Children[k] = &Signal{Score: 0, Weight: 0.25}
	}

	score, err := g.Score()
	require.NoError(t, err)
	assert.Zero(t, score, "no confirmations")

	g.Children["p1"].(*Signal).Score = 1
	score, err = g.Score()
	require.NoError(t, err)
	assert.InDelta(t, 0.25*2.0, score, 1e-12, "first confirmation counts double")

	g.Children["p2"].(*Signal).Score = 1
	score, err = g.Score()
	require.NoError(t, err)
	assert.InDelta(t, 0.25*2.0+0.25*1.5, score, 1e-12, "second confirmation earns 2−2/4")

	for _, k := range g.Order {
		g.Children[k].(*Signal).Score = 1
	}
	score, err = g.Score()
	require.NoError(t, err)
	assert.LessOrEqual(t, score, 1.0, "co-firing set cannot saturate past 1")
}

func TestSentimentFold(t *testing.T) {
	cases := []struct {
		name       string
		bull, bear float64
		want       float64
	}{
		{"neutral", 0.5, 0.5, 0.5},
		{"all bull", 1.0, 0.0, 1.0},
		{"all bear", 0.0, 1.0, 0.0},
		{"lean bull", 0.7, 0.4, 0.65},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &Group{Weight: 1, Fold: FoldSentiment, Children: map[Key]Node{
				KeyBullish: &Signal{Score: tc.bull, Weight: 0.5},
				KeyBearish: &Signal{Score: tc.bear, Weight: 0.5},
			}}
			score, err := g.Score()
			require.NoError(t, err)
			assert.InDelta(t, tc.want, score, 1e-12)
		})
	}
}

func TestUnknownKeyIsError(t *testing.T) {
	g := NewGroup(1)
	g.Children["known"] = &Signal{Score: 0.5, Weight: 1}

	_, err := g.Child("missing")
	assert.ErrorIs(t, err, ErrUnknownKey)

	sentiment := &Group{Weight: 1, Fold: FoldSentiment, Children: map[Key]Node{}}
	_, err = sentiment.Score()
	assert.ErrorIs(t, err, ErrUnknownKey, "sentiment fold requires both branches")
}

func TestValidateWeightSums(t *testing.T) {
	g := NewGroup(1)
	g.Children["a"] = &Signal{Score: 0.5, Weight: 0.7}
	g.Children["b"] = &Signal{Score: 0.5, Weight: 0.3}
	assert.NoError(t, g.Validate())

	g.Children["b"].(*Signal).Weight = 0.4
	assert.ErrorIs(t, g.Validate(), ErrWeightSum)
}

func TestRootScoreBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		tree := randomTree(rng, 3)
		require.NoError(t, tree.Validate())
		score, err := tree.Score()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

// randomTree builds a random valid tree: leaf scores in [0,1], sibling
// weights normalized to 1 at every level.
func randomTree(rng *rand.Rand, depth int) *Group {
	g := &Group{Weight: 1, Fold: FoldSentiment, Children: map[Key]Node{
		KeyBullish: randomSubtree(rng, depth, 0.5),
		KeyBearish: randomSubtree(rng, depth, 0.5),
	}}
	return g
}

func randomSubtree(rng *rand.Rand, depth int, weight float64) Node {
	if depth == 0 || rng.Float64() < 0.3 {
		return &Signal{Score: rng.Float64(), Weight: weight}
	}
	n := 2 + rng.Intn(3)
	g := &Group{Weight: weight, Fold: FoldWeighted, Children: map[Key]Node{}}
	raw := make([]float64, n)
	sum := 0.0
	for i := range raw {
		raw[i] = rng.Float64() + 1e-3
		sum += raw[i]
	}
	for i := 0; i < n; i++ {
		key := Key(string(rune('a' + i)))
		g.Children[key] = randomSubtree(rng, depth-1, raw[i]/sum)
	}
	// Fix up rounding drift so Validate passes exactly.
	total := 0.0
	for _, child := range g.Children {
		total += child.NodeWeight()
	}
	for _, child := range g.Children {
		child.SetNodeWeight(child.NodeWeight() / total)
	}
	return g
}

func TestJSONRoundTrip(t *testing.T) {
	tree := BuildPairTree([]Key{"1h", "4h"}, map[Key]IntervalScores{
		"1h": testIntervalScores(0.8),
		"4h": testIntervalScores(0.2),
	})
	require.NoError(t, tree.Validate())

	raw, err := json.Marshal(tree)
	require.NoError(t, err)

	decoded, err := UnmarshalGroup(raw)
	require.NoError(t, err)
	require.NoError(t, decoded.Validate())

	want, err := tree.Score()
	require.NoError(t, err)
	got, err := decoded.Score()
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)

	bear, err := decoded.Child(KeyBearish)
	require.NoError(t, err)
	assert.True(t, bear.(*Group).Mirror, "mirror flag survives the codec")
}

func TestAdoptWeightsRenormalizes(t *testing.T) {
	fresh := NewGroup(1)
	fresh.Children["a"] = &Signal{Score: 0.5, Weight: 0.25}
	fresh.Children["b"] = &Signal{Score: 0.5, Weight: 0.25}
	fresh.Children["c"] = &Signal{Score: 0.5, Weight: 0.5}

	persisted := NewGroup(1)
	persisted.Children["a"] = &Signal{Weight: 0.9}
	persisted.Children["b"] = &Signal{Weight: 0.1}
	// "c" is new this cycle: keeps its fresh weight, level renormalizes.

	AdoptWeights(fresh, persisted)

	sum := 0.0
	for _, child := range fresh.Children {
		sum += child.NodeWeight()
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t,
		fresh.Children["a"].NodeWeight(),
		fresh.Children["b"].NodeWeight(),
		"persisted ordering preserved")
}

func testIntervalScores(base float64) IntervalScores {
	leafSet := func(keys []Key) map[Key]float64 {
		m := map[Key]float64{}
		for _, k := range keys {
			m[k] = base
		}
		return m
	}
	branch := func() BranchScores {
		order := []Key{"Hammer", "BullishEngulfing"}
		depths := make([]map[Key]float64, CandleDepthLevels)
		for i := range depths {
			depths[i] = map[Key]float64{"Hammer": 1, "BullishEngulfing": 0}
		}
		return BranchScores{
			Oscillators:  leafSet(OscillatorKeys),
			MoveBack:     leafSet(MoveBackKeys),
			Cross:        leafSet(CrossKeys),
			PriceChange:  leafSet(PriceChangeKeys),
			CandleDepths: depths,
			CandleOrder:  order,
		}
	}
	return IntervalScores{Bull: branch(), Bear: branch()}
}

func TestBuildPairTreeShape(t *testing.T) {
	tree := BuildPairTree([]Key{"1h"}, map[Key]IntervalScores{"1h": testIntervalScores(0.5)})
	require.NoError(t, tree.Validate())

	bull, err := tree.Child(KeyBullish)
	require.NoError(t, err)
	interval, err := bull.(*Group).Child("1h")
	require.NoError(t, err)

	for _, cat := range Categories {
		_, err := interval.(*Group).Child(cat)
		assert.NoError(t, err, "category %s present", cat)
	}

	candles, err := interval.(*Group).Child(KeyCandlesticks)
	require.NoError(t, err)
	level, err := candles.(*Group).Child(CandleDepthKey(0))
	require.NoError(t, err)
	assert.Equal(t, FoldDiminishing, level.(*Group).Fold)

	score, err := tree.Score()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	if math.IsNaN(score) {
		t.Fatal("score is NaN")
	}
}
