package signals

// Tree construction. A pair tree is rebuilt from scratch every analysis
// cycle: fresh leaf scores from the adapters, weights carried over from the
// persisted tree of the previous cycle (equal weights where no history
// exists).
//
// Shape:
//   pair (sentiment fold)
//     bullish | bearish
//       interval
//         oscillators | candlesticks | moveback | cross | pricechange
//           candlesticks: depth level -> named pattern (diminishing fold)

// BranchScores carries one branch's fresh leaf scores for a single
// interval. All scores are in [0,1]; candlestick scores are binary hits.
type BranchScores struct {
	Oscillators map[Key]float64
	MoveBack    map[Key]float64
	Cross       map[Key]float64
	PriceChange map[Key]float64

	// CandleDepths maps pattern key to hit per lookback depth, index 0 =
	// latest window. CandleOrder fixes the diminishing-fold order.
	CandleDepths []map[Key]float64
	CandleOrder  []Key
}

// IntervalScores is the full adapter output for one interval.
type IntervalScores struct {
	Bull BranchScores
	Bear BranchScores
}

// BuildPairTree assembles a pair tree with equal sibling weights from per-
// interval adapter scores. Interval order fixes nothing semantically but is
// kept for deterministic traversal.
func BuildPairTree(intervalKeys []Key, byInterval map[Key]IntervalScores) *Group {
	root := &Group{Weight: 1, Fold: FoldSentiment, Children: map[Key]Node{}}

	bull := NewGroup(0.5)
	bear := NewGroup(0.5)
	bear.Mirror = true

	w := equalWeight(len(intervalKeys))
	for _, ik := range intervalKeys {
		scores := byInterval[ik]
		bull.Children[ik] = buildBranchInterval(scores.Bull, w)
		bear.Children[ik] = buildBranchInterval(scores.Bear, w)
	}

	root.Children[KeyBullish] = bull
	root.Children[KeyBearish] = bear
	return root
}

func buildBranchInterval(scores BranchScores, weight float64) *Group {
	interval := NewGroup(weight)
	catWeight := equalWeight(len(Categories))

	interval.Children[KeyOscillators] = buildLeafSet(scores.Oscillators, OscillatorKeys, catWeight)
	interval.Children[KeyMoveBack] = buildLeafSet(scores.MoveBack, MoveBackKeys, catWeight)
	interval.Children[KeyCross] = buildLeafSet(scores.Cross, CrossKeys, catWeight)
	interval.Children[KeyPriceChange] = buildLeafSet(scores.PriceChange, PriceChangeKeys, catWeight)
	interval.Children[KeyCandlesticks] = buildCandleGroup(scores, catWeight)
	return interval
}

func buildLeafSet(scores map[Key]float64, keys []Key, weight float64) *Group {
	g := NewGroup(weight)
	w := equalWeight(len(keys))
	for _, k := range keys {
		g.Children[k] = &Signal{Score: scores[k], Weight: w}
	}
	return g
}

func buildCandleGroup(scores BranchScores, weight float64) *Group {
	candles := NewGroup(weight)
	depthWeight := equalWeight(len(scores.CandleDepths))
	patternWeight := equalWeight(len(scores.CandleOrder))

	for depth, hits := range scores.CandleDepths {
		level := &Group{
			Weight:   depthWeight,
			Fold:     FoldDiminishing,
			Order:    scores.CandleOrder,
			Children: map[Key]Node{},
		}
		for _, pk := range scores.CandleOrder {
			level.Children[pk] = &Signal{Score: hits[pk], Weight: patternWeight}
		}
		candles.Children[CandleDepthKey(depth)] = level
	}
	return candles
}

func equalWeight(n int) float64 {
	if n == 0 {
		return 0
	}
	return 1 / float64(n)
}

// AdoptWeights copies weights from a persisted tree of the same shape onto
// the freshly built tree, then renormalizes each level so that partial
// shape drift (added or removed signals) cannot break the sum-to-1
// invariant. Fresh equal weights are kept wherever the persisted tree has
// no matching child.
func AdoptWeights(fresh, persisted *Group) {
	if persisted == nil {
		return
	}
	for key, child := range fresh.Children {
		prev, ok := persisted.Children[key]
		if !ok {
			continue
		}
		child.SetNodeWeight(prev.NodeWeight())
		if childGroup, ok := child.(*Group); ok {
			if prevGroup, ok := prev.(*Group); ok {
				AdoptWeights(childGroup, prevGroup)
			}
		}
	}
	normalizeLevel(fresh)
}

func normalizeLevel(g *Group) {
	sum := 0.0
	for _, child := range g.Children {
		sum += child.NodeWeight()
	}
	if sum <= 0 {
		w := equalWeight(len(g.Children))
		for _, child := range g.Children {
			child.SetNodeWeight(w)
		}
		return
	}
	for _, child := range g.Children {
		child.SetNodeWeight(child.NodeWeight() / sum)
	}
}
