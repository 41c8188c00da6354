package signals

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// WeightSumTolerance is the floating tolerance used when checking that a
// group's child weights sum to 1.
const WeightSumTolerance = 1e-9

var (
	// ErrUnknownKey reports a child lookup for a key the group does not
	// have. This is a programming-contract violation, not a data error.
	ErrUnknownKey = errors.New("signals: unknown child key")

	// ErrWeightSum reports a group whose child weights do not sum to 1.
	ErrWeightSum = errors.New("signals: child weights do not sum to 1")
)

// Fold selects how a group folds its children into one score.
type Fold string

const (
	// FoldWeighted is the default weight-sum fold.
	FoldWeighted Fold = "weighted"

	// FoldDiminishing folds an ordered set of binary detectors with
	// diminishing credit for successive confirmations.
	FoldDiminishing Fold = "diminishing"

	// FoldSentiment folds exactly two children, bullish and bearish, into
	// 0.5 + (bull − bear)/2 clamped to [0,1].
	FoldSentiment Fold = "sentiment"
)

// Node is a signal tree node: either a *Signal leaf or a *Group.
type Node interface {
	// NodeWeight returns the node's weight among its siblings.
	NodeWeight() float64

	// SetNodeWeight overwrites the node's weight.
	SetNodeWeight(w float64)

	node()
}

// Signal is a leaf: one weak predictor scored in [0,1] (1 = maximally
// bullish within its branch) with a weight that persists across cycles.
type Signal struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

func (s *Signal) NodeWeight() float64     { return s.Weight }
func (s *Signal) SetNodeWeight(w float64) { s.Weight = w }
func (s *Signal) node()                   {}

// Group is an internal node mapping child keys to signals or nested groups.
// Invariant: the weights of the direct children sum to 1.
type Group struct {
	Weight   float64
	Fold     Fold
	Children map[Key]Node

	// Order fixes the child processing order for FoldDiminishing. Ignored
	// by the other folds.
	Order []Key

	// Mirror marks a branch judged against the mirrored outcome label
	// (1 − label) during weight adaptation, e.g. bearish pattern sets.
	Mirror bool
}

func (g *Group) NodeWeight() float64     { return g.Weight }
func (g *Group) SetNodeWeight(w float64) { g.Weight = w }
func (g *Group) node()                   {}

// NewGroup returns an empty weighted group with the given weight.
func NewGroup(weight float64) *Group {
	return &Group{Weight: weight, Fold: FoldWeighted, Children: map[Key]Node{}}
}

// Child returns the child for key, or ErrUnknownKey.
func (g *Group) Child(key Key) (Node, error) {
	child, ok := g.Children[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, string(key))
	}
	return child, nil
}

// SortedKeys returns the group's child keys in deterministic order: the
// declared Order when present, otherwise lexicographic.
func (g *Group) SortedKeys() []Key {
	if len(g.Order) > 0 {
		return g.Order
	}
	keys := make([]Key, 0, len(g.Children))
	for k := range g.Children {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Score computes the group's score bottom-up. Pure; does not mutate the
// tree. Leaf scores in [0,1] and valid sibling weights yield a result in
// [0,1] at every fold.
func (g *Group) Score() (float64, error) {
	switch g.Fold {
	case FoldSentiment:
		return g.scoreSentiment()
	case FoldDiminishing:
		return g.scoreDiminishing()
	default:
		return g.scoreWeighted()
	}
}

func (g *Group) scoreWeighted() (float64, error) {
	total := 0.0
	for _, key := range g.SortedKeys() {
		child, err := g.Child(key)
		if err != nil {
			return 0, err
		}
		score, err := nodeScore(child)
		if err != nil {
			return 0, fmt.Errorf("child %q: %w", string(key), err)
		}
		total += child.NodeWeight() * score
	}
	return total, nil
}

// scoreDiminishing folds an ordered set of binary detectors. The k-th
// confirming signal contributes weight·(2 − 2k/n); non-confirming signals
// contribute nothing. Correlated confirmations therefore cannot saturate
// the set score.
func (g *Group) scoreDiminishing() (float64, error) {
	order := g.Order
	if len(order) == 0 {
		order = g.SortedKeys()
	}
	n := float64(len(order))
	if n == 0 {
		return 0, nil
	}

	total := 0.0
	confirmed := 0
	for _, key := range order {
		child, err := g.Child(key)
		if err != nil {
			return 0, err
		}
		score, err := nodeScore(child)
		if err != nil {
			return 0, fmt.Errorf("child %q: %w", string(key), err)
		}
		if score <= 0.5 {
			continue
		}
		credit := 2 - 2*float64(confirmed)/n
		total += child.NodeWeight() * credit * score
		confirmed++
	}
	return clamp01(total), nil
}

func (g *Group) scoreSentiment() (float64, error) {
	bull, err := g.Child(KeyBullish)
	if err != nil {
		return 0, err
	}
	bear, err := g.Child(KeyBearish)
	if err != nil {
		return 0, err
	}
	bullScore, err := nodeScore(bull)
	if err != nil {
		return 0, fmt.Errorf("bullish branch: %w", err)
	}
	bearScore, err := nodeScore(bear)
	if err != nil {
		return 0, fmt.Errorf("bearish branch: %w", err)
	}
	return clamp01(0.5 + (bullScore-bearScore)/2), nil
}

func nodeScore(n Node) (float64, error) {
	switch v := n.(type) {
	case *Signal:
		return v.Score, nil
	case *Group:
		return v.Score()
	}
	return 0, fmt.Errorf("signals: unknown node type %T", n)
}

// Validate walks the tree and checks the sibling-weight invariant at every
// group level.
func (g *Group) Validate() error {
	sum := 0.0
	for _, key := range g.SortedKeys() {
		child := g.Children[key]
		sum += child.NodeWeight()
		if sub, ok := child.(*Group); ok {
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("%q: %w", string(key), err)
			}
		}
	}
	if len(g.Children) > 0 && math.Abs(sum-1) > WeightSumTolerance {
		return fmt.Errorf("%w: sum=%.12f", ErrWeightSum, sum)
	}
	return nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// JSON codec. Nodes serialize with a "kind" discriminator so the persisted
// weight state round-trips through the tagged variant.

type nodeJSON struct {
	Kind     string                  `json:"kind"`
	Score    float64                 `json:"score,omitempty"`
	Weight   float64                 `json:"weight"`
	Fold     Fold                    `json:"fold,omitempty"`
	Mirror   bool                    `json:"mirror,omitempty"`
	Order    []Key                   `json:"order,omitempty"`
	Children map[Key]json.RawMessage `json:"children,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *Signal) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{Kind: "signal", Score: s.Score, Weight: s.Weight})
}

// MarshalJSON implements json.Marshaler.
func (g *Group) MarshalJSON() ([]byte, error) {
	children := make(map[Key]json.RawMessage, len(g.Children))
	for key, child := range g.Children {
		raw, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		children[key] = raw
	}
	return json.Marshal(nodeJSON{
		Kind:     "group",
		Weight:   g.Weight,
		Fold:     g.Fold,
		Mirror:   g.Mirror,
		Order:    g.Order,
		Children: children,
	})
}

// UnmarshalNode decodes a node serialized by the codec above.
func UnmarshalNode(data []byte) (Node, error) {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Kind {
	case "signal":
		return &Signal{Score: raw.Score, Weight: raw.Weight}, nil
	case "group":
		g := &Group{
			Weight:   raw.Weight,
			Fold:     raw.Fold,
			Mirror:   raw.Mirror,
			Order:    raw.Order,
			Children: make(map[Key]Node, len(raw.Children)),
		}
		if g.Fold == "" {
			g.Fold = FoldWeighted
		}
		for key, childRaw := range raw.Children {
			child, err := UnmarshalNode(childRaw)
			if err != nil {
				return nil, fmt.Errorf("child %q: %w", string(key), err)
			}
			g.Children[key] = child
		}
		return g, nil
	}
	return nil, fmt.Errorf("signals: unknown node kind %q", raw.Kind)
}

// UnmarshalGroup decodes a node and requires it to be a group.
func UnmarshalGroup(data []byte) (*Group, error) {
	node, err := UnmarshalNode(data)
	if err != nil {
		return nil, err
	}
	g, ok := node.(*Group)
	if !ok {
		return nil, errors.New("signals: expected a group node")
	}
	return g, nil
}
