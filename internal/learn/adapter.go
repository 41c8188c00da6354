// Package learn implements the online weight adaptation rule: after the
// outcome of a past analysis window is known, every weight at every tree
// level is recomputed from how well its signal agreed with the realized
// outcome, then renormalized so siblings sum to 1 again.
package learn

import (
	"errors"
	"fmt"
	"math"

	"github.com/sileniced/bntradebot/internal/signals"
)

// ErrZeroWeightSum reports a sibling level whose unnormalized weights sum
// to zero after adaptation. Callers must guarantee at least one nonzero
// weight entering the update; hitting this is a contract violation.
var ErrZeroWeightSum = errors.New("learn: sibling weight sum is zero")

// CalcWeight returns the unnormalized new weight for a signal that scored
// priorScore with weight priorWeight against the realized outcomeLabel.
// All inputs are in [0,1].
//
// A signal that called the realized direction is pulled toward
// weight·agreementFactor (>weight); one that called it wrong is pulled
// toward a smaller value. The pull scales with how decisive the outcome
// was: a perfectly ambiguous label (0.5) changes nothing.
func CalcWeight(priorScore, priorWeight, outcomeLabel float64) float64 {
	confidence := math.Abs(outcomeLabel-0.5) * 2

	sameDirection := (outcomeLabel > 0.5 && priorScore > 0.5) ||
		(outcomeLabel < 0.5 && priorScore < 0.5)

	var agreementFactor float64
	if sameDirection {
		agreementFactor = 2 - math.Abs(priorScore-outcomeLabel) // (1,2]
	} else {
		agreementFactor = 1 - math.Abs(outcomeLabel-priorScore) // [0,1)
	}

	return priorWeight + (priorWeight*agreementFactor-priorWeight)*confidence
}

// UpdateTree adapts every weight in the tree against outcomeLabel and
// renormalizes each sibling level, bottom-up. Branches marked Mirror (and
// everything below them) are judged against the mirrored label 1−label.
// The tree's leaf scores are left untouched.
func UpdateTree(root *signals.Group, outcomeLabel float64) error {
	if outcomeLabel < 0 || outcomeLabel > 1 {
		return fmt.Errorf("learn: outcome label %v outside [0,1]", outcomeLabel)
	}
	return updateGroup(root, outcomeLabel)
}

func updateGroup(g *signals.Group, label float64) error {
	keys := g.SortedKeys()

	// Capture prior child scores before any weight in the subtree moves.
	priorScores := make(map[signals.Key]float64, len(keys))
	for _, key := range keys {
		child, err := g.Child(key)
		if err != nil {
			return err
		}
		score, err := childScore(child)
		if err != nil {
			return fmt.Errorf("child %q: %w", string(key), err)
		}
		priorScores[key] = score
	}

	// Descend first so lower levels renormalize against prior state.
	for _, key := range keys {
		child := g.Children[key]
		sub, ok := child.(*signals.Group)
		if !ok {
			continue
		}
		childLabel := label
		if sub.Mirror {
			childLabel = 1 - label
		}
		if err := updateGroup(sub, childLabel); err != nil {
			return fmt.Errorf("%q: %w", string(key), err)
		}
	}

	// Adapt this level and renormalize.
	sum := 0.0
	unnormalized := make(map[signals.Key]float64, len(keys))
	for _, key := range keys {
		child := g.Children[key]
		childLabel := label
		if sub, ok := child.(*signals.Group); ok && sub.Mirror {
			// A mirrored branch is judged against the opposite outcome.
			childLabel = 1 - label
		}
		w := CalcWeight(priorScores[key], child.NodeWeight(), childLabel)
		unnormalized[key] = w
		sum += w
	}
	if len(keys) == 0 {
		return nil
	}
	if sum <= 0 {
		return fmt.Errorf("%w (level of %d siblings, label %v)", ErrZeroWeightSum, len(keys), label)
	}
	for _, key := range keys {
		g.Children[key].SetNodeWeight(unnormalized[key] / sum)
	}
	return nil
}

func childScore(n signals.Node) (float64, error) {
	switch v := n.(type) {
	case *signals.Signal:
		return v.Score, nil
	case *signals.Group:
		return v.Score()
	}
	return 0, fmt.Errorf("learn: unknown node type %T", n)
}
