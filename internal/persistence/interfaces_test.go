package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightSnapshotValidate(t *testing.T) {
	valid := WeightSnapshot{
		Symbol: "ETHBTC",
		Tree:   json.RawMessage(`{"kind":"group","weight":1}`),
	}
	require.NoError(t, valid.Validate())

	noSymbol := valid
	noSymbol.Symbol = ""
	assert.Error(t, noSymbol.Validate())

	emptyTree := valid
	emptyTree.Tree = nil
	assert.Error(t, emptyTree.Validate())

	badJSON := valid
	badJSON.Tree = json.RawMessage(`{"kind":`)
	assert.Error(t, badJSON.Validate())
}

func TestCycleReportValidate(t *testing.T) {
	now := time.Now()
	valid := CycleReport{
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
		PairScores: map[string]float64{"ETHBTC": 0.61},
		Allocation: map[string]float64{"ETH": 0.6, "BTC": 0.4},
		Orders:     2,
		Drops:      map[string]int{"collector_satisfied": 1},
	}
	require.NoError(t, valid.Validate())

	backwards := valid
	backwards.FinishedAt = now.Add(-time.Second)
	assert.Error(t, backwards.Validate())

	badScore := valid
	badScore.PairScores = map[string]float64{"ETHBTC": 1.2}
	assert.Error(t, badScore.Validate())

	negativeAlloc := valid
	negativeAlloc.Allocation = map[string]float64{"ETH": -0.1}
	assert.Error(t, negativeAlloc.Validate())
}
