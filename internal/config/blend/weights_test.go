package blend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefault(t *testing.T) {
	wl := NewWeightsLoader()
	require.NoError(t, wl.LoadDefault())

	weights, err := wl.Weights()
	require.NoError(t, err)
	assert.Equal(t, 0.5, weights.Tech)
	assert.Equal(t, 0.3, weights.Market)
	assert.Equal(t, 0.2, weights.News)
	assert.NoError(t, weights.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
blend:
  tech: 0.6
  market: 0.25
  news: 0.15
validation:
  sum_tolerance: 0.001
`), 0o644))

	wl := NewWeightsLoader()
	require.NoError(t, wl.LoadFromFile(path))

	weights, err := wl.Weights()
	require.NoError(t, err)
	assert.Equal(t, 0.6, weights.Tech)
}

func TestRejectsWeightsNotSummingToOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
blend:
  tech: 0.6
  market: 0.6
  news: 0.2
`), 0o644))

	wl := NewWeightsLoader()
	err := wl.LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum")
}

func TestWeightsBeforeLoadFails(t *testing.T) {
	wl := NewWeightsLoader()
	_, err := wl.Weights()
	require.Error(t, err)
}
