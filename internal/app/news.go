package app

import "context"

// NewsSource supplies per-asset news sentiment in [-1, 1]. Implementations
// may call external APIs; the orchestrator treats failures as neutral.
type NewsSource interface {
	Scores(ctx context.Context, assets []string) (map[string]float64, error)
}

// NeutralNews is the default source: every asset scores 0, so the news
// component never tilts the allocation.
type NeutralNews struct{}

// Scores returns 0 for every requested asset.
func (NeutralNews) Scores(_ context.Context, assets []string) (map[string]float64, error) {
	out := make(map[string]float64, len(assets))
	for _, a := range assets {
		out[a] = 0
	}
	return out, nil
}
