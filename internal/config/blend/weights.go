// Package blend loads the allocation blend weights from YAML and validates
// them before the planner ever sees them.
package blend

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/sileniced/bntradebot/internal/allocation"
)

// WeightsConfig is the on-disk shape of the blend weights file.
type WeightsConfig struct {
	Blend      BlendSection      `yaml:"blend"`
	Validation ValidationSection `yaml:"validation"`
}

// BlendSection holds the three blend components.
type BlendSection struct {
	Tech   float64 `yaml:"tech"`
	Market float64 `yaml:"market"`
	News   float64 `yaml:"news"`
}

// ValidationSection holds loader-side validation parameters.
type ValidationSection struct {
	SumTolerance float64 `yaml:"sum_tolerance"`
	MinWeight    float64 `yaml:"min_weight"`
}

// WeightsLoader loads and validates blend weights.
type WeightsLoader struct {
	config *WeightsConfig
}

// NewWeightsLoader creates an empty loader.
func NewWeightsLoader() *WeightsLoader {
	return &WeightsLoader{}
}

// LoadFromFile loads blend weights from a YAML file.
func (wl *WeightsLoader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read weights file %s: %w", path, err)
	}

	var config WeightsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parse weights file %s: %w", path, err)
	}

	if err := wl.validateConfig(&config); err != nil {
		return fmt.Errorf("weights validation failed: %w", err)
	}

	wl.config = &config
	return nil
}

// LoadDefault loads the built-in blend.
func (wl *WeightsLoader) LoadDefault() error {
	config := &WeightsConfig{
		Blend: BlendSection{
			Tech:   0.5,
			Market: 0.3,
			News:   0.2,
		},
		Validation: ValidationSection{
			SumTolerance: 0.001,
			MinWeight:    0.0,
		},
	}

	if err := wl.validateConfig(config); err != nil {
		return fmt.Errorf("default weights validation failed: %w", err)
	}

	wl.config = config
	return nil
}

// Weights returns the loaded blend as planner weights.
func (wl *WeightsLoader) Weights() (allocation.BlendWeights, error) {
	if wl.config == nil {
		return allocation.BlendWeights{}, fmt.Errorf("weights not loaded - call LoadFromFile or LoadDefault first")
	}
	return allocation.BlendWeights{
		Tech:   wl.config.Blend.Tech,
		Market: wl.config.Blend.Market,
		News:   wl.config.Blend.News,
	}, nil
}

func (wl *WeightsLoader) validateConfig(config *WeightsConfig) error {
	tolerance := config.Validation.SumTolerance
	if tolerance <= 0 {
		tolerance = 0.001
	}

	sum := config.Blend.Tech + config.Blend.Market + config.Blend.News
	if math.Abs(sum-1.0) > tolerance {
		return fmt.Errorf("blend weights sum to %.4f, expected 1.0 within %.4f", sum, tolerance)
	}

	minWeight := config.Validation.MinWeight
	for name, w := range map[string]float64{
		"tech":   config.Blend.Tech,
		"market": config.Blend.Market,
		"news":   config.Blend.News,
	} {
		if w < minWeight {
			return fmt.Errorf("blend weight %s = %.4f below minimum %.4f", name, w, minWeight)
		}
	}
	return nil
}
