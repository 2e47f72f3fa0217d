// internal/ranking/exposure/config.go
package exposure

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultMinTrustGate = 40.0
	DefaultDiversityCap = 3
	DefaultLimit        = 20
)

// Weights are the composite exposure weights.
type Weights struct {
	Trust      float64 `json:"trust" mapstructure:"trust"`
	ContextFit float64 `json:"contextFit" mapstructure:"context_fit"`
	Freshness  float64 `json:"freshness" mapstructure:"freshness"`
	ColdStart  float64 `json:"coldStart" mapstructure:"cold_start"`
	PaidBoost  float64 `json:"paidBoost" mapstructure:"paid_boost"`
}

// AllocationConfig is read-only for the ranking engine. Callers pass it per request.
type AllocationConfig struct {
	Weights      Weights `json:"weights" mapstructure:"weights"`
	MinTrustGate float64 `json:"minTrustGate" mapstructure:"min_trust_gate"`

	// Maximum appearances of one operator per session window. Enforced by the caller.
	DiversityCap int `json:"diversityCap" mapstructure:"diversity_cap"`
}

func DefaultAllocationConfig() AllocationConfig {
	return AllocationConfig{
		Weights: Weights{
			Trust:      0.45,
			ContextFit: 0.25,
			Freshness:  0.12,
			ColdStart:  0.08,
			PaidBoost:  0.10,
		},
		MinTrustGate: DefaultMinTrustGate,
		DiversityCap: DefaultDiversityCap,
	}
}

var ErrInvalidConfig = errors.New("invalid allocation config")

// Validate rejects configs that cannot produce bounded scores.
func (c AllocationConfig) Validate() error {
	w := []struct {
		name  string
		value float64
	}{
		{"trust", c.Weights.Trust},
		{"contextFit", c.Weights.ContextFit},
		{"freshness", c.Weights.Freshness},
		{"coldStart", c.Weights.ColdStart},
		{"paidBoost", c.Weights.PaidBoost},
	}

	sum := 0.0
	for _, item := range w {
		if math.IsNaN(item.value) || item.value < 0 {
			return fmt.Errorf("%w: weight %s must be non-negative, got %v", ErrInvalidConfig, item.name, item.value)
		}
		sum += item.value
	}
	if sum == 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrInvalidConfig)
	}
	if sum > 1.0+1e-6 {
		return fmt.Errorf("%w: weights sum to %.4f, must not exceed 1", ErrInvalidConfig, sum)
	}
	if math.IsNaN(c.MinTrustGate) || c.MinTrustGate < 0 || c.MinTrustGate > 100 {
		return fmt.Errorf("%w: min trust gate %v outside [0,100]", ErrInvalidConfig, c.MinTrustGate)
	}
	if c.DiversityCap < 0 {
		return fmt.Errorf("%w: diversity cap must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// OrDefault returns c when valid and the compiled-in defaults otherwise.
func (c AllocationConfig) OrDefault() AllocationConfig {
	if err := c.Validate(); err != nil {
		return DefaultAllocationConfig()
	}
	return c
}
