// internal/ranking/exposure/entropy.go
package exposure

import "math/rand/v2"

// Entropy yields uniform draws in [0,1).
type Entropy interface {
	Float64() float64
}

type systemEntropy struct{}

func (systemEntropy) Float64() float64 { return rand.Float64() }

// SystemEntropy draws from the runtime's randomly seeded generator and is safe for concurrent use.
func SystemEntropy() Entropy { return systemEntropy{} }

type zeroEntropy struct{}

func (zeroEntropy) Float64() float64 { return 0.5 }

// ZeroEntropy produces no perturbation, making ranking deterministic.
func ZeroEntropy() Entropy { return zeroEntropy{} }
