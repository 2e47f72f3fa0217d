// internal/ranking/signal/signal.go
package signal

import (
	"math"
	"time"
)

// Clamp01 truncates x to [0,1]. NaN maps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// LogScaleCount maps a non-negative count onto [0,1] on a log curve between low and high.
func LogScaleCount(value, low, high float64) float64 {
	if math.IsNaN(value) || value < 0 {
		value = 0
	}
	if low < 0 {
		low = 0
	}
	if high <= low {
		if value >= high {
			return 1
		}
		return 0
	}

	num := math.Log1p(value) - math.Log1p(low)
	den := math.Log1p(high) - math.Log1p(low)
	return Clamp01(num / den)
}

// ExponentialDecay returns exp(-elapsed/halfLife). Both arguments share a unit.
func ExponentialDecay(elapsed, halfLife float64) float64 {
	if math.IsNaN(elapsed) || math.IsNaN(halfLife) {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if halfLife <= 0 {
		if elapsed == 0 {
			return 1
		}
		return 0
	}
	return Clamp01(math.Exp(-elapsed / halfLife))
}

// EaseOut applies 1-(1-x)^2 to the clamped input.
func EaseOut(x float64) float64 {
	x = Clamp01(x)
	return 1 - (1-x)*(1-x)
}

// Round rounds half away from zero to the given number of decimal places.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// Percent converts a unit value to an integer percentage.
func Percent(x float64) int {
	return int(math.Round(Clamp01(x) * 100))
}

// MinutesBetween is the signed number of minutes from -> to. A zero from yields 0.
func MinutesBetween(from, to time.Time) float64 {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return to.Sub(from).Minutes()
}
