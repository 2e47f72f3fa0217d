// internal/ranking/feedrank/feedrank.go
package feedrank

import (
	"sort"
	"time"

	"escort-ranking-workers/internal/ranking/signal"
)

const freshnessHalfLifeMinutes = 240.0

// Weights applied to eased inputs.
const (
	weightFreshness   = 0.28
	weightQuality     = 0.18
	weightTrust       = 0.18
	weightLaneDensity = 0.16
	weightFillSpeed   = 0.12
	weightBackhaul    = 0.08
)

const (
	penaltyIncomplete   = 0.12
	penaltyLowTrust     = 0.10
	penaltyLowQuality   = 0.08
	lowSignalThreshold  = 0.35
	boostRateVisible    = 0.03
	boostVerifiedPoster = 0.02
)

type Inputs struct {
	PostedAt    time.Time
	Quality     float64
	PosterTrust float64
	LaneDensity float64
	FillSpeed   float64
	Backhaul    float64

	RateVisible    bool
	PosterVerified bool // verified at tier 2 or above
	Incomplete     bool
}

type Result struct {
	Score float64 `json:"score"`
}

// Compose returns the 0-100 feed sort key of one load, rounded to one decimal.
func Compose(in Inputs, now time.Time) Result {
	score := weightFreshness*signal.EaseOut(freshness(in.PostedAt, now)) +
		weightQuality*signal.EaseOut(in.Quality) +
		weightTrust*signal.EaseOut(in.PosterTrust) +
		weightLaneDensity*signal.EaseOut(in.LaneDensity) +
		weightFillSpeed*signal.EaseOut(in.FillSpeed) +
		weightBackhaul*signal.EaseOut(in.Backhaul)

	// Penalties look at raw values so easing cannot hide a weak signal.
	if in.Incomplete {
		score -= penaltyIncomplete
	}
	if signal.Clamp01(in.PosterTrust) < lowSignalThreshold {
		score -= penaltyLowTrust
	}
	if signal.Clamp01(in.Quality) < lowSignalThreshold {
		score -= penaltyLowQuality
	}

	if in.RateVisible {
		score += boostRateVisible
	}
	if in.PosterVerified {
		score += boostVerifiedPoster
	}

	return Result{Score: signal.Round(signal.Clamp01(score)*100, 1)}
}

// freshness is zero for a load without a posting time.
func freshness(postedAt, now time.Time) float64 {
	if postedAt.IsZero() {
		return 0
	}
	return signal.ExponentialDecay(signal.MinutesBetween(postedAt, now), freshnessHalfLifeMinutes)
}

// Entry is one load in a ranked feed. Index is the caller's position for the
// load and survives reordering, so repeated load ids stay distinguishable.
type Entry struct {
	LoadID string
	Index  int
	Inputs Inputs
	Score  float64
}

// RankFeed scores every entry and orders them by descending score. Ties keep input order.
func RankFeed(entries []Entry, now time.Time) []Entry {
	ranked := make([]Entry, len(entries))
	for i, e := range entries {
		e.Score = Compose(e.Inputs, now).Score
		ranked[i] = e
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
