// internal/ranking/backhaul/backhaul.go
package backhaul

import (
	"math"
	"time"

	"escort-ranking-workers/internal/ranking/signal"
)

const (
	symmetrySmoothing = 3.0

	nearbyHigh24h = 40.0
	nearbyHigh72h = 120.0

	postingHalfLifeMinutes = 360.0

	minDirectionality = 0.35

	floorProbability   = 0.05
	ceilingProbability = 0.95
	probabilitySpan    = 0.90
)

const (
	weightSymmetry       = 0.40
	weightDensity        = 0.40
	weightTime           = 0.12
	weightDirectionality = 0.08
)

// Context is an immutable snapshot of one lane at one moment.
type Context struct {
	Origin      string
	Destination string

	// 30 day active load counts.
	OutboundActive int
	ReturnActive   int

	OutboundLaneDensity float64
	ReturnLaneDensity   float64

	NearbyLoads24h int
	NearbyLoads72h int

	// Subset of NearbyLoads72h heading back toward Origin. Nil when unknown.
	TowardOrigin *int

	PostedAt time.Time
	LoadDate *time.Time
}

type Breakdown struct {
	LaneSymmetry   float64 `json:"laneSymmetry"`
	NearbyDensity  float64 `json:"nearbyDensity"`
	TimeAlignment  float64 `json:"timeAlignment"`
	Directionality float64 `json:"directionality"`
	Composite      float64 `json:"composite"`
}

type Result struct {
	Probability float64   `json:"probability"`
	Breakdown   Breakdown `json:"breakdown"`
}

// Estimate returns the probability that an operator finishing this lane finds a return load.
// The result always lies in [0.05, 0.95].
func Estimate(c Context, now time.Time) Result {
	b := Breakdown{
		LaneSymmetry:   LaneSymmetry(c.OutboundActive, c.ReturnActive, c.OutboundLaneDensity, c.ReturnLaneDensity),
		NearbyDensity:  NearbyDensity(c.NearbyLoads24h, c.NearbyLoads72h),
		TimeAlignment:  TimeAlignment(c.PostedAt, c.LoadDate, now),
		Directionality: Directionality(c.TowardOrigin, c.NearbyLoads72h),
	}

	b.Composite = signal.Clamp01(
		weightSymmetry*b.LaneSymmetry +
			weightDensity*b.NearbyDensity +
			weightTime*b.TimeAlignment +
			weightDirectionality*b.Directionality,
	)

	probability := math.Min(floorProbability+probabilitySpan*b.Composite, ceilingProbability)

	return Result{
		Probability: probability,
		Breakdown:   b,
	}
}

func LaneSymmetry(outbound, ret int, outboundDensity, returnDensity float64) float64 {
	if outbound < 0 {
		outbound = 0
	}
	if ret < 0 {
		ret = 0
	}

	ratio := (float64(ret) + symmetrySmoothing) / (float64(outbound) + symmetrySmoothing)
	density := (signal.Clamp01(outboundDensity) + signal.Clamp01(returnDensity)) / 2

	return signal.Clamp01(0.75*symmetryStep(ratio) + 0.25*density)
}

func symmetryStep(ratio float64) float64 {
	switch {
	case ratio >= 1.1:
		return 1.0
	case ratio >= 0.9:
		return 0.85
	case ratio >= 0.7:
		return 0.65
	case ratio >= 0.5:
		return 0.45
	default:
		return 0.25
	}
}

func NearbyDensity(count24h, count72h int) float64 {
	return signal.Clamp01(
		0.65*signal.LogScaleCount(float64(count24h), 0, nearbyHigh24h) +
			0.35*signal.LogScaleCount(float64(count72h), 0, nearbyHigh72h),
	)
}

// TimeAlignment decays with posting age and is discounted by how far out the load date sits.
// An unknown posting time is neutral.
func TimeAlignment(postedAt time.Time, loadDate *time.Time, now time.Time) float64 {
	if postedAt.IsZero() {
		return 0.5
	}

	base := signal.ExponentialDecay(signal.MinutesBetween(postedAt, now), postingHalfLifeMinutes)
	return signal.Clamp01(base * loadDateFactor(loadDate, now))
}

func loadDateFactor(loadDate *time.Time, now time.Time) float64 {
	if loadDate == nil || loadDate.IsZero() {
		return 1.0
	}

	days := calendarDaysBetween(now, *loadDate)
	switch {
	case days <= 0:
		return 1.05
	case days == 1:
		return 1.0
	case days <= 3:
		return 0.85
	case days <= 7:
		return 0.65
	default:
		return 0.45
	}
}

func calendarDaysBetween(from, to time.Time) int {
	from = from.UTC()
	to = to.UTC()
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// Directionality rescales the toward-origin share into [0.35, 1.0]. Missing data is neutral.
func Directionality(towardOrigin *int, nearby72h int) float64 {
	if towardOrigin == nil || nearby72h <= 0 {
		return 0.5
	}

	share := signal.Clamp01(float64(*towardOrigin) / float64(nearby72h))
	return minDirectionality + (1-minDirectionality)*share
}
