// internal/ranking/urgency/urgency.go
package urgency

import (
	"math"
	"time"

	"escort-ranking-workers/internal/ranking/signal"

	"github.com/sourcegraph/conc/iter"
)

const (
	defaultMedianFillMinutes = 180.0
	deadlineRampMinutes      = 120.0
	inactionRampMinutes      = 60.0
	posterFillScaleMinutes   = 240.0

	scarceOperatorThreshold = 10.0
	scarceRecentThreshold   = 5.0

	// Posted rate premium over the corridor norm that earns the full rate component.
	fullRatePremium = 0.5

	neutral = 0.5
)

const (
	weightTimePressure     = 0.28
	weightCoverageRisk     = 0.25
	weightPosterBehavior   = 0.15
	weightEconomicPressure = 0.12
	weightPredictive       = 0.20
)

// Trend describes the direction of operator availability in a corridor.
type Trend string

const (
	TrendStable  Trend = "stable"
	TrendFalling Trend = "falling"
	TrendRising  Trend = "rising"
)

func (t Trend) factor() float64 {
	switch t {
	case TrendFalling:
		return 1.25
	case TrendRising:
		return 0.75
	default:
		return 1.0
	}
}

// MarketSignals are collaborator-supplied statistics. Nil fields fall back to neutral values.
type MarketSignals struct {
	CorridorMedianFillMinutes float64

	OperatorsWithinRadius   *int
	RecentlyActiveOperators *int
	CorridorStressIndex     *float64
	CorridorFailureRate     *float64

	PosterAvgFillMinutes *float64
	PosterRepostRate     *float64
	PosterCancelRate     *float64

	CorridorNormRate     *float64
	MarketAcceptanceRate *float64

	ShortageProbability30m *float64
	AvailabilityTrend      Trend
}

type Input struct {
	JobID              string
	PostedAt           time.Time
	RequiredBy         *time.Time
	CorridorID         string
	RegionID           string
	QuickPay           bool
	PostedRate         *float64
	LastPosterActionAt *time.Time
	Signals            MarketSignals
}

// Signals holds the five sub-signals as integer percentages.
type Signals struct {
	TimePressure      int `json:"timePressure"`
	CoverageRisk      int `json:"coverageRisk"`
	PosterBehavior    int `json:"posterBehavior"`
	EconomicPressure  int `json:"economicPressure"`
	PredictiveFailure int `json:"predictiveFailure"`
}

type Result struct {
	JobID   string  `json:"jobId"`
	Score   int     `json:"score"`
	Band    Band    `json:"band"`
	Label   string  `json:"label"`
	Color   string  `json:"color"`
	Hint    string  `json:"hint"`
	Signals Signals `json:"signals"`
}

// Score computes the urgency of one job at now.
func Score(in Input, now time.Time) Result {
	tp := TimePressure(in, now)
	cr := CoverageRisk(in.Signals)
	pb := PosterBehavior(in.Signals)
	ep := EconomicPressure(in)
	pf := PredictiveFailure(in.Signals, tp, cr)

	composite := signal.Clamp01(
		weightTimePressure*tp +
			weightCoverageRisk*cr +
			weightPosterBehavior*pb +
			weightEconomicPressure*ep +
			weightPredictive*pf,
	)

	score := int(math.Round(composite * 100))
	band := BandFor(score)

	return Result{
		JobID: in.JobID,
		Score: score,
		Band:  band,
		Label: band.Label(),
		Color: band.Color(),
		Hint:  band.Hint(),
		Signals: Signals{
			TimePressure:      signal.Percent(tp),
			CoverageRisk:      signal.Percent(cr),
			PosterBehavior:    signal.Percent(pb),
			EconomicPressure:  signal.Percent(ep),
			PredictiveFailure: signal.Percent(pf),
		},
	}
}

// ScoreBatch scores every job concurrently. Results keep input order.
func ScoreBatch(inputs []Input, now time.Time) []Result {
	if len(inputs) == 0 {
		return []Result{}
	}
	return iter.Map(inputs, func(in *Input) Result {
		return Score(*in, now)
	})
}

func TimePressure(in Input, now time.Time) float64 {
	median := in.Signals.CorridorMedianFillMinutes
	if median <= 0 || math.IsNaN(median) {
		median = defaultMedianFillMinutes
	}
	age := signal.Clamp01(signal.MinutesBetween(in.PostedAt, now) / median)

	deadline := 0.0
	if in.RequiredBy != nil && !in.RequiredBy.IsZero() {
		remaining := in.RequiredBy.Sub(now).Minutes()
		deadline = signal.Clamp01(1 - remaining/deadlineRampMinutes)
	}

	lastAction := in.PostedAt
	if in.LastPosterActionAt != nil && !in.LastPosterActionAt.IsZero() {
		lastAction = *in.LastPosterActionAt
	}
	inaction := signal.Clamp01(signal.MinutesBetween(lastAction, now) / inactionRampMinutes)

	return signal.Clamp01(0.45*age + 0.35*deadline + 0.20*inaction)
}

func CoverageRisk(s MarketSignals) float64 {
	supply := scarcity(s.OperatorsWithinRadius, scarceOperatorThreshold)
	recent := scarcity(s.RecentlyActiveOperators, scarceRecentThreshold)

	stress := neutral
	if s.CorridorStressIndex != nil {
		stress = signal.Clamp01(*s.CorridorStressIndex / 100)
	}

	failure := neutral
	if s.CorridorFailureRate != nil {
		failure = signal.Clamp01(*s.CorridorFailureRate)
	}

	return signal.Clamp01(0.35*supply + 0.25*recent + 0.25*stress + 0.15*failure)
}

// scarcity is 0 at or above threshold and rises linearly to 1 at zero supply.
func scarcity(count *int, threshold float64) float64 {
	if count == nil {
		return neutral
	}
	return signal.Clamp01(1 - float64(*count)/threshold)
}

func PosterBehavior(s MarketSignals) float64 {
	fill := neutral
	if s.PosterAvgFillMinutes != nil {
		fill = signal.Clamp01(*s.PosterAvgFillMinutes / posterFillScaleMinutes)
	}

	return signal.Clamp01(0.50*fill + 0.30*rate(s.PosterRepostRate) + 0.20*rate(s.PosterCancelRate))
}

func rate(v *float64) float64 {
	if v == nil {
		return 0
	}
	return signal.Clamp01(*v)
}

func EconomicPressure(in Input) float64 {
	total := 0.0
	if in.QuickPay {
		total += 0.3
	}

	norm := in.Signals.CorridorNormRate
	if in.PostedRate != nil && norm != nil && *norm > 0 && *in.PostedRate > *norm {
		premium := (*in.PostedRate - *norm) / *norm
		total += 0.4 * signal.Clamp01(premium/fullRatePremium)
	}

	if in.Signals.MarketAcceptanceRate != nil {
		total += 0.3 * (1 - signal.Clamp01(*in.Signals.MarketAcceptanceRate))
	}

	return signal.Clamp01(total)
}

func PredictiveFailure(s MarketSignals, timePressure, coverageRisk float64) float64 {
	shortage := neutral
	if s.ShortageProbability30m != nil {
		shortage = signal.Clamp01(*s.ShortageProbability30m)
	}

	base := 0.50*shortage + 0.25*signal.Clamp01(timePressure) + 0.25*signal.Clamp01(coverageRisk)
	return signal.Clamp01(base * s.AvailabilityTrend.factor())
}
