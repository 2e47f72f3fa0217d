// internal/ranking/exposure/score.go
package exposure

import (
	"math"
	"strings"
	"time"

	"escort-ranking-workers/internal/ranking/signal"
)

const (
	coldStartJobThreshold = 10
	coldStartCeiling      = 0.7
	coldStartTrustSpan    = 60.0

	paidBoostMinContextFit = 0.3
	paidBoostFitScale      = 0.9

	activeHalfLifeMinutes  = 48 * 60.0
	jobHalfLifeMinutes     = 14 * 24 * 60.0
	responseFalloffMinutes = 120.0
	neutralResponseQuality = 0.5
	businessHoursStart     = 7
	businessHoursEnd       = 19
)

const (
	fitRegion    = 0.35
	fitAvailable = 0.40
	fitVehicle   = 0.15
	fitHour      = 0.10
)

// ScoreCandidate computes the sub-scores and composite exposure of one candidate.
func ScoreCandidate(c Candidate, ctx SearchContext, cfg AllocationConfig, now time.Time) Scored {
	trust := TrustScore(c.TrustScore)
	fit := ContextFit(c, ctx)

	sub := SubScores{
		Trust:      trust,
		ContextFit: fit,
		Freshness:  Freshness(c, now),
		ColdStart:  ColdStartBoost(c),
		PaidBoost:  PaidBoost(c, fit, cfg.MinTrustGate),
	}

	w := cfg.Weights
	exposure := sub.Trust*w.Trust +
		sub.ContextFit*w.ContextFit +
		sub.Freshness*w.Freshness +
		sub.ColdStart*w.ColdStart +
		sub.PaidBoost*w.PaidBoost

	return Scored{
		Candidate:   c,
		SubScores:   sub,
		Exposure:    signal.Clamp01(exposure),
		IsColdStart: c.CompletedJobs < coldStartJobThreshold,
		Suppressed:  rawTrust(c.TrustScore) < cfg.MinTrustGate,
	}
}

func rawTrust(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func TrustScore(trust float64) float64 {
	return signal.Clamp01(trust / 100)
}

// ContextFit sums the region, availability, vehicle and business-hour checks, capped at 1.
func ContextFit(c Candidate, ctx SearchContext) float64 {
	fit := 0.0
	if regionMatch(c.LicensedRegions, ctx.OriginRegion, ctx.DestinationRegion) {
		fit += fitRegion
	}
	if c.Available {
		fit += fitAvailable
	}
	if vehicleMatch(c.VehicleTag, ctx.LoadType) {
		fit += fitVehicle
	}
	if ctx.Hour >= businessHoursStart && ctx.Hour < businessHoursEnd {
		fit += fitHour
	}
	return math.Min(fit, 1.0)
}

func regionMatch(licensed []string, origin, destination string) bool {
	for _, r := range licensed {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if strings.EqualFold(r, origin) || strings.EqualFold(r, destination) {
			return true
		}
	}
	return false
}

// vehicleMatch treats a missing load type as no constraint.
func vehicleMatch(vehicleTag, loadType string) bool {
	loadType = strings.ToLower(strings.TrimSpace(loadType))
	if loadType == "" {
		return true
	}
	tag := strings.ToLower(vehicleTag)
	if tag == "" {
		return false
	}
	for _, keyword := range strings.FieldsFunc(loadType, func(r rune) bool {
		return r == ' ' || r == ',' || r == '_' || r == '-' || r == '/'
	}) {
		if strings.Contains(tag, keyword) {
			return true
		}
	}
	return false
}

func Freshness(c Candidate, now time.Time) float64 {
	active := 0.0
	if c.LastActiveAt != nil && !c.LastActiveAt.IsZero() {
		active = signal.ExponentialDecay(signal.MinutesBetween(*c.LastActiveAt, now), activeHalfLifeMinutes)
	}

	job := 0.0
	if c.LastJobCompletedAt != nil && !c.LastJobCompletedAt.IsZero() {
		job = signal.ExponentialDecay(signal.MinutesBetween(*c.LastJobCompletedAt, now), jobHalfLifeMinutes)
	}

	response := neutralResponseQuality
	if c.AvgResponseMinutes != nil {
		response = signal.Clamp01(1 - *c.AvgResponseMinutes/responseFalloffMinutes)
	}

	return signal.Clamp01(0.45*active + 0.35*job + 0.20*response)
}

// ColdStartBoost is 0 for established operators and never exceeds 0.7.
func ColdStartBoost(c Candidate) float64 {
	if c.CompletedJobs >= coldStartJobThreshold {
		return 0
	}
	return coldStartCeiling * math.Min(signal.Clamp01(rawTrust(c.TrustScore)/coldStartTrustSpan), 1)
}

// PaidBoost never overrides the trust gate or a severe context mismatch.
func PaidBoost(c Candidate, contextFit, minTrustGate float64) float64 {
	if !c.PaidBoostActive {
		return 0
	}
	if rawTrust(c.TrustScore) < minTrustGate {
		return 0
	}
	if contextFit < paidBoostMinContextFit {
		return 0
	}
	return math.Min(contextFit*paidBoostFitScale, 1)
}
