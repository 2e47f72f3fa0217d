// internal/ranking/exposure/rank.go
package exposure

import (
	"sort"
	"time"

	"escort-ranking-workers/internal/ranking/signal"
)

// Half-width of the uniform perturbation applied to eligible scores.
const jitterHalfWidth = 0.025

type options struct {
	entropy Entropy
	now     time.Time
}

type Option func(*options)

// WithEntropy replaces the randomization source. ZeroEntropy disables jitter.
func WithEntropy(e Entropy) Option {
	return func(o *options) {
		if e != nil {
			o.entropy = e
		}
	}
}

// WithNow fixes the evaluation instant.
func WithNow(now time.Time) Option {
	return func(o *options) {
		if !now.IsZero() {
			o.now = now
		}
	}
}

type perturbed struct {
	scored Scored
	key    float64
}

// Rank scores the pool, drops suppressed candidates, jitters, sorts and truncates.
// An empty or fully suppressed pool yields an empty ranked list. An invalid or
// zero cfg is replaced by the compiled-in defaults.
func Rank(candidates []Candidate, ctx SearchContext, cfg AllocationConfig, opts ...Option) Response {
	cfg = cfg.OrDefault()

	o := options{entropy: SystemEntropy(), now: time.Now()}
	for _, opt := range opts {
		opt(&o)
	}

	eligible := make([]perturbed, 0, len(candidates))
	for _, c := range candidates {
		s := ScoreCandidate(c, ctx, cfg, o.now)
		if s.Suppressed {
			continue
		}
		jitter := (o.entropy.Float64()*2 - 1) * jitterHalfWidth
		eligible = append(eligible, perturbed{scored: s, key: s.Exposure + jitter})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].key > eligible[j].key
	})

	limit := ctx.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	n := len(eligible)
	if n > limit {
		n = limit
	}

	ranked := make([]Ranked, 0, n)
	for i := 0; i < n; i++ {
		s := eligible[i].scored
		ranked = append(ranked, Ranked{
			Rank:             i + 1,
			OperatorID:       s.Candidate.ID,
			ExposureScore:    signal.Round(s.Exposure, 4),
			SortScore:        signal.Round(eligible[i].key, 4),
			IsColdStart:      s.IsColdStart,
			PaidBoostApplied: s.SubScores.PaidBoost > 0,
			ContextFitPct:    signal.Percent(s.SubScores.ContextFit),
			TrustPct:         signal.Percent(s.SubScores.Trust),
			SelectionRate7d:  s.Candidate.SelectionRate7d,
		})
	}

	return Response{
		Ranked:          ranked,
		TotalCandidates: len(candidates),
		EligibleCount:   len(eligible),
	}
}
