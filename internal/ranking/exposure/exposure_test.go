// internal/ranking/exposure/exposure_test.go
package exposure

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)

// ==========================
// Test Helper Functions
// ==========================

func timePtr(t time.Time) *time.Time { return &t }

func floatPtr(v float64) *float64 { return &v }

type sequenceEntropy struct {
	values []float64
	next   int
}

func (s *sequenceEntropy) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func createTestContext() SearchContext {
	return SearchContext{
		OriginRegion:      "TX",
		DestinationRegion: "LA",
		LoadType:          "",
		Hour:              10,
		Limit:             20,
		SessionID:         "sess-1",
	}
}

func createScenarioCandidates() []Candidate {
	return []Candidate{
		{ID: "A", TrustScore: 90, LicensedRegions: []string{"TX"}, Available: true, CompletedJobs: 50},
		{ID: "B", TrustScore: 45, LicensedRegions: []string{"TX"}, Available: true, CompletedJobs: 2},
		{ID: "C", TrustScore: 20, LicensedRegions: []string{"OK"}, Available: false, CompletedJobs: 12},
	}
}

func createPool(n int) []Candidate {
	pool := make([]Candidate, n)
	for i := range pool {
		pool[i] = Candidate{
			ID:              fmt.Sprintf("op-%03d", i),
			TrustScore:      float64(30 + (i*7)%70),
			LicensedRegions: []string{"TX", "NM"},
			VehicleTag:      "high pole",
			Available:       i%4 != 0,
			CompletedJobs:   i % 25,
			PaidBoostActive: i%5 == 0,
			LastActiveAt:    timePtr(testNow.Add(-time.Duration(i) * time.Hour)),
		}
	}
	return pool
}

// ==========================
// End-to-end scenario
// ==========================

func TestRank_Scenario(t *testing.T) {
	resp := Rank(createScenarioCandidates(), createTestContext(), DefaultAllocationConfig(),
		WithEntropy(ZeroEntropy()), WithNow(testNow))

	assert.Equal(t, 3, resp.TotalCandidates)
	assert.Equal(t, 2, resp.EligibleCount)
	require.Len(t, resp.Ranked, 2)

	assert.Equal(t, "A", resp.Ranked[0].OperatorID)
	assert.Equal(t, 1, resp.Ranked[0].Rank)
	assert.False(t, resp.Ranked[0].IsColdStart)
	assert.Equal(t, 90, resp.Ranked[0].TrustPct)
	assert.Equal(t, 100, resp.Ranked[0].ContextFitPct)

	assert.Equal(t, "B", resp.Ranked[1].OperatorID)
	assert.Equal(t, 2, resp.Ranked[1].Rank)
	assert.True(t, resp.Ranked[1].IsColdStart)
	assert.Greater(t, resp.Ranked[0].ExposureScore, resp.Ranked[1].ExposureScore)
}

func TestRank_ScenarioHoldsUnderJitter(t *testing.T) {
	for i := 0; i < 200; i++ {
		resp := Rank(createScenarioCandidates(), createTestContext(), DefaultAllocationConfig(), WithNow(testNow))

		require.Len(t, resp.Ranked, 2)
		assert.Equal(t, "A", resp.Ranked[0].OperatorID)
		for _, r := range resp.Ranked {
			assert.NotEqual(t, "C", r.OperatorID)
		}
	}
}

// ==========================
// Guardrails
// ==========================

func TestRank_TrustGateBoundary(t *testing.T) {
	candidates := []Candidate{
		{ID: "below", TrustScore: 39.9, Available: true},
		{ID: "at", TrustScore: 40.0, Available: true},
	}

	resp := Rank(candidates, createTestContext(), DefaultAllocationConfig(), WithEntropy(ZeroEntropy()), WithNow(testNow))

	assert.Equal(t, 1, resp.EligibleCount)
	require.Len(t, resp.Ranked, 1)
	assert.Equal(t, "at", resp.Ranked[0].OperatorID)

	cfg := DefaultAllocationConfig()
	assert.True(t, ScoreCandidate(candidates[0], createTestContext(), cfg, testNow).Suppressed)
	assert.False(t, ScoreCandidate(candidates[1], createTestContext(), cfg, testNow).Suppressed)
}

func TestRank_AllSuppressed(t *testing.T) {
	candidates := []Candidate{
		{ID: "x", TrustScore: 5, PaidBoostActive: true, Available: true},
		{ID: "y", TrustScore: 39, PaidBoostActive: true, Available: true},
	}

	resp := Rank(candidates, createTestContext(), DefaultAllocationConfig(), WithNow(testNow))

	assert.Equal(t, 2, resp.TotalCandidates)
	assert.Equal(t, 0, resp.EligibleCount)
	assert.NotNil(t, resp.Ranked)
	assert.Empty(t, resp.Ranked)
}

func TestRank_EmptyPool(t *testing.T) {
	resp := Rank(nil, createTestContext(), DefaultAllocationConfig())

	assert.Equal(t, 0, resp.TotalCandidates)
	assert.Equal(t, 0, resp.EligibleCount)
	assert.Empty(t, resp.Ranked)
}

func TestPaidBoost_Containment(t *testing.T) {
	cfg := DefaultAllocationConfig()

	lowTrust := Candidate{ID: "p1", TrustScore: 35, PaidBoostActive: true, Available: true, LicensedRegions: []string{"TX"}}
	scored := ScoreCandidate(lowTrust, createTestContext(), cfg, testNow)
	assert.InDelta(t, 1.0, scored.SubScores.ContextFit, 1e-9)
	assert.Equal(t, 0.0, scored.SubScores.PaidBoost)

	mismatch := Candidate{ID: "p2", TrustScore: 95, PaidBoostActive: true, Available: false}
	ctx := createTestContext()
	ctx.LoadType = "oversize"
	ctx.Hour = 10
	scored = ScoreCandidate(mismatch, ctx, cfg, testNow)
	assert.Less(t, scored.SubScores.ContextFit, 0.3)
	assert.Equal(t, 0.0, scored.SubScores.PaidBoost)

	qualified := Candidate{ID: "p3", TrustScore: 95, PaidBoostActive: true, Available: true, LicensedRegions: []string{"LA"}}
	scored = ScoreCandidate(qualified, createTestContext(), cfg, testNow)
	assert.InDelta(t, 0.9, scored.SubScores.PaidBoost, 1e-9)

	resp := Rank([]Candidate{qualified}, createTestContext(), cfg, WithEntropy(ZeroEntropy()), WithNow(testNow))
	require.Len(t, resp.Ranked, 1)
	assert.True(t, resp.Ranked[0].PaidBoostApplied)

	notActive := qualified
	notActive.PaidBoostActive = false
	resp = Rank([]Candidate{notActive}, createTestContext(), cfg, WithEntropy(ZeroEntropy()), WithNow(testNow))
	assert.False(t, resp.Ranked[0].PaidBoostApplied)
}

func TestColdStartBoost_Cap(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		expected  float64
	}{
		{"new and fully trusted", Candidate{TrustScore: 100, CompletedJobs: 0}, 0.7},
		{"new and half trusted", Candidate{TrustScore: 30, CompletedJobs: 3}, 0.35},
		{"established", Candidate{TrustScore: 100, CompletedJobs: 10}, 0},
		{"negative trust", Candidate{TrustScore: -20, CompletedJobs: 0}, 0},
		{"NaN trust", Candidate{TrustScore: math.NaN(), CompletedJobs: 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ColdStartBoost(tt.candidate)
			assert.InDelta(t, tt.expected, got, 1e-9)
			assert.LessOrEqual(t, got, 0.7)
		})
	}
}

// ==========================
// Component scores
// ==========================

func TestContextFit(t *testing.T) {
	ctx := createTestContext()
	ctx.LoadType = "height pole"

	tests := []struct {
		name      string
		candidate Candidate
		hour      int
		expected  float64
	}{
		{"everything matches", Candidate{LicensedRegions: []string{"la"}, Available: true, VehicleTag: "Height-Pole Truck"}, 10, 1.0},
		{"no region", Candidate{LicensedRegions: []string{"OK"}, Available: true, VehicleTag: "pole car"}, 10, 0.65},
		{"unavailable at night", Candidate{LicensedRegions: []string{"TX"}, VehicleTag: "chase"}, 22, 0.35},
		{"hour 19 is outside", Candidate{Available: true}, 19, 0.40},
		{"hour 7 is inside", Candidate{Available: true}, 7, 0.50},
		{"nothing", Candidate{}, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ctx
			c.Hour = tt.hour
			assert.InDelta(t, tt.expected, ContextFit(tt.candidate, c), 1e-9)
		})
	}
}

func TestFreshness(t *testing.T) {
	fresh := Candidate{
		LastActiveAt:       timePtr(testNow),
		LastJobCompletedAt: timePtr(testNow),
		AvgResponseMinutes: floatPtr(0),
	}
	assert.InDelta(t, 1.0, Freshness(fresh, testNow), 1e-9)

	stale := Candidate{AvgResponseMinutes: floatPtr(240)}
	assert.Equal(t, 0.0, Freshness(stale, testNow))

	unknown := Candidate{}
	assert.InDelta(t, 0.1, Freshness(unknown, testNow), 1e-9)

	halfResponse := Candidate{
		LastActiveAt:       timePtr(testNow.Add(-48 * time.Hour)),
		LastJobCompletedAt: timePtr(testNow.Add(-14 * 24 * time.Hour)),
		AvgResponseMinutes: floatPtr(60),
	}
	expected := 0.45*math.Exp(-1) + 0.35*math.Exp(-1) + 0.20*0.5
	assert.InDelta(t, expected, Freshness(halfResponse, testNow), 1e-9)
}

func TestScoreCandidate_MonotoneInTrust(t *testing.T) {
	cfg := DefaultAllocationConfig()
	base := Candidate{ID: "m", Available: true, LicensedRegions: []string{"TX"}, PaidBoostActive: true, CompletedJobs: 4}

	prev := -1.0
	for trust := 0.0; trust <= 100; trust += 0.5 {
		c := base
		c.TrustScore = trust
		score := ScoreCandidate(c, createTestContext(), cfg, testNow).Exposure
		assert.GreaterOrEqual(t, score, prev, "trust=%v", trust)
		prev = score
	}
}

func TestScoreCandidate_Range(t *testing.T) {
	cfg := DefaultAllocationConfig()
	for _, c := range createPool(150) {
		s := ScoreCandidate(c, createTestContext(), cfg, testNow)
		for _, v := range []float64{s.SubScores.Trust, s.SubScores.ContextFit, s.SubScores.Freshness, s.SubScores.ColdStart, s.SubScores.PaidBoost, s.Exposure} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

// ==========================
// Pipeline behavior
// ==========================

func TestRank_DeterministicWithZeroEntropy(t *testing.T) {
	pool := createPool(120)
	first := Rank(pool, createTestContext(), DefaultAllocationConfig(), WithEntropy(ZeroEntropy()), WithNow(testNow))
	second := Rank(pool, createTestContext(), DefaultAllocationConfig(), WithEntropy(ZeroEntropy()), WithNow(testNow))

	assert.Equal(t, first, second)
	for i := 1; i < len(first.Ranked); i++ {
		assert.GreaterOrEqual(t, first.Ranked[i-1].SortScore, first.Ranked[i].SortScore)
	}
}

func TestRank_DefaultLimit(t *testing.T) {
	ctx := createTestContext()
	ctx.Limit = 0

	resp := Rank(createPool(120), ctx, DefaultAllocationConfig(), WithEntropy(ZeroEntropy()), WithNow(testNow))

	assert.Len(t, resp.Ranked, DefaultLimit)
	assert.Greater(t, resp.EligibleCount, DefaultLimit)
	assert.Equal(t, 120, resp.TotalCandidates)
}

func TestRank_CustomLimit(t *testing.T) {
	ctx := createTestContext()
	ctx.Limit = 5

	resp := Rank(createPool(40), ctx, DefaultAllocationConfig(), WithNow(testNow))
	require.Len(t, resp.Ranked, 5)
	for i, r := range resp.Ranked {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestRank_JitterIsBounded(t *testing.T) {
	candidates := []Candidate{
		{ID: "first", TrustScore: 80, Available: true, CompletedJobs: 30},
		{ID: "second", TrustScore: 80, Available: true, CompletedJobs: 30},
	}

	// lowest draw for the first candidate, highest for the second
	entropy := &sequenceEntropy{values: []float64{0, 1}}
	resp := Rank(candidates, createTestContext(), DefaultAllocationConfig(), WithEntropy(entropy), WithNow(testNow))

	require.Len(t, resp.Ranked, 2)
	assert.Equal(t, "second", resp.Ranked[0].OperatorID)
	assert.InDelta(t, resp.Ranked[0].ExposureScore+0.025, resp.Ranked[0].SortScore, 2e-4)
	assert.InDelta(t, resp.Ranked[1].ExposureScore-0.025, resp.Ranked[1].SortScore, 2e-4)
}

func TestRank_DoesNotMutateCandidates(t *testing.T) {
	pool := createScenarioCandidates()
	snapshot := make([]Candidate, len(pool))
	copy(snapshot, pool)

	Rank(pool, createTestContext(), DefaultAllocationConfig(), WithNow(testNow))

	assert.Equal(t, snapshot, pool)
}

// ==========================
// Config
// ==========================

func TestAllocationConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultAllocationConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*AllocationConfig)
	}{
		{"negative weight", func(c *AllocationConfig) { c.Weights.Trust = -0.1 }},
		{"zero weights", func(c *AllocationConfig) { c.Weights = Weights{} }},
		{"weights above one", func(c *AllocationConfig) { c.Weights.Trust = 0.9 }},
		{"gate above 100", func(c *AllocationConfig) { c.MinTrustGate = 140 }},
		{"negative diversity cap", func(c *AllocationConfig) { c.DiversityCap = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAllocationConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, DefaultAllocationConfig(), cfg.OrDefault())
		})
	}
}

func TestAllocationConfig_CustomGate(t *testing.T) {
	cfg := DefaultAllocationConfig()
	cfg.MinTrustGate = 60

	resp := Rank(createScenarioCandidates(), createTestContext(), cfg, WithNow(testNow))
	assert.Equal(t, 1, resp.EligibleCount)
}

func TestRank_ZeroConfigUsesDefaults(t *testing.T) {
	candidates := []Candidate{
		{ID: "low", TrustScore: 39.9, LicensedRegions: []string{"TX"}, Available: true, CompletedJobs: 50},
		{ID: "hi", TrustScore: 95, LicensedRegions: []string{"TX"}, Available: true, CompletedJobs: 50},
	}

	resp := Rank(candidates, SearchContext{}, AllocationConfig{}, WithEntropy(ZeroEntropy()), WithNow(testNow))

	assert.Equal(t, 1, resp.EligibleCount)
	require.Len(t, resp.Ranked, 1)
	assert.Equal(t, "hi", resp.Ranked[0].OperatorID)
	assert.Greater(t, resp.Ranked[0].ExposureScore, 0.0)

	want := Rank(candidates, SearchContext{}, DefaultAllocationConfig(), WithEntropy(ZeroEntropy()), WithNow(testNow))
	assert.Equal(t, want, resp)
}

func BenchmarkRank(b *testing.B) {
	pool := createPool(200)
	ctx := createTestContext()
	cfg := DefaultAllocationConfig()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Rank(pool, ctx, cfg, WithNow(testNow))
	}
}
