// internal/ranking/feedrank/feedrank_test.go
package feedrank

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 2, 20, 18, 0, 0, 0, time.UTC)

func createStrongInputs() Inputs {
	return Inputs{
		PostedAt:    testNow,
		Quality:     0.8,
		PosterTrust: 0.8,
		LaneDensity: 0.6,
		FillSpeed:   0.5,
		Backhaul:    0.4,
	}
}

// ==========================
// Compose
// ==========================

func TestCompose(t *testing.T) {
	tests := []struct {
		name     string
		input    Inputs
		expected float64
	}{
		{
			name:     "perfect load",
			input:    Inputs{PostedAt: testNow, Quality: 1, PosterTrust: 1, LaneDensity: 1, FillSpeed: 1, Backhaul: 1},
			expected: 100.0,
		},
		{
			name:     "perfect load with boosts is capped",
			input:    Inputs{PostedAt: testNow, Quality: 1, PosterTrust: 1, LaneDensity: 1, FillSpeed: 1, Backhaul: 1, RateVisible: true, PosterVerified: true},
			expected: 100.0,
		},
		{
			name:     "strong load",
			input:    createStrongInputs(),
			expected: 90.1,
		},
		{
			name: "strong load with boosts",
			input: func() Inputs {
				in := createStrongInputs()
				in.RateVisible = true
				in.PosterVerified = true
				return in
			}(),
			expected: 95.1,
		},
		{
			name:     "weak aged load",
			input:    Inputs{PostedAt: testNow.Add(-240 * time.Minute), Quality: 0.3, PosterTrust: 0.3, LaneDensity: 0.5, FillSpeed: 0.5, Backhaul: 0.5},
			expected: 44.2,
		},
		{
			name:     "weak aged incomplete load",
			input:    Inputs{PostedAt: testNow.Add(-240 * time.Minute), Quality: 0.3, PosterTrust: 0.3, LaneDensity: 0.5, FillSpeed: 0.5, Backhaul: 0.5, Incomplete: true},
			expected: 32.2,
		},
		{
			name:     "empty incomplete load floors at zero",
			input:    Inputs{PostedAt: testNow.Add(-100 * 24 * time.Hour), Incomplete: true},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Compose(tt.input, testNow).Score, 1e-9)
		})
	}
}

func TestCompose_PenaltiesUseRawValues(t *testing.T) {
	in := createStrongInputs()
	in.PosterTrust = 0.34
	lowTrust := Compose(in, testNow).Score

	in.PosterTrust = 0.35
	atThreshold := Compose(in, testNow).Score

	// easeOut(0.34) and easeOut(0.35) differ by well under a point; the gap is the penalty.
	assert.Greater(t, atThreshold-lowTrust, 9.0)
}

func TestCompose_OneDecimalAndRange(t *testing.T) {
	values := []float64{-1, 0, 0.01, 0.2, 0.35, 0.5, 0.77, 1, 3, math.NaN()}
	for _, v := range values {
		in := Inputs{PostedAt: testNow.Add(-time.Duration(v*600) * time.Minute), Quality: v, PosterTrust: v, LaneDensity: v, FillSpeed: v, Backhaul: v, RateVisible: v > 0.5}
		score := Compose(in, testNow).Score

		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
		assert.InDelta(t, score, math.Round(score*10)/10, 1e-9)
	}
}

func TestCompose_FreshnessDecays(t *testing.T) {
	in := createStrongInputs()
	prev := Compose(in, testNow).Score
	for h := 1; h <= 24; h++ {
		in.PostedAt = testNow.Add(-time.Duration(h) * time.Hour)
		cur := Compose(in, testNow).Score
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestCompose_MissingPostedAtIsNotFresh(t *testing.T) {
	in := Inputs{Quality: 0.5, PosterTrust: 0.5, LaneDensity: 0.5, FillSpeed: 0.5, Backhaul: 0.5}
	missing := Compose(in, testNow).Score

	in.PostedAt = testNow.Add(-48 * time.Hour)
	stale := Compose(in, testNow).Score

	in.PostedAt = testNow
	fresh := Compose(in, testNow).Score

	assert.LessOrEqual(t, missing, stale)
	assert.Less(t, missing, fresh)

	var decoded Inputs
	require.NoError(t, decoded.PostedAt.UnmarshalText([]byte("0001-01-01T00:00:00Z")))
	decoded.Quality, decoded.PosterTrust, decoded.LaneDensity, decoded.FillSpeed, decoded.Backhaul = 0.5, 0.5, 0.5, 0.5, 0.5
	assert.Equal(t, missing, Compose(decoded, testNow).Score)
}

func TestCompose_Idempotent(t *testing.T) {
	in := createStrongInputs()
	assert.Equal(t, Compose(in, testNow), Compose(in, testNow))
}

// ==========================
// RankFeed
// ==========================

func TestRankFeed_OrdersDescendingAndStable(t *testing.T) {
	weak := Inputs{PostedAt: testNow.Add(-240 * time.Minute), Quality: 0.3, PosterTrust: 0.3, LaneDensity: 0.5, FillSpeed: 0.5, Backhaul: 0.5}
	strong := createStrongInputs()

	entries := []Entry{
		{LoadID: "weak-1", Inputs: weak},
		{LoadID: "strong-1", Inputs: strong},
		{LoadID: "weak-2", Inputs: weak},
		{LoadID: "strong-2", Inputs: strong},
	}

	ranked := RankFeed(entries, testNow)

	require.Len(t, ranked, 4)
	assert.Equal(t, []string{"strong-1", "strong-2", "weak-1", "weak-2"}, []string{ranked[0].LoadID, ranked[1].LoadID, ranked[2].LoadID, ranked[3].LoadID})
	assert.InDelta(t, 90.1, ranked[0].Score, 1e-9)
	assert.Equal(t, 0.0, entries[0].Score)
}

func TestRankFeed_KeepsIndexOfRepeatedIDs(t *testing.T) {
	weak := Inputs{PostedAt: testNow.Add(-240 * time.Minute), Quality: 0.3, PosterTrust: 0.3, LaneDensity: 0.5, FillSpeed: 0.5, Backhaul: 0.5}

	ranked := RankFeed([]Entry{
		{LoadID: "dup", Index: 0, Inputs: weak},
		{LoadID: "dup", Index: 1, Inputs: createStrongInputs()},
	}, testNow)

	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Index)
	assert.Equal(t, 0, ranked[1].Index)
}

func TestRankFeed_Empty(t *testing.T) {
	assert.Empty(t, RankFeed(nil, testNow))
}

func BenchmarkCompose(b *testing.B) {
	in := createStrongInputs()
	for i := 0; i < b.N; i++ {
		Compose(in, testNow)
	}
}
