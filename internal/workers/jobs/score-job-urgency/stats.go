package scorejoburgency

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"escort-ranking-workers/internal/common/database"
	"escort-ranking-workers/internal/common/errors"
	"escort-ranking-workers/internal/common/metrics"
	"escort-ranking-workers/internal/ranking/urgency"
)

const (
	corridorCachePrefix = "urgency:corridor:"
	posterCachePrefix   = "urgency:poster:"
)

const corridorStatsQuery = `
	SELECT median_fill_minutes, operators_within_radius, recently_active_operators,
	       stress_index, failure_rate, norm_rate, acceptance_rate,
	       shortage_probability_30m, availability_trend
	FROM corridor_stats WHERE corridor_id = $1`

const posterStatsQuery = `
	SELECT avg_fill_minutes, repost_rate, cancel_rate
	FROM poster_stats WHERE poster_id = $1`

// statsLookup memoizes corridor and poster stats for one request so a batch
// touching the same corridor hits the stores once.
type statsLookup struct {
	h         *Handler
	corridors map[string]*CorridorStats
	posters   map[string]*PosterStats
}

func (h *Handler) newStatsLookup() *statsLookup {
	return &statsLookup{
		h:         h,
		corridors: make(map[string]*CorridorStats),
		posters:   make(map[string]*PosterStats),
	}
}

// corridor returns nil when no stats exist or every store failed.
func (l *statsLookup) corridor(ctx context.Context, corridorID string) *CorridorStats {
	if corridorID == "" {
		return nil
	}
	if stats, ok := l.corridors[corridorID]; ok {
		return stats
	}

	h := l.h
	key := corridorCachePrefix + corridorID
	var stats *CorridorStats

	if h.redis != nil {
		var cached CorridorStats
		if h.readCache(ctx, "corridor_stats", key, &cached) {
			stats = &cached
		}
	}

	if stats == nil && h.db != nil {
		loaded, err := h.loadCorridorStats(ctx, corridorID)
		switch {
		case err == nil:
			stats = loaded
			h.writeCache(ctx, key, stats, h.config.CorridorCacheTTL)
		case stderrors.Is(err, sql.ErrNoRows):
		default:
			h.logger.Warn("corridor stats unavailable, using neutral signals", map[string]interface{}{
				"corridorId": corridorID,
				"error":      errors.NewCorridorStatsUnavailableError(corridorID, err),
			})
		}
	}

	l.corridors[corridorID] = stats
	return stats
}

func (l *statsLookup) poster(ctx context.Context, posterID string) *PosterStats {
	if posterID == "" {
		return nil
	}
	if stats, ok := l.posters[posterID]; ok {
		return stats
	}

	h := l.h
	key := posterCachePrefix + posterID
	var stats *PosterStats

	if h.redis != nil {
		var cached PosterStats
		if h.readCache(ctx, "poster_stats", key, &cached) {
			stats = &cached
		}
	}

	if stats == nil && h.db != nil {
		loaded, err := h.loadPosterStats(ctx, posterID)
		switch {
		case err == nil:
			stats = loaded
			h.writeCache(ctx, key, stats, h.config.PosterCacheTTL)
		case stderrors.Is(err, sql.ErrNoRows):
		default:
			h.logger.Warn("poster stats unavailable, using neutral signals", map[string]interface{}{
				"posterId": posterID,
				"error":    errors.NewDatabaseQueryFailedError("poster_stats", err),
			})
		}
	}

	l.posters[posterID] = stats
	return stats
}

func (h *Handler) readCache(ctx context.Context, family, key string, dest interface{}) bool {
	err := database.GetJSON(ctx, h.redis, key, dest)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues(family, "hit").Inc()
		return true
	case stderrors.Is(err, database.ErrCacheMiss):
		metrics.CacheLookups.WithLabelValues(family, "miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues(family, "error").Inc()
		h.logger.Warn("stats cache unusable", map[string]interface{}{
			"key":   key,
			"error": errors.NewCacheUnavailableError(err),
		})
	}
	return false
}

func (h *Handler) writeCache(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if h.redis == nil {
		return
	}
	if err := database.SetJSON(ctx, h.redis, key, value, ttl); err != nil {
		h.logger.Warn("failed to cache stats", map[string]interface{}{"key": key, "error": err})
	}
}

func (h *Handler) loadCorridorStats(ctx context.Context, corridorID string) (*CorridorStats, error) {
	var (
		median                     float64
		withinRadius, recentActive sql.NullInt64
		stress, failure, norm      sql.NullFloat64
		acceptance, shortage       sql.NullFloat64
		trend                      sql.NullString
	)
	err := h.db.QueryRowContext(ctx, corridorStatsQuery, corridorID).Scan(
		&median, &withinRadius, &recentActive,
		&stress, &failure, &norm, &acceptance,
		&shortage, &trend,
	)
	if err != nil {
		return nil, err
	}

	return &CorridorStats{
		MedianFillMinutes:       median,
		OperatorsWithinRadius:   nullInt(withinRadius),
		RecentlyActiveOperators: nullInt(recentActive),
		StressIndex:             nullFloat(stress),
		FailureRate:             nullFloat(failure),
		NormRate:                nullFloat(norm),
		AcceptanceRate:          nullFloat(acceptance),
		ShortageProbability30m:  nullFloat(shortage),
		AvailabilityTrend:       urgency.Trend(trend.String),
	}, nil
}

func (h *Handler) loadPosterStats(ctx context.Context, posterID string) (*PosterStats, error) {
	var fill, repost, cancel sql.NullFloat64
	if err := h.db.QueryRowContext(ctx, posterStatsQuery, posterID).Scan(&fill, &repost, &cancel); err != nil {
		return nil, err
	}
	return &PosterStats{
		AvgFillMinutes: nullFloat(fill),
		RepostRate:     nullFloat(repost),
		CancelRate:     nullFloat(cancel),
	}, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// marketSignals merges caller-supplied signals over looked-up stats.
func marketSignals(supplied *MarketSignals, corridor *CorridorStats, poster *PosterStats) urgency.MarketSignals {
	var s MarketSignals
	if supplied != nil {
		s = *supplied
	}

	out := urgency.MarketSignals{
		OperatorsWithinRadius:   s.OperatorsWithinRadius,
		RecentlyActiveOperators: s.RecentlyActiveOperators,
		CorridorStressIndex:     s.CorridorStressIndex,
		CorridorFailureRate:     s.CorridorFailureRate,
		PosterAvgFillMinutes:    s.PosterAvgFillMinutes,
		PosterRepostRate:        s.PosterRepostRate,
		PosterCancelRate:        s.PosterCancelRate,
		CorridorNormRate:        s.CorridorNormRate,
		MarketAcceptanceRate:    s.MarketAcceptanceRate,
		ShortageProbability30m:  s.ShortageProbability30m,
		AvailabilityTrend:       urgency.Trend(s.AvailabilityTrend),
	}
	if s.CorridorMedianFillMinutes != nil {
		out.CorridorMedianFillMinutes = *s.CorridorMedianFillMinutes
	}

	if corridor != nil {
		if out.CorridorMedianFillMinutes <= 0 {
			out.CorridorMedianFillMinutes = corridor.MedianFillMinutes
		}
		out.OperatorsWithinRadius = firstInt(out.OperatorsWithinRadius, corridor.OperatorsWithinRadius)
		out.RecentlyActiveOperators = firstInt(out.RecentlyActiveOperators, corridor.RecentlyActiveOperators)
		out.CorridorStressIndex = firstFloat(out.CorridorStressIndex, corridor.StressIndex)
		out.CorridorFailureRate = firstFloat(out.CorridorFailureRate, corridor.FailureRate)
		out.CorridorNormRate = firstFloat(out.CorridorNormRate, corridor.NormRate)
		out.MarketAcceptanceRate = firstFloat(out.MarketAcceptanceRate, corridor.AcceptanceRate)
		out.ShortageProbability30m = firstFloat(out.ShortageProbability30m, corridor.ShortageProbability30m)
		if out.AvailabilityTrend == "" {
			out.AvailabilityTrend = corridor.AvailabilityTrend
		}
	}

	if poster != nil {
		out.PosterAvgFillMinutes = firstFloat(out.PosterAvgFillMinutes, poster.AvgFillMinutes)
		out.PosterRepostRate = firstFloat(out.PosterRepostRate, poster.RepostRate)
		out.PosterCancelRate = firstFloat(out.PosterCancelRate, poster.CancelRate)
	}

	if out.AvailabilityTrend == "" {
		out.AvailabilityTrend = urgency.TrendStable
	}
	return out
}

func firstInt(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}

func firstFloat(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
