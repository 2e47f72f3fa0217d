package scorejoburgency

import (
	"time"

	"escort-ranking-workers/internal/ranking/urgency"
)

// Input carries either a single job or a batch. Both may be set; the single
// job is scored first.
type Input struct {
	Job  *JobSnapshot  `json:"job,omitempty"`
	Jobs []JobSnapshot `json:"jobs,omitempty"`

	// SuppressAlerts disables SNS and email delivery for this request.
	SuppressAlerts bool `json:"suppressAlerts,omitempty"`
}

type JobSnapshot struct {
	JobID              string     `json:"jobId"`
	PostedAt           time.Time  `json:"postedAt"`
	RequiredBy         *time.Time `json:"requiredBy,omitempty"`
	CorridorID         string     `json:"corridorId,omitempty"`
	RegionID           string     `json:"regionId,omitempty"`
	PosterID           string     `json:"posterId,omitempty"`
	QuickPay           bool       `json:"quickPay"`
	PostedRate         *float64   `json:"postedRate,omitempty"`
	LastPosterActionAt *time.Time `json:"lastPosterActionAt,omitempty"`

	// Caller-supplied signals win over looked-up corridor and poster stats.
	Signals *MarketSignals `json:"signals,omitempty"`
}

type MarketSignals struct {
	CorridorMedianFillMinutes *float64 `json:"corridorMedianFillMinutes,omitempty"`
	OperatorsWithinRadius     *int     `json:"operatorsWithinRadius,omitempty"`
	RecentlyActiveOperators   *int     `json:"recentlyActiveOperators,omitempty"`
	CorridorStressIndex       *float64 `json:"corridorStressIndex,omitempty"`
	CorridorFailureRate       *float64 `json:"corridorFailureRate,omitempty"`
	PosterAvgFillMinutes      *float64 `json:"posterAvgFillMinutes,omitempty"`
	PosterRepostRate          *float64 `json:"posterRepostRate,omitempty"`
	PosterCancelRate          *float64 `json:"posterCancelRate,omitempty"`
	CorridorNormRate          *float64 `json:"corridorNormRate,omitempty"`
	MarketAcceptanceRate      *float64 `json:"marketAcceptanceRate,omitempty"`
	ShortageProbability30m    *float64 `json:"shortageProbability30m,omitempty"`
	AvailabilityTrend         string   `json:"availabilityTrend,omitempty"`
}

// CorridorStats is the cached corridor_stats row.
type CorridorStats struct {
	MedianFillMinutes       float64       `json:"medianFillMinutes"`
	OperatorsWithinRadius   *int          `json:"operatorsWithinRadius,omitempty"`
	RecentlyActiveOperators *int          `json:"recentlyActiveOperators,omitempty"`
	StressIndex             *float64      `json:"stressIndex,omitempty"`
	FailureRate             *float64      `json:"failureRate,omitempty"`
	NormRate                *float64      `json:"normRate,omitempty"`
	AcceptanceRate          *float64      `json:"acceptanceRate,omitempty"`
	ShortageProbability30m  *float64      `json:"shortageProbability30m,omitempty"`
	AvailabilityTrend       urgency.Trend `json:"availabilityTrend"`
}

// PosterStats is the cached poster_stats row.
type PosterStats struct {
	AvgFillMinutes *float64 `json:"avgFillMinutes,omitempty"`
	RepostRate     *float64 `json:"repostRate,omitempty"`
	CancelRate     *float64 `json:"cancelRate,omitempty"`
}

type Output struct {
	Results []urgency.Result `json:"results"`

	// Most urgent result, ties resolved by input order.
	Highest            *urgency.Result `json:"highest,omitempty"`
	HighestBand        urgency.Band    `json:"highestBand,omitempty"`
	RequiresEscalation bool            `json:"requiresEscalation"`

	AlertedJobIDs []string  `json:"alertedJobIds,omitempty"`
	ScoredAt      time.Time `json:"scoredAt"`
}

// Alert is the SNS message body for a job that crossed the alert band.
type Alert struct {
	JobID      string          `json:"jobId"`
	CorridorID string          `json:"corridorId,omitempty"`
	RegionID   string          `json:"regionId,omitempty"`
	Score      int             `json:"score"`
	Band       urgency.Band    `json:"band"`
	Label      string          `json:"label"`
	Hint       string          `json:"hint"`
	Signals    urgency.Signals `json:"signals"`
	ScoredAt   time.Time       `json:"scoredAt"`
}

const InputSchema = `{
	"type": "object",
	"anyOf": [
		{"required": ["job"]},
		{"required": ["jobs"]}
	],
	"definitions": {
		"job": {
			"type": "object",
			"required": ["jobId", "postedAt"],
			"properties": {
				"jobId":              {"type": "string", "minLength": 1},
				"postedAt":           {"type": "string", "format": "date-time"},
				"requiredBy":         {"type": ["string", "null"], "format": "date-time"},
				"corridorId":         {"type": "string"},
				"regionId":           {"type": "string"},
				"posterId":           {"type": "string"},
				"quickPay":           {"type": "boolean"},
				"postedRate":         {"type": ["number", "null"], "minimum": 0},
				"lastPosterActionAt": {"type": ["string", "null"], "format": "date-time"},
				"signals": {
					"type": ["object", "null"],
					"properties": {
						"availabilityTrend": {"enum": ["stable", "falling", "rising", ""]}
					}
				}
			}
		}
	},
	"properties": {
		"job":            {"$ref": "#/definitions/job"},
		"jobs":           {"type": "array", "items": {"$ref": "#/definitions/job"}},
		"suppressAlerts": {"type": "boolean"}
	}
}`
