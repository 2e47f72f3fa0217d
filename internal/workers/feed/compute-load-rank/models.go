package computeloadrank

import (
	"time"

	estimatebackhaul "escort-ranking-workers/internal/workers/feed/estimate-backhaul"
)

type Input struct {
	FeedID string         `json:"feedId,omitempty"`
	Loads  []LoadSnapshot `json:"loads"`

	// Zero returns every load.
	Limit int `json:"limit,omitempty"`
}

// LoadSnapshot carries the normalized 0-1 feed signals of one load. When
// BackhaulProbability is nil and Lane is set, the probability is estimated.
type LoadSnapshot struct {
	LoadID      string    `json:"loadId"`
	PostedAt    time.Time `json:"postedAt"`
	Quality     float64   `json:"quality"`
	PosterTrust float64   `json:"posterTrust"`
	LaneDensity float64   `json:"laneDensity"`
	FillSpeed   float64   `json:"fillSpeed"`

	BackhaulProbability *float64                      `json:"backhaulProbability,omitempty"`
	Lane                *estimatebackhaul.LaneContext `json:"lane,omitempty"`

	RateVisible    bool `json:"rateVisible"`
	PosterVerified bool `json:"posterVerified"`
	Incomplete     bool `json:"incomplete"`
}

type RankedLoad struct {
	Rank                int     `json:"rank"`
	LoadID              string  `json:"loadId"`
	Score               float64 `json:"score"`
	BackhaulProbability float64 `json:"backhaulProbability"`
	BackhaulEstimated   bool    `json:"backhaulEstimated"`
}

type Output struct {
	FeedID    string       `json:"feedId"`
	Ranked    []RankedLoad `json:"ranked"`
	Total     int          `json:"total"`
	Estimated int          `json:"estimated"`
	RankedAt  time.Time    `json:"rankedAt"`
}

const InputSchema = `{
	"type": "object",
	"required": ["loads"],
	"properties": {
		"feedId": {"type": "string"},
		"limit":  {"type": "integer", "minimum": 0},
		"loads": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["loadId", "postedAt"],
				"properties": {
					"loadId":              {"type": "string", "minLength": 1},
					"postedAt":            {"type": "string", "format": "date-time"},
					"quality":             {"type": "number", "minimum": 0, "maximum": 1},
					"posterTrust":         {"type": "number", "minimum": 0, "maximum": 1},
					"laneDensity":         {"type": "number", "minimum": 0, "maximum": 1},
					"fillSpeed":           {"type": "number", "minimum": 0, "maximum": 1},
					"backhaulProbability": {"type": ["number", "null"], "minimum": 0, "maximum": 1},
					"lane":                {"type": ["object", "null"], "required": ["origin", "destination"]},
					"rateVisible":         {"type": "boolean"},
					"posterVerified":      {"type": "boolean"},
					"incomplete":          {"type": "boolean"}
				}
			}
		}
	}
}`
