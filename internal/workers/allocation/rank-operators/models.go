package rankoperators

import (
	"time"

	"escort-ranking-workers/internal/ranking/exposure"
)

type Input struct {
	RequestID      string                     `json:"requestId,omitempty"`
	Candidates     []exposure.Candidate       `json:"candidates"`
	Context        exposure.SearchContext     `json:"context"`
	ConfigOverride *exposure.AllocationConfig `json:"configOverride,omitempty"`
}

type Output struct {
	RequestID             string            `json:"requestId"`
	Ranked                []exposure.Ranked `json:"ranked"`
	TotalCandidates       int               `json:"totalCandidates"`
	EligibleCount         int               `json:"eligibleCount"`
	SuppressedByDiversity []string          `json:"suppressedByDiversity,omitempty"`
	ConfigSource          string            `json:"configSource"`
	RankedAt              time.Time         `json:"rankedAt"`
}

const (
	ConfigSourceOverride = "override"
	ConfigSourceCache    = "cache"
	ConfigSourceDatabase = "database"
	ConfigSourceDefault  = "default"
)

const InputSchema = `{
	"type": "object",
	"required": ["candidates", "context"],
	"properties": {
		"requestId": {"type": "string"},
		"candidates": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "trustScore"],
				"properties": {
					"id":                 {"type": "string", "minLength": 1},
					"trustScore":         {"type": "number"},
					"licensedRegions":    {"type": "array", "items": {"type": "string"}},
					"vehicleTag":         {"type": "string"},
					"available":          {"type": "boolean"},
					"completedJobs":      {"type": "integer", "minimum": 0},
					"paidBoostActive":    {"type": "boolean"},
					"lastActiveAt":       {"type": ["string", "null"], "format": "date-time"},
					"lastJobCompletedAt": {"type": ["string", "null"], "format": "date-time"},
					"avgResponseMinutes": {"type": ["number", "null"], "minimum": 0},
					"selectionRate7d":    {"type": "number"}
				}
			}
		},
		"context": {
			"type": "object",
			"properties": {
				"originRegion":      {"type": "string"},
				"destinationRegion": {"type": "string"},
				"loadType":          {"type": "string"},
				"hour":              {"type": "integer", "minimum": 0, "maximum": 23},
				"limit":             {"type": "integer", "minimum": 0},
				"sessionId":         {"type": "string"}
			}
		},
		"configOverride": {"type": ["object", "null"]}
	}
}`
