package estimatebackhaul

import (
	"time"

	"escort-ranking-workers/internal/ranking/backhaul"
)

type Input struct {
	Lane LaneContext `json:"lane"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LaneContext is the job-variable form of backhaul.Context. Nil nearby counts
// are filled from the load index.
type LaneContext struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`

	OutboundActive      int     `json:"outboundActive"`
	ReturnActive        int     `json:"returnActive"`
	OutboundLaneDensity float64 `json:"outboundLaneDensity"`
	ReturnLaneDensity   float64 `json:"returnLaneDensity"`

	NearbyLoads24h *int `json:"nearbyLoads24h,omitempty"`
	NearbyLoads72h *int `json:"nearbyLoads72h,omitempty"`
	TowardOrigin   *int `json:"towardOrigin,omitempty"`

	// Enables a radius search around the drop-off instead of a region match.
	DestinationPoint *GeoPoint `json:"destinationPoint,omitempty"`

	PostedAt time.Time  `json:"postedAt"`
	LoadDate *time.Time `json:"loadDate,omitempty"`
}

func (l LaneContext) complete() bool {
	return l.NearbyLoads24h != nil && l.NearbyLoads72h != nil && l.TowardOrigin != nil
}

func (l LaneContext) toContext() backhaul.Context {
	c := backhaul.Context{
		Origin:              l.Origin,
		Destination:         l.Destination,
		OutboundActive:      l.OutboundActive,
		ReturnActive:        l.ReturnActive,
		OutboundLaneDensity: l.OutboundLaneDensity,
		ReturnLaneDensity:   l.ReturnLaneDensity,
		TowardOrigin:        l.TowardOrigin,
		PostedAt:            l.PostedAt,
		LoadDate:            l.LoadDate,
	}
	if l.NearbyLoads24h != nil {
		c.NearbyLoads24h = *l.NearbyLoads24h
	}
	if l.NearbyLoads72h != nil {
		c.NearbyLoads72h = *l.NearbyLoads72h
	}
	return c
}

const (
	NearbySourceSupplied      = "supplied"
	NearbySourceElasticsearch = "elasticsearch"
	NearbySourceUnavailable   = "unavailable"
)

type Output struct {
	Probability  float64            `json:"probability"`
	Breakdown    backhaul.Breakdown `json:"breakdown"`
	NearbyLoads  NearbyCounts       `json:"nearbyLoads"`
	NearbySource string             `json:"nearbySource"`
	EstimatedAt  time.Time          `json:"estimatedAt"`
}

type NearbyCounts struct {
	Last24h      int  `json:"last24h"`
	Last72h      int  `json:"last72h"`
	TowardOrigin *int `json:"towardOrigin,omitempty"`
}

const InputSchema = `{
	"type": "object",
	"required": ["lane"],
	"properties": {
		"lane": {
			"type": "object",
			"required": ["origin", "destination", "postedAt"],
			"properties": {
				"origin":              {"type": "string", "minLength": 1},
				"destination":         {"type": "string", "minLength": 1},
				"outboundActive":      {"type": "integer", "minimum": 0},
				"returnActive":        {"type": "integer", "minimum": 0},
				"outboundLaneDensity": {"type": "number", "minimum": 0},
				"returnLaneDensity":   {"type": "number", "minimum": 0},
				"nearbyLoads24h":      {"type": ["integer", "null"], "minimum": 0},
				"nearbyLoads72h":      {"type": ["integer", "null"], "minimum": 0},
				"towardOrigin":        {"type": ["integer", "null"], "minimum": 0},
				"destinationPoint": {
					"type": ["object", "null"],
					"required": ["lat", "lon"],
					"properties": {
						"lat": {"type": "number", "minimum": -90, "maximum": 90},
						"lon": {"type": "number", "minimum": -180, "maximum": 180}
					}
				},
				"postedAt": {"type": "string", "format": "date-time"},
				"loadDate": {"type": ["string", "null"], "format": "date-time"}
			}
		}
	}
}`
