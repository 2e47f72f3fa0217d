// internal/ranking/exposure/types.go
package exposure

import "time"

// Candidate is a caller-supplied snapshot of one operator. The engine never mutates it.
type Candidate struct {
	ID                 string     `json:"id"`
	TrustScore         float64    `json:"trustScore"`
	LicensedRegions    []string   `json:"licensedRegions"`
	VehicleTag         string     `json:"vehicleTag"`
	Available          bool       `json:"available"`
	CompletedJobs      int        `json:"completedJobs"`
	PaidBoostActive    bool       `json:"paidBoostActive"`
	LastActiveAt       *time.Time `json:"lastActiveAt,omitempty"`
	LastJobCompletedAt *time.Time `json:"lastJobCompletedAt,omitempty"`
	AvgResponseMinutes *float64   `json:"avgResponseMinutes,omitempty"`
	SelectionRate7d    float64    `json:"selectionRate7d"`
}

// SearchContext is request scoped and never persisted.
type SearchContext struct {
	OriginRegion      string `json:"originRegion"`
	DestinationRegion string `json:"destinationRegion"`
	LoadType          string `json:"loadType"`
	Hour              int    `json:"hour"`
	Limit             int    `json:"limit"`
	SessionID         string `json:"sessionId"`
}

type SubScores struct {
	Trust      float64 `json:"trust"`
	ContextFit float64 `json:"contextFit"`
	Freshness  float64 `json:"freshness"`
	ColdStart  float64 `json:"coldStart"`
	PaidBoost  float64 `json:"paidBoost"`
}

type Scored struct {
	Candidate   Candidate `json:"candidate"`
	SubScores   SubScores `json:"subScores"`
	Exposure    float64   `json:"exposure"`
	IsColdStart bool      `json:"isColdStart"`
	Suppressed  bool      `json:"suppressed"`
}

type Ranked struct {
	Rank             int     `json:"rank"`
	OperatorID       string  `json:"operatorId"`
	ExposureScore    float64 `json:"exposureScore"`
	SortScore        float64 `json:"sortScore"`
	IsColdStart      bool    `json:"isColdStart"`
	PaidBoostApplied bool    `json:"paidBoostApplied"`
	ContextFitPct    int     `json:"contextFitPct"`
	TrustPct         int     `json:"trustPct"`
	SelectionRate7d  float64 `json:"selectionRate7d"`
}

type Response struct {
	Ranked          []Ranked `json:"ranked"`
	TotalCandidates int      `json:"totalCandidates"`
	EligibleCount   int      `json:"eligibleCount"`
}
