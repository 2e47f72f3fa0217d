// internal/ranking/urgency/band.go
package urgency

import "fmt"

// Band is the discrete urgency classification of a job.
type Band string

const (
	BandFresh    Band = "fresh"
	BandWarming  Band = "warming"
	BandUrgent   Band = "urgent"
	BandCritical Band = "critical"
)

const (
	thresholdCritical = 80
	thresholdUrgent   = 60
	thresholdWarming  = 40
)

type bandInfo struct {
	label string
	color string
	hint  string
}

var bands = map[Band]bandInfo{
	BandFresh:    {label: "Fresh", color: "#16a34a", hint: "No action needed"},
	BandWarming:  {label: "Warming", color: "#ca8a04", hint: "Monitor coverage; consider a rate adjustment"},
	BandUrgent:   {label: "Urgent", color: "#ea580c", hint: "Boost visibility and notify standby operators"},
	BandCritical: {label: "Critical", color: "#dc2626", hint: "Escalate: broadcast to all nearby operators"},
}

// BandFor classifies a 0-100 score. Boundaries are inclusive on the lower side.
func BandFor(score int) Band {
	switch {
	case score >= thresholdCritical:
		return BandCritical
	case score >= thresholdUrgent:
		return BandUrgent
	case score >= thresholdWarming:
		return BandWarming
	default:
		return BandFresh
	}
}

func (b Band) Validate() error {
	if _, ok := bands[b]; !ok {
		return fmt.Errorf("invalid urgency band: %q", b)
	}
	return nil
}

// Order returns 0 for fresh through 3 for critical, -1 for unknown bands.
func (b Band) Order() int {
	switch b {
	case BandFresh:
		return 0
	case BandWarming:
		return 1
	case BandUrgent:
		return 2
	case BandCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether b is as severe as other.
func (b Band) AtLeast(other Band) bool {
	return b.Order() >= other.Order() && b.Order() >= 0
}

func (b Band) Label() string { return bands[b].label }
func (b Band) Color() string { return bands[b].color }
func (b Band) Hint() string  { return bands[b].hint }
