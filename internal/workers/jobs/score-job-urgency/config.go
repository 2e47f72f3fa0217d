package scorejoburgency

import (
	"time"

	"escort-ranking-workers/internal/ranking/urgency"
)

type Config struct {
	Timeout          time.Duration
	CorridorCacheTTL time.Duration
	PosterCacheTTL   time.Duration
	LatencyBudget    time.Duration
	MaxBatchSize     int

	// Jobs scoring at or above AlertBand are announced once per AlertWindow.
	AlertBand       urgency.Band
	AlertWindow     time.Duration
	AlertRecipients []string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:          10 * time.Second,
		CorridorCacheTTL: 5 * time.Minute,
		PosterCacheTTL:   15 * time.Minute,
		LatencyBudget:    time.Second,
		MaxBatchSize:     500,
		AlertBand:        urgency.BandCritical,
		AlertWindow:      6 * time.Hour,
	}
}
