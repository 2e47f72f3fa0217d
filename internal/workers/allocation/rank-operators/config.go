package rankoperators

import (
	"time"

	"escort-ranking-workers/internal/ranking/exposure"
)

type Config struct {
	Timeout         time.Duration
	ConfigCacheTTL  time.Duration
	DiversityWindow time.Duration
	LatencyBudget   time.Duration

	// Used when neither the cache nor the database has a valid allocation config.
	Defaults exposure.AllocationConfig
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         5 * time.Second,
		ConfigCacheTTL:  time.Minute,
		DiversityWindow: 30 * time.Minute,
		LatencyBudget:   500 * time.Millisecond,
		Defaults:        exposure.DefaultAllocationConfig(),
	}
}
