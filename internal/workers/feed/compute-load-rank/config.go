package computeloadrank

import "time"

type Config struct {
	Timeout       time.Duration
	LatencyBudget time.Duration
	MaxLoads      int

	// Concurrent backhaul estimations per job.
	EstimateConcurrency int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:             10 * time.Second,
		LatencyBudget:       500 * time.Millisecond,
		MaxLoads:            1000,
		EstimateConcurrency: 8,
	}
}
