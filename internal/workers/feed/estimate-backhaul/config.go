package estimatebackhaul

import "time"

type Config struct {
	Timeout       time.Duration
	LatencyBudget time.Duration

	// Open loads are counted in this index when the caller omits nearby counts.
	NearbyLoadIndex string
	NearbyRadiusKm  float64
	QueryTimeout    time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         5 * time.Second,
		LatencyBudget:   300 * time.Millisecond,
		NearbyLoadIndex: "loads",
		NearbyRadiusKm:  150,
		QueryTimeout:    2 * time.Second,
	}
}
