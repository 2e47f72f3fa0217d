// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Ranking       RankingConfig           `mapstructure:"ranking"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// RankingConfig holds settings shared by the ranking workers.
type RankingConfig struct {
	// Compiled-in allocation defaults can be overridden here; the database row wins over both.
	Allocation AllocationDefaults `mapstructure:"allocation"`

	ConfigCacheTTL   int `mapstructure:"config_cache_ttl"`   // seconds
	CorridorCacheTTL int `mapstructure:"corridor_cache_ttl"` // seconds
	PosterCacheTTL   int `mapstructure:"poster_cache_ttl"`   // seconds
	DiversityWindow  int `mapstructure:"diversity_window"`   // seconds

	NearbyLoadIndex string  `mapstructure:"nearby_load_index"`
	NearbyRadiusKm  float64 `mapstructure:"nearby_radius_km"`

	// Jobs above this duration are logged as slow.
	LatencyBudget int `mapstructure:"latency_budget"` // milliseconds

	AlertBand string `mapstructure:"alert_band"`
}

type AllocationDefaults struct {
	TrustWeight      float64 `mapstructure:"trust_weight"`
	ContextFitWeight float64 `mapstructure:"context_fit_weight"`
	FreshnessWeight  float64 `mapstructure:"freshness_weight"`
	ColdStartWeight  float64 `mapstructure:"cold_start_weight"`
	PaidBoostWeight  float64 `mapstructure:"paid_boost_weight"`
	MinTrustGate     float64 `mapstructure:"min_trust_gate"`
	DiversityCap     int     `mapstructure:"diversity_cap"`
}

// IsSet reports whether any weight was configured.
func (a AllocationDefaults) IsSet() bool {
	return a.TrustWeight+a.ContextFitWeight+a.FreshnessWeight+a.ColdStartWeight+a.PaidBoostWeight > 0
}

// NotificationConfig holds settings for urgency alerts.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	Email struct {
		Enabled    bool     `mapstructure:"enabled"`
		FromEmail  string   `mapstructure:"from_email"`
		Recipients []string `mapstructure:"recipients"`
	} `mapstructure:"email"`
}

type ObservabilityConfig struct {
	MetricsAddress string  `mapstructure:"metrics_address"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
