// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"escort-ranking-workers/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens a pooled connection. It does not dial; call Ping.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// schemaStatements creates the read models the ranking workers query. They are
// owned by the marketplace; the statements only fill gaps in fresh environments.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS allocation_config (
		id                  SMALLINT PRIMARY KEY DEFAULT 1,
		trust_weight        DOUBLE PRECISION NOT NULL,
		context_fit_weight  DOUBLE PRECISION NOT NULL,
		freshness_weight    DOUBLE PRECISION NOT NULL,
		cold_start_weight   DOUBLE PRECISION NOT NULL,
		paid_boost_weight   DOUBLE PRECISION NOT NULL,
		min_trust_gate      DOUBLE PRECISION NOT NULL,
		diversity_cap       INTEGER NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS corridor_stats (
		corridor_id                TEXT PRIMARY KEY,
		median_fill_minutes        DOUBLE PRECISION NOT NULL,
		operators_within_radius    INTEGER,
		recently_active_operators  INTEGER,
		stress_index               DOUBLE PRECISION,
		failure_rate               DOUBLE PRECISION,
		norm_rate                  DOUBLE PRECISION,
		acceptance_rate            DOUBLE PRECISION,
		shortage_probability_30m   DOUBLE PRECISION,
		availability_trend         TEXT NOT NULL DEFAULT 'stable',
		updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS poster_stats (
		poster_id         TEXT PRIMARY KEY,
		avg_fill_minutes  DOUBLE PRECISION,
		repost_rate       DOUBLE PRECISION,
		cancel_rate       DOUBLE PRECISION,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema runs the idempotent DDL in a single transaction.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
