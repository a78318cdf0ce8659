// Package database manages PostgreSQL connections and provides the data access layer.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool and provides query methods.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate runs database schema migrations.
// An advisory lock prevents concurrent replicas from racing on DDL statements.
func (db *DB) Migrate(ctx context.Context) error {
	// Acquire a dedicated connection for the advisory lock.
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for migration: %w", err)
	}
	defer conn.Release()

	// Application-specific lock ID to avoid collisions with other apps on the
	// same PostgreSQL instance.
	const migrationLockID int64 = 0x524F_5501 // "ROU" prefix + 01
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)

	schema := `
	CREATE TABLE IF NOT EXISTS providers (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		priority    INTEGER NOT NULL DEFAULT 50,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS provider_models (
		provider_id          TEXT NOT NULL REFERENCES providers(id),
		name                 TEXT NOT NULL,
		cost_per_unit_input  DOUBLE PRECISION NOT NULL DEFAULT 0,
		cost_per_unit_output DOUBLE PRECISION NOT NULL DEFAULT 0,
		quality_score        INTEGER NOT NULL DEFAULT 50,
		min_trust_required   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (provider_id, name)
	);

	CREATE TABLE IF NOT EXISTS health_records (
		provider_id     TEXT PRIMARY KEY REFERENCES providers(id),
		is_healthy      BOOLEAN NOT NULL DEFAULT TRUE,
		total_requests  BIGINT NOT NULL DEFAULT 0,
		failed_requests BIGINT NOT NULL DEFAULT 0,
		last_error      TEXT,
		last_checked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS callers (
		id          TEXT PRIMARY KEY,
		trust_score INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS usage_records (
		id           TEXT PRIMARY KEY,
		caller_id    TEXT NOT NULL,
		provider_id  TEXT NOT NULL,
		model_name   TEXT NOT NULL,
		input_units  BIGINT NOT NULL DEFAULT 0,
		output_units BIGINT NOT NULL DEFAULT 0,
		cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
		latency_ms   BIGINT NOT NULL DEFAULT 0,
		success      BOOLEAN NOT NULL DEFAULT FALSE,
		timestamp    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_usage_records_caller_id ON usage_records(caller_id);
	CREATE INDEX IF NOT EXISTS idx_usage_records_provider_id ON usage_records(provider_id);
	CREATE INDEX IF NOT EXISTS idx_usage_records_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_provider_models_trust ON provider_models(min_trust_required);
	`

	_, err = conn.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// SeedCatalog inserts the default provider/model catalog. Existing rows are
// updated in place so pricing and quality changes roll out on deploy.
func (db *DB) SeedCatalog(ctx context.Context) error {
	providers := []struct {
		ID       string
		Name     string
		Kind     string
		Priority int
	}{
		{"openai", "OpenAI", "openai", 60},
		{"anthropic", "Anthropic", "anthropic", 70},
		{"gemini", "Google Gemini", "gemini", 50},
	}

	for _, p := range providers {
		_, err := db.Pool.Exec(ctx, `
			INSERT INTO providers (id, name, kind, is_active, priority)
			VALUES ($1, $2, $3, TRUE, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, kind = EXCLUDED.kind, priority = EXCLUDED.priority
		`, p.ID, p.Name, p.Kind, p.Priority)
		if err != nil {
			return fmt.Errorf("seeding provider %s: %w", p.ID, err)
		}

		_, err = db.Pool.Exec(ctx, `
			INSERT INTO health_records (provider_id) VALUES ($1)
			ON CONFLICT (provider_id) DO NOTHING
		`, p.ID)
		if err != nil {
			return fmt.Errorf("seeding health record for %s: %w", p.ID, err)
		}
	}

	// Per-unit prices are per input/output token.
	seedModels := []struct {
		Provider string
		Name     string
		Input    float64
		Output   float64
		Quality  int
		MinTrust int
	}{
		// OpenAI
		{"openai", "gpt-4o-mini", 0.00000015, 0.0000006, 65, 0},
		{"openai", "gpt-4o", 0.0000025, 0.00001, 85, 50},
		{"openai", "o1", 0.000015, 0.00006, 95, 70},
		// Anthropic
		{"anthropic", "claude-3-haiku-20240307", 0.00000025, 0.00000125, 70, 0},
		{"anthropic", "claude-3-5-sonnet-20241022", 0.000003, 0.000015, 88, 50},
		{"anthropic", "claude-3-opus-20240229", 0.000015, 0.000075, 92, 70},
		// Google Gemini
		{"gemini", "gemini-1.5-flash", 0.000000075, 0.0000003, 60, 0},
		{"gemini", "gemini-1.5-pro", 0.00000125, 0.000005, 82, 50},
	}

	for _, m := range seedModels {
		_, err := db.Pool.Exec(ctx, `
			INSERT INTO provider_models (provider_id, name, cost_per_unit_input, cost_per_unit_output, quality_score, min_trust_required)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (provider_id, name) DO UPDATE
			SET cost_per_unit_input = EXCLUDED.cost_per_unit_input,
			    cost_per_unit_output = EXCLUDED.cost_per_unit_output,
			    quality_score = EXCLUDED.quality_score,
			    min_trust_required = EXCLUDED.min_trust_required
		`, m.Provider, m.Name, m.Input, m.Output, m.Quality, m.MinTrust)
		if err != nil {
			return fmt.Errorf("seeding model %s/%s: %w", m.Provider, m.Name, err)
		}
	}

	return nil
}
