// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS policy_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			cooldown_blocks BIGINT NOT NULL,
			yield_horizon_days BIGINT NOT NULL,
			profit_buffer_bps BIGINT NOT NULL,
			freshness_window_seconds BIGINT NOT NULL,
			min_migration_value_usd DECIMAL(20, 8) NOT NULL,
			max_migration_value_usd DECIMAL(20, 8) NOT NULL,
			CONSTRAINT uq_policy_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_policy_parameters_config_active ON policy_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS migrations (
			migration_id VARCHAR(64) PRIMARY KEY,
			initiator TEXT NOT NULL,
			from_chain BIGINT NOT NULL,
			to_chain BIGINT NOT NULL,
			token_pair_id TEXT NOT NULL,
			amount_0 NUMERIC(40, 0) NOT NULL,
			amount_1 NUMERIC(40, 0) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL,
			estimated_cost_usd DECIMAL(20, 8) NOT NULL,
			expected_yield_usd DECIMAL(20, 8) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_migrations_status ON migrations(status);
		CREATE INDEX IF NOT EXISTS idx_migrations_created ON migrations(created_at DESC);

		CREATE TABLE IF NOT EXISTS yield_observations (
			observation_id SERIAL PRIMARY KEY,
			chain_id BIGINT NOT NULL,
			token_pair_id TEXT NOT NULL,
			apy_bps BIGINT NOT NULL,
			tvl_usd DECIMAL(20, 8) NOT NULL,
			gas_price DECIMAL(20, 12) NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_yield_observations_pair ON yield_observations(token_pair_id, chain_id, observed_at DESC);

		CREATE TABLE IF NOT EXISTS cycle_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			positions JSONB,
			rebalances_done INTEGER NOT NULL DEFAULT 0,
			migrations_begun TEXT[]
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
