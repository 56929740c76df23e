// ./internal/state/migration_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/omnipool-labs/alm/internal/types"
)

// SaveMigration upserts a migration record keyed by its ID.
func SaveMigration(m types.Migration) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO migrations (
            migration_id, initiator, from_chain, to_chain, token_pair_id,
            amount_0, amount_1, created_at, status,
            estimated_cost_usd, expected_yield_usd, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (migration_id) DO UPDATE SET
            status = EXCLUDED.status,
            updated_at = EXCLUDED.updated_at;`

	_, err := DB.Exec(stmt,
		m.ID, m.Initiator, int64(m.FromChain), int64(m.ToChain), string(m.TokenPairID),
		m.Amount0.String(), m.Amount1.String(), m.CreatedAt, string(m.Status),
		m.EstimatedCostNative, m.ExpectedYieldNative, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert migration %s: %w", m.ID, err)
	}
	return nil
}

// GetMigration loads one migration record by ID.
func GetMigration(id string) (*types.Migration, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT migration_id, initiator, from_chain, to_chain, token_pair_id,
               amount_0, amount_1, created_at, status,
               estimated_cost_usd, expected_yield_usd
        FROM migrations
        WHERE migration_id = $1;`

	row := DB.QueryRow(query, id)
	m, err := scanMigration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("migration %s not found", id)
		}
		return nil, fmt.Errorf("failed to scan migration %s: %w", id, err)
	}
	return m, nil
}

// GetRecentMigrations returns the newest migration records, up to limit.
func GetRecentMigrations(limit int) ([]types.Migration, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT migration_id, initiator, from_chain, to_chain, token_pair_id,
               amount_0, amount_1, created_at, status,
               estimated_cost_usd, expected_yield_usd
        FROM migrations
        ORDER BY created_at DESC
        LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var out []types.Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMigration(row rowScanner) (*types.Migration, error) {
	var (
		m                  types.Migration
		fromChain, toChain int64
		pair               string
		amount0, amount1   string
		status             string
	)
	err := row.Scan(
		&m.ID, &m.Initiator, &fromChain, &toChain, &pair,
		&amount0, &amount1, &m.CreatedAt, &status,
		&m.EstimatedCostNative, &m.ExpectedYieldNative,
	)
	if err != nil {
		return nil, err
	}

	m.FromChain = types.ChainID(fromChain)
	m.ToChain = types.ChainID(toChain)
	m.TokenPairID = types.TokenPairID(pair)
	m.Status = types.MigrationStatus(status)

	a0, ok := sdkmath.NewIntFromString(amount0)
	if !ok {
		return nil, fmt.Errorf("invalid amount_0 %q", amount0)
	}
	a1, ok := sdkmath.NewIntFromString(amount1)
	if !ok {
		return nil, fmt.Errorf("invalid amount_1 %q", amount1)
	}
	m.Amount0, m.Amount1 = a0, a1
	return &m, nil
}

// Archive adapts the package-level read functions to the web server's History
// interface.
type Archive struct{}

func (Archive) GetMigration(id string) (*types.Migration, error) {
	return GetMigration(id)
}

func (Archive) GetRecentMigrations(limit int) ([]types.Migration, error) {
	return GetRecentMigrations(limit)
}

func (Archive) GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	return GetRecentCycles(limit)
}

func (Archive) GetRecentYieldObservations(pair types.TokenPairID, limit int) ([]types.YieldRecord, error) {
	return GetRecentYieldObservations(pair, limit)
}

// Recorder adapts the package-level persistence functions to the
// orchestrator's Recorder interface.
type Recorder struct{}

// RecordMigration implements orchestrator.Recorder.
func (Recorder) RecordMigration(m types.Migration) error {
	if err := SaveMigration(m); err != nil {
		return err
	}
	log.Debug().Str("migrationId", m.ID).Str("status", string(m.Status)).Msg("Migration record persisted")
	return nil
}
