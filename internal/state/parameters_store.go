// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omnipool-labs/alm/internal/types"
)

// SavePolicyParameters saves a new version of policy parameters.
func SavePolicyParameters(params types.PolicyParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE policy_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO policy_parameters (
            version, config_name, is_active, activated_at, created_at,
            cooldown_blocks, yield_horizon_days, profit_buffer_bps,
            freshness_window_seconds, min_migration_value_usd, max_migration_value_usd
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.CooldownBlocks, params.YieldHorizonDays, params.ProfitBufferBps,
		int64(params.FreshnessWindow/time.Second), params.MinMigrationValueUSD, params.MaxMigrationValueUSD,
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert policy parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved policy parameters")
	return paramsID, nil
}

// LoadActivePolicyParameters loads the currently active policy parameters.
func LoadActivePolicyParameters(configName string) (*types.PolicyParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT cooldown_blocks, yield_horizon_days, profit_buffer_bps,
               freshness_window_seconds, min_migration_value_usd, max_migration_value_usd
        FROM policy_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	p := &types.PolicyParameters{}
	var freshnessSeconds int64
	row := DB.QueryRow(query, configName)
	err := row.Scan(
		&p.CooldownBlocks, &p.YieldHorizonDays, &p.ProfitBufferBps,
		&freshnessSeconds, &p.MinMigrationValueUSD, &p.MaxMigrationValueUSD,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active policy parameters found for config '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan active policy parameters for config '%s': %w", configName, err)
	}
	p.FreshnessWindow = time.Duration(freshnessSeconds) * time.Second

	log.Info().Str("config", configName).Msg("Loaded active policy parameters")
	return p, nil
}
