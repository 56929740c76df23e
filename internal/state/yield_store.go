// ./internal/state/yield_store.go
package state

import (
	"fmt"

	"github.com/omnipool-labs/alm/internal/types"
)

// InsertYieldObservation appends a yield observation to the audit log. The
// in-memory registry remains the decision source; this table exists for
// operator queries and offline analysis.
func InsertYieldObservation(rec types.YieldRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO yield_observations (chain_id, token_pair_id, apy_bps, tvl_usd, gas_price, observed_at)
        VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := DB.Exec(stmt,
		int64(rec.ChainID), string(rec.TokenPairID), rec.APYBps, rec.TVLUSD, rec.GasPrice, rec.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert yield observation: %w", err)
	}
	return nil
}

// YieldLog adapts the package-level observation log to the web server's
// YieldSink interface.
type YieldLog struct{}

func (YieldLog) InsertYieldObservation(rec types.YieldRecord) error {
	return InsertYieldObservation(rec)
}

// GetRecentYieldObservations returns the newest observations for a pair, up to
// limit, newest first.
func GetRecentYieldObservations(pair types.TokenPairID, limit int) ([]types.YieldRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT chain_id, token_pair_id, apy_bps, tvl_usd, gas_price, observed_at
        FROM yield_observations
        WHERE token_pair_id = $1
        ORDER BY observed_at DESC
        LIMIT $2;`

	rows, err := DB.Query(query, string(pair), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query yield observations: %w", err)
	}
	defer rows.Close()

	var out []types.YieldRecord
	for rows.Next() {
		var (
			rec     types.YieldRecord
			chainID int64
			pairStr string
		)
		if err := rows.Scan(&chainID, &pairStr, &rec.APYBps, &rec.TVLUSD, &rec.GasPrice, &rec.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan yield observation: %w", err)
		}
		rec.ChainID = types.ChainID(chainID)
		rec.TokenPairID = types.TokenPairID(pairStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}
