// ./internal/state/snapshot_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/omnipool-labs/alm/internal/types"
)

// Saver adapts the package-level persistence functions to the keeper's
// SnapshotSaver interface.
type Saver struct{}

// SaveCycleSnapshot implements keeper.SnapshotSaver.
func (Saver) SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	return SaveCycleSnapshot(snapshot)
}

// SaveCycleSnapshot persists one cycle snapshot and returns its ID.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	positionsJSON, err := json.Marshal(snapshot.Positions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal position snapshots: %w", err)
	}

	stmt := `
        INSERT INTO cycle_snapshots (cycle_number, snapshot_timestamp, positions, rebalances_done, migrations_begun)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING snapshot_id;`

	var snapshotID int64
	err = DB.QueryRow(stmt,
		snapshot.CycleNumber, snapshot.Timestamp, positionsJSON,
		snapshot.RebalancesDone, pq.Array(snapshot.MigrationsBegun),
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert cycle snapshot: %w", err)
	}

	log.Debug().Int64("snapshot_id", snapshotID).Int("cycle", snapshot.CycleNumber).Msg("Cycle snapshot persisted")
	return snapshotID, nil
}

// GetRecentCycles returns the newest cycle snapshots, up to limit.
func GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT snapshot_id, cycle_number, snapshot_timestamp, positions, rebalances_done, migrations_begun
        FROM cycle_snapshots
        ORDER BY snapshot_timestamp DESC
        LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle snapshots: %w", err)
	}
	defer rows.Close()

	var out []types.CycleSnapshot
	for rows.Next() {
		var (
			s             types.CycleSnapshot
			positionsJSON []byte
			migrations    pq.StringArray
		)
		if err := rows.Scan(&s.SnapshotID, &s.CycleNumber, &s.Timestamp, &positionsJSON, &s.RebalancesDone, &migrations); err != nil {
			return nil, fmt.Errorf("failed to scan cycle snapshot: %w", err)
		}
		if len(positionsJSON) > 0 {
			if err := json.Unmarshal(positionsJSON, &s.Positions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal position snapshots: %w", err)
			}
		}
		s.MigrationsBegun = migrations
		out = append(out, s)
	}
	return out, rows.Err()
}
