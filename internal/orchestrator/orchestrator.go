/*

This file contains the migration orchestrator: the state machine that escrows
funds, dispatches them to the bridge, and applies refund or completion logic
when the bridge answers.

The source-chain debit and the destination-chain credit are two independent,
non-atomic executions connected by an untrusted external bridge. The
orchestrator's job is to keep every escrowed coin accounted for in exactly one
of {returned to initiator, forwarded to bridge}, whatever the bridge does.

*/

package orchestrator

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/omnipool-labs/alm/internal/bridge"
	"github.com/omnipool-labs/alm/internal/chains"
	"github.com/omnipool-labs/alm/internal/evaluator"
	"github.com/omnipool-labs/alm/internal/keylock"
	"github.com/omnipool-labs/alm/internal/logger"
	"github.com/omnipool-labs/alm/internal/metrics"
	"github.com/omnipool-labs/alm/internal/pause"
	"github.com/omnipool-labs/alm/internal/types"
)

// Recorder persists migration records as they transition. Persistence is an
// audit trail: a recorder failure is logged, never propagated, and decision
// state never depends on it.
type Recorder interface {
	RecordMigration(m types.Migration) error
}

// Config holds the dependencies for creating an Orchestrator.
type Config struct {
	Treasury  Treasury
	Bridge    bridge.Adapter
	Chains    *chains.Registry
	Evaluator *evaluator.Evaluator
	Pause     *pause.Switch
	Params    types.PolicyParameters

	// AuthorizedCaller is the identity allowed to deliver completion
	// callbacks. Admin is allowed to cancel any pending migration.
	AuthorizedCaller string
	Admin            string

	// Recorder is optional write-through persistence.
	Recorder Recorder
}

// Orchestrator owns all migration records and their transitions.
type Orchestrator struct {
	logger zerolog.Logger

	treasury  Treasury
	bridge    bridge.Adapter
	chains    *chains.Registry
	evaluator *evaluator.Evaluator
	pause     *pause.Switch
	recorder  Recorder

	mu         sync.RWMutex
	migrations map[string]*types.Migration
	authorized string
	admin      string
	params     types.PolicyParameters

	locks keylock.Map
	nonce atomic.Uint64
}

// New creates an orchestrator. Treasury, bridge, chain registry, evaluator and
// pause switch are required.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Treasury == nil {
		return nil, types.Validationf("treasury cannot be nil")
	}
	if cfg.Bridge == nil {
		return nil, types.Validationf("bridge adapter cannot be nil")
	}
	if cfg.Chains == nil {
		return nil, types.Validationf("chain registry cannot be nil")
	}
	if cfg.Evaluator == nil {
		return nil, types.Validationf("evaluator cannot be nil")
	}
	if cfg.Pause == nil {
		return nil, types.Validationf("pause switch cannot be nil")
	}

	return &Orchestrator{
		logger:     logger.GetForComponent("migration_orchestrator"),
		treasury:   cfg.Treasury,
		bridge:     cfg.Bridge,
		chains:     cfg.Chains,
		evaluator:  cfg.Evaluator,
		pause:      cfg.Pause,
		recorder:   cfg.Recorder,
		migrations: make(map[string]*types.Migration),
		authorized: cfg.AuthorizedCaller,
		admin:      cfg.Admin,
		params:     cfg.Params,
	}, nil
}

// SetAuthorizedCaller rotates the completion-callback capability.
func (o *Orchestrator) SetAuthorizedCaller(caller string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.authorized = caller
}

// SetMigrationBounds updates the min/max value a migration may carry.
func (o *Orchestrator) SetMigrationBounds(minUSD, maxUSD float64) error {
	if minUSD < 0 || maxUSD <= 0 || minUSD > maxUSD {
		return types.Validationf("invalid migration bounds [%f, %f]", minUSD, maxUSD)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.params.MinMigrationValueUSD = minUSD
	o.params.MaxMigrationValueUSD = maxUSD
	return nil
}

// migrationID derives a globally unique deterministic ID from the attempt's
// identity plus a monotonic nonce, so two distinct attempts with identical
// parameters never collide, even within the same block.
func (o *Orchestrator) migrationID(initiator string, from, to types.ChainID, pair types.TokenPairID, amount0, amount1 sdkmath.Int, nonce uint64) string {
	h := sha256.New()
	h.Write([]byte(initiator))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(from))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(to))
	h.Write(buf[:])
	h.Write([]byte(pair))
	h.Write([]byte(amount0.String()))
	h.Write([]byte(amount1.String()))
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Create validates the attempt, escrows the funds, and records the migration
// in Pending. The evaluator must report the move profitable; anything else is
// a policy rejection with no state change.
func (o *Orchestrator) Create(initiator string, from, to types.ChainID, pair types.TokenPairID, amount0, amount1 sdkmath.Int, totalValueUSD float64, now time.Time) (types.Migration, error) {
	if err := o.pause.Check(); err != nil {
		return types.Migration{}, err
	}
	if initiator == "" {
		return types.Migration{}, types.Validationf("initiator must not be empty")
	}
	if amount0.IsNil() || amount1.IsNil() || amount0.IsNegative() || amount1.IsNegative() {
		return types.Migration{}, types.Validationf("migration amounts must be non-negative")
	}
	if amount0.IsZero() && amount1.IsZero() {
		return types.Migration{}, types.Validationf("migration amounts must not both be zero")
	}

	toLink, err := o.chains.Get(to)
	if err != nil {
		return types.Migration{}, err
	}
	if !toLink.Active {
		return types.Migration{}, types.Validationf("destination chain %d is not active", to)
	}

	o.mu.RLock()
	minUSD, maxUSD := o.params.MinMigrationValueUSD, o.params.MaxMigrationValueUSD
	o.mu.RUnlock()
	if totalValueUSD < minUSD || totalValueUSD > maxUSD {
		return types.Migration{}, types.Validationf("migration value %f outside bounds [%f, %f]", totalValueUSD, minUSD, maxUSD)
	}

	verdict := o.evaluator.Evaluate(from, to, pair, totalValueUSD, now)
	if !verdict.Profitable {
		return types.Migration{}, types.ErrNotProfitable
	}

	id := o.migrationID(initiator, from, to, pair, amount0, amount1, o.nonce.Add(1))
	unlock := o.locks.Lock(id)
	defer unlock()

	o.mu.Lock()
	if _, exists := o.migrations[id]; exists {
		o.mu.Unlock()
		return types.Migration{}, types.Invariantf("duplicate migration id %s", id)
	}
	o.mu.Unlock()

	// Escrow before the record exists: a failed debit leaves nothing behind.
	if err := o.treasury.Debit(initiator, pair, amount0, amount1); err != nil {
		return types.Migration{}, err
	}

	m := types.Migration{
		ID:                  id,
		Initiator:           initiator,
		FromChain:           from,
		ToChain:             to,
		TokenPairID:         pair,
		Amount0:             amount0,
		Amount1:             amount1,
		CreatedAt:           now,
		Status:              types.MigrationPending,
		EstimatedCostNative: verdict.EstimatedCost,
		ExpectedYieldNative: verdict.ExpectedYield,
	}

	o.mu.Lock()
	o.migrations[id] = &m
	o.mu.Unlock()

	metrics.MigrationsTotal.WithLabelValues(string(types.MigrationPending)).Inc()
	metrics.EscrowedMigrations.Inc()
	o.record(m)
	o.logger.Info().
		Str("migrationId", id).
		Str("initiator", initiator).
		Uint64("fromChain", uint64(from)).
		Uint64("toChain", uint64(to)).
		Str("amount0", amount0.String()).
		Str("amount1", amount1.String()).
		Float64("expectedYield", verdict.ExpectedYield).
		Float64("estimatedCost", verdict.EstimatedCost).
		Msg("Migration created")
	return m, nil
}

// Dispatch moves a Pending migration to InProgress and hands the escrow to the
// bridge. A synchronous bridge failure converts directly to Failed with a full
// refund; the failure never propagates past this boundary. Dispatching a
// terminal migration is a no-op.
func (o *Orchestrator) Dispatch(id string) error {
	if err := o.pause.Check(); err != nil {
		return err
	}

	unlock := o.locks.Lock(id)
	defer unlock()

	o.mu.Lock()
	m, ok := o.migrations[id]
	if !ok {
		o.mu.Unlock()
		return types.Validationf("unknown migration %s", id)
	}
	switch {
	case m.Status.Terminal():
		o.mu.Unlock()
		return nil // duplicate dispatch after resolution, deliberately silent
	case m.Status == types.MigrationInProgress:
		o.mu.Unlock()
		return types.Invariantf("migration %s already dispatched", id)
	}
	m.Status = types.MigrationInProgress
	snapshot := *m
	o.mu.Unlock()

	metrics.MigrationsTotal.WithLabelValues(string(types.MigrationInProgress)).Inc()
	o.record(snapshot)
	o.logger.Info().Str("migrationId", id).Msg("Migration dispatched")

	link, err := o.chains.Get(snapshot.ToChain)
	if err != nil {
		return o.failAndRefund(id, "destination chain vanished before transfer")
	}

	result, err := o.bridge.Transfer(snapshot.TokenPairID, snapshot.Amount0, snapshot.Amount1, snapshot.ToChain, link.BridgeEndpointRef, []byte(id))
	if err != nil {
		return o.failAndRefund(id, err.Error())
	}
	if !result.Accepted {
		return o.failAndRefund(id, result.Reason)
	}
	// Funds are now with the bridge; the migration stays InProgress until the
	// destination-side callback arrives, possibly forever. Escalation is an
	// external reconciliation concern.
	return nil
}

// failAndRefund converts an InProgress migration to Failed and returns the
// escrow to the initiator.
func (o *Orchestrator) failAndRefund(id, reason string) error {
	o.mu.Lock()
	m, ok := o.migrations[id]
	if !ok || m.Status.Terminal() {
		o.mu.Unlock()
		return nil
	}
	m.Status = types.MigrationFailed
	snapshot := *m
	o.mu.Unlock()

	if err := o.treasury.Credit(snapshot.Initiator, snapshot.TokenPairID, snapshot.Amount0, snapshot.Amount1); err != nil {
		// The refund itself failing leaves escrow unaccounted: loudest
		// possible log, record still marked Failed.
		o.logger.Error().Err(err).Str("migrationId", id).Msg("ESCROW REFUND FAILED")
	}

	metrics.MigrationsTotal.WithLabelValues(string(types.MigrationFailed)).Inc()
	metrics.EscrowedMigrations.Dec()
	o.record(snapshot)
	o.logger.Warn().
		Str("migrationId", id).
		Str("reason", reason).
		Msg("Migration failed, escrow refunded")
	return nil
}

// Complete finalizes an InProgress migration. Only the authorized caller may
// deliver it. Completing an already terminal migration is a no-op, so
// duplicate callbacks cannot corrupt state. A completion for a Pending
// migration means the bridge answered before dispatch: an integration bug.
func (o *Orchestrator) Complete(caller, id string, final types.FinalAmounts) error {
	if err := o.pause.Check(); err != nil {
		return err
	}

	o.mu.RLock()
	authorized := o.authorized
	o.mu.RUnlock()
	if caller != authorized {
		return types.Validationf("caller %q is not authorized to complete migrations", caller)
	}

	unlock := o.locks.Lock(id)
	defer unlock()

	o.mu.Lock()
	m, ok := o.migrations[id]
	if !ok {
		o.mu.Unlock()
		return types.Validationf("unknown migration %s", id)
	}
	switch {
	case m.Status.Terminal():
		o.mu.Unlock()
		return nil
	case m.Status == types.MigrationPending:
		o.mu.Unlock()
		return types.Invariantf("completion delivered for undispatched migration %s", id)
	}
	m.Status = types.MigrationCompleted
	snapshot := *m
	o.mu.Unlock()

	metrics.MigrationsTotal.WithLabelValues(string(types.MigrationCompleted)).Inc()
	metrics.EscrowedMigrations.Dec()
	o.record(snapshot)
	o.logger.Info().
		Str("migrationId", id).
		Str("finalAmount0", final.Amount0.String()).
		Str("finalAmount1", final.Amount1.String()).
		Msg("Migration completed")
	return nil
}

// Cancel aborts a Pending migration before any bridge call and refunds the
// escrow. Only the initiator or the administrator may cancel.
func (o *Orchestrator) Cancel(caller, id string) error {
	if err := o.pause.Check(); err != nil {
		return err
	}

	unlock := o.locks.Lock(id)
	defer unlock()

	o.mu.Lock()
	m, ok := o.migrations[id]
	if !ok {
		o.mu.Unlock()
		return types.Validationf("unknown migration %s", id)
	}
	if caller != m.Initiator && caller != o.admin {
		o.mu.Unlock()
		return types.Validationf("caller %q may not cancel migration %s", caller, id)
	}
	if m.Status != types.MigrationPending {
		o.mu.Unlock()
		return types.Invariantf("migration %s is %s, cancel requires Pending", id, m.Status)
	}
	m.Status = types.MigrationCancelled
	snapshot := *m
	o.mu.Unlock()

	if err := o.treasury.Credit(snapshot.Initiator, snapshot.TokenPairID, snapshot.Amount0, snapshot.Amount1); err != nil {
		o.logger.Error().Err(err).Str("migrationId", id).Msg("ESCROW REFUND FAILED")
	}

	metrics.MigrationsTotal.WithLabelValues(string(types.MigrationCancelled)).Inc()
	metrics.EscrowedMigrations.Dec()
	o.record(snapshot)
	o.logger.Info().Str("migrationId", id).Str("caller", caller).Msg("Migration cancelled, escrow refunded")
	return nil
}

// OnReceive implements bridge.CompletionHandler: the destination-side relay
// delivers the payload (the migration ID) with the final amounts.
func (o *Orchestrator) OnReceive(payload []byte, amount0, amount1 sdkmath.Int) error {
	o.mu.RLock()
	authorized := o.authorized
	o.mu.RUnlock()
	return o.Complete(authorized, string(payload), types.FinalAmounts{Amount0: amount0, Amount1: amount1})
}

// Get returns a copy of the migration record.
func (o *Orchestrator) Get(id string) (types.Migration, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.migrations[id]
	if !ok {
		return types.Migration{}, types.Validationf("unknown migration %s", id)
	}
	return *m, nil
}

// List returns all migration records ordered by creation time, newest first.
func (o *Orchestrator) List() []types.Migration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]types.Migration, 0, len(o.migrations))
	for _, m := range o.migrations {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (o *Orchestrator) record(m types.Migration) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordMigration(m); err != nil {
		o.logger.Error().Err(err).Str("migrationId", m.ID).Msg("Failed to persist migration record")
	}
}
