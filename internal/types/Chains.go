/*

This file contains the types describing the chains the manager can operate on and
the per-(chain, pair) yield observations used for cross-chain comparison.

*/

package types

import (
	"time"
)

type ChainID uint64

// TokenPairID identifies a two-token pair independently of the chain it is
// deployed on (e.g. "ATOM-USDC").
type TokenPairID string

// ChainLink is the administrative configuration for one supported chain.
type ChainLink struct {
	ChainID           ChainID `json:"chain_id"`
	BridgeEndpointRef string  `json:"bridge_endpoint_ref"` // Opaque reference handed to the bridge adapter
	GasPriceThreshold float64 `json:"gas_price_threshold"` // Above this, migrations to the chain are not considered
	YieldThresholdBps int64   `json:"yield_threshold_bps"` // Minimum yield delta before a migration is evaluated
	BaseGasUnits      float64 `json:"base_gas_units"`      // Fixed gas-unit estimate for a full position deployment
	Active            bool    `json:"active"`
}

// YieldRecord is the latest observation for one (chain, pair). Records are
// overwritten on each update; last write wins.
type YieldRecord struct {
	ChainID     ChainID     `json:"chain_id"`
	TokenPairID TokenPairID `json:"token_pair_id"`
	APYBps      int64       `json:"apy_bps"`
	TVLUSD      float64     `json:"tvl_usd"`
	GasPrice    float64     `json:"gas_price"` // Native gas price on the chain, in USD per gas unit
	ObservedAt  time.Time   `json:"observed_at"`
}

// Fresh reports whether the record is inside the freshness window at now.
func (r YieldRecord) Fresh(window time.Duration, now time.Time) bool {
	return now.Sub(r.ObservedAt) <= window
}
