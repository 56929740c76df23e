/*

This file contains the migration evaluator: it combines a yield registry
snapshot with bridging-cost estimates to produce a profitability verdict and a
horizon-bounded expected-yield figure.

The projection is a deliberate policy choice, not a derivation: a linear
extrapolation of the APY delta over a configurable horizon (30 days by
default), compared against estimated cost inflated by a profit buffer.

*/

package evaluator

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/omnipool-labs/alm/internal/bridge"
	"github.com/omnipool-labs/alm/internal/chains"
	"github.com/omnipool-labs/alm/internal/logger"
	"github.com/omnipool-labs/alm/internal/types"
	"github.com/omnipool-labs/alm/internal/yieldregistry"
)

// Verdict is the outcome of a profitability evaluation. A false Profitable
// carries the reason; degenerate inputs are a verdict, never an error.
type Verdict struct {
	Profitable    bool    `json:"profitable"`
	ExpectedYield float64 `json:"expected_yield_usd"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
	Reason        string  `json:"reason,omitempty"`
}

// Evaluator decides whether relocating a position pays for its bridging and
// gas costs within the yield horizon.
type Evaluator struct {
	logger   zerolog.Logger
	registry *yieldregistry.Registry
	chains   *chains.Registry
	bridge   bridge.Adapter
	params   types.PolicyParameters
}

// New creates an evaluator over the given registries and bridge quote source.
func New(registry *yieldregistry.Registry, chainRegistry *chains.Registry, bridgeAdapter bridge.Adapter, params types.PolicyParameters) *Evaluator {
	return &Evaluator{
		logger:   logger.GetForComponent("migration_evaluator"),
		registry: registry,
		chains:   chainRegistry,
		bridge:   bridgeAdapter,
		params:   params,
	}
}

// Evaluate projects the yield improvement of moving totalValue from fromChain
// to toChain and compares it against bridging plus destination gas cost.
//
//	expectedYield = totalValue * max(0, apyTo-apyFrom) * horizonDays / (365 * 10000)
//	estimatedCost = bridgeFee + baseGasUnits(to) * gasPrice(to)
//	profitable    = expectedYield > estimatedCost * (1 + profitBufferBps/10000)
//
// Zero value, unknown chains, stale yield data and failing bridge quotes all
// return profitable=false: "not profitable" is the safe default for a decision
// with financial consequences.
func (e *Evaluator) Evaluate(fromChain, toChain types.ChainID, pair types.TokenPairID, totalValue float64, now time.Time) Verdict {
	if totalValue <= 0 {
		return Verdict{Reason: "total value is zero"}
	}
	if fromChain == toChain {
		return Verdict{Reason: "source and destination chains are identical"}
	}

	toLink, err := e.chains.Get(toChain)
	if err != nil {
		return Verdict{Reason: "destination chain not registered"}
	}
	if !toLink.Active {
		return Verdict{Reason: "destination chain inactive"}
	}
	if _, err := e.chains.Get(fromChain); err != nil {
		return Verdict{Reason: "source chain not registered"}
	}

	fromRec, ok := e.registry.Get(fromChain, pair)
	if !ok || !fromRec.Fresh(e.params.FreshnessWindow, now) {
		return Verdict{Reason: "no fresh yield data for source chain"}
	}
	toRec, ok := e.registry.Get(toChain, pair)
	if !ok || !toRec.Fresh(e.params.FreshnessWindow, now) {
		return Verdict{Reason: "no fresh yield data for destination chain"}
	}

	if toLink.GasPriceThreshold > 0 && toRec.GasPrice > toLink.GasPriceThreshold {
		return Verdict{Reason: "destination gas price above threshold"}
	}

	deltaBps := toRec.APYBps - fromRec.APYBps
	if deltaBps < 0 {
		deltaBps = 0
	}
	if toLink.YieldThresholdBps > 0 && deltaBps < toLink.YieldThresholdBps {
		return Verdict{Reason: "yield delta below destination chain threshold"}
	}
	expectedYield := totalValue * float64(deltaBps) * float64(e.params.YieldHorizonDays) / (365.0 * 10000.0)

	bridgeFee, err := e.bridge.QuoteFee(pair, totalValue, toChain)
	if err != nil {
		e.logger.Warn().Err(err).
			Uint64("toChain", uint64(toChain)).
			Msg("Bridge fee quote failed, treating migration as unprofitable")
		return Verdict{ExpectedYield: expectedYield, Reason: "bridge quote unavailable"}
	}
	gasEstimate := toLink.BaseGasUnits * toRec.GasPrice
	estimatedCost := bridgeFee + gasEstimate

	buffered := estimatedCost * (1 + float64(e.params.ProfitBufferBps)/10000.0)
	verdict := Verdict{
		Profitable:    expectedYield > buffered,
		ExpectedYield: expectedYield,
		EstimatedCost: estimatedCost,
	}
	if !verdict.Profitable {
		verdict.Reason = "projected yield does not cover buffered cost"
	}

	e.logger.Debug().
		Uint64("fromChain", uint64(fromChain)).
		Uint64("toChain", uint64(toChain)).
		Str("pair", string(pair)).
		Float64("totalValue", totalValue).
		Int64("deltaBps", deltaBps).
		Float64("expectedYield", expectedYield).
		Float64("estimatedCost", estimatedCost).
		Bool("profitable", verdict.Profitable).
		Msg("Migration evaluated")
	return verdict
}
