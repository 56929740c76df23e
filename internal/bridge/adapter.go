// Package bridge defines the interface boundary to the external bridge network.
// The bridge either succeeds (funds later arrive on the destination and the
// destination side calls back) or fails synchronously (funds are never taken).
package bridge

import (
	sdkmath "cosmossdk.io/math"

	"github.com/omnipool-labs/alm/internal/types"
)

// TransferResult is the synchronous outcome of a transfer call. Settlement is
// asynchronous; a successful result only means the bridge accepted the funds.
type TransferResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Adapter quotes bridging fees and performs cross-chain transfers.
type Adapter interface {
	// QuoteFee returns the bridging fee in USD for moving the given value of
	// the pair to destChain.
	QuoteFee(pair types.TokenPairID, valueUSD float64, destChain types.ChainID) (float64, error)

	// Transfer hands escrowed funds to the bridge. The payload is returned
	// verbatim by the destination-side callback so the orchestrator can match
	// the completion to its migration record.
	Transfer(pair types.TokenPairID, amount0, amount1 sdkmath.Int, destChain types.ChainID, recipient string, payload []byte) (TransferResult, error)
}

// CompletionHandler is implemented by the orchestrator and invoked by the
// destination-side relay when bridged funds arrive.
type CompletionHandler interface {
	OnReceive(payload []byte, amount0, amount1 sdkmath.Int) error
}
