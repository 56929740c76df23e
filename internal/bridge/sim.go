package bridge

import (
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/omnipool-labs/alm/internal/types"
)

// SimBridge is an in-memory bridge adapter for simulation mode and tests. Fees
// are a flat rate plus a proportional component; transfers are recorded and can
// be settled manually through a CompletionHandler.
type SimBridge struct {
	mu sync.Mutex

	FlatFeeUSD float64
	FeeBps     int64

	// FailTransfers makes every Transfer call fail synchronously.
	FailTransfers bool
	// FailQuotes makes every QuoteFee call return an error.
	FailQuotes bool

	pending []pendingTransfer
}

type pendingTransfer struct {
	payload []byte
	amount0 sdkmath.Int
	amount1 sdkmath.Int
}

// NewSimBridge creates a bridge charging flatFeeUSD plus feeBps of the value.
func NewSimBridge(flatFeeUSD float64, feeBps int64) *SimBridge {
	return &SimBridge{FlatFeeUSD: flatFeeUSD, FeeBps: feeBps}
}

func (b *SimBridge) QuoteFee(pair types.TokenPairID, valueUSD float64, destChain types.ChainID) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailQuotes {
		return 0, types.Externalf("bridge quote unavailable for chain %d", destChain)
	}
	return b.FlatFeeUSD + valueUSD*float64(b.FeeBps)/10000, nil
}

func (b *SimBridge) Transfer(pair types.TokenPairID, amount0, amount1 sdkmath.Int, destChain types.ChainID, recipient string, payload []byte) (TransferResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailTransfers {
		return TransferResult{Accepted: false, Reason: "relay rejected transfer"}, nil
	}
	b.pending = append(b.pending, pendingTransfer{
		payload: append([]byte(nil), payload...),
		amount0: amount0,
		amount1: amount1,
	})
	return TransferResult{Accepted: true}, nil
}

// SettleAll delivers every pending transfer to the handler, simulating the
// destination-side callbacks arriving. When a callback is rejected (e.g. the
// system is paused) the failed transfer and any undelivered ones are requeued
// so a later SettleAll can retry them.
func (b *SimBridge) SettleAll(handler CompletionHandler) error {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for i, p := range pending {
		if err := handler.OnReceive(p.payload, p.amount0, p.amount1); err != nil {
			b.mu.Lock()
			b.pending = append(pending[i:], b.pending...)
			b.mu.Unlock()
			return err
		}
	}
	return nil
}

// PendingCount reports how many transfers await settlement.
func (b *SimBridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
