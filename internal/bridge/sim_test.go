package bridge

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnipool-labs/alm/internal/types"
)

// recordingHandler accepts callbacks once rejections run out, recording the
// payloads it received.
type recordingHandler struct {
	rejections int
	received   []string
}

func (h *recordingHandler) OnReceive(payload []byte, amount0, amount1 sdkmath.Int) error {
	if h.rejections > 0 {
		h.rejections--
		return types.ErrPaused
	}
	h.received = append(h.received, string(payload))
	return nil
}

func queueTransfer(t *testing.T, b *SimBridge, id string) {
	t.Helper()
	res, err := b.Transfer("ATOM-USDC", sdkmath.NewInt(100), sdkmath.NewInt(100), 2, "recipient", []byte(id))
	require.NoError(t, err)
	require.True(t, res.Accepted)
}

func TestSettleAllDeliversPending(t *testing.T) {
	b := NewSimBridge(5.0, 0)
	queueTransfer(t, b, "m-1")
	queueTransfer(t, b, "m-2")

	h := &recordingHandler{}
	require.NoError(t, b.SettleAll(h))

	assert.Equal(t, []string{"m-1", "m-2"}, h.received)
	assert.Zero(t, b.PendingCount())
}

func TestSettleAllRequeuesOnCallbackRejection(t *testing.T) {
	b := NewSimBridge(5.0, 0)
	queueTransfer(t, b, "m-1")
	queueTransfer(t, b, "m-2")

	// The first callback is rejected, so neither transfer may be dropped.
	h := &recordingHandler{rejections: 1}
	require.Error(t, b.SettleAll(h))
	assert.Empty(t, h.received)
	assert.Equal(t, 2, b.PendingCount())

	// Once the handler accepts again, a retry drains the queue in order.
	require.NoError(t, b.SettleAll(h))
	assert.Equal(t, []string{"m-1", "m-2"}, h.received)
	assert.Zero(t, b.PendingCount())
}

func TestSettleAllRequeuesUndeliveredAfterPartialFailure(t *testing.T) {
	b := NewSimBridge(5.0, 0)
	queueTransfer(t, b, "m-1")
	queueTransfer(t, b, "m-2")
	queueTransfer(t, b, "m-3")

	// The second callback fails. The first was delivered; the failed one and
	// the rest stay queued.
	h := &recordingHandler{}
	failSecond := &failAfter{inner: h, failAt: 2}
	require.Error(t, b.SettleAll(failSecond))
	assert.Equal(t, []string{"m-1"}, h.received)
	assert.Equal(t, 2, b.PendingCount())

	require.NoError(t, b.SettleAll(h))
	assert.Equal(t, []string{"m-1", "m-2", "m-3"}, h.received)
}

// failAfter rejects the nth callback it sees and delegates the rest.
type failAfter struct {
	inner  CompletionHandler
	failAt int
	seen   int
}

func (f *failAfter) OnReceive(payload []byte, amount0, amount1 sdkmath.Int) error {
	f.seen++
	if f.seen == f.failAt {
		return types.ErrPaused
	}
	return f.inner.OnReceive(payload, amount0, amount1)
}
