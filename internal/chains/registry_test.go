package chains

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnipool-labs/alm/internal/types"
)

func link(id types.ChainID) types.ChainLink {
	return types.ChainLink{
		ChainID:           id,
		BridgeEndpointRef: "bridge-endpoint",
		BaseGasUnits:      21_000,
		Active:            true,
	}
}

func TestRegisterValidates(t *testing.T) {
	r := NewRegistry()

	bad := link(0)
	err := r.Register(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	bad = link(1)
	bad.BridgeEndpointRef = ""
	assert.Error(t, r.Register(bad))

	bad = link(1)
	bad.BaseGasUnits = 0
	assert.Error(t, r.Register(bad))

	require.NoError(t, r.Register(link(1)))
	got, err := r.Get(1)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(link(1)))

	updated := link(1)
	updated.GasPriceThreshold = 0.5
	require.NoError(t, r.Register(updated))

	got, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.GasPriceThreshold)
}

func TestDeregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(link(1)))
	require.NoError(t, r.Deregister(1))

	_, err := r.Get(1)
	assert.Error(t, err)
	assert.Error(t, r.Deregister(1))
}

func TestSetActive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(link(1)))

	require.NoError(t, r.SetActive(1, false))
	got, err := r.Get(1)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.Error(t, r.SetActive(2, false))
}

func TestListOrderedByChainID(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(link(3)))
	require.NoError(t, r.Register(link(1)))
	require.NoError(t, r.Register(link(2)))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, types.ChainID(1), list[0].ChainID)
	assert.Equal(t, types.ChainID(2), list[1].ChainID)
	assert.Equal(t, types.ChainID(3), list[2].ChainID)
}
