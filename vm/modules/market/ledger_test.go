package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/vm/modules/market"
)

func TestLedgerLifecycle(t *testing.T) {
	state := testutil.NewStateDB()
	ledger := market.NewLedger(state, 2)

	require.NoError(t, ledger.Create(0, "minter", 10))
	assert.ErrorIs(t, ledger.Create(0, "minter", 10), market.ErrListingExists)
	assert.ErrorIs(t, ledger.Create(1, "minter", 0), market.ErrInvalidPrice)
	assert.ErrorIs(t, ledger.Create(2, "minter", 10), core.ErrNotFound)

	_, err := ledger.Get(5)
	assert.ErrorIs(t, err, market.ErrUnknownAsset)

	assert.ErrorIs(t, ledger.Relist(0, "minter", 5), market.ErrAlreadyListed)

	offer, err := ledger.MarkSold(0)
	require.NoError(t, err)
	assert.Equal(t, core.Offer{Seller: "minter", Price: 10}, offer)
	_, err = ledger.MarkSold(0)
	assert.ErrorIs(t, err, market.ErrNotForSale)

	l, err := ledger.Get(0)
	require.NoError(t, err)
	assert.True(t, l.Sold())
	assert.Equal(t, uint64(10), l.LastPrice)

	require.NoError(t, state.SetAsset(&core.Asset{ID: 0, Owner: "buyer"}))
	assert.ErrorIs(t, ledger.Relist(0, "stranger", 5), market.ErrNotOwned)
	assert.ErrorIs(t, ledger.Relist(0, "buyer", 0), market.ErrInvalidPrice)
	require.NoError(t, ledger.Relist(0, "buyer", 5))

	l, err = ledger.Get(0)
	require.NoError(t, err)
	require.False(t, l.Sold())
	assert.Equal(t, core.Offer{Seller: "buyer", Price: 5}, *l.Offer)
}

func TestQueriesBeforeDeploy(t *testing.T) {
	state := testutil.NewStateDB()
	_, err := market.UnsoldListings(state)
	assert.ErrorIs(t, err, market.ErrNotDeployed)
	_, err = market.Holdings(state, "anyone")
	assert.ErrorIs(t, err, core.ErrStateConflict)
}
