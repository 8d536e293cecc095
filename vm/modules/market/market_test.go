package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/market"
	"github.com/tolelom/tolmarket/wallet"
)

const (
	chainID = "market-test"
	unit    = uint64(100_000_000)
	cent    = unit / 100
)

type harness struct {
	t       *testing.T
	state   *storage.StateDB
	exec    *vm.Executor
	emitter *events.Emitter
	block   *core.Block

	admin, beneficiary, alice, bob *wallet.Wallet
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, state: testutil.NewStateDB(), emitter: events.NewEmitter()}
	h.exec = vm.NewExecutor(chainID, h.state, h.emitter)
	h.block = core.NewBlock(1, "genesis", "seq", nil)
	for _, w := range []**wallet.Wallet{&h.admin, &h.beneficiary, &h.alice, &h.bob} {
		var err error
		*w, err = wallet.Generate(chainID)
		require.NoError(t, err)
		require.NoError(t, h.state.SetAccount(&core.Account{Address: (*w).Address(), Balance: 100 * unit}))
	}
	return h
}

func (h *harness) nonce(w *wallet.Wallet) uint64 {
	acc, err := h.state.GetAccount(w.Address())
	require.NoError(h.t, err)
	return acc.Nonce
}

func (h *harness) balance(addr string) uint64 {
	acc, err := h.state.GetAccount(addr)
	require.NoError(h.t, err)
	return acc.Balance
}

func (h *harness) run(tx *core.Transaction, err error) error {
	require.NoError(h.t, err)
	return h.exec.ExecuteTx(h.block, tx)
}

func (h *harness) deployPayload(prices ...uint64) core.DeployMarketPayload {
	return core.DeployMarketPayload{
		RoyaltyRate:      "0.01",
		Beneficiary:      h.beneficiary.Address(),
		RelistFee:        cent,
		SetupFeePerAsset: cent,
		Prices:           prices,
	}
}

// deployEight mints eight assets priced 1..8 units.
func (h *harness) deployEight() {
	prices := make([]uint64, 8)
	for i := range prices {
		prices[i] = uint64(i+1) * unit
	}
	require.NoError(h.t, h.run(h.admin.Deploy(h.deployPayload(prices...), h.nonce(h.admin))))
}

func (h *harness) listing(id uint64) *core.Listing {
	l, err := h.state.GetListing(id)
	require.NoError(h.t, err)
	return l
}

func (h *harness) holder(id uint64) string {
	a, err := h.state.GetAsset(id)
	require.NoError(h.t, err)
	return a.Owner
}

func TestDeployCreatesListings(t *testing.T) {
	h := newHarness(t)
	h.deployEight()

	cfg, err := market.LoadConfig(h.state)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), cfg.AssetCount)
	assert.Equal(t, h.admin.Address(), cfg.Admin)
	assert.Equal(t, "0.01", cfg.RoyaltyRate.String())

	unsold, err := market.UnsoldListings(h.state)
	require.NoError(t, err)
	require.Len(t, unsold, 8)
	for i, l := range unsold {
		assert.Equal(t, uint64(i), l.AssetID)
		assert.False(t, l.Sold())
		assert.Equal(t, h.admin.Address(), l.Offer.Seller)
		assert.Equal(t, uint64(i+1)*unit, l.Offer.Price)
		assert.Equal(t, core.MarketAddress, h.holder(uint64(i)))
	}
	assert.Equal(t, 8*cent, h.balance(core.MarketAddress))
	assert.Equal(t, 100*unit-8*cent, h.balance(h.admin.Address()))
}

func TestDeployWrongSetupValueLeavesNothing(t *testing.T) {
	h := newHarness(t)
	p := h.deployPayload(unit, 2*unit)
	tx, err := h.admin.NewTx(core.TxDeployMarket, 0, cent, p)
	err = h.run(tx, err)
	require.ErrorIs(t, err, market.ErrWrongSetupFee)
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = h.state.GetAsset(0)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = h.state.GetListing(0)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = market.LoadConfig(h.state)
	assert.ErrorIs(t, err, market.ErrNotDeployed)
	assert.Equal(t, 100*unit, h.balance(h.admin.Address()))
	assert.Equal(t, uint64(0), h.balance(core.MarketAddress))
}

func TestDeployRejections(t *testing.T) {
	h := newHarness(t)

	p := h.deployPayload()
	assert.ErrorIs(t, h.run(h.admin.Deploy(p, 0)), market.ErrNoAssets)

	p = h.deployPayload(unit, 0)
	assert.ErrorIs(t, h.run(h.admin.Deploy(p, 0)), market.ErrInvalidPrice)

	p = h.deployPayload(unit)
	p.RoyaltyRate = "1"
	assert.ErrorIs(t, h.run(h.admin.Deploy(p, 0)), market.ErrInvalidRate)

	p = h.deployPayload(unit)
	p.Beneficiary = core.MarketAddress
	assert.ErrorIs(t, h.run(h.admin.Deploy(p, 0)), market.ErrInvalidBeneficiary)

	_, err := h.state.GetAsset(0)
	assert.ErrorIs(t, err, core.ErrNotFound, "failed deploys must not mint")

	h.deployEight()
	err = h.run(h.alice.Deploy(h.deployPayload(unit), 0))
	assert.ErrorIs(t, err, market.ErrAlreadyDeployed)
}

func TestPurchaseAndResellScenario(t *testing.T) {
	h := newHarness(t)
	h.deployEight()
	adminBefore := h.balance(h.admin.Address())

	require.NoError(t, h.run(h.alice.Purchase(0, unit, h.nonce(h.alice))))

	assert.Equal(t, adminBefore+99*cent, h.balance(h.admin.Address()))
	assert.Equal(t, 100*unit+cent, h.balance(h.beneficiary.Address()))
	assert.Equal(t, 99*unit, h.balance(h.alice.Address()))
	assert.True(t, h.listing(0).Sold())
	assert.Equal(t, h.alice.Address(), h.holder(0))

	held, err := market.Holdings(h.state, h.alice.Address())
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, uint64(0), held[0].AssetID)

	require.NoError(t, h.run(h.alice.Resell(0, 2*unit, cent, h.nonce(h.alice))))

	l := h.listing(0)
	require.False(t, l.Sold())
	assert.Equal(t, h.alice.Address(), l.Offer.Seller)
	assert.Equal(t, 2*unit, l.Offer.Price)
	assert.Equal(t, core.MarketAddress, h.holder(0))
	assert.Equal(t, 99*unit-cent, h.balance(h.alice.Address()))

	held, err = market.Holdings(h.state, h.alice.Address())
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestRoundTripPaysMostRecentSeller(t *testing.T) {
	h := newHarness(t)
	h.deployEight()

	require.NoError(t, h.run(h.alice.Purchase(2, 3*unit, h.nonce(h.alice))))
	require.NoError(t, h.run(h.alice.Resell(2, 5*unit, cent, h.nonce(h.alice))))

	aliceBefore := h.balance(h.alice.Address())
	adminBefore := h.balance(h.admin.Address())
	require.NoError(t, h.run(h.bob.Purchase(2, 5*unit, h.nonce(h.bob))))

	rate, err := market.ParseRate("0.01")
	require.NoError(t, err)
	royalty, net := market.Split(5*unit, rate)
	assert.Equal(t, aliceBefore+net, h.balance(h.alice.Address()))
	assert.Equal(t, adminBefore, h.balance(h.admin.Address()))
	assert.Equal(t, h.bob.Address(), h.holder(2))
	assert.Equal(t, uint64(5*cent), royalty)
	assert.Equal(t, 5*unit, h.listing(2).LastPrice)
}

func TestPurchaseSoldAssetConflicts(t *testing.T) {
	h := newHarness(t)
	h.deployEight()
	require.NoError(t, h.run(h.alice.Purchase(0, unit, h.nonce(h.alice))))

	for _, value := range []uint64{0, unit, 2 * unit} {
		err := h.run(h.bob.Purchase(0, value, h.nonce(h.bob)))
		require.ErrorIs(t, err, market.ErrNotForSale)
		require.ErrorIs(t, err, core.ErrStateConflict)
	}
	assert.Equal(t, 100*unit, h.balance(h.bob.Address()))
}

func TestPurchaseMismatchedValueLeavesListing(t *testing.T) {
	h := newHarness(t)
	h.deployEight()
	before := h.listing(0)

	err := h.run(h.alice.Purchase(0, 2*unit, h.nonce(h.alice)))
	require.ErrorIs(t, err, market.ErrWrongPayment)
	require.ErrorIs(t, err, core.ErrValidation)

	assert.Equal(t, before, h.listing(0))
	assert.Equal(t, core.MarketAddress, h.holder(0))
	assert.Equal(t, 100*unit, h.balance(h.alice.Address()))
	assert.Equal(t, uint64(0), h.nonce(h.alice))
}

func TestPurchaseUnknownAsset(t *testing.T) {
	h := newHarness(t)
	h.deployEight()
	err := h.run(h.alice.Purchase(8, unit, 0))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRoyaltyFloorsAtIndivisiblePrice(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(h.admin.Deploy(h.deployPayload(199), 0)))

	benBefore := h.balance(h.beneficiary.Address())
	adminBefore := h.balance(h.admin.Address())
	require.NoError(t, h.run(h.alice.Purchase(0, 199, 0)))

	// 199 * 0.01 = 1.99, floored to 1.
	assert.Equal(t, benBefore+1, h.balance(h.beneficiary.Address()))
	assert.Equal(t, adminBefore+198, h.balance(h.admin.Address()))
}

func TestSplitConservesPrice(t *testing.T) {
	for _, rate := range []string{"0", "0.01", "0.025", "0.3333", "0.99999999"} {
		r, err := market.ParseRate(rate)
		require.NoError(t, err)
		for _, price := range []uint64{1, 7, 99, 101, 12_345_678_901, ^uint64(0)} {
			royalty, net := market.Split(price, r)
			assert.Equal(t, price, royalty+net, "rate %s price %d", rate, price)
			assert.LessOrEqual(t, royalty, price)
		}
	}
}

func TestParseRateBounds(t *testing.T) {
	for _, bad := range []string{"1", "1.5", "-0.01", "abc", ""} {
		_, err := market.ParseRate(bad)
		assert.ErrorIs(t, err, market.ErrInvalidRate, bad)
	}
	r, err := market.ParseRate("0")
	require.NoError(t, err)
	assert.True(t, r.IsZero())
}

func TestRateChangeAppliesToNextPurchase(t *testing.T) {
	h := newHarness(t)
	h.deployEight()

	require.NoError(t, h.run(h.admin.SetRoyaltyRate("0.1", h.nonce(h.admin))))
	benBefore := h.balance(h.beneficiary.Address())
	require.NoError(t, h.run(h.alice.Purchase(0, unit, h.nonce(h.alice))))
	assert.Equal(t, benBefore+unit/10, h.balance(h.beneficiary.Address()))
}

func TestAdminOnlyOperations(t *testing.T) {
	h := newHarness(t)
	h.deployEight()

	err := h.run(h.alice.SetRoyaltyRate("0.5", h.nonce(h.alice)))
	require.ErrorIs(t, err, market.ErrNotAdmin)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	err = h.run(h.alice.SetRelistFee(0, h.nonce(h.alice)))
	require.ErrorIs(t, err, market.ErrNotAdmin)

	err = h.run(h.admin.SetRoyaltyRate("2", h.nonce(h.admin)))
	require.ErrorIs(t, err, market.ErrInvalidRate)

	cfg, err := market.LoadConfig(h.state)
	require.NoError(t, err)
	assert.Equal(t, "0.01", cfg.RoyaltyRate.String())
	assert.Equal(t, cent, cfg.RelistFee)

	require.NoError(t, h.run(h.admin.SetRelistFee(3*cent, h.nonce(h.admin))))
	require.NoError(t, h.run(h.alice.Purchase(0, unit, h.nonce(h.alice))))
	err = h.run(h.alice.Resell(0, unit, cent, h.nonce(h.alice)))
	require.ErrorIs(t, err, market.ErrRoyaltyRequired)
	require.NoError(t, h.run(h.alice.Resell(0, unit, 3*cent, h.nonce(h.alice))))
}

func TestResellRejectionsLeaveCustody(t *testing.T) {
	h := newHarness(t)
	h.deployEight()
	require.NoError(t, h.run(h.alice.Purchase(1, 2*unit, h.nonce(h.alice))))
	aliceBefore := h.balance(h.alice.Address())

	err := h.run(h.alice.Resell(1, 0, cent, h.nonce(h.alice)))
	require.ErrorIs(t, err, market.ErrInvalidPrice)
	require.ErrorIs(t, err, core.ErrValidation)

	err = h.run(h.alice.Resell(1, unit, 0, h.nonce(h.alice)))
	require.ErrorIs(t, err, market.ErrRoyaltyRequired)
	require.ErrorIs(t, err, core.ErrValidation)

	err = h.run(h.alice.Resell(1, unit, 2*cent, h.nonce(h.alice)))
	require.ErrorIs(t, err, market.ErrRoyaltyRequired)

	err = h.run(h.bob.Resell(1, unit, cent, h.nonce(h.bob)))
	require.ErrorIs(t, err, market.ErrNotOwned)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	assert.Equal(t, h.alice.Address(), h.holder(1))
	assert.True(t, h.listing(1).Sold())
	assert.Equal(t, aliceBefore, h.balance(h.alice.Address()))
}

func TestResellListedAsset(t *testing.T) {
	h := newHarness(t)
	h.deployEight()

	err := h.run(h.admin.Resell(3, unit, cent, h.nonce(h.admin)))
	require.ErrorIs(t, err, market.ErrAlreadyListed)
	require.ErrorIs(t, err, core.ErrStateConflict)

	err = h.run(h.bob.Resell(3, unit, cent, h.nonce(h.bob)))
	require.ErrorIs(t, err, market.ErrNotOwned)
}

func TestGiftedAssetCanBeResold(t *testing.T) {
	h := newHarness(t)
	h.deployEight()
	require.NoError(t, h.run(h.alice.Purchase(4, 5*unit, h.nonce(h.alice))))
	require.NoError(t, h.run(h.alice.GiveAsset(4, h.bob.Address(), h.nonce(h.alice))))

	err := h.run(h.alice.Resell(4, unit, cent, h.nonce(h.alice)))
	require.ErrorIs(t, err, market.ErrNotOwned)
	require.NoError(t, h.run(h.bob.Resell(4, unit, cent, h.nonce(h.bob))))
	assert.Equal(t, h.bob.Address(), h.listing(4).Offer.Seller)

	// Listed assets cannot be gifted out of escrow.
	err = h.run(h.bob.GiveAsset(4, h.alice.Address(), h.nonce(h.bob)))
	require.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestEventsOnlyForCommittedSales(t *testing.T) {
	h := newHarness(t)
	h.deployEight()

	var bought, relisted []events.Event
	h.emitter.Subscribe(events.EventBought, func(ev events.Event) { bought = append(bought, ev) })
	h.emitter.Subscribe(events.EventRelisted, func(ev events.Event) { relisted = append(relisted, ev) })

	require.Error(t, h.run(h.alice.Purchase(0, 3, h.nonce(h.alice))))
	require.NoError(t, h.run(h.alice.Purchase(0, unit, h.nonce(h.alice))))
	require.NoError(t, h.run(h.alice.Resell(0, 2*unit, cent, h.nonce(h.alice))))

	require.Len(t, bought, 1)
	assert.Equal(t, uint64(0), bought[0].Data["asset_id"])
	assert.Equal(t, h.admin.Address(), bought[0].Data["seller"])
	assert.Equal(t, h.alice.Address(), bought[0].Data["buyer"])
	assert.Equal(t, unit, bought[0].Data["price"])

	require.Len(t, relisted, 1)
	assert.Equal(t, h.alice.Address(), relisted[0].Data["seller"])
	assert.Equal(t, 2*unit, relisted[0].Data["price"])
}
