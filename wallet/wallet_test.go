package wallet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate("test-chain")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "admin.key")

	require.NoError(t, SaveKey(path, "hunter2", w.PrivKey()))

	priv, err := LoadKey(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, w.Address(), priv.Public().Hex())

	_, err = LoadKey(path, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestDeployAttachesSetupFee(t *testing.T) {
	w, err := Generate("test-chain")
	require.NoError(t, err)

	tx, err := w.Deploy(core.DeployMarketPayload{SetupFeePerAsset: 5, Prices: []uint64{1, 2, 3}}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), tx.Value)
	assert.Equal(t, core.TxDeployMarket, tx.Type)
	require.NoError(t, tx.Verify())
}

func TestResellCarriesFeeAsValue(t *testing.T) {
	w, err := Generate("test-chain")
	require.NoError(t, err)

	tx, err := w.Resell(2, 900, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tx.Value)
	assert.Equal(t, uint64(4), tx.Nonce)
	assert.Equal(t, "test-chain", tx.ChainID)
}
