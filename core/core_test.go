package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/internal/testutil"
)

const chainID = "test-chain"

func signedTx(t *testing.T, priv crypto.PrivateKey, nonce uint64) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(chainID, core.TxPurchase, priv.Public().Hex(), nonce, 100, core.PurchasePayload{AssetID: 3})
	require.NoError(t, err)
	tx.Sign(priv)
	return tx
}

func TestTransactionSignVerify(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tx := signedTx(t, priv, 0)
	assert.NotEmpty(t, tx.ID)
	require.NoError(t, tx.Verify())

	// The attached value is covered by the signature.
	tx.Value = 1
	assert.Error(t, tx.Verify())
}

func TestBlockHashDeterministic(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	block := core.NewBlock(1, "0000", pub.Hex(), nil)
	block.Sign(priv)
	assert.Equal(t, block.ComputeHash(), block.Hash)
	require.NoError(t, block.Verify(pub))
}

func TestMempoolOrderAndChecks(t *testing.T) {
	mp := core.NewMempool(chainID)
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	first := signedTx(t, priv, 0)
	second := signedTx(t, priv, 1)
	require.NoError(t, mp.Add(first))
	require.NoError(t, mp.Add(second))
	assert.ErrorIs(t, mp.Add(first), core.ErrDuplicateTx)

	pending := mp.Pending(10)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	mp.Remove([]string{first.ID})
	assert.Equal(t, 1, mp.Size())

	foreign, err := core.NewTransaction("other-chain", core.TxPurchase, priv.Public().Hex(), 2, 0, core.PurchasePayload{})
	require.NoError(t, err)
	foreign.Sign(priv)
	assert.Error(t, mp.Add(foreign))

	stale := signedTx(t, priv, 3)
	stale.Timestamp = time.Now().Add(-2 * time.Hour).UnixNano()
	stale.Sign(priv)
	assert.Error(t, mp.Add(stale))
}

func TestMoveBalance(t *testing.T) {
	state := testutil.NewStateDB()
	require.NoError(t, state.SetAccount(&core.Account{Address: "a", Balance: 50}))

	require.NoError(t, core.MoveBalance(state, "a", "b", 20))
	a, _ := state.GetAccount("a")
	b, _ := state.GetAccount("b")
	assert.Equal(t, uint64(30), a.Balance)
	assert.Equal(t, uint64(20), b.Balance)

	assert.Error(t, core.MoveBalance(state, "a", "b", 31))
	a, _ = state.GetAccount("a")
	assert.Equal(t, uint64(30), a.Balance)
}

func TestBlockchainLinkage(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	require.NoError(t, bc.Init())
	assert.Nil(t, bc.Tip())

	genesis := core.NewBlock(0, "0000", pub.Hex(), nil)
	genesis.Sign(priv)
	require.NoError(t, bc.AddBlock(genesis))

	tx := signedTx(t, priv, 0)
	next := core.NewBlock(1, genesis.Hash, pub.Hex(), []*core.Transaction{tx})
	next.Receipts = []*core.Receipt{core.NewReceipt(tx, 1, nil)}
	next.Sign(priv)
	require.NoError(t, bc.AddBlock(next))
	assert.Equal(t, int64(1), bc.Height())

	r, err := bc.GetReceipt(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReceiptOK, r.Status)

	orphan := core.NewBlock(2, "bogus", pub.Hex(), nil)
	orphan.Sign(priv)
	assert.Error(t, bc.AddBlock(orphan))
}
