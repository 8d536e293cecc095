package storage_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/storage"
)

func TestLevelDBStateAndBlocksSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	state := storage.NewStateDB(db)
	require.NoError(t, state.SetListing(&core.Listing{AssetID: 7, Offer: &core.Offer{Seller: "s", Price: 3}, LastPrice: 3}))
	root := state.ComputeRoot()
	require.NoError(t, state.Commit())

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	block := core.NewBlock(0, "0000", pub.Hex(), nil)
	block.Header.StateRoot = root
	block.Sign(priv)
	require.NoError(t, storage.NewBlockStore(db).CommitBlock(block))
	require.NoError(t, db.Close())

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()

	l, err := storage.NewStateDB(db).GetListing(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), l.Offer.Price)
	assert.Equal(t, root, storage.NewStateDB(db).ComputeRoot())

	bs := storage.NewBlockStore(db)
	tip, err := bs.GetTip()
	require.NoError(t, err)
	assert.Equal(t, block.Hash, tip)
	got, err := bs.GetBlockByHeight(0)
	require.NoError(t, err)
	assert.Equal(t, block.Hash, got.Hash)

	_, err = bs.GetReceipt("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCommitBlockKeepsFirstReceipt(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "chain"))
	require.NoError(t, err)
	defer db.Close()
	bs := storage.NewBlockStore(db)

	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	tx := &core.Transaction{ID: "tx-1"}

	first := core.NewBlock(0, "0000", pub.Hex(), []*core.Transaction{tx})
	first.Receipts = []*core.Receipt{core.NewReceipt(tx, 0, nil)}
	first.Sign(priv)
	require.NoError(t, bs.CommitBlock(first))

	second := core.NewBlock(1, first.Hash, pub.Hex(), []*core.Transaction{tx})
	second.Receipts = []*core.Receipt{core.NewReceipt(tx, 1, errors.New("invalid nonce"))}
	second.Sign(priv)
	require.NoError(t, bs.CommitBlock(second))

	r, err := bs.GetReceipt("tx-1")
	require.NoError(t, err)
	assert.Equal(t, core.ReceiptOK, r.Status)
	assert.Equal(t, int64(0), r.BlockHeight)

	tip, err := bs.GetTip()
	require.NoError(t, err)
	assert.Equal(t, second.Hash, tip)
}
