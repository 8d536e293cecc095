package wallet

import (
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// Wallet holds a key pair and builds signed transactions for one chain.
type Wallet struct {
	chainID string
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(chainID string, priv crypto.PrivateKey) *Wallet {
	return &Wallet{chainID: chainID, priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(chainID, priv), nil
}

// PrivKey returns the raw private key.
func (w *Wallet) PrivKey() crypto.PrivateKey { return w.priv }

// Address returns the principal address (hex public key).
func (w *Wallet) Address() string { return w.pub.Hex() }

// NewTx creates a signed transaction. nonce must match the account's
// current nonce; value is escrowed by the executor.
func (w *Wallet) NewTx(typ core.TxType, nonce, value uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), nonce, value, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer moves native balance to another principal.
func (w *Wallet) Transfer(to string, amount, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, 0, core.TransferPayload{To: to, Amount: amount})
}

// GiveAsset hands a held asset to another principal.
func (w *Wallet) GiveAsset(assetID uint64, to string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransferAsset, nonce, 0, core.TransferAssetPayload{AssetID: assetID, To: to})
}

// Deploy mints and lists the collection, attaching the setup fee.
func (w *Wallet) Deploy(p core.DeployMarketPayload, nonce uint64) (*core.Transaction, error) {
	value := p.SetupFeePerAsset * uint64(len(p.Prices))
	return w.NewTx(core.TxDeployMarket, nonce, value, p)
}

// Purchase buys assetID, attaching payment as the transaction value.
func (w *Wallet) Purchase(assetID, payment, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxPurchase, nonce, payment, core.PurchasePayload{AssetID: assetID})
}

// Resell relists a held asset at price, attaching fee as the relist fee.
func (w *Wallet) Resell(assetID, price, fee, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxResell, nonce, fee, core.ResellPayload{AssetID: assetID, Price: price})
}

// SetRoyaltyRate replaces the royalty rate (admin only). rate is a decimal
// fraction such as "0.025".
func (w *Wallet) SetRoyaltyRate(rate string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetRoyaltyRate, nonce, 0, core.SetRoyaltyRatePayload{Rate: rate})
}

// SetRelistFee replaces the flat relist fee (admin only).
func (w *Wallet) SetRelistFee(fee, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxSetRelistFee, nonce, 0, core.SetRelistFeePayload{Fee: fee})
}
