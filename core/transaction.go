package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolmarket/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer       TxType = "transfer"
	TxTransferAsset  TxType = "transfer_asset"
	TxDeployMarket   TxType = "deploy_market"
	TxPurchase       TxType = "purchase"
	TxResell         TxType = "resell"
	TxSetRoyaltyRate TxType = "set_royalty_rate"
	TxSetRelistFee   TxType = "set_relist_fee"
)

// Transaction is the atomic unit of work on the ledger.
// From is the sender's hex ed25519 public key. Value is moved from the
// sender into marketplace escrow before the handler runs and is returned
// in full if the transaction fails.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Value     uint64          `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Value     uint64          `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns the deterministic hash of every field except ID and Signature.
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Value:     tx.Value,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets ID and Signature.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	tx.ID = tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(tx.ID))
}

// Verify checks that From is a public key and that it signed the tx.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from: %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction builds an unsigned transaction stamped with the current time.
func NewTransaction(chainID string, typ TxType, from string, nonce, value uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Value:     value,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves native balance.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// TransferAssetPayload hands an asset held outside the marketplace to
// another principal.
type TransferAssetPayload struct {
	AssetID uint64 `json:"asset_id"`
	To      string `json:"to"`
}

// DeployMarketPayload mints the collection and lists every item. The
// transaction Value must equal SetupFeePerAsset * len(Prices).
type DeployMarketPayload struct {
	RoyaltyRate      string   `json:"royalty_rate"`
	Beneficiary      string   `json:"beneficiary"`
	RelistFee        uint64   `json:"relist_fee"`
	SetupFeePerAsset uint64   `json:"setup_fee_per_asset"`
	Prices           []uint64 `json:"prices"`
}

// PurchasePayload buys a listed asset. Value must equal the asking price.
type PurchasePayload struct {
	AssetID uint64 `json:"asset_id"`
}

// ResellPayload returns a held asset to the marketplace at a new price.
// Value must equal the current relist fee.
type ResellPayload struct {
	AssetID uint64 `json:"asset_id"`
	Price   uint64 `json:"price"`
}

// SetRoyaltyRatePayload replaces the per-sale royalty rate.
type SetRoyaltyRatePayload struct {
	Rate string `json:"rate"`
}

// SetRelistFeePayload replaces the flat relist fee.
type SetRelistFeePayload struct {
	Fee uint64 `json:"fee"`
}
