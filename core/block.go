package core

import (
	"encoding/json"
	"time"

	"github.com/tolelom/tolmarket/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height      int64  `json:"height"`
	PrevHash    string `json:"prev_hash"`
	StateRoot   string `json:"state_root"`
	TxRoot      string `json:"tx_root"`
	ReceiptRoot string `json:"receipt_root"`
	Timestamp   int64  `json:"timestamp"`
	Proposer    string `json:"proposer"`
}

// Block is an ordered batch of transactions and their receipts. Failed
// transactions stay in the block so clients can see why they were rejected.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Receipts     []*Receipt     `json:"receipts"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs the block with the proposer's key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks the block signature against pub.
func (b *Block) Verify(pub crypto.PublicKey) error {
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// ComputeTxRoot hashes the concatenated transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, tx.ID...)
	}
	return crypto.Hash(ids)
}

// ComputeReceiptRoot hashes the serialised receipts in block order.
func ComputeReceiptRoot(receipts []*Receipt) string {
	data, err := json.Marshal(receipts)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// NewBlock creates an unsigned block. Receipts are attached by the sequencer
// after execution.
func NewBlock(height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
