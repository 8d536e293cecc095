package core

// ReceiptStatus is the outcome of a transaction.
type ReceiptStatus string

const (
	ReceiptOK     ReceiptStatus = "ok"
	ReceiptFailed ReceiptStatus = "failed"
)

// Receipt records how a transaction ended. Error is set only on failure.
type Receipt struct {
	TxID        string        `json:"tx_id"`
	BlockHeight int64         `json:"block_height"`
	Status      ReceiptStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// NewReceipt builds a receipt for tx from its execution error.
func NewReceipt(tx *Transaction, height int64, err error) *Receipt {
	r := &Receipt{TxID: tx.ID, BlockHeight: height, Status: ReceiptOK}
	if err != nil {
		r.Status = ReceiptFailed
		r.Error = err.Error()
	}
	return r
}
