package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
)

const (
	prefixBlock   = "block:"
	prefixHeight  = "height:"
	prefixReceipt = "receipt:"
	keyTip        = "chain:tip"
)

// BlockStore implements core.BlockStore on any DB. It shares the DB with
// StateDB; the key prefixes do not overlap.
type BlockStore struct {
	db DB
}

// NewBlockStore wraps db as a core.BlockStore.
func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

func heightKey(height int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixHeight, height))
}

func (s *BlockStore) GetBlock(hash string) (*core.Block, error) {
	data, err := s.db.Get([]byte(prefixBlock + hash))
	if err != nil {
		return nil, err
	}
	var b core.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BlockStore) GetBlockByHeight(height int64) (*core.Block, error) {
	hash, err := s.db.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	return s.GetBlock(string(hash))
}

func (s *BlockStore) GetReceipt(txID string) (*core.Receipt, error) {
	data, err := s.db.Get([]byte(prefixReceipt + txID))
	if err != nil {
		return nil, err
	}
	var r core.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BlockStore) GetTip() (string, error) {
	val, err := s.db.Get([]byte(keyTip))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// CommitBlock writes block, its height index, its receipts and the new tip
// in one batch. A receipt already stored for a tx id is never overwritten.
func (s *BlockStore) CommitBlock(block *core.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	batch.Set([]byte(prefixBlock+block.Hash), data)
	batch.Set(heightKey(block.Header.Height), []byte(block.Hash))
	for _, r := range block.Receipts {
		key := []byte(prefixReceipt + r.TxID)
		if _, err := s.db.Get(key); err == nil {
			continue
		} else if !errors.Is(err, core.ErrNotFound) {
			return err
		}
		rd, err := json.Marshal(r)
		if err != nil {
			return err
		}
		batch.Set(key, rd)
	}
	batch.Set([]byte(keyTip), []byte(block.Hash))
	return batch.Write()
}
