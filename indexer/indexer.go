// Package indexer maintains a holder → assets index over committed custody
// events so holdings can be listed without scanning every asset.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/storage"
)

const prefixHolderAssets = "idx:holder:"

// Indexer subscribes to custody events and updates the holder index. The
// index is advisory: readers must confirm each entry against state.
//
// Custody events are buffered while a block executes and written in one
// batch on block_commit, so a discarded block never reaches the index.
type Indexer struct {
	db storage.DB

	mu      sync.Mutex
	pending []custodyMove
}

// custodyMove moves asset to `to`; from is empty for a mint.
type custodyMove struct {
	assetID uint64
	from    string
	to      string
}

// New creates an Indexer backed by db and subscribes it to emitter.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	emitter.Subscribe(events.EventAssetMinted, idx.onAssetMinted)
	emitter.Subscribe(events.EventAssetTransfer, idx.onAssetTransferred)
	emitter.Subscribe(events.EventBlockCommit, idx.onBlockCommit)
	emitter.Subscribe(events.EventBlockDiscarded, idx.onBlockDiscarded)
	return idx
}

// AssetsByHolder returns the asset ids the index believes holder has.
func (idx *Indexer) AssetsByHolder(holder string) ([]uint64, error) {
	return idx.getList(prefixHolderAssets + holder)
}

func (idx *Indexer) onAssetMinted(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	assetID, ok := ev.Data["asset_id"].(uint64)
	if owner == "" || !ok {
		return
	}
	idx.buffer(custodyMove{assetID: assetID, to: owner})
}

func (idx *Indexer) onAssetTransferred(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	assetID, ok := ev.Data["asset_id"].(uint64)
	if !ok || from == "" || to == "" {
		return
	}
	idx.buffer(custodyMove{assetID: assetID, from: from, to: to})
}

func (idx *Indexer) buffer(m custodyMove) {
	idx.mu.Lock()
	idx.pending = append(idx.pending, m)
	idx.mu.Unlock()
}

func (idx *Indexer) takePending() []custodyMove {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	moves := idx.pending
	idx.pending = nil
	return moves
}

func (idx *Indexer) onBlockDiscarded(ev events.Event) {
	if moves := idx.takePending(); len(moves) > 0 {
		zap.L().Debug("indexer: dropped moves of discarded block",
			zap.Int64("height", ev.BlockHeight), zap.Int("moves", len(moves)))
	}
}

func (idx *Indexer) onBlockCommit(ev events.Event) {
	moves := idx.takePending()
	if len(moves) == 0 {
		return
	}
	if err := idx.apply(moves); err != nil {
		zap.L().Warn("indexer: apply block",
			zap.Int64("height", ev.BlockHeight), zap.Int("moves", len(moves)), zap.Error(err))
	}
}

// apply folds moves into the affected holder lists and writes them in one
// batch.
func (idx *Indexer) apply(moves []custodyMove) error {
	lists := make(map[string][]uint64)
	load := func(holder string) ([]uint64, error) {
		key := prefixHolderAssets + holder
		if ids, ok := lists[key]; ok {
			return ids, nil
		}
		ids, err := idx.getList(key)
		if err != nil {
			return nil, err
		}
		lists[key] = ids
		return ids, nil
	}

	for _, m := range moves {
		if m.from != "" {
			ids, err := load(m.from)
			if err != nil {
				return err
			}
			lists[prefixHolderAssets+m.from] = slices.DeleteFunc(ids, func(v uint64) bool { return v == m.assetID })
		}
		ids, err := load(m.to)
		if err != nil {
			return err
		}
		if !slices.Contains(ids, m.assetID) {
			ids = append(ids, m.assetID)
			slices.Sort(ids)
		}
		lists[prefixHolderAssets+m.to] = ids
	}

	batch := idx.db.NewBatch()
	for key, ids := range lists {
		data, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		batch.Set([]byte(key), data)
	}
	return batch.Write()
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}
