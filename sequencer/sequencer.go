// Package sequencer orders pending transactions into blocks. A single
// sequencer owns the ledger state: it drains the mempool in arrival order,
// executes each transaction to completion, and commits the resulting block
// followed by the state. The two writes are separate batches; CheckState
// detects a crash between them on restart.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
)

// GenesisPrevHash is the PrevHash of block 0.
var GenesisPrevHash = strings.Repeat("0", 64)

// DefaultMaxBlockTxs caps a block when the configured limit is unset.
const DefaultMaxBlockTxs = 500

// ErrGenesisFailed is returned when a genesis transaction is rejected.
var ErrGenesisFailed = errors.New("genesis transaction rejected")

// ErrStateMismatch is returned by CheckState when the stored state does not
// hash to the tip's state root.
var ErrStateMismatch = errors.New("state root does not match chain tip")

// Sequencer produces blocks from the mempool.
type Sequencer struct {
	bc      *core.Blockchain
	state   core.State
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
	maxTxs  int
}

// New creates a Sequencer that signs blocks with privKey.
func New(
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	maxTxs int,
) *Sequencer {
	if maxTxs <= 0 {
		maxTxs = DefaultMaxBlockTxs
	}
	return &Sequencer{
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
		maxTxs:  maxTxs,
	}
}

// Genesis commits block 0 from txs. Unlike regular blocks every
// transaction must succeed, otherwise nothing is committed.
func (s *Sequencer) Genesis(txs []*core.Transaction) (*core.Block, error) {
	if s.bc.Tip() != nil {
		return nil, errors.New("chain already initialised")
	}
	return s.commit(0, GenesisPrevHash, txs, true)
}

// ProduceBlock executes up to maxTxs pending transactions and commits them
// as the next block. It returns (nil, nil) when the mempool is empty.
func (s *Sequencer) ProduceBlock() (*core.Block, error) {
	tip := s.bc.Tip()
	if tip == nil {
		return nil, errors.New("chain has no genesis block")
	}
	txs := s.pendingUncommitted()
	if len(txs) == 0 {
		return nil, nil
	}
	block, err := s.commit(tip.Header.Height+1, tip.Hash, txs, false)
	if err != nil {
		return nil, err
	}

	txIDs := make([]string, len(txs))
	for i, tx := range txs {
		txIDs[i] = tx.ID
	}
	s.mempool.Remove(txIDs)
	return block, nil
}

// pendingUncommitted returns the next pending txs, dropping any whose id
// already has a receipt so a replayed tx cannot touch the stored one.
func (s *Sequencer) pendingUncommitted() []*core.Transaction {
	pending := s.mempool.Pending(s.maxTxs)
	txs := pending[:0:0]
	var stale []string
	for _, tx := range pending {
		if _, err := s.bc.GetReceipt(tx.ID); err == nil {
			stale = append(stale, tx.ID)
			continue
		}
		txs = append(txs, tx)
	}
	if len(stale) > 0 {
		s.mempool.Remove(stale)
		zap.L().Warn("dropped already committed txs", zap.Strings("tx_ids", stale))
	}
	return txs
}

func (s *Sequencer) commit(height int64, prevHash string, txs []*core.Transaction, strict bool) (*core.Block, error) {
	block := core.NewBlock(height, prevHash, s.pubKey.Hex(), txs)

	snapID, err := s.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	discard := func(cause error) error {
		s.emitter.Emit(events.Event{Type: events.EventBlockDiscarded, BlockHeight: height})
		if rerr := s.state.RevertToSnapshot(snapID); rerr != nil {
			return fmt.Errorf("%w (revert: %v)", cause, rerr)
		}
		return cause
	}

	block.Receipts = make([]*core.Receipt, len(txs))
	for i, tx := range txs {
		err := s.exec.ExecuteTx(block, tx)
		if err != nil && strict {
			return nil, discard(fmt.Errorf("%w: %s: %v", ErrGenesisFailed, tx.Type, err))
		}
		block.Receipts[i] = core.NewReceipt(tx, height, err)
	}

	// The root is taken from the write buffer before flushing so a failed
	// AddBlock leaves nothing persisted.
	block.Header.ReceiptRoot = core.ComputeReceiptRoot(block.Receipts)
	block.Header.StateRoot = s.state.ComputeRoot()
	block.Sign(s.privKey)

	if err := s.bc.AddBlock(block); err != nil {
		return nil, discard(fmt.Errorf("add block: %w", err))
	}
	if err := s.state.Commit(); err != nil {
		zap.L().Fatal("block stored but state commit failed",
			zap.Int64("height", height), zap.Error(err))
	}

	s.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(txs)},
	})
	zap.L().Info("block committed",
		zap.Int64("height", height),
		zap.String("hash", block.Hash),
		zap.Int("txs", len(txs)))
	return block, nil
}

// ValidateBlock checks a stored block's signature and linkage to its parent.
func (s *Sequencer) ValidateBlock(block *core.Block) error {
	if block.Header.Proposer != s.pubKey.Hex() {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, s.pubKey.Hex())
	}
	if block.ComputeHash() != block.Hash {
		return errors.New("block hash does not match header")
	}
	if err := block.Verify(s.pubKey); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}
	if block.Header.Height == 0 {
		if block.Header.PrevHash != GenesisPrevHash {
			return errors.New("genesis block must reference the zero prev-hash")
		}
		return nil
	}
	parent, err := s.bc.GetBlockByHeight(block.Header.Height - 1)
	if err != nil {
		return fmt.Errorf("load parent: %w", err)
	}
	if block.Header.PrevHash != parent.Hash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, parent.Hash)
	}
	return nil
}

// CheckState compares the state root with the tip's header. A mismatch
// means the node stopped between storing a block and committing its state.
func (s *Sequencer) CheckState() error {
	tip := s.bc.Tip()
	if tip == nil {
		return nil
	}
	if root := s.state.ComputeRoot(); root != tip.Header.StateRoot {
		return fmt.Errorf("%w: height %d has %s, state is %s",
			ErrStateMismatch, tip.Header.Height, tip.Header.StateRoot, root)
	}
	return nil
}

// Run produces a block every interval until ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ProduceBlock(); err != nil {
				zap.L().Error("produce block", zap.Error(err))
			}
		}
	}
}
