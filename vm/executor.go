package vm

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
)

// Context is passed to every Handler. Events raised through Emit are held
// until the transaction succeeds and dropped if it is reverted.
type Context struct {
	State core.State
	Block *core.Block
	Tx    *core.Transaction

	pending []events.Event
}

// Emit queues an event stamped with the current tx and block.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.pending = append(c.pending, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

// Executor applies transactions to the state using the global Handler
// registry. It is not safe for concurrent use; the sequencer serialises
// every call.
type Executor struct {
	chainID  string
	state    core.State
	emitter  *events.Emitter
	registry *Registry
}

// NewExecutor creates an Executor for chainID.
func NewExecutor(chainID string, state core.State, emitter *events.Emitter) *Executor {
	return &Executor{chainID: chainID, state: state, emitter: emitter, registry: globalRegistry}
}

// ExecuteTx verifies and applies a single transaction. On any failure the
// state is reverted to what it was before the call, including the nonce
// and any attached value.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if tx.ChainID != e.chainID {
		return fmt.Errorf("chain ID mismatch: got %q want %q", tx.ChainID, e.chainID)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	ctx := &Context{State: e.state, Block: block, Tx: tx}
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		zap.L().Debug("tx rejected",
			zap.String("tx", tx.ID),
			zap.String("type", string(tx.Type)),
			zap.Error(err))
		return err
	}

	if e.emitter != nil {
		for _, ev := range ctx.pending {
			e.emitter.Emit(ev)
		}
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return nil
}

// applyTx checks and bumps the nonce, escrows the attached value into the
// marketplace account, then dispatches to the handler.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	h, err := e.registry.lookup(tx.Type)
	if err != nil {
		return err
	}
	if tx.Value > 0 && !h.payable {
		return fmt.Errorf("%w: %s does not accept an attached value", core.ErrValidation, tx.Type)
	}

	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}

	if err := core.MoveBalance(e.state, tx.From, core.MarketAddress, tx.Value); err != nil {
		return fmt.Errorf("attach value: %w", err)
	}
	return h.handler(ctx, tx.Payload)
}
