// Package events is the in-process pub/sub bus for ledger events.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit    EventType = "block_commit"
	EventBlockDiscarded EventType = "block_discarded"
	EventTxExecuted     EventType = "tx_executed"
	EventTokenTransfer  EventType = "token_transfer"
	EventAssetMinted    EventType = "asset_minted"
	EventAssetTransfer  EventType = "asset_transfer"
	EventMarketDeployed EventType = "market_deployed"
	EventBought         EventType = "bought"
	EventRelisted       EventType = "relisted"
	EventRoyaltyRateSet EventType = "royalty_rate_set"
	EventRelistFeeSet   EventType = "relist_fee_set"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter delivers events synchronously to subscribers. Subscribe before
// Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to every subscriber of ev.Type. A panicking subscriber
// is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("event handler panicked",
						zap.String("type", string(ev.Type)),
						zap.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}
