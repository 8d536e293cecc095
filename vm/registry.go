package vm

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tolelom/tolmarket/core"
)

// Handler is the function signature every transaction module must implement.
type Handler func(ctx *Context, payload json.RawMessage) error

type entry struct {
	handler Handler
	payable bool
}

// Registry maps TxTypes to Handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.TxType]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.TxType]entry)}
}

func (r *Registry) add(typ core.TxType, e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("vm: handler already registered for TxType %q", typ))
	}
	r.handlers[typ] = e
}

// Register associates typ with h. Transactions of this type must not carry
// a Value. Panics on duplicate registration.
func (r *Registry) Register(typ core.TxType, h Handler) {
	r.add(typ, entry{handler: h})
}

// RegisterPayable is Register for handlers that consume an attached Value.
func (r *Registry) RegisterPayable(typ core.TxType, h Handler) {
	r.add(typ, entry{handler: h, payable: true})
}

func (r *Registry) lookup(typ core.TxType) (entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.handlers[typ]
	if !ok {
		return entry{}, fmt.Errorf("%w: no handler registered for TxType %q", core.ErrValidation, typ)
	}
	return e, nil
}

var globalRegistry = NewRegistry()

// Register adds a handler to the global registry.
// Module init() functions call this to self-register.
func Register(typ core.TxType, h Handler) {
	globalRegistry.Register(typ, h)
}

// RegisterPayable adds a value-accepting handler to the global registry.
func RegisterPayable(typ core.TxType, h Handler) {
	globalRegistry.RegisterPayable(typ, h)
}
