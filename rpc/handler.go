package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/vm/modules/market"
)

const (
	cacheTTL     = 30 * time.Second
	cacheCleanup = time.Minute
)

// Handler holds all dependencies needed to serve RPC methods. state must
// be a read-only view of committed state.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
	cache   *cache.Cache

	// cacheMu orders fills against flushes; cacheGen counts flushes.
	cacheMu  sync.Mutex
	cacheGen uint64
}

// NewHandler creates an RPC Handler. Cached listing queries are dropped
// whenever emitter reports a committed block. idx may be nil.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string, emitter *events.Emitter) *Handler {
	h := &Handler{
		bc:      bc,
		mempool: mempool,
		state:   state,
		indexer: idx,
		chainID: chainID,
		cache:   cache.New(cacheTTL, cacheCleanup),
	}
	emitter.Subscribe(events.EventBlockCommit, h.flushCache)
	return h
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getMarket":
		return h.getMarket(req)

	case "getListing":
		return h.getListing(req)

	case "getUnsoldListings":
		return h.getUnsoldListings(req)

	case "getHoldings":
		return h.getHoldings(req)

	case "getAsset":
		return h.getAsset(req)

	case "getReceipt":
		return h.getReceipt(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) flushCache(events.Event) {
	h.cacheMu.Lock()
	h.cacheGen++
	h.cache.Flush()
	h.cacheMu.Unlock()
}

// cached returns the value under key, computing and storing it on a miss.
// A value loaded across a block commit is returned but not stored.
func (h *Handler) cached(key string, load func() (any, error)) (any, error) {
	if v, ok := h.cache.Get(key); ok {
		return v, nil
	}
	h.cacheMu.Lock()
	gen := h.cacheGen
	h.cacheMu.Unlock()

	v, err := load()
	if err != nil {
		return nil, err
	}

	h.cacheMu.Lock()
	if h.cacheGen == gen {
		h.cache.SetDefault(key, v)
	}
	h.cacheMu.Unlock()
	return v, nil
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		}
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return stateErr(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, BalanceResult{Address: params.Address, Balance: acc.Balance, Nonce: acc.Nonce})
}

func (h *Handler) getMarket(req Request) Response {
	cfg, err := h.cached("market", func() (any, error) { return market.LoadConfig(h.state) })
	if err != nil {
		if errors.Is(err, market.ErrNotDeployed) {
			return errResponse(req.ID, CodeNotFound, err.Error())
		}
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, cfg)
}

func (h *Handler) listingResult(l *core.Listing) (ListingResult, error) {
	a, err := h.state.GetAsset(l.AssetID)
	if err != nil {
		return ListingResult{}, err
	}
	r := ListingResult{AssetID: l.AssetID, Sold: l.Sold(), LastPrice: l.LastPrice, Holder: a.Owner}
	if l.Offer != nil {
		r.Seller = l.Offer.Seller
		r.Price = l.Offer.Price
	}
	return r, nil
}

func (h *Handler) listingResults(ls []*core.Listing) ([]ListingResult, error) {
	out := make([]ListingResult, 0, len(ls))
	for _, l := range ls {
		r, err := h.listingResult(l)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (h *Handler) getListing(req Request) Response {
	var params struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == nil {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	id := *params.ID
	res, err := h.cached(fmt.Sprintf("listing:%d", id), func() (any, error) {
		cfg, err := market.LoadConfig(h.state)
		if err != nil {
			return nil, err
		}
		l, err := market.NewLedger(h.state, cfg.AssetCount).Get(id)
		if err != nil {
			return nil, err
		}
		return h.listingResult(l)
	})
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, res)
}

func (h *Handler) getUnsoldListings(req Request) Response {
	res, err := h.cached("unsold", func() (any, error) {
		ls, err := market.UnsoldListings(h.state)
		if err != nil {
			return nil, err
		}
		return h.listingResults(ls)
	})
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, res)
}

func (h *Handler) getHoldings(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	res, err := h.cached("holdings:"+params.Address, func() (any, error) {
		var ls []*core.Listing
		var err error
		if h.indexer != nil {
			var ids []uint64
			if ids, err = h.indexer.AssetsByHolder(params.Address); err != nil {
				return nil, err
			}
			ls, err = market.HoldingsAmong(h.state, params.Address, ids)
		} else {
			ls, err = market.Holdings(h.state, params.Address)
		}
		if err != nil {
			return nil, err
		}
		return h.listingResults(ls)
	})
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, res)
}

func (h *Handler) getAsset(req Request) Response {
	var params struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == nil {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	asset, err := h.state.GetAsset(*params.ID)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, asset)
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	r, err := h.bc.GetReceipt(params.TxID)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, r)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if _, err := h.bc.GetReceipt(tx.ID); err == nil {
		return errResponse(req.ID, CodeRejected, core.ErrTxCommitted.Error())
	}
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeRejected, err.Error())
	}
	return okResponse(req.ID, SendTxResult{TxID: tx.ID})
}
