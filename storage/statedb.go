package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// registerPrefix records a state-key prefix so ComputeRoot covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixAsset   = registerPrefix("asset:")
	prefixListing = registerPrefix("list:")
	keyMarket     = registerPrefix("market:config")
)

// idKey zero-pads numeric ids so that prefix iteration follows id order.
func idKey(prefix string, id uint64) string {
	return fmt.Sprintf("%s%020d", prefix, id)
}

type stateSnapshot struct {
	dirty map[string][]byte
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer, snapshot/rollback, and deterministic state-root computation.
//
// A StateDB that is never written to is a read-only view of committed
// state; the RPC layer uses one so it never observes a half-applied
// transaction.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

func (s *StateDB) get(key string) ([]byte, error) {
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.dirty[key] = val
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Account ----

// GetAccount returns a zero-balance account for unknown addresses.
func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Asset registry ----

func (s *StateDB) GetAsset(id uint64) (*core.Asset, error) {
	var asset core.Asset
	if err := s.getJSON(idKey(prefixAsset, id), &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *StateDB) SetAsset(asset *core.Asset) error {
	return s.setJSON(idKey(prefixAsset, asset.ID), asset)
}

// ---- Listings ----

func (s *StateDB) GetListing(id uint64) (*core.Listing, error) {
	var l core.Listing
	if err := s.getJSON(idKey(prefixListing, id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *StateDB) SetListing(l *core.Listing) error {
	return s.setJSON(idKey(prefixListing, l.AssetID), l)
}

// ---- Market config ----

func (s *StateDB) GetMarketConfig() (*core.MarketConfig, error) {
	var cfg core.MarketConfig
	if err := s.getJSON(keyMarket, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *StateDB) SetMarketConfig(cfg *core.MarketConfig) error {
	return s.setJSON(keyMarket, cfg)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns its ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{dirty: make(map[string][]byte, len(s.dirty))}
	for k, v := range s.dirty {
		snap.dirty[k] = bytes.Clone(v)
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer saved by Snapshot(id) and
// discards that snapshot and every later one.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	s.dirty = make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		s.dirty[k] = bytes.Clone(v)
	}
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the hash of the complete world state: persisted
// entries under the state prefixes overlaid with the write buffer, sorted by
// key and length-prefix encoded. It does not flush.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			merged[string(it.Key())] = bytes.Clone(it.Value())
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit flushes the write buffer to the DB in one batch and clears it.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.snapshots = nil
	return nil
}
