package market

import "github.com/tolelom/tolmarket/core"

// UnsoldListings returns every listing currently in marketplace custody,
// ordered by asset id.
func UnsoldListings(state core.State) ([]*core.Listing, error) {
	cfg, err := LoadConfig(state)
	if err != nil {
		return nil, err
	}
	ledger := NewLedger(state, cfg.AssetCount)
	var out []*core.Listing
	for id := uint64(0); id < cfg.AssetCount; id++ {
		l, err := ledger.Get(id)
		if err != nil {
			return nil, err
		}
		if !l.Sold() {
			out = append(out, l)
		}
	}
	return out, nil
}

// Holdings returns the sold listings whose asset principal currently holds.
func Holdings(state core.State, principal string) ([]*core.Listing, error) {
	cfg, err := LoadConfig(state)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, cfg.AssetCount)
	for i := range ids {
		ids[i] = uint64(i)
	}
	return HoldingsAmong(state, principal, ids)
}

// HoldingsAmong is Holdings restricted to the candidate ids, typically the
// ones an index believes principal holds. Each candidate is checked
// against state, so a stale index never yields a wrong answer.
func HoldingsAmong(state core.State, principal string, ids []uint64) ([]*core.Listing, error) {
	cfg, err := LoadConfig(state)
	if err != nil {
		return nil, err
	}
	ledger := NewLedger(state, cfg.AssetCount)
	var out []*core.Listing
	for _, id := range ids {
		l, err := ledger.Get(id)
		if err != nil {
			return nil, err
		}
		if !l.Sold() {
			continue
		}
		a, err := state.GetAsset(id)
		if err != nil {
			return nil, err
		}
		if a.Owner == principal {
			out = append(out, l)
		}
	}
	return out, nil
}
