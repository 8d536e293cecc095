package market

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/vm/modules/asset"
)

// Ledger owns the for-sale status and price of every asset in the
// collection. It holds no state of its own beyond the collection size.
type Ledger struct {
	state core.State
	size  uint64
}

// NewLedger returns a Ledger over a collection of size assets.
func NewLedger(state core.State, size uint64) *Ledger {
	return &Ledger{state: state, size: size}
}

// Create lists a freshly minted asset. Only deployment calls it.
func (l *Ledger) Create(id uint64, seller string, price uint64) error {
	if id >= l.size {
		return fmt.Errorf("asset %d: %w", id, ErrUnknownAsset)
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	_, err := l.state.GetListing(id)
	if err == nil {
		return fmt.Errorf("asset %d: %w", id, ErrListingExists)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	return l.state.SetListing(&core.Listing{
		AssetID: id,
		Offer:   &core.Offer{Seller: seller, Price: price},
	})
}

// Get returns the listing for id.
func (l *Ledger) Get(id uint64) (*core.Listing, error) {
	if id >= l.size {
		return nil, fmt.Errorf("asset %d: %w", id, ErrUnknownAsset)
	}
	listing, err := l.state.GetListing(id)
	if err != nil {
		return nil, fmt.Errorf("listing %d: %w", id, err)
	}
	return listing, nil
}

// MarkSold closes the offer on id and returns it.
func (l *Ledger) MarkSold(id uint64) (core.Offer, error) {
	listing, err := l.Get(id)
	if err != nil {
		return core.Offer{}, err
	}
	if listing.Sold() {
		return core.Offer{}, fmt.Errorf("asset %d: %w", id, ErrNotForSale)
	}
	offer := *listing.Offer
	listing.Offer = nil
	listing.LastPrice = offer.Price
	if err := l.state.SetListing(listing); err != nil {
		return core.Offer{}, err
	}
	return offer, nil
}

// Relist puts a sold asset back up for sale. newSeller must be the
// principal the registry reports as holder.
func (l *Ledger) Relist(id uint64, newSeller string, newPrice uint64) error {
	listing, err := l.Get(id)
	if err != nil {
		return err
	}
	if !listing.Sold() {
		return fmt.Errorf("asset %d: %w", id, ErrAlreadyListed)
	}
	if newPrice == 0 {
		return ErrInvalidPrice
	}
	holder, err := asset.HolderOf(l.state, id)
	if err != nil {
		return err
	}
	if holder != newSeller {
		return fmt.Errorf("asset %d: %w", id, ErrNotOwned)
	}
	listing.Offer = &core.Offer{Seller: newSeller, Price: newPrice}
	return l.state.SetListing(listing)
}
