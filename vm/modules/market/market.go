// Package market implements the royalty marketplace: deployment of the
// collection, primary and secondary sales, and royalty administration.
//
// Every handler runs inside the executor's snapshot, and any attached
// value has already been escrowed into core.MarketAddress when it starts.
// Returning an error undoes custody, listing and balance changes together.
package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/asset"
)

func init() {
	vm.RegisterPayable(core.TxDeployMarket, handleDeploy)
	vm.RegisterPayable(core.TxPurchase, handlePurchase)
	vm.RegisterPayable(core.TxResell, handleResell)
	vm.Register(core.TxSetRoyaltyRate, handleSetRoyaltyRate)
	vm.Register(core.TxSetRelistFee, handleSetRelistFee)
}

// LoadConfig returns the deployed market configuration.
func LoadConfig(state core.State) (*core.MarketConfig, error) {
	cfg, err := state.GetMarketConfig()
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrNotDeployed
	}
	if err != nil {
		return nil, fmt.Errorf("load market config: %w", err)
	}
	return cfg, nil
}

func handleDeploy(ctx *vm.Context, payload json.RawMessage) error {
	var p core.DeployMarketPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode deploy_market payload: %w", err)
	}
	if _, err := LoadConfig(ctx.State); err == nil {
		return ErrAlreadyDeployed
	} else if !errors.Is(err, ErrNotDeployed) {
		return err
	}

	rate, err := ParseRate(p.RoyaltyRate)
	if err != nil {
		return err
	}
	if !crypto.IsPrincipal(p.Beneficiary) {
		return ErrInvalidBeneficiary
	}
	n := uint64(len(p.Prices))
	if n == 0 {
		return ErrNoAssets
	}
	hi, setupFee := bits.Mul64(p.SetupFeePerAsset, n)
	if hi != 0 || ctx.Tx.Value != setupFee {
		return fmt.Errorf("%w: want %d×%d, got %d", ErrWrongSetupFee, p.SetupFeePerAsset, n, ctx.Tx.Value)
	}

	ledger := NewLedger(ctx.State, n)
	for i, price := range p.Prices {
		id := uint64(i)
		if price == 0 {
			return fmt.Errorf("asset %d: %w", id, ErrInvalidPrice)
		}
		if err := asset.Mint(ctx, id, core.MarketAddress); err != nil {
			return err
		}
		if err := ledger.Create(id, ctx.Tx.From, price); err != nil {
			return err
		}
	}

	cfg := &core.MarketConfig{
		Admin:            ctx.Tx.From,
		Beneficiary:      p.Beneficiary,
		RoyaltyRate:      rate,
		RelistFee:        p.RelistFee,
		SetupFeePerAsset: p.SetupFeePerAsset,
		AssetCount:       n,
		DeployedAt:       ctx.Block.Header.Timestamp,
	}
	if err := ctx.State.SetMarketConfig(cfg); err != nil {
		return err
	}

	ctx.Emit(events.EventMarketDeployed, map[string]any{
		"admin":        cfg.Admin,
		"beneficiary":  cfg.Beneficiary,
		"asset_count":  n,
		"royalty_rate": rate.String(),
		"relist_fee":   cfg.RelistFee,
	})
	return nil
}

func handlePurchase(ctx *vm.Context, payload json.RawMessage) error {
	var p core.PurchasePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode purchase payload: %w", err)
	}
	cfg, err := LoadConfig(ctx.State)
	if err != nil {
		return err
	}
	ledger := NewLedger(ctx.State, cfg.AssetCount)

	listing, err := ledger.Get(p.AssetID)
	if err != nil {
		return err
	}
	if listing.Sold() {
		return fmt.Errorf("asset %d: %w", p.AssetID, ErrNotForSale)
	}
	if ctx.Tx.Value != listing.Offer.Price {
		return fmt.Errorf("%w: price %d, got %d", ErrWrongPayment, listing.Offer.Price, ctx.Tx.Value)
	}
	royalty, net := Split(listing.Offer.Price, cfg.RoyaltyRate)

	buyer := ctx.Tx.From
	if err := asset.MoveCustody(ctx, p.AssetID, core.MarketAddress, buyer); err != nil {
		return err
	}
	offer, err := ledger.MarkSold(p.AssetID)
	if err != nil {
		return err
	}
	if err := core.MoveBalance(ctx.State, core.MarketAddress, offer.Seller, net); err != nil {
		return fmt.Errorf("pay seller: %w", err)
	}
	if err := core.MoveBalance(ctx.State, core.MarketAddress, cfg.Beneficiary, royalty); err != nil {
		return fmt.Errorf("pay royalty: %w", err)
	}

	ctx.Emit(events.EventBought, map[string]any{
		"asset_id": p.AssetID,
		"seller":   offer.Seller,
		"buyer":    buyer,
		"price":    offer.Price,
		"royalty":  royalty,
	})
	return nil
}

func handleResell(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ResellPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode resell payload: %w", err)
	}
	cfg, err := LoadConfig(ctx.State)
	if err != nil {
		return err
	}
	ledger := NewLedger(ctx.State, cfg.AssetCount)

	listing, err := ledger.Get(p.AssetID)
	if err != nil {
		return err
	}
	seller := ctx.Tx.From
	holder, err := asset.HolderOf(ctx.State, p.AssetID)
	if err != nil {
		return err
	}
	if holder != seller {
		if !listing.Sold() && listing.Offer.Seller == seller {
			return fmt.Errorf("asset %d: %w", p.AssetID, ErrAlreadyListed)
		}
		return fmt.Errorf("asset %d: %w", p.AssetID, ErrNotOwned)
	}
	if p.Price == 0 {
		return ErrInvalidPrice
	}
	if ctx.Tx.Value != cfg.RelistFee {
		return fmt.Errorf("%w: relist fee %d, got %d", ErrRoyaltyRequired, cfg.RelistFee, ctx.Tx.Value)
	}

	// Relist checks the holder, so it runs before custody moves.
	if err := ledger.Relist(p.AssetID, seller, p.Price); err != nil {
		return err
	}
	if err := asset.MoveCustody(ctx, p.AssetID, seller, core.MarketAddress); err != nil {
		return err
	}

	ctx.Emit(events.EventRelisted, map[string]any{
		"asset_id": p.AssetID,
		"seller":   seller,
		"price":    p.Price,
	})
	return nil
}

func requireAdmin(ctx *vm.Context) (*core.MarketConfig, error) {
	cfg, err := LoadConfig(ctx.State)
	if err != nil {
		return nil, err
	}
	if ctx.Tx.From != cfg.Admin {
		return nil, ErrNotAdmin
	}
	return cfg, nil
}

func handleSetRoyaltyRate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetRoyaltyRatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_royalty_rate payload: %w", err)
	}
	cfg, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	rate, err := ParseRate(p.Rate)
	if err != nil {
		return err
	}
	old := cfg.RoyaltyRate
	cfg.RoyaltyRate = rate
	if err := ctx.State.SetMarketConfig(cfg); err != nil {
		return err
	}
	ctx.Emit(events.EventRoyaltyRateSet, map[string]any{"old": old.String(), "new": rate.String()})
	return nil
}

func handleSetRelistFee(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetRelistFeePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_relist_fee payload: %w", err)
	}
	cfg, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	old := cfg.RelistFee
	cfg.RelistFee = p.Fee
	if err := ctx.State.SetMarketConfig(cfg); err != nil {
		return err
	}
	ctx.Emit(events.EventRelistFeeSet, map[string]any{"old": old, "new": p.Fee})
	return nil
}
