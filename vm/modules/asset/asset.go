// Package asset is the custody registry for the collection: it records which
// principal holds each asset and moves custody between principals.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
)

var (
	ErrAssetExists = fmt.Errorf("%w: asset already minted", core.ErrStateConflict)
	ErrNotHolder   = fmt.Errorf("%w: only the holder can move the asset", core.ErrUnauthorized)
	ErrInvalidTo   = fmt.Errorf("%w: recipient must be a principal public key", core.ErrValidation)
)

func init() {
	vm.Register(core.TxTransferAsset, handleTransferAsset)
}

// Mint records a new asset held by owner.
func Mint(ctx *vm.Context, id uint64, owner string) error {
	_, err := ctx.State.GetAsset(id)
	if err == nil {
		return fmt.Errorf("asset %d: %w", id, ErrAssetExists)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check asset %d: %w", id, err)
	}
	if err := ctx.State.SetAsset(&core.Asset{ID: id, Owner: owner, MintedAt: ctx.Block.Header.Timestamp}); err != nil {
		return err
	}
	ctx.Emit(events.EventAssetMinted, map[string]any{"asset_id": id, "owner": owner})
	return nil
}

// HolderOf returns the principal currently holding asset id.
func HolderOf(state core.State, id uint64) (string, error) {
	a, err := state.GetAsset(id)
	if err != nil {
		return "", fmt.Errorf("asset %d: %w", id, err)
	}
	return a.Owner, nil
}

// MoveCustody transfers asset id from one holder to another. It fails if
// from is not the current holder.
func MoveCustody(ctx *vm.Context, id uint64, from, to string) error {
	a, err := ctx.State.GetAsset(id)
	if err != nil {
		return fmt.Errorf("asset %d: %w", id, err)
	}
	if a.Owner != from {
		return fmt.Errorf("asset %d held by %s, not %s: %w", id, a.Owner, from, ErrNotHolder)
	}
	a.Owner = to
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}
	ctx.Emit(events.EventAssetTransfer, map[string]any{"asset_id": id, "from": from, "to": to})
	return nil
}

// handleTransferAsset lets a holder give an asset to another principal.
// Assets in marketplace escrow can only leave through a purchase, and the
// recipient must be a real principal so escrow cannot be entered this way.
func handleTransferAsset(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_asset payload: %w", err)
	}
	if !crypto.IsPrincipal(p.To) {
		return ErrInvalidTo
	}
	return MoveCustody(ctx, p.AssetID, ctx.Tx.From, p.To)
}
