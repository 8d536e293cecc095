package config

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/wallet"
)

// Validate checks the genesis section before any state is written.
func (g *GenesisConfig) Validate() error {
	if g.ChainID == "" {
		return errors.New("genesis: chain_id is required")
	}
	for addr := range g.Alloc {
		if !crypto.IsPrincipal(addr) {
			return fmt.Errorf("genesis: alloc key %q is not a public key", addr)
		}
	}
	if len(g.Market.Prices) == 0 {
		return errors.New("genesis: market.prices must not be empty")
	}
	return nil
}

// ApplyAlloc credits every alloc account in state. The writes stay in the
// state buffer and are committed with block 0.
func ApplyAlloc(cfg *Config, state core.State) error {
	for addr, balance := range cfg.Genesis.Alloc {
		if err := state.SetAccount(&core.Account{Address: addr, Balance: balance}); err != nil {
			return fmt.Errorf("alloc %s: %w", addr, err)
		}
	}
	return nil
}

// GenesisTxs returns the transactions of block 0: the node key deploys the
// marketplace and so becomes its admin. The setup fee is paid from the
// node's alloc.
func GenesisTxs(cfg *Config, nodeKey crypto.PrivateKey) ([]*core.Transaction, error) {
	m := cfg.Genesis.Market
	w := wallet.New(cfg.Genesis.ChainID, nodeKey)
	beneficiary := m.Beneficiary
	if beneficiary == "" {
		beneficiary = w.Address()
	}
	tx, err := w.Deploy(core.DeployMarketPayload{
		RoyaltyRate:      m.RoyaltyRate,
		Beneficiary:      beneficiary,
		RelistFee:        m.RelistFee,
		SetupFeePerAsset: m.SetupFeePerAsset,
		Prices:           m.Prices,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("build deploy tx: %w", err)
	}
	return []*core.Transaction{tx}, nil
}
