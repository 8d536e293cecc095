package core

import "github.com/shopspring/decimal"

// MarketAddress is the reserved principal that holds assets in escrow and
// accumulates setup and relist fees. It is not a valid public key, so no
// transaction can ever be signed by it.
const MarketAddress = "market"

// UnitDecimals is the number of base-unit decimals in one display unit.
const UnitDecimals = 8

// Account holds a principal's balance and replay-protection nonce.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Asset is the registry record for one item of the collection. Only
// custody is tracked here; the marketplace keeps sale status in Listing.
type Asset struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	MintedAt int64  `json:"minted_at"`
}

// Offer is the for-sale half of a Listing.
type Offer struct {
	Seller string `json:"seller"`
	Price  uint64 `json:"price"`
}

// Listing is the marketplace's record for one asset. A nil Offer means the
// asset has been sold and is held outside the marketplace.
type Listing struct {
	AssetID   uint64 `json:"asset_id"`
	Offer     *Offer `json:"offer,omitempty"`
	LastPrice uint64 `json:"last_price"`
}

// Sold reports whether the asset is out of marketplace custody.
func (l *Listing) Sold() bool { return l.Offer == nil }

// MarketConfig is the process-wide marketplace configuration created at
// deployment. RoyaltyRate and RelistFee change only through the admin.
type MarketConfig struct {
	Admin            string          `json:"admin"`
	Beneficiary      string          `json:"beneficiary"`
	RoyaltyRate      decimal.Decimal `json:"royalty_rate"`
	RelistFee        uint64          `json:"relist_fee"`
	SetupFeePerAsset uint64          `json:"setup_fee_per_asset"`
	AssetCount       uint64          `json:"asset_count"`
	DeployedAt       int64           `json:"deployed_at"`
}

// State is the full ledger state. Implementations must be snapshot-able so
// the executor can roll back failed transactions.
type State interface {
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	GetAsset(id uint64) (*Asset, error)
	SetAsset(asset *Asset) error

	GetListing(id uint64) (*Listing, error)
	SetListing(l *Listing) error

	// GetMarketConfig returns ErrNotFound until the market is deployed.
	GetMarketConfig() (*MarketConfig, error)
	SetMarketConfig(cfg *MarketConfig) error

	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot hashes the current world state without flushing.
	ComputeRoot() string
	// Commit flushes buffered writes to the underlying DB.
	Commit() error
}
