package market

import (
	"fmt"

	"github.com/tolelom/tolmarket/core"
)

var (
	ErrNotDeployed     = fmt.Errorf("%w: market not deployed", core.ErrStateConflict)
	ErrAlreadyDeployed = fmt.Errorf("%w: market already deployed", core.ErrStateConflict)
	ErrNotForSale      = fmt.Errorf("%w: asset is not for sale", core.ErrStateConflict)
	ErrAlreadyListed   = fmt.Errorf("%w: asset is already listed", core.ErrStateConflict)
	ErrListingExists   = fmt.Errorf("%w: listing already exists", core.ErrStateConflict)

	ErrUnknownAsset = fmt.Errorf("%w: unknown asset", core.ErrNotFound)

	ErrWrongPayment       = fmt.Errorf("%w: please send the asking price in order to complete the purchase", core.ErrValidation)
	ErrInvalidPrice       = fmt.Errorf("%w: price must be greater than zero", core.ErrValidation)
	ErrRoyaltyRequired    = fmt.Errorf("%w: must pay royalty", core.ErrValidation)
	ErrInvalidRate        = fmt.Errorf("%w: royalty rate must be a decimal in [0, 1)", core.ErrValidation)
	ErrWrongSetupFee      = fmt.Errorf("%w: attached value must equal the setup fee for every asset", core.ErrValidation)
	ErrNoAssets           = fmt.Errorf("%w: at least one price is required", core.ErrValidation)
	ErrInvalidBeneficiary = fmt.Errorf("%w: beneficiary must be a principal public key", core.ErrValidation)

	ErrNotOwned = fmt.Errorf("%w: caller does not hold the asset", core.ErrUnauthorized)
	ErrNotAdmin = fmt.Errorf("%w: caller is not the owner", core.ErrUnauthorized)
)
