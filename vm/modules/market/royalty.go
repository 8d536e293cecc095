package market

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// ParseRate parses a royalty rate such as "0.01" and checks it lies in
// [0, 1).
func ParseRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidRate
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
		return decimal.Zero, ErrInvalidRate
	}
	return rate, nil
}

// Split divides a sale price into the royalty, rounded down, and the net
// amount paid to the seller. royalty + net == price always holds.
func Split(price uint64, rate decimal.Decimal) (royalty, net uint64) {
	p := decimal.NewFromBigInt(new(big.Int).SetUint64(price), 0)
	royalty = p.Mul(rate).Floor().BigInt().Uint64()
	if royalty > price {
		royalty = price
	}
	return royalty, price - royalty
}
