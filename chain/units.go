package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point precision of the escrow token.
const TokenDecimals = 18

// FromWei converts the chain's fixed-point integer representation to the
// decimal amount used everywhere off-chain. All conversion happens at this
// boundary; nothing past the chain client sees wei.
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -TokenDecimals)
}

// ToWei converts a decimal token amount back to the chain's integer units.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).BigInt()
}
