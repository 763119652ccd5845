package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a player wallet with an off-chain playable balance.
// Accounts are created lazily on first deposit, claim, or login and are
// never hard-deleted.
type Account struct {
	ID             int64           `db:"id"`
	Address        string          `db:"address"`
	Balance        decimal.Decimal `db:"balance"`
	TotalDeposited decimal.Decimal `db:"total_deposited"`
	TotalWithdrawn decimal.Decimal `db:"total_withdrawn"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// NormalizeAddress lowercases a wallet address so that lookups are
// case-insensitive regardless of how the client checksums it.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
