package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of ledger entry
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeFaucet     TransactionType = "faucet"
	TransactionTypeAdmin      TransactionType = "admin"
)

// TransactionStatus represents the lifecycle state of a ledger entry
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an immutable ledger entry. The balance is only ever
// mutated together with the insert of one of these, in the same storage
// transaction. For deposit and faucet entries ReferenceID holds the
// on-chain transaction hash; at most one completed entry may exist per
// (type, reference) pair, which is what makes event redelivery safe.
// Corrections are new entries, never edits.
type Transaction struct {
	ID            int64             `db:"id"`
	AccountID     int64             `db:"account_id"`
	Type          TransactionType   `db:"type"`
	Amount        decimal.Decimal   `db:"amount"`
	BalanceBefore decimal.Decimal   `db:"balance_before"`
	BalanceAfter  decimal.Decimal   `db:"balance_after"`
	Status        TransactionStatus `db:"status"`
	ReferenceID   *string           `db:"reference_id"`
	Metadata      map[string]any    `db:"metadata"`
	CreatedAt     time.Time         `db:"created_at"`
}
