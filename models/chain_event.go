package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChainEventKind identifies which escrow contract event produced a ChainEvent.
type ChainEventKind string

const (
	ChainEventKindDeposit ChainEventKind = "deposit"
	ChainEventKindFaucet  ChainEventKind = "faucet"
)

// TransactionType maps the event kind to the ledger entry type it settles as.
func (k ChainEventKind) TransactionType() TransactionType {
	if k == ChainEventKindFaucet {
		return TransactionTypeFaucet
	}
	return TransactionTypeDeposit
}

// ChainEvent is one observed on-chain occurrence flowing from the chain
// client to the settlement service. It is never persisted on its own; the
// transaction ledger's unique (type, reference) constraint is what makes a
// redelivered event safe. Amount is already converted from the contract's
// fixed-point integer units to a decimal at the chain boundary.
type ChainEvent struct {
	Kind        ChainEventKind
	Address     string
	Amount      decimal.Decimal
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
	BlockTime   time.Time
}
