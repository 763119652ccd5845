package models

import (
	"github.com/shopspring/decimal"
)

// WithdrawalAuthorization is the short-lived, backend-signed artifact a
// player submits to the withdrawal contract. It is generated on demand and
// never persisted; the contract's per-player nonce makes each one single-use.
type WithdrawalAuthorization struct {
	Address      string          `json:"address"`
	Amount       decimal.Decimal `json:"amount"`
	FinalBalance decimal.Decimal `json:"finalBalance"`
	Nonce        uint64          `json:"nonce"`
	Signature    string          `json:"signature"`
}
