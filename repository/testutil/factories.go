package testutil

import (
	"fmt"

	"github.com/shopspring/decimal"

	"chipbridge/models"
)

// TestAddress returns a deterministic, well-formed wallet address for tests
func TestAddress(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

// CreateTestTransaction creates a completed ledger entry with default values
func CreateTestTransaction(accountID int64, txType models.TransactionType, txHash string) *models.Transaction {
	return &models.Transaction{
		AccountID:     accountID,
		Type:          txType,
		Amount:        decimal.NewFromInt(100),
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.NewFromInt(100),
		Status:        models.TransactionStatusCompleted,
		ReferenceID:   &txHash,
		Metadata: map[string]any{
			"test": true,
		},
	}
}

// CreateTestTransactionWithAmounts creates a completed ledger entry with
// specific balance movement
func CreateTestTransactionWithAmounts(accountID int64, txType models.TransactionType, txHash string, before, after decimal.Decimal) *models.Transaction {
	txn := CreateTestTransaction(accountID, txType, txHash)
	txn.Amount = after.Sub(before).Abs()
	txn.BalanceBefore = before
	txn.BalanceAfter = after
	return txn
}
