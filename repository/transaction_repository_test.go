package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chipbridge/models"
	"chipbridge/repository/testutil"
)

func TestTransactionRepository_Create(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	accounts := NewAccountRepository(testDB.DB)
	repo := NewTransactionRepository(testDB.DB)
	ctx := context.Background()

	account, err := accounts.Create(ctx, testutil.TestAddress(1))
	require.NoError(t, err)

	t.Run("assigns id and created_at", func(t *testing.T) {
		txn := testutil.CreateTestTransaction(account.ID, models.TransactionTypeDeposit, "0xcreate")
		err := repo.Create(ctx, txn)
		require.NoError(t, err)

		assert.NotZero(t, txn.ID)
		assert.False(t, txn.CreatedAt.IsZero())
	})

	t.Run("round trips metadata and amounts", func(t *testing.T) {
		txn := testutil.CreateTestTransactionWithAmounts(
			account.ID, models.TransactionTypeDeposit, "0xmeta",
			decimal.RequireFromString("10.25"), decimal.RequireFromString("110.75"),
		)
		txn.Metadata = map[string]any{
			"blockNumber": float64(1234),
			"source":      "chain_listener",
		}
		require.NoError(t, repo.Create(ctx, txn))

		loaded, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)

		assert.Equal(t, "100.5", loaded.Amount.String())
		assert.Equal(t, "10.25", loaded.BalanceBefore.String())
		assert.Equal(t, "110.75", loaded.BalanceAfter.String())
		assert.Equal(t, "chain_listener", loaded.Metadata["source"])
		assert.Equal(t, float64(1234), loaded.Metadata["blockNumber"])
	})

	t.Run("nil reference allowed", func(t *testing.T) {
		txn := testutil.CreateTestTransaction(account.ID, models.TransactionTypeAdmin, "unused")
		txn.ReferenceID = nil
		require.NoError(t, repo.Create(ctx, txn))

		loaded, err := repo.GetByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Nil(t, loaded.ReferenceID)
	})
}

func TestTransactionRepository_IdempotenceIndex(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	accounts := NewAccountRepository(testDB.DB)
	repo := NewTransactionRepository(testDB.DB)
	ctx := context.Background()

	account, err := accounts.Create(ctx, testutil.TestAddress(2))
	require.NoError(t, err)

	first := testutil.CreateTestTransaction(account.ID, models.TransactionTypeDeposit, "0xsame")
	require.NoError(t, repo.Create(ctx, first))

	t.Run("duplicate completed reference rejected", func(t *testing.T) {
		dup := testutil.CreateTestTransaction(account.ID, models.TransactionTypeDeposit, "0xsame")
		err := repo.Create(ctx, dup)
		assert.Error(t, err)
	})

	t.Run("same reference allowed for different type", func(t *testing.T) {
		other := testutil.CreateTestTransaction(account.ID, models.TransactionTypeWithdrawal, "0xsame")
		assert.NoError(t, repo.Create(ctx, other))
	})

	t.Run("same reference allowed when not completed", func(t *testing.T) {
		failed := testutil.CreateTestTransaction(account.ID, models.TransactionTypeDeposit, "0xsame")
		failed.Status = models.TransactionStatusFailed
		assert.NoError(t, repo.Create(ctx, failed))
	})
}

func TestTransactionRepository_GetCompletedByTypeAndReference(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	accounts := NewAccountRepository(testDB.DB)
	repo := NewTransactionRepository(testDB.DB)
	ctx := context.Background()

	account, err := accounts.Create(ctx, testutil.TestAddress(3))
	require.NoError(t, err)

	t.Run("missing reference returns nil", func(t *testing.T) {
		txn, err := repo.GetCompletedByTypeAndReference(ctx, models.TransactionTypeDeposit, "0xmissing")
		require.NoError(t, err)
		assert.Nil(t, txn)
	})

	t.Run("finds only completed entries of the given type", func(t *testing.T) {
		pending := testutil.CreateTestTransaction(account.ID, models.TransactionTypeDeposit, "0xref")
		pending.Status = models.TransactionStatusPending
		require.NoError(t, repo.Create(ctx, pending))

		txn, err := repo.GetCompletedByTypeAndReference(ctx, models.TransactionTypeDeposit, "0xref")
		require.NoError(t, err)
		assert.Nil(t, txn)

		completed := testutil.CreateTestTransaction(account.ID, models.TransactionTypeDeposit, "0xref")
		require.NoError(t, repo.Create(ctx, completed))

		txn, err = repo.GetCompletedByTypeAndReference(ctx, models.TransactionTypeDeposit, "0xref")
		require.NoError(t, err)
		require.NotNil(t, txn)
		assert.Equal(t, completed.ID, txn.ID)

		txn, err = repo.GetCompletedByTypeAndReference(ctx, models.TransactionTypeFaucet, "0xref")
		require.NoError(t, err)
		assert.Nil(t, txn)
	})
}

func TestTransactionRepository_GetByAccount(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	accounts := NewAccountRepository(testDB.DB)
	repo := NewTransactionRepository(testDB.DB)
	ctx := context.Background()

	account, err := accounts.Create(ctx, testutil.TestAddress(4))
	require.NoError(t, err)
	other, err := accounts.Create(ctx, testutil.TestAddress(5))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		txn := testutil.CreateTestTransaction(account.ID, models.TransactionTypeDeposit, fmt.Sprintf("0xacct-%d", i))
		require.NoError(t, repo.Create(ctx, txn))
	}
	otherTxn := testutil.CreateTestTransaction(other.ID, models.TransactionTypeDeposit, "0xother")
	require.NoError(t, repo.Create(ctx, otherTxn))

	t.Run("respects limit", func(t *testing.T) {
		txns, err := repo.GetByAccount(ctx, account.ID, 3)
		require.NoError(t, err)
		assert.Len(t, txns, 3)
	})

	t.Run("scoped to one account", func(t *testing.T) {
		txns, err := repo.GetByAccount(ctx, account.ID, 100)
		require.NoError(t, err)
		assert.Len(t, txns, 5)
		for _, txn := range txns {
			assert.Equal(t, account.ID, txn.AccountID)
		}
	})

	t.Run("empty account returns no rows", func(t *testing.T) {
		empty, err := accounts.Create(ctx, testutil.TestAddress(6))
		require.NoError(t, err)

		txns, err := repo.GetByAccount(ctx, empty.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, txns)
	})
}
