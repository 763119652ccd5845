package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chipbridge/repository/testutil"
)

func TestAccountRepository_CreateAndGet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	t.Run("missing account returns nil", func(t *testing.T) {
		account, err := repo.GetByAddress(ctx, testutil.TestAddress(999))
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("create starts at zero balance", func(t *testing.T) {
		account, err := repo.Create(ctx, testutil.TestAddress(1))
		require.NoError(t, err)
		require.NotNil(t, account)

		assert.NotZero(t, account.ID)
		assert.Equal(t, testutil.TestAddress(1), account.Address)
		assert.True(t, account.Balance.IsZero())
		assert.True(t, account.TotalDeposited.IsZero())
		assert.True(t, account.TotalWithdrawn.IsZero())
	})

	t.Run("address lookup is case insensitive", func(t *testing.T) {
		created, err := repo.Create(ctx, "0xAbCd000000000000000000000000000000000002")
		require.NoError(t, err)
		assert.Equal(t, "0xabcd000000000000000000000000000000000002", created.Address)

		found, err := repo.GetByAddress(ctx, "0xABCD000000000000000000000000000000000002")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("duplicate address rejected", func(t *testing.T) {
		_, err := repo.Create(ctx, testutil.TestAddress(1))
		assert.Error(t, err)
	})

	t.Run("get by id", func(t *testing.T) {
		created, err := repo.Create(ctx, testutil.TestAddress(3))
		require.NoError(t, err)

		found, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.Address, found.Address)

		missing, err := repo.GetByID(ctx, 123456789)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestAccountRepository_BalanceMutations(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	account, err := repo.Create(ctx, testutil.TestAddress(10))
	require.NoError(t, err)

	t.Run("add balance", func(t *testing.T) {
		err := repo.AddBalance(ctx, account.ID, decimal.RequireFromString("100.5"))
		require.NoError(t, err)

		updated, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "100.5", updated.Balance.String())
	})

	t.Run("deduct balance", func(t *testing.T) {
		err := repo.DeductBalance(ctx, account.ID, decimal.RequireFromString("0.5"))
		require.NoError(t, err)

		updated, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "100", updated.Balance.String())
	})

	t.Run("deduct rejects overdraft", func(t *testing.T) {
		err := repo.DeductBalance(ctx, account.ID, decimal.NewFromInt(1000))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient balance")

		// Balance unchanged after the failed deduction
		updated, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "100", updated.Balance.String())
	})

	t.Run("non-positive amounts rejected", func(t *testing.T) {
		assert.Error(t, repo.AddBalance(ctx, account.ID, decimal.Zero))
		assert.Error(t, repo.DeductBalance(ctx, account.ID, decimal.NewFromInt(-1)))
	})

	t.Run("unknown account", func(t *testing.T) {
		assert.Error(t, repo.AddBalance(ctx, 987654321, decimal.NewFromInt(1)))
	})

	t.Run("cumulative counters", func(t *testing.T) {
		require.NoError(t, repo.AddTotalDeposited(ctx, account.ID, decimal.NewFromInt(100)))
		require.NoError(t, repo.AddTotalDeposited(ctx, account.ID, decimal.NewFromInt(50)))
		require.NoError(t, repo.AddTotalWithdrawn(ctx, account.ID, decimal.NewFromInt(30)))

		updated, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "150", updated.TotalDeposited.String())
		assert.Equal(t, "30", updated.TotalWithdrawn.String())
	})
}

func TestAccountRepository_GetByAddressForUpdate(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	created, err := repo.Create(ctx, testutil.TestAddress(30))
	require.NoError(t, err)
	require.NoError(t, repo.AddBalance(ctx, created.ID, decimal.NewFromInt(75)))

	t.Run("missing account returns nil", func(t *testing.T) {
		account, err := repo.GetByAddressForUpdate(ctx, testutil.TestAddress(998))
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("snapshot and mutation share the row lock", func(t *testing.T) {
		tx, err := testDB.DB.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		txRepo := newAccountRepositoryWithTx(tx)
		locked, err := txRepo.GetByAddressForUpdate(ctx, testutil.TestAddress(30))
		require.NoError(t, err)
		require.NotNil(t, locked)
		assert.Equal(t, "75", locked.Balance.String())

		require.NoError(t, txRepo.DeductBalance(ctx, locked.ID, decimal.NewFromInt(25)))
		require.NoError(t, tx.Commit(ctx))

		after, err := repo.GetByID(ctx, locked.ID)
		require.NoError(t, err)
		assert.Equal(t, "50", after.Balance.String())
	})
}

func TestAccountRepository_FractionalPrecision(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccountRepository(testDB.DB)
	ctx := context.Background()

	account, err := repo.Create(ctx, testutil.TestAddress(20))
	require.NoError(t, err)

	// Full 18-decimal token precision survives the round trip
	amount := decimal.RequireFromString("0.000000000000000001")
	require.NoError(t, repo.AddBalance(ctx, account.ID, amount))

	updated, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, amount.Equal(updated.Balance), "got %s", updated.Balance)
}
