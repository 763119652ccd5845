package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chipbridge/events"
	"chipbridge/models"
	"chipbridge/repository/testutil"
)

func TestUnitOfWork_CommitPersistsAndFlushesEvents(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	bus := events.NewBus()

	var mu sync.Mutex
	var received []events.Event
	bus.Subscribe(events.EventTypeAccountCreated, func(ctx context.Context, event events.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	})

	factory := NewUnitOfWorkFactory(testDB.DB, bus)

	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))

	account, err := uow.AccountRepository().Create(ctx, testutil.TestAddress(1))
	require.NoError(t, err)

	uow.EventBus().Publish(events.AccountCreatedEvent{
		AccountID: account.ID,
		Address:   account.Address,
	})

	// Nothing is published before commit
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, received)
	mu.Unlock()

	require.NoError(t, uow.Commit())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	// The row is visible outside the transaction
	found, err := NewAccountRepository(testDB.DB).GetByAddress(ctx, account.Address)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, account.ID, found.ID)
}

func TestUnitOfWork_RollbackDiscardsWorkAndEvents(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	bus := events.NewBus()

	var mu sync.Mutex
	var received []events.Event
	bus.Subscribe(events.EventTypeAccountCreated, func(ctx context.Context, event events.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	})

	factory := NewUnitOfWorkFactory(testDB.DB, bus)

	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))

	account, err := uow.AccountRepository().Create(ctx, testutil.TestAddress(2))
	require.NoError(t, err)

	uow.EventBus().Publish(events.AccountCreatedEvent{AccountID: account.ID})

	require.NoError(t, uow.Rollback())

	found, err := NewAccountRepository(testDB.DB).GetByAddress(ctx, testutil.TestAddress(2))
	require.NoError(t, err)
	assert.Nil(t, found)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, received)
	mu.Unlock()
}

func TestUnitOfWork_RepositoriesShareTransaction(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	account, err := uow.AccountRepository().Create(ctx, testutil.TestAddress(3))
	require.NoError(t, err)

	// The ledger insert sees the uncommitted account row
	txn := &models.Transaction{
		AccountID:     account.ID,
		Type:          models.TransactionTypeDeposit,
		Amount:        decimal.NewFromInt(1),
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.NewFromInt(1),
		Status:        models.TransactionStatusCompleted,
	}
	require.NoError(t, uow.TransactionRepository().Create(ctx, txn))
	assert.NotZero(t, txn.ID)
}

func TestUnitOfWork_AccessBeforeBeginPanics(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())
	uow := factory.Create()

	assert.Panics(t, func() { uow.AccountRepository() })
	assert.Panics(t, func() { uow.TransactionRepository() })
}

func TestUnitOfWork_DoubleBeginRejected(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())
	uow := factory.Create()

	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	assert.Error(t, uow.Begin(ctx))
}
