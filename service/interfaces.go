package service

import (
	"context"

	"github.com/shopspring/decimal"

	"chipbridge/events"
	"chipbridge/models"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// GetByAddress retrieves an account by its normalized wallet address
	GetByAddress(ctx context.Context, address string) (*models.Account, error)

	// GetByAddressForUpdate retrieves an account and locks its row for the
	// rest of the enclosing transaction, pinning the balance snapshot
	// against concurrent mutation
	GetByAddressForUpdate(ctx context.Context, address string) (*models.Account, error)

	// GetByID retrieves an account by its primary key
	GetByID(ctx context.Context, id int64) (*models.Account, error)

	// Create creates a new account with a zero starting balance
	Create(ctx context.Context, address string) (*models.Account, error)

	// AddBalance adds to an account's balance atomically
	AddBalance(ctx context.Context, accountID int64, amount decimal.Decimal) error

	// DeductBalance deducts from an account's balance atomically, failing on overdraft
	DeductBalance(ctx context.Context, accountID int64, amount decimal.Decimal) error

	// AddTotalDeposited bumps the cumulative deposited counter
	AddTotalDeposited(ctx context.Context, accountID int64, amount decimal.Decimal) error

	// AddTotalWithdrawn bumps the cumulative withdrawn counter
	AddTotalWithdrawn(ctx context.Context, accountID int64, amount decimal.Decimal) error

	// GetAll returns all accounts
	GetAll(ctx context.Context) ([]*models.Account, error)
}

// TransactionRepository defines the interface for the append-only ledger
type TransactionRepository interface {
	// Create inserts a new ledger entry
	Create(ctx context.Context, txn *models.Transaction) error

	// GetCompletedByTypeAndReference returns the completed entry for a
	// (type, reference) pair, or nil if none exists
	GetCompletedByTypeAndReference(ctx context.Context, txType models.TransactionType, referenceID string) (*models.Transaction, error)

	// GetByID retrieves a ledger entry by its primary key
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)

	// GetByAccount returns the most recent ledger entries for an account
	GetByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Transaction, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork represents one atomic storage transaction together with the
// events that become visible when it commits
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	AccountRepository() AccountRepository
	TransactionRepository() TransactionRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// SettlementService turns validated chain events into ledger mutations
type SettlementService interface {
	// Settle settles one chain event idempotently; redelivery of an
	// already-settled event returns the original transaction unchanged
	Settle(ctx context.Context, event models.ChainEvent) (*models.Transaction, error)

	// ConfirmWithdrawal settles a confirmed on-chain withdrawal, deducting
	// the off-chain balance under the same idempotence-by-reference rule
	ConfirmWithdrawal(ctx context.Context, address string, amount decimal.Decimal, txHash string) (*models.Transaction, error)
}

// WithdrawalService issues signed withdrawal authorizations
type WithdrawalService interface {
	// Authorize produces a single-use signed authorization for moving
	// amount from the off-chain balance back on-chain. It does not deduct
	// the balance; that happens only when the withdrawal is observed
	// confirmed on-chain.
	Authorize(ctx context.Context, address string, amount decimal.Decimal) (*models.WithdrawalAuthorization, error)
}

// AccountService defines account-level operations
type AccountService interface {
	// GetOrCreateAccount retrieves an existing account or lazily creates one
	GetOrCreateAccount(ctx context.Context, address string) (*models.Account, error)

	// GetAccountByAddress retrieves an account, nil if absent
	GetAccountByAddress(ctx context.Context, address string) (*models.Account, error)

	// GetTransactions returns the most recent ledger entries for an account
	GetTransactions(ctx context.Context, address string, limit int) ([]*models.Transaction, error)

	// AdjustBalance applies an admin correction as a new ledger entry
	AdjustBalance(ctx context.Context, address string, amount decimal.Decimal, reason string) (*models.Transaction, error)

	// ListAccounts returns all accounts for the admin surface
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}

// NonceSource reads the per-player withdrawal nonce from the withdrawal
// contract. The contract is the only source of truth for replay protection;
// the backend never keeps a competing counter.
type NonceSource interface {
	PlayerNonce(ctx context.Context, player string) (uint64, error)
}

// WithdrawalSigner signs the packed withdrawal payload with the backend key
type WithdrawalSigner interface {
	SignWithdrawal(address string, amount, finalBalance decimal.Decimal, nonce uint64) (string, error)
}

// InternalAPIClient is the primary settlement path: the internal processing
// API that applies a deposit or faucet claim on behalf of the game backend
type InternalAPIClient interface {
	Process(ctx context.Context, req InternalSettlementRequest) (*InternalSettlementResult, error)
}

// InternalSettlementRequest is the payload sent to the internal settlement
// API. Kind carries the originating event kind so a faucet claim is never
// settled as a deposit on the remote side.
type InternalSettlementRequest struct {
	WalletAddress string          `json:"walletAddress"`
	Amount        decimal.Decimal `json:"amount"`
	TxHash        string          `json:"txHash"`
	BlockNumber   uint64          `json:"blockNumber"`
	Timestamp     int64           `json:"timestamp"`
	Kind          string          `json:"kind"`
}

// InternalSettlementResult is the successful response of the internal API
type InternalSettlementResult struct {
	UserID        int64           `json:"userId"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
}
