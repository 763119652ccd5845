package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"chipbridge/database"
	"chipbridge/models"
)

// AccountRepository implements the service.AccountRepository interface
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepositoryWithTx creates a new account repository bound to a transaction
func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	var balance, totalDeposited, totalWithdrawn string

	err := row.Scan(
		&account.ID,
		&account.Address,
		&balance,
		&totalDeposited,
		&totalWithdrawn,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("failed to parse balance %q: %w", balance, err)
	}
	if account.TotalDeposited, err = decimal.NewFromString(totalDeposited); err != nil {
		return nil, fmt.Errorf("failed to parse total_deposited %q: %w", totalDeposited, err)
	}
	if account.TotalWithdrawn, err = decimal.NewFromString(totalWithdrawn); err != nil {
		return nil, fmt.Errorf("failed to parse total_withdrawn %q: %w", totalWithdrawn, err)
	}

	return &account, nil
}

const accountColumns = `
	id, address, balance::text, total_deposited::text, total_withdrawn::text, created_at, updated_at
`

// GetByAddress retrieves an account by its normalized wallet address
func (r *AccountRepository) GetByAddress(ctx context.Context, address string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE address = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, models.NormalizeAddress(address)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by address %s: %w", address, err)
	}

	return account, nil
}

// GetByAddressForUpdate retrieves an account and locks its row for the
// remainder of the enclosing transaction, so the balance snapshot read here
// cannot be skewed by a concurrent settlement on the same account
func (r *AccountRepository) GetByAddressForUpdate(ctx context.Context, address string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE address = $1 FOR UPDATE`

	account, err := scanAccount(r.q.QueryRow(ctx, query, models.NormalizeAddress(address)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account by address %s: %w", address, err)
	}

	return account, nil
}

// GetByID retrieves an account by its primary key
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}

	return account, nil
}

// Create creates a new account with a zero starting balance
func (r *AccountRepository) Create(ctx context.Context, address string) (*models.Account, error) {
	query := `
		INSERT INTO accounts (address)
		VALUES ($1)
		RETURNING ` + accountColumns

	account, err := scanAccount(r.q.QueryRow(ctx, query, models.NormalizeAddress(address)))
	if err != nil {
		return nil, fmt.Errorf("failed to create account for address %s: %w", address, err)
	}

	return account, nil
}

// AddBalance adds to an account's balance atomically
func (r *AccountRepository) AddBalance(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, amount.String(), accountID)
	if err != nil {
		return fmt.Errorf("failed to add balance for account %d: %w", accountID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}

	return nil
}

// DeductBalance deducts from an account's balance atomically, failing if
// the account does not hold at least the amount
func (r *AccountRepository) DeductBalance(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	query := `
		UPDATE accounts
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
	`

	result, err := r.q.Exec(ctx, query, amount.String(), accountID)
	if err != nil {
		return fmt.Errorf("failed to deduct balance for account %d: %w", accountID, err)
	}

	if result.RowsAffected() == 0 {
		account, err := r.GetByID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if account == nil {
			return fmt.Errorf("account %d not found", accountID)
		}
		return fmt.Errorf("insufficient balance: have %s, need %s", account.Balance, amount)
	}

	return nil
}

// AddTotalDeposited bumps the cumulative deposited counter
func (r *AccountRepository) AddTotalDeposited(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET total_deposited = total_deposited + $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, amount.String(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update total deposited for account %d: %w", accountID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}

	return nil
}

// AddTotalWithdrawn bumps the cumulative withdrawn counter
func (r *AccountRepository) AddTotalWithdrawn(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET total_withdrawn = total_withdrawn + $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, amount.String(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update total withdrawn for account %d: %w", accountID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", accountID)
	}

	return nil
}

// GetAll returns all accounts ordered by creation time
func (r *AccountRepository) GetAll(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get all accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}
