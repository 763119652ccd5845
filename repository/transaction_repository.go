package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"chipbridge/database"
	"chipbridge/models"
)

// TransactionRepository implements the service.TransactionRepository interface
type TransactionRepository struct {
	q queryable
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new transaction repository bound to a transaction
func newTransactionRepositoryWithTx(tx queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

const transactionColumns = `
	id, account_id, type, amount::text, balance_before::text, balance_after::text,
	status, reference_id, metadata, created_at
`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var txn models.Transaction
	var amount, balanceBefore, balanceAfter string
	var metadataJSON []byte

	err := row.Scan(
		&txn.ID,
		&txn.AccountID,
		&txn.Type,
		&amount,
		&balanceBefore,
		&balanceAfter,
		&txn.Status,
		&txn.ReferenceID,
		&metadataJSON,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	if txn.BalanceBefore, err = decimal.NewFromString(balanceBefore); err != nil {
		return nil, fmt.Errorf("failed to parse balance_before %q: %w", balanceBefore, err)
	}
	if txn.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
		return nil, fmt.Errorf("failed to parse balance_after %q: %w", balanceAfter, err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &txn.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
		}
	}

	return &txn, nil
}

// Create inserts a new ledger entry
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	metadataJSON, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction metadata: %w", err)
	}

	query := `
		INSERT INTO transactions
		(account_id, type, amount, balance_before, balance_after, status, reference_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		txn.AccountID,
		txn.Type,
		txn.Amount.String(),
		txn.BalanceBefore.String(),
		txn.BalanceAfter.String(),
		txn.Status,
		txn.ReferenceID,
		metadataJSON,
	).Scan(&txn.ID, &txn.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create transaction for account %d: %w", txn.AccountID, err)
	}

	return nil
}

// GetCompletedByTypeAndReference returns the completed ledger entry for the
// given (type, reference) pair, or nil if none exists. This is the lookup
// behind the settlement idempotence check.
func (r *TransactionRepository) GetCompletedByTypeAndReference(ctx context.Context, txType models.TransactionType, referenceID string) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE type = $1 AND reference_id = $2 AND status = 'completed'
	`

	txn, err := scanTransaction(r.q.QueryRow(ctx, query, txType, referenceID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by reference %s: %w", referenceID, err)
	}

	return txn, nil
}

// GetByID retrieves a ledger entry by its primary key
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	txn, err := scanTransaction(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}

	return txn, nil
}

// GetByAccount returns the most recent ledger entries for an account
func (r *TransactionRepository) GetByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txns, nil
}
