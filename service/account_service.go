package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"chipbridge/events"
	"chipbridge/models"
)

type accountService struct {
	uowFactory UnitOfWorkFactory
}

// NewAccountService creates a new account service
func NewAccountService(uowFactory UnitOfWorkFactory) AccountService {
	return &accountService{
		uowFactory: uowFactory,
	}
}

// GetOrCreateAccount retrieves an account by address, lazily creating it
// with a zero balance on first login
func (s *accountService) GetOrCreateAccount(ctx context.Context, address string) (*models.Account, error) {
	normalized := models.NormalizeAddress(address)
	if normalized == "" {
		return nil, ErrWalletNotConnected
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByAddress(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if account == nil {
		account, err = uow.AccountRepository().Create(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}

		uow.EventBus().Publish(events.AccountCreatedEvent{
			AccountID: account.ID,
			Address:   account.Address,
		})

		log.WithFields(log.Fields{
			"accountId": account.ID,
			"address":   account.Address,
		}).Info("Created new account")
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return account, nil
}

// GetAccountByAddress retrieves an account, nil if absent
func (s *accountService) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByAddress(ctx, models.NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetTransactions returns the most recent ledger entries for an account
func (s *accountService) GetTransactions(ctx context.Context, address string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByAddress(ctx, models.NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	txns, err := uow.TransactionRepository().GetByAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return txns, nil
}

// AdjustBalance applies an admin correction as a new ledger entry. Positive
// amounts credit the account, negative amounts debit it. Corrections are
// always new entries; existing entries are never edited.
func (s *accountService) AdjustBalance(ctx context.Context, address string, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByAddressForUpdate(ctx, models.NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if amount.Sign() > 0 {
		if err := uow.AccountRepository().AddBalance(ctx, account.ID, amount); err != nil {
			return nil, fmt.Errorf("failed to credit adjustment: %w", err)
		}
	} else {
		debit := amount.Neg()
		if account.Balance.LessThan(debit) {
			return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, account.Balance, debit)
		}
		if err := uow.AccountRepository().DeductBalance(ctx, account.ID, debit); err != nil {
			return nil, fmt.Errorf("failed to debit adjustment: %w", err)
		}
	}

	balanceBefore := account.Balance
	balanceAfter := balanceBefore.Add(amount)

	txn := &models.Transaction{
		AccountID:     account.ID,
		Type:          models.TransactionTypeAdmin,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Status:        models.TransactionStatusCompleted,
		Metadata: map[string]any{
			"reason": reason,
		},
	}

	if err := uow.TransactionRepository().Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to record adjustment: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangedEvent{
		AccountID:     account.ID,
		Address:       account.Address,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Timestamp:     txn.CreatedAt,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit adjustment: %w", err)
	}

	log.WithFields(log.Fields{
		"address": account.Address,
		"amount":  amount,
		"reason":  reason,
	}).Info("Applied admin balance adjustment")

	return txn, nil
}

// ListAccounts returns all accounts for the admin surface
func (s *accountService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	accounts, err := uow.AccountRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}
