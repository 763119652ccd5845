package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"chipbridge/events"
	"chipbridge/models"
)

type settlementService struct {
	uowFactory UnitOfWorkFactory
	internal   InternalAPIClient // nil when the direct path is the only one
	retry      RetryPolicy
}

// NewSettlementService creates a new settlement service. internal may be
// nil, in which case every settlement takes the direct storage path.
func NewSettlementService(uowFactory UnitOfWorkFactory, internal InternalAPIClient, retry RetryPolicy) SettlementService {
	return &settlementService{
		uowFactory: uowFactory,
		internal:   internal,
		retry:      retry,
	}
}

// Settle turns one validated chain event into exactly one completed ledger
// entry. Redelivered events return the original entry unchanged; the
// storage-level unique (type, reference) index covers the concurrent case.
func (s *settlementService) Settle(ctx context.Context, event models.ChainEvent) (*models.Transaction, error) {
	if event.TxHash == "" {
		return nil, fmt.Errorf("chain event has no transaction hash")
	}
	if event.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, event.Amount)
	}
	if event.Address == "" {
		return nil, ErrWalletNotConnected
	}

	txType := event.Kind.TransactionType()

	// Duplicate delivery is success, not error
	existing, err := s.findCompleted(ctx, txType, event.TxHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.WithFields(log.Fields{
			"txHash": event.TxHash,
			"type":   txType,
		}).Info("Event already settled, returning existing transaction")
		return existing, nil
	}

	// Primary path: the internal processing API. Exhausted retries fall
	// through to direct storage rather than failing the settlement.
	if s.internal != nil {
		err := s.retry.Do(ctx, "internal settlement API", func() error {
			_, err := s.internal.Process(ctx, InternalSettlementRequest{
				WalletAddress: models.NormalizeAddress(event.Address),
				Amount:        event.Amount,
				TxHash:        event.TxHash,
				BlockNumber:   event.BlockNumber,
				Timestamp:     event.BlockTime.Unix(),
				Kind:          string(event.Kind),
			})
			return err
		})
		if err == nil {
			// The internal API shares our storage, so its ledger entry
			// should now be visible
			settled, err := s.findCompleted(ctx, txType, event.TxHash)
			if err != nil {
				return nil, err
			}
			if settled != nil {
				return settled, nil
			}
			log.WithField("txHash", event.TxHash).Warn("Internal API reported success but no ledger entry found, settling directly")
		} else {
			log.WithFields(log.Fields{
				"txHash": event.TxHash,
				"error":  err,
			}).Warn("Internal settlement API exhausted, falling back to direct settlement")
		}
	}

	return s.settleDirect(ctx, event)
}

// findCompleted looks up the completed ledger entry for a (type, reference)
// pair using a short-lived read-only unit of work
func (s *settlementService) findCompleted(ctx context.Context, txType models.TransactionType, txHash string) (*models.Transaction, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	txn, err := uow.TransactionRepository().GetCompletedByTypeAndReference(ctx, txType, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed idempotence check for %s: %w", txHash, err)
	}
	return txn, nil
}

// settleDirect performs the balance and ledger mutation in one atomic unit.
// Errors here are fatal for this delivery and propagate to the listener,
// which leaves the event out of its dedupe set so redelivery can retry.
func (s *settlementService) settleDirect(ctx context.Context, event models.ChainEvent) (*models.Transaction, error) {
	txType := event.Kind.TransactionType()
	address := models.NormalizeAddress(event.Address)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	// Re-check inside the transaction; a concurrent settlement may have
	// landed between the fast-path check and here
	existing, err := uow.TransactionRepository().GetCompletedByTypeAndReference(ctx, txType, event.TxHash)
	if err != nil {
		return nil, fmt.Errorf("failed idempotence check for %s: %w", event.TxHash, err)
	}
	if existing != nil {
		return existing, nil
	}

	// Row lock pins the balance snapshot against concurrent settlements
	// on the same account
	account, err := uow.AccountRepository().GetByAddressForUpdate(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		account, err = uow.AccountRepository().Create(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		uow.EventBus().Publish(events.AccountCreatedEvent{
			AccountID: account.ID,
			Address:   account.Address,
		})
	}

	balanceBefore := account.Balance
	balanceAfter := balanceBefore

	if event.Kind == models.ChainEventKindDeposit {
		if err := uow.AccountRepository().AddBalance(ctx, account.ID, event.Amount); err != nil {
			return nil, fmt.Errorf("failed to credit deposit: %w", err)
		}
		if err := uow.AccountRepository().AddTotalDeposited(ctx, account.ID, event.Amount); err != nil {
			return nil, fmt.Errorf("failed to update deposit total: %w", err)
		}
		balanceAfter = balanceBefore.Add(event.Amount)
	}
	// Faucet claims credit an on-chain wallet value only; the playable
	// balance stays untouched, so balanceAfter == balanceBefore.

	txHash := event.TxHash
	txn := &models.Transaction{
		AccountID:     account.ID,
		Type:          txType,
		Amount:        event.Amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Status:        models.TransactionStatusCompleted,
		ReferenceID:   &txHash,
		Metadata: map[string]any{
			"blockNumber": event.BlockNumber,
			"logIndex":    event.LogIndex,
			"source":      "chain_listener",
		},
	}

	if err := uow.TransactionRepository().Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	settled := events.SettledEvent{
		AccountID:     account.ID,
		Address:       account.Address,
		Amount:        event.Amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		TxHash:        event.TxHash,
		Timestamp:     event.BlockTime,
	}
	uow.EventBus().Publish(events.BalanceChangedEvent(settled))
	if event.Kind == models.ChainEventKindFaucet {
		uow.EventBus().Publish(events.FaucetClaimedEvent{SettledEvent: settled})
	} else {
		uow.EventBus().Publish(events.DepositSettledEvent{SettledEvent: settled})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	log.WithFields(log.Fields{
		"txHash":        event.TxHash,
		"type":          txType,
		"address":       account.Address,
		"amount":        event.Amount,
		"balanceBefore": balanceBefore,
		"balanceAfter":  balanceAfter,
	}).Info("Settled chain event")

	return txn, nil
}

// ConfirmWithdrawal settles a confirmed on-chain withdrawal: the off-chain
// balance is deducted only here, never at authorization time. The same
// idempotence-by-reference rule applies.
func (s *settlementService) ConfirmWithdrawal(ctx context.Context, address string, amount decimal.Decimal, txHash string) (*models.Transaction, error) {
	if txHash == "" {
		return nil, fmt.Errorf("withdrawal confirmation has no transaction hash")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	normalized := models.NormalizeAddress(address)
	if normalized == "" {
		return nil, ErrWalletNotConnected
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	existing, err := uow.TransactionRepository().GetCompletedByTypeAndReference(ctx, models.TransactionTypeWithdrawal, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed idempotence check for %s: %w", txHash, err)
	}
	if existing != nil {
		return existing, nil
	}

	account, err := uow.AccountRepository().GetByAddressForUpdate(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	if account.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, account.Balance, amount)
	}

	if err := uow.AccountRepository().DeductBalance(ctx, account.ID, amount); err != nil {
		return nil, fmt.Errorf("failed to deduct withdrawal: %w", err)
	}
	if err := uow.AccountRepository().AddTotalWithdrawn(ctx, account.ID, amount); err != nil {
		return nil, fmt.Errorf("failed to update withdrawal total: %w", err)
	}

	balanceBefore := account.Balance
	balanceAfter := balanceBefore.Sub(amount)

	txn := &models.Transaction{
		AccountID:     account.ID,
		Type:          models.TransactionTypeWithdrawal,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Status:        models.TransactionStatusCompleted,
		ReferenceID:   &txHash,
		Metadata: map[string]any{
			"source": "withdrawal_confirmation",
		},
	}

	if err := uow.TransactionRepository().Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to record withdrawal: %w", err)
	}

	settled := events.SettledEvent{
		AccountID:     account.ID,
		Address:       account.Address,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		TxHash:        txHash,
		Timestamp:     txn.CreatedAt,
	}
	uow.EventBus().Publish(events.BalanceChangedEvent(settled))
	uow.EventBus().Publish(events.WithdrawalSettledEvent{SettledEvent: settled})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal: %w", err)
	}

	log.WithFields(log.Fields{
		"txHash":  txHash,
		"address": account.Address,
		"amount":  amount,
	}).Info("Settled confirmed withdrawal")

	return txn, nil
}
