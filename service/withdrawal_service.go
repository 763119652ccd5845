package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"chipbridge/models"
)

type withdrawalService struct {
	uowFactory UnitOfWorkFactory
	nonces     NonceSource
	signer     WithdrawalSigner
}

// NewWithdrawalService creates a new withdrawal authorization service
func NewWithdrawalService(uowFactory UnitOfWorkFactory, nonces NonceSource, signer WithdrawalSigner) WithdrawalService {
	return &withdrawalService{
		uowFactory: uowFactory,
		nonces:     nonces,
		signer:     signer,
	}
}

// Authorize issues a signed, single-use withdrawal authorization. The
// off-chain balance is not deducted here; deduction happens when the
// on-chain withdrawal is observed confirmed and settled.
func (s *withdrawalService) Authorize(ctx context.Context, address string, amount decimal.Decimal) (*models.WithdrawalAuthorization, error) {
	normalized := models.NormalizeAddress(address)
	if normalized == "" || !common.IsHexAddress(normalized) {
		return nil, ErrWalletNotConnected
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	account, err := s.getAccount(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	// The withdrawal contract is the source of truth for replay
	// protection; read the nonce live, never from a local counter.
	nonce, err := s.nonces.PlayerNonce(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to read player nonce: %w", err)
	}

	finalBalance := account.Balance.Sub(amount)

	signature, err := s.signer.SignWithdrawal(normalized, amount, finalBalance, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to sign withdrawal: %w", err)
	}

	log.WithFields(log.Fields{
		"address":      normalized,
		"amount":       amount,
		"finalBalance": finalBalance,
		"nonce":        nonce,
	}).Info("Issued withdrawal authorization")

	return &models.WithdrawalAuthorization{
		Address:      normalized,
		Amount:       amount,
		FinalBalance: finalBalance,
		Nonce:        nonce,
		Signature:    signature,
	}, nil
}

func (s *withdrawalService) getAccount(ctx context.Context, address string) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}
