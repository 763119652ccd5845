package service

import "errors"

var (
	// ErrWalletNotConnected is returned when a request carries no usable
	// wallet address
	ErrWalletNotConnected = errors.New("wallet not connected")

	// ErrInsufficientBalance is returned when an account's off-chain
	// balance cannot cover a requested withdrawal
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for zero or negative amounts
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAccountNotFound is returned when an operation targets an account
	// that does not exist
	ErrAccountNotFound = errors.New("account not found")
)
