package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"chipbridge/models"
	"chipbridge/service"
	"chipbridge/signing"
)

type walletAuthRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
	Message       string `json:"message"`
}

// loginMessage is what the wallet is asked to personal_sign; including the
// address binds the signature to one account
func loginMessage(address string) string {
	return fmt.Sprintf("Sign in to chipbridge as %s", models.NormalizeAddress(address))
}

// handleWalletAuth verifies a personal_sign login signature, lazily creates
// the account and issues a session token
func (s *Server) handleWalletAuth(c *gin.Context) {
	var req walletAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	message := req.Message
	if message == "" {
		message = loginMessage(req.WalletAddress)
	}

	valid, err := signing.VerifyPersonalSign(req.WalletAddress, message, req.Signature)
	if err != nil || !valid {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "signature verification failed"})
		return
	}

	account, err := s.accounts.GetOrCreateAccount(c.Request.Context(), req.WalletAddress)
	if err != nil {
		log.WithField("error", err).Error("Failed to get or create account")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load account"})
		return
	}

	token, err := issueSessionToken(s.jwtSecret, account.Address)
	if err != nil {
		log.WithField("error", err).Error("Failed to issue session token")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to issue session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"user":    accountResponse(account),
	})
}

// handleGetAccount returns the authenticated account
func (s *Server) handleGetAccount(c *gin.Context) {
	address := c.GetString("walletAddress")

	account, err := s.accounts.GetAccountByAddress(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load account"})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "account not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": accountResponse(account)})
}

// handleGetTransactions returns the authenticated account's recent ledger entries
func (s *Server) handleGetTransactions(c *gin.Context) {
	address := c.GetString("walletAddress")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	txns, err := s.accounts.GetTransactions(c.Request.Context(), address, limit)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transactions": txns})
}

// sessionOwnsAddress checks that the authenticated wallet matches the
// address named in the request body
func sessionOwnsAddress(c *gin.Context, address string) bool {
	return c.GetString("walletAddress") == models.NormalizeAddress(address)
}

type withdrawalInitiateRequest struct {
	PlayerAddress string          `json:"playerAddress" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
}

// handleWithdrawalInitiate issues a signed withdrawal authorization
func (s *Server) handleWithdrawalInitiate(c *gin.Context) {
	var req withdrawalInitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !sessionOwnsAddress(c, req.PlayerAddress) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "address does not match session"})
		return
	}

	auth, err := s.withdrawals.Authorize(c.Request.Context(), req.PlayerAddress, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientBalance):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "insufficient balance"})
		case errors.Is(err, service.ErrWalletNotConnected):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "wallet not connected"})
		case errors.Is(err, service.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "amount must be positive"})
		default:
			log.WithField("error", err).Error("Failed to authorize withdrawal")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to authorize withdrawal"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"signature":    auth.Signature,
		"nonce":        auth.Nonce,
		"finalBalance": auth.FinalBalance,
	})
}

type withdrawalConfirmRequest struct {
	PlayerAddress string          `json:"playerAddress" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	TxHash        string          `json:"txHash" binding:"required"`
}

// handleWithdrawalConfirm settles a confirmed on-chain withdrawal
func (s *Server) handleWithdrawalConfirm(c *gin.Context) {
	var req withdrawalConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !sessionOwnsAddress(c, req.PlayerAddress) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "address does not match session"})
		return
	}

	txn, err := s.settlement.ConfirmWithdrawal(c.Request.Context(), req.PlayerAddress, req.Amount, req.TxHash)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientBalance):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "insufficient balance"})
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "account not found"})
		default:
			log.WithField("error", err).Error("Failed to settle withdrawal")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to settle withdrawal"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": txn})
}

type internalProcessRequest struct {
	WalletAddress string          `json:"walletAddress" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	TxHash        string          `json:"txHash" binding:"required"`
	BlockNumber   uint64          `json:"blockNumber"`
	Timestamp     int64           `json:"timestamp"`
	Kind          string          `json:"kind"`
}

// handleInternalProcess is the internal-key-guarded settlement entry used
// as the primary path when the listener runs in a separate process
func (s *Server) handleInternalProcess(c *gin.Context) {
	var req internalProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	kind := models.ChainEventKindDeposit
	if req.Kind == string(models.ChainEventKindFaucet) {
		kind = models.ChainEventKindFaucet
	}

	txn, err := s.settlement.Settle(c.Request.Context(), models.ChainEvent{
		Kind:        kind,
		Address:     req.WalletAddress,
		Amount:      req.Amount,
		TxHash:      req.TxHash,
		BlockNumber: req.BlockNumber,
		BlockTime:   time.Unix(req.Timestamp, 0).UTC(),
	})
	if err != nil {
		log.WithFields(log.Fields{
			"txHash": req.TxHash,
			"error":  err,
		}).Error("Internal settlement failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "settlement failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"userId":        txn.AccountID,
			"balanceBefore": txn.BalanceBefore,
			"balanceAfter":  txn.BalanceAfter,
		},
	})
}

// handleAdminListAccounts returns every account for the admin surface
func (s *Server) handleAdminListAccounts(c *gin.Context) {
	accounts, err := s.accounts.ListAccounts(c.Request.Context())
	if err != nil {
		log.WithField("error", err).Error("Failed to list accounts")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list accounts"})
		return
	}

	out := make([]gin.H, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, accountResponse(account))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "accounts": out})
}

type adminAdjustRequest struct {
	WalletAddress string          `json:"walletAddress" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Reason        string          `json:"reason" binding:"required"`
}

// handleAdminAdjustBalance applies an admin balance correction
func (s *Server) handleAdminAdjustBalance(c *gin.Context) {
	var req adminAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	txn, err := s.accounts.AdjustBalance(c.Request.Context(), req.WalletAddress, req.Amount, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "account not found"})
		case errors.Is(err, service.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "amount must be non-zero"})
		case errors.Is(err, service.ErrInsufficientBalance):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "insufficient balance"})
		default:
			log.WithField("error", err).Error("Failed to apply balance adjustment")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to apply adjustment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": txn})
}

// handleStatus reports listener and chain health
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"success":  true,
		"listener": s.listenerStatus(),
	}

	if s.chainClient != nil {
		if height, err := s.chainClient.BlockNumber(c.Request.Context()); err == nil {
			status["chainHeight"] = height
		}
	}

	c.JSON(http.StatusOK, status)
}

func accountResponse(account *models.Account) gin.H {
	return gin.H{
		"id":             account.ID,
		"address":        account.Address,
		"balance":        account.Balance,
		"totalDeposited": account.TotalDeposited,
		"totalWithdrawn": account.TotalWithdrawn,
		"createdAt":      account.CreatedAt,
	}
}
