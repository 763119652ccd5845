package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"chipbridge/chain"
	"chipbridge/listener"
	"chipbridge/notify"
	"chipbridge/service"
)

// Config carries the secrets and addresses the HTTP layer needs.
type Config struct {
	ListenAddr     string
	JWTSecret      string
	InternalAPIKey string
}

// Server exposes the HTTP and websocket surface of the bridge.
type Server struct {
	cfg         Config
	jwtSecret   string
	accounts    service.AccountService
	withdrawals service.WithdrawalService
	settlement  service.SettlementService
	listener    *listener.Listener
	chainClient chain.Client
	hub         *notify.Hub

	httpServer *http.Server
}

func NewServer(
	cfg Config,
	accounts service.AccountService,
	withdrawals service.WithdrawalService,
	settlement service.SettlementService,
	l *listener.Listener,
	chainClient chain.Client,
	hub *notify.Hub,
) *Server {
	return &Server{
		cfg:         cfg,
		jwtSecret:   cfg.JWTSecret,
		accounts:    accounts,
		withdrawals: withdrawals,
		settlement:  settlement,
		listener:    l,
		chainClient: chainClient,
		hub:         hub,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.POST("/auth/wallet", s.handleWalletAuth)
		api.GET("/status", s.handleStatus)

		authed := api.Group("", requireSession(s.jwtSecret))
		{
			authed.GET("/account", s.handleGetAccount)
			authed.GET("/account/transactions", s.handleGetTransactions)
			authed.POST("/withdrawal/initiate", s.handleWithdrawalInitiate)
			authed.POST("/withdrawal/confirm", s.handleWithdrawalConfirm)
		}

		internal := api.Group("/internal", requireInternalKey(s.cfg.InternalAPIKey))
		{
			internal.POST("/faucet-or-deposit/process", s.handleInternalProcess)
			internal.GET("/admin/accounts", s.handleAdminListAccounts)
			internal.POST("/admin/adjust-balance", s.handleAdminAdjustBalance)
		}
	}

	if s.hub != nil {
		router.GET("/ws", requireSession(s.jwtSecret), s.hub.ServeWS)
	}

	return router
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.cfg.ListenAddr).Info("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) listenerStatus() any {
	if s.listener == nil {
		return nil
	}
	return s.listener.Status()
}
