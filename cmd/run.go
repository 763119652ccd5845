package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"chipbridge/api"
	"chipbridge/chain"
	"chipbridge/config"
	"chipbridge/database"
	"chipbridge/events"
	"chipbridge/listener"
	"chipbridge/notify"
	"chipbridge/repository"
	"chipbridge/service"
	"chipbridge/signing"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting chipbridge...")

	cfg := config.Get()

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully")

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	log.Info("Connecting to chain RPC...")
	chainClient, err := chain.Dial(ctx, cfg.RPCWSURL, cfg.RPCHTTPURL)
	if err != nil {
		return fmt.Errorf("failed to connect to chain RPC: %w", err)
	}
	log.Info("Chain RPC connection established successfully")

	signer, err := signing.NewSigner(cfg.SignerPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load withdrawal signer key: %w", err)
	}
	log.WithField("signer", signer.Address()).Info("Withdrawal signer loaded")

	withdrawalContract := chain.NewWithdrawalContract(chainClient, cfg.WithdrawalContractAddress)

	// The internal API is the primary settlement path; without it the
	// settlement service writes to storage directly.
	var internalClient service.InternalAPIClient
	if cfg.InternalAPIURL != "" {
		internalClient = service.NewInternalAPIClient(cfg.InternalAPIURL, cfg.InternalAPIKey)
		log.WithField("url", cfg.InternalAPIURL).Info("Internal settlement API configured")
	}

	settlementService := service.NewSettlementService(uowFactory, internalClient, service.DefaultRetryPolicy())
	withdrawalService := service.NewWithdrawalService(uowFactory, withdrawalContract, signer)
	accountService := service.NewAccountService(uowFactory)

	hub := notify.NewHub()
	go hub.Run()
	notify.Bind(eventBus, hub)

	chainListener := listener.New(chainClient, settlementService, listener.Config{
		ContractAddress:       cfg.EscrowContractAddress,
		RequiredConfirmations: cfg.RequiredConfirmations,
		PollInterval:          cfg.ConfirmationPollInterval,
	})
	supervisor := listener.NewSupervisor(chainListener, listener.SupervisorConfig{
		MaxAttempts: cfg.MaxReconnectAttempts,
		BaseDelay:   cfg.ReconnectBaseDelay,
		MaxDelay:    cfg.ReconnectMaxDelay,
	})

	supervisorErr := make(chan error, 1)
	go func() {
		supervisorErr <- supervisor.Run(ctx)
	}()

	server := api.NewServer(api.Config{
		ListenAddr:     cfg.ListenAddr,
		JWTSecret:      cfg.JWTSecret,
		InternalAPIKey: cfg.InternalAPIKey,
	}, accountService, withdrawalService, settlementService, chainListener, chainClient, hub)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	log.WithField("environment", cfg.Environment).Info("chipbridge is running")

	var runErr error
	select {
	case runErr = <-supervisorErr:
		if runErr != nil {
			runErr = fmt.Errorf("chain listener failed: %w", runErr)
		}
	case runErr = <-serverErr:
		if runErr != nil {
			runErr = fmt.Errorf("http server failed: %w", runErr)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down...")

	chainListener.Stop()
	chainListener.Wait()
	chainClient.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("Closing database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Info("Shutdown completed")
	}

	return runErr
}
