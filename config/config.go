package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// Chain configuration
	RPCWSURL                  string
	RPCHTTPURL                string
	EscrowContractAddress     string
	WithdrawalContractAddress string
	RequiredConfirmations     uint64
	ConfirmationPollInterval  time.Duration

	// Internal settlement API
	InternalAPIURL string
	InternalAPIKey string

	// Withdrawal signing
	SignerPrivateKey string

	// Auth
	JWTSecret string

	// Listener supervision
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// HTTP server
	ListenAddr string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	// A missing .env just means the environment is already set
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RPCWSURL:                  os.Getenv("RPC_WS_URL"),
		RPCHTTPURL:                os.Getenv("RPC_HTTP_URL"),
		EscrowContractAddress:     os.Getenv("ESCROW_CONTRACT_ADDRESS"),
		WithdrawalContractAddress: os.Getenv("WITHDRAWAL_CONTRACT_ADDRESS"),
		RequiredConfirmations:     5,
		ConfirmationPollInterval:  3 * time.Second,

		InternalAPIURL: os.Getenv("INTERNAL_API_URL"),
		InternalAPIKey: os.Getenv("INTERNAL_API_KEY"),

		SignerPrivateKey: os.Getenv("SIGNER_PRIVATE_KEY"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		MaxReconnectAttempts: 10,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    60 * time.Second,

		ListenAddr: ":8080",

		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if confirmations := os.Getenv("REQUIRED_CONFIRMATIONS"); confirmations != "" {
		if parsed, err := strconv.ParseUint(confirmations, 10, 64); err == nil {
			config.RequiredConfirmations = parsed
		}
	}
	if interval := os.Getenv("CONFIRMATION_POLL_INTERVAL"); interval != "" {
		if parsed, err := time.ParseDuration(interval); err == nil {
			config.ConfirmationPollInterval = parsed
		}
	}
	if attempts := os.Getenv("MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if parsed, err := strconv.Atoi(attempts); err == nil {
			config.MaxReconnectAttempts = parsed
		}
	}
	if delay := os.Getenv("RECONNECT_BASE_DELAY"); delay != "" {
		if parsed, err := time.ParseDuration(delay); err == nil {
			config.ReconnectBaseDelay = parsed
		}
	}
	if delay := os.Getenv("RECONNECT_MAX_DELAY"); delay != "" {
		if parsed, err := time.ParseDuration(delay); err == nil {
			config.ReconnectMaxDelay = parsed
		}
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.RPCWSURL == "" && config.RPCHTTPURL == "" {
			return nil, fmt.Errorf("RPC_WS_URL or RPC_HTTP_URL is required")
		}
		if config.EscrowContractAddress == "" {
			return nil, fmt.Errorf("ESCROW_CONTRACT_ADDRESS is required")
		}
		if config.WithdrawalContractAddress == "" {
			return nil, fmt.Errorf("WITHDRAWAL_CONTRACT_ADDRESS is required")
		}
		if config.SignerPrivateKey == "" {
			return nil, fmt.Errorf("SIGNER_PRIVATE_KEY is required")
		}
		if config.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
	}

	return config, nil
}
