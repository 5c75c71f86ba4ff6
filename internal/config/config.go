// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is built once at startup
// and treated as immutable afterwards; every component receives it (or the
// fields it needs) explicitly.
type Config struct {
	// Server settings
	Port            string
	Env             string // "development", "staging", "production"
	LogLevel        string
	ApplicationName string // Shown on the dashboard and login views

	// Game identity provider
	IdentityLoginURL   string // username/password -> bearer credential
	IdentityProfileURL string // bearer credential -> profile (isAdmin)
	IdentityJWKSURL    string // public signing keys indexed by kid
	AdminUsername      string // operator credentials for the startup session
	AdminPassword      string

	// Database
	DatabaseURL        string // PostgreSQL connection string (optional, uses in-memory if not set)
	PendingOrdersTable string // Table holding pending ether purchase orders

	// Blockchain settings
	RPCURL            string
	ChainID           int64
	PrivateKey        string // First-party hex key, with or without 0x prefix
	ProcessorContract string // Payment processor contract address

	// Security
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

// Defaults
const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultApplicationName    = "Payment Processor Admin"
	DefaultPendingOrdersTable = "pending_ether_purchases"
	DefaultRateLimitRPM       = 120
)

// tableNameRegex restricts the configured orders table to a plain SQL
// identifier. The table name is interpolated into queries, so it must never
// carry quoting or punctuation.
var tableNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		ApplicationName:    getEnv("APPLICATION_NAME", DefaultApplicationName),
		IdentityLoginURL:   os.Getenv("GAME_LOGIN_URI"),
		IdentityProfileURL: os.Getenv("GAME_PROFILE_URI"),
		IdentityJWKSURL:    os.Getenv("GAME_JWKS_URI"),
		AdminUsername:      os.Getenv("GAME_ADMIN_USERNAME"),
		AdminPassword:      os.Getenv("GAME_ADMIN_PASSWORD"),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		PendingOrdersTable: getEnv("PENDING_ORDERS_TABLE", DefaultPendingOrdersTable),
		RPCURL:             os.Getenv("RPC_URL"),
		ChainID:            getEnvInt64("CHAIN_ID", 0),
		PrivateKey:         os.Getenv("FIRST_PARTY_PRIVATE_KEY"),
		ProcessorContract:  os.Getenv("PAYMENT_PROCESSOR_ADDRESS"),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	for _, req := range []struct {
		name, value string
	}{
		{"GAME_LOGIN_URI", c.IdentityLoginURL},
		{"GAME_PROFILE_URI", c.IdentityProfileURL},
		{"GAME_JWKS_URI", c.IdentityJWKSURL},
		{"RPC_URL", c.RPCURL},
		{"PAYMENT_PROCESSOR_ADDRESS", c.ProcessorContract},
	} {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}

	for _, u := range []string{c.IdentityLoginURL, c.IdentityProfileURL, c.IdentityJWKSURL} {
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("invalid identity provider URL %q: %w", u, err)
		}
	}

	if c.AdminUsername == "" || c.AdminPassword == "" {
		return fmt.Errorf("GAME_ADMIN_USERNAME and GAME_ADMIN_PASSWORD are required")
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("FIRST_PARTY_PRIVATE_KEY is required")
	}
	// Allow both with and without 0x prefix
	key := strings.TrimPrefix(c.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("FIRST_PARTY_PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}

	if c.ChainID == 0 {
		return fmt.Errorf("CHAIN_ID is required")
	}

	if !tableNameRegex.MatchString(c.PendingOrdersTable) {
		return fmt.Errorf("PENDING_ORDERS_TABLE must be a plain SQL identifier, got %q", c.PendingOrdersTable)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
