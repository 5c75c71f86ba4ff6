package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:               "8080",
		Env:                "development",
		LogLevel:           "info",
		ApplicationName:    "Test Admin",
		IdentityLoginURL:   "https://game.example.com/login",
		IdentityProfileURL: "https://game.example.com/profile",
		IdentityJWKSURL:    "https://game.example.com/.well-known/jwks.json",
		AdminUsername:      "operator",
		AdminPassword:      "hunter2",
		PendingOrdersTable: "pending_ether_purchases",
		RPCURL:             "https://rpc.example.com",
		ChainID:            4,
		PrivateKey:         strings.Repeat("ab", 32),
		ProcessorContract:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		RateLimitRPM:       120,
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_PrivateKeyWith0xPrefix(t *testing.T) {
	cfg := validConfig()
	cfg.PrivateKey = "0x" + strings.Repeat("ab", 32)
	require.NoError(t, cfg.Validate())
}

func TestValidate_MissingRequired(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"login uri", func(c *Config) { c.IdentityLoginURL = "" }},
		{"profile uri", func(c *Config) { c.IdentityProfileURL = "" }},
		{"jwks uri", func(c *Config) { c.IdentityJWKSURL = "" }},
		{"rpc url", func(c *Config) { c.RPCURL = "" }},
		{"contract address", func(c *Config) { c.ProcessorContract = "" }},
		{"admin username", func(c *Config) { c.AdminUsername = "" }},
		{"admin password", func(c *Config) { c.AdminPassword = "" }},
		{"private key", func(c *Config) { c.PrivateKey = "" }},
		{"chain id", func(c *Config) { c.ChainID = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_ShortPrivateKey(t *testing.T) {
	cfg := validConfig()
	cfg.PrivateKey = "abc123"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "64 hex characters")
}

func TestValidate_BadOrdersTable(t *testing.T) {
	for _, table := range []string{"orders; DROP TABLE x", "orders-table", `orders"`, "1orders"} {
		cfg := validConfig()
		cfg.PendingOrdersTable = table
		assert.Errorf(t, cfg.Validate(), "table %q must be rejected", table)
	}
}

func TestValidate_BadIdentityURL(t *testing.T) {
	cfg := validConfig()
	cfg.IdentityJWKSURL = "://not-a-url"
	assert.Error(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("GAME_LOGIN_URI", "https://game.example.com/login")
	t.Setenv("GAME_PROFILE_URI", "https://game.example.com/profile")
	t.Setenv("GAME_JWKS_URI", "https://game.example.com/jwks")
	t.Setenv("GAME_ADMIN_USERNAME", "operator")
	t.Setenv("GAME_ADMIN_PASSWORD", "hunter2")
	t.Setenv("RPC_URL", "https://rpc.example.com")
	t.Setenv("CHAIN_ID", "4")
	t.Setenv("FIRST_PARTY_PRIVATE_KEY", strings.Repeat("cd", 32))
	t.Setenv("PAYMENT_PROCESSOR_ADDRESS", "0x036CbD53842c5426634e7929541eC2318f3dCF7e")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPendingOrdersTable, cfg.PendingOrdersTable)
	assert.Equal(t, int64(4), cfg.ChainID)
	assert.True(t, cfg.IsDevelopment())
}
