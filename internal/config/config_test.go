package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/faucet/core"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func setRequired(t *testing.T) {
	t.Setenv("RPC_URL", "https://rpc.example.org")
	t.Setenv("BOT_TOKEN", "bot-secret")
	t.Setenv("CONTRACT_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("PRIVATE_KEY", "0x"+testKey)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.PrivateKey)
	assert.Equal(t, int64(1516), cfg.ChainID)
	assert.Equal(t, int64(10), cfg.ClaimAmount)
	assert.Equal(t, int32(18), cfg.TokenDecimals)
	assert.Equal(t, uint64(200000), cfg.GasLimit)
	assert.Equal(t, int64(30), cfg.GasMinGwei)
	assert.Equal(t, int64(300), cfg.GasMaxGwei)
	assert.Equal(t, 30*time.Second, cfg.RPCTimeout)
	assert.Equal(t, 2*time.Minute, cfg.ConfirmTimeout)
	assert.Equal(t, 64, cfg.StreamWorkers)
	assert.Equal(t, core.DefaultClaimWindow, cfg.ClaimWindow)
	assert.Equal(t, time.Duration(0), cfg.ChallengeTTL)
	assert.Equal(t, LedgerBackendFile, cfg.LedgerBackend)
	assert.Equal(t, "users_db.json", cfg.LedgerPath)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoadMissingRequired(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RPC_URL", "")
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("CONTRACT_ADDRESS", "")
	t.Setenv("PRIVATE_KEY", "")

	_, err := Load()
	require.ErrorIs(t, err, core.ErrConfiguration)
	for _, name := range []string{"RPC_URL", "BOT_TOKEN", "CONTRACT_ADDRESS", "PRIVATE_KEY"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad contract", func(c *Config) { c.ContractAddress = "0x123" }},
		{"bad key", func(c *Config) { c.PrivateKey = "zz" }},
		{"empty gas band", func(c *Config) { c.GasMinGwei, c.GasMaxGwei = 300, 30 }},
		{"zero amount", func(c *Config) { c.ClaimAmount = 0 }},
		{"unknown backend", func(c *Config) { c.LedgerBackend = "postgres" }},
		{"redis without url", func(c *Config) { c.LedgerBackend = LedgerBackendRedis }},
		{"events without url", func(c *Config) { c.EventsEnabled = true }},
		{"negative ttl", func(c *Config) { c.ChallengeTTL = -time.Second }},
		{"sample ratio", func(c *Config) { c.OTEL.SampleRatio = 2 }},
		{"disbursement outlives lock", func(c *Config) { c.ConfirmTimeout = c.LockTimeout }},
		{"no stream workers", func(c *Config) { c.StreamWorkers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), core.ErrConfiguration)
		})
	}

	withRedis := base
	withRedis.LedgerBackend = LedgerBackendRedis
	withRedis.RedisURL = "redis://localhost:6379/0"
	assert.NoError(t, withRedis.Validate())
	assert.True(t, withRedis.NeedsRedis())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)
	t.Setenv("CLAIM_WINDOW", "1h")
	t.Setenv("GAS_MAX_GWEI", "500")
	t.Setenv("LOG_PRETTY", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.ClaimWindow)
	assert.Equal(t, int64(500), cfg.GasMaxGwei)
	assert.True(t, cfg.LogPretty)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := map[string]string{
		"GAS_MAX_GWEI":   "abc",
		"CHAIN_ID":       "1516x",
		"TOKEN_DECIMALS": "4294967314",
		"GAS_LIMIT":      "-1",
		"CLAIM_WINDOW":   "24",
		"LOG_PRETTY":     "maybe",
		"RATE_RPS":       "fast",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			setRequired(t)
			t.Setenv(name, value)

			_, err := Load()
			require.ErrorIs(t, err, core.ErrConfiguration)
			assert.Contains(t, err.Error(), name)
		})
	}
}
