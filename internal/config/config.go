// Package config loads faucet settings from the environment (and an optional
// .env file) and validates them before anything touches the chain.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"

	"github.com/layer-3/faucet/core"
)

const (
	LedgerBackendFile  = "file"
	LedgerBackendRedis = "redis"
)

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// Config holds every runtime setting of the faucet.
type Config struct {
	// Required
	RPCURL          string
	BotToken        string
	ContractAddress string
	PrivateKey      string // hex, without 0x

	// Chain
	ChainID        int64
	ClaimAmount    int64 // whole tokens
	TokenDecimals  int32
	GasLimit       uint64
	GasMinGwei     int64
	GasMaxGwei     int64
	RPCTimeout     time.Duration
	ConfirmTimeout time.Duration

	// Workflow
	ClaimWindow  time.Duration
	ChallengeTTL time.Duration
	LockTimeout  time.Duration

	// Storage
	LedgerBackend string
	LedgerPath    string
	RedisURL      string

	// Transports
	HTTPAddr      string
	RateRPS       float64
	RateBurst     int
	EventsEnabled bool
	StreamEnabled bool
	StreamWorkers int

	// Logging
	LogLevel  string
	LogPretty bool

	OTEL OTELConfig
}

// Load reads .env (if present) and the environment, applies defaults and
// validates. Every failure wraps core.ErrConfiguration.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: read .env: %v", core.ErrConfiguration, err)
	}

	env := &envReader{}
	cfg := Config{
		RPCURL:          os.Getenv("RPC_URL"),
		BotToken:        os.Getenv("BOT_TOKEN"),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
		PrivateKey:      strings.TrimPrefix(os.Getenv("PRIVATE_KEY"), "0x"),

		ChainID:        env.int64("CHAIN_ID", 1516),
		ClaimAmount:    env.int64("CLAIM_AMOUNT", 10),
		TokenDecimals:  env.int32("TOKEN_DECIMALS", 18),
		GasLimit:       env.uint64("GAS_LIMIT", 200000),
		GasMinGwei:     env.int64("GAS_MIN_GWEI", 30),
		GasMaxGwei:     env.int64("GAS_MAX_GWEI", 300),
		RPCTimeout:     env.duration("RPC_TIMEOUT", 30*time.Second),
		ConfirmTimeout: env.duration("CONFIRM_TIMEOUT", 2*time.Minute),

		ClaimWindow:  env.duration("CLAIM_WINDOW", core.DefaultClaimWindow),
		ChallengeTTL: env.duration("CHALLENGE_TTL", 0),
		LockTimeout:  env.duration("LOCK_TIMEOUT", 5*time.Minute),

		LedgerBackend: strings.ToLower(getenv("LEDGER_BACKEND", LedgerBackendFile)),
		LedgerPath:    getenv("LEDGER_PATH", "users_db.json"),
		RedisURL:      os.Getenv("REDIS_URL"),

		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		RateRPS:       env.float("RATE_RPS", 1),
		RateBurst:     env.int("RATE_BURST", 5),
		EventsEnabled: env.bool("EVENTS_ENABLED", false),
		StreamEnabled: env.bool("STREAM_ENABLED", false),
		StreamWorkers: env.int("STREAM_MAX_IN_FLIGHT", 64),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: env.bool("LOG_PRETTY", false),

		OTEL: OTELConfig{
			Enabled:     env.bool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "faucet"),
			SampleRatio: env.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if len(env.malformed) > 0 {
		return Config{}, fmt.Errorf("%w: malformed %s", core.ErrConfiguration, strings.Join(env.malformed, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c Config) Validate() error {
	var missing []string
	for _, req := range []struct{ name, value string }{
		{"RPC_URL", c.RPCURL},
		{"BOT_TOKEN", c.BotToken},
		{"CONTRACT_ADDRESS", c.ContractAddress},
		{"PRIVATE_KEY", c.PrivateKey},
	} {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", core.ErrConfiguration, strings.Join(missing, ", "))
	}

	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("%w: CONTRACT_ADDRESS is not a hex address", core.ErrConfiguration)
	}
	if _, err := crypto.HexToECDSA(c.PrivateKey); err != nil {
		return fmt.Errorf("%w: PRIVATE_KEY is not a valid secp256k1 key", core.ErrConfiguration)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("%w: CHAIN_ID must be > 0", core.ErrConfiguration)
	}
	if c.ClaimAmount <= 0 {
		return fmt.Errorf("%w: CLAIM_AMOUNT must be > 0", core.ErrConfiguration)
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 36 {
		return fmt.Errorf("%w: TOKEN_DECIMALS must be in [0,36]", core.ErrConfiguration)
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("%w: GAS_LIMIT must be > 0", core.ErrConfiguration)
	}
	if c.GasMinGwei < 0 || c.GasMaxGwei < c.GasMinGwei {
		return fmt.Errorf("%w: gas band [%d,%d] is empty", core.ErrConfiguration, c.GasMinGwei, c.GasMaxGwei)
	}
	if c.RPCTimeout <= 0 || c.ConfirmTimeout <= 0 || c.ClaimWindow <= 0 || c.LockTimeout <= 0 {
		return fmt.Errorf("%w: timeouts and CLAIM_WINDOW must be positive", core.ErrConfiguration)
	}
	if c.RPCTimeout+c.ConfirmTimeout >= c.LockTimeout {
		return fmt.Errorf("%w: RPC_TIMEOUT + CONFIRM_TIMEOUT must be below LOCK_TIMEOUT", core.ErrConfiguration)
	}
	if c.ChallengeTTL < 0 {
		return fmt.Errorf("%w: CHALLENGE_TTL must be >= 0", core.ErrConfiguration)
	}
	switch c.LedgerBackend {
	case LedgerBackendFile:
		if strings.TrimSpace(c.LedgerPath) == "" {
			return fmt.Errorf("%w: LEDGER_PATH must not be empty", core.ErrConfiguration)
		}
	case LedgerBackendRedis:
	default:
		return fmt.Errorf("%w: LEDGER_BACKEND must be file or redis", core.ErrConfiguration)
	}
	if c.NeedsRedis() && c.RedisURL == "" {
		return fmt.Errorf("%w: REDIS_URL is required for the redis ledger, events and stream", core.ErrConfiguration)
	}
	if c.StreamWorkers < 1 {
		return fmt.Errorf("%w: STREAM_MAX_IN_FLIGHT must be >= 1", core.ErrConfiguration)
	}
	if c.RateRPS <= 0 || c.RateBurst < 1 {
		return fmt.Errorf("%w: RATE_RPS must be > 0 and RATE_BURST >= 1", core.ErrConfiguration)
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return fmt.Errorf("%w: OTEL_TRACES_SAMPLER_ARG must be in [0,1]", core.ErrConfiguration)
	}
	return nil
}

// NeedsRedis reports whether any enabled component is Redis-backed.
func (c Config) NeedsRedis() bool {
	return c.LedgerBackend == LedgerBackendRedis || c.EventsEnabled || c.StreamEnabled
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

// envReader parses typed variables, remembering every one that is set but
// does not parse.
type envReader struct {
	malformed []string
}

func (e *envReader) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) bad(k string) {
	e.malformed = append(e.malformed, k)
}

func (e *envReader) int64(k string, def int64) int64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.bad(k)
		return def
	}
	return i
}

func (e *envReader) int32(k string, def int32) int32 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		e.bad(k)
		return def
	}
	return int32(i)
}

func (e *envReader) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.bad(k)
		return def
	}
	return i
}

func (e *envReader) uint64(k string, def uint64) uint64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.bad(k)
		return def
	}
	return u
}

func (e *envReader) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.bad(k)
		return def
	}
	return f
}

func (e *envReader) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.bad(k)
	return def
}

func (e *envReader) duration(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.bad(k)
		return def
	}
	return d
}
