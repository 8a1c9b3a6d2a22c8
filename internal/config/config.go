// Package config defines the top-level configuration for the share sniper
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SNIPER_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Gas      GasConfig      `toml:"gas"`
	Sniper   SniperConfig   `toml:"sniper"`
	Exit     ExitConfig     `toml:"exit"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Retry    RetryConfig    `toml:"retry"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the signing identity. Either private_key or
// encrypted_key_path (plus key_password) must be set.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC endpoints and the shares contract address.
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	WSURL           string `toml:"ws_url"`
	ContractAddress string `toml:"contract_address"`
	ChainID         int64  `toml:"chain_id"`
}

// GasConfig holds the gas oracle parameters. Multipliers are expressed as
// floats and applied to wei amounts through integer percent math.
type GasConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
	QuoteTTL        duration `toml:"quote_ttl"`
	Markup          float64  `toml:"markup"`
	MinMultiplier   float64  `toml:"min_multiplier"`
	MaxMultiplier   float64  `toml:"max_multiplier"`
	GasLimit        uint64   `toml:"gas_limit"`
	ExitGasUnits    uint64   `toml:"exit_gas_units"`
}

// SniperConfig holds acquisition sizing and the bot heuristic parameters.
// All wei amounts here fit in int64 (the largest configured value is well
// below 9.2e18).
type SniperConfig struct {
	TierThresholdsWei  []int64  `toml:"tier_thresholds_wei"`
	MaxPriceWei        int64    `toml:"max_price_wei"`
	LowTierMaxPriceWei int64    `toml:"low_tier_max_price_wei"`
	BalanceEpsilonWei  int64    `toml:"balance_epsilon_wei"`
	LowBalanceWei      int64    `toml:"low_balance_wei"`
	BotBandLowWei      int64    `toml:"bot_band_low_wei"`
	BotBandHighWei     int64    `toml:"bot_band_high_wei"`
	RecentBalances     int      `toml:"recent_balances"`
	MaxSelfTradeShares int64    `toml:"max_self_trade_shares"`
	Blacklist          []string `toml:"blacklist"`
}

// ExitConfig holds the profit-exit rule parameters.
type ExitConfig struct {
	MarginMultiplier float64  `toml:"margin_multiplier"`
	SweepInterval    duration `toml:"sweep_interval"`
}

// LedgerConfig holds the durable position ledger location.
type LedgerConfig struct {
	Path string `toml:"path"`
}

// RetryConfig holds bounded-retry parameters for subscriptions and submissions.
type RetryConfig struct {
	SubscribeAttempts int      `toml:"subscribe_attempts"`
	SubscribeBackoff  duration `toml:"subscribe_backoff"`
	RateLimitPause    duration `toml:"rate_limit_pause"`
	MaxSubmitRetries  int      `toml:"max_submit_retries"`
}

// PostgresConfig holds the optional fill-history database.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the optional shared blacklist backend.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the optional closed-fill archive backend.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the liveness HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "15s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values in config.example.toml.
// Wei constants come from the contract's observed market: sizing tiers at
// 0.03, 0.09 and 0.9 native units, a hard price ceiling of 0.01, and the
// 0.1-unit funding band typical of automated wallets.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:          "https://mainnet.base.org",
			WSURL:           "wss://mainnet.base.org",
			ContractAddress: "0xCF205808Ed36593aa40a44F10c7f7C2F67d4A4d4",
			ChainID:         8453,
		},
		Gas: GasConfig{
			RefreshInterval: duration{15 * time.Second},
			QuoteTTL:        duration{60 * time.Second},
			Markup:          2.0,
			MinMultiplier:   1.1,
			MaxMultiplier:   1.4,
			GasLimit:        250_000,
			ExitGasUnits:    110_000,
		},
		Sniper: SniperConfig{
			TierThresholdsWei:  []int64{30_000_000_000_000_000, 90_000_000_000_000_000, 900_000_000_000_000_000},
			MaxPriceWei:        10_000_000_000_000_000,
			LowTierMaxPriceWei: 2_000_000_000_000_000,
			BalanceEpsilonWei:  300_000_000_000_000,
			LowBalanceWei:      5_000_000_000_000_000,
			BotBandLowWei:      95_000_000_000_000_000,
			BotBandHighWei:     105_000_000_000_000_000,
			RecentBalances:     20,
			MaxSelfTradeShares: 4,
			Blacklist:          []string{},
		},
		Exit: ExitConfig{
			MarginMultiplier: 1.6,
			SweepInterval:    duration{30 * time.Second},
		},
		Ledger: LedgerConfig{
			Path: "positions.txt",
		},
		Retry: RetryConfig{
			SubscribeAttempts: 5,
			SubscribeBackoff:  duration{3 * time.Second},
			RateLimitPause:    duration{10 * time.Second},
			MaxSubmitRetries:  2,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "sharesniper",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sharesniper-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    5005,
		},
		Notify: NotifyConfig{
			Events: []string{"fill", "liquidation", "shutdown", "error"},
		},
		Mode:     "snipe",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"snipe": true,
	"watch": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: snipe, watch)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: snipe mode submits transactions and needs a key source.
	if strings.ToLower(c.Mode) == "snipe" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode snipe")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.WSURL == "" {
		errs = append(errs, "chain: ws_url must not be empty")
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		errs = append(errs, fmt.Sprintf("chain: contract_address %q is not a valid address", c.Chain.ContractAddress))
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Gas
	if c.Gas.RefreshInterval.Duration < 5*time.Second || c.Gas.RefreshInterval.Duration > 60*time.Second {
		errs = append(errs, fmt.Sprintf("gas: refresh_interval must be 5s-60s, got %s", c.Gas.RefreshInterval))
	}
	if c.Gas.Markup < 1.0 {
		errs = append(errs, "gas: markup must be >= 1.0")
	}
	if c.Gas.MinMultiplier < 1.0 || c.Gas.MaxMultiplier < c.Gas.MinMultiplier {
		errs = append(errs, "gas: multipliers must satisfy 1.0 <= min_multiplier <= max_multiplier")
	}
	if c.Gas.GasLimit == 0 || c.Gas.ExitGasUnits == 0 {
		errs = append(errs, "gas: gas_limit and exit_gas_units must be positive")
	}

	// Sniper
	if len(c.Sniper.TierThresholdsWei) == 0 {
		errs = append(errs, "sniper: tier_thresholds_wei must not be empty")
	}
	for i := 1; i < len(c.Sniper.TierThresholdsWei); i++ {
		if c.Sniper.TierThresholdsWei[i] <= c.Sniper.TierThresholdsWei[i-1] {
			errs = append(errs, "sniper: tier_thresholds_wei must be strictly increasing")
			break
		}
	}
	if c.Sniper.MaxPriceWei <= 0 || c.Sniper.LowTierMaxPriceWei <= 0 {
		errs = append(errs, "sniper: price ceilings must be positive")
	}
	if c.Sniper.LowTierMaxPriceWei > c.Sniper.MaxPriceWei {
		errs = append(errs, "sniper: low_tier_max_price_wei must not exceed max_price_wei")
	}
	if c.Sniper.BotBandLowWei >= c.Sniper.BotBandHighWei {
		errs = append(errs, "sniper: bot_band_low_wei must be below bot_band_high_wei")
	}
	if c.Sniper.RecentBalances < 1 {
		errs = append(errs, "sniper: recent_balances must be >= 1")
	}
	for _, a := range c.Sniper.Blacklist {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("sniper: blacklist entry %q is not a valid address", a))
		}
	}

	// Exit
	if c.Exit.MarginMultiplier <= 1.0 {
		errs = append(errs, "exit: margin_multiplier must be > 1.0")
	}
	if c.Exit.SweepInterval.Duration <= 0 {
		errs = append(errs, "exit: sweep_interval must be positive")
	}

	// Ledger
	if strings.TrimSpace(c.Ledger.Path) == "" {
		errs = append(errs, "ledger: path must not be empty")
	}

	// Retry
	if c.Retry.SubscribeAttempts < 1 {
		errs = append(errs, "retry: subscribe_attempts must be >= 1")
	}
	if c.Retry.SubscribeBackoff.Duration < 3*time.Second {
		errs = append(errs, "retry: subscribe_backoff must be >= 3s")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
