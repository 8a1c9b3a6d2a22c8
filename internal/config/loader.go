package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SNIPER_* environment variable overrides, and
// returns the final Config. A missing file is not an error; defaults plus
// environment overrides apply. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SNIPER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.EncryptedKeyPath, "SNIPER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SNIPER_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SNIPER_CHAIN_RPC_URL")
	setStr(&cfg.Chain.WSURL, "SNIPER_CHAIN_WS_URL")
	setStr(&cfg.Chain.ContractAddress, "SNIPER_CHAIN_CONTRACT_ADDRESS")
	setInt64(&cfg.Chain.ChainID, "SNIPER_CHAIN_CHAIN_ID")

	// ── Gas ──
	setDuration(&cfg.Gas.RefreshInterval, "SNIPER_GAS_REFRESH_INTERVAL")
	setDuration(&cfg.Gas.QuoteTTL, "SNIPER_GAS_QUOTE_TTL")
	setFloat64(&cfg.Gas.Markup, "SNIPER_GAS_MARKUP")
	setFloat64(&cfg.Gas.MinMultiplier, "SNIPER_GAS_MIN_MULTIPLIER")
	setFloat64(&cfg.Gas.MaxMultiplier, "SNIPER_GAS_MAX_MULTIPLIER")
	setUint64(&cfg.Gas.GasLimit, "SNIPER_GAS_GAS_LIMIT")
	setUint64(&cfg.Gas.ExitGasUnits, "SNIPER_GAS_EXIT_GAS_UNITS")

	// ── Sniper ──
	setInt64Slice(&cfg.Sniper.TierThresholdsWei, "SNIPER_SNIPER_TIER_THRESHOLDS_WEI")
	setInt64(&cfg.Sniper.MaxPriceWei, "SNIPER_SNIPER_MAX_PRICE_WEI")
	setInt64(&cfg.Sniper.LowTierMaxPriceWei, "SNIPER_SNIPER_LOW_TIER_MAX_PRICE_WEI")
	setInt64(&cfg.Sniper.BalanceEpsilonWei, "SNIPER_SNIPER_BALANCE_EPSILON_WEI")
	setInt64(&cfg.Sniper.LowBalanceWei, "SNIPER_SNIPER_LOW_BALANCE_WEI")
	setInt64(&cfg.Sniper.BotBandLowWei, "SNIPER_SNIPER_BOT_BAND_LOW_WEI")
	setInt64(&cfg.Sniper.BotBandHighWei, "SNIPER_SNIPER_BOT_BAND_HIGH_WEI")
	setInt(&cfg.Sniper.RecentBalances, "SNIPER_SNIPER_RECENT_BALANCES")
	setInt64(&cfg.Sniper.MaxSelfTradeShares, "SNIPER_SNIPER_MAX_SELF_TRADE_SHARES")
	setStringSlice(&cfg.Sniper.Blacklist, "SNIPER_SNIPER_BLACKLIST")

	// ── Exit ──
	setFloat64(&cfg.Exit.MarginMultiplier, "SNIPER_EXIT_MARGIN_MULTIPLIER")
	setDuration(&cfg.Exit.SweepInterval, "SNIPER_EXIT_SWEEP_INTERVAL")

	// ── Ledger ──
	setStr(&cfg.Ledger.Path, "SNIPER_LEDGER_PATH")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SNIPER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SNIPER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SNIPER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SNIPER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SNIPER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SNIPER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SNIPER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SNIPER_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "SNIPER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SNIPER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SNIPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNIPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNIPER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "SNIPER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SNIPER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SNIPER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SNIPER_S3_REGION")
	setStr(&cfg.S3.Bucket, "SNIPER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SNIPER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SNIPER_S3_SECRET_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SNIPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SNIPER_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SNIPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SNIPER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SNIPER_MODE")
	setStr(&cfg.LogLevel, "SNIPER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setInt64Slice(dst *[]int64, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		parsed := make([]int64, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				// A malformed list leaves the configured value untouched.
				return
			}
			parsed = append(parsed, n)
		}
		if len(parsed) > 0 {
			*dst = parsed
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
