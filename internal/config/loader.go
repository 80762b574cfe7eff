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
// built-in defaults, applies DEXBRIDGE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXBRIDGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "DEXBRIDGE_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "DEXBRIDGE_CHAIN_ID")
	setStr(&cfg.Chain.ContractAddress, "DEXBRIDGE_CHAIN_CONTRACT_ADDRESS")
	setStr(&cfg.Chain.SettlementToken, "DEXBRIDGE_CHAIN_SETTLEMENT_TOKEN")
	setUint64(&cfg.Chain.GasLimit, "DEXBRIDGE_CHAIN_GAS_LIMIT")

	// ── Matcher ──
	setStr(&cfg.Matcher.Endpoint, "DEXBRIDGE_MATCHER_ENDPOINT")
	setDuration(&cfg.Matcher.Timeout, "DEXBRIDGE_MATCHER_TIMEOUT")
	setInt(&cfg.Matcher.MaxRetries, "DEXBRIDGE_MATCHER_MAX_RETRIES")
	setDuration(&cfg.Matcher.BaseDelay, "DEXBRIDGE_MATCHER_BASE_DELAY")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DEXBRIDGE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DEXBRIDGE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DEXBRIDGE_WALLET_KEY_PASSWORD")

	// ── Listener ──
	setDuration(&cfg.Listener.PollInterval, "DEXBRIDGE_LISTENER_POLL_INTERVAL")
	setDuration(&cfg.Listener.ErrorBackoff, "DEXBRIDGE_LISTENER_ERROR_BACKOFF")
	setUint64(&cfg.Listener.LookbackBlocks, "DEXBRIDGE_LISTENER_LOOKBACK_BLOCKS")

	// ── Settlement ──
	setDuration(&cfg.Settlement.CheckInterval, "DEXBRIDGE_SETTLEMENT_CHECK_INTERVAL")
	setFloat64(&cfg.Settlement.DustThreshold, "DEXBRIDGE_SETTLEMENT_DUST_THRESHOLD")
	setFloat64(&cfg.Settlement.ReferencePrice, "DEXBRIDGE_SETTLEMENT_REFERENCE_PRICE")
	setBool(&cfg.Settlement.NotifyFailures, "DEXBRIDGE_SETTLEMENT_NOTIFY_FAILURES")
	setDuration(&cfg.Settlement.LockTTL, "DEXBRIDGE_SETTLEMENT_LOCK_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXBRIDGE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEXBRIDGE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXBRIDGE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXBRIDGE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXBRIDGE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXBRIDGE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXBRIDGE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXBRIDGE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXBRIDGE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXBRIDGE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXBRIDGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXBRIDGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXBRIDGE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXBRIDGE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXBRIDGE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXBRIDGE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEXBRIDGE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEXBRIDGE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXBRIDGE_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXBRIDGE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEXBRIDGE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXBRIDGE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXBRIDGE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXBRIDGE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "DEXBRIDGE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "DEXBRIDGE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXBRIDGE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXBRIDGE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXBRIDGE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DEXBRIDGE_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXBRIDGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXBRIDGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXBRIDGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXBRIDGE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXBRIDGE_MODE")
	setStr(&cfg.LogLevel, "DEXBRIDGE_LOG_LEVEL")
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
