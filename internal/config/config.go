// Package config defines the top-level configuration for the bridge and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEXBRIDGE_* environment
// variables. No component reads ambient environment state directly; all of
// this is resolved once at startup and passed down by constructor.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Matcher    MatcherConfig    `toml:"matcher"`
	Wallet     WalletConfig     `toml:"wallet"`
	Listener   ListenerConfig   `toml:"listener"`
	Settlement SettlementConfig `toml:"settlement"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig holds RPC endpoint and contract parameters.
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ChainID         int64  `toml:"chain_id"`
	ContractAddress string `toml:"contract_address"`
	SettlementToken string `toml:"settlement_token"`
	GasLimit        uint64 `toml:"gas_limit"`
}

// MatcherConfig holds the matcher (TEE) HTTP endpoint and relay retry
// parameters.
type MatcherConfig struct {
	Endpoint   string   `toml:"endpoint"`
	Timeout    duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	BaseDelay  duration `toml:"base_delay"`
}

// WalletConfig holds the settlement signing key. Either a raw hex key or an
// encrypted key file plus password must be provided for settling modes.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ListenerConfig holds event-ingestion loop parameters.
type ListenerConfig struct {
	PollInterval   duration `toml:"poll_interval"`
	ErrorBackoff   duration `toml:"error_backoff"`
	LookbackBlocks uint64   `toml:"lookback_blocks"`
}

// SettlementConfig holds reconciler loop parameters.
type SettlementConfig struct {
	CheckInterval duration `toml:"check_interval"`
	// DustThreshold: a price*quantity product below this triggers the
	// market-order fallback amount.
	DustThreshold float64 `toml:"dust_threshold"`
	// ReferencePrice is the placeholder price used by the market-order
	// fallback. Not an oracle; replace before any production deployment.
	ReferencePrice float64 `toml:"reference_price"`
	// NotifyFailures escalates failed settlements through the notifier for
	// manual review. Failed records are never retried automatically either
	// way.
	NotifyFailures bool `toml:"notify_failures"`
	// LockTTL bounds how long a crashed process can starve other reconcilers
	// of the distributed settlement lock.
	LockTTL duration `toml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
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

// ArchiveConfig holds cold-storage export parameters.
type ArchiveConfig struct {
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds the ops HTTP server parameters. An empty APIKey
// disables authentication.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "15s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "15s" or "5m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. The
// intervals match the original deployment: 15s event polling, 30s settlement
// checks, 30s error backoff, relay retries 3 × 5s base delay.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:   "https://ethereum-sepolia-rpc.publicnode.com",
			ChainID:  11155111,
			GasLimit: 200_000,
		},
		Matcher: MatcherConfig{
			Timeout:    duration{30 * time.Second},
			MaxRetries: 3,
			BaseDelay:  duration{5 * time.Second},
		},
		Listener: ListenerConfig{
			PollInterval:   duration{15 * time.Second},
			ErrorBackoff:   duration{30 * time.Second},
			LookbackBlocks: 10,
		},
		Settlement: SettlementConfig{
			CheckInterval:  duration{30 * time.Second},
			DustThreshold:  0.0001,
			ReferencePrice: 100,
			NotifyFailures: false,
			LockTTL:        duration{2 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexbridge",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dexbridge-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"settlement_failed", "relay_failed", "listener_error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"listen": true,
	"settle": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: listen, settle, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.ContractAddress == "" {
		errs = append(errs, "chain: contract_address must not be empty")
	}
	if c.Chain.GasLimit == 0 {
		errs = append(errs, "chain: gas_limit must be > 0")
	}

	// Matcher
	if c.Matcher.Endpoint == "" {
		errs = append(errs, "matcher: endpoint must not be empty")
	}
	if c.Matcher.MaxRetries < 1 {
		errs = append(errs, "matcher: max_retries must be >= 1")
	}
	if c.Matcher.BaseDelay.Duration <= 0 {
		errs = append(errs, "matcher: base_delay must be > 0")
	}

	// Wallet: required for modes that settle.
	needsWallet := mode == "settle" || mode == "full"
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Chain.SettlementToken == "" {
			errs = append(errs, "chain: settlement_token must be set for mode "+c.Mode)
		}
	}

	// Listener
	if c.Listener.PollInterval.Duration <= 0 {
		errs = append(errs, "listener: poll_interval must be > 0")
	}
	if c.Listener.ErrorBackoff.Duration <= 0 {
		errs = append(errs, "listener: error_backoff must be > 0")
	}

	// Settlement
	if c.Settlement.CheckInterval.Duration <= 0 {
		errs = append(errs, "settlement: check_interval must be > 0")
	}
	if c.Settlement.ReferencePrice <= 0 {
		errs = append(errs, "settlement: reference_price must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3: only when the archiver is enabled.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
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
