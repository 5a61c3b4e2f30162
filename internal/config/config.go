// Package config defines the top-level configuration for the momentum
// settlement engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MOMENTUM_* environment
// variables.
type Config struct {
	Operator OperatorConfig `toml:"operator"`
	Engine   EngineConfig   `toml:"engine"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Sim      SimConfig      `toml:"sim"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// OperatorConfig holds the operator key material. Either a raw private key
// or an encrypted key file plus password must be provided for modes that
// mutate engine state.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// EngineConfig holds ledger parameters fixed at deployment: the settlement
// asset, the vault account, and the three fee recipients.
type EngineConfig struct {
	SettlementAsset   string `toml:"settlement_asset"`
	VaultAccount      string `toml:"vault_account"`
	LiquidityAddress  string `toml:"liquidity_address"`
	DeveloperAddress  string `toml:"developer_address"`
	CommunityAddress  string `toml:"community_address"`
	SingleBetPerEvent bool   `toml:"single_bet_per_event"`
	RetainFees        bool   `toml:"retain_fees"`
	// LargeBetThreshold triggers a notification when a bet's normalized
	// value meets or exceeds it. Decimal string; empty disables.
	LargeBetThreshold string `toml:"large_bet_threshold"`
}

// OracleConfig holds the external price feed parameters.
type OracleConfig struct {
	FeedURL         string   `toml:"feed_url"`
	FeedAPIKey      string   `toml:"feed_api_key"`
	RefreshInterval duration `toml:"refresh_interval"`
	// Assets to keep warm in the price cache.
	Assets []string `toml:"assets"`
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

// S3Config holds S3-compatible object storage parameters for settlement
// report archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds background job parameters.
type PipelineConfig struct {
	Enabled              bool   `toml:"enabled"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
	ArchiveCron          string `toml:"archive_cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Events            []string `toml:"events"`
}

// SimConfig holds parameters for the in-memory simulation mode: a seeded
// event catalog, a fixed native-asset price, and funded test accounts.
type SimConfig struct {
	// NativePrice is the 8-decimal fixed-point USD price for the native
	// asset, as a decimal string (e.g. "200000000000" for $2000).
	NativePrice string `toml:"native_price"`
	// MintAmount funds each seeded contributor with this much of the
	// settlement asset.
	MintAmount string     `toml:"mint_amount"`
	Events     []SimEvent `toml:"events"`
}

// SimEvent is a catalog entry seeded at startup in sim mode. Side addresses
// are derived from the side names when left empty.
type SimEvent struct {
	Name        string   `toml:"name"`
	Location    string   `toml:"location"`
	Description string   `toml:"description"`
	StartOffset duration `toml:"start_offset"`
	Duration    duration `toml:"duration"`
	SideA       string   `toml:"side_a"`
	SideB       string   `toml:"side_b"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			SettlementAsset:   "nzdd",
			SingleBetPerEvent: false,
			RetainFees:        false,
		},
		Oracle: OracleConfig{
			RefreshInterval: duration{30 * time.Second},
			Assets:          []string{"native"},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "momentum",
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
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "momentum-reports",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			Enabled:              true,
			ArchiveRetentionDays: 30,
			ArchiveCron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"event_created", "event_resolved", "large_bet", "claim_paid", "engine_error"},
		},
		Sim: SimConfig{
			NativePrice: "200000000000",
			MintAmount:  "1000000000000",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"sim":     true,
	"monitor": true,
	"full":    true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sim, monitor, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Operator key is needed whenever the engine can mutate state. Sim mode
	// generates an ephemeral key when none is configured.
	if mode == "serve" || mode == "full" {
		if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
			errs = append(errs, "operator: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
			errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Engine.SettlementAsset == "" {
		errs = append(errs, "engine: settlement_asset must not be empty")
	}

	// External backends are not used in sim mode.
	if mode != "sim" {
		checkAddr := func(field, value string) {
			if value == "" {
				errs = append(errs, fmt.Sprintf("engine: %s must not be empty", field))
			} else if !common.IsHexAddress(value) {
				errs = append(errs, fmt.Sprintf("engine: %s is not a valid address: %q", field, value))
			}
		}
		checkAddr("vault_account", c.Engine.VaultAccount)
		checkAddr("liquidity_address", c.Engine.LiquidityAddress)
		checkAddr("developer_address", c.Engine.DeveloperAddress)
		checkAddr("community_address", c.Engine.CommunityAddress)

		if c.Oracle.FeedURL == "" {
			errs = append(errs, "oracle: feed_url must not be empty")
		}
		if c.Oracle.RefreshInterval.Duration <= 0 {
			errs = append(errs, "oracle: refresh_interval must be positive")
		}

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

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		if c.Pipeline.Enabled {
			if c.S3.Endpoint == "" {
				errs = append(errs, "s3: endpoint must not be empty when the pipeline is enabled")
			}
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when the pipeline is enabled")
			}
			if c.Pipeline.ArchiveRetentionDays < 0 {
				errs = append(errs, "pipeline: archive_retention_days must be >= 0")
			}
		}
	}

	if c.Engine.LargeBetThreshold != "" {
		if !isDecimal(c.Engine.LargeBetThreshold) {
			errs = append(errs, fmt.Sprintf("engine: large_bet_threshold is not a decimal number: %q", c.Engine.LargeBetThreshold))
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isDecimal reports whether s is a non-empty string of ASCII digits.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
