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
// built-in defaults, applies MOMENTUM_* environment variable overrides, and
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

// applyEnvOverrides reads well-known MOMENTUM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "MOMENTUM_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "MOMENTUM_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "MOMENTUM_OPERATOR_KEY_PASSWORD")

	// ── Engine ──
	setStr(&cfg.Engine.SettlementAsset, "MOMENTUM_ENGINE_SETTLEMENT_ASSET")
	setStr(&cfg.Engine.VaultAccount, "MOMENTUM_ENGINE_VAULT_ACCOUNT")
	setStr(&cfg.Engine.LiquidityAddress, "MOMENTUM_ENGINE_LIQUIDITY_ADDRESS")
	setStr(&cfg.Engine.DeveloperAddress, "MOMENTUM_ENGINE_DEVELOPER_ADDRESS")
	setStr(&cfg.Engine.CommunityAddress, "MOMENTUM_ENGINE_COMMUNITY_ADDRESS")
	setBool(&cfg.Engine.SingleBetPerEvent, "MOMENTUM_ENGINE_SINGLE_BET_PER_EVENT")
	setBool(&cfg.Engine.RetainFees, "MOMENTUM_ENGINE_RETAIN_FEES")
	setStr(&cfg.Engine.LargeBetThreshold, "MOMENTUM_ENGINE_LARGE_BET_THRESHOLD")

	// ── Oracle ──
	setStr(&cfg.Oracle.FeedURL, "MOMENTUM_ORACLE_FEED_URL")
	setStr(&cfg.Oracle.FeedAPIKey, "MOMENTUM_ORACLE_FEED_API_KEY")
	setDuration(&cfg.Oracle.RefreshInterval, "MOMENTUM_ORACLE_REFRESH_INTERVAL")
	setStringSlice(&cfg.Oracle.Assets, "MOMENTUM_ORACLE_ASSETS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MOMENTUM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MOMENTUM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MOMENTUM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MOMENTUM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MOMENTUM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MOMENTUM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MOMENTUM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MOMENTUM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MOMENTUM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MOMENTUM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MOMENTUM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MOMENTUM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MOMENTUM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MOMENTUM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MOMENTUM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MOMENTUM_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MOMENTUM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MOMENTUM_S3_REGION")
	setStr(&cfg.S3.Bucket, "MOMENTUM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MOMENTUM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MOMENTUM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MOMENTUM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MOMENTUM_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "MOMENTUM_PIPELINE_ENABLED")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "MOMENTUM_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "MOMENTUM_PIPELINE_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MOMENTUM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MOMENTUM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MOMENTUM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MOMENTUM_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MOMENTUM_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "MOMENTUM_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MOMENTUM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MOMENTUM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MOMENTUM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "MOMENTUM_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "MOMENTUM_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "MOMENTUM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MOMENTUM_MODE")
	setStr(&cfg.LogLevel, "MOMENTUM_LOG_LEVEL")
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
