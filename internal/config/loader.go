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
// built-in defaults, applies CURVEMARKET_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known CURVEMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "CURVEMARKET_SOLANA_RPC_URL")
	setStr(&cfg.Solana.ProgramID, "CURVEMARKET_SOLANA_PROGRAM_ID")
	setStr(&cfg.Solana.Commitment, "CURVEMARKET_SOLANA_COMMITMENT")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "CURVEMARKET_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "CURVEMARKET_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "CURVEMARKET_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "CURVEMARKET_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "CURVEMARKET_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "CURVEMARKET_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "CURVEMARKET_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "CURVEMARKET_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "CURVEMARKET_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "CURVEMARKET_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "CURVEMARKET_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CURVEMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CURVEMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CURVEMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CURVEMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CURVEMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CURVEMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CURVEMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CURVEMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "CURVEMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CURVEMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CURVEMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CURVEMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CURVEMARKET_S3_FORCE_PATH_STYLE")

	// ── Indexer ──
	setDuration(&cfg.Indexer.PollInterval, "CURVEMARKET_INDEXER_POLL_INTERVAL")
	setDuration(&cfg.Indexer.ErrorInterval, "CURVEMARKET_INDEXER_ERROR_INTERVAL")
	setInt(&cfg.Indexer.BatchSize, "CURVEMARKET_INDEXER_BATCH_SIZE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CURVEMARKET_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "CURVEMARKET_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "CURVEMARKET_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CURVEMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CURVEMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CURVEMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CURVEMARKET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CURVEMARKET_MODE")
	setStr(&cfg.LogLevel, "CURVEMARKET_LOG_LEVEL")
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
