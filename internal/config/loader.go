package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/alanyoungcy/whalewatch/internal/crypto"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WHALEWATCH_* environment variable overrides,
// and finally injects secrets from the encrypted vault when one is
// configured. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := applySecrets(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applySecrets decrypts the configured vault and injects well-known secrets
// into their Config fields. Vault entries only fill fields that are still
// empty, so explicit env or TOML values win.
func applySecrets(cfg *Config) error {
	if cfg.Secrets.VaultPath == "" {
		return nil
	}
	secrets, err := crypto.LoadSecretsFile(cfg.Secrets.VaultPath, cfg.Secrets.Password)
	if err != nil {
		return fmt.Errorf("config: open secrets vault: %w", err)
	}
	fillIfEmpty(&cfg.Notify.TelegramToken, secrets["telegram_token"])
	fillIfEmpty(&cfg.Notify.TelegramChatID, secrets["telegram_chat_id"])
	fillIfEmpty(&cfg.Notify.DiscordWebhookURL, secrets["discord_webhook_url"])
	fillIfEmpty(&cfg.Database.Password, secrets["db_password"])
	fillIfEmpty(&cfg.Redis.Password, secrets["redis_password"])
	fillIfEmpty(&cfg.S3.AccessKey, secrets["s3_access_key"])
	fillIfEmpty(&cfg.S3.SecretKey, secrets["s3_secret_key"])
	return nil
}

func fillIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

// applyEnvOverrides reads well-known WHALEWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Hyperliquid ──
	setStr(&cfg.Hyperliquid.BaseURL, "WHALEWATCH_HYPERLIQUID_BASE_URL")

	// ── Tracker ──
	setDuration(&cfg.Tracker.Interval, "WHALEWATCH_TRACKER_INTERVAL")
	setInt(&cfg.Tracker.SpamThreshold, "WHALEWATCH_TRACKER_SPAM_THRESHOLD")
	setStringSlice(&cfg.Tracker.Addresses, "WHALEWATCH_TRACKER_ADDRESSES")
	setFloat64(&cfg.Tracker.MinAlertValueUSD, "WHALEWATCH_TRACKER_MIN_ALERT_VALUE_USD")
	setInt(&cfg.Tracker.RetentionDays, "WHALEWATCH_TRACKER_RETENTION_DAYS")

	// ── Database ──
	setBool(&cfg.Database.Enabled, "WHALEWATCH_DATABASE_ENABLED")
	setStr(&cfg.Database.DSN, "WHALEWATCH_DATABASE_DSN")
	setStr(&cfg.Database.Host, "WHALEWATCH_DATABASE_HOST")
	setInt(&cfg.Database.Port, "WHALEWATCH_DATABASE_PORT")
	setStr(&cfg.Database.Database, "WHALEWATCH_DATABASE_NAME")
	setStr(&cfg.Database.User, "WHALEWATCH_DATABASE_USER")
	setStr(&cfg.Database.Password, "WHALEWATCH_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "WHALEWATCH_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "WHALEWATCH_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "WHALEWATCH_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "WHALEWATCH_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "WHALEWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "WHALEWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WHALEWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WHALEWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WHALEWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WHALEWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WHALEWATCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "WHALEWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "WHALEWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WHALEWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "WHALEWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WHALEWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WHALEWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WHALEWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WHALEWATCH_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WHALEWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WHALEWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WHALEWATCH_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WHALEWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WHALEWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WHALEWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WHALEWATCH_NOTIFY_EVENTS")

	// ── Secrets ──
	setStr(&cfg.Secrets.VaultPath, "WHALEWATCH_SECRETS_VAULT_PATH")
	setStr(&cfg.Secrets.Password, "WHALEWATCH_SECRETS_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "WHALEWATCH_MODE")
	setStr(&cfg.LogLevel, "WHALEWATCH_LOG_LEVEL")
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
