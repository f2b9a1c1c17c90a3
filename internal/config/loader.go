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
// built-in defaults, applies MONARENA_* environment variable overrides, and
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

// applyEnvOverrides reads well-known MONARENA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "MONARENA_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ContractAddress, "MONARENA_CHAIN_CONTRACT_ADDRESS")
	setInt64(&cfg.Chain.ChainID, "MONARENA_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.PrivateKey, "MONARENA_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "MONARENA_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "MONARENA_CHAIN_KEY_PASSWORD")

	// ── Database ──
	setStr(&cfg.Database.DSN, "MONARENA_DATABASE_DSN")
	setStr(&cfg.Database.Host, "MONARENA_DATABASE_HOST")
	setInt(&cfg.Database.Port, "MONARENA_DATABASE_PORT")
	setStr(&cfg.Database.Database, "MONARENA_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "MONARENA_DATABASE_USER")
	setStr(&cfg.Database.Password, "MONARENA_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "MONARENA_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "MONARENA_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "MONARENA_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "MONARENA_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MONARENA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MONARENA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MONARENA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MONARENA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MONARENA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MONARENA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MONARENA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MONARENA_S3_REGION")
	setStr(&cfg.S3.Bucket, "MONARENA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MONARENA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MONARENA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MONARENA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MONARENA_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "MONARENA_FEED_WS_URL")
	setStr(&cfg.Feed.Symbol, "MONARENA_FEED_SYMBOL")

	// ── Round ──
	setDuration(&cfg.Round.BettingDuration, "MONARENA_ROUND_BETTING_DURATION")
	setDuration(&cfg.Round.TradingDuration, "MONARENA_ROUND_TRADING_DURATION")
	setDuration(&cfg.Round.ColumnDuration, "MONARENA_ROUND_COLUMN_DURATION")
	setDuration(&cfg.Round.PlacementWindow, "MONARENA_ROUND_PLACEMENT_WINDOW")
	setDuration(&cfg.Round.Cooldown, "MONARENA_ROUND_COOLDOWN")
	setDuration(&cfg.Round.FailureDelay, "MONARENA_ROUND_FAILURE_DELAY")
	setInt64(&cfg.Round.SeedStake, "MONARENA_ROUND_SEED_STAKE")
	setInt64(&cfg.Round.MinBet, "MONARENA_ROUND_MIN_BET")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MONARENA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MONARENA_SERVER_PORT")
	setStrSlice(&cfg.Server.CORSOrigins, "MONARENA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MONARENA_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "MONARENA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "MONARENA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MONARENA_NOTIFY_TELEGRAM_CHAT_ID")
	setStrSlice(&cfg.Notify.Events, "MONARENA_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MONARENA_LOG_LEVEL")
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

func setStrSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
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
