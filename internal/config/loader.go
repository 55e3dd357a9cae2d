package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults and applies CARDMARKET_*
// environment overrides, reading a .env file first if one exists. A missing
// file is not an error, so the daemon can be configured by environment
// alone. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// market
	setStr(&cfg.Market.EngineAddress, "CARDMARKET_MARKET_ENGINE_ADDRESS")
	setStringSlice(&cfg.Market.Operators, "CARDMARKET_MARKET_OPERATORS")
	setDuration(&cfg.Market.MaxAuctionDuration, "CARDMARKET_MARKET_MAX_AUCTION_DURATION")
	setInt64(&cfg.Market.MinIncrementPct, "CARDMARKET_MARKET_MIN_INCREMENT_PCT")
	setBool(&cfg.Market.AutoSettle, "CARDMARKET_MARKET_AUTO_SETTLE")
	setDuration(&cfg.Market.SettleInterval, "CARDMARKET_MARKET_SETTLE_INTERVAL")
	setStr(&cfg.Market.SettlerAddress, "CARDMARKET_MARKET_SETTLER_ADDRESS")

	// postgres
	setBool(&cfg.Postgres.Enabled, "CARDMARKET_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CARDMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "CARDMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CARDMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CARDMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CARDMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CARDMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CARDMARKET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CARDMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CARDMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CARDMARKET_POSTGRES_RUN_MIGRATIONS")

	// redis
	setBool(&cfg.Redis.Enabled, "CARDMARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CARDMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CARDMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CARDMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CARDMARKET_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "CARDMARKET_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "CARDMARKET_REDIS_KEY_PREFIX")

	// s3
	setStr(&cfg.S3.Endpoint, "CARDMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CARDMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "CARDMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CARDMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CARDMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CARDMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CARDMARKET_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "CARDMARKET_S3_PREFIX")

	// archive
	setInt(&cfg.Archive.RetentionDays, "CARDMARKET_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "CARDMARKET_ARCHIVE_CRON")
	setBool(&cfg.Archive.Purge, "CARDMARKET_ARCHIVE_PURGE")

	// server
	setInt(&cfg.Server.Port, "CARDMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CARDMARKET_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "CARDMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CARDMARKET_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.SignatureTTL, "CARDMARKET_SERVER_SIGNATURE_TTL")

	// notify
	setStr(&cfg.Notify.TelegramToken, "CARDMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CARDMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CARDMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CARDMARKET_NOTIFY_EVENTS")

	// operator
	setStr(&cfg.Operator.PrivateKey, "CARDMARKET_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.KeyFile, "CARDMARKET_OPERATOR_KEY_FILE")
	setStr(&cfg.Operator.KeyPassword, "CARDMARKET_OPERATOR_KEY_PASSWORD")
	setStr(&cfg.Operator.APIURL, "CARDMARKET_OPERATOR_API_URL")

	setStr(&cfg.Mode, "CARDMARKET_MODE")
	setStr(&cfg.LogLevel, "CARDMARKET_LOG_LEVEL")
}

// Each setter only touches dst when the variable is set and parses.

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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
