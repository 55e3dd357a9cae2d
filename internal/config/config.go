// Package config defines the cardmarket configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. Fields come from a TOML file and may be
// overridden by CARDMARKET_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Operator OperatorConfig `toml:"operator"`
	Dev      DevConfig      `toml:"dev"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the trading engine parameters.
type MarketConfig struct {
	// EngineAddress is the custody identity sellers approve as operator.
	EngineAddress      string   `toml:"engine_address"`
	Operators          []string `toml:"operators"`
	MaxAuctionDuration duration `toml:"max_auction_duration"`
	MinIncrementPct    int64    `toml:"min_increment_pct"`
	AutoSettle         bool     `toml:"auto_settle"`
	SettleInterval     duration `toml:"settle_interval"`
	// SettlerAddress is the operator the settler finalizes as. Defaults to
	// the first operator.
	SettlerAddress string `toml:"settler_address"`
}

// PostgresConfig holds PostgreSQL connection parameters. When Enabled is
// false the daemon keeps state in memory.
type PostgresConfig struct {
	Enabled         bool     `toml:"enabled"`
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ArchiveConfig controls export of old history to S3.
type ArchiveConfig struct {
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
	// Purge deletes archived rows from the database after upload.
	Purge bool `toml:"purge"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the request budget per client address per RateWindow.
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	SignatureTTL duration `toml:"signature_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// OperatorConfig is the key marketctl signs requests with.
type OperatorConfig struct {
	PrivateKey  string `toml:"private_key"`
	KeyFile     string `toml:"key_file"`
	KeyPassword string `toml:"key_password"`
	APIURL      string `toml:"api_url"`
}

// DevConfig seeds the in-memory collaborators used when Postgres is
// disabled.
type DevConfig struct {
	Cards    []DevCard        `toml:"cards"`
	Deposits map[string]int64 `toml:"deposits"`
	// ApproveEngine approves the engine as operator for every seeded owner.
	ApproveEngine bool `toml:"approve_engine"`
}

// DevCard is one seeded asset.
type DevCard struct {
	ID    uint64 `toml:"id"`
	Owner string `toml:"owner"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config for a local single-process deployment.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			MaxAuctionDuration: duration{30 * 24 * time.Hour},
			MinIncrementPct:    5,
			AutoSettle:         true,
			SettleInterval:     duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "cardmarket",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			MaxConnLifetime: duration{time.Hour},
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "cardmarket",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "cardmarket-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    120,
			RateWindow:   duration{time.Minute},
			SignatureTTL: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"card_sold", "auction_settled", "engine_paused", "engine_unpaused"},
		},
		Operator: OperatorConfig{
			APIURL: "http://localhost:8000",
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	runsEngine := c.Mode != "archive"
	if runsEngine {
		if !isAddress(c.Market.EngineAddress) {
			errs = append(errs, fmt.Sprintf("market: engine_address %q is not a valid address", c.Market.EngineAddress))
		}
		if len(c.Market.Operators) == 0 {
			errs = append(errs, "market: at least one operator is required")
		}
		for _, op := range c.Market.Operators {
			if !isAddress(op) {
				errs = append(errs, fmt.Sprintf("market: operator %q is not a valid address", op))
			}
		}
		if c.Market.SettlerAddress != "" && !c.isOperator(c.Market.SettlerAddress) {
			errs = append(errs, "market: settler_address must be one of the operators")
		}
		if c.Market.MaxAuctionDuration.Duration <= 0 {
			errs = append(errs, "market: max_auction_duration must be > 0")
		}
		if c.Market.MinIncrementPct < 0 {
			errs = append(errs, "market: min_increment_pct must be >= 0")
		}
		if c.Market.AutoSettle && c.Market.SettleInterval.Duration <= 0 {
			errs = append(errs, "market: settle_interval must be > 0 when auto_settle is on")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.SignatureTTL.Duration <= 0 {
			errs = append(errs, "server: signature_ttl must be > 0")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Mode == "archive" || c.Mode == "full" {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: postgres must be enabled to archive history")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	for _, card := range c.Dev.Cards {
		if !isAddress(card.Owner) {
			errs = append(errs, fmt.Sprintf("dev: card %d owner %q is not a valid address", card.ID, card.Owner))
		}
	}
	for addr, amt := range c.Dev.Deposits {
		if !isAddress(addr) || amt < 0 {
			errs = append(errs, fmt.Sprintf("dev: invalid deposit %s=%d", addr, amt))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EngineAddress parses Market.EngineAddress. Call after Validate.
func (c *Config) EngineAddress() common.Address {
	return common.HexToAddress(c.Market.EngineAddress)
}

// OperatorAddresses parses Market.Operators. Call after Validate.
func (c *Config) OperatorAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Market.Operators))
	for _, op := range c.Market.Operators {
		out = append(out, common.HexToAddress(op))
	}
	return out
}

// SettlerAddress returns the identity the auto-settler acts as.
func (c *Config) SettlerAddress() common.Address {
	if c.Market.SettlerAddress != "" {
		return common.HexToAddress(c.Market.SettlerAddress)
	}
	if len(c.Market.Operators) > 0 {
		return common.HexToAddress(c.Market.Operators[0])
	}
	return common.Address{}
}

func (c *Config) isOperator(addr string) bool {
	want := common.HexToAddress(addr)
	for _, op := range c.Market.Operators {
		if common.HexToAddress(op) == want {
			return true
		}
	}
	return false
}

func isAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}
