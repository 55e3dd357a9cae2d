package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	engineHex = "0x00000000000000000000000000000000000000e0"
	opHex     = "0x00000000000000000000000000000000000000ff"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Market.EngineAddress = engineHex
	cfg.Market.Operators = []string{opHex}
	return cfg
}

func TestDefaultsNeedIdentities(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine_address")
	assert.Contains(t, err.Error(), "at least one operator")

	cfg = validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "settle"
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown mode", "unknown log_level", "server: port", "telegram_chat_id"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestArchiveModeNeedsPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres must be enabled")

	cfg.Postgres.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestSettlerAddressDefaultsToFirstOperator(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, common.HexToAddress(opHex), cfg.SettlerAddress())

	cfg.Market.SettlerAddress = engineHex
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settler_address")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardmarket.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"

[market]
engine_address = "`+engineHex+`"
operators = ["`+opHex+`"]
settle_interval = "10s"

[server]
port = 9000

[[dev.cards]]
id = 7
owner = "`+opHex+`"
`), 0o600))

	t.Setenv("CARDMARKET_SERVER_PORT", "9100")
	t.Setenv("CARDMARKET_MARKET_MIN_INCREMENT_PCT", "10")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 10*time.Second, cfg.Market.SettleInterval.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, int64(10), cfg.Market.MinIncrementPct)
	assert.Equal(t, 90, cfg.Archive.RetentionDays, "defaults survive partial files")
	require.Len(t, cfg.Dev.Cards, 1)
	assert.Equal(t, uint64(7), cfg.Dev.Cards[0].ID)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Mode)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pw"
	cfg.Operator.PrivateKey = "deadbeef"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Operator.PrivateKey)
	assert.Equal(t, "", out.S3.SecretKey)
	assert.Equal(t, "pw", cfg.Postgres.Password)

	out.Market.Operators[0] = "changed"
	assert.Equal(t, opHex, cfg.Market.Operators[0])
}
