package config

import "maps"

// RedactedConfig returns a copy of cfg with secrets replaced by "***", for
// logging.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Operator.PrivateKey)
	redact(&out.Operator.KeyPassword)

	// Slices and maps are copied so the redacted value shares nothing
	// mutable with cfg.
	out.Market.Operators = append([]string(nil), cfg.Market.Operators...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Dev.Cards = append([]DevCard(nil), cfg.Dev.Cards...)
	out.Dev.Deposits = maps.Clone(cfg.Dev.Deposits)

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
