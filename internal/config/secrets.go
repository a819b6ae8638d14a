package config

import "github.com/alanyoungcy/alertbot/internal/domain"

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Webhook.Secret)
	redact(&out.Webhook.SecretPassword)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy. Inline datasets are large and not useful in logs.
	out.Exchange.WatchPairs = append([]string(nil), cfg.Exchange.WatchPairs...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	if cfg.Bots != nil {
		out.Bots = make([]domain.BotConfig, len(cfg.Bots))
		for i, b := range cfg.Bots {
			if b.HistData != "" {
				b.HistData = "<inline csv>"
			}
			out.Bots[i] = b
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
