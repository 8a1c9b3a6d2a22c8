package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Sniper.Blacklist != nil {
		out.Sniper.Blacklist = make([]string, len(cfg.Sniper.Blacklist))
		copy(out.Sniper.Blacklist, cfg.Sniper.Blacklist)
	}
	if cfg.Sniper.TierThresholdsWei != nil {
		out.Sniper.TierThresholdsWei = make([]int64, len(cfg.Sniper.TierThresholdsWei))
		copy(out.Sniper.TierThresholdsWei, cfg.Sniper.TierThresholdsWei)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
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
