// Package boot provides validated runtime configuration for the bridge process.
package boot

import (
	"fmt"
	"strings"

	"github.com/memohai/facebot/internal/config"
	"github.com/memohai/facebot/internal/db"
)

// ConfigurationError reports required settings that are missing or invalid. It is fatal at startup.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// RuntimeConfig holds the settings the bridge needs once the config file and env have been merged.
type RuntimeConfig struct {
	SlackToken         string
	BotName            string
	AuthorisedUsername string
	DebugMessages      bool
	RatePerSecond      float64

	GatewayURL string
	Email      string
	Password   string
	WebRoot    string

	Backend     string
	FilePath    string
	DatabaseURL string
	RedisURL    string
	RedisKey    string
	SQLitePath  string

	ServerAddr    string
	FlushSchedule string
}

// ProvideRuntimeConfig validates cfg and returns the runtime view of it.
// Every missing required value is reported in a single ConfigurationError.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		SlackToken:         strings.TrimSpace(cfg.Slack.Token),
		BotName:            strings.TrimSpace(cfg.Slack.BotName),
		AuthorisedUsername: strings.TrimSpace(cfg.Slack.AuthorisedUsername),
		DebugMessages:      cfg.Slack.DebugMessages,
		RatePerSecond:      cfg.Slack.RatePerSecond,
		GatewayURL:         strings.TrimSpace(cfg.Messenger.GatewayURL),
		Email:              strings.TrimSpace(cfg.Messenger.Email),
		Password:           cfg.Messenger.Password,
		WebRoot:            strings.TrimRight(strings.TrimSpace(cfg.Messenger.WebRoot), "/"),
		Backend:            strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)),
		FilePath:           strings.TrimSpace(cfg.Storage.FilePath),
		DatabaseURL:        strings.TrimSpace(cfg.Storage.DatabaseURL),
		RedisURL:           strings.TrimSpace(cfg.Storage.RedisURL),
		RedisKey:           strings.TrimSpace(cfg.Storage.RedisKey),
		SQLitePath:         strings.TrimSpace(cfg.Storage.SQLitePath),
		ServerAddr:         strings.TrimSpace(cfg.Server.Addr),
		FlushSchedule:      strings.TrimSpace(cfg.Schedule.Flush),
	}
	if ret.BotName == "" {
		ret.BotName = config.DefaultBotName
	}
	if ret.WebRoot == "" {
		ret.WebRoot = config.DefaultWebRoot
	}
	if ret.RatePerSecond <= 0 {
		ret.RatePerSecond = config.DefaultRatePerSecond
	}

	cerr := &ConfigurationError{}
	require := func(value, name string) {
		if value == "" {
			cerr.Missing = append(cerr.Missing, name)
		}
	}
	require(ret.SlackToken, "slack.token (BOT_API_KEY)")
	require(ret.AuthorisedUsername, "slack.authorised_username (AUTHORISED_USERNAME)")
	require(ret.GatewayURL, "messenger.gateway_url (MESSENGER_GATEWAY_URL)")
	require(ret.Email, "messenger.email (FACEBOOK_EMAIL)")
	require(ret.Password, "messenger.password (FACEBOOK_PASSWORD)")

	switch ret.Backend {
	case config.BackendFile:
		require(ret.FilePath, "storage.file_path")
	case config.BackendPostgres:
		if ret.DatabaseURL == "" {
			ret.DatabaseURL = db.DSN(cfg.Postgres)
		}
	case config.BackendRedis:
		require(ret.RedisURL, "storage.redis_url (REDIS_URL)")
		if ret.RedisKey == "" {
			ret.RedisKey = config.DefaultRedisKey
		}
	case config.BackendSQLite:
		require(ret.SQLitePath, "storage.sqlite_path")
	default:
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("storage.backend %q", cfg.Storage.Backend))
	}

	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return nil, cerr
	}
	return ret, nil
}
