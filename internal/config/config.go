// Package config loads and exposes application configuration (TOML or YAML).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default configuration values used when a field is missing in the config file.
const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultBotName       = "facebot"
	DefaultRatePerSecond = 1.0
	DefaultWebRoot       = "https://www.facebook.com"
	DefaultGatewayURL    = "ws://127.0.0.1:8099/session"
	DefaultBackend       = BackendFile
	DefaultFilePath      = "saved_data.json"
	DefaultRedisKey      = "facebotdata"
	DefaultSQLitePath    = "facebot.db"
	DefaultFlushSchedule = "@every 30m"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "facebot"
	DefaultPGSSLMode     = "disable"
)

// Storage backends accepted in storage.backend.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

// Config is the root application configuration.
type Config struct {
	Log       LogConfig       `toml:"log" yaml:"log"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Slack     SlackConfig     `toml:"slack" yaml:"slack"`
	Messenger MessengerConfig `toml:"messenger" yaml:"messenger"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Postgres  PostgresConfig  `toml:"postgres" yaml:"postgres"`
	Schedule  ScheduleConfig  `toml:"schedule" yaml:"schedule"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// ServerConfig holds the HTTP status server listen address. Empty disables the server.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// SlackConfig holds the workspace bot token and identities.
type SlackConfig struct {
	Token              string  `toml:"token" yaml:"token"`
	BotName            string  `toml:"bot_name" yaml:"bot_name"`
	AuthorisedUsername string  `toml:"authorised_username" yaml:"authorised_username"`
	DebugMessages      bool    `toml:"debug_messages" yaml:"debug_messages"`
	RatePerSecond      float64 `toml:"rate_per_second" yaml:"rate_per_second"`
}

// MessengerConfig holds the messenger gateway address and login credentials.
type MessengerConfig struct {
	GatewayURL string `toml:"gateway_url" yaml:"gateway_url"`
	Email      string `toml:"email" yaml:"email"`
	Password   string `toml:"password" yaml:"password"`
	WebRoot    string `toml:"web_root" yaml:"web_root"`
}

// StorageConfig selects the snapshot backend and its parameters.
type StorageConfig struct {
	Backend     string `toml:"backend" yaml:"backend"`
	FilePath    string `toml:"file_path" yaml:"file_path"`
	DatabaseURL string `toml:"database_url" yaml:"database_url"`
	RedisURL    string `toml:"redis_url" yaml:"redis_url"`
	RedisKey    string `toml:"redis_key" yaml:"redis_key"`
	SQLitePath  string `toml:"sqlite_path" yaml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters, used when storage.database_url is empty.
type PostgresConfig struct {
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
	Database string `toml:"database" yaml:"database"`
	SSLMode  string `toml:"sslmode" yaml:"sslmode"`
}

// ScheduleConfig holds the cron spec for the periodic snapshot flush. Empty disables it.
type ScheduleConfig struct {
	Flush string `toml:"flush" yaml:"flush"`
}

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Slack: SlackConfig{
			BotName:       DefaultBotName,
			RatePerSecond: DefaultRatePerSecond,
		},
		Messenger: MessengerConfig{
			GatewayURL: DefaultGatewayURL,
			WebRoot:    DefaultWebRoot,
		},
		Storage: StorageConfig{
			Backend:    DefaultBackend,
			FilePath:   DefaultFilePath,
			RedisKey:   DefaultRedisKey,
			SQLitePath: DefaultSQLitePath,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Schedule: ScheduleConfig{
			Flush: DefaultFlushSchedule,
		},
	}
}

// Load reads and parses the config file at path and applies default values for missing fields.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML. A missing file
// yields the defaults. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("decode toml config: %w", err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from the process environment variables the bridge has always accepted.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BOT_API_KEY", &cfg.Slack.Token)
	str("BOT_NAME", &cfg.Slack.BotName)
	str("AUTHORISED_USERNAME", &cfg.Slack.AuthorisedUsername)
	str("FACEBOOK_EMAIL", &cfg.Messenger.Email)
	str("FACEBOOK_PASSWORD", &cfg.Messenger.Password)
	str("MESSENGER_GATEWAY_URL", &cfg.Messenger.GatewayURL)
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("DATABASE_URL", &cfg.Storage.DatabaseURL)
	str("REDIS_URL", &cfg.Storage.RedisURL)
	str("HTTP_ADDR", &cfg.Server.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("DEBUG_MESSAGES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG_MESSAGES %q: %w", v, err)
		}
		cfg.Slack.DebugMessages = b
	}
	return nil
}
