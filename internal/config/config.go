// Package config reads process settings from the environment (and an
// optional .env file).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Vovarama1992/chatra-operator-console/internal/notify"
)

var ErrMissingConfig = errors.New("config: missing value")

type Config struct {
	Port string

	APIBaseURL     string
	ChannelURL     string
	AdminToken     string
	AdminTokenFile string

	NotifyPermission     notify.Permission
	Sound                bool
	ClearUnreadWhileOpen bool

	DatabaseURL  string
	RedisURL     string
	AMQPURL      string
	AMQPExchange string

	OpenAIKey   string
	OpenAIModel string

	CORSOrigins []string

	LogLevel  slog.Level
	LogFormat string
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Port:           getenv("PORT", "8080"),
		APIBaseURL:     strings.TrimRight(os.Getenv("API_BASE_URL"), "/"),
		ChannelURL:     os.Getenv("CHANNEL_URL"),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		AdminTokenFile: os.Getenv("ADMIN_TOKEN_FILE"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		AMQPURL:        os.Getenv("AMQP_URL"),
		AMQPExchange:   getenv("AMQP_EXCHANGE", "console.alerts"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getenv("OPENAI_MODEL", "gpt-4o-mini"),
		LogFormat:      strings.ToLower(getenv("LOG_FORMAT", "text")),
	}

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("%w: API_BASE_URL", ErrMissingConfig)
	}
	if cfg.ChannelURL == "" {
		return Config{}, fmt.Errorf("%w: CHANNEL_URL", ErrMissingConfig)
	}
	if cfg.AdminToken == "" && cfg.AdminTokenFile == "" {
		return Config{}, fmt.Errorf("%w: ADMIN_TOKEN or ADMIN_TOKEN_FILE", ErrMissingConfig)
	}

	raw := strings.ToLower(getenv("NOTIFY_PERMISSION", "default"))
	cfg.NotifyPermission = notify.ParsePermission(raw)
	if string(cfg.NotifyPermission) != raw {
		return Config{}, fmt.Errorf("NOTIFY_PERMISSION: unknown state %q", raw)
	}

	var err error
	cfg.Sound = !strings.EqualFold(getenv("SOUND", "on"), "off")

	if cfg.ClearUnreadWhileOpen, err = parseBool("CLEAR_UNREAD_WHILE_OPEN"); err != nil {
		return Config{}, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	for _, o := range strings.Split(getenv("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	return cfg, nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(key string) (bool, error) {
	switch strings.ToLower(os.Getenv(key)) {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	default:
		return false, fmt.Errorf("%s: invalid boolean %q", key, os.Getenv(key))
	}
}
