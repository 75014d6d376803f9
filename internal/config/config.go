// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	BotToken      string
	WebhookURL    string // empty: long polling
	WebhookSecret string
	Port          string
	PollTimeout   int // seconds
	TelegramDebug bool

	DBPath              string
	BackupPath          string
	BackupInterval      time.Duration
	CacheRetention      time.Duration
	MaintenanceInterval time.Duration

	Portal PortalConfig

	Timezone string
	AdminIDs []int64
	LogLevel string
}

// PortalConfig controls the school portal client.
type PortalConfig struct {
	BaseURL     string
	ProfileURL  string
	Timeout     time.Duration
	MarksWindow string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	admins, err := getEnvInt64List("ADMIN_IDS")
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		BotToken:      getEnv("BOT_TOKEN", ""),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		Port:          getEnv("PORT", "8080"),
		PollTimeout:   getEnvInt("POLL_TIMEOUT", 60),
		TelegramDebug: getEnvBool("TELEGRAM_DEBUG", false),

		DBPath:              getEnv("DB_PATH", "./data/mesbot.db"),
		BackupPath:          getEnv("BACKUP_PATH", "./data/mesbot.backup.db"),
		BackupInterval:      getEnvDuration("BACKUP_INTERVAL", 6*time.Hour),
		CacheRetention:      getEnvDuration("CACHE_RETENTION", 7*24*time.Hour),
		MaintenanceInterval: getEnvDuration("MAINTENANCE_INTERVAL", 10*time.Minute),

		Portal: PortalConfig{
			BaseURL:     getEnv("PORTAL_BASE_URL", "https://authedu.mosreg.ru"),
			ProfileURL:  getEnv("PORTAL_PROFILE_URL", "https://myschool.mosreg.ru"),
			Timeout:     getEnvDuration("PORTAL_TIMEOUT", 10*time.Second),
			MarksWindow: strings.ToLower(getEnv("MARKS_WINDOW", "current")),
		},

		Timezone: getEnv("TIMEZONE", "Europe/Moscow"),
		AdminIDs: admins,
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.WebhookURL != "" && c.Port == "" {
		return fmt.Errorf("PORT cannot be empty in webhook mode")
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("WEBHOOK_URL must use https")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("MAINTENANCE_INTERVAL must be > 0")
	}
	if c.Portal.Timeout <= 0 {
		return fmt.Errorf("PORTAL_TIMEOUT must be > 0")
	}
	switch c.Portal.MarksWindow {
	case "current", "previous":
	default:
		return fmt.Errorf("MARKS_WINDOW must be current or previous, got %q", c.Portal.MarksWindow)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// UseWebhook reports whether updates arrive over the webhook.
func (c *Config) UseWebhook() bool {
	return c.WebhookURL != ""
}

// Location returns the configured time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvInt64List parses a comma-separated list of IDs. Blank entries are
// skipped.
func getEnvInt64List(key string) ([]int64, error) {
	value := os.Getenv(key)
	var out []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an id", key, part)
		}
		out = append(out, n)
	}
	return out, nil
}
