package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURL string
	RedisURL string

	// Key generations, oldest first. The two lists must be the same length
	// and KeyVersion must index into them.
	IdentitySecrets []string
	EnvelopeSecrets []string
	KeyVersion      int

	// Telegram
	TelegramBotToken     string
	TelegramWebhookURL   string
	TelegramWebhookToken string

	// Completion provider (OpenAI-compatible)
	AIBaseURL     string
	AIAPIKey      string
	AIModel       string
	AITemperature float64

	// Admin API
	AdminJWTSecret string

	// Schedules and retention
	DailyMessageCron    string
	InactivityThreshold time.Duration
	TemporaryRetention  time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURL: getEnv("MONGODB_URL", "mongodb://localhost:27017/talkasaurus"),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		IdentitySecrets: getListEnv("IDENTITY_SECRETS"),
		EnvelopeSecrets: getListEnv("ENVELOPE_SECRETS"),
		KeyVersion:      getIntEnv("KEY_VERSION", 0),

		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookURL:   getEnv("TELEGRAM_WEBHOOK_URL", ""),
		TelegramWebhookToken: getEnv("TELEGRAM_WEBHOOK_TOKEN", ""),

		AIBaseURL:     getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:      getEnv("AI_API_KEY", ""),
		AIModel:       getEnv("AI_MODEL", "gpt-4o-mini"),
		AITemperature: getFloatEnv("AI_TEMPERATURE", 0.8),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		DailyMessageCron:    getEnv("DAILY_MESSAGE_CRON", "0 6 * * *"),
		InactivityThreshold: getDurationEnv("INACTIVITY_THRESHOLD", 20*time.Hour),
		TemporaryRetention:  getDurationEnv("TEMPORARY_RETENTION", 24*time.Hour),
	}
}

// Validate checks the configuration that cannot be defaulted. Every problem
// found is reported; a process must never come up with a broken keyring.
func (c *Config) Validate() error {
	var problems []string

	if len(c.IdentitySecrets) == 0 {
		problems = append(problems, "IDENTITY_SECRETS is required (comma-separated, oldest first)")
	}
	if len(c.EnvelopeSecrets) == 0 {
		problems = append(problems, "ENVELOPE_SECRETS is required (comma-separated, oldest first)")
	}
	if len(c.IdentitySecrets) != len(c.EnvelopeSecrets) {
		problems = append(problems, fmt.Sprintf("IDENTITY_SECRETS (%d) and ENVELOPE_SECRETS (%d) must have the same number of generations",
			len(c.IdentitySecrets), len(c.EnvelopeSecrets)))
	}
	if c.KeyVersion < 0 || c.KeyVersion >= len(c.EnvelopeSecrets) {
		problems = append(problems, fmt.Sprintf("KEY_VERSION %d out of range [0,%d)", c.KeyVersion, len(c.EnvelopeSecrets)))
	}
	for i, s := range c.IdentitySecrets {
		if s == "" {
			problems = append(problems, fmt.Sprintf("IDENTITY_SECRETS generation %d is empty", i))
		}
	}
	for i, s := range c.EnvelopeSecrets {
		if s == "" {
			problems = append(problems, fmt.Sprintf("ENVELOPE_SECRETS generation %d is empty", i))
		}
	}

	if c.TelegramBotToken == "" {
		problems = append(problems, "TELEGRAM_BOT_TOKEN is required")
	}
	if c.AIAPIKey == "" {
		problems = append(problems, "AI_API_KEY is required")
	}
	if c.AdminJWTSecret == "" {
		problems = append(problems, "ADMIN_JWT_SECRET is required")
	}
	if _, err := cron.ParseStandard(c.DailyMessageCron); err != nil {
		problems = append(problems, fmt.Sprintf("DAILY_MESSAGE_CRON %q is not a valid cron expression", c.DailyMessageCron))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv parses a comma-separated environment variable, trimming
// whitespace around each element.
func getListEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
