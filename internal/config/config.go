// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port                      string
	DatabaseURL               string
	BackendToken              string
	DiscordToken              string
	DiscordGuildID            string
	IdentityCacheTTL          time.Duration
	SSEHeartbeat              time.Duration
	SubscriberQueueLimit      int
	WebhookRateLimitPerMinute int
	CORSAllowedOrigins        []string
	TrustedProxies            []string
	RedisURL                  string
	RedisChannelPrefix        string
	SentryDSN                 string
	SentryEnvironment         string
	ShutdownTimeout           time.Duration
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() *Config {
	return &Config{
		Port:                      getEnv("PORT", "8080"),
		DatabaseURL:               getEnv("DATABASE_URL", "./codejam.db"),
		BackendToken:              getEnv("BACKEND_TOKEN", ""),
		DiscordToken:              getEnv("DISCORD_TOKEN", ""),
		DiscordGuildID:            getEnv("DISCORD_GUILD_ID", ""),
		IdentityCacheTTL:          getDurationEnv("IDENTITY_CACHE_TTL", 10*time.Minute),
		SSEHeartbeat:              getDurationEnv("SSE_HEARTBEAT", 15*time.Second),
		SubscriberQueueLimit:      getIntEnv("SUBSCRIBER_QUEUE_LIMIT", 256),
		WebhookRateLimitPerMinute: getIntEnv("WEBHOOK_RATE_LIMIT_PER_MINUTE", 60),
		CORSAllowedOrigins:        getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:            getStringSliceEnv("TRUSTED_PROXIES", nil),
		RedisURL:                  getEnv("REDIS_URL", ""),
		RedisChannelPrefix:        getEnv("REDIS_CHANNEL_PREFIX", "codejam"),
		SentryDSN:                 getEnv("SENTRY_DSN", ""),
		SentryEnvironment:         getEnv("SENTRY_ENVIRONMENT", "production"),
		ShutdownTimeout:           getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
