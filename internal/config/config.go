package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AdminAPIKey string
	DaonEnv     string

	// StrictLineage rejects registrations whose previous_version does
	// not resolve to a stored record.
	StrictLineage   bool
	MaxLineageDepth int

	WebhookTimeoutSeconds    int
	WebhookScanPeriodSeconds int
	WebhookMaxRetries        int
	WebhookRetryDelaySeconds int

	AnchorURL            string
	AnchorTimeoutSeconds int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                 addr,
		PostgresDSN:              os.Getenv("POSTGRES_DSN"),
		LogLevel:                 envDefault("LOG_LEVEL", "info"),
		AdminAPIKey:              os.Getenv("ADMIN_API_KEY"),
		DaonEnv:                  os.Getenv("DAON_ENV"),
		StrictLineage:            envBoolDefault("STRICT_LINEAGE", false),
		MaxLineageDepth:          envIntDefault("MAX_LINEAGE_DEPTH", 100),
		WebhookTimeoutSeconds:    envIntDefault("WEBHOOK_TIMEOUT_SECONDS", 10),
		WebhookScanPeriodSeconds: envIntDefault("WEBHOOK_SCAN_PERIOD_SECONDS", 5),
		WebhookMaxRetries:        envIntDefault("WEBHOOK_MAX_RETRIES", 5),
		WebhookRetryDelaySeconds: envIntDefault("WEBHOOK_RETRY_DELAY_SECONDS", 30),
		AnchorURL:                os.Getenv("ANCHOR_URL"),
		AnchorTimeoutSeconds:     envIntDefault("ANCHOR_TIMEOUT_SECONDS", 10),
		RateLimitRequests:        envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:   envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:      envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:         envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

func (c Config) WebhookScanPeriod() time.Duration {
	return time.Duration(c.WebhookScanPeriodSeconds) * time.Second
}

func (c Config) WebhookRetryDelay() time.Duration {
	return time.Duration(c.WebhookRetryDelaySeconds) * time.Second
}

func (c Config) AnchorTimeout() time.Duration {
	return time.Duration(c.AnchorTimeoutSeconds) * time.Second
}
