package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryQueue bool

	// Dispatch pool
	DispatchWorkerCount  int
	DispatchPollInterval time.Duration
	DispatchBatchSize    int
	SendTimeout          time.Duration
	LeaseDuration        time.Duration
	ReaperInterval       time.Duration
	MaxRetries           int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration

	// Per-channel throughput budget
	ChannelRatePerSec float64
	ChannelBurst      int

	// Recipient normalization
	DefaultCountryCode string

	// Messaging provider
	ProviderBaseURL string
	ProviderAPIKey  string

	// Operator auth
	OperatorJWTSecret string

	// API rate limiting
	APIRatePerSec      float64
	APIBurst           int
	CORSAllowedOrigins []string

	// Outcome queue
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	OutcomeQueueURL     string

	// Status cache
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	StatusCacheTTL time.Duration

	// Completion notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),

		DispatchWorkerCount:  getEnvAsInt("DISPATCH_WORKER_COUNT", 4),
		DispatchPollInterval: getEnvAsDuration("DISPATCH_POLL_INTERVAL", 2*time.Second),
		DispatchBatchSize:    getEnvAsInt("DISPATCH_BATCH_SIZE", 50),
		SendTimeout:          getEnvAsDuration("SEND_TIMEOUT", 10*time.Second),
		LeaseDuration:        getEnvAsDuration("LEASE_DURATION", 2*time.Minute),
		ReaperInterval:       getEnvAsDuration("REAPER_INTERVAL", 30*time.Second),
		MaxRetries:           getEnvAsInt("MAX_RETRIES", 3),
		RetryBaseDelay:       getEnvAsDuration("RETRY_BASE_DELAY", 30*time.Second),
		RetryMaxDelay:        getEnvAsDuration("RETRY_MAX_DELAY", time.Hour),

		ChannelRatePerSec: getEnvAsFloat("CHANNEL_RATE_PER_SEC", 10),
		ChannelBurst:      getEnvAsInt("CHANNEL_BURST", 20),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "1"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", ""),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", ""),

		OperatorJWTSecret: getEnv("OPERATOR_JWT_SECRET", ""),

		APIRatePerSec:      getEnvAsFloat("API_RATE_PER_SEC", 5),
		APIBurst:           getEnvAsInt("API_BURST", 10),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		OutcomeQueueURL:     getEnv("OUTCOME_QUEUE_URL", ""),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		StatusCacheTTL: getEnvAsDuration("STATUS_CACHE_TTL", 3*time.Second),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "NovaSend"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
