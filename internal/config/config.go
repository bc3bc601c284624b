// Package config provides environment configuration for the assistant.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment is "production" or "development".
	Environment string

	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// Shop settings
	ShopID       string
	ShopName     string
	SynonymsFile string

	// Backing store
	DatabaseURL  string
	StoreTimeout time.Duration

	// Redis backs the reconciliation queue when set.
	RedisURL string

	// NATS settings. Events are published only when NATSURL is set.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	LLMProvider     string
	LLMModel        string
	LLMBaseURL      string
	LLMTimeout      time.Duration
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Session engine
	InventoryTTL      time.Duration
	InventoryPolicy   string
	OrderHistoryTTL   time.Duration
	LockWait          time.Duration
	SessionIdle       time.Duration
	CleanupInterval   time.Duration
	HistorySize       int
	ReconcileWorkers  int
	ReconcileAttempts int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CustomerRateLimit int

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory if one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENV", "production"),

		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		AllowedOrigins:     getListEnv("ALLOWED_ORIGINS"),

		// Shop
		ShopID:       getEnv("SHOP_ID", "default"),
		ShopName:     getEnv("SHOP_NAME", "India Mart Grocery"),
		SynonymsFile: getEnv("SYNONYMS_FILE", ""),

		// Store
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		StoreTimeout: getDurationEnv("STORE_TIMEOUT", 5*time.Second),
		RedisURL:     getEnv("REDIS_URL", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// LLM
		LLMProvider:     getEnv("LLM_PROVIDER", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMBaseURL:      getEnv("LLM_BASE_URL", ""),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 30*time.Second),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),

		// Session engine
		InventoryTTL:      getDurationEnv("INVENTORY_TTL", 30*time.Second),
		InventoryPolicy:   getEnv("INVENTORY_CACHE_POLICY", "wait"),
		OrderHistoryTTL:   getDurationEnv("ORDER_HISTORY_TTL", 10*time.Minute),
		LockWait:          getDurationEnv("LOCK_WAIT", 10*time.Second),
		SessionIdle:       getDurationEnv("SESSION_IDLE_TIMEOUT", time.Hour),
		CleanupInterval:   getDurationEnv("CLEANUP_INTERVAL", time.Minute),
		HistorySize:       getIntEnv("HISTORY_SIZE", 10),
		ReconcileWorkers:  getIntEnv("RECONCILE_WORKERS", 2),
		ReconcileAttempts: getIntEnv("RECONCILE_MAX_ATTEMPTS", 8),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 600),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		CustomerRateLimit: getIntEnv("CUSTOMER_RATE_LIMIT", 30),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", ""),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Development reports whether development mode is on.
func (c *Config) Development() bool {
	return c.Environment == "development"
}

// APIKey returns the key for the configured LLM provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// Validate reports settings the HTTP server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.ShopID == "" {
		errs = append(errs, errors.New("SHOP_ID is required"))
	}
	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLMProvider))
	}
	if c.APIKey() == "" {
		errs = append(errs, fmt.Errorf("an API key for %s is required", c.LLMProvider))
	}
	switch c.InventoryPolicy {
	case "wait", "stale":
	default:
		errs = append(errs, fmt.Errorf("INVENTORY_CACHE_POLICY %q must be wait or stale", c.InventoryPolicy))
	}
	if c.HistorySize <= 0 {
		errs = append(errs, errors.New("HISTORY_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
