package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string
	FrontendURL    string

	DatabaseURL string
	RedisURL    string

	JWTSecret        string
	SessionTTL       time.Duration // lifetime of a signed-in identity record
	SessionIdleTTL   time.Duration // in-memory session contexts idle longer than this are evicted
	BootstrapTimeout time.Duration // how long a request waits for a bootstrapping session
	PendingRoleTTL   time.Duration
	ProfileCacheTTL  time.Duration
	MaxSessions      int // cap on in-memory session contexts
	CookieSecure     bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	SeedDemoAccounts bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigins:     parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CookieSecure:       getBoolEnv("COOKIE_SECURE", false),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
	}

	var err error
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SESSION_TTL", 7 * 24 * time.Hour, &cfg.SessionTTL},
		{"SESSION_IDLE_TTL", 30 * time.Minute, &cfg.SessionIdleTTL},
		{"BOOTSTRAP_TIMEOUT", 3 * time.Second, &cfg.BootstrapTimeout},
		{"PENDING_ROLE_TTL", 30 * time.Minute, &cfg.PendingRoleTTL},
		{"PROFILE_CACHE_TTL", 10 * time.Minute, &cfg.ProfileCacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = getDurationEnv(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.MaxSessions, err = getIntEnv("MAX_SESSIONS", 10000); err != nil {
		return nil, err
	}

	// Demo accounts only make sense for the in-memory store unless asked for explicitly
	cfg.SeedDemoAccounts = getBoolEnv("SEED_DEMO_ACCOUNTS", cfg.DatabaseURL == "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run safely with
func (c *Config) Validate() error {
	if c.Environment == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.SessionTTL <= 0 || c.SessionIdleTTL <= 0 {
		return fmt.Errorf("session TTLs must be positive")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("MAX_SESSIONS must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the server runs in a local environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

// GoogleEnabled reports whether federated sign-in through Google is configured
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
