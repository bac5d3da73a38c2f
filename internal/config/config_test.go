package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "JWT_SECRET", "SESSION_TTL", "ENVIRONMENT", "SEED_DEMO_ACCOUNTS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.BootstrapTimeout)
	assert.Equal(t, 10000, cfg.MaxSessions)
	assert.True(t, cfg.SeedDemoAccounts, "in-memory mode seeds demo accounts")
	assert.False(t, cfg.GoogleEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("DATABASE_URL", "postgres://localhost/cleansight")
	t.Setenv("SESSION_IDLE_TTL", "5m")
	t.Setenv("MAX_SESSIONS", "250")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("FRONTEND_URL", "https://app.example/")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/cleansight", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, 250, cfg.MaxSessions)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "https://app.example", cfg.FrontendURL)
	assert.False(t, cfg.SeedDemoAccounts)
	assert.True(t, cfg.GoogleEnabled())
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("BOOTSTRAP_TIMEOUT", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "BOOTSTRAP_TIMEOUT")
}

func TestLoad_InvalidMaxSessions(t *testing.T) {
	t.Setenv("MAX_SESSIONS", "lots")

	_, err := Load()
	assert.ErrorContains(t, err, "MAX_SESSIONS")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Environment: "development", SessionTTL: time.Hour, SessionIdleTTL: time.Minute}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"development without secret", func(c *Config) {}, false},
		{"production without secret", func(c *Config) { c.Environment = "production" }, true},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, true},
		{"production with secret", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "0123456789abcdef0123456789abcdef"
		}, false},
		{"zero idle ttl", func(c *Config) { c.SessionIdleTTL = 0 }, true},
		{"negative session cap", func(c *Config) { c.MaxSessions = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseOrigins(t *testing.T) {
	assert.Empty(t, parseOrigins(""))
	assert.Equal(t, []string{"*"}, parseOrigins(" * "))
}
