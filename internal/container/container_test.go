package container

import (
	"context"
	"testing"
	"time"

	"cleansight/internal/config"
	"cleansight/internal/domain"
	"cleansight/internal/repository"
	"cleansight/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:      "test",
		FrontendURL:      "http://localhost:5173",
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		SessionTTL:       time.Hour,
		SessionIdleTTL:   30 * time.Minute,
		BootstrapTimeout: time.Second,
		PendingRoleTTL:   30 * time.Minute,
		ProfileCacheTTL:  time.Minute,
	}
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		configure   func(cfg *config.Config)
		expectRedis bool
		expectError bool
	}{
		{
			name:      "Memory mode",
			configure: func(cfg *config.Config) {},
		},
		{
			name: "Redis configured",
			configure: func(cfg *config.Config) {
				cfg.RedisURL = "redis://" + mr.Addr()
			},
			expectRedis: true,
		},
		{
			name: "Invalid Redis URL falls back to memory",
			configure: func(cfg *config.Config) {
				cfg.RedisURL = "invalid://redis-url"
			},
		},
		{
			name: "Google provider registered",
			configure: func(cfg *config.Config) {
				cfg.GoogleClientID = "client-id"
				cfg.GoogleClientSecret = "client-secret"
				cfg.GoogleRedirectURL = "http://localhost:8080/auth/google/callback"
			},
		},
		{
			name: "Unreachable database",
			configure: func(cfg *config.Config) {
				cfg.DatabaseURL = "postgres://nobody@127.0.0.1:1/nothing?sslmode=disable&connect_timeout=1"
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.configure(cfg)

			c, err := New(context.Background(), cfg, logger.NewNop())
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			defer c.Close()

			assert.Equal(t, cfg, c.GetConfig())
			assert.NotNil(t, c.GetLogger())
			assert.NotNil(t, c.Identity)
			assert.NotNil(t, c.Tokens)
			assert.NotNil(t, c.Sessions)
			assert.NotNil(t, c.Profiles)
			assert.Nil(t, c.DB)

			_, memoryKV := c.Repositories.KV.(*repository.MemoryKV)
			if tt.expectRedis {
				assert.NotNil(t, c.RedisClient)
				assert.False(t, memoryKV)
				assert.Contains(t, c.HealthChecks(), "redis")
			} else {
				assert.Nil(t, c.RedisClient)
				assert.True(t, memoryKV)
				assert.Empty(t, c.HealthChecks())
			}

			if cfg.GoogleEnabled() {
				assert.Equal(t, []string{"google"}, c.Identity.Providers().Names())
			} else {
				assert.Empty(t, c.Identity.Providers().Names())
			}
		})
	}
}

func TestStartAndClose(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	c, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start())
	checks := c.HealthChecks()
	require.Contains(t, checks, "redis")
	assert.NoError(t, checks["redis"](context.Background()))

	c.Close()
	assert.Nil(t, c.RedisClient)
	assert.NotPanics(t, c.Close)
}

func TestSeedDemoAccounts(t *testing.T) {
	ctx := context.Background()
	accounts := repository.NewMemoryAccountRepository()
	profiles := repository.NewMemoryProfileRepository()

	created, err := SeedDemoAccounts(ctx, accounts, profiles, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, len(demoAccounts), created)

	for _, demo := range demoAccounts {
		acct, err := accounts.GetByEmail(ctx, demo.email)
		require.NoError(t, err)
		require.NotNil(t, acct, demo.email)

		p, err := profiles.Get(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, demo.role, p.Role)

		user := domain.NewUser(acct.Identity(), p)
		assert.True(t, user.LocationComplete(), demo.email)
		assert.Equal(t, demo.zone+", Bengaluru, Karnataka", p.Extensions["fullLocation"])
	}

	created, err = SeedDemoAccounts(ctx, accounts, profiles, logger.NewNop())
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, len(demoAccounts), profiles.Len())
}

func TestNewSeedsWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.SeedDemoAccounts = true

	c, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer c.Close()

	acct, err := c.Repositories.Accounts.GetByEmail(context.Background(), "admin@demo.com")
	require.NoError(t, err)
	require.NotNil(t, acct)

	p, err := c.Profiles.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, p.Role)
}
