package container

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"cleansight/internal/config"
	"cleansight/internal/repository"
	"cleansight/internal/service/identity"
	"cleansight/internal/service/profile"
	"cleansight/internal/service/session"
	"cleansight/pkg/database"
	"cleansight/pkg/logger"
	"cleansight/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.PostgresDB // nil in memory mode
	RedisClient *redis.Client        // nil when Redis is not configured

	Repositories *repository.Repositories
	Identity     *identity.Service
	Tokens       *identity.TokenIssuer
	PendingRoles *profile.PendingRoles
	Profiles     *profile.Materializer
	Sessions     *session.Manager
}

// New builds the dependency graph. Postgres and Redis are used when their
// URLs are set; otherwise the matching in-memory store is used.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		c.DB = db
		log.Info("PostgreSQL connection established")
	} else {
		log.Warn("DATABASE_URL not configured, accounts and profiles are kept in memory")
	}

	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding with in-memory sessions")
		} else {
			c.RedisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding with in-memory sessions")
	}

	c.Repositories = c.buildRepositories()

	providers, err := c.buildProviders()
	if err != nil {
		c.Close()
		return nil, err
	}

	var bus identity.EventBus
	if c.RedisClient != nil {
		bus = identity.NewRedisEventBus(c.RedisClient, log)
	}
	c.Identity = identity.NewService(c.Repositories.Accounts, c.Repositories.KV, providers, bus,
		identity.Config{SessionTTL: cfg.SessionTTL, OAuthStateTTL: redis.TTLOAuthState}, log)

	secret := cfg.JWTSecret
	if secret == "" {
		if secret, err = randomSecret(); err != nil {
			c.Close()
			return nil, err
		}
		log.Warn("JWT_SECRET not set, bearer tokens will not survive a restart")
	}
	c.Tokens = identity.NewTokenIssuer(secret, cfg.SessionTTL)

	c.PendingRoles = profile.NewPendingRoles(c.Repositories.KV, cfg.PendingRoleTTL, log)
	c.Profiles = profile.NewMaterializer(c.Repositories.Profiles, c.PendingRoles, log)
	c.Sessions = session.NewManager(session.FromIdentityService(c.Identity), c.Profiles,
		session.ManagerConfig{IdleTTL: cfg.SessionIdleTTL, MaxSessions: cfg.MaxSessions}, log)

	if cfg.SeedDemoAccounts {
		if _, err := SeedDemoAccounts(ctx, c.Repositories.Accounts, c.Repositories.Profiles, log); err != nil {
			c.Close()
			return nil, fmt.Errorf("seed demo accounts: %w", err)
		}
	}

	return c, nil
}

func (c *Container) buildRepositories() *repository.Repositories {
	repos := &repository.Repositories{}

	if c.DB != nil {
		repos.Accounts = repository.NewAccountRepository(c.DB)
		repos.Profiles = repository.NewProfileRepository(c.DB)
	} else {
		repos.Accounts = repository.NewMemoryAccountRepository()
		repos.Profiles = repository.NewMemoryProfileRepository()
	}

	if c.RedisClient != nil {
		repos.KV = repository.NewRedisKV(c.RedisClient)
		repos.Profiles = repository.NewCachedProfileRepository(repos.Profiles, c.RedisClient, c.Config.ProfileCacheTTL, c.Logger.Logger)
	} else {
		repos.KV = repository.NewMemoryKV()
	}
	return repos
}

func (c *Container) buildProviders() (*identity.Registry, error) {
	registry := identity.NewRegistry()
	if !c.Config.GoogleEnabled() {
		c.Logger.Info("Google sign-in not configured")
		return registry, nil
	}

	google, err := identity.NewGoogleProvider(c.Config.GoogleClientID, c.Config.GoogleClientSecret, c.Config.GoogleRedirectURL, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("google provider: %w", err)
	}
	if err := registry.Register(google); err != nil {
		return nil, err
	}
	return registry, nil
}

// Start launches background work: the auth event subscription and the idle session janitor
func (c *Container) Start() error {
	if err := c.Identity.Start(); err != nil {
		return fmt.Errorf("start identity service: %w", err)
	}
	c.Sessions.Start()
	return nil
}

// Close stops background work and releases connections. Safe to call more than once.
func (c *Container) Close() {
	if c.Sessions != nil {
		c.Sessions.Close()
	}
	if c.Identity != nil {
		c.Identity.Stop()
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Error("Failed to close Redis connection")
		}
		c.RedisClient = nil
	}
	if c.DB != nil {
		c.DB.Close()
		c.DB = nil
	}
}

// HealthChecks returns a ping per configured backing store
func (c *Container) HealthChecks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if c.DB != nil {
		checks["postgres"] = c.DB.Health
	}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Health
	}
	return checks
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
