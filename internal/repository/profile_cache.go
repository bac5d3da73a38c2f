package repository

import (
	"context"
	"encoding/json"
	"time"

	"cleansight/internal/domain"
	"cleansight/pkg/redis"
	"go.uber.org/zap"
)

// cachedProfileRepository is a cache-aside decorator over a ProfileRepository.
// Absent profiles are never cached so a profile created by another replica is
// visible on the next read. Writes overwrite the cached copy; read fills only
// add a missing one, so a fill racing an update never replaces the newer copy.
type cachedProfileRepository struct {
	inner  ProfileRepository
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProfileRepository wraps inner with a Redis read cache
func NewCachedProfileRepository(inner ProfileRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) ProfileRepository {
	if ttl <= 0 {
		ttl = redis.TTLProfile
	}
	return &cachedProfileRepository{inner: inner, redis: client, ttl: ttl, logger: logger}
}

func (c *cachedProfileRepository) Get(ctx context.Context, id string) (*domain.Profile, error) {
	key := c.redis.KeyBuilder.KeyProfile(id)

	cached, err := c.redis.Get(ctx, key)
	if err == nil && cached != "" {
		var p domain.Profile
		if jsonErr := json.Unmarshal([]byte(cached), &p); jsonErr == nil {
			c.logger.Debug("Profile cache hit", zap.String("profile_id", id))
			return &p, nil
		} else {
			c.logger.Warn("Profile cache corrupted, falling back to store",
				zap.String("profile_id", id),
				zap.Error(jsonErr))
			_ = c.redis.Delete(ctx, key)
		}
	} else if err != nil && err != redis.Nil {
		c.logger.Warn("Profile cache error, falling back to store",
			zap.String("profile_id", id),
			zap.Error(err))
	}

	p, err := c.inner.Get(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	c.fill(ctx, p)
	return p, nil
}

func (c *cachedProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	if err := c.inner.Create(ctx, p); err != nil {
		return err
	}
	c.store(ctx, p)
	return nil
}

func (c *cachedProfileRepository) Update(ctx context.Context, id string, u domain.ProfileUpdate) (*domain.Profile, error) {
	p, err := c.inner.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	c.store(ctx, p)
	return p, nil
}

// fill caches a profile read from the store unless a copy is already cached
func (c *cachedProfileRepository) fill(ctx context.Context, p *domain.Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("Failed to cache profile", zap.String("profile_id", p.ID), zap.Error(err))
		return
	}
	stored, err := c.redis.SetNX(ctx, c.redis.KeyBuilder.KeyProfile(p.ID), data, c.ttl)
	if err != nil {
		c.logger.Warn("Failed to cache profile", zap.String("profile_id", p.ID), zap.Error(err))
		return
	}
	if !stored {
		c.logger.Debug("Profile cached concurrently, keeping newer copy", zap.String("profile_id", p.ID))
	}
}

// store writes the profile through. A failed write drops the key so a stale copy can't outlive the update.
func (c *cachedProfileRepository) store(ctx context.Context, p *domain.Profile) {
	key := c.redis.KeyBuilder.KeyProfile(p.ID)

	data, err := json.Marshal(p)
	if err == nil {
		err = c.redis.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.logger.Warn("Failed to cache profile", zap.String("profile_id", p.ID), zap.Error(err))
		_ = c.redis.Delete(ctx, key)
	}
}
