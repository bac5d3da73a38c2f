package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by Get and GetDel when the key does not exist
const Nil = redis.Nil

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// Cache key patterns
const (
	KeySession     = "session:%s"         // session:{sid} -> identity record
	KeyPendingRole = "pending_role:%s:%s" // pending_role:{sid}:{email}
	KeyOAuthState  = "oauth_state:%s"     // oauth_state:{state}
	KeyProfile     = "profile:%s"         // profile:{id} -> cached profile document

	ChannelAuthEvents = "auth:events"
)

// TTL constants
const (
	TTLOAuthState = 10 * time.Minute
	TTLProfile    = 10 * time.Minute
)

// NewClient creates a new Redis client
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 50
	opts.MinIdleConns = 5
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Get retrieves a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	c.observe("redis_get", key, start, ignoreNil(err))
	return val, err
}

// GetDel retrieves a value and deletes it atomically. Used for one-shot records.
func (c *Client) GetDel(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.GetDel(ctx, key).Result()
	c.observe("redis_getdel", key, start, ignoreNil(err))
	return val, err
}

// Set stores a value in Redis with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	c.observe("redis_set", key, start, err)
	return err
}

// SetNX sets a value only if it doesn't exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	c.observe("redis_setnx", key, start, err, zap.Bool("result", ok))
	return ok, err
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.log.Debug("redis_del",
		zap.Int("keys", len(keys)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return err
}

// Publish sends a message on a pub/sub channel
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	start := time.Now()
	err := c.rdb.Publish(ctx, channel, message).Err()
	c.observe("redis_publish", channel, start, err)
	return err
}

// Subscribe opens a pub/sub subscription. The caller owns the returned PubSub and must Close it.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	dur := time.Since(start)
	if err != nil {
		c.log.Info("redis_ping",
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_ping", zap.Duration("duration", dur))
	}
	return err
}

// observe logs a single command. Failures go to info so they show in production logs.
func (c *Client) observe(op, key string, start time.Time, err error, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("key_prefix", prefixForLog(key)),
		zap.Duration("duration", time.Since(start)),
	}, extra...)
	if err != nil {
		c.log.Info(op, append(fields, zap.Error(err))...)
		return
	}
	c.log.Debug(op, fields...)
}

func ignoreNil(err error) error {
	if err == redis.Nil {
		return nil
	}
	return err
}

// prefixForLog returns a safe prefix of a key to avoid logging PII
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}
