package identity

import (
	"context"
	"encoding/json"
	"sync"

	"cleansight/pkg/logger"
	"cleansight/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Event announces that the identity bound to a session changed on some instance
type Event struct {
	Origin    string `json:"origin"`
	SID       string `json:"sid"`
	AccountID string `json:"account_id,omitempty"`
}

// EventBus fans session identity changes out across instances
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Start(handler func(Event)) error
	Stop()
}

// RedisEventBus carries events over a Redis pub/sub channel
type RedisEventBus struct {
	client  *redis.Client
	channel string
	logger  *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRedisEventBus creates a bus on the environment-prefixed auth events channel
func NewRedisEventBus(client *redis.Client, log *logger.Logger) *RedisEventBus {
	return &RedisEventBus{
		client:  client,
		channel: client.KeyBuilder.ChannelAuthEvents(),
		logger:  log.Named("auth_events"),
	}
}

func (b *RedisEventBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload)
}

// Start subscribes and dispatches events to handler until Stop is called
func (b *RedisEventBus) Start(handler func(Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		b.logger.Warn("Auth event listener is already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so no event published after Start is missed
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return err
	}

	b.running = true
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.listen(ctx, sub, handler, b.done)

	b.logger.Info("Auth event listener started")
	return nil
}

func (b *RedisEventBus) listen(ctx context.Context, sub *goredis.PubSub, handler func(Event), done chan struct{}) {
	defer close(done)
	defer sub.Close()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.WithError(err).Warn("Dropping malformed auth event")
				continue
			}
			handler(event)
		}
	}
}

// Stop unsubscribes and waits for the listener goroutine to exit
func (b *RedisEventBus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	<-done
	b.logger.Info("Auth event listener stopped")
}

// localEventBus is used when no Redis is configured; a single instance has nobody to tell
type localEventBus struct{}

func (localEventBus) Publish(context.Context, Event) error { return nil }
func (localEventBus) Start(func(Event)) error             { return nil }
func (localEventBus) Stop()                               {}
