// Package broker provides the queue and lock primitives the pipeline
// coordinates through: blocking FIFO queues and a keyed lock namespace
// with expiry, backed by Redis.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by PopBlocking when the timeout elapses with no
// item available. It is a normal loop condition, not a failure.
var ErrEmpty = errors.New("queue empty")

// ErrNotConnected is returned when an operation runs before Start or
// after Stop.
var ErrNotConnected = errors.New("broker not connected")

// DeadLetterQueue returns the reserved dead-letter queue name for a
// stage queue. The base pipeline never populates these; a retry
// supervisor may consume them.
func DeadLetterQueue(queue string) string {
	return queue + "_dlq"
}

// Broker is the coordination contract between the manager and the
// worker stages.
type Broker interface {
	// Start establishes the connection.
	Start(ctx context.Context) error

	// Stop closes the connection.
	Stop(ctx context.Context) error

	// Push appends a payload to the tail of a queue.
	Push(ctx context.Context, queue string, payload []byte) error

	// PopBlocking removes and returns the head of a queue, blocking up
	// to timeout. Returns ErrEmpty when the timeout elapses; exactly one
	// consumer receives each pushed item.
	PopBlocking(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)

	// Depth returns the number of items waiting on a queue.
	Depth(ctx context.Context, queue string) (int64, error)

	// AcquireLock atomically creates a lock key with a TTL. Returns
	// false when the key already exists.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock deletes a lock key.
	ReleaseLock(ctx context.Context, key string) error

	// LockExists reports whether a lock key is present.
	LockExists(ctx context.Context, key string) (bool, error)

	// IsConnected reports whether Start has succeeded.
	IsConnected() bool
}

// Config contains broker connection configuration.
type Config struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:       "localhost:6379",
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// RedisBroker implements Broker on go-redis.
type RedisBroker struct {
	mu        sync.RWMutex
	config    Config
	logger    *slog.Logger
	client    *redis.Client
	connected bool
}

// Option configures the RedisBroker.
type Option func(*RedisBroker)

// WithConfig sets the configuration.
func WithConfig(cfg Config) Option {
	return func(b *RedisBroker) {
		b.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *RedisBroker) {
		b.logger = logger
	}
}

// NewRedisBroker creates a new Redis broker client.
func NewRedisBroker(opts ...Option) *RedisBroker {
	b := &RedisBroker{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start connects to Redis, retrying per the configured policy.
func (b *RedisBroker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     b.config.Addr,
		Password: b.config.Password,
		DB:       b.config.DB,
	})

	var lastErr error
	attempts := b.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			b.client = client
			b.connected = true
			b.logger.Debug("broker connected", "addr", b.config.Addr)
			return nil
		}

		b.logger.Warn("broker connect failed",
			"addr", b.config.Addr,
			"attempt", attempt,
			"error", lastErr)

		select {
		case <-ctx.Done():
			_ = client.Close()
			return ctx.Err()
		case <-time.After(b.config.RetryDelay):
		}
	}

	_ = client.Close()
	return fmt.Errorf("failed to connect to broker at %s; %w", b.config.Addr, lastErr)
}

// Stop closes the connection.
func (b *RedisBroker) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil
	}

	b.connected = false
	err := b.client.Close()
	b.client = nil
	if err != nil {
		return fmt.Errorf("failed to close broker connection; %w", err)
	}
	return nil
}

// IsConnected reports whether the broker is connected.
func (b *RedisBroker) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *RedisBroker) getClient() (*redis.Client, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected || b.client == nil {
		return nil, ErrNotConnected
	}
	return b.client, nil
}

// Push appends a payload to the tail of a queue (RPUSH; FIFO with BLPOP).
func (b *RedisBroker) Push(ctx context.Context, queue string, payload []byte) error {
	client, err := b.getClient()
	if err != nil {
		return err
	}

	if err := client.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %q; %w", queue, err)
	}
	return nil
}

// PopBlocking removes the head of a queue, blocking up to timeout.
func (b *RedisBroker) PopBlocking(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	client, err := b.getClient()
	if err != nil {
		return nil, err
	}

	res, err := client.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to pop from queue %q; %w", queue, err)
	}

	// BLPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply length %d for queue %q", len(res), queue)
	}
	return []byte(res[1]), nil
}

// Depth returns the number of items waiting on a queue.
func (b *RedisBroker) Depth(ctx context.Context, queue string) (int64, error) {
	client, err := b.getClient()
	if err != nil {
		return 0, err
	}

	n, err := client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read depth of queue %q; %w", queue, err)
	}
	return n, nil
}

// AcquireLock atomically creates a lock key with a TTL (SET NX EX).
func (b *RedisBroker) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	client, err := b.getClient()
	if err != nil {
		return false, err
	}

	ok, err := client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q; %w", key, err)
	}
	return ok, nil
}

// ReleaseLock deletes a lock key.
func (b *RedisBroker) ReleaseLock(ctx context.Context, key string) error {
	client, err := b.getClient()
	if err != nil {
		return err
	}

	if err := client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release lock %q; %w", key, err)
	}
	return nil
}

// LockExists reports whether a lock key is present.
func (b *RedisBroker) LockExists(ctx context.Context, key string) (bool, error) {
	client, err := b.getClient()
	if err != nil {
		return false, err
	}

	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock %q; %w", key, err)
	}
	return n > 0, nil
}
