package audiocache

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultTTL expires cached clips after a week.
const DefaultTTL = 7 * 24 * time.Hour

// Redis stores clips in Redis with a TTL.
type Redis struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithTTL sets the expiry of cached clips. Zero means no expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis wraps an existing client.
func NewRedis(client *backend.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "narrator:audio:",
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisFromURL connects using a redis:// URL.
func NewRedisFromURL(url string, opts ...RedisOption) (*Redis, error) {
	o, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(backend.NewClient(o), opts...), nil
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	audio, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached audio: %w", err)
	}
	return audio, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, audio []byte) error {
	if err := r.client.Set(ctx, r.key(key), audio, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache audio: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	return r.client.Close()
}
