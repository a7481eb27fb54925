package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey       = "lamport:ledger"
	defaultRedisOpTimeout = 5 * time.Second
)

// RedisOption configures a Redis ledger.
type RedisOption func(*redisOptions)

type redisOptions struct {
	key     string
	timeout time.Duration
}

// WithKey sets the Redis list key holding the trail.
func WithKey(key string) RedisOption {
	return func(o *redisOptions) {
		o.key = key
	}
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.timeout = d
	}
}

// Redis implements Ledger on a Redis list: entries are appended with
// RPUSH as JSON documents, so the trail survives the peer process and
// can be read by any client.
type Redis struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedis returns a Redis ledger using the provided client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	o := redisOptions{key: defaultRedisKey, timeout: defaultRedisOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis{client: client, key: o.key, timeout: o.timeout}
}

// Append implements Ledger.Append.
func (r *Redis) Append(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger: failed to encode entry: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.RPush(cctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("ledger: failed to append entry: %w", err)
	}
	return nil
}

// History implements Ledger.History, returning entries in append order.
func (r *Redis) History(ctx context.Context) ([]Entry, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	raw, err := r.client.LRange(cctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to read history: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("ledger: failed to decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
