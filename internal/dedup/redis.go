package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps one key per symbol whose TTL equals the suppression
// window, so SET NX gives a cross-process atomic claim.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "cryptoscan:alert:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(symbol string) string {
	return r.prefix + symbol
}

func (r *RedisStore) LastAlert(ctx context.Context, symbol string) (time.Time, bool, error) {
	v, err := r.client.Get(ctx, r.key(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read alert mark: %w", err)
	}
	nanos, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed alert mark %q: %w", v, err)
	}
	return time.Unix(0, nanos), true, nil
}

func (r *RedisStore) Claim(ctx context.Context, symbol string, at time.Time, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(symbol), strconv.FormatInt(at.UnixNano(), 10), window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim alert mark: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) Record(ctx context.Context, symbol string, at time.Time, window time.Duration) error {
	if err := r.client.Set(ctx, r.key(symbol), strconv.FormatInt(at.UnixNano(), 10), window).Err(); err != nil {
		return fmt.Errorf("failed to record alert mark: %w", err)
	}
	return nil
}
