package lastseen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chat/config"
)

// RedisStore keeps last-seen times in Redis as unix milliseconds.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. It does not dial until used.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}
}

// Open returns a Redis store when Redis is configured and reachable, and
// an in-memory store otherwise. Redis being down is never fatal.
func Open(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) Store {
	if cfg.Addr == "" {
		logger.Info().Msg("redis not configured, keeping last-seen in memory")
		return NewMemoryStore()
	}
	rs := NewRedisStore(cfg)
	if err := rs.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("redis_addr", cfg.Addr).Msg("redis unavailable, keeping last-seen in memory")
		_ = rs.Close()
		return NewMemoryStore()
	}
	logger.Info().Str("redis_addr", cfg.Addr).Msg("redis last-seen store connected")
	return rs
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisStore) Touch(ctx context.Context, userID string, t time.Time) error {
	if err := s.client.Set(ctx, s.key(userID), t.UTC().UnixMilli(), s.ttl).Err(); err != nil {
		return fmt.Errorf("set last-seen %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last-seen %s: %w", userID, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode last-seen %s: %w", userID, err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}
