package lastseen

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-mcp/chat/config"
)

func TestMemoryStoreTouchAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	require.NoError(t, s.Touch(ctx, "u-1", at))

	got, ok, err := s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
	assert.Equal(t, time.UTC, got.Location())
}

func TestMemoryStoreKeepsNewest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newer := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Touch(ctx, "u-1", newer))
	require.NoError(t, s.Touch(ctx, "u-1", newer.Add(-time.Minute)))

	got, ok, err := s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, newer.Equal(got))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	cfg := config.DefaultConfig().Redis
	cfg.Addr = addr
	cfg.Prefix = "chat:test:" + t.Name() + ":"
	cfg.TTL = time.Minute
	s := NewRedisStore(cfg)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Ping(ctx))
	t.Cleanup(func() { s.client.Del(context.Background(), s.key("u-1"), s.key("u-none")) })

	_, ok, err := s.Get(ctx, "u-none")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 3, 1, 12, 0, 0, 123_000_000, time.FixedZone("X", 3600))
	require.NoError(t, s.Touch(ctx, "u-1", at))

	got, ok, err := s.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
	assert.Equal(t, time.UTC, got.Location())

	ttl, err := s.client.TTL(ctx, s.key("u-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStoreKey(t *testing.T) {
	cfg := config.DefaultConfig().Redis
	cfg.Addr = "localhost:6379"
	s := NewRedisStore(cfg)
	defer s.Close()
	assert.Equal(t, "chat:lastseen:u-42", s.key("u-42"))
}

func TestOpenWithoutRedisUsesMemory(t *testing.T) {
	s := Open(context.Background(), config.RedisConfig{}, zerolog.Nop())
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)
}

func TestOpenUnreachableRedisFallsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// Port 1 on loopback refuses connections.
	s := Open(ctx, config.RedisConfig{Addr: "127.0.0.1:1", Prefix: "t:"}, zerolog.Nop())
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)
}
