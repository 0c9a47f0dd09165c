package hub

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-mcp/chat/src/lastseen"
	"github.com/orchestra-mcp/chat/src/metrics"
	"github.com/orchestra-mcp/chat/src/types"
)

// gatedStore blocks Touch until release is closed.
type gatedStore struct {
	*lastseen.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Touch(ctx context.Context, userID string, t time.Time) error {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryStore.Touch(ctx, userID, t)
}

func TestDisconnectRecordsLastSeenBeforeNextTransition(t *testing.T) {
	registry := NewRegistry()
	m := metrics.New()
	seen := &gatedStore{
		MemoryStore: lastseen.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	p := NewPresenceTracker(registry, NewBroadcaster(registry, m, zerolog.Nop()), seen, m, zerolog.Nop())

	first := NewClient(types.PublicProfile{ID: "u-a"}, newMockConn(), 4)
	require.True(t, p.Connect(first))
	go p.Disconnect(first)
	<-seen.entered

	second := NewClient(types.PublicProfile{ID: "u-a"}, newMockConn(), 4)
	connected := make(chan bool, 1)
	go func() { connected <- p.Connect(second) }()

	select {
	case <-connected:
		t.Fatal("connect completed while the last-seen write was pending")
	case <-time.After(50 * time.Millisecond):
	}

	close(seen.release)
	assert.True(t, <-connected)
	_, ok, err := seen.Get(context.Background(), "u-a")
	require.NoError(t, err)
	assert.True(t, ok)
}
