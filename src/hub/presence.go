package hub

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chat/src/lastseen"
	"github.com/orchestra-mcp/chat/src/metrics"
	"github.com/orchestra-mcp/chat/src/types"
)

const presenceStripes = 64

// PresenceTracker registers and deregisters connections and announces a
// user's first and last connection to everyone else online. Transitions
// of the same user are serialized; different users rarely share a stripe.
type PresenceTracker struct {
	registry    *Registry
	broadcaster *Broadcaster
	lastSeen    lastseen.Store
	metrics     *metrics.Collectors
	logger      zerolog.Logger
	now         func() time.Time
	timeout     time.Duration

	stripes [presenceStripes]sync.Mutex
}

// NewPresenceTracker creates a presence tracker.
func NewPresenceTracker(registry *Registry, b *Broadcaster, seen lastseen.Store, m *metrics.Collectors, logger zerolog.Logger) *PresenceTracker {
	return &PresenceTracker{
		registry:    registry,
		broadcaster: b,
		lastSeen:    seen,
		metrics:     m,
		logger:      logger.With().Str("component", "presence").Logger(),
		now:         time.Now,
		timeout:     5 * time.Second,
	}
}

func (p *PresenceTracker) stripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &p.stripes[h.Sum32()%presenceStripes]
}

// Connect registers c and broadcasts user_online if it is the user's
// first connection.
func (p *PresenceTracker) Connect(c *Client) bool {
	mu := p.stripe(c.User.ID)
	mu.Lock()
	defer mu.Unlock()

	first := p.registry.Add(c)
	p.updateGauges()
	if !first {
		return false
	}

	report := p.broadcaster.Broadcast(p.othersOnline(c.User.ID), types.UserOnline(c.User, p.now()))
	p.metrics.PresenceBroadcast.WithLabelValues("online").Inc()
	p.logger.Info().
		Str("user_id", c.User.ID).
		Int("notified", report.Delivered).
		Msg("user online")
	return true
}

// Disconnect deregisters c and broadcasts user_offline if it was the
// user's last connection. The last-seen time is recorded before the
// user's stripe is released, so a later transition cannot overtake it.
func (p *PresenceTracker) Disconnect(c *Client) bool {
	mu := p.stripe(c.User.ID)
	mu.Lock()
	defer mu.Unlock()

	last := p.registry.Remove(c)
	p.updateGauges()
	if !last {
		return false
	}

	at := p.now()
	report := p.broadcaster.Broadcast(p.othersOnline(c.User.ID), types.UserOffline(c.User, at))
	p.metrics.PresenceBroadcast.WithLabelValues("offline").Inc()
	p.logger.Info().
		Str("user_id", c.User.ID).
		Int("notified", report.Delivered).
		Msg("user offline")

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.lastSeen.Touch(ctx, c.User.ID, at); err != nil {
		p.logger.Warn().Err(err).Str("user_id", c.User.ID).Msg("failed to record last-seen")
	}
	return true
}

func (p *PresenceTracker) othersOnline(userID string) []string {
	ids := p.registry.OnlineUserIDs()
	out := ids[:0]
	for _, id := range ids {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

func (p *PresenceTracker) updateGauges() {
	stats := p.registry.Stats()
	p.metrics.Connections.Set(float64(stats.Connections))
	p.metrics.OnlineUsers.Set(float64(stats.OnlineUsers))
}
