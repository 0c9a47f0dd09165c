package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chat/src/auth"
	"github.com/orchestra-mcp/chat/src/lastseen"
	"github.com/orchestra-mcp/chat/src/metrics"
	"github.com/orchestra-mcp/chat/src/types"
)

// ErrStopped is returned by Serve once the hub has shut down.
var ErrStopped = errors.New("hub stopped")

// Deps are the collaborators a hub reads from.
type Deps struct {
	Conversations types.ConversationStore
	LastSeen      lastseen.Store
	Metrics       *metrics.Collectors
}

// Options tunes per-connection behaviour.
type Options struct {
	SendBufferSize int
	PingInterval   time.Duration
	LookupTimeout  time.Duration
}

// Hub owns the live connection table of one process and everything that
// reads or writes it: presence, inbound routing and fan-out.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	presence    *PresenceTracker
	router      *Router
	authz       *auth.ParticipantAuthorizer
	lastSeen    lastseen.Store
	metrics     *metrics.Collectors
	opts        Options
	logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex // held for writing only by Shutdown
	wg     sync.WaitGroup
}

// New creates a hub. Missing LastSeen and Metrics deps get in-memory defaults.
func New(deps Deps, opts Options, logger zerolog.Logger) *Hub {
	if deps.LastSeen == nil {
		deps.LastSeen = lastseen.NewMemoryStore()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, deps.Metrics, logger)
	authz := auth.NewParticipantAuthorizer(deps.Conversations, opts.LookupTimeout)

	return &Hub{
		registry:    registry,
		broadcaster: broadcaster,
		presence:    NewPresenceTracker(registry, broadcaster, deps.LastSeen, deps.Metrics, logger),
		router:      NewRouter(ctx, authz, broadcaster, deps.Metrics, logger),
		authz:       authz,
		lastSeen:    deps.LastSeen,
		metrics:     deps.Metrics,
		opts:        opts,
		logger:      logger.With().Str("component", "hub").Logger(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Serve runs one authenticated connection until it closes. It registers
// the connection, pumps frames in both directions and deregisters it.
func (h *Hub) Serve(user types.PublicProfile, conn types.Conn) error {
	c := NewClient(user, conn, h.opts.SendBufferSize)

	h.mu.RLock()
	if h.ctx.Err() != nil {
		h.mu.RUnlock()
		_ = conn.Close()
		return ErrStopped
	}
	h.wg.Add(1)
	h.presence.Connect(c)
	h.mu.RUnlock()
	defer h.wg.Done()

	h.logger.Debug().Str("client_id", c.ID).Str("user_id", user.ID).Msg("client registered")

	go func() {
		if err := c.WritePump(h.opts.PingInterval); err != nil {
			h.logger.Debug().Err(err).Str("client_id", c.ID).Msg("write pump stopped")
		}
	}()

	err := c.ReadPump(h.router.Dispatch)
	h.presence.Disconnect(c)
	h.logger.Debug().Err(err).Str("client_id", c.ID).Str("user_id", user.ID).Msg("client unregistered")
	return nil
}

// Shutdown closes every open connection and waits for their Serve calls
// to return or ctx to expire. No offline presence is broadcast.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.cancel()
	clients := h.registry.Drain()
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.logger.Info().Int("connections", len(clients)).Msg("hub stopped")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcaster returns the hub's broadcaster.
func (h *Hub) Broadcaster() *Broadcaster { return h.broadcaster }

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Authorizer returns the hub's participant authorizer.
func (h *Hub) Authorizer() *auth.ParticipantAuthorizer { return h.authz }

// LastSeen returns the store recording offline transitions.
func (h *Hub) LastSeen() lastseen.Store { return h.lastSeen }

// Metrics returns the hub's collectors.
func (h *Hub) Metrics() *metrics.Collectors { return h.metrics }
