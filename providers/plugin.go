package providers

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chat/config"
	"github.com/orchestra-mcp/chat/src/auth"
	"github.com/orchestra-mcp/chat/src/hub"
	"github.com/orchestra-mcp/chat/src/lastseen"
	"github.com/orchestra-mcp/chat/src/metrics"
	"github.com/orchestra-mcp/chat/src/service"
	"github.com/orchestra-mcp/chat/src/types"
)

// ChatPlugin wires the chat presence manager into an HTTP server: the
// websocket endpoint, the internal API and the metrics endpoint.
type ChatPlugin struct {
	active   bool
	cfg      *config.SocketConfig
	logger   zerolog.Logger
	users    types.UserDirectory
	convs    types.ConversationStore
	upgrader websocket.FastHTTPUpgrader
	slots    atomic.Int64

	hub      *hub.Hub
	service  *service.Service
	auth     *auth.Authenticator
	lastSeen lastseen.Store
	metrics  *metrics.Collectors
}

// NewChatPlugin creates a chat plugin over the CRM's user directory and
// conversation store.
func NewChatPlugin(cfg *config.SocketConfig, users types.UserDirectory, convs types.ConversationStore, logger zerolog.Logger) *ChatPlugin {
	return &ChatPlugin{
		cfg:    cfg,
		logger: logger,
		users:  users,
		convs:  convs,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}
}

func (p *ChatPlugin) ID() string      { return "orchestra/chat" }
func (p *ChatPlugin) Name() string    { return "Chat Presence" }
func (p *ChatPlugin) Version() string { return "0.1.0" }
func (p *ChatPlugin) IsActive() bool  { return p.active }

// Activate builds the hub, service and authenticator.
func (p *ChatPlugin) Activate(ctx context.Context) error {
	if p.active {
		return fmt.Errorf("%s already active", p.ID())
	}
	p.metrics = metrics.New()
	p.lastSeen = lastseen.Open(ctx, p.cfg.Redis, p.logger)
	p.hub = hub.New(hub.Deps{
		Conversations: p.convs,
		LastSeen:      p.lastSeen,
		Metrics:       p.metrics,
	}, hub.Options{
		SendBufferSize: p.cfg.SendBufferSize,
		PingInterval:   p.cfg.PingInterval,
		LookupTimeout:  p.cfg.LookupTimeout,
	}, p.logger)
	p.service = service.New(p.hub, p.logger)
	p.auth = auth.NewAuthenticator(auth.NewJWTVerifier(p.cfg.JWTSecret), p.users, p.logger)

	p.active = true
	p.logger.Info().Str("plugin", p.ID()).Str("path", p.cfg.Path).Msg("chat plugin activated")
	return nil
}

// Deactivate closes every connection and releases the last-seen store.
func (p *ChatPlugin) Deactivate(ctx context.Context) error {
	if !p.active {
		return nil
	}
	p.active = false
	if err := p.hub.Shutdown(ctx); err != nil {
		p.logger.Error().Err(err).Msg("hub shutdown incomplete")
	}
	if closer, ok := p.lastSeen.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error().Err(err).Msg("last-seen store close error")
		}
	}
	return nil
}

// reserveSlot claims one of MaxConnections before an upgrade. Every
// successful reservation must be paired with releaseSlot.
func (p *ChatPlugin) reserveSlot() bool {
	if p.cfg.MaxConnections <= 0 {
		return true
	}
	if p.slots.Add(1) > int64(p.cfg.MaxConnections) {
		p.slots.Add(-1)
		return false
	}
	return true
}

func (p *ChatPlugin) releaseSlot() {
	if p.cfg.MaxConnections > 0 {
		p.slots.Add(-1)
	}
}

// Service exposes the outward chat API for other subsystems.
func (p *ChatPlugin) Service() *service.Service { return p.service }

// Metrics exposes the plugin's collectors.
func (p *ChatPlugin) Metrics() *metrics.Collectors { return p.metrics }
