package hub

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chat/src/auth"
	"github.com/orchestra-mcp/chat/src/metrics"
	"github.com/orchestra-mcp/chat/src/types"
)

// Router decodes inbound frames and dispatches them. No failure here
// closes the connection.
type Router struct {
	ctx         context.Context
	authz       *auth.ParticipantAuthorizer
	broadcaster *Broadcaster
	metrics     *metrics.Collectors
	logger      zerolog.Logger
	now         func() time.Time
}

// NewRouter creates a router. ctx bounds conversation lookups and is
// canceled when the hub shuts down.
func NewRouter(ctx context.Context, authz *auth.ParticipantAuthorizer, b *Broadcaster, m *metrics.Collectors, logger zerolog.Logger) *Router {
	return &Router{
		ctx:         ctx,
		authz:       authz,
		broadcaster: b,
		metrics:     m,
		logger:      logger.With().Str("component", "router").Logger(),
		now:         time.Now,
	}
}

// Dispatch handles one inbound frame from c.
func (r *Router) Dispatch(c *Client, frame []byte) {
	ev, err := types.DecodeClientEvent(frame)
	if err != nil {
		r.metrics.MalformedFrames.Inc()
		r.logger.Warn().Err(err).Str("client_id", c.ID).Str("user_id", c.User.ID).Msg("dropping frame")
		return
	}

	switch ev.Type {
	case types.EventPing:
		_ = r.broadcaster.SendTo(c, types.Pong(r.now()))
	case types.EventJoinConversation, types.EventLeaveConversation:
		r.logger.Debug().
			Str("user_id", c.User.ID).
			Str("conversation_id", ev.ConversationID).
			Str("event", ev.Type).
			Msg("conversation membership hint")
	case types.EventTyping:
		r.relayTyping(c, ev, types.UserTyping)
	case types.EventStopTyping:
		r.relayTyping(c, ev, types.UserStoppedTyping)
	default:
		r.logger.Warn().Str("user_id", c.User.ID).Str("event", ev.Type).Msg("unknown event type")
		return
	}
	r.metrics.InboundEvents.WithLabelValues(ev.Type).Inc()
}

func (r *Router) relayTyping(c *Client, ev types.ClientEvent, build func(userID, conversationID string, now time.Time) types.ServerEvent) {
	recipients, err := r.authz.Recipients(r.ctx, ev.ConversationID, c.User.ID)
	if err != nil {
		r.deny(c, ev, err)
		return
	}
	r.broadcaster.Broadcast(recipients, build(c.User.ID, ev.ConversationID, r.now()))
}

func (r *Router) deny(c *Client, ev types.ClientEvent, err error) {
	reason := "lookup_failed"
	switch {
	case errors.Is(err, types.ErrNotParticipant):
		reason = "not_participant"
	case errors.Is(err, types.ErrConversationNotFound):
		reason = "conversation_not_found"
	}
	r.metrics.DeniedEvents.WithLabelValues(reason).Inc()
	r.logger.Warn().
		Err(err).
		Str("user_id", c.User.ID).
		Str("conversation_id", ev.ConversationID).
		Str("event", ev.Type).
		Msg("event dropped")
}
