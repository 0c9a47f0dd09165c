package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chat/src/hub"
	"github.com/orchestra-mcp/chat/src/types"
)

// Service is the API other subsystems use to notify connected users after
// they have persisted state. It never persists anything itself.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
	now    func() time.Time
}

// Presence describes whether a user is reachable and when they were last seen.
type Presence struct {
	UserID      string             `json:"userId"`
	Online      bool               `json:"online"`
	Connections []types.ClientInfo `json:"connections,omitempty"`
	LastSeen    *time.Time         `json:"lastSeen,omitempty"`
}

// New creates a service backed by the given hub.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{
		hub:    h,
		logger: logger.With().Str("component", "chat-service").Logger(),
		now:    time.Now,
	}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// NotifyUser delivers an event to every live connection of one user.
// Server event types are refused. An event naming a conversation is only
// delivered if the user is one of its participants.
func (s *Service) NotifyUser(ctx context.Context, userID string, ev types.ServerEvent) (hub.Report, error) {
	if types.IsServerEventType(ev.Type) {
		return hub.Report{}, fmt.Errorf("%w: %s", types.ErrReservedEvent, ev.Type)
	}
	if ev.ConversationID != "" {
		participants, err := s.participants(ctx, ev.ConversationID)
		if err != nil {
			return hub.Report{}, err
		}
		if !slices.Contains(participants, userID) {
			s.logger.Warn().
				Str("user_id", userID).
				Str("conversation_id", ev.ConversationID).
				Str("event", ev.Type).
				Msg("notification dropped")
			return hub.Report{}, fmt.Errorf("%w: %s in %s", types.ErrNotParticipant, userID, ev.ConversationID)
		}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	return s.hub.Broadcaster().Broadcast([]string{userID}, ev), nil
}

// BroadcastNewMessage delivers a persisted message to every participant of
// its conversation, the sender's other connections included.
func (s *Service) BroadcastNewMessage(ctx context.Context, conversationID string, payload map[string]any) (hub.Report, error) {
	participants, err := s.participants(ctx, conversationID)
	if err != nil {
		return hub.Report{}, err
	}
	report := s.hub.Broadcaster().Broadcast(participants, types.NewMessage(conversationID, payload, s.now()))
	s.logger.Debug().
		Str("conversation_id", conversationID).
		Int("delivered", report.Delivered).
		Int("offline", len(report.Offline)).
		Msg("new message broadcast")
	return report, nil
}

// BroadcastMessageRead delivers a read receipt to every participant,
// including the reader.
func (s *Service) BroadcastMessageRead(ctx context.Context, conversationID string, messageIDs []string, readerID string) (hub.Report, error) {
	if strings.TrimSpace(readerID) == "" {
		return hub.Report{}, types.ErrMissingReader
	}
	participants, err := s.participants(ctx, conversationID)
	if err != nil {
		return hub.Report{}, err
	}
	ev := types.MessageRead(conversationID, messageIDs, readerID, s.now())
	report := s.hub.Broadcaster().Broadcast(participants, ev)
	s.logger.Debug().
		Str("conversation_id", conversationID).
		Str("reader_id", readerID).
		Int("messages", len(messageIDs)).
		Int("delivered", report.Delivered).
		Msg("read receipt broadcast")
	return report, nil
}

// IsUserConnected reports whether the user has at least one open connection.
func (s *Service) IsUserConnected(userID string) bool {
	return s.hub.IsConnected(userID)
}

// ListConnectedUserIDs returns the identities of all online users.
func (s *Service) ListConnectedUserIDs() []string {
	return s.hub.ConnectedUserIDs()
}

// GetPresence returns a user's live connections and last-seen time.
func (s *Service) GetPresence(ctx context.Context, userID string) (Presence, error) {
	p := Presence{
		UserID:      userID,
		Online:      s.hub.IsConnected(userID),
		Connections: s.hub.ClientInfos(userID),
	}
	if p.Online {
		now := s.now().UTC()
		p.LastSeen = &now
		return p, nil
	}
	seen, ok, err := s.hub.LastSeen().Get(ctx, userID)
	if err != nil {
		return Presence{}, fmt.Errorf("last-seen %s: %w", userID, err)
	}
	if ok {
		p.LastSeen = &seen
	}
	return p, nil
}

// Stats returns connection and user counts.
func (s *Service) Stats() types.Stats {
	return s.hub.Stats()
}

func (s *Service) participants(ctx context.Context, conversationID string) ([]string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, types.ErrMissingConversationID
	}
	participants, err := s.hub.Authorizer().Participants(ctx, conversationID)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("broadcast aborted")
		return nil, err
	}
	return participants, nil
}
