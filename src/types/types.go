package types

import (
	"context"
	"time"
)

// PublicProfile is the restricted view of a user that may be shared with
// other connected users. It never carries credentials or internal fields.
type PublicProfile struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// UserRecord is the canonical user as held by the user directory.
type UserRecord struct {
	ID           string
	Name         string
	Email        string
	Role         string
	PasswordHash string
}

// Profile strips a user record down to its public profile.
func (u UserRecord) Profile(roles []string) PublicProfile {
	return PublicProfile{
		ID:    u.ID,
		Name:  u.Name,
		Role:  u.Role,
		Roles: roles,
	}
}

// Conversation is the participant view of a stored conversation.
type Conversation struct {
	ID           string
	Participants []string
}

// HasParticipant reports whether userID is a participant.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// UserDirectory resolves user identities to canonical records.
type UserDirectory interface {
	FindUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// ConversationStore resolves conversation participant lists.
type ConversationStore interface {
	FindConversationByID(ctx context.Context, conversationID string) (Conversation, error)
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	// ReadFrame blocks until the next data frame arrives.
	ReadFrame() ([]byte, error)
	// WriteFrame writes one text frame, bounded by the conn's write deadline.
	WriteFrame(data []byte) error
	// Ping writes a transport-level ping control frame.
	Ping() error
	Close() error
}

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Stats summarises the live connection table.
type Stats struct {
	Connections int `json:"connections"`
	OnlineUsers int `json:"online_users"`
}
