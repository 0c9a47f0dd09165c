package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Client event tags.
const (
	EventPing              = "ping"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTyping            = "typing"
	EventStopTyping        = "stop_typing"
)

// Server event tags.
const (
	EventPong              = "pong"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventNewMessage        = "new_message"
	EventMessageRead       = "message_read"
)

// ClientEvent is one decoded inbound frame.
type ClientEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ConversationScoped reports whether the event must name a conversation.
func (e ClientEvent) ConversationScoped() bool {
	switch e.Type {
	case EventJoinConversation, EventLeaveConversation, EventTyping, EventStopTyping:
		return true
	}
	return false
}

// DecodeClientEvent parses an inbound frame. Unknown tags decode
// successfully; the router decides what to do with them.
func DecodeClientEvent(frame []byte) (ClientEvent, error) {
	var ev ClientEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return ClientEvent{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	ev.Type = strings.TrimSpace(ev.Type)
	ev.ConversationID = strings.TrimSpace(ev.ConversationID)
	if ev.Type == "" {
		return ClientEvent{}, fmt.Errorf("%w: type is required", ErrMalformedFrame)
	}
	if ev.ConversationScoped() && ev.ConversationID == "" {
		return ClientEvent{}, fmt.Errorf("%w: %s requires conversationId", ErrMalformedFrame, ev.Type)
	}
	return ev, nil
}

// IsServerEventType reports whether tag is one the server emits itself.
// Those events are only built by the server, never relayed on request.
func IsServerEventType(tag string) bool {
	switch strings.TrimSpace(tag) {
	case EventPong, EventUserOnline, EventUserOffline, EventUserTyping,
		EventUserStoppedTyping, EventNewMessage, EventMessageRead:
		return true
	}
	return false
}

// ServerEvent is one outbound frame.
type ServerEvent struct {
	Type           string         `json:"type"`
	Data           map[string]any `json:"data,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Encode serializes the event, stamping it if no timestamp is set.
func (e ServerEvent) Encode() ([]byte, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	return json.Marshal(e)
}

// Pong answers a client ping.
func Pong(now time.Time) ServerEvent {
	return ServerEvent{Type: EventPong, Timestamp: now}
}

// UserOnline announces a user's first connection.
func UserOnline(user PublicProfile, lastSeen time.Time) ServerEvent {
	return presenceEvent(EventUserOnline, user, lastSeen)
}

// UserOffline announces that a user's last connection closed.
func UserOffline(user PublicProfile, lastSeen time.Time) ServerEvent {
	return presenceEvent(EventUserOffline, user, lastSeen)
}

func presenceEvent(kind string, user PublicProfile, lastSeen time.Time) ServerEvent {
	return ServerEvent{
		Type: kind,
		Data: map[string]any{
			"userId":   user.ID,
			"user":     user,
			"lastSeen": lastSeen.UTC(),
		},
		Timestamp: lastSeen,
	}
}

// UserTyping relays a typing indicator.
func UserTyping(userID, conversationID string, now time.Time) ServerEvent {
	return typingEvent(EventUserTyping, userID, conversationID, now)
}

// UserStoppedTyping relays the end of a typing indicator.
func UserStoppedTyping(userID, conversationID string, now time.Time) ServerEvent {
	return typingEvent(EventUserStoppedTyping, userID, conversationID, now)
}

func typingEvent(kind, userID, conversationID string, now time.Time) ServerEvent {
	return ServerEvent{
		Type: kind,
		Data: map[string]any{
			"userId":         userID,
			"conversationId": conversationID,
		},
		ConversationID: conversationID,
		Timestamp:      now,
	}
}

// NewMessage carries a persisted message to conversation participants.
func NewMessage(conversationID string, payload map[string]any, now time.Time) ServerEvent {
	return ServerEvent{
		Type:           EventNewMessage,
		Data:           payload,
		ConversationID: conversationID,
		Timestamp:      now,
	}
}

// MessageRead carries a read receipt to conversation participants.
func MessageRead(conversationID string, messageIDs []string, readBy string, readAt time.Time) ServerEvent {
	return ServerEvent{
		Type: EventMessageRead,
		Data: map[string]any{
			"messageIds": messageIDs,
			"readBy":     readBy,
			"readAt":     readAt.UTC(),
		},
		ConversationID: conversationID,
		Timestamp:      readAt,
	}
}
