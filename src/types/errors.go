package types

import "errors"

// Authentication failures. Fatal to the connection attempt.
var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
)

// Conversation-scoped failures. The event is dropped, the connection survives.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a conversation participant")
)

// Rejected outward API calls.
var (
	ErrMissingConversationID = errors.New("conversation id is required")
	ErrMissingReader         = errors.New("reader id is required")
	ErrReservedEvent         = errors.New("event type is reserved for the chat server")
)

// ErrMalformedFrame marks an inbound frame that could not be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// Delivery failures for a single connection.
var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// IsAuthFailure reports whether err rejects a connection attempt.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrUserNotFound)
}
