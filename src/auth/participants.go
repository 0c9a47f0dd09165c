package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orchestra-mcp/chat/src/types"
)

// ParticipantAuthorizer gates conversation-scoped events on membership.
// Every call goes to the conversation store; nothing is cached.
type ParticipantAuthorizer struct {
	store   types.ConversationStore
	timeout time.Duration
}

// NewParticipantAuthorizer creates an authorizer. A zero timeout leaves
// lookups bounded only by the caller's context.
func NewParticipantAuthorizer(store types.ConversationStore, timeout time.Duration) *ParticipantAuthorizer {
	return &ParticipantAuthorizer{store: store, timeout: timeout}
}

// Participants returns every participant of a conversation.
func (a *ParticipantAuthorizer) Participants(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := a.lookup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(conv.Participants))
	copy(out, conv.Participants)
	return out, nil
}

// Recipients confirms that userID participates in the conversation and
// returns the other participants.
func (a *ParticipantAuthorizer) Recipients(ctx context.Context, conversationID, userID string) ([]string, error) {
	conv, err := a.lookup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: %s in %s", types.ErrNotParticipant, userID, conversationID)
	}
	out := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *ParticipantAuthorizer) lookup(ctx context.Context, conversationID string) (types.Conversation, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	conv, err := a.store.FindConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, types.ErrConversationNotFound) {
			return types.Conversation{}, err
		}
		return types.Conversation{}, fmt.Errorf("lookup conversation %s: %w", conversationID, err)
	}
	return conv, nil
}
