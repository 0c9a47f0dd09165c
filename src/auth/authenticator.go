package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chat/src/types"
)

// Authenticator admits or rejects a connection attempt. It is the only
// place unauthenticated traffic is handled.
type Authenticator struct {
	verifier  TokenVerifier
	directory types.UserDirectory
	logger    zerolog.Logger
}

// NewAuthenticator creates an authenticator over a token verifier and user directory.
func NewAuthenticator(verifier TokenVerifier, directory types.UserDirectory, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		verifier:  verifier,
		directory: directory,
		logger:    logger.With().Str("component", "authenticator").Logger(),
	}
}

// Authenticate resolves a connection token to the public profile of its user.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (types.PublicProfile, error) {
	claims, err := a.verifier.Verify(token)
	if err != nil {
		a.logger.Info().Err(err).Msg("connection rejected")
		return types.PublicProfile{}, err
	}

	user, err := a.directory.FindUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, types.ErrUserNotFound) {
			a.logger.Info().Str("user_id", claims.UserID).Msg("connection rejected: user no longer exists")
			return types.PublicProfile{}, err
		}
		a.logger.Error().Err(err).Str("user_id", claims.UserID).Msg("user directory lookup failed")
		return types.PublicProfile{}, fmt.Errorf("lookup user %s: %w", claims.UserID, err)
	}
	return user.Profile(claims.Roles), nil
}
