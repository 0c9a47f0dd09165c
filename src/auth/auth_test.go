package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-mcp/chat/src/store"
	"github.com/orchestra-mcp/chat/src/types"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestJWTVerifierValid(t *testing.T) {
	claims := validClaims("u-1")
	claims["roles"] = []string{"agent", "admin"}
	token := signToken(t, testSecret, claims)

	got, err := NewJWTVerifier(testSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, []string{"agent", "admin"}, got.Roles)
	assert.False(t, got.ExpiresAt.IsZero())
}

func TestJWTVerifierSubjectFallback(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"userId": "u-legacy",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	got, err := NewJWTVerifier(testSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-legacy", got.UserID)
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not-a-token",
		"wrong secret":  signToken(t, "other", validClaims("u-1")),
		"expired":       signToken(t, testSecret, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no expiry":     signToken(t, testSecret, jwt.MapClaims{"sub": "u-1"}),
		"no subject":    signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
		"wrong alg":     mustSignNone(t),
		"padded spaces": "   ",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
			assert.True(t, types.IsAuthFailure(err), "got %v", err)
		})
	}
}

func mustSignNone(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("u-1")).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return token
}

func TestJWTVerifierUnconfigured(t *testing.T) {
	_, err := NewJWTVerifier("").Verify(signToken(t, testSecret, validClaims("u-1")))
	require.Error(t, err)
}

func TestDecodeRoles(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"array", `["agent","admin"]`, []string{"agent", "admin"}},
		{"encoded array", `"[\"agent\",\"broker\"]"`, []string{"agent", "broker"}},
		{"comma string", `"agent, admin"`, []string{"agent", "admin"}},
		{"single string", `"client"`, []string{"client"}},
		{"broken encoded array", `"[\"agent\""`, nil},
		{"number", `42`, nil},
		{"object", `{"role":"agent"}`, nil},
		{"null", `null`, nil},
		{"empty string", `""`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecodeRoles(json.RawMessage(tc.raw)))
		})
	}
	assert.Nil(t, DecodeRoles(nil))
}

func TestAuthenticator(t *testing.T) {
	users := store.NewMemoryStore()
	users.PutUser(types.UserRecord{
		ID:           "u-1",
		Name:         "Alice Agent",
		Email:        "alice@example.com",
		Role:         "agent",
		PasswordHash: "secret-hash",
	})
	a := NewAuthenticator(NewJWTVerifier(testSecret), users, zerolog.Nop())

	claims := validClaims("u-1")
	claims["roles"] = `["agent"]`
	profile, err := a.Authenticate(context.Background(), signToken(t, testSecret, claims))
	require.NoError(t, err)
	assert.Equal(t, types.PublicProfile{ID: "u-1", Name: "Alice Agent", Role: "agent", Roles: []string{"agent"}}, profile)

	encoded, err := json.Marshal(profile)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "alice@example.com")
	assert.NotContains(t, string(encoded), "secret-hash")
}

func TestAuthenticatorUndecodableRolesAdmits(t *testing.T) {
	users := store.NewMemoryStore()
	users.PutUser(types.UserRecord{ID: "u-1", Name: "A"})
	a := NewAuthenticator(NewJWTVerifier(testSecret), users, zerolog.Nop())

	claims := validClaims("u-1")
	claims["roles"] = "[not json"
	profile, err := a.Authenticate(context.Background(), signToken(t, testSecret, claims))
	require.NoError(t, err)
	assert.Empty(t, profile.Roles)
}

func TestAuthenticatorUnknownUser(t *testing.T) {
	a := NewAuthenticator(NewJWTVerifier(testSecret), store.NewMemoryStore(), zerolog.Nop())
	_, err := a.Authenticate(context.Background(), signToken(t, testSecret, validClaims("u-gone")))
	assert.ErrorIs(t, err, types.ErrUserNotFound)
}

type failingDirectory struct{}

func (failingDirectory) FindUserByID(context.Context, string) (types.UserRecord, error) {
	return types.UserRecord{}, errors.New("db down")
}

func TestAuthenticatorDirectoryFailure(t *testing.T) {
	a := NewAuthenticator(NewJWTVerifier(testSecret), failingDirectory{}, zerolog.Nop())
	_, err := a.Authenticate(context.Background(), signToken(t, testSecret, validClaims("u-1")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestParticipantAuthorizer(t *testing.T) {
	convs := store.NewMemoryStore()
	convs.PutConversation("c-1", "u-a", "u-b", "u-c")
	authz := NewParticipantAuthorizer(convs, time.Second)
	ctx := context.Background()

	recipients, err := authz.Recipients(ctx, "c-1", "u-b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-a", "u-c"}, recipients)

	all, err := authz.Participants(ctx, "c-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-a", "u-b", "u-c"}, all)

	_, err = authz.Recipients(ctx, "c-1", "u-stranger")
	assert.ErrorIs(t, err, types.ErrNotParticipant)

	_, err = authz.Recipients(ctx, "c-missing", "u-a")
	assert.ErrorIs(t, err, types.ErrConversationNotFound)
}

func TestParticipantAuthorizerSeesMembershipChanges(t *testing.T) {
	convs := store.NewMemoryStore()
	convs.PutConversation("c-1", "u-a", "u-b")
	authz := NewParticipantAuthorizer(convs, 0)

	_, err := authz.Recipients(context.Background(), "c-1", "u-c")
	require.ErrorIs(t, err, types.ErrNotParticipant)

	convs.PutConversation("c-1", "u-a", "u-b", "u-c")
	recipients, err := authz.Recipients(context.Background(), "c-1", "u-c")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-a", "u-b"}, recipients)
}
