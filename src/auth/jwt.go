package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/orchestra-mcp/chat/src/types"
)

// Claims captures the verified claims of a connection token.
type Claims struct {
	UserID    string
	Roles     []string
	ExpiresAt time.Time
}

// TokenVerifier verifies a connection token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string          `json:"userId,omitempty"`
	ID     string          `json:"id,omitempty"`
	Roles  json.RawMessage `json:"roles,omitempty"`
}

// JWTVerifier verifies HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for the given secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

// Verify checks signature and expiry and extracts the subject and roles.
func (v *JWTVerifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, types.ErrMissingToken
	}
	if len(v.secret) == 0 {
		return Claims{}, errors.New("token verifier is not configured")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	subject := firstNonEmpty(parsed.Subject, parsed.UserID, parsed.ID)
	if subject == "" {
		return Claims{}, fmt.Errorf("%w: subject is required", types.ErrInvalidToken)
	}
	return Claims{
		UserID:    subject,
		Roles:     DecodeRoles(parsed.Roles),
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}, nil
}

// DecodeRoles reads a roles claim that may be a JSON array, a string
// holding an encoded JSON array, or a comma separated string. Anything
// that does not decode yields no roles.
func DecodeRoles(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var roles []string
	if err := json.Unmarshal(raw, &roles); err == nil {
		return cleanRoles(roles)
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "[") {
		if err := json.Unmarshal([]byte(encoded), &roles); err != nil {
			return nil
		}
		return cleanRoles(roles)
	}
	return cleanRoles(strings.Split(encoded, ","))
}

func cleanRoles(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// mapJWTError translates jwt library errors to authentication failures.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: token is expired", types.ErrInvalidToken)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: signature is invalid", types.ErrInvalidToken)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: alg is invalid", types.ErrInvalidToken)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: exp is required", types.ErrInvalidToken)
	}
	return fmt.Errorf("%w: %v", types.ErrInvalidToken, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
