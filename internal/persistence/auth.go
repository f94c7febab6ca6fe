package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by TokenVerifier.Verify for a token that is
// malformed, expired, or signed with the wrong key or method.
var ErrInvalidToken = errors.New("persistence: invalid token")

// StoreClaims are the claims a remote store backend expects on its bearer
// tokens: which subject is acting, and which workflows it may touch. An
// empty Workflows list grants access to every workflow.
type StoreClaims struct {
	Workflows []string `json:"workflows,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer tokens for store backends that sit behind
// a network boundary. Local backends (MemoryStore, PostgresStore) never
// consult it; it exists so a remote Store implementation can gate access
// per workflow without owning any HTTP plumbing itself.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier builds a verifier around a shared HMAC secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates tokenString, returning its claims. Only
// HMAC-signed tokens are accepted; any other signing method is rejected
// rather than silently verified against the wrong key type.
func (v *TokenVerifier) Verify(tokenString string) (*StoreClaims, error) {
	claims := &StoreClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AllowsWorkflow reports whether the claims grant access to workflowID.
func (c *StoreClaims) AllowsWorkflow(workflowID string) bool {
	if len(c.Workflows) == 0 {
		return true
	}
	for _, id := range c.Workflows {
		if id == workflowID {
			return true
		}
	}
	return false
}

// IssueToken mints a token for the given subject and workflow grants,
// expiring after ttl. It is the counterpart to Verify, used by whatever
// operator tooling provisions access to a remote store.
func (v *TokenVerifier) IssueToken(subject string, workflows []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StoreClaims{
		Workflows: workflows,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
