// Package auth validates bearer credentials and entitlements before any
// upstream work happens. The gateway consumes only the yes/no decision and
// the resolved user id; token issuance lives elsewhere.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Authorization failures.
var (
	// ErrUnauthenticated covers missing, malformed, invalid and expired
	// credentials.
	ErrUnauthenticated = errors.New("auth: could not validate credentials")
	// ErrForbidden means the identity is valid but has no active
	// entitlement.
	ErrForbidden = errors.New("auth: no active subscription")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
}

// EntitlementStore answers whether a user currently holds an active
// entitlement.
type EntitlementStore interface {
	HasActiveEntitlement(ctx context.Context, userID string) (bool, error)
}

// Gate authenticates bearer JWTs (HS256, "user_id" claim) and checks the
// entitlement store. It must run before any provider call so that
// unauthorized requests never consume upstream quota.
type Gate struct {
	secret       []byte
	entitlements EntitlementStore
}

// NewGate creates a Gate with the given signing secret and entitlement
// store.
func NewGate(secret []byte, entitlements EntitlementStore) *Gate {
	return &Gate{secret: secret, entitlements: entitlements}
}

// Authenticate resolves the Authorization header value to an identity.
// Returns ErrUnauthenticated for credential problems and ErrForbidden for
// a valid identity without an active entitlement.
func (g *Gate) Authenticate(ctx context.Context, authorization string) (Identity, error) {
	tokenStr := bearerToken(authorization)
	if tokenStr == "" {
		return Identity{}, ErrUnauthenticated
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Identity{}, ErrUnauthenticated
	}

	ok, err := g.entitlements.HasActiveEntitlement(ctx, userID)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: entitlement check: %w", err)
	}
	if !ok {
		return Identity{}, ErrForbidden
	}

	return Identity{UserID: userID}, nil
}

func bearerToken(authorization string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
}
