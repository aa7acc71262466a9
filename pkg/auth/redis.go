package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisEntitlements checks entitlement existence against Redis. The
// billing service maintains one key per entitled user,
// "entitlement:<user_id>"; the gateway only tests for its presence.
type RedisEntitlements struct {
	client *redis.Client
}

// NewRedisEntitlements creates an entitlement store backed by the given
// Redis client.
func NewRedisEntitlements(client *redis.Client) *RedisEntitlements {
	return &RedisEntitlements{client: client}
}

// HasActiveEntitlement reports whether the user's entitlement key exists.
func (r *RedisEntitlements) HasActiveEntitlement(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, "entitlement:"+userID).Result()
	if err != nil {
		return false, fmt.Errorf("auth: redis exists: %w", err)
	}
	return n > 0, nil
}
