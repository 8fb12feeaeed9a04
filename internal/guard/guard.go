// Package guard keeps short-lived shared state in Redis: per-phone
// verification cooldowns and revoked staff token ids.
package guard

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	cooldownPrefix = "queue:verify-cooldown:"
	revokedPrefix  = "queue:revoked-token:"
)

type Guard struct {
	client   *redis.Client
	cooldown time.Duration
}

func New(client *redis.Client, cooldown time.Duration) *Guard {
	return &Guard{client: client, cooldown: cooldown}
}

// AcquireCooldown claims the verification window for phone. When another
// request already holds it, ok is false and retryAfter is the time left.
func (g *Guard) AcquireCooldown(ctx context.Context, phone string) (bool, time.Duration, error) {
	if g.cooldown <= 0 {
		return true, 0, nil
	}
	key := cooldownPrefix + phone
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.cooldown).Result()
	if err != nil {
		return false, 0, err
	}
	if ok {
		return true, 0, nil
	}
	ttl, err := g.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		ttl = g.cooldown
	}
	return false, ttl, nil
}

// ReleaseCooldown drops the window for phone so a failed request does not
// lock the caller out.
func (g *Guard) ReleaseCooldown(ctx context.Context, phone string) error {
	return g.client.Del(ctx, cooldownPrefix+phone).Err()
}

// Revoke blocks tokenID until it would have expired anyway.
func (g *Guard) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return g.client.Set(ctx, revokedPrefix+tokenID, 1, ttl).Err()
}

func (g *Guard) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := g.client.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *Guard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}
