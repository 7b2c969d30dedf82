package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist holds access tokens invalidated by logout until their natural
// expiry.
type Blacklist struct {
	client *redis.Client
}

func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client}
}

func (s *Blacklist) InvalidateToken(ctx context.Context, token string, expiration time.Duration) error {
	return s.client.Set(ctx, token, "invalidated", expiration).Err()
}

func (s *Blacklist) IsTokenInvalidated(ctx context.Context, token string) (bool, error) {
	result, err := s.client.Get(ctx, token).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return result == "invalidated", nil
}
