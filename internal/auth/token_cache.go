package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// M2MTokenKey prefixes cached machine tokens; the client id completes it.
	M2MTokenKey = "m2m_token:"
	// TokenExpiryBuffer is how long before expiry a token counts as stale.
	TokenExpiryBuffer = 60 * time.Second
)

type TokenCache struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (tc *TokenCache) IsValid(now time.Time) bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return now.Add(TokenExpiryBuffer).Before(tc.ExpiresAt)
}

// RedisTokenCache shares machine tokens between replicas.
type RedisTokenCache struct {
	Client *redis.Client
	Now    func() time.Time
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{Client: client, Now: time.Now}
}

// GetToken returns nil without error when nothing usable is cached.
func (c *RedisTokenCache) GetToken(ctx context.Context, clientID string) (*TokenCache, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	tokenJSON, err := c.Client.Get(ctx, M2MTokenKey+clientID).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	var tokenCache TokenCache
	if err := json.Unmarshal([]byte(tokenJSON), &tokenCache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token cache: %w", err)
	}
	if !tokenCache.IsValid(c.Now()) {
		return nil, nil
	}
	return &tokenCache, nil
}

func (c *RedisTokenCache) SetToken(ctx context.Context, clientID, token string, expiresIn int) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	tokenJSON, err := json.Marshal(&TokenCache{
		Token:     token,
		ExpiresAt: c.Now().Add(time.Duration(expiresIn) * time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}

	// Redis drops the key a little after the token itself expires.
	ttl := time.Duration(expiresIn)*time.Second + TokenExpiryBuffer
	if err := c.Client.Set(ctx, M2MTokenKey+clientID, tokenJSON, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token in Redis: %w", err)
	}
	return nil
}
