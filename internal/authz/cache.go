package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "authz:perms:version"

// Cache stores effective-permission sets in Redis behind a global version
// counter. Mutations bump the version, orphaning every cached set at once;
// orphaned keys expire via TTL. A nil cache degrades to repository reads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates all cached permission sets.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) key(ctx context.Context, userID int64) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("authz:perms:%d:%d", userID, ver), nil
}

// FetchPermissions loads the user's cached token list or populates it via
// the loader.
func (c *Cache) FetchPermissions(ctx context.Context, userID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var tokens []string
		if err := json.Unmarshal(raw, &tokens); err == nil {
			return tokens, nil
		}
		// Unreadable entry: fall through and overwrite.
	} else if err != redis.Nil {
		return nil, err
	}
	tokens, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []string{}
	}
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}
