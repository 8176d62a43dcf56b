package access

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nyumbani/nyumbani-access/internal/catalog"
)

const (
	cacheVersionKey = "access:version"
	bumpChannel     = "access.bump"
)

// Cache holds resolved effective sets in Redis behind a global version.
// Any mutation bumps the version, orphaning every cached set at once, and
// publishes the new version so other instances converge. The resolver
// itself stays stateless; staleness here is bounded by the TTL.
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

// FetchEffective loads a cached effective set or populates it via loader.
func (c *Cache) FetchEffective(ctx context.Context, userID uuid.UUID, loader func(context.Context) ([]catalog.Permission, error)) ([]catalog.Permission, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.effectiveKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var perms []catalog.Permission
		if jsonErr := json.Unmarshal(payload, &perms); jsonErr == nil {
			return perms, nil
		}
		// Unreadable entry: fall through and rebuild.
	} else if err != redis.Nil {
		return nil, err
	}
	perms, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// Bump invalidates every cached set by incrementing the global version and
// publishing the new value.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bumps published by other
// instances and applies them locally.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
					continue
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

// effectiveKey scopes entries by user, catalog revision and cache version so
// catalog deploys and mutations both invalidate implicitly.
func (c *Cache) effectiveKey(ctx context.Context, userID uuid.UUID) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		"access", "effective",
		userID.String(),
		strconv.Itoa(catalog.Version),
		strconv.FormatInt(ver, 10),
	}, ":"), nil
}
