package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	domainKeyPrefix = "tenant:domain:"

	// DomainTTL is the TTL for a resolved custom domain.
	DomainTTL = 10 * time.Minute
	// DomainNegativeTTL is the TTL for a custom domain with no tenant.
	DomainNegativeTTL = time.Minute

	// negativeMarker is stored for hosts known to have no tenant.
	negativeMarker = "-"
)

// GetDomainTenant returns the tenant cached for a custom domain.
// found is false for a negative entry. Returns ErrCacheMiss if nothing is cached.
func (c *Cache) GetDomainTenant(ctx context.Context, host string) (tenantID string, found bool, err error) {
	val, err := c.client.Get(ctx, domainKey(host)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, ErrCacheMiss
		}
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	if val == negativeMarker {
		return "", false, nil
	}
	return val, true, nil
}

// SetDomainTenant caches the tenant owning a custom domain.
func (c *Cache) SetDomainTenant(ctx context.Context, host, tenantID string) error {
	if err := c.client.Set(ctx, domainKey(host), tenantID, DomainTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache domain: %w", err)
	}
	return nil
}

// SetDomainMissing records that no tenant owns host.
func (c *Cache) SetDomainMissing(ctx context.Context, host string) error {
	if err := c.client.Set(ctx, domainKey(host), negativeMarker, DomainNegativeTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}

// DeleteDomain drops any cached entry for host.
func (c *Cache) DeleteDomain(ctx context.Context, host string) error {
	if err := c.client.Del(ctx, domainKey(host)).Err(); err != nil {
		return fmt.Errorf("failed to delete domain from cache: %w", err)
	}
	return nil
}

func domainKey(host string) string {
	return domainKeyPrefix + strings.ToLower(host)
}
