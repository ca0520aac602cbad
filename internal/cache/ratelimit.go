package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket scopes separate budgets for the same client.
type Bucket string

// Rate limit buckets.
const (
	BucketAPI     Bucket = "api"
	BucketWebhook Bucket = "webhook"
)

const (
	rateLimitPrefix = "ratelimit:"
	// Idle buckets expire; a full bucket is the same as no bucket.
	rateLimitIdleTTL = 30 * time.Second
)

// RateLimitResult is the outcome of one token bucket draw.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Token bucket in milliseconds. Returns {allowed, retry_after_ms, remaining}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now

if now > ts then
	tokens = math.min(burst, tokens + (now - ts) * rate / 1000)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', key, ttl)

return {allowed, wait, math.floor(tokens)}
`)

// Allow draws one token from the client's bucket. Clients are keyed by a
// hash of their address so raw IPs never reach Redis.
func (c *Cache) Allow(ctx context.Context, bucket Bucket, client string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}

	key := rateLimitPrefix + string(bucket) + ":" + hashIP(client)
	res, err := tokenBucketScript.Run(ctx, c.client, []string{key},
		ratePerSecond, burst, time.Now().UnixMilli(), rateLimitIdleTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", bucket, err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", bucket, res)
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
	}, nil
}

// CheckIPRateLimit draws from the interactive API bucket.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.Allow(ctx, BucketAPI, ip, ratePerSecond, burst)
}

// CheckWebhookRateLimit draws from the webhook bucket, so provider retry
// bursts do not consume the interactive budget.
func (c *Cache) CheckWebhookRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.Allow(ctx, BucketWebhook, ip, ratePerSecond, burst)
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
