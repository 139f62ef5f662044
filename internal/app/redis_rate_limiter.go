package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var publicRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisPublicRateLimiter implements distributed rate limiting for the
// unauthenticated endpoints (tracking and conversion) using Redis. A nil
// limiter or client degrades to no limiting, so Redis is never a hard
// dependency of the public surface.
type RedisPublicRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisPublicRateLimiter(client redis.UniversalClient, prefix string) *RedisPublicRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "hawala:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisPublicRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (r *RedisPublicRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfter int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, normalizedScope, normalizedSubject)
	rawResult, err := publicRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	currentCount, ttlMs, err := decodeLimiterReply(rawResult)
	if err != nil {
		return int(currentCount), 0, err
	}

	return int(currentCount), retryAfterSeconds(ttlMs, windowMs), nil
}

// decodeLimiterReply unpacks the {count, ttl} pair the limiter script returns.
func decodeLimiterReply(raw interface{}) (count int64, ttlMs int64, err error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}

	count, ok = values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	ttlMs, ok = values[1].(int64)
	if !ok {
		return count, 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	return count, ttlMs, nil
}

// retryAfterSeconds converts the key's remaining TTL to the whole seconds a
// throttled client should wait. PTTL reports -1 or -2 for keys without an
// expiry, in which case the full window is the honest answer; a sub-second
// remainder still rounds up so the header never says zero.
func retryAfterSeconds(ttlMs, windowMs int64) int {
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter
}
