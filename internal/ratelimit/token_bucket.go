// Package ratelimit throttles uploads and chat messages per client with a
// token bucket. Buckets live in Redis when the API has a Redis connection,
// otherwise in process memory.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Bucket refills at RequestsPerMinute and holds at most BurstSize tokens.
// A zero value disables limiting.
type Bucket struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

func (b Bucket) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

func (b Bucket) perSecond() float64 {
	return float64(b.RequestsPerMinute) / 60
}

// idleTTL is how long untouched bucket state is kept: twice the time to
// refill from empty, within [30s, 1h].
func (b Bucket) idleTTL() time.Duration {
	ttl := 2*time.Duration(float64(b.BurstSize)/b.perSecond()*float64(time.Second)) + 5*time.Second
	switch {
	case ttl < 30*time.Second:
		return 30 * time.Second
	case ttl > time.Hour:
		return time.Hour
	}
	return ttl
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether subject may spend one token from the scope's bucket.
type Limiter interface {
	Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error)
}

// take refills tokens for the time elapsed since last and spends one if it
// can. The Redis script below implements the same rule.
func take(tokens float64, last, now time.Time, b Bucket) (float64, Decision) {
	if now.Before(last) {
		last = now
	}
	rate := b.perSecond()
	tokens = math.Min(float64(b.BurstSize), tokens+now.Sub(last).Seconds()*rate)
	if tokens >= 1 {
		tokens--
		return tokens, Decision{Allowed: true, Remaining: int(tokens)}
	}
	wait := time.Duration(math.Ceil((1-tokens)/rate*1000)) * time.Millisecond
	return tokens, Decision{RetryAfter: wait}
}

// TokenBucketLimiter keeps bucket state in Redis so every API replica
// shares the same budget per client.
type TokenBucketLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewTokenBucketLimiter(rdb *redis.Client) *TokenBucketLimiter {
	return &TokenBucketLimiter{rdb: rdb, now: time.Now}
}

// KEYS[1] bucket; ARGV rate (tokens/s), capacity, now (ms), ttl (ms).
// Returns {allowed, retry_after_ms, remaining}.
var tokenBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now
if now < ts then ts = now end

tokens = math.min(capacity, tokens + (now - ts) * rate / 1000.0)

local allowed = 0
local wait_ms = 0
if tokens >= 1.0 then
  allowed = 1
  tokens = tokens - 1.0
else
  wait_ms = math.ceil((1.0 - tokens) / rate * 1000.0)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return {allowed, wait_ms, math.floor(tokens)}
`)

func (l *TokenBucketLimiter) Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || l.rdb == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}

	res, err := tokenBucketScript.Run(ctx, l.rdb,
		[]string{bucketKey(scope, subject)},
		bucket.perSecond(), bucket.BurstSize, l.now().UnixMilli(), bucket.idleTTL().Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Decision{}, fmt.Errorf("unexpected redis ratelimit response: %T", res)
	}

	allowed, _ := vals[0].(int64)
	waitMS, _ := vals[1].(int64)
	remaining, _ := vals[2].(int64)
	if allowed == 1 {
		return Decision{Allowed: true, Remaining: int(remaining)}, nil
	}
	return Decision{RetryAfter: time.Duration(waitMS) * time.Millisecond}, nil
}

// bucketKey hashes the subject so raw tokens or addresses never appear in
// Redis; the scope is a hash tag so one client's buckets share a slot.
func bucketKey(scope, subject string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "unknown"
	}
	sum := sha256.Sum256([]byte(subject))
	return "gaitkeepr:rl:{" + scope + "}:" + hex.EncodeToString(sum[:16])
}
