package ratelimit

import (
	"context"
	"sync"
	"time"
)

const maxMemoryBuckets = 10000

type memoryState struct {
	tokens float64
	ts     time.Time
	ttl    time.Duration
}

// MemoryLimiter is the single-process limiter used when the API runs
// without Redis.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*memoryState
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*memoryState), now: time.Now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}
	key := bucketKey(scope, subject)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxMemoryBuckets {
			l.evictIdle(now)
		}
		st = &memoryState{tokens: float64(bucket.BurstSize), ts: now}
		l.buckets[key] = st
	}
	var dec Decision
	st.tokens, dec = take(st.tokens, st.ts, now, bucket)
	st.ts = now
	st.ttl = bucket.idleTTL()
	return dec, nil
}

// evictIdle drops buckets untouched for longer than their TTL. Callers hold mu.
func (l *MemoryLimiter) evictIdle(now time.Time) {
	for k, st := range l.buckets {
		if now.Sub(st.ts) > st.ttl {
			delete(l.buckets, k)
		}
	}
}
