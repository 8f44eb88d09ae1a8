package limits

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter decides whether a request identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// minBucketIdle is the shortest time a local bucket is kept after its last use.
const minBucketIdle = time.Minute

// LocalRateLimiter keeps one token bucket per key in process memory. Buckets
// unused for longer than it takes them to refill completely are dropped, so
// a returning key starts from the same full bucket it would have had.
type LocalRateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalRateLimiter creates a limiter refilling perSecond tokens per second
// up to burst.
func NewLocalRateLimiter(perSecond float64, burst int) *LocalRateLimiter {
	idle := minBucketIdle
	if perSecond > 0 {
		if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &LocalRateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		buckets: make(map[string]*localBucket),
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	return l.bucket(key, now).AllowN(now, 1), nil
}

func (l *LocalRateLimiter) bucket(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idle {
		l.evictIdle(now)
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// evictIdle drops buckets not used within the idle window. Callers hold mu.
func (l *LocalRateLimiter) evictIdle(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, key)
		}
	}
}

// size reports the number of live buckets.
func (l *LocalRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// tokenBucketScript refills and consumes a bucket atomically.
// KEYS[1] bucket key; ARGV rate/s, capacity, cost, now (unix seconds, fractional).
var tokenBucketScript = goredis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if not tokens or not ts then
    tokens = capacity
    ts = now
end

local elapsed = now - ts
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    ts = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "ts", ts)
redis.call("EXPIRE", key, math.ceil(capacity / rate) + 1)

return {allowed, tostring(tokens)}
`)

// RedisRateLimiter shares token buckets across registry replicas.
type RedisRateLimiter struct {
	client    goredis.UniversalClient
	keyPrefix string
	perSecond float64
	burst     int
	now       func() time.Time
}

// NewRedisRateLimiter creates a limiter storing buckets under keyPrefix.
func NewRedisRateLimiter(client goredis.UniversalClient, keyPrefix string, perSecond float64, burst int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		perSecond: perSecond,
		burst:     burst,
		now:       time.Now,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(l.now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, l.client, []string{l.keyPrefix + key}, l.perSecond, l.burst, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate limiter: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("redis rate limiter: unexpected script result %v", res)
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}
