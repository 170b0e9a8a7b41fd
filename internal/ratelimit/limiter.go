package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
)

// Config holds rate limiter configuration
type Config struct {
	IPLimitPerMin   int // dashboard requests per IP per minute
	BurstMultiplier int // burst capacity of the in-memory buckets, as a multiple of the limit
}

// DefaultConfig allows 60 dashboard requests per IP per minute
func DefaultConfig() Config {
	return Config{IPLimitPerMin: 60, BurstMultiplier: 2}
}

// Result is the outcome of one limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter enforces per-IP limits through Redis when it is reachable and
// through per-process token buckets otherwise.
type RateLimiter struct {
	config  Config
	metrics *monitoring.Metrics

	redisClient *RedisClient
	gcra        *redis_rate.Limiter // nil without Redis

	local *localBuckets

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter builds a limiter. redisClient may be nil.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if config.IPLimitPerMin <= 0 {
		config.IPLimitPerMin = DefaultConfig().IPLimitPerMin
	}
	if config.BurstMultiplier <= 0 {
		config.BurstMultiplier = 1
	}

	rl := &RateLimiter{
		config:      config,
		metrics:     metrics,
		redisClient: redisClient,
		local:       newLocalBuckets(config.BurstMultiplier),
		stop:        make(chan struct{}),
	}
	if redisClient.IsEnabled() {
		rl.gcra = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.local.resetLoop(time.Hour, rl.stop)
	return rl
}

// AllowIP checks if an IP address may make another dashboard request this minute
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.allow(ctx, "ratelimit:ip:"+ip, rl.config.IPLimitPerMin, time.Minute)
}

// AllowEndpoint checks a per-IP limit scoped to one endpoint
func (rl *RateLimiter) AllowEndpoint(ctx context.Context, endpoint, ip string, limitPerMin int) (*Result, error) {
	return rl.allow(ctx, "ratelimit:endpoint:"+endpoint+":"+ip, limitPerMin, time.Minute)
}

// allow never fails: a Redis error is counted and the local bucket decides
func (rl *RateLimiter) allow(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	if rl.gcra != nil {
		res, err := rl.allowRedis(ctx, key, limit, period)
		if err == nil {
			return res, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		rl.count((*monitoring.Metrics).IncrementRateLimitRedisError)
	}

	rl.count((*monitoring.Metrics).IncrementRateLimitFallback)
	return rl.local.allow(key, limit, period, time.Now()), nil
}

func (rl *RateLimiter) count(inc func(*monitoring.Metrics)) {
	if rl.metrics != nil {
		inc(rl.metrics)
	}
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := rl.gcra.Allow(ctx, key, redis_rate.Limit{Rate: limit, Burst: limit, Period: period})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: max(res.RetryAfter, 0),
	}, nil
}

// Close stops the background bucket reset
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// GetStats reports limiter state for /metrics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_limiters": rl.local.size(),
		"ip_limit_per_min":  rl.config.IPLimitPerMin,
	}
	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}
	return stats
}

// maxLocalBuckets is the size past which resetLoop discards every bucket
const maxLocalBuckets = 1000

// localBuckets holds one x/time/rate token bucket per key
type localBuckets struct {
	burstMultiplier int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newLocalBuckets(burstMultiplier int) *localBuckets {
	return &localBuckets{
		burstMultiplier: burstMultiplier,
		buckets:         make(map[string]*rate.Limiter),
	}
}

func (lb *localBuckets) bucket(key string, limit int, period time.Duration) *rate.Limiter {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	b, ok := lb.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(limit)/period.Seconds()), max(limit*lb.burstMultiplier, 1))
		lb.buckets[key] = b
	}
	return b
}

func (lb *localBuckets) allow(key string, limit int, period time.Duration, now time.Time) *Result {
	b := lb.bucket(key, limit, period)
	allowed := b.AllowN(now, 1)
	tokens := b.TokensAt(now)

	res := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(period),
	}
	if !allowed {
		// time until one whole token has refilled
		refill := time.Duration((1 - tokens) / float64(b.Limit()) * float64(time.Second))
		res.RetryAfter = max(refill, time.Second)
		res.ResetAt = now.Add(res.RetryAfter)
	}
	return res
}

func (lb *localBuckets) size() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.buckets)
}

// resetLoop drops all buckets once there are too many. A dropped key starts
// again with a full bucket.
func (lb *localBuckets) resetLoop(every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			lb.mu.Lock()
			if n := len(lb.buckets); n > maxLocalBuckets {
				slog.Info("Cleaning up fallback rate limiters", "count", n)
				lb.buckets = make(map[string]*rate.Limiter)
			}
			lb.mu.Unlock()
		}
	}
}
