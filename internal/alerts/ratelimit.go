package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

const (
	defaultMaxPerWindow    = 20
	defaultRateLimitWindow = time.Hour
)

// RateLimiter caps alert sends per clinic and channel inside a rolling
// window, using Redis INCR counters keyed by window bucket. Redis failures
// fail open: an unreachable counter never blocks an alert.
type RateLimiter struct {
	redis  *redis.Client
	logger *logging.Logger
	max    int
	window time.Duration
}

// RateLimitResult reports the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
	Note       string
}

// NewRateLimiter creates a Redis-backed alert rate limiter.
func NewRateLimiter(client *redis.Client, max int, window time.Duration, logger *logging.Logger) *RateLimiter {
	if client == nil {
		panic("alerts: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if max <= 0 {
		max = defaultMaxPerWindow
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{redis: client, logger: logger, max: max, window: window}
}

func (r *RateLimiter) key(ch Channel, clinicID string, bucket int64) string {
	return fmt.Sprintf("alerts:rl:%s:%s:%d", ch, clinicID, bucket)
}

// Allow counts one prospective send and reports whether it fits the window
// budget. The count is consumed even when the send later fails; the budget
// bounds attempts, not deliveries.
func (r *RateLimiter) Allow(ctx context.Context, ch Channel, clinicID string) RateLimitResult {
	now := nowFunc()
	windowSecs := int64(r.window / time.Second)
	bucket := now.Unix() / windowSecs

	count, err := r.incrementAndGet(ctx, r.key(ch, clinicID, bucket))
	if err != nil {
		r.logger.Error("alert rate limit check failed, allowing send",
			"error", err, "channel", ch, "clinic_id", clinicID)
		return RateLimitResult{Allowed: true, Limit: r.max, Note: "rate limit unavailable"}
	}

	if count > int64(r.max) {
		nextBucket := time.Unix((bucket+1)*windowSecs, 0)
		return RateLimitResult{
			Allowed:    false,
			Count:      count,
			Limit:      r.max,
			RetryAfter: nextBucket.Sub(now),
		}
	}

	return RateLimitResult{Allowed: true, Count: count, Limit: r.max}
}

func (r *RateLimiter) incrementAndGet(ctx context.Context, key string) (int64, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("alerts: rate limit incr failed: %w", err)
	}

	// First increment owns the expiry. The extra window covers clock skew
	// between callers racing on a fresh bucket.
	if count == 1 {
		if err := r.redis.Expire(ctx, key, 2*r.window).Err(); err != nil {
			r.logger.Warn("alert rate limit expire failed", "error", err, "key", key)
		}
	}
	return count, nil
}
