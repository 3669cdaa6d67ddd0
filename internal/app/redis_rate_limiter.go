package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ApplicantAction is an applicant-facing operation with its own request budget.
type ApplicantAction string

const (
	ActionQuote ApplicantAction = "quote"
	ActionApply ApplicantAction = "apply"
)

const rateLimitWindow = time.Minute

// ApplicantRateLimits holds the per-minute budget of each applicant action. A zero
// budget leaves the action unthrottled.
type ApplicantRateLimits struct {
	QuotesPerMinute  int
	AppliesPerMinute int
}

func (l ApplicantRateLimits) budget(action ApplicantAction) int {
	switch action {
	case ActionQuote:
		return l.QuotesPerMinute
	case ActionApply:
		return l.AppliesPerMinute
	}
	return 0
}

// RateLimitDecision is the verdict for one applicant request.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RedisRateLimiter throttles applicants per action in calendar-minute windows. Each
// window has its own key, so counters never need resetting and simply expire.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limits ApplicantRateLimits
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limits ApplicantRateLimits) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "gart:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix, limits: limits, now: time.Now}
}

// Allow counts one request of userID for action and reports whether it fits the budget.
func (r *RedisRateLimiter) Allow(ctx context.Context, action ApplicantAction, userID string) (RateLimitDecision, error) {
	if r == nil || r.client == nil {
		return RateLimitDecision{Allowed: true}, nil
	}
	limit := r.limits.budget(action)
	userID = strings.TrimSpace(userID)
	if limit <= 0 || userID == "" {
		return RateLimitDecision{Allowed: true}, nil
	}

	now := r.now()
	key, resetAt := r.windowKey(action, userID, now)

	var counter *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		counter = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, resetAt.Add(time.Second))
		return nil
	})
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("count %s requests: %w", action, err)
	}

	count := int(counter.Val())
	if count > limit {
		return RateLimitDecision{Allowed: false, RetryAfter: resetAt.Sub(now)}, nil
	}
	return RateLimitDecision{Allowed: true, Remaining: limit - count}, nil
}

// windowKey returns the counter key of the window containing now and the instant that
// window closes.
func (r *RedisRateLimiter) windowKey(action ApplicantAction, userID string, now time.Time) (string, time.Time) {
	start := now.UTC().Truncate(rateLimitWindow)
	return fmt.Sprintf("%s:%s:%s:%d", r.prefix, action, userID, start.Unix()), start.Add(rateLimitWindow)
}
