package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zerotocryptodev/gateway/internal/observability"
)

// KEYS[1] window key, ARGV[1] max requests, ARGV[2] window in ms.
// Returns {allowed, count, ttl_ms}. A rejected call leaves the count as is.
var fixedWindowScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("SET", KEYS[1], 1, "PX", window)
  return {1, 1, window}
end
local count = tonumber(redis.call("GET", KEYS[1]))
if count >= max then
  return {0, count, ttl}
end
count = redis.call("INCR", KEYS[1])
return {1, count, ttl}
`)

// RedisLimiter shares windows across instances through Redis. Backend
// failures are answered fail-open so a Redis outage never blocks traffic.
type RedisLimiter struct {
	client  redis.Scripter
	prefix  string
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	now     func() time.Time
}

type RedisOption func(*RedisLimiter)

func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) { l.prefix = prefix }
}

func WithRedisLogger(logger logrus.FieldLogger) RedisOption {
	return func(l *RedisLimiter) { l.logger = logger }
}

func WithRedisMetrics(m *observability.Metrics) RedisOption {
	return func(l *RedisLimiter) { l.metrics = m }
}

// WithRedisClock sets the clock used for Result.ResetAt. Window expiry itself
// is tracked by Redis.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLimiter) { l.now = now }
}

func NewRedisLimiter(client redis.Scripter, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		client: client,
		prefix: "ratelimit:fixed",
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLimiter) Check(ctx context.Context, identifier string, policy Policy) (Result, error) {
	if identifier == "" {
		return Result{}, ErrEmptyIdentifier
	}
	if err := policy.Validate(); err != nil {
		return Result{}, err
	}

	redisKey := fmt.Sprintf("%s:%s", l.prefix, identifier)
	windowMs := policy.Window.Milliseconds()

	now := l.now()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, policy.MaxRequests, windowMs).Int64Slice()
	if err == nil && len(res) != 3 {
		err = fmt.Errorf("unexpected script reply of length %d", len(res))
	}
	if err != nil {
		l.metrics.IncLimiterFault()
		l.logger.WithError(err).WithField("identifier", identifier).Warn("rate limit backend failed, allowing request")
		return Result{
			Allowed:   true,
			Remaining: policy.MaxRequests,
			ResetIn:   ceilSeconds(policy.Window),
			ResetAt:   now.Add(policy.Window),
		}, nil
	}

	allowed, count, ttl := res[0] == 1, int(res[1]), time.Duration(res[2])*time.Millisecond
	resetAt := now.Add(ttl)
	if !allowed {
		return Result{Allowed: false, Remaining: 0, ResetIn: ceilSeconds(ttl), ResetAt: resetAt}, nil
	}

	remaining := policy.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetIn: ceilSeconds(ttl), ResetAt: resetAt}, nil
}
