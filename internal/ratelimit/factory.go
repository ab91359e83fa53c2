package ratelimit

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zerotocryptodev/gateway/internal/observability"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// NewLimiter builds the limiter for backend. client is only used by the
// redis backend.
func NewLimiter(backend string, client redis.Scripter, maxEntries int, logger logrus.FieldLogger, metrics *observability.Metrics) (Limiter, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryLimiter(WithMaxEntries(maxEntries), WithMemoryMetrics(metrics)), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("%w: redis backend requires a redis client", ErrInvalidConfiguration)
		}
		return NewRedisLimiter(client, WithRedisLogger(logger), WithRedisMetrics(metrics)), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfiguration, backend)
	}
}
