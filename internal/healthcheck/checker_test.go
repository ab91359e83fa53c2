package healthcheck

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotocryptodev/gateway/internal/logging"
)

func TestChecker_MarksUnhealthyAfterMaxFailures(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	c := NewChecker(Config{MaxFailures: 2, Logger: logging.Discard()}, map[string]Probe{
		"redis": func(context.Context) error {
			if failing.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
		"database": func(context.Context) error { return nil },
	})
	ctx := context.Background()

	c.CheckAll(ctx)
	assert.Equal(t, Healthy, c.OverallHealth(), "one failure is tolerated")

	c.CheckAll(ctx)
	assert.Equal(t, Degraded, c.OverallHealth())

	statuses := c.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "database", statuses[0].Name)
	assert.Equal(t, "redis", statuses[1].Name)
	assert.False(t, statuses[1].Healthy)
	assert.Equal(t, 2, statuses[1].FailureCount)
	assert.Equal(t, "connection refused", statuses[1].LastError)

	failing.Store(false)
	c.CheckAll(ctx)
	assert.Equal(t, Healthy, c.OverallHealth())
	assert.Empty(t, c.Statuses()[1].LastError)
}

func TestChecker_AllDown(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	c := NewChecker(Config{MaxFailures: 1, Logger: logging.Discard()}, map[string]Probe{"a": down, "b": down})

	c.CheckAll(context.Background())
	assert.Equal(t, Unhealthy, c.OverallHealth())
	assert.Equal(t, "unhealthy", c.OverallHealth().String())
}

func TestChecker_ProbeRespectsTimeout(t *testing.T) {
	c := NewChecker(Config{MaxFailures: 1, Logger: logging.Discard()}, map[string]Probe{
		"slow": func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			if !ok {
				return errors.New("probe has no deadline")
			}
			return nil
		},
	})

	c.CheckAll(context.Background())
	assert.Equal(t, Healthy, c.OverallHealth())
}
