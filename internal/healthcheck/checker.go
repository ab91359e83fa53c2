// Package healthcheck probes the gateway's backing services in the background
// so /health never blocks on a slow dependency.
package healthcheck

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Probe reports whether a dependency is reachable, e.g. RedisClient.Ping.
type Probe func(ctx context.Context) error

type Checker struct {
	mu          sync.RWMutex
	probes      map[string]Probe
	status      map[string]*Status
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	now         func() time.Time
	logger      logrus.FieldLogger
}

type Config struct {
	Interval    time.Duration // Default: 10s
	Timeout     time.Duration // Per probe. Default: 2s
	MaxFailures int           // Consecutive failures before unhealthy. Default: 3
	Logger      logrus.FieldLogger
	Clock       func() time.Time
}

func NewChecker(cfg Config, probes map[string]Probe) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	c := &Checker{
		probes:      probes,
		status:      make(map[string]*Status, len(probes)),
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		now:         cfg.Clock,
		logger:      cfg.Logger,
	}

	// Assume healthy until proven otherwise
	for name := range probes {
		c.status[name] = &Status{Name: name, Healthy: true}
	}

	return c
}

// Probes once immediately, then every interval until ctx is cancelled
func (c *Checker) Start(ctx context.Context) {
	c.CheckAll(ctx)

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Runs every probe concurrently and waits for them
func (c *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup

	for name, probe := range c.probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			c.record(name, probe(probeCtx))
		}(name, probe)
	}

	wg.Wait()
}

func (c *Checker) record(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	status := c.status[name]
	status.LastCheck = now

	if err == nil {
		status.LastSuccess = now
		status.LastError = ""
		status.FailureCount = 0
		if !status.Healthy {
			c.logger.WithField("dependency", name).Info("dependency recovered")
			status.Healthy = true
		}
		return
	}

	status.LastFailure = now
	status.LastError = err.Error()
	status.FailureCount++

	if status.Healthy && status.FailureCount >= c.maxFailures {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"dependency": name,
			"failures":   status.FailureCount,
		}).Warn("dependency is unhealthy")
		status.Healthy = false
	}
}

// Returns copies sorted by name
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(c.status))
	for _, s := range c.status {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	healthy := 0
	for _, s := range c.status {
		if s.Healthy {
			healthy++
		}
	}

	switch {
	case len(c.status) == 0 || healthy == len(c.status):
		return Healthy
	case healthy == 0:
		return Unhealthy
	default:
		return Degraded
	}
}
