package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/zerotocryptodev/gateway/internal/observability"
)

// DefaultMaxEntries is the high-water mark above which expired entries are
// swept on the next Check.
const DefaultMaxEntries = 10000

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in process memory. Counts are per process, so
// a horizontally scaled fleet only gets an approximate global limit.
type MemoryLimiter struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	now        func() time.Time
	metrics    *observability.Metrics
}

type MemoryOption func(*MemoryLimiter)

func WithMaxEntries(n int) MemoryOption {
	return func(l *MemoryLimiter) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

func WithMemoryMetrics(m *observability.Metrics) MemoryOption {
	return func(l *MemoryLimiter) { l.metrics = m }
}

func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		entries:    make(map[string]*entry),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Check(_ context.Context, identifier string, policy Policy) (Result, error) {
	if identifier == "" {
		return Result{}, ErrEmptyIdentifier
	}
	if err := policy.Validate(); err != nil {
		return Result{}, err
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) > l.maxEntries {
		l.sweep(now)
	}
	defer func() { l.metrics.SetTrackedIdentifiers(len(l.entries)) }()

	e, ok := l.entries[identifier]
	if !ok || now.After(e.resetAt) {
		resetAt := now.Add(policy.Window)
		l.entries[identifier] = &entry{count: 1, resetAt: resetAt}
		return Result{
			Allowed:   true,
			Remaining: policy.MaxRequests - 1,
			ResetIn:   ceilSeconds(policy.Window),
			ResetAt:   resetAt,
		}, nil
	}

	if e.count >= policy.MaxRequests {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetIn:   ceilSeconds(e.resetAt.Sub(now)),
			ResetAt:   e.resetAt,
		}, nil
	}

	e.count++
	return Result{
		Allowed:   true,
		Remaining: policy.MaxRequests - e.count,
		ResetIn:   ceilSeconds(e.resetAt.Sub(now)),
		ResetAt:   e.resetAt,
	}, nil
}

// Len returns the number of tracked identifiers.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep removes every entry whose window has expired and returns how many
// were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweep(now)
}

func (l *MemoryLimiter) sweep(now time.Time) int {
	removed := 0
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}
