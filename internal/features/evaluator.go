// Package features decides whether a feature flag is on for a caller, using a
// two-tier cached snapshot of flag definitions and stable hash bucketing.
package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/zerotocryptodev/gateway/internal/circuitbreaker"
	"github.com/zerotocryptodev/gateway/internal/models"
	"github.com/zerotocryptodev/gateway/internal/observability"
)

const (
	DefaultCacheTTL   = 5 * time.Minute
	DefaultPersistTTL = 24 * time.Hour
	DefaultCacheKey   = "features:snapshot"

	defaultFetchTimeout = 10 * time.Second
)

// Tiers reported to metrics.
const (
	tierMemory    = "memory"
	tierPersisted = "persisted"
	tierSource    = "source"
	tierStale     = "stale"
)

// ErrSnapshotUnavailable means the source failed and neither tier holds any
// snapshot, fresh or stale.
var ErrSnapshotUnavailable = errors.New("features: no flag snapshot available")

// Source is the source of truth for flag definitions.
type Source interface {
	List(ctx context.Context) ([]models.FeatureFlag, error)
}

// PersistedCache is the second cache tier. It survives process restarts.
type PersistedCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type Evaluator struct {
	source     Source
	persisted  PersistedCache
	breaker    *circuitbreaker.CircuitBreaker
	ttl        time.Duration
	persistTTL time.Duration
	cacheKey   string
	fetchTTL   time.Duration
	now        func() time.Time
	logger     logrus.FieldLogger
	metrics    *observability.Metrics

	group  singleflight.Group
	errLog rate.Sometimes

	mu     sync.RWMutex
	memory *Snapshot
	// bumped by InvalidateCache; a refresh that started under an older
	// generation must not write its result into either tier
	generation uint64
}

type Option func(*Evaluator)

// WithPersistedCache enables the second tier. Without it only process memory
// is used.
func WithPersistedCache(c PersistedCache) Option {
	return func(e *Evaluator) { e.persisted = c }
}

// WithCacheTTL sets the freshness window shared by both tiers.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Evaluator) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithPersistTTL sets how long the persisted tier retains a snapshot. It
// bounds how old a stale fallback can be after a restart.
func WithPersistTTL(ttl time.Duration) Option {
	return func(e *Evaluator) {
		if ttl > 0 {
			e.persistTTL = ttl
		}
	}
}

func WithCacheKey(key string) Option {
	return func(e *Evaluator) {
		if key != "" {
			e.cacheKey = key
		}
	}
}

// WithFetchTimeout bounds a single source fetch. The fetch does not inherit
// the cancellation of the request that triggered it.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.fetchTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithBreaker guards source fetches. An open breaker counts as a failed fetch.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(e *Evaluator) { e.breaker = cb }
}

func NewEvaluator(source Source, opts ...Option) *Evaluator {
	e := &Evaluator{
		source:     source,
		ttl:        DefaultCacheTTL,
		persistTTL: DefaultPersistTTL,
		cacheKey:   DefaultCacheKey,
		fetchTTL:   defaultFetchTimeout,
		now:        time.Now,
		logger:     logrus.StandardLogger(),
		errLog:     rate.Sometimes{Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsEnabled reports whether flagKey is on for userID (may be empty). It never
// fails: unknown flags, unavailable snapshots and anonymous callers without a
// session all resolve to false.
func (e *Evaluator) IsEnabled(ctx context.Context, flagKey, userID string) bool {
	snap, err := e.snapshot(ctx)
	if err != nil {
		e.metrics.ObserveFlagEvaluation("error")
		return false
	}
	return e.evaluate(ctx, snap, flagKey, userID)
}

// CheckMultiple evaluates each key independently with IsEnabled semantics.
func (e *Evaluator) CheckMultiple(ctx context.Context, flagKeys []string, userID string) map[string]bool {
	results := make(map[string]bool, len(flagKeys))
	for _, key := range flagKeys {
		results[key] = e.IsEnabled(ctx, key, userID)
	}
	return results
}

// AllFlags returns the best-known snapshot, fresh if possible, stale if the
// source is down.
func (e *Evaluator) AllFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	flags := make([]models.FeatureFlag, len(snap.Flags))
	copy(flags, snap.Flags)
	return flags, nil
}

// InvalidateCache drops both tiers so the next evaluation refetches.
func (e *Evaluator) InvalidateCache(ctx context.Context) {
	e.mu.Lock()
	e.memory = nil
	e.generation++
	e.mu.Unlock()

	// callers arriving from now on start a new refresh instead of joining
	// one that may read pre-invalidation data
	e.group.Forget(e.cacheKey)

	if e.persisted == nil {
		return
	}
	if err := e.persisted.Del(ctx, e.cacheKey); err != nil {
		e.logger.WithError(err).Warn("failed to clear persisted feature flag cache")
	}
}

func (e *Evaluator) evaluate(ctx context.Context, snap *Snapshot, flagKey, userID string) bool {
	flag, ok := snap.Lookup(flagKey)
	if !ok {
		e.metrics.ObserveFlagEvaluation("unknown")
		return false
	}

	sessionID, _ := SessionFromContext(ctx)
	enabled := Decide(flag, userID, sessionID)

	if enabled {
		e.metrics.ObserveFlagEvaluation("enabled")
	} else {
		e.metrics.ObserveFlagEvaluation("disabled")
	}
	return enabled
}

func (e *Evaluator) snapshot(ctx context.Context) (*Snapshot, error) {
	if mem := e.memorySnapshot(); mem.Fresh(e.now(), e.ttl) {
		e.metrics.ObserveSnapshotTier(tierMemory)
		return mem, nil
	}

	// Concurrent misses share one refresh. It outlives any single caller, so
	// a caller that goes away only stops waiting.
	refreshCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(e.cacheKey, func() (interface{}, error) {
		return e.refresh(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Evaluator) refresh(ctx context.Context) (*Snapshot, error) {
	now := e.now()
	gen := e.currentGeneration()

	mem := e.memorySnapshot()
	if mem.Fresh(now, e.ttl) {
		e.metrics.ObserveSnapshotTier(tierMemory)
		return mem, nil
	}

	persisted := e.loadPersisted(ctx)
	if persisted.Fresh(now, e.ttl) {
		e.setMemory(gen, persisted)
		e.metrics.ObserveSnapshotTier(tierPersisted)
		return persisted, nil
	}

	flags, err := e.fetch(ctx)
	if err == nil {
		if flags == nil {
			flags = []models.FeatureFlag{}
		}
		snap := &Snapshot{Flags: flags, FetchedAt: now}
		if e.setMemory(gen, snap) {
			e.storePersisted(ctx, gen, snap)
		}
		e.metrics.ObserveSnapshotTier(tierSource)
		return snap, nil
	}

	e.metrics.IncFlagSourceFailure()
	e.errLog.Do(func() {
		e.logger.WithError(err).Warn("failed to fetch feature flags")
	})

	if stale := newer(mem, persisted); stale != nil {
		e.metrics.ObserveSnapshotTier(tierStale)
		return stale, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
}

func (e *Evaluator) fetch(ctx context.Context) ([]models.FeatureFlag, error) {
	ctx, cancel := context.WithTimeout(ctx, e.fetchTTL)
	defer cancel()

	var flags []models.FeatureFlag
	call := func() error {
		var err error
		flags, err = e.source.List(ctx)
		return err
	}

	if e.breaker == nil {
		return flags, call()
	}
	err := e.breaker.Call(call)
	return flags, err
}

func (e *Evaluator) memorySnapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.memory
}

func (e *Evaluator) currentGeneration() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// setMemory stores snap unless the cache was invalidated after gen was read.
// It reports whether snap was stored.
func (e *Evaluator) setMemory(gen uint64, snap *Snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return false
	}
	e.memory = snap
	return true
}

// loadPersisted returns the persisted snapshot regardless of age, or nil.
func (e *Evaluator) loadPersisted(ctx context.Context) *Snapshot {
	if e.persisted == nil {
		return nil
	}

	raw, err := e.persisted.Get(ctx, e.cacheKey)
	if err != nil || raw == "" {
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		e.logger.WithError(err).Warn("discarding corrupt persisted feature flag cache")
		if err := e.persisted.Del(ctx, e.cacheKey); err != nil {
			e.logger.WithError(err).Warn("failed to delete corrupt feature flag cache")
		}
		return nil
	}

	return &snap
}

func (e *Evaluator) storePersisted(ctx context.Context, gen uint64, snap *Snapshot) {
	if e.persisted == nil {
		return
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		e.logger.WithError(err).Error("failed to encode feature flag snapshot")
		return
	}

	if err := e.persisted.Set(ctx, e.cacheKey, string(raw), e.persistTTL); err != nil {
		e.logger.WithError(err).Warn("failed to persist feature flag snapshot")
		return
	}

	// An invalidation that raced with the write above must still win.
	if e.currentGeneration() != gen {
		if err := e.persisted.Del(ctx, e.cacheKey); err != nil {
			e.logger.WithError(err).Warn("failed to clear persisted feature flag cache")
		}
	}
}
