package features

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zerotocryptodev/gateway/internal/models"
)

var errNotFound = errors.New("not found")

type fakeSource struct {
	mu    sync.Mutex
	flags []models.FeatureFlag
	err   error
	calls int
}

func (s *fakeSource) List(context.Context) ([]models.FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.FeatureFlag, len(s.flags))
	copy(out, s.flags)
	return out, nil
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type fakeCache struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", errNotFound
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	c.deletes++
	return nil
}

func (c *fakeCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// gatedSource holds its first List call until release is closed.
type gatedSource struct {
	fakeSource
	started chan struct{}
	release chan struct{}
	once    sync.Once
	ctxErr  error
}

func newGatedSource(flags []models.FeatureFlag) *gatedSource {
	return &gatedSource{
		fakeSource: fakeSource{flags: flags},
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *gatedSource) List(ctx context.Context) ([]models.FeatureFlag, error) {
	first := false
	s.once.Do(func() { first = true })

	// read before blocking so a held call returns what it saw on entry
	flags, err := s.fakeSource.List(ctx)
	if first {
		close(s.started)
		<-s.release
		s.mu.Lock()
		s.ctxErr = ctx.Err()
		s.mu.Unlock()
	}
	return flags, err
}

func (s *gatedSource) SetFlags(flags []models.FeatureFlag) {
	s.mu.Lock()
	s.flags = flags
	s.mu.Unlock()
}
