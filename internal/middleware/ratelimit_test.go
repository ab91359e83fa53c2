package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotocryptodev/gateway/internal/logging"
	"github.com/zerotocryptodev/gateway/internal/models"
	"github.com/zerotocryptodev/gateway/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memorySink struct {
	mu     sync.Mutex
	events []models.RateLimitEvent
}

func (s *memorySink) Record(ev models.RateLimitEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

type brokenLimiter struct {
	err error
}

func (l brokenLimiter) Check(context.Context, string, ratelimit.Policy) (ratelimit.Result, error) {
	return ratelimit.Result{}, l.err
}

func newRateLimitedRouter(limiter ratelimit.Limiter, sink RejectionSink) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(RateLimitOptions{
		Limiter: limiter,
		Name:    "compile",
		Policy:  ratelimit.Policy{MaxRequests: 2, Window: time.Minute},
		Sink:    sink,
		Logger:  logging.Discard(),
	}))
	r.POST("/compile", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func compileRequest(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/compile", nil)
	req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
	return req
}

func TestRateLimit_AllowsThenRejects(t *testing.T) {
	sink := &memorySink{}
	r := newRateLimitedRouter(ratelimit.NewMemoryLimiter(), sink)

	for _, remaining := range []string{"1", "0"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, compileRequest("203.0.113.7"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, remaining, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, compileRequest("203.0.113.7"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var body struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests", body.Error)
	assert.Equal(t, "Rate limit exceeded. Try again in 60 seconds.", body.Message)
	assert.Equal(t, 60, body.RetryAfter)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "compile", sink.events[0].Policy)
	assert.Equal(t, "203.0.113.7", sink.events[0].Identifier)
	assert.Equal(t, "/compile", sink.events[0].Path)

	// another client has its own window
	w = httptest.NewRecorder()
	r.ServeHTTP(w, compileRequest("198.51.100.1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_FailsOpenOnBackendError(t *testing.T) {
	r := newRateLimitedRouter(brokenLimiter{err: errors.New("backend unavailable")}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, compileRequest("203.0.113.7"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_ConfigurationErrorIsServerError(t *testing.T) {
	r := newRateLimitedRouter(brokenLimiter{err: ratelimit.ErrInvalidConfiguration}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, compileRequest("203.0.113.7"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit_ResetHeaderUsesLimiterClock(t *testing.T) {
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	r := newRateLimitedRouter(ratelimit.NewMemoryLimiter(ratelimit.WithClock(func() time.Time { return now })), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, compileRequest("203.0.113.7"))
	require.Equal(t, http.StatusOK, w.Code)
	windowEnd := strconv.FormatInt(start.Add(time.Minute).Unix(), 10)
	assert.Equal(t, windowEnd, w.Header().Get("X-RateLimit-Reset"))

	// later calls in the same window report the same absolute reset
	now = start.Add(25 * time.Second)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, compileRequest("203.0.113.7"))
	assert.Equal(t, windowEnd, w.Header().Get("X-RateLimit-Reset"))
}
