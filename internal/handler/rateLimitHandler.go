package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zerotocryptodev/gateway/internal/middleware"
	"github.com/zerotocryptodev/gateway/internal/models"
	"github.com/zerotocryptodev/gateway/internal/observability"
	"github.com/zerotocryptodev/gateway/internal/ratelimit"
)

const (
	defaultRecentEvents = 50
	maxRecentEvents     = 500

	// Check counts in its own windows so callers of the endpoint cannot
	// spend the quota enforced on the real routes.
	checkNamespace = "check:"
)

// EventReader is implemented by repository.RateLimitEventRepository.
type EventReader interface {
	FindRecent(ctx context.Context, policy string, limit int) ([]models.RateLimitEvent, error)
}

type RateLimitHandler struct {
	limiter  ratelimit.Limiter
	policies *ratelimit.Policies
	sink     middleware.RejectionSink
	events   EventReader
	metrics  *observability.Metrics
}

func NewRateLimitHandler(limiter ratelimit.Limiter, policies *ratelimit.Policies, sink middleware.RejectionSink, events EventReader, metrics *observability.Metrics) *RateLimitHandler {
	return &RateLimitHandler{
		limiter:  limiter,
		policies: policies,
		sink:     sink,
		events:   events,
		metrics:  metrics,
	}
}

// POST /api/ratelimit/check
// Consumes from a window separate from the one guarding the action itself.
func (h *RateLimitHandler) Check(c *gin.Context) {
	var req struct {
		Action     string `json:"action" binding:"required"`
		Identifier string `json:"identifier"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, ok := h.policies.Lookup(req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown rate limit action: " + req.Action})
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = ratelimit.IdentifierFromHeaders(c.Request.Header)
	}

	result, err := h.limiter.Check(c.Request.Context(), ratelimit.Key(checkNamespace+req.Action, identifier), policy)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidConfiguration) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
		return
	}

	h.metrics.ObserveDecision(req.Action, result.Allowed)
	middleware.SetRateLimitHeaders(c, policy.MaxRequests, result)

	if !result.Allowed {
		if h.sink != nil {
			h.sink.Record(models.RateLimitEvent{
				Policy:     req.Action,
				Identifier: identifier,
				Method:     c.Request.Method,
				Path:       c.Request.URL.Path,
				ResetIn:    result.ResetIn,
			})
		}
		middleware.RespondRateLimited(c, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GET /api/ratelimit/policies
func (h *RateLimitHandler) Policies(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, name := range h.policies.Names() {
		p, _ := h.policies.Lookup(name)
		out = append(out, gin.H{
			"name":         name,
			"max_requests": p.MaxRequests,
			"window_ms":    p.Window.Milliseconds(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"policies": out})
}

// GET /api/ratelimit/events?policy=auth&limit=50
func (h *RateLimitHandler) RecentRejections(c *gin.Context) {
	limit := defaultRecentEvents
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentEvents)
	}

	events, err := h.events.FindRecent(c.Request.Context(), c.Query("policy"), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rate limit events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
