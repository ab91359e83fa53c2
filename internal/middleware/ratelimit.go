package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/zerotocryptodev/gateway/internal/models"
	"github.com/zerotocryptodev/gateway/internal/observability"
	"github.com/zerotocryptodev/gateway/internal/ratelimit"
)

// RejectionSink receives denied requests, see service.RejectionRecorder.
type RejectionSink interface {
	Record(event models.RateLimitEvent)
}

type RateLimitOptions struct {
	Limiter  ratelimit.Limiter
	Name     string // policy name, also the key prefix
	Policy   ratelimit.Policy
	Sink     RejectionSink // optional
	Metrics  *observability.Metrics
	Logger   logrus.FieldLogger
	Identify func(c *gin.Context) string // defaults to ratelimit.IdentifierFromHeaders
}

// Applies a fixed-window policy per client identifier
func RateLimit(opts RateLimitOptions) gin.HandlerFunc {
	if opts.Identify == nil {
		opts.Identify = func(c *gin.Context) string {
			return ratelimit.IdentifierFromHeaders(c.Request.Header)
		}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return func(c *gin.Context) {
		identifier := opts.Identify(c)

		result, err := opts.Limiter.Check(c.Request.Context(), ratelimit.Key(opts.Name, identifier), opts.Policy)
		if err != nil {
			// A broken policy is a bug in this process, not the caller's fault
			opts.Logger.WithError(err).WithField("policy", opts.Name).Error("rate limit check failed")
			if errors.Is(err, ratelimit.ErrInvalidConfiguration) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Rate limit check failed",
				})
				return
			}
			c.Next()
			return
		}

		opts.Metrics.ObserveDecision(opts.Name, result.Allowed)
		SetRateLimitHeaders(c, opts.Policy.MaxRequests, result)

		if !result.Allowed {
			if opts.Sink != nil {
				opts.Sink.Record(models.RateLimitEvent{
					Policy:     opts.Name,
					Identifier: identifier,
					Method:     c.Request.Method,
					Path:       c.Request.URL.Path,
					ResetIn:    result.ResetIn,
				})
			}
			RespondRateLimited(c, result)
			return
		}

		c.Next()
	}
}

func SetRateLimitHeaders(c *gin.Context, limit int, result ratelimit.Result) {
	resetAt := result.ResetAt
	if resetAt.IsZero() {
		resetAt = time.Now().Add(result.RetryAfter())
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// Writes the 429 body and Retry-After header and aborts the chain
func RespondRateLimited(c *gin.Context, result ratelimit.Result) {
	c.Header("Retry-After", strconv.Itoa(result.ResetIn))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":      "Too many requests",
		"message":    fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", result.ResetIn),
		"retryAfter": result.ResetIn,
	})
}
