package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotocryptodev/gateway/internal/circuitbreaker"
)

func TestSystemHandler_CircuitBreakers(t *testing.T) {
	cb := circuitbreaker.New(circuitbreaker.Config{Name: "feature_flags", MaxFailures: 1})
	_ = cb.Call(func() error { return errors.New("down") })
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	h := NewSystemHandler(cb)
	r := gin.New()
	r.GET("/admin/circuit-breakers", h.CircuitBreakerStatus)
	r.POST("/admin/circuit-breakers/:name/reset", h.ResetCircuitBreaker)

	w := doJSON(r, http.MethodGet, "/admin/circuit-breakers", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"open"`)

	w = doJSON(r, http.MethodPost, "/admin/circuit-breakers/unknown/reset", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/circuit-breakers/feature_flags/reset", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}
