package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zerotocryptodev/gateway/internal/features"
	"github.com/zerotocryptodev/gateway/internal/service"
)

const maxEvaluateKeys = 50

type FeatureFlagHandler struct {
	service   *service.FeatureFlagService
	evaluator *features.Evaluator
}

func NewFeatureFlagHandler(service *service.FeatureFlagService, evaluator *features.Evaluator) *FeatureFlagHandler {
	return &FeatureFlagHandler{
		service:   service,
		evaluator: evaluator,
	}
}

func (h *FeatureFlagHandler) List(c *gin.Context) {
	flags, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch feature flags"})
		return
	}

	c.JSON(http.StatusOK, flags)
}

// GET /api/features/evaluate?keys=a,b
func (h *FeatureFlagHandler) Evaluate(c *gin.Context) {
	keys := splitKeys(c.Query("keys"))
	if len(keys) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keys query parameter is required"})
		return
	}
	if len(keys) > maxEvaluateKeys {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many keys"})
		return
	}

	results := h.evaluator.CheckMultiple(c.Request.Context(), keys, evaluationUser(c))
	c.JSON(http.StatusOK, gin.H{"flags": results})
}

// GET /api/features/:key/enabled
func (h *FeatureFlagHandler) IsEnabled(c *gin.Context) {
	key := c.Param("key")

	enabled := h.evaluator.IsEnabled(c.Request.Context(), key, evaluationUser(c))
	c.JSON(http.StatusOK, gin.H{
		"key":     key,
		"enabled": enabled,
	})
}

func (h *FeatureFlagHandler) Create(c *gin.Context) {
	var req service.FlagInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flag, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		respondFlagError(c, err)
		return
	}

	c.JSON(http.StatusCreated, flag)
}

func (h *FeatureFlagHandler) Update(c *gin.Context) {
	var req service.FlagPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}

	flag, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondFlagError(c, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

func (h *FeatureFlagHandler) Toggle(c *gin.Context) {
	flag, err := h.service.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondFlagError(c, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

func (h *FeatureFlagHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondFlagError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Feature flag deleted"})
}

func (h *FeatureFlagHandler) InvalidateCache(c *gin.Context) {
	h.evaluator.InvalidateCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Feature flag cache invalidated"})
}

func respondFlagError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidFlag):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrFlagNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Feature flag not found"})
	case errors.Is(err, service.ErrFlagExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Feature flag key already exists"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// Only the authenticated id counts. Anonymous callers are bucketed by their
// rollout session, so a client cannot claim someone else's overrides.
func evaluationUser(c *gin.Context) string {
	return c.GetString("user_id")
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
