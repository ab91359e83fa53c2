package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

type staticValidator struct {
	tokens map[string]jwt.MapClaims
	admins map[string]bool
}

func (v staticValidator) ValidateToken(token string) (jwt.MapClaims, error) {
	claims, ok := v.tokens[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (v staticValidator) IsAdmin(email string) bool {
	return v.admins[email]
}

func newAuthRouter() *gin.Engine {
	auth := staticValidator{
		tokens: map[string]jwt.MapClaims{
			"user-token":  {"user_id": "u1", "email": "dev@example.com", "role": "user"},
			"admin-token": {"user_id": "u2", "email": "ops@example.com", "role": "admin"},
		},
		admins: map[string]bool{"ops@example.com": true},
	}

	r := gin.New()
	echo := func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	}
	r.GET("/private", RequireAuth(auth), echo)
	r.GET("/admin", RequireAuth(auth), RequireAdmin(auth), echo)
	r.GET("/optional", OptionalAuth(auth), echo)
	return r
}

func doAuth(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := newAuthRouter()

	assert.Equal(t, http.StatusUnauthorized, doAuth(r, "/private", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doAuth(r, "/private", "Token user-token").Code)
	assert.Equal(t, http.StatusUnauthorized, doAuth(r, "/private", "Bearer nope").Code)

	w := doAuth(r, "/private", "Bearer user-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	r := newAuthRouter()

	assert.Equal(t, http.StatusUnauthorized, doAuth(r, "/admin", "").Code)
	assert.Equal(t, http.StatusForbidden, doAuth(r, "/admin", "Bearer user-token").Code)
	assert.Equal(t, http.StatusOK, doAuth(r, "/admin", "Bearer admin-token").Code)
}

func TestOptionalAuth(t *testing.T) {
	r := newAuthRouter()

	w := doAuth(r, "/optional", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = doAuth(r, "/optional", "Bearer nope")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = doAuth(r, "/optional", "Bearer user-token")
	assert.Equal(t, "u1", w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
