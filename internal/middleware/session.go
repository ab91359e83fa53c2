package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/zerotocryptodev/gateway/internal/features"
)

const maxSessionIDLength = 64

// Gives every browser session a stable rollout seed. The cookie has no
// Max-Age so it lives as long as the browser session.
func RolloutSession(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(features.SessionCookie)
		if err != nil || id == "" || len(id) > maxSessionIDLength {
			id = features.NewSessionID()
			c.SetCookie(features.SessionCookie, id, 0, "/", "", secure, true)
		}

		c.Request = c.Request.WithContext(features.WithSession(c.Request.Context(), id))
		c.Next()
	}
}
