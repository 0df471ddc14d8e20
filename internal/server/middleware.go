package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/millroll/internal/observability/context"
)

const (
	HeaderUserID     = "X-User-Id"
	contextUserIDKey = "user_id"
)

// UserIdentity copies the operator id forwarded by the upstream auth layer
// into the gin and request contexts.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID != "" {
			c.Set(contextUserIDKey, userID)
			c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID))
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}
