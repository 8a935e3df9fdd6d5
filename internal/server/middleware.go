package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/genstudio/internal/observability/context"
)

const (
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// UserRequired trusts the user id set by the upstream gateway that
// authenticated the request.
func UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithUserID(c.Request.Context(), raw)
		ctx = obscontext.WithActor(ctx, "user", raw)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) int64 {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0
	}
	userID, _ := value.(int64)
	return userID
}
