package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const contextUserIDKey = "__user_id"

// AuthRequired 校验 Bearer 令牌并把解析出的用户 ID 放入请求上下文。
func (a *API) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			respondError(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		userID, err := a.auth.ParseToken(token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get(contextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}
