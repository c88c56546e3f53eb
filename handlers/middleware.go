package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the caller identity set by the upstream authorizer.
// It is trusted: the service must never be reachable without that proxy in
// front of it.
const HeaderUserID = "x-user-id"

const contextUserID = "auth_user_id"

func UserIdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "user identity is required"})
			return
		}
		c.Set(contextUserID, userID)
		c.Next()
	}
}

func userFromContext(c *gin.Context) (string, bool) {
	rawUserID, ok := c.Get(contextUserID)
	if !ok {
		return "", false
	}
	userID, ok := rawUserID.(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}
