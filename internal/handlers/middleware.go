package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-cart-checkout/internal/authz"
)

// Identity headers are set by the upstream gateway after authentication.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"

	ctxUserID = "user_id"
	ctxRole   = "role"
)

// requireAction resolves the caller and rejects it unless its role may
// perform action.
func requireAction(action authz.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_user"})
			return
		}
		role, ok := authz.ParseRole(c.GetHeader(HeaderUserRole))
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown_role"})
			return
		}
		if err := authz.Check(action, role); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "msg": err.Error()})
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func isAdmin(c *gin.Context) bool {
	role, _ := c.Get(ctxRole)
	return role == authz.RoleAdmin
}
