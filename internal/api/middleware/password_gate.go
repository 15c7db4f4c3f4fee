package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextKeyMustChangePassword 由 AuthMiddleware 写入，值来自 access token 声明。
const ContextKeyMustChangePassword = "mustChangePassword"

// RequirePasswordChangeCompletedMiddleware 在账号仍需改密时以 403 拒绝请求。
func RequirePasswordChangeCompletedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextKeyMustChangePassword) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "password change required",
				"code":  "must_change_password",
			})
			return
		}
		c.Next()
	}
}
