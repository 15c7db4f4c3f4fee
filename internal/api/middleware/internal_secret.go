package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// InternalSecretHeader 携带服务间调用的共享密钥。
const InternalSecretHeader = "X-Internal-Secret"

// InternalSecretMiddleware 保护 /internal 路由；未配置密钥时所有请求都被拒绝。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(secret))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "internal api is disabled"})
			return
		}
		token := []byte(strings.TrimSpace(c.GetHeader(InternalSecretHeader)))
		if subtle.ConstantTimeCompare(token, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
