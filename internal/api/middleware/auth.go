package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/medforum_server/internal/pkg/identity"
	"github.com/qs3c/medforum_server/internal/pkg/jwt"
	"github.com/qs3c/medforum_server/internal/pkg/response"
)

const (
	UserIDKey = "userID"
)

// Auth JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		setUser(c, claims.UserID)
		c.Next()
	}
}

// OptionalAuth 可选认证中间件（不强制要求登录）
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" || tokenString == c.GetHeader("Authorization") {
			c.Next()
			return
		}

		if claims, err := jwt.ParseToken(tokenString, jwtSecret); err == nil {
			setUser(c, claims.UserID)
		}
		c.Next()
	}
}

// setUser 同时写入 gin 上下文和请求 context，服务层通过 identity.Provider 读取
func setUser(c *gin.Context, userID string) {
	c.Set(UserIDKey, userID)
	c.Request = c.Request.WithContext(identity.WithUserID(c.Request.Context(), userID))
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}
