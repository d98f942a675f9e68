// Package middleware 提供 HTTP 请求的中间件
// 包括 JWT 认证、CORS 跨域、日志记录、限流等
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"cloudconnect-server/internal/service"
	"cloudconnect-server/pkg/response"
)

// 认证后写入 gin.Context 的键
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextToken    = "token"
	ContextTokenExp = "token_exp"
)

// AuthMiddleware 创建认证中间件
// Token 依次从 Authorization: Bearer 和 Cookie 中读取
// 未认证时直接返回 401，不带响应体，也不会进入后续的存在性/所有权校验
// 参数:
//   - authService: 认证服务，负责校验签名、过期和黑名单
//   - cookieName: 浏览器登录 Cookie 名称
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func AuthMiddleware(authService *service.AuthService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c, cookieName)
		if token == "" {
			response.Unauthorized(c)
			return
		}

		claims, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c)
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextToken, token)
		c.Set(ContextTokenExp, claims.ExpiresAt.Time)

		c.Next()
	}
}

// ExtractToken 从请求中提取 Token
// Authorization 头优先，其次是 Cookie
func ExtractToken(c *gin.Context, cookieName string) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil {
			return cookie
		}
	}
	return ""
}

// GetUserID 从上下文获取用户 ID
// 返回:
//   - int64: 用户 ID，如果未认证返回 0
func GetUserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}
