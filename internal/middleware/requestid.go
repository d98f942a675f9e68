package middleware

import (
	"github.com/gin-gonic/gin"

	"cloudconnect-server/internal/logging"
)

// RequestIDHeader 请求 ID 响应头
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware 为每个请求分配唯一 ID
// 上游代理已带 X-Request-ID 时沿用，ID 同时写入响应头和请求 context
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}
