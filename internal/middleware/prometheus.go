package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cloudconnect-server/internal/metrics"
)

// PrometheusMiddleware 记录 HTTP 请求数量和耗时
// 使用路由模板作为 path 标签，避免 ID 造成标签基数膨胀
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
