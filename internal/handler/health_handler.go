package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cloudconnect-server/internal/cache"
)

// HealthHandler 健康检查
type HealthHandler struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewHealthHandler 创建 HealthHandler 实例
func NewHealthHandler(db *gorm.DB, cache *cache.RedisCache) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Health 检查数据库和 Redis 是否可用
// 任一依赖不可用时返回 503
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "redis": "ok"}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		healthy = false
	}
	if err := h.cache.Ping(ctx); err != nil {
		checks["redis"] = "unavailable"
		healthy = false
	}

	status := http.StatusOK
	checks["status"] = "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		checks["status"] = "degraded"
	}
	c.JSON(status, checks)
}
