package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/config"
	"cloudconnect-server/internal/middleware"
	"cloudconnect-server/internal/service"
	"cloudconnect-server/internal/websocket"
)

// rateLimitTTL 限流器中空闲 IP 的保留时间
const rateLimitTTL = 10 * time.Minute

// RouterDeps 构建路由所需的依赖
type RouterDeps struct {
	Config            *config.Config
	DB                *gorm.DB
	Cache             *cache.RedisCache
	AuthService       *service.AuthService
	UserService       *service.UserService
	ConnectionService *service.ConnectionService
	SessionService    *service.SessionService
	WSHandler         *websocket.Handler
}

// NewRouter 创建 Gin 引擎并注册所有路由
func NewRouter(d RouterDeps) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	cfg := d.Config
	router := gin.New()

	// 全局中间件
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.PrometheusMiddleware())
	router.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig(cfg.Server.CORS)))

	authHandler := NewAuthHandler(d.AuthService, cfg.JWT.CookieName, cfg.Server.Mode == "release")
	userHandler := NewUserHandler(d.UserService)
	connectionHandler := NewConnectionHandler(d.ConnectionService)
	sessionHandler := NewSessionHandler(d.SessionService)
	healthHandler := NewHealthHandler(d.DB, d.Cache)

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	// 登录注册按 IP 限流
	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst, rateLimitTTL)
	api.POST("/register", limiter.Middleware(), authHandler.Register)
	api.POST("/login", limiter.Middleware(), authHandler.Login)
	api.POST("/refresh", limiter.Middleware(), authHandler.RefreshToken)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(d.AuthService, cfg.JWT.CookieName))
	{
		authed.POST("/logout", authHandler.Logout)
		authed.GET("/user", userHandler.GetProfile)
		authed.GET("/stats", connectionHandler.GetStats)
	}

	connections := authed.Group("/connections")
	{
		connections.GET("", connectionHandler.ListConnections)
		connections.POST("", connectionHandler.CreateConnection)
		connections.GET("/:id", connectionHandler.GetConnection)
		connections.PUT("/:id", connectionHandler.UpdateConnection)
		connections.DELETE("/:id", connectionHandler.DeleteConnection)
	}

	sessions := authed.Group("/sessions")
	{
		sessions.GET("", sessionHandler.ListSessions)
		sessions.GET("/active", sessionHandler.ListActiveSessions)
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.POST("", sessionHandler.CreateSession)
		sessions.DELETE("/:id", sessionHandler.TerminateSession)
	}

	if d.WSHandler != nil {
		d.WSHandler.RegisterRoutes(router)
	}

	return router, nil
}
