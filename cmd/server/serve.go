package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/handler"
	"cloudconnect-server/internal/logging"
	"cloudconnect-server/internal/repository"
	"cloudconnect-server/internal/service"
	"cloudconnect-server/internal/websocket"
	"cloudconnect-server/pkg/jwt"
)

// shutdownTimeout 优雅关闭的最长等待时间
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 和实时通道服务",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化数据库
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	// 初始化 Redis
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpire, cfg.JWT.RefreshExpire)

	// Repository 层
	userRepo := repository.NewUserRepository(db)
	connRepo := repository.NewConnectionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	// Service 层
	authService := service.NewAuthService(userRepo, redisCache, jwtService)
	userService := service.NewUserService(userRepo)
	connectionService := service.NewConnectionService(connRepo, sessionRepo, redisCache)
	sessionService := service.NewSessionService(sessionRepo, connRepo, redisCache)

	// 上次异常退出遗留的通道会话
	if reaped, err := sessionService.ReapOrphanedChannelSessions(cmd.Context()); err != nil {
		logging.Warn().Err(err).Msg("reap orphaned channel sessions failed")
	} else if reaped > 0 {
		logging.Info().Int("count", reaped).Msg("orphaned channel sessions terminated")
	}

	// 实时通道
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := websocket.NewHub(sessionService, redisCache, cfg.Telemetry)
	go wsHub.Run(hubCtx)
	wsHandler := websocket.NewHandler(wsHub, authService, cfg.JWT.CookieName, cfg.Server.CORS)

	router, err := handler.NewRouter(handler.RouterDeps{
		Config:            cfg,
		DB:                db,
		Cache:             redisCache,
		AuthService:       authService,
		UserService:       userService,
		ConnectionService: connectionService,
		SessionService:    sessionService,
		WSHandler:         wsHandler,
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Str("mode", cfg.Server.Mode).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logging.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 已升级的 socket 不受 Shutdown 管理，单独关闭并终止绑定的会话
	if err := wsHub.CloseAll(ctx); err != nil {
		logging.Warn().Err(err).Msg("close channels timed out")
	}
	stopHub()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logging.Info().Msg("server exited")
	return nil
}
