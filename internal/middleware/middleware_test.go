package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/config"
	"cloudconnect-server/internal/database"
	"cloudconnect-server/internal/logging"
	"cloudconnect-server/internal/repository"
	"cloudconnect-server/internal/service"
	"cloudconnect-server/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupAuth(t *testing.T) (*service.AuthService, *service.TokenResponse) {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "mw.db"),
	}, "release")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	authService := service.NewAuthService(
		repository.NewUserRepository(db),
		cache.NewRedisCacheFromClient(client),
		jwt.NewJWTService("test-secret-key-at-least-32-characters!!", time.Hour, 24*time.Hour),
	)
	tokens, err := authService.Register(context.Background(), &service.RegisterRequest{Username: "demo", Password: "password"})
	require.NoError(t, err)
	return authService, tokens
}

func authRouter(authService *service.AuthService) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(authService, "cc_token"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": GetUserID(c), "username": c.GetString(ContextUsername)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	authService, tokens := setupAuth(t)
	r := authRouter(authService)

	tests := []struct {
		name   string
		setup  func(req *http.Request)
		status int
	}{
		{"missing token", func(req *http.Request) {}, http.StatusUnauthorized},
		{"malformed header", func(req *http.Request) { req.Header.Set("Authorization", "Token abc") }, http.StatusUnauthorized},
		{"invalid token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"refresh token rejected", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+tokens.RefreshToken) }, http.StatusUnauthorized},
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+tokens.AccessToken) }, http.StatusOK},
		{"cookie", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "cc_token", Value: tokens.AccessToken})
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Empty(t, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"username":"demo"`)
			}
		})
	}

	t.Run("logged out token", func(t *testing.T) {
		require.NoError(t, authService.Logout(context.Background(), tokens.User.ID, tokens.AccessToken, time.Now().Add(time.Hour), ""))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2, time.Minute)
	r := gin.New()
	r.POST("/login", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 其他 IP 不受影响
	assert.True(t, limiter.Allow("192.0.2.11"))
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(1, 1, time.Millisecond)
	limiter.Allow("192.0.2.1")
	time.Sleep(5 * time.Millisecond)
	limiter.Allow("192.0.2.2")

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	assert.NotContains(t, limiter.limiters, "192.0.2.1")
	assert.Contains(t, limiter.limiters, "192.0.2.2")
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, logging.RequestIDFromContext(c.Request.Context()))
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-id")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "upstream-id", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "upstream-id", w.Body.String())
	})
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(DefaultCORSConfig([]string{"http://localhost:5173"})))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":1004`)
}
