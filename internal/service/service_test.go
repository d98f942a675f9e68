package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/config"
	"cloudconnect-server/internal/database"
	"cloudconnect-server/internal/model"
	"cloudconnect-server/internal/repository"
	"cloudconnect-server/pkg/jwt"
)

const testSecret = "test-secret-key-at-least-32-characters!!"

type testEnv struct {
	db          *gorm.DB
	mr          *miniredis.Miniredis
	cache       *cache.RedisCache
	auth        *AuthService
	users       *UserService
	connections *ConnectionService
	sessions    *SessionService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "service.db"),
	}, "release")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	redisCache := cache.NewRedisCacheFromClient(client)

	userRepo := repository.NewUserRepository(db)
	connRepo := repository.NewConnectionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	jwtService := jwt.NewJWTService(testSecret, time.Hour, 24*time.Hour)

	return &testEnv{
		db:          db,
		mr:          mr,
		cache:       redisCache,
		auth:        NewAuthService(userRepo, redisCache, jwtService),
		users:       NewUserService(userRepo),
		connections: NewConnectionService(connRepo, sessionRepo, redisCache),
		sessions:    NewSessionService(sessionRepo, connRepo, redisCache),
	}
}

func (e *testEnv) register(t *testing.T, username string) *model.User {
	t.Helper()
	resp, err := e.auth.Register(context.Background(), &RegisterRequest{Username: username, Password: "password"})
	require.NoError(t, err)
	return resp.User
}

func (e *testEnv) createConnection(t *testing.T, userID int64) *model.Connection {
	t.Helper()
	conn, err := e.connections.Create(context.Background(), userID, &CreateConnectionRequest{
		Name: "Dev",
		Host: "10.0.0.1",
		Port: 3389,
		OS:   model.OSWindows,
	})
	require.NoError(t, err)
	return conn
}

func TestAuthService(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	reg, err := env.auth.Register(ctx, &RegisterRequest{Username: "demo", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotEmpty(t, reg.RefreshToken)

	t.Run("duplicate register", func(t *testing.T) {
		_, err := env.auth.Register(ctx, &RegisterRequest{Username: "demo", Password: "password"})
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("login", func(t *testing.T) {
		resp, err := env.auth.Login(ctx, &LoginRequest{Username: "demo", Password: "password"})
		require.NoError(t, err)
		assert.Equal(t, "demo", resp.User.Username)

		_, err = env.auth.Login(ctx, &LoginRequest{Username: "demo", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = env.auth.Login(ctx, &LoginRequest{Username: "nobody", Password: "password"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("authenticate and logout", func(t *testing.T) {
		claims, err := env.auth.Authenticate(ctx, reg.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, claims.UserID)

		require.NoError(t, env.auth.Logout(ctx, reg.User.ID, reg.AccessToken, claims.ExpiresAt.Time, ""))
		_, err = env.auth.Authenticate(ctx, reg.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("logout revokes refresh token", func(t *testing.T) {
		login, err := env.auth.Login(ctx, &LoginRequest{Username: "demo", Password: "password"})
		require.NoError(t, err)
		other, err := env.auth.Register(ctx, &RegisterRequest{Username: "other", Password: "password"})
		require.NoError(t, err)

		claims, err := env.auth.Authenticate(ctx, login.AccessToken)
		require.NoError(t, err)
		require.NoError(t, env.auth.Logout(ctx, login.User.ID, login.AccessToken, claims.ExpiresAt.Time, login.RefreshToken))

		_, err = env.auth.RefreshToken(ctx, login.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken)

		// 其他用户的 Refresh Token 不受影响
		require.NoError(t, env.auth.Logout(ctx, login.User.ID, login.AccessToken, claims.ExpiresAt.Time, other.RefreshToken))
		_, err = env.auth.RefreshToken(ctx, other.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("refresh", func(t *testing.T) {
		resp, err := env.auth.RefreshToken(ctx, reg.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)

		_, err = env.auth.RefreshToken(ctx, resp.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("profile", func(t *testing.T) {
		user, err := env.users.GetProfile(ctx, reg.User.ID)
		require.NoError(t, err)
		assert.Equal(t, "demo", user.Username)

		_, err = env.users.GetProfile(ctx, 9999)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestConnectionService(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.register(t, "owner")
	other := env.register(t, "other")

	conn, err := env.connections.Create(ctx, owner.ID, &CreateConnectionRequest{
		Name:        "Dev",
		Host:        "10.0.0.1",
		Credentials: &model.ConnectionCredentials{Username: "admin", Password: "secret"},
	})
	require.NoError(t, err)

	t.Run("create applies defaults and hides password", func(t *testing.T) {
		assert.Equal(t, owner.ID, conn.UserID)
		assert.Equal(t, model.ConnectionStatusOffline, conn.Status)
		assert.Equal(t, model.DefaultConnectionPort, conn.Port)
		assert.Equal(t, model.OSWindows, conn.OS)
		assert.NotNil(t, conn.LastAccessed)
		assert.Equal(t, "admin", conn.Credentials.Data().Username)
		assert.Empty(t, conn.Credentials.Data().Password)
	})

	t.Run("get checks existence before ownership", func(t *testing.T) {
		_, err := env.connections.Get(ctx, other.ID, 9999)
		assert.ErrorIs(t, err, ErrConnectionNotFound)

		_, err = env.connections.Get(ctx, other.ID, conn.ID)
		assert.ErrorIs(t, err, ErrNoPermission)

		got, err := env.connections.Get(ctx, owner.ID, conn.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dev", got.Name)
	})

	t.Run("update merges fields", func(t *testing.T) {
		name := "Dev Box"
		updated, err := env.connections.Update(ctx, owner.ID, conn.ID, &UpdateConnectionRequest{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Dev Box", updated.Name)
		assert.Equal(t, "10.0.0.1", updated.Host)

		_, err = env.connections.Update(ctx, other.ID, conn.ID, &UpdateConnectionRequest{Name: &name})
		assert.ErrorIs(t, err, ErrNoPermission)
	})

	t.Run("list is scoped to caller", func(t *testing.T) {
		list, err := env.connections.List(ctx, owner.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = env.connections.List(ctx, other.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("delete", func(t *testing.T) {
		err := env.connections.Delete(ctx, other.ID, conn.ID)
		assert.ErrorIs(t, err, ErrNoPermission)

		require.NoError(t, env.connections.Delete(ctx, owner.ID, conn.ID))
		_, err = env.connections.Get(ctx, owner.ID, conn.ID)
		assert.ErrorIs(t, err, ErrConnectionNotFound)
	})
}

func TestSessionLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.register(t, "demo")
	other := env.register(t, "other")
	conn := env.createConnection(t, owner.ID)

	detail, err := env.sessions.Create(ctx, owner.ID, &CreateSessionRequest{
		ConnectionID: conn.ID,
		ClientIP:     "192.0.2.1",
		UserAgent:    "test-agent",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, detail.Status)
	assert.Equal(t, model.ProtocolRDP, detail.Protocol)
	assert.Equal(t, model.ConnectionStatusOnline, detail.Connection.Status)
	assert.Equal(t, "demo", detail.User.Username)
	assert.Equal(t, "demo@example.com", detail.User.Email)
	assert.Equal(t, "192.0.2.1", detail.ClientInfo.Data().IP)
	assert.NotEmpty(t, detail.ConnectedTime)

	t.Run("foreign connection", func(t *testing.T) {
		_, err := env.sessions.Create(ctx, other.ID, &CreateSessionRequest{ConnectionID: conn.ID})
		assert.ErrorIs(t, err, ErrNoPermission)

		_, err = env.sessions.Create(ctx, owner.ID, &CreateSessionRequest{ConnectionID: 9999})
		assert.ErrorIs(t, err, ErrConnectionNotFound)
	})

	t.Run("list and get", func(t *testing.T) {
		list, err := env.sessions.List(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)

		active, err := env.sessions.ListActive(ctx, owner.ID)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		_, err = env.sessions.Get(ctx, other.ID, detail.ID)
		assert.ErrorIs(t, err, ErrNoPermission)

		_, err = env.sessions.Get(ctx, owner.ID, 9999)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := env.connections.Stats(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalConnections)
		assert.Equal(t, int64(1), stats.OnlineConnections)
		assert.Equal(t, int64(1), stats.ActiveSessions)
	})

	t.Run("terminate", func(t *testing.T) {
		assert.ErrorIs(t, env.sessions.Terminate(ctx, other.ID, detail.ID), ErrNoPermission)
		assert.NoError(t, env.sessions.Terminate(ctx, owner.ID, 9999))

		require.NoError(t, env.sessions.Terminate(ctx, owner.ID, detail.ID))
		got, err := env.connections.Get(ctx, owner.ID, conn.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ConnectionStatusOffline, got.Status)

		// 重复终止不报错
		assert.NoError(t, env.sessions.TerminateBound(ctx, detail.ID))

		active, err := env.sessions.ListActive(ctx, owner.ID)
		require.NoError(t, err)
		assert.Empty(t, active)
	})
}

func TestDeletedConnectionHidesSessions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.register(t, "demo")
	conn := env.createConnection(t, owner.ID)

	_, err := env.sessions.Create(ctx, owner.ID, &CreateSessionRequest{ConnectionID: conn.ID})
	require.NoError(t, err)

	require.NoError(t, env.connections.Delete(ctx, owner.ID, conn.ID))

	list, err := env.sessions.List(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReapOrphanedChannelSessions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	owner := env.register(t, "demo")
	conn := env.createConnection(t, owner.ID)
	crashedConn := env.createConnection(t, owner.ID)

	newSession := func(connID int64, protocol string) *SessionDetail {
		t.Helper()
		s, err := env.sessions.Create(ctx, owner.ID, &CreateSessionRequest{ConnectionID: connID, Protocol: protocol})
		require.NoError(t, err)
		return s
	}

	// 从未写入绑定标记
	unbound := newSession(conn.ID, model.ProtocolWebSocket)

	// 进程崩溃：绑定后没有注销，标记不再续期
	crashed := newSession(crashedConn.ID, model.ProtocolWebSocket)
	require.NoError(t, env.cache.RegisterChannel(ctx, "ch-crashed", owner.ID))
	require.NoError(t, env.cache.BindChannel(ctx, "ch-crashed", crashedConn.ID, crashed.ID))

	live := newSession(conn.ID, model.ProtocolWebSocket)
	require.NoError(t, env.cache.BindChannel(ctx, "ch-live", conn.ID, live.ID))

	rdp := newSession(conn.ID, model.ProtocolRDP)

	// 崩溃后过了一段时间，存活的通道一直在续期
	env.mr.FastForward(cache.SessionBindingTTL / 2)
	require.NoError(t, env.cache.RefreshSessionBinding(ctx, live.ID))
	env.mr.FastForward(cache.SessionBindingTTL/2 + time.Second)
	later := time.Now().Add(2 * cache.SessionBindingTTL)
	env.sessions.now = func() time.Time { return later }

	// 刚创建、还没来得及绑定的会话
	fresh := newSession(conn.ID, model.ProtocolWebSocket)

	reaped, err := env.sessions.ReapOrphanedChannelSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reaped)

	active, err := env.sessions.ListActive(ctx, owner.ID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(active))
	for _, s := range active {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []int64{live.ID, rdp.ID, fresh.ID}, ids)
	assert.NotContains(t, ids, unbound.ID)
	assert.NotContains(t, ids, crashed.ID)

	got, err := env.connections.Get(ctx, owner.ID, crashedConn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionStatusOffline, got.Status)

	// 再次调用没有可回收的会话
	reaped, err = env.sessions.ReapOrphanedChannelSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, reaped)
}
