package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudconnect-server/internal/config"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCacheFromClient(client), mr
}

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr), PoolSize: 2})
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return port
}

func TestTokenBlacklist(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	assert.False(t, c.IsTokenBlacklisted(ctx, "abc"))
	require.NoError(t, c.BlacklistToken(ctx, "abc", time.Now().Add(time.Minute)))
	assert.True(t, c.IsTokenBlacklisted(ctx, "abc"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, c.IsTokenBlacklisted(ctx, "abc"))

	// 已过期的 Token 不写入
	require.NoError(t, c.BlacklistToken(ctx, "old", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists("jwt:blacklist:old"))
}

func TestChannelRegistry(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.RegisterChannel(ctx, "ch-1", 7))
	require.NoError(t, c.RegisterChannel(ctx, "ch-2", 7))

	n, err := c.CountUserChannels(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, c.BindChannel(ctx, "ch-1", 3, 11))
	bound, err := c.IsSessionBound(ctx, 11)
	require.NoError(t, err)
	assert.True(t, bound)
	assert.Equal(t, "7", mr.HGet("channel:ch-1", "user_id"))
	assert.Equal(t, "3", mr.HGet("channel:ch-1", "connection_id"))
	assert.Equal(t, "11", mr.HGet("channel:ch-1", "session_id"))

	require.NoError(t, c.UnregisterChannel(ctx, "ch-1", 7))
	bound, err = c.IsSessionBound(ctx, 11)
	require.NoError(t, err)
	assert.False(t, bound)
	assert.False(t, mr.Exists("channel:ch-1"))

	n, err = c.CountUserChannels(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionBindingExpires(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.RegisterChannel(ctx, "ch-1", 7))
	require.NoError(t, c.BindChannel(ctx, "ch-1", 3, 11))
	require.NoError(t, c.BindChannel(ctx, "ch-2", 4, 12))

	// ch-1 持续续期，ch-2 所在进程已退出
	mr.FastForward(SessionBindingTTL / 2)
	require.NoError(t, c.RefreshSessionBinding(ctx, 11))
	mr.FastForward(SessionBindingTTL/2 + time.Second)

	bound, err := c.IsSessionBound(ctx, 11)
	require.NoError(t, err)
	assert.True(t, bound)

	bound, err = c.IsSessionBound(ctx, 12)
	require.NoError(t, err)
	assert.False(t, bound)
}

func TestPublishConnectionStatus(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	sub := c.SubscribeConnectionStatus(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, c.PublishConnectionStatus(ctx, 1, 2, 3, "online"))

	select {
	case msg := <-sub.Channel():
		evt, err := ParseConnectionStatusEvent(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, int64(1), evt.UserID)
		assert.Equal(t, int64(2), evt.ConnectionID)
		assert.Equal(t, int64(3), evt.SessionID)
		assert.Equal(t, "online", evt.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("没有收到状态事件")
	}
}
