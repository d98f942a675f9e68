// Package cache 提供 Redis 缓存操作的封装
// 处理 JWT 黑名单、实时通道登记和连接状态变更广播
// 这里的数据都是临时的，丢失后不影响数据库中的记录
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"cloudconnect-server/internal/config"
)

// channelTTL 通道登记的最长存活时间，进程异常退出时由 Redis 自动清理
const channelTTL = 24 * time.Hour

// SessionBindingTTL 会话绑定标记的存活时间
// 通道存活期间需要在过期前调用 RefreshSessionBinding 续期
const SessionBindingTTL = 90 * time.Second

// connectionStatusChannel 连接状态变更的 Pub/Sub 频道
const connectionStatusChannel = "connection:status"

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例并测试连接
// 参数:
//   - cfg: Redis 连接配置
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient 使用已有客户端创建 RedisCache
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping 检查 Redis 连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ==================== JWT 黑名单 ====================

// BlacklistToken 将 Token 加入黑名单
// 登出时调用，TTL 为 Token 的剩余有效期
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值（不存储原始 Token）
//   - expireAt: Token 的原始过期时间
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash), "1", ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	return c.client.Exists(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash)).Val() > 0
}

// ==================== 实时通道 ====================
// channel:<id> 哈希记录通道归属和绑定的会话，关闭时删除

// RegisterChannel 登记新打开的通道
func (c *RedisCache) RegisterChannel(ctx context.Context, channelID string, userID int64) error {
	key := channelKey(channelID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":   userID,
		"opened_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, channelTTL)
	pipe.SAdd(ctx, userChannelsKey(userID), channelID)
	pipe.Expire(ctx, userChannelsKey(userID), channelTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// BindChannel 记录通道绑定的连接和会话
// 同时写入 session:<id>:channel，用于判断会话是否仍有通道持有
// 标记只存活 SessionBindingTTL，进程退出后很快过期
func (c *RedisCache) BindChannel(ctx context.Context, channelID string, connectionID, sessionID int64) error {
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, channelKey(channelID), map[string]interface{}{
		"connection_id": connectionID,
		"session_id":    sessionID,
	})
	pipe.Set(ctx, sessionChannelKey(sessionID), channelID, SessionBindingTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RefreshSessionBinding 续期会话绑定标记
func (c *RedisCache) RefreshSessionBinding(ctx context.Context, sessionID int64) error {
	return c.client.Expire(ctx, sessionChannelKey(sessionID), SessionBindingTTL).Err()
}

// UnregisterChannel 删除通道登记
func (c *RedisCache) UnregisterChannel(ctx context.Context, channelID string, userID int64) error {
	sessionID := parseInt64(c.client.HGet(ctx, channelKey(channelID), "session_id").Val())

	pipe := c.client.Pipeline()
	pipe.Del(ctx, channelKey(channelID))
	pipe.SRem(ctx, userChannelsKey(userID), channelID)
	if sessionID != 0 {
		pipe.Del(ctx, sessionChannelKey(sessionID))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// IsSessionBound 检查会话是否被某个存活的通道持有
func (c *RedisCache) IsSessionBound(ctx context.Context, sessionID int64) (bool, error) {
	n, err := c.client.Exists(ctx, sessionChannelKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountUserChannels 统计用户当前打开的通道数
func (c *RedisCache) CountUserChannels(ctx context.Context, userID int64) (int64, error) {
	return c.client.SCard(ctx, userChannelsKey(userID)).Result()
}

func channelKey(channelID string) string {
	return fmt.Sprintf("channel:%s", channelID)
}

func userChannelsKey(userID int64) string {
	return fmt.Sprintf("user:%d:channels", userID)
}

func sessionChannelKey(sessionID int64) string {
	return fmt.Sprintf("session:%d:channel", sessionID)
}

// ==================== Pub/Sub ====================
// 多实例部署时通过 Redis 广播连接状态变化

// ConnectionStatusEvent 连接状态变更事件
type ConnectionStatusEvent struct {
	UserID       int64  `json:"userId"`
	ConnectionID int64  `json:"connectionId"`
	SessionID    int64  `json:"sessionId,omitempty"` // 引起变更的会话
	Status       string `json:"status"`
	Timestamp    int64  `json:"timestamp"`
}

// PublishConnectionStatus 发布连接状态变更
// sessionID 为引起变更的会话，没有时传 0
func (c *RedisCache) PublishConnectionStatus(ctx context.Context, userID, connectionID, sessionID int64, status string) error {
	data, err := json.Marshal(ConnectionStatusEvent{
		UserID:       userID,
		ConnectionID: connectionID,
		SessionID:    sessionID,
		Status:       status,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, connectionStatusChannel, data).Err()
}

// SubscribeConnectionStatus 订阅连接状态变更
// 返回 PubSub 对象，调用方负责关闭
func (c *RedisCache) SubscribeConnectionStatus(ctx context.Context) *redis.PubSub {
	return c.client.Subscribe(ctx, connectionStatusChannel)
}

// ParseConnectionStatusEvent 解析订阅收到的消息
func ParseConnectionStatusEvent(payload string) (*ConnectionStatusEvent, error) {
	var evt ConnectionStatusEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
