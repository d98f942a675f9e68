package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/config"
	"cloudconnect-server/internal/logging"
	"cloudconnect-server/internal/metrics"
	"cloudconnect-server/internal/model"
	"cloudconnect-server/internal/service"
)

// orphanReapInterval 回收无主通道会话的间隔
const orphanReapInterval = time.Minute

// Hub 是实时通道的中心管理器
// 负责：
// 1. 登记所有打开的通道（内存 + Redis）
// 2. 将 Redis 广播的连接状态变化转发给对应用户的通道
// 3. 定期回收崩溃实例遗留的通道会话
// 4. 关闭服务时关闭所有通道
type Hub struct {
	// 通道映射：channelID -> *Channel
	channels map[string]*Channel

	// 用户到通道的映射：userID -> 通道集合
	// 一个用户可以同时打开多个标签页
	userChannels map[int64]map[*Channel]struct{}

	mu sync.RWMutex

	// 等待所有通道完成清理
	wg sync.WaitGroup

	sessions  *service.SessionService
	cache     *cache.RedisCache
	telemetry config.TelemetryConfig
}

// NewHub 创建 Hub 实例
func NewHub(sessions *service.SessionService, cache *cache.RedisCache, telemetry config.TelemetryConfig) *Hub {
	return &Hub{
		channels:     make(map[string]*Channel),
		userChannels: make(map[int64]map[*Channel]struct{}),
		sessions:     sessions,
		cache:        cache,
		telemetry:    telemetry,
	}
}

// Run 订阅连接状态广播并转发给用户的通道，同时定期回收无主会话
// ctx 取消时退出，应该在单独的 goroutine 中运行
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.cache.SubscribeConnectionStatus(ctx)
	defer pubsub.Close()

	reapTicker := time.NewTicker(orphanReapInterval)
	defer reapTicker.Stop()

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-reapTicker.C:
			h.reapOrphans(ctx)
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			evt, err := cache.ParseConnectionStatusEvent(msg.Payload)
			if err != nil {
				logging.Warn().Err(err).Msg("invalid connection status event")
				continue
			}
			h.SendToUser(evt.UserID, NewConnectionUpdateMessage(evt.ConnectionID, evt.Status, evt.Timestamp))
			if evt.Status == model.ConnectionStatusOffline && evt.SessionID != 0 {
				h.sessionEnded(evt.UserID, evt.SessionID)
			}
		}
	}
}

// sessionEnded 关闭绑定了已终止会话的通道
func (h *Hub) sessionEnded(userID, sessionID int64) {
	for _, ch := range h.userTargets(userID) {
		ch.sessionEnded(sessionID)
	}
}

func (h *Hub) reapOrphans(ctx context.Context) {
	reaped, err := h.sessions.ReapOrphanedChannelSessions(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("reap orphaned channel sessions failed")
		return
	}
	if reaped > 0 {
		logging.Info().Int("count", reaped).Msg("orphaned channel sessions terminated")
	}
}

// Open 为已升级的 socket 创建通道并启动读写循环
// 通道打开后立即推送一次初始连接状态
func (h *Hub) Open(conn *websocket.Conn, channelID string, userID int64, clientIP, userAgent string) *Channel {
	ch := newChannel(h, conn, channelID, userID, clientIP, userAgent)
	h.register(ch)

	ch.Send(NewStatusMessage(initialQuality, initialLatency))

	go ch.WritePump()
	go ch.ReadPump()
	return ch
}

// register 登记通道
func (h *Hub) register(ch *Channel) {
	h.mu.Lock()
	h.channels[ch.id] = ch
	if h.userChannels[ch.userID] == nil {
		h.userChannels[ch.userID] = make(map[*Channel]struct{})
	}
	h.userChannels[ch.userID][ch] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	metrics.TrackChannel(true)
	if err := h.cache.RegisterChannel(ch.ctx, ch.id, ch.userID); err != nil {
		ch.logger.Warn().Err(err).Msg("register channel in redis failed")
	}
	ch.logger.Info().Str("client_ip", ch.clientIP).Msg("channel opened")
}

// unregister 注销通道，由通道关闭时调用
func (h *Hub) unregister(ch *Channel) {
	h.mu.Lock()
	if _, ok := h.channels[ch.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.channels, ch.id)
	if set := h.userChannels[ch.userID]; set != nil {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.userChannels, ch.userID)
		}
	}
	h.mu.Unlock()

	// 通道 context 已取消
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := h.cache.UnregisterChannel(ctx, ch.id, ch.userID); err != nil {
		ch.logger.Warn().Err(err).Msg("unregister channel in redis failed")
	}

	metrics.TrackChannel(false)
	h.wg.Done()
}

// SendToUser 向用户的所有通道发送消息
func (h *Hub) SendToUser(userID int64, msg *Message) {
	for _, ch := range h.userTargets(userID) {
		ch.Send(msg)
	}
}

// userTargets 复制用户当前的通道列表，发送时不持有锁
func (h *Hub) userTargets(userID int64) []*Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := make([]*Channel, 0, len(h.userChannels[userID]))
	for ch := range h.userChannels[userID] {
		targets = append(targets, ch)
	}
	return targets
}

// Count 当前打开的通道数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// CloseAll 关闭所有通道并等待清理完成
// 每个通道关闭时会终止其绑定的会话
func (h *Hub) CloseAll(ctx context.Context) error {
	h.mu.RLock()
	targets := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		ch.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
