package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/logging"
	"cloudconnect-server/internal/metrics"
	"cloudconnect-server/internal/model"
	"cloudconnect-server/internal/service"
)

// ChannelState 通道状态
type ChannelState int

const (
	StateConnected ChannelState = iota // 已打开，未绑定会话
	StateBound                         // 已绑定会话，遥测推送中
	StateClosing                       // 已收到 disconnect，等待关闭
	StateClosed                        // 已关闭
)

func (s ChannelState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateBound:
		return "bound"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// 连接配置常量
const (
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 发出关闭帧后等待对端关闭的时间
	closeGracePeriod = time.Second

	maxMessageSize = 64 * 1024

	sendBufferSize = 256

	// 通道关闭后终止会话的超时
	cleanupTimeout = 5 * time.Second

	// 绑定标记的续期间隔，必须小于 cache.SessionBindingTTL
	bindingRefreshInterval = cache.SessionBindingTTL / 3
)

// 初始连接状态
const (
	initialQuality = "Good"
	initialLatency = 25
)

var qualities = []string{"Excellent", "Good", "Fair", "Poor"}

// Channel 一条实时通道
// 读循环逐条处理入站消息，写循环独占 socket 写操作
type Channel struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    int64
	clientIP  string
	userAgent string
	logger    zerolog.Logger

	// 通道生命周期，关闭时取消，遥测推送的 context 由它派生
	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	state             ChannelState
	connectionID      int64
	sessionID         int64
	sessionTerminated bool
	stopEmitters      context.CancelFunc
	sendClosed        bool

	closeOnce sync.Once
}

func newChannel(hub *Hub, conn *websocket.Conn, id string, userID int64, clientIP, userAgent string) *Channel {
	ctx, cancel := context.WithCancel(logging.ContextWithRequestID(context.Background(), id))
	return &Channel{
		id:        id,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		userID:    userID,
		clientIP:  clientIP,
		userAgent: userAgent,
		logger:    logging.With().Str("channel_id", id).Int64("user_id", userID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateConnected,
	}
}

// ID 通道 ID
func (c *Channel) ID() string {
	return c.id
}

// State 当前状态
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReadPump 读取并逐条处理入站消息
// 返回时通道进入 Closed 状态
func (c *Channel) ReadPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug().Err(err).Msg("channel read error")
			}
			return
		}
		c.dispatch(data)
	}
}

// WritePump 将发送队列写入 socket
// 队列关闭时先写完已排队的消息，再发送关闭帧
func (c *Channel) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	closing := false
	defer func() {
		ticker.Stop()
		// 正常关闭时由读循环在收到对端关闭帧后关闭 socket
		if !closing {
			c.conn.Close()
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				closing = true
				if err := c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
					c.conn.Close()
					return
				}
				// 对端不回应关闭帧时由读超时结束读循环
				c.conn.SetReadDeadline(time.Now().Add(closeGracePeriod))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send 向通道发送消息
// 通道进入 Closing 后不再接受新消息
func (c *Channel) Send(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state >= StateClosing {
		return false
	}
	return c.enqueueLocked(data, msg.Type)
}

// sendFrom 由遥测推送调用，ctx 取消后丢弃
// 取消和入队都在 mu 下进行，取消返回后不会再有事件入队
func (c *Channel) sendFrom(ctx context.Context, msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || c.state != StateBound {
		return false
	}
	return c.enqueueLocked(data, msg.Type)
}

func (c *Channel) enqueueLocked(data []byte, msgType string) bool {
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		metrics.RecordWSMessage(msgType)
		return true
	default:
		// 客户端处理不过来
		c.logger.Warn().Str("type", msgType).Msg("send buffer full, dropping message")
		return false
	}
}

// closeSendLocked 关闭发送队列，写循环写完剩余消息后发送关闭帧
func (c *Channel) closeSendLocked() {
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// dispatch 处理一条入站消息
// 处理失败只回复 error，不关闭通道
func (c *Channel) dispatch(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("channel handler panic")
			c.Send(NewErrorMessage("消息处理失败"))
		}
	}()

	if c.State() >= StateClosing {
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Send(NewErrorMessage("消息格式错误"))
		return
	}
	metrics.RecordWSMessage(msg.Type)

	switch msg.Type {
	case TypeConnect:
		c.handleConnect(&msg)
	case TypeDisconnect:
		c.handleDisconnect()
	case TypeKeyEvent, TypeMouseEvent, TypeTouchEvent:
		c.Send(NewAckMessage(msg.Type, msg.ID))
	default:
		c.Send(NewErrorMessage(fmt.Sprintf("未知的消息类型: %s", msg.Type)))
	}
}

// handleConnect 创建会话并绑定到通道
func (c *Channel) handleConnect(msg *Message) {
	if msg.ConnectionID <= 0 {
		c.Send(NewErrorMessage("缺少 connectionId"))
		return
	}
	if c.State() != StateConnected {
		c.Send(NewErrorMessage("通道已绑定会话"))
		return
	}

	session, err := c.hub.sessions.Create(c.ctx, c.userID, &service.CreateSessionRequest{
		ConnectionID: msg.ConnectionID,
		Protocol:     model.ProtocolWebSocket,
		ClientIP:     c.clientIP,
		UserAgent:    c.userAgent,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConnectionNotFound):
			c.Send(NewErrorMessage("连接不存在"))
		case errors.Is(err, service.ErrNoPermission):
			c.Send(NewErrorMessage("无权访问此连接"))
		default:
			c.logger.Error().Err(err).Int64("connection_id", msg.ConnectionID).Msg("create channel session failed")
			c.Send(NewErrorMessage(err.Error()))
		}
		return
	}

	data, err := json.Marshal(NewConnectedMessage(session.ConnectionID, session.ID))
	if err != nil {
		return
	}

	c.mu.Lock()
	c.state = StateBound
	c.connectionID = session.ConnectionID
	c.sessionID = session.ID
	c.enqueueLocked(data, TypeConnected)

	// connected 已入队，遥测事件只会排在它之后
	emitCtx, stop := context.WithCancel(c.ctx)
	c.stopEmitters = stop
	c.mu.Unlock()

	go c.emitStatus(emitCtx)
	go c.emitFrames(emitCtx)
	go c.keepBinding(emitCtx, session.ID)

	if err := c.hub.cache.BindChannel(c.ctx, c.id, session.ConnectionID, session.ID); err != nil {
		c.logger.Warn().Err(err).Msg("bind channel in redis failed")
	}

	c.logger.Info().
		Int64("connection_id", session.ConnectionID).
		Int64("session_id", session.ID).
		Msg("channel bound")
}

// handleDisconnect 终止会话，回复 disconnected 后关闭通道
func (c *Channel) handleDisconnect() {
	c.mu.Lock()
	if c.state >= StateClosing {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	if c.stopEmitters != nil {
		c.stopEmitters()
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID != 0 {
		if err := c.hub.sessions.TerminateBound(c.ctx, sessionID); err != nil {
			// 关闭时会再次尝试
			c.logger.Error().Err(err).Int64("session_id", sessionID).Msg("terminate channel session failed")
		} else {
			c.mu.Lock()
			c.sessionTerminated = true
			c.mu.Unlock()
		}
	}

	data, _ := json.Marshal(NewDisconnectedMessage())

	c.mu.Lock()
	c.enqueueLocked(data, TypeDisconnected)
	c.closeSendLocked()
	c.mu.Unlock()

	c.logger.Info().Int64("session_id", sessionID).Msg("channel disconnected")
}

// sessionEnded 绑定的会话在通道之外被终止（REST 终止、删除连接）
// 停止遥测，回复 disconnected 后关闭通道
func (c *Channel) sessionEnded(sessionID int64) {
	data, _ := json.Marshal(NewDisconnectedMessage())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateBound || c.sessionID != sessionID {
		return
	}
	c.state = StateClosing
	c.sessionTerminated = true
	if c.stopEmitters != nil {
		c.stopEmitters()
	}
	c.enqueueLocked(data, TypeDisconnected)
	c.closeSendLocked()

	c.logger.Info().Int64("session_id", sessionID).Msg("channel session terminated elsewhere")
}

// keepBinding 通道存活期间续期 Redis 中的绑定标记
func (c *Channel) keepBinding(ctx context.Context, sessionID int64) {
	ticker := time.NewTicker(bindingRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.hub.cache.RefreshSessionBinding(ctx, sessionID); err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Int64("session_id", sessionID).Msg("refresh session binding failed")
			}
		}
	}
}

// emitStatus 周期推送连接质量
func (c *Channel) emitStatus(ctx context.Context) {
	ticker := time.NewTicker(c.hub.telemetry.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quality := qualities[rand.Intn(len(qualities))]
			latency := 10 + rand.Intn(50)
			if !c.sendFrom(ctx, NewStatusMessage(quality, latency)) && ctx.Err() != nil {
				return
			}
		}
	}
}

// emitFrames 按帧率推送画面帧时间戳
func (c *Channel) emitFrames(ctx context.Context) {
	ticker := time.NewTicker(c.hub.telemetry.FrameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !c.sendFrom(ctx, NewFrameMessage(now)) && ctx.Err() != nil {
				return
			}
		}
	}
}

// close 通道关闭时的清理，只执行一次
// 停止遥测，终止仍未终止的会话，从 Hub 和 Redis 注销
func (c *Channel) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.cancel()
		sessionID := c.sessionID
		terminated := c.sessionTerminated
		c.closeSendLocked()
		c.mu.Unlock()

		if sessionID != 0 && !terminated {
			ctx, cancel := context.WithTimeout(logging.ContextWithRequestID(context.Background(), c.id), cleanupTimeout)
			if err := c.hub.sessions.TerminateBound(ctx, sessionID); err != nil {
				c.logger.Error().Err(err).Int64("session_id", sessionID).Msg("terminate session on close failed")
			}
			cancel()
		}

		c.hub.unregister(c)
		c.logger.Info().Int64("session_id", sessionID).Msg("channel closed")
	})
}
