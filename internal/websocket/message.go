// Package websocket 提供实时通道功能
// 每个浏览器标签页持有一条通道，绑定一个远程连接会话并接收模拟的遥测事件
package websocket

import (
	"encoding/json"
	"time"
)

// 消息类型常量
const (
	// 客户端 → 服务端
	TypeConnect    = "connect"    // 绑定远程连接，创建会话
	TypeDisconnect = "disconnect" // 终止会话并关闭通道
	TypeKeyEvent   = "keyEvent"   // 键盘输入
	TypeMouseEvent = "mouseEvent" // 鼠标输入
	TypeTouchEvent = "touchEvent" // 触摸输入

	// 服务端 → 客户端
	TypeConnected        = "connected"        // 会话已创建
	TypeDisconnected     = "disconnected"     // 会话已终止
	TypeConnectionStatus = "connectionStatus" // 连接质量
	TypeFrame            = "frame"            // 画面帧
	TypeConnectionUpdate = "connectionUpdate" // 连接在线状态变化
	TypeError            = "error"            // 错误消息

	// ackSuffix 输入事件确认消息的类型后缀，如 keyEventAck
	ackSuffix = "Ack"
)

// Message 通道消息结构
// 所有消息都是扁平的 JSON 对象，以 type 字段区分
type Message struct {
	Type         string          `json:"type"`
	ConnectionID int64           `json:"connectionId,omitempty"`
	SessionID    int64           `json:"sessionId,omitempty"`
	Status       string          `json:"status,omitempty"`
	Quality      string          `json:"quality,omitempty"`
	Latency      int             `json:"latency,omitempty"`
	Timestamp    int64           `json:"timestamp,omitempty"`
	ID           json.RawMessage `json:"id,omitempty"` // 输入事件 ID，原样回传
	Message      string          `json:"message,omitempty"`
}

// NewConnectedMessage 会话已创建
func NewConnectedMessage(connectionID, sessionID int64) *Message {
	return &Message{Type: TypeConnected, ConnectionID: connectionID, SessionID: sessionID}
}

// NewDisconnectedMessage 会话已终止
func NewDisconnectedMessage() *Message {
	return &Message{Type: TypeDisconnected}
}

// NewStatusMessage 连接质量
func NewStatusMessage(quality string, latency int) *Message {
	return &Message{Type: TypeConnectionStatus, Status: "connected", Quality: quality, Latency: latency}
}

// NewFrameMessage 画面帧，时间戳为毫秒
func NewFrameMessage(t time.Time) *Message {
	return &Message{Type: TypeFrame, Timestamp: t.UnixMilli()}
}

// NewAckMessage 输入事件确认
func NewAckMessage(eventType string, id json.RawMessage) *Message {
	return &Message{Type: eventType + ackSuffix, ID: id}
}

// NewErrorMessage 错误消息
func NewErrorMessage(message string) *Message {
	return &Message{Type: TypeError, Message: message}
}

// NewConnectionUpdateMessage 连接在线状态变化
func NewConnectionUpdateMessage(connectionID int64, status string, timestamp int64) *Message {
	return &Message{Type: TypeConnectionUpdate, ConnectionID: connectionID, Status: status, Timestamp: timestamp}
}
