// Package model 定义了与数据库表对应的数据结构
package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// SessionStatus 会话状态常量
const (
	SessionStatusActive     = "active"     // 活跃中
	SessionStatusIdle       = "idle"       // 空闲
	SessionStatusTerminated = "terminated" // 已终止，此后不可变
)

// 会话协议标签
const (
	ProtocolRDP       = "RDP"
	ProtocolSSH       = "SSH"
	ProtocolVNC       = "VNC"
	ProtocolWebSocket = "WebSocket"
)

// ClientInfo 发起会话的客户端信息
type ClientInfo struct {
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// Session 会话模型
// 对应数据库表 sessions
// 表示一次连接尝试，从创建到终止
type Session struct {
	// ID 会话唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 发起会话的用户
	UserID int64 `gorm:"index;not null" json:"userId"`

	// ConnectionID 目标连接
	// 连接被删除后保留原值，读取时过滤
	ConnectionID int64 `gorm:"index;not null" json:"connectionId"`

	// Status 会话状态: active / idle / terminated
	Status string `gorm:"size:20;not null;default:active;index" json:"status"`

	// StartTime 开始时间
	StartTime time.Time `gorm:"not null" json:"startTime"`

	// EndTime 结束时间，仅终止后有值
	EndTime *time.Time `json:"endTime,omitempty"`

	// Duration 可读的持续时间，如 "1h 24m"
	Duration *string `gorm:"size:50" json:"duration,omitempty"`

	// Protocol 协议标签: RDP / SSH / VNC / WebSocket
	Protocol string `gorm:"size:20;not null" json:"protocol"`

	// ClientInfo 客户端信息
	ClientInfo datatypes.JSONType[ClientInfo] `json:"clientInfo"`

	// ConnectedTime 连接时刻的展示字段，如 "9:32 AM"
	ConnectedTime string `gorm:"size:20" json:"connectedTime,omitempty"`

	// ConnectedDate 连接日期的展示字段
	ConnectedDate string `gorm:"size:30" json:"connectedDate,omitempty"`

	// User 发起用户（多对一，读取时 JOIN 填充）
	User *User `gorm:"foreignKey:UserID" json:"-"`

	// Connection 目标连接（多对一，读取时 JOIN 填充）
	Connection *Connection `gorm:"foreignKey:ConnectionID" json:"-"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "sessions"
}

// IsTerminated 会话是否已终止
func (s *Session) IsTerminated() bool {
	return s.Status == SessionStatusTerminated
}

// FormatDuration 将时长格式化为 "1h 24m" / "45m" / "30s"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// DisplayTime 返回 connectedTime 展示字段
func DisplayTime(t time.Time) string {
	return t.Format("3:04 PM")
}

// DisplayDate 返回 connectedDate 展示字段
func DisplayDate(t time.Time) string {
	return t.Format("Jan 2, 2006")
}
