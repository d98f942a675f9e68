// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"

	"gorm.io/datatypes"
)

// ConnectionStatus 连接状态常量
const (
	ConnectionStatusOnline  = "online"  // 有活跃会话
	ConnectionStatusOffline = "offline" // 无活跃会话
	ConnectionStatusAway    = "away"    // 离开
)

// 操作系统标签
const (
	OSWindows = "Windows"
	OSLinux   = "Linux"
	OSMacOS   = "MacOS"
)

// DefaultConnectionPort 未指定端口时使用 RDP 默认端口
const DefaultConnectionPort = 3389

// ConnectionCredentials 连接凭据
// 以 JSON 形式存储在 connections.credentials 列
type ConnectionCredentials struct {
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	Certificate      string `json:"certificate,omitempty"`
	RememberPassword bool   `json:"rememberPassword,omitempty"`
}

// Connection 远程连接目标模型
// 对应数据库表 connections
type Connection struct {
	// ID 连接唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 所属用户ID，只能由服务端根据登录身份填写
	UserID int64 `gorm:"index;not null" json:"userId"`

	// Name 显示名称，例如 "Development Workstation"
	Name string `gorm:"size:100;not null" json:"name"`

	// Host 主机地址（IP 或域名）
	Host string `gorm:"size:255;not null" json:"host"`

	// Port 端口，默认 3389
	Port int `gorm:"not null;default:3389" json:"port"`

	// OS 操作系统标签: Windows / Linux / MacOS
	OS string `gorm:"column:os;size:20;not null;default:Windows" json:"os"`

	// Status 连接状态
	// 会话创建时置为 online，会话终止时置为 offline
	Status string `gorm:"size:20;not null;default:offline;index" json:"status"`

	// LastAccessed 最后访问时间
	LastAccessed *time.Time `json:"lastAccessed,omitempty"`

	// Credentials 登录凭据
	Credentials datatypes.JSONType[ConnectionCredentials] `json:"credentials"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定表名
func (Connection) TableName() string {
	return "connections"
}

// Sanitized 返回去掉凭据密码的副本，所有对外输出都应使用它
func (c *Connection) Sanitized() *Connection {
	if c == nil {
		return nil
	}
	out := *c
	creds := c.Credentials.Data()
	creds.Password = ""
	out.Credentials = datatypes.NewJSONType(creds)
	return &out
}

// IsValidOS 检查操作系统标签是否合法
func IsValidOS(os string) bool {
	switch os {
	case OSWindows, OSLinux, OSMacOS:
		return true
	}
	return false
}
