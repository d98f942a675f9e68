package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cloudconnect-server/internal/model"
)

// DemoUsername 演示账号
const DemoUsername = "demo"

// Seed 写入演示账号、三个连接和三条会话
// 演示账号已存在时跳过，返回 false
// 参数:
//   - ctx: 上下文
//   - db: 数据库连接
//   - passwordHash: 演示账号的密码哈希
//   - now: 会话开始时间以此为基准往前推
func Seed(ctx context.Context, db *gorm.DB, passwordHash string, now time.Time) (bool, error) {
	var existing model.User
	err := db.WithContext(ctx).Where("username = ?", DemoUsername).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("query demo user: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := &model.User{Username: DemoUsername, PasswordHash: passwordHash}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create demo user: %w", err)
		}

		connections := []*model.Connection{
			demoConnection(user.ID, "Development Workstation", "192.168.1.100", 3389, model.OSWindows, model.ConnectionStatusOnline, now.Add(-2*time.Hour)),
			demoConnection(user.ID, "Production Server", "10.0.0.15", 22, model.OSLinux, model.ConnectionStatusOnline, now.Add(-24*time.Hour)),
			demoConnection(user.ID, "Design Workstation", "192.168.1.105", 5900, model.OSMacOS, model.ConnectionStatusAway, now.Add(-72*time.Hour)),
		}
		if err := tx.Create(&connections).Error; err != nil {
			return fmt.Errorf("create demo connections: %w", err)
		}

		sessions := []*model.Session{
			demoSession(user.ID, connections[0].ID, model.SessionStatusActive, model.ProtocolRDP, now.Add(-time.Hour), 84*time.Minute),
			demoSession(user.ID, connections[1].ID, model.SessionStatusActive, model.ProtocolSSH, now.Add(-45*time.Minute), 45*time.Minute),
			demoSession(user.ID, connections[2].ID, model.SessionStatusIdle, model.ProtocolVNC, now.Add(-2*time.Hour), 131*time.Minute),
		}
		if err := tx.Create(&sessions).Error; err != nil {
			return fmt.Errorf("create demo sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func demoConnection(userID int64, name, host string, port int, os, status string, lastAccessed time.Time) *model.Connection {
	return &model.Connection{
		UserID:       userID,
		Name:         name,
		Host:         host,
		Port:         port,
		OS:           os,
		Status:       status,
		LastAccessed: &lastAccessed,
		Credentials:  datatypes.NewJSONType(model.ConnectionCredentials{}),
	}
}

func demoSession(userID, connectionID int64, status, protocol string, start time.Time, elapsed time.Duration) *model.Session {
	duration := model.FormatDuration(elapsed)
	return &model.Session{
		UserID:        userID,
		ConnectionID:  connectionID,
		Status:        status,
		StartTime:     start,
		Duration:      &duration,
		Protocol:      protocol,
		ClientInfo:    datatypes.NewJSONType(model.ClientInfo{}),
		ConnectedTime: model.DisplayTime(start),
		ConnectedDate: model.DisplayDate(start),
	}
}
