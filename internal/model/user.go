// Package model 定义了与数据库表对应的数据结构
package model

import (
	"fmt"
	"time"
)

// User 用户模型
// 对应数据库表 users
// 注册后只读，密码哈希不对外暴露
type User struct {
	// ID 用户唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// Username 用户名，用于登录，全局唯一
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`

	// PasswordHash 密码的 bcrypt 哈希值
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	// Email 用户邮箱，可选
	Email *string `gorm:"size:100;uniqueIndex" json:"email,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// UserIdentity 会话列表中展示的用户身份
type UserIdentity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// Identity 返回用于展示的用户身份
// 未设置邮箱时使用 username@example.com 占位
func (u *User) Identity() UserIdentity {
	email := fmt.Sprintf("%s@example.com", u.Username)
	if u.Email != nil && *u.Email != "" {
		email = *u.Email
	}
	return UserIdentity{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Username,
		Email:    email,
	}
}
