// Package repository 提供数据访问层的实现
// 封装所有与数据库的交互操作
package repository

import "errors"

// 数据层错误
var (
	// ErrDuplicate 唯一约束冲突
	ErrDuplicate = errors.New("duplicate record")

	// ErrConnectionMissing 会话引用的连接不存在
	ErrConnectionMissing = errors.New("connection does not exist")

	// ErrUserMissing 会话引用的用户不存在
	ErrUserMissing = errors.New("user does not exist")
)
