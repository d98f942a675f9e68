// Package service 提供业务逻辑层的实现
// 服务层封装具体的业务逻辑，协调 Repository 和 Cache
// 所有操作都显式接收调用者的用户 ID，不读取请求上下文中的身份
package service

import "errors"

// 定义业务错误
var (
	ErrUserExists         = errors.New("用户名已存在")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrInvalidToken       = errors.New("Token 无效或已过期")
	ErrConnectionNotFound = errors.New("连接不存在")
	ErrSessionNotFound    = errors.New("会话不存在")
	ErrNoPermission       = errors.New("无权操作此资源")
)
