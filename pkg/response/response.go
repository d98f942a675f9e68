// Package response 提供统一的 HTTP 响应格式
// 成功时直接返回资源本身（对象或数组），失败时返回 ErrorBody
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody 错误响应结构
// code: 业务状态码
// message: 错误信息，前端直接展示
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// 业务状态码定义
const (
	CodeBadRequest        = 1000 // 请求参数错误
	CodeUnauthorized      = 1001 // 未授权
	CodeForbidden         = 1002 // 禁止访问
	CodeNotFound          = 1003 // 资源不存在
	CodeInternalError     = 1004 // 服务器内部错误
	CodeTooManyRequests   = 1005 // 请求过于频繁
	CodeUserExists        = 1101 // 用户已存在
	CodeInvalidCredential = 1103 // 用户名或密码错误
	CodeConnectionMissing = 1201 // 连接不存在
	CodeSessionMissing    = 1301 // 会话不存在
)

// Success 返回 200 和资源本身
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created 返回 201 和新建的资源
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent 返回 204 无内容响应（用于删除操作）
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 返回错误响应
// 参数:
//   - c: Gin 上下文
//   - httpCode: HTTP 状态码
//   - bizCode: 业务状态码
//   - message: 错误信息
func Error(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, ErrorBody{
		Code:    bizCode,
		Message: message,
	})
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized 返回 401，不带响应体
func Unauthorized(c *gin.Context) {
	c.AbortWithStatus(http.StatusUnauthorized)
}

// InvalidCredentials 返回 401 登录失败
// 与 Unauthorized 不同，登录失败需要告诉前端原因
func InvalidCredentials(c *gin.Context) {
	Error(c, http.StatusUnauthorized, CodeInvalidCredential, "用户名或密码错误")
}

// Forbidden 返回 403 错误
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodeForbidden, message)
}

// NotFound 返回 404 错误
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

// TooManyRequests 返回 429 错误
func TooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorBody{
		Code:    CodeTooManyRequests,
		Message: "请求过于频繁，请稍后再试",
	})
}

// InternalError 返回 500 错误
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeInternalError, message)
}

// UserExists 返回用户已存在错误
func UserExists(c *gin.Context) {
	Error(c, http.StatusBadRequest, CodeUserExists, "用户名已存在")
}

// ConnectionNotFound 返回连接不存在错误
func ConnectionNotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, CodeConnectionMissing, "连接不存在")
}

// SessionNotFound 返回会话不存在错误
func SessionNotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, CodeSessionMissing, "会话不存在")
}
