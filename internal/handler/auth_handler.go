// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cloudconnect-server/internal/middleware"
	"cloudconnect-server/internal/service"
	"cloudconnect-server/pkg/response"
)

// AuthHandler 认证请求处理器
// 处理用户注册、登录、登出和 Token 刷新
type AuthHandler struct {
	authService  *service.AuthService
	cookieName   string // 登录 Cookie 名称
	cookieSecure bool   // release 模式下只通过 HTTPS 发送 Cookie
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService, cookieName string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
	}
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Register 用户注册
// @Summary 用户注册
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.RegisterRequest true "注册信息"
// @Success 201 {object} service.TokenResponse
// @Router /api/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			response.UserExists(c)
			return
		}
		response.BadRequest(c, err.Error())
		return
	}

	h.setCookie(c, result.AccessToken)
	response.Created(c, result)
}

// Login 用户登录
// @Summary 用户登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.LoginRequest true "登录信息"
// @Success 200 {object} service.TokenResponse
// @Router /api/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.InvalidCredentials(c)
			return
		}
		response.InternalError(c, "登录失败")
		return
	}

	h.setCookie(c, result.AccessToken)
	response.Success(c, result)
}

// Logout 用户登出
// 将当前 Token 和请求体中的 Refresh Token 加入黑名单并清除 Cookie
// 请求体可以为空
// @Summary 用户登出
// @Tags 认证
// @Security Bearer
// @Accept json
// @Param body body service.LogoutRequest false "Refresh Token"
// @Success 200
// @Router /api/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req service.LogoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "请求参数错误")
			return
		}
	}

	token := c.GetString(middleware.ContextToken)
	expireAt := c.GetTime(middleware.ContextTokenExp)

	if err := h.authService.Logout(c.Request.Context(), middleware.GetUserID(c), token, expireAt, req.RefreshToken); err != nil {
		response.InternalError(c, "登出失败")
		return
	}

	h.clearCookie(c)
	response.Success(c, gin.H{"success": true})
}

// RefreshToken 使用 Refresh Token 获取新的 Token
// @Summary 刷新 Token
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body RefreshTokenRequest true "Refresh Token"
// @Success 200 {object} service.TokenResponse
// @Router /api/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误")
		return
	}

	result, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.Unauthorized(c)
		return
	}

	h.setCookie(c, result.AccessToken)
	response.Success(c, result)
}

func (h *AuthHandler) setCookie(c *gin.Context, token string) {
	if h.cookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.authService.AccessExpire()/time.Second), "/", "", h.cookieSecure, true)
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	if h.cookieName == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
}
