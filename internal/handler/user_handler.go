package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cloudconnect-server/internal/middleware"
	"cloudconnect-server/internal/service"
	"cloudconnect-server/pkg/response"
)

// UserHandler 用户请求处理器
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler 创建 UserHandler 实例
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetProfile 获取当前登录用户
// @Summary 获取当前用户
// @Tags 用户
// @Security Bearer
// @Produce json
// @Success 200 {object} model.User
// @Router /api/user [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.GetProfile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		// Token 有效但用户已被删除
		if errors.Is(err, service.ErrUserNotFound) {
			response.Unauthorized(c)
			return
		}
		response.InternalError(c, "获取用户信息失败")
		return
	}

	response.Success(c, user)
}
