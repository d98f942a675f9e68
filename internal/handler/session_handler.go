package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cloudconnect-server/internal/middleware"
	"cloudconnect-server/internal/service"
	"cloudconnect-server/pkg/response"
)

// SessionHandler 会话请求处理器
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

// ListSessions 获取当前用户的会话列表
// 每条会话带有用户身份和连接信息
// @Summary 会话列表
// @Tags 会话
// @Security Bearer
// @Produce json
// @Success 200 {array} service.SessionDetail
// @Router /api/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.InternalError(c, "获取会话列表失败")
		return
	}

	response.Success(c, sessions)
}

// ListActiveSessions 获取当前用户的活跃会话
// @Summary 活跃会话
// @Tags 会话
// @Security Bearer
// @Produce json
// @Success 200 {array} service.SessionDetail
// @Router /api/sessions/active [get]
func (h *SessionHandler) ListActiveSessions(c *gin.Context) {
	sessions, err := h.sessionService.ListActive(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.InternalError(c, "获取活跃会话失败")
		return
	}

	response.Success(c, sessions)
}

// GetSession 获取会话详情
// @Summary 会话详情
// @Tags 会话
// @Security Bearer
// @Produce json
// @Param id path int true "会话ID"
// @Success 200 {object} service.SessionDetail
// @Router /api/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := parseID(c, "无效的会话ID")
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.SessionNotFound(c)
		case errors.Is(err, service.ErrNoPermission):
			response.Forbidden(c, "无权访问此会话")
		default:
			response.InternalError(c, "获取会话详情失败")
		}
		return
	}

	response.Success(c, session)
}

// CreateSession 创建会话
// 连接必须属于当前用户，成功后连接状态变为 online
// @Summary 创建会话
// @Tags 会话
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.CreateSessionRequest true "会话信息"
// @Success 201 {object} service.SessionDetail
// @Router /api/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	req.ClientIP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	session, err := h.sessionService.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConnectionNotFound):
			response.ConnectionNotFound(c)
		case errors.Is(err, service.ErrNoPermission):
			response.Forbidden(c, "无权操作此连接")
		default:
			response.BadRequest(c, err.Error())
		}
		return
	}

	response.Created(c, session)
}

// TerminateSession 终止会话
// 会话不存在时同样返回 204
// @Summary 终止会话
// @Tags 会话
// @Security Bearer
// @Param id path int true "会话ID"
// @Success 204
// @Router /api/sessions/{id} [delete]
func (h *SessionHandler) TerminateSession(c *gin.Context) {
	id, ok := parseID(c, "无效的会话ID")
	if !ok {
		return
	}

	if err := h.sessionService.Terminate(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		if errors.Is(err, service.ErrNoPermission) {
			response.Forbidden(c, "无权终止此会话")
			return
		}
		response.BadRequest(c, err.Error())
		return
	}

	response.NoContent(c)
}
