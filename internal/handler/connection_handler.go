package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"cloudconnect-server/internal/middleware"
	"cloudconnect-server/internal/service"
	"cloudconnect-server/pkg/response"
)

// ConnectionHandler 远程连接请求处理器
type ConnectionHandler struct {
	connectionService *service.ConnectionService
}

// NewConnectionHandler 创建 ConnectionHandler 实例
func NewConnectionHandler(connectionService *service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{
		connectionService: connectionService,
	}
}

// ListConnections 获取当前用户的连接列表
// @Summary 连接列表
// @Tags 连接
// @Security Bearer
// @Produce json
// @Success 200 {array} model.Connection
// @Router /api/connections [get]
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	conns, err := h.connectionService.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.InternalError(c, "获取连接列表失败")
		return
	}

	response.Success(c, conns)
}

// CreateConnection 创建连接
// 所属用户取自登录身份，请求体中的 userId 和 status 会被忽略
// @Summary 创建连接
// @Tags 连接
// @Security Bearer
// @Accept json
// @Produce json
// @Param body body service.CreateConnectionRequest true "连接信息"
// @Success 201 {object} model.Connection
// @Router /api/connections [post]
func (h *ConnectionHandler) CreateConnection(c *gin.Context) {
	var req service.CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	conn, err := h.connectionService.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.Created(c, conn)
}

// GetConnection 获取连接详情
// @Summary 连接详情
// @Tags 连接
// @Security Bearer
// @Produce json
// @Param id path int true "连接ID"
// @Success 200 {object} model.Connection
// @Router /api/connections/{id} [get]
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	id, ok := parseID(c, "无效的连接ID")
	if !ok {
		return
	}

	conn, err := h.connectionService.Get(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		h.handleError(c, err, "获取连接失败", false)
		return
	}

	response.Success(c, conn)
}

// UpdateConnection 部分更新连接
// @Summary 更新连接
// @Tags 连接
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "连接ID"
// @Param body body service.UpdateConnectionRequest true "要更新的字段"
// @Success 200 {object} model.Connection
// @Router /api/connections/{id} [put]
func (h *ConnectionHandler) UpdateConnection(c *gin.Context) {
	id, ok := parseID(c, "无效的连接ID")
	if !ok {
		return
	}

	var req service.UpdateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	conn, err := h.connectionService.Update(c.Request.Context(), middleware.GetUserID(c), id, &req)
	if err != nil {
		h.handleError(c, err, "", true)
		return
	}

	response.Success(c, conn)
}

// DeleteConnection 删除连接
// 连接上仍在进行的会话会被一并终止
// @Summary 删除连接
// @Tags 连接
// @Security Bearer
// @Param id path int true "连接ID"
// @Success 204
// @Router /api/connections/{id} [delete]
func (h *ConnectionHandler) DeleteConnection(c *gin.Context) {
	id, ok := parseID(c, "无效的连接ID")
	if !ok {
		return
	}

	if err := h.connectionService.Delete(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		h.handleError(c, err, "", true)
		return
	}

	response.NoContent(c)
}

// GetStats 仪表盘统计
// @Summary 仪表盘统计
// @Tags 连接
// @Security Bearer
// @Produce json
// @Success 200 {object} service.StatsResponse
// @Router /api/stats [get]
func (h *ConnectionHandler) GetStats(c *gin.Context) {
	stats, err := h.connectionService.Stats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.InternalError(c, "获取统计信息失败")
		return
	}

	response.Success(c, stats)
}

// handleError 将服务层错误映射为响应
// 写操作的未知错误按客户端错误返回 400，读操作返回 500
func (h *ConnectionHandler) handleError(c *gin.Context, err error, readMessage string, write bool) {
	switch {
	case errors.Is(err, service.ErrConnectionNotFound):
		response.ConnectionNotFound(c)
	case errors.Is(err, service.ErrNoPermission):
		response.Forbidden(c, "无权访问此连接")
	case write:
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, readMessage)
	}
}

// parseID 解析路径参数 id，失败时返回 400
func parseID(c *gin.Context, message string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, message)
		return 0, false
	}
	return id, true
}
