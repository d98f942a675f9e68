package service

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/logging"
	"cloudconnect-server/internal/metrics"
	"cloudconnect-server/internal/model"
	"cloudconnect-server/internal/repository"
)

// ConnectionService 连接服务
// 负责连接的增删改查和所有权校验
type ConnectionService struct {
	connRepo    *repository.ConnectionRepository
	sessionRepo *repository.SessionRepository
	cache       *cache.RedisCache
}

// NewConnectionService 创建 ConnectionService 实例
func NewConnectionService(
	connRepo *repository.ConnectionRepository,
	sessionRepo *repository.SessionRepository,
	cache *cache.RedisCache,
) *ConnectionService {
	return &ConnectionService{
		connRepo:    connRepo,
		sessionRepo: sessionRepo,
		cache:       cache,
	}
}

// CreateConnectionRequest 创建连接请求
// 请求体中的 userId、status 会被忽略
type CreateConnectionRequest struct {
	Name        string                       `json:"name" binding:"required,max=100"`
	Host        string                       `json:"host" binding:"required,max=255"`
	Port        int                          `json:"port" binding:"omitempty,min=1,max=65535"`
	OS          string                       `json:"os" binding:"omitempty,os_tag"`
	Credentials *model.ConnectionCredentials `json:"credentials"`
}

// UpdateConnectionRequest 更新连接请求，只更新非 nil 字段
type UpdateConnectionRequest struct {
	Name        *string                      `json:"name" binding:"omitempty,min=1,max=100"`
	Host        *string                      `json:"host" binding:"omitempty,min=1,max=255"`
	Port        *int                         `json:"port" binding:"omitempty,min=1,max=65535"`
	OS          *string                      `json:"os" binding:"omitempty,os_tag"`
	Credentials *model.ConnectionCredentials `json:"credentials"`
}

// StatsResponse 仪表盘统计
type StatsResponse struct {
	TotalConnections  int64 `json:"totalConnections"`
	OnlineConnections int64 `json:"onlineConnections"`
	ActiveSessions    int64 `json:"activeSessions"`
	LiveChannels      int64 `json:"liveChannels"`
}

// List 获取用户的所有连接
func (s *ConnectionService) List(ctx context.Context, userID int64) ([]*model.Connection, error) {
	conns, err := s.connRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]*model.Connection, 0, len(conns))
	for i := range conns {
		result = append(result, conns[i].Sanitized())
	}
	return result, nil
}

// Create 创建连接
// userID 始终取调用者身份，初始状态固定为 offline
// 参数:
//   - ctx: 上下文
//   - userID: 调用者用户ID
//   - req: 创建请求
//
// 返回:
//   - *model.Connection: 创建的连接（不含密码）
//   - error: 数据库错误
func (s *ConnectionService) Create(ctx context.Context, userID int64, req *CreateConnectionRequest) (*model.Connection, error) {
	now := time.Now()
	conn := &model.Connection{
		UserID:       userID,
		Name:         req.Name,
		Host:         req.Host,
		Port:         req.Port,
		OS:           req.OS,
		Status:       model.ConnectionStatusOffline,
		LastAccessed: &now,
	}
	if conn.Port == 0 {
		conn.Port = model.DefaultConnectionPort
	}
	if conn.OS == "" {
		conn.OS = model.OSWindows
	}
	if req.Credentials != nil {
		conn.Credentials = datatypes.NewJSONType(*req.Credentials)
	}

	if err := s.connRepo.Create(ctx, conn); err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().Int64("user_id", userID).Int64("connection_id", conn.ID).Msg("connection created")
	return conn.Sanitized(), nil
}

// Get 获取连接
// 先判断是否存在再判断所有权
func (s *ConnectionService) Get(ctx context.Context, userID, id int64) (*model.Connection, error) {
	conn, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return conn.Sanitized(), nil
}

// Update 部分更新连接
// 状态由会话生命周期驱动，不能通过此接口修改
func (s *ConnectionService) Update(ctx context.Context, userID, id int64, req *UpdateConnectionRequest) (*model.Connection, error) {
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Host != nil {
		fields["host"] = *req.Host
	}
	if req.Port != nil {
		fields["port"] = *req.Port
	}
	if req.OS != nil {
		fields["os"] = *req.OS
	}
	if req.Credentials != nil {
		fields["credentials"] = datatypes.NewJSONType(*req.Credentials)
	}

	conn, err := s.connRepo.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	return conn.Sanitized(), nil
}

// Delete 删除连接
// 仍在进行的会话会先被终止，历史会话保留但不再出现在列表中
func (s *ConnectionService) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return err
	}

	terminated, affected, err := s.connRepo.Delete(ctx, id, time.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConnectionNotFound
	}

	if len(terminated) == 0 {
		notifyConnectionStatus(ctx, s.cache, userID, id, 0, model.ConnectionStatusOffline)
	}
	for i := range terminated {
		metrics.RecordSessionTerminated()
		notifyConnectionStatus(ctx, s.cache, userID, id, terminated[i].ID, model.ConnectionStatusOffline)
	}

	logging.Ctx(ctx).Info().
		Int64("user_id", userID).
		Int64("connection_id", id).
		Int("terminated_sessions", len(terminated)).
		Msg("connection deleted")
	return nil
}

// Stats 仪表盘统计
func (s *ConnectionService) Stats(ctx context.Context, userID int64) (*StatsResponse, error) {
	total, err := s.connRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	online, err := s.connRepo.CountByUserAndStatus(ctx, userID, model.ConnectionStatusOnline)
	if err != nil {
		return nil, err
	}
	active, err := s.sessionRepo.CountOpenByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	channels, err := s.cache.CountUserChannels(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("count live channels failed")
		channels = 0
	}

	return &StatsResponse{
		TotalConnections:  total,
		OnlineConnections: online,
		ActiveSessions:    active,
		LiveChannels:      channels,
	}, nil
}

// getOwned 读取连接并校验所有权
// 返回:
//   - ErrConnectionNotFound: 连接不存在
//   - ErrNoPermission: 连接属于其他用户
func (s *ConnectionService) getOwned(ctx context.Context, userID, id int64) (*model.Connection, error) {
	conn, err := s.connRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	if conn.UserID != userID {
		return nil, ErrNoPermission
	}
	return conn, nil
}
