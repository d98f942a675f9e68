package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/logging"
	"cloudconnect-server/internal/metrics"
	"cloudconnect-server/internal/model"
	"cloudconnect-server/internal/repository"
)

// SessionService 会话服务
// 会话的创建和终止都在单个数据库事务中完成，连接状态随之切换
type SessionService struct {
	sessionRepo *repository.SessionRepository
	connRepo    *repository.ConnectionRepository
	cache       *cache.RedisCache
	now         func() time.Time
}

// NewSessionService 创建 SessionService 实例
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	connRepo *repository.ConnectionRepository,
	cache *cache.RedisCache,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		connRepo:    connRepo,
		cache:       cache,
		now:         time.Now,
	}
}

// CreateSessionRequest 创建会话请求
// 请求体中的 userId、status、startTime 会被忽略
type CreateSessionRequest struct {
	ConnectionID int64  `json:"connectionId" binding:"required,min=1"`
	Protocol     string `json:"protocol" binding:"omitempty,max=20"`
	Resolution   string `json:"resolution" binding:"omitempty,max=20"`

	// 由 handler 根据请求填写
	ClientIP  string `json:"-"`
	UserAgent string `json:"-"`
}

// SessionDetail 带用户身份和连接信息的会话
type SessionDetail struct {
	*model.Session
	User       model.UserIdentity `json:"user"`
	Connection *model.Connection  `json:"connection"`
}

func toDetail(s *model.Session) *SessionDetail {
	detail := &SessionDetail{Session: s}
	if s.User != nil {
		detail.User = s.User.Identity()
	}
	detail.Connection = s.Connection.Sanitized()
	return detail
}

func toDetails(sessions []model.Session) []*SessionDetail {
	result := make([]*SessionDetail, 0, len(sessions))
	for i := range sessions {
		result = append(result, toDetail(&sessions[i]))
	}
	return result
}

// List 获取用户的会话列表
// 连接已被删除的会话不会出现在结果中
func (s *SessionService) List(ctx context.Context, userID int64) ([]*SessionDetail, error) {
	sessions, err := s.sessionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toDetails(sessions), nil
}

// ListActive 获取用户的活跃会话
func (s *SessionService) ListActive(ctx context.Context, userID int64) ([]*SessionDetail, error) {
	sessions, err := s.sessionRepo.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toDetails(sessions), nil
}

// Get 获取单个会话
func (s *SessionService) Get(ctx context.Context, userID, id int64) (*SessionDetail, error) {
	session, err := s.sessionRepo.GetByIDWithRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, ErrNoPermission
	}
	return toDetail(session), nil
}

// Create 创建会话
// 连接必须存在且属于调用者；状态固定为 active，开始时间为当前时间
// 参数:
//   - ctx: 上下文
//   - userID: 调用者用户ID
//   - req: 创建请求
//
// 返回:
//   - *SessionDetail: 带关联数据的会话，连接状态已为 online
//   - error: ErrConnectionNotFound / ErrNoPermission / 数据库错误
func (s *SessionService) Create(ctx context.Context, userID int64, req *CreateSessionRequest) (*SessionDetail, error) {
	conn, err := s.connRepo.GetByID(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	if conn.UserID != userID {
		return nil, ErrNoPermission
	}

	protocol := req.Protocol
	if protocol == "" {
		protocol = model.ProtocolRDP
	}

	start := s.now()
	session := &model.Session{
		UserID:       userID,
		ConnectionID: conn.ID,
		Status:       model.SessionStatusActive,
		StartTime:    start,
		Protocol:     protocol,
		ClientInfo: datatypes.NewJSONType(model.ClientInfo{
			IP:         req.ClientIP,
			UserAgent:  req.UserAgent,
			Resolution: req.Resolution,
		}),
		ConnectedTime: model.DisplayTime(start),
		ConnectedDate: model.DisplayDate(start),
	}

	created, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		if errors.Is(err, repository.ErrConnectionMissing) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}

	metrics.RecordSessionCreated(protocol)
	notifyConnectionStatus(ctx, s.cache, userID, conn.ID, created.ID, model.ConnectionStatusOnline)

	logging.Ctx(ctx).Info().
		Int64("user_id", userID).
		Int64("session_id", created.ID).
		Int64("connection_id", conn.ID).
		Str("protocol", protocol).
		Msg("session created")
	return toDetail(created), nil
}

// Terminate 终止会话
// 会话不存在时视为成功；会话属于其他用户时返回 ErrNoPermission
func (s *SessionService) Terminate(ctx context.Context, userID, id int64) error {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	if session.UserID != userID {
		return ErrNoPermission
	}
	return s.terminate(ctx, id)
}

// TerminateBound 终止实时通道绑定的会话
// 通道只会绑定自己创建的会话，不再校验所有权
func (s *SessionService) TerminateBound(ctx context.Context, id int64) error {
	return s.terminate(ctx, id)
}

// ReapOrphanedChannelSessions 终止没有存活通道持有的 WebSocket 会话
// 进程异常退出时通道来不及清理，绑定标记过期后由这里收尾
// 启动时和 Hub 运行期间定期调用
// 刚创建的会话可能还没写入绑定标记，开始时间在 SessionBindingTTL 之内的会话跳过
// 返回:
//   - int: 被终止的会话数
//   - error: 数据库错误
func (s *SessionService) ReapOrphanedChannelSessions(ctx context.Context) (int, error) {
	sessions, err := s.sessionRepo.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-cache.SessionBindingTTL)
	reaped := 0
	for i := range sessions {
		if sessions[i].Protocol != model.ProtocolWebSocket || sessions[i].StartTime.After(cutoff) {
			continue
		}
		bound, err := s.cache.IsSessionBound(ctx, sessions[i].ID)
		if err != nil {
			return reaped, err
		}
		if bound {
			continue
		}
		if err := s.terminate(ctx, sessions[i].ID); err != nil {
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

func (s *SessionService) terminate(ctx context.Context, id int64) error {
	session, changed, err := s.sessionRepo.Terminate(ctx, id, s.now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	metrics.RecordSessionTerminated()
	notifyConnectionStatus(ctx, s.cache, session.UserID, session.ConnectionID, id, model.ConnectionStatusOffline)

	logging.Ctx(ctx).Info().
		Int64("session_id", id).
		Int64("connection_id", session.ConnectionID).
		Str("duration", derefString(session.Duration)).
		Msg("session terminated")
	return nil
}

// notifyConnectionStatus 广播连接状态变化
// 绑定了该会话的通道收到 offline 事件后会关闭
// Redis 只是旁路，失败时记录日志不影响主流程
func notifyConnectionStatus(ctx context.Context, c *cache.RedisCache, userID, connectionID, sessionID int64, status string) {
	if err := c.PublishConnectionStatus(ctx, userID, connectionID, sessionID, status); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("connection_id", connectionID).Msg("publish connection status failed")
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
