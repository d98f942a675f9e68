package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cloudconnect-server/internal/model"
)

// SessionRepository 会话数据访问层
// 读取会话时通过一次 INNER JOIN 带出用户和连接，连接已删除的会话自然被过滤
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建 SessionRepository 实例
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// joined 构建带用户和连接的查询
func joined(db *gorm.DB) *gorm.DB {
	return db.InnerJoins("Connection").InnerJoins("User")
}

// Create 创建会话
// 在同一事务中插入会话、将连接置为 online 并刷新 last_accessed，最后读回完整的关联数据
// 参数:
//   - ctx: 上下文
//   - session: 会话对象，ID 会被自动填充
//
// 返回:
//   - *model.Session: 带 User 和 Connection 的会话
//   - error: 连接不存在时返回 ErrConnectionMissing
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	var out model.Session

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Connection{}).Where("id = ?", session.ConnectionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrConnectionMissing
		}

		if err := tx.Omit("User", "Connection").Create(session).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.Connection{}).
			Where("id = ?", session.ConnectionID).
			Updates(map[string]interface{}{
				"status":        model.ConnectionStatusOnline,
				"last_accessed": session.StartTime,
			}).Error; err != nil {
			return err
		}

		err := joined(tx).First(&out, "sessions.id = ?", session.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserMissing
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConnectionMissing) || errors.Is(err, ErrUserMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &out, nil
}

// Terminate 终止会话
// 会话不存在或已终止时不做任何修改；否则在同一事务中写入结束时间、时长，并将连接置为 offline
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//   - now: 终止时间
//
// 返回:
//   - *model.Session: 会话当前状态，不存在时为 nil
//   - bool: 本次调用是否完成了状态转换
//   - error: 数据库错误
func (r *SessionRepository) Terminate(ctx context.Context, id int64, now time.Time) (*model.Session, bool, error) {
	var session model.Session
	changed := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&session, id).Error; err != nil {
			return err
		}
		if session.IsTerminated() {
			return nil
		}

		duration := model.FormatDuration(now.Sub(session.StartTime))
		res := tx.Model(&model.Session{}).
			Where("id = ? AND status <> ?", id, model.SessionStatusTerminated).
			Updates(map[string]interface{}{
				"status":   model.SessionStatusTerminated,
				"end_time": now,
				"duration": duration,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 并发终止已经完成
			return nil
		}

		if err := tx.Model(&model.Connection{}).
			Where("id = ?", session.ConnectionID).
			Update("status", model.ConnectionStatusOffline).Error; err != nil {
			return err
		}

		session.Status = model.SessionStatusTerminated
		session.EndTime = &now
		session.Duration = &duration
		changed = true
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("terminate session %d: %w", id, err)
	}
	return &session, changed, nil
}

// GetByID 获取会话（不带关联）
// 未找到返回 nil, nil
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetByIDWithRelations 获取带用户和连接的会话
// 会话不存在或其连接已被删除时返回 nil, nil
func (r *SessionRepository) GetByIDWithRelations(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	err := joined(r.db.WithContext(ctx)).First(&session, "sessions.id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// ListByUserID 获取用户的所有会话，按开始时间倒序
func (r *SessionRepository) ListByUserID(ctx context.Context, userID int64) ([]model.Session, error) {
	sessions := make([]model.Session, 0)
	err := joined(r.db.WithContext(ctx)).
		Where("sessions.user_id = ?", userID).
		Order("sessions.start_time DESC").
		Order("sessions.id DESC").
		Find(&sessions).Error
	return sessions, err
}

// ListActive 获取所有活跃会话
func (r *SessionRepository) ListActive(ctx context.Context) ([]model.Session, error) {
	sessions := make([]model.Session, 0)
	err := joined(r.db.WithContext(ctx)).
		Where("sessions.status = ?", model.SessionStatusActive).
		Order("sessions.start_time DESC").
		Order("sessions.id DESC").
		Find(&sessions).Error
	return sessions, err
}

// ListActiveByUserID 获取用户的活跃会话
func (r *SessionRepository) ListActiveByUserID(ctx context.Context, userID int64) ([]model.Session, error) {
	sessions := make([]model.Session, 0)
	err := joined(r.db.WithContext(ctx)).
		Where("sessions.user_id = ? AND sessions.status = ?", userID, model.SessionStatusActive).
		Order("sessions.start_time DESC").
		Order("sessions.id DESC").
		Find(&sessions).Error
	return sessions, err
}

// CountOpenByUserID 统计用户 active 和 idle 状态的会话数
// 连接已删除的会话不计入
func (r *SessionRepository) CountOpenByUserID(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Session{}).
		Joins("INNER JOIN connections ON connections.id = sessions.connection_id").
		Where("sessions.user_id = ? AND sessions.status IN ?", userID,
			[]string{model.SessionStatusActive, model.SessionStatusIdle}).
		Count(&count).Error
	return count, err
}
