package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cloudconnect-server/internal/model"
)

// ConnectionRepository 连接数据访问层
// 所有权校验在服务层完成，这里只做纯数据操作
type ConnectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository 创建 ConnectionRepository 实例
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create 创建连接
func (r *ConnectionRepository) Create(ctx context.Context, conn *model.Connection) error {
	return r.db.WithContext(ctx).Create(conn).Error
}

// GetByID 根据 ID 获取连接
// 返回:
//   - *model.Connection: 连接对象，未找到返回 nil
//   - error: 数据库错误
func (r *ConnectionRepository) GetByID(ctx context.Context, id int64) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.WithContext(ctx).First(&conn, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// ListByUserID 获取用户的所有连接，按 ID 正序
// 没有数据时返回空切片
func (r *ConnectionRepository) ListByUserID(ctx context.Context, userID int64) ([]model.Connection, error) {
	conns := make([]model.Connection, 0)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&conns).Error
	return conns, err
}

// Update 部分字段更新
// 参数:
//   - ctx: 上下文
//   - id: 连接ID
//   - fields: 列名到新值的映射，只更新出现的列
//
// 返回:
//   - *model.Connection: 更新后的连接，不存在时返回 nil
//   - error: 数据库错误
func (r *ConnectionRepository) Update(ctx context.Context, id int64, fields map[string]interface{}) (*model.Connection, error) {
	if len(fields) > 0 {
		err := r.db.WithContext(ctx).Model(&model.Connection{}).Where("id = ?", id).Updates(fields).Error
		if err != nil {
			return nil, fmt.Errorf("update connection %d: %w", id, err)
		}
	}
	return r.GetByID(ctx, id)
}

// Delete 硬删除连接
// 同一事务内先终止该连接上仍处于活跃状态的会话，历史会话保留原 connection_id
// 参数:
//   - ctx: 上下文
//   - id: 连接ID
//   - now: 终止时间
//
// 返回:
//   - []model.Session: 被终止的会话
//   - int64: 删除的连接行数
//   - error: 数据库错误
func (r *ConnectionRepository) Delete(ctx context.Context, id int64, now time.Time) ([]model.Session, int64, error) {
	var terminated []model.Session
	var affected int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []model.Session
		if err := tx.Where("connection_id = ? AND status <> ?", id, model.SessionStatusTerminated).
			Find(&open).Error; err != nil {
			return err
		}

		for i := range open {
			s := &open[i]
			duration := model.FormatDuration(now.Sub(s.StartTime))
			res := tx.Model(&model.Session{}).
				Where("id = ? AND status <> ?", s.ID, model.SessionStatusTerminated).
				Updates(map[string]interface{}{
					"status":   model.SessionStatusTerminated,
					"end_time": now,
					"duration": duration,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				s.Status = model.SessionStatusTerminated
				s.EndTime = &now
				s.Duration = &duration
				terminated = append(terminated, *s)
			}
		}

		res := tx.Delete(&model.Connection{}, id)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("delete connection %d: %w", id, err)
	}
	return terminated, affected, nil
}

// CountByUserID 统计用户的连接数
func (r *ConnectionRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Connection{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// CountByUserAndStatus 统计用户某状态的连接数
func (r *ConnectionRepository) CountByUserAndStatus(ctx context.Context, userID int64, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Connection{}).
		Where("user_id = ? AND status = ?", userID, status).
		Count(&count).Error
	return count, err
}
