package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/models"
)

// OperationLogRepository 操作日志仓储
type OperationLogRepository struct {
	db *gorm.DB
}

// NewOperationLogRepository 创建操作日志仓储
func NewOperationLogRepository(db *gorm.DB) *OperationLogRepository {
	return &OperationLogRepository{db: db}
}

// Create 写入操作日志
func (r *OperationLogRepository) Create(ctx context.Context, log *models.OperationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// OperationLogFilter 操作日志查询条件
type OperationLogFilter struct {
	AdminID    *int64
	Module     string
	TargetType string
	TargetID   *int64
}

// List 按时间倒序分页查询
func (r *OperationLogRepository) List(ctx context.Context, filter *OperationLogFilter, offset, limit int) ([]*models.OperationLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.OperationLog{})
	if filter != nil {
		if filter.AdminID != nil {
			query = query.Where("admin_id = ?", *filter.AdminID)
		}
		if filter.Module != "" {
			query = query.Where("module = ?", filter.Module)
		}
		if filter.TargetType != "" {
			query = query.Where("target_type = ?", filter.TargetType)
		}
		if filter.TargetID != nil {
			query = query.Where("target_id = ?", *filter.TargetID)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []*models.OperationLog
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
