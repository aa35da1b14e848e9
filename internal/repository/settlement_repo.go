// Package repository 提供数据访问层
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/models"
)

// SettlementRepository 结算批次仓储
type SettlementRepository struct {
	db *gorm.DB
}

// NewSettlementRepository 创建结算批次仓储
func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Create 在事务内写入批次日志
func (r *SettlementRepository) Create(ctx context.Context, tx *gorm.DB, batch *models.SettlementBatch) error {
	return tx.WithContext(ctx).Create(batch).Error
}

// GetByBatchNo 根据批次号获取
func (r *SettlementRepository) GetByBatchNo(ctx context.Context, batchNo string) (*models.SettlementBatch, error) {
	var batch models.SettlementBatch
	if err := r.db.WithContext(ctx).Where("batch_no = ?", batchNo).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// List 分页获取批次日志
func (r *SettlementRepository) List(ctx context.Context, offset, limit int) ([]*models.SettlementBatch, int64, error) {
	var batches []*models.SettlementBatch
	var total int64

	query := r.db.WithContext(ctx).Model(&models.SettlementBatch{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}
