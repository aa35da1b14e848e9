// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/models"
)

// OrderRepository 订单仓储
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 创建订单及订单项
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID 根据 ID 获取订单
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByIDWithItems 根据 ID 获取订单（包含订单项）
func (r *OrderRepository) GetByIDWithItems(ctx context.Context, tx *gorm.DB, id int64) (*models.Order, error) {
	var order models.Order
	err := tx.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionStatus 条件状态迁移，返回是否命中
func (r *OrderRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, id int64, from, to int8, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	result := tx.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ClaimAllocation 抢占订单的分账处理权，已处理过的订单返回 false
func (r *OrderRepository) ClaimAllocation(ctx context.Context, tx *gorm.DB, id int64, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND allocated_at IS NULL", id, models.OrderStatusCompleted).
		UpdateColumns(map[string]interface{}{"allocated_at": at, "allocation_error": nil})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordAllocationFailure 记录一次分账失败，在分账事务之外写入
func (r *OrderRepository) RecordAllocationFailure(ctx context.Context, id int64, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND allocated_at IS NULL", id, models.OrderStatusCompleted).
		UpdateColumns(map[string]interface{}{
			"allocation_attempts": gorm.Expr("allocation_attempts + 1"),
			"allocation_error":    reason,
		}).Error
}

// ListUnallocatedCompleted 已完成但尚未分账的订单，用于补偿重跑
//
// 失败次数少的优先，达到 maxAttempts 的订单留给人工处理。
func (r *OrderRepository) ListUnallocatedCompleted(ctx context.Context, maxAttempts, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	query := r.db.WithContext(ctx).
		Where("status = ? AND allocated_at IS NULL", models.OrderStatusCompleted)
	if maxAttempts > 0 {
		query = query.Where("allocation_attempts < ?", maxAttempts)
	}
	err := query.Order("allocation_attempts ASC").
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
