// Package repository 提供数据访问层
package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
)

// WithdrawalRepository 提现仓储
type WithdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建提现仓储
func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// WithdrawalFilter 提现查询条件
type WithdrawalFilter struct {
	UserID    *int64
	Status    *int8
	Nickname  string
	CreatedAt *utils.DateRange
}

func (f *WithdrawalFilter) apply(query *gorm.DB) *gorm.DB {
	if f == nil {
		return query
	}
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Status != nil {
		query = query.Where("status = ?", *f.Status)
	}
	if f.Nickname != "" {
		query = query.Where("user_id IN (?)",
			query.Session(&gorm.Session{NewDB: true}).Model(&models.User{}).
				Select("id").Where("nickname LIKE ?", "%"+f.Nickname+"%"))
	}
	if f.CreatedAt != nil {
		if f.CreatedAt.Start != nil {
			query = query.Where("created_at >= ?", *f.CreatedAt.Start)
		}
		if f.CreatedAt.End != nil {
			query = query.Where("created_at <= ?", *f.CreatedAt.End)
		}
	}
	return query
}

// Create 在事务内创建提现记录
func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, withdrawal *models.Withdrawal) error {
	return tx.WithContext(ctx).Create(withdrawal).Error
}

// GetByID 根据 ID 获取提现记录
func (r *WithdrawalRepository) GetByID(ctx context.Context, id int64) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := r.db.WithContext(ctx).First(&withdrawal, id).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// GetByIDTx 在事务内获取提现记录
func (r *WithdrawalRepository) GetByIDTx(ctx context.Context, tx *gorm.DB, id int64) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := tx.WithContext(ctx).First(&withdrawal, id).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// GetByIDWithUser 根据 ID 获取提现记录（包含用户）
func (r *WithdrawalRepository) GetByIDWithUser(ctx context.Context, id int64) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := r.db.WithContext(ctx).Preload("User").First(&withdrawal, id).Error; err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

// TransitionStatus 条件状态迁移，当前状态不是 from 时返回 false
func (r *WithdrawalRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, id int64, from int8, updates map[string]interface{}) (bool, error) {
	result := tx.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// List 分页查询提现记录
func (r *WithdrawalRepository) List(ctx context.Context, filter *WithdrawalFilter, offset, limit int, withUser bool) ([]*models.Withdrawal, int64, error) {
	var withdrawals []*models.Withdrawal
	var total int64

	query := filter.apply(r.db.WithContext(ctx).Model(&models.Withdrawal{}))
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if withUser {
		query = query.Preload("User")
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&withdrawals).Error; err != nil {
		return nil, 0, err
	}
	return withdrawals, total, nil
}

// CountByStatus 统计指定状态的提现数量
func (r *WithdrawalRepository) CountByStatus(ctx context.Context, status int8) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Withdrawal{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// StatusTotals 单个状态的提现数量与金额
type StatusTotals struct {
	Status int8
	Count  int64
	Amount decimal.Decimal
}

// SumByStatus 按状态分组统计数量与金额
func (r *WithdrawalRepository) SumByStatus(ctx context.Context, filter *WithdrawalFilter) ([]StatusTotals, error) {
	var rows []StatusTotals
	query := r.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount")
	err := filter.apply(query).Group("status").Scan(&rows).Error
	return rows, err
}
