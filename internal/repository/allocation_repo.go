// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/common/database"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
)

// AllocationRepository 分账记录仓储
type AllocationRepository struct {
	db *gorm.DB
}

// NewAllocationRepository 创建分账记录仓储
func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// AllocationFilter 分账记录查询条件
type AllocationFilter struct {
	ParentUserID     *int64
	UserID           *int64
	OrderNo          string
	Nickname         string // 受益人昵称，模糊匹配
	Province         string
	City             string
	District         string
	SettlementStatus *int8
	CreatedAt        *utils.DateRange
	RecordIDs        []int64
}

func (f *AllocationFilter) apply(query *gorm.DB) *gorm.DB {
	if f == nil {
		return query
	}
	if f.ParentUserID != nil {
		query = query.Where("parent_user_id = ?", *f.ParentUserID)
	}
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.OrderNo != "" {
		query = query.Where("order_no = ?", f.OrderNo)
	}
	if f.Nickname != "" {
		query = query.Where("parent_user_id IN (?)",
			query.Session(&gorm.Session{NewDB: true}).Model(&models.User{}).
				Select("id").Where("nickname LIKE ?", "%"+f.Nickname+"%"))
	}
	if f.Province != "" {
		query = query.Where("receiver_province = ?", f.Province)
	}
	if f.City != "" {
		query = query.Where("receiver_city = ?", f.City)
	}
	if f.District != "" {
		query = query.Where("receiver_district = ?", f.District)
	}
	if f.SettlementStatus != nil {
		query = query.Where("settlement_status = ?", *f.SettlementStatus)
	}
	if f.CreatedAt != nil {
		if f.CreatedAt.Start != nil {
			query = query.Where("created_at >= ?", *f.CreatedAt.Start)
		}
		if f.CreatedAt.End != nil {
			query = query.Where("created_at <= ?", *f.CreatedAt.End)
		}
	}
	if len(f.RecordIDs) > 0 {
		query = query.Where("id IN ?", f.RecordIDs)
	}
	return query
}

// CreateBatch 在事务内批量创建分账记录
func (r *AllocationRepository) CreateBatch(ctx context.Context, tx *gorm.DB, records []*models.OrderAllocation) error {
	if len(records) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&records).Error
}

// GetByID 根据 ID 获取分账记录
func (r *AllocationRepository) GetByID(ctx context.Context, id int64) (*models.OrderAllocation, error) {
	var record models.OrderAllocation
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByOrder 获取订单的全部分账记录
func (r *AllocationRepository) ListByOrder(ctx context.Context, orderID int64) ([]*models.OrderAllocation, error) {
	var records []*models.OrderAllocation
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&records).Error
	return records, err
}

// GetByIDs 批量获取分账记录（不加锁）
func (r *AllocationRepository) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*models.OrderAllocation, error) {
	var records []*models.OrderAllocation
	if len(ids) == 0 {
		return records, nil
	}
	err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error
	return records, err
}

// LockUnsettled 锁定一批未结算记录
//
// PostgreSQL 下使用 FOR UPDATE SKIP LOCKED，并发的结算批次各自领取不相交的记录。
func (r *AllocationRepository) LockUnsettled(ctx context.Context, tx *gorm.DB, filter *AllocationFilter, limit int) ([]*models.OrderAllocation, error) {
	var records []*models.OrderAllocation
	query := tx.WithContext(ctx).Model(&models.OrderAllocation{}).
		Where("settlement_status = ?", models.SettlementStatusUnsettled)
	query = filter.apply(query)
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("id ASC").Scopes(database.ForUpdate(true)).Find(&records).Error
	return records, err
}

// MarkSettled 条件标记为已结算，已被其他批次结算时返回 false
func (r *AllocationRepository) MarkSettled(ctx context.Context, tx *gorm.DB, id int64, commission decimal.Decimal, batchNo string, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&models.OrderAllocation{}).
		Where("id = ? AND settlement_status = ?", id, models.SettlementStatusUnsettled).
		UpdateColumns(map[string]interface{}{
			"settlement_status":   models.SettlementStatusSettled,
			"settlement_time":     at,
			"commission_amount":   commission,
			"settlement_batch_no": batchNo,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// List 分页查询分账记录
func (r *AllocationRepository) List(ctx context.Context, filter *AllocationFilter, offset, limit int) ([]*models.OrderAllocation, int64, error) {
	var records []*models.OrderAllocation
	var total int64

	query := filter.apply(r.db.WithContext(ctx).Model(&models.OrderAllocation{}))
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("User").Preload("ParentUser").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// CommissionBasis 计算待结算佣金所需字段
type CommissionBasis struct {
	ID                int64
	PayAmount         int64
	InviteIncomeRatio decimal.Decimal
}

// EachUnsettledBasis 按批遍历满足条件的未结算记录
func (r *AllocationRepository) EachUnsettledBasis(ctx context.Context, filter *AllocationFilter, batchSize int, fn func([]CommissionBasis) error) error {
	var lastID int64
	for {
		var batch []CommissionBasis
		query := r.db.WithContext(ctx).Model(&models.OrderAllocation{}).
			Select("id", "pay_amount", "invite_income_ratio").
			Where("settlement_status = ? AND id > ?", models.SettlementStatusUnsettled, lastID)
		err := filter.apply(query).Order("id ASC").Limit(batchSize).Scan(&batch).Error
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		lastID = batch[len(batch)-1].ID
	}
}

// SettledTotals 已结算记录数与佣金合计
type SettledTotals struct {
	Count  int64
	Amount decimal.Decimal
}

// SumSettled 统计已结算记录
func (r *AllocationRepository) SumSettled(ctx context.Context, filter *AllocationFilter) (*SettledTotals, error) {
	var totals SettledTotals
	query := r.db.WithContext(ctx).Model(&models.OrderAllocation{}).
		Select("COUNT(*) AS count, COALESCE(SUM(commission_amount), 0) AS amount").
		Where("settlement_status = ?", models.SettlementStatusSettled)
	if err := filter.apply(query).Scan(&totals).Error; err != nil {
		return nil, err
	}
	totals.Amount = totals.Amount.Round(utils.MoneyPlaces)
	return &totals, nil
}

// CountUnsettled 统计未结算记录数
func (r *AllocationRepository) CountUnsettled(ctx context.Context, filter *AllocationFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.OrderAllocation{}).
		Where("settlement_status = ?", models.SettlementStatusUnsettled)
	err := filter.apply(query).Count(&count).Error
	return count, err
}

// RegionAggregate 区域分账汇总行
type RegionAggregate struct {
	Region         string          `json:"region"`
	ProvinceAmount decimal.Decimal `json:"province_amount"`
	CityAmount     decimal.Decimal `json:"city_amount"`
	DistrictAmount decimal.Decimal `json:"district_amount"`
	OrderCount     int64           `json:"order_count"`
	RecordCount    int64           `json:"record_count"`
}

func (a *RegionAggregate) round() {
	a.ProvinceAmount = a.ProvinceAmount.Round(utils.MoneyPlaces)
	a.CityAmount = a.CityAmount.Round(utils.MoneyPlaces)
	a.DistrictAmount = a.DistrictAmount.Round(utils.MoneyPlaces)
}

const aggregateColumns = "COALESCE(SUM(province_amount), 0) AS province_amount, " +
	"COALESCE(SUM(city_amount), 0) AS city_amount, " +
	"COALESCE(SUM(district_amount), 0) AS district_amount, " +
	"COUNT(DISTINCT order_id) AS order_count, " +
	"COUNT(*) AS record_count"

// RegionColumns 可用于分组的区域列
var RegionColumns = map[string]string{
	"province": "receiver_province",
	"city":     "receiver_city",
	"district": "receiver_district",
}

// SummarizeByRegion 按区域列分组汇总，column 必须来自 RegionColumns
func (r *AllocationRepository) SummarizeByRegion(ctx context.Context, filter *AllocationFilter, column string) ([]*RegionAggregate, error) {
	var rows []*RegionAggregate
	query := r.db.WithContext(ctx).Model(&models.OrderAllocation{}).
		Select(column + " AS region, " + aggregateColumns)
	err := filter.apply(query).Group(column).Order(column).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		row.round()
	}
	return rows, nil
}

// SummarizeTotals 汇总全部匹配记录
func (r *AllocationRepository) SummarizeTotals(ctx context.Context, filter *AllocationFilter) (*RegionAggregate, error) {
	var total RegionAggregate
	query := r.db.WithContext(ctx).Model(&models.OrderAllocation{}).Select(aggregateColumns)
	if err := filter.apply(query).Scan(&total).Error; err != nil {
		return nil, err
	}
	total.round()
	return &total, nil
}

// CountDistinctBeneficiaries 统计受益人数量
func (r *AllocationRepository) CountDistinctBeneficiaries(ctx context.Context, filter *AllocationFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.OrderAllocation{}).
		Select("COUNT(DISTINCT parent_user_id)")
	err := filter.apply(query).Scan(&count).Error
	return count, err
}
