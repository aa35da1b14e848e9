package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderAllocation 订单分账记录
//
// 每个订单项在确认收货时生成一条，之后只有结算字段会变化。
type OrderAllocation struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID      int64  `gorm:"index;not null" json:"order_id"`
	OrderNo      string `gorm:"type:varchar(64);index;not null" json:"order_no"`
	OrderItemID  int64  `gorm:"uniqueIndex;not null" json:"order_item_id"`
	UserID       int64  `gorm:"index;not null" json:"user_id"`
	ParentUserID int64  `gorm:"index;not null" json:"parent_user_id"`
	ProductID    int64  `gorm:"not null" json:"product_id"`
	GoodsName    string `gorm:"type:varchar(200);not null;default:''" json:"goods_name"`
	Quantity     int    `gorm:"not null;default:1" json:"quantity"`
	PayAmount    int64  `gorm:"not null" json:"pay_amount"`

	ProvinceRatio     decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"province_ratio"`
	CityRatio         decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"city_ratio"`
	DistrictRatio     decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"district_ratio"`
	ProvinceAmount    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"province_amount"`
	CityAmount        decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"city_amount"`
	DistrictAmount    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"district_amount"`
	InviteIncomeRatio decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"invite_income_ratio"`

	ReceiverProvince string `gorm:"type:varchar(50);index:idx_allocation_region;not null;default:''" json:"receiver_province"`
	ReceiverCity     string `gorm:"type:varchar(50);index:idx_allocation_region;not null;default:''" json:"receiver_city"`
	ReceiverDistrict string `gorm:"type:varchar(50);index:idx_allocation_region;not null;default:''" json:"receiver_district"`

	SettlementStatus  int8            `gorm:"type:smallint;index;not null;default:0" json:"settlement_status"`
	SettlementTime    *time.Time      `json:"settlement_time,omitempty"`
	CommissionAmount  decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"commission_amount"`
	SettlementBatchNo *string         `gorm:"type:varchar(64);index" json:"settlement_batch_no,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`

	// 关联
	User       *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ParentUser *User `gorm:"foreignKey:ParentUserID" json:"parent_user,omitempty"`
}

// TableName 表名
func (OrderAllocation) TableName() string {
	return "order_allocations"
}

// SettlementStatus 结算状态
const (
	SettlementStatusUnsettled = 0 // 未结算
	SettlementStatusSettled   = 1 // 已结算
)

// IsSettled 是否已结算
func (a *OrderAllocation) IsSettled() bool {
	return a.SettlementStatus == SettlementStatusSettled
}

// SettlementBatch 结算批次日志
type SettlementBatch struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchNo          string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"batch_no"`
	SettledCount     int             `gorm:"not null;default:0" json:"settled_count"`
	SettledAmount    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"settled_amount"`
	BeneficiaryCount int             `gorm:"not null;default:0" json:"beneficiary_count"`
	Trigger          string          `gorm:"type:varchar(20);not null" json:"trigger"`
	OperatorID       *int64          `json:"operator_id,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (SettlementBatch) TableName() string {
	return "settlement_batches"
}

// SettlementTrigger 结算触发方式
const (
	SettlementTriggerManual    = "manual"
	SettlementTriggerScheduler = "scheduler"
)
