package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 订单模型
//
// 金额字段均为分。
type Order struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo          string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID           int64      `gorm:"index;not null" json:"user_id"`
	Status           int8       `gorm:"type:smallint;not null;default:0" json:"status"`
	TotalAmount      int64      `gorm:"not null;default:0" json:"total_amount"`
	PayAmount        int64      `gorm:"not null;default:0" json:"pay_amount"`
	ReceiverName     string     `gorm:"type:varchar(50);not null;default:''" json:"receiver_name"`
	ReceiverProvince string     `gorm:"type:varchar(50);not null;default:''" json:"receiver_province"`
	ReceiverCity     string     `gorm:"type:varchar(50);not null;default:''" json:"receiver_city"`
	ReceiverDistrict string     `gorm:"type:varchar(50);not null;default:''" json:"receiver_district"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	ReceivedAt       *time.Time `json:"received_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	AllocatedAt      *time.Time `gorm:"index" json:"allocated_at,omitempty"`
	AllocationTries  int        `gorm:"column:allocation_attempts;not null;default:0" json:"allocation_attempts"`
	AllocationError  *string    `gorm:"type:varchar(500)" json:"allocation_error,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	User  *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// TableName 表名
func (Order) TableName() string {
	return "orders"
}

// OrderStatus 订单状态
const (
	OrderStatusToPay     = 0 // 待付款
	OrderStatusToDeliver = 1 // 待发货
	OrderStatusToReceive = 2 // 待收货
	OrderStatusCompleted = 3 // 已完成
	OrderStatusCancelled = 4 // 已取消
	OrderStatusAfterSale = 5 // 售后中
)

// OrderItem 订单项，分账比例在下单时从商品快照
type OrderItem struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID           int64           `gorm:"index;not null" json:"order_id"`
	ProductID         int64           `gorm:"index;not null" json:"product_id"`
	GoodsName         string          `gorm:"type:varchar(200);not null;default:''" json:"goods_name"`
	Quantity          int             `gorm:"not null;default:1" json:"quantity"`
	PayAmount         int64           `gorm:"not null;default:0" json:"pay_amount"`
	ProvinceRatio     decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"province_ratio"`
	CityRatio         decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"city_ratio"`
	DistrictRatio     decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"district_ratio"`
	InviteIncomeRatio decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"invite_income_ratio"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (OrderItem) TableName() string {
	return "order_items"
}

// Product 商品的分账比例配置
type Product struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string          `gorm:"type:varchar(200);not null" json:"name"`
	Price             int64           `gorm:"not null;default:0" json:"price"`
	ProvinceRatio     decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"province_ratio"`
	CityRatio         decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"city_ratio"`
	DistrictRatio     decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"district_ratio"`
	InviteIncomeRatio decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"invite_income_ratio"`
	Status            int8            `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Product) TableName() string {
	return "products"
}

// RegionRatios 商品三级区域分账比例与推广收益比例
type RegionRatios struct {
	Province     decimal.Decimal `json:"province"`
	City         decimal.Decimal `json:"city"`
	District     decimal.Decimal `json:"district"`
	InviteIncome decimal.Decimal `json:"invite_income"`
}

// Ratios 返回商品的比例配置
func (p *Product) Ratios() RegionRatios {
	return RegionRatios{
		Province:     p.ProvinceRatio,
		City:         p.CityRatio,
		District:     p.DistrictRatio,
		InviteIncome: p.InviteIncomeRatio,
	}
}

// ApplyRatios 将比例快照写入订单项
func (i *OrderItem) ApplyRatios(r RegionRatios) {
	i.ProvinceRatio = r.Province
	i.CityRatio = r.City
	i.DistrictRatio = r.District
	i.InviteIncomeRatio = r.InviteIncome
}
