package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Withdrawal 提现申请
type Withdrawal struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	UserID         int64           `gorm:"index;not null" json:"user_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	BeforeBalance  decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"before_balance"`
	AfterBalance   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"after_balance"`
	Status         int8            `gorm:"type:smallint;index;not null;default:0" json:"status"`
	PaymentMethod  string          `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentAccount string          `gorm:"type:varchar(64);not null" json:"payment_account"`
	PaymentName    *string         `gorm:"type:varchar(50)" json:"payment_name,omitempty"`
	ReviewerID     *int64          `json:"reviewer_id,omitempty"`
	ReviewerName   *string         `gorm:"type:varchar(50)" json:"reviewer_name,omitempty"`
	ReviewTime     *time.Time      `json:"review_time,omitempty"`
	Remark         *string         `gorm:"type:varchar(255)" json:"remark,omitempty"`
	PaymentTime    *time.Time      `json:"payment_time,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 表名
func (Withdrawal) TableName() string {
	return "withdrawals"
}

// WithdrawalStatus 提现状态
const (
	WithdrawalStatusPending   = 0 // 待审核
	WithdrawalStatusApproved  = 1 // 已通过
	WithdrawalStatusRejected  = 2 // 已拒绝
	WithdrawalStatusCompleted = 3 // 已打款
)

// WithdrawMethod 提现方式
const (
	WithdrawMethodWechat = "wechat" // 微信
	WithdrawMethodAlipay = "alipay" // 支付宝
	WithdrawMethodBank   = "bank"   // 银行卡
)

// IsValidWithdrawMethod 判断提现方式是否受支持
func IsValidWithdrawMethod(method string) bool {
	switch method {
	case WithdrawMethodWechat, WithdrawMethodAlipay, WithdrawMethodBank:
		return true
	}
	return false
}
