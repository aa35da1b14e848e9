package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Admin 管理员模型，携带管辖区域
type Admin struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	Name         string     `gorm:"type:varchar(50);not null" json:"name"`
	RegionType   int8       `gorm:"type:smallint;not null;default:0" json:"region_type"`
	Province     string     `gorm:"type:varchar(50);not null;default:''" json:"province"`
	City         string     `gorm:"type:varchar(50);not null;default:''" json:"city"`
	District     string     `gorm:"type:varchar(50);not null;default:''" json:"district"`
	Status       int8       `gorm:"type:smallint;not null;default:1" json:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Admin) TableName() string {
	return "admins"
}

// AdminStatus 管理员状态
const (
	AdminStatusDisabled = 0 // 禁用
	AdminStatusActive   = 1 // 正常
)

// RegionType 管辖区域级别
const (
	RegionTypeAll      = 0 // 不限区域
	RegionTypeProvince = 1 // 省级
	RegionTypeCity     = 2 // 市级
	RegionTypeDistrict = 3 // 区县级
)

// OperationLog 管理员写操作审计日志
type OperationLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AdminID    int64     `gorm:"index;not null" json:"admin_id"`
	AdminName  string    `gorm:"type:varchar(50);not null;default:''" json:"admin_name"`
	Module     string    `gorm:"type:varchar(50);index;not null" json:"module"`
	Action     string    `gorm:"type:varchar(50);not null" json:"action"`
	TargetType *string   `gorm:"type:varchar(50)" json:"target_type,omitempty"`
	TargetID   *int64    `json:"target_id,omitempty"`
	Request    JSON      `gorm:"type:text" json:"request,omitempty"`
	StatusCode int       `gorm:"not null;default:0" json:"status_code"`
	ResultCode int       `gorm:"not null;default:0" json:"result_code"`
	IP         string    `gorm:"type:varchar(45);not null;default:''" json:"ip"`
	UserAgent  *string   `gorm:"type:varchar(255)" json:"user_agent,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 表名
func (OperationLog) TableName() string {
	return "operation_logs"
}

// JSON 以文本存储的 JSON 对象
type JSON map[string]interface{}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON type %T", value)
	}
	if len(raw) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(raw, j)
}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
