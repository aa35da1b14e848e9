// Package models 定义数据模型
package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// User 用户模型，同时是推荐关系图中的节点
type User struct {
	ID       int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	OpenID   *string `gorm:"column:openid;type:varchar(64);uniqueIndex" json:"openid,omitempty"`
	Phone    *string `gorm:"type:varchar(20);index" json:"phone,omitempty"`
	Nickname string  `gorm:"type:varchar(50);not null;default:''" json:"nickname"`
	Avatar   *string `gorm:"type:varchar(255)" json:"avatar,omitempty"`

	ParentID    *int64       `gorm:"index" json:"parent_id,omitempty"`
	ParentPath  AncestorPath `gorm:"type:varchar(1024);not null;default:''" json:"parent_path"`
	Level       int          `gorm:"not null;default:0" json:"level"`
	DirectCount int64        `gorm:"not null;default:0" json:"direct_count"`
	TeamCount   int64        `gorm:"not null;default:0" json:"team_count"`

	SelfConsumption   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"self_consumption"`
	DirectPerformance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"direct_performance"`
	TeamPerformance   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"team_performance"`
	TotalIncome       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_income"`
	Account           decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"account"`
	Points            int64           `gorm:"not null;default:0" json:"points"`

	InviteCode string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"invite_code"`
	Status     int8      `gorm:"type:smallint;not null;default:0" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Parent *User `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// UserStatus 用户状态
const (
	UserStatusActive = 0 // 正常
	UserStatusFrozen = 1 // 冻结
	UserStatusClosed = 2 // 注销
)

// IsActive 是否为正常状态
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// Ancestors 返回包含直接上级在内的全部祖先，顺序为根到直接上级
func (u *User) Ancestors() []int64 {
	return []int64(u.ParentPath)
}

// ChildPath 返回以该用户为直接上级的下级节点应持有的祖先路径
func (u *User) ChildPath() AncestorPath {
	path := make(AncestorPath, 0, len(u.ParentPath)+1)
	path = append(path, u.ParentPath...)
	return append(path, u.ID)
}

// AncestorPath 祖先路径，存储为 ",1,5,9,"，根节点为空串
//
// 首尾逗号使 LIKE '%,<id>,%' 可以精确判断包含关系。
type AncestorPath []int64

// Value 实现 driver.Valuer 接口
func (p AncestorPath) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan 实现 sql.Scanner 接口
func (p *AncestorPath) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported ancestor path type %T", value)
	}

	parsed, err := ParseAncestorPath(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// String 返回存储格式
func (p AncestorPath) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte(',')
	for _, id := range p {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte(',')
	}
	return b.String()
}

// Contains 判断路径是否包含指定节点
func (p AncestorPath) Contains(id int64) bool {
	for _, v := range p {
		if v == id {
			return true
		}
	}
	return false
}

// Equal 判断两条路径是否一致
func (p AncestorPath) Equal(other AncestorPath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// ParseAncestorPath 解析存储格式，兼容不带首尾逗号的写法
func ParseAncestorPath(raw string) (AncestorPath, error) {
	raw = strings.Trim(strings.TrimSpace(raw), ",")
	if raw == "" {
		return AncestorPath{}, nil
	}
	parts := strings.Split(raw, ",")
	path := make(AncestorPath, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ancestor id %q: %w", part, err)
		}
		path = append(path, id)
	}
	return path, nil
}

// PathContainsPattern 返回匹配"路径包含该节点"的 LIKE 模式
func PathContainsPattern(id int64) string {
	return "%," + strconv.FormatInt(id, 10) + ",%"
}
