// Package repository 提供数据访问层
package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/models"
)

// ErrNoRowsAffected 条件更新未命中任何行
var ErrNoRowsAffected = errors.New("no rows affected")

// UserRepository 用户仓储，同时承载推荐关系图的读写
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// DB 返回底层连接，供服务层开启事务
func (r *UserRepository) DB() *gorm.DB {
	return r.db
}

// Create 在事务内创建用户
func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	return tx.WithContext(ctx).Create(user).Error
}

// GetByID 根据 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDTx 在事务内获取用户
func (r *UserRepository) GetByIDTx(ctx context.Context, tx *gorm.DB, id int64) (*models.User, error) {
	var user models.User
	if err := tx.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByOpenID 根据外部身份获取用户
func (r *UserRepository) GetByOpenID(ctx context.Context, openID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("openid = ?", openID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByInviteCode 根据邀请码获取用户
func (r *UserRepository) GetByInviteCode(ctx context.Context, inviteCode string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("invite_code = ?", inviteCode).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// MaxInviteCode 返回当前最大的数字邀请码，无用户时返回 0
func (r *UserRepository) MaxInviteCode(ctx context.Context, tx *gorm.DB) (int64, error) {
	var maxCode int64
	err := tx.WithContext(ctx).Model(&models.User{}).
		Select("COALESCE(MAX(CAST(invite_code AS BIGINT)), 0)").
		Scan(&maxCode).Error
	return maxCode, err
}

// IncrDirectCount 直推人数增减
func (r *UserRepository) IncrDirectCount(ctx context.Context, tx *gorm.DB, id int64, delta int64) error {
	return tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("direct_count", gorm.Expr("direct_count + ?", delta)).Error
}

// IncrTeamCount 一条语句为整条祖先链增减团队人数
func (r *UserRepository) IncrTeamCount(ctx context.Context, tx *gorm.DB, ids []int64, delta int64) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Model(&models.User{}).
		Where("id IN ?", ids).
		UpdateColumn("team_count", gorm.Expr("team_count + ?", delta)).Error
}

// AddConsumption 累加个人消费与积分
func (r *UserRepository) AddConsumption(ctx context.Context, tx *gorm.DB, id int64, amount decimal.Decimal, points int64) error {
	updates := map[string]interface{}{
		"self_consumption": gorm.Expr("self_consumption + ?", amount),
	}
	if points > 0 {
		updates["points"] = gorm.Expr("points + ?", points)
	}
	result := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumns(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// AddDirectPerformance 累加直推业绩
func (r *UserRepository) AddDirectPerformance(ctx context.Context, tx *gorm.DB, id int64, amount decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("direct_performance", gorm.Expr("direct_performance + ?", amount)).Error
}

// AddTeamPerformance 一条语句为整条祖先链累加团队业绩
func (r *UserRepository) AddTeamPerformance(ctx context.Context, tx *gorm.DB, ids []int64, amount decimal.Decimal) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Model(&models.User{}).
		Where("id IN ?", ids).
		UpdateColumn("team_performance", gorm.Expr("team_performance + ?", amount)).Error
}

// CreditIncome 结算入账：可提现余额与累计收益同时增加
func (r *UserRepository) CreditIncome(ctx context.Context, tx *gorm.DB, id int64, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"account":      gorm.Expr("account + ?", amount),
			"total_income": gorm.Expr("total_income + ?", amount),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// DebitAccount 条件扣减余额，余额不足时返回 false
func (r *UserRepository) DebitAccount(ctx context.Context, tx *gorm.DB, id int64, amount decimal.Decimal) (bool, error) {
	result := tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND account >= ?", id, amount).
		UpdateColumn("account", gorm.Expr("account - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CreditAccount 退回余额
func (r *UserRepository) CreditAccount(ctx context.Context, tx *gorm.DB, id int64, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("account", gorm.Expr("account + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// GetAccount 读取当前余额
func (r *UserRepository) GetAccount(ctx context.Context, tx *gorm.DB, id int64) (decimal.Decimal, error) {
	var user models.User
	if err := tx.WithContext(ctx).Select("id", "account").First(&user, id).Error; err != nil {
		return decimal.Zero, err
	}
	return user.Account, nil
}

// UpdateStatus 更新用户状态
func (r *UserRepository) UpdateStatus(ctx context.Context, id int64, status int8) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListDirect 直推下级列表
func (r *UserRepository) ListDirect(ctx context.Context, userID int64, offset, limit int) ([]*models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{}).Where("parent_id = ?", userID)
	return r.page(query, offset, limit)
}

// ListTeam 全部下级列表，按祖先路径包含关系匹配
func (r *UserRepository) ListTeam(ctx context.Context, userID int64, offset, limit int) ([]*models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{}).
		Where("parent_path LIKE ?", models.PathContainsPattern(userID))
	return r.page(query, offset, limit)
}

func (r *UserRepository) page(query *gorm.DB, offset, limit int) ([]*models.User, int64, error) {
	var users []*models.User
	var total int64

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GraphNode 关系图校验所需的最小字段集
type GraphNode struct {
	ID          int64
	ParentID    *int64
	ParentPath  models.AncestorPath
	Level       int
	DirectCount int64
	TeamCount   int64
}

// ListGraphNodes 按 ID 顺序分批读取全部节点
func (r *UserRepository) ListGraphNodes(ctx context.Context, batchSize int, fn func([]GraphNode) error) error {
	var lastID int64
	for {
		var batch []GraphNode
		err := r.db.WithContext(ctx).Model(&models.User{}).
			Select("id", "parent_id", "parent_path", "level", "direct_count", "team_count").
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(batchSize).
			Scan(&batch).Error
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

// GetByIDs 批量获取用户
func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	var users []*models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}
