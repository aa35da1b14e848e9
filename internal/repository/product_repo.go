// Package repository 提供数据访问层
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/models"
)

// ProductRepository 商品分账比例仓储
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create 创建商品
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// GetByID 根据 ID 获取商品
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// GetRatios 批量获取商品的分账比例，不存在的商品不出现在结果中
func (r *ProductRepository) GetRatios(ctx context.Context, ids []int64) (map[int64]models.RegionRatios, error) {
	result := make(map[int64]models.RegionRatios, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var products []*models.Product
	err := r.db.WithContext(ctx).
		Select("id", "province_ratio", "city_ratio", "district_ratio", "invite_income_ratio").
		Where("id IN ?", ids).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p.Ratios()
	}
	return result, nil
}

// UpdateRatios 更新商品分账比例，仅影响之后创建的订单项
func (r *ProductRepository) UpdateRatios(ctx context.Context, id int64, ratios models.RegionRatios) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"province_ratio":      ratios.Province,
			"city_ratio":          ratios.City,
			"district_ratio":      ratios.District,
			"invite_income_ratio": ratios.InviteIncome,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
