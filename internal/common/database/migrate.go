package database

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/models"
)

// Migrations 按顺序返回全部版本化迁移
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202401010001_create_referral_graph",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.User{}, &models.Admin{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("admins", "users")
			},
		},
		{
			ID: "202401010002_create_orders",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Product{}, &models.Order{}, &models.OrderItem{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("order_items", "orders", "products")
			},
		},
		{
			ID: "202401010003_create_allocations",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.OrderAllocation{}, &models.SettlementBatch{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("settlement_batches", "order_allocations")
			},
		},
		{
			ID: "202401010004_create_withdrawals",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Withdrawal{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("withdrawals")
			},
		},
		{
			// 余额非负由条件更新保证，这里再加一道数据库约束
			ID: "202401010005_users_account_non_negative",
			Migrate: func(tx *gorm.DB) error {
				if !IsPostgres(tx) {
					return nil
				}
				return tx.Exec(`ALTER TABLE users ADD CONSTRAINT chk_users_account_non_negative CHECK (account >= 0)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				if !IsPostgres(tx) {
					return nil
				}
				return tx.Exec(`ALTER TABLE users DROP CONSTRAINT IF EXISTS chk_users_account_non_negative`).Error
			},
		},
		{
			ID: "202401010006_create_operation_logs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.OperationLog{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("operation_logs")
			},
		},
		{
			// 补分账失败次数与原因，超过上限的订单不再自动重试
			ID: "202401010007_order_allocation_attempts",
			Migrate: func(tx *gorm.DB) error {
				for _, column := range []string{"AllocationTries", "AllocationError"} {
					if tx.Migrator().HasColumn(&models.Order{}, column) {
						continue
					}
					if err := tx.Migrator().AddColumn(&models.Order{}, column); err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				for _, column := range []string{"AllocationError", "AllocationTries"} {
					if !tx.Migrator().HasColumn(&models.Order{}, column) {
						continue
					}
					if err := tx.Migrator().DropColumn(&models.Order{}, column); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// RollbackLast 回滚最近一次迁移
func RollbackLast(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
	return m.RollbackLast()
}
