// Package database 数据库模块单元测试
package database

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return testDB
}

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, getLogLevel(true))
	assert.Equal(t, logger.Silent, getLogLevel(false))
}

// ==================== 迁移测试 ====================

func TestMigrate(t *testing.T) {
	testDB := openTestDB(t)

	t.Run("首次迁移创建全部表", func(t *testing.T) {
		require.NoError(t, Migrate(testDB))

		for _, table := range []string{
			"users", "admins", "products", "orders", "order_items",
			"order_allocations", "settlement_batches", "withdrawals", "operation_logs",
		} {
			assert.True(t, testDB.Migrator().HasTable(table), table)
		}
		assert.True(t, testDB.Migrator().HasIndex("order_allocations", "idx_order_allocations_order_item_id"))
		assert.True(t, testDB.Migrator().HasIndex("users", "idx_users_invite_code"))
	})

	t.Run("重复迁移幂等", func(t *testing.T) {
		require.NoError(t, Migrate(testDB))

		var count int64
		require.NoError(t, testDB.Table("migrations").Count(&count).Error)
		assert.Equal(t, int64(len(Migrations())), count)
	})

	t.Run("回滚最近一次迁移", func(t *testing.T) {
		require.NoError(t, RollbackLast(testDB))
		assert.False(t, testDB.Migrator().HasColumn("orders", "allocation_attempts"))
		assert.False(t, testDB.Migrator().HasColumn("orders", "allocation_error"))
		assert.True(t, testDB.Migrator().HasTable("orders"))

		require.NoError(t, RollbackLast(testDB))
		assert.False(t, testDB.Migrator().HasTable("operation_logs"))

		// 余额约束迁移在 SQLite 上为空操作，再回滚两次以验证提现表被删除
		require.NoError(t, RollbackLast(testDB))
		require.NoError(t, RollbackLast(testDB))
		assert.False(t, testDB.Migrator().HasTable("withdrawals"))
		assert.True(t, testDB.Migrator().HasTable("order_allocations"))
	})
}

func TestMigrations_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range Migrations() {
		assert.False(t, seen[m.ID], "duplicate migration id %s", m.ID)
		seen[m.ID] = true
		assert.NotNil(t, m.Migrate)
		assert.NotNil(t, m.Rollback)
	}
}

// ==================== 作用域测试 ====================

func TestForUpdate_SQLiteIsNoop(t *testing.T) {
	testDB := openTestDB(t)

	type lockRow struct {
		ID int64
	}
	require.NoError(t, testDB.AutoMigrate(&lockRow{}))
	require.NoError(t, testDB.Create(&lockRow{ID: 1}).Error)

	stmt := testDB.Session(&gorm.Session{DryRun: true}).
		Scopes(ForUpdate(true)).
		Find(&[]lockRow{}).Statement
	assert.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
	assert.False(t, IsPostgres(testDB))
}

func TestPaginate(t *testing.T) {
	testDB := openTestDB(t)

	type pageRow struct {
		ID   int64
		Name string
	}
	require.NoError(t, testDB.AutoMigrate(&pageRow{}))
	for i := 1; i <= 30; i++ {
		require.NoError(t, testDB.Create(&pageRow{ID: int64(i), Name: "row"}).Error)
	}

	tests := []struct {
		name      string
		page      int
		pageSize  int
		wantLen   int
		wantFirst int64
	}{
		{"第一页", 1, 10, 10, 1},
		{"第三页", 3, 10, 10, 21},
		{"越界页", 4, 10, 0, 0},
		{"页码非法默认第一页", 0, 10, 10, 1},
		{"每页数量非法默认10", 1, 0, 10, 1},
		{"每页数量上限100", 1, 500, 30, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rows []pageRow
			require.NoError(t, testDB.Order("id").Scopes(Paginate(tt.page, tt.pageSize)).Find(&rows).Error)
			assert.Len(t, rows, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, rows[0].ID)
			}
		})
	}
}
