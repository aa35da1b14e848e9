package reporting

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/referral-ledger/internal/common/cache"
	"github.com/dumeirei/referral-ledger/internal/common/config"
	"github.com/dumeirei/referral-ledger/internal/common/database"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

func setupReportingTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		s.Close()
	})
	return s, client
}

type region struct {
	province, city, district string
}

// seedRecords 每条记录实付 100 元，省/市/区比例 0.01/0.02/0.03
func seedRecords(t *testing.T, db *gorm.DB, beneficiary int64, regions ...region) {
	for i, r := range regions {
		id := int64(i + 1)
		record := &models.OrderAllocation{
			OrderID:           id,
			OrderNo:           fmt.Sprintf("O%d", id),
			OrderItemID:       id,
			UserID:            1,
			ParentUserID:      beneficiary + id%2,
			ProductID:         1,
			Quantity:          1,
			PayAmount:         10000,
			ProvinceRatio:     decimal.RequireFromString("0.01"),
			CityRatio:         decimal.RequireFromString("0.02"),
			DistrictRatio:     decimal.RequireFromString("0.03"),
			ProvinceAmount:    decimal.RequireFromString("1.00"),
			CityAmount:        decimal.RequireFromString("2.00"),
			DistrictAmount:    decimal.RequireFromString("3.00"),
			InviteIncomeRatio: decimal.RequireFromString("0.1"),
			ReceiverProvince:  r.province,
			ReceiverCity:      r.city,
			ReceiverDistrict:  r.district,
		}
		require.NoError(t, db.Create(record).Error)
	}
}

var (
	westLake = region{"浙江省", "杭州市", "西湖区"}
	shangCh  = region{"浙江省", "杭州市", "上城区"}
	yinZhou  = region{"浙江省", "宁波市", "鄞州区"}
	gulou    = region{"江苏省", "南京市", "鼓楼区"}
)

func TestResolveScope(t *testing.T) {
	requested := RegionFilter{Province: "江苏省", City: "南京市", District: "鼓楼区"}

	tests := []struct {
		name    string
		admin   *models.Admin
		want    RegionFilter
		wantErr *appErrors.AppError
	}{
		{"不限区域保留请求", &models.Admin{RegionType: models.RegionTypeAll}, requested, nil},
		{"省级强制省份", &models.Admin{RegionType: models.RegionTypeProvince, Province: "浙江省"},
			RegionFilter{Province: "浙江省", City: "南京市", District: "鼓楼区"}, nil},
		{"市级强制省市", &models.Admin{RegionType: models.RegionTypeCity, Province: "浙江省", City: "杭州市"},
			RegionFilter{Province: "浙江省", City: "杭州市", District: "鼓楼区"}, nil},
		{"区级强制全部", &models.Admin{RegionType: models.RegionTypeDistrict, Province: "浙江省", City: "杭州市", District: "西湖区"},
			RegionFilter{Province: "浙江省", City: "杭州市", District: "西湖区"}, nil},
		{"市级缺少城市", &models.Admin{RegionType: models.RegionTypeCity, Province: "浙江省"},
			RegionFilter{}, appErrors.ErrRegionNotAssigned},
		{"区级缺少区县", &models.Admin{RegionType: models.RegionTypeDistrict, Province: "浙江省", City: "杭州市"},
			RegionFilter{}, appErrors.ErrRegionNotAssigned},
		{"未知级别", &models.Admin{RegionType: 9}, RegionFilter{}, appErrors.ErrPermissionDenied},
		{"未登录", nil, RegionFilter{}, appErrors.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveScope(tt.admin, requested)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Summary(t *testing.T) {
	db := setupReportingTestDB(t)
	seedRecords(t, db, 10, westLake, westLake, shangCh, yinZhou, gulou)
	svc := NewService(repository.NewAllocationRepository(db), nil, nil, config.ReportingConfig{})
	ctx := context.Background()
	all := &models.Admin{RegionType: models.RegionTypeAll}

	t.Run("按省分组", func(t *testing.T) {
		summary, err := svc.Summary(ctx, all, &RegionQuery{})
		require.NoError(t, err)
		assert.Equal(t, GroupByProvince, summary.GroupBy)
		require.Len(t, summary.Rows, 2)
		byRegion := map[string]*repository.RegionAggregate{}
		for _, row := range summary.Rows {
			byRegion[row.Region] = row
		}
		assert.Equal(t, int64(4), byRegion["浙江省"].RecordCount)
		assert.Equal(t, "4.00", byRegion["浙江省"].ProvinceAmount.StringFixed(2))
		assert.Equal(t, "3.00", byRegion["江苏省"].DistrictAmount.StringFixed(2))

		assert.Equal(t, int64(5), summary.Totals.RecordCount)
		assert.Equal(t, "10.00", summary.Totals.CityAmount.StringFixed(2))
		assert.Equal(t, int64(2), summary.BeneficiaryCount)
	})

	t.Run("市级管理员按区分组", func(t *testing.T) {
		admin := &models.Admin{RegionType: models.RegionTypeCity, Province: "浙江省", City: "杭州市"}
		summary, err := svc.Summary(ctx, admin, &RegionQuery{
			Filter:  RegionFilter{Province: "江苏省"},
			GroupBy: GroupByDistrict,
		})
		require.NoError(t, err)
		assert.Equal(t, RegionFilter{Province: "浙江省", City: "杭州市"}, summary.Scope)
		require.Len(t, summary.Rows, 2)
		assert.Equal(t, int64(3), summary.Totals.RecordCount)
		assert.Equal(t, "9.00", summary.Totals.DistrictAmount.StringFixed(2))
	})

	t.Run("按结算状态过滤", func(t *testing.T) {
		settled := int8(models.SettlementStatusSettled)
		summary, err := svc.Summary(ctx, all, &RegionQuery{SettlementStatus: &settled})
		require.NoError(t, err)
		assert.Empty(t, summary.Rows)
		assert.Zero(t, summary.Totals.RecordCount)
	})

	t.Run("时间范围", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		summary, err := svc.Summary(ctx, all, &RegionQuery{StartDate: &future})
		require.NoError(t, err)
		assert.Zero(t, summary.Totals.RecordCount)
	})

	t.Run("不支持的分组", func(t *testing.T) {
		_, err := svc.Summary(ctx, all, &RegionQuery{GroupBy: "street"})
		assert.ErrorIs(t, err, appErrors.ErrInvalidParams)
	})

	t.Run("未分配区域", func(t *testing.T) {
		_, err := svc.Summary(ctx, &models.Admin{RegionType: models.RegionTypeProvince}, &RegionQuery{})
		assert.ErrorIs(t, err, appErrors.ErrRegionNotAssigned)
	})
}

func TestService_Summary_Cache(t *testing.T) {
	db := setupReportingTestDB(t)
	seedRecords(t, db, 10, westLake, gulou)
	mr, client := setupMiniRedis(t)
	svc := NewService(repository.NewAllocationRepository(db), cache.NewStore(client), nil,
		config.ReportingConfig{CacheTTLSeconds: 60})
	ctx := context.Background()
	all := &models.Admin{RegionType: models.RegionTypeAll}

	first, err := svc.Summary(ctx, all, &RegionQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Totals.RecordCount)
	assert.Len(t, mr.Keys(), 1)
	assert.True(t, strings.HasPrefix(mr.Keys()[0], cache.KeyPrefixReport))

	// 新增记录后缓存仍返回旧结果
	seedMore := &models.OrderAllocation{
		OrderID: 99, OrderNo: "O99", OrderItemID: 99, UserID: 1, ParentUserID: 10,
		ProductID: 1, Quantity: 1, PayAmount: 10000, ReceiverProvince: "浙江省",
	}
	require.NoError(t, db.Create(seedMore).Error)

	cached, err := svc.Summary(ctx, all, &RegionQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.Totals.RecordCount)
	assert.Equal(t, "2.00", cached.Totals.ProvinceAmount.StringFixed(2))

	t.Run("不同范围使用不同缓存", func(t *testing.T) {
		_, err := svc.Summary(ctx, all, &RegionQuery{GroupBy: GroupByCity})
		require.NoError(t, err)
		assert.Len(t, mr.Keys(), 2)
	})

	t.Run("清除缓存", func(t *testing.T) {
		svc.Invalidate(ctx)
		assert.Empty(t, mr.Keys())

		fresh, err := svc.Summary(ctx, all, &RegionQuery{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), fresh.Totals.RecordCount)
	})

	t.Run("缓存过期", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		assert.Empty(t, mr.Keys())
	})
}

func TestService_ListRecords(t *testing.T) {
	db := setupReportingTestDB(t)
	seedRecords(t, db, 10, westLake, shangCh, yinZhou, gulou)
	svc := NewService(repository.NewAllocationRepository(db), nil, nil, config.ReportingConfig{})
	ctx := context.Background()

	admin := &models.Admin{RegionType: models.RegionTypeDistrict, Province: "浙江省", City: "杭州市", District: "西湖区"}
	records, total, err := svc.ListRecords(ctx, admin, &RegionQuery{}, utils.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "西湖区", records[0].ReceiverDistrict)

	_, total, err = svc.ListRecords(ctx, &models.Admin{RegionType: models.RegionTypeProvince, Province: "浙江省"},
		&RegionQuery{}, utils.Pagination{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}
