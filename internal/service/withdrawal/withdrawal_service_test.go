package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/referral-ledger/internal/common/config"
	"github.com/dumeirei/referral-ledger/internal/common/database"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
	"github.com/dumeirei/referral-ledger/internal/service/settlement"
)

func setupWithdrawalTestDB(t *testing.T) *gorm.DB {
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

func newTestService(db *gorm.DB) *Service {
	settlementSvc := settlement.NewService(
		repository.NewAllocationRepository(db),
		repository.NewUserRepository(db),
		repository.NewSettlementRepository(db),
		db, nil, config.SettlementConfig{},
	)
	return NewService(
		repository.NewWithdrawalRepository(db),
		repository.NewUserRepository(db),
		settlementSvc,
		db, nil,
		config.WithdrawalConfig{MinWithdrawAmount: 1, MaxBatchSize: 3},
	)
}

// createUserWithBalance 创建带余额的用户
func createUserWithBalance(t *testing.T, db *gorm.DB, code string, balance string) *models.User {
	user := &models.User{
		Nickname:    "U" + code,
		InviteCode:  code,
		ParentPath:  models.AncestorPath{},
		Account:     decimal.RequireFromString(balance),
		TotalIncome: decimal.RequireFromString(balance),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func balanceOf(t *testing.T, db *gorm.DB, id int64) string {
	var user models.User
	require.NoError(t, db.First(&user, id).Error)
	return user.Account.StringFixed(2)
}

func applyReq(amount string) *ApplyRequest {
	return &ApplyRequest{
		Amount:         decimal.RequireFromString(amount),
		PaymentMethod:  models.WithdrawMethodAlipay,
		PaymentAccount: "zhangsan@example.com",
	}
}

func TestService_ScenarioD(t *testing.T) {
	db := setupWithdrawalTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	user := createUserWithBalance(t, db, "100000", "10.00")

	w, err := svc.Apply(ctx, user.ID, applyReq("10.00"))
	require.NoError(t, err)
	assert.Equal(t, int8(models.WithdrawalStatusPending), w.Status)
	assert.Equal(t, "10.00", w.BeforeBalance.StringFixed(2))
	assert.Equal(t, "0.00", w.AfterBalance.StringFixed(2))
	assert.True(t, strings.HasPrefix(w.WithdrawalNo, utils.PrefixWithdrawal))
	assert.Equal(t, "0.00", balanceOf(t, db, user.ID))

	err = svc.Review(ctx, w.ID, &ReviewRequest{Approve: false, ReviewerID: 1, ReviewerName: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "10.00", balanceOf(t, db, user.ID))

	got, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int8(models.WithdrawalStatusRejected), got.Status)
	require.NotNil(t, got.ReviewerID)
	assert.NotNil(t, got.ReviewTime)
}

func TestService_Apply_Validation(t *testing.T) {
	db := setupWithdrawalTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	user := createUserWithBalance(t, db, "100000", "10.00")
	frozen := createUserWithBalance(t, db, "100001", "10.00")
	require.NoError(t, db.Model(frozen).Update("status", models.UserStatusFrozen).Error)

	tests := []struct {
		name   string
		userID int64
		req    *ApplyRequest
		want   *appErrors.AppError
	}{
		{"金额为零", user.ID, applyReq("0"), appErrors.ErrWithdrawAmountInvalid},
		{"金额为负", user.ID, applyReq("-1"), appErrors.ErrWithdrawAmountInvalid},
		{"低于最低限额", user.ID, applyReq("0.50"), appErrors.ErrWithdrawAmountTooSmall},
		{"超过余额", user.ID, applyReq("10.01"), appErrors.ErrBalanceInsufficient},
		{"用户不存在", 9999, applyReq("5"), appErrors.ErrUserNotFound},
		{"用户冻结", frozen.ID, applyReq("5"), appErrors.ErrUserFrozen},
		{"收款方式无效", user.ID, &ApplyRequest{
			Amount: decimal.NewFromInt(5), PaymentMethod: "cash", PaymentAccount: "x",
		}, appErrors.ErrWithdrawPaymentRequired},
		{"缺少收款账号", user.ID, &ApplyRequest{
			Amount: decimal.NewFromInt(5), PaymentMethod: models.WithdrawMethodBank,
		}, appErrors.ErrWithdrawPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, tt.userID, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, "10.00", balanceOf(t, db, user.ID))
	var count int64
	db.Model(&models.Withdrawal{}).Count(&count)
	assert.Zero(t, count)
}

func TestService_EscrowConservation(t *testing.T) {
	db := setupWithdrawalTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	user := createUserWithBalance(t, db, "100000", "30.00")

	w1, err := svc.Apply(ctx, user.ID, applyReq("12.34"))
	require.NoError(t, err)
	w2, err := svc.Apply(ctx, user.ID, applyReq("7.66"))
	require.NoError(t, err)
	assert.Equal(t, "17.66", w2.BeforeBalance.StringFixed(2))
	assert.Equal(t, "10.00", w2.AfterBalance.StringFixed(2))

	t.Run("余额不会为负", func(t *testing.T) {
		_, err := svc.Apply(ctx, user.ID, applyReq("10.01"))
		assert.ErrorIs(t, err, appErrors.ErrBalanceInsufficient)
		assert.Equal(t, "10.00", balanceOf(t, db, user.ID))
	})

	require.NoError(t, svc.Review(ctx, w1.ID, &ReviewRequest{Approve: true, ReviewerID: 1}))
	require.NoError(t, svc.ConfirmPayment(ctx, w1.ID, 1))
	require.NoError(t, svc.Review(ctx, w2.ID, &ReviewRequest{Approve: false, ReviewerID: 1}))

	// 余额 + 待审核/已通过/已打款 = 初始余额
	var outstanding struct{ Sum float64 }
	require.NoError(t, db.Model(&models.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0) AS sum").
		Where("user_id = ? AND status <> ?", user.ID, models.WithdrawalStatusRejected).
		Scan(&outstanding).Error)
	var u models.User
	require.NoError(t, db.First(&u, user.ID).Error)
	total := u.Account.Add(decimal.NewFromFloat(outstanding.Sum)).Round(2)
	assert.Equal(t, "30.00", total.StringFixed(2))
	assert.Equal(t, "17.66", u.Account.StringFixed(2))
}

func TestService_StateMachine(t *testing.T) {
	db := setupWithdrawalTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	user := createUserWithBalance(t, db, "100000", "50.00")
	w, err := svc.Apply(ctx, user.ID, applyReq("10"))
	require.NoError(t, err)

	t.Run("待审核不能直接打款", func(t *testing.T) {
		err := svc.ConfirmPayment(ctx, w.ID, 1)
		assert.ErrorIs(t, err, appErrors.ErrWithdrawalStatusError)
	})

	require.NoError(t, svc.Review(ctx, w.ID, &ReviewRequest{Approve: true, ReviewerID: 1}))

	t.Run("重复审核被拒绝", func(t *testing.T) {
		err := svc.Review(ctx, w.ID, &ReviewRequest{Approve: false, ReviewerID: 1})
		assert.ErrorIs(t, err, appErrors.ErrWithdrawalStatusError)
		assert.Equal(t, "40.00", balanceOf(t, db, user.ID))
	})

	require.NoError(t, svc.ConfirmPayment(ctx, w.ID, 1))

	t.Run("已打款不能再次打款", func(t *testing.T) {
		err := svc.ConfirmPayment(ctx, w.ID, 1)
		assert.ErrorIs(t, err, appErrors.ErrWithdrawalStatusError)
	})

	t.Run("不存在的申请", func(t *testing.T) {
		assert.ErrorIs(t, svc.ConfirmPayment(ctx, 9999, 1), appErrors.ErrWithdrawalNotFound)
		assert.ErrorIs(t, svc.Review(ctx, 9999, &ReviewRequest{}), appErrors.ErrWithdrawalNotFound)
	})

	got, err := svc.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int8(models.WithdrawalStatusCompleted), got.Status)
	assert.NotNil(t, got.PaymentTime)
}

func TestService_BatchReview(t *testing.T) {
	db := setupWithdrawalTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	user := createUserWithBalance(t, db, "100000", "30.00")
	w1, err := svc.Apply(ctx, user.ID, applyReq("5"))
	require.NoError(t, err)
	w2, err := svc.Apply(ctx, user.ID, applyReq("5"))
	require.NoError(t, err)
	require.NoError(t, svc.Review(ctx, w2.ID, &ReviewRequest{Approve: true, ReviewerID: 1}))

	t.Run("单条失败不影响其他", func(t *testing.T) {
		result, err := svc.BatchReview(ctx, []int64{w1.ID, w2.ID, 9999}, &ReviewRequest{Approve: false, ReviewerID: 2})
		require.NoError(t, err)
		assert.Equal(t, 1, result.SuccessCount)
		assert.Equal(t, 2, result.FailedCount)
		require.Len(t, result.Items, 3)
		assert.True(t, result.Items[0].Success)
		assert.Equal(t, appErrors.ErrWithdrawalStatusError.Code, result.Items[1].Code)
		assert.Equal(t, appErrors.ErrWithdrawalNotFound.Code, result.Items[2].Code)
		assert.Equal(t, "25.00", balanceOf(t, db, user.ID))
	})

	t.Run("超出批量上限", func(t *testing.T) {
		_, err := svc.BatchReview(ctx, []int64{1, 2, 3, 4}, &ReviewRequest{})
		assert.ErrorIs(t, err, appErrors.ErrBatchTooLarge)
	})

	t.Run("空列表", func(t *testing.T) {
		_, err := svc.BatchReview(ctx, nil, &ReviewRequest{})
		assert.ErrorIs(t, err, appErrors.ErrInvalidParams)
	})
}

func TestService_QueriesAndIncome(t *testing.T) {
	db := setupWithdrawalTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	user := createUserWithBalance(t, db, "100000", "20.00")
	other := createUserWithBalance(t, db, "100001", "20.00")
	_, err := svc.Apply(ctx, user.ID, applyReq("5"))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, user.ID, applyReq("6"))
	require.NoError(t, err)
	_, err = svc.Apply(ctx, other.ID, applyReq("7"))
	require.NoError(t, err)

	t.Run("用户记录", func(t *testing.T) {
		list, total, err := svc.ListByUser(ctx, user.ID, nil, utils.Pagination{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, list, 2)
		assert.Equal(t, "zh***@example.com", list[0].PaymentAccount)
	})

	t.Run("后台按昵称查询", func(t *testing.T) {
		list, total, err := svc.ListAll(ctx, &ListFilter{Nickname: "100001"}, utils.Pagination{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.NotNil(t, list[0].User)
		assert.Equal(t, other.ID, list[0].User.ID)

		pending, err := svc.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), pending)
	})

	t.Run("收益概览", func(t *testing.T) {
		record := &models.OrderAllocation{
			OrderID: 1, OrderNo: "O1", OrderItemID: 1,
			UserID: other.ID, ParentUserID: user.ID, ProductID: 1, Quantity: 1,
			PayAmount: 10000, InviteIncomeRatio: decimal.RequireFromString("0.10"),
		}
		require.NoError(t, db.Create(record).Error)

		stats, err := svc.IncomeStats(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "9.00", stats.Account.StringFixed(2))
		assert.Equal(t, "20.00", stats.TotalIncome.StringFixed(2))
		assert.Equal(t, "10.00", stats.UnsettledIncome.StringFixed(2))
		assert.True(t, stats.SettledIncome.IsZero())

		_, err = svc.IncomeStats(ctx, 9999)
		assert.ErrorIs(t, err, appErrors.ErrUserNotFound)
	})
}

func TestService_Stats(t *testing.T) {
	db := setupWithdrawalTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	user := createUserWithBalance(t, db, "100000", "50.00")
	apply := func(amount string) *models.Withdrawal {
		w, err := svc.Apply(ctx, user.ID, applyReq(amount))
		require.NoError(t, err)
		return w
	}
	rejected := apply("5")
	approved := apply("6.50")
	completed := apply("7")
	apply("8")

	require.NoError(t, svc.Review(ctx, rejected.ID, &ReviewRequest{Approve: false, ReviewerID: 1}))
	require.NoError(t, svc.Review(ctx, approved.ID, &ReviewRequest{Approve: true, ReviewerID: 1}))
	require.NoError(t, svc.Review(ctx, completed.ID, &ReviewRequest{Approve: true, ReviewerID: 1}))
	require.NoError(t, svc.ConfirmPayment(ctx, completed.ID, 1))

	t.Run("按状态汇总", func(t *testing.T) {
		stats, err := svc.Stats(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.Total.Count)
		assert.Equal(t, "26.50", stats.Total.Amount.StringFixed(2))
		assert.Equal(t, int64(1), stats.Pending.Count)
		assert.Equal(t, "8.00", stats.Pending.Amount.StringFixed(2))
		assert.Equal(t, "6.50", stats.Approved.Amount.StringFixed(2))
		assert.Equal(t, "5.00", stats.Rejected.Amount.StringFixed(2))
		assert.Equal(t, int64(1), stats.Completed.Count)
		assert.Equal(t, "7.00", stats.Completed.Amount.StringFixed(2))
	})

	t.Run("按申请时间过滤", func(t *testing.T) {
		now := time.Now()
		start, end := now.Add(-time.Hour), now.Add(time.Hour)
		stats, err := svc.Stats(ctx, &utils.DateRange{Start: &start, End: &end})
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.Total.Count)

		future := now.Add(time.Hour)
		stats, err = svc.Stats(ctx, &utils.DateRange{Start: &future})
		require.NoError(t, err)
		assert.Zero(t, stats.Total.Count)
		assert.True(t, stats.Total.Amount.IsZero())
		assert.True(t, stats.Pending.Amount.IsZero())
	})
}
