// Package repository 提现仓储单元测试
package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/referral-ledger/internal/models"
)

func newTestWithdrawal(userID int64, no string, amount string) *models.Withdrawal {
	return &models.Withdrawal{
		WithdrawalNo:   no,
		UserID:         userID,
		Amount:         decimal.RequireFromString(amount),
		BeforeBalance:  decimal.RequireFromString("100"),
		AfterBalance:   decimal.RequireFromString("100").Sub(decimal.RequireFromString(amount)),
		Status:         models.WithdrawalStatusPending,
		PaymentMethod:  models.WithdrawMethodAlipay,
		PaymentAccount: "alice@example.com",
	}
}

func TestWithdrawalRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWithdrawalRepository(db)
	ctx := context.Background()

	user := createTestUser(t, db, 100000, nil)
	w := newTestWithdrawal(user.ID, "W1", "30.00")
	require.NoError(t, repo.Create(ctx, db, w))
	assert.NotZero(t, w.ID)

	found, err := repo.GetByIDWithUser(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", found.Amount.StringFixed(2))
	assert.Equal(t, "70.00", found.AfterBalance.StringFixed(2))
	require.NotNil(t, found.User)
	assert.Equal(t, user.ID, found.User.ID)
}

func TestWithdrawalRepository_TransitionStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWithdrawalRepository(db)
	ctx := context.Background()

	user := createTestUser(t, db, 100000, nil)
	w := newTestWithdrawal(user.ID, "W1", "30.00")
	require.NoError(t, repo.Create(ctx, db, w))

	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.WithdrawalStatusApproved,
		"reviewer_id": int64(1),
		"review_time": now,
	}

	ok, err := repo.TransitionStatus(ctx, db, w.ID, models.WithdrawalStatusPending, updates)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("状态已变化时不再命中", func(t *testing.T) {
		ok, err := repo.TransitionStatus(ctx, db, w.ID, models.WithdrawalStatusPending, updates)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	found, err := repo.GetByIDTx(ctx, db, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int8(models.WithdrawalStatusApproved), found.Status)
	require.NotNil(t, found.ReviewerID)
	assert.Equal(t, int64(1), *found.ReviewerID)
}

func TestWithdrawalRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWithdrawalRepository(db)
	ctx := context.Background()

	alice := createTestUser(t, db, 100000, nil)
	bob := createTestUser(t, db, 100001, nil)
	require.NoError(t, db.Model(bob).Update("nickname", "Bob").Error)

	require.NoError(t, repo.Create(ctx, db, newTestWithdrawal(alice.ID, "W1", "10")))
	require.NoError(t, repo.Create(ctx, db, newTestWithdrawal(alice.ID, "W2", "20")))
	rejected := newTestWithdrawal(bob.ID, "W3", "30")
	rejected.Status = models.WithdrawalStatusRejected
	require.NoError(t, repo.Create(ctx, db, rejected))

	t.Run("按用户倒序", func(t *testing.T) {
		list, total, err := repo.List(ctx, &WithdrawalFilter{UserID: &alice.ID}, 0, 10, false)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, "W2", list[0].WithdrawalNo)
		assert.Nil(t, list[0].User)
	})

	t.Run("按状态与昵称", func(t *testing.T) {
		status := int8(models.WithdrawalStatusRejected)
		list, total, err := repo.List(ctx, &WithdrawalFilter{Status: &status, Nickname: "Bo"}, 0, 10, true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.NotNil(t, list[0].User)
		assert.Equal(t, "Bob", list[0].User.Nickname)
	})

	t.Run("待审核数量", func(t *testing.T) {
		count, err := repo.CountByStatus(ctx, models.WithdrawalStatusPending)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestSettlementRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettlementRepository(db)
	ctx := context.Background()

	operator := int64(3)
	for _, no := range []string{"S1", "S2"} {
		require.NoError(t, repo.Create(ctx, db, &models.SettlementBatch{
			BatchNo:          no,
			SettledCount:     2,
			SettledAmount:    decimal.RequireFromString("12.50"),
			BeneficiaryCount: 1,
			Trigger:          models.SettlementTriggerManual,
			OperatorID:       &operator,
		}))
	}

	batch, err := repo.GetByBatchNo(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "12.50", batch.SettledAmount.StringFixed(2))

	list, total, err := repo.List(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 1)
	assert.Equal(t, "S2", list[0].BatchNo)
}

func TestAdminRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAdminRepository(db)
	ctx := context.Background()

	admin := &models.Admin{
		Username:     "zj-admin",
		PasswordHash: "hash",
		Name:         "浙江管理员",
		RegionType:   models.RegionTypeProvince,
		Province:     "浙江省",
		Status:       models.AdminStatusActive,
	}
	require.NoError(t, repo.Create(ctx, admin))

	found, err := repo.GetByUsername(ctx, "zj-admin")
	require.NoError(t, err)
	assert.Equal(t, "浙江省", found.Province)
	assert.Nil(t, found.LastLoginAt)

	exists, err := repo.ExistsByUsername(ctx, "zj-admin")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.UpdateLastLogin(ctx, admin.ID))
	found, err = repo.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.NotNil(t, found.LastLoginAt)
}
