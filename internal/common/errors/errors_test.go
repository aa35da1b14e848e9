// Package errors 错误码和错误处理单元测试
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== AppError 基础测试 ====================

func TestNewAndWrap(t *testing.T) {
	err := New(1001, "参数错误")
	require.NotNil(t, err)
	assert.Equal(t, 1001, err.Code)
	assert.Equal(t, "参数错误", err.Message)
	assert.Nil(t, err.Err)

	cause := stderrors.New("connection reset")
	wrapped := Wrap(1004, "数据库错误", cause)
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.Equal(t, "[1004] 数据库错误: connection reset", wrapped.Error())
	assert.Equal(t, "[1001] 参数错误", err.Error())
}

func TestAppError_WithMessageAndWithError(t *testing.T) {
	original := New(6203, "提现金额低于最低限额")

	modified := original.
		WithMessage("提现金额不能低于 10.00").
		WithError(stderrors.New("amount=5"))

	assert.Equal(t, 6203, modified.Code)
	assert.Equal(t, "提现金额不能低于 10.00", modified.Message)
	assert.NotNil(t, modified.Err)

	// 原始错误不受影响
	assert.Equal(t, "提现金额低于最低限额", original.Message)
	assert.Nil(t, original.Err)
}

// ==================== 错误码匹配测试 ====================

func TestAppError_Is(t *testing.T) {
	t.Run("派生错误与原始错误码一致", func(t *testing.T) {
		derived := ErrBalanceInsufficient.WithMessage("可提现余额不足")
		assert.True(t, stderrors.Is(derived, ErrBalanceInsufficient))
		assert.True(t, Is(derived, ErrBalanceInsufficient))
	})

	t.Run("经 fmt 包装后仍可识别", func(t *testing.T) {
		wrapped := fmt.Errorf("review withdrawal: %w", ErrWithdrawalStatusError)
		assert.True(t, Is(wrapped, ErrWithdrawalStatusError))
		assert.False(t, Is(wrapped, ErrWithdrawalNotFound))
	})

	t.Run("非应用错误不匹配", func(t *testing.T) {
		assert.False(t, Is(stderrors.New("plain"), ErrUnknown))
	})
}

func TestIsAppError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"AppError", ErrUnknown, true},
		{"包装后的 AppError", fmt.Errorf("ctx: %w", ErrUserNotFound), true},
		{"标准错误", stderrors.New("standard error"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAppError(tt.err))
		})
	}
}

func TestGetAppError(t *testing.T) {
	t.Run("直接返回 AppError", func(t *testing.T) {
		assert.Equal(t, ErrInvalidParams, GetAppError(ErrInvalidParams))
	})

	t.Run("从包装链中取出 AppError", func(t *testing.T) {
		wrapped := fmt.Errorf("settle: %w", ErrAllocationSettled)
		assert.Equal(t, ErrAllocationSettled, GetAppError(wrapped))
	})

	t.Run("标准错误转为未知错误", func(t *testing.T) {
		standardErr := stderrors.New("standard error")
		got := GetAppError(standardErr)
		assert.Equal(t, ErrUnknown.Code, got.Code)
		assert.Equal(t, standardErr, got.Err)
	})
}

// ==================== 错误码范围测试 ====================

func TestErrorCodeRanges(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		min, max int
	}{
		{"ErrInvalidParams", ErrInvalidParams, 1000, 1999},
		{"ErrConcurrentTask", ErrConcurrentTask, 1000, 1999},
		{"ErrPermissionDenied", ErrPermissionDenied, 2000, 2999},
		{"ErrRegionNotAssigned", ErrRegionNotAssigned, 2000, 2999},
		{"ErrUserNotFound", ErrUserNotFound, 3000, 3999},
		{"ErrBalanceInsufficient", ErrBalanceInsufficient, 3000, 3999},
		{"ErrReferralTooDeep", ErrReferralTooDeep, 3000, 3999},
		{"ErrOrderStatusError", ErrOrderStatusError, 5000, 5999},
		{"ErrAllocationSettled", ErrAllocationSettled, 5000, 5999},
		{"ErrWithdrawalStatusError", ErrWithdrawalStatusError, 6000, 6999},
		{"ErrBatchTooLarge", ErrBatchTooLarge, 6000, 6999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.GreaterOrEqual(t, tt.err.Code, tt.min)
			assert.LessOrEqual(t, tt.err.Code, tt.max)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}
