// Package errors 定义业务错误码和错误处理
package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is(err, ErrXxx) 对派生错误同样成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, "未知错误")
	ErrInvalidParams   = New(1001, "参数错误")
	ErrNotFound        = New(1002, "资源不存在")
	ErrAlreadyExists   = New(1003, "资源已存在")
	ErrDatabaseError   = New(1004, "数据库错误")
	ErrCacheError      = New(1005, "缓存错误")
	ErrInternalError   = New(1006, "内部错误")
	ErrOperationFailed = New(1009, "操作失败")
	ErrConcurrentTask  = New(1011, "任务正在执行中")
)

// 认证错误码 (2000-2999)
var (
	ErrUnauthorized      = New(2000, "未登录")
	ErrTokenExpired      = New(2001, "登录已过期")
	ErrTokenInvalid      = New(2002, "无效的令牌")
	ErrPermissionDenied  = New(2004, "权限不足")
	ErrAccountDisabled   = New(2005, "账号已禁用")
	ErrPasswordError     = New(2007, "密码错误")
	ErrRegionNotAssigned = New(2013, "管理员未分配管辖区域")
)

// 用户与推荐关系错误码 (3000-3999)
var (
	ErrUserNotFound        = New(3000, "用户不存在")
	ErrUserExists          = New(3001, "用户已存在")
	ErrBalanceInsufficient = New(3006, "余额不足")
	ErrUserFrozen          = New(3008, "账户已冻结")
	ErrUserClosed          = New(3009, "账户已注销")
	ErrInviteCodeConflict  = New(3010, "邀请码分配冲突")
	ErrReferralTooDeep     = New(3011, "推荐层级超出上限")
	ErrUserStatusInvalid   = New(3012, "无效的用户状态")
)

// 订单与分账错误码 (5000-5999)
var (
	ErrOrderNotFound      = New(5000, "订单不存在")
	ErrOrderStatusError   = New(5001, "订单状态异常")
	ErrOrderNotOwned      = New(5010, "无权操作该订单")
	ErrOrderNotCompleted  = New(5011, "订单未完成")
	ErrProductNotFound    = New(5007, "商品不存在")
	ErrAllocationNotFound = New(5100, "分账记录不存在")
	ErrAllocationSettled  = New(5101, "分账记录已结算")
	ErrAllocationFailed   = New(5102, "分账处理失败")
)

// 结算与提现错误码 (6000-6999)
var (
	ErrSettlementFailed        = New(6100, "结算失败")
	ErrWithdrawalNotFound      = New(6200, "提现申请不存在")
	ErrWithdrawalStatusError   = New(6201, "提现申请状态不允许该操作")
	ErrWithdrawAmountInvalid   = New(6202, "提现金额必须大于0")
	ErrWithdrawAmountTooSmall  = New(6203, "提现金额低于最低限额")
	ErrWithdrawPaymentRequired = New(6204, "请填写收款方式和收款账号")
	ErrBatchTooLarge           = New(6205, "批量操作数量超出上限")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// Is 判断错误码是否一致
func Is(err error, target *AppError) bool {
	return stderrors.Is(err, target)
}
