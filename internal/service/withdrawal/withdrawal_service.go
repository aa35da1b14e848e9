// Package withdrawal 提现申请与审核
package withdrawal

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/common/config"
	"github.com/dumeirei/referral-ledger/internal/common/crypto"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/common/metrics"
	"github.com/dumeirei/referral-ledger/internal/common/tracing"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
	"github.com/dumeirei/referral-ledger/internal/service/settlement"
)

// 默认配置
const (
	DefaultMinWithdrawAmount = 0.01
	DefaultMaxBatchSize      = 100
)

// IncomeSource 提供受益人的结算统计
type IncomeSource interface {
	StatsForBeneficiary(ctx context.Context, userID int64) (*settlement.Stats, error)
}

// Service 提现服务
type Service struct {
	withdrawalRepo *repository.WithdrawalRepository
	userRepo       *repository.UserRepository
	income         IncomeSource
	db             *gorm.DB
	metrics        *metrics.Metrics
	idGen          *utils.IDGenerator
	minAmount      decimal.Decimal
	maxBatchSize   int
}

// NewService 创建提现服务
func NewService(
	withdrawalRepo *repository.WithdrawalRepository,
	userRepo *repository.UserRepository,
	income IncomeSource,
	db *gorm.DB,
	m *metrics.Metrics,
	cfg config.WithdrawalConfig,
) *Service {
	if cfg.MinWithdrawAmount <= 0 {
		cfg.MinWithdrawAmount = DefaultMinWithdrawAmount
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	return &Service{
		withdrawalRepo: withdrawalRepo,
		userRepo:       userRepo,
		income:         income,
		db:             db,
		metrics:        m,
		idGen:          utils.DefaultIDGenerator(),
		minAmount:      utils.MoneyFromFloat(cfg.MinWithdrawAmount),
		maxBatchSize:   cfg.MaxBatchSize,
	}
}

// ApplyRequest 提现申请
type ApplyRequest struct {
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	PaymentMethod  string          `json:"payment_method" binding:"required"`
	PaymentAccount string          `json:"payment_account" binding:"required"`
	PaymentName    *string         `json:"payment_name"`
}

func (s *Service) validate(req *ApplyRequest) error {
	if !req.Amount.IsPositive() {
		return appErrors.ErrWithdrawAmountInvalid
	}
	if !req.Amount.Equal(utils.RoundMoney(req.Amount)) {
		return appErrors.ErrInvalidParams.WithMessage("提现金额最多两位小数")
	}
	if req.Amount.LessThan(s.minAmount) {
		return appErrors.ErrWithdrawAmountTooSmall.WithMessage("提现金额不能低于" + s.minAmount.StringFixed(2) + "元")
	}
	if req.PaymentAccount == "" || !models.IsValidWithdrawMethod(req.PaymentMethod) {
		return appErrors.ErrWithdrawPaymentRequired
	}
	return nil
}

// Apply 申请提现
//
// 申请金额在同一事务内从可提现余额中扣下，余额不足时条件更新不命中。
func (s *Service) Apply(ctx context.Context, userID int64, req *ApplyRequest) (withdrawal *models.Withdrawal, err error) {
	ctx, span := tracing.Start(ctx, "withdrawal.Apply", tracing.WithUserID(userID))
	defer func() { tracing.End(span, err) }()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByIDTx(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErrors.ErrUserNotFound
			}
			return appErrors.ErrDatabaseError.WithError(err)
		}
		switch user.Status {
		case models.UserStatusFrozen:
			return appErrors.ErrUserFrozen
		case models.UserStatusClosed:
			return appErrors.ErrUserClosed
		}

		ok, err := s.userRepo.DebitAccount(ctx, tx, userID, req.Amount)
		if err != nil {
			return appErrors.ErrDatabaseError.WithError(err)
		}
		if !ok {
			return appErrors.ErrBalanceInsufficient
		}
		after, err := s.userRepo.GetAccount(ctx, tx, userID)
		if err != nil {
			return appErrors.ErrDatabaseError.WithError(err)
		}
		after = utils.RoundMoney(after)

		withdrawal = &models.Withdrawal{
			WithdrawalNo:   s.idGen.Next(utils.PrefixWithdrawal),
			UserID:         userID,
			Amount:         req.Amount,
			BeforeBalance:  after.Add(req.Amount),
			AfterBalance:   after,
			Status:         models.WithdrawalStatusPending,
			PaymentMethod:  req.PaymentMethod,
			PaymentAccount: req.PaymentAccount,
			PaymentName:    req.PaymentName,
		}
		if err := s.withdrawalRepo.Create(ctx, tx, withdrawal); err != nil {
			return appErrors.ErrDatabaseError.WithError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWithdrawal(metrics.WithdrawalApply)
	logger.Info("提现申请已提交",
		logger.Module("withdrawal"),
		logger.UserID(userID),
		logger.WithdrawalID(withdrawal.ID),
		logger.Amount("amount", withdrawal.Amount),
	)
	return withdrawal, nil
}

// ReviewRequest 审核请求
type ReviewRequest struct {
	Approve      bool    `json:"approve"`
	ReviewerID   int64   `json:"-"`
	ReviewerName string  `json:"-"`
	Remark       *string `json:"remark"`
}

// Review 审核待审核的提现申请，拒绝时退回余额
func (s *Service) Review(ctx context.Context, id int64, req *ReviewRequest) (err error) {
	ctx, span := tracing.Start(ctx, "withdrawal.Review", tracing.WithWithdrawalID(id))
	defer func() { tracing.End(span, err) }()

	action := metrics.WithdrawalReject
	status := int8(models.WithdrawalStatusRejected)
	if req.Approve {
		action = metrics.WithdrawalApprove
		status = models.WithdrawalStatusApproved
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		withdrawal, err := s.withdrawalRepo.GetByIDTx(ctx, tx, id)
		if err != nil {
			return withdrawalNotFoundOr(err)
		}

		updates := map[string]interface{}{
			"status":      status,
			"reviewer_id": req.ReviewerID,
			"review_time": time.Now(),
		}
		if req.ReviewerName != "" {
			updates["reviewer_name"] = req.ReviewerName
		}
		if req.Remark != nil {
			updates["remark"] = *req.Remark
		}
		ok, err := s.withdrawalRepo.TransitionStatus(ctx, tx, id, models.WithdrawalStatusPending, updates)
		if err != nil {
			return appErrors.ErrDatabaseError.WithError(err)
		}
		if !ok {
			return appErrors.ErrWithdrawalStatusError
		}

		if req.Approve {
			return nil
		}
		if err := s.userRepo.CreditAccount(ctx, tx, withdrawal.UserID, withdrawal.Amount); err != nil {
			return appErrors.ErrDatabaseError.WithError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordWithdrawal(action)
	logger.Info("提现审核完成",
		logger.Module("withdrawal"),
		logger.WithdrawalID(id),
		logger.Action(action),
		logger.AdminID(req.ReviewerID),
	)
	return nil
}

// ConfirmPayment 确认已打款：已通过 -> 已打款
func (s *Service) ConfirmPayment(ctx context.Context, id, operatorID int64) error {
	ok, err := s.withdrawalRepo.TransitionStatus(ctx, s.db, id, models.WithdrawalStatusApproved,
		map[string]interface{}{
			"status":       models.WithdrawalStatusCompleted,
			"payment_time": time.Now(),
		})
	if err != nil {
		return appErrors.ErrDatabaseError.WithError(err)
	}
	if !ok {
		if _, err := s.withdrawalRepo.GetByID(ctx, id); err != nil {
			return withdrawalNotFoundOr(err)
		}
		return appErrors.ErrWithdrawalStatusError
	}

	s.metrics.RecordWithdrawal(metrics.WithdrawalPay)
	logger.Info("提现已打款",
		logger.Module("withdrawal"),
		logger.WithdrawalID(id),
		logger.AdminID(operatorID),
	)
	return nil
}

// BatchItem 批量审核单项结果
type BatchItem struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Code    int    `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult 批量审核结果
type BatchResult struct {
	SuccessCount int          `json:"success_count"`
	FailedCount  int          `json:"failed_count"`
	Items        []*BatchItem `json:"items"`
}

// BatchReview 逐条审核，单条失败不影响其他申请
func (s *Service) BatchReview(ctx context.Context, ids []int64, req *ReviewRequest) (*BatchResult, error) {
	if len(ids) == 0 {
		return nil, appErrors.ErrInvalidParams.WithMessage("请选择提现申请")
	}
	if len(ids) > s.maxBatchSize {
		return nil, appErrors.ErrBatchTooLarge
	}

	result := &BatchResult{Items: make([]*BatchItem, 0, len(ids))}
	for _, id := range ids {
		item := &BatchItem{ID: id, Success: true}
		if err := s.Review(ctx, id, req); err != nil {
			item.Success = false
			item.Error = err.Error()
			if appErr := appErrors.GetAppError(err); appErr != nil {
				item.Code = appErr.Code
				item.Error = appErr.Message
			}
			result.FailedCount++
		} else {
			result.SuccessCount++
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// Get 获取提现详情
func (s *Service) Get(ctx context.Context, id int64) (*models.Withdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByIDWithUser(ctx, id)
	if err != nil {
		return nil, withdrawalNotFoundOr(err)
	}
	return withdrawal, nil
}

// ListByUser 用户自己的提现记录，收款账号脱敏
func (s *Service) ListByUser(ctx context.Context, userID int64, status *int8, p utils.Pagination) ([]*models.Withdrawal, int64, error) {
	p.Normalize()
	filter := &repository.WithdrawalFilter{UserID: &userID, Status: status}
	list, total, err := s.withdrawalRepo.List(ctx, filter, p.GetOffset(), p.PageSize, false)
	if err != nil {
		return nil, 0, appErrors.ErrDatabaseError.WithError(err)
	}
	for _, w := range list {
		w.PaymentAccount = crypto.MaskAccount(w.PaymentMethod, w.PaymentAccount)
	}
	return list, total, nil
}

// ListFilter 后台提现查询条件
type ListFilter struct {
	UserID    *int64
	Status    *int8
	Nickname  string
	CreatedAt *utils.DateRange
}

// ListAll 后台分页查询提现记录
func (s *Service) ListAll(ctx context.Context, filter *ListFilter, p utils.Pagination) ([]*models.Withdrawal, int64, error) {
	p.Normalize()
	repoFilter := &repository.WithdrawalFilter{}
	if filter != nil {
		repoFilter.UserID = filter.UserID
		repoFilter.Status = filter.Status
		repoFilter.Nickname = filter.Nickname
		repoFilter.CreatedAt = filter.CreatedAt
	}
	list, total, err := s.withdrawalRepo.List(ctx, repoFilter, p.GetOffset(), p.PageSize, true)
	if err != nil {
		return nil, 0, appErrors.ErrDatabaseError.WithError(err)
	}
	return list, total, nil
}

// PendingCount 待审核数量
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	count, err := s.withdrawalRepo.CountByStatus(ctx, models.WithdrawalStatusPending)
	if err != nil {
		return 0, appErrors.ErrDatabaseError.WithError(err)
	}
	return count, nil
}

// AmountCount 数量与金额
type AmountCount struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Stats 提现统计
type Stats struct {
	Total     AmountCount `json:"total"`
	Pending   AmountCount `json:"pending"`
	Approved  AmountCount `json:"approved"`
	Rejected  AmountCount `json:"rejected"`
	Completed AmountCount `json:"completed"`
}

// Stats 按状态统计提现数量与金额，dateRange 按申请时间过滤
func (s *Service) Stats(ctx context.Context, dateRange *utils.DateRange) (*Stats, error) {
	filter := &repository.WithdrawalFilter{}
	if !dateRange.IsZero() {
		filter.CreatedAt = dateRange
	}
	rows, err := s.withdrawalRepo.SumByStatus(ctx, filter)
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}

	zero := AmountCount{Amount: decimal.Zero}
	stats := &Stats{Total: zero, Pending: zero, Approved: zero, Rejected: zero, Completed: zero}
	for _, row := range rows {
		var bucket *AmountCount
		switch row.Status {
		case models.WithdrawalStatusPending:
			bucket = &stats.Pending
		case models.WithdrawalStatusApproved:
			bucket = &stats.Approved
		case models.WithdrawalStatusRejected:
			bucket = &stats.Rejected
		case models.WithdrawalStatusCompleted:
			bucket = &stats.Completed
		}
		amount := utils.RoundMoney(row.Amount)
		if bucket != nil {
			bucket.Count = row.Count
			bucket.Amount = amount
		}
		stats.Total.Count += row.Count
		stats.Total.Amount = stats.Total.Amount.Add(amount)
	}
	return stats, nil
}

// IncomeStats 用户收益概览
type IncomeStats struct {
	SettledIncome   decimal.Decimal `json:"settled_income"`
	UnsettledIncome decimal.Decimal `json:"unsettled_income"`
	Account         decimal.Decimal `json:"account"`
	TotalIncome     decimal.Decimal `json:"total_income"`
}

// IncomeStats 已结算收益、待结算收益、可提现余额与累计收益
func (s *Service) IncomeStats(ctx context.Context, userID int64) (*IncomeStats, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}

	stats, err := s.income.StatsForBeneficiary(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &IncomeStats{
		SettledIncome:   stats.SettledAmount,
		UnsettledIncome: stats.UnsettledAmount,
		Account:         utils.RoundMoney(user.Account),
		TotalIncome:     utils.RoundMoney(user.TotalIncome),
	}, nil
}

func withdrawalNotFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return appErrors.ErrWithdrawalNotFound
	}
	return appErrors.ErrDatabaseError.WithError(err)
}
