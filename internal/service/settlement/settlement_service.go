// Package settlement 分账结算服务
package settlement

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/common/config"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/common/metrics"
	"github.com/dumeirei/referral-ledger/internal/common/tracing"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

// Service 结算服务
type Service struct {
	allocationRepo *repository.AllocationRepository
	userRepo       *repository.UserRepository
	settlementRepo *repository.SettlementRepository
	db             *gorm.DB
	metrics        *metrics.Metrics
	idGen          *utils.IDGenerator
	cfg            config.SettlementConfig
}

// NewService 创建结算服务
func NewService(
	allocationRepo *repository.AllocationRepository,
	userRepo *repository.UserRepository,
	settlementRepo *repository.SettlementRepository,
	db *gorm.DB,
	m *metrics.Metrics,
	cfg config.SettlementConfig,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Service{
		allocationRepo: allocationRepo,
		userRepo:       userRepo,
		settlementRepo: settlementRepo,
		db:             db,
		metrics:        m,
		idGen:          utils.DefaultIDGenerator(),
		cfg:            cfg,
	}
}

// Commission 单条记录的佣金：实付金额折元保留 4 位后乘以推广收益比例，再保留 2 位
func Commission(payAmount int64, inviteIncomeRatio decimal.Decimal) decimal.Decimal {
	return utils.RoundMoney(utils.CentsToYuan(payAmount, utils.RatioPlaces).Mul(inviteIncomeRatio))
}

// Filter 结算范围
type Filter struct {
	BeneficiaryID *int64
	StartDate     *time.Time
	EndDate       *time.Time
	RecordIDs     []int64
	Trigger       string
	OperatorID    *int64
}

func (f *Filter) toRepo() *repository.AllocationFilter {
	filter := &repository.AllocationFilter{
		ParentUserID: f.BeneficiaryID,
		RecordIDs:    f.RecordIDs,
	}
	if f.StartDate != nil || f.EndDate != nil {
		filter.CreatedAt = &utils.DateRange{Start: f.StartDate, End: f.EndDate}
	}
	return filter
}

// Failure 单条记录的结算失败原因
type Failure struct {
	RecordID int64  `json:"record_id"`
	Code     int    `json:"code"`
	Reason   string `json:"reason"`
}

// Result 结算结果
type Result struct {
	BatchNo          string          `json:"batch_no,omitempty"`
	SettledCount     int             `json:"settled_count"`
	SettledAmount    decimal.Decimal `json:"settled_amount"`
	BeneficiaryCount int             `json:"beneficiary_count"`
	Failures         []Failure       `json:"failures,omitempty"`
}

// Settle 结算满足条件的未结算记录并为受益人入账
//
// 单条记录的结算是条件更新，已被其他批次结算的记录直接跳过，重复执行不会重复入账。
// 定时触发时每次最多处理 batch_size 条。受益人入账失败时只回滚该受益人的记录，并在 Failures 中报告。
func (s *Service) Settle(ctx context.Context, filter *Filter) (result *Result, err error) {
	if filter == nil {
		filter = &Filter{}
	}
	if filter.Trigger == "" {
		filter.Trigger = models.SettlementTriggerManual
	}
	ctx, span := tracing.Start(ctx, "settlement.Settle", tracing.WithOperation(filter.Trigger))
	defer func() { tracing.End(span, err) }()

	limit := 0
	if filter.Trigger == models.SettlementTriggerScheduler {
		limit = s.cfg.BatchSize
	}

	result = &Result{SettledAmount: decimal.Zero}
	batchNo := s.idGen.Next(utils.PrefixSettlement)
	now := time.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		records, err := s.allocationRepo.LockUnsettled(ctx, tx, filter.toRepo(), limit)
		if err != nil {
			return err
		}

		// 按受益人分组，固定加锁顺序
		grouped := make(map[int64][]*models.OrderAllocation)
		beneficiaries := make([]int64, 0)
		for _, r := range records {
			if _, ok := grouped[r.ParentUserID]; !ok {
				beneficiaries = append(beneficiaries, r.ParentUserID)
			}
			grouped[r.ParentUserID] = append(grouped[r.ParentUserID], r)
		}
		sort.Slice(beneficiaries, func(i, j int) bool { return beneficiaries[i] < beneficiaries[j] })

		handled := make(map[int64]struct{}, len(records))
		for _, beneficiaryID := range beneficiaries {
			group := grouped[beneficiaryID]
			settled, err := s.settleBeneficiary(ctx, tx, beneficiaryID, group, batchNo, now)
			if errors.Is(err, repository.ErrNoRowsAffected) {
				// 受益人不存在，其记录保持未结算，不影响其他受益人
				logger.Warn("受益人入账失败，记录保持未结算",
					logger.Module("settlement"),
					logger.BatchNo(batchNo),
					logger.UserID(beneficiaryID),
					logger.Int("records", len(group)),
				)
				for _, r := range group {
					handled[r.ID] = struct{}{}
					result.Failures = append(result.Failures, Failure{
						RecordID: r.ID,
						Code:     appErrors.ErrUserNotFound.Code,
						Reason:   appErrors.ErrUserNotFound.Message,
					})
				}
				continue
			}
			if err != nil {
				return err
			}
			for _, r := range settled.records {
				handled[r] = struct{}{}
			}
			if len(settled.records) == 0 {
				continue
			}
			result.BeneficiaryCount++
			result.SettledCount += len(settled.records)
			result.SettledAmount = result.SettledAmount.Add(settled.amount)
		}

		if len(filter.RecordIDs) > 0 {
			failures, err := s.explainMissing(ctx, tx, filter.RecordIDs, handled)
			if err != nil {
				return err
			}
			result.Failures = append(result.Failures, failures...)
		}

		if result.SettledCount == 0 {
			return nil
		}
		result.BatchNo = batchNo
		return s.settlementRepo.Create(ctx, tx, &models.SettlementBatch{
			BatchNo:          batchNo,
			SettledCount:     result.SettledCount,
			SettledAmount:    result.SettledAmount,
			BeneficiaryCount: result.BeneficiaryCount,
			Trigger:          filter.Trigger,
			OperatorID:       filter.OperatorID,
		})
	})
	if err != nil {
		logger.Error("结算失败", logger.Module("settlement"), logger.BatchNo(batchNo), logger.Err(err))
		return nil, appErrors.ErrSettlementFailed.WithError(err)
	}

	if result.SettledCount > 0 {
		s.metrics.RecordSettlement(filter.Trigger, result.SettledCount, result.SettledAmount.InexactFloat64())
		logger.Info("结算完成",
			logger.Module("settlement"),
			logger.BatchNo(batchNo),
			logger.String("trigger", filter.Trigger),
			logger.Int("records", result.SettledCount),
			logger.Int("beneficiaries", result.BeneficiaryCount),
			logger.Amount("amount", result.SettledAmount),
		)
	}
	return result, nil
}

type beneficiarySettlement struct {
	records []int64
	amount  decimal.Decimal
}

// settleBeneficiary 在保存点内结算单个受益人的记录并入账，入账失败时回滚到保存点
func (s *Service) settleBeneficiary(
	ctx context.Context,
	tx *gorm.DB,
	beneficiaryID int64,
	records []*models.OrderAllocation,
	batchNo string,
	now time.Time,
) (*beneficiarySettlement, error) {
	settled := &beneficiarySettlement{amount: decimal.Zero}
	err := tx.Transaction(func(btx *gorm.DB) error {
		for _, r := range records {
			commission := Commission(r.PayAmount, r.InviteIncomeRatio)
			ok, err := s.allocationRepo.MarkSettled(ctx, btx, r.ID, commission, batchNo, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			settled.records = append(settled.records, r.ID)
			settled.amount = settled.amount.Add(commission)
		}
		if len(settled.records) == 0 || settled.amount.IsZero() {
			return nil
		}
		return s.userRepo.CreditIncome(ctx, btx, beneficiaryID, settled.amount)
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// explainMissing 为显式指定但未被本批结算的记录给出原因
func (s *Service) explainMissing(ctx context.Context, tx *gorm.DB, ids []int64, settled map[int64]struct{}) ([]Failure, error) {
	missing := make([]int64, 0)
	for _, id := range ids {
		if _, ok := settled[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	found, err := s.allocationRepo.GetByIDs(ctx, tx, missing)
	if err != nil {
		return nil, err
	}
	existing := make(map[int64]*models.OrderAllocation, len(found))
	for _, r := range found {
		existing[r.ID] = r
	}

	failures := make([]Failure, 0, len(missing))
	for _, id := range missing {
		appErr := appErrors.ErrAllocationNotFound
		if r, ok := existing[id]; ok && r.IsSettled() {
			appErr = appErrors.ErrAllocationSettled
		} else if ok {
			// 被并发批次锁住，本批跳过
			appErr = appErrors.ErrConcurrentTask
		}
		failures = append(failures, Failure{RecordID: id, Code: appErr.Code, Reason: appErr.Message})
	}
	return failures, nil
}

// PreviewFilter 待结算记录查询条件
type PreviewFilter struct {
	BeneficiaryID *int64
	Nickname      string
	OrderNo       string
	CreatedAt     *utils.DateRange
}

// PreviewItem 待结算记录及预计佣金
type PreviewItem struct {
	*models.OrderAllocation
	ExpectedCommission decimal.Decimal `json:"expected_commission"`
}

// Preview 分页查看待结算记录
func (s *Service) Preview(ctx context.Context, filter *PreviewFilter, p utils.Pagination) ([]*PreviewItem, int64, error) {
	p.Normalize()
	unsettled := int8(models.SettlementStatusUnsettled)
	repoFilter := &repository.AllocationFilter{SettlementStatus: &unsettled}
	if filter != nil {
		repoFilter.ParentUserID = filter.BeneficiaryID
		repoFilter.Nickname = filter.Nickname
		repoFilter.OrderNo = filter.OrderNo
		repoFilter.CreatedAt = filter.CreatedAt
	}

	records, total, err := s.allocationRepo.List(ctx, repoFilter, p.GetOffset(), p.PageSize)
	if err != nil {
		return nil, 0, appErrors.ErrDatabaseError.WithError(err)
	}
	items := make([]*PreviewItem, 0, len(records))
	for _, r := range records {
		items = append(items, &PreviewItem{
			OrderAllocation:    r,
			ExpectedCommission: Commission(r.PayAmount, r.InviteIncomeRatio),
		})
	}
	return items, total, nil
}

// Stats 结算统计
type Stats struct {
	UnsettledCount  int64           `json:"unsettled_count"`
	UnsettledAmount decimal.Decimal `json:"unsettled_amount"`
	SettledCount    int64           `json:"settled_count"`
	SettledAmount   decimal.Decimal `json:"settled_amount"`
}

// Stats 统计已结算与待结算的数量和金额
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.statsFor(ctx, nil)
}

// StatsForBeneficiary 单个受益人的结算统计
func (s *Service) StatsForBeneficiary(ctx context.Context, userID int64) (*Stats, error) {
	return s.statsFor(ctx, &repository.AllocationFilter{ParentUserID: &userID})
}

func (s *Service) statsFor(ctx context.Context, filter *repository.AllocationFilter) (*Stats, error) {
	settled, err := s.allocationRepo.SumSettled(ctx, filter)
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}

	stats := &Stats{
		SettledCount:    settled.Count,
		SettledAmount:   settled.Amount,
		UnsettledAmount: decimal.Zero,
	}
	pending, err := s.allocationRepo.CountUnsettled(ctx, filter)
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	if pending == 0 {
		return stats, nil
	}
	err = s.allocationRepo.EachUnsettledBasis(ctx, filter, s.cfg.BatchSize, func(batch []repository.CommissionBasis) error {
		for _, b := range batch {
			stats.UnsettledCount++
			stats.UnsettledAmount = stats.UnsettledAmount.Add(Commission(b.PayAmount, b.InviteIncomeRatio))
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	return stats, nil
}

// ListBatches 结算批次日志
func (s *Service) ListBatches(ctx context.Context, p utils.Pagination) ([]*models.SettlementBatch, int64, error) {
	p.Normalize()
	batches, total, err := s.settlementRepo.List(ctx, p.GetOffset(), p.PageSize)
	if err != nil {
		return nil, 0, appErrors.ErrDatabaseError.WithError(err)
	}
	return batches, total, nil
}
