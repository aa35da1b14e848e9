// Package allocation 订单完成分账服务
package allocation

import (
	"context"
	"errors"
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

// Allocator 订单完成后计算消费、业绩并生成分账记录
type Allocator struct {
	orderRepo      *repository.OrderRepository
	userRepo       *repository.UserRepository
	allocationRepo *repository.AllocationRepository
	db             *gorm.DB
	metrics        *metrics.Metrics
	cfg            config.DistributionConfig
}

// NewAllocator 创建分账器
func NewAllocator(
	orderRepo *repository.OrderRepository,
	userRepo *repository.UserRepository,
	allocationRepo *repository.AllocationRepository,
	db *gorm.DB,
	m *metrics.Metrics,
	cfg config.DistributionConfig,
) *Allocator {
	if cfg.PointsUnitCents <= 0 {
		cfg.PointsUnitCents = 100
	}
	if cfg.MaxAllocationAttempts <= 0 {
		cfg.MaxAllocationAttempts = 5
	}
	return &Allocator{
		orderRepo:      orderRepo,
		userRepo:       userRepo,
		allocationRepo: allocationRepo,
		db:             db,
		metrics:        m,
		cfg:            cfg,
	}
}

// Result 单个订单的分账结果
type Result struct {
	OrderID     int64                     `json:"order_id"`
	Skipped     bool                      `json:"skipped"` // 订单此前已分账
	Consumption decimal.Decimal           `json:"consumption"`
	Points      int64                     `json:"points"`
	Performance decimal.Decimal           `json:"performance"`
	Records     []*models.OrderAllocation `json:"records"`
}

// OnOrderCompleted 订单确认收货后触发
func (a *Allocator) OnOrderCompleted(ctx context.Context, order *models.Order) (err error) {
	ctx, span := tracing.Start(ctx, "allocation.OnOrderCompleted",
		tracing.WithOrderID(order.ID), tracing.WithUserID(order.UserID))
	defer func() { tracing.End(span, err) }()

	_, err = a.Allocate(ctx, order.ID)
	return err
}

// OnOrderCancelled 取消的订单不参与分账
func (a *Allocator) OnOrderCancelled(ctx context.Context, order *models.Order) error {
	return nil
}

// Reallocate 运维补偿入口，对已完成但分账失败的订单重新执行
func (a *Allocator) Reallocate(ctx context.Context, orderID int64) (*Result, error) {
	order, err := a.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrOrderNotFound
		}
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	if order.Status != models.OrderStatusCompleted {
		return nil, appErrors.ErrOrderNotCompleted
	}
	logger.Info("重新分账", logger.Module("allocation"), logger.OrderID(orderID), logger.OrderNo(order.OrderNo))
	return a.Allocate(ctx, orderID)
}

// OrderAllocations 订单的全部分账记录
func (a *Allocator) OrderAllocations(ctx context.Context, orderID int64) ([]*models.OrderAllocation, error) {
	if _, err := a.orderRepo.GetByID(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrOrderNotFound
		}
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	records, err := a.allocationRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	return records, nil
}

// AllocatePending 补偿扫描，处理已完成但尚未分账的订单
//
// 失败的订单记录一次尝试后排到队尾，不会挡住后面的订单。
func (a *Allocator) AllocatePending(ctx context.Context, limit int) (int, error) {
	orders, err := a.orderRepo.ListUnallocatedCompleted(ctx, a.cfg.MaxAllocationAttempts, limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if _, err := a.Allocate(ctx, order.ID); err != nil {
			logger.Warn("补分账失败",
				logger.Module("allocation"),
				logger.OrderID(order.ID),
				logger.OrderNo(order.OrderNo),
				logger.Int("attempts", order.AllocationTries+1),
				logger.Err(err),
			)
			continue
		}
		processed++
	}
	return processed, nil
}

// Allocate 在一个事务内完成订单分账，同一订单只会生效一次
func (a *Allocator) Allocate(ctx context.Context, orderID int64) (*Result, error) {
	result := &Result{OrderID: orderID}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := a.orderRepo.ClaimAllocation(ctx, tx, orderID, time.Now())
		if err != nil {
			return err
		}
		order, err := a.orderRepo.GetByIDWithItems(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErrors.ErrOrderNotFound
			}
			return err
		}
		if !claimed {
			if order.Status != models.OrderStatusCompleted {
				return appErrors.ErrOrderNotCompleted
			}
			result.Skipped = true
			return nil
		}
		return a.apply(ctx, tx, order, result)
	})
	if err != nil {
		a.metrics.RecordAllocation(metrics.AllocationFailed)
		logger.Error("订单分账失败",
			logger.Module("allocation"),
			logger.OrderID(orderID),
			logger.Err(err),
		)
		if recordErr := a.orderRepo.RecordAllocationFailure(context.WithoutCancel(ctx), orderID, err.Error()); recordErr != nil {
			logger.Warn("记录分账失败次数出错", logger.Module("allocation"), logger.OrderID(orderID), logger.Err(recordErr))
		}
		if appErrors.IsAppError(err) {
			return nil, err
		}
		return nil, appErrors.ErrAllocationFailed.WithError(err)
	}

	if result.Skipped {
		a.metrics.RecordAllocation(metrics.AllocationSkipped)
		logger.Debug("订单已分账，跳过", logger.Module("allocation"), logger.OrderID(orderID))
		return result, nil
	}

	a.metrics.RecordAllocation(metrics.AllocationCreated)
	logger.Info("订单分账完成",
		logger.Module("allocation"),
		logger.OrderID(orderID),
		logger.Int("records", len(result.Records)),
		logger.Amount("performance", result.Performance),
	)
	return result, nil
}

func (a *Allocator) apply(ctx context.Context, tx *gorm.DB, order *models.Order, result *Result) error {
	payer, err := a.userRepo.GetByIDTx(ctx, tx, order.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.ErrUserNotFound
		}
		return err
	}

	result.Consumption = utils.CentsToYuan(order.PayAmount, utils.MoneyPlaces)
	result.Points = utils.FloorUnits(order.PayAmount, a.cfg.PointsUnitCents)
	if err := a.userRepo.AddConsumption(ctx, tx, payer.ID, result.Consumption, result.Points); err != nil {
		return err
	}

	if payer.ParentID == nil {
		result.Performance = decimal.Zero
		return nil
	}
	parentID := *payer.ParentID

	result.Performance = a.performance(order)
	if result.Performance.IsPositive() {
		if err := a.userRepo.AddDirectPerformance(ctx, tx, parentID, result.Performance); err != nil {
			return err
		}
		if err := a.userRepo.AddTeamPerformance(ctx, tx, payer.Ancestors(), result.Performance); err != nil {
			return err
		}
	}

	result.Records = buildRecords(order, parentID)
	return a.allocationRepo.CreateBatch(ctx, tx, result.Records)
}

// performance 订单贡献的业绩
//
// 订单内商品均未配置推广收益比例时，按开关决定是否以整单实付计入。
func (a *Allocator) performance(order *models.Order) decimal.Decimal {
	total := decimal.Zero
	ratioSum := decimal.Zero
	for _, item := range order.Items {
		ratioSum = ratioSum.Add(item.InviteIncomeRatio)
		pay := utils.CentsToYuan(item.PayAmount, utils.MoneyPlaces)
		total = total.Add(pay.Mul(item.InviteIncomeRatio))
	}
	if ratioSum.IsZero() {
		if a.cfg.FallbackWholeOrderPerformance {
			return utils.CentsToYuan(order.PayAmount, utils.MoneyPlaces)
		}
		return decimal.Zero
	}
	return utils.RoundMoney(total)
}

func buildRecords(order *models.Order, parentID int64) []*models.OrderAllocation {
	records := make([]*models.OrderAllocation, 0, len(order.Items))
	for _, item := range order.Items {
		pay := utils.CentsToYuan(item.PayAmount, utils.MoneyPlaces)
		records = append(records, &models.OrderAllocation{
			OrderID:           order.ID,
			OrderNo:           order.OrderNo,
			OrderItemID:       item.ID,
			UserID:            order.UserID,
			ParentUserID:      parentID,
			ProductID:         item.ProductID,
			GoodsName:         item.GoodsName,
			Quantity:          item.Quantity,
			PayAmount:         item.PayAmount,
			ProvinceRatio:     item.ProvinceRatio,
			CityRatio:         item.CityRatio,
			DistrictRatio:     item.DistrictRatio,
			ProvinceAmount:    utils.MulRatio(pay, item.ProvinceRatio),
			CityAmount:        utils.MulRatio(pay, item.CityRatio),
			DistrictAmount:    utils.MulRatio(pay, item.DistrictRatio),
			InviteIncomeRatio: item.InviteIncomeRatio,
			ReceiverProvince:  order.ReceiverProvince,
			ReceiverCity:      order.ReceiverCity,
			ReceiverDistrict:  order.ReceiverDistrict,
			SettlementStatus:  models.SettlementStatusUnsettled,
		})
	}
	return records
}
