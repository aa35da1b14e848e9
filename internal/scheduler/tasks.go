package scheduler

import (
	"context"
	"time"

	"github.com/dumeirei/referral-ledger/internal/common/cache"
	"github.com/dumeirei/referral-ledger/internal/common/config"
	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/service/allocation"
	"github.com/dumeirei/referral-ledger/internal/service/reporting"
	"github.com/dumeirei/referral-ledger/internal/service/settlement"
)

// 任务名
const (
	TaskSettlement             = "settlement_sweep"
	TaskAllocationCompensation = "allocation_compensation"
)

const (
	settlementLockKey = cache.KeyPrefixLock + "settlement:scheduler"
	compensationLimit = 100

	// 单次定时结算最多连续处理的批次数
	maxSweepBatches = 20
)

// TaskHandler 任务处理器
type TaskHandler struct {
	settlementService *settlement.Service
	allocator         *allocation.Allocator
	reportingService  *reporting.Service
	locker            *cache.Locker
	cfg               config.SettlementConfig
}

// NewTaskHandler 创建任务处理器，reportingService 与 locker 可为 nil
func NewTaskHandler(
	settlementSvc *settlement.Service,
	allocator *allocation.Allocator,
	reportingSvc *reporting.Service,
	locker *cache.Locker,
	cfg config.SettlementConfig,
) *TaskHandler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.LockTTLSeconds <= 0 {
		cfg.LockTTLSeconds = 300
	}
	return &TaskHandler{
		settlementService: settlementSvc,
		allocator:         allocator,
		reportingService:  reportingSvc,
		locker:            locker,
		cfg:               cfg,
	}
}

// SettleUnsettled 定时结算，多实例部署时只有持锁的实例执行
func (h *TaskHandler) SettleUnsettled(ctx context.Context) error {
	lock, ok, err := h.locker.TryLock(ctx, settlementLockKey, h.cfg.LockTTL())
	if err != nil {
		return err
	}
	if !ok {
		logger.Debug("结算任务已在其他实例执行", logger.Module("scheduler"))
		return nil
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("释放结算锁失败", logger.Module("scheduler"), logger.Err(err))
		}
	}()

	total := 0
	for i := 0; i < maxSweepBatches; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := h.settlementService.Settle(ctx, &settlement.Filter{Trigger: models.SettlementTriggerScheduler})
		if err != nil {
			return err
		}
		total += result.SettledCount
		if result.SettledCount < h.cfg.BatchSize {
			break
		}
	}

	if total > 0 && h.reportingService != nil {
		h.reportingService.Invalidate(ctx)
	}
	return nil
}

// CompensateAllocations 补做确认收货时失败的分账
func (h *TaskHandler) CompensateAllocations(ctx context.Context) error {
	processed, err := h.allocator.AllocatePending(ctx, compensationLimit)
	if err != nil {
		return err
	}
	if processed > 0 {
		logger.Info("补分账完成", logger.Module("scheduler"), logger.Int("orders", processed))
		if h.reportingService != nil {
			h.reportingService.Invalidate(ctx)
		}
	}
	return nil
}

// Register 注册定时任务，自动结算关闭时只注册补分账
func (h *TaskHandler) Register(s *Scheduler, compensationInterval time.Duration) {
	if h.cfg.AutoEnabled {
		s.AddTask(TaskSettlement, h.cfg.Interval(), h.SettleUnsettled)
	}
	s.AddTask(TaskAllocationCompensation, compensationInterval, h.CompensateAllocations)
}
