// Package reporting 区域分账报表
package reporting

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dumeirei/referral-ledger/internal/common/cache"
	"github.com/dumeirei/referral-ledger/internal/common/config"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/common/metrics"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

const cacheName = "region_summary"

// 分组维度
const (
	GroupByProvince = "province"
	GroupByCity     = "city"
	GroupByDistrict = "district"
)

// Service 区域报表服务
type Service struct {
	allocationRepo *repository.AllocationRepository
	store          *cache.Store
	metrics        *metrics.Metrics
	ttl            time.Duration
}

// NewService 创建报表服务，store 可为 nil
func NewService(allocationRepo *repository.AllocationRepository, store *cache.Store, m *metrics.Metrics, cfg config.ReportingConfig) *Service {
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = 60
	}
	return &Service{
		allocationRepo: allocationRepo,
		store:          store,
		metrics:        m,
		ttl:            cfg.CacheTTL(),
	}
}

// RegionFilter 区域条件，空字段表示不限
type RegionFilter struct {
	Province string `json:"province" form:"province"`
	City     string `json:"city" form:"city"`
	District string `json:"district" form:"district"`
}

// ResolveScope 按管理员的管辖级别收窄查询区域
//
// 管理员所在级别及以上的区域字段以管理员为准，以下级别沿用请求值。
func ResolveScope(admin *models.Admin, requested RegionFilter) (RegionFilter, error) {
	if admin == nil {
		return RegionFilter{}, appErrors.ErrUnauthorized
	}
	scope := requested
	switch admin.RegionType {
	case models.RegionTypeAll:
		return scope, nil
	case models.RegionTypeProvince:
		if admin.Province == "" {
			return RegionFilter{}, appErrors.ErrRegionNotAssigned
		}
		scope.Province = admin.Province
	case models.RegionTypeCity:
		if admin.Province == "" || admin.City == "" {
			return RegionFilter{}, appErrors.ErrRegionNotAssigned
		}
		scope.Province = admin.Province
		scope.City = admin.City
	case models.RegionTypeDistrict:
		if admin.Province == "" || admin.City == "" || admin.District == "" {
			return RegionFilter{}, appErrors.ErrRegionNotAssigned
		}
		scope.Province = admin.Province
		scope.City = admin.City
		scope.District = admin.District
	default:
		return RegionFilter{}, appErrors.ErrPermissionDenied
	}
	return scope, nil
}

// RegionQuery 报表查询条件
type RegionQuery struct {
	Filter           RegionFilter
	GroupBy          string
	StartDate        *time.Time
	EndDate          *time.Time
	SettlementStatus *int8
}

func (q *RegionQuery) toRepo(scope RegionFilter) *repository.AllocationFilter {
	filter := &repository.AllocationFilter{
		Province:         scope.Province,
		City:             scope.City,
		District:         scope.District,
		SettlementStatus: q.SettlementStatus,
	}
	if q.StartDate != nil || q.EndDate != nil {
		filter.CreatedAt = &utils.DateRange{Start: q.StartDate, End: q.EndDate}
	}
	return filter
}

// cacheKey 以收窄后的区域和其他条件区分缓存
func (q *RegionQuery) cacheKey(scope RegionFilter) string {
	parts := []string{q.GroupBy, scope.Province, scope.City, scope.District, timeKey(q.StartDate), timeKey(q.EndDate), "-"}
	if q.SettlementStatus != nil {
		parts[6] = strconv.Itoa(int(*q.SettlementStatus))
	}
	return cache.BuildKey(cache.KeyPrefixReport, parts...)
}

func timeKey(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

// Summary 区域汇总结果
type Summary struct {
	GroupBy          string                        `json:"group_by"`
	Scope            RegionFilter                  `json:"scope"`
	Rows             []*repository.RegionAggregate `json:"rows"`
	Totals           *repository.RegionAggregate   `json:"totals"`
	BeneficiaryCount int64                         `json:"beneficiary_count"`
	GeneratedAt      time.Time                     `json:"generated_at"`
}

// Summary 按区域分组汇总分账金额
func (s *Service) Summary(ctx context.Context, admin *models.Admin, q *RegionQuery) (*Summary, error) {
	if q.GroupBy == "" {
		q.GroupBy = GroupByProvince
	}
	column, ok := repository.RegionColumns[q.GroupBy]
	if !ok {
		return nil, appErrors.ErrInvalidParams.WithMessage("不支持的分组维度")
	}
	scope, err := ResolveScope(admin, q.Filter)
	if err != nil {
		return nil, err
	}

	key := q.cacheKey(scope)
	var cached Summary
	if err := s.store.Get(ctx, key, &cached); err == nil {
		s.metrics.RecordCacheHit(cacheName)
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn("读取报表缓存失败", logger.Module("reporting"), logger.Err(err))
	}
	s.metrics.RecordCacheMiss(cacheName)

	filter := q.toRepo(scope)
	summary := &Summary{GroupBy: q.GroupBy, Scope: scope, GeneratedAt: time.Now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.allocationRepo.SummarizeByRegion(gctx, filter, column)
		summary.Rows = rows
		return err
	})
	g.Go(func() error {
		totals, err := s.allocationRepo.SummarizeTotals(gctx, filter)
		summary.Totals = totals
		return err
	})
	g.Go(func() error {
		count, err := s.allocationRepo.CountDistinctBeneficiaries(gctx, filter)
		summary.BeneficiaryCount = count
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}

	if err := s.store.Set(ctx, key, summary, s.ttl); err != nil {
		logger.Warn("写入报表缓存失败", logger.Module("reporting"), logger.Err(err))
	}
	return summary, nil
}

// ListRecords 分页查询管辖区域内的分账记录
func (s *Service) ListRecords(ctx context.Context, admin *models.Admin, q *RegionQuery, p utils.Pagination) ([]*models.OrderAllocation, int64, error) {
	scope, err := ResolveScope(admin, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	p.Normalize()
	records, total, err := s.allocationRepo.List(ctx, q.toRepo(scope), p.GetOffset(), p.PageSize)
	if err != nil {
		return nil, 0, appErrors.ErrDatabaseError.WithError(err)
	}
	return records, total, nil
}

// Invalidate 清除报表缓存，结算或补分账之后调用
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.store.DeleteByPrefix(ctx, cache.KeyPrefixReport); err != nil {
		logger.Warn("清除报表缓存失败", logger.Module("reporting"), logger.Err(err))
	}
}
