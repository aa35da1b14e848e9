// Package audit 提供管理员操作日志查询
package audit

import (
	"context"

	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

// Service 操作日志服务
type Service struct {
	repo *repository.OperationLogRepository
}

// NewService 创建操作日志服务
func NewService(repo *repository.OperationLogRepository) *Service {
	return &Service{repo: repo}
}

// List 分页查询操作日志
func (s *Service) List(ctx context.Context, filter *repository.OperationLogFilter, p utils.Pagination) ([]*models.OperationLog, int64, error) {
	logs, total, err := s.repo.List(ctx, filter, p.GetOffset(), p.PageSize)
	if err != nil {
		return nil, 0, appErrors.ErrDatabaseError.WithError(err)
	}
	return logs, total, nil
}
