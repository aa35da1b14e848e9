// Package referral 推荐关系服务，负责注册挂靠与关系图维护
package referral

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/common/cache"
	"github.com/dumeirei/referral-ledger/internal/common/config"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/common/metrics"
	"github.com/dumeirei/referral-ledger/internal/common/tracing"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

const (
	inviteCodeLockKey  = cache.KeyPrefixLock + "referral:invite_code"
	inviteCodeLockTTL  = 5 * time.Second
	inviteCodeLockWait = 3 * time.Second
)

// Service 推荐关系服务
type Service struct {
	userRepo *repository.UserRepository
	db       *gorm.DB
	locker   *cache.Locker
	metrics  *metrics.Metrics
	cfg      config.ReferralConfig
}

// NewService 创建推荐关系服务，locker 为 nil 时仅依赖唯一索引串行化邀请码
func NewService(
	userRepo *repository.UserRepository,
	db *gorm.DB,
	locker *cache.Locker,
	m *metrics.Metrics,
	cfg config.ReferralConfig,
) *Service {
	if cfg.InviteCodeStart <= 0 {
		cfg.InviteCodeStart = 100000
	}
	if cfg.InviteCodeRetries <= 0 {
		cfg.InviteCodeRetries = 3
	}
	return &Service{
		userRepo: userRepo,
		db:       db,
		locker:   locker,
		metrics:  m,
		cfg:      cfg,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	InviteCode string  `json:"invite_code"`
	OpenID     string  `json:"openid"`
	Phone      *string `json:"phone"`
	Nickname   string  `json:"nickname"`
	Avatar     *string `json:"avatar"`
}

// Register 注册用户并挂靠到邀请人名下
//
// 已存在的外部身份直接返回原用户。邀请码无效时以根节点注册。
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (user *models.User, err error) {
	ctx, span := tracing.Start(ctx, "referral.Register", tracing.WithOperation("register"))
	defer func() { tracing.End(span, err) }()

	if req.OpenID != "" {
		existing, lookupErr := s.userRepo.GetByOpenID(ctx, req.OpenID)
		if lookupErr == nil {
			return existing, nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrDatabaseError.WithError(lookupErr)
		}
	}

	inviter := s.resolveInviter(ctx, req.InviteCode)
	if inviter != nil && s.cfg.MaxDepth > 0 && len(inviter.ParentPath)+1 > s.cfg.MaxDepth {
		return nil, appErrors.ErrReferralTooDeep
	}

	lock, lockErr := s.locker.Lock(ctx, inviteCodeLockKey, inviteCodeLockTTL, inviteCodeLockWait)
	if lockErr != nil {
		// 唯一索引仍然兜底，拿不到锁只会增加重试概率
		logger.Warn("邀请码锁获取失败", logger.Module("referral"), logger.Err(lockErr))
	} else {
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	for attempt := 0; attempt <= s.cfg.InviteCodeRetries; attempt++ {
		user, err = s.createNode(ctx, req, inviter)
		if err == nil {
			s.metrics.RecordRegistration(inviter != nil)
			logger.Info("用户注册",
				logger.Module("referral"),
				logger.UserID(user.ID),
				logger.String("invite_code", user.InviteCode),
				logger.Int("level", user.Level),
			)
			return user, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, appErrors.ErrDatabaseError.WithError(err)
		}
		// 并发注册同一外部身份时返回先写入的那条
		if req.OpenID != "" {
			if existing, lookupErr := s.userRepo.GetByOpenID(ctx, req.OpenID); lookupErr == nil {
				return existing, nil
			}
		}
		logger.Warn("邀请码冲突，重试", logger.Module("referral"), logger.Int("attempt", attempt+1))
	}
	return nil, appErrors.ErrInviteCodeConflict
}

// resolveInviter 查找邀请人，任何失败都退化为根节点注册
func (s *Service) resolveInviter(ctx context.Context, inviteCode string) *models.User {
	if inviteCode == "" {
		return nil
	}
	inviter, err := s.userRepo.GetByInviteCode(ctx, inviteCode)
	if err != nil {
		logger.Warn("邀请人查找失败，按根节点注册",
			logger.Module("referral"),
			logger.String("invite_code", inviteCode),
			logger.Err(err),
		)
		return nil
	}
	return inviter
}

func (s *Service) createNode(ctx context.Context, req *RegisterRequest, inviter *models.User) (*models.User, error) {
	user := &models.User{
		Phone:      req.Phone,
		Nickname:   req.Nickname,
		Avatar:     req.Avatar,
		ParentPath: models.AncestorPath{},
		Status:     models.UserStatusActive,
	}
	if req.OpenID != "" {
		openID := req.OpenID
		user.OpenID = &openID
	}
	if inviter != nil {
		user.ParentID = &inviter.ID
		user.ParentPath = inviter.ChildPath()
	}
	user.Level = len(user.ParentPath)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		maxCode, err := s.userRepo.MaxInviteCode(ctx, tx)
		if err != nil {
			return err
		}
		code := maxCode + 1
		if code < s.cfg.InviteCodeStart {
			code = s.cfg.InviteCodeStart
		}
		user.InviteCode = strconv.FormatInt(code, 10)

		if err := s.userRepo.Create(ctx, tx, user); err != nil {
			return err
		}
		if inviter == nil {
			return nil
		}
		if err := s.userRepo.IncrDirectCount(ctx, tx, inviter.ID, 1); err != nil {
			return err
		}
		return s.userRepo.IncrTeamCount(ctx, tx, user.Ancestors(), 1)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser 获取用户
func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return user, nil
}

// GetByInviteCode 根据邀请码获取用户
func (s *Service) GetByInviteCode(ctx context.Context, inviteCode string) (*models.User, error) {
	if inviteCode == "" {
		return nil, appErrors.ErrInvalidParams.WithMessage("邀请码不能为空")
	}
	user, err := s.userRepo.GetByInviteCode(ctx, inviteCode)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return user, nil
}

// ListDirect 直推下级
func (s *Service) ListDirect(ctx context.Context, userID int64, p utils.Pagination) ([]*models.User, int64, error) {
	p.Normalize()
	users, total, err := s.userRepo.ListDirect(ctx, userID, p.GetOffset(), p.PageSize)
	if err != nil {
		return nil, 0, appErrors.ErrDatabaseError.WithError(err)
	}
	return users, total, nil
}

// ListTeam 全部下级
func (s *Service) ListTeam(ctx context.Context, userID int64, p utils.Pagination) ([]*models.User, int64, error) {
	p.Normalize()
	users, total, err := s.userRepo.ListTeam(ctx, userID, p.GetOffset(), p.PageSize)
	if err != nil {
		return nil, 0, appErrors.ErrDatabaseError.WithError(err)
	}
	return users, total, nil
}

// UpdateStatus 冻结、注销或恢复用户
func (s *Service) UpdateStatus(ctx context.Context, userID int64, status int8) error {
	switch status {
	case models.UserStatusActive, models.UserStatusFrozen, models.UserStatusClosed:
	default:
		return appErrors.ErrUserStatusInvalid
	}
	if err := s.userRepo.UpdateStatus(ctx, userID, status); err != nil {
		return notFoundOr(err)
	}
	logger.Info("用户状态变更", logger.Module("referral"), logger.UserID(userID), logger.Int("status", int(status)))
	return nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return appErrors.ErrUserNotFound
	}
	return appErrors.ErrDatabaseError.WithError(err)
}
