// Package auth 用户与管理员的登录和令牌签发
package auth

import (
	"context"
	"errors"

	"gorm.io/gorm"

	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/jwt"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
	"github.com/dumeirei/referral-ledger/internal/service/referral"
)

// Service 用户认证服务
type Service struct {
	referralService *referral.Service
	userRepo        *repository.UserRepository
	jwtManager      *jwt.Manager
}

// NewService 创建用户认证服务
func NewService(referralService *referral.Service, userRepo *repository.UserRepository, jwtManager *jwt.Manager) *Service {
	return &Service{
		referralService: referralService,
		userRepo:        userRepo,
		jwtManager:      jwtManager,
	}
}

// LoginResponse 登录响应
type LoginResponse struct {
	User      *UserInfo      `json:"user"`
	TokenPair *jwt.TokenPair `json:"token"`
}

// UserInfo 用户信息
type UserInfo struct {
	ID         int64   `json:"id"`
	Nickname   string  `json:"nickname"`
	Avatar     *string `json:"avatar,omitempty"`
	InviteCode string  `json:"invite_code"`
	Level      int     `json:"level"`
	ParentID   *int64  `json:"parent_id,omitempty"`
}

// Register 注册（或以已有身份登录）并签发令牌
func (s *Service) Register(ctx context.Context, req *referral.RegisterRequest) (*LoginResponse, error) {
	user, err := s.referralService.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login 以 OpenID 登录已注册用户
func (s *Service) Login(ctx context.Context, openID string) (*LoginResponse, error) {
	if openID == "" {
		return nil, appErrors.ErrInvalidParams
	}
	user, err := s.userRepo.GetByOpenID(ctx, openID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	return s.issue(user)
}

// RefreshToken 刷新令牌
func (s *Service) RefreshToken(refreshToken string) (*jwt.TokenPair, error) {
	pair, err := s.jwtManager.RefreshToken(refreshToken)
	if err != nil {
		return nil, appErrors.ErrTokenInvalid.WithError(err)
	}
	return pair, nil
}

func (s *Service) issue(user *models.User) (*LoginResponse, error) {
	switch user.Status {
	case models.UserStatusFrozen:
		return nil, appErrors.ErrUserFrozen
	case models.UserStatusClosed:
		return nil, appErrors.ErrUserClosed
	}
	pair, err := s.jwtManager.GenerateTokenPair(jwt.Subject{
		ID:   user.ID,
		Type: jwt.UserTypeUser,
		Name: user.Nickname,
	})
	if err != nil {
		return nil, appErrors.ErrInternalError.WithError(err)
	}
	return &LoginResponse{
		User: &UserInfo{
			ID:         user.ID,
			Nickname:   user.Nickname,
			Avatar:     user.Avatar,
			InviteCode: user.InviteCode,
			Level:      user.Level,
			ParentID:   user.ParentID,
		},
		TokenPair: pair,
	}, nil
}
