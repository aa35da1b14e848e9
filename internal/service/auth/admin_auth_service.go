package auth

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/common/crypto"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/jwt"
	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

// AdminService 管理员认证服务
type AdminService struct {
	adminRepo  *repository.AdminRepository
	jwtManager *jwt.Manager
}

// NewAdminService 创建管理员认证服务
func NewAdminService(adminRepo *repository.AdminRepository, jwtManager *jwt.Manager) *AdminService {
	return &AdminService{
		adminRepo:  adminRepo,
		jwtManager: jwtManager,
	}
}

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminInfo 管理员信息（不含敏感字段）
type AdminInfo struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Name     string      `json:"name"`
	Region   *jwt.Region `json:"region"`
}

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Admin     *AdminInfo     `json:"admin"`
	TokenPair *jwt.TokenPair `json:"token"`
}

// Login 管理员登录，令牌携带管辖区域
func (s *AdminService) Login(ctx context.Context, req *AdminLoginRequest) (*AdminLoginResponse, error) {
	admin, err := s.adminRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrPasswordError
		}
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	if admin.Status != models.AdminStatusActive {
		return nil, appErrors.ErrAccountDisabled
	}
	if !crypto.VerifyPassword(req.Password, admin.PasswordHash) {
		return nil, appErrors.ErrPasswordError
	}

	info := toAdminInfo(admin)
	pair, err := s.jwtManager.GenerateTokenPair(jwt.Subject{
		ID:     admin.ID,
		Type:   jwt.UserTypeAdmin,
		Name:   admin.Name,
		Region: info.Region,
	})
	if err != nil {
		return nil, appErrors.ErrInternalError.WithError(err)
	}

	if err := s.adminRepo.UpdateLastLogin(ctx, admin.ID); err != nil {
		logger.Warn("更新管理员登录时间失败", logger.Module("auth"), logger.AdminID(admin.ID), logger.Err(err))
	}
	return &AdminLoginResponse{Admin: info, TokenPair: pair}, nil
}

// CreateAdminRequest 创建管理员
type CreateAdminRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required,min=6"`
	Name       string `json:"name" binding:"required"`
	RegionType int8   `json:"region_type" binding:"min=0,max=3"`
	Province   string `json:"province"`
	City       string `json:"city"`
	District   string `json:"district"`
}

// CreateAdmin 创建管理员账号
func (s *AdminService) CreateAdmin(ctx context.Context, req *CreateAdminRequest) (*AdminInfo, error) {
	exists, err := s.adminRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	if exists {
		return nil, appErrors.ErrAlreadyExists.WithMessage("用户名已存在")
	}
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, appErrors.ErrInternalError.WithError(err)
	}

	admin := &models.Admin{
		Username:     req.Username,
		PasswordHash: hash,
		Name:         req.Name,
		RegionType:   req.RegionType,
		Province:     req.Province,
		City:         req.City,
		District:     req.District,
		Status:       models.AdminStatusActive,
	}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	return toAdminInfo(admin), nil
}

// RefreshToken 刷新令牌
func (s *AdminService) RefreshToken(refreshToken string) (*jwt.TokenPair, error) {
	pair, err := s.jwtManager.RefreshToken(refreshToken)
	if err != nil {
		return nil, appErrors.ErrTokenInvalid.WithError(err)
	}
	return pair, nil
}

// AdminFromClaims 由令牌还原管理员的区域信息
func AdminFromClaims(claims *jwt.Claims) *models.Admin {
	if claims == nil || !claims.IsAdmin() {
		return nil
	}
	admin := &models.Admin{ID: claims.UserID, Name: claims.Name, Status: models.AdminStatusActive}
	if claims.Region != nil {
		admin.RegionType = claims.Region.Type
		admin.Province = claims.Region.Province
		admin.City = claims.Region.City
		admin.District = claims.Region.District
	}
	return admin
}

func toAdminInfo(admin *models.Admin) *AdminInfo {
	return &AdminInfo{
		ID:       admin.ID,
		Username: admin.Username,
		Name:     admin.Name,
		Region: &jwt.Region{
			Type:     admin.RegionType,
			Province: admin.Province,
			City:     admin.City,
			District: admin.District,
		},
	}
}
