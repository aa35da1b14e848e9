// Package admin 提供管理后台的 HTTP Handler
package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	"github.com/dumeirei/referral-ledger/internal/middleware"
	"github.com/dumeirei/referral-ledger/internal/models"
	authService "github.com/dumeirei/referral-ledger/internal/service/auth"
)

// AuthHandler 管理员认证处理器
type AuthHandler struct {
	adminAuthService *authService.AdminService
}

// NewAuthHandler 创建管理员认证处理器
func NewAuthHandler(adminAuthSvc *authService.AdminService) *AuthHandler {
	return &AuthHandler{
		adminAuthService: adminAuthSvc,
	}
}

// Login 管理员登录
// @Summary 管理员登录
// @Tags 管理员认证
// @Accept json
// @Produce json
// @Param request body authService.AdminLoginRequest true "请求参数"
// @Success 200 {object} response.Response{data=authService.AdminLoginResponse}
// @Router /api/admin/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req authService.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.adminAuthService.Login(c.Request.Context(), &req)
	handler.MustSucceed(c, err, result)
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken 刷新令牌
// @Summary 刷新令牌
// @Tags 管理员认证
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "请求参数"
// @Success 200 {object} response.Response{data=jwt.TokenPair}
// @Router /api/admin/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	pair, err := h.adminAuthService.RefreshToken(req.RefreshToken)
	handler.MustSucceed(c, err, pair)
}

// GetCurrentAdmin 当前管理员及管辖区域
// @Summary 当前管理员
// @Tags 管理员认证
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=models.Admin}
// @Router /api/admin/auth/me [get]
func (h *AuthHandler) GetCurrentAdmin(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}
	response.Success(c, admin)
}

// CreateAdmin 创建管理员账号
// @Summary 创建管理员
// @Tags 管理员认证
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body authService.CreateAdminRequest true "请求参数"
// @Success 200 {object} response.Response{data=authService.AdminInfo}
// @Router /api/admin/admins [post]
func (h *AuthHandler) CreateAdmin(c *gin.Context) {
	var req authService.CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.adminAuthService.CreateAdmin(c.Request.Context(), &req)
	handler.MustSucceed(c, err, result)
}

// RegisterRoutes 注册公开路由
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)
	}
}

// RegisterProtectedRoutes 注册需要认证的路由
func (h *AuthHandler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/auth/me", h.GetCurrentAdmin)
}

// RegisterUnrestrictedRoutes 注册仅限不限区域管理员的路由
func (h *AuthHandler) RegisterUnrestrictedRoutes(r *gin.RouterGroup) {
	r.POST("/admins", h.CreateAdmin)
}

// currentAdmin 由令牌还原当前管理员
func currentAdmin(c *gin.Context) (*models.Admin, bool) {
	admin := authService.AdminFromClaims(middleware.GetClaims(c))
	if admin == nil {
		response.Unauthorized(c, "请先登录")
		return nil, false
	}
	return admin, true
}
