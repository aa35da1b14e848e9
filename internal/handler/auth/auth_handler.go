// Package auth 提供认证相关的 HTTP Handler
package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	authService "github.com/dumeirei/referral-ledger/internal/service/auth"
	"github.com/dumeirei/referral-ledger/internal/service/referral"
)

// Handler 认证处理器
type Handler struct {
	authService *authService.Service
}

// NewHandler 创建认证处理器
func NewHandler(authSvc *authService.Service) *Handler {
	return &Handler{authService: authSvc}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	OpenID     string  `json:"openid" binding:"required"`
	InviteCode string  `json:"invite_code"`
	Phone      *string `json:"phone"`
	Nickname   string  `json:"nickname" binding:"max=50"`
	Avatar     *string `json:"avatar"`
}

// Register 注册并挂靠到邀请人
// @Summary 注册
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "请求参数"
// @Success 200 {object} response.Response{data=authService.LoginResponse}
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &referral.RegisterRequest{
		InviteCode: req.InviteCode,
		OpenID:     req.OpenID,
		Phone:      req.Phone,
		Nickname:   req.Nickname,
		Avatar:     req.Avatar,
	})
	handler.MustSucceed(c, err, result)
}

// LoginRequest 登录请求
type LoginRequest struct {
	OpenID string `json:"openid" binding:"required"`
}

// Login 以外部身份登录
// @Summary 登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body LoginRequest true "请求参数"
// @Success 200 {object} response.Response{data=authService.LoginResponse}
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.OpenID)
	handler.MustSucceed(c, err, result)
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken 刷新令牌
// @Summary 刷新令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "请求参数"
// @Success 200 {object} response.Response{data=jwt.TokenPair}
// @Router /api/v1/auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	pair, err := h.authService.RefreshToken(req.RefreshToken)
	handler.MustSucceed(c, err, pair)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)
	}
}
