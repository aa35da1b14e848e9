// Package user 提供用户端推荐关系与提现的 HTTP Handler
package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	"github.com/dumeirei/referral-ledger/internal/service/referral"
	"github.com/dumeirei/referral-ledger/internal/service/withdrawal"
)

// Handler 用户处理器
type Handler struct {
	referralService   *referral.Service
	inviteService     *referral.InviteService
	withdrawalService *withdrawal.Service
}

// NewHandler 创建用户处理器
func NewHandler(referralSvc *referral.Service, inviteSvc *referral.InviteService, withdrawalSvc *withdrawal.Service) *Handler {
	return &Handler{
		referralService:   referralSvc,
		inviteService:     inviteSvc,
		withdrawalService: withdrawalSvc,
	}
}

// GetProfile 获取个人信息
// @Summary 获取个人信息
// @Tags 用户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=models.User}
// @Router /api/v1/user/profile [get]
func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	user, err := h.referralService.GetUser(c.Request.Context(), userID)
	handler.MustSucceed(c, err, user)
}

// GetDirect 直推下级列表
// @Summary 直推下级列表
// @Tags 用户
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/user/direct [get]
func (h *Handler) GetDirect(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.referralService.ListDirect(c.Request.Context(), userID, p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// GetTeam 团队成员列表
// @Summary 团队成员列表
// @Tags 用户
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/user/team [get]
func (h *Handler) GetTeam(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.referralService.ListTeam(c.Request.Context(), userID, p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// GetIncome 收益概览
// @Summary 收益概览
// @Tags 用户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=withdrawal.IncomeStats}
// @Router /api/v1/user/income [get]
func (h *Handler) GetIncome(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	stats, err := h.withdrawalService.IncomeStats(c.Request.Context(), userID)
	handler.MustSucceed(c, err, stats)
}

// WithdrawRequest 提现申请
type WithdrawRequest struct {
	Amount         decimal.Decimal `json:"amount" swaggertype:"string"`
	PaymentMethod  string          `json:"payment_method" binding:"required,oneof=wechat alipay bank"`
	PaymentAccount string          `json:"payment_account" binding:"required,max=100"`
	PaymentName    *string         `json:"payment_name"`
}

// Withdraw 申请提现，金额从余额中冻结
// @Summary 申请提现
// @Tags 用户
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body WithdrawRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Withdrawal}
// @Router /api/v1/user/withdrawals [post]
func (h *Handler) Withdraw(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.withdrawalService.Apply(c.Request.Context(), userID, &withdrawal.ApplyRequest{
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		PaymentAccount: req.PaymentAccount,
		PaymentName:    req.PaymentName,
	})
	handler.MustSucceed(c, err, result)
}

// GetWithdrawals 我的提现记录
// @Summary 我的提现记录
// @Tags 用户
// @Produce json
// @Security Bearer
// @Param status query int false "状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/user/withdrawals [get]
func (h *Handler) GetWithdrawals(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	status, ok := handler.ParseQueryInt8(c, "status")
	if !ok {
		return
	}
	p := handler.BindPagination(c)
	list, total, err := h.withdrawalService.ListByUser(c.Request.Context(), userID, status, p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// GetInvite 邀请卡片
// @Summary 邀请码与邀请二维码
// @Tags 用户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=referral.InviteCard}
// @Router /api/v1/user/invite [get]
func (h *Handler) GetInvite(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	card, err := h.inviteService.Card(c.Request.Context(), userID)
	handler.MustSucceed(c, err, card)
}

// GetInviteQRCode 邀请二维码图片
// @Summary 邀请二维码图片
// @Tags 用户
// @Produce png
// @Security Bearer
// @Success 200 {file} binary
// @Router /api/v1/user/invite/qrcode [get]
func (h *Handler) GetInviteQRCode(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	data, err := h.inviteService.QRCodePNG(c.Request.Context(), userID)
	if handler.HandleError(c, err) {
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// RegisterRoutes 注册路由，withdrawLimit 作用于提现申请
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, withdrawLimit ...gin.HandlerFunc) {
	user := r.Group("/user")
	{
		user.GET("/profile", h.GetProfile)
		user.GET("/direct", h.GetDirect)
		user.GET("/team", h.GetTeam)
		user.GET("/income", h.GetIncome)
		user.GET("/invite", h.GetInvite)
		user.GET("/invite/qrcode", h.GetInviteQRCode)
		user.GET("/withdrawals", h.GetWithdrawals)
		user.POST("/withdrawals", append(withdrawLimit, h.Withdraw)...)
	}
}
