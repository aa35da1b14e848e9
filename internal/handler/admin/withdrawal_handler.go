package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	"github.com/dumeirei/referral-ledger/internal/service/withdrawal"
)

// WithdrawalHandler 提现审核处理器
type WithdrawalHandler struct {
	withdrawalService *withdrawal.Service
}

// NewWithdrawalHandler 创建提现审核处理器
func NewWithdrawalHandler(withdrawalSvc *withdrawal.Service) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalService: withdrawalSvc}
}

// List 提现列表
// @Summary 提现列表
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param user_id query int false "用户ID"
// @Param status query int false "状态"
// @Param nickname query string false "用户昵称或邀请码"
// @Param start_date query string false "开始日期 YYYY-MM-DD"
// @Param end_date query string false "结束日期 YYYY-MM-DD"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/admin/withdrawals [get]
func (h *WithdrawalHandler) List(c *gin.Context) {
	userID, ok := handler.ParseQueryID(c, "user_id", "用户")
	if !ok {
		return
	}
	status, ok := handler.ParseQueryInt8(c, "status")
	if !ok {
		return
	}
	dateRange, ok := handler.ParseQueryDateRange(c)
	if !ok {
		return
	}

	filter := &withdrawal.ListFilter{
		UserID:   userID,
		Status:   status,
		Nickname: c.Query("nickname"),
	}
	if !dateRange.IsZero() {
		filter.CreatedAt = dateRange
	}

	p := handler.BindPagination(c)
	list, total, err := h.withdrawalService.ListAll(c.Request.Context(), filter, p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// Get 提现详情
// @Summary 提现详情
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param id path int true "提现ID"
// @Success 200 {object} response.Response{data=models.Withdrawal}
// @Router /api/admin/withdrawals/{id} [get]
func (h *WithdrawalHandler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "提现")
	if !ok {
		return
	}

	result, err := h.withdrawalService.Get(c.Request.Context(), id)
	handler.MustSucceed(c, err, result)
}

// Stats 提现统计
// @Summary 提现统计
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param start_date query string false "开始日期 2006-01-02"
// @Param end_date query string false "结束日期 2006-01-02"
// @Success 200 {object} response.Response{data=withdrawal.Stats}
// @Router /api/admin/withdrawals/stats [get]
func (h *WithdrawalHandler) Stats(c *gin.Context) {
	dateRange, ok := handler.ParseQueryDateRange(c)
	if !ok {
		return
	}

	stats, err := h.withdrawalService.Stats(c.Request.Context(), dateRange)
	handler.MustSucceed(c, err, stats)
}

// PendingCount 待审核数量
// @Summary 待审核数量
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /api/admin/withdrawals/pending-count [get]
func (h *WithdrawalHandler) PendingCount(c *gin.Context) {
	count, err := h.withdrawalService.PendingCount(c.Request.Context())
	handler.MustSucceed(c, err, gin.H{"count": count})
}

// ReviewRequest 审核请求
type ReviewRequest struct {
	Approve *bool   `json:"approve" binding:"required"`
	Remark  *string `json:"remark"`
}

// Review 审核提现
// @Summary 审核提现
// @Tags 管理-提现
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "提现ID"
// @Param request body ReviewRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /api/admin/withdrawals/{id}/review [post]
func (h *WithdrawalHandler) Review(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "提现")
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	err := h.withdrawalService.Review(c.Request.Context(), id, &withdrawal.ReviewRequest{
		Approve:      *req.Approve,
		ReviewerID:   admin.ID,
		ReviewerName: admin.Name,
		Remark:       req.Remark,
	})
	handler.MustSucceed(c, err, nil)
}

// BatchReviewRequest 批量审核请求
type BatchReviewRequest struct {
	IDs     []int64 `json:"ids" binding:"required,min=1"`
	Approve *bool   `json:"approve" binding:"required"`
	Remark  *string `json:"remark"`
}

// BatchReview 批量审核，逐条返回结果
// @Summary 批量审核提现
// @Tags 管理-提现
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body BatchReviewRequest true "请求参数"
// @Success 200 {object} response.Response{data=withdrawal.BatchResult}
// @Router /api/admin/withdrawals/batch-review [post]
func (h *WithdrawalHandler) BatchReview(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}

	var req BatchReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.withdrawalService.BatchReview(c.Request.Context(), req.IDs, &withdrawal.ReviewRequest{
		Approve:      *req.Approve,
		ReviewerID:   admin.ID,
		ReviewerName: admin.Name,
		Remark:       req.Remark,
	})
	handler.MustSucceed(c, err, result)
}

// ConfirmPayment 确认已打款
// @Summary 确认打款
// @Tags 管理-提现
// @Produce json
// @Security Bearer
// @Param id path int true "提现ID"
// @Success 200 {object} response.Response
// @Router /api/admin/withdrawals/{id}/paid [post]
func (h *WithdrawalHandler) ConfirmPayment(c *gin.Context) {
	adminID, _, ok := handler.RequireAdmin(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "提现")
	if !ok {
		return
	}

	err := h.withdrawalService.ConfirmPayment(c.Request.Context(), id, adminID)
	handler.MustSucceed(c, err, nil)
}

// RegisterRoutes 注册路由
func (h *WithdrawalHandler) RegisterRoutes(r *gin.RouterGroup) {
	withdrawals := r.Group("/withdrawals")
	{
		withdrawals.GET("", h.List)
		withdrawals.GET("/pending-count", h.PendingCount)
		withdrawals.GET("/stats", h.Stats)
		withdrawals.POST("/batch-review", h.BatchReview)
		withdrawals.GET("/:id", h.Get)
		withdrawals.POST("/:id/review", h.Review)
		withdrawals.POST("/:id/paid", h.ConfirmPayment)
	}
}
