package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/service/reporting"
	"github.com/dumeirei/referral-ledger/internal/service/settlement"
)

// SettlementHandler 结算管理处理器
type SettlementHandler struct {
	settlementService *settlement.Service
	reportingService  *reporting.Service
}

// NewSettlementHandler 创建结算管理处理器
func NewSettlementHandler(settlementSvc *settlement.Service, reportingSvc *reporting.Service) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementSvc,
		reportingService:  reportingSvc,
	}
}

// SettleRequest 手动结算请求，条件均为空时结算全部未结算记录
type SettleRequest struct {
	BeneficiaryID *int64  `json:"beneficiary_id"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	RecordIDs     []int64 `json:"record_ids"`
}

// Settle 手动结算
// @Summary 手动结算
// @Tags 管理-结算
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body SettleRequest true "请求参数"
// @Success 200 {object} response.Response{data=settlement.Result}
// @Router /api/admin/settlements [post]
func (h *SettlementHandler) Settle(c *gin.Context) {
	adminID, _, ok := handler.RequireAdmin(c)
	if !ok {
		return
	}

	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}
	start, err := utils.ParseDate(req.StartDate)
	if err != nil {
		response.BadRequest(c, "无效的开始日期格式")
		return
	}
	end, err := utils.ParseDate(req.EndDate)
	if err != nil {
		response.BadRequest(c, "无效的结束日期格式")
		return
	}
	if end != nil {
		eod := utils.EndOfDay(*end)
		end = &eod
	}

	result, err := h.settlementService.Settle(c.Request.Context(), &settlement.Filter{
		BeneficiaryID: req.BeneficiaryID,
		StartDate:     start,
		EndDate:       end,
		RecordIDs:     req.RecordIDs,
		Trigger:       models.SettlementTriggerManual,
		OperatorID:    &adminID,
	})
	if err == nil && result.SettledCount > 0 {
		h.reportingService.Invalidate(c.Request.Context())
	}
	handler.MustSucceed(c, err, result)
}

// Preview 待结算记录
// @Summary 待结算记录
// @Tags 管理-结算
// @Produce json
// @Security Bearer
// @Param beneficiary_id query int false "受益人ID"
// @Param nickname query string false "受益人昵称"
// @Param order_no query string false "订单号"
// @Param start_date query string false "开始日期 YYYY-MM-DD"
// @Param end_date query string false "结束日期 YYYY-MM-DD"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/admin/settlements/preview [get]
func (h *SettlementHandler) Preview(c *gin.Context) {
	beneficiaryID, ok := handler.ParseQueryID(c, "beneficiary_id", "受益人")
	if !ok {
		return
	}
	dateRange, ok := handler.ParseQueryDateRange(c)
	if !ok {
		return
	}

	filter := &settlement.PreviewFilter{
		BeneficiaryID: beneficiaryID,
		Nickname:      c.Query("nickname"),
		OrderNo:       c.Query("order_no"),
	}
	if !dateRange.IsZero() {
		filter.CreatedAt = dateRange
	}

	p := handler.BindPagination(c)
	list, total, err := h.settlementService.Preview(c.Request.Context(), filter, p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// Stats 结算统计
// @Summary 结算统计
// @Tags 管理-结算
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=settlement.Stats}
// @Router /api/admin/settlements/stats [get]
func (h *SettlementHandler) Stats(c *gin.Context) {
	stats, err := h.settlementService.Stats(c.Request.Context())
	handler.MustSucceed(c, err, stats)
}

// ListBatches 结算批次
// @Summary 结算批次
// @Tags 管理-结算
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/admin/settlements/batches [get]
func (h *SettlementHandler) ListBatches(c *gin.Context) {
	p := handler.BindPagination(c)
	list, total, err := h.settlementService.ListBatches(c.Request.Context(), p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// RegisterRoutes 注册路由
func (h *SettlementHandler) RegisterRoutes(r *gin.RouterGroup) {
	settlements := r.Group("/settlements")
	{
		settlements.POST("", h.Settle)
		settlements.GET("/preview", h.Preview)
		settlements.GET("/stats", h.Stats)
		settlements.GET("/batches", h.ListBatches)
	}
}
