package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	"github.com/dumeirei/referral-ledger/internal/service/reporting"
)

// ReportHandler 区域报表处理器，区域管理员只能看到管辖范围内的数据
type ReportHandler struct {
	reportingService *reporting.Service
}

// NewReportHandler 创建区域报表处理器
func NewReportHandler(reportingSvc *reporting.Service) *ReportHandler {
	return &ReportHandler{reportingService: reportingSvc}
}

// bindRegionQuery 从查询参数构造报表条件
func bindRegionQuery(c *gin.Context) (*reporting.RegionQuery, bool) {
	var filter reporting.RegionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "参数错误")
		return nil, false
	}
	status, ok := handler.ParseQueryInt8(c, "settlement_status")
	if !ok {
		return nil, false
	}
	dateRange, ok := handler.ParseQueryDateRange(c)
	if !ok {
		return nil, false
	}
	return &reporting.RegionQuery{
		Filter:           filter,
		GroupBy:          c.Query("group_by"),
		StartDate:        dateRange.Start,
		EndDate:          dateRange.End,
		SettlementStatus: status,
	}, true
}

// Summary 区域汇总
// @Summary 区域汇总
// @Tags 管理-报表
// @Produce json
// @Security Bearer
// @Param group_by query string false "分组级别 province/city/district"
// @Param province query string false "省"
// @Param city query string false "市"
// @Param district query string false "区县"
// @Param settlement_status query int false "结算状态"
// @Param start_date query string false "开始日期 YYYY-MM-DD"
// @Param end_date query string false "结束日期 YYYY-MM-DD"
// @Success 200 {object} response.Response{data=reporting.Summary}
// @Router /api/admin/reports/regions [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}
	q, ok := bindRegionQuery(c)
	if !ok {
		return
	}

	summary, err := h.reportingService.Summary(c.Request.Context(), admin, q)
	handler.MustSucceed(c, err, summary)
}

// Records 区域分账明细
// @Summary 区域分账明细
// @Tags 管理-报表
// @Produce json
// @Security Bearer
// @Param province query string false "省"
// @Param city query string false "市"
// @Param district query string false "区县"
// @Param settlement_status query int false "结算状态"
// @Param start_date query string false "开始日期 YYYY-MM-DD"
// @Param end_date query string false "结束日期 YYYY-MM-DD"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/admin/reports/records [get]
func (h *ReportHandler) Records(c *gin.Context) {
	admin, ok := currentAdmin(c)
	if !ok {
		return
	}
	q, ok := bindRegionQuery(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.reportingService.ListRecords(c.Request.Context(), admin, q, p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// RegisterRoutes 注册路由
func (h *ReportHandler) RegisterRoutes(r *gin.RouterGroup) {
	reports := r.Group("/reports")
	{
		reports.GET("/regions", h.Summary)
		reports.GET("/records", h.Records)
	}
}
