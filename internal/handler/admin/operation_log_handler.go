package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/repository"
	"github.com/dumeirei/referral-ledger/internal/service/audit"
)

// OperationLogHandler 操作日志处理器
type OperationLogHandler struct {
	auditService *audit.Service
}

// NewOperationLogHandler 创建操作日志处理器
func NewOperationLogHandler(auditSvc *audit.Service) *OperationLogHandler {
	return &OperationLogHandler{auditService: auditSvc}
}

// List 操作日志列表
// @Summary 操作日志列表
// @Tags 管理-审计
// @Produce json
// @Security Bearer
// @Param admin_id query int false "管理员ID"
// @Param module query string false "模块"
// @Param target_type query string false "目标类型"
// @Param target_id query int false "目标ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/admin/operation-logs [get]
func (h *OperationLogHandler) List(c *gin.Context) {
	adminID, ok := handler.ParseQueryID(c, "admin_id", "管理员")
	if !ok {
		return
	}
	targetID, ok := handler.ParseQueryID(c, "target_id", "目标")
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.auditService.List(c.Request.Context(), &repository.OperationLogFilter{
		AdminID:    adminID,
		Module:     c.Query("module"),
		TargetType: c.Query("target_type"),
		TargetID:   targetID,
	}, p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// RegisterRoutes 注册路由
func (h *OperationLogHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/operation-logs", h.List)
}
