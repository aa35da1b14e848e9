package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/service/allocation"
	orderService "github.com/dumeirei/referral-ledger/internal/service/order"
	"github.com/dumeirei/referral-ledger/internal/service/reporting"
)

// OrderHandler 订单运维处理器
type OrderHandler struct {
	orderService     *orderService.Service
	allocator        *allocation.Allocator
	reportingService *reporting.Service
}

// NewOrderHandler 创建订单运维处理器
func NewOrderHandler(
	orderSvc *orderService.Service,
	allocator *allocation.Allocator,
	reportingSvc *reporting.Service,
) *OrderHandler {
	return &OrderHandler{
		orderService:     orderSvc,
		allocator:        allocator,
		reportingService: reportingSvc,
	}
}

// Get 订单详情
// @Summary 订单详情
// @Tags 管理-订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/admin/orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}

	result, err := h.orderService.Get(c.Request.Context(), id)
	handler.MustSucceed(c, err, result)
}

// MarkPaid 标记已支付
// @Summary 标记已支付
// @Tags 管理-订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response
// @Router /api/admin/orders/{id}/paid [post]
func (h *OrderHandler) MarkPaid(c *gin.Context) {
	id, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}
	handler.MustSucceed(c, h.orderService.MarkPaid(c.Request.Context(), id), nil)
}

// MarkDelivered 标记已发货
// @Summary 标记已发货
// @Tags 管理-订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response
// @Router /api/admin/orders/{id}/deliver [post]
func (h *OrderHandler) MarkDelivered(c *gin.Context) {
	id, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}
	handler.MustSucceed(c, h.orderService.MarkDelivered(c.Request.Context(), id), nil)
}

// Reallocate 对已完成的订单补做分账，已分账的订单直接返回
// @Summary 重新分账
// @Tags 管理-订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=allocation.Result}
// @Router /api/admin/orders/{id}/reallocate [post]
func (h *OrderHandler) Reallocate(c *gin.Context) {
	id, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}

	result, err := h.allocator.Reallocate(c.Request.Context(), id)
	if err == nil && !result.Skipped {
		h.reportingService.Invalidate(c.Request.Context())
	}
	handler.MustSucceed(c, err, result)
}

// Allocations 订单的分账明细
// @Summary 订单分账明细
// @Tags 管理-订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=[]models.OrderAllocation}
// @Router /api/admin/orders/{id}/allocations [get]
func (h *OrderHandler) Allocations(c *gin.Context) {
	id, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}

	records, err := h.allocator.OrderAllocations(c.Request.Context(), id)
	handler.MustSucceed(c, err, records)
}

// RegisterRoutes 注册路由
func (h *OrderHandler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.GET("/:id", h.Get)
		orders.GET("/:id/allocations", h.Allocations)
		orders.POST("/:id/paid", h.MarkPaid)
		orders.POST("/:id/deliver", h.MarkDelivered)
		orders.POST("/:id/reallocate", h.Reallocate)
	}
}
