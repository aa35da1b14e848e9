// Package order 提供用户端订单的 HTTP Handler
package order

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	orderService "github.com/dumeirei/referral-ledger/internal/service/order"
)

// Handler 订单处理器
type Handler struct {
	orderService *orderService.Service
}

// NewHandler 创建订单处理器
func NewHandler(orderSvc *orderService.Service) *Handler {
	return &Handler{orderService: orderSvc}
}

// Create 下单
// @Summary 下单
// @Tags 订单
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body orderService.CreateRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/orders [post]
func (h *Handler) Create(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req orderService.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	result, err := h.orderService.Create(c.Request.Context(), userID, &req)
	handler.MustSucceed(c, err, result)
}

// Get 订单详情
// @Summary 订单详情
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/orders/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}
	orderID, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}

	result, err := h.orderService.Get(c.Request.Context(), orderID)
	if err == nil && result.UserID != userID {
		err = appErrors.ErrOrderNotFound
	}
	handler.MustSucceed(c, err, result)
}

// Confirm 确认收货，触发分账
// @Summary 确认收货
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/orders/{id}/confirm [post]
func (h *Handler) Confirm(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}
	orderID, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}

	result, err := h.orderService.ConfirmReceive(c.Request.Context(), userID, orderID)
	handler.MustSucceed(c, err, result)
}

// Cancel 取消待付款订单
// @Summary 取消订单
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/orders/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}
	orderID, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}

	result, err := h.orderService.Cancel(c.Request.Context(), userID, orderID)
	handler.MustSucceed(c, err, result)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.Create)
		orders.GET("/:id", h.Get)
		orders.POST("/:id/confirm", h.Confirm)
		orders.POST("/:id/cancel", h.Cancel)
	}
}
