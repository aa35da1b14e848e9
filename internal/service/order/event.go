package order

import (
	"context"

	"github.com/dumeirei/referral-ledger/internal/models"
)

// EventHandler 订单事件处理器
type EventHandler interface {
	OnOrderCompleted(ctx context.Context, order *models.Order) error
	OnOrderCancelled(ctx context.Context, order *models.Order) error
}

// HandlerFuncs 以函数形式实现 EventHandler，未设置的事件直接忽略
type HandlerFuncs struct {
	Completed func(ctx context.Context, order *models.Order) error
	Cancelled func(ctx context.Context, order *models.Order) error
}

// OnOrderCompleted 订单完成
func (h HandlerFuncs) OnOrderCompleted(ctx context.Context, order *models.Order) error {
	if h.Completed == nil {
		return nil
	}
	return h.Completed(ctx, order)
}

// OnOrderCancelled 订单取消
func (h HandlerFuncs) OnOrderCancelled(ctx context.Context, order *models.Order) error {
	if h.Cancelled == nil {
		return nil
	}
	return h.Cancelled(ctx, order)
}

var _ EventHandler = HandlerFuncs{}
