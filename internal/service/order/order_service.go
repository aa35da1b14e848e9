// Package order 订单生命周期服务
package order

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

// Service 订单服务
type Service struct {
	orderRepo   *repository.OrderRepository
	productRepo *repository.ProductRepository
	db          *gorm.DB
	handlers    []EventHandler
	idGen       *utils.IDGenerator
}

// NewService 创建订单服务，handlers 按顺序接收订单事件
func NewService(
	orderRepo *repository.OrderRepository,
	productRepo *repository.ProductRepository,
	db *gorm.DB,
	handlers ...EventHandler,
) *Service {
	return &Service{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		db:          db,
		handlers:    handlers,
		idGen:       utils.DefaultIDGenerator(),
	}
}

// CreateItem 下单商品
type CreateItem struct {
	ProductID int64  `json:"product_id" binding:"required"`
	GoodsName string `json:"goods_name"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	PayAmount int64  `json:"pay_amount" binding:"min=0"` // 分
}

// CreateRequest 下单请求
type CreateRequest struct {
	Items            []CreateItem `json:"items" binding:"required,min=1,dive"`
	ReceiverName     string       `json:"receiver_name"`
	ReceiverProvince string       `json:"receiver_province"`
	ReceiverCity     string       `json:"receiver_city"`
	ReceiverDistrict string       `json:"receiver_district"`
}

// Create 创建订单，商品分账比例在此刻快照到订单项
func (s *Service) Create(ctx context.Context, userID int64, req *CreateRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, appErrors.ErrInvalidParams.WithMessage("订单商品不能为空")
	}

	productIDs := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.PayAmount < 0 {
			return nil, appErrors.ErrInvalidParams.WithMessage("商品数量或金额无效")
		}
		productIDs = append(productIDs, item.ProductID)
	}
	ratios, err := s.productRepo.GetRatios(ctx, productIDs)
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}

	order := &models.Order{
		OrderNo:          s.idGen.Next(utils.PrefixOrder),
		UserID:           userID,
		Status:           models.OrderStatusToPay,
		ReceiverName:     req.ReceiverName,
		ReceiverProvince: req.ReceiverProvince,
		ReceiverCity:     req.ReceiverCity,
		ReceiverDistrict: req.ReceiverDistrict,
	}
	for _, in := range req.Items {
		r, ok := ratios[in.ProductID]
		if !ok {
			return nil, appErrors.ErrProductNotFound
		}
		item := models.OrderItem{
			ProductID: in.ProductID,
			GoodsName: in.GoodsName,
			Quantity:  in.Quantity,
			PayAmount: in.PayAmount,
		}
		item.ApplyRatios(r)
		order.Items = append(order.Items, item)
		order.TotalAmount += in.PayAmount
	}
	order.PayAmount = order.TotalAmount

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	return order, nil
}

// Get 获取订单（含订单项）
func (s *Service) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDWithItems(ctx, s.db, orderID)
	if err != nil {
		return nil, orderNotFoundOr(err)
	}
	return order, nil
}

// MarkPaid 支付回调：待付款 -> 待发货
func (s *Service) MarkPaid(ctx context.Context, orderID int64) error {
	return s.transition(ctx, orderID, models.OrderStatusToPay, models.OrderStatusToDeliver, "paid_at")
}

// MarkDelivered 发货：待发货 -> 待收货
func (s *Service) MarkDelivered(ctx context.Context, orderID int64) error {
	return s.transition(ctx, orderID, models.OrderStatusToDeliver, models.OrderStatusToReceive, "delivered_at")
}

func (s *Service) transition(ctx context.Context, orderID int64, from, to int8, timeField string) error {
	ok, err := s.orderRepo.TransitionStatus(ctx, s.db, orderID, from, to,
		map[string]interface{}{timeField: time.Now()})
	if err != nil {
		return appErrors.ErrDatabaseError.WithError(err)
	}
	if !ok {
		if _, err := s.orderRepo.GetByID(ctx, orderID); err != nil {
			return orderNotFoundOr(err)
		}
		return appErrors.ErrOrderStatusError
	}
	return nil
}

// ConfirmReceive 用户确认收货，订单完成后通知事件处理器
//
// 状态迁移单独提交，处理器的失败只记录日志，不影响订单完成。
func (s *Service) ConfirmReceive(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, orderNotFoundOr(err)
	}
	if order.UserID != userID {
		return nil, appErrors.ErrOrderNotOwned
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.orderRepo.TransitionStatus(ctx, tx, orderID,
			models.OrderStatusToReceive, models.OrderStatusCompleted,
			map[string]interface{}{"received_at": time.Now()})
		if err != nil {
			return appErrors.ErrDatabaseError.WithError(err)
		}
		if !ok {
			return appErrors.ErrOrderStatusError
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	completed, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}
	logger.Info("订单确认收货",
		logger.Module("order"),
		logger.OrderID(orderID),
		logger.OrderNo(completed.OrderNo),
		logger.UserID(userID),
	)

	s.dispatch(ctx, completed, EventHandler.OnOrderCompleted, "completed")
	return completed, nil
}

// Cancel 取消待付款订单
func (s *Service) Cancel(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, orderNotFoundOr(err)
	}
	if order.UserID != userID {
		return nil, appErrors.ErrOrderNotOwned
	}

	if err := s.transition(ctx, orderID, models.OrderStatusToPay, models.OrderStatusCancelled, "cancelled_at"); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusCancelled

	s.dispatch(ctx, order, EventHandler.OnOrderCancelled, "cancelled")
	return order, nil
}

func (s *Service) dispatch(ctx context.Context, order *models.Order, fn func(EventHandler, context.Context, *models.Order) error, event string) {
	for _, h := range s.handlers {
		if err := fn(h, ctx, order); err != nil {
			logger.Warn("订单事件处理失败",
				logger.Module("order"),
				logger.Action(event),
				logger.OrderID(order.ID),
				logger.Err(err),
			)
		}
	}
}

func orderNotFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return appErrors.ErrOrderNotFound
	}
	return appErrors.ErrDatabaseError.WithError(err)
}
