package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/referral-ledger/internal/common/cache"
	"github.com/dumeirei/referral-ledger/internal/common/config"
	"github.com/dumeirei/referral-ledger/internal/common/jwt"
	"github.com/dumeirei/referral-ledger/internal/common/metrics"
	"github.com/dumeirei/referral-ledger/internal/common/tracing"
	adminHandler "github.com/dumeirei/referral-ledger/internal/handler/admin"
	authHandler "github.com/dumeirei/referral-ledger/internal/handler/auth"
	orderHandler "github.com/dumeirei/referral-ledger/internal/handler/order"
	userHandler "github.com/dumeirei/referral-ledger/internal/handler/user"
	"github.com/dumeirei/referral-ledger/internal/middleware"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
	"github.com/dumeirei/referral-ledger/internal/scheduler"
	"github.com/dumeirei/referral-ledger/internal/service/allocation"
	"github.com/dumeirei/referral-ledger/internal/service/audit"
	authService "github.com/dumeirei/referral-ledger/internal/service/auth"
	orderService "github.com/dumeirei/referral-ledger/internal/service/order"
	"github.com/dumeirei/referral-ledger/internal/service/referral"
	"github.com/dumeirei/referral-ledger/internal/service/reporting"
	"github.com/dumeirei/referral-ledger/internal/service/settlement"
	"github.com/dumeirei/referral-ledger/internal/service/withdrawal"
)

// app 进程内共享的依赖
type app struct {
	db          *gorm.DB
	redisClient *redis.Client
	metrics     *metrics.Metrics
	jwtManager  *jwt.Manager

	authService      *authService.Service
	adminAuthService *authService.AdminService
	referralService  *referral.Service
	inviteService    *referral.InviteService
	orderService     *orderService.Service
	allocator        *allocation.Allocator
	settlement       *settlement.Service
	withdrawal       *withdrawal.Service
	reporting        *reporting.Service
	audit            *audit.Service
	operationLogger  *middleware.OperationLogger
	tasks            *scheduler.TaskHandler
}

// newApp 初始化仓储与服务，redisClient 与 m 可为 nil
func newApp(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, m *metrics.Metrics) *app {
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            cfg.JWT.Secret,
		AccessExpireTime:  cfg.JWT.AccessTokenDuration(),
		RefreshExpireTime: cfg.JWT.RefreshTokenDuration(),
		Issuer:            cfg.JWT.Issuer,
	})

	locker := cache.NewLocker(redisClient)
	store := cache.NewStore(redisClient)

	// 初始化仓储
	userRepo := repository.NewUserRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	operationLogRepo := repository.NewOperationLogRepository(db)

	// 初始化服务
	business := cfg.Business
	referralSvc := referral.NewService(userRepo, db, locker, m, business.Referral)
	reportingSvc := reporting.NewService(allocationRepo, store, m, business.Reporting)
	allocator := allocation.NewAllocator(orderRepo, userRepo, allocationRepo, db, m, business.Distribution)
	settlementSvc := settlement.NewService(allocationRepo, userRepo, settlementRepo, db, m, business.Settlement)
	withdrawalSvc := withdrawal.NewService(withdrawalRepo, userRepo, settlementSvc, db, m, business.Withdrawal)

	// 确认收货后先分账，再清除报表缓存
	orderSvc := orderService.NewService(orderRepo, productRepo, db,
		allocator,
		orderService.HandlerFuncs{Completed: func(ctx context.Context, _ *models.Order) error {
			reportingSvc.Invalidate(ctx)
			return nil
		}},
	)

	return &app{
		db:               db,
		redisClient:      redisClient,
		metrics:          m,
		jwtManager:       jwtManager,
		authService:      authService.NewService(referralSvc, userRepo, jwtManager),
		adminAuthService: authService.NewAdminService(adminRepo, jwtManager),
		referralService:  referralSvc,
		inviteService:    referral.NewInviteService(referralSvc, business.Referral),
		orderService:     orderSvc,
		allocator:        allocator,
		settlement:       settlementSvc,
		withdrawal:       withdrawalSvc,
		reporting:        reportingSvc,
		audit:            audit.NewService(operationLogRepo),
		operationLogger:  middleware.NewOperationLogger(operationLogRepo, "/api/admin"),
		tasks:            scheduler.NewTaskHandler(settlementSvc, allocator, reportingSvc, locker, business.Settlement),
	}
}

// setupRouter 设置路由
func setupRouter(r *gin.Engine, cfg *config.Config, log *zap.Logger, a *app) {
	// 初始化处理器
	authH := authHandler.NewHandler(a.authService)
	userH := userHandler.NewHandler(a.referralService, a.inviteService, a.withdrawal)
	orderH := orderHandler.NewHandler(a.orderService)

	adminAuthH := adminHandler.NewAuthHandler(a.adminAuthService)
	adminUserH := adminHandler.NewUserHandler(a.referralService)
	adminOrderH := adminHandler.NewOrderHandler(a.orderService, a.allocator, a.reporting)
	settlementH := adminHandler.NewSettlementHandler(a.settlement, a.reporting)
	withdrawalH := adminHandler.NewWithdrawalHandler(a.withdrawal)
	reportH := adminHandler.NewReportHandler(a.reporting)
	operationLogH := adminHandler.NewOperationLogHandler(a.audit)

	// 全局中间件
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.RealIP())
	r.Use(middleware.CORS(nil))
	r.Use(tracing.Middleware())
	r.Use(middleware.AccessLog(log))
	if a.metrics != nil {
		r.Use(a.metrics.Middleware())
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}

	// 健康检查（不需要认证）
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(a.db, a.redisClient))

	// Swagger 文档
	if cfg.Server.Mode != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// API v1 路由组
	v1 := r.Group("/api/v1")
	{
		// 公开接口（无需认证）
		authH.RegisterRoutes(v1.Group("", middleware.UserRateLimit(a.redisClient, "auth", 30, time.Minute)))

		// 用户端接口（需要用户认证）
		user := v1.Group("")
		user.Use(middleware.UserAuth(a.jwtManager))
		{
			userH.RegisterRoutes(user, middleware.UserRateLimit(a.redisClient, "withdraw", 10, time.Minute))
			orderH.RegisterRoutes(user)
		}
	}

	// 管理后台 API
	admin := r.Group("/api/admin")
	{
		adminAuthH.RegisterRoutes(admin)

		adminAuth := admin.Group("")
		adminAuth.Use(middleware.AdminAuth(a.jwtManager))
		{
			// 区域管理员可访问
			adminAuthH.RegisterProtectedRoutes(adminAuth)
			reportH.RegisterRoutes(adminAuth)

			// 资金与运维操作仅限不限区域的管理员，写操作记入操作日志
			unrestricted := adminAuth.Group("")
			unrestricted.Use(middleware.RequireUnrestrictedAdmin(), a.operationLogger.Log())
			{
				adminAuthH.RegisterUnrestrictedRoutes(unrestricted)
				operationLogH.RegisterRoutes(unrestricted)
				adminUserH.RegisterRoutes(unrestricted)
				adminOrderH.RegisterRoutes(unrestricted)
				settlementH.RegisterRoutes(unrestricted)
				withdrawalH.RegisterRoutes(unrestricted)
			}
		}
	}

	// 404 处理
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    404,
			"message": "接口不存在",
		})
	})
}
