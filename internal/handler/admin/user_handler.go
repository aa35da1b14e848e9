package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/handler"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	"github.com/dumeirei/referral-ledger/internal/service/referral"
)

// UserHandler 用户与推荐关系管理处理器
type UserHandler struct {
	referralService *referral.Service
}

// NewUserHandler 创建用户管理处理器
func NewUserHandler(referralSvc *referral.Service) *UserHandler {
	return &UserHandler{referralService: referralSvc}
}

// Get 用户详情
// @Summary 用户详情
// @Tags 管理-用户
// @Produce json
// @Security Bearer
// @Param id path int true "用户ID"
// @Success 200 {object} response.Response{data=models.User}
// @Router /api/admin/users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := handler.ParseID(c, "用户")
	if !ok {
		return
	}

	user, err := h.referralService.GetUser(c.Request.Context(), id)
	handler.MustSucceed(c, err, user)
}

// GetTeam 用户的团队成员
// @Summary 用户团队
// @Tags 管理-用户
// @Produce json
// @Security Bearer
// @Param id path int true "用户ID"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/admin/users/{id}/team [get]
func (h *UserHandler) GetTeam(c *gin.Context) {
	id, ok := handler.ParseID(c, "用户")
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.referralService.ListTeam(c.Request.Context(), id, p)
	handler.MustSucceedPage(c, err, list, total, p)
}

// UpdateStatusRequest 更新用户状态请求
type UpdateStatusRequest struct {
	Status *int8 `json:"status" binding:"required"`
}

// UpdateStatus 冻结、注销或恢复用户
// @Summary 更新用户状态
// @Tags 管理-用户
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "用户ID"
// @Param request body UpdateStatusRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /api/admin/users/{id}/status [put]
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	id, ok := handler.ParseID(c, "用户")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	err := h.referralService.UpdateStatus(c.Request.Context(), id, *req.Status)
	handler.MustSucceed(c, err, nil)
}

// VerifyGraph 校验推荐关系图
// @Summary 校验推荐关系图
// @Tags 管理-用户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response
// @Router /api/admin/referrals/verify [get]
func (h *UserHandler) VerifyGraph(c *gin.Context) {
	violations, err := h.referralService.VerifyGraph(c.Request.Context())
	handler.MustSucceed(c, err, gin.H{
		"consistent": len(violations) == 0,
		"violations": violations,
	})
}

// RegisterRoutes 注册路由
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/:id", h.Get)
		users.GET("/:id/team", h.GetTeam)
		users.PUT("/:id/status", h.UpdateStatus)
	}
	r.GET("/referrals/verify", h.VerifyGraph)
}
