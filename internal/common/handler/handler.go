// Package handler 提供 API Handler 的通用辅助函数
// 统一错误处理、认证检查、参数解析等操作
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/jwt"
	"github.com/dumeirei/referral-ledger/internal/common/response"
	"github.com/dumeirei/referral-ledger/internal/common/utils"
	"github.com/dumeirei/referral-ledger/internal/middleware"
)

// HandleError 处理错误并发送适当的响应
// 如果 err 为 nil，返回 false（表示无错误需要处理）
// 如果 err 不为 nil，发送错误响应并返回 true（调用方应该 return）
//
// 使用示例:
//
//	result, err := service.DoSomething()
//	if HandleError(c, err) {
//	    return
//	}
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if appErr := errors.GetAppError(err); appErr != nil {
		_ = c.Error(err)
		response.Error(c, appErr.Code, appErr.Message)
		return true
	}
	_ = c.Error(err)
	response.InternalError(c, "")
	return true
}

// MustSucceed 有错误则返回错误响应，否则返回成功响应
func MustSucceed(c *gin.Context, err error, data interface{}) {
	if HandleError(c, err) {
		return
	}
	response.Success(c, data)
}

// MustSucceedPage 分页响应版本
func MustSucceedPage(c *gin.Context, err error, list interface{}, total int64, p utils.Pagination) {
	if HandleError(c, err) {
		return
	}
	response.SuccessPage(c, list, total, p.Page, p.PageSize)
}

// RequireUserID 获取当前用户ID，如果未登录则返回401响应
func RequireUserID(c *gin.Context) (int64, bool) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "请先登录")
		return 0, false
	}
	return userID, true
}

// RequireAdmin 获取当前管理员ID与管辖区域
func RequireAdmin(c *gin.Context) (int64, *jwt.Region, bool) {
	adminID := middleware.GetAdminID(c)
	if adminID == 0 {
		response.Unauthorized(c, "请先登录")
		return 0, nil, false
	}
	return adminID, middleware.GetAdminRegion(c), true
}

// ParseID 解析路径参数 "id" 为 int64
//
//	id, ok := handler.ParseID(c, "订单")
//	if !ok {
//	    return
//	}
func ParseID(c *gin.Context, resourceName string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "无效的"+resourceName+"ID")
		return 0, false
	}
	return id, true
}

// ParseQueryID 解析查询参数中的可选 ID，参数为空时返回 nil
func ParseQueryID(c *gin.Context, paramName, resourceName string) (*int64, bool) {
	idStr := c.Query(paramName)
	if idStr == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		response.BadRequest(c, "无效的"+resourceName+"ID")
		return nil, false
	}
	return &id, true
}

// ParseQueryInt8 解析查询参数中的可选状态值
func ParseQueryInt8(c *gin.Context, paramName string) (*int8, bool) {
	raw := c.Query(paramName)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 8)
	if err != nil {
		response.BadRequest(c, "无效的"+paramName)
		return nil, false
	}
	n := int8(v)
	return &n, true
}

// ParseQueryDateRange 从查询参数解析日期范围（start_date, end_date）
// 结束日期调整为当天结束时间
func ParseQueryDateRange(c *gin.Context) (*utils.DateRange, bool) {
	start, err := utils.ParseDate(c.Query("start_date"))
	if err != nil {
		response.BadRequest(c, "无效的开始日期格式")
		return nil, false
	}
	end, err := utils.ParseDate(c.Query("end_date"))
	if err != nil {
		response.BadRequest(c, "无效的结束日期格式")
		return nil, false
	}
	if end != nil {
		eod := utils.EndOfDay(*end)
		end = &eod
	}
	return &utils.DateRange{Start: start, End: end}, true
}

// BindPagination 从查询参数绑定并规范化分页参数
//
//	p := handler.BindPagination(c)
//	list, total, err := service.List(ctx, p)
//	MustSucceedPage(c, err, list, total, p)
func BindPagination(c *gin.Context) utils.Pagination {
	var p utils.Pagination
	p.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	p.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	p.Normalize()
	return p
}
