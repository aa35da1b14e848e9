// Package middleware 提供 HTTP 中间件
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/response"
)

// regionTypeAll 不限区域的管理员级别
const regionTypeAll = 0

// RequireUnrestrictedAdmin 仅允许不限区域的管理员访问
//
// 结算、提现审核等资金操作不按区域拆分，区域管理员只能查看报表。
func RequireUnrestrictedAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		region := GetAdminRegion(c)
		if region == nil {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		if region.Type != regionTypeAll {
			response.Forbidden(c, "权限不足")
			c.Abort()
			return
		}

		c.Next()
	}
}
