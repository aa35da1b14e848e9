// Package response 统一响应格式单元测试
package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTest 创建测试用的 Gin 上下文
func setupTest() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

// parseResponse 解析响应为 Response 结构
func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	c, w := setupTest()

	Success(c, map[string]interface{}{"id": 123})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "success", resp.Message)
	assert.NotNil(t, resp.Data)
}

func TestSuccessPage(t *testing.T) {
	c, w := setupTest()

	SuccessPage(c, []int{1, 2}, 12, 2, 2)

	var resp struct {
		Code int      `json:"code"`
		Data PageData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(12), resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Page)
	assert.Equal(t, 2, resp.Data.PageSize)
}

func TestError(t *testing.T) {
	c, w := setupTest()

	Error(c, 3006, "余额不足")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 3006, resp.Code)
	assert.Equal(t, "余额不足", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestStatusResponses(t *testing.T) {
	tests := []struct {
		name        string
		fn          func(*gin.Context, string)
		message     string
		wantStatus  int
		wantMessage string
	}{
		{"参数错误", BadRequest, "金额必须大于0", http.StatusBadRequest, "金额必须大于0"},
		{"未授权默认消息", Unauthorized, "", http.StatusUnauthorized, "unauthorized"},
		{"禁止访问", Forbidden, "无权访问", http.StatusForbidden, "无权访问"},
		{"内部错误默认消息", InternalError, "", http.StatusInternalServerError, "internal server error"},
		{"限流", TooManyRequests, "", http.StatusTooManyRequests, "too many requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := setupTest()
			tt.fn(c, tt.message)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseResponse(t, w)
			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantMessage, resp.Message)
		})
	}
}
