package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

// OperationLogger 管理员操作日志中间件
type OperationLogger struct {
	repo   *repository.OperationLogRepository
	prefix string
	async  bool
}

// NewOperationLogger 创建操作日志中间件，prefix 为路由组前缀
func NewOperationLogger(repo *repository.OperationLogRepository, prefix string) *OperationLogger {
	return &OperationLogger{repo: repo, prefix: prefix, async: true}
}

// operationConfig 路由对应的模块与动作
type operationConfig struct {
	Module     string
	Action     string
	TargetType string
}

var operationRoutes = map[string]operationConfig{
	"POST /settlements":              {Module: "settlement", Action: "settle"},
	"POST /withdrawals/:id/review":   {Module: "withdrawal", Action: "review", TargetType: "withdrawal"},
	"POST /withdrawals/batch-review": {Module: "withdrawal", Action: "batch_review"},
	"POST /withdrawals/:id/paid":     {Module: "withdrawal", Action: "confirm_payment", TargetType: "withdrawal"},
	"PUT /users/:id/status":          {Module: "user", Action: "update_status", TargetType: "user"},
	"POST /orders/:id/paid":          {Module: "order", Action: "mark_paid", TargetType: "order"},
	"POST /orders/:id/deliver":       {Module: "order", Action: "mark_delivered", TargetType: "order"},
	"POST /orders/:id/reallocate":    {Module: "order", Action: "reallocate", TargetType: "order"},
	"POST /admins":                   {Module: "admin", Action: "create"},
}

var sensitiveFields = []string{"password", "token", "secret", "payment_account"}

// bodyCapture 记录响应体以取得业务码
type bodyCapture struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Log 只记录管理员的写操作
func (l *OperationLogger) Log() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWriteMethod(c.Request.Method) || l.repo == nil {
			c.Next()
			return
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}
		capture := &bodyCapture{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = capture

		c.Next()

		record := l.buildRecord(c, requestBody, capture.body.Bytes())
		if record == nil {
			return
		}
		if l.async {
			go l.save(record)
		} else {
			l.save(record)
		}
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

// buildRecord 在请求返回前取完上下文中的数据
func (l *OperationLogger) buildRecord(c *gin.Context, requestBody, responseBody []byte) *models.OperationLog {
	claims := GetClaims(c)
	if claims == nil || !claims.IsAdmin() {
		return nil
	}

	route := strings.TrimPrefix(c.FullPath(), l.prefix)
	cfg, ok := operationRoutes[c.Request.Method+" "+route]
	if !ok {
		cfg = defaultOperation(c.Request.Method, route)
	}

	record := &models.OperationLog{
		AdminID:    claims.UserID,
		AdminName:  claims.Name,
		Module:     cfg.Module,
		Action:     cfg.Action,
		StatusCode: c.Writer.Status(),
		IP:         c.ClientIP(),
	}
	if ua := c.Request.UserAgent(); ua != "" {
		record.UserAgent = &ua
	}
	if cfg.TargetType != "" {
		targetType := cfg.TargetType
		record.TargetType = &targetType
		if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
			record.TargetID = &id
		}
	}

	if len(requestBody) > 0 {
		var data map[string]interface{}
		if err := json.Unmarshal(requestBody, &data); err == nil {
			record.Request = maskSensitive(data)
		}
	}

	var envelope struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(responseBody, &envelope); err == nil {
		record.ResultCode = envelope.Code
	}
	return record
}

func (l *OperationLogger) save(record *models.OperationLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.repo.Create(ctx, record); err != nil {
		logger.Warn("写入操作日志失败",
			logger.AdminID(record.AdminID),
			logger.Module(record.Module),
			logger.Action(record.Action),
			logger.Err(err),
		)
	}
}

// defaultOperation 未登记的路由按路径首段推断模块
func defaultOperation(method, route string) operationConfig {
	module := "unknown"
	if parts := strings.Split(strings.Trim(route, "/"), "/"); parts[0] != "" {
		module = parts[0]
	}

	action := "unknown"
	switch method {
	case "POST":
		action = "create"
	case "PUT", "PATCH":
		action = "update"
	case "DELETE":
		action = "delete"
	}
	return operationConfig{Module: module, Action: action}
}

func maskSensitive(data map[string]interface{}) models.JSON {
	result := make(models.JSON, len(data))
	for key, value := range data {
		lower := strings.ToLower(key)
		masked := false
		for _, field := range sensitiveFields {
			if strings.Contains(lower, field) {
				masked = true
				break
			}
		}
		if masked {
			result[key] = "***"
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			result[key] = map[string]interface{}(maskSensitive(nested))
			continue
		}
		result[key] = value
	}
	return result
}
