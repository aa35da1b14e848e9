package user

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/referral-ledger/internal/common/config"
	"github.com/dumeirei/referral-ledger/internal/common/database"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/jwt"
	"github.com/dumeirei/referral-ledger/internal/middleware"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
	"github.com/dumeirei/referral-ledger/internal/service/referral"
	"github.com/dumeirei/referral-ledger/internal/service/settlement"
	"github.com/dumeirei/referral-ledger/internal/service/withdrawal"
)

func setupUserTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type userFixture struct {
	db     *gorm.DB
	router *gin.Engine
	jwt    *jwt.Manager
	parent *models.User
	child  *models.User
}

// newUserFixture 两级关系：parent 余额 20.00，child 为其直推
func newUserFixture(t *testing.T, redisClient *redis.Client) *userFixture {
	gin.SetMode(gin.TestMode)
	db := setupUserTestDB(t)

	manager := jwt.NewManager(&jwt.Config{
		Secret:            "test-secret",
		AccessExpireTime:  time.Hour,
		RefreshExpireTime: 24 * time.Hour,
		Issuer:            "referral-ledger-test",
	})

	userRepo := repository.NewUserRepository(db)
	referralSvc := referral.NewService(userRepo, db, nil, nil, config.ReferralConfig{})
	settlementSvc := settlement.NewService(repository.NewAllocationRepository(db), userRepo,
		repository.NewSettlementRepository(db), db, nil, config.SettlementConfig{})
	withdrawalSvc := withdrawal.NewService(repository.NewWithdrawalRepository(db), userRepo,
		settlementSvc, db, nil, config.WithdrawalConfig{})

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.Use(middleware.UserAuth(manager))
	inviteSvc := referral.NewInviteService(referralSvc, config.ReferralConfig{
		RegisterURL: "https://h5.example.com/register?from=app",
		QRCodeSize:  128,
	})
	NewHandler(referralSvc, inviteSvc, withdrawalSvc).RegisterRoutes(v1,
		middleware.UserRateLimit(redisClient, "withdraw", 3, time.Minute))

	ctx := context.Background()
	parent, err := referralSvc.Register(ctx, &referral.RegisterRequest{OpenID: "o-parent", Nickname: "parent"})
	require.NoError(t, err)
	child, err := referralSvc.Register(ctx, &referral.RegisterRequest{OpenID: "o-child", Nickname: "child", InviteCode: parent.InviteCode})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", parent.ID).
		Updates(map[string]interface{}{"account": "20.00", "total_income": "20.00"}).Error)

	return &userFixture{db: db, router: r, jwt: manager, parent: parent, child: child}
}

func (f *userFixture) token(t *testing.T, userID int64) string {
	pair, err := f.jwt.GenerateTokenPair(jwt.Subject{ID: userID, Type: jwt.UserTypeUser})
	require.NoError(t, err)
	return pair.AccessToken
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *userFixture) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func pageTotal(t *testing.T, resp envelope) int64 {
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	return page.Total
}

func TestHandler_Referral(t *testing.T) {
	f := newUserFixture(t, nil)
	token := f.token(t, f.parent.ID)

	t.Run("未登录", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, "/api/v1/user/profile", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("个人信息", func(t *testing.T) {
		_, resp := f.do(t, http.MethodGet, "/api/v1/user/profile", token, nil)
		require.Equal(t, 0, resp.Code, resp.Message)

		var profile models.User
		require.NoError(t, json.Unmarshal(resp.Data, &profile))
		assert.Equal(t, f.parent.ID, profile.ID)
		assert.Equal(t, f.parent.InviteCode, profile.InviteCode)
		assert.Equal(t, int64(1), profile.DirectCount)
	})

	t.Run("直推与团队", func(t *testing.T) {
		_, resp := f.do(t, http.MethodGet, "/api/v1/user/direct", token, nil)
		assert.Equal(t, int64(1), pageTotal(t, resp))

		_, resp = f.do(t, http.MethodGet, "/api/v1/user/team", token, nil)
		assert.Equal(t, int64(1), pageTotal(t, resp))

		_, resp = f.do(t, http.MethodGet, "/api/v1/user/team", f.token(t, f.child.ID), nil)
		assert.Zero(t, pageTotal(t, resp))
	})

	t.Run("邀请卡片", func(t *testing.T) {
		_, resp := f.do(t, http.MethodGet, "/api/v1/user/invite", token, nil)
		require.Equal(t, 0, resp.Code, resp.Message)

		var card referral.InviteCard
		require.NoError(t, json.Unmarshal(resp.Data, &card))
		assert.Equal(t, f.parent.InviteCode, card.InviteCode)
		assert.Equal(t, "https://h5.example.com/register?from=app&invite_code="+f.parent.InviteCode, card.InviteURL)
		assert.True(t, strings.HasPrefix(card.QRCode, "data:image/png;base64,"))
	})

	t.Run("邀请二维码图片", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/user/invite/qrcode", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		img, err := png.Decode(w.Body)
		require.NoError(t, err)
		assert.Equal(t, 128, img.Bounds().Dx())
	})

	t.Run("用户不存在", func(t *testing.T) {
		_, resp := f.do(t, http.MethodGet, "/api/v1/user/profile", f.token(t, 9999), nil)
		assert.Equal(t, appErrors.ErrUserNotFound.Code, resp.Code)
	})
}

func TestHandler_Withdraw(t *testing.T) {
	f := newUserFixture(t, nil)
	token := f.token(t, f.parent.ID)

	_, resp := f.do(t, http.MethodPost, "/api/v1/user/withdrawals", token, gin.H{
		"amount":          "12.50",
		"payment_method":  models.WithdrawMethodWechat,
		"payment_account": "wx-parent",
	})
	require.Equal(t, 0, resp.Code, resp.Message)

	var created models.Withdrawal
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "12.50", created.Amount.StringFixed(2))
	assert.Equal(t, int8(models.WithdrawalStatusPending), created.Status)

	t.Run("收益概览扣除冻结金额", func(t *testing.T) {
		_, resp := f.do(t, http.MethodGet, "/api/v1/user/income", token, nil)
		require.Equal(t, 0, resp.Code, resp.Message)

		var stats withdrawal.IncomeStats
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		assert.Equal(t, "7.50", stats.Account.StringFixed(2))
		assert.Equal(t, "20.00", stats.TotalIncome.StringFixed(2))
	})

	t.Run("提现记录", func(t *testing.T) {
		_, resp := f.do(t, http.MethodGet, "/api/v1/user/withdrawals?status=0", token, nil)
		assert.Equal(t, int64(1), pageTotal(t, resp))

		_, resp = f.do(t, http.MethodGet, "/api/v1/user/withdrawals?status=3", token, nil)
		assert.Zero(t, pageTotal(t, resp))
	})

	t.Run("余额不足", func(t *testing.T) {
		_, resp := f.do(t, http.MethodPost, "/api/v1/user/withdrawals", token, gin.H{
			"amount":          "100",
			"payment_method":  models.WithdrawMethodAlipay,
			"payment_account": "parent@example.com",
		})
		assert.Equal(t, appErrors.ErrBalanceInsufficient.Code, resp.Code)
	})

	t.Run("收款方式无效", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/api/v1/user/withdrawals", token, gin.H{
			"amount":          "1",
			"payment_method":  "paypal",
			"payment_account": "x",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("状态参数无效", func(t *testing.T) {
		status, _ := f.do(t, http.MethodGet, "/api/v1/user/withdrawals?status=abc", token, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestHandler_WithdrawRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newUserFixture(t, client)
	token := f.token(t, f.parent.ID)
	body := gin.H{"amount": "1", "payment_method": models.WithdrawMethodBank, "payment_account": "6222"}

	for i := 0; i < 3; i++ {
		status, resp := f.do(t, http.MethodPost, "/api/v1/user/withdrawals", token, body)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, 0, resp.Code, resp.Message)
	}

	status, _ := f.do(t, http.MethodPost, "/api/v1/user/withdrawals", token, body)
	assert.Equal(t, http.StatusTooManyRequests, status)

	// 查询不受提现限流影响
	status, _ = f.do(t, http.MethodGet, "/api/v1/user/withdrawals", token, nil)
	assert.Equal(t, http.StatusOK, status)

	// 其他用户单独计数
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.child.ID).Update("account", "5.00").Error)
	_, resp := f.do(t, http.MethodPost, "/api/v1/user/withdrawals", f.token(t, f.child.ID), body)
	assert.Equal(t, 0, resp.Code, resp.Message)
}
