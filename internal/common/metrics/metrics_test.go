// Package metrics 提供 Prometheus 指标收集单元测试
package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// counterValue 汇总指定指标在给定标签下的计数
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metricLoop
				}
			}
			if metric.GetCounter() != nil {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return New("test", reg), reg
}

func TestInit_Once(t *testing.T) {
	m1 := Init("")
	m2 := Init("ignored")
	require.NotNil(t, m1)
	assert.Same(t, m1, m2)
	assert.Same(t, m1, GetMetrics())
}

func TestMetrics_RecordRegistration(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordRegistration(true)
	m.RecordRegistration(true)
	m.RecordRegistration(false)

	assert.Equal(t, 2.0, counterValue(t, reg, "test_referral_registrations_total", map[string]string{"origin": RegistrationWithInviter}))
	assert.Equal(t, 1.0, counterValue(t, reg, "test_referral_registrations_total", map[string]string{"origin": RegistrationRoot}))
}

func TestMetrics_RecordAllocation(t *testing.T) {
	m, reg := newTestMetrics(t)

	t.Run("失败同时计入失败总数", func(t *testing.T) {
		m.RecordAllocation(AllocationFailed)
		assert.Equal(t, 1.0, counterValue(t, reg, "test_referral_allocation_failures_total", nil))
	})

	t.Run("成功与跳过不计入失败", func(t *testing.T) {
		m.RecordAllocation(AllocationCreated)
		m.RecordAllocation(AllocationSkipped)
		assert.Equal(t, 1.0, counterValue(t, reg, "test_referral_allocation_failures_total", nil))
		assert.Equal(t, 3.0, counterValue(t, reg, "test_referral_allocations_total", nil))
	})
}

func TestMetrics_RecordSettlementAndWithdrawal(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordSettlement("manual", 3, 12.5)
	m.RecordSettlement("scheduler", 1, 0.5)
	m.RecordWithdrawal("apply")
	m.RecordWithdrawal("reject")

	assert.Equal(t, 3.0, counterValue(t, reg, "test_settlement_records_total", map[string]string{"trigger": "manual"}))
	assert.Equal(t, 13.0, counterValue(t, reg, "test_settlement_amount_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "test_withdrawals_total", map[string]string{"action": "reject"}))
}

func TestMetrics_RecordCache(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordCacheHit("report")
	m.RecordCacheMiss("report")
	m.RecordCacheMiss("report")

	assert.Equal(t, 1.0, counterValue(t, reg, "test_cache_hits_total", nil))
	assert.Equal(t, 2.0, counterValue(t, reg, "test_cache_misses_total", nil))
}

func TestMetrics_Middleware(t *testing.T) {
	m, reg := newTestMetrics(t)

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, "metrics")
	})

	t.Run("记录请求指标", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/test", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1.0, counterValue(t, reg, "test_http_requests_total", map[string]string{"path": "/api/test", "status": "200"}))
	})

	t.Run("跳过/metrics端点", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/metrics", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0.0, counterValue(t, reg, "test_http_requests_total", map[string]string{"path": "/metrics"}))
	})
}

func TestHandler(t *testing.T) {
	router := gin.New()
	router.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_")
}
