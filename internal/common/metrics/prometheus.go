// Package metrics 提供 Prometheus 指标收集
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 分账结果标签
const (
	AllocationCreated = "created"
	AllocationSkipped = "skipped"
	AllocationFailed  = "failed"
)

// 注册来源标签
const (
	RegistrationWithInviter = "with_inviter"
	RegistrationRoot        = "root"
)

// 提现动作标签
const (
	WithdrawalApply   = "apply"
	WithdrawalApprove = "approve"
	WithdrawalReject  = "reject"
	WithdrawalPay     = "pay"
)

// Metrics 指标收集器
//
// 记录方法允许 nil 接收者，未启用指标时直接跳过。
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	cacheHitsTotal       *prometheus.CounterVec
	cacheMissesTotal     *prometheus.CounterVec

	registrationsTotal      *prometheus.CounterVec
	allocationsTotal        *prometheus.CounterVec
	allocationFailuresTotal prometheus.Counter
	settledRecordsTotal     *prometheus.CounterVec
	settledAmountTotal      *prometheus.CounterVec
	withdrawalsTotal        *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// New 在指定注册器上创建指标收集器
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "referral_ledger"
	}
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
		registrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "referral_registrations_total",
				Help:      "Total number of registered users by origin",
			},
			[]string{"origin"},
		),
		allocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "referral_allocations_total",
				Help:      "Total number of order allocation passes by result",
			},
			[]string{"result"},
		),
		allocationFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "referral_allocation_failures_total",
				Help:      "Total number of failed order allocation passes",
			},
		),
		settledRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_records_total",
				Help:      "Total number of settled allocation records",
			},
			[]string{"trigger"},
		),
		settledAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_amount_total",
				Help:      "Total commission credited by settlement",
			},
			[]string{"trigger"},
		),
		withdrawalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "withdrawals_total",
				Help:      "Total number of withdrawal workflow actions",
			},
			[]string{"action"},
		),
	}
}

// Init 在默认注册器上初始化指标收集器，仅首次调用生效
func Init(namespace string) *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(namespace, prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// GetMetrics 获取默认指标收集器
func GetMetrics() *Metrics {
	return Init("")
}

// Middleware 返回 Gin 中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()

		c.Next()

		m.httpRequestsInFlight.Dec()
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP 处理器
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordRegistration 记录注册
func (m *Metrics) RecordRegistration(withInviter bool) {
	if m == nil {
		return
	}
	origin := RegistrationRoot
	if withInviter {
		origin = RegistrationWithInviter
	}
	m.registrationsTotal.WithLabelValues(origin).Inc()
}

// RecordAllocation 记录一次分账处理结果
func (m *Metrics) RecordAllocation(result string) {
	if m == nil {
		return
	}
	m.allocationsTotal.WithLabelValues(result).Inc()
	if result == AllocationFailed {
		m.allocationFailuresTotal.Inc()
	}
}

// RecordSettlement 记录结算
func (m *Metrics) RecordSettlement(trigger string, records int, amount float64) {
	if m == nil {
		return
	}
	m.settledRecordsTotal.WithLabelValues(trigger).Add(float64(records))
	m.settledAmountTotal.WithLabelValues(trigger).Add(amount)
}

// RecordWithdrawal 记录提现动作（apply/approve/reject/pay）
func (m *Metrics) RecordWithdrawal(action string) {
	if m == nil {
		return
	}
	m.withdrawalsTotal.WithLabelValues(action).Inc()
}
