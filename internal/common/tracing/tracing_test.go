// Package tracing 提供 OpenTelemetry 分布式追踪单元测试
package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder 安装记录型 TracerProvider，测试结束后恢复
func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestInit(t *testing.T) {
	t.Run("禁用追踪", func(t *testing.T) {
		tracer, err := Init(&Config{ServiceName: "disabled", Enabled: false})
		require.NoError(t, err)
		require.NotNil(t, tracer)
		assert.Nil(t, tracer.provider)
		assert.Same(t, tracer, GetTracer())

		_, span := tracer.StartSpan(context.Background(), "noop", WithUserID(1))
		assert.False(t, span.IsRecording())
		span.End()
		assert.NoError(t, tracer.Shutdown(context.Background()))
	})

	t.Run("stdout 导出器", func(t *testing.T) {
		prev := otel.GetTracerProvider()
		t.Cleanup(func() { otel.SetTracerProvider(prev) })

		tracer, err := Init(&Config{ServiceName: "test-service", SampleRate: 0.5, Enabled: true})
		require.NoError(t, err)
		require.NotNil(t, tracer.provider)
		assert.Equal(t, "test-service", tracer.config.ServiceName)
		assert.NoError(t, tracer.Shutdown(context.Background()))
	})
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), newSampler(0).Description())
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased")
}

func TestStartEnd(t *testing.T) {
	recorder := useRecorder(t)

	t.Run("成功的 span", func(t *testing.T) {
		ctx, span := Start(context.Background(), "referral.Register", WithUserID(7))
		AddEvent(ctx, "registered")
		SetAttributes(ctx, WithOperation("register"))
		End(span, nil)

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		assert.Equal(t, "referral.Register", ended[0].Name())
		assert.Equal(t, codes.Unset, ended[0].Status().Code)
		assert.Len(t, ended[0].Events(), 1)
	})

	t.Run("失败的 span", func(t *testing.T) {
		_, span := Start(context.Background(), "withdrawal.Apply", WithWithdrawalID(3))
		End(span, errors.New("insufficient"))

		ended := recorder.Ended()
		require.Len(t, ended, 2)
		assert.Equal(t, codes.Error, ended[1].Status().Code)
		assert.Equal(t, "insufficient", ended[1].Status().Description)
	})
}

func TestAttributeHelpers(t *testing.T) {
	assert.Equal(t, int64(1), WithUserID(1).Value.AsInt64())
	assert.Equal(t, int64(2), WithOrderID(2).Value.AsInt64())
	assert.Equal(t, int64(3), WithWithdrawalID(3).Value.AsInt64())
	assert.Equal(t, "settle", WithOperation("settle").Value.AsString())
	assert.Equal(t, "settlement.batch_no", string(AttrBatchNo))
}
