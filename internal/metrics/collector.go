// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/dashscope-starter/llm/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 基于 Prometheus 的模型调用指标收集器，同时实现 observability.Handler
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec

	componentsTotal *prometheus.CounterVec

	logger *zap.Logger
}

var _ observability.Handler = (*Collector)(nil)

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus.DefaultRegisterer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total number of DashScope model requests",
		},
		[]string{"operation", "model", "status"},
	)

	c.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "DashScope model request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation", "model"},
	)

	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"operation", "model", "type"}, // type: input, output
	)

	c.inFlight = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_requests_in_flight",
			Help:      "Number of in-flight model requests",
		},
		[]string{"operation", "model"},
	)

	c.componentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "components_assembled_total",
			Help:      "Components registered by the assembler",
		},
		[]string{"capability", "outcome"}, // outcome: registered, disabled, overridden, failed
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🤖 模型调用指标
// =============================================================================

// RecordModelRequest 记录一次模型调用
func (c *Collector) RecordModelRequest(operation, model, status string, duration time.Duration, inputTokens, outputTokens int) {
	c.requestsTotal.WithLabelValues(operation, model, status).Inc()
	c.requestDuration.WithLabelValues(operation, model).Observe(duration.Seconds())
	if inputTokens > 0 {
		c.tokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		c.tokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
	}
}

// RecordAssembly 记录装配决策
func (c *Collector) RecordAssembly(capability, outcome string) {
	c.componentsTotal.WithLabelValues(capability, outcome).Inc()
}

// OnStart 实现 observability.Handler
func (c *Collector) OnStart(ctx context.Context, o *observability.Observation) context.Context {
	op, model := labels(o)
	c.inFlight.WithLabelValues(op, model).Inc()
	return ctx
}

// OnStop 实现 observability.Handler
func (c *Collector) OnStop(_ context.Context, o *observability.Observation) {
	op, model := labels(o)
	c.inFlight.WithLabelValues(op, model).Dec()
	c.RecordModelRequest(op, model, o.Status(), o.Duration, o.PromptTokens, o.CompletionTokens)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func labels(o *observability.Observation) (operation, model string) {
	operation = o.LowCardinality["gen_ai.operation.name"]
	if operation == "" {
		operation = "unknown"
	}
	return operation, o.LowCardinality["gen_ai.request.model"]
}
