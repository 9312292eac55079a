package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/BaSui01/dashscope-starter/llm"

// MetricsHandler 基于 OpenTelemetry Meter 的指标处理器
type MetricsHandler struct {
	requestTotal    metric.Int64Counter
	errorTotal      metric.Int64Counter
	tokenTotal      metric.Int64Counter
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

var _ Handler = (*MetricsHandler)(nil)

// NewMetricsHandler 使用全局 MeterProvider 创建指标处理器
func NewMetricsHandler() (*MetricsHandler, error) {
	return NewMetricsHandlerWithMeter(otel.Meter(instrumentationName))
}

// NewMetricsHandlerWithMeter 使用指定 Meter 创建指标处理器
func NewMetricsHandlerWithMeter(meter metric.Meter) (*MetricsHandler, error) {
	m := &MetricsHandler{}
	var err error

	m.requestTotal, err = meter.Int64Counter("gen_ai.client.request.total",
		metric.WithDescription("Total number of model requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	m.errorTotal, err = meter.Int64Counter("gen_ai.client.error.total",
		metric.WithDescription("Total number of failed model requests"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}

	m.tokenTotal, err = meter.Int64Counter("gen_ai.client.token.usage",
		metric.WithDescription("Tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.requestDuration, err = meter.Float64Histogram("gen_ai.client.operation.duration",
		metric.WithDescription("Model operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	if err != nil {
		return nil, err
	}

	m.activeRequests, err = meter.Int64UpDownCounter("gen_ai.client.request.active",
		metric.WithDescription("Number of in-flight model requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// OnStart 实现 Handler
func (m *MetricsHandler) OnStart(ctx context.Context, o *Observation) context.Context {
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(lowCardinalityAttrs(o)...))
	return ctx
}

// OnStop 实现 Handler
func (m *MetricsHandler) OnStop(ctx context.Context, o *Observation) {
	attrs := lowCardinalityAttrs(o)
	m.activeRequests.Add(ctx, -1, metric.WithAttributes(attrs...))

	withStatus := append(attrs, attribute.String("status", o.Status()))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(withStatus...))
	m.requestDuration.Record(ctx, o.Duration.Seconds(), metric.WithAttributes(withStatus...))

	if o.Err != nil {
		m.errorTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if o.PromptTokens > 0 {
		m.tokenTotal.Add(ctx, int64(o.PromptTokens),
			metric.WithAttributes(append(attrs, attribute.String("gen_ai.token.type", "input"))...))
	}
	if o.CompletionTokens > 0 {
		m.tokenTotal.Add(ctx, int64(o.CompletionTokens),
			metric.WithAttributes(append(attrs, attribute.String("gen_ai.token.type", "output"))...))
	}
}

func lowCardinalityAttrs(o *Observation) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(o.LowCardinality)+1)
	for k, v := range o.LowCardinality {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
