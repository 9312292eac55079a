package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type spanKey struct{}

// TracingHandler 为每次观测创建一个 OpenTelemetry Span
type TracingHandler struct {
	tracer trace.Tracer
	logger *zap.Logger
}

var _ Handler = (*TracingHandler)(nil)

// NewTracingHandler 创建追踪处理器；tracer 为 nil 时使用全局 TracerProvider
func NewTracingHandler(tracer trace.Tracer, logger *zap.Logger) *TracingHandler {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TracingHandler{
		tracer: tracer,
		logger: logger.With(zap.String("component", "observation_tracing")),
	}
}

// OnStart 实现 Handler
func (h *TracingHandler) OnStart(ctx context.Context, o *Observation) context.Context {
	attrs := make([]attribute.KeyValue, 0, len(o.LowCardinality)+len(o.HighCardinality))
	for k, v := range o.LowCardinality {
		attrs = append(attrs, attribute.String(k, v))
	}
	for k, v := range o.HighCardinality {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx, span := h.tracer.Start(ctx, o.ContextualName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	o.Put(spanKey{}, span)
	return ctx
}

// OnStop 实现 Handler
func (h *TracingHandler) OnStop(_ context.Context, o *Observation) {
	v, ok := o.Get(spanKey{})
	if !ok {
		h.logger.Debug("observation stopped without span", zap.String("name", o.ContextualName))
		return
	}
	span := v.(trace.Span)
	defer span.End()

	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", o.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", o.CompletionTokens),
		attribute.Float64("gen_ai.duration_ms", float64(o.Duration.Milliseconds())),
	)
	if o.Err != nil {
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Err.Error())
	}
}

// NewOTelRegistry 返回挂载了追踪与指标处理器的注册表，使用全局 OTel Provider
func NewOTelRegistry(logger *zap.Logger) (*HandlerRegistry, error) {
	mh, err := NewMetricsHandler()
	if err != nil {
		return nil, err
	}
	return NewRegistry(NewTracingHandler(nil, logger), mh), nil
}
