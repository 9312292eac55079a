package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/dashscope-starter/llm/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test", prometheus.NewRegistry(), zap.NewNop())

	assert.NotNil(t, collector.requestsTotal)
	assert.NotNil(t, collector.requestDuration)
	assert.NotNil(t, collector.tokensUsed)
	assert.NotNil(t, collector.inFlight)
}

func TestCollector_RecordModelRequest(t *testing.T) {
	collector := NewCollector("test", prometheus.NewRegistry(), zap.NewNop())

	collector.RecordModelRequest("chat", "qwen-plus", "success", 500*time.Millisecond, 100, 50)
	collector.RecordModelRequest("chat", "qwen-plus", "success", 200*time.Millisecond, 10, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.requestsTotal.WithLabelValues("chat", "qwen-plus", "success")))
	assert.Equal(t, 110.0, testutil.ToFloat64(collector.tokensUsed.WithLabelValues("chat", "qwen-plus", "input")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.tokensUsed.WithLabelValues("chat", "qwen-plus", "output")))
}

func TestCollector_AsObservationHandler(t *testing.T) {
	collector := NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
	reg := observability.NewRegistry(collector)

	o := observability.NewObservation(observability.DefaultEmbeddingConvention{},
		observability.RequestInfo{Operation: observability.OperationEmbedding, Model: "text-embedding-v2"})

	_, err := observability.Observe(context.Background(), reg, o, func(ctx context.Context) (int, error) {
		assert.Equal(t, 1.0, testutil.ToFloat64(collector.inFlight.WithLabelValues("embedding", "text-embedding-v2")))
		o.PromptTokens = 8
		return 0, errors.New("failed")
	})
	require.Error(t, err)

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.inFlight.WithLabelValues("embedding", "text-embedding-v2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.requestsTotal.WithLabelValues("embedding", "text-embedding-v2", "error")))
	assert.Equal(t, 8.0, testutil.ToFloat64(collector.tokensUsed.WithLabelValues("embedding", "text-embedding-v2", "input")))
}

func TestCollector_RecordAssembly(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector("dashscope", reg, zap.NewNop())

	collector.RecordAssembly("chat", "registered")
	collector.RecordAssembly("image", "disabled")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.componentsTotal.WithLabelValues("image", "disabled")))

	n, err := testutil.GatherAndCount(reg, "dashscope_components_assembled_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
