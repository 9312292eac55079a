package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/dashscope-starter/llm/observability"
	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Model DashScope 向量模型.
type Model struct {
	api          *dashscope.API
	metadataMode MetadataMode
	defaults     Options
	retryer      retry.Retryer
	observations observability.Registry
	logger       *zap.Logger

	mu         sync.RWMutex
	convention observability.EmbeddingModelObservationConvention
}

var _ Provider = (*Model)(nil)

// NewModel 创建向量模型. mode 为空时使用 EMBED.
func NewModel(api *dashscope.API, mode MetadataMode, opts Options, policy *retry.RetryPolicy, observations observability.Registry, logger *zap.Logger) *Model {
	if mode == "" {
		mode = MetadataModeEmbed
	}
	if observations == nil {
		observations = observability.Noop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "dashscope_embedding_model"))
	return &Model{
		api:          api,
		metadataMode: mode,
		defaults:     opts,
		retryer:      retry.NewBackoffRetryer(policy, logger),
		observations: observations,
		logger:       logger,
	}
}

func (m *Model) API() *dashscope.API                         { return m.api }
func (m *Model) MetadataMode() MetadataMode                  { return m.metadataMode }
func (m *Model) DefaultOptions() Options                     { return m.defaults }
func (m *Model) ObservationRegistry() observability.Registry { return m.observations }

// SetObservationConvention 设置自定义观测约定.
func (m *Model) SetObservationConvention(c observability.EmbeddingModelObservationConvention) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convention = c
}

// ObservationConvention 返回自定义观测约定，未设置时为 nil.
func (m *Model) ObservationConvention() observability.EmbeddingModelObservationConvention {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.convention
}

func (m *Model) conventionFor(info observability.RequestInfo) observability.Convention {
	if c := m.ObservationConvention(); c != nil && c.SupportsEmbedding(info) {
		return c
	}
	return observability.DefaultEmbeddingConvention{}
}

// Call 嵌入一组文本. 输入按 BatchSize 分批并发请求，结果保持输入顺序.
func (m *Model) Call(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if len(req.Inputs) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "at least one input is required")
	}
	opts := m.defaults.Merge(req.Options)
	size := opts.batchSize()

	out := &EmbeddingResponse{Model: opts.Model, Embeddings: make([][]float32, len(req.Inputs))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultConcurrency)
	for start := 0; start < len(req.Inputs); start += size {
		end := min(start+size, len(req.Inputs))
		offset, batch := start, req.Inputs[start:end]
		g.Go(func() error {
			resp, err := m.embedBatch(gctx, opts, batch)
			if err != nil {
				return fmt.Errorf("embedding batch [%d:%d]: %w", offset, offset+len(batch), err)
			}
			mu.Lock()
			defer mu.Unlock()
			copy(out.Embeddings[offset:], resp.Embeddings)
			out.Usage.PromptTokens += resp.Usage.InputTokens
			out.Usage.TotalTokens += resp.Usage.TotalTokens
			if resp.Model != "" {
				out.Model = resp.Model
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.logger.Debug("embedded inputs",
		zap.String("model", out.Model),
		zap.Int("inputs", len(req.Inputs)),
		zap.Int("batches", (len(req.Inputs)+size-1)/size))
	return out, nil
}

func (m *Model) embedBatch(ctx context.Context, opts Options, batch []string) (*dashscope.EmbeddingResponse, error) {
	info := observability.RequestInfo{
		Operation:  observability.OperationEmbedding,
		Provider:   "dashscope",
		Model:      opts.Model,
		Dimensions: opts.Dimensions,
		InputCount: len(batch),
	}
	o := observability.NewObservation(m.conventionFor(info), info)
	return observability.Observe(ctx, m.observations, o, func(ctx context.Context) (*dashscope.EmbeddingResponse, error) {
		resp, err := retry.DoWithResultTyped(m.retryer, ctx, func() (*dashscope.EmbeddingResponse, error) {
			return m.api.Embeddings(ctx, dashscope.EmbeddingRequest{
				Model:      opts.Model,
				Texts:      batch,
				Dimensions: opts.Dimensions,
				TextType:   string(opts.TextType),
			})
		})
		if err != nil {
			return nil, err
		}
		o.PromptTokens = resp.Usage.InputTokens
		return resp, nil
	})
}

// Embed 嵌入单个文本.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.Call(ctx, EmbeddingRequest{Inputs: []string{text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

// EmbedQuery 以 query 类型嵌入检索语句.
func (m *Model) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	resp, err := m.Call(ctx, EmbeddingRequest{
		Inputs:  []string{query},
		Options: &Options{TextType: InputTypeQuery},
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

// EmbedDocuments 按模型的元数据模式格式化文档后以 document 类型嵌入.
func (m *Model) EmbedDocuments(ctx context.Context, docs []Document) ([][]float32, error) {
	inputs := make([]string, len(docs))
	for i, d := range docs {
		inputs[i] = d.FormattedContent(m.metadataMode)
	}
	resp, err := m.Call(ctx, EmbeddingRequest{
		Inputs:  inputs,
		Options: &Options{TextType: InputTypeDocument},
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// Dimensions 返回配置的维度；未配置时嵌入一个探测文本得到实际维度.
func (m *Model) Dimensions(ctx context.Context) (int, error) {
	if m.defaults.Dimensions != nil {
		return *m.defaults.Dimensions, nil
	}
	vec, err := m.Embed(ctx, "Hello World")
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}
