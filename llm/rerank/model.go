package rerank

import (
	"context"
	"fmt"

	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
)

// Model 使用 DashScope 文本重排服务.
type Model struct {
	api      *dashscope.API
	defaults Options
	retryer  retry.Retryer
	logger   *zap.Logger
}

var _ Provider = (*Model)(nil)

// NewModel 创建重排模型.
func NewModel(api *dashscope.API, opts Options, policy *retry.RetryPolicy, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "dashscope_rerank_model"))
	return &Model{
		api:      api,
		defaults: opts,
		retryer:  retry.NewBackoffRetryer(policy, logger),
		logger:   logger,
	}
}

func (m *Model) Name() string            { return "dashscope-rerank" }
func (m *Model) MaxDocuments() int       { return DefaultMaxDocuments }
func (m *Model) DefaultOptions() Options { return m.defaults }
func (m *Model) API() *dashscope.API     { return m.api }

// Rerank 对文档按与查询的相关性重新排序.
func (m *Model) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	if req == nil || req.Query == "" || len(req.Documents) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "query and documents are required")
	}
	if len(req.Documents) > m.MaxDocuments() {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("too many documents: %d > %d", len(req.Documents), m.MaxDocuments()))
	}
	opts := m.defaults.Merge(req.Options)

	texts := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		texts[i] = d.Text
	}

	resp, err := retry.DoWithResultTyped(m.retryer, ctx, func() (*dashscope.RerankResponse, error) {
		return m.api.Rerank(ctx, dashscope.RerankRequest{
			Model:           opts.Model,
			Query:           req.Query,
			Documents:       texts,
			TopN:            opts.TopN,
			ReturnDocuments: opts.ReturnDocuments != nil && *opts.ReturnDocuments,
		})
	})
	if err != nil {
		return nil, err
	}

	out := &RerankResponse{
		ID:      resp.RequestID,
		Model:   opts.Model,
		Results: make([]RerankResult, 0, len(resp.Results)),
		Usage:   RerankUsage{TotalTokens: resp.Usage.TotalTokens},
	}
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(req.Documents) {
			return nil, fmt.Errorf("rerank: result index %d out of range", r.Index)
		}
		// 服务端只回传文本，ID 从原始输入补齐
		doc := req.Documents[r.Index]
		if r.Document != nil && r.Document.Text != "" {
			doc.Text = r.Document.Text
		}
		out.Results = append(out.Results, RerankResult{
			Index:          r.Index,
			RelevanceScore: r.RelevanceScore,
			Document:       doc,
		})
	}

	m.logger.Debug("reranked documents",
		zap.String("model", opts.Model),
		zap.Int("documents", len(req.Documents)),
		zap.Int("results", len(out.Results)))
	return out, nil
}

// RerankSimple 对纯文本列表重排. topN <= 0 时使用默认参数.
func (m *Model) RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	docs := make([]Document, len(documents))
	for i, d := range documents {
		docs[i] = Document{Text: d}
	}
	req := &RerankRequest{Query: query, Documents: docs}
	if topN > 0 {
		req.Options = &Options{TopN: &topN}
	}
	resp, err := m.Rerank(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}
