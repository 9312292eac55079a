// 软件包重排提供了 DashScope 文本重排模型.
package rerank

import (
	"context"
)

// 默认重排参数
const (
	DefaultModel = "gte-rerank"

	// DefaultMaxDocuments gte-rerank 单次请求的文档上限
	DefaultMaxDocuments = 500
)

// Options 重排模型参数，绑定自 spring.ai.dashscope.rerank.options.
type Options struct {
	Model           string `yaml:"model"`
	TopN            *int   `yaml:"top-n"` // Return top N results
	ReturnDocuments *bool  `yaml:"return-documents"`
}

// DefaultOptions 返回默认重排参数.
func DefaultOptions() Options {
	return Options{Model: DefaultModel}
}

// Merge 用 override 中已设置的字段覆盖 o.
func (o Options) Merge(override *Options) Options {
	if override == nil {
		return o
	}
	out := o
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.TopN != nil {
		out.TopN = override.TopN
	}
	if override.ReturnDocuments != nil {
		out.ReturnDocuments = override.ReturnDocuments
	}
	return out
}

// 文档代表要重新排序的文件。
type Document struct {
	Text string `json:"text"`
	ID   string `json:"id,omitempty"`
}

// 重新排序请求代表着重新排序文件的请求 。
type RerankRequest struct {
	Query     string     `json:"query"`
	Documents []Document `json:"documents"`
	Options   *Options   `json:"-"`
}

// RerankResponse代表了由rerank请求产生的响应，结果按相关性降序.
type RerankResponse struct {
	ID      string         `json:"id,omitempty"`
	Model   string         `json:"model"`
	Results []RerankResult `json:"results"`
	Usage   RerankUsage    `json:"usage"`
}

// RerankResult代表单一被重新排序的文件.
type RerankResult struct {
	Index          int      `json:"index"`           // Original index in input
	RelevanceScore float64  `json:"relevance_score"` // 0-1 normalized score
	Document       Document `json:"document,omitempty"`
}

// RerankUsage代表使用统计.
type RerankUsage struct {
	TotalTokens int `json:"total_tokens,omitempty"`
}

// 提供方定义了统一的重排提供者接口.
type Provider interface {
	// 根据查询的关联性重新排序文档 。
	Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error)

	// RerankSimple是简单的再排的一种方便方法.
	RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)

	// 名称返回提供者名称 。
	Name() string

	// 最大文档返回所支持的最大文档数量 。
	MaxDocuments() int
}
