package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// 默认向量参数
const (
	DefaultModel = "text-embedding-v1"

	// DefaultBatchSize 单次请求的最大文本数（text-embedding-v1/v2 上限 25）
	DefaultBatchSize = 25

	// DefaultConcurrency 并发批次上限
	DefaultConcurrency = 4
)

// MetadataMode 决定文档元数据中哪些字段参与向量化.
type MetadataMode string

const (
	MetadataModeAll       MetadataMode = "ALL"
	MetadataModeEmbed     MetadataMode = "EMBED"
	MetadataModeInference MetadataMode = "INFERENCE"
	MetadataModeNone      MetadataMode = "NONE"
)

// ParseMetadataMode 大小写不敏感地解析元数据模式.
func ParseMetadataMode(s string) (MetadataMode, error) {
	switch m := MetadataMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case MetadataModeAll, MetadataModeEmbed, MetadataModeInference, MetadataModeNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown metadata mode %q", s)
}

// UnmarshalText 实现 encoding.TextUnmarshaler，配置绑定时使用.
func (m *MetadataMode) UnmarshalText(text []byte) error {
	parsed, err := ParseMetadataMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// InputType 指定嵌入优化的输入类型.
type InputType string

const (
	InputTypeQuery    InputType = "query"    // For search queries
	InputTypeDocument InputType = "document" // For documents to be indexed
)

// Options 向量模型参数，绑定自 spring.ai.dashscope.embedding.options.
type Options struct {
	Model      string    `yaml:"model"`
	Dimensions *int      `yaml:"dimensions"`
	TextType   InputType `yaml:"text-type"`
	BatchSize  int       `yaml:"batch-size"`
}

// DefaultOptions 返回默认向量参数.
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
	if override.Dimensions != nil {
		out.Dimensions = override.Dimensions
	}
	if override.TextType != "" {
		out.TextType = override.TextType
	}
	if override.BatchSize > 0 {
		out.BatchSize = override.BatchSize
	}
	return out
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}

// EmbeddingRequest 表示生成嵌入的请求.
type EmbeddingRequest struct {
	Inputs  []string
	Options *Options
}

// EmbeddingResponse 表示嵌入请求的响应，Embeddings 与输入一一对应.
type EmbeddingResponse struct {
	Model      string
	Embeddings [][]float32
	Usage      EmbeddingUsage
}

// EmbeddingUsage 表示嵌入请求的 Token 用量.
type EmbeddingUsage struct {
	PromptTokens int
	TotalTokens  int
}

// Document 待向量化的文档.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any

	// ExcludedEmbedMetadataKeys 在 EMBED 模式下不参与向量化的元数据
	ExcludedEmbedMetadataKeys []string
	// ExcludedInferenceMetadataKeys 在 INFERENCE 模式下不参与的元数据
	ExcludedInferenceMetadataKeys []string
}

// FormattedContent 按元数据模式拼接文本，元数据按键排序保证稳定.
func (d Document) FormattedContent(mode MetadataMode) string {
	var excluded []string
	switch mode {
	case MetadataModeNone:
		return d.Text
	case MetadataModeEmbed:
		excluded = d.ExcludedEmbedMetadataKeys
	case MetadataModeInference:
		excluded = d.ExcludedInferenceMetadataKeys
	}

	skip := make(map[string]bool, len(excluded))
	for _, k := range excluded {
		skip[k] = true
	}
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return d.Text
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, d.Metadata[k])
	}
	b.WriteString("\n")
	b.WriteString(d.Text)
	return b.String()
}

// Provider 向量模型接口. 多个实现同时注册时，DashScope 模型为 primary.
type Provider interface {
	Call(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, docs []Document) ([][]float32, error)
	Dimensions(ctx context.Context) (int, error)
}
