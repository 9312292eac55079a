package observability

import (
	"strconv"
)

// 操作类型
const (
	OperationChat      = "chat"
	OperationEmbedding = "embedding"
)

// RequestInfo 模型调用的可观测描述
type RequestInfo struct {
	Operation   string
	Provider    string
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Dimensions  *int
	InputCount  int
}

// Convention 决定 Observation 的名称与标签
type Convention interface {
	Name() string
	ContextualName(info RequestInfo) string
	LowCardinalityKeyValues(info RequestInfo) map[string]string
	HighCardinalityKeyValues(info RequestInfo) map[string]string
}

// ChatModelObservationConvention 对话模型使用的观测约定
type ChatModelObservationConvention interface {
	Convention
	SupportsChat(info RequestInfo) bool
}

// EmbeddingModelObservationConvention 向量模型使用的观测约定
type EmbeddingModelObservationConvention interface {
	Convention
	SupportsEmbedding(info RequestInfo) bool
}

// NewObservation 按约定构造 Observation；conv 为 nil 时只填充基础字段
func NewObservation(conv Convention, info RequestInfo) *Observation {
	if conv == nil {
		return &Observation{
			Name:           "gen_ai.client.operation",
			ContextualName: info.Operation + " " + info.Model,
			LowCardinality: baseKeyValues(info),
		}
	}
	return &Observation{
		Name:            conv.Name(),
		ContextualName:  conv.ContextualName(info),
		LowCardinality:  conv.LowCardinalityKeyValues(info),
		HighCardinality: conv.HighCardinalityKeyValues(info),
	}
}

func baseKeyValues(info RequestInfo) map[string]string {
	return map[string]string{
		"gen_ai.operation.name": info.Operation,
		"gen_ai.system":         info.Provider,
		"gen_ai.request.model":  info.Model,
	}
}

// DefaultChatConvention 默认对话观测约定
type DefaultChatConvention struct{}

var _ ChatModelObservationConvention = DefaultChatConvention{}

func (DefaultChatConvention) Name() string { return "gen_ai.client.operation" }

func (DefaultChatConvention) ContextualName(info RequestInfo) string {
	if info.Model == "" {
		return OperationChat
	}
	return OperationChat + " " + info.Model
}

func (DefaultChatConvention) LowCardinalityKeyValues(info RequestInfo) map[string]string {
	return baseKeyValues(info)
}

func (DefaultChatConvention) HighCardinalityKeyValues(info RequestInfo) map[string]string {
	kv := map[string]string{}
	if info.Temperature != nil {
		kv["gen_ai.request.temperature"] = strconv.FormatFloat(*info.Temperature, 'f', -1, 64)
	}
	if info.TopP != nil {
		kv["gen_ai.request.top_p"] = strconv.FormatFloat(*info.TopP, 'f', -1, 64)
	}
	if info.MaxTokens != nil {
		kv["gen_ai.request.max_tokens"] = strconv.Itoa(*info.MaxTokens)
	}
	return kv
}

func (DefaultChatConvention) SupportsChat(info RequestInfo) bool {
	return info.Operation == OperationChat
}

// DefaultEmbeddingConvention 默认向量观测约定
type DefaultEmbeddingConvention struct{}

var _ EmbeddingModelObservationConvention = DefaultEmbeddingConvention{}

func (DefaultEmbeddingConvention) Name() string { return "gen_ai.client.operation" }

func (DefaultEmbeddingConvention) ContextualName(info RequestInfo) string {
	if info.Model == "" {
		return OperationEmbedding
	}
	return OperationEmbedding + " " + info.Model
}

func (DefaultEmbeddingConvention) LowCardinalityKeyValues(info RequestInfo) map[string]string {
	return baseKeyValues(info)
}

func (DefaultEmbeddingConvention) HighCardinalityKeyValues(info RequestInfo) map[string]string {
	kv := map[string]string{"gen_ai.request.input_count": strconv.Itoa(info.InputCount)}
	if info.Dimensions != nil {
		kv["gen_ai.request.embedding.dimensions"] = strconv.Itoa(*info.Dimensions)
	}
	return kv
}

func (DefaultEmbeddingConvention) SupportsEmbedding(info RequestInfo) bool {
	return info.Operation == OperationEmbedding
}
