package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/dashscope-starter/llm/observability"
	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/llm/tools"
	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
)

const providerName = "dashscope"

// Prompt 一次对话调用的输入。Options 非 nil 时覆盖模型默认参数。
type Prompt struct {
	Messages []types.Message
	Options  *Options
}

// NewPrompt 以单条用户消息构造 Prompt
func NewPrompt(text string) Prompt {
	return Prompt{Messages: []types.Message{types.NewUserMessage(text)}}
}

// Response 对话结果，Usage 为所有工具轮次的累计用量
type Response struct {
	ID           string
	Model        string
	Message      types.Message
	FinishReason string
	Usage        dashscope.Usage
	ToolRounds   int
}

// Model DashScope 对话模型
type Model struct {
	api          *dashscope.API
	defaults     Options
	retryer      retry.Retryer
	toolManager  tools.ToolCallingManager
	observations observability.Registry
	logger       *zap.Logger

	mu         sync.RWMutex
	convention observability.ChatModelObservationConvention
}

// NewModel 创建对话模型。toolManager 可为 nil（不支持工具调用）；
// observations 为 nil 时使用 observability.Noop。
func NewModel(api *dashscope.API, opts Options, policy *retry.RetryPolicy, toolManager tools.ToolCallingManager, observations observability.Registry, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observations == nil {
		observations = observability.Noop
	}
	logger = logger.With(zap.String("component", "dashscope_chat_model"))
	return &Model{
		api:          api,
		defaults:     opts,
		retryer:      retry.NewBackoffRetryer(policy, logger),
		toolManager:  toolManager,
		observations: observations,
		logger:       logger,
	}
}

// API 返回底层客户端
func (m *Model) API() *dashscope.API { return m.api }

// DefaultOptions 返回模型默认参数
func (m *Model) DefaultOptions() Options { return m.defaults }

// ToolCallingManager 返回工具调用管理器，可能为 nil
func (m *Model) ToolCallingManager() tools.ToolCallingManager { return m.toolManager }

// ObservationRegistry 返回观测注册表
func (m *Model) ObservationRegistry() observability.Registry { return m.observations }

// SetObservationConvention 设置自定义观测约定
func (m *Model) SetObservationConvention(c observability.ChatModelObservationConvention) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convention = c
}

// ObservationConvention 返回当前的自定义观测约定，未设置时为 nil
func (m *Model) ObservationConvention() observability.ChatModelObservationConvention {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.convention
}

func (m *Model) conventionFor(info observability.RequestInfo) observability.Convention {
	if c := m.ObservationConvention(); c != nil && c.SupportsChat(info) {
		return c
	}
	return observability.DefaultChatConvention{}
}

// Call 执行对话。模型返回 tool_calls 且允许内部执行时，
// 执行工具并把结果追加到上下文后继续，直到模型给出最终回复。
func (m *Model) Call(ctx context.Context, prompt Prompt) (*Response, error) {
	opts := m.defaults.Merge(prompt.Options)
	toolDefs, err := m.resolveTools(opts)
	if err != nil {
		return nil, err
	}

	msgs := append([]types.Message(nil), prompt.Messages...)
	var usage dashscope.Usage

	for round := 0; ; round++ {
		resp, err := m.call(ctx, buildRequest(opts, msgs, toolDefs))
		if err != nil {
			return nil, err
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		if !resp.Message.HasToolCalls() || !opts.internalToolExecution() || m.toolManager == nil {
			return &Response{
				ID:           resp.ID,
				Model:        resp.Model,
				Message:      resp.Message,
				FinishReason: resp.FinishReason,
				Usage:        usage,
				ToolRounds:   round,
			}, nil
		}
		if round+1 >= opts.maxToolRounds() {
			return nil, fmt.Errorf("chat: tool execution exceeded %d rounds", opts.maxToolRounds())
		}

		m.logger.Debug("executing tool calls",
			zap.Int("round", round+1),
			zap.Int("calls", len(resp.Message.ToolCalls)))

		results := m.toolManager.ExecuteToolCalls(ctx, resp.Message.ToolCalls)
		msgs = append(msgs, resp.Message)
		for _, r := range results {
			msgs = append(msgs, r.ToMessage())
		}
	}
}

// Stream 流式对话。流式模式不执行工具，tool_calls 原样透传给调用方。
func (m *Model) Stream(ctx context.Context, prompt Prompt) (<-chan dashscope.ChatChunk, error) {
	opts := m.defaults.Merge(prompt.Options)
	toolDefs, err := m.resolveTools(opts)
	if err != nil {
		return nil, err
	}
	req := buildRequest(opts, prompt.Messages, toolDefs)

	if m.observations.IsNoop() {
		return m.api.ChatStream(ctx, req)
	}

	info := requestInfo(req)
	o := observability.NewObservation(m.conventionFor(info), info)
	obsCtx := m.observations.Start(ctx, o)
	upstream, err := m.api.ChatStream(obsCtx, req)
	if err != nil {
		o.Err = err
		m.observations.Stop(obsCtx, o)
		return nil, err
	}

	out := make(chan dashscope.ChatChunk)
	go func() {
		defer close(out)
		defer m.observations.Stop(obsCtx, o)
		for chunk := range upstream {
			if chunk.Usage != nil {
				o.PromptTokens = chunk.Usage.InputTokens
				o.CompletionTokens = chunk.Usage.OutputTokens
			}
			if chunk.Err != nil {
				o.Err = chunk.Err
			}
			select {
			case <-ctx.Done():
				o.Err = ctx.Err()
				return
			case out <- chunk:
			}
		}
	}()
	return out, nil
}

func (m *Model) resolveTools(opts Options) ([]types.ToolSchema, error) {
	if len(opts.ToolNames) == 0 {
		return nil, nil
	}
	if m.toolManager == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "tool names set but no tool calling manager configured")
	}
	return m.toolManager.ResolveToolDefinitions(opts.ToolNames)
}

// call 在一次观测中执行带重试的请求
func (m *Model) call(ctx context.Context, req dashscope.ChatRequest) (*dashscope.ChatResponse, error) {
	info := requestInfo(req)
	o := observability.NewObservation(m.conventionFor(info), info)
	return observability.Observe(ctx, m.observations, o, func(ctx context.Context) (*dashscope.ChatResponse, error) {
		resp, err := retry.DoWithResultTyped(m.retryer, ctx, func() (*dashscope.ChatResponse, error) {
			return m.api.Chat(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		o.PromptTokens = resp.Usage.InputTokens
		o.CompletionTokens = resp.Usage.OutputTokens
		return resp, nil
	})
}

func buildRequest(opts Options, msgs []types.Message, toolDefs []types.ToolSchema) dashscope.ChatRequest {
	return dashscope.ChatRequest{
		Model:             opts.Model,
		Messages:          msgs,
		Temperature:       opts.Temperature,
		TopP:              opts.TopP,
		TopK:              opts.TopK,
		Seed:              opts.Seed,
		MaxTokens:         opts.MaxTokens,
		Stop:              opts.Stop,
		EnableSearch:      opts.EnableSearch,
		RepetitionPenalty: opts.RepetitionPenalty,
		Tools:             toolDefs,
	}
}

func requestInfo(req dashscope.ChatRequest) observability.RequestInfo {
	return observability.RequestInfo{
		Operation:   observability.OperationChat,
		Provider:    providerName,
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		InputCount:  len(req.Messages),
	}
}
