package dashscope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/BaSui01/dashscope-starter/transport"
	"github.com/BaSui01/dashscope-starter/types"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.uber.org/zap"
)

// API is the DashScope client for chat completion, text embedding and rerank.
// Chat and embedding go through the OpenAI-compatible endpoint; rerank uses
// the native service endpoint.
type API struct {
	*base
	chat   openai.Client
	stream openai.Client
}

// NewAPI creates the API client.
func NewAPI(baseURL, apiKey string, opts ...Option) (*API, error) {
	b, err := newBase(baseURL, apiKey, "dashscope_api", opts)
	if err != nil {
		return nil, err
	}
	return &API{
		base:   b,
		chat:   openai.NewClient(b.openAIOptions(b.client)...),
		stream: openai.NewClient(b.openAIOptions(b.asyncClient)...),
	}, nil
}

func (b *base) openAIOptions(client *http.Client) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(b.apiKey),
		option.WithBaseURL(b.baseURL + compatibleModePath),
		option.WithHTTPClient(client),
		option.WithMaxRetries(0), // retries belong to the model's retry policy
		option.WithMiddleware(errorMiddleware(b.errorHandler)),
	}
	if b.workspaceID != "" {
		opts = append(opts, option.WithHeader(headerWorkspace, b.workspaceID))
	}
	return opts
}

func errorMiddleware(h transport.ResponseErrorHandler) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		resp, err := next(req)
		if err != nil {
			return resp, err
		}
		if h.HasError(resp) {
			defer resp.Body.Close()
			return nil, h.HandleError(resp)
		}
		return resp, nil
	}
}

// upstreamError normalizes errors surfaced by the OpenAI SDK.
func upstreamError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		requestID := ""
		if apiErr.Response != nil {
			requestID = apiErr.Response.Header.Get("X-Request-Id")
		}
		return transport.MapHTTPError(apiErr.StatusCode, apiErr.Code, apiErr.Message, requestID, "dashscope").WithCause(err)
	}
	return err
}

// =============================================================================
// Chat
// =============================================================================

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model             string
	Messages          []types.Message
	Temperature       *float64
	TopP              *float64
	TopK              *int
	Seed              *int
	MaxTokens         *int
	Stop              []string
	EnableSearch      *bool
	RepetitionPenalty *float64
	Tools             []types.ToolSchema
}

// ChatResponse is a chat completion result.
type ChatResponse struct {
	ID           string
	Model        string
	Message      types.Message
	FinishReason string
	Usage        Usage
}

// ChatChunk is one streamed delta. Err is set on the final chunk when the stream fails.
type ChatChunk struct {
	ID           string
	Delta        string
	ToolCalls    []types.ToolCall
	FinishReason string
	Usage        *Usage
	Err          error
}

// Chat performs a chat completion.
func (a *API) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params, opts, err := chatParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := a.chat.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return nil, upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "no choices in response").WithProvider("dashscope")
	}

	choice := resp.Choices[0]
	msg := types.NewAssistantMessage(choice.Message.Content)
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Message:      msg,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// ChatStream performs a streaming chat completion over the async client.
// The channel is closed when the stream ends or ctx is done.
func (a *API) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	params, opts, err := chatParams(req)
	if err != nil {
		return nil, err
	}
	opts = append(opts, option.WithJSONSet("stream_options", map[string]any{"include_usage": true}))

	stream := a.stream.Chat.Completions.NewStreaming(ctx, params, opts...)
	ch := make(chan ChatChunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			out := ChatChunk{ID: chunk.ID}
			if chunk.Usage.TotalTokens > 0 {
				out.Usage = &Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:  int(chunk.Usage.TotalTokens),
				}
			}
			if len(chunk.Choices) > 0 {
				c := chunk.Choices[0]
				out.Delta = c.Delta.Content
				out.FinishReason = string(c.FinishReason)
				for _, tc := range c.Delta.ToolCalls {
					out.ToolCalls = append(out.ToolCalls, types.ToolCall{
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: json.RawMessage(tc.Function.Arguments),
					})
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- out:
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case <-ctx.Done():
			case ch <- ChatChunk{Err: upstreamError(err)}:
			}
		}
	}()
	return ch, nil
}

func chatParams(req ChatRequest) (openai.ChatCompletionNewParams, []option.RequestOption, error) {
	if req.Model == "" {
		return openai.ChatCompletionNewParams{}, nil, types.NewError(types.ErrInvalidRequest, "model is required")
	}
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = param.NewOpt(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = param.NewOpt(int64(*req.MaxTokens))
	}
	if req.Seed != nil {
		params.Seed = param.NewOpt(int64(*req.Seed))
	}
	for _, tool := range req.Tools {
		fn := openai.FunctionDefinitionParam{Name: tool.Name}
		if tool.Description != "" {
			fn.Description = param.NewOpt(tool.Description)
		}
		if len(tool.Parameters) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
				return openai.ChatCompletionNewParams{}, nil, fmt.Errorf("tool %s: invalid parameters schema: %w", tool.Name, err)
			}
			fn.Parameters = schema
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{Function: fn})
	}

	// DashScope extensions outside the OpenAI schema.
	var opts []option.RequestOption
	if len(req.Stop) > 0 {
		opts = append(opts, option.WithJSONSet("stop", req.Stop))
	}
	if req.TopK != nil {
		opts = append(opts, option.WithJSONSet("top_k", *req.TopK))
	}
	if req.EnableSearch != nil {
		opts = append(opts, option.WithJSONSet("enable_search", *req.EnableSearch))
	}
	if req.RepetitionPenalty != nil {
		opts = append(opts, option.WithJSONSet("repetition_penalty", *req.RepetitionPenalty))
	}
	return params, opts, nil
}

func convertMessages(msgs []types.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if !m.Role.Valid() {
			return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unsupported message role %q", m.Role))
		}
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case types.RoleAssistant:
			if !m.HasToolCalls() {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			am := &openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				am.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: param.NewOpt(m.Content)}
			}
			for _, tc := range m.ToolCalls {
				am.ToolCalls = append(am.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: am})
		case types.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out, nil
}

// =============================================================================
// Embedding
// =============================================================================

// EmbeddingRequest is a text embedding request.
type EmbeddingRequest struct {
	Model      string
	Texts      []string
	Dimensions *int
	// TextType is "document" or "query"
	TextType string
}

// EmbeddingResponse holds one vector per input text, in input order.
type EmbeddingResponse struct {
	Model      string
	Embeddings [][]float32
	Usage      Usage
}

// Embeddings embeds a batch of texts.
func (a *API) Embeddings(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if len(req.Texts) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "at least one text is required")
	}

	params := openai.EmbeddingNewParams{
		Model:          req.Model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if req.Dimensions != nil {
		params.Dimensions = openai.Int(int64(*req.Dimensions))
	}
	var opts []option.RequestOption
	if req.TextType != "" {
		opts = append(opts, option.WithJSONSet("text_type", req.TextType))
	}

	resp, err := a.chat.Embeddings.New(ctx, params, opts...)
	if err != nil {
		return nil, upstreamError(err)
	}

	vecs := make([][]float32, len(req.Texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(req.Texts)) {
			return nil, fmt.Errorf("dashscope: unexpected embedding index %d for batch size %d", idx, len(req.Texts))
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vecs[idx] = vec
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("dashscope: missing embedding for index %d", i)
		}
	}

	a.logger.Debug("embeddings created", zap.String("model", resp.Model), zap.Int("count", len(vecs)))
	return &EmbeddingResponse{
		Model:      resp.Model,
		Embeddings: vecs,
		Usage: Usage{
			InputTokens: int(resp.Usage.PromptTokens),
			TotalTokens: int(resp.Usage.TotalTokens),
		},
	}, nil
}

// =============================================================================
// Rerank
// =============================================================================

// RerankRequest is a text rerank request.
type RerankRequest struct {
	Model           string
	Query           string
	Documents       []string
	TopN            *int
	ReturnDocuments bool
}

// RerankResult is one scored document.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
	Document       *struct {
		Text string `json:"text"`
	} `json:"document,omitempty"`
}

// RerankResponse lists results ordered by descending relevance.
type RerankResponse struct {
	RequestID string
	Results   []RerankResult
	Usage     Usage
}

type rerankBody struct {
	Model string `json:"model"`
	Input struct {
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
	} `json:"input"`
	Parameters struct {
		TopN            *int `json:"top_n,omitempty"`
		ReturnDocuments bool `json:"return_documents"`
	} `json:"parameters"`
}

type rerankEnvelope struct {
	RequestID string `json:"request_id"`
	Output    struct {
		Results []RerankResult `json:"results"`
	} `json:"output"`
	Usage Usage `json:"usage"`
}

// Rerank scores documents against a query.
func (a *API) Rerank(ctx context.Context, req RerankRequest) (*RerankResponse, error) {
	if req.Query == "" || len(req.Documents) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "query and documents are required")
	}

	var body rerankBody
	body.Model = req.Model
	body.Input.Query = req.Query
	body.Input.Documents = req.Documents
	body.Parameters.TopN = req.TopN
	body.Parameters.ReturnDocuments = req.ReturnDocuments

	var env rerankEnvelope
	if err := a.doJSON(ctx, http.MethodPost, rerankPath, body, &env, nil); err != nil {
		return nil, err
	}
	return &RerankResponse{RequestID: env.RequestID, Results: env.Output.Results, Usage: env.Usage}, nil
}
