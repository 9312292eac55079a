package dashscope

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/dashscope-starter/types"
)

// AgentAPI invokes DashScope applications (agents and workflows built on the platform).
type AgentAPI struct {
	*base
}

// NewAgentAPI creates the agent application client.
func NewAgentAPI(baseURL, apiKey string, opts ...Option) (*AgentAPI, error) {
	b, err := newBase(baseURL, apiKey, "dashscope_agent_api", opts)
	if err != nil {
		return nil, err
	}
	return &AgentAPI{base: b}, nil
}

// AgentRequest is an application completion request.
type AgentRequest struct {
	AppID     string
	Prompt    string
	SessionID string
	MemoryID  string
	Messages  []types.Message
	ImageList []string
	BizParams map[string]any

	HasThoughts       bool
	IncrementalOutput bool
}

// DocReference is a knowledge-base citation returned by RAG applications.
type DocReference struct {
	IndexID string `json:"index_id"`
	Title   string `json:"title"`
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	Text    string `json:"text"`
}

// AgentThought is one intermediate reasoning step.
type AgentThought struct {
	Thought     string `json:"thought,omitempty"`
	ActionType  string `json:"action_type,omitempty"`
	ActionName  string `json:"action_name,omitempty"`
	Action      string `json:"action,omitempty"`
	Response    string `json:"response,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// AgentModelUsage reports token usage per underlying model.
type AgentModelUsage struct {
	ModelID      string `json:"model_id"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// AgentResponse is an application completion result. In streaming mode
// each chunk is an AgentResponse carrying a delta or the accumulated text.
type AgentResponse struct {
	RequestID     string
	Text          string
	FinishReason  string
	SessionID     string
	Thoughts      []AgentThought
	DocReferences []DocReference
	Usage         []AgentModelUsage
	Err           error
}

type agentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type agentBody struct {
	Input struct {
		Prompt    string         `json:"prompt,omitempty"`
		SessionID string         `json:"session_id,omitempty"`
		MemoryID  string         `json:"memory_id,omitempty"`
		Messages  []agentMessage `json:"messages,omitempty"`
		ImageList []string       `json:"image_list,omitempty"`
		BizParams map[string]any `json:"biz_params,omitempty"`
	} `json:"input"`
	Parameters struct {
		HasThoughts       bool `json:"has_thoughts,omitempty"`
		IncrementalOutput bool `json:"incremental_output,omitempty"`
	} `json:"parameters"`
}

type agentEnvelope struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Output    struct {
		Text          string         `json:"text"`
		FinishReason  string         `json:"finish_reason"`
		SessionID     string         `json:"session_id"`
		Thoughts      []AgentThought `json:"thoughts,omitempty"`
		DocReferences []DocReference `json:"doc_references,omitempty"`
	} `json:"output"`
	Usage struct {
		Models []AgentModelUsage `json:"models"`
	} `json:"usage"`
}

func (e *agentEnvelope) response() *AgentResponse {
	return &AgentResponse{
		RequestID:     e.RequestID,
		Text:          e.Output.Text,
		FinishReason:  e.Output.FinishReason,
		SessionID:     e.Output.SessionID,
		Thoughts:      e.Output.Thoughts,
		DocReferences: e.Output.DocReferences,
		Usage:         e.Usage.Models,
	}
}

func agentPath(appID string) string {
	return "/api/v1/apps/" + appID + "/completion"
}

func buildAgentBody(req AgentRequest) (agentBody, error) {
	var body agentBody
	if req.AppID == "" {
		return body, types.NewError(types.ErrInvalidRequest, "app id is required")
	}
	if req.Prompt == "" && len(req.Messages) == 0 {
		return body, types.NewError(types.ErrInvalidRequest, "prompt or messages is required")
	}
	body.Input.Prompt = req.Prompt
	body.Input.SessionID = req.SessionID
	body.Input.MemoryID = req.MemoryID
	body.Input.ImageList = req.ImageList
	body.Input.BizParams = req.BizParams
	for _, m := range req.Messages {
		body.Input.Messages = append(body.Input.Messages, agentMessage{Role: string(m.Role), Content: m.Content})
	}
	body.Parameters.HasThoughts = req.HasThoughts
	body.Parameters.IncrementalOutput = req.IncrementalOutput
	return body, nil
}

// Call invokes the application and waits for the full answer.
func (a *AgentAPI) Call(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	body, err := buildAgentBody(req)
	if err != nil {
		return nil, err
	}
	var env agentEnvelope
	if err := a.doJSON(ctx, http.MethodPost, agentPath(req.AppID), body, &env, nil); err != nil {
		return nil, err
	}
	return env.response(), nil
}

// Stream invokes the application over server-sent events using the async client.
// The channel is closed when the stream ends or ctx is done.
func (a *AgentAPI) Stream(ctx context.Context, req AgentRequest) (<-chan AgentResponse, error) {
	body, err := buildAgentBody(req)
	if err != nil {
		return nil, err
	}
	resp, err := a.send(ctx, a.asyncClient, http.MethodPost, agentPath(req.AppID), body, map[string]string{
		headerSSE: "enable",
		"Accept":  "text/event-stream",
	})
	if err != nil {
		return nil, err
	}
	return streamAgentSSE(ctx, resp.Body), nil
}

// streamAgentSSE parses DashScope SSE frames ("event:" + "data:" lines).
func streamAgentSSE(ctx context.Context, body io.ReadCloser) <-chan AgentResponse {
	ch := make(chan AgentResponse)
	go func() {
		defer body.Close()
		defer close(ch)

		emit := func(r AgentResponse) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- r:
				return true
			}
		}

		reader := bufio.NewReader(body)
		event := ""
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					emit(AgentResponse{Err: types.NewError(types.ErrUpstreamError, err.Error()).
						WithRetryable(true).WithProvider("dashscope").WithCause(err)})
				}
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				event = ""
				continue
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			case !strings.HasPrefix(line, "data:"):
				continue
			}

			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var env agentEnvelope
			if err := json.Unmarshal([]byte(data), &env); err != nil {
				emit(AgentResponse{Err: fmt.Errorf("dashscope: decode stream frame: %w", err)})
				return
			}
			if event == "error" || env.Code != "" {
				e := types.NewError(types.ErrUpstreamError, env.Code+": "+env.Message).WithProvider("dashscope")
				e.RequestID = env.RequestID
				emit(AgentResponse{Err: e})
				return
			}
			if !emit(*env.response()) {
				return
			}
			if env.Output.FinishReason == "stop" {
				return
			}
		}
	}()
	return ch
}
