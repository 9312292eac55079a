package dashscope

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/dashscope-starter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestNewAPI_RequiresAPIKey(t *testing.T) {
	_, err := NewAPI("", "")
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestNewAPI_DefaultsBaseURL(t *testing.T) {
	api, err := NewAPI("", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPBaseURL, api.BaseURL())
	assert.Equal(t, "sk-test", api.APIKey())
}

func TestAPI_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compatible-mode/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "ws-1", r.Header.Get(headerWorkspace))

		body := decodeBody(t, r)
		assert.Equal(t, "qwen-plus", body["model"])
		assert.Equal(t, 0.5, body["temperature"])
		assert.Equal(t, float64(20), body["top_k"])
		assert.Equal(t, true, body["enable_search"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"qwen-plus",
			"choices":[{"index":0,"message":{"role":"assistant","content":"你好"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, "sk-test", WithWorkspace("ws-1"))
	require.NoError(t, err)

	resp, err := api.Chat(context.Background(), ChatRequest{
		Model: "qwen-plus",
		Messages: []types.Message{
			types.NewSystemMessage("be brief"),
			types.NewUserMessage("hi"),
		},
		Temperature:  floatPtr(0.5),
		TopK:         intPtr(20),
		EnableSearch: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, "你好", resp.Message.Content)
	assert.Equal(t, types.RoleAssistant, resp.Message.Role)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestAPI_Chat_ToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		tools := body["tools"].([]any)
		require.Len(t, tools, 1)
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		assert.Equal(t, "get_weather", fn["name"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c2","object":"chat.completion","created":1,"model":"qwen-plus",
			"choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"杭州\"}"}}
			]},"finish_reason":"tool_calls"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, "sk-test")
	require.NoError(t, err)

	resp, err := api.Chat(context.Background(), ChatRequest{
		Model:    "qwen-plus",
		Messages: []types.Message{types.NewUserMessage("weather?")},
		Tools: []types.ToolSchema{{
			Name:       "get_weather",
			Parameters: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.Message.ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"杭州"}`, string(resp.Message.ToolCalls[0].Arguments))
}

func TestAPI_Chat_RequiresModel(t *testing.T) {
	api, err := NewAPI("http://127.0.0.1:1", "sk-test")
	require.NoError(t, err)
	_, err = api.Chat(context.Background(), ChatRequest{Messages: []types.Message{types.NewUserMessage("hi")}})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestAPI_Chat_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"code":"Throttling.RateQuota","message":"slow down","request_id":"req-9"}`)
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, "sk-test")
	require.NoError(t, err)

	_, err = api.Chat(context.Background(), ChatRequest{
		Model:    "qwen-plus",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestAPI_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, true, body["stream"])
		assert.NotNil(t, body["stream_options"])

		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"qwen-plus","choices":[{"index":0,"delta":{"content":"你"}}]}`,
			`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"qwen-plus","choices":[{"index":0,"delta":{"content":"好"},"finish_reason":"stop"}]}`,
			`{"id":"s1","object":"chat.completion.chunk","created":1,"model":"qwen-plus","choices":[],"usage":{"prompt_tokens":2,"completion_tokens":2,"total_tokens":4}}`,
		}
		for _, f := range frames {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", f)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, "sk-test")
	require.NoError(t, err)

	ch, err := api.ChatStream(context.Background(), ChatRequest{
		Model:    "qwen-plus",
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	var text string
	var usage *Usage
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Delta
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	assert.Equal(t, "你好", text)
	require.NotNil(t, usage)
	assert.Equal(t, 4, usage.TotalTokens)
}

func TestAPI_Embeddings_RestoresInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compatible-mode/v1/embeddings", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "text-embedding-v3", body["model"])
		assert.Equal(t, float64(512), body["dimensions"])
		assert.Equal(t, "query", body["text_type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-v3",
			"data":[{"object":"embedding","index":1,"embedding":[0.3,0.4]},{"object":"embedding","index":0,"embedding":[0.1,0.2]}],
			"usage":{"prompt_tokens":4,"total_tokens":4}}`)
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, "sk-test")
	require.NoError(t, err)

	resp, err := api.Embeddings(context.Background(), EmbeddingRequest{
		Model:      "text-embedding-v3",
		Texts:      []string{"a", "b"},
		Dimensions: intPtr(512),
		TextType:   "query",
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.InDelta(t, 0.1, resp.Embeddings[0][0], 1e-6)
	assert.InDelta(t, 0.3, resp.Embeddings[1][0], 1e-6)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
}

func TestAPI_Embeddings_EmptyInput(t *testing.T) {
	api, err := NewAPI("http://127.0.0.1:1", "sk-test")
	require.NoError(t, err)
	_, err = api.Embeddings(context.Background(), EmbeddingRequest{Model: "text-embedding-v3"})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestAPI_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, rerankPath, r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "gte-rerank", body["model"])
		input := body["input"].(map[string]any)
		assert.Equal(t, "what is go", input["query"])
		params := body["parameters"].(map[string]any)
		assert.Equal(t, float64(1), params["top_n"])
		assert.Equal(t, true, params["return_documents"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"request_id":"r1","output":{"results":[
			{"index":1,"relevance_score":0.93,"document":{"text":"Go is a language"}}
		]},"usage":{"total_tokens":12}}`)
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, "sk-test")
	require.NoError(t, err)

	resp, err := api.Rerank(context.Background(), RerankRequest{
		Model:           "gte-rerank",
		Query:           "what is go",
		Documents:       []string{"a fruit", "Go is a language"},
		TopN:            intPtr(1),
		ReturnDocuments: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.RequestID)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Results[0].Index)
	assert.InDelta(t, 0.93, resp.Results[0].RelevanceScore, 1e-9)
	require.NotNil(t, resp.Results[0].Document)
	assert.Equal(t, "Go is a language", resp.Results[0].Document.Text)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestAPI_Rerank_NativeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"InvalidApiKey","message":"Invalid API-key provided.","request_id":"req-1"}`)
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, "sk-bad")
	require.NoError(t, err)

	_, err = api.Rerank(context.Background(), RerankRequest{Model: "gte-rerank", Query: "q", Documents: []string{"d"}})
	require.Error(t, err)
	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.ErrUnauthorized, te.Code)
	assert.Equal(t, "req-1", te.RequestID)
	assert.False(t, te.Retryable)
}
