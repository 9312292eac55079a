package rerank

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, url string, opts Options) *Model {
	t.Helper()
	api, err := dashscope.NewAPI(url, "sk-test")
	require.NoError(t, err)
	policy := &retry.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}
	return NewModel(api, opts, policy, nil)
}

func TestOptions_Merge(t *testing.T) {
	n := 3
	yes := true
	base := DefaultOptions()
	merged := base.Merge(&Options{TopN: &n, ReturnDocuments: &yes})
	assert.Equal(t, DefaultModel, merged.Model)
	assert.Equal(t, 3, *merged.TopN)
	assert.True(t, *merged.ReturnDocuments)
	assert.Equal(t, base, base.Merge(nil))
}

func TestModel_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "gte-rerank", body["model"])
		params := body["parameters"].(map[string]any)
		assert.Equal(t, float64(2), params["top_n"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"request_id":"r1","output":{"results":[
			{"index":2,"relevance_score":0.9},
			{"index":0,"relevance_score":0.4}
		]},"usage":{"total_tokens":30}}`)
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL, DefaultOptions())
	n := 2
	resp, err := m.Rerank(context.Background(), &RerankRequest{
		Query: "go",
		Documents: []Document{
			{ID: "a", Text: "golang"},
			{ID: "b", Text: "python"},
			{ID: "c", Text: "go language"},
		},
		Options: &Options{TopN: &n},
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.ID)
	assert.Equal(t, 30, resp.Usage.TotalTokens)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "c", resp.Results[0].Document.ID)
	assert.Equal(t, "go language", resp.Results[0].Document.Text)
	assert.Equal(t, "a", resp.Results[1].Document.ID)
}

func TestModel_RerankValidates(t *testing.T) {
	m := newTestModel(t, "http://127.0.0.1:1", DefaultOptions())

	_, err := m.Rerank(context.Background(), &RerankRequest{Query: "q"})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	docs := make([]Document, DefaultMaxDocuments+1)
	_, err = m.Rerank(context.Background(), &RerankRequest{Query: "q", Documents: docs})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestModel_RerankRejectsOutOfRangeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output":{"results":[{"index":5,"relevance_score":0.9}]}}`)
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL, DefaultOptions())
	_, err := m.RerankSimple(context.Background(), "q", []string{"only"}, 0)
	assert.Error(t, err)
}

func TestModel_RerankRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"code":"ServiceUnavailable","message":"busy"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output":{"results":[{"index":0,"relevance_score":0.5}]}}`)
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL, DefaultOptions())
	results, err := m.RerankSimple(context.Background(), "q", []string{"d"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d", results[0].Document.Text)
	assert.Equal(t, int32(2), calls.Load())
}
