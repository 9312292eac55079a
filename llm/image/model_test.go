package image

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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
	api, err := dashscope.NewImageAPI(url, "sk-test", dashscope.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	return NewModel(api, opts, &retry.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond}, nil)
}

func TestModel_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			data, _ := io.ReadAll(r.Body)
			var body struct {
				Model string `json:"model"`
				Input struct {
					Prompt         string `json:"prompt"`
					NegativePrompt string `json:"negative_prompt"`
				} `json:"input"`
				Parameters struct {
					Style string `json:"style"`
					Size  string `json:"size"`
					N     int    `json:"n"`
				} `json:"parameters"`
			}
			require.NoError(t, json.Unmarshal(data, &body))
			assert.Equal(t, "wanx-v1", body.Model)
			assert.Equal(t, "a red fox", body.Input.Prompt)
			assert.Equal(t, "blurry", body.Input.NegativePrompt)
			assert.Equal(t, "<anime>", body.Parameters.Style)
			assert.Equal(t, "720*1280", body.Parameters.Size)
			assert.Equal(t, 2, body.Parameters.N)
			_, _ = io.WriteString(w, `{"output":{"task_id":"t1","task_status":"PENDING"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"request_id":"r1","output":{"task_id":"t1","task_status":"SUCCEEDED",
			"results":[{"url":"https://img/1.png"},{"code":"DataInspectionFailed","message":"blocked"}]}}`)
	}))
	defer srv.Close()

	n := 2
	defaults := DefaultOptions()
	defaults.Style = "<anime>"
	defaults.NegativePrompt = "blurry"
	m := newTestModel(t, srv.URL, defaults)

	resp, err := m.Generate(context.Background(), &GenerateRequest{
		Prompt:  "a red fox",
		Options: &Options{N: &n, Size: "720*1280"},
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, []ImageData{{URL: "https://img/1.png"}}, resp.Images)
	assert.Equal(t, []Rejection{{Code: "DataInspectionFailed", Message: "blocked"}}, resp.Rejected)
	assert.Equal(t, 1, resp.Usage.ImagesGenerated)
}

func TestModel_GenerateRequiresPrompt(t *testing.T) {
	m := newTestModel(t, "http://127.0.0.1:1", DefaultOptions())
	_, err := m.Call(context.Background(), "")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestModel_SupportedSizesIsCopy(t *testing.T) {
	m := newTestModel(t, "http://127.0.0.1:1", DefaultOptions())
	sizes := m.SupportedSizes()
	require.Contains(t, sizes, DefaultSize)
	sizes[0] = "0*0"
	assert.Equal(t, DefaultSize, m.SupportedSizes()[0])
}

func TestOptions_Merge(t *testing.T) {
	seed := 42
	merged := DefaultOptions().Merge(&Options{Seed: &seed, Style: "<photography>"})
	assert.Equal(t, DefaultModel, merged.Model)
	assert.Equal(t, 42, *merged.Seed)
	assert.Equal(t, "<photography>", merged.Style)
	assert.Nil(t, merged.N)
}
