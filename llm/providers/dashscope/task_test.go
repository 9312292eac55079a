package dashscope

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/dashscope-starter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageAPI_Generate(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == imageSynthesisPath:
			assert.Equal(t, "enable", r.Header.Get(headerAsync))
			body := decodeBody(t, r)
			assert.Equal(t, "wanx-v1", body["model"])
			input := body["input"].(map[string]any)
			assert.Equal(t, "a cat", input["prompt"])
			params := body["parameters"].(map[string]any)
			assert.Equal(t, "1024*1024", params["size"])
			assert.Equal(t, float64(2), params["n"])
			_, _ = io.WriteString(w, `{"request_id":"r0","output":{"task_id":"t1","task_status":"PENDING"}}`)
		case r.Method == http.MethodGet && r.URL.Path == taskPath+"t1":
			if polls.Add(1) < 2 {
				_, _ = io.WriteString(w, `{"request_id":"r1","output":{"task_id":"t1","task_status":"RUNNING"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"request_id":"r2","output":{"task_id":"t1","task_status":"SUCCEEDED",
				"results":[{"url":"https://img/1.png"},{"code":"DataInspectionFailed","message":"blocked"}]},
				"usage":{"image_count":1}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	api, err := NewImageAPI(srv.URL, "sk-test", WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	resp, err := api.Generate(context.Background(), ImageRequest{
		Model:  "wanx-v1",
		Prompt: "a cat",
		Size:   "1024*1024",
		N:      intPtr(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, "r2", resp.RequestID)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "https://img/1.png", resp.Results[0].URL)
	assert.Equal(t, "DataInspectionFailed", resp.Results[1].Code)
	assert.Equal(t, 1, resp.ImageCount)
	assert.Equal(t, int32(2), polls.Load())
}

func TestImageAPI_TaskFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			_, _ = io.WriteString(w, `{"output":{"task_id":"t2","task_status":"PENDING"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"request_id":"r9","output":{"task_id":"t2","task_status":"FAILED",
			"code":"InvalidParameter","message":"bad size"}}`)
	}))
	defer srv.Close()

	api, err := NewImageAPI(srv.URL, "sk-test", WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	_, err = api.Generate(context.Background(), ImageRequest{Model: "wanx-v1", Prompt: "x"})
	require.Error(t, err)
	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.ErrTaskFailed, te.Code)
	assert.Equal(t, "r9", te.RequestID)
	assert.Contains(t, te.Message, "bad size")
}

func TestImageAPI_WaitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output":{"task_id":"t3","task_status":"RUNNING"}}`)
	}))
	defer srv.Close()

	api, err := NewImageAPI(srv.URL, "sk-test", WithPollInterval(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err = api.Wait(ctx, "t3")
	require.Error(t, err)
}

func TestImageAPI_RequiresPrompt(t *testing.T) {
	api, err := NewImageAPI("", "sk-test")
	require.NoError(t, err)
	_, err = api.Submit(context.Background(), ImageRequest{Model: "wanx-v1"})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestAudioTranscriptionAPI_Transcribe(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == transcriptionPath:
			assert.Equal(t, "enable", r.Header.Get(headerAsync))
			body := decodeBody(t, r)
			assert.Equal(t, "paraformer-v2", body["model"])
			input := body["input"].(map[string]any)
			assert.Equal(t, []any{"https://oss/a.wav"}, input["file_urls"])
			params := body["parameters"].(map[string]any)
			assert.Equal(t, []any{"zh", "en"}, params["language_hints"])
			_, _ = io.WriteString(w, `{"output":{"task_id":"asr1","task_status":"PENDING"}}`)
		case r.URL.Path == taskPath+"asr1":
			_, _ = fmt.Fprintf(w, `{"request_id":"r5","output":{"task_id":"asr1","task_status":"SUCCEEDED","results":[
				{"file_url":"https://oss/a.wav","transcription_url":"%s/result/a.json","subtask_status":"SUCCEEDED"},
				{"file_url":"https://oss/b.wav","subtask_status":"FAILED","code":"InvalidFile","message":"decode failed"}
			]}}`, srvURL)
		case r.URL.Path == "/result/a.json":
			assert.Empty(t, r.Header.Get("Authorization"), "presigned download must not carry credentials")
			_, _ = io.WriteString(w, `{"file_url":"https://oss/a.wav","transcripts":[
				{"channel_id":0,"text":"你好世界","sentences":[{"begin_time":0,"end_time":900,"text":"你好世界"}]}
			]}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	api, err := NewAudioTranscriptionAPI(srv.URL, "sk-test", WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	resp, err := api.Transcribe(context.Background(), TranscriptionRequest{
		Model:         "paraformer-v2",
		FileURLs:      []string{"https://oss/a.wav"},
		LanguageHints: []string{"zh", "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, "asr1", resp.TaskID)
	require.Len(t, resp.Files, 2)
	assert.Equal(t, TaskSucceeded, resp.Files[0].Status)
	require.Len(t, resp.Files[0].Transcripts, 1)
	assert.Equal(t, 900, resp.Files[0].Transcripts[0].Sentences[0].EndTime)
	assert.Equal(t, TaskFailed, resp.Files[1].Status)
	assert.Equal(t, "InvalidFile", resp.Files[1].Code)
	assert.Equal(t, "你好世界", resp.Text())
}

func TestAudioTranscriptionAPI_RequiresFiles(t *testing.T) {
	api, err := NewAudioTranscriptionAPI("", "sk-test")
	require.NoError(t, err)
	_, err = api.Submit(context.Background(), TranscriptionRequest{Model: "paraformer-v2"})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}
