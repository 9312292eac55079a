package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/dashscope-starter/internal/tlsutil"
	"github.com/BaSui01/dashscope-starter/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// Speech synthesis (duplex WebSocket)
// =============================================================================

const (
	actionRunTask      = "run-task"
	actionContinueTask = "continue-task"
	actionFinishTask   = "finish-task"

	eventTaskStarted     = "task-started"
	eventResultGenerated = "result-generated"
	eventTaskFinished    = "task-finished"
	eventTaskFailed      = "task-failed"

	// 单帧音频上限
	wsReadLimit = 16 << 20
)

// SpeechSynthesisAPI streams text-to-speech over the DashScope duplex protocol.
type SpeechSynthesisAPI struct {
	apiKey      string
	workspaceID string
	wsURL       string
	dialClient  *http.Client
	logger      *zap.Logger
}

// NewSpeechSynthesisAPI creates the speech synthesis client.
func NewSpeechSynthesisAPI(apiKey string, opts ...Option) (*SpeechSynthesisAPI, error) {
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.wsURL == "" {
		cfg.wsURL = DefaultWebSocketURL
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	return &SpeechSynthesisAPI{
		apiKey:      apiKey,
		workspaceID: cfg.workspaceID,
		wsURL:       cfg.wsURL,
		// 升级请求不能走 HTTP/2，且连接生命周期由 ctx 控制
		dialClient: &http.Client{Transport: tlsutil.HTTP1Transport(0)},
		logger:     cfg.logger.With(zap.String("component", "dashscope_speech_synthesis_api")),
	}, nil
}

// URL returns the WebSocket endpoint.
func (a *SpeechSynthesisAPI) URL() string { return a.wsURL }

// APIKey returns the API key the client authenticates with.
func (a *SpeechSynthesisAPI) APIKey() string { return a.apiKey }

// SpeechRequest is a synthesis request.
type SpeechRequest struct {
	Model      string
	Text       string
	Voice      string
	Format     string
	SampleRate int
	Volume     int
	Rate       float64
	Pitch      float64
}

// SpeechResult summarizes a finished synthesis task.
type SpeechResult struct {
	TaskID     string
	Bytes      int64
	Characters int
}

type wsHeader struct {
	Action       string `json:"action,omitempty"`
	TaskID       string `json:"task_id"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type wsParameters struct {
	TextType   string  `json:"text_type"`
	Voice      string  `json:"voice"`
	Format     string  `json:"format,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Volume     int     `json:"volume,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
	Pitch      float64 `json:"pitch,omitempty"`
}

type wsPayload struct {
	TaskGroup  string         `json:"task_group,omitempty"`
	Task       string         `json:"task,omitempty"`
	Function   string         `json:"function,omitempty"`
	Model      string         `json:"model,omitempty"`
	Parameters *wsParameters  `json:"parameters,omitempty"`
	Input      map[string]any `json:"input"`
}

type wsCommand struct {
	Header  wsHeader  `json:"header"`
	Payload wsPayload `json:"payload"`
}

type wsEvent struct {
	Header  wsHeader `json:"header"`
	Payload struct {
		Usage struct {
			Characters int `json:"characters"`
		} `json:"usage"`
	} `json:"payload"`
}

// Synthesize returns the complete audio for req.
func (a *SpeechSynthesisAPI) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, *SpeechResult, error) {
	var buf bytes.Buffer
	res, err := a.SynthesizeTo(ctx, req, &buf)
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), res, nil
}

// SynthesizeTo streams synthesized audio frames into w as they arrive.
func (a *SpeechSynthesisAPI) SynthesizeTo(ctx context.Context, req SpeechRequest, w io.Writer) (*SpeechResult, error) {
	if req.Text == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "text is required")
	}

	header := http.Header{}
	header.Set("Authorization", "bearer "+a.apiKey)
	if a.workspaceID != "" {
		header.Set(headerWorkspace, a.workspaceID)
	}
	conn, resp, err := websocket.Dial(ctx, a.wsURL, &websocket.DialOptions{
		HTTPClient: a.dialClient,
		HTTPHeader: header,
	})
	if err != nil {
		e := types.NewError(types.ErrUpstreamError, fmt.Sprintf("websocket dial: %v", err)).
			WithProvider("dashscope").WithCause(err)
		if resp != nil {
			e = e.WithHTTPStatus(resp.StatusCode)
		}
		return nil, e
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(wsReadLimit)

	taskID := uuid.NewString()
	res := &SpeechResult{TaskID: taskID}

	run := wsCommand{
		Header: wsHeader{Action: actionRunTask, TaskID: taskID, Streaming: "duplex"},
		Payload: wsPayload{
			TaskGroup: "audio",
			Task:      "tts",
			Function:  "SpeechSynthesizer",
			Model:     req.Model,
			Parameters: &wsParameters{
				TextType:   "PlainText",
				Voice:      req.Voice,
				Format:     req.Format,
				SampleRate: req.SampleRate,
				Volume:     req.Volume,
				Rate:       req.Rate,
				Pitch:      req.Pitch,
			},
			Input: map[string]any{},
		},
	}
	if err := writeCommand(ctx, conn, run); err != nil {
		return nil, err
	}

	started := false
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("dashscope: websocket read: %w", err)
		}

		if typ == websocket.MessageBinary {
			n, err := w.Write(data)
			res.Bytes += int64(n)
			if err != nil {
				return nil, fmt.Errorf("dashscope: write audio: %w", err)
			}
			continue
		}

		var ev wsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("dashscope: decode event: %w", err)
		}

		switch ev.Header.Event {
		case eventTaskStarted:
			if started {
				continue
			}
			started = true
			a.logger.Debug("speech task started", zap.String("task_id", taskID))
			// 整段文本一次送出后立即结束任务
			cont := wsCommand{
				Header:  wsHeader{Action: actionContinueTask, TaskID: taskID, Streaming: "duplex"},
				Payload: wsPayload{Input: map[string]any{"text": req.Text}},
			}
			if err := writeCommand(ctx, conn, cont); err != nil {
				return nil, err
			}
			finish := wsCommand{
				Header:  wsHeader{Action: actionFinishTask, TaskID: taskID, Streaming: "duplex"},
				Payload: wsPayload{Input: map[string]any{}},
			}
			if err := writeCommand(ctx, conn, finish); err != nil {
				return nil, err
			}
		case eventResultGenerated:
			if c := ev.Payload.Usage.Characters; c > 0 {
				res.Characters = c
			}
		case eventTaskFinished:
			if c := ev.Payload.Usage.Characters; c > 0 {
				res.Characters = c
			}
			a.logger.Debug("speech task finished",
				zap.String("task_id", taskID),
				zap.Int64("bytes", res.Bytes),
				zap.Int("characters", res.Characters))
			return res, nil
		case eventTaskFailed:
			return nil, types.NewError(types.ErrTaskFailed,
				fmt.Sprintf("task %s failed: %s %s", taskID, ev.Header.ErrorCode, ev.Header.ErrorMessage)).
				WithProvider("dashscope")
		}
	}
}

func writeCommand(ctx context.Context, conn *websocket.Conn, cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("dashscope: marshal %s: %w", cmd.Header.Action, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("dashscope: websocket write: %w", err)
	}
	return nil
}

// =============================================================================
// Audio transcription (async task)
// =============================================================================

// transcriptFetchTimeout bounds the download of one transcription document.
const transcriptFetchTimeout = 30 * time.Second

// AudioTranscriptionAPI transcribes recorded audio files.
type AudioTranscriptionAPI struct {
	*poller
	fetch *http.Client
}

// NewAudioTranscriptionAPI creates the transcription client.
func NewAudioTranscriptionAPI(baseURL, apiKey string, opts ...Option) (*AudioTranscriptionAPI, error) {
	b, err := newBase(baseURL, apiKey, "dashscope_audio_transcription_api", opts)
	if err != nil {
		return nil, err
	}
	return &AudioTranscriptionAPI{
		poller: &poller{base: b, interval: b.pollInterval},
		fetch:  tlsutil.SecureHTTPClient(transcriptFetchTimeout),
	}, nil
}

// TranscriptionRequest is a file transcription request.
type TranscriptionRequest struct {
	Model              string
	FileURLs           []string
	LanguageHints      []string
	DiarizationEnabled bool
	SpeakerCount       int
}

// Sentence is one recognized sentence with its time span in milliseconds.
type Sentence struct {
	BeginTime int    `json:"begin_time"`
	EndTime   int    `json:"end_time"`
	Text      string `json:"text"`
	SpeakerID *int   `json:"speaker_id,omitempty"`
}

// Transcript is the recognition result of one audio channel.
type Transcript struct {
	ChannelID int        `json:"channel_id"`
	Text      string     `json:"text"`
	Sentences []Sentence `json:"sentences"`
}

// FileTranscription is the result for one input file.
type FileTranscription struct {
	FileURL     string       `json:"file_url"`
	Status      string       `json:"-"`
	Code        string       `json:"-"`
	Message     string       `json:"-"`
	Transcripts []Transcript `json:"transcripts"`
}

// TranscriptionResponse is a settled transcription task.
type TranscriptionResponse struct {
	TaskID    string
	RequestID string
	Files     []FileTranscription
}

// Text joins the first transcript of every successfully transcribed file.
func (r *TranscriptionResponse) Text() string {
	var buf bytes.Buffer
	for _, f := range r.Files {
		for _, t := range f.Transcripts {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(t.Text)
		}
	}
	return buf.String()
}

type transcriptionBody struct {
	Model string `json:"model"`
	Input struct {
		FileURLs []string `json:"file_urls"`
	} `json:"input"`
	Parameters struct {
		LanguageHints      []string `json:"language_hints,omitempty"`
		DiarizationEnabled bool     `json:"diarization_enabled,omitempty"`
		SpeakerCount       int      `json:"speaker_count,omitempty"`
	} `json:"parameters"`
}

// Submit starts a transcription task and returns its id.
func (a *AudioTranscriptionAPI) Submit(ctx context.Context, req TranscriptionRequest) (string, error) {
	if len(req.FileURLs) == 0 {
		return "", types.NewError(types.ErrInvalidRequest, "at least one file url is required")
	}
	var body transcriptionBody
	body.Model = req.Model
	body.Input.FileURLs = req.FileURLs
	body.Parameters.LanguageHints = req.LanguageHints
	body.Parameters.DiarizationEnabled = req.DiarizationEnabled
	body.Parameters.SpeakerCount = req.SpeakerCount
	return a.submit(ctx, transcriptionPath, body)
}

// Wait polls the task and downloads each file's transcription document.
func (a *AudioTranscriptionAPI) Wait(ctx context.Context, taskID string) (*TranscriptionResponse, error) {
	env, err := a.wait(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var out struct {
		Results []struct {
			FileURL          string `json:"file_url"`
			TranscriptionURL string `json:"transcription_url"`
			SubtaskStatus    string `json:"subtask_status"`
			Code             string `json:"code"`
			Message          string `json:"message"`
		} `json:"results"`
	}
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return nil, fmt.Errorf("dashscope: decode transcription output: %w", err)
	}

	resp := &TranscriptionResponse{TaskID: taskID, RequestID: env.RequestID}
	for _, r := range out.Results {
		file := FileTranscription{FileURL: r.FileURL, Status: r.SubtaskStatus, Code: r.Code, Message: r.Message}
		if r.SubtaskStatus == TaskSucceeded && r.TranscriptionURL != "" {
			if err := a.fetchTranscript(ctx, r.TranscriptionURL, &file); err != nil {
				return nil, err
			}
			file.FileURL = r.FileURL
		}
		resp.Files = append(resp.Files, file)
	}
	return resp, nil
}

// fetchTranscript downloads a presigned result document. Presigned URLs
// reject extra credentials, so no Authorization header is sent.
func (a *AudioTranscriptionAPI) fetchTranscript(ctx context.Context, url string, into *FileTranscription) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("dashscope: create transcript request: %w", err)
	}
	resp, err := a.fetch.Do(req)
	if err != nil {
		return fmt.Errorf("dashscope: fetch transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return types.NewError(types.ErrUpstreamError, fmt.Sprintf("fetch transcript: HTTP %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).WithProvider("dashscope")
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("dashscope: decode transcript: %w", err)
	}
	return nil
}

// Transcribe submits a transcription task and waits for the documents.
func (a *AudioTranscriptionAPI) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	taskID, err := a.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return a.Wait(ctx, taskID)
}
