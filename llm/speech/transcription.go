package speech

import (
	"context"
	"strings"

	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
)

// TranscriptionModel DashScope 录音文件识别模型（Paraformer）.
type TranscriptionModel struct {
	api      *dashscope.AudioTranscriptionAPI
	defaults TranscriptionOptions
	retryer  retry.Retryer
	logger   *zap.Logger
}

var _ STTProvider = (*TranscriptionModel)(nil)

// NewTranscriptionModel 创建录音识别模型.
func NewTranscriptionModel(api *dashscope.AudioTranscriptionAPI, opts TranscriptionOptions, policy *retry.RetryPolicy, logger *zap.Logger) *TranscriptionModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "dashscope_audio_transcription_model"))
	return &TranscriptionModel{
		api:      api,
		defaults: opts,
		retryer:  retry.NewBackoffRetryer(policy, logger),
		logger:   logger,
	}
}

func (m *TranscriptionModel) Name() string                          { return "dashscope-asr" }
func (m *TranscriptionModel) DefaultOptions() TranscriptionOptions  { return m.defaults }
func (m *TranscriptionModel) API() *dashscope.AudioTranscriptionAPI { return m.api }

// Transcribe 提交识别任务并等待所有文件完成. 单个文件失败记录在
// FileResult.Err 中，不影响其它文件.
func (m *TranscriptionModel) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	if req == nil || len(req.FileURLs) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "at least one file url is required")
	}
	opts := m.defaults.Merge(req.Options)

	taskID, err := retry.DoWithResultTyped(m.retryer, ctx, func() (string, error) {
		return m.api.Submit(ctx, dashscope.TranscriptionRequest{
			Model:              opts.Model,
			FileURLs:           req.FileURLs,
			LanguageHints:      opts.LanguageHints,
			DiarizationEnabled: opts.DiarizationEnabled != nil && *opts.DiarizationEnabled,
			SpeakerCount:       opts.SpeakerCount,
		})
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("transcription task submitted", zap.String("task_id", taskID), zap.Int("files", len(req.FileURLs)))

	resp, err := m.api.Wait(ctx, taskID)
	if err != nil {
		return nil, err
	}

	out := &STTResponse{TaskID: resp.TaskID, Model: opts.Model, Text: resp.Text()}
	for _, f := range resp.Files {
		out.Files = append(out.Files, toFileResult(f))
	}
	return out, nil
}

// Call 识别单个文件并返回文本.
func (m *TranscriptionModel) Call(ctx context.Context, fileURL string) (string, error) {
	resp, err := m.Transcribe(ctx, &STTRequest{FileURLs: []string{fileURL}})
	if err != nil {
		return "", err
	}
	if len(resp.Files) == 1 && resp.Files[0].Err != nil {
		return "", resp.Files[0].Err
	}
	return resp.Text, nil
}

func toFileResult(f dashscope.FileTranscription) FileResult {
	r := FileResult{FileURL: f.FileURL}
	if f.Status != dashscope.TaskSucceeded {
		r.Err = types.NewError(types.ErrTaskFailed, f.Code+": "+f.Message).WithProvider("dashscope")
		return r
	}
	texts := make([]string, 0, len(f.Transcripts))
	for _, t := range f.Transcripts {
		texts = append(texts, t.Text)
		for _, s := range t.Sentences {
			r.Segments = append(r.Segments, Segment{
				Start:     s.BeginTime,
				End:       s.EndTime,
				Text:      s.Text,
				SpeakerID: s.SpeakerID,
			})
		}
	}
	r.Text = strings.Join(texts, "\n")
	return r
}
