package speech

import (
	"context"
	"io"

	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/types"
	"go.uber.org/zap"
)

// SynthesisModel DashScope 语音合成模型（CosyVoice / Sambert）.
type SynthesisModel struct {
	api      *dashscope.SpeechSynthesisAPI
	defaults SynthesisOptions
	retryer  retry.Retryer
	logger   *zap.Logger
}

var _ TTSProvider = (*SynthesisModel)(nil)

// NewSynthesisModel 创建语音合成模型.
func NewSynthesisModel(api *dashscope.SpeechSynthesisAPI, opts SynthesisOptions, policy *retry.RetryPolicy, logger *zap.Logger) *SynthesisModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "dashscope_speech_synthesis_model"))
	return &SynthesisModel{
		api:      api,
		defaults: opts,
		retryer:  retry.NewBackoffRetryer(policy, logger),
		logger:   logger,
	}
}

func (m *SynthesisModel) Name() string                       { return "dashscope-tts" }
func (m *SynthesisModel) DefaultOptions() SynthesisOptions   { return m.defaults }
func (m *SynthesisModel) API() *dashscope.SpeechSynthesisAPI { return m.api }

// Synthesize 合成完整音频. 整段音频在内存中缓冲，失败时按策略整体重试.
func (m *SynthesisModel) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	sreq, opts, err := m.buildRequest(req)
	if err != nil {
		return nil, err
	}

	type result struct {
		audio []byte
		res   *dashscope.SpeechResult
	}
	out, err := retry.DoWithResultTyped(m.retryer, ctx, func() (result, error) {
		audio, res, err := m.api.Synthesize(ctx, sreq)
		return result{audio: audio, res: res}, err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("speech synthesized",
		zap.String("task_id", out.res.TaskID),
		zap.Int("bytes", len(out.audio)),
		zap.Int("characters", out.res.Characters))
	return &TTSResponse{
		TaskID:    out.res.TaskID,
		Model:     opts.Model,
		AudioData: out.audio,
		Format:    opts.Format,
		CharCount: out.res.Characters,
	}, nil
}

// SynthesizeTo 流式写出音频帧，不重试.
func (m *SynthesisModel) SynthesizeTo(ctx context.Context, req *TTSRequest, w io.Writer) (*TTSResponse, error) {
	sreq, opts, err := m.buildRequest(req)
	if err != nil {
		return nil, err
	}
	res, err := m.api.SynthesizeTo(ctx, sreq, w)
	if err != nil {
		return nil, err
	}
	return &TTSResponse{
		TaskID:    res.TaskID,
		Model:     opts.Model,
		Format:    opts.Format,
		CharCount: res.Characters,
	}, nil
}

// Call 以默认参数合成一段文本.
func (m *SynthesisModel) Call(ctx context.Context, text string) ([]byte, error) {
	resp, err := m.Synthesize(ctx, &TTSRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return resp.AudioData, nil
}

func (m *SynthesisModel) buildRequest(req *TTSRequest) (dashscope.SpeechRequest, SynthesisOptions, error) {
	if req == nil || req.Text == "" {
		return dashscope.SpeechRequest{}, SynthesisOptions{}, types.NewError(types.ErrInvalidRequest, "text is required")
	}
	opts := m.defaults.Merge(req.Options)
	return dashscope.SpeechRequest{
		Model:      opts.Model,
		Text:       req.Text,
		Voice:      opts.Voice,
		Format:     opts.Format,
		SampleRate: opts.SampleRate,
		Volume:     opts.Volume,
		Rate:       opts.Speed,
		Pitch:      opts.Pitch,
	}, opts, nil
}
