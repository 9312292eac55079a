// 软件包语音提供 DashScope 语音合成(TTS)与录音文件识别(STT)模型.
package speech

import (
	"context"
	"io"
)

// ============================================================
// 文字对语言( TTS)
// ============================================================

// 默认合成参数
const (
	DefaultSynthesisModel = "cosyvoice-v1"
	DefaultVoice          = "longhua"
	DefaultFormat         = "mp3"
	DefaultSampleRate     = 22050
)

// SynthesisOptions 语音合成参数，绑定自 spring.ai.dashscope.audio.synthesis.options.
type SynthesisOptions struct {
	Model      string  `yaml:"model"`
	Voice      string  `yaml:"voice"`
	Format     string  `yaml:"response-format"` // mp3, wav, pcm
	SampleRate int     `yaml:"sample-rate"`
	Volume     int     `yaml:"volume"` // 0-100
	Speed      float64 `yaml:"speed"`  // 0.5-2.0
	Pitch      float64 `yaml:"pitch"`
}

// DefaultSynthesisOptions 返回默认合成参数.
func DefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{
		Model:      DefaultSynthesisModel,
		Voice:      DefaultVoice,
		Format:     DefaultFormat,
		SampleRate: DefaultSampleRate,
	}
}

// Merge 用 override 中已设置的字段覆盖 o.
func (o SynthesisOptions) Merge(override *SynthesisOptions) SynthesisOptions {
	if override == nil {
		return o
	}
	out := o
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Voice != "" {
		out.Voice = override.Voice
	}
	if override.Format != "" {
		out.Format = override.Format
	}
	if override.SampleRate > 0 {
		out.SampleRate = override.SampleRate
	}
	if override.Volume > 0 {
		out.Volume = override.Volume
	}
	if override.Speed > 0 {
		out.Speed = override.Speed
	}
	if override.Pitch > 0 {
		out.Pitch = override.Pitch
	}
	return out
}

// TTS请求代表了文本对语音请求.
type TTSRequest struct {
	Text    string
	Options *SynthesisOptions
}

// TTSResponse代表来自TTS请求的回应.
type TTSResponse struct {
	TaskID    string
	Model     string
	AudioData []byte
	Format    string
	CharCount int
}

// TTS Provider定义了 TTS 提供者接口.
type TTSProvider interface {
	// 合成大小将文本转换为语音.
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)

	// SynthesizeTo 边合成边把音频帧写入 w.
	SynthesizeTo(ctx context.Context, req *TTSRequest, w io.Writer) (*TTSResponse, error)

	// 名称返回提供者名称 。
	Name() string
}

// ============================================================
// 语音对文字( STT)
// ============================================================

// 默认识别参数
const DefaultTranscriptionModel = "paraformer-v2"

// TranscriptionOptions 录音识别参数，绑定自 spring.ai.dashscope.audio.transcription.options.
type TranscriptionOptions struct {
	Model              string   `yaml:"model"`
	LanguageHints      []string `yaml:"language-hints"` // zh, en, ja, yue, ko ...
	DiarizationEnabled *bool    `yaml:"diarization-enabled"`
	SpeakerCount       int      `yaml:"speaker-count"`
}

// DefaultTranscriptionOptions 返回默认识别参数.
func DefaultTranscriptionOptions() TranscriptionOptions {
	return TranscriptionOptions{
		Model:         DefaultTranscriptionModel,
		LanguageHints: []string{"zh", "en"},
	}
}

// Merge 用 override 中已设置的字段覆盖 o.
func (o TranscriptionOptions) Merge(override *TranscriptionOptions) TranscriptionOptions {
	if override == nil {
		return o
	}
	out := o
	if override.Model != "" {
		out.Model = override.Model
	}
	if len(override.LanguageHints) > 0 {
		out.LanguageHints = override.LanguageHints
	}
	if override.DiarizationEnabled != nil {
		out.DiarizationEnabled = override.DiarizationEnabled
	}
	if override.SpeakerCount > 0 {
		out.SpeakerCount = override.SpeakerCount
	}
	return out
}

// STTRequest 识别一组可公网访问的录音文件.
type STTRequest struct {
	FileURLs []string
	Options  *TranscriptionOptions
}

// STTResponse代表来自STT请求的回应.
type STTResponse struct {
	TaskID string
	Model  string
	Text   string
	Files  []FileResult
}

// FileResult 单个文件的识别结果. Err 非 nil 表示该文件识别失败.
type FileResult struct {
	FileURL  string
	Text     string
	Segments []Segment
	Err      error
}

// 段代表已转录的部分.
type Segment struct {
	Start     int // ms
	End       int // ms
	Text      string
	SpeakerID *int
}

// STTProvider定义了STT提供者接口.
type STTProvider interface {
	// 将音频转换为文本.
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)

	// 名称返回提供者名称 。
	Name() string
}
