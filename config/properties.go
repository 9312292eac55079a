package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/BaSui01/dashscope-starter/llm/chat"
	"github.com/BaSui01/dashscope-starter/llm/embedding"
	"github.com/BaSui01/dashscope-starter/llm/image"
	"github.com/BaSui01/dashscope-starter/llm/rerank"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/llm/speech"
)

// =============================================================================
// 🎯 配置前缀
// =============================================================================

const (
	ConnectionPrefix         = "spring.ai.dashscope"
	ChatPrefix               = ConnectionPrefix + ".chat"
	ImagePrefix              = ConnectionPrefix + ".image"
	EmbeddingPrefix          = ConnectionPrefix + ".embedding"
	AudioSynthesisPrefix     = ConnectionPrefix + ".audio.synthesis"
	AudioTranscriptionPrefix = ConnectionPrefix + ".audio.transcription"
	RerankPrefix             = ConnectionPrefix + ".rerank"
	ObservationsPrefix       = ConnectionPrefix + ".observations"
	RetryPrefix              = "spring.ai.retry"
	LoggingPrefix            = "logging"
)

// =============================================================================
// 🔗 连接属性
// =============================================================================

// ParentProperties 所有能力共享的三个连接字段
type ParentProperties struct {
	BaseURL     string `yaml:"base-url"`
	APIKey      string `yaml:"api-key"`
	WorkspaceID string `yaml:"workspace-id"`
}

// ConnectionProperties 共享连接配置 (spring.ai.dashscope)
type ConnectionProperties struct {
	ParentProperties `yaml:",inline"`

	// ReadTimeout 读取超时（秒），统一作用于所有能力
	ReadTimeout int `yaml:"read-timeout"`
}

// ChatProperties 对话能力配置 (spring.ai.dashscope.chat)
type ChatProperties struct {
	ParentProperties `yaml:",inline"`
	Enabled          bool         `yaml:"enabled" bind:"lenient"`
	Options          chat.Options `yaml:"options"`
}

// ImageProperties 图像能力配置 (spring.ai.dashscope.image)
type ImageProperties struct {
	ParentProperties `yaml:",inline"`
	Enabled          bool          `yaml:"enabled" bind:"lenient"`
	Options          image.Options `yaml:"options"`
}

// EmbeddingProperties 向量能力配置 (spring.ai.dashscope.embedding)
type EmbeddingProperties struct {
	ParentProperties `yaml:",inline"`
	Enabled          bool                   `yaml:"enabled" bind:"lenient"`
	MetadataMode     embedding.MetadataMode `yaml:"metadata-mode"`
	Options          embedding.Options      `yaml:"options"`
}

// SpeechSynthesisProperties 语音合成配置 (spring.ai.dashscope.audio.synthesis)
type SpeechSynthesisProperties struct {
	ParentProperties `yaml:",inline"`
	Enabled          bool                    `yaml:"enabled" bind:"lenient"`
	Options          speech.SynthesisOptions `yaml:"options"`
}

// AudioTranscriptionProperties 录音识别配置 (spring.ai.dashscope.audio.transcription)
type AudioTranscriptionProperties struct {
	ParentProperties `yaml:",inline"`
	Enabled          bool                        `yaml:"enabled" bind:"lenient"`
	Options          speech.TranscriptionOptions `yaml:"options"`
}

// RerankProperties 重排能力配置 (spring.ai.dashscope.rerank)
type RerankProperties struct {
	ParentProperties `yaml:",inline"`
	Enabled          bool           `yaml:"enabled" bind:"lenient"`
	Options          rerank.Options `yaml:"options"`
}

// =============================================================================
// 🔁 重试 / 观测 / 日志
// =============================================================================

// RetryProperties 重试配置 (spring.ai.retry)
type RetryProperties struct {
	MaxAttempts    int             `yaml:"max-attempts"`
	Backoff        BackoffSettings `yaml:"backoff"`
	OnClientErrors bool            `yaml:"on-client-errors"`
}

// BackoffSettings 指数退避参数
type BackoffSettings struct {
	InitialInterval time.Duration `yaml:"initial-interval"`
	Multiplier      float64       `yaml:"multiplier"`
	MaxInterval     time.Duration `yaml:"max-interval"`
}

// Policy 转换为 retry.RetryPolicy
func (r RetryProperties) Policy() *retry.RetryPolicy {
	return &retry.RetryPolicy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.Backoff.InitialInterval,
		MaxInterval:     r.Backoff.MaxInterval,
		Multiplier:      r.Backoff.Multiplier,
		OnClientErrors:  r.OnClientErrors,
	}
}

// ObservationsProperties 观测配置 (spring.ai.dashscope.observations)
type ObservationsProperties struct {
	// 是否启用
	Enabled bool `yaml:"enabled"`
	// OTLP gRPC 端点
	OTLPEndpoint string `yaml:"otlp-endpoint"`
	// 服务名称
	ServiceName string `yaml:"service-name"`
	// 采样率
	SampleRate float64 `yaml:"sample-rate"`
	// Prometheus 指标命名空间
	MetricsNamespace string `yaml:"metrics-namespace"`
	// 额外的资源属性
	ResourceAttributes map[string]string `yaml:"resource-attributes"`
}

// LogConfig 日志配置 (logging)
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 输出格式: json, console
	Format string `yaml:"format"`
	// 输出路径
	OutputPaths []string `yaml:"output-paths"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable-caller"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable-stacktrace"`
}

// =============================================================================
// 📦 完整属性集
// =============================================================================

// Properties 所有描述符。prefix tag 指定各描述符绑定的配置前缀。
type Properties struct {
	Connection         ConnectionProperties         `prefix:"spring.ai.dashscope"`
	Chat               ChatProperties               `prefix:"spring.ai.dashscope.chat"`
	Image              ImageProperties              `prefix:"spring.ai.dashscope.image"`
	Embedding          EmbeddingProperties          `prefix:"spring.ai.dashscope.embedding"`
	SpeechSynthesis    SpeechSynthesisProperties    `prefix:"spring.ai.dashscope.audio.synthesis"`
	AudioTranscription AudioTranscriptionProperties `prefix:"spring.ai.dashscope.audio.transcription"`
	Rerank             RerankProperties             `prefix:"spring.ai.dashscope.rerank"`
	Retry              RetryProperties              `prefix:"spring.ai.retry"`
	Observations       ObservationsProperties       `prefix:"spring.ai.dashscope.observations"`
	Log                LogConfig                    `prefix:"logging"`
}

// Bind 从 env 绑定全部描述符。能力被禁用时其 options 仍会绑定。
func (p *Properties) Bind(env *Environment) error {
	v := reflect.ValueOf(p).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		prefix := t.Field(i).Tag.Get("prefix")
		if prefix == "" {
			continue
		}
		if err := Bind(env, prefix, v.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

// Validate 验证配置
func (p *Properties) Validate() error {
	var errs []string

	if p.Retry.MaxAttempts < 1 {
		errs = append(errs, "spring.ai.retry.max-attempts must be at least 1")
	}
	if p.Retry.Backoff.Multiplier < 1 {
		errs = append(errs, "spring.ai.retry.backoff.multiplier must be >= 1")
	}
	if p.Observations.SampleRate < 0 || p.Observations.SampleRate > 1 {
		errs = append(errs, "spring.ai.dashscope.observations.sample-rate must be between 0 and 1")
	}
	switch strings.ToLower(p.Log.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be json or console", p.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
