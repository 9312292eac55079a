// =============================================================================
// 📦 DashScope 默认配置
// =============================================================================
// 提供所有描述符的默认值。能力描述符不设 base-url 默认值，
// 由连接解析落到共享配置或平台默认地址。
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/dashscope-starter/llm/chat"
	"github.com/BaSui01/dashscope-starter/llm/embedding"
	"github.com/BaSui01/dashscope-starter/llm/image"
	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/rerank"
	"github.com/BaSui01/dashscope-starter/llm/speech"
)

const (
	// DefaultBaseURL 平台默认地址
	DefaultBaseURL = dashscope.DefaultHTTPBaseURL

	// DefaultReadTimeout 默认读取超时（秒）
	DefaultReadTimeout = 60
)

// DefaultProperties 返回默认属性集
func DefaultProperties() *Properties {
	return &Properties{
		Connection: DefaultConnectionProperties(),
		Chat: ChatProperties{
			Enabled: true,
			Options: chat.DefaultOptions(),
		},
		Image: ImageProperties{
			Enabled: true,
			Options: image.DefaultOptions(),
		},
		Embedding: EmbeddingProperties{
			Enabled:      true,
			MetadataMode: embedding.MetadataModeEmbed,
			Options:      embedding.DefaultOptions(),
		},
		SpeechSynthesis: SpeechSynthesisProperties{
			Enabled: true,
			Options: speech.DefaultSynthesisOptions(),
		},
		AudioTranscription: AudioTranscriptionProperties{
			Enabled: true,
			Options: speech.DefaultTranscriptionOptions(),
		},
		Rerank: RerankProperties{
			Enabled: true,
			Options: rerank.DefaultOptions(),
		},
		Retry:        DefaultRetryProperties(),
		Observations: DefaultObservationsProperties(),
		Log:          DefaultLogConfig(),
	}
}

// DefaultConnectionProperties 返回默认共享连接配置
func DefaultConnectionProperties() ConnectionProperties {
	return ConnectionProperties{
		ParentProperties: ParentProperties{BaseURL: DefaultBaseURL},
		ReadTimeout:      DefaultReadTimeout,
	}
}

// DefaultRetryProperties 返回与 spring.ai.retry 一致的默认重试配置
func DefaultRetryProperties() RetryProperties {
	return RetryProperties{
		MaxAttempts: 10,
		Backoff: BackoffSettings{
			InitialInterval: 2 * time.Second,
			Multiplier:      5,
			MaxInterval:     3 * time.Minute,
		},
	}
}

// DefaultObservationsProperties 返回默认观测配置
func DefaultObservationsProperties() ObservationsProperties {
	return ObservationsProperties{
		Enabled:          false,
		OTLPEndpoint:     "localhost:4317",
		ServiceName:      "dashscope-starter",
		SampleRate:       0.1,
		MetricsNamespace: "dashscope",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
