package factory

import (
	"strings"

	"github.com/BaSui01/dashscope-starter/config"
	"github.com/BaSui01/dashscope-starter/types"
)

// Capability 能力标签，出现在配置错误与日志中
type Capability string

const (
	CapabilityChat               Capability = "chat"
	CapabilityImage              Capability = "image"
	CapabilityEmbedding          Capability = "embedding"
	CapabilitySpeechSynthesis    Capability = "audio.synthesis"
	CapabilityAudioTranscription Capability = "audio.transcription"
	CapabilityRerank             Capability = "rerank"
)

// Capabilities 按装配顺序返回全部能力标签
func Capabilities() []Capability {
	return []Capability{
		CapabilityChat,
		CapabilityImage,
		CapabilityEmbedding,
		CapabilitySpeechSynthesis,
		CapabilityAudioTranscription,
		CapabilityRerank,
	}
}

// Prefix 返回能力的配置前缀
func (c Capability) Prefix() string {
	return config.ConnectionPrefix + "." + string(c)
}

// ParentOf 返回 props 中该能力的连接覆盖；未知标签返回 nil
func ParentOf(props *config.Properties, tag Capability) *config.ParentProperties {
	if props == nil {
		return nil
	}
	switch tag {
	case CapabilityChat:
		return &props.Chat.ParentProperties
	case CapabilityImage:
		return &props.Image.ParentProperties
	case CapabilityEmbedding:
		return &props.Embedding.ParentProperties
	case CapabilitySpeechSynthesis:
		return &props.SpeechSynthesis.ParentProperties
	case CapabilityAudioTranscription:
		return &props.AudioTranscription.ParentProperties
	case CapabilityRerank:
		return &props.Rerank.ParentProperties
	}
	return nil
}

// ResolvedConnection 某个能力最终生效的连接参数。
// WorkspaceID 为空表示不限定工作空间。
type ResolvedConnection struct {
	BaseURL     string `json:"base_url" yaml:"base-url"`
	APIKey      string `json:"api_key" yaml:"api-key"`
	WorkspaceID string `json:"workspace_id,omitempty" yaml:"workspace-id,omitempty"`
}

// Masked 返回 API Key 脱敏后的副本，用于日志与展示
func (r ResolvedConnection) Masked() ResolvedConnection {
	r.APIKey = maskAPIKey(r.APIKey)
	return r
}

// ResolveConnection 逐字段合并连接属性：能力级非空值优先，其次是共享值，
// base-url 最后落到平台默认地址。空字符串视为未设置。
// 解析后仍缺少 api-key 或 base-url 时返回 *types.ConfigurationError。
func ResolveConnection(shared *config.ConnectionProperties, capability *config.ParentProperties, tag Capability) (ResolvedConnection, error) {
	var s, c config.ParentProperties
	if shared != nil {
		s = shared.ParentProperties
	}
	if capability != nil {
		c = *capability
	}

	resolved := ResolvedConnection{
		BaseURL:     firstNonEmpty(c.BaseURL, s.BaseURL, config.DefaultBaseURL),
		APIKey:      firstNonEmpty(c.APIKey, s.APIKey),
		WorkspaceID: firstNonEmpty(c.WorkspaceID, s.WorkspaceID),
	}

	if resolved.APIKey == "" {
		return ResolvedConnection{}, &types.ConfigurationError{Missing: "apiKey", Capability: string(tag)}
	}
	if resolved.BaseURL == "" {
		return ResolvedConnection{}, &types.ConfigurationError{Missing: "baseUrl", Capability: string(tag)}
	}
	return resolved, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// maskAPIKey 脱敏 API Key，仅显示末 4 位
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
