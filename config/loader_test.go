// 配置加载器与默认配置测试。
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/dashscope-starter/llm/chat"
	"github.com/BaSui01/dashscope-starter/llm/embedding"
	"github.com/BaSui01/dashscope-starter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnviron() []string { return nil }

// --- 默认配置测试 ---

func TestDefaultProperties(t *testing.T) {
	p := DefaultProperties()

	assert.Equal(t, DefaultBaseURL, p.Connection.BaseURL)
	assert.Equal(t, "https://dashscope.aliyuncs.com", p.Connection.BaseURL)
	assert.Equal(t, DefaultReadTimeout, p.Connection.ReadTimeout)
	assert.Empty(t, p.Connection.APIKey)

	for name, enabled := range map[string]bool{
		"chat":                p.Chat.Enabled,
		"image":               p.Image.Enabled,
		"embedding":           p.Embedding.Enabled,
		"audio.synthesis":     p.SpeechSynthesis.Enabled,
		"audio.transcription": p.AudioTranscription.Enabled,
		"rerank":              p.Rerank.Enabled,
	} {
		assert.True(t, enabled, name)
	}

	// 能力描述符不设 base-url 默认值
	assert.Empty(t, p.Chat.BaseURL)
	assert.Empty(t, p.Embedding.BaseURL)

	assert.Equal(t, "qwen-plus", p.Chat.Options.Model)
	require.NotNil(t, p.Chat.Options.Temperature)
	assert.Equal(t, 0.8, *p.Chat.Options.Temperature)
	assert.Equal(t, embedding.MetadataModeEmbed, p.Embedding.MetadataMode)
	assert.Equal(t, "text-embedding-v1", p.Embedding.Options.Model)

	assert.Equal(t, 10, p.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Retry.Backoff.InitialInterval)
	assert.Equal(t, 3*time.Minute, p.Retry.Backoff.MaxInterval)
	assert.NoError(t, p.Validate())
}

func TestRetryProperties_Policy(t *testing.T) {
	r := DefaultRetryProperties()
	r.OnClientErrors = true
	policy := r.Policy()
	assert.Equal(t, 10, policy.MaxAttempts)
	assert.Equal(t, 5.0, policy.Multiplier)
	assert.True(t, policy.OnClientErrors)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithEnviron(noEnviron).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultProperties(), cfg.Properties)
	assert.Equal(t, []string{SourceEnv}, cfg.Environment.Sources())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "application.yaml")

	yamlContent := `
spring:
  ai:
    dashscope:
      api-key: sk-yaml
      workspaceId: ws-1
      read-timeout: 120
      chat:
        options:
          model: qwen-max
          top-p: 0.9
          stop:
            - "###"
            - END
      embedding:
        enabled: false
        metadata-mode: NONE
        options:
          dimensions: 1024
      observations:
        resource-attributes:
          deployment.environment: staging
    retry:
      max-attempts: 3
      backoff:
        initial-interval: 500ms
logging:
  level: debug
  output-paths: [stderr]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).WithEnviron(noEnviron).Load()
	require.NoError(t, err)
	p := cfg.Properties

	assert.Equal(t, "sk-yaml", p.Connection.APIKey)
	assert.Equal(t, "ws-1", p.Connection.WorkspaceID)
	assert.Equal(t, 120, p.Connection.ReadTimeout)
	assert.Equal(t, DefaultBaseURL, p.Connection.BaseURL)

	assert.Equal(t, "qwen-max", p.Chat.Options.Model)
	require.NotNil(t, p.Chat.Options.TopP)
	assert.Equal(t, 0.9, *p.Chat.Options.TopP)
	assert.Equal(t, []string{"###", "END"}, p.Chat.Options.Stop)
	// 未配置的字段保留默认值
	assert.Equal(t, chat.DefaultTemperature, *p.Chat.Options.Temperature)

	// 禁用的能力其 options 仍然绑定
	assert.False(t, p.Embedding.Enabled)
	assert.Equal(t, embedding.MetadataModeNone, p.Embedding.MetadataMode)
	require.NotNil(t, p.Embedding.Options.Dimensions)
	assert.Equal(t, 1024, *p.Embedding.Options.Dimensions)

	assert.Equal(t, map[string]string{"deployment.environment": "staging"}, p.Observations.ResourceAttributes)
	assert.Equal(t, 3, p.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.Retry.Backoff.InitialInterval)
	assert.Equal(t, "debug", p.Log.Level)
	assert.Equal(t, []string{"stderr"}, p.Log.OutputPaths)

	v, ok := cfg.Environment.Get("spring.ai.dashscope.embedding.enabled")
	assert.True(t, ok)
	assert.Equal(t, "false", v)
}

func TestLoader_LoadFromProperties(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "application.properties")

	content := `# shared connection
spring.ai.dashscope.api-key=sk-props
spring.ai.dashscope.image.enabled = FALSE
! continuation
spring.ai.dashscope.rerank.options.model: \
  gte-rerank-v2
spring.ai.dashscope.audio.transcription.options.language-hints=ja,ko
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).WithEnviron(noEnviron).Load()
	require.NoError(t, err)
	p := cfg.Properties

	assert.Equal(t, "sk-props", p.Connection.APIKey)
	assert.False(t, p.Image.Enabled)
	assert.Equal(t, "gte-rerank-v2", p.Rerank.Options.Model)
	assert.Equal(t, []string{"ja", "ko"}, p.AudioTranscription.Options.LanguageHints)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).
		WithEnviron(noEnviron).
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultReadTimeout, cfg.Properties.Connection.ReadTimeout)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("spring: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).WithEnviron(noEnviron).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("spring.ai.dashscope.api-key: sk-file\n"), 0o644))

	environ := func() []string {
		return []string{
			"SPRING_AI_DASHSCOPE_API_KEY=sk-env",
			"SPRING_AI_DASHSCOPE_CHAT_OPTIONS_MAX_TOKENS=256",
			"SPRING_AI_DASHSCOPE_WORKSPACE_ID=",
			"PATH=/usr/bin",
		}
	}
	cfg, err := NewLoader().WithConfigPath(configPath).WithEnviron(environ).Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.Properties.Connection.APIKey)
	require.NotNil(t, cfg.Properties.Chat.Options.MaxTokens)
	assert.Equal(t, 256, *cfg.Properties.Chat.Options.MaxTokens)
	assert.Empty(t, cfg.Properties.Connection.WorkspaceID)
}

func TestLoader_EnvPrefix(t *testing.T) {
	environ := func() []string {
		return []string{
			"MYAPP_SPRING_AI_DASHSCOPE_API_KEY=sk-prefixed",
			"SPRING_AI_DASHSCOPE_BASE_URL=https://ignored.example",
		}
	}
	cfg, err := NewLoader().WithEnvPrefix("myapp").WithEnviron(environ).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", cfg.Properties.Connection.APIKey)
	assert.Equal(t, DefaultBaseURL, cfg.Properties.Connection.BaseURL)
}

func TestLoader_ExplicitPropertiesWin(t *testing.T) {
	t.Setenv("SPRING_AI_DASHSCOPE_API_KEY", "sk-env")

	cfg, err := NewLoader().
		WithProperties(map[string]string{"spring.ai.dashscope.apiKey": "sk-explicit"}).
		Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-explicit", cfg.Properties.Connection.APIKey)

	// 空的显式值视为未设置
	cfg, err = NewLoader().
		WithProperties(map[string]string{"spring.ai.dashscope.api-key": ""}).
		Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Properties.Connection.APIKey)
}

func TestLoader_BindingError(t *testing.T) {
	_, err := LoadFromMap(map[string]string{"spring.ai.dashscope.read-timeout": "soon"})
	require.Error(t, err)

	var be *types.BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "spring.ai.dashscope.read-timeout", be.Key)
	assert.Equal(t, "soon", be.Value)
}

func TestLoader_Validator(t *testing.T) {
	_, err := NewLoader().
		WithEnviron(noEnviron).
		WithProperties(map[string]string{"spring.ai.dashscope.observations.sample-rate": "1.5"}).
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample-rate")
}

func TestParseProperties_MissingSeparator(t *testing.T) {
	_, err := ParseProperties([]byte("just-a-key\n"))
	assert.Error(t, err)
}

func TestMustLoad_PanicsOnBadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.properties")
	require.NoError(t, os.WriteFile(configPath, []byte("novalue\n"), 0o644))
	assert.Panics(t, func() { MustLoad(configPath) })
}

func TestLoader_CapabilityEnabledSpellings(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{
		"spring.ai.dashscope.chat.enabled":      "on",
		"spring.ai.dashscope.image.enabled":     "off",
		"spring.ai.dashscope.embedding.enabled": "no",
		"spring.ai.dashscope.rerank.enabled":    "enabled",
	})
	require.NoError(t, err)
	assert.True(t, cfg.Properties.Chat.Enabled)
	assert.False(t, cfg.Properties.Image.Enabled)
	assert.False(t, cfg.Properties.Embedding.Enabled)
	assert.True(t, cfg.Properties.Rerank.Enabled)
}

func TestLoader_IndexedListFromEnv(t *testing.T) {
	environ := func() []string {
		return []string{
			"SPRING_AI_DASHSCOPE_CHAT_OPTIONS_STOP_0_=###",
			"SPRING_AI_DASHSCOPE_CHAT_OPTIONS_STOP_1_=END",
		}
	}
	cfg, err := NewLoader().WithEnviron(environ).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"###", "END"}, cfg.Properties.Chat.Options.Stop)
}
