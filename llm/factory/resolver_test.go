package factory

import (
	"errors"
	"testing"

	"github.com/BaSui01/dashscope-starter/config"
	"github.com/BaSui01/dashscope-starter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func shared(baseURL, apiKey, workspace string) *config.ConnectionProperties {
	return &config.ConnectionProperties{
		ParentProperties: config.ParentProperties{BaseURL: baseURL, APIKey: apiKey, WorkspaceID: workspace},
		ReadTimeout:      config.DefaultReadTimeout,
	}
}

func TestResolveConnection(t *testing.T) {
	tests := []struct {
		name       string
		shared     *config.ConnectionProperties
		capability *config.ParentProperties
		want       ResolvedConnection
	}{
		{
			name:       "shared only",
			shared:     shared("", "sk-shared", ""),
			capability: &config.ParentProperties{},
			want:       ResolvedConnection{BaseURL: config.DefaultBaseURL, APIKey: "sk-shared"},
		},
		{
			name:       "capability wins per field",
			shared:     shared("https://shared.example", "sk-shared", "ws-shared"),
			capability: &config.ParentProperties{APIKey: "sk-cap"},
			want:       ResolvedConnection{BaseURL: "https://shared.example", APIKey: "sk-cap", WorkspaceID: "ws-shared"},
		},
		{
			name:       "all capability level",
			shared:     shared("", "sk-shared", ""),
			capability: &config.ParentProperties{BaseURL: "https://alt.example", APIKey: "sk-B", WorkspaceID: "ws-B"},
			want:       ResolvedConnection{BaseURL: "https://alt.example", APIKey: "sk-B", WorkspaceID: "ws-B"},
		},
		{
			name:       "nil capability descriptor",
			shared:     shared("", "sk-shared", ""),
			capability: nil,
			want:       ResolvedConnection{BaseURL: config.DefaultBaseURL, APIKey: "sk-shared"},
		},
		{
			name:       "blank capability value is absent",
			shared:     shared("", "sk-shared", ""),
			capability: &config.ParentProperties{APIKey: "  "},
			want:       ResolvedConnection{BaseURL: config.DefaultBaseURL, APIKey: "sk-shared"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveConnection(tt.shared, tt.capability, CapabilityChat)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveConnection_MissingAPIKey(t *testing.T) {
	_, err := ResolveConnection(shared("", "", ""), &config.ParentProperties{BaseURL: "https://x"}, CapabilitySpeechSynthesis)
	require.Error(t, err)

	var cfgErr *types.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "apiKey", cfgErr.Missing)
	assert.Equal(t, "audio.synthesis", cfgErr.Capability)

	_, err = ResolveConnection(nil, nil, CapabilityRerank)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "rerank", cfgErr.Capability)
}

func TestResolvedConnection_Masked(t *testing.T) {
	conn := ResolvedConnection{BaseURL: "https://x", APIKey: "sk-abcdef1234"}
	masked := conn.Masked()
	assert.Equal(t, "*********1234", masked.APIKey)
	assert.Equal(t, "sk-abcdef1234", conn.APIKey)
	assert.Equal(t, "****", maskAPIKey("abc"))
}

func TestCapability_Prefix(t *testing.T) {
	assert.Equal(t, config.ChatPrefix, CapabilityChat.Prefix())
	assert.Equal(t, config.AudioSynthesisPrefix, CapabilitySpeechSynthesis.Prefix())
	assert.Equal(t, config.AudioTranscriptionPrefix, CapabilityAudioTranscription.Prefix())
	assert.Equal(t, config.RerankPrefix, CapabilityRerank.Prefix())
	assert.Len(t, Capabilities(), 6)
}

// =============================================================================
// 属性测试
// =============================================================================

func optionalValue(prefix string) *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.Just(""),
		rapid.StringMatching(prefix+`[A-Za-z0-9]{1,12}`),
	)
}

func TestResolveConnection_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tag := rapid.SampledFrom(Capabilities()).Draw(t, "tag")
		s := shared(
			optionalValue("https://s").Draw(t, "sharedBase"),
			optionalValue("sk-s").Draw(t, "sharedKey"),
			optionalValue("ws-s").Draw(t, "sharedWorkspace"),
		)
		c := &config.ParentProperties{
			BaseURL:     optionalValue("https://c").Draw(t, "capBase"),
			APIKey:      optionalValue("sk-c").Draw(t, "capKey"),
			WorkspaceID: optionalValue("ws-c").Draw(t, "capWorkspace"),
		}

		got, err := ResolveConnection(s, c, tag)

		if c.APIKey == "" && s.APIKey == "" {
			var cfgErr *types.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Missing != "apiKey" || cfgErr.Capability != string(tag) {
				t.Fatalf("unexpected error %+v", cfgErr)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// 能力级值优先，其次共享值
		wantKey := c.APIKey
		if wantKey == "" {
			wantKey = s.APIKey
		}
		if got.APIKey != wantKey {
			t.Fatalf("apiKey = %q, want %q", got.APIKey, wantKey)
		}

		wantBase := c.BaseURL
		if wantBase == "" {
			wantBase = s.BaseURL
		}
		if wantBase == "" {
			wantBase = config.DefaultBaseURL
		}
		if got.BaseURL != wantBase {
			t.Fatalf("baseUrl = %q, want %q", got.BaseURL, wantBase)
		}

		wantWorkspace := c.WorkspaceID
		if wantWorkspace == "" {
			wantWorkspace = s.WorkspaceID
		}
		if got.WorkspaceID != wantWorkspace {
			t.Fatalf("workspaceId = %q, want %q", got.WorkspaceID, wantWorkspace)
		}
	})
}

func TestResolveConnection_IsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := shared("", rapid.StringMatching(`sk-[a-z]{1,8}`).Draw(t, "key"), "")
		c := &config.ParentProperties{BaseURL: optionalValue("https://c").Draw(t, "base")}
		before := *c

		first, err1 := ResolveConnection(s, c, CapabilityEmbedding)
		second, err2 := ResolveConnection(s, c, CapabilityEmbedding)
		if err1 != nil || err2 != nil || first != second {
			t.Fatalf("resolution is not deterministic: %v %v", first, second)
		}
		if *c != before {
			t.Fatalf("capability descriptor mutated: %+v", *c)
		}
	})
}

func TestParentOf(t *testing.T) {
	props := config.DefaultProperties()
	props.Rerank.APIKey = "sk-rerank"

	for _, tag := range Capabilities() {
		assert.NotNil(t, ParentOf(props, tag), tag)
	}
	assert.Equal(t, "sk-rerank", ParentOf(props, CapabilityRerank).APIKey)
	assert.Same(t, &props.Chat.ParentProperties, ParentOf(props, CapabilityChat))
	assert.Nil(t, ParentOf(props, Capability("video")))
	assert.Nil(t, ParentOf(nil, CapabilityChat))
}
