package factory

import (
	"context"
	"fmt"

	"github.com/BaSui01/dashscope-starter/config"
	"github.com/BaSui01/dashscope-starter/internal/metrics"
	"github.com/BaSui01/dashscope-starter/llm"
	"github.com/BaSui01/dashscope-starter/llm/chat"
	"github.com/BaSui01/dashscope-starter/llm/embedding"
	"github.com/BaSui01/dashscope-starter/llm/image"
	"github.com/BaSui01/dashscope-starter/llm/observability"
	"github.com/BaSui01/dashscope-starter/llm/providers/dashscope"
	"github.com/BaSui01/dashscope-starter/llm/rerank"
	"github.com/BaSui01/dashscope-starter/llm/retry"
	"github.com/BaSui01/dashscope-starter/llm/speech"
	"github.com/BaSui01/dashscope-starter/llm/tools"
	"github.com/BaSui01/dashscope-starter/transport"
	"go.uber.org/zap"
)

// 注册到组件注册表的名称
const (
	RestClientCustomizerName    = "restClientCustomizer"
	RestClientBuilderName       = "restClientBuilder"
	WebClientBuilderName        = "webClientBuilder"
	ChatModelName               = "dashscopeChatModel"
	AgentAPIName                = "dashscopeAgentApi"
	ImageModelName              = "dashScopeImageModel"
	EmbeddingModelName          = "dashscopeEmbeddingModel"
	SpeechSynthesisModelName    = "dashScopeSpeechSynthesisModel"
	AudioTranscriptionModelName = "dashScopeAudioTranscriptionModel"
	RerankModelName             = "dashscopeRerankModel"
)

// 装配结果，用于日志与指标
const (
	OutcomeRegistered = "registered"
	OutcomeDisabled   = "disabled"
	OutcomeOverridden = "overridden"
	OutcomeFailed     = "failed"
)

// Option 配置 Assembler
type Option func(*Assembler)

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.base = logger
		}
	}
}

// WithMetrics 记录每个能力的装配结果
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Assembler) {
		a.metrics = c
	}
}

// Assembler 条件装配器。
// 对每个能力依次检查 enabled 开关、注册表中是否已有同类型组件，
// 都通过时才调用默认工厂并把结果注册进注册表。
type Assembler struct {
	env      *config.Environment
	props    *config.Properties
	registry *llm.Registry
	base     *zap.Logger // 传给 API 客户端与模型
	logger   *zap.Logger
	metrics  *metrics.Collector

	// 以下协作者在 Assemble 开始时解析一次
	policy        *retry.RetryPolicy
	errorHandler  transport.ResponseErrorHandler
	clientBuilder *transport.ClientBuilder
	asyncBuilder  *transport.AsyncClientBuilder
	observations  observability.Registry
}

// NewAssembler 创建装配器。env 提供原始键，用于判断 enabled 是否被显式设置；
// 为 nil 时只看 props 中绑定后的值。
func NewAssembler(env *config.Environment, props *config.Properties, registry *llm.Registry, opts ...Option) *Assembler {
	if props == nil {
		props = config.DefaultProperties()
	}
	if registry == nil {
		registry = llm.NewRegistry()
	}
	a := &Assembler{
		env:      env,
		props:    props,
		registry: registry,
		base:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.base.With(zap.String("component", "dashscope_assembler"))
	return a
}

// Registry 返回装配目标注册表
func (a *Assembler) Registry() *llm.Registry { return a.registry }

type capabilityStep struct {
	tag      Capability
	enabled  bool
	override func(*llm.Registry) bool
	build    func(ctx context.Context) error
}

// Assemble 按固定顺序装配：传输定制器、chat（含 Agent）、image、embedding、
// audio.synthesis、audio.transcription、rerank。遇到第一个错误即返回。
func (a *Assembler) Assemble(ctx context.Context) error {
	if err := a.assembleTransport(); err != nil {
		return err
	}
	a.resolveCollaborators()

	p := a.props
	steps := []capabilityStep{
		{CapabilityChat, p.Chat.Enabled, llm.Has[*chat.Model], a.buildChat},
		{CapabilityImage, p.Image.Enabled, llm.Has[*image.Model], a.buildImage},
		{CapabilityEmbedding, p.Embedding.Enabled, llm.Has[*embedding.Model], a.buildEmbedding},
		{CapabilitySpeechSynthesis, p.SpeechSynthesis.Enabled, llm.Has[*speech.SynthesisModel], a.buildSpeechSynthesis},
		{CapabilityAudioTranscription, p.AudioTranscription.Enabled, llm.Has[*speech.TranscriptionModel], a.buildAudioTranscription},
		{CapabilityRerank, p.Rerank.Enabled, llm.Has[*rerank.Model], a.buildRerank},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) runStep(ctx context.Context, step capabilityStep) error {
	log := a.logger.With(zap.String("capability", string(step.tag)))

	if !a.isEnabled(step.tag, step.enabled) {
		log.Info("capability disabled, skipping")
		a.record(step.tag, OutcomeDisabled)
		return nil
	}

	// Agent API 不受覆盖判断影响，chat 启用即注册
	if step.tag == CapabilityChat {
		if err := a.buildAgent(); err != nil {
			a.record(step.tag, OutcomeFailed)
			return err
		}
	}

	if step.override(a.registry) {
		log.Info("user-supplied component present, skipping default factory")
		a.record(step.tag, OutcomeOverridden)
		return nil
	}

	if err := step.build(ctx); err != nil {
		a.record(step.tag, OutcomeFailed)
		return err
	}
	a.record(step.tag, OutcomeRegistered)
	return nil
}

// isEnabled 原始键 "<prefix>.enabled" 存在时，值为 false/off/no/0 才禁用，
// 无法识别的值视为启用；不存在时使用绑定后的描述符值。
// 与描述符绑定使用同一解析规则，两者结论一致。
func (a *Assembler) isEnabled(tag Capability, bound bool) bool {
	if raw, ok := a.env.Get(tag.Prefix() + ".enabled"); ok {
		on, known := config.ParseBool(raw)
		return on || !known
	}
	return bound
}

// Enabled 报告能力是否通过 enabled 开关，不检查覆盖与凭据
func (a *Assembler) Enabled(tag Capability) bool {
	var bound bool
	p := a.props
	switch tag {
	case CapabilityChat:
		bound = p.Chat.Enabled
	case CapabilityImage:
		bound = p.Image.Enabled
	case CapabilityEmbedding:
		bound = p.Embedding.Enabled
	case CapabilitySpeechSynthesis:
		bound = p.SpeechSynthesis.Enabled
	case CapabilityAudioTranscription:
		bound = p.AudioTranscription.Enabled
	case CapabilityRerank:
		bound = p.Rerank.Enabled
	default:
		return false
	}
	return a.isEnabled(tag, bound)
}

func (a *Assembler) record(tag Capability, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordAssembly(string(tag), outcome)
	}
}

// =============================================================================
// 协作者
// =============================================================================

// assembleTransport 注册读取超时定制器，并把所有已注册的定制器应用到共享同步构建器
func (a *Assembler) assembleTransport() error {
	customizer := transport.ReadTimeoutCustomizer(a.props.Connection.ReadTimeout)
	if err := a.registry.Register(RestClientCustomizerName, customizer); err != nil {
		return fmt.Errorf("register %s: %w", RestClientCustomizerName, err)
	}

	builder, err := llm.Unique[*transport.ClientBuilder](a.registry)
	if err != nil {
		builder = transport.NewClientBuilder()
		if err := a.registry.Register(RestClientBuilderName, builder); err != nil {
			return fmt.Errorf("register %s: %w", RestClientBuilderName, err)
		}
	}
	builder.Apply(llm.FindAll[transport.Customizer](a.registry)...)
	a.clientBuilder = builder

	async, err := llm.Unique[*transport.AsyncClientBuilder](a.registry)
	if err != nil {
		async = transport.NewAsyncClientBuilder()
		if err := a.registry.Register(WebClientBuilderName, async); err != nil {
			return fmt.Errorf("register %s: %w", WebClientBuilderName, err)
		}
	}
	a.asyncBuilder = async

	a.logger.Info("transport customizer registered",
		zap.Int("read_timeout_seconds", a.props.Connection.ReadTimeout))
	return nil
}

func (a *Assembler) resolveCollaborators() {
	a.policy = llm.IfUnique(a.registry, a.props.Retry.Policy())
	a.errorHandler = llm.IfUnique[transport.ResponseErrorHandler](a.registry, transport.NewDefaultResponseErrorHandler())
	a.observations = llm.IfUnique(a.registry, observability.Noop)
}

// httpOptions 同步/异步构建器、错误处理器与工作空间
func (a *Assembler) httpOptions(conn ResolvedConnection) []dashscope.Option {
	opts := []dashscope.Option{
		dashscope.WithClientBuilder(a.clientBuilder),
		dashscope.WithAsyncClientBuilder(a.asyncBuilder),
		dashscope.WithErrorHandler(a.errorHandler),
		dashscope.WithLogger(a.base),
	}
	if conn.WorkspaceID != "" {
		opts = append(opts, dashscope.WithWorkspace(conn.WorkspaceID))
	}
	return opts
}

func (a *Assembler) resolve(capability *config.ParentProperties, tag Capability) (ResolvedConnection, error) {
	conn, err := ResolveConnection(&a.props.Connection, capability, tag)
	if err != nil {
		a.logger.Error("connection resolution failed",
			zap.String("capability", string(tag)), zap.Error(err))
		return ResolvedConnection{}, err
	}
	return conn, nil
}

func (a *Assembler) register(tag Capability, name string, component any, conn ResolvedConnection, opts ...llm.RegisterOption) error {
	if err := a.registry.Register(name, component, opts...); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	a.logger.Info("component registered",
		zap.String("capability", string(tag)),
		zap.String("name", name),
		zap.String("base_url", conn.BaseURL),
		zap.Bool("workspace", conn.WorkspaceID != ""),
		zap.String("api_key", maskAPIKey(conn.APIKey)))
	return nil
}

// =============================================================================
// 能力工厂
// =============================================================================

func (a *Assembler) buildChat(context.Context) error {
	p := &a.props.Chat
	conn, err := a.resolve(&p.ParentProperties, CapabilityChat)
	if err != nil {
		return err
	}
	api, err := dashscope.NewAPI(conn.BaseURL, conn.APIKey, a.httpOptions(conn)...)
	if err != nil {
		return fmt.Errorf("create dashscope chat api: %w", err)
	}

	toolManager := llm.IfUnique[tools.ToolCallingManager](a.registry, nil)
	if toolManager == nil {
		toolManager = tools.NewDefaultToolCallingManager(tools.NewRegistry(a.base), a.base)
	}

	model := chat.NewModel(api, p.Options, a.policy, toolManager, a.observations, a.base)
	if conv := llm.IfUnique[observability.ChatModelObservationConvention](a.registry, nil); conv != nil {
		model.SetObservationConvention(conv)
	}
	return a.register(CapabilityChat, ChatModelName, model, conn)
}

func (a *Assembler) buildAgent() error {
	conn, err := a.resolve(&a.props.Chat.ParentProperties, CapabilityChat)
	if err != nil {
		return err
	}
	agent, err := dashscope.NewAgentAPI(conn.BaseURL, conn.APIKey, a.httpOptions(conn)...)
	if err != nil {
		return fmt.Errorf("create dashscope agent api: %w", err)
	}
	return a.register(CapabilityChat, AgentAPIName, agent, conn)
}

func (a *Assembler) buildImage(context.Context) error {
	p := &a.props.Image
	conn, err := a.resolve(&p.ParentProperties, CapabilityImage)
	if err != nil {
		return err
	}
	api, err := dashscope.NewImageAPI(conn.BaseURL, conn.APIKey, a.httpOptions(conn)...)
	if err != nil {
		return fmt.Errorf("create dashscope image api: %w", err)
	}
	model := image.NewModel(api, p.Options, a.policy, a.base)
	return a.register(CapabilityImage, ImageModelName, model, conn)
}

func (a *Assembler) buildEmbedding(context.Context) error {
	p := &a.props.Embedding
	conn, err := a.resolve(&p.ParentProperties, CapabilityEmbedding)
	if err != nil {
		return err
	}
	api, err := dashscope.NewAPI(conn.BaseURL, conn.APIKey, a.httpOptions(conn)...)
	if err != nil {
		return fmt.Errorf("create dashscope embedding api: %w", err)
	}
	model := embedding.NewModel(api, p.MetadataMode, p.Options, a.policy, a.observations, a.base)
	if conv := llm.IfUnique[observability.EmbeddingModelObservationConvention](a.registry, nil); conv != nil {
		model.SetObservationConvention(conv)
	}
	return a.register(CapabilityEmbedding, EmbeddingModelName, model, conn, llm.Primary())
}

// 语音合成与录音识别只接收 api-key，使用客户端内部固定的传输
func (a *Assembler) buildSpeechSynthesis(context.Context) error {
	p := &a.props.SpeechSynthesis
	conn, err := a.resolve(&p.ParentProperties, CapabilitySpeechSynthesis)
	if err != nil {
		return err
	}
	api, err := dashscope.NewSpeechSynthesisAPI(conn.APIKey, dashscope.WithLogger(a.base))
	if err != nil {
		return fmt.Errorf("create dashscope speech synthesis api: %w", err)
	}
	model := speech.NewSynthesisModel(api, p.Options, a.policy, a.base)
	return a.register(CapabilitySpeechSynthesis, SpeechSynthesisModelName, model,
		ResolvedConnection{BaseURL: api.URL(), APIKey: conn.APIKey})
}

func (a *Assembler) buildAudioTranscription(context.Context) error {
	p := &a.props.AudioTranscription
	conn, err := a.resolve(&p.ParentProperties, CapabilityAudioTranscription)
	if err != nil {
		return err
	}
	api, err := dashscope.NewAudioTranscriptionAPI("", conn.APIKey, dashscope.WithLogger(a.base))
	if err != nil {
		return fmt.Errorf("create dashscope audio transcription api: %w", err)
	}
	model := speech.NewTranscriptionModel(api, p.Options, a.policy, a.base)
	return a.register(CapabilityAudioTranscription, AudioTranscriptionModelName, model,
		ResolvedConnection{BaseURL: api.BaseURL(), APIKey: conn.APIKey})
}

func (a *Assembler) buildRerank(context.Context) error {
	p := &a.props.Rerank
	conn, err := a.resolve(&p.ParentProperties, CapabilityRerank)
	if err != nil {
		return err
	}
	api, err := dashscope.NewAPI(conn.BaseURL, conn.APIKey, a.httpOptions(conn)...)
	if err != nil {
		return fmt.Errorf("create dashscope rerank api: %w", err)
	}
	model := rerank.NewModel(api, p.Options, a.policy, a.base)
	return a.register(CapabilityRerank, RerankModelName, model, conn)
}
