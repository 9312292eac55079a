package chat

// 默认对话参数
const (
	DefaultModel       = "qwen-plus"
	DefaultTemperature = 0.8

	// DefaultMaxToolRounds 单次调用内工具执行的最大轮数
	DefaultMaxToolRounds = 10
)

// Options 对话模型参数，绑定自 spring.ai.dashscope.chat.options。
// 指针字段为 nil 表示未设置，由服务端取默认值。
type Options struct {
	Model             string   `yaml:"model"`
	Temperature       *float64 `yaml:"temperature"`
	TopP              *float64 `yaml:"top-p"`
	TopK              *int     `yaml:"top-k"`
	Seed              *int     `yaml:"seed"`
	MaxTokens         *int     `yaml:"max-tokens"`
	Stop              []string `yaml:"stop"`
	EnableSearch      *bool    `yaml:"enable-search"`
	RepetitionPenalty *float64 `yaml:"repetition-penalty"`

	// ToolNames 需要暴露给模型的工具，由 ToolCallingManager 解析
	ToolNames []string `yaml:"tool-names"`
	// InternalToolExecutionEnabled 为 false 时模型返回 tool_calls 交由调用方处理
	InternalToolExecutionEnabled *bool `yaml:"internal-tool-execution-enabled"`
	MaxToolRounds                int   `yaml:"max-tool-rounds"`
}

// DefaultOptions 返回默认对话参数
func DefaultOptions() Options {
	t := DefaultTemperature
	return Options{
		Model:       DefaultModel,
		Temperature: &t,
	}
}

// Merge 用 override 中已设置的字段覆盖 o，返回新值
func (o Options) Merge(override *Options) Options {
	if override == nil {
		return o
	}
	out := o
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.TopK != nil {
		out.TopK = override.TopK
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if len(override.Stop) > 0 {
		out.Stop = override.Stop
	}
	if override.EnableSearch != nil {
		out.EnableSearch = override.EnableSearch
	}
	if override.RepetitionPenalty != nil {
		out.RepetitionPenalty = override.RepetitionPenalty
	}
	if len(override.ToolNames) > 0 {
		out.ToolNames = override.ToolNames
	}
	if override.InternalToolExecutionEnabled != nil {
		out.InternalToolExecutionEnabled = override.InternalToolExecutionEnabled
	}
	if override.MaxToolRounds > 0 {
		out.MaxToolRounds = override.MaxToolRounds
	}
	return out
}

func (o Options) internalToolExecution() bool {
	return o.InternalToolExecutionEnabled == nil || *o.InternalToolExecutionEnabled
}

func (o Options) maxToolRounds() int {
	if o.MaxToolRounds > 0 {
		return o.MaxToolRounds
	}
	return DefaultMaxToolRounds
}
