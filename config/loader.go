// =============================================================================
// 📦 DashScope 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML / .properties 文件 + 环境变量 + 显式属性
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("application.yaml").
//	    WithProperties(map[string]string{"spring.ai.dashscope.api-key": key}).
//	    Load()
//
// 配置优先级: 默认值 → 配置文件 → 环境变量 → 显式属性
// =============================================================================
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 加载结果：原始配置环境与绑定后的描述符。
// 装配器需要原始环境判断 "<prefix>.enabled" 是否显式出现。
type Config struct {
	Environment *Environment
	Properties  *Properties
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	environ    func() []string
	explicit   map[string]string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		environ:    os.Environ,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径。扩展名为 .properties 时按 key=value 解析，
// 其余按 YAML 解析。
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀：APP_SPRING_AI_DASHSCOPE_API_KEY 在前缀为 "APP" 时生效。
// 默认无前缀。
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnviron 替换环境变量来源，默认 os.Environ
func (l *Loader) WithEnviron(environ func() []string) *Loader {
	l.environ = environ
	return l
}

// WithProperties 添加显式属性，优先级最高
func (l *Loader) WithProperties(props map[string]string) *Loader {
	if l.explicit == nil {
		l.explicit = make(map[string]string, len(props))
	}
	for k, v := range props {
		l.explicit[k] = v
	}
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → 配置文件 → 环境变量 → 显式属性
func (l *Loader) Load() (*Config, error) {
	env := NewEnvironment()

	// 1. 配置文件
	if l.configPath != "" {
		values, err := l.loadFromFile()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		env.AddSource(SourceFile, values)
	}

	// 2. 环境变量
	env.AddFlatSource(SourceEnv, l.loadFromEnv())

	// 3. 显式属性
	if len(l.explicit) > 0 {
		env.AddSource(SourceExplicit, l.explicit)
	}

	// 4. 从默认值开始绑定
	props := DefaultProperties()
	if err := props.Bind(env); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	cfg := &Config{Environment: env, Properties: props}

	// 5. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 读取配置文件并展开为扁平键
func (l *Loader) loadFromFile() (map[string]string, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(l.configPath), ".properties") {
		return ParseProperties(data)
	}
	return ParseYAML(data)
}

// loadFromEnv 收集环境变量，去掉前缀
func (l *Loader) loadFromEnv() map[string]string {
	prefix := ""
	if l.envPrefix != "" {
		prefix = strings.ToUpper(l.envPrefix) + "_"
	}
	out := make(map[string]string)
	for _, kv := range l.environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if prefix != "" {
			if !strings.HasPrefix(strings.ToUpper(k), prefix) {
				continue
			}
			k = k[len(prefix):]
		}
		out[k] = v
	}
	return out
}

// =============================================================================
// 📄 文件格式
// =============================================================================

// ParseYAML 把 YAML 文档展开为点分键。列表元素以 key[i] 表示，null 视为空值。
func ParseYAML(data []byte) (map[string]string, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	out := make(map[string]string)
	flattenYAML("", root, out)
	return out, nil
}

func flattenYAML(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			flattenYAML(joinKey(prefix, k), child, out)
		}
	case map[any]any:
		for k, child := range v {
			flattenYAML(joinKey(prefix, fmt.Sprint(k)), child, out)
		}
	case []any:
		for i, child := range v {
			flattenYAML(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

// ParseProperties 解析 Java 风格的 .properties 文件：
// "#" / "!" 注释，key=value 或 key: value，行尾反斜杠续行。
func ParseProperties(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	var pending string
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if pending == "" && (line == "" || line[0] == '#' || line[0] == '!') {
			continue
		}
		if strings.HasSuffix(line, `\`) {
			pending += strings.TrimSuffix(line, `\`)
			continue
		}
		line = pending + line
		pending = ""

		idx := strings.IndexAny(line, "=:")
		if idx <= 0 {
			return nil, fmt.Errorf("properties line %d: missing separator in %q", lineNo, line)
		}
		out[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx+1:])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}
	if pending != "" {
		return nil, fmt.Errorf("properties: unterminated continuation line")
	}
	return out, nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// LoadFromMap 仅从显式属性加载配置，不读取环境变量
func LoadFromMap(props map[string]string) (*Config, error) {
	return NewLoader().WithEnviron(func() []string { return nil }).WithProperties(props).Load()
}

// Validate 验证已绑定的描述符
func (c *Config) Validate() error {
	return c.Properties.Validate()
}
