package config

import (
	"sort"
	"strings"
)

// =============================================================================
// 🔑 宽松键匹配
// =============================================================================

// NormalizeKey 返回键的规范形式：按 "." 分段，每段转小写并去掉 "-" 与 "_"。
// apiKey、api-key、api_key、API_KEY 规范化后都是 apikey。
// 列表下标（如 "stop[0]"）原样保留。
func NormalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.TrimSpace(key) {
		switch {
		case r == '-' || r == '_':
			continue
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// flattenKey 去掉所有分隔符与下标括号，用于匹配环境变量。
// stop[0] 与 STOP_0_ 展平后都是 stop0。
func flattenKey(key string) string {
	return flatReplacer.Replace(NormalizeKey(key))
}

var flatReplacer = strings.NewReplacer(".", "", "[", "", "]", "")

// =============================================================================
// 🌐 配置源
// =============================================================================

// 配置源名称
const (
	SourceDefaults = "defaults"
	SourceFile     = "file"
	SourceEnv      = "env"
	SourceExplicit = "explicit"
)

type entry struct {
	key   string // 原始键
	value string
}

type source struct {
	name string
	// flat 为 true 时键不含层级信息（环境变量），按去掉全部分隔符后的形式匹配
	flat    bool
	entries map[string]entry
}

// Environment 分层的扁平配置源。后加入的源优先级更高；
// 空字符串值视为未设置，查找会继续落到低优先级的源。
type Environment struct {
	sources []*source
}

// NewEnvironment 创建空的配置环境
func NewEnvironment() *Environment {
	return &Environment{}
}

// EnvironmentFromMap 以单个显式源创建配置环境，便于测试与嵌入式使用
func EnvironmentFromMap(values map[string]string) *Environment {
	return NewEnvironment().AddSource(SourceExplicit, values)
}

// AddSource 追加一个分层键源（YAML、.properties、显式 map），优先级高于已有源
func (e *Environment) AddSource(name string, values map[string]string) *Environment {
	return e.add(name, false, values, NormalizeKey)
}

// AddFlatSource 追加一个不带层级的键源（环境变量）
func (e *Environment) AddFlatSource(name string, values map[string]string) *Environment {
	return e.add(name, true, values, flattenKey)
}

func (e *Environment) add(name string, flat bool, values map[string]string, norm func(string) string) *Environment {
	s := &source{name: name, flat: flat, entries: make(map[string]entry, len(values))}
	for k, v := range values {
		s.entries[norm(k)] = entry{key: k, value: v}
	}
	e.sources = append(e.sources, s)
	return e
}

// Get 返回键对应的值。不存在或值为空时 ok 为 false。
func (e *Environment) Get(key string) (string, bool) {
	v, _, ok := e.Lookup(key)
	return v, ok
}

// Lookup 与 Get 相同，另外返回命中的源名称
func (e *Environment) Lookup(key string) (value, sourceName string, ok bool) {
	if e == nil {
		return "", "", false
	}
	norm, flat := NormalizeKey(key), flattenKey(key)
	for i := len(e.sources) - 1; i >= 0; i-- {
		s := e.sources[i]
		k := norm
		if s.flat {
			k = flat
		}
		if en, found := s.entries[k]; found && en.value != "" {
			return en.value, s.name, true
		}
	}
	return "", "", false
}

// Contains 报告 prefix 本身或其下任一子键是否有非空值
func (e *Environment) Contains(prefix string) bool {
	if e == nil {
		return false
	}
	norm, flat := NormalizeKey(prefix), flattenKey(prefix)
	for _, s := range e.sources {
		for k, en := range s.entries {
			if en.value == "" {
				continue
			}
			if s.flat {
				if strings.HasPrefix(k, flat) {
					return true
				}
				continue
			}
			if k == norm || strings.HasPrefix(k, norm+".") || strings.HasPrefix(k, norm+"[") {
				return true
			}
		}
	}
	return false
}

// Children 返回 prefix 下直接子项的原始后缀与值，供 map 字段绑定。
// 环境变量源没有层级信息，不参与。高优先级源覆盖同名子项。
func (e *Environment) Children(prefix string) map[string]string {
	if e == nil {
		return nil
	}
	norm := NormalizeKey(prefix) + "."
	out := make(map[string]string)
	seen := make(map[string]string) // normalized suffix -> original suffix
	for _, s := range e.sources {
		if s.flat {
			continue
		}
		for k, en := range s.entries {
			if en.value == "" || !strings.HasPrefix(k, norm) {
				continue
			}
			// 原始键与规范键的段数一致，取最后 len(suffix) 段作为原始后缀
			suffix := originalSuffix(en.key, strings.Count(prefix, ".")+1)
			if prev, ok := seen[k[len(norm):]]; ok {
				delete(out, prev)
			}
			seen[k[len(norm):]] = suffix
			out[suffix] = en.value
		}
	}
	return out
}

func originalSuffix(key string, skip int) string {
	parts := strings.SplitN(key, ".", skip+1)
	if len(parts) <= skip {
		return ""
	}
	return parts[skip]
}

// Keys 返回所有非空键的原始形式（去重、排序），用于诊断输出
func (e *Environment) Keys() []string {
	if e == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, s := range e.sources {
		for _, en := range s.entries {
			if en.value != "" {
				set[en.key] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sources 返回按优先级从低到高排列的源名称
func (e *Environment) Sources() []string {
	if e == nil {
		return nil
	}
	names := make([]string, len(e.sources))
	for i, s := range e.sources {
		names[i] = s.name
	}
	return names
}
