package config

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/dashscope-starter/types"
)

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Bind 把 env 中 prefix 下的键绑定到 target（必须是结构体指针）。
// target 中已有的值作为默认值，只有非空的配置值会覆盖它们。
func Bind(env *Environment, prefix string, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: bind target must be a non-nil struct pointer, got %T", target)
	}
	return bindStruct(env, prefix, v.Elem())
}

// bindStruct 递归设置结构体字段
func bindStruct(env *Environment, prefix string, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name, inline, skip := fieldName(sf)
		if skip {
			continue
		}
		key := prefix
		if !inline {
			key = joinKey(prefix, name)
		}
		if err := bindValue(env, key, field); err != nil {
			// bind:"lenient" 的字段遇到无法识别的值时保留默认值
			if sf.Tag.Get("bind") == "lenient" {
				continue
			}
			return err
		}
	}
	return nil
}

// fieldName 从 yaml tag 解析键名；",inline" 或匿名嵌入字段与父级共享前缀
func fieldName(sf reflect.StructField) (name string, inline, skip bool) {
	tag := sf.Tag.Get("yaml")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "inline" {
			return "", true, false
		}
	}
	if parts[0] != "" {
		return parts[0], false, false
	}
	if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
		return "", true, false
	}
	return sf.Name, false, false
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func bindValue(env *Environment, key string, field reflect.Value) error {
	if !field.CanSet() {
		return nil
	}

	// TextUnmarshaler 优先：枚举类字段自行解析
	if field.Kind() != reflect.Ptr && reflect.PointerTo(field.Type()).Implements(textUnmarshalerType) {
		raw, ok := env.Get(key)
		if !ok {
			return nil
		}
		if err := field.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw)); err != nil {
			return &types.BindingError{Key: key, Value: raw, Cause: err}
		}
		return nil
	}

	switch field.Kind() {
	case reflect.Struct:
		return bindStruct(env, key, field)

	case reflect.Ptr:
		elem := field.Type().Elem()
		if elem.Kind() == reflect.Struct {
			if !env.Contains(key) {
				return nil
			}
			ptr := reflect.New(elem)
			if !field.IsNil() {
				ptr.Elem().Set(field.Elem())
			}
			if err := bindStruct(env, key, ptr.Elem()); err != nil {
				return err
			}
			field.Set(ptr)
			return nil
		}
		raw, ok := env.Get(key)
		if !ok {
			return nil
		}
		ptr := reflect.New(elem)
		if err := setScalar(ptr.Elem(), raw); err != nil {
			return &types.BindingError{Key: key, Value: raw, Cause: err}
		}
		field.Set(ptr)
		return nil

	case reflect.Slice:
		return bindSlice(env, key, field)

	case reflect.Map:
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		children := env.Children(key)
		if len(children) == 0 {
			return nil
		}
		m := reflect.MakeMapWithSize(field.Type(), len(children))
		if !field.IsNil() {
			iter := field.MapRange()
			for iter.Next() {
				m.SetMapIndex(iter.Key(), iter.Value())
			}
		}
		for k, val := range children {
			m.SetMapIndex(reflect.ValueOf(k), reflect.ValueOf(val))
		}
		field.Set(m)
		return nil
	}

	raw, ok := env.Get(key)
	if !ok {
		return nil
	}
	if err := setScalar(field, raw); err != nil {
		return &types.BindingError{Key: key, Value: raw, Cause: err}
	}
	return nil
}

// bindSlice 支持 YAML 列表展开的下标键（stop[0]、stop[1]）与逗号分隔的单值
func bindSlice(env *Environment, key string, field reflect.Value) error {
	if field.Type().Elem().Kind() != reflect.String {
		return nil
	}
	var items []string
	for i := 0; ; i++ {
		v, ok := env.Get(fmt.Sprintf("%s[%d]", key, i))
		if !ok {
			break
		}
		items = append(items, v)
	}
	if raw, ok := env.Get(key); ok {
		items = items[:0]
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
	}
	if len(items) == 0 {
		return nil
	}
	out := reflect.MakeSlice(field.Type(), len(items), len(items))
	for i, s := range items {
		out.Index(i).SetString(s)
	}
	field.Set(out)
	return nil
}

// setScalar 设置字段值
func setScalar(field reflect.Value, value string) error {
	value = strings.TrimSpace(value)
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration：纯数字按毫秒
		if field.Type() == durationType {
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
				field.SetInt(int64(time.Duration(ms) * time.Millisecond))
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, ok := ParseBool(value)
		if !ok {
			return fmt.Errorf("invalid boolean %q", value)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// ParseBool 按 true/on/yes/1 与 false/off/no/0 解析布尔值，忽略大小写与首尾空白。
// 无法识别时 ok 为 false。
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes", "1":
		return true, true
	case "false", "off", "no", "0":
		return false, true
	}
	return false, false
}
