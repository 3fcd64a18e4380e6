package core

import (
	"fmt"
	"time"

	"github.com/rushteam/searchkit/pkg/conv"
)

// Extensions 是画像的开放扩展区。
// 只允许 JSON 原始类型：string、float64（整数会被转成 float64）、bool、nil，
// 以及由这些类型构成的嵌套 Extensions / map[string]any。
type Extensions map[string]any

// 扩展区约定的 key
const (
	ExtLastDecayAt            = "lastDecayAt"            // 上次衰减时间（unix 毫秒）
	ExtCollaborativeFiltering = "collaborativeFiltering" // 协同过滤增强来源
	ExtSurvey                 = "survey"                 // 问卷提交元数据
)

// Set 写入一个值，非原始类型返回 INVALID_INPUT。
func (e Extensions) Set(key string, v any) error {
	norm, err := normalizeExtValue(v)
	if err != nil {
		return InvalidInput(ModulePreference, fmt.Sprintf("additionalData.%s: %v", key, err))
	}
	e[key] = norm
	return nil
}

// Float 读取数值。
func (e Extensions) Float(key string) (float64, bool) {
	if e == nil {
		return 0, false
	}
	return conv.ToFloat64(e[key])
}

// String 读取字符串。
func (e Extensions) String(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	return conv.ToString(e[key])
}

// Time 读取以毫秒保存的时间。
func (e Extensions) Time(key string) (time.Time, bool) {
	ms, ok := e.Float(key)
	if !ok || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)), true
}

// Map 读取嵌套对象（兼容 JSON 反序列化得到的 map[string]any）。
func (e Extensions) Map(key string) (Extensions, bool) {
	if e == nil {
		return nil, false
	}
	switch v := e[key].(type) {
	case Extensions:
		return v, true
	case map[string]any:
		return Extensions(v), true
	default:
		return nil, false
	}
}

// Clone 深拷贝。
func (e Extensions) Clone() Extensions {
	if e == nil {
		return nil
	}
	out := make(Extensions, len(e))
	for k, v := range e {
		switch nested := v.(type) {
		case Extensions:
			out[k] = nested.Clone()
		case map[string]any:
			out[k] = Extensions(nested).Clone()
		default:
			out[k] = v
		}
	}
	return out
}

func normalizeExtValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val, nil
	case time.Time:
		return float64(val.UnixMilli()), nil
	case Extensions:
		return normalizeExtMap(val)
	case map[string]any:
		return normalizeExtMap(val)
	}
	if f, ok := conv.ToFloat64(v); ok {
		return f, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func normalizeExtMap(m map[string]any) (Extensions, error) {
	out := make(Extensions, len(m))
	for k, v := range m {
		norm, err := normalizeExtValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = norm
	}
	return out, nil
}
