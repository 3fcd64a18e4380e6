package core

import "github.com/rushteam/searchkit/pkg/utils"

// Query 是发往外部索引的查询载荷。
//
// Body 是调用方给出的原始查询（不透明），其余字段是相关性层追加的评分调整。
// 相关性层只追加、不改写 Body，保证基础查询在任何失败下都能原样执行。
type Query struct {
	Body      map[string]any         `json:"body,omitempty"`
	Functions []ScoreFunction        `json:"functions,omitempty"`
	ScoreMode string                 `json:"scoreMode,omitempty"` // sum / multiply / max ...
	BoostMode string                 `json:"boostMode,omitempty"`
	Sort      []SortField            `json:"sort,omitempty"`
	Filters   []Filter               `json:"filters,omitempty"`
	Ext       map[string]any         `json:"ext,omitempty"`
	Labels    map[string]utils.Label `json:"labels,omitempty"`
}

// ScoreFunction 是一条评分函数：命中 Filter 的文档按 Weight / FieldValueFactor / Decay 调整得分。
type ScoreFunction struct {
	Name             string            `json:"name,omitempty"`
	Filter           *Filter           `json:"filter,omitempty"`
	Weight           float64           `json:"weight,omitempty"`
	FieldValueFactor *FieldValueFactor `json:"fieldValueFactor,omitempty"`
	Decay            *DecayFunction    `json:"decay,omitempty"`
}

// FieldValueFactor 按字段值计算得分。
type FieldValueFactor struct {
	Field    string   `json:"field"`
	Factor   float64  `json:"factor"`
	Modifier string   `json:"modifier,omitempty"` // log1p / sqrt / none
	Missing  *float64 `json:"missing,omitempty"`
}

// DecayFunction 按字段与 origin 的距离衰减得分（gauss）。
type DecayFunction struct {
	Field  string  `json:"field"`
	Origin string  `json:"origin,omitempty"` // 空表示 now
	Scale  string  `json:"scale"`
	Offset string  `json:"offset,omitempty"`
	Decay  float64 `json:"decay"`
}

// FilterKind 是过滤条件的种类。
type FilterKind string

const (
	FilterExists FilterKind = "exists"
	FilterMatch  FilterKind = "match"
	FilterTerm   FilterKind = "term"
	FilterTerms  FilterKind = "terms"
	FilterRange  FilterKind = "range"
)

// Filter 是按 Kind 区分的过滤条件，只有与 Kind 对应的字段有意义。
type Filter struct {
	Kind   FilterKind `json:"kind"`
	Field  string     `json:"field"`
	Value  any        `json:"value,omitempty"`  // match / term
	Values []string   `json:"values,omitempty"` // terms
	Gte    *float64   `json:"gte,omitempty"`    // range
	Lte    *float64   `json:"lte,omitempty"`    // range
}

// ExistsFilter 构造 exists 过滤。
func ExistsFilter(field string) *Filter { return &Filter{Kind: FilterExists, Field: field} }

// MatchFilter 构造 match 过滤。
func MatchFilter(field string, value any) *Filter {
	return &Filter{Kind: FilterMatch, Field: field, Value: value}
}

// TermFilter 构造 term 过滤。
func TermFilter(field string, value any) *Filter {
	return &Filter{Kind: FilterTerm, Field: field, Value: value}
}

// TermsFilter 构造 terms 过滤。
func TermsFilter(field string, values ...string) *Filter {
	return &Filter{Kind: FilterTerms, Field: field, Values: values}
}

// RangeFilter 构造 range 过滤，nil 表示该侧不限。
func RangeFilter(field string, gte, lte *float64) *Filter {
	return &Filter{Kind: FilterRange, Field: field, Gte: gte, Lte: lte}
}

// DSL 把过滤条件渲染为索引查询 DSL。
func (f *Filter) DSL() map[string]any {
	switch f.Kind {
	case FilterExists:
		return map[string]any{"exists": map[string]any{"field": f.Field}}
	case FilterMatch:
		return map[string]any{"match": map[string]any{f.Field: f.Value}}
	case FilterTerm:
		return map[string]any{"term": map[string]any{f.Field: f.Value}}
	case FilterTerms:
		vals := make([]any, len(f.Values))
		for i, v := range f.Values {
			vals[i] = v
		}
		return map[string]any{"terms": map[string]any{f.Field: vals}}
	case FilterRange:
		r := map[string]any{}
		if f.Gte != nil {
			r["gte"] = *f.Gte
		}
		if f.Lte != nil {
			r["lte"] = *f.Lte
		}
		return map[string]any{"range": map[string]any{f.Field: r}}
	}
	return nil
}

// DSL 渲染评分函数。
func (fn *ScoreFunction) DSL() map[string]any {
	out := map[string]any{}
	if fn.Filter != nil {
		out["filter"] = fn.Filter.DSL()
	}
	if fn.Weight != 0 {
		out["weight"] = fn.Weight
	}
	if v := fn.FieldValueFactor; v != nil {
		fvf := map[string]any{"field": v.Field, "factor": v.Factor}
		if v.Modifier != "" {
			fvf["modifier"] = v.Modifier
		}
		if v.Missing != nil {
			fvf["missing"] = *v.Missing
		}
		out["field_value_factor"] = fvf
	}
	if d := fn.Decay; d != nil {
		params := map[string]any{"scale": d.Scale, "decay": d.Decay}
		if d.Origin != "" {
			params["origin"] = d.Origin
		}
		if d.Offset != "" {
			params["offset"] = d.Offset
		}
		out["gauss"] = map[string]any{d.Field: params}
	}
	return out
}

// AddFunction 追加评分函数。
func (q *Query) AddFunction(fn ScoreFunction) {
	q.Functions = append(q.Functions, fn)
}

// SetExt 写入扩展元数据（溯源信息）。
func (q *Query) SetExt(key string, v any) {
	if q.Ext == nil {
		q.Ext = make(map[string]any)
	}
	q.Ext[key] = v
}

// PutLabel 写入 Label，同名时按 MergeLabel 合并。
func (q *Query) PutLabel(key string, lbl utils.Label) {
	if q.Labels == nil {
		q.Labels = make(map[string]utils.Label)
	}
	if old, ok := q.Labels[key]; ok {
		q.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	q.Labels[key] = lbl
}

// Clone 深拷贝，nil 与空集合保持区分。
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	out := &Query{
		ScoreMode: q.ScoreMode,
		BoostMode: q.BoostMode,
	}
	if q.Body != nil {
		out.Body = deepCopyMap(q.Body)
	}
	if q.Functions != nil {
		out.Functions = make([]ScoreFunction, len(q.Functions))
		for i, fn := range q.Functions {
			out.Functions[i] = fn.clone()
		}
	}
	if q.Sort != nil {
		out.Sort = append([]SortField{}, q.Sort...)
	}
	if q.Filters != nil {
		out.Filters = make([]Filter, len(q.Filters))
		for i, f := range q.Filters {
			out.Filters[i] = *f.clone()
		}
	}
	if q.Ext != nil {
		out.Ext = deepCopyMap(q.Ext)
	}
	if q.Labels != nil {
		out.Labels = make(map[string]utils.Label, len(q.Labels))
		for k, v := range q.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

func (fn ScoreFunction) clone() ScoreFunction {
	out := fn
	if fn.Filter != nil {
		out.Filter = fn.Filter.clone()
	}
	if fn.FieldValueFactor != nil {
		v := *fn.FieldValueFactor
		if v.Missing != nil {
			m := *v.Missing
			v.Missing = &m
		}
		out.FieldValueFactor = &v
	}
	if fn.Decay != nil {
		d := *fn.Decay
		out.Decay = &d
	}
	return out
}

func (f *Filter) clone() *Filter {
	out := *f
	if f.Values != nil {
		out.Values = append([]string{}, f.Values...)
	}
	if f.Gte != nil {
		v := *f.Gte
		out.Gte = &v
	}
	if f.Lte != nil {
		v := *f.Lte
		out.Lte = &v
	}
	return &out
}

// DSL 渲染完整的索引请求体。
// 没有评分函数时原样输出 Body（附加过滤条件时包一层 bool）。
func (q *Query) DSL() map[string]any {
	inner := q.Body
	if inner == nil {
		inner = map[string]any{"match_all": map[string]any{}}
	}
	inner = deepCopyMap(inner)
	if len(q.Filters) > 0 {
		filters := make([]any, 0, len(q.Filters))
		for i := range q.Filters {
			filters = append(filters, q.Filters[i].DSL())
		}
		inner = map[string]any{"bool": map[string]any{"must": inner, "filter": filters}}
	}

	query := inner
	if len(q.Functions) > 0 {
		fns := make([]any, 0, len(q.Functions))
		for i := range q.Functions {
			fns = append(fns, q.Functions[i].DSL())
		}
		fs := map[string]any{"query": inner, "functions": fns}
		if q.ScoreMode != "" {
			fs["score_mode"] = q.ScoreMode
		}
		if q.BoostMode != "" {
			fs["boost_mode"] = q.BoostMode
		}
		query = map[string]any{"function_score": fs}
	}

	out := map[string]any{"query": query}
	if len(q.Sort) > 0 {
		sorts := make([]any, 0, len(q.Sort))
		for _, s := range q.Sort {
			sorts = append(sorts, map[string]any{s.Field: map[string]any{"order": string(s.Order)}})
		}
		out["sort"] = sorts
	}
	if len(q.Ext) > 0 {
		out["ext"] = deepCopyMap(q.Ext)
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		return append([]string{}, val...)
	default:
		return v
	}
}
