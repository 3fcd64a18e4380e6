package core

import (
	"strconv"
	"strings"
)

// EntityType 是查询实体类型。
type EntityType string

const (
	EntityCategory   EntityType = "category"
	EntityBrand      EntityType = "brand"
	EntityValue      EntityType = "value"
	EntitySize       EntityType = "size"
	EntityColor      EntityType = "color"
	EntityMaterial   EntityType = "material"
	EntityPriceRange EntityType = "price_range"
	EntityRating     EntityType = "rating"
	EntityDate       EntityType = "date"
)

// Entity 是从查询中识别出的带置信度的实体。
//
// Value 的格式由 Type 决定：
//   - price_range: "min-max"，开放上界用 9999
//   - rating: "4" 或 "4+"
//   - date: recent / this_week / this_month / this_year / since_YYYY
//   - 其他：小写规范值
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
}

// PriceBounds 解析 price_range 实体。
func (e Entity) PriceBounds() (lo, hi float64, ok bool) {
	if e.Type != EntityPriceRange {
		return 0, 0, false
	}
	a, b, found := strings.Cut(e.Value, "-")
	if !found {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseFloat(a, 64)
	hi, err2 := strconv.ParseFloat(b, 64)
	if err1 != nil || err2 != nil || lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// RatingMin 解析 rating 实体的最低评分。
func (e Entity) RatingMin() (float64, bool) {
	if e.Type != EntityRating {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(e.Value, "+"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SinceYear 解析 since_YYYY 形式的 date 实体。
func (e Entity) SinceYear() (int, bool) {
	if e.Type != EntityDate || !strings.HasPrefix(e.Value, "since_") {
		return 0, false
	}
	y, err := strconv.Atoi(strings.TrimPrefix(e.Value, "since_"))
	if err != nil {
		return 0, false
	}
	return y, true
}

// EntitiesOf 返回指定类型的实体。
func EntitiesOf(entities []Entity, t EntityType) []Entity {
	var out []Entity
	for _, e := range entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// EntityValues 返回指定类型实体的值（保持顺序、去重）。
func EntityValues(entities []Entity, t EntityType) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, e := range entities {
		if e.Type != t {
			continue
		}
		if _, ok := seen[e.Value]; ok {
			continue
		}
		seen[e.Value] = struct{}{}
		out = append(out, e.Value)
	}
	return out
}

// Intent 是查询意图。
type Intent string

const (
	IntentGeneral        Intent = "general"
	IntentProductSearch  Intent = "product_search"
	IntentCategoryBrowse Intent = "category_browse"
	IntentBrandSpecific  Intent = "brand_specific"
	IntentPriceQuery     Intent = "price_query"
	IntentValueDriven    Intent = "value_driven"
	IntentComparison     Intent = "comparison"
	IntentRecommendation Intent = "recommendation"
	IntentAvailability   Intent = "availability"
	IntentFilter         Intent = "filter"
	IntentSort           Intent = "sort"
)

// IntentScore 是一个候选意图及其置信度。
type IntentScore struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// IntentResult 是意图识别结果。
type IntentResult struct {
	Intent     Intent        `json:"intent"`
	Confidence float64       `json:"confidence"`
	Secondary  []IntentScore `json:"secondary,omitempty"`
	Source     string        `json:"source"` // pattern / keyword / classifier / default
}

// IsGeneral 判断是否退化为 general。
func (r *IntentResult) IsGeneral() bool {
	return r == nil || r.Intent == "" || r.Intent == IntentGeneral
}

// SortOrder 是排序方向。
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortField 是一个排序字段。
type SortField struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// SearchFilters 是查询理解合成的结构化过滤条件。
type SearchFilters struct {
	Categories []string `json:"categories,omitempty"`
	Brands     []string `json:"brands,omitempty"`
	Values     []string `json:"values,omitempty"`
	Colors     []string `json:"colors,omitempty"`
	Materials  []string `json:"materials,omitempty"`
	Sizes      []string `json:"sizes,omitempty"`
	PriceMin   *float64 `json:"priceMin,omitempty"`
	PriceMax   *float64 `json:"priceMax,omitempty"`
	RatingMin  *float64 `json:"ratingMin,omitempty"`
	InStock    *bool    `json:"inStock,omitempty"`
	Date       string   `json:"date,omitempty"`
}

// IsEmpty 判断是否没有任何过滤条件。
func (f SearchFilters) IsEmpty() bool {
	return len(f.Categories) == 0 && len(f.Brands) == 0 && len(f.Values) == 0 &&
		len(f.Colors) == 0 && len(f.Materials) == 0 && len(f.Sizes) == 0 &&
		f.PriceMin == nil && f.PriceMax == nil && f.RatingMin == nil &&
		f.InStock == nil && f.Date == ""
}

// SearchParameters 是 {boost, sort, filters} 三元组。
type SearchParameters struct {
	Boost   map[string]float64 `json:"boost,omitempty"`
	Sort    []SortField        `json:"sort,omitempty"`
	Filters SearchFilters      `json:"filters"`
}

// QueryUnderstanding 是一次查询理解的完整输出，只在请求内流转，不持久化。
type QueryUnderstanding struct {
	Query            string            `json:"query"`
	Tokens           []string          `json:"tokens"`
	Stems            []string          `json:"stems"`
	Entities         []Entity          `json:"entities"`
	EnhancedQuery    string            `json:"enhancedQuery"`
	Intent           IntentResult      `json:"intent"`
	ExpandedQuery    string            `json:"expandedQuery"`
	ExpansionTerms   []string          `json:"expansionTerms,omitempty"`
	ExpansionSources map[string]string `json:"expansionSources,omitempty"` // term -> synonym / index
	SearchParameters SearchParameters  `json:"searchParameters"`

	// Degraded 记录失败并退化为透传的阶段
	Degraded []string `json:"degraded,omitempty"`
}
