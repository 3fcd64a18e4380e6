package core

import (
	"time"

	"github.com/rushteam/searchkit/pkg/validation"
)

// InteractionType 是用户交互事件类型。
type InteractionType string

const (
	InteractionSearch        InteractionType = "search"
	InteractionViewProduct   InteractionType = "view_product"
	InteractionAddToCart     InteractionType = "add_to_cart"
	InteractionPurchase      InteractionType = "purchase"
	InteractionFilterApply   InteractionType = "filter_apply"
	InteractionSortApply     InteractionType = "sort_apply"
	InteractionClickCategory InteractionType = "click_category"
	InteractionClickBrand    InteractionType = "click_brand"
	InteractionImpression    InteractionType = "result_impression"
	InteractionDwellTime     InteractionType = "result_dwell_time"
)

// UserInteraction 是不可变、只追加的交互事件。
type UserInteraction struct {
	UserID    string          `json:"userId" validate:"required,max=256"`
	Type      InteractionType `json:"type" validate:"required,oneof=search view_product add_to_cart purchase filter_apply sort_apply click_category click_brand result_impression result_dwell_time"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"sessionId,omitempty" validate:"max=256"`
	Data      InteractionData `json:"data"`
}

// InteractionData 是事件负载，不同类型只使用其中一部分字段。
type InteractionData struct {
	// search
	Query    string   `json:"query,omitempty" validate:"max=1024"`
	Entities []Entity `json:"entities,omitempty"` // 调用方已完成的查询理解结果（可选）

	// view_product / add_to_cart / purchase
	ProductID  string   `json:"productId,omitempty" validate:"max=256"`
	Categories []string `json:"categories,omitempty" validate:"max=64,dive,max=128"`
	Brand      string   `json:"brand,omitempty" validate:"max=128"`
	Values     []string `json:"values,omitempty" validate:"max=64,dive,max=128"`
	Price      float64  `json:"price,omitempty" validate:"gte=0"`
	Quantity   int      `json:"quantity,omitempty" validate:"gte=0"`

	// filter_apply
	Filters *InteractionFilters `json:"filters,omitempty"`

	// sort_apply
	SortField string `json:"sortField,omitempty" validate:"max=64"`
	SortOrder string `json:"sortOrder,omitempty" validate:"omitempty,oneof=asc desc"`

	// click_category / click_brand 复用 Category / Brand
	Category string `json:"category,omitempty" validate:"max=128"`

	// result_impression / result_dwell_time
	ResultIDs   []string `json:"resultIds,omitempty" validate:"max=200,dive,max=256"`
	ResultID    string   `json:"resultId,omitempty" validate:"max=256"`
	DwellTimeMs int64    `json:"dwellTimeMs,omitempty" validate:"gte=0"`
}

// InteractionFilters 是用户在搜索页选择的筛选条件。
type InteractionFilters struct {
	Categories []string `json:"categories,omitempty" validate:"max=64,dive,max=128"`
	Brands     []string `json:"brands,omitempty" validate:"max=64,dive,max=128"`
	Values     []string `json:"values,omitempty" validate:"max=64,dive,max=128"`
	PriceMin   *float64 `json:"priceMin,omitempty" validate:"omitempty,gte=0"`
	PriceMax   *float64 `json:"priceMax,omitempty" validate:"omitempty,gte=0"`
}

// HasPrice 判断是否选择了价格区间。
func (f *InteractionFilters) HasPrice() bool {
	return f != nil && (f.PriceMin != nil || f.PriceMax != nil)
}

// PriceBounds 返回选择的价格区间，缺失的上界视为开放区间。
func (f *InteractionFilters) PriceBounds() (float64, float64) {
	lo, hi := 0.0, OpenEndedPriceMax
	if f.PriceMin != nil {
		lo = *f.PriceMin
	}
	if f.PriceMax != nil {
		hi = *f.PriceMax
	}
	return lo, hi
}

// Validate 校验事件：结构体标签 + 按类型的必填规则。
// 失败返回 INVALID_INPUT。
func (e *UserInteraction) Validate() error {
	if err := validation.Struct(e); err != nil {
		return WrapDomainError(ModulePreference, ErrorCodeInvalidInput, "invalid interaction", err)
	}
	d := &e.Data
	var missing string
	switch e.Type {
	case InteractionSearch:
		if d.Query == "" && len(d.Entities) == 0 {
			missing = "data.query"
		}
	case InteractionViewProduct, InteractionAddToCart, InteractionPurchase:
		if d.ProductID == "" {
			missing = "data.productId"
		}
	case InteractionFilterApply:
		if d.Filters == nil {
			missing = "data.filters"
		} else if d.Filters.PriceMin != nil && d.Filters.PriceMax != nil && *d.Filters.PriceMin > *d.Filters.PriceMax {
			return InvalidInput(ModulePreference, "invalid interaction: priceMin > priceMax")
		}
	case InteractionSortApply:
		if d.SortField == "" {
			missing = "data.sortField"
		}
	case InteractionClickCategory:
		if d.Category == "" {
			missing = "data.category"
		}
	case InteractionClickBrand:
		if d.Brand == "" {
			missing = "data.brand"
		}
	case InteractionImpression:
		if len(d.ResultIDs) == 0 {
			missing = "data.resultIds"
		}
	case InteractionDwellTime:
		if d.ResultID == "" {
			missing = "data.resultId"
		}
	}
	if missing != "" {
		return InvalidInput(ModulePreference, "invalid interaction: missing "+missing+" for "+string(e.Type))
	}
	return nil
}

// SurveyResponse 是用户主动提交的偏好问卷。
type SurveyResponse struct {
	Categories        []string         `json:"categories" validate:"max=64,dive,max=128"`
	Brands            []string         `json:"brands" validate:"max=64,dive,max=128"`
	Attributes        []string         `json:"attributes" validate:"max=64,dive,max=128"`
	PriceRange        *PriceRange      `json:"priceRange,omitempty"`
	PriceSensitivity  PriceSensitivity `json:"priceSensitivity,omitempty" validate:"omitempty,oneof=budget value balanced premium luxury"`
	ShoppingFrequency string           `json:"shoppingFrequency,omitempty" validate:"max=64"`
	ReviewImportance  int              `json:"reviewImportance,omitempty" validate:"gte=0,lte=5"`
}

// PriceSensitivity 是问卷中声明的价格敏感度。
type PriceSensitivity string

const (
	SensitivityBudget   PriceSensitivity = "budget"
	SensitivityValue    PriceSensitivity = "value"
	SensitivityBalanced PriceSensitivity = "balanced"
	SensitivityPremium  PriceSensitivity = "premium"
	SensitivityLuxury   PriceSensitivity = "luxury"
)

// Validate 校验问卷。
func (s *SurveyResponse) Validate() error {
	if err := validation.Struct(s); err != nil {
		return WrapDomainError(ModulePreference, ErrorCodeInvalidInput, "invalid survey", err)
	}
	if s.PriceRange != nil && s.PriceRange.Min > s.PriceRange.Max {
		return InvalidInput(ModulePreference, "invalid survey: priceRange.min > priceRange.max")
	}
	return nil
}

// Product 是目录中商品的最小视图，用于补全事件中缺失的属性。
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Values      []string  `json:"values,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	ReviewCount int       `json:"reviewCount,omitempty"`
	ViewCount   int       `json:"viewCount,omitempty"`
	InStock     bool      `json:"inStock"`
	CreatedAt   time.Time `json:"createdAt"`
}
