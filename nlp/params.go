package nlp

import (
	"regexp"
	"strings"

	"github.com/rushteam/searchkit/core"
)

var (
	priceDescRe = regexp.MustCompile(`\b(?:high(?:est)?\s+to\s+low(?:est)?|most expensive|highest price|price\s+desc(?:ending)?)\b`)
	priceAscRe  = regexp.MustCompile(`\b(?:low(?:est)?\s+to\s+high(?:est)?|cheapest|lowest price|price\s+asc(?:ending)?)\b`)
)

// priceDirection 返回查询中的价格方向提示，没有提示时 ok 为 false。
func priceDirection(lower string) (core.SortOrder, bool) {
	switch {
	case priceDescRe.MatchString(lower):
		return core.SortDesc, true
	case priceAscRe.MatchString(lower):
		return core.SortAsc, true
	}
	return "", false
}

// SearchParameters 把意图与实体映射为 {boost, sort, filters}。
// 带价格方向提示（"high to low" / "low to high"）的排序会覆盖默认的相关度排序。
func SearchParameters(intent core.Intent, entities []core.Entity, query string) core.SearchParameters {
	lower := strings.ToLower(query)
	var sp core.SearchParameters

	switch intent {
	case core.IntentProductSearch:
		sp.Boost = map[string]float64{"name": 2, "description": 1, "categories": 1.5}

	case core.IntentCategoryBrowse:
		sp.Boost = map[string]float64{"categories": 3, "name": 1, "description": 0.5}
		sp.Filters.Categories = core.EntityValues(entities, core.EntityCategory)

	case core.IntentBrandSpecific:
		sp.Boost = map[string]float64{"brand": 3, "name": 1}
		sp.Filters.Brands = core.EntityValues(entities, core.EntityBrand)

	case core.IntentPriceQuery:
		order, ok := priceDirection(lower)
		if !ok {
			order = core.SortAsc
		}
		sp.Sort = []core.SortField{{Field: "price", Order: order}}
		if es := core.EntitiesOf(entities, core.EntityPriceRange); len(es) > 0 {
			setPrice(&sp.Filters, es[0])
		}

	case core.IntentValueDriven:
		sp.Boost = map[string]float64{"values": 3, "description": 2, "name": 1}
		sp.Filters.Values = core.EntityValues(entities, core.EntityValue)

	case core.IntentRecommendation:
		sp.Sort = []core.SortField{{Field: "rating", Order: core.SortDesc}}
		sp.Boost = map[string]float64{"rating": 2, "reviewCount": 1.5, "name": 1}

	case core.IntentAvailability:
		inStock := true
		sp.Filters.InStock = &inStock

	case core.IntentFilter:
		sp.Filters = entityFilters(entities)

	case core.IntentSort:
		sp.Sort = sortFromQuery(lower)
	}
	return sp
}

func sortFromQuery(lower string) []core.SortField {
	if order, ok := priceDirection(lower); ok {
		return []core.SortField{{Field: "price", Order: order}}
	}
	switch {
	case strings.Contains(lower, "price"):
		return []core.SortField{{Field: "price", Order: core.SortAsc}}
	case strings.Contains(lower, "rating") || strings.Contains(lower, "review"):
		return []core.SortField{{Field: "rating", Order: core.SortDesc}}
	case strings.Contains(lower, "new") || strings.Contains(lower, "recent") || strings.Contains(lower, "latest"):
		return []core.SortField{{Field: "createdAt", Order: core.SortDesc}}
	case strings.Contains(lower, "popular") || strings.Contains(lower, "trending"):
		return []core.SortField{{Field: "viewCount", Order: core.SortDesc}}
	}
	return nil
}

func entityFilters(entities []core.Entity) core.SearchFilters {
	f := core.SearchFilters{
		Categories: core.EntityValues(entities, core.EntityCategory),
		Brands:     core.EntityValues(entities, core.EntityBrand),
		Values:     core.EntityValues(entities, core.EntityValue),
		Colors:     core.EntityValues(entities, core.EntityColor),
		Materials:  core.EntityValues(entities, core.EntityMaterial),
		Sizes:      core.EntityValues(entities, core.EntitySize),
	}
	if es := core.EntitiesOf(entities, core.EntityPriceRange); len(es) > 0 {
		setPrice(&f, es[0])
	}
	for _, e := range core.EntitiesOf(entities, core.EntityRating) {
		if v, ok := e.RatingMin(); ok {
			f.RatingMin = &v
			break
		}
	}
	if es := core.EntitiesOf(entities, core.EntityDate); len(es) > 0 {
		f.Date = es[0].Value
	}
	return f
}

func setPrice(f *core.SearchFilters, e core.Entity) {
	lo, hi, ok := e.PriceBounds()
	if !ok {
		return
	}
	f.PriceMin = &lo
	if hi < openPriceMaxValue {
		f.PriceMax = &hi
	}
}
