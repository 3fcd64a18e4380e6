package collab

import "github.com/rushteam/searchkit/core"

// RelatedCategory 是一个相关类目及其相似度。
type RelatedCategory struct {
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
}

var relatedCategories = map[string][]RelatedCategory{
	"electronics": {{"computers", 0.8}, {"accessories", 0.7}, {"phones", 0.6}},
	"clothing":    {{"shoes", 0.8}, {"accessories", 0.7}, {"outerwear", 0.6}},
	"home":        {{"furniture", 0.8}, {"kitchen", 0.7}, {"decor", 0.6}},
	"beauty":      {{"skincare", 0.8}, {"makeup", 0.7}, {"haircare", 0.6}},
}

// RelatedCategories 返回人工维护的相关类目，未知类目返回 nil。
func RelatedCategories(category string) []RelatedCategory {
	rel := relatedCategories[core.NormalizeKey(category)]
	if len(rel) == 0 {
		return nil
	}
	return append([]RelatedCategory(nil), rel...)
}
