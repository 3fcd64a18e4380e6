package nlp

import (
	"sort"
	"strings"
	"sync"

	"github.com/rushteam/searchkit/core"
)

// Dictionary 保存各类实体的已知取值，并发安全。
//
// 查找时忽略大小写，连字符与空格等价（"eco friendly" 命中 "eco-friendly"），
// 返回的是登记时的规范值。
type Dictionary struct {
	mu       sync.RWMutex
	sets     map[core.EntityType]map[string]string // normalized -> canonical
	maxWords int
}

// NewDictionary 创建空词典。
func NewDictionary() *Dictionary {
	return &Dictionary{sets: make(map[core.EntityType]map[string]string), maxWords: 1}
}

// NewDefaultDictionary 返回内置商品领域词典。
func NewDefaultDictionary() *Dictionary {
	d := NewDictionary()
	d.Add(core.EntityCategory, defaultCategories...)
	d.Add(core.EntityBrand, defaultBrands...)
	d.Add(core.EntityValue, defaultValues...)
	d.Add(core.EntityColor, defaultColors...)
	d.Add(core.EntityMaterial, defaultMaterials...)
	return d
}

func normalizeTerm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Add 登记取值，返回新增的个数。
func (d *Dictionary) Add(t core.EntityType, values ...string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.sets[t]
	if set == nil {
		set = make(map[string]string)
		d.sets[t] = set
	}
	added := 0
	for _, v := range values {
		key := normalizeTerm(v)
		if key == "" {
			continue
		}
		if _, ok := set[key]; ok {
			continue
		}
		set[key] = strings.ToLower(strings.TrimSpace(v))
		added++
		if n := strings.Count(key, " ") + 1; n > d.maxWords {
			d.maxWords = n
		}
	}
	return added
}

// Lookup 返回短语对应的规范值。
func (d *Dictionary) Lookup(t core.EntityType, phrase string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.sets[t][normalizeTerm(phrase)]
	return v, ok
}

// Size 返回某类实体的取值个数。
func (d *Dictionary) Size(t core.EntityType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sets[t])
}

// MaxWords 返回登记取值的最大词数，用于 n-gram 匹配。
func (d *Dictionary) MaxWords() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxWords
}

// Values 返回某类实体的全部规范值（按长度降序，便于最长匹配）。
func (d *Dictionary) Values(t core.EntityType) []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.sets[t]))
	for _, v := range d.sets[t] {
		out = append(out, v)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

var defaultCategories = []string{
	"clothing", "dresses", "tops", "bottoms", "pants", "jeans", "skirts", "shorts",
	"outerwear", "jackets", "coats", "sweaters", "activewear", "swimwear", "lingerie",
	"sleepwear", "accessories", "shoes", "bags", "jewelry", "watches", "sunglasses",
	"hats", "scarves", "gloves", "belts", "socks", "home", "bedding", "bath", "kitchen",
	"furniture", "decor", "beauty", "skincare", "makeup", "haircare", "fragrance",
	"wellness", "electronics", "computers", "phones", "audio", "cameras", "gaming",
	"home decor",
}

var defaultBrands = []string{
	"avnu", "eco-collective", "sustainable threads", "green earth", "ethical choice",
	"conscious couture", "fair fashion", "earth friendly", "pure planet",
	"organic basics", "recycled revolution", "upcycled unique", "local luxe",
	"small batch beauty", "artisan alliance",
}

var defaultValues = []string{
	"sustainable", "ethical", "eco-friendly", "organic", "vegan", "fair trade",
	"handmade", "recycled", "upcycled", "local", "small batch", "carbon neutral",
	"zero waste", "plastic free", "biodegradable", "compostable", "renewable",
	"cruelty-free", "non-toxic", "chemical-free",
}

var defaultColors = []string{
	"black", "white", "red", "blue", "green", "yellow", "orange", "purple", "pink",
	"brown", "gray", "grey", "beige", "navy", "teal", "gold", "silver", "multicolor",
	"multi-color",
}

var defaultMaterials = []string{
	"cotton", "organic cotton", "polyester", "recycled polyester", "wool", "silk",
	"linen", "leather", "vegan leather", "denim", "velvet", "satin", "nylon",
	"cashmere", "fleece", "suede", "canvas", "corduroy", "bamboo", "hemp", "tencel",
	"modal", "rayon", "viscose",
}

// defaultSynonyms 是领域同义词表，key 为规范化后的词或短语。
var defaultSynonyms = map[string][]string{
	"shirt":       {"tee", "t-shirt", "top", "blouse"},
	"pants":       {"trousers", "jeans", "slacks", "leggings"},
	"shoes":       {"footwear", "sneakers", "boots", "sandals"},
	"dress":       {"gown", "frock", "outfit"},
	"jacket":      {"coat", "blazer", "outerwear"},
	"sustainable": {"eco-friendly", "green", "ethical", "environmentally friendly"},
	"organic":     {"natural", "chemical-free", "pesticide-free"},
	"vegan":       {"plant-based", "cruelty-free", "animal-free"},
	"handmade":    {"artisanal", "handcrafted", "custom-made"},
	"fair trade":  {"ethically sourced", "ethical trade", "fair price"},
	"recycled":    {"upcycled", "repurposed", "reclaimed"},
	"local":       {"community-made", "locally sourced", "locally made"},
	"small batch": {"limited edition", "artisanal", "handcrafted"},
	"affordable":  {"budget", "inexpensive", "economical", "cheap"},
	"premium":     {"luxury", "high-end", "designer", "exclusive"},
	"sale":        {"discount", "clearance", "reduced", "deal"},
	"new":         {"latest", "fresh", "just in", "new arrival"},
	"popular":     {"trending", "bestselling", "hot", "in demand"},
	"laptop":      {"notebook", "ultrabook"},
	"phone":       {"smartphone", "mobile"},
	"headphones":  {"earphones", "headset", "earbuds"},
	"tv":          {"television"},
}
