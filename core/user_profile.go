package core

import (
	"sort"
	"strings"
	"time"
)

// PreferenceProfile 是用户偏好画像：搜索个性化的全部状态。
//
// 一个用户只有一份画像，归 Preference Store 独占：
//   - Collector 做增量加权
//   - Decay Engine 做乘性衰减与过期裁剪
//   - 协同过滤只读取他人画像，只回写请求者自己的画像
//
// 不变式：
//   - 所有权重 >= 0，衰减到阈值（0.1）以下的条目直接删除
//   - PriceRanges 按权重降序，长度不超过 PriceRangeCap
type PreferenceProfile struct {
	UserID string `json:"userId"`

	// 加权偏好：label -> weight
	Categories map[string]float64 `json:"categories"`
	Brands     map[string]float64 `json:"brands"`
	Values     map[string]float64 `json:"values"`

	PriceRanges []PriceRange `json:"priceRanges"`

	// 时间序事件列表（新的在前）
	RecentSearches  []TimedEntry `json:"recentSearches"`
	RecentlyViewed  []TimedEntry `json:"recentlyViewedProducts"`
	PurchaseHistory []TimedEntry `json:"purchaseHistory"`

	LastUpdated int64 `json:"lastUpdated"` // unix 毫秒

	// AdditionalData 是开放扩展区（衰减元数据、协同过滤来源等）
	AdditionalData Extensions `json:"additionalData,omitempty"`
}

// PriceRangeCap 是价格区间列表的长度上限。
const PriceRangeCap = 8

// OpenEndedPriceMax 表示没有上限的价格区间（如 500+）。
const OpenEndedPriceMax = 9007199254740991.0

// PriceRange 是一个价格区间偏好。
type PriceRange struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Weight float64 `json:"weight"`
}

// Contains 判断价格是否落在 [Min, Max) 内；开放区间包含上界。
func (r PriceRange) Contains(price float64) bool {
	if r.Max >= OpenEndedPriceMax {
		return price >= r.Min
	}
	return price >= r.Min && price < r.Max
}

// Span 返回区间宽度。
func (r PriceRange) Span() float64 { return r.Max - r.Min }

// SameBounds 判断两个区间边界是否一致。
func (r PriceRange) SameBounds(o PriceRange) bool {
	return r.Min == o.Min && r.Max == o.Max
}

// TimedEntry 是带时间戳的事件条目（搜索词 / 商品 ID）。
type TimedEntry struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"` // unix 毫秒
}

// Time 返回条目时间。
func (e TimedEntry) Time() time.Time { return time.UnixMilli(e.Timestamp) }

// PreferenceType 标识画像中可被衰减的一类权重。
type PreferenceType string

const (
	PreferenceCategories  PreferenceType = "categories"
	PreferenceBrands      PreferenceType = "brands"
	PreferenceValues      PreferenceType = "values"
	PreferencePriceRanges PreferenceType = "priceRanges"
)

// PreferenceTypes 是全部可衰减类型。
var PreferenceTypes = []PreferenceType{
	PreferenceCategories,
	PreferenceBrands,
	PreferenceValues,
	PreferencePriceRanges,
}

// ParsePreferenceType 解析偏好类型，未知类型返回 INVALID_INPUT。
func ParsePreferenceType(s string) (PreferenceType, error) {
	for _, t := range PreferenceTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", InvalidInput(ModulePreference, "unknown preference type: "+s)
}

// NewPreferenceProfile 创建一个空画像。
func NewPreferenceProfile(userID string) *PreferenceProfile {
	p := &PreferenceProfile{UserID: userID}
	p.Normalize()
	return p
}

// Normalize 补齐 nil 字段（JSON 反序列化后调用）。
func (p *PreferenceProfile) Normalize() {
	if p.Categories == nil {
		p.Categories = make(map[string]float64)
	}
	if p.Brands == nil {
		p.Brands = make(map[string]float64)
	}
	if p.Values == nil {
		p.Values = make(map[string]float64)
	}
	if p.PriceRanges == nil {
		p.PriceRanges = make([]PriceRange, 0)
	}
	if p.RecentSearches == nil {
		p.RecentSearches = make([]TimedEntry, 0)
	}
	if p.RecentlyViewed == nil {
		p.RecentlyViewed = make([]TimedEntry, 0)
	}
	if p.PurchaseHistory == nil {
		p.PurchaseHistory = make([]TimedEntry, 0)
	}
	if p.AdditionalData == nil {
		p.AdditionalData = make(Extensions)
	}
}

// IsEmpty 判断画像是否没有任何可用于个性化的信号。
func (p *PreferenceProfile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.Categories) == 0 && len(p.Brands) == 0 && len(p.Values) == 0 &&
		len(p.PriceRanges) == 0 && len(p.RecentlyViewed) == 0
}

// Touch 更新 LastUpdated。
func (p *PreferenceProfile) Touch(now time.Time) {
	p.LastUpdated = now.UnixMilli()
}

// Map 返回某类加权偏好的 map；PriceRanges 不是 map，返回 nil。
func (p *PreferenceProfile) Map(t PreferenceType) map[string]float64 {
	switch t {
	case PreferenceCategories:
		return p.Categories
	case PreferenceBrands:
		return p.Brands
	case PreferenceValues:
		return p.Values
	default:
		return nil
	}
}

// SetMap 替换某类加权偏好。
func (p *PreferenceProfile) SetMap(t PreferenceType, m map[string]float64) {
	switch t {
	case PreferenceCategories:
		p.Categories = m
	case PreferenceBrands:
		p.Brands = m
	case PreferenceValues:
		p.Values = m
	}
}

// AddWeight 给某类偏好的 key 增加权重，key 统一小写。
// delta <= 0 或 key 为空时忽略，返回是否生效。
func (p *PreferenceProfile) AddWeight(t PreferenceType, key string, delta float64) bool {
	key = NormalizeKey(key)
	m := p.Map(t)
	if key == "" || delta <= 0 || m == nil {
		return false
	}
	m[key] += delta
	return true
}

// SortPriceRanges 按权重降序排序并截断到 limit。
func (p *PreferenceProfile) SortPriceRanges(limit int) {
	sort.SliceStable(p.PriceRanges, func(i, j int) bool {
		return p.PriceRanges[i].Weight > p.PriceRanges[j].Weight
	})
	if limit > 0 && len(p.PriceRanges) > limit {
		p.PriceRanges = p.PriceRanges[:limit]
	}
}

// SeenProducts 返回浏览过或购买过的商品集合。
func (p *PreferenceProfile) SeenProducts() map[string]struct{} {
	seen := make(map[string]struct{}, len(p.RecentlyViewed)+len(p.PurchaseHistory))
	for _, e := range p.RecentlyViewed {
		seen[e.Key] = struct{}{}
	}
	for _, e := range p.PurchaseHistory {
		seen[e.Key] = struct{}{}
	}
	return seen
}

// Clone 深拷贝画像。
func (p *PreferenceProfile) Clone() *PreferenceProfile {
	if p == nil {
		return nil
	}
	out := &PreferenceProfile{
		UserID:          p.UserID,
		Categories:      cloneWeights(p.Categories),
		Brands:          cloneWeights(p.Brands),
		Values:          cloneWeights(p.Values),
		PriceRanges:     append([]PriceRange(nil), p.PriceRanges...),
		RecentSearches:  append([]TimedEntry(nil), p.RecentSearches...),
		RecentlyViewed:  append([]TimedEntry(nil), p.RecentlyViewed...),
		PurchaseHistory: append([]TimedEntry(nil), p.PurchaseHistory...),
		LastUpdated:     p.LastUpdated,
		AdditionalData:  p.AdditionalData.Clone(),
	}
	out.Normalize()
	return out
}

func cloneWeights(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PushEntry 把条目插入列表头部。dedup 为 true 时先移除相同 key，limit > 0 时截断。
func PushEntry(list []TimedEntry, e TimedEntry, dedup bool, limit int) []TimedEntry {
	out := make([]TimedEntry, 0, len(list)+1)
	out = append(out, e)
	for _, old := range list {
		if dedup && old.Key == e.Key {
			continue
		}
		out = append(out, old)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// WeightedKey 是排序后的 (key, weight)。
type WeightedKey struct {
	Key    string
	Weight float64
}

// TopN 返回权重最大的 n 个正权重条目，权重相同时按 key 字典序，保证确定性。
func TopN(m map[string]float64, n int) []WeightedKey {
	out := make([]WeightedKey, 0, len(m))
	for k, v := range m {
		if v > 0 {
			out = append(out, WeightedKey{Key: k, Weight: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// NormalizeKey 统一偏好 key：去空白、小写。
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
