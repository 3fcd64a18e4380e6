package preference

import (
	"math"

	"github.com/rushteam/searchkit/core"
)

// StandardPriceBuckets 是价格落点没有命中已有区间时使用的标准区间。
var StandardPriceBuckets = []core.PriceRange{
	{Min: 0, Max: 25},
	{Min: 25, Max: 50},
	{Min: 50, Max: 100},
	{Min: 100, Max: 200},
	{Min: 200, Max: 500},
	{Min: 500, Max: core.OpenEndedPriceMax},
}

// StandardBucket 返回价格所在的标准区间。
func StandardBucket(price float64) core.PriceRange {
	for _, b := range StandardPriceBuckets {
		if b.Contains(price) {
			return b
		}
	}
	return StandardPriceBuckets[0]
}

// NudgePriceRange 把价格偏好推向 price：
// 已有区间包含 price 时，最贴近的一个（跨度最小，其次中点最近）加 w；
// 否则新建 price 所在的标准区间，权重为 w。结果按权重降序并截断到 limit。
func NudgePriceRange(p *core.PreferenceProfile, price, w float64, limit int) bool {
	if price < 0 || w <= 0 || math.IsNaN(price) {
		return false
	}
	best := -1
	for i, r := range p.PriceRanges {
		if !r.Contains(price) {
			continue
		}
		if best < 0 || nearer(r, p.PriceRanges[best], price) {
			best = i
		}
	}
	if best >= 0 {
		p.PriceRanges[best].Weight += w
	} else {
		b := StandardBucket(price)
		b.Weight = w
		p.PriceRanges = append(p.PriceRanges, b)
	}
	p.SortPriceRanges(limit)
	return true
}

func nearer(a, b core.PriceRange, price float64) bool {
	if a.Span() != b.Span() {
		return a.Span() < b.Span()
	}
	return math.Abs((a.Min+a.Max)/2-price) < math.Abs((b.Min+b.Max)/2-price)
}

// MergePriceRange 边界完全相同的区间加 w，否则新增 {lo, hi, w}。
func MergePriceRange(p *core.PreferenceProfile, lo, hi, w float64, limit int) bool {
	if lo < 0 || hi < lo || w <= 0 {
		return false
	}
	target := core.PriceRange{Min: lo, Max: hi}
	merged := false
	for i := range p.PriceRanges {
		if p.PriceRanges[i].SameBounds(target) {
			p.PriceRanges[i].Weight += w
			merged = true
			break
		}
	}
	if !merged {
		target.Weight = w
		p.PriceRanges = append(p.PriceRanges, target)
	}
	p.SortPriceRanges(limit)
	return true
}
