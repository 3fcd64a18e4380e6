package collab

import (
	"math"

	"github.com/rushteam/searchkit/core"
)

const (
	topFeatures = 10
	// VectorLen 是特征向量长度：10 个类目 + 10 个品牌 + 平均价格上下界
	VectorLen = 2*topFeatures + 2
	priceNorm = 1000.0
)

// FeatureVector 把画像转换为定长特征向量。
//
// 类目与品牌各取权重最高的 10 个（降序），除以 max(最大权重, 1)；
// 最后两维是价格区间平均下界与平均上界除以 1000，截断到 1。
func FeatureVector(p *core.PreferenceProfile) []float64 {
	v := make([]float64, VectorLen)
	if p == nil {
		return v
	}
	fillTop(v[:topFeatures], p.Categories)
	fillTop(v[topFeatures:2*topFeatures], p.Brands)
	if n := len(p.PriceRanges); n > 0 {
		var sumMin, sumMax float64
		for _, r := range p.PriceRanges {
			sumMin += r.Min
			sumMax += r.Max
		}
		v[2*topFeatures] = math.Min(sumMin/float64(n)/priceNorm, 1)
		v[2*topFeatures+1] = math.Min(sumMax/float64(n)/priceNorm, 1)
	}
	return v
}

func fillTop(dst []float64, m map[string]float64) {
	top := core.TopN(m, len(dst))
	peak := 1.0
	if len(top) > 0 && top[0].Weight > peak {
		peak = top[0].Weight
	}
	for i, wk := range top {
		dst[i] = wk.Weight / peak
	}
}

// CosineSimilarity 计算余弦相似度；长度不同或任一为零向量时返回 0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// highWeight 是参与候选匹配的最低权重。
const highWeight = 1.0

// candidateMatches 统计候选画像与 p 的匹配条件数：
// 每个双方都有的高权重类目/品牌计 1，每个下界或上界在 ±20% 内的价格区间计 1。
func candidateMatches(p, cand *core.PreferenceProfile) int {
	n := 0
	for k, w := range p.Categories {
		if w > highWeight && cand.Categories[k] > 0 {
			n++
		}
	}
	for k, w := range p.Brands {
		if w > highWeight && cand.Brands[k] > 0 {
			n++
		}
	}
	for _, r := range p.PriceRanges {
		if anyWithin(cand.PriceRanges, r.Min, func(c core.PriceRange) float64 { return c.Min }) {
			n++
		}
		if anyWithin(cand.PriceRanges, r.Max, func(c core.PriceRange) float64 { return c.Max }) {
			n++
		}
	}
	return n
}

func anyWithin(ranges []core.PriceRange, target float64, bound func(core.PriceRange) float64) bool {
	lo, hi := target*0.8, target*1.2
	for _, c := range ranges {
		b := bound(c)
		if b >= lo && b <= hi {
			return true
		}
	}
	return false
}
