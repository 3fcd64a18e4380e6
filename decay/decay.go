// Package decay 按时间对偏好权重做指数衰减，并负责周期性的全量 sweep。
//
// 衰减是 elapsed 的纯函数：factor = exp(-ln2 / halfLife * elapsedDays)，
// 两次衰减 Δt1、Δt2 与一次 Δt1+Δt2 等价（地板裁剪除外）。
package decay

import (
	"math"
	"time"

	"github.com/rushteam/searchkit/core"
)

const day = 24 * time.Hour

// HalfLives 是各类偏好的半衰期（天）。
type HalfLives struct {
	Categories  float64 `koanf:"categories" validate:"gt=0"`
	Brands      float64 `koanf:"brands" validate:"gt=0"`
	Values      float64 `koanf:"values" validate:"gt=0"`
	PriceRanges float64 `koanf:"price_ranges" validate:"gt=0"`
}

// Of 返回某类偏好的半衰期。
func (h HalfLives) Of(t core.PreferenceType) float64 {
	switch t {
	case core.PreferenceCategories:
		return h.Categories
	case core.PreferenceBrands:
		return h.Brands
	case core.PreferenceValues:
		return h.Values
	case core.PreferencePriceRanges:
		return h.PriceRanges
	}
	return 0
}

// Config 是衰减配置。
type Config struct {
	// Enabled 控制定时 sweep 与请求路径上的惰性衰减；显式调用不受影响
	Enabled      bool      `koanf:"enabled"`
	HalfLifeDays HalfLives `koanf:"half_life_days"`
	Floor        float64   `koanf:"floor" validate:"gte=0"`
	MaxAgeDays   float64   `koanf:"max_age_days" validate:"gt=0"`

	BatchSize    int           `koanf:"batch_size" validate:"gt=0"`
	Concurrency  int           `koanf:"concurrency" validate:"gt=0"`
	Schedule     string        `koanf:"schedule"`
	SweepTimeout time.Duration `koanf:"sweep_timeout"`

	// LazyInterval 是请求路径上触发惰性衰减的最小间隔
	LazyInterval time.Duration `koanf:"lazy_interval"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		HalfLifeDays: HalfLives{
			Categories:  30,
			Brands:      45,
			Values:      60,
			PriceRanges: 90,
		},
		Floor:        0.1,
		MaxAgeDays:   365,
		BatchSize:    100,
		Concurrency:  8,
		Schedule:     "@daily",
		SweepTimeout: time.Hour,
		LazyInterval: 24 * time.Hour,
	}
}

// Factor 返回经过 elapsed 后的衰减系数，半衰期非正或 elapsed 非正时为 1。
func Factor(halfLifeDays float64, elapsed time.Duration) float64 {
	if halfLifeDays <= 0 || elapsed <= 0 {
		return 1
	}
	days := elapsed.Hours() / 24
	return math.Exp(-math.Ln2 / halfLifeDays * days)
}

// DecayMap 原地把权重乘以 factor，低于 floor 的 key 被删除。返回被删除的数量。
func DecayMap(m map[string]float64, factor, floor float64) int {
	removed := 0
	for k, w := range m {
		w *= factor
		if w < floor || w <= 0 {
			delete(m, k)
			removed++
			continue
		}
		m[k] = w
	}
	return removed
}

// DecayPriceRanges 返回衰减后的价格区间，低于 floor 的区间被删除，顺序保持不变。
func DecayPriceRanges(ranges []core.PriceRange, factor, floor float64) []core.PriceRange {
	out := make([]core.PriceRange, 0, len(ranges))
	for _, r := range ranges {
		r.Weight *= factor
		if r.Weight < floor || r.Weight <= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// PruneEntries 删除早于 cutoff 的条目。
func PruneEntries(list []core.TimedEntry, cutoff time.Time) []core.TimedEntry {
	ms := cutoff.UnixMilli()
	out := make([]core.TimedEntry, 0, len(list))
	for _, e := range list {
		if e.Timestamp >= ms {
			out = append(out, e)
		}
	}
	return out
}

// Apply 对画像做一次时间衰减：四类加权偏好按各自半衰期衰减，
// 三个事件列表按 MaxAgeDays 裁剪。purchaseHistory 没有权重，只做年龄裁剪。
func Apply(p *core.PreferenceProfile, cfg Config, elapsed time.Duration, now time.Time) {
	if elapsed > 0 {
		for _, t := range []core.PreferenceType{core.PreferenceCategories, core.PreferenceBrands, core.PreferenceValues} {
			DecayMap(p.Map(t), Factor(cfg.HalfLifeDays.Of(t), elapsed), cfg.Floor)
		}
		p.PriceRanges = DecayPriceRanges(p.PriceRanges, Factor(cfg.HalfLifeDays.PriceRanges, elapsed), cfg.Floor)
	}
	if cfg.MaxAgeDays > 0 {
		cutoff := now.Add(-time.Duration(cfg.MaxAgeDays * float64(day)))
		p.RecentSearches = PruneEntries(p.RecentSearches, cutoff)
		p.RecentlyViewed = PruneEntries(p.RecentlyViewed, cutoff)
		p.PurchaseHistory = PruneEntries(p.PurchaseHistory, cutoff)
	}
}

// ApplyFactor 只对一类偏好乘以 factor，低于 floor 的删除。
func ApplyFactor(p *core.PreferenceProfile, t core.PreferenceType, factor, floor float64) {
	if t == core.PreferencePriceRanges {
		p.PriceRanges = DecayPriceRanges(p.PriceRanges, factor, floor)
		return
	}
	DecayMap(p.Map(t), factor, floor)
}

// LastDecay 返回画像上次衰减的时间，没有记录时退回 lastUpdated。
func LastDecay(p *core.PreferenceProfile) (time.Time, bool) {
	if t, ok := p.AdditionalData.Time(core.ExtLastDecayAt); ok {
		return t, true
	}
	if p.LastUpdated > 0 {
		return time.UnixMilli(p.LastUpdated), true
	}
	return time.Time{}, false
}

// ShouldDecay 判断距离上次衰减是否已超过 interval。
func ShouldDecay(p *core.PreferenceProfile, interval time.Duration, now time.Time) bool {
	if p == nil || p.IsEmpty() {
		return false
	}
	last, ok := LastDecay(p)
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}
