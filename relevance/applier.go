// Package relevance 把查询理解、实验分流、用户画像与协同过滤组合成一次评分调整，
// 追加到调用方的基础查询上。
//
// Applier 是纯函数式的：同样的输入总是得到同样的查询，且从不修改基础查询。
// Engine 用 pipeline 串起完整的请求流程，每个节点独立降级。
package relevance

import (
	"sort"

	"github.com/rushteam/searchkit/collab"
	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/metrics"
	"github.com/rushteam/searchkit/pkg/utils"
)

// 画像 boost 系数
const (
	categoryFactor = 2.0
	relatedFactor  = 0.5
	brandFactor    = 1.5
	valueFactor    = 1.0
	priceFactor    = 1.2
	viewedWeight   = 1.0
)

// entityBoost 是实体类型对应的字段与系数。
var entityBoosts = map[core.EntityType]struct {
	field  string
	factor float64
}{
	core.EntityCategory: {"categories", 2},
	core.EntityBrand:    {"brand", 2},
	core.EntityValue:    {"values", 1.5},
	core.EntityColor:    {"attributes.color", 1.5},
	core.EntityMaterial: {"attributes.material", 1.3},
}

// intentFields 是“按存在性 boost”的意图对应字段。
var intentFields = map[core.Intent]string{
	core.IntentCategoryBrowse: "categories",
	core.IntentBrandSpecific:  "brand",
	core.IntentValueDriven:    "values",
}

// Applier 把评分 profile 应用到基础查询上。
type Applier struct {
	cfg      Config
	profiles map[core.Algorithm]Profile
	related  func(string) []collab.RelatedCategory
}

// ApplierOption 配置 Applier。
type ApplierOption func(*Applier)

// WithProfile 注册或覆盖一个 profile。
func WithProfile(p Profile) ApplierOption {
	return func(a *Applier) { a.profiles[p.Name] = p }
}

// WithRelatedCategories 替换相关类目来源。
func WithRelatedCategories(fn func(string) []collab.RelatedCategory) ApplierOption {
	return func(a *Applier) { a.related = fn }
}

// NewApplier 创建 Applier，默认带全部内置 profile。
func NewApplier(cfg Config, opts ...ApplierOption) *Applier {
	a := &Applier{
		cfg:      cfg,
		profiles: DefaultProfiles(),
		related:  collab.RelatedCategories,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Profile 返回指定名称的 profile。
func (a *Applier) Profile(name core.Algorithm) (Profile, bool) {
	p, ok := a.profiles[name]
	return p, ok
}

// Names 返回已注册 profile 名称（含 standard，排序）。
func (a *Applier) Names() []string {
	out := []string{string(core.AlgorithmStandard)}
	for name := range a.profiles {
		if name != core.AlgorithmStandard {
			out = append(out, string(name))
		}
	}
	sort.Strings(out)
	return out
}

// ApplyScoringProfile 返回应用 profile 后的新查询，base 不会被修改。
//
// standard 与未知 profile 返回 base 的拷贝；preference 在画像为空时同样返回拷贝。
// profile、intent、entities 均可为 nil。
func (a *Applier) ApplyScoringProfile(
	base *core.Query,
	name core.Algorithm,
	profile *core.PreferenceProfile,
	intent *core.IntentResult,
	entities []core.Entity,
) *core.Query {
	out := base.Clone()
	if out == nil {
		out = &core.Query{}
	}
	if name == core.AlgorithmStandard || name == "" {
		return out
	}
	prof, ok := a.profiles[name]
	if !ok {
		return out
	}
	if prof.RequiresProfile && profile.IsEmpty() {
		return out
	}

	before := len(out.Functions)
	addFieldBoosts(out, string(name), prof.Boosts)
	if len(prof.Functions) > 0 {
		fns := (&core.Query{Functions: prof.Functions}).Clone().Functions
		out.Functions = append(out.Functions, fns...)
	}
	if prof.Preference && !profile.IsEmpty() {
		a.preferenceBoosts(out, profile)
	}
	if prof.Intent {
		a.intentBoosts(out, intent)
		a.entityBoosts(out, entities)
	}

	if len(out.Functions) > before {
		if out.ScoreMode == "" {
			out.ScoreMode = prof.ScoreMode
		}
		if out.BoostMode == "" {
			out.BoostMode = prof.BoostMode
		}
	}
	out.PutLabel("scoring_profile", utils.Label{Value: string(name), Source: "relevance"})
	metrics.ScoringProfileApplied.WithLabelValues(string(name)).Inc()
	return out
}

func addFieldBoosts(q *core.Query, profile string, boosts map[string]float64) {
	fields := make([]string, 0, len(boosts))
	for f := range boosts {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		q.AddFunction(core.ScoreFunction{
			Name:   profile + ":" + f,
			Filter: core.ExistsFilter(f),
			Weight: boosts[f],
		})
	}
}

// posBoost 让排名靠前的偏好得到更高的系数：第 i 个（从 0 开始）为 1+(n-i)/n。
func posBoost(i, n int) float64 {
	return 1 + float64(n-i)/float64(n)
}

func (a *Applier) preferenceBoosts(q *core.Query, p *core.PreferenceProfile) {
	cats := core.TopN(p.Categories, a.cfg.TopCategories)
	related := make(map[string]struct{})
	for i, c := range cats {
		q.AddFunction(core.ScoreFunction{
			Name:   "preference:category",
			Filter: core.MatchFilter("categories", c.Key),
			Weight: c.Weight * categoryFactor * posBoost(i, len(cats)),
		})
	}
	for _, c := range cats {
		if a.related == nil {
			break
		}
		for _, rel := range a.related(c.Key) {
			if _, own := p.Categories[rel.Category]; own {
				continue
			}
			if _, dup := related[rel.Category]; dup {
				continue
			}
			related[rel.Category] = struct{}{}
			q.AddFunction(core.ScoreFunction{
				Name:   "preference:related_category",
				Filter: core.MatchFilter("categories", rel.Category),
				Weight: c.Weight * relatedFactor * rel.Similarity,
			})
		}
	}

	brands := core.TopN(p.Brands, a.cfg.TopBrands)
	for i, b := range brands {
		q.AddFunction(core.ScoreFunction{
			Name:   "preference:brand",
			Filter: core.MatchFilter("brand", b.Key),
			Weight: b.Weight * brandFactor * posBoost(i, len(brands)),
		})
	}

	for _, v := range core.TopN(p.Values, a.cfg.TopValues) {
		q.AddFunction(core.ScoreFunction{
			Name:   "preference:value",
			Filter: core.MatchFilter("values", v.Key),
			Weight: v.Weight * valueFactor,
		})
	}

	for _, r := range p.PriceRanges {
		if r.Weight <= 0 {
			continue
		}
		var lte *float64
		if r.Max < core.OpenEndedPriceMax {
			lte = f64(r.Max)
		}
		q.AddFunction(core.ScoreFunction{
			Name:   "preference:price",
			Filter: core.RangeFilter("price", f64(r.Min), lte),
			Weight: r.Weight * priceFactor,
		})
	}

	if ids := recentIDs(p.RecentlyViewed, a.cfg.MaxRecentlyViewed); len(ids) > 0 {
		q.AddFunction(core.ScoreFunction{
			Name:   "preference:recently_viewed",
			Filter: core.TermsFilter("_id", ids...),
			Weight: viewedWeight,
		})
	}
}

func recentIDs(list []core.TimedEntry, limit int) []string {
	var ids []string
	seen := make(map[string]struct{}, len(list))
	for _, e := range list {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if _, dup := seen[e.Key]; dup || e.Key == "" {
			continue
		}
		seen[e.Key] = struct{}{}
		ids = append(ids, e.Key)
	}
	return ids
}

func (a *Applier) intentBoosts(q *core.Query, intent *core.IntentResult) {
	if intent.IsGeneral() {
		return
	}
	if field, ok := intentFields[intent.Intent]; ok {
		q.AddFunction(core.ScoreFunction{
			Name:   "intent:" + string(intent.Intent),
			Filter: core.ExistsFilter(field),
			Weight: a.cfg.IntentBoostWeight,
		})
		return
	}
	if intent.Intent == core.IntentRecommendation {
		q.AddFunction(core.ScoreFunction{
			Name:             "intent:recommendation",
			FieldValueFactor: &core.FieldValueFactor{Field: "rating", Factor: 2, Modifier: "sqrt", Missing: f64(1)},
		})
		q.AddFunction(core.ScoreFunction{
			Name:             "intent:recommendation",
			FieldValueFactor: &core.FieldValueFactor{Field: "reviewCount", Factor: 0.1, Modifier: "log1p", Missing: f64(1)},
		})
	}
}

func (a *Applier) entityBoosts(q *core.Query, entities []core.Entity) {
	for _, e := range entities {
		if e.Confidence < a.cfg.MinEntityConf || e.Value == "" {
			continue
		}
		b, ok := entityBoosts[e.Type]
		if !ok {
			continue
		}
		q.AddFunction(core.ScoreFunction{
			Name:   "entity:" + string(e.Type),
			Filter: core.MatchFilter(b.field, e.Value),
			Weight: e.Confidence * b.factor,
		})
	}
}
