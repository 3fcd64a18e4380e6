// Package preference 把用户交互事件折叠为偏好画像。
//
// Collector 是唯一的写入口：每种交互类型对应一条权重更新规则，
// 读-改-写统一经 core.PreferenceStore.Update 在用户锁内完成。
package preference

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// EntityExtractor 从搜索文本中识别实体（由 nlp 包实现）。
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) []core.Entity
}

// Collector 采集交互并更新偏好画像。
type Collector struct {
	store    core.PreferenceStore
	log      core.InteractionLog
	catalog  core.Catalog
	analyzer EntityExtractor
	cfg      Config
	now      core.Clock
	logger   zerolog.Logger
}

// Option 配置 Collector。
type Option func(*Collector)

// WithInteractionLog 记录交互日志，供协同过滤聚合。
func WithInteractionLog(l core.InteractionLog) Option {
	return func(c *Collector) { c.log = l }
}

// WithCatalog 用于补全事件中缺失的商品属性。
func WithCatalog(cat core.Catalog) Option {
	return func(c *Collector) { c.catalog = cat }
}

// WithEntityExtractor 用于从搜索文本中识别实体。
func WithEntityExtractor(e EntityExtractor) Option {
	return func(c *Collector) { c.analyzer = e }
}

// WithConfig 替换默认配置。
func WithConfig(cfg Config) Option {
	return func(c *Collector) { c.cfg = cfg }
}

// WithClock 替换时钟。
func WithClock(now core.Clock) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector 创建 Collector。
func NewCollector(store core.PreferenceStore, opts ...Option) *Collector {
	c := &Collector{
		store:  store,
		cfg:    DefaultConfig(),
		now:    time.Now,
		logger: logging.Component("preference"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordInteraction 处理一条交互事件，返回事件是否被接受。
//
// 校验失败或存储失败返回 false（记录日志与指标，不返回错误）；
// 合法但不产生权重变化的事件（如过短的停留、sort_apply）返回 true。
func (c *Collector) RecordInteraction(ctx context.Context, ev *core.UserInteraction) bool {
	if ev == nil {
		return false
	}
	if err := ev.Validate(); err != nil {
		c.logger.Warn().Err(err).Str("user", ev.UserID).Str("type", string(ev.Type)).Msg("rejected interaction")
		metrics.InteractionsTotal.WithLabelValues(string(ev.Type), "invalid").Inc()
		return false
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}

	c.appendLog(ctx, ev, ts)
	if ev.Type == core.InteractionSortApply {
		metrics.InteractionsTotal.WithLabelValues(string(ev.Type), "noop").Inc()
		return true
	}

	products := c.hydrate(ctx, ev)
	var entities []core.Entity
	if ev.Type == core.InteractionSearch {
		entities = c.entities(ctx, ev)
	}

	changed := false
	_, err := c.store.Update(ctx, ev.UserID, func(p *core.PreferenceProfile) (bool, error) {
		changed = c.apply(p, ev, ts, products, entities)
		return changed, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Str("user", ev.UserID).Str("type", string(ev.Type)).Msg("update preferences failed")
		metrics.InteractionsTotal.WithLabelValues(string(ev.Type), "failed").Inc()
		return false
	}
	outcome := "noop"
	if changed {
		outcome = "applied"
	}
	metrics.InteractionsTotal.WithLabelValues(string(ev.Type), outcome).Inc()
	return true
}

// GetPreferences 返回用户画像，不存在时返回空画像。
func (c *Collector) GetPreferences(ctx context.Context, userID string) (*core.PreferenceProfile, error) {
	if userID == "" {
		return nil, core.InvalidInput(core.ModulePreference, "userId is required")
	}
	p, err := c.store.Get(ctx, userID)
	if core.IsNotFound(err) {
		return core.NewPreferenceProfile(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePreferences 删除用户画像。
func (c *Collector) DeletePreferences(ctx context.Context, userID string) error {
	if userID == "" {
		return core.InvalidInput(core.ModulePreference, "userId is required")
	}
	return c.store.Delete(ctx, userID)
}

func (c *Collector) appendLog(ctx context.Context, ev *core.UserInteraction, ts time.Time) {
	if c.log == nil {
		return
	}
	productID := ev.Data.ProductID
	if productID == "" {
		productID = ev.Data.ResultID
	}
	rec := core.InteractionRecord{
		UserID:    ev.UserID,
		Type:      ev.Type,
		ProductID: productID,
		Timestamp: ts.UnixMilli(),
	}
	if err := c.log.Append(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Str("user", ev.UserID).Msg("append interaction log failed")
	}
}

func (c *Collector) entities(ctx context.Context, ev *core.UserInteraction) []core.Entity {
	if len(ev.Data.Entities) > 0 {
		return ev.Data.Entities
	}
	if c.analyzer == nil || ev.Data.Query == "" {
		return nil
	}
	return c.analyzer.ExtractEntities(ctx, ev.Data.Query)
}

// hydrate 查询事件涉及但负载里缺少属性的商品；失败时返回 nil，只用负载里的属性。
func (c *Collector) hydrate(ctx context.Context, ev *core.UserInteraction) map[string]*core.Product {
	if c.catalog == nil {
		return nil
	}
	d := &ev.Data
	var ids []string
	switch ev.Type {
	case core.InteractionViewProduct, core.InteractionAddToCart, core.InteractionPurchase:
		if len(d.Categories) == 0 || d.Brand == "" || len(d.Values) == 0 || d.Price == 0 {
			ids = []string{d.ProductID}
		}
	case core.InteractionImpression:
		ids = d.ResultIDs
	case core.InteractionDwellTime:
		if len(d.Categories) == 0 && d.Brand == "" {
			ids = []string{d.ResultID}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if c.cfg.CatalogTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CatalogTimeout)
		defer cancel()
	}
	products, err := c.catalog.FindByIDs(ctx, ids)
	if err != nil {
		c.logger.Warn().Err(err).Str("user", ev.UserID).Int("ids", len(ids)).Msg("catalog lookup failed")
		return nil
	}
	return products
}

// attrs 是一个商品参与偏好计算的属性。
type attrs struct {
	categories []string
	brand      string
	values     []string
	price      float64
}

// productAttrs 合并负载与目录中的属性，负载优先。
func productAttrs(d *core.InteractionData, prod *core.Product) attrs {
	a := attrs{categories: d.Categories, brand: d.Brand, values: d.Values, price: d.Price}
	if prod == nil {
		return a
	}
	if len(a.categories) == 0 {
		a.categories = prod.Categories
	}
	if a.brand == "" {
		a.brand = prod.Brand
	}
	if len(a.values) == 0 {
		a.values = prod.Values
	}
	if a.price == 0 {
		a.price = prod.Price
	}
	return a
}

func (a attrs) addTo(p *core.PreferenceProfile, w float64, withValues bool) bool {
	changed := false
	for _, cat := range a.categories {
		changed = p.AddWeight(core.PreferenceCategories, cat, w) || changed
	}
	changed = p.AddWeight(core.PreferenceBrands, a.brand, w) || changed
	if withValues {
		for _, v := range a.values {
			changed = p.AddWeight(core.PreferenceValues, v, w) || changed
		}
	}
	return changed
}

// apply 按事件类型更新画像，返回是否有变化。
func (c *Collector) apply(p *core.PreferenceProfile, ev *core.UserInteraction, ts time.Time, products map[string]*core.Product, entities []core.Entity) bool {
	d := &ev.Data
	cfg := c.cfg
	changed := false

	switch ev.Type {
	case core.InteractionSearch:
		a := attrs{categories: d.Categories, brand: d.Brand, values: d.Values}
		changed = a.addTo(p, cfg.SearchIncrement, true)
		for _, e := range entities {
			switch e.Type {
			case core.EntityCategory:
				changed = p.AddWeight(core.PreferenceCategories, e.Value, cfg.SearchIncrement) || changed
			case core.EntityBrand:
				changed = p.AddWeight(core.PreferenceBrands, e.Value, cfg.SearchIncrement) || changed
			case core.EntityValue:
				changed = p.AddWeight(core.PreferenceValues, e.Value, cfg.SearchIncrement) || changed
			}
		}
		if d.Query != "" {
			p.RecentSearches = core.PushEntry(p.RecentSearches, core.TimedEntry{Key: d.Query, Timestamp: ts.UnixMilli()}, false, cfg.RecentSearchesCap)
			changed = true
		}

	case core.InteractionViewProduct:
		a := productAttrs(d, products[d.ProductID])
		changed = a.addTo(p, cfg.ViewIncrement, true)
		if cfg.ViewNudgesPrice && a.price > 0 {
			changed = NudgePriceRange(p, a.price, cfg.ViewIncrement, cfg.PriceRangeCap) || changed
		}
		p.RecentlyViewed = core.PushEntry(p.RecentlyViewed, core.TimedEntry{Key: d.ProductID, Timestamp: ts.UnixMilli()}, true, cfg.RecentlyViewedCap)
		changed = true

	case core.InteractionAddToCart, core.InteractionPurchase:
		w := cfg.CartIncrement
		if ev.Type == core.InteractionPurchase {
			w = cfg.PurchaseIncrement
		}
		a := productAttrs(d, products[d.ProductID])
		changed = a.addTo(p, w, true)
		if a.price > 0 {
			changed = NudgePriceRange(p, a.price, w, cfg.PriceRangeCap) || changed
		}
		if ev.Type == core.InteractionPurchase {
			p.PurchaseHistory = core.PushEntry(p.PurchaseHistory, core.TimedEntry{Key: d.ProductID, Timestamp: ts.UnixMilli()}, false, cfg.PurchaseHistoryCap)
			changed = true
		}

	case core.InteractionFilterApply:
		f := d.Filters
		a := attrs{categories: f.Categories, values: f.Values}
		changed = a.addTo(p, cfg.FilterIncrement, true)
		for _, b := range f.Brands {
			changed = p.AddWeight(core.PreferenceBrands, b, cfg.FilterIncrement) || changed
		}
		if f.HasPrice() {
			lo, hi := f.PriceBounds()
			changed = MergePriceRange(p, lo, hi, cfg.FilterIncrement, cfg.PriceRangeCap) || changed
		}

	case core.InteractionClickCategory:
		changed = p.AddWeight(core.PreferenceCategories, d.Category, cfg.ClickIncrement)

	case core.InteractionClickBrand:
		changed = p.AddWeight(core.PreferenceBrands, d.Brand, cfg.ClickIncrement)

	case core.InteractionImpression:
		for _, id := range d.ResultIDs {
			prod := products[id]
			if prod == nil {
				continue
			}
			a := attrs{categories: prod.Categories, brand: prod.Brand}
			changed = a.addTo(p, cfg.ImpressionIncrement, false) || changed
		}

	case core.InteractionDwellTime:
		w := cfg.DwellWeight(time.Duration(d.DwellTimeMs) * time.Millisecond)
		if w == 0 {
			return false
		}
		a := productAttrs(d, products[d.ResultID])
		changed = a.addTo(p, w, false)
	}

	if changed && cfg.MaxKeysPerMap > 0 {
		for _, t := range []core.PreferenceType{core.PreferenceCategories, core.PreferenceBrands, core.PreferenceValues} {
			capKeys(p.Map(t), cfg.MaxKeysPerMap)
		}
	}
	return changed
}

// capKeys 删除权重最低的 key，直到数量不超过 limit。
func capKeys(m map[string]float64, limit int) {
	if len(m) <= limit {
		return
	}
	keep := make(map[string]struct{}, limit)
	for _, wk := range core.TopN(m, limit) {
		keep[wk.Key] = struct{}{}
	}
	for k := range m {
		if _, ok := keep[k]; !ok {
			delete(m, k)
		}
	}
}
