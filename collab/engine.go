// Package collab 基于画像相似度做跨用户的协同过滤：
// 找相似用户、用相似用户的偏好增强当前画像、聚合相似用户的交互生成推荐与 boost。
//
// 只读其他用户的画像，只写请求用户自己的画像。
package collab

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
	"github.com/rushteam/searchkit/pkg/utils"
)

// Config 是协同过滤配置。
type Config struct {
	SimilarityThreshold float64 `koanf:"similarity_threshold" validate:"gte=0,lte=1"`
	MaxSimilarUsers     int     `koanf:"max_similar_users" validate:"gt=0"`
	MinMatches          int     `koanf:"min_matches" validate:"gte=0"`

	// CandidateBudget 是一次相似用户查找最多检查的画像数
	CandidateBudget int           `koanf:"candidate_budget" validate:"gt=0"`
	ScanBatch       int           `koanf:"scan_batch" validate:"gt=0"`
	SearchTimeout   time.Duration `koanf:"search_timeout"`

	// 聚合相似用户交互日志
	LogDepth      int           `koanf:"log_depth" validate:"gt=0"`
	FanoutTimeout time.Duration `koanf:"fanout_timeout"`
	Concurrency   int           `koanf:"concurrency" validate:"gt=0"`

	// 画像增强系数
	CategoryFactor   float64 `koanf:"category_factor"`
	BrandFactor      float64 `koanf:"brand_factor"`
	ValueFactor      float64 `koanf:"value_factor"`
	ExistingDamping  float64 `koanf:"existing_damping"`
	NewDamping       float64 `koanf:"new_damping"`
	PriceRangeFactor float64 `koanf:"price_range_factor"`
	PriceRangeCap    int     `koanf:"price_range_cap"`

	// BoostRecommendations 是转成 boost 的推荐数
	BoostRecommendations int `koanf:"boost_recommendations" validate:"gt=0"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:  0.3,
		MaxSimilarUsers:      10,
		MinMatches:           2,
		CandidateBudget:      1000,
		ScanBatch:            100,
		SearchTimeout:        2 * time.Second,
		LogDepth:             200,
		FanoutTimeout:        500 * time.Millisecond,
		Concurrency:          8,
		CategoryFactor:       0.5,
		BrandFactor:          0.5,
		ValueFactor:          0.4,
		ExistingDamping:      0.2,
		NewDamping:           0.1,
		PriceRangeFactor:     0.3,
		PriceRangeCap:        core.PriceRangeCap,
		BoostRecommendations: 20,
	}
}

// SimilarUser 是一个相似用户。
type SimilarUser struct {
	UserID     string                  `json:"userId"`
	Similarity float64                 `json:"similarity"`
	Profile    *core.PreferenceProfile `json:"-"`
}

// Recommendation 是一个协同推荐的商品。
type Recommendation struct {
	ProductID string  `json:"productId"`
	Score     float64 `json:"score"`
}

// 交互类型在推荐打分中的权重
var interactionScores = map[core.InteractionType]float64{
	core.InteractionPurchase:    3,
	core.InteractionAddToCart:   2,
	core.InteractionViewProduct: 1,
}

// Engine 是协同过滤引擎。
type Engine struct {
	store  core.PreferenceStore
	log    core.InteractionLog
	cfg    Config
	now    core.Clock
	logger zerolog.Logger
}

// NewEngine 创建引擎；log 为 nil 时推荐与 boost 始终为空。
func NewEngine(store core.PreferenceStore, log core.InteractionLog, cfg Config, now core.Clock) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:  store,
		log:    log,
		cfg:    cfg,
		now:    now,
		logger: logging.Component("collab"),
	}
}

func (e *Engine) concurrency() int {
	if e.cfg.Concurrency <= 0 {
		return 1
	}
	return e.cfg.Concurrency
}

// FindSimilarUsers 返回与 userID 相似的用户，按相似度降序，最多 MaxSimilarUsers 个。
//
// 候选扫描有预算与超时，超时或扫描失败时返回已找到的部分结果。
// 用户没有画像时返回空结果。
func (e *Engine) FindSimilarUsers(ctx context.Context, userID string) ([]SimilarUser, error) {
	_, similar, err := e.findSimilar(ctx, userID)
	return similar, err
}

func (e *Engine) findSimilar(ctx context.Context, userID string) (*core.PreferenceProfile, []SimilarUser, error) {
	if userID == "" {
		return nil, nil, core.InvalidInput(core.ModuleCollab, "userId is required")
	}
	self, err := e.store.Get(ctx, userID)
	if core.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if self.IsEmpty() {
		return self, nil, nil
	}
	selfVec := FeatureVector(self)

	if e.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SearchTimeout)
		defer cancel()
	}

	var (
		mu      sync.Mutex
		out     []SimilarUser
		cursor  string
		checked int
	)
	for checked < e.cfg.CandidateBudget {
		batch := e.cfg.ScanBatch
		if rest := e.cfg.CandidateBudget - checked; rest < batch {
			batch = rest
		}
		ids, next, err := e.store.Scan(ctx, cursor, batch)
		if err != nil {
			e.logger.Warn().Err(err).Str("user", userID).Msg("candidate scan stopped")
			break
		}
		checked += len(ids)

		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(e.concurrency())
		for _, id := range ids {
			candID := id
			if candID == userID {
				continue
			}
			eg.Go(func() error {
				cand, err := e.store.Get(gctx, candID)
				if err != nil {
					return nil
				}
				if candidateMatches(self, cand) < e.cfg.MinMatches {
					return nil
				}
				sim := CosineSimilarity(selfVec, FeatureVector(cand))
				if sim < e.cfg.SimilarityThreshold {
					return nil
				}
				mu.Lock()
				out = append(out, SimilarUser{UserID: candID, Similarity: sim, Profile: cand})
				mu.Unlock()
				return nil
			})
		}
		_ = eg.Wait()
		if next == "" || len(ids) == 0 {
			break
		}
		cursor = next
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > e.cfg.MaxSimilarUsers {
		out = out[:e.cfg.MaxSimilarUsers]
	}
	return self, out, nil
}

// EnhanceUserPreferences 用相似用户的偏好增强用户画像并持久化，返回是否有变化。
func (e *Engine) EnhanceUserPreferences(ctx context.Context, userID string) (bool, error) {
	_, similar, err := e.findSimilar(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(similar) == 0 {
		e.logger.Debug().Str("user", userID).Msg("no similar users")
		return false, nil
	}
	now := e.now()
	_, err = e.store.Update(ctx, userID, func(p *core.PreferenceProfile) (bool, error) {
		e.blend(p, similar)
		var sum float64
		for _, s := range similar {
			sum += s.Similarity
		}
		return true, p.AdditionalData.Set(core.ExtCollaborativeFiltering, map[string]any{
			"appliedAt":         now,
			"similarUsersCount": len(similar),
			"averageSimilarity": sum / float64(len(similar)),
		})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// blend 把相似用户的偏好按相似度混入 p：已有 key 小幅增强，新 key 以更低的权重引入。
func (e *Engine) blend(p *core.PreferenceProfile, similar []SimilarUser) {
	factors := []struct {
		t core.PreferenceType
		f float64
	}{
		{core.PreferenceCategories, e.cfg.CategoryFactor},
		{core.PreferenceBrands, e.cfg.BrandFactor},
		{core.PreferenceValues, e.cfg.ValueFactor},
	}
	for _, tf := range factors {
		target := p.Map(tf.t)
		for _, s := range similar {
			src := s.Profile.Map(tf.t)
			keys := make([]string, 0, len(src))
			for k := range src {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				v := src[k]
				if v <= 0 {
					continue
				}
				if _, ok := target[k]; ok {
					target[k] += v * s.Similarity * tf.f * e.cfg.ExistingDamping
				} else {
					target[k] = v * s.Similarity * tf.f * e.cfg.NewDamping
				}
			}
		}
	}

	for _, s := range similar {
		for _, r := range s.Profile.PriceRanges {
			known := false
			for _, own := range p.PriceRanges {
				if own.SameBounds(r) {
					known = true
					break
				}
			}
			if known {
				continue
			}
			w := r.Weight * s.Similarity * e.cfg.PriceRangeFactor
			if w <= 0 {
				continue
			}
			p.PriceRanges = append(p.PriceRanges, core.PriceRange{Min: r.Min, Max: r.Max, Weight: w})
		}
	}
	p.SortPriceRanges(e.cfg.PriceRangeCap)
}

// GetCollaborativeRecommendations 聚合相似用户的浏览/加购/购买，排除用户已看过或买过的商品。
//
// 单个相似用户的日志读取失败或超时只会丢失该用户的贡献。
func (e *Engine) GetCollaborativeRecommendations(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		return nil, nil
	}
	self, similar, err := e.findSimilar(ctx, userID)
	if err != nil || len(similar) == 0 || e.log == nil {
		return nil, err
	}
	seen := self.SeenProducts()

	type agg struct {
		score float64
		users map[string]float64
	}
	var (
		mu       sync.Mutex
		products = make(map[string]*agg)
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency())
	for _, s := range similar {
		su := s
		eg.Go(func() error {
			fctx := gctx
			if e.cfg.FanoutTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, e.cfg.FanoutTimeout)
				defer cancel()
			}
			recs, err := e.log.Recent(fctx, su.UserID, e.cfg.LogDepth)
			if err != nil {
				// 超时或错误时丢弃该用户的贡献，不影响其他用户
				metrics.CollabFanoutErrors.Inc()
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range recs {
				w, ok := interactionScores[r.Type]
				if !ok || r.ProductID == "" {
					continue
				}
				if _, done := seen[r.ProductID]; done {
					continue
				}
				a := products[r.ProductID]
				if a == nil {
					a = &agg{users: make(map[string]float64)}
					products[r.ProductID] = a
				}
				a.score += w
				a.users[su.UserID] = su.Similarity
			}
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]Recommendation, 0, len(products))
	for id, a := range products {
		score := a.score
		for _, sim := range a.users {
			score *= 1 + sim
		}
		out = append(out, Recommendation{ProductID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplyCollaborativeBoosts 把推荐转成按 _id 命中的 boost 函数，权重按最高分归一化后乘以 strength。
// 没有推荐或出错时原样返回 q。
func (e *Engine) ApplyCollaborativeBoosts(ctx context.Context, q *core.Query, userID string, strength float64) *core.Query {
	if q == nil || userID == "" || strength <= 0 {
		return q
	}
	recs, err := e.GetCollaborativeRecommendations(ctx, userID, e.cfg.BoostRecommendations)
	if err != nil {
		e.logger.Warn().Err(err).Str("user", userID).Msg("collaborative recommendations failed")
		return q
	}
	if len(recs) == 0 || recs[0].Score <= 0 {
		return q
	}
	out := q.Clone()
	if out.ScoreMode == "" {
		out.ScoreMode = "sum"
	}
	if out.BoostMode == "" {
		out.BoostMode = "multiply"
	}
	top := recs[0].Score
	for _, r := range recs {
		out.AddFunction(core.ScoreFunction{
			Name:   "collaborative",
			Filter: core.TermFilter("_id", r.ProductID),
			Weight: r.Score / top * strength,
		})
	}
	out.SetExt("collaborative_filtering", map[string]any{
		"applied":               true,
		"recommendations_count": len(recs),
		"boost_strength":        strength,
	})
	out.PutLabel("collaborative", utils.Label{Value: userID, Source: "collab"})
	return out
}
