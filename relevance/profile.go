package relevance

import (
	"time"

	"github.com/rushteam/searchkit/core"
)

// Profile 是一个评分 profile。
//
// Boosts 中的字段渲染为带权重的 exists 函数；Functions 是预置评分函数；
// Preference / Intent 决定是否追加按用户画像、查询意图计算的动态 boost。
type Profile struct {
	Name      core.Algorithm
	Boosts    map[string]float64
	Functions []core.ScoreFunction
	ScoreMode string
	BoostMode string

	Preference bool
	Intent     bool

	// RequiresProfile 为 true 时，没有可用画像直接返回基础查询
	RequiresProfile bool
}

func f64(v float64) *float64 { return &v }

// DefaultProfiles 返回内置 profile（standard 不在其中，它恒等返回基础查询）。
func DefaultProfiles() map[core.Algorithm]Profile {
	return map[core.Algorithm]Profile{
		core.AlgorithmPopularity: {
			Name:   core.AlgorithmPopularity,
			Boosts: map[string]float64{"name": 2, "description": 0.8, "categories": 1.5, "brand": 1.2},
			Functions: []core.ScoreFunction{
				{
					Name:             "popularity:views",
					FieldValueFactor: &core.FieldValueFactor{Field: "viewCount", Factor: 0.1, Modifier: "log1p", Missing: f64(0)},
					Weight:           1,
				},
				{
					Name:             "popularity:rating",
					FieldValueFactor: &core.FieldValueFactor{Field: "rating", Factor: 1, Modifier: "sqrt", Missing: f64(1)},
					Weight:           2,
				},
			},
			ScoreMode: "sum",
			BoostMode: "multiply",
		},
		core.AlgorithmRecency: {
			Name:   core.AlgorithmRecency,
			Boosts: map[string]float64{"name": 2, "description": 1, "categories": 1.5},
			Functions: []core.ScoreFunction{
				{
					Name:   "recency:created",
					Decay:  &core.DecayFunction{Field: "createdAt", Scale: "30d", Offset: "1d", Decay: 0.5},
					Weight: 2,
				},
			},
			ScoreMode: "multiply",
			BoostMode: "multiply",
		},
		core.AlgorithmPreference: {
			Name:            core.AlgorithmPreference,
			Boosts:          map[string]float64{"name": 2, "description": 0.8},
			ScoreMode:       "sum",
			BoostMode:       "multiply",
			Preference:      true,
			RequiresProfile: true,
		},
		core.AlgorithmIntent: {
			Name:      core.AlgorithmIntent,
			Boosts:    map[string]float64{"name": 2, "description": 0.8},
			ScoreMode: "sum",
			BoostMode: "multiply",
			Intent:    true,
		},
		core.AlgorithmHybrid: {
			Name:   core.AlgorithmHybrid,
			Boosts: map[string]float64{"name": 2, "description": 0.8, "categories": 1.5, "brand": 1.2},
			Functions: []core.ScoreFunction{
				{
					Name:             "hybrid:rating",
					FieldValueFactor: &core.FieldValueFactor{Field: "rating", Factor: 0.5, Modifier: "sqrt", Missing: f64(1)},
					Weight:           1,
				},
				{
					Name:   "hybrid:recency",
					Decay:  &core.DecayFunction{Field: "createdAt", Scale: "60d", Offset: "1d", Decay: 0.5},
					Weight: 1,
				},
			},
			ScoreMode:  "sum",
			BoostMode:  "multiply",
			Preference: true,
		},
	}
}

// Config 是相关性层配置。
type Config struct {
	// PersonalizationEnabled 关闭时不读画像、不做偏好与协同 boost
	PersonalizationEnabled bool `koanf:"personalization_enabled"`

	// CollabStrength 协同过滤 boost 强度，0 表示关闭
	CollabStrength float64 `koanf:"collab_strength" validate:"gte=0,lte=10"`

	// ExperimentID 默认参与的实验，请求未指定时使用
	ExperimentID string `koanf:"experiment_id"`

	// NodeTimeout 每个流程节点的超时
	NodeTimeout time.Duration `koanf:"node_timeout" validate:"gte=0"`

	// ParallelEnrichment 并发执行查询理解、实验分流与读画像
	ParallelEnrichment bool `koanf:"parallel_enrichment"`

	TopCategories     int     `koanf:"top_categories" validate:"gte=0,lte=50"`
	TopBrands         int     `koanf:"top_brands" validate:"gte=0,lte=50"`
	TopValues         int     `koanf:"top_values" validate:"gte=0,lte=50"`
	MaxRecentlyViewed int     `koanf:"max_recently_viewed" validate:"gte=0,lte=200"`
	MinEntityConf     float64 `koanf:"min_entity_confidence" validate:"gte=0,lte=1"`
	IntentBoostWeight float64 `koanf:"intent_boost_weight" validate:"gte=0"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		PersonalizationEnabled: true,
		CollabStrength:         1.0,
		NodeTimeout:            150 * time.Millisecond,
		ParallelEnrichment:     true,
		TopCategories:          5,
		TopBrands:              5,
		TopValues:              5,
		MaxRecentlyViewed:      20,
		MinEntityConf:          0.5,
		IntentBoostWeight:      3,
	}
}
