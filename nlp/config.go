package nlp

import "time"

// Config 是查询理解的配置。
type Config struct {
	MinTokenLength  int     `koanf:"min_token_length" validate:"gte=1"`
	IntentThreshold float64 `koanf:"intent_threshold" validate:"gt=0,lte=1"`

	ExpansionEnabled   bool `koanf:"expansion_enabled"`
	IndexExpansion     bool `koanf:"index_expansion"`
	MaxSynonymsPerTerm int  `koanf:"max_synonyms_per_term" validate:"gte=0"`
	MaxExpansionTerms  int  `koanf:"max_expansion_terms" validate:"gte=0"`

	// ExpansionField 是统计扩展使用的索引字段
	ExpansionField string `koanf:"expansion_field"`

	// 外部索引调用：超时、熔断、限流
	IndexTimeout      time.Duration `koanf:"index_timeout"`
	DictionaryTimeout time.Duration `koanf:"dictionary_timeout"`
	DictionarySize    int           `koanf:"dictionary_size" validate:"gte=0"`
	BreakerFailures   uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerOpenFor    time.Duration `koanf:"breaker_open_for"`
	RateLimit         float64       `koanf:"rate_limit" validate:"gte=0"` // 每秒，0 表示不限
	RateBurst         int           `koanf:"rate_burst" validate:"gte=0"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		MinTokenLength:     2,
		IntentThreshold:    0.6,
		ExpansionEnabled:   true,
		IndexExpansion:     true,
		MaxSynonymsPerTerm: 3,
		MaxExpansionTerms:  5,
		ExpansionField:     "description",
		IndexTimeout:       300 * time.Millisecond,
		DictionaryTimeout:  2 * time.Second,
		DictionarySize:     1000,
		BreakerFailures:    5,
		BreakerOpenFor:     30 * time.Second,
		RateLimit:          50,
		RateBurst:          10,
	}
}
