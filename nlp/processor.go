// Package nlp 实现查询理解：分词、实体识别、意图识别、查询扩展与检索参数合成。
//
// 每个阶段独立降级：某阶段出错或 panic 时使用透传的默认值，并记录到
// QueryUnderstanding.Degraded，整个 ProcessQuery 不会失败。
//
// 只有两处会访问外部索引，均受超时、熔断与限流保护：
//   - EntityExtractor.LoadFromIndex：用索引聚合补充类目、品牌词典
//   - Expander：significant terms 统计扩展
package nlp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// 阶段名称
const (
	StageTokenize  = "tokenize"
	StageEntities  = "entities"
	StageIntent    = "intent"
	StageExpansion = "expansion"
	StageParams    = "params"
)

// Processor 串联查询理解的各个阶段，可并发使用。
type Processor struct {
	cfg       Config
	tokenizer *Tokenizer
	extractor *EntityExtractor
	detector  *IntentDetector
	expander  *Expander
	logger    zerolog.Logger
}

type options struct {
	index    core.SearchIndex
	dict     *Dictionary
	synonyms map[string][]string
	now      core.Clock
}

// Option 配置 Processor。
type Option func(*options)

// WithSearchIndex 开启索引词典加载与统计扩展。
func WithSearchIndex(index core.SearchIndex) Option {
	return func(o *options) { o.index = index }
}

// WithDictionary 替换实体词典。
func WithDictionary(d *Dictionary) Option {
	return func(o *options) { o.dict = d }
}

// WithSynonyms 替换同义词表。
func WithSynonyms(s map[string][]string) Option {
	return func(o *options) { o.synonyms = s }
}

// WithClock 替换时钟（影响 since_YYYY 的年份校验）。
func WithClock(now core.Clock) Option {
	return func(o *options) { o.now = now }
}

// NewProcessor 创建查询理解处理器。
func NewProcessor(cfg Config, opts ...Option) (*Processor, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	tokenizer, err := NewTokenizer(cfg.MinTokenLength)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleNLP, core.ErrorCodeInternalError, "init tokenizer", err)
	}
	logger := logging.Component("nlp")
	p := &Processor{
		cfg:       cfg,
		tokenizer: tokenizer,
		extractor: NewEntityExtractor(o.dict, cfg, o.now),
		detector:  NewIntentDetector(tokenizer, cfg.IntentThreshold),
		expander:  NewExpander(o.synonyms, cfg),
		logger:    logger,
	}
	if o.index != nil {
		p.extractor.index = newGuardedIndex("nlp.dictionary", o.index, cfg, logger)
		p.expander.index = newGuardedIndex("nlp.expansion", o.index, cfg, logger)
	}
	return p, nil
}

// Tokenizer 返回分词器。
func (p *Processor) Tokenizer() *Tokenizer { return p.tokenizer }

// Extractor 返回实体识别器。
func (p *Processor) Extractor() *EntityExtractor { return p.extractor }

// LoadDictionaries 从索引补充实体词典，未配置索引时什么都不做。
func (p *Processor) LoadDictionaries(ctx context.Context) error {
	n, err := p.extractor.LoadFromIndex(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("load entity dictionaries from index failed")
		return err
	}
	p.logger.Info().Int("added", n).
		Int("categories", p.extractor.dict.Size(core.EntityCategory)).
		Int("brands", p.extractor.dict.Size(core.EntityBrand)).
		Msg("entity dictionaries loaded")
	return nil
}

// ExtractEntities 只做分词与实体识别，供偏好采集使用。
func (p *Processor) ExtractEntities(_ context.Context, text string) []core.Entity {
	var entities []core.Entity
	qu := &core.QueryUnderstanding{Query: text}
	p.stage(qu, StageEntities, func() error {
		tokens, _ := p.tokenizer.Tokenize(text)
		entities, _ = p.extractor.Extract(text, tokens)
		return nil
	})
	return entities
}

// ProcessQuery 对查询做完整理解，任何阶段失败都不会让整体失败。
func (p *Processor) ProcessQuery(ctx context.Context, text string) *core.QueryUnderstanding {
	qu := &core.QueryUnderstanding{
		Query:         text,
		EnhancedQuery: text,
		ExpandedQuery: text,
		Intent:        core.IntentResult{Intent: core.IntentGeneral, Confidence: defaultConfidence, Source: "default"},
	}

	p.stage(qu, StageTokenize, func() error {
		qu.Tokens, qu.Stems = p.tokenizer.Tokenize(text)
		return nil
	})
	p.stage(qu, StageEntities, func() error {
		qu.Entities, qu.EnhancedQuery = p.extractor.Extract(text, qu.Tokens)
		return nil
	})
	p.stage(qu, StageIntent, func() error {
		qu.Intent = p.detector.Detect(text, qu.Stems)
		return nil
	})
	p.stage(qu, StageExpansion, func() error {
		exp, err := p.expander.Expand(ctx, text, qu.Tokens)
		qu.ExpandedQuery, qu.ExpansionTerms, qu.ExpansionSources = exp.Query, exp.Terms, exp.Sources
		return err
	})
	p.stage(qu, StageParams, func() error {
		qu.SearchParameters = SearchParameters(qu.Intent.Intent, qu.Entities, text)
		return nil
	})
	return qu
}

// stage 运行一个阶段，error 或 panic 都记为降级。
func (p *Processor) stage(qu *core.QueryUnderstanding, name string, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn()
	}()
	if err == nil {
		return
	}
	qu.Degraded = append(qu.Degraded, name)
	metrics.NLPStageFailures.WithLabelValues(name).Inc()
	p.logger.Warn().Err(err).Str("stage", name).Str("query", qu.Query).Msg("query understanding stage degraded")
}
