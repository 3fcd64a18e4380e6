// Package service 把配置组装成可用的搜索相关性服务。
//
// Service 持有所有组件（存储、偏好采集、衰减、协同过滤、实验、查询理解、
// 打分引擎），命令行与嵌入方只需要 New + Close。
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/searchkit/collab"
	"github.com/rushteam/searchkit/config"
	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/decay"
	"github.com/rushteam/searchkit/experiment"
	"github.com/rushteam/searchkit/index"
	"github.com/rushteam/searchkit/nlp"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/preference"
	"github.com/rushteam/searchkit/relevance"
	"github.com/rushteam/searchkit/store"
)

// Service 是搜索相关性服务的门面。
type Service struct {
	settings config.Settings
	logger   zerolog.Logger

	kv       core.KeyValueStore
	cache    *store.ProfileCache
	profiles *store.ProfileStore
	index    *index.BleveIndex
	recorder *experiment.Recorder

	collector   *preference.Collector
	decay       *decay.Engine
	collab      *collab.Engine
	experiments *experiment.Service
	processor   *nlp.Processor
	applier     *relevance.Applier
	engine      *relevance.Engine
}

// Option 配置 Service。
type Option func(*options)

type options struct {
	now core.Clock
	kv  core.KeyValueStore
}

// WithClock 替换所有组件的时钟。
func WithClock(now core.Clock) Option {
	return func(o *options) { o.now = now }
}

// WithKeyValueStore 使用外部创建的 KV 存储（配合进程内锁），忽略 store.backend。
func WithKeyValueStore(kv core.KeyValueStore) Option {
	return func(o *options) { o.kv = kv }
}

// New 按配置创建服务。失败时已创建的资源会被释放。
func New(ctx context.Context, s *config.Settings, opts ...Option) (svc *Service, err error) {
	if s == nil {
		def := config.DefaultSettings()
		s = &def
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	svc = &Service{settings: *s, logger: logging.Component("service")}
	defer func() {
		if err != nil {
			svc.Close()
			svc = nil
		}
	}()

	var locker core.Locker
	if o.kv != nil {
		svc.kv, locker = o.kv, store.NewMemoryLocker()
	} else if svc.kv, locker, err = NewKeyValueStore(s.Store); err != nil {
		return svc, err
	}
	svc.profiles, svc.cache = NewProfileStore(svc.kv, locker, s.Store)
	interactions := store.NewInteractionLog(svc.kv, s.Store.LogPerUser)

	if svc.index, err = NewProductIndex(ctx, s.Index.ProductsFile); err != nil {
		return svc, err
	}

	nlpOpts := []nlp.Option{nlp.WithClock(o.now)}
	if svc.index != nil {
		nlpOpts = append(nlpOpts, nlp.WithSearchIndex(svc.index))
	}
	if svc.processor, err = nlp.NewProcessor(s.NLP, nlpOpts...); err != nil {
		return svc, err
	}
	if svc.index != nil {
		// 词典加载失败不影响启动，内置词典仍可用
		_ = svc.processor.LoadDictionaries(ctx)
	}

	collectorOpts := []preference.Option{
		preference.WithInteractionLog(interactions),
		preference.WithEntityExtractor(svc.processor),
		preference.WithConfig(s.Preference),
		preference.WithClock(o.now),
	}
	if svc.index != nil {
		collectorOpts = append(collectorOpts, preference.WithCatalog(svc.index))
	}
	svc.collector = preference.NewCollector(svc.profiles, collectorOpts...)
	svc.decay = decay.NewEngine(svc.profiles, s.Decay, o.now)
	svc.collab = collab.NewEngine(svc.profiles, interactions, s.Collab, o.now)

	registry := experiment.NewDefaultRegistry()
	if s.Experiments.File != "" {
		if err = registry.LoadFile(s.Experiments.File); err != nil {
			return svc, fmt.Errorf("load experiments %s: %w", s.Experiments.File, err)
		}
	}
	expOpts := []experiment.Option{experiment.WithClock(o.now)}
	if s.Experiments.RecorderBuffer > 0 {
		svc.recorder = experiment.NewRecorder(svc.kv, s.Experiments.RecorderBuffer)
		expOpts = append(expOpts, experiment.WithRecorder(svc.recorder))
	}
	svc.experiments = experiment.NewService(registry, expOpts...)

	svc.applier = relevance.NewApplier(s.Relevance)
	svc.engine, err = config.BuildEngine(s, relevance.Dependencies{
		Processor: svc.processor,
		Assigner:  svc.experiments,
		Profiles:  svc.profiles,
		Decayer:   svc.decay,
		Booster:   svc.collab,
		Applier:   svc.applier,
	})
	if err != nil {
		return svc, err
	}

	svc.logger.Info().
		Str("backend", svc.kv.Name()).
		Bool("index", svc.index != nil).
		Int("nodes", len(svc.engine.Pipeline().Nodes)).
		Msg("search relevance service ready")
	return svc, nil
}

// Settings 返回生效的配置。
func (s *Service) Settings() config.Settings { return s.settings }

// Experiments 返回实验服务（埋点、统计）。
func (s *Service) Experiments() *experiment.Service { return s.experiments }

// RecordInteraction 采集一条交互事件。
func (s *Service) RecordInteraction(ctx context.Context, ev *core.UserInteraction) bool {
	return s.collector.RecordInteraction(ctx, ev)
}

// SubmitSurvey 合并用户问卷。
func (s *Service) SubmitSurvey(ctx context.Context, userID string, r *core.SurveyResponse) error {
	return s.collector.SubmitSurvey(ctx, userID, r)
}

func (s *Service) GetPreferences(ctx context.Context, userID string) (*core.PreferenceProfile, error) {
	return s.collector.GetPreferences(ctx, userID)
}

func (s *Service) DeletePreferences(ctx context.Context, userID string) error {
	return s.collector.DeletePreferences(ctx, userID)
}

// ApplyDecay 按时间衰减单个用户。
func (s *Service) ApplyDecay(ctx context.Context, userID string) (bool, error) {
	return s.decay.ApplyDecayToUser(ctx, userID)
}

func (s *Service) ApplyImmediateDecay(ctx context.Context, userID string, t core.PreferenceType, factor float64) (bool, error) {
	return s.decay.ApplyImmediateDecay(ctx, userID, t, factor)
}

// SweepDecay 全量衰减；cursor 非空时从上次中断处继续。
func (s *Service) SweepDecay(ctx context.Context, cursor string) (decay.SweepReport, error) {
	return s.decay.Resume(ctx, cursor)
}

// NewDecayScheduler 按 decay.schedule 创建定时 sweep，调用方负责 Start/Stop。
func (s *Service) NewDecayScheduler() (*decay.Scheduler, error) {
	if !s.settings.Decay.Enabled {
		return nil, core.NewDomainError(core.ModuleDecay, core.ErrorCodeNotSupported, "decay is disabled")
	}
	return decay.NewScheduler(s.decay, s.settings.Decay.Schedule)
}

func (s *Service) FindSimilarUsers(ctx context.Context, userID string) ([]collab.SimilarUser, error) {
	return s.collab.FindSimilarUsers(ctx, userID)
}

// EnhanceUserPreferences 把相似用户的偏好融合进 userID 的画像。
func (s *Service) EnhanceUserPreferences(ctx context.Context, userID string) (bool, error) {
	return s.collab.EnhanceUserPreferences(ctx, userID)
}

func (s *Service) GetCollaborativeRecommendations(ctx context.Context, userID string, limit int) ([]collab.Recommendation, error) {
	return s.collab.GetCollaborativeRecommendations(ctx, userID, limit)
}

// AssignVariant 把用户分到实验变体，不参与时返回 nil。
func (s *Service) AssignVariant(ctx context.Context, experimentID, userID, clientID string, attrs map[string]any) *core.Assignment {
	return s.experiments.Assign(ctx, experimentID, userID, clientID, attrs)
}

func (s *Service) ProcessQuery(ctx context.Context, text string) *core.QueryUnderstanding {
	return s.processor.ProcessQuery(ctx, text)
}

// ApplyScoringProfile 对 base 应用指定打分方案。
// userID 非空时加载其画像，text 非空时先做查询理解以获得意图与实体。
func (s *Service) ApplyScoringProfile(ctx context.Context, base *core.Query, profile core.Algorithm, userID, text string) (*core.Query, error) {
	var pref *core.PreferenceProfile
	if userID != "" {
		p, err := s.profiles.Get(ctx, userID)
		switch {
		case err == nil:
			pref = p
		case !core.IsNotFound(err):
			return nil, err
		}
	}
	var (
		intent   *core.IntentResult
		entities []core.Entity
	)
	if text != "" {
		qu := s.processor.ProcessQuery(ctx, text)
		intent, entities = &qu.Intent, qu.Entities
	}
	return s.applier.ApplyScoringProfile(base, profile, pref, intent, entities), nil
}

// Enhance 执行完整的搜索增强流程，总是返回可用的查询。
func (s *Service) Enhance(ctx context.Context, sctx *core.SearchContext) *core.Query {
	return s.engine.Enhance(ctx, sctx)
}

// Search 是 Enhance 的便捷形式。
func (s *Service) Search(ctx context.Context, userID, text string, base *core.Query) (*core.Query, *core.SearchContext) {
	sctx := core.NewSearchContext(userID, text, base)
	return s.engine.Enhance(ctx, sctx), sctx
}

// Close 释放所有资源，可重复调用。
func (s *Service) Close() {
	if s.recorder != nil {
		s.recorder.Close()
		s.recorder = nil
	}
	if s.cache != nil {
		s.cache.Close()
		s.cache = nil
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close index failed")
		}
		s.index = nil
	}
	if s.kv != nil {
		if err := s.kv.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close store failed")
		}
		s.kv = nil
	}
}
