// Package experiment 把用户确定性地分配到相关性实验的变体，并异步记录分配与结果。
//
// 分配是 (subject, experiment) 的纯函数：
//
//	bucket = |hash31(subject + "-" + experimentID)| % 100
//
// 按变体声明顺序累加权重，落在第一个累计权重大于 bucket 的变体上。
package experiment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// Service 是实验分配服务。
type Service struct {
	registry *Registry
	recorder *Recorder
	now      core.Clock
	logger   zerolog.Logger
}

// Option 配置 Service。
type Option func(*Service)

// WithRecorder 开启分配与结果记录。
func WithRecorder(r *Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock 替换时钟。
func WithClock(now core.Clock) Option {
	return func(s *Service) { s.now = now }
}

// NewService 创建服务，registry 为 nil 时使用内置实验。
func NewService(registry *Registry, opts ...Option) *Service {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	s := &Service{
		registry: registry,
		now:      time.Now,
		logger:   logging.Component("experiment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry 返回实验注册表。
func (s *Service) Registry() *Registry { return s.registry }

// AssignUserToVariant 返回主体在实验中的变体。
// 实验不存在、未生效或主体为空时返回 nil，调用方应退回 standard。
func (s *Service) AssignUserToVariant(ctx context.Context, experimentID, userID, clientID string) *core.Assignment {
	return s.Assign(ctx, experimentID, userID, clientID, nil)
}

// Assign 与 AssignUserToVariant 相同，attrs 作为定向表达式的 user 变量。
// 不满足定向条件的主体返回 nil。
func (s *Service) Assign(ctx context.Context, experimentID, userID, clientID string, attrs map[string]any) *core.Assignment {
	en := s.registry.get(experimentID)
	now := s.now()
	if en == nil || !en.exp.Running(now) {
		return nil
	}
	subject, anonymous := userID, false
	if subject == "" {
		subject, anonymous = clientID, true
	}
	if subject == "" {
		return nil
	}
	exp := &en.exp

	if ok, err := en.rule.Match(attrs, nil); err != nil || !ok {
		if err != nil {
			s.logger.Debug().Err(err).Str("experiment", exp.ID).Str("subject", subject).Msg("targeting evaluation failed")
		}
		return nil
	}

	inAudience := true
	variant := pickVariant(exp, Bucket(subject, exp.ID))
	if pct := exp.AudiencePercentage; pct > 0 && pct < 100 {
		if float64(audienceBucket(subject, exp.ID)) >= pct*100 {
			inAudience = false
			variant = exp.ControlVariant()
		}
	}

	a := &core.Assignment{
		ID:           uuid.NewString(),
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
		Algorithm:    variant.Algorithm,
		Params:       variant.Params,
		SubjectID:    subject,
		Anonymous:    anonymous,
		InAudience:   inAudience,
		AssignedAt:   now,
	}
	metrics.ExperimentAssignmentsTotal.WithLabelValues(exp.ID, variant.ID).Inc()
	if s.recorder != nil {
		s.recorder.RecordAssignment(a)
	}
	return a
}

// pickVariant 把 0-99 的分桶按权重总和等比映射后按声明顺序累加，
// 权重不必合计为 100。
func pickVariant(exp *core.Experiment, bucket int) *core.Variant {
	var total float64
	for _, v := range exp.Variants {
		total += v.Weight
	}
	target := float64(bucket) * total / 100
	var cum float64
	for i := range exp.Variants {
		cum += exp.Variants[i].Weight
		if target < cum {
			return &exp.Variants[i]
		}
	}
	return &exp.Variants[0]
}

// ActiveExperiments 返回当前生效的实验，typ 为空时返回全部类型。
func (s *Service) ActiveExperiments(typ core.ExperimentType) []core.Experiment {
	return s.registry.Active(typ, s.now())
}

// VariantConfiguration 把主体分配到某类型的全部生效实验，返回 experimentID -> assignment。
func (s *Service) VariantConfiguration(ctx context.Context, typ core.ExperimentType, userID, clientID string, attrs map[string]any) map[string]*core.Assignment {
	out := make(map[string]*core.Assignment)
	for _, e := range s.ActiveExperiments(typ) {
		if a := s.Assign(ctx, e.ID, userID, clientID, attrs); a != nil {
			out[e.ID] = a
		}
	}
	return out
}

// TrackImpression 记录一次曝光。
func (s *Service) TrackImpression(_ context.Context, a *core.Assignment) bool {
	return s.track(a, EventImpression, "")
}

// TrackInteraction 记录一次交互，按交互类型分别计数。
func (s *Service) TrackInteraction(_ context.Context, a *core.Assignment, interaction core.InteractionType) bool {
	field := string(EventInteraction)
	if interaction != "" {
		field += ":" + string(interaction)
	}
	return s.track(a, EventInteraction, field)
}

// TrackConversion 记录一次转化。
func (s *Service) TrackConversion(_ context.Context, a *core.Assignment) bool {
	return s.track(a, EventConversion, "")
}

func (s *Service) track(a *core.Assignment, kind EventKind, field string) bool {
	if s.recorder == nil || a == nil {
		return false
	}
	return s.recorder.RecordEvent(a, kind, field)
}

// VariantCounts 返回实验各变体的分配人数，未开启记录时返回空结果。
func (s *Service) VariantCounts(ctx context.Context, experimentID string) (map[string]int64, error) {
	if s.recorder == nil {
		return map[string]int64{}, nil
	}
	return s.recorder.Counts(ctx, experimentID)
}

// VariantResults 返回实验各变体的结果计数：variantID -> field -> count。
func (s *Service) VariantResults(ctx context.Context, experimentID string) (map[string]map[string]int64, error) {
	out := make(map[string]map[string]int64)
	exp, ok := s.registry.Get(experimentID)
	if !ok || s.recorder == nil {
		return out, nil
	}
	for _, v := range exp.Variants {
		res, err := s.recorder.Results(ctx, experimentID, v.ID)
		if err != nil {
			return nil, err
		}
		out[v.ID] = res
	}
	return out, nil
}

// AnalyticsPayload 生成交给分析系统的事件数据。
func (s *Service) AnalyticsPayload(a *core.Assignment, query string, resultCount int) map[string]any {
	if a == nil {
		return nil
	}
	event := "search_experiment"
	if exp, ok := s.registry.Get(a.ExperimentID); ok && exp.AnalyticsEventName != "" {
		event = exp.AnalyticsEventName
	}
	return map[string]any{
		"event":          event,
		"event_category": "search",
		"event_label":    query,
		"ab_test_id":     a.ExperimentID,
		"variant_id":     a.VariantID,
		"algorithm":      string(a.Algorithm),
		"result_count":   resultCount,
		"timestamp":      s.now().UTC().Format(time.RFC3339),
	}
}
