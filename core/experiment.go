package core

import "time"

// Algorithm 是相关性算法（即评分 profile 名称）。
type Algorithm string

const (
	AlgorithmStandard   Algorithm = "standard"
	AlgorithmPopularity Algorithm = "popularity"
	AlgorithmRecency    Algorithm = "recency"
	AlgorithmPreference Algorithm = "preference"
	AlgorithmIntent     Algorithm = "intent"
	AlgorithmHybrid     Algorithm = "hybrid"
)

// ExperimentType 区分实验作用的业务面。
type ExperimentType string

const (
	ExperimentSearchRelevance ExperimentType = "search_relevance"
	ExperimentRanking         ExperimentType = "ranking"
)

// Experiment 是一个相关性实验定义。
type Experiment struct {
	ID                 string         `json:"id" yaml:"id" validate:"required"`
	Name               string         `json:"name" yaml:"name"`
	Type               ExperimentType `json:"type" yaml:"type"`
	Variants           []Variant      `json:"variants" yaml:"variants" validate:"required,min=1,dive"`
	Active             bool           `json:"active" yaml:"active"`
	StartAt            time.Time      `json:"startAt,omitempty" yaml:"start_at"`
	EndAt              time.Time      `json:"endAt,omitempty" yaml:"end_at"`
	AudiencePercentage float64        `json:"audiencePercentage,omitempty" yaml:"audience_percentage" validate:"gte=0,lte=100"`
	Targeting          string         `json:"targeting,omitempty" yaml:"targeting"` // CEL 表达式，变量 user
	AnalyticsEventName string         `json:"analyticsEventName,omitempty" yaml:"analytics_event_name"`
}

// Running 判断实验在 now 时是否生效。
func (e *Experiment) Running(now time.Time) bool {
	if e == nil || !e.Active {
		return false
	}
	if !e.StartAt.IsZero() && now.Before(e.StartAt) {
		return false
	}
	if !e.EndAt.IsZero() && !now.Before(e.EndAt) {
		return false
	}
	return true
}

// ControlVariant 返回对照组；没有显式标记时取第一个变体。
func (e *Experiment) ControlVariant() *Variant {
	if len(e.Variants) == 0 {
		return nil
	}
	for i := range e.Variants {
		if e.Variants[i].IsControl {
			return &e.Variants[i]
		}
	}
	return &e.Variants[0]
}

// Variant 是实验的一个分支。
type Variant struct {
	ID        string         `json:"id" yaml:"id" validate:"required"`
	Name      string         `json:"name,omitempty" yaml:"name"`
	Algorithm Algorithm      `json:"algorithm" yaml:"algorithm" validate:"required"`
	Weight    float64        `json:"weight" yaml:"weight" validate:"gte=0"`
	Params    map[string]any `json:"params,omitempty" yaml:"params"`
	IsControl bool           `json:"isControl,omitempty" yaml:"is_control"`
}

// Assignment 是 (experiment, subject) -> variant 的稳定绑定。
type Assignment struct {
	ID           string         `json:"id"`
	ExperimentID string         `json:"experimentId"`
	VariantID    string         `json:"variantId"`
	Algorithm    Algorithm      `json:"algorithm"`
	Params       map[string]any `json:"params,omitempty"`
	SubjectID    string         `json:"subjectId"`
	Anonymous    bool           `json:"anonymous,omitempty"`
	InAudience   bool           `json:"inAudience"`
	AssignedAt   time.Time      `json:"assignedAt"`
}
