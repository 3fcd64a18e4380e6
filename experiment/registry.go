package experiment

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/dsl"
	"github.com/rushteam/searchkit/pkg/validation"
)

var knownAlgorithms = map[core.Algorithm]bool{
	core.AlgorithmStandard:   true,
	core.AlgorithmPopularity: true,
	core.AlgorithmRecency:    true,
	core.AlgorithmPreference: true,
	core.AlgorithmIntent:     true,
	core.AlgorithmHybrid:     true,
}

type entry struct {
	exp  core.Experiment
	rule *dsl.Rule
}

// Registry 保存实验定义，并发安全。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// DefaultExperiments 返回内置实验。
func DefaultExperiments() []core.Experiment {
	return []core.Experiment{
		{
			ID:   "search_relevance_test_1",
			Name: "Search Relevance Algorithm Comparison",
			Type: core.ExperimentSearchRelevance,
			Variants: []core.Variant{
				{ID: "control", Algorithm: core.AlgorithmStandard, Weight: 33, IsControl: true},
				{ID: "preference_based", Algorithm: core.AlgorithmPreference, Weight: 33},
				{ID: "hybrid", Algorithm: core.AlgorithmHybrid, Weight: 34},
			},
			Active:             true,
			AnalyticsEventName: "search_relevance_test",
		},
	}
}

// NewDefaultRegistry 返回注册了内置实验的注册表。
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, e := range DefaultExperiments() {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// Validate 校验实验定义，失败返回 INVALID_INPUT。
func Validate(e *core.Experiment) error {
	if err := validation.Struct(e); err != nil {
		return core.WrapDomainError(core.ModuleExperiment, core.ErrorCodeInvalidInput, "invalid experiment "+e.ID, err)
	}
	seen := make(map[string]bool, len(e.Variants))
	var total float64
	for _, v := range e.Variants {
		if seen[v.ID] {
			return core.InvalidInput(core.ModuleExperiment, fmt.Sprintf("experiment %s: duplicate variant %s", e.ID, v.ID))
		}
		seen[v.ID] = true
		if !knownAlgorithms[v.Algorithm] {
			return core.InvalidInput(core.ModuleExperiment, fmt.Sprintf("experiment %s: unknown algorithm %q", e.ID, v.Algorithm))
		}
		total += v.Weight
	}
	if total <= 0 {
		return core.InvalidInput(core.ModuleExperiment, "experiment "+e.ID+": variant weights must sum to a positive value")
	}
	if !e.EndAt.IsZero() && !e.StartAt.IsZero() && !e.EndAt.After(e.StartAt) {
		return core.InvalidInput(core.ModuleExperiment, "experiment "+e.ID+": endAt must be after startAt")
	}
	return nil
}

// Register 校验并注册实验，同 ID 覆盖。
func (r *Registry) Register(e core.Experiment) error {
	if e.Type == "" {
		e.Type = core.ExperimentSearchRelevance
	}
	if err := Validate(&e); err != nil {
		return err
	}
	rule, err := dsl.Compile(e.Targeting)
	if err != nil {
		return core.WrapDomainError(core.ModuleExperiment, core.ErrorCodeInvalidInput, "experiment "+e.ID+": invalid targeting", err)
	}
	e.Variants = append([]core.Variant(nil), e.Variants...)
	r.mu.Lock()
	r.entries[e.ID] = &entry{exp: e, rule: rule}
	r.mu.Unlock()
	return nil
}

// Remove 删除实验。
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

func (r *Registry) get(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// Get 返回实验定义的拷贝。
func (r *Registry) Get(id string) (core.Experiment, bool) {
	en := r.get(id)
	if en == nil {
		return core.Experiment{}, false
	}
	return en.exp, true
}

// Active 返回 now 时生效的实验（按 ID 排序），typ 为空时不过滤类型。
func (r *Registry) Active(typ core.ExperimentType, now time.Time) []core.Experiment {
	r.mu.RLock()
	out := make([]core.Experiment, 0, len(r.entries))
	for _, en := range r.entries {
		if typ != "" && en.exp.Type != typ {
			continue
		}
		if en.exp.Running(now) {
			out = append(out, en.exp)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fileFormat struct {
	Experiments []core.Experiment `yaml:"experiments"`
}

// LoadFile 从 YAML 文件注册实验。
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read experiments %s: %w", path, err)
	}
	return r.LoadYAML(data)
}

// LoadYAML 从 YAML 注册实验，任一定义非法时不注册任何实验。
func (r *Registry) LoadYAML(data []byte) error {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return core.WrapDomainError(core.ModuleExperiment, core.ErrorCodeInvalidInput, "parse experiments", err)
	}
	for i := range f.Experiments {
		if f.Experiments[i].Type == "" {
			f.Experiments[i].Type = core.ExperimentSearchRelevance
		}
		if err := Validate(&f.Experiments[i]); err != nil {
			return err
		}
	}
	for _, e := range f.Experiments {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}
