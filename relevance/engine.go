package relevance

import (
	"context"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pipeline"
)

// Dependencies 是默认搜索流程用到的运行时依赖，均可为 nil（对应节点被省略）。
type Dependencies struct {
	Processor QueryProcessor
	Assigner  VariantAssigner
	Profiles  core.PreferenceStore
	Decayer   ProfileDecayer
	Booster   CollaborativeBooster
	Applier   *Applier
}

// DefaultNodes 按 understand → assign → personalize → score → collaborate 的顺序构建节点。
// 开启 ParallelEnrichment 时前三个节点并发执行，惰性衰减移到并发组之后。
func DefaultNodes(cfg Config, deps Dependencies) []pipeline.Node {
	parallel := cfg.ParallelEnrichment && countEnrich(deps) > 1
	var enrich []pipeline.Node
	if deps.Processor != nil {
		enrich = append(enrich, &UnderstandNode{Processor: deps.Processor})
	}
	if deps.Assigner != nil {
		enrich = append(enrich, &AssignNode{Assigner: deps.Assigner, ExperimentID: cfg.ExperimentID})
	}
	if deps.Profiles != nil {
		load := &PersonalizeNode{Store: deps.Profiles, Enabled: cfg.PersonalizationEnabled}
		if !parallel {
			load.Decayer = deps.Decayer
		}
		enrich = append(enrich, load)
	}

	var nodes []pipeline.Node
	if parallel {
		nodes = append(nodes, &pipeline.Parallel{Nodes: enrich, Timeout: cfg.NodeTimeout})
		if deps.Profiles != nil && deps.Decayer != nil {
			nodes = append(nodes, &DecayNode{Decayer: deps.Decayer, Enabled: cfg.PersonalizationEnabled})
		}
	} else {
		nodes = append(nodes, enrich...)
	}

	applier := deps.Applier
	if applier == nil {
		applier = NewApplier(cfg)
	}
	nodes = append(nodes, &ScoreNode{Applier: applier, Enabled: cfg.PersonalizationEnabled})
	if deps.Booster != nil {
		nodes = append(nodes, &CollabNode{Booster: deps.Booster, Strength: cfg.CollabStrength, Enabled: cfg.PersonalizationEnabled})
	}
	return nodes
}

func countEnrich(deps Dependencies) int {
	n := 0
	for _, set := range []bool{deps.Processor != nil, deps.Assigner != nil, deps.Profiles != nil} {
		if set {
			n++
		}
	}
	return n
}

// Engine 执行完整的搜索增强流程。
type Engine struct {
	pipeline *pipeline.Pipeline
}

// NewEngine 用默认节点创建 Engine。
func NewEngine(cfg Config, deps Dependencies) *Engine {
	return &Engine{pipeline: &pipeline.Pipeline{
		Nodes:       DefaultNodes(cfg, deps),
		NodeTimeout: cfg.NodeTimeout,
	}}
}

// NewEngineWithPipeline 用自定义（如 YAML 配置构建的）Pipeline 创建 Engine。
func NewEngineWithPipeline(p *pipeline.Pipeline) *Engine {
	return &Engine{pipeline: p}
}

// Pipeline 返回底层 Pipeline。
func (e *Engine) Pipeline() *pipeline.Pipeline { return e.pipeline }

// Enhance 对 sctx 运行整个流程并返回增强后的查询。
// 任何节点失败都只会让对应的增强缺席，返回值永远非 nil；ctx 被取消时返回当时已完成的结果。
func (e *Engine) Enhance(ctx context.Context, sctx *core.SearchContext) *core.Query {
	_ = e.pipeline.Run(ctx, sctx)
	if sctx.Query == nil {
		return &core.Query{}
	}
	return sctx.Query
}
