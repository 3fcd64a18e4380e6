package config

import (
	"fmt"

	"github.com/rushteam/searchkit/pipeline"
	"github.com/rushteam/searchkit/relevance"
)

// BuildEngine 构建搜索增强引擎：配置了 pipeline 文件时按 YAML 组装节点，否则使用默认流程。
func BuildEngine(s *Settings, deps relevance.Dependencies) (*relevance.Engine, error) {
	if deps.Applier == nil {
		deps.Applier = relevance.NewApplier(s.Relevance)
	}
	if s.Pipeline == "" {
		return relevance.NewEngine(s.Relevance, deps), nil
	}

	pc, err := pipeline.LoadFromYAML(s.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("load pipeline %s: %w", s.Pipeline, err)
	}
	p, err := BuildPipeline(pc, Runtime{Deps: deps, Relevance: s.Relevance})
	if err != nil {
		return nil, err
	}
	return relevance.NewEngineWithPipeline(p), nil
}

// BuildPipeline 校验并构建 Pipeline；配置未设置 node_timeout 时使用 relevance.node_timeout。
func BuildPipeline(pc *pipeline.Config, rt Runtime) (*pipeline.Pipeline, error) {
	if err := ValidatePipelineConfig(pc); err != nil {
		return nil, err
	}
	p, err := pc.BuildPipeline(NewFactory(rt))
	if err != nil {
		return nil, err
	}
	if p.NodeTimeout == 0 {
		p.NodeTimeout = rt.Relevance.NodeTimeout
	}
	return p, nil
}
