// Package searchkit 是个性化搜索相关性引擎。
//
// 设计要点：
// - Pipeline-first: 查询理解 → 实验分流 → 画像加载 → 打分 → 协同 boost，均为可配置的 Node
// - Labels-first: 每个阶段的决策写入 SearchContext.Labels，可解释、可追踪
// - 软失败: 任一阶段失败只降级，不影响搜索请求本身
package searchkit

import (
	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pipeline"
)

// 轻量 facade：便于用户直接 import "searchkit" 使用核心抽象。
type (
	Pipeline      = pipeline.Pipeline
	Node          = pipeline.Node
	Kind          = pipeline.Kind
	SearchContext = core.SearchContext
	Query         = core.Query
)

const (
	KindUnderstand  = pipeline.KindUnderstand
	KindAssign      = pipeline.KindAssign
	KindPersonalize = pipeline.KindPersonalize
	KindScore       = pipeline.KindScore
	KindBoost       = pipeline.KindBoost
	KindGroup       = pipeline.KindGroup
)
