package pipeline

import (
	"context"

	"github.com/rushteam/searchkit/core"
)

// Kind 用于标记 Node 类型，方便观测/治理/编排（例如按阶段打点）。
type Kind string

const (
	KindUnderstand  Kind = "understand"  // 查询理解：意图、实体、扩展
	KindAssign      Kind = "assign"      // 实验分流
	KindPersonalize Kind = "personalize" // 读取（并惰性衰减）偏好画像
	KindScore       Kind = "score"       // 应用评分 profile
	KindBoost       Kind = "boost"       // 追加协同过滤等额外 boost
	KindGroup       Kind = "group"       // 组合节点
)

// Node 是 Pipeline 的最小可扩展单元。
// 节点读取 SearchContext 中已有的阶段结果，写入自己的产出；返回 error 时该节点被跳过，
// 已写入 SearchContext 的内容由节点自己保证完整（只在成功时整体赋值）。
type Node interface {
	Name() string
	Kind() Kind

	Process(ctx context.Context, sctx *core.SearchContext) error
}

// NodeFunc 把函数适配为 Node，主要用于测试与临时扩展。
type NodeFunc struct {
	NodeName string
	NodeKind Kind
	Fn       func(ctx context.Context, sctx *core.SearchContext) error
}

func (n *NodeFunc) Name() string { return n.NodeName }
func (n *NodeFunc) Kind() Kind   { return n.NodeKind }

func (n *NodeFunc) Process(ctx context.Context, sctx *core.SearchContext) error {
	if n.Fn == nil {
		return nil
	}
	return n.Fn(ctx, sctx)
}
