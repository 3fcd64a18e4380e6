package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
	"github.com/rushteam/searchkit/pkg/utils"
)

// Parallel 是一个组合 Node：并发执行多个互不依赖的节点（如查询理解、实验分流、读画像）。
//
// 每个子节点在 SearchContext 的独立副本上运行，结束后按子节点顺序把阶段产出
// （Understanding / Assignment / Profile / Params / Labels）合并回 sctx。
// 子节点对 Query 的修改会被丢弃；单个子节点失败不影响其他子节点。
type Parallel struct {
	Nodes         []Node
	Timeout       time.Duration // 每个子节点的超时
	MaxConcurrent int           // 0 表示不限制
}

func (n *Parallel) Name() string { return "parallel" }
func (n *Parallel) Kind() Kind   { return KindGroup }

func (n *Parallel) Process(ctx context.Context, sctx *core.SearchContext) error {
	if len(n.Nodes) == 0 {
		return nil
	}

	scratch := make([]*core.SearchContext, len(n.Nodes))
	ok := make([]bool, len(n.Nodes))

	eg, egCtx := errgroup.WithContext(ctx)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}
	for i, node := range n.Nodes {
		i, node := i, node
		scratch[i] = fork(sctx)
		eg.Go(func() error {
			if err := runNode(egCtx, node, scratch[i], n.Timeout); err != nil {
				// 子节点失败时只记录，不中断其他子节点
				logging.Warn().
					Err(err).
					Str("node", node.Name()).
					Str("user", sctx.UserID).
					Msg("parallel node skipped")
				metrics.PipelineNodeErrors.WithLabelValues(node.Name()).Inc()
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = eg.Wait()

	for i, node := range n.Nodes {
		if !ok[i] {
			sctx.PutLabel("degraded", utils.Label{Value: node.Name(), Source: "pipeline"})
			continue
		}
		merge(sctx, scratch[i])
	}
	return nil
}

// fork 复制 sctx 供子节点独立写入；Query 与 Base 共享只读。
func fork(sctx *core.SearchContext) *core.SearchContext {
	cp := *sctx
	cp.Labels = nil
	if sctx.Params != nil {
		cp.Params = make(map[string]any, len(sctx.Params))
		for k, v := range sctx.Params {
			cp.Params[k] = v
		}
	}
	return &cp
}

// merge 把子节点新产出的阶段结果写回 dst。
func merge(dst, src *core.SearchContext) {
	if src.Understanding != nil && src.Understanding != dst.Understanding {
		dst.Understanding = src.Understanding
	}
	if src.Assignment != nil && src.Assignment != dst.Assignment {
		dst.Assignment = src.Assignment
	}
	if src.Profile != nil && src.Profile != dst.Profile {
		dst.Profile = src.Profile
	}
	for k, v := range src.Params {
		if _, exists := dst.Params[k]; exists {
			continue
		}
		if dst.Params == nil {
			dst.Params = make(map[string]any)
		}
		dst.Params[k] = v
	}
	for k, v := range src.Labels {
		dst.PutLabel(k, v)
	}
}
