package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
	"github.com/rushteam/searchkit/pkg/utils"
)

// Pipeline 把一次搜索的增强逻辑拆成可组合的 Node 链。
//
// 每个节点独立降级：出错、超时或 panic 时记录日志与指标并跳过，后续节点继续执行，
// sctx.Query 保持上一个成功节点的结果，最差情况下就是基础查询。
type Pipeline struct {
	Nodes []Node

	// NodeTimeout 单个节点的超时，0 表示不限制
	NodeTimeout time.Duration
}

// Run 依次执行所有节点。只有 ctx 被取消时返回错误，此时 sctx.Query 仍然可用。
func (p *Pipeline) Run(ctx context.Context, sctx *core.SearchContext) error {
	if sctx.Query == nil {
		sctx.Query = sctx.Base.Clone()
		if sctx.Query == nil {
			sctx.Query = &core.Query{}
		}
	}
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runNode(ctx, node, sctx, p.NodeTimeout); err != nil {
			logging.Warn().
				Err(err).
				Str("node", node.Name()).
				Str("kind", string(node.Kind())).
				Str("user", sctx.UserID).
				Msg("pipeline node skipped")
			metrics.PipelineNodeErrors.WithLabelValues(node.Name()).Inc()
			sctx.PutLabel("degraded", utils.Label{Value: node.Name(), Source: "pipeline"})
		}
	}
	return nil
}

// runNode 执行单个节点，超时与 panic 都转成 error。
func runNode(ctx context.Context, node Node, sctx *core.SearchContext, timeout time.Duration) (err error) {
	start := time.Now()
	defer metrics.ObserveNode(node.Name(), start)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return node.Process(ctx, sctx)
}
