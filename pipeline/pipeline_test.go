package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/searchkit/core"
)

func setQueryLabel(name string) *NodeFunc {
	return &NodeFunc{NodeName: name, NodeKind: KindScore, Fn: func(_ context.Context, sctx *core.SearchContext) error {
		q := sctx.Query.Clone()
		q.AddFunction(core.ScoreFunction{Name: name, Weight: 1})
		sctx.Query = q
		return nil
	}}
}

func TestPipeline_SoftFail(t *testing.T) {
	base := &core.Query{Body: map[string]any{"match": map[string]any{"name": "shoes"}}}
	sctx := core.NewSearchContext("u1", "shoes", base)

	p := &Pipeline{
		NodeTimeout: 20 * time.Millisecond,
		Nodes: []Node{
			setQueryLabel("first"),
			&NodeFunc{NodeName: "broken", Fn: func(context.Context, *core.SearchContext) error {
				return errors.New("boom")
			}},
			&NodeFunc{NodeName: "panics", Fn: func(context.Context, *core.SearchContext) error {
				panic("bad node")
			}},
			&NodeFunc{NodeName: "slow", Fn: func(ctx context.Context, _ *core.SearchContext) error {
				<-ctx.Done()
				return ctx.Err()
			}},
			setQueryLabel("last"),
		},
	}
	if err := p.Run(context.Background(), sctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sctx.Query.Functions) != 2 || sctx.Query.Functions[1].Name != "last" {
		t.Fatalf("functions = %+v", sctx.Query.Functions)
	}
	lbl, ok := sctx.GetLabel("degraded")
	if !ok || lbl.Value != "broken|panics|slow" {
		t.Fatalf("degraded label = %+v", lbl)
	}
	if len(base.Functions) != 0 {
		t.Fatal("base query mutated")
	}
}

func TestPipeline_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sctx := core.NewSearchContext("", "", nil)
	p := &Pipeline{Nodes: []Node{setQueryLabel("x")}}
	if err := p.Run(ctx, sctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if sctx.Query == nil || len(sctx.Query.Functions) != 0 {
		t.Fatalf("query = %+v", sctx.Query)
	}
}

func TestParallel_Merge(t *testing.T) {
	sctx := core.NewSearchContext("u1", "red shoes", nil)
	group := &Parallel{
		Timeout: 50 * time.Millisecond,
		Nodes: []Node{
			&NodeFunc{NodeName: "understand", Fn: func(_ context.Context, s *core.SearchContext) error {
				s.Understanding = &core.QueryUnderstanding{Query: s.Text}
				return nil
			}},
			&NodeFunc{NodeName: "assign", Fn: func(_ context.Context, s *core.SearchContext) error {
				s.Assignment = &core.Assignment{VariantID: "hybrid", Algorithm: core.AlgorithmHybrid}
				if s.Params == nil {
					s.Params = map[string]any{}
				}
				s.Params["collab_strength"] = 0.5
				return nil
			}},
			&NodeFunc{NodeName: "profile", Fn: func(context.Context, *core.SearchContext) error {
				return errors.New("store down")
			}},
			&NodeFunc{NodeName: "query-writer", Fn: func(_ context.Context, s *core.SearchContext) error {
				s.Query = &core.Query{ScoreMode: "max"}
				return nil
			}},
		},
	}
	if err := group.Process(context.Background(), sctx); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sctx.Understanding == nil || sctx.Understanding.Query != "red shoes" {
		t.Fatalf("understanding = %+v", sctx.Understanding)
	}
	if sctx.Assignment == nil || sctx.Assignment.Algorithm != core.AlgorithmHybrid {
		t.Fatalf("assignment = %+v", sctx.Assignment)
	}
	if sctx.Params["collab_strength"] != 0.5 {
		t.Fatalf("params = %v", sctx.Params)
	}
	if sctx.Profile != nil {
		t.Fatal("failed node must not set profile")
	}
	if sctx.Query.ScoreMode != "" {
		t.Fatal("parallel children must not replace the query")
	}
	if lbl, _ := sctx.GetLabel("degraded"); lbl.Value != "profile" {
		t.Fatalf("degraded = %+v", lbl)
	}
}

const pipelineYAML = `
pipeline:
  name: search
  node_timeout: 150ms
  nodes:
    - type: parallel
      config:
        timeout: 80ms
      nodes:
        - type: test.a
        - type: test.b
    - type: test.c
      config:
        weight: 2
`

func TestConfig_BuildPipeline(t *testing.T) {
	cfg, err := ParseYAML([]byte(pipelineYAML))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if got := strings.Join(cfg.Types(), ","); got != "test.a,test.b,test.c" {
		t.Fatalf("Types = %s", got)
	}

	f := NewNodeFactory()
	var weight float64
	for _, typ := range []string{"test.a", "test.b", "test.c"} {
		f.Register(typ, func(c map[string]interface{}) (Node, error) {
			if w, ok := c["weight"].(int); ok {
				weight = float64(w)
			}
			return &NodeFunc{NodeName: typ}, nil
		})
	}
	p, err := cfg.BuildPipeline(f)
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	if p.NodeTimeout != 150*time.Millisecond || len(p.Nodes) != 2 {
		t.Fatalf("pipeline = %+v", p)
	}
	group, ok := p.Nodes[0].(*Parallel)
	if !ok || len(group.Nodes) != 2 || group.Timeout != 80*time.Millisecond {
		t.Fatalf("group = %+v", p.Nodes[0])
	}
	if weight != 2 {
		t.Errorf("builder config weight = %v", weight)
	}

	f2 := NewNodeFactory()
	if _, err := cfg.BuildPipeline(f2); err == nil || !strings.Contains(err.Error(), "unknown node type") {
		t.Fatalf("expected unknown node type error, got %v", err)
	}
}
