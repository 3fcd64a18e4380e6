package builders

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/searchkit/config"
	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/experiment"
	"github.com/rushteam/searchkit/pipeline"
	"github.com/rushteam/searchkit/relevance"
	"github.com/rushteam/searchkit/store"
)

type intentProcessor struct{}

func (intentProcessor) ProcessQuery(_ context.Context, text string) *core.QueryUnderstanding {
	return &core.QueryUnderstanding{
		Query:  text,
		Intent: core.IntentResult{Intent: core.IntentBrandSpecific, Confidence: 0.9, Source: "pattern"},
		Entities: []core.Entity{
			{Type: core.EntityBrand, Value: "nike", Confidence: 0.9},
		},
	}
}

const searchPipeline = `
pipeline:
  name: search
  node_timeout: 100ms
  nodes:
    - type: parallel
      nodes:
        - type: nlp.understand
        - type: experiment.assign
          config:
            experiment_id: search_relevance_test_1
        - type: preference.load
          config:
            lazy_decay: false
    - type: relevance.score
`

func runtime(t *testing.T) config.Runtime {
	t.Helper()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })
	return config.Runtime{
		Deps: relevance.Dependencies{
			Processor: intentProcessor{},
			Assigner:  experiment.NewService(nil),
			Profiles:  store.NewProfileStore(kv, store.NewMemoryLocker()),
		},
		Relevance: relevance.DefaultConfig(),
	}
}

func TestSupportedTypes(t *testing.T) {
	got := strings.Join(config.SupportedTypes(), ",")
	if got != "collab.boost,experiment.assign,nlp.understand,preference.decay,preference.load,relevance.score" {
		t.Fatalf("SupportedTypes = %s", got)
	}
}

func TestBuildPipeline_FromYAML(t *testing.T) {
	pc, err := pipeline.ParseYAML([]byte(searchPipeline))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	p, err := config.BuildPipeline(pc, runtime(t))
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	if p.NodeTimeout != 100*time.Millisecond || len(p.Nodes) != 2 {
		t.Fatalf("pipeline = %+v", p)
	}
	group := p.Nodes[0].(*pipeline.Parallel)
	if assign := group.Nodes[1].(*relevance.AssignNode); assign.ExperimentID != "search_relevance_test_1" {
		t.Errorf("experiment id = %q", assign.ExperimentID)
	}
	if load := group.Nodes[2].(*relevance.PersonalizeNode); load.Decayer != nil {
		t.Error("lazy_decay: false must drop the decayer")
	}

	sctx := core.NewSearchContext("u1", "nike running shoes", nil)
	q := relevance.NewEngineWithPipeline(p).Enhance(context.Background(), sctx)
	if sctx.Algorithm != core.AlgorithmIntent {
		t.Fatalf("algorithm = %s", sctx.Algorithm)
	}
	if sctx.Assignment == nil {
		t.Fatal("expected an experiment assignment")
	}
	var brand bool
	for _, fn := range q.Functions {
		if fn.Name == "entity:brand" && fn.Filter.Value == "nike" {
			brand = true
		}
	}
	if !brand {
		t.Fatalf("brand entity boost missing: %+v", q.Functions)
	}
}

func TestBuildPipeline_Errors(t *testing.T) {
	rt := runtime(t)

	unknown, _ := pipeline.ParseYAML([]byte("pipeline:\n  nodes:\n    - type: rank.lr\n"))
	if _, err := config.BuildPipeline(unknown, rt); err == nil || !strings.Contains(err.Error(), "unsupported node type") {
		t.Fatalf("err = %v", err)
	}

	collab, _ := pipeline.ParseYAML([]byte("pipeline:\n  nodes:\n    - type: collab.boost\n"))
	if _, err := config.BuildPipeline(collab, rt); err == nil {
		t.Fatal("collab.boost without an engine must fail")
	}

	rt.Deps.Processor = nil
	understand, _ := pipeline.ParseYAML([]byte("pipeline:\n  nodes:\n    - type: nlp.understand\n"))
	if _, err := config.BuildPipeline(understand, rt); err == nil {
		t.Fatal("nlp.understand without a processor must fail")
	}
}

func TestBuildEngine_Default(t *testing.T) {
	s := config.DefaultSettings()
	e, err := config.BuildEngine(&s, runtime(t).Deps)
	if err != nil {
		t.Fatalf("BuildEngine: %v", err)
	}
	if len(e.Pipeline().Nodes) != 2 {
		t.Fatalf("nodes = %d", len(e.Pipeline().Nodes))
	}
}
