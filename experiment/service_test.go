package experiment

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/store"
)

func TestHash(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"a", 97},
		{"ab", 3105},
		{"hello", 99162322},
	}
	for _, tt := range tests {
		if got := Hash(tt.in); got != tt.want {
			t.Errorf("Hash(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
	for i := 0; i < 1000; i++ {
		if b := Bucket(fmt.Sprintf("subject-%d", i), "exp"); b < 0 || b > 99 {
			t.Fatalf("bucket out of range: %d", b)
		}
	}
}

func fixedClock() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestService_AssignStable(t *testing.T) {
	s := NewService(nil, WithClock(fixedClock))
	ctx := context.Background()

	a := s.AssignUserToVariant(ctx, "search_relevance_test_1", "user-42", "")
	b := s.AssignUserToVariant(ctx, "search_relevance_test_1", "user-42", "")
	if a == nil || b == nil {
		t.Fatal("nil assignment")
	}
	if a.VariantID != b.VariantID || a.Algorithm != b.Algorithm {
		t.Errorf("unstable: %s vs %s", a.VariantID, b.VariantID)
	}
	if a.ID == b.ID {
		t.Error("assignment records should have distinct ids")
	}
}

func TestService_AssignEdgeCases(t *testing.T) {
	reg := NewDefaultRegistry()
	_ = reg.Register(core.Experiment{
		ID:       "inactive",
		Variants: []core.Variant{{ID: "a", Algorithm: core.AlgorithmStandard, Weight: 100}},
	})
	_ = reg.Register(core.Experiment{
		ID:       "ended",
		Active:   true,
		EndAt:    fixedClock().Add(-time.Hour),
		Variants: []core.Variant{{ID: "a", Algorithm: core.AlgorithmStandard, Weight: 100}},
	})
	s := NewService(reg, WithClock(fixedClock))
	ctx := context.Background()

	tests := []struct {
		name, exp, user, client string
		wantNil                 bool
		wantAnon                bool
	}{
		{name: "unknown", exp: "nope", user: "u1", wantNil: true},
		{name: "inactive", exp: "inactive", user: "u1", wantNil: true},
		{name: "ended", exp: "ended", user: "u1", wantNil: true},
		{name: "no subject", exp: "search_relevance_test_1", wantNil: true},
		{name: "anonymous", exp: "search_relevance_test_1", client: "c1", wantAnon: true},
		{name: "user", exp: "search_relevance_test_1", user: "u1", client: "c1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.AssignUserToVariant(ctx, tt.exp, tt.user, tt.client)
			if tt.wantNil {
				if a != nil {
					t.Fatalf("got %+v, want nil", a)
				}
				return
			}
			if a == nil {
				t.Fatal("got nil")
			}
			if a.Anonymous != tt.wantAnon {
				t.Errorf("anonymous = %v", a.Anonymous)
			}
		})
	}
}

func TestService_Distribution(t *testing.T) {
	s := NewService(nil, WithClock(fixedClock))
	ctx := context.Background()
	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		a := s.AssignUserToVariant(ctx, "search_relevance_test_1", fmt.Sprintf("user-%d", i), "")
		counts[a.VariantID]++
	}
	want := map[string]float64{"control": 0.33, "preference_based": 0.33, "hybrid": 0.34}
	for id, share := range want {
		got := float64(counts[id]) / n
		if math.Abs(got-share) > 0.03 {
			t.Errorf("%s share = %.3f, want %.2f±0.03", id, got, share)
		}
	}
}

func TestService_DistributionUnnormalizedWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		want    []float64
	}{
		{"even", []float64{1, 1}, []float64{0.5, 0.5}},
		{"halves", []float64{0.5, 0.5}, []float64{0.5, 0.5}},
		{"three to one", []float64{3, 1}, []float64{0.75, 0.25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variants := make([]core.Variant, len(tt.weights))
			for i, w := range tt.weights {
				variants[i] = core.Variant{ID: fmt.Sprintf("v%d", i), Algorithm: core.AlgorithmStandard, Weight: w}
			}
			reg := NewRegistry()
			if err := reg.Register(core.Experiment{ID: "weights", Active: true, Variants: variants}); err != nil {
				t.Fatalf("Register: %v", err)
			}
			s := NewService(reg, WithClock(fixedClock))
			counts := map[string]int{}
			const n = 10000
			for i := 0; i < n; i++ {
				counts[s.AssignUserToVariant(context.Background(), "weights", fmt.Sprintf("user-%d", i), "").VariantID]++
			}
			for i, share := range tt.want {
				if got := float64(counts[fmt.Sprintf("v%d", i)]) / n; math.Abs(got-share) > 0.03 {
					t.Errorf("v%d share = %.3f, want %.2f±0.03", i, got, share)
				}
			}
		})
	}
}

func TestService_AudienceAndTargeting(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(core.Experiment{
		ID:                 "rollout",
		Active:             true,
		AudiencePercentage: 20,
		Variants: []core.Variant{
			{ID: "base", Algorithm: core.AlgorithmStandard, Weight: 50, IsControl: true},
			{ID: "treat", Algorithm: core.AlgorithmHybrid, Weight: 50},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = reg.Register(core.Experiment{
		ID:        "us-only",
		Active:    true,
		Targeting: `has(user.country) && user.country == "US"`,
		Variants:  []core.Variant{{ID: "a", Algorithm: core.AlgorithmIntent, Weight: 100}},
	})
	if err != nil {
		t.Fatal(err)
	}
	s := NewService(reg, WithClock(fixedClock))
	ctx := context.Background()

	in := 0
	for i := 0; i < 5000; i++ {
		a := s.AssignUserToVariant(ctx, "rollout", fmt.Sprintf("user-%d", i), "")
		if a.InAudience {
			in++
			continue
		}
		if a.VariantID != "base" {
			t.Fatalf("out-of-audience user got %s", a.VariantID)
		}
	}
	if share := float64(in) / 5000; math.Abs(share-0.2) > 0.03 {
		t.Errorf("audience share = %.3f", share)
	}

	if a := s.Assign(ctx, "us-only", "u1", "", map[string]any{"country": "US"}); a == nil || a.VariantID != "a" {
		t.Errorf("targeted user: %+v", a)
	}
	if a := s.Assign(ctx, "us-only", "u1", "", map[string]any{"country": "DE"}); a != nil {
		t.Errorf("non-matching user assigned: %+v", a)
	}
	if a := s.AssignUserToVariant(ctx, "us-only", "u1", ""); a != nil {
		t.Errorf("user without attributes assigned: %+v", a)
	}
}

func TestRegistry_Validation(t *testing.T) {
	tests := []struct {
		name string
		exp  core.Experiment
	}{
		{"no id", core.Experiment{Variants: []core.Variant{{ID: "a", Algorithm: core.AlgorithmStandard, Weight: 1}}}},
		{"no variants", core.Experiment{ID: "x"}},
		{"duplicate variant", core.Experiment{ID: "x", Variants: []core.Variant{
			{ID: "a", Algorithm: core.AlgorithmStandard, Weight: 1},
			{ID: "a", Algorithm: core.AlgorithmHybrid, Weight: 1},
		}}},
		{"unknown algorithm", core.Experiment{ID: "x", Variants: []core.Variant{{ID: "a", Algorithm: "semantic", Weight: 1}}}},
		{"zero weights", core.Experiment{ID: "x", Variants: []core.Variant{{ID: "a", Algorithm: core.AlgorithmStandard}}}},
		{"bad targeting", core.Experiment{ID: "x", Targeting: "user.country ==", Variants: []core.Variant{{ID: "a", Algorithm: core.AlgorithmStandard, Weight: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewRegistry().Register(tt.exp); !core.IsInvalidInput(err) {
				t.Errorf("err = %v, want invalid input", err)
			}
		})
	}
}

func TestRegistry_LoadYAML(t *testing.T) {
	data := []byte(`
experiments:
  - id: ranking_test
    name: Ranking
    type: ranking
    active: true
    start_at: 2026-01-01T00:00:00Z
    analytics_event_name: ranking_test
    variants:
      - id: control
        algorithm: standard
        weight: 50
        is_control: true
      - id: popular
        algorithm: popularity
        weight: 50
        params:
          boost: 1.5
`)
	reg := NewRegistry()
	if err := reg.LoadYAML(data); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	exp, ok := reg.Get("ranking_test")
	if !ok || exp.Type != core.ExperimentRanking || len(exp.Variants) != 2 {
		t.Fatalf("exp = %+v", exp)
	}
	if exp.Variants[1].Params["boost"] != 1.5 {
		t.Errorf("params = %v", exp.Variants[1].Params)
	}
	if got := reg.Active(core.ExperimentRanking, fixedClock()); len(got) != 1 {
		t.Errorf("active = %v", got)
	}
	if got := reg.Active(core.ExperimentRanking, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); len(got) != 0 {
		t.Errorf("not yet started experiment is active: %v", got)
	}

	if err := reg.LoadYAML([]byte("experiments:\n  - id: bad\n")); !core.IsInvalidInput(err) {
		t.Errorf("invalid definition err = %v", err)
	}
}

func TestService_RecordingAndTracking(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	rec := NewRecorder(kv, 64)
	s := NewService(nil, WithClock(fixedClock), WithRecorder(rec))
	ctx := context.Background()

	var first *core.Assignment
	for i := 0; i < 3; i++ {
		a := s.AssignUserToVariant(ctx, "search_relevance_test_1", "user-7", "")
		if first == nil {
			first = a
		}
	}
	s.AssignUserToVariant(ctx, "search_relevance_test_1", "user-8", "")
	s.TrackImpression(ctx, first)
	s.TrackInteraction(ctx, first, core.InteractionPurchase)
	s.TrackConversion(ctx, first)
	rec.Close()

	counts, err := s.VariantCounts(ctx, "search_relevance_test_1")
	if err != nil {
		t.Fatalf("VariantCounts: %v", err)
	}
	var total int64
	for _, c := range counts {
		total += c
	}
	if total != 2 {
		t.Errorf("counts = %v, want 2 distinct subjects", counts)
	}

	results, err := s.VariantResults(ctx, "search_relevance_test_1")
	if err != nil {
		t.Fatalf("VariantResults: %v", err)
	}
	got := results[first.VariantID]
	if got["impression"] != 1 || got["interaction:purchase"] != 1 || got["conversion"] != 1 {
		t.Errorf("results = %v", got)
	}

	if rec.RecordAssignment(first) {
		t.Error("closed recorder accepted a record")
	}
	rec.Close()
}

func TestService_VariantConfigurationAndAnalytics(t *testing.T) {
	s := NewService(nil, WithClock(fixedClock))
	ctx := context.Background()
	cfg := s.VariantConfiguration(ctx, core.ExperimentSearchRelevance, "u1", "", nil)
	a, ok := cfg["search_relevance_test_1"]
	if !ok || len(cfg) != 1 {
		t.Fatalf("configuration = %v", cfg)
	}
	payload := s.AnalyticsPayload(a, "red shoes", 12)
	if payload["event"] != "search_relevance_test" || payload["result_count"] != 12 || payload["ab_test_id"] != "search_relevance_test_1" {
		t.Errorf("payload = %v", payload)
	}
	if s.AnalyticsPayload(nil, "", 0) != nil {
		t.Error("nil assignment should produce no payload")
	}
}
