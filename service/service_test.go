package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/searchkit/config"
	"github.com/rushteam/searchkit/core"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, mutate func(s *config.Settings)) *Service {
	t.Helper()
	s := config.DefaultSettings()
	s.Experiments.RecorderBuffer = 0
	if mutate != nil {
		mutate(&s)
	}
	svc, err := New(context.Background(), &s, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func purchase(userID string) *core.UserInteraction {
	return &core.UserInteraction{
		UserID:    userID,
		Type:      core.InteractionPurchase,
		Timestamp: now,
		Data: core.InteractionData{
			ProductID:  "p1",
			Categories: []string{"footwear"},
			Brand:      "nike",
			Values:     []string{"sustainable"},
			Price:      80,
		},
	}
}

func TestNewKeyValueStore(t *testing.T) {
	tests := []struct {
		backend string
		name    string
		wantErr bool
	}{
		{backend: "", name: "memory"},
		{backend: BackendMemory, name: "memory"},
		{backend: BackendBadger, name: "badger"},
		{backend: "postgres", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			kv, locker, err := NewKeyValueStore(config.StoreSettings{Backend: tt.backend})
			if tt.wantErr {
				if !core.IsNotSupported(err) {
					t.Fatalf("err = %v, want NOT_SUPPORTED", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewKeyValueStore: %v", err)
			}
			defer kv.Close()
			if kv.Name() != tt.name || locker == nil {
				t.Fatalf("store = %s, locker = %v", kv.Name(), locker)
			}
		})
	}
}

func TestService_InteractionToPersonalizedQuery(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	q, sctx := svc.Search(ctx, "u1", "", nil)
	if sctx.Algorithm != core.AlgorithmStandard || len(q.Functions) != 0 {
		t.Fatalf("unknown user: algorithm = %s, functions = %d", sctx.Algorithm, len(q.Functions))
	}

	if !svc.RecordInteraction(ctx, purchase("u1")) {
		t.Fatal("purchase rejected")
	}
	p, err := svc.GetPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if p.Categories["footwear"] <= 0 || p.Brands["nike"] <= 0 {
		t.Fatalf("profile = %+v", p)
	}

	q, sctx = svc.Search(ctx, "u1", "", nil)
	if sctx.Algorithm != core.AlgorithmPreference {
		t.Fatalf("algorithm = %s", sctx.Algorithm)
	}
	var category bool
	for _, fn := range q.Functions {
		if fn.Name == "preference:category" && fn.Filter.Value == "footwear" {
			category = true
		}
	}
	if !category {
		t.Fatalf("category boost missing: %+v", q.Functions)
	}

	if err := svc.DeletePreferences(ctx, "u1"); err != nil {
		t.Fatalf("DeletePreferences: %v", err)
	}
	if p, _ := svc.GetPreferences(ctx, "u1"); !p.IsEmpty() {
		t.Fatalf("profile after delete = %+v", p)
	}
}

func TestService_ApplyScoringProfile(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	svc.RecordInteraction(ctx, purchase("u1"))

	base := &core.Query{}
	q, err := svc.ApplyScoringProfile(ctx, base, core.AlgorithmPreference, "u1", "")
	if err != nil {
		t.Fatalf("ApplyScoringProfile: %v", err)
	}
	if len(q.Functions) == 0 || len(base.Functions) != 0 {
		t.Fatalf("functions = %d, base functions = %d", len(q.Functions), len(base.Functions))
	}

	q, err = svc.ApplyScoringProfile(ctx, base, core.AlgorithmPreference, "nobody", "")
	if err != nil || len(q.Functions) != 0 {
		t.Fatalf("preference without profile = %d functions, %v", len(q.Functions), err)
	}
}

func TestService_Decay(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	svc.RecordInteraction(ctx, purchase("u1"))
	before, _ := svc.GetPreferences(ctx, "u1")

	changed, err := svc.ApplyImmediateDecay(ctx, "u1", core.PreferenceBrands, 0.5)
	if err != nil || !changed {
		t.Fatalf("ApplyImmediateDecay = %v, %v", changed, err)
	}
	after, _ := svc.GetPreferences(ctx, "u1")
	if after.Brands["nike"] >= before.Brands["nike"] {
		t.Errorf("brand weight %v -> %v", before.Brands["nike"], after.Brands["nike"])
	}
	if after.Categories["footwear"] != before.Categories["footwear"] {
		t.Errorf("categories must be untouched: %v -> %v", before.Categories["footwear"], after.Categories["footwear"])
	}

	report, err := svc.SweepDecay(ctx, "")
	if err != nil || !report.Completed || report.Total != 1 {
		t.Fatalf("SweepDecay = %+v, %v", report, err)
	}

	sched, err := svc.NewDecayScheduler()
	if err != nil {
		t.Fatalf("NewDecayScheduler: %v", err)
	}
	sched.Start()
	if sched.Next().IsZero() {
		t.Error("scheduler has no next run")
	}
	sched.Stop()
}

func TestService_DecaySchedulerDisabled(t *testing.T) {
	svc := newService(t, func(s *config.Settings) { s.Decay.Enabled = false })
	if _, err := svc.NewDecayScheduler(); !core.IsNotSupported(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestService_AssignVariant(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	a := svc.AssignVariant(ctx, "search_relevance_test_1", "u1", "", nil)
	b := svc.AssignVariant(ctx, "search_relevance_test_1", "u1", "", nil)
	if a == nil || b == nil || a.VariantID != b.VariantID {
		t.Fatalf("assignments = %+v / %+v", a, b)
	}
	if svc.AssignVariant(ctx, "missing", "u1", "", nil) != nil {
		t.Fatal("unknown experiment must not assign")
	}
}

func TestService_ProductIndexEnrichesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	data := `[{"id":"p9","name":"Trail Runner","categories":["footwear"],"brand":"salomon","values":["durable"],"price":120,"inStock":true}]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	svc := newService(t, func(s *config.Settings) { s.Index.ProductsFile = path })
	ctx := context.Background()

	ok := svc.RecordInteraction(ctx, &core.UserInteraction{
		UserID:    "u2",
		Type:      core.InteractionViewProduct,
		Timestamp: now,
		Data:      core.InteractionData{ProductID: "p9"},
	})
	if !ok {
		t.Fatal("view rejected")
	}
	p, _ := svc.GetPreferences(ctx, "u2")
	if p.Brands["salomon"] <= 0 || p.Categories["footwear"] <= 0 {
		t.Fatalf("catalog attributes not applied: %+v", p)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *config.Settings)
	}{
		{"missing products file", func(s *config.Settings) { s.Index.ProductsFile = "/nonexistent/products.json" }},
		{"missing experiments file", func(s *config.Settings) { s.Experiments.File = "/nonexistent/experiments.yaml" }},
		{"missing pipeline file", func(s *config.Settings) { s.Pipeline = "/nonexistent/pipeline.yaml" }},
		{"unsupported backend", func(s *config.Settings) { s.Store.Backend = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.DefaultSettings()
			tt.mutate(&s)
			if svc, err := New(context.Background(), &s); err == nil || svc != nil {
				t.Fatalf("New = %v, %v", svc, err)
			}
		})
	}
}
