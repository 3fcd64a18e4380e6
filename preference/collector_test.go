package preference

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/store"
)

type mapCatalog map[string]*core.Product

func (m mapCatalog) FindByIDs(_ context.Context, ids []string) (map[string]*core.Product, error) {
	out := make(map[string]*core.Product)
	for _, id := range ids {
		if p, ok := m[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type failingCatalog struct{}

func (failingCatalog) FindByIDs(context.Context, []string) (map[string]*core.Product, error) {
	return nil, errors.New("catalog down")
}

type staticExtractor []core.Entity

func (s staticExtractor) ExtractEntities(context.Context, string) []core.Entity { return s }

var testNow = time.UnixMilli(1_700_000_000_000)

func newTestCollector(t *testing.T, opts ...Option) (*Collector, *store.ProfileStore) {
	t.Helper()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })
	ps := store.NewProfileStore(kv, store.NewMemoryLocker())
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewCollector(ps, opts...), ps
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCollector_ViewsAccumulateCategory(t *testing.T) {
	catalog := mapCatalog{
		"p1": {ID: "p1", Categories: []string{"Electronics"}, Brand: "Avnu", Price: 80},
	}
	c, _ := newTestCollector(t, WithCatalog(catalog))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok := c.RecordInteraction(ctx, &core.UserInteraction{
			UserID: "u1",
			Type:   core.InteractionViewProduct,
			Data:   core.InteractionData{ProductID: "p1"},
		})
		if !ok {
			t.Fatalf("view %d rejected", i)
		}
	}
	p, err := c.GetPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if !approx(p.Categories["electronics"], 0.3) {
		t.Errorf("categories = %v", p.Categories)
	}
	if !approx(p.Brands["avnu"], 0.3) {
		t.Errorf("brands = %v", p.Brands)
	}
	if len(p.RecentlyViewed) != 1 || p.RecentlyViewed[0].Key != "p1" {
		t.Errorf("recently viewed = %v", p.RecentlyViewed)
	}
	if len(p.PriceRanges) != 0 {
		t.Errorf("views should not touch price ranges: %v", p.PriceRanges)
	}
}

func TestCollector_InvalidEventLeavesStateUntouched(t *testing.T) {
	c, ps := newTestCollector(t)
	ctx := context.Background()

	cases := []struct {
		name string
		ev   *core.UserInteraction
	}{
		{"nil", nil},
		{"no user", &core.UserInteraction{Type: core.InteractionClickBrand, Data: core.InteractionData{Brand: "x"}}},
		{"unknown type", &core.UserInteraction{UserID: "u1", Type: "teleport"}},
		{"missing product", &core.UserInteraction{UserID: "u1", Type: core.InteractionPurchase}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if c.RecordInteraction(ctx, tc.ev) {
				t.Fatal("invalid event accepted")
			}
		})
	}
	if _, err := ps.Get(ctx, "u1"); !core.IsNotFound(err) {
		t.Fatalf("profile created by invalid events: %v", err)
	}
}

func TestCollector_Rules(t *testing.T) {
	catalog := mapCatalog{
		"p1": {ID: "p1", Categories: []string{"shoes"}, Brand: "stride", Price: 60},
		"p2": {ID: "p2", Categories: []string{"bags"}, Brand: "carry", Price: 30},
	}
	lo, hi := 10.0, 40.0

	tests := []struct {
		name  string
		ev    core.UserInteraction
		check func(t *testing.T, p *core.PreferenceProfile)
	}{
		{
			name: "search with entities",
			ev: core.UserInteraction{Type: core.InteractionSearch, Data: core.InteractionData{
				Query: "red nike shoes",
				Entities: []core.Entity{
					{Type: core.EntityCategory, Value: "shoes", Confidence: 0.8},
					{Type: core.EntityBrand, Value: "nike", Confidence: 0.8},
					{Type: core.EntityColor, Value: "red", Confidence: 0.8},
				},
			}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !approx(p.Categories["shoes"], 0.2) || !approx(p.Brands["nike"], 0.2) {
					t.Errorf("weights = %v %v", p.Categories, p.Brands)
				}
				if len(p.RecentSearches) != 1 || p.RecentSearches[0].Key != "red nike shoes" {
					t.Errorf("recent searches = %v", p.RecentSearches)
				}
			},
		},
		{
			name: "purchase nudges price and history",
			ev:   core.UserInteraction{Type: core.InteractionPurchase, Data: core.InteractionData{ProductID: "p1"}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !approx(p.Categories["shoes"], 0.5) || !approx(p.Brands["stride"], 0.5) {
					t.Errorf("weights = %v %v", p.Categories, p.Brands)
				}
				if len(p.PriceRanges) != 1 || p.PriceRanges[0].Min != 50 || p.PriceRanges[0].Max != 100 || !approx(p.PriceRanges[0].Weight, 0.5) {
					t.Errorf("price ranges = %v", p.PriceRanges)
				}
				if len(p.PurchaseHistory) != 1 || p.PurchaseHistory[0].Key != "p1" {
					t.Errorf("purchase history = %v", p.PurchaseHistory)
				}
			},
		},
		{
			name: "add to cart",
			ev:   core.UserInteraction{Type: core.InteractionAddToCart, Data: core.InteractionData{ProductID: "p2"}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !approx(p.Categories["bags"], 0.2) {
					t.Errorf("categories = %v", p.Categories)
				}
				if len(p.PriceRanges) != 1 || p.PriceRanges[0].Min != 25 {
					t.Errorf("price ranges = %v", p.PriceRanges)
				}
				if len(p.PurchaseHistory) != 0 {
					t.Errorf("cart should not add history")
				}
			},
		},
		{
			name: "filter apply",
			ev: core.UserInteraction{Type: core.InteractionFilterApply, Data: core.InteractionData{Filters: &core.InteractionFilters{
				Categories: []string{"Shoes"}, Brands: []string{"Stride"}, Values: []string{"vegan"}, PriceMin: &lo, PriceMax: &hi,
			}}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !approx(p.Categories["shoes"], 0.15) || !approx(p.Brands["stride"], 0.15) || !approx(p.Values["vegan"], 0.15) {
					t.Errorf("weights = %v %v %v", p.Categories, p.Brands, p.Values)
				}
				if len(p.PriceRanges) != 1 || p.PriceRanges[0].Min != 10 || p.PriceRanges[0].Max != 40 {
					t.Errorf("price ranges = %v", p.PriceRanges)
				}
			},
		},
		{
			name: "click category",
			ev:   core.UserInteraction{Type: core.InteractionClickCategory, Data: core.InteractionData{Category: "Garden"}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !approx(p.Categories["garden"], 0.25) || len(p.Brands) != 0 {
					t.Errorf("weights = %v %v", p.Categories, p.Brands)
				}
			},
		},
		{
			name: "impression hydrated",
			ev:   core.UserInteraction{Type: core.InteractionImpression, Data: core.InteractionData{ResultIDs: []string{"p1", "p2", "missing"}}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !approx(p.Categories["shoes"], 0.05) || !approx(p.Categories["bags"], 0.05) || !approx(p.Brands["carry"], 0.05) {
					t.Errorf("weights = %v %v", p.Categories, p.Brands)
				}
			},
		},
		{
			name: "long dwell",
			ev:   core.UserInteraction{Type: core.InteractionDwellTime, Data: core.InteractionData{ResultID: "p1", DwellTimeMs: 120_000}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !approx(p.Categories["shoes"], 1.0) {
					t.Errorf("categories = %v", p.Categories)
				}
			},
		},
		{
			name: "short dwell ignored",
			ev:   core.UserInteraction{Type: core.InteractionDwellTime, Data: core.InteractionData{ResultID: "p1", DwellTimeMs: 4_000}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !p.IsEmpty() {
					t.Errorf("short dwell changed profile: %v", p.Categories)
				}
			},
		},
		{
			name: "sort apply logged only",
			ev:   core.UserInteraction{Type: core.InteractionSortApply, Data: core.InteractionData{SortField: "price", SortOrder: "asc"}},
			check: func(t *testing.T, p *core.PreferenceProfile) {
				if !p.IsEmpty() {
					t.Errorf("sort changed profile")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(t, WithCatalog(catalog))
			ctx := context.Background()
			ev := tt.ev
			ev.UserID = "u1"
			if !c.RecordInteraction(ctx, &ev) {
				t.Fatal("event rejected")
			}
			p, err := c.GetPreferences(ctx, "u1")
			if err != nil {
				t.Fatalf("GetPreferences: %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestCollector_SearchUsesExtractor(t *testing.T) {
	ext := staticExtractor{{Type: core.EntityValue, Value: "organic", Confidence: 0.8}}
	c, _ := newTestCollector(t, WithEntityExtractor(ext))
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		c.RecordInteraction(ctx, &core.UserInteraction{UserID: "u1", Type: core.InteractionSearch, Data: core.InteractionData{Query: "organic tea"}})
	}
	p, _ := c.GetPreferences(ctx, "u1")
	if !approx(p.Values["organic"], 12*0.2) {
		t.Errorf("values = %v", p.Values)
	}
	if len(p.RecentSearches) != 10 {
		t.Errorf("recent searches len = %d, want 10", len(p.RecentSearches))
	}
}

func TestCollector_CatalogFailureFallsBackToPayload(t *testing.T) {
	c, _ := newTestCollector(t, WithCatalog(failingCatalog{}))
	ctx := context.Background()
	ok := c.RecordInteraction(ctx, &core.UserInteraction{
		UserID: "u1",
		Type:   core.InteractionViewProduct,
		Data:   core.InteractionData{ProductID: "p9", Categories: []string{"toys"}},
	})
	if !ok {
		t.Fatal("event rejected")
	}
	p, _ := c.GetPreferences(ctx, "u1")
	if !approx(p.Categories["toys"], 0.1) {
		t.Errorf("categories = %v", p.Categories)
	}
}

func TestCollector_MaxKeysPerMap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxKeysPerMap = 2
	c, _ := newTestCollector(t, WithConfig(cfg))
	ctx := context.Background()
	for i, cat := range []string{"a", "a", "b", "b", "c"} {
		if !c.RecordInteraction(ctx, &core.UserInteraction{UserID: "u1", Type: core.InteractionClickCategory, Data: core.InteractionData{Category: cat}}) {
			t.Fatalf("event %d rejected", i)
		}
	}
	p, _ := c.GetPreferences(ctx, "u1")
	if len(p.Categories) != 2 {
		t.Fatalf("categories = %v", p.Categories)
	}
	if _, ok := p.Categories["c"]; ok {
		t.Errorf("lowest weight key kept: %v", p.Categories)
	}
}

func TestCollector_SurveyAndDelete(t *testing.T) {
	c, _ := newTestCollector(t)
	ctx := context.Background()
	err := c.SubmitSurvey(ctx, "u1", &core.SurveyResponse{
		Categories:        []string{"Books"},
		Brands:            []string{"Penguin"},
		Attributes:        []string{"hardcover"},
		PriceRange:        &core.PriceRange{Min: 10, Max: 30},
		PriceSensitivity:  core.SensitivityLuxury,
		ShoppingFrequency: "weekly",
	})
	if err != nil {
		t.Fatalf("SubmitSurvey: %v", err)
	}
	p, _ := c.GetPreferences(ctx, "u1")
	if p.Categories["books"] != 5 || p.Brands["penguin"] != 5 || p.Values["hardcover"] != 3 {
		t.Errorf("weights = %v %v %v", p.Categories, p.Brands, p.Values)
	}
	if len(p.PriceRanges) != 1 || p.PriceRanges[0].Weight != 1.5 {
		t.Errorf("price ranges = %v", p.PriceRanges)
	}
	survey, ok := p.AdditionalData.Map(core.ExtSurvey)
	if !ok {
		t.Fatalf("survey metadata missing: %v", p.AdditionalData)
	}
	if freq, _ := survey.String("shoppingFrequency"); freq != "weekly" {
		t.Errorf("shoppingFrequency = %q", freq)
	}

	if err := c.SubmitSurvey(ctx, "u1", &core.SurveyResponse{PriceRange: &core.PriceRange{Min: 50, Max: 10}}); !core.IsInvalidInput(err) {
		t.Errorf("inverted price range err = %v", err)
	}

	if err := c.DeletePreferences(ctx, "u1"); err != nil {
		t.Fatalf("DeletePreferences: %v", err)
	}
	p, err = c.GetPreferences(ctx, "u1")
	if err != nil || !p.IsEmpty() {
		t.Errorf("after delete: %v %v", p, err)
	}
}
