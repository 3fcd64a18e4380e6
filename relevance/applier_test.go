package relevance

import (
	"math"
	"reflect"
	"testing"

	"github.com/rushteam/searchkit/core"
)

func baseQuery() *core.Query {
	return &core.Query{
		Body: map[string]any{
			"multi_match": map[string]any{"query": "running shoes", "fields": []any{"name", "description"}},
		},
		Filters: []core.Filter{*core.TermFilter("inStock", true)},
	}
}

func shopperProfile() *core.PreferenceProfile {
	p := core.NewPreferenceProfile("u1")
	p.Categories = map[string]float64{"electronics": 2, "shoes": 1}
	p.Brands = map[string]float64{"apple": 1}
	p.Values = map[string]float64{"eco-friendly": 0.5}
	p.PriceRanges = []core.PriceRange{
		{Min: 100, Max: 200, Weight: 1},
		{Min: 500, Max: core.OpenEndedPriceMax, Weight: 0.5},
	}
	p.RecentlyViewed = []core.TimedEntry{{Key: "p1", Timestamp: 2}, {Key: "p2", Timestamp: 1}, {Key: "p1", Timestamp: 0}}
	return p
}

type wantFn struct {
	name   string
	value  any // match / term 的值；exists 为字段名
	weight float64
}

func checkFunctions(t *testing.T, got []core.ScoreFunction, want []wantFn) {
	t.Helper()
	if len(got) != len(want) {
		for _, fn := range got {
			t.Logf("  %s %+v w=%v", fn.Name, fn.Filter, fn.Weight)
		}
		t.Fatalf("got %d functions, want %d", len(got), len(want))
	}
	for i, w := range want {
		fn := got[i]
		if fn.Name != w.name {
			t.Errorf("[%d] name = %s, want %s", i, fn.Name, w.name)
		}
		if math.Abs(fn.Weight-w.weight) > 1e-9 {
			t.Errorf("[%d] %s weight = %v, want %v", i, fn.Name, fn.Weight, w.weight)
		}
		if w.value == nil || fn.Filter == nil {
			continue
		}
		var v any
		switch fn.Filter.Kind {
		case core.FilterExists:
			v = fn.Filter.Field
		default:
			v = fn.Filter.Value
		}
		if v != w.value {
			t.Errorf("[%d] %s filter value = %v, want %v", i, fn.Name, v, w.value)
		}
	}
}

func TestApplier_PassThrough(t *testing.T) {
	a := NewApplier(DefaultConfig())
	empty := core.NewPreferenceProfile("u2")

	tests := []struct {
		name    string
		profile core.Algorithm
		user    *core.PreferenceProfile
	}{
		{"standard without user", core.AlgorithmStandard, nil},
		{"standard ignores profile", core.AlgorithmStandard, shopperProfile()},
		{"empty name", "", nil},
		{"unknown profile", "learning_to_rank", shopperProfile()},
		{"preference without profile", core.AlgorithmPreference, nil},
		{"preference with empty profile", core.AlgorithmPreference, empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := baseQuery()
			got := a.ApplyScoringProfile(base, tt.profile, tt.user, nil, nil)
			if !reflect.DeepEqual(got, baseQuery()) {
				t.Fatalf("got %+v, want base query", got)
			}
			if got == base {
				t.Fatal("must return a copy")
			}
			got.Body["extra"] = true
			if _, ok := base.Body["extra"]; ok {
				t.Fatal("base query mutated through result")
			}
		})
	}
}

func TestApplier_NilBase(t *testing.T) {
	a := NewApplier(DefaultConfig())
	got := a.ApplyScoringProfile(nil, core.AlgorithmStandard, nil, nil, nil)
	if got == nil || len(got.Functions) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestApplier_Preference(t *testing.T) {
	a := NewApplier(DefaultConfig())
	base := baseQuery()
	got := a.ApplyScoringProfile(base, core.AlgorithmPreference, shopperProfile(), nil, nil)

	checkFunctions(t, got.Functions, []wantFn{
		{"preference:description", "description", 0.8},
		{"preference:name", "name", 2},
		{"preference:category", "electronics", 2 * 2 * 2},
		{"preference:category", "shoes", 1 * 2 * 1.5},
		{"preference:related_category", "computers", 2 * 0.5 * 0.8},
		{"preference:related_category", "accessories", 2 * 0.5 * 0.7},
		{"preference:related_category", "phones", 2 * 0.5 * 0.6},
		{"preference:brand", "apple", 1 * 1.5 * 2},
		{"preference:value", "eco-friendly", 0.5},
		{"preference:price", nil, 1.2},
		{"preference:price", nil, 0.6},
		{"preference:recently_viewed", nil, 1},
	})

	price := got.Functions[9].Filter
	if price.Kind != core.FilterRange || *price.Gte != 100 || *price.Lte != 200 {
		t.Errorf("price filter = %+v", price)
	}
	if open := got.Functions[10].Filter; open.Lte != nil || *open.Gte != 500 {
		t.Errorf("open-ended price filter = %+v", open)
	}
	if ids := got.Functions[11].Filter.Values; !reflect.DeepEqual(ids, []string{"p1", "p2"}) {
		t.Errorf("recently viewed ids = %v", ids)
	}
	if got.ScoreMode != "sum" || got.BoostMode != "multiply" {
		t.Errorf("modes = %s/%s", got.ScoreMode, got.BoostMode)
	}
	if lbl := got.Labels["scoring_profile"]; lbl.Value != "preference" {
		t.Errorf("label = %+v", lbl)
	}
	if !reflect.DeepEqual(got.Body, base.Body) || len(base.Functions) != 0 {
		t.Error("body must be preserved and base untouched")
	}
}

func TestApplier_RelatedCategorySkipsOwned(t *testing.T) {
	a := NewApplier(DefaultConfig())
	p := core.NewPreferenceProfile("u1")
	p.Categories = map[string]float64{"electronics": 1, "phones": 1}
	got := a.ApplyScoringProfile(nil, core.AlgorithmPreference, p, nil, nil)
	for _, fn := range got.Functions {
		if fn.Name == "preference:related_category" && fn.Filter.Value == "phones" {
			t.Fatal("related boost for a category the user already prefers")
		}
	}
}

func TestApplier_Intent(t *testing.T) {
	a := NewApplier(DefaultConfig())
	entities := []core.Entity{
		{Type: core.EntityCategory, Value: "shoes", Confidence: 0.9},
		{Type: core.EntityBrand, Value: "nike", Confidence: 0.4},
		{Type: core.EntityColor, Value: "red", Confidence: 0.9},
		{Type: core.EntityMaterial, Value: "leather", Confidence: 1},
		{Type: core.EntityPriceRange, Value: "0-50", Confidence: 0.95},
	}

	t.Run("category browse", func(t *testing.T) {
		intent := &core.IntentResult{Intent: core.IntentCategoryBrowse, Confidence: 0.9}
		got := a.ApplyScoringProfile(baseQuery(), core.AlgorithmIntent, nil, intent, entities)
		checkFunctions(t, got.Functions, []wantFn{
			{"intent:description", "description", 0.8},
			{"intent:name", "name", 2},
			{"intent:category_browse", "categories", 3},
			{"entity:category", "shoes", 1.8},
			{"entity:color", "red", 1.35},
			{"entity:material", "leather", 1.3},
		})
		if got.Functions[4].Filter.Field != "attributes.color" {
			t.Errorf("color field = %s", got.Functions[4].Filter.Field)
		}
	})

	t.Run("recommendation", func(t *testing.T) {
		intent := &core.IntentResult{Intent: core.IntentRecommendation, Confidence: 0.9}
		got := a.ApplyScoringProfile(baseQuery(), core.AlgorithmIntent, nil, intent, nil)
		if len(got.Functions) != 4 {
			t.Fatalf("functions = %+v", got.Functions)
		}
		rating, reviews := got.Functions[2].FieldValueFactor, got.Functions[3].FieldValueFactor
		if rating.Field != "rating" || rating.Factor != 2 || rating.Modifier != "sqrt" || *rating.Missing != 1 {
			t.Errorf("rating = %+v", rating)
		}
		if reviews.Field != "reviewCount" || reviews.Factor != 0.1 || reviews.Modifier != "log1p" {
			t.Errorf("reviews = %+v", reviews)
		}
	})

	t.Run("general intent keeps field boosts only", func(t *testing.T) {
		got := a.ApplyScoringProfile(baseQuery(), core.AlgorithmIntent, nil, &core.IntentResult{Intent: core.IntentGeneral}, nil)
		if len(got.Functions) != 2 {
			t.Fatalf("functions = %+v", got.Functions)
		}
	})
}

func TestApplier_StaticProfiles(t *testing.T) {
	a := NewApplier(DefaultConfig())
	tests := []struct {
		profile   core.Algorithm
		user      *core.PreferenceProfile
		functions int
		scoreMode string
	}{
		{core.AlgorithmPopularity, nil, 6, "sum"},
		{core.AlgorithmRecency, nil, 4, "multiply"},
		{core.AlgorithmHybrid, nil, 6, "sum"},
		{core.AlgorithmHybrid, shopperProfile(), 6 + 10, "sum"},
	}
	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			got := a.ApplyScoringProfile(baseQuery(), tt.profile, tt.user, nil, nil)
			if len(got.Functions) != tt.functions {
				t.Fatalf("functions = %d, want %d", len(got.Functions), tt.functions)
			}
			if got.ScoreMode != tt.scoreMode || got.BoostMode != "multiply" {
				t.Errorf("modes = %s/%s", got.ScoreMode, got.BoostMode)
			}
		})
	}

	recency := a.ApplyScoringProfile(nil, core.AlgorithmRecency, nil, nil, nil)
	d := recency.Functions[3].Decay
	if d == nil || d.Field != "createdAt" || d.Scale != "30d" || d.Offset != "1d" || d.Decay != 0.5 {
		t.Fatalf("recency decay = %+v", d)
	}

	// 返回的函数与 profile 定义互不影响
	recency.Functions[3].Decay.Scale = "1d"
	again := a.ApplyScoringProfile(nil, core.AlgorithmRecency, nil, nil, nil)
	if again.Functions[3].Decay.Scale != "30d" {
		t.Fatal("profile definition mutated through result")
	}
}

func TestApplier_KeepsCallerModes(t *testing.T) {
	a := NewApplier(DefaultConfig())
	base := baseQuery()
	base.ScoreMode, base.BoostMode = "max", "replace"
	got := a.ApplyScoringProfile(base, core.AlgorithmPopularity, nil, nil, nil)
	if got.ScoreMode != "max" || got.BoostMode != "replace" {
		t.Fatalf("modes = %s/%s", got.ScoreMode, got.BoostMode)
	}
}

func TestApplier_Deterministic(t *testing.T) {
	a := NewApplier(DefaultConfig())
	intent := &core.IntentResult{Intent: core.IntentBrandSpecific, Confidence: 0.9}
	entities := []core.Entity{{Type: core.EntityBrand, Value: "nike", Confidence: 0.9}}
	first := a.ApplyScoringProfile(baseQuery(), core.AlgorithmHybrid, shopperProfile(), intent, entities)
	for i := 0; i < 20; i++ {
		got := a.ApplyScoringProfile(baseQuery(), core.AlgorithmHybrid, shopperProfile(), intent, entities)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs", i)
		}
	}
}

func TestApplier_CustomProfile(t *testing.T) {
	a := NewApplier(DefaultConfig(), WithProfile(Profile{
		Name:      "in_stock_first",
		Boosts:    map[string]float64{"inStock": 5},
		ScoreMode: "sum",
		BoostMode: "sum",
	}))
	got := a.ApplyScoringProfile(nil, "in_stock_first", nil, nil, nil)
	checkFunctions(t, got.Functions, []wantFn{{"in_stock_first:inStock", "inStock", 5}})
	if names := a.Names(); len(names) != 7 || names[0] != "hybrid" {
		t.Errorf("names = %v", names)
	}
}

func TestResolveProfile(t *testing.T) {
	withIntent := &core.QueryUnderstanding{Intent: core.IntentResult{Intent: core.IntentPriceQuery, Confidence: 0.9}}
	general := &core.QueryUnderstanding{Intent: core.IntentResult{Intent: core.IntentGeneral, Confidence: 0.5}}
	hybrid := &core.Assignment{VariantID: "hybrid", Algorithm: core.AlgorithmHybrid}

	tests := []struct {
		name    string
		sctx    *core.SearchContext
		enabled bool
		want    core.Algorithm
	}{
		{"nil context", nil, true, core.AlgorithmStandard},
		{"nothing", &core.SearchContext{}, true, core.AlgorithmStandard},
		{"intent wins", &core.SearchContext{Understanding: withIntent, Assignment: hybrid, Profile: shopperProfile()}, true, core.AlgorithmIntent},
		{"general intent falls through to variant", &core.SearchContext{Understanding: general, Assignment: hybrid}, true, core.AlgorithmHybrid},
		{"variant before personalization", &core.SearchContext{Assignment: hybrid, Profile: shopperProfile()}, true, core.AlgorithmHybrid},
		{"personalization", &core.SearchContext{Understanding: general, Profile: shopperProfile()}, true, core.AlgorithmPreference},
		{"personalization disabled", &core.SearchContext{Profile: shopperProfile()}, false, core.AlgorithmStandard},
		{"empty profile", &core.SearchContext{Profile: core.NewPreferenceProfile("u")}, true, core.AlgorithmStandard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveProfile(tt.sctx, tt.enabled); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}
