package core

import (
	"reflect"
	"testing"
)

func TestPreferenceProfile_AddWeight(t *testing.T) {
	p := NewPreferenceProfile("u1")
	if !p.AddWeight(PreferenceCategories, "  Shoes ", 0.2) {
		t.Fatal("AddWeight should apply")
	}
	p.AddWeight(PreferenceCategories, "shoes", 0.3)
	if got := p.Categories["shoes"]; got != 0.5 {
		t.Errorf("shoes = %v, want 0.5", got)
	}
	tests := []struct {
		name  string
		t     PreferenceType
		key   string
		delta float64
	}{
		{"empty key", PreferenceBrands, "  ", 1},
		{"non-positive delta", PreferenceBrands, "avnu", 0},
		{"price ranges are not a map", PreferencePriceRanges, "x", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p.AddWeight(tt.t, tt.key, tt.delta) {
				t.Error("AddWeight should be ignored")
			}
		})
	}
}

func TestPreferenceProfile_SortPriceRanges(t *testing.T) {
	p := NewPreferenceProfile("u1")
	for i := 0; i < 12; i++ {
		p.PriceRanges = append(p.PriceRanges, PriceRange{Min: float64(i), Max: float64(i + 1), Weight: float64(i)})
	}
	p.SortPriceRanges(PriceRangeCap)
	if len(p.PriceRanges) != PriceRangeCap {
		t.Fatalf("len = %d, want %d", len(p.PriceRanges), PriceRangeCap)
	}
	for i := 1; i < len(p.PriceRanges); i++ {
		if p.PriceRanges[i-1].Weight < p.PriceRanges[i].Weight {
			t.Fatalf("not sorted desc: %v", p.PriceRanges)
		}
	}
	if p.PriceRanges[0].Weight != 11 {
		t.Errorf("top weight = %v, want 11", p.PriceRanges[0].Weight)
	}
}

func TestPreferenceProfile_CloneIsDeep(t *testing.T) {
	p := NewPreferenceProfile("u1")
	p.Categories["a"] = 1
	p.PriceRanges = []PriceRange{{Min: 0, Max: 25, Weight: 1}}
	_ = p.AdditionalData.Set("nested", map[string]any{"x": 1})

	c := p.Clone()
	c.Categories["a"] = 2
	c.PriceRanges[0].Weight = 5
	nested, _ := c.AdditionalData.Map("nested")
	nested["x"] = 2.0

	if p.Categories["a"] != 1 || p.PriceRanges[0].Weight != 1 {
		t.Error("clone shares weights with the original")
	}
	orig, _ := p.AdditionalData.Map("nested")
	if orig["x"] != 1.0 {
		t.Error("clone shares additionalData with the original")
	}
}

func TestPushEntry(t *testing.T) {
	list := []TimedEntry{{Key: "a", Timestamp: 1}, {Key: "b", Timestamp: 2}, {Key: "c", Timestamp: 3}}
	got := PushEntry(list, TimedEntry{Key: "b", Timestamp: 9}, true, 3)
	want := []TimedEntry{{Key: "b", Timestamp: 9}, {Key: "a", Timestamp: 1}, {Key: "c", Timestamp: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dedup push = %v, want %v", got, want)
	}
	got = PushEntry(list, TimedEntry{Key: "d", Timestamp: 9}, false, 2)
	if len(got) != 2 || got[0].Key != "d" || got[1].Key != "a" {
		t.Errorf("capped push = %v", got)
	}
}

func TestTopN_Deterministic(t *testing.T) {
	m := map[string]float64{"b": 1, "a": 1, "c": 3, "zero": 0}
	got := TopN(m, 0)
	want := []WeightedKey{{"c", 3}, {"a", 1}, {"b", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopN = %v, want %v", got, want)
	}
	if len(TopN(m, 1)) != 1 {
		t.Error("TopN should cap")
	}
}

func TestPriceRange_Contains(t *testing.T) {
	r := PriceRange{Min: 25, Max: 50}
	if !r.Contains(25) || r.Contains(50) {
		t.Error("range should be [min, max)")
	}
	open := PriceRange{Min: 500, Max: OpenEndedPriceMax}
	if !open.Contains(1e9) {
		t.Error("open-ended range should contain large prices")
	}
}

func TestExtensions_Set(t *testing.T) {
	e := Extensions{}
	tests := []struct {
		name    string
		v       any
		wantErr bool
	}{
		{"string", "x", false},
		{"int becomes float", 3, false},
		{"bool", true, false},
		{"nil", nil, false},
		{"nested", map[string]any{"a": 1.5, "b": "c"}, false},
		{"struct rejected", struct{}{}, true},
		{"nested slice rejected", map[string]any{"a": []int{1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Set("k", tt.v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsInvalidInput(err) {
				t.Errorf("err should be INVALID_INPUT, got %v", err)
			}
		})
	}
	_ = e.Set("n", 3)
	if v, ok := e.Float("n"); !ok || v != 3 {
		t.Errorf("Float(n) = %v, %v", v, ok)
	}
}

func TestParsePreferenceType(t *testing.T) {
	if pt, err := ParsePreferenceType("brands"); err != nil || pt != PreferenceBrands {
		t.Errorf("ParsePreferenceType(brands) = %v, %v", pt, err)
	}
	if _, err := ParsePreferenceType("recentSearches"); !IsInvalidInput(err) {
		t.Errorf("unsupported type should be INVALID_INPUT, got %v", err)
	}
}
