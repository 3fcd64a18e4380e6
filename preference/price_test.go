package preference

import (
	"testing"
	"time"

	"github.com/rushteam/searchkit/core"
)

func TestNudgePriceRange(t *testing.T) {
	t.Run("new standard bucket", func(t *testing.T) {
		p := core.NewPreferenceProfile("u")
		NudgePriceRange(p, 700, 0.2, 8)
		if len(p.PriceRanges) != 1 || p.PriceRanges[0].Min != 500 || p.PriceRanges[0].Max != core.OpenEndedPriceMax {
			t.Fatalf("ranges = %v", p.PriceRanges)
		}
	})
	t.Run("nearest overlapping bucket wins", func(t *testing.T) {
		p := core.NewPreferenceProfile("u")
		p.PriceRanges = []core.PriceRange{
			{Min: 0, Max: 200, Weight: 1},
			{Min: 50, Max: 100, Weight: 0.5},
		}
		NudgePriceRange(p, 60, 0.2, 8)
		for _, r := range p.PriceRanges {
			if r.Min == 50 && !approx(r.Weight, 0.7) {
				t.Errorf("narrow bucket weight = %v", r.Weight)
			}
			if r.Min == 0 && r.Weight != 1 {
				t.Errorf("wide bucket touched: %v", r.Weight)
			}
		}
	})
	t.Run("cap keeps heaviest", func(t *testing.T) {
		p := core.NewPreferenceProfile("u")
		for i := 0; i < 8; i++ {
			p.PriceRanges = append(p.PriceRanges, core.PriceRange{Min: float64(1000 + i), Max: float64(1001 + i), Weight: float64(i + 1)})
		}
		NudgePriceRange(p, 10, 0.5, 8)
		if len(p.PriceRanges) != 8 {
			t.Fatalf("len = %d", len(p.PriceRanges))
		}
		if p.PriceRanges[0].Weight != 8 {
			t.Errorf("not sorted: %v", p.PriceRanges)
		}
	})
}

func TestMergePriceRange(t *testing.T) {
	p := core.NewPreferenceProfile("u")
	MergePriceRange(p, 10, 40, 0.15, 8)
	MergePriceRange(p, 10, 40, 0.15, 8)
	MergePriceRange(p, 20, 40, 0.15, 8)
	if len(p.PriceRanges) != 2 || !approx(p.PriceRanges[0].Weight, 0.3) {
		t.Fatalf("ranges = %v", p.PriceRanges)
	}
	if MergePriceRange(p, 50, 10, 1, 8) {
		t.Error("inverted range accepted")
	}
}

func TestDwellWeight(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		d    time.Duration
		want float64
	}{
		{4 * time.Second, 0},
		{5 * time.Second, 0.1},
		{60 * time.Second, 1},
		{10 * time.Minute, 1},
		{32500 * time.Millisecond, 0.55},
	}
	for _, tt := range tests {
		if got := cfg.DwellWeight(tt.d); !approx(got, tt.want) {
			t.Errorf("DwellWeight(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}
}
