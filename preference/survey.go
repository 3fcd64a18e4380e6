package preference

import (
	"context"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/metrics"
)

const (
	surveyCategoryWeight  = 5.0
	surveyBrandWeight     = 5.0
	surveyAttributeWeight = 3.0
)

// SensitivityWeight 返回问卷价格区间的权重，敏感度越低权重越小。
func SensitivityWeight(s core.PriceSensitivity) float64 {
	switch s {
	case core.SensitivityBudget:
		return 5
	case core.SensitivityValue:
		return 4
	case core.SensitivityPremium:
		return 2
	case core.SensitivityLuxury:
		return 1.5
	default:
		return 3
	}
}

// SubmitSurvey 把问卷合并进画像，问卷元数据写入 additionalData.survey。
func (c *Collector) SubmitSurvey(ctx context.Context, userID string, s *core.SurveyResponse) error {
	if userID == "" {
		return core.InvalidInput(core.ModulePreference, "userId is required")
	}
	if s == nil {
		return core.InvalidInput(core.ModulePreference, "survey is required")
	}
	if err := s.Validate(); err != nil {
		metrics.InteractionsTotal.WithLabelValues("survey", "invalid").Inc()
		return err
	}
	now := c.now()
	_, err := c.store.Update(ctx, userID, func(p *core.PreferenceProfile) (bool, error) {
		for _, cat := range s.Categories {
			p.AddWeight(core.PreferenceCategories, cat, surveyCategoryWeight)
		}
		for _, b := range s.Brands {
			p.AddWeight(core.PreferenceBrands, b, surveyBrandWeight)
		}
		for _, a := range s.Attributes {
			p.AddWeight(core.PreferenceValues, a, surveyAttributeWeight)
		}
		if s.PriceRange != nil {
			MergePriceRange(p, s.PriceRange.Min, s.PriceRange.Max, SensitivityWeight(s.PriceSensitivity), c.cfg.PriceRangeCap)
		}
		meta := map[string]any{"submittedAt": now}
		if s.PriceSensitivity != "" {
			meta["priceSensitivity"] = string(s.PriceSensitivity)
		}
		if s.ShoppingFrequency != "" {
			meta["shoppingFrequency"] = s.ShoppingFrequency
		}
		if s.ReviewImportance > 0 {
			meta["reviewImportance"] = s.ReviewImportance
		}
		if err := p.AdditionalData.Set(core.ExtSurvey, meta); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		c.logger.Error().Err(err).Str("user", userID).Msg("submit survey failed")
		metrics.InteractionsTotal.WithLabelValues("survey", "failed").Inc()
		return err
	}
	metrics.InteractionsTotal.WithLabelValues("survey", "applied").Inc()
	return nil
}
