package preference

import "time"

// Config 是偏好采集的增量与容量配置。
type Config struct {
	SearchIncrement     float64 `koanf:"search_increment" validate:"gte=0"`
	ViewIncrement       float64 `koanf:"view_increment" validate:"gte=0"`
	CartIncrement       float64 `koanf:"cart_increment" validate:"gte=0"`
	PurchaseIncrement   float64 `koanf:"purchase_increment" validate:"gte=0"`
	FilterIncrement     float64 `koanf:"filter_increment" validate:"gte=0"`
	ClickIncrement      float64 `koanf:"click_increment" validate:"gte=0"`
	ImpressionIncrement float64 `koanf:"impression_increment" validate:"gte=0"`

	// ViewNudgesPrice 为 true 时浏览也会按 ViewIncrement 推动价格区间
	ViewNudgesPrice bool `koanf:"view_nudges_price"`

	RecentSearchesCap  int `koanf:"recent_searches_cap" validate:"gt=0"`
	RecentlyViewedCap  int `koanf:"recently_viewed_cap" validate:"gt=0"`
	PurchaseHistoryCap int `koanf:"purchase_history_cap" validate:"gt=0"`
	PriceRangeCap      int `koanf:"price_range_cap" validate:"gt=0"`

	// MaxKeysPerMap 限制 categories / brands / values 的 key 数，0 表示不限
	MaxKeysPerMap int `koanf:"max_keys_per_map" validate:"gte=0"`

	// 停留时长：低于 DwellMin 忽略，DwellFull 时权重达到 1，超过 DwellMax 截断
	DwellMin  time.Duration `koanf:"dwell_min"`
	DwellFull time.Duration `koanf:"dwell_full"`
	DwellMax  time.Duration `koanf:"dwell_max"`

	// CatalogTimeout 是补全商品属性的超时
	CatalogTimeout time.Duration `koanf:"catalog_timeout"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		SearchIncrement:     0.2,
		ViewIncrement:       0.1,
		CartIncrement:       0.2,
		PurchaseIncrement:   0.5,
		FilterIncrement:     0.15,
		ClickIncrement:      0.25,
		ImpressionIncrement: 0.05,
		RecentSearchesCap:   10,
		RecentlyViewedCap:   20,
		PurchaseHistoryCap:  50,
		PriceRangeCap:       8,
		DwellMin:            5 * time.Second,
		DwellFull:           60 * time.Second,
		DwellMax:            5 * time.Minute,
		CatalogTimeout:      300 * time.Millisecond,
	}
}

// DwellWeight 把停留时长映射为 [0.1, 1] 的权重，低于 DwellMin 返回 0。
func (c Config) DwellWeight(d time.Duration) float64 {
	if d < c.DwellMin {
		return 0
	}
	if d > c.DwellMax {
		d = c.DwellMax
	}
	span := c.DwellFull - c.DwellMin
	ratio := 1.0
	if span > 0 {
		ratio = float64(d-c.DwellMin) / float64(span)
		if ratio > 1 {
			ratio = 1
		}
	}
	return 0.1 + 0.9*ratio
}
