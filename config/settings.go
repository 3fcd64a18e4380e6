package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/searchkit/collab"
	"github.com/rushteam/searchkit/decay"
	"github.com/rushteam/searchkit/nlp"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/validation"
	"github.com/rushteam/searchkit/preference"
	"github.com/rushteam/searchkit/relevance"
	"github.com/rushteam/searchkit/store"
	"github.com/rushteam/searchkit/stream"
)

// EnvPrefix 是环境变量前缀；层级用双下划线分隔，如 SEARCHKIT_NLP__INTENT_THRESHOLD。
const EnvPrefix = "SEARCHKIT_"

// Settings 是进程级配置。
type Settings struct {
	Logging     logging.Config     `koanf:"logging"`
	Store       StoreSettings      `koanf:"store"`
	Preference  preference.Config  `koanf:"preference"`
	Decay       decay.Config       `koanf:"decay"`
	Collab      collab.Config      `koanf:"collab"`
	Experiments ExperimentSettings `koanf:"experiments"`
	NLP         nlp.Config         `koanf:"nlp"`
	Relevance   relevance.Config   `koanf:"relevance"`
	Index       IndexSettings      `koanf:"index"`
	Stream      stream.Config      `koanf:"stream"`

	// Pipeline 是搜索流程 YAML 路径，为空时使用默认流程
	Pipeline string `koanf:"pipeline"`
}

// StoreSettings 选择画像存储后端。
type StoreSettings struct {
	Backend    string             `koanf:"backend" validate:"oneof=memory redis badger"`
	Redis      store.RedisConfig  `koanf:"redis"`
	Badger     store.BadgerConfig `koanf:"badger"`
	Lock       store.LockerConfig `koanf:"lock"`
	KeyPrefix  string             `koanf:"key_prefix"`
	CacheSize  int                `koanf:"cache_size" validate:"gte=0"` // 0 关闭读缓存
	CacheTTL   time.Duration      `koanf:"cache_ttl"`
	LogPerUser int                `koanf:"log_per_user" validate:"gte=0"`
}

// ExperimentSettings 是实验定义与记录配置。
type ExperimentSettings struct {
	// File 是实验定义 YAML，为空时只使用内置实验
	File           string `koanf:"file"`
	RecorderBuffer int    `koanf:"recorder_buffer" validate:"gte=0"` // 0 关闭分配记录
}

// IndexSettings 是本地 bleve 索引配置。
type IndexSettings struct {
	// ProductsFile 是启动时导入的商品 JSON 数组，为空时不启用本地索引
	ProductsFile string `koanf:"products_file"`
}

// DefaultSettings 返回默认配置。
func DefaultSettings() Settings {
	return Settings{
		Logging: logging.DefaultConfig(),
		Store: StoreSettings{
			Backend:    "memory",
			Lock:       store.DefaultLockerConfig(),
			KeyPrefix:  store.DefaultProfileKeyPrefix,
			CacheSize:  10000,
			CacheTTL:   5 * time.Minute,
			LogPerUser: 200,
		},
		Preference:  preference.DefaultConfig(),
		Decay:       decay.DefaultConfig(),
		Collab:      collab.DefaultConfig(),
		Experiments: ExperimentSettings{RecorderBuffer: 1024},
		NLP:         nlp.DefaultConfig(),
		Relevance:   relevance.DefaultConfig(),
		Stream:      stream.DefaultConfig(),
	}
}

// Load 依次叠加默认值、YAML 文件（path 非空时）与环境变量，并校验。
// 优先级：环境变量 > 文件 > 默认值。
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	s := DefaultSettings()
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// envKey 把 SEARCHKIT_NLP__INTENT_THRESHOLD 转成 nlp.intent_threshold。
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate 校验配置（结构体标签 + 后端相关的必填项）。
func (s *Settings) Validate() error {
	if err := validation.Struct(s); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.Store.Backend == "redis" && s.Store.Redis.Addr == "" {
		return fmt.Errorf("invalid config: store.redis.addr is required for the redis backend")
	}
	return nil
}
