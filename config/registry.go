package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/searchkit/pipeline"
	"github.com/rushteam/searchkit/relevance"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/searchkit/config/builders"
// 以触发内置 Node（nlp.understand、experiment.assign、relevance.score 等）的 init 注册。

// Runtime 是构建 Node 时可用的运行时依赖。
type Runtime struct {
	Deps      relevance.Dependencies
	Relevance relevance.Config
}

// NodeBuilder 根据 YAML 中的 config 与运行时依赖构建 Node。
// 各组件在 init 中调用 Register(typeName, builder) 即可被配置驱动。
type NodeBuilder func(cfg map[string]interface{}, rt Runtime) (pipeline.Node, error)

var (
	defaultBuilders   = make(map[string]NodeBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种 Node 的构建逻辑。
// 建议在各组件的 init 中调用，例如：func init() { config.Register("relevance.score", BuildScoreNode) }
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的 Node 类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	return supportedLocked()
}

// NewFactory 返回绑定了 rt 的 NodeFactory，包含所有通过 Register 注册的 Node 类型。
func NewFactory(rt Runtime) *pipeline.NodeFactory {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range defaultBuilders {
		builder := builder
		f.Register(typeName, func(cfg map[string]interface{}) (pipeline.Node, error) {
			return builder(cfg, rt)
		})
	}
	return f
}

// ValidatePipelineConfig 校验 pipeline 配置中所有 node 类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	for _, typ := range cfg.Types() {
		if _, ok := defaultBuilders[typ]; !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", typ, supportedLocked())
		}
	}
	return nil
}

func supportedLocked() []string {
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
