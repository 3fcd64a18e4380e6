package pipeline

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/searchkit/pkg/conv"
)

// TypeParallel 是内置组合节点的类型名，子节点写在 nodes 中。
const TypeParallel = "parallel"

// Config 是 Pipeline 的配置结构（支持 YAML/JSON）。
type Config struct {
	Pipeline struct {
		Name        string       `yaml:"name" json:"name"`
		NodeTimeout string       `yaml:"node_timeout" json:"node_timeout"` // 如 "150ms"
		Nodes       []NodeConfig `yaml:"nodes" json:"nodes"`
	} `yaml:"pipeline" json:"pipeline"`
}

// NodeConfig 是单个 Node 的配置。
type NodeConfig struct {
	Type   string                 `yaml:"type" json:"type"`     // nlp.understand / experiment.assign / relevance.score 等
	Config map[string]interface{} `yaml:"config" json:"config"` // Node 特定配置
	Nodes  []NodeConfig           `yaml:"nodes" json:"nodes"`   // 仅 parallel 使用
}

// LoadFromYAML 从 YAML 文件加载 Pipeline 配置。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML 解析 YAML 格式的 Pipeline 配置。
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// LoadFromJSON 从 JSON 文件加载 Pipeline 配置。
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	return &cfg, nil
}

// BuildPipeline 根据配置构建 Pipeline（需要 NodeFactory 注册 Node 构建器）。
// 注意：factory 应该在独立的 config 包中，避免循环依赖。
func (c *Config) BuildPipeline(factory *NodeFactory) (*Pipeline, error) {
	nodes, err := buildNodes(factory, c.Pipeline.Nodes)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Nodes: nodes}
	if c.Pipeline.NodeTimeout != "" {
		d, err := time.ParseDuration(c.Pipeline.NodeTimeout)
		if err != nil {
			return nil, fmt.Errorf("node_timeout: %w", err)
		}
		p.NodeTimeout = d
	}
	return p, nil
}

func buildNodes(factory *NodeFactory, configs []NodeConfig) ([]Node, error) {
	nodes := make([]Node, 0, len(configs))
	for _, nc := range configs {
		if nc.Type == TypeParallel {
			children, err := buildNodes(factory, nc.Nodes)
			if err != nil {
				return nil, fmt.Errorf("build parallel: %w", err)
			}
			group := &Parallel{Nodes: children}
			if s, ok := nc.Config["timeout"].(string); ok && s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					return nil, fmt.Errorf("parallel timeout: %w", err)
				}
				group.Timeout = d
			}
			group.MaxConcurrent = int(conv.ConfigGetInt64(nc.Config, "max_concurrent", 0))
			nodes = append(nodes, group)
			continue
		}
		node, err := factory.Build(nc.Type, nc.Config)
		if err != nil {
			return nil, fmt.Errorf("build node %s: %w", nc.Type, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Types 返回配置中出现的全部节点类型（含 parallel 子节点，去重排序）。
func (c *Config) Types() []string {
	seen := make(map[string]struct{})
	var walk func([]NodeConfig)
	walk = func(ncs []NodeConfig) {
		for _, nc := range ncs {
			if nc.Type == TypeParallel {
				walk(nc.Nodes)
				continue
			}
			if nc.Type != "" {
				seen[nc.Type] = struct{}{}
			}
		}
	}
	walk(c.Pipeline.Nodes)
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NodeBuilder 根据 config 构建 Node。
type NodeBuilder func(map[string]interface{}) (Node, error)

// NodeFactory 用于根据配置构建 Node 实例。
type NodeFactory struct {
	builders map[string]NodeBuilder
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{
		builders: make(map[string]NodeBuilder),
	}
}

// Register 注册 Node 构建器。
func (f *NodeFactory) Register(nodeType string, builder NodeBuilder) {
	f.builders[nodeType] = builder
}

// Has 判断类型是否已注册。
func (f *NodeFactory) Has(nodeType string) bool {
	_, ok := f.builders[nodeType]
	return ok
}

// Build 根据类型和配置构建 Node。
func (f *NodeFactory) Build(nodeType string, config map[string]interface{}) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type: %s", nodeType)
	}
	return builder(config)
}
