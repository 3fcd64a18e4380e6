package builders

import (
	"fmt"

	"github.com/rushteam/searchkit/config"
	"github.com/rushteam/searchkit/pipeline"
	"github.com/rushteam/searchkit/pkg/conv"
	"github.com/rushteam/searchkit/relevance"
)

func init() {
	config.Register("nlp.understand", BuildUnderstandNode)
	config.Register("experiment.assign", BuildAssignNode)
	config.Register("preference.load", BuildPersonalizeNode)
	config.Register("preference.decay", BuildDecayNode)
	config.Register("relevance.score", BuildScoreNode)
	config.Register("collab.boost", BuildCollabNode)
}

func BuildUnderstandNode(_ map[string]interface{}, rt config.Runtime) (pipeline.Node, error) {
	if rt.Deps.Processor == nil {
		return nil, fmt.Errorf("nlp.understand: query processor not configured")
	}
	return &relevance.UnderstandNode{Processor: rt.Deps.Processor}, nil
}

func BuildAssignNode(cfg map[string]interface{}, rt config.Runtime) (pipeline.Node, error) {
	if rt.Deps.Assigner == nil {
		return nil, fmt.Errorf("experiment.assign: assigner not configured")
	}
	return &relevance.AssignNode{
		Assigner:     rt.Deps.Assigner,
		ExperimentID: conv.ConfigGet(cfg, "experiment_id", rt.Relevance.ExperimentID),
	}, nil
}

func BuildPersonalizeNode(cfg map[string]interface{}, rt config.Runtime) (pipeline.Node, error) {
	if rt.Deps.Profiles == nil {
		return nil, fmt.Errorf("preference.load: preference store not configured")
	}
	node := &relevance.PersonalizeNode{
		Store:   rt.Deps.Profiles,
		Enabled: conv.ConfigGetBool(cfg, "enabled", rt.Relevance.PersonalizationEnabled),
	}
	if conv.ConfigGetBool(cfg, "lazy_decay", true) {
		node.Decayer = rt.Deps.Decayer
	}
	return node, nil
}

// BuildDecayNode 用于并发读画像的流程：preference.load 设置 lazy_decay: false，
// 在并发组之后放一个 preference.decay。
func BuildDecayNode(cfg map[string]interface{}, rt config.Runtime) (pipeline.Node, error) {
	if rt.Deps.Decayer == nil {
		return nil, fmt.Errorf("preference.decay: decay engine not configured")
	}
	return &relevance.DecayNode{
		Decayer: rt.Deps.Decayer,
		Enabled: conv.ConfigGetBool(cfg, "enabled", rt.Relevance.PersonalizationEnabled),
	}, nil
}

func BuildScoreNode(cfg map[string]interface{}, rt config.Runtime) (pipeline.Node, error) {
	applier := rt.Deps.Applier
	if applier == nil {
		applier = relevance.NewApplier(rt.Relevance)
	}
	return &relevance.ScoreNode{
		Applier: applier,
		Enabled: conv.ConfigGetBool(cfg, "personalization", rt.Relevance.PersonalizationEnabled),
	}, nil
}

func BuildCollabNode(cfg map[string]interface{}, rt config.Runtime) (pipeline.Node, error) {
	if rt.Deps.Booster == nil {
		return nil, fmt.Errorf("collab.boost: collaborative engine not configured")
	}
	strength := conv.ConfigGetFloat64(cfg, "strength", rt.Relevance.CollabStrength)
	if strength < 0 {
		return nil, fmt.Errorf("collab.boost: strength must be >= 0, got %v", strength)
	}
	return &relevance.CollabNode{
		Booster:  rt.Deps.Booster,
		Strength: strength,
		Enabled:  conv.ConfigGetBool(cfg, "enabled", rt.Relevance.PersonalizationEnabled),
	}, nil
}
