package relevance

import (
	"context"
	"errors"
	"strconv"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pipeline"
	"github.com/rushteam/searchkit/pkg/conv"
	"github.com/rushteam/searchkit/pkg/utils"
)

// 请求级参数名（SearchContext.Params，也可由实验变体参数给出）
const (
	ParamPersonalization = "personalization"
	ParamCollabStrength  = "collab_strength"
	ParamProfile         = "scoring_profile"
)

// QueryProcessor 是查询理解能力，由 nlp.Processor 实现。
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, text string) *core.QueryUnderstanding
}

// VariantAssigner 是实验分流能力，由 experiment.Service 实现。
type VariantAssigner interface {
	Assign(ctx context.Context, experimentID, userID, clientID string, attrs map[string]any) *core.Assignment
}

// ProfileDecayer 在读路径上惰性衰减画像，由 decay.Engine 实现。
type ProfileDecayer interface {
	MaybeDecay(ctx context.Context, p *core.PreferenceProfile) *core.PreferenceProfile
}

// CollaborativeBooster 追加协同过滤 boost，由 collab.Engine 实现。
type CollaborativeBooster interface {
	ApplyCollaborativeBoosts(ctx context.Context, q *core.Query, userID string, strength float64) *core.Query
}

// UnderstandNode 对查询文本做查询理解。
type UnderstandNode struct {
	Processor QueryProcessor
}

func (n *UnderstandNode) Name() string        { return "nlp.understand" }
func (n *UnderstandNode) Kind() pipeline.Kind { return pipeline.KindUnderstand }

func (n *UnderstandNode) Process(ctx context.Context, sctx *core.SearchContext) error {
	if n.Processor == nil || sctx.Text == "" {
		return nil
	}
	qu := n.Processor.ProcessQuery(ctx, sctx.Text)
	if qu == nil {
		return nil
	}
	sctx.Understanding = qu
	sctx.PutLabel("intent", utils.Label{Value: string(qu.Intent.Intent), Source: "nlp"})
	return nil
}

// AssignNode 把请求主体分到实验变体；变体参数补充到请求参数（请求已给出的参数优先）。
type AssignNode struct {
	Assigner     VariantAssigner
	ExperimentID string // 请求未指定实验时使用
}

func (n *AssignNode) Name() string        { return "experiment.assign" }
func (n *AssignNode) Kind() pipeline.Kind { return pipeline.KindAssign }

func (n *AssignNode) Process(ctx context.Context, sctx *core.SearchContext) error {
	if n.Assigner == nil {
		return nil
	}
	expID := sctx.ExperimentID
	if expID == "" {
		expID = n.ExperimentID
	}
	if expID == "" {
		return nil
	}
	a := n.Assigner.Assign(ctx, expID, sctx.UserID, sctx.ClientID, sctx.Attributes)
	if a == nil {
		return nil
	}
	sctx.Assignment = a
	if len(a.Params) > 0 {
		if sctx.Params == nil {
			sctx.Params = make(map[string]any, len(a.Params))
		}
		for k, v := range a.Params {
			if _, set := sctx.Params[k]; !set {
				sctx.Params[k] = v
			}
		}
	}
	sctx.PutLabel("experiment", utils.Label{Value: a.ExperimentID + ":" + a.VariantID, Source: "experiment"})
	return nil
}

// PersonalizeNode 读取用户画像，必要时惰性衰减。画像不存在不算失败。
type PersonalizeNode struct {
	Store   core.PreferenceStore
	Decayer ProfileDecayer // 可为 nil
	Enabled bool
}

func (n *PersonalizeNode) Name() string        { return "preference.load" }
func (n *PersonalizeNode) Kind() pipeline.Kind { return pipeline.KindPersonalize }

func (n *PersonalizeNode) Process(ctx context.Context, sctx *core.SearchContext) error {
	if n.Store == nil || sctx.UserID == "" || !personalization(sctx, n.Enabled) {
		return nil
	}
	p, err := n.Store.Get(ctx, sctx.UserID)
	if err != nil {
		if errors.Is(err, core.ErrProfileNotFound) || core.IsNotFound(err) {
			return nil
		}
		return err
	}
	if n.Decayer != nil {
		p = n.Decayer.MaybeDecay(ctx, p)
	}
	sctx.Profile = p
	return nil
}

// DecayNode 对已读取的画像做惰性衰减。
// 并发读画像时放在并发组之后执行，此时实验变体的 personalization 参数已经合并，
// 关闭个性化的请求不会触发衰减写入。
type DecayNode struct {
	Decayer ProfileDecayer
	Enabled bool
}

func (n *DecayNode) Name() string        { return "preference.decay" }
func (n *DecayNode) Kind() pipeline.Kind { return pipeline.KindPersonalize }

func (n *DecayNode) Process(ctx context.Context, sctx *core.SearchContext) error {
	if n.Decayer == nil || sctx.Profile == nil || !personalization(sctx, n.Enabled) {
		return nil
	}
	sctx.Profile = n.Decayer.MaybeDecay(ctx, sctx.Profile)
	return nil
}

// ScoreNode 解析 profile 并应用到当前查询。
// 查询理解给出排序且调用方没有指定排序时，一并写入排序。
type ScoreNode struct {
	Applier *Applier
	Enabled bool // 个性化默认开关，可被请求参数覆盖
}

func (n *ScoreNode) Name() string        { return "relevance.score" }
func (n *ScoreNode) Kind() pipeline.Kind { return pipeline.KindScore }

func (n *ScoreNode) Process(_ context.Context, sctx *core.SearchContext) error {
	if n.Applier == nil {
		return nil
	}
	enabled := personalization(sctx, n.Enabled)
	name := ResolveProfile(sctx, enabled)
	if forced := conv.ConfigGet(sctx.Params, ParamProfile, ""); forced != "" {
		name = core.Algorithm(forced)
	}

	var (
		profile  *core.PreferenceProfile
		intent   *core.IntentResult
		entities []core.Entity
	)
	if enabled {
		profile = sctx.Profile
	}
	if u := sctx.Understanding; u != nil {
		intent = &u.Intent
		entities = u.Entities
	}

	q := n.Applier.ApplyScoringProfile(sctx.Query, name, profile, intent, entities)
	if u := sctx.Understanding; u != nil && len(q.Sort) == 0 && len(u.SearchParameters.Sort) > 0 {
		q.Sort = append([]core.SortField(nil), u.SearchParameters.Sort...)
	}
	sctx.Query = q
	sctx.Algorithm = name
	sctx.PutLabel("scoring_profile", utils.Label{Value: string(name), Source: "relevance"})
	return nil
}

// CollabNode 追加协同过滤 boost。
type CollabNode struct {
	Booster  CollaborativeBooster
	Strength float64 // 默认强度，可被请求参数覆盖
	Enabled  bool
}

func (n *CollabNode) Name() string        { return "collab.boost" }
func (n *CollabNode) Kind() pipeline.Kind { return pipeline.KindBoost }

func (n *CollabNode) Process(ctx context.Context, sctx *core.SearchContext) error {
	if n.Booster == nil || sctx.UserID == "" || !personalization(sctx, n.Enabled) {
		return nil
	}
	strength := conv.ConfigGetFloat64(sctx.Params, ParamCollabStrength, n.Strength)
	if strength <= 0 {
		return nil
	}
	before := len(sctx.Query.Functions)
	q := n.Booster.ApplyCollaborativeBoosts(ctx, sctx.Query, sctx.UserID, strength)
	if q == nil {
		return nil
	}
	sctx.Query = q
	if added := len(q.Functions) - before; added > 0 {
		sctx.PutLabel("collaborative", utils.Label{Value: strconv.Itoa(added), Source: "collab"})
	}
	return nil
}

func personalization(sctx *core.SearchContext, def bool) bool {
	return conv.ConfigGetBool(sctx.Params, ParamPersonalization, def)
}

var (
	_ pipeline.Node = (*UnderstandNode)(nil)
	_ pipeline.Node = (*AssignNode)(nil)
	_ pipeline.Node = (*PersonalizeNode)(nil)
	_ pipeline.Node = (*DecayNode)(nil)
	_ pipeline.Node = (*ScoreNode)(nil)
	_ pipeline.Node = (*CollabNode)(nil)
)
