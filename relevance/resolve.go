package relevance

import "github.com/rushteam/searchkit/core"

// ResolveProfile 决定本次请求使用的 profile：
// 明确意图 → 实验变体算法 → 个性化（开启且画像非空）→ standard。
func ResolveProfile(sctx *core.SearchContext, personalizationEnabled bool) core.Algorithm {
	if sctx == nil {
		return core.AlgorithmStandard
	}
	if u := sctx.Understanding; u != nil && !u.Intent.IsGeneral() {
		return core.AlgorithmIntent
	}
	if a := sctx.Assignment; a != nil && a.Algorithm != "" {
		return a.Algorithm
	}
	if personalizationEnabled && !sctx.Profile.IsEmpty() {
		return core.AlgorithmPreference
	}
	return core.AlgorithmStandard
}
