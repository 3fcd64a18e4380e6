package core

import "github.com/rushteam/searchkit/pkg/utils"

// SearchContext 承载一次搜索请求的用户、查询与中间结果，贯穿整个 Pipeline 透传。
type SearchContext struct {
	UserID    string // 登录用户，可为空
	ClientID  string // 匿名客户端 ID，用于未登录用户的实验分流
	SessionID string

	// Text 是用户输入的原始查询文本
	Text string

	// Base 是调用方给出的基础查询，任何节点都不修改它
	Base *Query

	// Query 是当前累积的增强查询，初始为 Base 的拷贝
	Query *Query

	// ExperimentID 指定要参与的实验，为空时不分流
	ExperimentID string

	// 各阶段产出，未运行或失败时为 nil
	Understanding *QueryUnderstanding
	Assignment    *Assignment
	Profile       *PreferenceProfile

	// Profile 解析结果
	Algorithm Algorithm

	// Attributes 是用户属性（CEL 定向表达式的 user 变量）
	Attributes map[string]any

	// Labels 记录各阶段的决策，可解释、可追踪
	Labels map[string]utils.Label

	// Params 请求级参数，如 collab_strength、personalization
	Params map[string]any
}

// NewSearchContext 创建搜索上下文，Query 初始化为 base 的深拷贝。
func NewSearchContext(userID, text string, base *Query) *SearchContext {
	if base == nil {
		base = &Query{}
	}
	return &SearchContext{
		UserID: userID,
		Text:   text,
		Base:   base,
		Query:  base.Clone(),
	}
}

// SubjectID 返回实验分流主体：优先 UserID，其次 ClientID。
func (sctx *SearchContext) SubjectID() string {
	if sctx.UserID != "" {
		return sctx.UserID
	}
	return sctx.ClientID
}

// PutLabel 写入请求级 Label。
func (sctx *SearchContext) PutLabel(key string, lbl utils.Label) {
	if sctx.Labels == nil {
		sctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := sctx.Labels[key]; ok {
		sctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	sctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (sctx *SearchContext) GetLabel(key string) (utils.Label, bool) {
	if sctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := sctx.Labels[key]
	return lbl, ok
}
