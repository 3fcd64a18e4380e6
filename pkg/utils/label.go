package utils

import "strings"

// Label 记录搜索链路中某个阶段的决策，随 SearchContext 和 Query 透传给调用方。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // nlp / experiment / relevance / collab / pipeline
}

// Values 返回以 '|' 累积的各个值。
func (l Label) Values() []string {
	if l.Value == "" {
		return nil
	}
	return strings.Split(l.Value, "|")
}

// Has 判断 v 是否已记录在 Value 中。
func (l Label) Has(v string) bool {
	return containsPart(l.Value, "|", v)
}

// MergeLabel 合并同名 Label：Value 以 '|'、Source 以 ',' 按首次出现顺序累积并去重。
// 同一节点重复降级、并发分支合并回来的相同来源只记一次。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}
	return Label{
		Value:  appendPart(existing.Value, "|", incoming.Value),
		Source: appendPart(existing.Source, ",", incoming.Source),
	}
}

func appendPart(list, sep, part string) string {
	switch {
	case part == "":
		return list
	case list == "":
		return part
	}
	out := list
	for _, p := range strings.Split(part, sep) {
		if p != "" && !containsPart(out, sep, p) {
			out += sep + p
		}
	}
	return out
}

func containsPart(list, sep, part string) bool {
	for _, p := range strings.Split(list, sep) {
		if p == part {
			return true
		}
	}
	return false
}
