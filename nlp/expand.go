package nlp

import (
	"context"
	"strings"

	"github.com/rushteam/searchkit/core"
)

// 扩展词来源
const (
	SourceSynonym = "synonym"
	SourceIndex   = "index"
)

// Expansion 是一次查询扩展的结果。
type Expansion struct {
	Query   string
	Terms   []string
	Sources map[string]string // term -> SourceSynonym / SourceIndex
}

// Expander 用领域同义词和索引统计词扩展查询。
type Expander struct {
	synonyms map[string][]string
	index    *guardedIndex
	cfg      Config
}

// NewExpander 创建扩展器，synonyms 为 nil 时使用内置同义词表。
func NewExpander(synonyms map[string][]string, cfg Config) *Expander {
	if synonyms == nil {
		synonyms = defaultSynonyms
	}
	norm := make(map[string][]string, len(synonyms))
	for k, v := range synonyms {
		norm[normalizeTerm(k)] = v
	}
	return &Expander{synonyms: norm, cfg: cfg}
}

// Expand 扩展查询，返回的 error 只表示索引统计扩展失败，此时结果仍包含同义词扩展。
func (e *Expander) Expand(ctx context.Context, query string, tokens []string) (Expansion, error) {
	out := Expansion{Query: query}
	if !e.cfg.ExpansionEnabled || len(tokens) == 0 || e.cfg.MaxExpansionTerms <= 0 {
		return out, nil
	}
	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[normalizeTerm(t)] = true
	}
	sources := make(map[string]string)
	add := func(term, source string) {
		key := normalizeTerm(term)
		if key == "" || present[key] || len(out.Terms) >= e.cfg.MaxExpansionTerms {
			return
		}
		present[key] = true
		out.Terms = append(out.Terms, term)
		sources[term] = source
	}

	for n := 1; n <= 2; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			syns := e.synonyms[strings.Join(tokens[i:i+n], " ")]
			if len(syns) > e.cfg.MaxSynonymsPerTerm {
				syns = syns[:e.cfg.MaxSynonymsPerTerm]
			}
			for _, s := range syns {
				add(s, SourceSynonym)
			}
		}
	}

	var err error
	if e.index != nil && e.cfg.IndexExpansion && len(out.Terms) < e.cfg.MaxExpansionTerms {
		var terms []core.TermCount
		terms, err = e.index.call(ctx, e.cfg.IndexTimeout, func(ctx context.Context) ([]core.TermCount, error) {
			return e.index.index.SignificantTerms(ctx, e.cfg.ExpansionField, query, e.cfg.MaxExpansionTerms)
		})
		for _, t := range terms {
			add(strings.ToLower(t.Term), SourceIndex)
		}
	}

	if len(out.Terms) > 0 {
		out.Sources = sources
		out.Query = strings.TrimSpace(query) + " " + strings.Join(out.Terms, " ")
	}
	return out, err
}
