package nlp

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// Tokenizer 基于 bleve 分析链：unicode 分词 -> 小写 -> 英文停用词；词干由 porter 单独产出。
// 所有过滤器都是无状态的，可并发使用。
type Tokenizer struct {
	minLen    int
	tokenizer analysis.Tokenizer
	lower     analysis.TokenFilter
	stop      analysis.TokenFilter
	stemmer   analysis.TokenFilter
}

// NewTokenizer 创建分词器，minLen 是保留的最短词长。
func NewTokenizer(minLen int) (*Tokenizer, error) {
	stopWords := analysis.NewTokenMap()
	if err := stopWords.LoadBytes(en.EnglishStopWords); err != nil {
		return nil, err
	}
	if minLen <= 0 {
		minLen = 1
	}
	return &Tokenizer{
		minLen:    minLen,
		tokenizer: bleveunicode.NewUnicodeTokenizer(),
		lower:     lowercase.NewLowerCaseFilter(),
		stop:      stop.NewStopTokensFilter(stopWords),
		stemmer:   porter.NewPorterStemmer(),
	}, nil
}

// Tokenize 返回规范化后的词与对应词干，两者一一对应。
// 纯数字和短于 minLen 的词被丢弃。
func (t *Tokenizer) Tokenize(text string) (tokens, stems []string) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	stream := t.stop.Filter(t.lower.Filter(t.tokenizer.Tokenize([]byte(text))))
	tokens = make([]string, 0, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if len([]rune(term)) < t.minLen || isDigits(term) {
			continue
		}
		tokens = append(tokens, term)
	}
	return tokens, t.Stem(tokens)
}

// Stem 对已规范化的词做 porter 词干化。
func (t *Tokenizer) Stem(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	stream := make(analysis.TokenStream, len(tokens))
	for i, tok := range tokens {
		stream[i] = &analysis.Token{Term: []byte(tok), Position: i + 1, Type: analysis.AlphaNumeric}
	}
	stream = t.stemmer.Filter(stream)
	stems := make([]string, len(stream))
	for i, tok := range stream {
		stems[i] = string(tok.Term)
	}
	return stems
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
