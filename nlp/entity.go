package nlp

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rushteam/searchkit/core"
)

// 实体置信度
const (
	confPatternKnown   = 0.9
	confPatternUnknown = 0.7
	confToken          = 0.8
	confNGram          = 0.85
	confPriceRange     = 0.95
	confPriceModifier  = 0.9
	confPriceQualifier = 0.7
	confRating         = 0.9
	confRatingAtLeast  = 0.85
	confTopRated       = 0.8
	confRecent         = 0.8
	confPeriod         = 0.9
	confSinceYear      = 0.9
	confSize           = 0.9
)

// openPriceMax 是开放上界的价格在实体值中的写法
const (
	openPriceMax      = "9999"
	openPriceMaxValue = 9999.0
)

const phrase = `[a-z][a-z0-9&'-]*(?:\s+[a-z][a-z0-9&'-]*){0,2}`

// captureStopWords 是 "by price" 这类捕获中不可能是实体的首词
var captureStopWords = map[string]bool{
	"price": true, "prices": true, "rating": true, "ratings": true, "reviews": true,
	"popularity": true, "relevance": true, "newest": true, "date": true, "name": true,
	"size": true, "color": true, "the": true, "a": true, "an": true, "all": true,
}

type capturePattern struct {
	re        *regexp.Regexp
	knownOnly bool // 未登记的取值直接丢弃
	suffix    bool // 捕获内容在关键词之前，按后缀做最长匹配
}

var (
	categoryPatterns = []capturePattern{
		{re: regexp.MustCompile(`\b(?:browse|shop|category:?)\s+(` + phrase + `)`)},
		{re: regexp.MustCompile(`(` + phrase + `)\s+(?:category|section|department)\b`), suffix: true},
	}
	brandPatterns = []capturePattern{
		{re: regexp.MustCompile(`\b(?:made by|by|brand:?)\s+(` + phrase + `)`)},
		{re: regexp.MustCompile(`\bfrom\s+(` + phrase + `)`), knownOnly: true},
		{re: regexp.MustCompile(`(` + phrase + `)\s+brand\b`), suffix: true},
	}
	colorPatterns = []capturePattern{
		{re: regexp.MustCompile(`\b(?:colou?r:?)\s+([a-z][a-z-]*)`)},
	}
	materialPatterns = []capturePattern{
		{re: regexp.MustCompile(`\b(?:material:?|made (?:of|from))\s+(` + phrase + `)`)},
	}

	sizeCaptureRe    = regexp.MustCompile(`\bsize:?\s+([a-z0-9]+(?:\s+size)?)\b`)
	sizeStandaloneRe = regexp.MustCompile(`\b(xs|xl|xxl|(?:[2-9]|10)xl|small|medium|large|one size)\b`)

	priceRangeRe     = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*(?:to|-|and)\s*\$?(\d+(?:\.\d+)?)`)
	priceModifierRe  = regexp.MustCompile(`\b(under|less than|below|cheaper than|above|over|more than)\s+\$(\d+(?:\.\d+)?)`)
	priceQualifierRe = regexp.MustCompile(`\b(cheap|affordable|budget|inexpensive|expensive|luxury|high-end|premium)\b`)

	ratingRe        = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(\+)?\s*stars?\b`)
	ratingAtLeastRe = regexp.MustCompile(`\b(?:above|over|more than|at least)\s+(\d+(?:\.\d+)?)\s*stars?\b`)
	topRatedRe      = regexp.MustCompile(`\b(?:top|best|highest)[\s-]+rated\b`)

	recentRe = regexp.MustCompile(`\b(?:new|newest|latest|recent|recently)\b`)
	periodRe = regexp.MustCompile(`\bthis\s+(week|month|year)\b`)
	sinceRe  = regexp.MustCompile(`\b(?:from|since)\s+(\d{4})\b`)
)

// EntityExtractor 按规则与词典识别查询实体。
type EntityExtractor struct {
	dict  *Dictionary
	index *guardedIndex
	cfg   Config
	now   core.Clock
}

// NewEntityExtractor 创建实体识别器，dict 为 nil 时使用内置词典。
func NewEntityExtractor(dict *Dictionary, cfg Config, now core.Clock) *EntityExtractor {
	if dict == nil {
		dict = NewDefaultDictionary()
	}
	if now == nil {
		now = time.Now
	}
	return &EntityExtractor{dict: dict, cfg: cfg, now: now}
}

// Dictionary 返回使用的词典。
func (x *EntityExtractor) Dictionary() *Dictionary { return x.dict }

// LoadFromIndex 用索引中的类目、品牌聚合补充词典，返回新增的取值个数。
// 调用受超时与熔断保护；失败时词典保持不变。
func (x *EntityExtractor) LoadFromIndex(ctx context.Context) (int, error) {
	if x.index == nil {
		return 0, nil
	}
	added := 0
	for _, f := range []struct {
		field string
		typ   core.EntityType
	}{
		{"categories", core.EntityCategory},
		{"brand", core.EntityBrand},
	} {
		terms, err := x.index.call(ctx, x.cfg.DictionaryTimeout, func(ctx context.Context) ([]core.TermCount, error) {
			return x.index.index.Terms(ctx, f.field, x.cfg.DictionarySize)
		})
		if err != nil {
			return added, err
		}
		values := make([]string, 0, len(terms))
		for _, t := range terms {
			values = append(values, t.Term)
		}
		added += x.dict.Add(f.typ, values...)
	}
	return added, nil
}

type entitySet struct {
	list  []core.Entity
	index map[string]int
}

func (s *entitySet) add(t core.EntityType, value string, conf float64) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	key := string(t) + "\x00" + value
	if i, ok := s.index[key]; ok {
		if conf > s.list[i].Confidence {
			s.list[i].Confidence = conf
		}
		return
	}
	s.index[key] = len(s.list)
	s.list = append(s.list, core.Entity{Type: t, Value: value, Confidence: conf})
}

// Extract 识别实体，tokens 是 Tokenizer 的输出。返回实体与增强查询。
func (x *EntityExtractor) Extract(query string, tokens []string) ([]core.Entity, string) {
	lower := strings.ToLower(query)
	var set entitySet

	x.extractCaptured(&set, core.EntityCategory, lower, categoryPatterns)
	x.extractDictionary(&set, core.EntityCategory, tokens)
	x.extractCaptured(&set, core.EntityBrand, lower, brandPatterns)
	x.extractDictionary(&set, core.EntityBrand, tokens)
	x.extractMentions(&set, core.EntityValue, lower)
	x.extractDictionary(&set, core.EntityValue, tokens)
	extractSizes(&set, lower)
	x.extractCaptured(&set, core.EntityColor, lower, colorPatterns)
	x.extractMentions(&set, core.EntityColor, lower)
	x.extractDictionary(&set, core.EntityColor, tokens)
	x.extractCaptured(&set, core.EntityMaterial, lower, materialPatterns)
	x.extractMentions(&set, core.EntityMaterial, lower)
	x.extractDictionary(&set, core.EntityMaterial, tokens)
	extractPrices(&set, lower)
	extractRatings(&set, lower)
	x.extractDates(&set, lower)

	return set.list, enhanceQuery(query, lower, set.list)
}

// extractCaptured 处理 "by xxx" / "xxx category" 这类带捕获的规则。
// 捕获的短语按最长匹配查词典：命中为 0.9，未命中为 0.7（knownOnly 的规则丢弃）。
func (x *EntityExtractor) extractCaptured(set *entitySet, t core.EntityType, lower string, patterns []capturePattern) {
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(lower, -1) {
			words := strings.Fields(m[1])
			if len(words) == 0 {
				continue
			}
			if v, ok := x.longestKnown(t, words, p.suffix); ok {
				set.add(t, v, confPatternKnown)
				continue
			}
			if p.knownOnly || captureStopWords[words[0]] {
				continue
			}
			set.add(t, strings.Join(words, " "), confPatternUnknown)
		}
	}
}

// longestKnown 在捕获的词序列中找最长的已登记子串；suffix 为 true 时同长度优先取靠后的。
func (x *EntityExtractor) longestKnown(t core.EntityType, words []string, suffix bool) (string, bool) {
	for n := len(words); n > 0; n-- {
		for k := 0; k+n <= len(words); k++ {
			i := k
			if suffix {
				i = len(words) - n - k
			}
			if v, ok := x.dict.Lookup(t, strings.Join(words[i:i+n], " ")); ok {
				return v, true
			}
		}
	}
	return "", false
}

// extractMentions 查找原文中直接出现的登记取值（词边界，最长优先）。
func (x *EntityExtractor) extractMentions(set *entitySet, t core.EntityType, lower string) {
	normalized := " " + normalizeTerm(lower) + " "
	for _, v := range x.dict.Values(t) {
		if strings.Contains(normalized, " "+normalizeTerm(v)+" ") {
			set.add(t, v, confPatternKnown)
		}
	}
}

// extractDictionary 在 token 序列上做 1..n-gram 词典匹配。
func (x *EntityExtractor) extractDictionary(set *entitySet, t core.EntityType, tokens []string) {
	maxN := x.dict.MaxWords()
	for n := 1; n <= maxN; n++ {
		conf := confToken
		if n > 1 {
			conf = confNGram
		}
		for i := 0; i+n <= len(tokens); i++ {
			if v, ok := x.dict.Lookup(t, strings.Join(tokens[i:i+n], " ")); ok {
				set.add(t, v, conf)
			}
		}
	}
}

func extractSizes(set *entitySet, lower string) {
	for _, m := range sizeCaptureRe.FindAllStringSubmatch(lower, -1) {
		set.add(core.EntitySize, m[1], confSize)
	}
	for _, m := range sizeStandaloneRe.FindAllStringSubmatch(lower, -1) {
		set.add(core.EntitySize, m[1], confSize)
	}
}

func formatNumber(s string) (string, float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", 0, false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), v, true
}

func extractPrices(set *entitySet, lower string) {
	for _, m := range priceRangeRe.FindAllStringSubmatch(lower, -1) {
		lo, a, ok1 := formatNumber(m[1])
		hi, b, ok2 := formatNumber(m[2])
		if !ok1 || !ok2 || a > b {
			continue
		}
		set.add(core.EntityPriceRange, lo+"-"+hi, confPriceRange)
	}
	for _, m := range priceModifierRe.FindAllStringSubmatch(lower, -1) {
		p, _, ok := formatNumber(m[2])
		if !ok {
			continue
		}
		switch m[1] {
		case "under", "less than", "below", "cheaper than":
			set.add(core.EntityPriceRange, "0-"+p, confPriceModifier)
		default:
			set.add(core.EntityPriceRange, p+"-"+openPriceMax, confPriceModifier)
		}
	}
	for _, m := range priceQualifierRe.FindAllStringSubmatch(lower, -1) {
		switch m[1] {
		case "cheap", "affordable", "budget", "inexpensive":
			set.add(core.EntityPriceRange, "0-50", confPriceQualifier)
		default:
			set.add(core.EntityPriceRange, "100-"+openPriceMax, confPriceQualifier)
		}
	}
}

func extractRatings(set *entitySet, lower string) {
	for _, m := range ratingRe.FindAllStringSubmatch(lower, -1) {
		r, v, ok := formatNumber(m[1])
		if !ok || v < 0 || v > 5 {
			continue
		}
		if m[2] == "+" {
			set.add(core.EntityRating, r+"+", confRatingAtLeast)
			continue
		}
		set.add(core.EntityRating, r, confRating)
	}
	for _, m := range ratingAtLeastRe.FindAllStringSubmatch(lower, -1) {
		r, v, ok := formatNumber(m[1])
		if !ok || v < 0 || v > 5 {
			continue
		}
		set.add(core.EntityRating, r+"+", confRatingAtLeast)
	}
	if topRatedRe.MatchString(lower) {
		set.add(core.EntityRating, "4+", confTopRated)
	}
}

func (x *EntityExtractor) extractDates(set *entitySet, lower string) {
	if recentRe.MatchString(lower) {
		set.add(core.EntityDate, "recent", confRecent)
	}
	if m := periodRe.FindStringSubmatch(lower); m != nil {
		set.add(core.EntityDate, "this_"+m[1], confPeriod)
	}
	if m := sinceRe.FindStringSubmatch(lower); m != nil {
		y, err := strconv.Atoi(m[1])
		if err == nil && y >= 2000 && y <= x.now().Year() {
			set.add(core.EntityDate, "since_"+m[1], confSinceYear)
		}
	}
}

// enhanceQuery 把原文中没有以规范形式出现的高置信实体值追加到查询末尾。
func enhanceQuery(query, lower string, entities []core.Entity) string {
	var extra []string
	seen := make(map[string]bool)
	for _, e := range entities {
		switch e.Type {
		case core.EntityCategory, core.EntityBrand, core.EntityValue, core.EntityColor, core.EntityMaterial:
		default:
			continue
		}
		if e.Confidence < confToken || seen[e.Value] || strings.Contains(lower, e.Value) {
			continue
		}
		seen[e.Value] = true
		extra = append(extra, e.Value)
	}
	if len(extra) == 0 {
		return query
	}
	return strings.TrimSpace(query) + " " + strings.Join(extra, " ")
}
