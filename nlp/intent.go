package nlp

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rushteam/searchkit/core"
)

type intentPattern struct {
	intent   core.Intent
	patterns []*regexp.Regexp
}

// intentPatterns 按优先级排列，先命中者胜出
var intentPatterns = []intentPattern{
	{core.IntentSort, compileAll(
		`\b(?:sort|order|arrange)(?:ed)?\b.*\b(?:by|on)\b`,
		`\b(?:low|high)(?:est)?\s+to\s+(?:high|low)(?:est)?\b`,
		`\b(?:newest|cheapest|latest)\s+first\b`,
	)},
	{core.IntentComparison, compileAll(
		`\b(?:compare|comparison|difference between)\b`,
		`\b[a-z]+\s+(?:vs\.?|versus)\s+[a-z]+`,
		`\b(?:which is better|what's better|better option)\b`,
	)},
	{core.IntentFilter, compileAll(
		`\b(?:filter|show only|only show|limit to|restrict to)\b`,
		`\bwith\s+[a-z ]+\s+only\b`,
	)},
	{core.IntentAvailability, compileAll(
		`\b(?:in stock|back in stock|availability)\b`,
		`\b(?:is|are)\s+[a-z ]+\s+available\b`,
		`\bdo you have\b`,
	)},
	{core.IntentPriceQuery, compileAll(
		`\b(?:how much|price of|cost of|price for)\b`,
		`\b(?:under|less than|below|above|over|more than)\s+\$\d`,
		`\$\d+(?:\.\d+)?\s*(?:to|-|and)\s*\$?\d`,
	)},
	{core.IntentRecommendation, compileAll(
		`\b(?:recommend|suggest)\w*\b`,
		`\b(?:best|top|popular|trending|top rated|highest rated)\s+[a-z]`,
	)},
	{core.IntentCategoryBrowse, compileAll(
		`\b(?:browse|explore)\s+[a-z]`,
		`\b(?:show me|view|see)\s+(?:all|the)\s+[a-z]`,
		`\b(?:what|which)\s+[a-z ]+\s+(?:are available|can i find)\b`,
	)},
	{core.IntentProductSearch, compileAll(
		`\b(?:find|search for|looking for|need|want)\s+(?:a |an |some )?[a-z]`,
		`\b(?:where can i find|is there)\b`,
	)},
	{core.IntentBrandSpecific, compileAll(
		`\b(?:made by|by)\s+[a-z]`,
		`\b[a-z]+\s+brand\b`,
	)},
	{core.IntentValueDriven, compileAll(
		`\b(?:sustainable|ethical|eco-friendly|eco friendly|organic|vegan|fair trade|handmade|recycled|upcycled|local|small batch)\b`,
		`\b(?:environmentally friendly|socially responsible|ethically made|eco conscious)\b`,
	)},
}

var intentKeywords = []struct {
	intent   core.Intent
	keywords []string
}{
	{core.IntentProductSearch, []string{"find", "search", "looking", "need", "want", "show", "get"}},
	{core.IntentCategoryBrowse, []string{"browse", "explore", "view", "see", "category", "categories", "all"}},
	{core.IntentBrandSpecific, []string{"brand", "by", "made by", "manufacturer"}},
	{core.IntentPriceQuery, []string{"price", "cost", "how much", "affordable", "expensive", "cheap", "budget", "luxury"}},
	{core.IntentValueDriven, []string{"sustainable", "ethical", "eco-friendly", "organic", "vegan", "fair trade", "handmade", "recycled", "local"}},
	{core.IntentComparison, []string{"compare", "comparison", "difference", "versus", "vs", "better"}},
	{core.IntentRecommendation, []string{"recommend", "suggest", "best", "top", "popular", "trending", "rated"}},
	{core.IntentAvailability, []string{"available", "in stock", "stock", "inventory"}},
	{core.IntentFilter, []string{"filter", "only", "limit", "restrict"}},
	{core.IntentSort, []string{"sort", "order", "arrange", "ranking", "highest", "lowest"}},
}

var intentExamples = map[core.Intent][]string{
	core.IntentProductSearch: {
		"find a black dress", "looking for organic cotton t-shirts", "search for eco-friendly water bottles",
		"need a new pair of sustainable jeans", "show me vegan leather bags", "find recycled plastic sunglasses",
		"i need a fair trade coffee mug",
	},
	core.IntentCategoryBrowse: {
		"browse sustainable clothing", "explore eco-friendly home goods", "show me all vegan products",
		"view organic skincare", "see all recycled items", "what sustainable products do you have",
		"which ethical brands are available",
	},
	core.IntentBrandSpecific: {
		"products by eco collective", "items from sustainable threads", "green earth brand",
		"show me ethical choice products", "find conscious couture dresses", "fair fashion jeans",
		"earth friendly cleaning products",
	},
	core.IntentPriceQuery: {
		"how much are organic cotton sheets", "price of sustainable yoga mats", "cost of eco-friendly water bottles",
		"products under $50", "items between $20 and $100", "affordable ethical clothing", "luxury sustainable fashion",
	},
	core.IntentValueDriven: {
		"sustainable kitchen products", "ethical jewelry brands", "eco-friendly cleaning supplies",
		"organic cotton bedding", "vegan leather alternatives", "fair trade chocolate", "locally made furniture",
	},
	core.IntentComparison: {
		"compare organic cotton vs recycled polyester", "difference between vegan leather and real leather",
		"bamboo or recycled plastic toothbrushes", "which is better silk or tencel", "sustainable vs conventional cotton",
		"compare eco collective and green earth brands", "recycled paper or bamboo toilet paper",
	},
	core.IntentRecommendation: {
		"recommend sustainable gifts under $30", "suggest eco-friendly cleaning products",
		"what are the best vegan leather bags", "top rated organic skincare", "popular sustainable fashion brands",
		"best value eco-friendly products", "trending ethical jewelry",
	},
	core.IntentAvailability: {
		"are organic cotton sheets in stock", "do you have bamboo toothbrushes",
		"availability of recycled paper notebooks", "is the eco-friendly water bottle available",
		"when will sustainable yoga mats be back in stock", "check stock for vegan leather bags",
		"are fair trade coffee beans available",
	},
	core.IntentFilter: {
		"filter by sustainable materials", "show only vegan products", "limit to local brands",
		"restrict to items under $50", "filter by 4+ star rating", "show only organic options",
		"with recycled packaging only",
	},
	core.IntentSort: {
		"sort by price low to high", "order by customer rating", "arrange by newest first",
		"sort sustainable clothing by price", "order vegan products by popularity",
		"arrange by eco-friendliness score", "sort by distance from local",
	},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

const (
	patternConfidence = 0.9
	defaultConfidence = 0.5
)

// IntentDetector 识别查询意图：规则 -> 关键词占比 -> 朴素贝叶斯 -> general。
type IntentDetector struct {
	threshold  float64
	tokenizer  *Tokenizer
	classifier *bayesClassifier
}

// NewIntentDetector 创建识别器并用内置样例训练分类器。
func NewIntentDetector(tokenizer *Tokenizer, threshold float64) *IntentDetector {
	d := &IntentDetector{threshold: threshold, tokenizer: tokenizer, classifier: newBayesClassifier()}
	intents := make([]string, 0, len(intentExamples))
	for intent := range intentExamples {
		intents = append(intents, string(intent))
	}
	sort.Strings(intents)
	for _, intent := range intents {
		for _, ex := range intentExamples[core.Intent(intent)] {
			_, stems := tokenizer.Tokenize(ex)
			d.classifier.train(core.Intent(intent), stems)
		}
	}
	return d
}

// Detect 返回主意图；置信度低于阈值时退化为 general。
func (d *IntentDetector) Detect(query string, stems []string) core.IntentResult {
	lower := strings.ToLower(query)
	for _, ip := range intentPatterns {
		for _, re := range ip.patterns {
			if re.MatchString(lower) {
				return core.IntentResult{Intent: ip.intent, Confidence: patternConfidence, Source: "pattern"}
			}
		}
	}

	if scores := keywordScores(lower); len(scores) > 0 && scores[0].Confidence >= d.threshold {
		return core.IntentResult{Intent: scores[0].Intent, Confidence: scores[0].Confidence, Secondary: scores[1:], Source: "keyword"}
	}

	if scores := d.classifier.classify(stems); len(scores) > 0 && scores[0].Confidence >= d.threshold {
		return core.IntentResult{Intent: scores[0].Intent, Confidence: scores[0].Confidence, Secondary: scores[1:], Source: "classifier"}
	}

	return core.IntentResult{Intent: core.IntentGeneral, Confidence: defaultConfidence, Source: "default"}
}

// keywordScores 按命中关键词的占比打分，降序返回。
func keywordScores(lower string) []core.IntentScore {
	text := " " + strings.Join(strings.Fields(lower), " ") + " "
	var total int
	counts := make([]int, len(intentKeywords))
	for i, ik := range intentKeywords {
		for _, kw := range ik.keywords {
			if strings.Contains(text, " "+kw+" ") {
				counts[i]++
				total++
			}
		}
	}
	if total == 0 {
		return nil
	}
	var out []core.IntentScore
	for i, n := range counts {
		if n > 0 {
			out = append(out, core.IntentScore{Intent: intentKeywords[i].intent, Confidence: float64(n) / float64(total)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
