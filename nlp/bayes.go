package nlp

import (
	"math"
	"sort"

	"github.com/rushteam/searchkit/core"
)

// bayesClassifier 是基于词干的多项式朴素贝叶斯（拉普拉斯平滑）。
// 训练完成后只读，可并发 Classify。
type bayesClassifier struct {
	classes    []core.Intent
	docs       map[core.Intent]int
	totalDocs  int
	termCounts map[core.Intent]map[string]int
	classTerms map[core.Intent]int
	vocab      map[string]struct{}
}

func newBayesClassifier() *bayesClassifier {
	return &bayesClassifier{
		docs:       make(map[core.Intent]int),
		termCounts: make(map[core.Intent]map[string]int),
		classTerms: make(map[core.Intent]int),
		vocab:      make(map[string]struct{}),
	}
}

func (b *bayesClassifier) train(intent core.Intent, stems []string) {
	if _, ok := b.docs[intent]; !ok {
		b.classes = append(b.classes, intent)
		b.termCounts[intent] = make(map[string]int)
	}
	b.docs[intent]++
	b.totalDocs++
	for _, s := range stems {
		b.termCounts[intent][s]++
		b.classTerms[intent]++
		b.vocab[s] = struct{}{}
	}
}

// classify 返回按后验概率降序的意图；没有任何已知词干时返回 nil。
func (b *bayesClassifier) classify(stems []string) []core.IntentScore {
	known := stems[:0:0]
	for _, s := range stems {
		if _, ok := b.vocab[s]; ok {
			known = append(known, s)
		}
	}
	if len(known) == 0 || b.totalDocs == 0 {
		return nil
	}
	v := float64(len(b.vocab))
	logp := make([]float64, len(b.classes))
	peak := math.Inf(-1)
	for i, c := range b.classes {
		lp := math.Log(float64(b.docs[c]) / float64(b.totalDocs))
		denom := float64(b.classTerms[c]) + v
		for _, s := range known {
			lp += math.Log((float64(b.termCounts[c][s]) + 1) / denom)
		}
		logp[i] = lp
		if lp > peak {
			peak = lp
		}
	}
	var sum float64
	for i := range logp {
		logp[i] = math.Exp(logp[i] - peak)
		sum += logp[i]
	}
	out := make([]core.IntentScore, len(b.classes))
	for i, c := range b.classes {
		out[i] = core.IntentScore{Intent: c, Confidence: logp[i] / sum}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
