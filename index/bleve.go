// Package index 提供基于 bleve 的内存商品索引，实现 core.SearchIndex 与 core.Catalog。
//
// 用于测试、演示与命令行工具；线上部署时由外部全文索引实现同样的接口。
package index

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	json "github.com/goccy/go-json"

	"github.com/rushteam/searchkit/core"
)

// BleveIndex 是内存商品索引，并发安全。
type BleveIndex struct {
	idx bleve.Index

	mu       sync.RWMutex
	products map[string]*core.Product
}

var (
	_ core.SearchIndex = (*BleveIndex)(nil)
	_ core.Catalog     = (*BleveIndex)(nil)
)

func productMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	num := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("categories", keyword)
	doc.AddFieldMappingsAt("brand", keyword)
	doc.AddFieldMappingsAt("values", keyword)
	doc.AddFieldMappingsAt("tags", keyword)
	doc.AddFieldMappingsAt("price", num)
	doc.AddFieldMappingsAt("rating", num)
	doc.AddFieldMappingsAt("createdAt", bleve.NewDateTimeFieldMapping())

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// NewBleveIndex 创建空的内存索引。
func NewBleveIndex() (*BleveIndex, error) {
	idx, err := bleve.NewMemOnly(productMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &BleveIndex{idx: idx, products: make(map[string]*core.Product)}, nil
}

func document(p *core.Product) map[string]any {
	doc := map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"categories":  lowerAll(p.Categories),
		"brand":       strings.ToLower(p.Brand),
		"values":      lowerAll(p.Values),
		"tags":        lowerAll(p.Tags),
		"price":       p.Price,
		"rating":      p.Rating,
	}
	if !p.CreatedAt.IsZero() {
		doc["createdAt"] = p.CreatedAt
	}
	return doc
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Index 批量写入商品，同 ID 覆盖。
func (b *BleveIndex) Index(ctx context.Context, products ...*core.Product) error {
	batch := b.idx.NewBatch()
	for _, p := range products {
		if p == nil || p.ID == "" {
			continue
		}
		if err := batch.Index(p.ID, document(p)); err != nil {
			return fmt.Errorf("index product %s: %w", p.ID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.idx.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	b.mu.Lock()
	for _, p := range products {
		if p != nil && p.ID != "" {
			cp := *p
			b.products[p.ID] = &cp
		}
	}
	b.mu.Unlock()
	return nil
}

// LoadFile 从 JSON 数组文件导入商品。
func (b *BleveIndex) LoadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var products []*core.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return 0, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return len(products), b.Index(ctx, products...)
}

// Delete 删除商品。
func (b *BleveIndex) Delete(id string) error {
	if err := b.idx.Delete(id); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.products, id)
	b.mu.Unlock()
	return nil
}

// FindByIDs 实现 core.Catalog。
func (b *BleveIndex) FindByIDs(_ context.Context, ids []string) (map[string]*core.Product, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]*core.Product, len(ids))
	for _, id := range ids {
		if p, ok := b.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

// Terms 返回字段上文档数最多的词项（terms facet）。
func (b *BleveIndex) Terms(ctx context.Context, field string, size int) ([]core.TermCount, error) {
	facets, _, err := b.facet(ctx, bleve.NewMatchAllQuery(), field, size)
	return facets, err
}

// SignificantTerms 返回在 text 命中文档中显著高于全量分布的词项。
// 打分使用 JLH：(fg% - bg%) * (fg% / bg%)，只保留 fg% > bg% 的词项，查询本身的词被排除。
func (b *BleveIndex) SignificantTerms(ctx context.Context, field, text string, size int) ([]core.TermCount, error) {
	if size <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	q := bleve.NewMatchQuery(text)
	q.SetField(field)
	candidates, fgTotal, err := b.facet(ctx, q, field, size*4)
	if err != nil || fgTotal == 0 {
		return nil, err
	}
	bgTotal, err := b.idx.DocCount()
	if err != nil {
		return nil, err
	}
	exclude := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		exclude[w] = true
	}

	var out []core.TermCount
	for _, c := range candidates {
		if exclude[c.Term] {
			continue
		}
		tq := bleve.NewTermQuery(c.Term)
		tq.SetField(field)
		res, err := b.idx.SearchInContext(ctx, bleve.NewSearchRequestOptions(tq, 0, 0, false))
		if err != nil {
			return nil, err
		}
		fg := float64(c.Count) / float64(fgTotal)
		bg := float64(res.Total) / float64(bgTotal)
		if bg == 0 || fg <= bg {
			continue
		}
		c.Score = (fg - bg) * (fg / bg)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if math.Abs(out[i].Score-out[j].Score) > 1e-12 {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > size {
		out = out[:size]
	}
	return out, nil
}

func (b *BleveIndex) facet(ctx context.Context, q query.Query, field string, size int) ([]core.TermCount, uint64, error) {
	if size <= 0 {
		return nil, 0, nil
	}
	req := bleve.NewSearchRequestOptions(q, 0, 0, false)
	req.AddFacet("terms", bleve.NewFacetRequest(field, size))
	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("facet %s: %w", field, err)
	}
	fr, ok := res.Facets["terms"]
	if !ok || fr.Terms == nil {
		return nil, res.Total, nil
	}
	terms := fr.Terms.Terms()
	out := make([]core.TermCount, 0, len(terms))
	for _, t := range terms {
		out = append(out, core.TermCount{Term: t.Term, Count: t.Count})
	}
	return out, res.Total, nil
}

// Count 返回索引中的商品数。
func (b *BleveIndex) Count() (uint64, error) { return b.idx.DocCount() }

// Close 关闭索引。
func (b *BleveIndex) Close() error { return b.idx.Close() }
