package core

import (
	"context"
	"time"
)

// PreferenceStore 是偏好画像存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 一个用户一份画像，读-改-写经 Update 串行化
//
// 实现：
//   - store.ProfileStore（基于 core.KeyValueStore + core.Locker）
type PreferenceStore interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取画像，不存在时返回 ErrProfileNotFound
	Get(ctx context.Context, userID string) (*PreferenceProfile, error)

	// Save 整体写入画像（last-writer-wins，仅用于无并发场景）
	Save(ctx context.Context, profile *PreferenceProfile) error

	// Delete 删除画像
	Delete(ctx context.Context, userID string) error

	// Scan 按游标分页遍历用户 ID；cursor 不透明，为空表示从头开始，返回 next 为空表示结束
	Scan(ctx context.Context, cursor string, limit int) (userIDs []string, next string, err error)

	// Update 在用户锁内执行读-改-写：画像不存在时以空画像调用 fn。
	// fn 返回 false 表示无变化，不落盘；返回 error 时放弃本次修改。
	Update(ctx context.Context, userID string, fn func(p *PreferenceProfile) (bool, error)) (*PreferenceProfile, error)
}

// InteractionRecord 是交互日志中的一条记录。
type InteractionRecord struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      InteractionType `json:"type"`
	ProductID string          `json:"productId,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix 毫秒
}

// InteractionLog 保存每个用户最近的交互，用于跨用户聚合。
type InteractionLog interface {
	// Append 追加一条记录
	Append(ctx context.Context, rec InteractionRecord) error

	// Recent 返回用户最近的 limit 条记录（新的在前）
	Recent(ctx context.Context, userID string, limit int) ([]InteractionRecord, error)
}

// TermCount 是聚合结果中的一个词项。
type TermCount struct {
	Term  string  `json:"term"`
	Count int     `json:"count"`
	Score float64 `json:"score,omitempty"`
}

// SearchIndex 是外部全文索引的聚合能力，用于词典加载与统计扩展。
type SearchIndex interface {
	// Terms 返回字段上出现最多的词项
	Terms(ctx context.Context, field string, size int) ([]TermCount, error)

	// SignificantTerms 返回与 text 命中文档显著相关的词项
	SignificantTerms(ctx context.Context, field, text string, size int) ([]TermCount, error)
}

// Catalog 按 ID 补全商品信息，缺失的 ID 不出现在结果中。
type Catalog interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
}

// ErrProfileNotFound 表示用户还没有画像。
var ErrProfileNotFound = NewDomainError(ModulePreference, ErrorCodeNotFound, "preference: profile not found")

// Clock 返回当前时间，测试中可替换。
type Clock func() time.Time
